// Package legacy migrates a hosted JSON tree written by the old browser
// client into the SQL store.
package legacy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"social-go/internal/treestore"
)

// Timestamp accepts the ISO strings the browser wrote as well as Unix
// milliseconds. Unparseable values decode as the zero time.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z"} {
			if parsed, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
				t.Time = parsed.UTC()
				return nil
			}
		}
		return nil
	}
	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		return nil
	}
	t.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

// Or returns t, or fallback when t is unset.
func (t Timestamp) Or(fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t.Time
}

type User struct {
	Username string    `json:"username"`
	Password string    `json:"passwordHash"`
	Bio      string    `json:"bio"`
	Avatar   string    `json:"avatar"`
	IsAdmin  bool      `json:"isAdmin"`
	Banned   bool      `json:"banned"`
	Created  Timestamp `json:"createdAt"`
}

type Comment struct {
	ID      string    `json:"id"`
	Author  string    `json:"author"`
	Text    string    `json:"text"`
	Created Timestamp `json:"createdAt"`
	Updated Timestamp `json:"updatedAt"`
}

type Post struct {
	ID       string             `json:"id"`
	Author   string             `json:"author"`
	Content  string             `json:"content"`
	Image    string             `json:"image"`
	Video    string             `json:"video"`
	Deleted  bool               `json:"deleted"`
	Likes    map[string]bool    `json:"likes"`
	Loves    map[string]bool    `json:"loves"`
	Comments map[string]Comment `json:"comments"`
	Created  Timestamp          `json:"createdAt"`
	Updated  Timestamp          `json:"updatedAt"`
}

type InviteCode struct {
	Code      string    `json:"code"`
	Notes     string    `json:"notes"`
	CreatedBy string    `json:"createdBy"`
	Used      bool      `json:"used"`
	UsedBy    string    `json:"usedBy"`
	UsedAt    Timestamp `json:"usedAt"`
	Created   Timestamp `json:"createdAt"`
}

type Message struct {
	Sender  string    `json:"sender"`
	Author  string    `json:"author"`
	Text    string    `json:"text"`
	Created Timestamp `json:"createdAt"`
}

type Conversation struct {
	Messages map[string]Message `json:"messages"`
}

type Group struct {
	Creator  string             `json:"creator"`
	Members  map[string]bool    `json:"members"`
	Messages map[string]Message `json:"messages"`
	Created  Timestamp          `json:"createdAt"`
}

type AdminLog struct {
	Action    string         `json:"action"`
	User      string         `json:"user"`
	Details   map[string]any `json:"details"`
	Timestamp Timestamp      `json:"timestamp"`
}

// Tree is the root of the hosted document. Sessions are deliberately absent:
// imported users log in again.
type Tree struct {
	Users       map[string]User         `json:"users"`
	Posts       map[string]Post         `json:"posts"`
	InviteCodes map[string]InviteCode   `json:"inviteCodes"`
	DMs         map[string]Conversation `json:"dms"`
	Groups      map[string]Group        `json:"groups"`
	AdminLogs   map[string]AdminLog     `json:"adminLogs"`
}

// Load decodes a JSON export of the tree.
func Load(r io.Reader) (*Tree, error) {
	var tree Tree
	if err := json.NewDecoder(r).Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	return &tree, nil
}

// Fetch reads the whole tree from the hosted store.
func Fetch(ctx context.Context, client *treestore.Client) (*Tree, error) {
	var tree Tree
	if err := client.Get(ctx, "", &tree); err != nil {
		return nil, fmt.Errorf("fetch tree: %w", err)
	}
	return &tree, nil
}
