package legacy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"social-go/internal/db"
	"social-go/internal/models"
	"social-go/internal/security"
)

// unusableHash never matches a password; it marks users whose legacy record
// carried no password or one too long to rehash.
const unusableHash = "!"

// Report counts rows written per collection. Skipped counts records that
// could not be imported; existing rows are not counted at all.
type Report struct {
	Users         int `json:"users"`
	Posts         int `json:"posts"`
	Comments      int `json:"comments"`
	Reactions     int `json:"reactions"`
	InviteCodes   int `json:"inviteCodes"`
	Messages      int `json:"messages"`
	Groups        int `json:"groups"`
	GroupMembers  int `json:"groupMembers"`
	GroupMessages int `json:"groupMessages"`
	Logs          int `json:"logs"`
	Skipped       int `json:"skipped"`
}

type Importer struct {
	db     *db.DB
	log    *log.Logger
	hash   func(string) (string, error)
	now    time.Time
	report Report
	users  map[string]bool
}

func NewImporter(database *db.DB, logger *log.Logger) *Importer {
	return &Importer{
		db:   database,
		log:  logger,
		hash: security.HashPassword,
	}
}

// Import writes every collection of tree. Records already present are left
// untouched, so running it twice is harmless.
func (im *Importer) Import(ctx context.Context, tree *Tree) (*Report, error) {
	im.now = time.Now().UTC()
	im.report = Report{}
	im.users = make(map[string]bool, len(tree.Users))

	steps := []struct {
		name string
		run  func(context.Context, *Tree) error
	}{
		{"users", im.importUsers},
		{"inviteCodes", im.importInviteCodes},
		{"posts", im.importPosts},
		{"dms", im.importDMs},
		{"groups", im.importGroups},
		{"adminLogs", im.importLogs},
	}
	for _, step := range steps {
		if err := step.run(ctx, tree); err != nil {
			return nil, fmt.Errorf("import %s: %w", step.name, err)
		}
		im.log.Debug("imported collection", "collection", step.name)
	}

	report := im.report
	return &report, nil
}

func (im *Importer) skip(msg string, keyvals ...any) {
	im.report.Skipped++
	im.log.Warn(msg, keyvals...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (im *Importer) importUsers(ctx context.Context, tree *Tree) error {
	for _, key := range sortedKeys(tree.Users) {
		u := tree.Users[key]
		name := strings.TrimSpace(u.Username)
		if name == "" {
			name = key
		}
		if !models.ValidUsername(name) {
			im.skip("skipping user with invalid name", "user", key)
			continue
		}
		im.users[name] = true

		exists, err := im.db.UserExists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		hash := unusableHash
		switch {
		case u.Password == "":
		case len(u.Password) > security.MaxPasswordBytes:
			im.skip("password too long to rehash, login disabled", "user", name)
		default:
			if hash, err = im.hash(u.Password); err != nil {
				return fmt.Errorf("rehash %s: %w", name, err)
			}
		}
		fresh, err := im.db.ImportUser(ctx, &models.User{
			Username:     name,
			PasswordHash: hash,
			Bio:          u.Bio,
			Avatar:       u.Avatar,
			IsAdmin:      u.IsAdmin,
			Banned:       u.Banned,
			CreatedAt:    u.Created.Or(im.now),
		})
		if err != nil {
			return err
		}
		if fresh {
			im.report.Users++
		}
	}
	return nil
}

func (im *Importer) importInviteCodes(ctx context.Context, tree *Tree) error {
	for _, key := range sortedKeys(tree.InviteCodes) {
		c := tree.InviteCodes[key]
		code := strings.TrimSpace(c.Code)
		if code == "" {
			code = key
		}
		invite := &models.InviteCode{
			Code:      code,
			Used:      c.Used,
			UsedBy:    c.UsedBy,
			Notes:     c.Notes,
			CreatedBy: c.CreatedBy,
			CreatedAt: c.Created.Or(im.now),
		}
		if c.Used && !c.UsedAt.IsZero() {
			usedAt := c.UsedAt.Time
			invite.UsedAt = &usedAt
		}
		fresh, err := im.db.ImportInviteCode(ctx, invite)
		if err != nil {
			return err
		}
		if fresh {
			im.report.InviteCodes++
		}
	}
	return nil
}

func (im *Importer) importPosts(ctx context.Context, tree *Tree) error {
	for _, key := range sortedKeys(tree.Posts) {
		p := tree.Posts[key]
		if p.Author == "" {
			im.skip("skipping post without author", "post", key)
			continue
		}
		created := p.Created.Or(im.now)
		post := &models.Post{
			ID:        key,
			Author:    p.Author,
			Content:   p.Content,
			Image:     p.Image,
			Video:     p.Video,
			Deleted:   p.Deleted,
			CreatedAt: created,
			UpdatedAt: p.Updated.Or(created),
		}
		fresh, err := im.db.ImportPost(ctx, post)
		if err != nil {
			return err
		}
		if fresh {
			im.report.Posts++
		}

		for kind, set := range map[models.ReactionKind]map[string]bool{
			models.ReactionLike: p.Likes,
			models.ReactionLove: p.Loves,
		} {
			for _, user := range sortedKeys(set) {
				if !set[user] {
					continue
				}
				if err := im.db.AddReaction(ctx, key, user, kind, created); err != nil {
					return err
				}
				if fresh {
					im.report.Reactions++
				}
			}
		}

		for _, ckey := range sortedKeys(p.Comments) {
			c := p.Comments[ckey]
			if c.Author == "" || c.Text == "" {
				im.skip("skipping empty comment", "post", key, "comment", ckey)
				continue
			}
			commentCreated := c.Created.Or(created)
			fresh, err := im.db.ImportComment(ctx, &models.Comment{
				ID:        ckey,
				PostID:    key,
				Author:    c.Author,
				Text:      c.Text,
				CreatedAt: commentCreated,
				UpdatedAt: c.Updated.Or(commentCreated),
			})
			if err != nil {
				return err
			}
			if fresh {
				im.report.Comments++
			}
		}
	}
	return nil
}

// splitPair recovers both participants from a conversation key. Usernames
// may contain '_', so every split point is tried and one naming known users
// (or at least the sender) wins.
func (im *Importer) splitPair(convo, sender string) (string, string, bool) {
	var fallback [2]string
	found := false
	for i := strings.Index(convo, "_"); i >= 0; {
		a, b := convo[:i], convo[i+1:]
		if a != "" && b != "" && models.ConversationID(a, b) == convo {
			if im.users[a] && im.users[b] {
				return a, b, true
			}
			if !found && (a == sender || b == sender) {
				fallback = [2]string{a, b}
				found = true
			}
		}
		next := strings.Index(convo[i+1:], "_")
		if next < 0 {
			break
		}
		i += next + 1
	}
	return fallback[0], fallback[1], found
}

func (im *Importer) importDMs(ctx context.Context, tree *Tree) error {
	for _, convo := range sortedKeys(tree.DMs) {
		msgs := tree.DMs[convo].Messages
		for _, key := range sortedKeys(msgs) {
			m := msgs[key]
			sender := m.Sender
			if sender == "" {
				sender = m.Author
			}
			a, b, ok := im.splitPair(convo, sender)
			if !ok || (sender != a && sender != b) || m.Text == "" {
				im.skip("skipping message", "conversation", convo, "message", key)
				continue
			}
			recipient := a
			if sender == a {
				recipient = b
			}
			fresh, err := im.db.ImportDirectMessage(ctx, key, &models.DirectMessage{
				Sender:    sender,
				Recipient: recipient,
				Text:      m.Text,
				CreatedAt: m.Created.Or(im.now),
			})
			if err != nil {
				return err
			}
			if fresh {
				im.report.Messages++
			}
		}
	}
	return nil
}

func (im *Importer) importGroups(ctx context.Context, tree *Tree) error {
	for _, name := range sortedKeys(tree.Groups) {
		g := tree.Groups[name]
		if strings.TrimSpace(name) == "" || g.Creator == "" {
			im.skip("skipping group without creator", "group", name)
			continue
		}
		members := []string{g.Creator}
		for _, m := range sortedKeys(g.Members) {
			if g.Members[m] && m != g.Creator {
				members = append(members, m)
			}
		}

		id, created, err := im.db.ImportGroup(ctx, &models.Group{
			Name:      name,
			Creator:   g.Creator,
			Members:   members,
			CreatedAt: g.Created.Or(im.now),
		})
		if err != nil {
			return err
		}
		if created {
			im.report.Groups++
			im.report.GroupMembers += len(members)
		} else {
			for _, m := range members {
				err := im.db.AddGroupMember(ctx, id, m)
				if errors.Is(err, db.ErrAlreadyMember) {
					continue
				}
				if err != nil {
					return err
				}
				im.report.GroupMembers++
			}
		}

		for _, key := range sortedKeys(g.Messages) {
			m := g.Messages[key]
			author := m.Author
			if author == "" {
				author = m.Sender
			}
			if author == "" || m.Text == "" {
				im.skip("skipping group message", "group", name, "message", key)
				continue
			}
			fresh, err := im.db.ImportGroupMessage(ctx, key, &models.GroupMessage{
				GroupID:   id,
				Author:    author,
				Text:      m.Text,
				CreatedAt: m.Created.Or(im.now),
			})
			if err != nil {
				return err
			}
			if fresh {
				im.report.GroupMessages++
			}
		}
	}
	return nil
}

func (im *Importer) importLogs(ctx context.Context, tree *Tree) error {
	for _, key := range sortedKeys(tree.AdminLogs) {
		l := tree.AdminLogs[key]
		if l.Action == "" {
			im.skip("skipping log without action", "log", key)
			continue
		}
		fresh, err := im.db.ImportLog(ctx, &models.AdminLog{
			ID:        key,
			Action:    l.Action,
			User:      l.User,
			Details:   l.Details,
			Timestamp: l.Timestamp.Or(im.now),
		})
		if err != nil {
			return err
		}
		if fresh {
			im.report.Logs++
		}
	}
	return nil
}
