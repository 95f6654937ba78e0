package models

import (
	"sort"
	"strings"
	"time"
)

const MaxMessageLength = 2000

type DirectMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Sender         string    `json:"sender"`
	Recipient      string    `json:"recipient"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Conversation summarises one DM thread from the point of view of a user.
type Conversation struct {
	ID          string        `json:"id"`
	With        string        `json:"with"`
	LastMessage DirectMessage `json:"lastMessage"`
}

// ConversationID is the same for both participants regardless of order.
func ConversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "_")
}

type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Creator   string    `json:"creator"`
	Members   []string  `json:"members,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (g *Group) HasMember(username string) bool {
	for _, m := range g.Members {
		if m == username {
			return true
		}
	}
	return false
}

type GroupMessage struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"groupId"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

const MaxGroupNameLength = 64
