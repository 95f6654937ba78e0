package models

import "time"

type ReactionKind string

const (
	ReactionLike ReactionKind = "like"
	ReactionLove ReactionKind = "love"
)

func (k ReactionKind) Valid() bool {
	return k == ReactionLike || k == ReactionLove
}

const (
	MaxPostLength    = 5000
	MaxCommentLength = 300
)

// Post is a feed entry as seen by one viewer: counts and the viewer's own
// reactions are derived at query time.
type Post struct {
	ID           string    `json:"id"`
	Author       string    `json:"author"`
	AuthorAvatar string    `json:"authorAvatar,omitempty"`
	Content      string    `json:"content"`
	Image        string    `json:"image,omitempty"`
	Video        string    `json:"video,omitempty"`
	Likes        int       `json:"likes"`
	Loves        int       `json:"loves"`
	Comments     int       `json:"comments"`
	LikedByMe    bool      `json:"likedByMe"`
	LovedByMe    bool      `json:"lovedByMe"`
	Deleted      bool      `json:"deleted"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
