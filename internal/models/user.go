package models

import (
	"regexp"
	"time"
)

type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Don't expose in JSON
	Bio          string    `json:"bio"`
	Avatar       string    `json:"avatar,omitempty"`
	IsAdmin      bool      `json:"isAdmin"`
	Banned       bool      `json:"banned"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Session struct {
	Token     string    `json:"-"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type InviteCode struct {
	Code      string     `json:"code"`
	Used      bool       `json:"used"`
	UsedBy    string     `json:"usedBy,omitempty"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	Notes     string     `json:"notes"`
	CreatedBy string     `json:"createdBy"`
	CreatedAt time.Time  `json:"createdAt"`
}

const (
	MinPasswordLength = 6
	MaxBioLength      = 500
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}
