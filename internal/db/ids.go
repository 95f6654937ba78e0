package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID returns a time-ordered identifier for posts, comments, messages,
// media and log entries.
func NewID() string {
	return ulid.Make().String()
}

// idAt returns an identifier that sorts at t, used when importing records
// that already carry a timestamp.
func idAt(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

func newGroupID() string {
	return uuid.NewString()
}
