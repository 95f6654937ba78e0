package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"social-go/internal/models"
)

func (db *DB) CreateSession(ctx context.Context, session *models.Session) error {
	_, err := db.exec(ctx, db.DB,
		"INSERT INTO sessions (token, username, created_at, expires_at) VALUES (?, ?, ?, ?)",
		session.Token, session.Username, millis(session.CreatedAt), millis(session.ExpiresAt))
	return err
}

// GetSession returns the session for token, or ErrSessionExpired once its
// expiry has passed.
func (db *DB) GetSession(ctx context.Context, token string) (*models.Session, error) {
	row := db.queryRow(ctx, db.DB, "SELECT token, username, created_at, expires_at FROM sessions WHERE token = ?", token)

	session := &models.Session{}
	var created, expires int64
	err := row.Scan(&session.Token, &session.Username, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	session.CreatedAt = fromMillis(created)
	session.ExpiresAt = fromMillis(expires)
	if session.Expired(time.Now()) {
		return nil, ErrSessionExpired
	}
	return session, nil
}

func (db *DB) DeleteSession(ctx context.Context, token string) error {
	_, err := db.exec(ctx, db.DB, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// PurgeExpiredSessions deletes sessions that expired before now.
func (db *DB) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.exec(ctx, db.DB, "DELETE FROM sessions WHERE expires_at <= ?", millis(now))
	if err != nil {
		return 0, err
	}
	return affected(res)
}
