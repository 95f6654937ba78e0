package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"social-go/internal/models"
)

// Import* insert records from a legacy tree. Each leaves an existing row
// untouched and reports whether a new row was written, so re-running an
// import is harmless.

func (db *DB) insertIgnore(ctx context.Context, q querier, query string, args ...any) (bool, error) {
	res, err := db.exec(ctx, q, query+" ON CONFLICT DO NOTHING", args...)
	if err != nil {
		return false, err
	}
	n, err := affected(res)
	return n > 0, err
}

func (db *DB) ImportUser(ctx context.Context, u *models.User) (bool, error) {
	return db.insertIgnore(ctx, db.DB, "INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		u.Username, u.PasswordHash, u.Bio, u.Avatar, u.IsAdmin, u.Banned, millis(u.CreatedAt))
}

func (db *DB) ImportInviteCode(ctx context.Context, c *models.InviteCode) (bool, error) {
	var usedAt any
	if c.UsedAt != nil {
		usedAt = millis(*c.UsedAt)
	}
	return db.insertIgnore(ctx, db.DB, "INSERT INTO invite_codes ("+inviteColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		c.Code, c.Used, c.UsedBy, usedAt, c.Notes, c.CreatedBy, millis(c.CreatedAt))
}

func (db *DB) ImportPost(ctx context.Context, p *models.Post) (bool, error) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	return db.insertIgnore(ctx, db.DB,
		"INSERT INTO posts (id, author, content, image, video, deleted, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.Author, p.Content, p.Image, p.Video, p.Deleted, millis(p.CreatedAt), millis(p.UpdatedAt))
}

func (db *DB) ImportComment(ctx context.Context, c *models.Comment) (bool, error) {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	return db.insertIgnore(ctx, db.DB,
		"INSERT INTO comments (id, post_id, author, text, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		c.ID, c.PostID, c.Author, c.Text, millis(c.CreatedAt), millis(c.UpdatedAt))
}

// ImportDirectMessage keys the message by its legacy push key so a second
// run finds it again; the stored id is derived from the timestamp to keep
// id order equal to time order.
func (db *DB) ImportDirectMessage(ctx context.Context, legacyKey string, m *models.DirectMessage) (bool, error) {
	m.ConversationID = models.ConversationID(m.Sender, m.Recipient)
	key := "dms/" + m.ConversationID + "/" + legacyKey
	var fresh bool
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if fresh, err = db.markImported(ctx, tx, key); err != nil || !fresh {
			return err
		}
		m.ID = idAt(m.CreatedAt)
		return db.insertDirectMessage(ctx, tx, m)
	})
	if err != nil {
		return false, err
	}
	return fresh, nil
}

// ImportGroup creates the group unless one with the same name exists, and
// returns the id of whichever group now holds that name.
func (db *DB) ImportGroup(ctx context.Context, g *models.Group) (string, bool, error) {
	err := db.CreateGroup(ctx, g)
	if err == nil {
		return g.ID, true, nil
	}
	if !errors.Is(err, ErrGroupNameTaken) {
		return "", false, err
	}
	var id string
	if err := db.queryRow(ctx, db.DB, "SELECT id FROM chat_groups WHERE name = ?", g.Name).Scan(&id); err != nil {
		return "", false, fmt.Errorf("lookup group %s: %w", g.Name, err)
	}
	return id, false, nil
}

func (db *DB) ImportGroupMessage(ctx context.Context, legacyKey string, m *models.GroupMessage) (bool, error) {
	key := "groups/" + m.GroupID + "/" + legacyKey
	var fresh bool
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if fresh, err = db.markImported(ctx, tx, key); err != nil || !fresh {
			return err
		}
		m.ID = idAt(m.CreatedAt)
		return db.insertGroupMessage(ctx, tx, m)
	})
	if err != nil {
		return false, err
	}
	return fresh, nil
}

func (db *DB) ImportLog(ctx context.Context, entry *models.AdminLog) (bool, error) {
	var n int
	if err := db.queryRow(ctx, db.DB, "SELECT COUNT(*) FROM admin_logs WHERE id = ?", entry.ID).Scan(&n); err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	return true, db.AppendLog(ctx, entry)
}

// markImported records a legacy key and reports whether it was new. It runs
// in the same transaction as the row it stands for.
func (db *DB) markImported(ctx context.Context, tx *sql.Tx, key string) (bool, error) {
	return db.insertIgnore(ctx, tx, "INSERT INTO legacy_imports (legacy_key, imported_at) VALUES (?, ?)", key, millis(time.Now()))
}
