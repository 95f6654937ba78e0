package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"social-go/internal/models"
)

// NewLog builds an audit entry stamped now.
func NewLog(action, user string, details map[string]any) *models.AdminLog {
	return &models.AdminLog{
		ID:        NewID(),
		Action:    action,
		User:      user,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

func (db *DB) appendLog(ctx context.Context, q querier, entry *models.AdminLog) error {
	if entry == nil {
		return nil
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	details := []byte("{}")
	if len(entry.Details) > 0 {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("encode log details: %w", err)
		}
	}
	_, err := db.exec(ctx, q,
		"INSERT INTO admin_logs (id, action, username, details, created_at) VALUES (?, ?, ?, ?, ?)",
		entry.ID, entry.Action, entry.User, string(details), millis(entry.Timestamp))
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

func (db *DB) AppendLog(ctx context.Context, entry *models.AdminLog) error {
	return db.appendLog(ctx, db.DB, entry)
}

// ListLogs returns up to limit entries, newest first.
func (db *DB) ListLogs(ctx context.Context, limit int) ([]models.AdminLog, error) {
	rows, err := db.query(ctx, db.DB,
		"SELECT id, action, username, details, created_at FROM admin_logs ORDER BY created_at DESC, id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.AdminLog{}
	for rows.Next() {
		var (
			entry   models.AdminLog
			details string
			created int64
		)
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.User, &details, &created); err != nil {
			return nil, err
		}
		if details != "" && details != "{}" {
			if err := json.Unmarshal([]byte(details), &entry.Details); err != nil {
				return nil, fmt.Errorf("decode log %s: %w", entry.ID, err)
			}
		}
		entry.Timestamp = fromMillis(created)
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// ClearLogs removes every entry and records who cleared them.
func (db *DB) ClearLogs(ctx context.Context, by string) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := db.exec(ctx, tx, "DELETE FROM admin_logs"); err != nil {
			return err
		}
		return db.appendLog(ctx, tx, NewLog(models.ActionLogsCleared, by, nil))
	})
}

func (db *DB) Stats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{}
	counts := []struct {
		dst   *int
		query string
		args  []any
	}{
		{&stats.TotalUsers, "SELECT COUNT(*) FROM users", nil},
		{&stats.TotalPosts, "SELECT COUNT(*) FROM posts", nil},
		{&stats.ActiveInviteCodes, "SELECT COUNT(*) FROM invite_codes WHERE used = ?", []any{false}},
		{&stats.BannedUsers, "SELECT COUNT(*) FROM users WHERE banned = ?", []any{true}},
	}
	for _, c := range counts {
		if err := db.queryRow(ctx, db.DB, c.query, c.args...).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
	}
	return stats, nil
}
