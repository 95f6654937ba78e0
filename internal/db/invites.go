package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"social-go/internal/models"
)

// claimInvite marks code used by username. The WHERE used = false guard makes
// the claim single-use even under concurrent signups.
func (db *DB) claimInvite(ctx context.Context, tx *sql.Tx, code, username string, at time.Time) error {
	res, err := db.exec(ctx, tx,
		"UPDATE invite_codes SET used = ?, used_by = ?, used_at = ? WHERE code = ? AND used = ?",
		true, username, millis(at), code, false)
	if err != nil {
		return fmt.Errorf("claim invite: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var used bool
	err = db.queryRow(ctx, tx, "SELECT used FROM invite_codes WHERE code = ?", code).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInviteInvalid
	}
	if err != nil {
		return err
	}
	return ErrInviteUsed
}

func (db *DB) CreateInviteCode(ctx context.Context, code *models.InviteCode) error {
	code.Code = strings.TrimSpace(code.Code)
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}
	audit := NewLog(models.ActionInviteCreated, code.CreatedBy, map[string]any{"code": code.Code, "notes": code.Notes})
	return db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := db.exec(ctx, tx,
			"INSERT INTO invite_codes (code, used, notes, created_by, created_at) VALUES (?, ?, ?, ?, ?) ON CONFLICT (code) DO NOTHING",
			code.Code, false, code.Notes, code.CreatedBy, millis(code.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert invite: %w", err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrInviteCodeTaken
		}
		return db.appendLog(ctx, tx, audit)
	})
}

func scanInvite(row rowScanner) (*models.InviteCode, error) {
	var (
		code    models.InviteCode
		usedAt  sql.NullInt64
		created int64
	)
	if err := row.Scan(&code.Code, &code.Used, &code.UsedBy, &usedAt, &code.Notes, &code.CreatedBy, &created); err != nil {
		return nil, err
	}
	if usedAt.Valid {
		t := fromMillis(usedAt.Int64)
		code.UsedAt = &t
	}
	code.CreatedAt = fromMillis(created)
	return &code, nil
}

const inviteColumns = "code, used, used_by, used_at, notes, created_by, created_at"

func (db *DB) GetInviteCode(ctx context.Context, code string) (*models.InviteCode, error) {
	row := db.queryRow(ctx, db.DB, "SELECT "+inviteColumns+" FROM invite_codes WHERE code = ?", code)
	invite, err := scanInvite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return invite, err
}

func (db *DB) ListInviteCodes(ctx context.Context) ([]models.InviteCode, error) {
	rows, err := db.query(ctx, db.DB, "SELECT "+inviteColumns+" FROM invite_codes ORDER BY created_at DESC, code")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := []models.InviteCode{}
	for rows.Next() {
		code, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, *code)
	}
	return codes, rows.Err()
}

func (db *DB) DeleteInviteCode(ctx context.Context, code, by string) error {
	audit := NewLog(models.ActionInviteCancelled, by, map[string]any{"code": code})
	return db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := db.exec(ctx, tx, "DELETE FROM invite_codes WHERE code = ?", code)
		if err != nil {
			return fmt.Errorf("delete invite: %w", err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return db.appendLog(ctx, tx, audit)
	})
}
