package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"social-go/internal/models"
)

const userColumns = "username, password_hash, bio, avatar, is_admin, banned, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var created int64
	err := row.Scan(&user.Username, &user.PasswordHash, &user.Bio, &user.Avatar, &user.IsAdmin, &user.Banned, &created)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = fromMillis(created)
	return user, nil
}

// CreateUser registers a user, consuming inviteCode in the same transaction.
// When the code is empty and requireInvite is false the user is created
// without one. A taken username rolls the invite claim back.
func (db *DB) CreateUser(ctx context.Context, user *models.User, inviteCode string, requireInvite bool) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	return db.inTx(ctx, func(tx *sql.Tx) error {
		if inviteCode == "" && requireInvite {
			return ErrInviteRequired
		}
		if inviteCode != "" {
			if err := db.claimInvite(ctx, tx, inviteCode, user.Username, user.CreatedAt); err != nil {
				return err
			}
		}

		res, err := db.exec(ctx, tx,
			"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (username) DO NOTHING",
			user.Username, user.PasswordHash, user.Bio, user.Avatar, user.IsAdmin, user.Banned, millis(user.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrUsernameTaken
		}
		return nil
	})
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := db.queryRow(ctx, db.DB, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return user, err
}

func (db *DB) UserExists(ctx context.Context, username string) (bool, error) {
	var n int
	err := db.queryRow(ctx, db.DB, "SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&n)
	return n > 0, err
}

func (db *DB) listUsers(ctx context.Context, query string, args ...any) ([]models.User, error) {
	rows, err := db.query(ctx, db.DB, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (db *DB) GetAllUsers(ctx context.Context) ([]models.User, error) {
	return db.listUsers(ctx, "SELECT "+userColumns+" FROM users ORDER BY username")
}

// SearchUsers matches term anywhere in the username or bio.
func (db *DB) SearchUsers(ctx context.Context, term string) ([]models.User, error) {
	pattern := likePattern(term)
	return db.listUsers(ctx,
		`SELECT `+userColumns+` FROM users WHERE username LIKE ? ESCAPE '\' OR bio LIKE ? ESCAPE '\' ORDER BY username`,
		pattern, pattern)
}

// ListUsernames returns every username except exclude, sorted.
func (db *DB) ListUsernames(ctx context.Context, exclude string) ([]string, error) {
	rows, err := db.query(ctx, db.DB, "SELECT username FROM users WHERE username <> ? ORDER BY username", exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (db *DB) updateUserField(ctx context.Context, username, column string, value any, audit *models.AdminLog) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := db.exec(ctx, tx, "UPDATE users SET "+column+" = ? WHERE username = ?", value, username)
		if err != nil {
			return fmt.Errorf("update %s: %w", column, err)
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

func (db *DB) UpdateBio(ctx context.Context, username, bio string) error {
	return db.updateUserField(ctx, username, "bio", bio, NewLog(models.ActionBioUpdated, username, nil))
}

func (db *DB) UpdateAvatar(ctx context.Context, username, avatar string) error {
	return db.updateUserField(ctx, username, "avatar", avatar, NewLog(models.ActionAvatarUpdated, username, nil))
}

func (db *DB) UpdatePasswordHash(ctx context.Context, username, hash string) error {
	return db.updateUserField(ctx, username, "password_hash", hash, nil)
}

// SetBanned sets the ban flag; banning also revokes every session of the user.
func (db *DB) SetBanned(ctx context.Context, username string, banned bool, by string) error {
	action := models.ActionUserUnbanned
	if banned {
		action = models.ActionUserBanned
	}
	audit := NewLog(action, by, map[string]any{"user": username})
	return db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := db.exec(ctx, tx, "UPDATE users SET banned = ? WHERE username = ?", banned, username)
		if err != nil {
			return fmt.Errorf("update banned: %w", err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		if banned {
			if _, err := db.exec(ctx, tx, "DELETE FROM sessions WHERE username = ?", username); err != nil {
				return fmt.Errorf("revoke sessions: %w", err)
			}
		}
		return db.appendLog(ctx, tx, audit)
	})
}

// PromoteAdmin flips is_admin in a single conditional update so two
// concurrent promotions cannot both succeed.
func (db *DB) PromoteAdmin(ctx context.Context, username, by string) error {
	audit := NewLog(models.ActionAdminPromoted, by, map[string]any{"promotedUser": username})
	return db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := db.exec(ctx, tx, "UPDATE users SET is_admin = ? WHERE username = ? AND is_admin = ?", true, username, false)
		if err != nil {
			return fmt.Errorf("promote: %w", err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			var count int
			if err := db.queryRow(ctx, tx, "SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count); err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrAlreadyAdmin
		}
		return db.appendLog(ctx, tx, audit)
	})
}

// DeleteUser removes the user with their sessions, reactions and group
// memberships, and soft-deletes their posts.
func (db *DB) DeleteUser(ctx context.Context, username, by string) error {
	audit := NewLog(models.ActionUserDeleted, by, map[string]any{"user": username})
	return db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := db.exec(ctx, tx, "DELETE FROM users WHERE username = ?", username)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		cleanup := []string{
			"DELETE FROM sessions WHERE username = ?",
			"DELETE FROM post_reactions WHERE username = ?",
			"DELETE FROM group_members WHERE username = ?",
		}
		for _, q := range cleanup {
			if _, err := db.exec(ctx, tx, q, username); err != nil {
				return fmt.Errorf("delete user: %w", err)
			}
		}
		if _, err := db.exec(ctx, tx, "UPDATE posts SET deleted = ?, updated_at = ? WHERE author = ?",
			true, millis(time.Now()), username); err != nil {
			return fmt.Errorf("delete user posts: %w", err)
		}
		return db.appendLog(ctx, tx, audit)
	})
}
