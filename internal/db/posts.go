package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"social-go/internal/models"
)

const (
	DefaultFeedLimit = 50
	MaxFeedLimit     = 200
)

// postSelect takes the viewer twice (likedByMe, lovedByMe) before any WHERE args.
const postSelect = `SELECT p.id, p.author, COALESCE(u.avatar, ''), p.content, p.image, p.video, p.deleted,
	p.created_at, p.updated_at,
	(SELECT COUNT(*) FROM post_reactions r WHERE r.post_id = p.id AND r.kind = 'like'),
	(SELECT COUNT(*) FROM post_reactions r WHERE r.post_id = p.id AND r.kind = 'love'),
	(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id),
	(SELECT COUNT(*) FROM post_reactions r WHERE r.post_id = p.id AND r.kind = 'like' AND r.username = ?),
	(SELECT COUNT(*) FROM post_reactions r WHERE r.post_id = p.id AND r.kind = 'love' AND r.username = ?)
	FROM posts p LEFT JOIN users u ON u.username = p.author`

func scanPost(row rowScanner) (*models.Post, error) {
	var (
		post             models.Post
		created, updated int64
		likedByMe        int
		lovedByMe        int
	)
	err := row.Scan(&post.ID, &post.Author, &post.AuthorAvatar, &post.Content, &post.Image, &post.Video, &post.Deleted,
		&created, &updated, &post.Likes, &post.Loves, &post.Comments, &likedByMe, &lovedByMe)
	if err != nil {
		return nil, err
	}
	post.CreatedAt = fromMillis(created)
	post.UpdatedAt = fromMillis(updated)
	post.LikedByMe = likedByMe > 0
	post.LovedByMe = lovedByMe > 0
	return &post, nil
}

func (db *DB) CreatePost(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = NewID()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = post.CreatedAt
	}
	_, err := db.exec(ctx, db.DB,
		"INSERT INTO posts (id, author, content, image, video, deleted, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		post.ID, post.Author, post.Content, post.Image, post.Video, post.Deleted, millis(post.CreatedAt), millis(post.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// GetPost returns a post as seen by viewer, including soft-deleted posts.
func (db *DB) GetPost(ctx context.Context, id, viewer string) (*models.Post, error) {
	row := db.queryRow(ctx, db.DB, postSelect+" WHERE p.id = ?", viewer, viewer, id)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return post, err
}

func (db *DB) listPosts(ctx context.Context, query string, args ...any) ([]models.Post, error) {
	rows, err := db.query(ctx, db.DB, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *post)
	}
	return posts, rows.Err()
}

// ListFeed returns live posts newest first. before is an optional post id;
// only posts older than it are returned.
func (db *DB) ListFeed(ctx context.Context, viewer string, limit int, before string) ([]models.Post, error) {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	if limit > MaxFeedLimit {
		limit = MaxFeedLimit
	}

	if before == "" {
		return db.listPosts(ctx,
			postSelect+" WHERE p.deleted = ? ORDER BY p.created_at DESC, p.id DESC LIMIT ?",
			viewer, viewer, false, limit)
	}

	var cursor int64
	err := db.queryRow(ctx, db.DB, "SELECT created_at FROM posts WHERE id = ?", before).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return db.listPosts(ctx,
		postSelect+` WHERE p.deleted = ? AND (p.created_at < ? OR (p.created_at = ? AND p.id < ?))
		ORDER BY p.created_at DESC, p.id DESC LIMIT ?`,
		viewer, viewer, false, cursor, cursor, before, limit)
}

// ListAllPosts returns every post including soft-deleted ones, newest first.
func (db *DB) ListAllPosts(ctx context.Context) ([]models.Post, error) {
	return db.listPosts(ctx, postSelect+" ORDER BY p.created_at DESC, p.id DESC", "", "")
}

// explainMiss turns a zero-row conditional update on a post into the reason
// it did not apply.
func (db *DB) explainMiss(ctx context.Context, q querier, id, author string) error {
	var (
		owner   string
		deleted bool
	)
	err := db.queryRow(ctx, q, "SELECT author, deleted FROM posts WHERE id = ?", id).Scan(&owner, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if author != "" && owner != author {
		return ErrNotAuthor
	}
	if deleted {
		return ErrPostDeleted
	}
	return ErrNotFound
}

// UpdatePostContent edits a live post. author restricts the edit to that
// author; an empty author is an admin edit and is audited as by.
func (db *DB) UpdatePostContent(ctx context.Context, id, content, author, by string) error {
	now := millis(time.Now())
	return db.inTx(ctx, func(tx *sql.Tx) error {
		var (
			res sql.Result
			err error
		)
		if author != "" {
			res, err = db.exec(ctx, tx,
				"UPDATE posts SET content = ?, updated_at = ? WHERE id = ? AND author = ? AND deleted = ?",
				content, now, id, author, false)
		} else {
			res, err = db.exec(ctx, tx, "UPDATE posts SET content = ?, updated_at = ? WHERE id = ?", content, now, id)
		}
		if err != nil {
			return fmt.Errorf("update post: %w", err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return db.explainMiss(ctx, tx, id, author)
		}
		if author == "" {
			return db.appendLog(ctx, tx, NewLog(models.ActionPostEdited, by, map[string]any{"postId": id, "content": content}))
		}
		return nil
	})
}

// SoftDeletePost marks a live post deleted and audits it in the same
// transaction. A non-empty author restricts the delete to that author.
func (db *DB) SoftDeletePost(ctx context.Context, id, author, by string) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		return db.softDelete(ctx, tx, id, author, by)
	})
}

func (db *DB) softDelete(ctx context.Context, tx *sql.Tx, id, author, by string) error {
	query := "UPDATE posts SET deleted = ?, updated_at = ? WHERE id = ? AND deleted = ?"
	args := []any{true, millis(time.Now()), id, false}
	if author != "" {
		query += " AND author = ?"
		args = append(args, author)
	}
	res, err := db.exec(ctx, tx, query, args...)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return db.explainMiss(ctx, tx, id, author)
	}
	return db.appendLog(ctx, tx, NewLog(models.ActionPostDeleted, by, map[string]any{"postId": id}))
}

// ModeratePostDelete soft-deletes a live post, or permanently removes one
// that is already soft-deleted. It reports whether the removal was permanent.
func (db *DB) ModeratePostDelete(ctx context.Context, id, by string) (bool, error) {
	permanent := false
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var deleted bool
		err := db.queryRow(ctx, tx, "SELECT deleted FROM posts WHERE id = ?", id).Scan(&deleted)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if !deleted {
			return db.softDelete(ctx, tx, id, "", by)
		}

		permanent = true
		for _, q := range []string{
			"DELETE FROM post_reactions WHERE post_id = ?",
			"DELETE FROM comments WHERE post_id = ?",
			"DELETE FROM posts WHERE id = ?",
		} {
			if _, err := db.exec(ctx, tx, q, id); err != nil {
				return fmt.Errorf("purge post: %w", err)
			}
		}
		return db.appendLog(ctx, tx, NewLog(models.ActionPostDeletedPermanent, by, map[string]any{"postId": id}))
	})
	return permanent, err
}

// ToggleReaction adds the reaction if absent and removes it if present, in
// one transaction. It returns the resulting state and the new count.
func (db *DB) ToggleReaction(ctx context.Context, postID, username string, kind models.ReactionKind) (bool, int, error) {
	var (
		active bool
		count  int
	)
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var deleted bool
		err := db.queryRow(ctx, tx, "SELECT deleted FROM posts WHERE id = ?", postID).Scan(&deleted)
		if errors.Is(err, sql.ErrNoRows) || deleted {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		res, err := db.exec(ctx, tx,
			"DELETE FROM post_reactions WHERE post_id = ? AND username = ? AND kind = ?",
			postID, username, string(kind))
		if err != nil {
			return fmt.Errorf("toggle reaction: %w", err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			if _, err := db.exec(ctx, tx,
				"INSERT INTO post_reactions (post_id, username, kind, created_at) VALUES (?, ?, ?, ?)",
				postID, username, string(kind), millis(time.Now())); err != nil {
				return fmt.Errorf("toggle reaction: %w", err)
			}
			active = true
		}
		return db.queryRow(ctx, tx,
			"SELECT COUNT(*) FROM post_reactions WHERE post_id = ? AND kind = ?",
			postID, string(kind)).Scan(&count)
	})
	return active, count, err
}

// AddReaction records a reaction if it is not already present. Used by the
// legacy importer.
func (db *DB) AddReaction(ctx context.Context, postID, username string, kind models.ReactionKind, at time.Time) error {
	_, err := db.exec(ctx, db.DB,
		"INSERT INTO post_reactions (post_id, username, kind, created_at) VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING",
		postID, username, string(kind), millis(at))
	return err
}
