package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"social-go/internal/models"
)

// AddComment attaches a comment to a live post.
func (db *DB) AddComment(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = NewID()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	if comment.UpdatedAt.IsZero() {
		comment.UpdatedAt = comment.CreatedAt
	}
	return db.inTx(ctx, func(tx *sql.Tx) error {
		var deleted bool
		err := db.queryRow(ctx, tx, "SELECT deleted FROM posts WHERE id = ?", comment.PostID).Scan(&deleted)
		if errors.Is(err, sql.ErrNoRows) || deleted {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		_, err = db.exec(ctx, tx,
			"INSERT INTO comments (id, post_id, author, text, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			comment.ID, comment.PostID, comment.Author, comment.Text, millis(comment.CreatedAt), millis(comment.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		return nil
	})
}

func scanComment(row rowScanner) (*models.Comment, error) {
	var (
		c                models.Comment
		created, updated int64
	)
	if err := row.Scan(&c.ID, &c.PostID, &c.Author, &c.Text, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return &c, nil
}

// ListComments returns a post's comments oldest first.
func (db *DB) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	rows, err := db.query(ctx, db.DB,
		"SELECT id, post_id, author, text, created_at, updated_at FROM comments WHERE post_id = ? ORDER BY created_at, id",
		postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}

func (db *DB) GetComment(ctx context.Context, postID, commentID string) (*models.Comment, error) {
	row := db.queryRow(ctx, db.DB,
		"SELECT id, post_id, author, text, created_at, updated_at FROM comments WHERE id = ? AND post_id = ?",
		commentID, postID)
	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (db *DB) commentMiss(ctx context.Context, q querier, postID, commentID string) error {
	var owner string
	err := db.queryRow(ctx, q, "SELECT author FROM comments WHERE id = ? AND post_id = ?", commentID, postID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrNotAuthor
}

func (db *DB) UpdateComment(ctx context.Context, postID, commentID, author, text string) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := db.exec(ctx, tx,
			"UPDATE comments SET text = ?, updated_at = ? WHERE id = ? AND post_id = ? AND author = ?",
			text, millis(time.Now()), commentID, postID, author)
		if err != nil {
			return fmt.Errorf("update comment: %w", err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return db.commentMiss(ctx, tx, postID, commentID)
		}
		return nil
	})
}

// DeleteComment removes a comment. A non-empty author restricts the delete
// to that author.
func (db *DB) DeleteComment(ctx context.Context, postID, commentID, author string) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		query := "DELETE FROM comments WHERE id = ? AND post_id = ?"
		args := []any{commentID, postID}
		if author != "" {
			query += " AND author = ?"
			args = append(args, author)
		}
		res, err := db.exec(ctx, tx, query, args...)
		if err != nil {
			return fmt.Errorf("delete comment: %w", err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return db.commentMiss(ctx, tx, postID, commentID)
		}
		return nil
	})
}
