package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"social-go/internal/models"
)

func (db *DB) SaveMedia(ctx context.Context, m *models.Media) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	query := "INSERT INTO media (id, filename, filepath, owner, content_type, size, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)"
	_, err := db.exec(ctx, db.DB, query, m.ID, m.Filename, m.Path, m.Owner, m.ContentType, m.Size, millis(m.CreatedAt))
	return err
}

const mediaColumns = "id, filename, filepath, owner, content_type, size, created_at"

func scanMedia(row rowScanner) (*models.Media, error) {
	var (
		m       models.Media
		created int64
	)
	if err := row.Scan(&m.ID, &m.Filename, &m.Path, &m.Owner, &m.ContentType, &m.Size, &created); err != nil {
		return nil, err
	}
	m.CreatedAt = fromMillis(created)
	return &m, nil
}

func (db *DB) GetMedia(ctx context.Context, id string) (*models.Media, error) {
	m, err := scanMedia(db.queryRow(ctx, db.DB, "SELECT "+mediaColumns+" FROM media WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// GetMediaByFilename looks up an upload by its stored file name.
func (db *DB) GetMediaByFilename(ctx context.Context, filename string) (*models.Media, error) {
	m, err := scanMedia(db.queryRow(ctx, db.DB, "SELECT "+mediaColumns+" FROM media WHERE filename = ?", filename))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (db *DB) GetUserMedia(ctx context.Context, owner string) ([]models.Media, error) {
	rows, err := db.query(ctx, db.DB, "SELECT "+mediaColumns+" FROM media WHERE owner = ? ORDER BY id DESC", owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []models.Media{}
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *m)
	}
	return files, rows.Err()
}

func (db *DB) DeleteMedia(ctx context.Context, id string) error {
	res, err := db.exec(ctx, db.DB, "DELETE FROM media WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
