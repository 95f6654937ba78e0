package media

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"social-go/internal/models"
)

var (
	ErrUnsupportedMedia = errors.New("only image and video uploads are allowed")
	ErrTooLarge         = errors.New("upload exceeds size limit")
)

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/bmp":       ".bmp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/avi":       ".avi",
	"video/quicktime": ".mov",
}

// Sniff classifies the first bytes of an upload. Only image/* and video/*
// content is accepted.
func Sniff(head []byte) (string, error) {
	ct := http.DetectContentType(head)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	if strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "video/") {
		return ct, nil
	}
	return "", ErrUnsupportedMedia
}

// Store writes uploads under Dir with generated names and serves them back
// under URLPrefix.
type Store struct {
	Dir       string
	URLPrefix string
	MaxBytes  int64
}

func NewStore(dir string, maxBytes int64) *Store {
	return &Store{Dir: dir, URLPrefix: "/uploads/", MaxBytes: maxBytes}
}

// Save sniffs r, copies at most MaxBytes of it to disk and returns the media
// record to persist. The original file name is kept for display only.
func (s *Store) Save(r io.Reader, originalName, owner string) (*models.Media, error) {
	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	contentType, err := Sniff(head)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	id := ulid.Make().String()
	name := strings.ToLower(id) + extensionFor(contentType, originalName)
	path := filepath.Join(s.Dir, name)

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	n, err := io.Copy(dst, io.LimitReader(br, s.MaxBytes+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > s.MaxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("save file: %w", err)
	}

	return &models.Media{
		ID:          id,
		Filename:    name,
		Path:        path,
		URL:         s.URLPrefix + name,
		Owner:       owner,
		ContentType: contentType,
		Size:        n,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// URL returns the public URL of a stored file name.
func (s *Store) URL(filename string) string {
	return s.URLPrefix + filename
}

// Remove deletes the file behind m. A file that is already gone is not an error.
func (s *Store) Remove(m *models.Media) error {
	if err := os.Remove(filepath.Join(s.Dir, filepath.Base(m.Filename))); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func extensionFor(contentType, originalName string) string {
	if ext, ok := extensions[contentType]; ok {
		return ext
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	if len(ext) > 1 && len(ext) <= 6 {
		return ext
	}
	return ".bin"
}
