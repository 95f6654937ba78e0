// Package media normalises avatars and stores uploaded post media.
package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	AvatarSize    = 256
	AvatarQuality = 80

	// maxAvatarPixels bounds decoding work for hostile uploads.
	maxAvatarPixels = 40_000_000
)

var (
	ErrUnsupportedImage = errors.New("unsupported image format")
	ErrImageTooLarge    = errors.New("image dimensions too large")
)

// ProcessAvatar decodes a JPEG, PNG, GIF or WebP image, shrinks it to fit in
// AvatarSize x AvatarSize and returns it as base64 encoded JPEG.
func ProcessAvatar(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read avatar: %w", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", ErrUnsupportedImage
	}
	if cfg.Width*cfg.Height > maxAvatarPixels {
		return "", ErrImageTooLarge
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", ErrUnsupportedImage
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, fit(src, AvatarSize), &jpeg.Options{Quality: AvatarQuality}); err != nil {
		return "", fmt.Errorf("encode avatar: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// fit scales src down to fit within size x size keeping its aspect ratio, over
// a white background so transparent pixels do not turn black in JPEG.
func fit(src image.Image, size int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > size || h > size {
		if w >= h {
			h = h * size / w
			w = size
		} else {
			w = w * size / h
			h = size
		}
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// DecodeDataURL accepts either a data: URL or bare base64 and returns the
// decoded bytes.
func DecodeDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 || !strings.HasSuffix(s[:i], ";base64") {
			return nil, ErrUnsupportedImage
		}
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return data, nil
}
