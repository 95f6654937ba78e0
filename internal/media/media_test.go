package media

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeAvatar(t *testing.T, b64 string) image.Image {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestProcessAvatarDownscales(t *testing.T) {
	out, err := ProcessAvatar(bytes.NewReader(pngBytes(t, 1024, 512)))
	require.NoError(t, err)

	img := decodeAvatar(t, out)
	assert.Equal(t, 256, img.Bounds().Dx())
	assert.Equal(t, 128, img.Bounds().Dy())
}

func TestProcessAvatarKeepsSmallImages(t *testing.T) {
	out, err := ProcessAvatar(bytes.NewReader(pngBytes(t, 40, 100)))
	require.NoError(t, err)

	img := decodeAvatar(t, out)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())
}

func TestProcessAvatarRejectsGarbage(t *testing.T) {
	_, err := ProcessAvatar(strings.NewReader("not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestDecodeDataURL(t *testing.T) {
	want := []byte("hello")
	enc := base64.StdEncoding.EncodeToString(want)

	got, err := DecodeDataURL("data:image/png;base64," + enc)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = DecodeDataURL(enc)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = DecodeDataURL("data:image/png," + enc)
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestSniff(t *testing.T) {
	ct, err := Sniff(pngBytes(t, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)

	_, err = Sniff([]byte("<html><script>alert(1)</script></html>"))
	assert.ErrorIs(t, err, ErrUnsupportedMedia)
}

func TestStoreSave(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, 1<<20)

	m, err := store.Save(bytes.NewReader(pngBytes(t, 8, 8)), "../../etc/passwd.png", "alice")
	require.NoError(t, err)
	assert.Equal(t, "image/png", m.ContentType)
	assert.Equal(t, "alice", m.Owner)
	assert.True(t, strings.HasSuffix(m.Filename, ".png"))
	assert.Equal(t, "/uploads/"+m.Filename, m.URL)
	assert.Equal(t, dir, filepath.Dir(m.Path))

	info, err := os.Stat(m.Path)
	require.NoError(t, err)
	assert.Equal(t, m.Size, info.Size())

	require.NoError(t, store.Remove(m))
	require.NoError(t, store.Remove(m))
	_, err = os.Stat(m.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestStoreSaveTooLarge(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, 64)

	_, err := store.Save(bytes.NewReader(pngBytes(t, 64, 64)), "big.png", "alice")
	require.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreSaveRejectsText(t *testing.T) {
	store := NewStore(t.TempDir(), 1<<20)
	_, err := store.Save(strings.NewReader("just text"), "notes.txt", "alice")
	require.ErrorIs(t, err, ErrUnsupportedMedia)
}
