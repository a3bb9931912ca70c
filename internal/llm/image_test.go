package llm

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	return img
}

func encoded(t *testing.T, format string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, testImage())
	case "jpeg":
		err = jpeg.Encode(&buf, testImage(), nil)
	case "gif":
		err = gif.Encode(&buf, testImage(), nil)
	}
	require.NoError(t, err)
	return buf.Bytes()
}

func TestNormalizeInline(t *testing.T) {
	pngBytes := encoded(t, "png")
	b64 := base64.StdEncoding.EncodeToString(pngBytes)

	t.Run("plain base64", func(t *testing.T) {
		raw, mime, err := NormalizeInline(b64)
		require.NoError(t, err)
		assert.Equal(t, "image/png", mime)
		assert.Equal(t, pngBytes, raw)
	})

	t.Run("data URI prefix", func(t *testing.T) {
		raw, mime, err := NormalizeInline("data:image/png;base64," + b64)
		require.NoError(t, err)
		assert.Equal(t, "image/png", mime)
		assert.Equal(t, pngBytes, raw)
	})

	t.Run("missing padding is restored", func(t *testing.T) {
		trimmed := strings.TrimRight(b64, "=")
		raw, _, err := NormalizeInline(trimmed)
		require.NoError(t, err)
		assert.Equal(t, pngBytes, raw)
	})

	t.Run("embedded newlines", func(t *testing.T) {
		wrapped := b64[:10] + "\n" + b64[10:]
		_, _, err := NormalizeInline(wrapped)
		assert.NoError(t, err)
	})

	t.Run("jpeg and gif accepted", func(t *testing.T) {
		_, mime, err := NormalizeInline(base64.StdEncoding.EncodeToString(encoded(t, "jpeg")))
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", mime)
		_, mime, err = NormalizeInline(base64.StdEncoding.EncodeToString(encoded(t, "gif")))
		require.NoError(t, err)
		assert.Equal(t, "image/gif", mime)
	})

	t.Run("rejects unsupported data URI mime", func(t *testing.T) {
		_, _, err := NormalizeInline("data:image/webp;base64," + b64)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("rejects empty payload", func(t *testing.T) {
		_, _, err := NormalizeInline("")
		assert.ErrorIs(t, err, ErrEmptyImage)
		_, _, err = NormalizeInline("data:image/png;base64,")
		assert.ErrorIs(t, err, ErrEmptyImage)
	})

	t.Run("rejects malformed base64", func(t *testing.T) {
		_, _, err := NormalizeInline("!!!not-base64!!!")
		assert.Error(t, err)
	})

	t.Run("rejects bytes that are not an accepted image", func(t *testing.T) {
		bmp := base64.StdEncoding.EncodeToString([]byte("BM this is not really a bitmap"))
		_, _, err := NormalizeInline(bmp)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("data URI mime mismatch with content still detected from bytes", func(t *testing.T) {
		_, mime, err := NormalizeInline("data:image/jpeg;base64," + b64)
		require.NoError(t, err)
		assert.Equal(t, "image/png", mime)
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "page.png")
	require.NoError(t, os.WriteFile(good, encoded(t, "png"), 0644))
	bad := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(bad, []byte("hello"), 0644))

	_, mime, err := FileImage(good).Resolve()
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	_, _, err = FileImage(bad).Resolve()
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, _, err = FileImage(filepath.Join(dir, "missing.png")).Resolve()
	assert.Error(t, err)
}
