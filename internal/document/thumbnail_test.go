package document

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThumbnail(t *testing.T) {
	// A valid 1x1 PNG, base64 encoded.
	validPngB64 := "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="
	pngData, _ := base64.StdEncoding.DecodeString(validPngB64)

	t.Run("Success case", func(t *testing.T) {
		thumb, err := Thumbnail(pngData)
		require.NoError(t, err)
		_, format, err := image.DecodeConfig(bytes.NewReader(thumb))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
	})

	t.Run("Error case with invalid data", func(t *testing.T) {
		_, err := Thumbnail([]byte("this is not an image"))
		assert.Error(t, err)
	})
}

func TestWriteThumbnailPortrait(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "page_001.png")
	img := image.NewRGBA(image.Rect(0, 0, 400, 800))
	img.Set(10, 10, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(src, buf.Bytes(), 0o644))

	dst := filepath.Join(dir, "thumbnail.jpg")
	require.NoError(t, WriteThumbnail(src, dst))

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 400, cfg.Height)
}
