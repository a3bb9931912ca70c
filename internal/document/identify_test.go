package document

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	zw := zip.NewWriter(f)
	w, err := zw.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?><Types/>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}

func TestRequireOfficeContainer(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "report.docx")
	writeZip(t, good)
	assert.NoError(t, RequireOfficeContainer(context.Background(), good))

	bad := filepath.Join(dir, "fake.docx")
	require.NoError(t, os.WriteFile(bad, []byte("just some text pretending to be a docx"), 0o644))
	assert.ErrorIs(t, RequireOfficeContainer(context.Background(), bad), ErrNotOfficeContainer)

	assert.Error(t, RequireOfficeContainer(context.Background(), filepath.Join(dir, "missing.pptx")))
}
