package db_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/transdoc-go/internal/assets"
	"github.com/vrsandeep/transdoc-go/internal/db"
	"github.com/vrsandeep/transdoc-go/internal/testutil"
)

func TestInitDBAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transdoc.db")
	database, err := db.InitDB(path)
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, db.RunMigrations(database, assets.MigrationsFS))
	// A second run is a no-op.
	require.NoError(t, db.RunMigrations(database, assets.MigrationsFS))

	for _, table := range []string{"jobs", "api_keys", "documents", "page_sets", "pages", "collections", "collection_documents"} {
		var name string
		err := database.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}
}

func TestForeignKeyCascadeDelete(t *testing.T) {
	database := testutil.SetupTestDB(t)

	var foreignKeysEnabled int
	require.NoError(t, database.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeysEnabled))
	assert.Equal(t, 1, foreignKeysEnabled)

	now := time.Now()
	_, err := database.Exec("INSERT INTO jobs (title, source_path, created_at, updated_at) VALUES ('doc', '/tmp/doc.pdf', ?, ?)", now, now)
	require.NoError(t, err)
	_, err = database.Exec("INSERT INTO documents (title, job_id, linked_path, thumbnail_path, created_at) VALUES ('doc', 1, '/x', '/x/t.jpg', ?)", now)
	require.NoError(t, err)
	_, err = database.Exec("INSERT INTO page_sets (document_id, language, title, filename) VALUES (1, 'en', 'doc', 'doc.pdf')")
	require.NoError(t, err)
	_, err = database.Exec("INSERT INTO pages (page_set_id, position, file_path) VALUES (1, 0, '/x/en/page_001.md')")
	require.NoError(t, err)

	_, err = database.Exec("DELETE FROM jobs WHERE id = 1")
	require.NoError(t, err)

	var count int
	require.NoError(t, database.QueryRow("SELECT COUNT(*) FROM documents").Scan(&count))
	assert.Equal(t, 0, count)
	require.NoError(t, database.QueryRow("SELECT COUNT(*) FROM pages").Scan(&count))
	assert.Equal(t, 0, count)
}
