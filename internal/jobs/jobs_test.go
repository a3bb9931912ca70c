package jobs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/transdoc-go/internal/config"
	"github.com/vrsandeep/transdoc-go/internal/jobs"
	"github.com/vrsandeep/transdoc-go/internal/llm"
	"github.com/vrsandeep/transdoc-go/internal/models"
	"github.com/vrsandeep/transdoc-go/internal/pool"
	"github.com/vrsandeep/transdoc-go/internal/store"
	"github.com/vrsandeep/transdoc-go/internal/testutil"
)

type echoClient struct{}

func (echoClient) ChatWithText(ctx context.Context, message string) (string, error) {
	return message, nil
}

func (echoClient) ChatWithImage(ctx context.Context, message string, img llm.Image) (string, error) {
	return message, nil
}

func TestRefreshCredentials(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	p := pool.New(nil, func(cred llm.Credential) (llm.RemoteClient, error) { return echoClient{}, nil })
	ctx := &fakeJobContext{st: st, cfg: &config.Config{}, pool: p}
	assert.Equal(t, 0, p.Size())

	_, err := st.CreateApiKey("sk-first-key-000000", "https://api.openai.com", models.APITypeOpenAI)
	require.NoError(t, err)
	_, err = st.CreateApiKey("gm-second-key-00000", "https://generativelanguage.googleapis.com", models.APITypeGemini)
	require.NoError(t, err)

	require.NoError(t, jobs.RefreshCredentials(ctx))
	assert.Equal(t, 2, p.Size())

	statuses := p.Status()
	require.Len(t, statuses, 2)
	assert.Equal(t, models.APITypeGemini, statuses[1].APIType)
}

func TestPruneWorkDirs(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.Work = root

	stale := filepath.Join(root, "transdoc-stale")
	fresh := filepath.Join(root, "transdoc-fresh")
	other := filepath.Join(root, "keep-me")
	for _, dir := range []string{stale, fresh, other} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	old := time.Now().Add(-24 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(other, old, old))

	require.NoError(t, jobs.PruneWorkDirs(&fakeJobContext{cfg: cfg}))

	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
	assert.DirExists(t, other)
}

func TestRegisterAll(t *testing.T) {
	mgr := jobs.NewManager(nil)
	jobs.RegisterAll(mgr)

	var ids []string
	for _, s := range mgr.GetStatus() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{jobs.PruneWorkDirsJob, jobs.RefreshCredentialsJob}, ids)
}
