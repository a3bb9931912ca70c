package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/transdoc-go/internal/core"
	"github.com/vrsandeep/transdoc-go/internal/jobs"
	"github.com/vrsandeep/transdoc-go/internal/llm"
	"github.com/vrsandeep/transdoc-go/internal/models"
	"github.com/vrsandeep/transdoc-go/internal/store"
	"github.com/vrsandeep/transdoc-go/internal/testutil"
)

func TestBuildLoadsStoredKeys(t *testing.T) {
	database := testutil.SetupTestDB(t)
	st := store.New(database)
	_, err := st.CreateApiKey("sk-one-00000000000", "https://api.example.com", "")
	require.NoError(t, err)
	_, err = st.CreateApiKey("gm-two-00000000000", "https://generativelanguage.googleapis.com", models.APITypeGemini)
	require.NoError(t, err)

	var built []llm.Credential
	factory := func(cred llm.Credential) (llm.RemoteClient, error) {
		built = append(built, cred)
		return &testutil.FakeClient{Reply: "ok"}, nil
	}
	app, err := core.Build(testutil.TestConfig(t), database, core.WithClientFactory(factory))
	require.NoError(t, err)

	assert.Equal(t, 2, app.Pool().Size())
	assert.Equal(t, 2, app.Pool().Cap())
	require.Len(t, built, 2)
	assert.Equal(t, models.APITypeGemini, built[1].APIType)

	statuses := app.JobManager().GetStatus()
	require.Len(t, statuses, 2)
	assert.Equal(t, jobs.PruneWorkDirsJob, statuses[0].ID)
	assert.Equal(t, jobs.RefreshCredentialsJob, statuses[1].ID)
}

func TestStartRecoversAndShutdownLeavesQueue(t *testing.T) {
	app := testutil.SetupTestApp(t)
	st := app.Store()

	stuck, err := st.CreateJob("Stuck", "/tmp/stuck.pdf", 0)
	require.NoError(t, err)
	require.NoError(t, st.UpdateJobStatus(stuck.ID, models.JobExtracting, 50, ""))

	require.NoError(t, app.Start())
	assert.True(t, app.Scheduler().Running())

	job, err := st.GetJob(stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, 50, job.Progress)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, app.Shutdown(ctx))
	assert.False(t, app.Scheduler().Running())
}
