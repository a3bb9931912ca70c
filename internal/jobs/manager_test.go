package jobs_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/transdoc-go/internal/config"
	"github.com/vrsandeep/transdoc-go/internal/jobs"
	"github.com/vrsandeep/transdoc-go/internal/pool"
	"github.com/vrsandeep/transdoc-go/internal/store"
)

type fakeJobContext struct {
	st     *store.Store
	cfg    *config.Config
	pool   *pool.Pool
	jobMgr *jobs.JobManager
}

func (f *fakeJobContext) Store() *store.Store          { return f.st }
func (f *fakeJobContext) Config() *config.Config       { return f.cfg }
func (f *fakeJobContext) Pool() *pool.Pool             { return f.pool }
func (f *fakeJobContext) JobManager() *jobs.JobManager { return f.jobMgr }

func waitIdle(t *testing.T, mgr *jobs.JobManager, id string) jobs.JobStatus {
	t.Helper()
	var found jobs.JobStatus
	require.Eventually(t, func() bool {
		for _, s := range mgr.GetStatus() {
			if s.ID == id && s.Status != "running" && s.Status != "idle" {
				found = s
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return found
}

func TestManager_NewManager(t *testing.T) {
	ctx := &fakeJobContext{cfg: &config.Config{}}
	mgr := jobs.NewManager(ctx)
	assert.NotNil(t, mgr)
	assert.Empty(t, mgr.GetStatus())
}

func TestManager_RegisterAndGetStatus(t *testing.T) {
	ctx := &fakeJobContext{cfg: &config.Config{}}
	mgr := jobs.NewManager(ctx)
	mgr.Register("jobB", "Job B", func(ctx jobs.JobContext) error { return nil })
	mgr.Register("jobA", "Job A", func(ctx jobs.JobContext) error { return nil })

	statuses := mgr.GetStatus()
	require.Len(t, statuses, 2)
	assert.Equal(t, "jobA", statuses[0].ID)
	assert.Equal(t, "Job A", statuses[0].Name)
	assert.Equal(t, "idle", statuses[0].Status)
	assert.Equal(t, "jobB", statuses[1].ID)
}

func TestManager_RunJob_SuccessAndStatus(t *testing.T) {
	ctx := &fakeJobContext{cfg: &config.Config{}}
	mgr := jobs.NewManager(ctx)
	ctx.jobMgr = mgr

	called := make(chan struct{})
	mgr.Register("jobX", "Job X", func(ctx jobs.JobContext) error {
		close(called)
		return nil
	})
	require.NoError(t, mgr.RunJob("jobX", ctx))

	<-called
	status := waitIdle(t, mgr, "jobX")
	assert.Equal(t, "success", status.Status)
	assert.False(t, status.EndTime.IsZero())
}

func TestManager_RunJob_Error(t *testing.T) {
	ctx := &fakeJobContext{cfg: &config.Config{}}
	mgr := jobs.NewManager(ctx)
	mgr.Register("jobE", "Job E", func(ctx jobs.JobContext) error { return errors.New("store unavailable") })

	require.NoError(t, mgr.RunJob("jobE", nil))
	status := waitIdle(t, mgr, "jobE")
	assert.Equal(t, "failed", status.Status)
	assert.Equal(t, "store unavailable", status.Message)
}

func TestManager_RunJob_AlreadyRunning(t *testing.T) {
	ctx := &fakeJobContext{cfg: &config.Config{}}
	mgr := jobs.NewManager(ctx)
	ctx.jobMgr = mgr
	block := make(chan struct{})
	mgr.Register("jobY", "Job Y", func(ctx jobs.JobContext) error { <-block; return nil })

	require.NoError(t, mgr.RunJob("jobY", ctx))
	assert.Error(t, mgr.RunJob("jobY", ctx))
	close(block)
	waitIdle(t, mgr, "jobY")
}

func TestManager_RunJob_NotFound(t *testing.T) {
	ctx := &fakeJobContext{cfg: &config.Config{}}
	mgr := jobs.NewManager(ctx)
	assert.Error(t, mgr.RunJob("nojob", ctx))
}

func TestManager_RunJob_Panic(t *testing.T) {
	ctx := &fakeJobContext{cfg: &config.Config{}}
	mgr := jobs.NewManager(ctx)
	ctx.jobMgr = mgr
	mgr.Register("panicJob", "Panic Job", func(ctx jobs.JobContext) error { panic("fail") })

	require.NoError(t, mgr.RunJob("panicJob", ctx))
	status := waitIdle(t, mgr, "panicJob")
	assert.Equal(t, "failed", status.Status)
	assert.Contains(t, status.Message, "panicked")
}

func TestManager_Concurrency(t *testing.T) {
	ctx := &fakeJobContext{cfg: &config.Config{}}
	mgr := jobs.NewManager(ctx)
	ctx.jobMgr = mgr

	var mu sync.Mutex
	var count int
	release := make(chan struct{})
	mgr.Register("jobC", "Job C", func(ctx jobs.JobContext) error {
		mu.Lock()
		count++
		mu.Unlock()
		<-release
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.RunJob("jobC", ctx)
		}()
	}
	wg.Wait()
	close(release)
	waitIdle(t, mgr, "jobC")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "job should only run once concurrently")
}
