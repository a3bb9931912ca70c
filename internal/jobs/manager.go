package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/transdoc-go/internal/config"
	"github.com/vrsandeep/transdoc-go/internal/pool"
	"github.com/vrsandeep/transdoc-go/internal/store"
)

// JobContext is an interface that provides the necessary dependencies for a job to run.
// The core.App struct will implement this interface.
type JobContext interface {
	Store() *store.Store
	Config() *config.Config
	Pool() *pool.Pool
	JobManager() *JobManager
}

type jobTask func(ctx JobContext) error

type JobStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // "idle", "running", "success", "failed"
	Message   string    `json:"message"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

// JobManager runs maintenance jobs one at a time, whether they are
// triggered by the schedule or through the admin API.
type JobManager struct {
	mu      sync.Mutex
	jobs    map[string]jobTask
	status  map[string]*JobStatus
	running bool
	appCtx  JobContext
}

func NewManager(appCtx JobContext) *JobManager {
	return &JobManager{
		jobs:   make(map[string]jobTask),
		status: make(map[string]*JobStatus),
		appCtx: appCtx,
	}
}

func (jm *JobManager) Register(id, name string, task jobTask) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.jobs[id] = task
	jm.status[id] = &JobStatus{ID: id, Name: name, Status: "idle"}
}

// RunJob starts a registered job in its own goroutine. Only one job may run
// at a time.
func (jm *JobManager) RunJob(id string, ctx JobContext) error {
	jm.mu.Lock()
	if jm.running {
		jm.mu.Unlock()
		return fmt.Errorf("a job is already running")
	}
	task, ok := jm.jobs[id]
	if !ok {
		jm.mu.Unlock()
		return fmt.Errorf("job '%s' not found", id)
	}
	if ctx == nil {
		ctx = jm.appCtx
	}

	jm.running = true
	status := jm.status[id]
	status.Status = "running"
	status.StartTime = time.Now()
	status.EndTime = time.Time{}
	status.Message = "Job started..."
	jm.mu.Unlock()

	log.Info().Str("job", id).Msg("starting maintenance job")
	go func() {
		var taskErr error
		defer func() {
			r := recover()

			jm.mu.Lock()
			defer jm.mu.Unlock()
			status.EndTime = time.Now()
			switch {
			case r != nil:
				log.Error().Str("job", id).Interface("panic", r).Msg("maintenance job panicked")
				status.Status = "failed"
				status.Message = fmt.Sprintf("Job panicked: %v", r)
			case taskErr != nil:
				log.Error().Err(taskErr).Str("job", id).Msg("maintenance job failed")
				status.Status = "failed"
				status.Message = taskErr.Error()
			default:
				status.Status = "success"
				status.Message = "Job completed successfully."
			}
			jm.running = false
			log.Info().Str("job", id).Str("status", status.Status).Msg("finished maintenance job")
		}()

		taskErr = task(ctx)
	}()
	return nil
}

// GetStatus returns a snapshot of every registered job, ordered by id.
func (jm *JobManager) GetStatus() []JobStatus {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	statuses := make([]JobStatus, 0, len(jm.status))
	for _, s := range jm.status {
		statuses = append(statuses, *s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}
