// Package pipeline runs submitted documents through ingest, extraction,
// translation and persistence on a bounded set of workers.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/transdoc-go/internal/events"
	"github.com/vrsandeep/transdoc-go/internal/models"
)

const (
	DefaultWorkers         = 3
	DefaultPullTimeout     = time.Second
	DefaultShutdownTimeout = 5 * time.Second

	interruptedMessage = "interrupted by shutdown"
)

// JobStore is the persistence the scheduler needs. *store.Store satisfies it.
type JobStore interface {
	CreateJob(title, sourcePath string, collectionID int64) (*models.Job, error)
	GetJob(id int64) (*models.Job, error)
	ListJobsByStatus(status models.JobStatus) ([]*models.Job, error)
	UpdateJobStatus(id int64, status models.JobStatus, progress int, errMsg string) error
	MergeJobMetadata(id int64, patch map[string]any) error
	FailInterruptedJobs(message string) (int64, error)
}

type Option func(*Scheduler)

func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithPullTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.pullTimeout = d
		}
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.joinTimeout = d
		}
	}
}

// Scheduler owns the job queue, the dispatch loop and the worker set.
type Scheduler struct {
	store    JobStore
	stages   Stages
	notifier events.Notifier

	workers     int
	pullTimeout time.Duration
	joinTimeout time.Duration

	queue   *jobQueue
	handoff chan int64
	stop    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	running      atomic.Bool
	startOnce    sync.Once
	wg           sync.WaitGroup
	dispatchDone chan struct{}
}

func NewScheduler(st JobStore, stages Stages, notifier events.Notifier, opts ...Option) *Scheduler {
	if notifier == nil {
		notifier = events.Nop
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		store:        st,
		stages:       stages,
		notifier:     notifier,
		workers:      DefaultWorkers,
		pullTimeout:  DefaultPullTimeout,
		joinTimeout:  DefaultShutdownTimeout,
		queue:        newJobQueue(),
		handoff:      make(chan int64),
		stop:         make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		dispatchDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddTask records a Pending job and queues it. It never waits on processing.
func (s *Scheduler) AddTask(title, path string, collectionID int64) (int64, error) {
	job, err := s.store.CreateJob(title, path, collectionID)
	if err != nil {
		return 0, fmt.Errorf("create job: %w", err)
	}
	s.queue.push(job.ID)
	s.notify(job, models.JobPending, 0, "queued", false)
	log.Info().Int64("job_id", job.ID).Str("title", title).Msg("job queued")
	return job.ID, nil
}

// Status returns the public view of a job.
func (s *Scheduler) Status(id int64) (*models.JobStatusView, error) {
	job, err := s.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	view := &models.JobStatusView{
		Status:   job.Status,
		Progress: job.Progress,
		Error:    job.ErrorMessage,
		Metadata: job.Metadata,
	}
	if view.Metadata == nil {
		view.Metadata = map[string]any{}
	}
	return view, nil
}

// Running reports whether the scheduler is dispatching jobs.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Queued returns the number of ids waiting for a worker.
func (s *Scheduler) Queued() int { return s.queue.len() }

// Recover prepares the queue after a restart. Jobs stuck mid-stage are
// failed, Pending jobs are queued again in creation order.
func (s *Scheduler) Recover() (requeued int, failed int64, err error) {
	failed, err = s.store.FailInterruptedJobs(interruptedMessage)
	if err != nil {
		return 0, 0, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	pending, err := s.store.ListJobsByStatus(models.JobPending)
	if err != nil {
		return 0, failed, fmt.Errorf("list pending jobs: %w", err)
	}
	for _, job := range pending {
		s.queue.push(job.ID)
	}
	if failed > 0 || len(pending) > 0 {
		log.Info().Int("requeued", len(pending)).Int64("failed", failed).Msg("recovered jobs from previous run")
	}
	return len(pending), failed, nil
}

// Start launches the workers and the dispatch loop. Later calls are no-ops.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.running.Store(true)
		for i := 1; i <= s.workers; i++ {
			s.wg.Add(1)
			go s.worker(i)
		}
		go s.dispatch()
		log.Info().Int("workers", s.workers).Msg("pipeline scheduler started")
	})
}

// Shutdown stops dequeuing and waits for in-flight jobs. Ids still queued
// stay Pending. If ctx ends first the running jobs are cancelled.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	close(s.stop)

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
	s.cancel()

	select {
	case <-s.dispatchDone:
	case <-time.After(s.joinTimeout):
		log.Warn().Dur("timeout", s.joinTimeout).Msg("dispatch loop did not stop in time")
	}
	log.Info().Int("left_pending", s.queue.len()).Msg("pipeline scheduler stopped")
	return nil
}

func (s *Scheduler) dispatch() {
	defer close(s.dispatchDone)
	for s.running.Load() {
		id, ok := s.queue.pop(s.pullTimeout)
		if !ok {
			continue
		}
		if !s.running.Load() {
			s.queue.pushFront(id)
			return
		}
		select {
		case s.handoff <- id:
		case <-s.stop:
			s.queue.pushFront(id)
			return
		}
	}
}

func (s *Scheduler) worker(n int) {
	defer s.wg.Done()
	log.Debug().Int("worker", n).Msg("pipeline worker started")
	for {
		select {
		case id := <-s.handoff:
			if !s.running.Load() {
				s.queue.pushFront(id)
				return
			}
			s.process(id)
		case <-s.stop:
			return
		}
	}
}

type step struct {
	name   string
	status models.JobStatus
	run    func(ctx context.Context, r *Run) error
}

// process is the job body. Nothing it does escapes to the worker.
func (s *Scheduler) process(id int64) {
	job, err := s.store.GetJob(id)
	if err != nil {
		log.Error().Err(err).Int64("job_id", id).Msg("could not load queued job")
		return
	}
	if job.Status != models.JobPending {
		log.Warn().Int64("job_id", id).Str("status", string(job.Status)).Msg("skipping job that is not pending")
		return
	}

	run := &Run{Job: job}
	defer run.cleanup()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int64("job_id", id).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("job panicked")
			s.fail(job, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := s.stages.Admit(job); err != nil {
		s.fail(job, fmt.Errorf("ingest: %w", err))
		return
	}

	steps := []step{
		{"ingest", models.JobPreprocessing, s.stages.Ingest},
		{"extract", models.JobExtracting, s.stages.Extract},
		{"translate", models.JobTranslating, s.stages.Translate},
		{"persist", models.JobTranslating, s.stages.Persist},
	}
	for _, st := range steps {
		if job.Status != st.status {
			if err := s.advance(job, st.status); err != nil {
				s.fail(job, err)
				return
			}
		}
		if err := st.run(s.ctx, run); err != nil {
			s.fail(job, fmt.Errorf("%s: %w", st.name, err))
			return
		}
	}

	if err := s.store.MergeJobMetadata(job.ID, run.metadata()); err != nil {
		log.Warn().Err(err).Int64("job_id", job.ID).Msg("could not record job metadata")
	}
	if err := s.advance(job, models.JobCompleted); err != nil {
		s.fail(job, err)
		return
	}
	log.Info().Int64("job_id", job.ID).Str("title", job.Title).Msg("job completed")
}

func (s *Scheduler) advance(job *models.Job, status models.JobStatus) error {
	progress := status.Progress()
	if err := s.store.UpdateJobStatus(job.ID, status, progress, ""); err != nil {
		return fmt.Errorf("update status to %s: %w", status, err)
	}
	job.Status = status
	job.Progress = progress
	log.Info().Int64("job_id", job.ID).Str("status", string(status)).Int("progress", progress).Msg("job advanced")
	s.notify(job, status, progress, "", status == models.JobCompleted)
	return nil
}

func (s *Scheduler) fail(job *models.Job, cause error) {
	msg := cause.Error()
	if msg == "" {
		msg = "unknown error"
	}
	if err := s.store.UpdateJobStatus(job.ID, models.JobFailed, -1, msg); err != nil {
		log.Error().Err(err).Int64("job_id", job.ID).Msg("could not mark job failed")
	}
	job.Status = models.JobFailed
	job.ErrorMessage = msg
	log.Error().Int64("job_id", job.ID).Str("title", job.Title).Str("error", msg).Msg("job failed")
	s.notify(job, models.JobFailed, job.Progress, msg, true)
}

func (s *Scheduler) notify(job *models.Job, status models.JobStatus, progress int, message string, done bool) {
	s.notifier.Notify(models.ProgressUpdate{
		JobID:    job.ID,
		Title:    job.Title,
		Status:   status,
		Progress: progress,
		Message:  message,
		Done:     done,
	})
}
