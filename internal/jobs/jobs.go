package jobs

import (
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"
)

const (
	RefreshCredentialsJob = "refresh-credentials"
	PruneWorkDirsJob      = "prune-work-dirs"

	pruneInterval = 60 // minutes
)

// RegisterAll registers every maintenance job with the manager.
func RegisterAll(jm *JobManager) {
	jm.Register(RefreshCredentialsJob, "Refresh API credentials", RefreshCredentials)
	jm.Register(PruneWorkDirsJob, "Prune stale work directories", PruneWorkDirs)
}

// StartJobs starts the background job scheduler.
func StartJobs(app JobContext) *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	scheduleJob(s, app, RefreshCredentialsJob, app.Config().Credentials.RefreshInterval)
	scheduleJob(s, app, PruneWorkDirsJob, pruneInterval)

	log.Info().Msg("Starting background job scheduler...")
	s.StartAsync()
	return s
}

func scheduleJob(s *gocron.Scheduler, app JobContext, jobID string, interval int) {
	if interval <= 0 {
		log.Info().Str("job", jobID).Msg("interval is 0, scheduled run is disabled")
		return
	}

	log.Info().Str("job", jobID).Int("minutes", interval).Msg("scheduling job")
	_, err := s.Every(interval).Minutes().WaitForSchedule().Do(func() {
		// Submit through the manager so scheduled and manual runs never overlap.
		if err := app.JobManager().RunJob(jobID, app); err != nil {
			log.Warn().Err(err).Str("job", jobID).Msg("scheduled job could not start")
		}
	})
	if err != nil {
		log.Error().Err(err).Str("job", jobID).Msg("could not schedule job")
	}
}
