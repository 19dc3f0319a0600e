package daemon

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/logfields"
	"git.home.luguber.info/inful/cicdsim/internal/status"
)

// Scheduler wraps a gocron scheduler for the agent's periodic housekeeping.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(logger *slog.Logger, opts ...gocron.SchedulerOption) (*Scheduler, error) {
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to create scheduler").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{scheduler: s, logger: logger}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.logger.Debug("Starting scheduler", slog.Int("jobs", len(s.scheduler.Jobs())))
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.logger.Debug("Stopping scheduler")
	if err := s.scheduler.Shutdown(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "scheduler shutdown").Build()
	}
	return nil
}

// ScheduleEvery runs fn every interval. A run that is still going when the
// next one is due is skipped rather than stacked.
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, fn func()) (string, error) {
	if interval <= 0 {
		return "", ferrors.ValidationError("schedule interval must be > 0").
			WithContext("job", name).Build()
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to schedule job").
			WithContext("job", name).Build()
	}
	return job.ID().String(), nil
}

// retentionSweep returns a job that drops finished records older than maxAge.
func retentionSweep(store *status.Store, maxAge time.Duration, logger *slog.Logger) func() {
	return func() {
		if n := store.Sweep(maxAge); n > 0 {
			logger.Info("Evicted expired build records",
				slog.Int("evicted", n),
				slog.Int("remaining", store.Len()),
				logfields.Duration(maxAge))
		}
	}
}
