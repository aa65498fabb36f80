// Package scheduler registers durable one-shot timers for reminders.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/taskforge/core/internal/infrastructure/logger"
	"github.com/taskforge/core/internal/infrastructure/metrics"
)

// OneShotScheduler runs each registered job exactly once at its fire
// time. Jobs are addressed by their deterministic id so a reschedule
// can cancel the previous registration without auxiliary state.
type OneShotScheduler struct {
	scheduler *gocron.Scheduler
	logger    *logger.Logger
	metrics   *metrics.Metrics

	mu   sync.Mutex
	jobs map[string]struct{}
}

// New builds a stopped scheduler; call Start before registering jobs.
func New(log *logger.Logger, m *metrics.Metrics) *OneShotScheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	return &OneShotScheduler{
		scheduler: s,
		logger:    log.WithComponent("scheduler"),
		metrics:   m,
		jobs:      make(map[string]struct{}),
	}
}

// Start begins executing jobs asynchronously.
func (s *OneShotScheduler) Start() {
	s.scheduler.StartAsync()
	s.logger.Info("Reminder scheduler started")
}

// Stop waits for running jobs and halts the scheduler.
func (s *OneShotScheduler) Stop() {
	s.scheduler.Stop()
	s.logger.Info("Reminder scheduler stopped")
}

// ScheduleAt registers fn to run once at fireAt. Registering an id that
// already exists is an error; cancel first to reschedule.
func (s *OneShotScheduler) ScheduleAt(jobID string, fireAt time.Time, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobID]; exists {
		return fmt.Errorf("job %s already registered", jobID)
	}

	_, err := s.scheduler.Every(1).Day().StartAt(fireAt).LimitRunsTo(1).Tag(jobID).Do(func() {
		s.logger.Infow("Reminder job fired", "job_id", jobID, "fired_at", time.Now().UTC().Format(time.RFC3339))
		fn()

		s.mu.Lock()
		delete(s.jobs, jobID)
		s.mu.Unlock()
		s.metrics.ReminderJobsActive.Dec()

		// LimitRunsTo keeps the finished job in gocron's registry;
		// remove it so the tag can be reused.
		_ = s.scheduler.RemoveByTag(jobID)
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", jobID, err)
	}

	s.jobs[jobID] = struct{}{}
	s.metrics.ReminderJobsActive.Inc()
	s.logger.Infow("Reminder job registered", "job_id", jobID, "fire_at", fireAt.UTC().Format(time.RFC3339))
	return nil
}

// Cancel removes a pending job. Cancelling an unknown id is a no-op so
// cancel-after-fire stays safe.
func (s *OneShotScheduler) Cancel(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobID]; !exists {
		return nil
	}

	if err := s.scheduler.RemoveByTag(jobID); err != nil {
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}

	delete(s.jobs, jobID)
	s.metrics.ReminderJobsActive.Dec()
	s.logger.Infow("Reminder job cancelled", "job_id", jobID)
	return nil
}

// Pending reports whether a job id is currently registered.
func (s *OneShotScheduler) Pending(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[jobID]
	return ok
}
