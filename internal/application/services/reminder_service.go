package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/core/internal/domain/entities"
	"github.com/taskforge/core/internal/domain/events"
	"github.com/taskforge/core/internal/infrastructure/logger"
	"github.com/taskforge/core/internal/infrastructure/metrics"
	"github.com/taskforge/core/internal/ports"
)

// ParseReminderOffset converts "1h" / "2d" / "1w" into a duration.
func ParseReminderOffset(offset string) (time.Duration, error) {
	m := entities.ReminderOffsetParts(offset)
	if m == nil {
		return 0, &entities.ValidationError{Field: "reminder_offset", Message: "expected format <n>{h|d|w}, e.g. \"1h\""}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n == 0 {
		return 0, &entities.ValidationError{Field: "reminder_offset", Message: "offset must be a positive count"}
	}
	switch m[2] {
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "w":
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, &entities.ValidationError{Field: "reminder_offset", Message: "unit must be h, d, or w"}
}

// ReminderJobID is the deterministic id for a task's reminder timer.
// Reschedules for the same fire time land on the same id, so cancel
// needs no auxiliary lookup table beyond the task index.
func ReminderJobID(taskID uuid.UUID, fireAt time.Time) string {
	return fmt.Sprintf("reminder-%s-%d", taskID, fireAt.Unix())
}

// ReminderService turns due dates with offsets into one-shot timers.
// It follows the task event stream: create and update (re)schedule,
// complete and delete cancel. A fired timer re-enters the system as a
// reminder.triggered envelope.
type ReminderService struct {
	taskRepo  ports.TaskRepository
	scheduler ports.JobScheduler
	bus       ports.EventBus
	logger    *logger.Logger
	metrics   *metrics.Metrics
	source    string

	mu   sync.Mutex
	jobs map[uuid.UUID]string // task id -> active job id
}

// NewReminderService creates a new reminder service.
func NewReminderService(taskRepo ports.TaskRepository, scheduler ports.JobScheduler, bus ports.EventBus, log *logger.Logger, m *metrics.Metrics, source string) *ReminderService {
	return &ReminderService{
		taskRepo:  taskRepo,
		scheduler: scheduler,
		bus:       bus,
		logger:    log.WithComponent("reminders"),
		metrics:   m,
		source:    source,
		jobs:      make(map[uuid.UUID]string),
	}
}

// HandleTaskEvent is the task-topic consumer entrypoint.
func (s *ReminderService) HandleTaskEvent(ctx context.Context, env *events.Envelope) error {
	switch env.EventType {
	case events.TaskCreated:
		var p events.TaskCreatedPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		return s.scheduleFromSnapshot(ctx, env, p.Task)

	case events.TaskUpdated:
		var p events.TaskUpdatedPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		// Any update cancels the timer; rescheduling needs current
		// state, which the changed-fields payload does not carry.
		s.cancel(p.TaskID)
		task, err := s.taskRepo.GetByID(ctx, env.UserID, p.TaskID)
		if err != nil {
			if errors.Is(err, entities.ErrTaskNotFound) {
				return nil
			}
			return err
		}
		return s.scheduleFromSnapshot(ctx, env, events.Snapshot(task))

	case events.TaskCompleted:
		var p events.TaskCompletedPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		s.cancel(p.TaskID)
		return nil

	case events.TaskDeleted:
		var p events.TaskDeletedPayload
		if err := env.Decode(&p); err != nil {
			return err
		}
		s.cancel(p.TaskID)
		return nil
	}
	return nil
}

func (s *ReminderService) scheduleFromSnapshot(ctx context.Context, cause *events.Envelope, snap events.TaskSnapshot) error {
	if snap.DueDate == nil || snap.ReminderOffset == nil {
		return nil
	}
	if snap.Status == string(entities.TaskStatusComplete) {
		return nil
	}

	offset, err := ParseReminderOffset(*snap.ReminderOffset)
	if err != nil {
		s.logger.WithError(err).Warnw("Unparseable reminder offset", "task_id", snap.TaskID)
		return nil
	}

	fireAt := snap.DueDate.Add(-offset)
	if !fireAt.After(time.Now()) {
		s.logger.Warnw("Reminder time already passed, skipping", "task_id", snap.TaskID, "fire_at", fireAt)
		return nil
	}

	jobID := ReminderJobID(snap.TaskID, fireAt)
	userID := cause.UserID
	message := fmt.Sprintf("Reminder: %q is due %s", snap.Title, snap.DueDate.Format(time.RFC3339))
	parent := *cause

	s.mu.Lock()
	if prev, ok := s.jobs[snap.TaskID]; ok && prev != jobID {
		_ = s.scheduler.Cancel(prev)
	}
	s.jobs[snap.TaskID] = jobID
	s.mu.Unlock()

	snapCopy := snap
	err = s.scheduler.ScheduleAt(jobID, fireAt, func() {
		s.fire(userID, snapCopy, message, &parent)
	})
	if err != nil {
		return fmt.Errorf("schedule reminder job: %w", err)
	}

	env, err := events.New(events.ReminderScheduled, userID, s.source, events.ReminderScheduledPayload{
		JobID:         uuid.New(),
		TaskID:        snap.TaskID,
		JobKey:        jobID,
		ScheduledTime: fireAt,
		Message:       message,
	})
	if err == nil {
		env.CausedBy(cause)
		err = s.bus.Publish(ctx, events.TopicReminderEvents, env)
	}
	if err != nil {
		s.metrics.EventPublishFailures.WithLabelValues(events.TopicReminderEvents).Inc()
		s.logger.WithError(err).Errorw("Failed to publish reminder.scheduled", "task_id", snap.TaskID)
		return nil
	}
	s.metrics.EventsPublished.WithLabelValues(events.TopicReminderEvents, string(events.ReminderScheduled)).Inc()

	s.logger.Infow("Reminder scheduled", "task_id", snap.TaskID, "job_id", jobID, "fire_at", fireAt)
	return nil
}

// cancel is best effort: an unknown or already-fired job is a no-op.
func (s *ReminderService) cancel(taskID uuid.UUID) {
	s.mu.Lock()
	jobID, ok := s.jobs[taskID]
	if ok {
		delete(s.jobs, taskID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := s.scheduler.Cancel(jobID); err != nil {
		s.logger.WithError(err).Warnw("Reminder cancel failed", "job_id", jobID)
		return
	}
	s.logger.Debugw("Reminder cancelled", "task_id", taskID, "job_id", jobID)
}

// fire runs on the scheduler goroutine when a timer elapses.
func (s *ReminderService) fire(userID uuid.UUID, snap events.TaskSnapshot, message string, cause *events.Envelope) {
	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()

	s.mu.Lock()
	delete(s.jobs, snap.TaskID)
	s.mu.Unlock()

	env, err := events.New(events.ReminderTriggered, userID, s.source, events.ReminderTriggeredPayload{
		TaskID:          snap.TaskID,
		TaskTitle:       snap.Title,
		DueDate:         snap.DueDate,
		ReminderMessage: message,
		TriggeredAt:     time.Now().UTC(),
	})
	if err == nil {
		env.CausedBy(cause)
		err = s.bus.Publish(ctx, events.TopicReminderEvents, env)
	}
	if err != nil {
		s.metrics.EventPublishFailures.WithLabelValues(events.TopicReminderEvents).Inc()
		s.logger.WithError(err).Errorw("Failed to publish reminder.triggered", "task_id", snap.TaskID)
		return
	}
	s.metrics.EventsPublished.WithLabelValues(events.TopicReminderEvents, string(events.ReminderTriggered)).Inc()
	s.logger.Infow("Reminder fired", "task_id", snap.TaskID, "user_id", userID)
}

// Trigger handles the external callback: it looks the task up and
// publishes reminder.triggered as if a local timer had elapsed.
func (s *ReminderService) Trigger(ctx context.Context, userID, taskID uuid.UUID, message string) error {
	task, err := s.taskRepo.GetByID(ctx, userID, taskID)
	if err != nil {
		return err
	}

	if message == "" {
		message = fmt.Sprintf("Reminder: %q", task.Title)
	}

	env, err := events.New(events.ReminderTriggered, userID, s.source, events.ReminderTriggeredPayload{
		TaskID:          task.ID,
		TaskTitle:       task.Title,
		DueDate:         task.DueDate,
		ReminderMessage: message,
		TriggeredAt:     time.Now().UTC(),
	})
	if err == nil {
		err = s.bus.Publish(ctx, events.TopicReminderEvents, env)
	}
	if err != nil {
		s.metrics.EventPublishFailures.WithLabelValues(events.TopicReminderEvents).Inc()
		return entities.ErrEventPublishFailed
	}
	s.metrics.EventsPublished.WithLabelValues(events.TopicReminderEvents, string(events.ReminderTriggered)).Inc()
	return nil
}

// Pending reports how many timers this instance currently tracks.
func (s *ReminderService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
