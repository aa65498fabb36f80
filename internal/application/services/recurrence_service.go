package services

import (
	"context"
	"time"

	"github.com/taskforge/core/internal/domain/entities"
	"github.com/taskforge/core/internal/domain/events"
	"github.com/taskforge/core/internal/infrastructure/logger"
	"github.com/taskforge/core/internal/infrastructure/metrics"
	"github.com/taskforge/core/internal/ports"
)

// Advance moves a due date forward by one recurrence interval. Monthly
// is approximated as 30 days.
func Advance(due time.Time, r entities.Recurrence) time.Time {
	switch r {
	case entities.RecurrenceDaily:
		return due.AddDate(0, 0, 1)
	case entities.RecurrenceWeekly:
		return due.AddDate(0, 0, 7)
	case entities.RecurrenceMonthly:
		return due.AddDate(0, 0, 30)
	}
	return due
}

// NextDueDate advances from the previous due date, then keeps advancing
// until the result is in the future. A task completed long after its
// due date lands on the next upcoming slot rather than a stack of
// already-missed ones.
func NextDueDate(prev time.Time, r entities.Recurrence, now time.Time) time.Time {
	next := Advance(prev, r)
	for !next.After(now) {
		next = Advance(next, r)
	}
	return next
}

// RecurrenceService materializes the next instance of a recurring task
// when the current one completes. It creates through the task service
// so the new instance flows through the same validation and event
// publication as any other task.
type RecurrenceService struct {
	tasks   *TaskService
	bus     ports.EventBus
	logger  *logger.Logger
	metrics *metrics.Metrics
	source  string
}

// NewRecurrenceService creates a new recurrence service.
func NewRecurrenceService(tasks *TaskService, bus ports.EventBus, log *logger.Logger, m *metrics.Metrics, source string) *RecurrenceService {
	return &RecurrenceService{
		tasks:   tasks,
		bus:     bus,
		logger:  log.WithComponent("recurrence"),
		metrics: m,
		source:  source,
	}
}

// HandleTaskCompleted is the task-topic consumer entrypoint.
func (s *RecurrenceService) HandleTaskCompleted(ctx context.Context, env *events.Envelope) error {
	if env.EventType != events.TaskCompleted {
		return nil
	}

	var p events.TaskCompletedPayload
	if err := env.Decode(&p); err != nil {
		return err
	}

	if p.Recurrence == string(entities.RecurrenceNone) || p.OriginalTask == nil {
		return nil
	}

	orig := p.OriginalTask
	recurrence := entities.Recurrence(p.Recurrence)

	prev := p.CompletedAt
	if orig.DueDate != nil {
		prev = *orig.DueDate
	}
	nextDue := NextDueDate(prev, recurrence, time.Now().UTC())

	req := ports.CreateTaskRequest{
		Title:          orig.Title,
		Description:    orig.Description,
		Priority:       &orig.Priority,
		Tags:           orig.Tags,
		DueDate:        &nextDue,
		Recurrence:     &recurrence,
		ReminderOffset: orig.ReminderOffset,
	}

	result, err := s.tasks.CreateTask(ctx, env.UserID, req)
	if err != nil {
		return err
	}

	s.logger.Infow("Recurring task materialized",
		"source_task_id", orig.TaskID,
		"new_task_id", result.Task.ID,
		"next_due", nextDue,
		"recurrence", recurrence)

	next, err := events.New(events.RecurrenceTriggered, env.UserID, s.source, events.RecurrenceTriggeredPayload{
		SourceTaskID: orig.TaskID,
		NewTaskID:    result.Task.ID,
		NextDueDate:  nextDue,
		Recurrence:   p.Recurrence,
	})
	if err == nil {
		next.CausedBy(env)
		err = s.bus.Publish(ctx, events.TopicRecurrenceEvents, next)
	}
	if err != nil {
		s.metrics.EventPublishFailures.WithLabelValues(events.TopicRecurrenceEvents).Inc()
		s.logger.WithError(err).Errorw("Failed to publish recurrence.triggered", "source_task_id", orig.TaskID)
		return nil
	}
	s.metrics.EventsPublished.WithLabelValues(events.TopicRecurrenceEvents, string(events.RecurrenceTriggered)).Inc()
	return nil
}
