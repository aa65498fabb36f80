package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/taskforge/core/internal/domain/entities"
	"github.com/taskforge/core/internal/domain/events"
	"github.com/taskforge/core/internal/infrastructure/logger"
	"github.com/taskforge/core/internal/infrastructure/metrics"
	"github.com/taskforge/core/internal/infrastructure/scheduler"
)

func TestParseReminderOffset(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"1h", time.Hour},
		{"12h", 12 * time.Hour},
		{"1d", 24 * time.Hour},
		{"2d", 48 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
	}
	for _, c := range cases {
		got, err := ParseReminderOffset(c.in)
		if err != nil {
			t.Fatalf("ParseReminderOffset(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseReminderOffset(%q) = %v, want %v", c.in, got, c.want)
		}
	}

	for _, bad := range []string{"", "h", "1m", "0h", "-1d", "1.5h", "1 h"} {
		if _, err := ParseReminderOffset(bad); !entities.IsValidation(err) {
			t.Fatalf("ParseReminderOffset(%q) err = %v, want validation error", bad, err)
		}
	}
}

func TestReminderJobIDDeterministic(t *testing.T) {
	taskID := uuid.New()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	want := fmt.Sprintf("reminder-%s-%d", taskID, at.Unix())
	if got := ReminderJobID(taskID, at); got != want {
		t.Fatalf("ReminderJobID = %q, want %q", got, want)
	}
	if ReminderJobID(taskID, at) != ReminderJobID(taskID, at) {
		t.Fatal("job id must be stable for the same inputs")
	}
}

func newReminderFixture(t *testing.T) (*ReminderService, *fakeTaskRepo, *fakeScheduler, *fakeBus) {
	t.Helper()
	repo := newFakeTaskRepo()
	sched := newFakeScheduler()
	bus := &fakeBus{}
	svc := NewReminderService(repo, sched, bus, logger.Nop(), metrics.New(), "worker")
	return svc, repo, sched, bus
}

func createdEnvelope(t *testing.T, task *entities.Task) *events.Envelope {
	t.Helper()
	env, err := events.New(events.TaskCreated, task.UserID, "api", events.TaskCreatedPayload{
		Task:      events.Snapshot(task),
		CreatedAt: task.CreatedAt,
	})
	if err != nil {
		t.Fatalf("events.New: %v", err)
	}
	return env
}

func reminderTask(userID uuid.UUID, due time.Time, offset string) *entities.Task {
	now := time.Now().UTC()
	return &entities.Task{
		ID:             uuid.New(),
		UserID:         userID,
		Title:          "review budget",
		Status:         entities.TaskStatusIncomplete,
		Priority:       entities.PriorityMedium,
		Recurrence:     entities.RecurrenceNone,
		DueDate:        &due,
		ReminderOffset: &offset,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestReminderScheduledOnTaskCreated(t *testing.T) {
	svc, _, sched, bus := newReminderFixture(t)
	userID := uuid.New()
	due := time.Now().UTC().Add(48 * time.Hour)
	task := reminderTask(userID, due, "1h")

	if err := svc.HandleTaskEvent(context.Background(), createdEnvelope(t, task)); err != nil {
		t.Fatalf("HandleTaskEvent: %v", err)
	}
	if svc.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", svc.Pending())
	}

	jobID := ReminderJobID(task.ID, due.Add(-time.Hour))
	fireAt, ok := sched.scheduled[jobID]
	if !ok {
		t.Fatalf("job %s not scheduled; scheduled: %v", jobID, sched.scheduled)
	}
	if !fireAt.Equal(due.Add(-time.Hour)) {
		t.Fatalf("fireAt = %v, want due minus offset", fireAt)
	}

	env := bus.last()
	if env.EventType != events.ReminderScheduled {
		t.Fatalf("event = %s, want reminder.scheduled", env.EventType)
	}
	if env.CausationID == nil {
		t.Fatal("scheduled event must be caused by the task event")
	}
}

func TestReminderSkippedWithoutDueOrOffset(t *testing.T) {
	svc, _, sched, _ := newReminderFixture(t)
	userID := uuid.New()

	noDue := reminderTask(userID, time.Time{}, "1h")
	noDue.DueDate = nil
	if err := svc.HandleTaskEvent(context.Background(), createdEnvelope(t, noDue)); err != nil {
		t.Fatalf("HandleTaskEvent: %v", err)
	}

	due := time.Now().UTC().Add(24 * time.Hour)
	noOffset := reminderTask(userID, due, "1h")
	noOffset.ReminderOffset = nil
	if err := svc.HandleTaskEvent(context.Background(), createdEnvelope(t, noOffset)); err != nil {
		t.Fatalf("HandleTaskEvent: %v", err)
	}

	if len(sched.scheduled) != 0 {
		t.Fatalf("nothing should be scheduled, got %v", sched.scheduled)
	}
}

func TestReminderSkippedWhenFireTimePassed(t *testing.T) {
	svc, _, sched, _ := newReminderFixture(t)
	due := time.Now().UTC().Add(30 * time.Minute)
	task := reminderTask(uuid.New(), due, "1h")

	if err := svc.HandleTaskEvent(context.Background(), createdEnvelope(t, task)); err != nil {
		t.Fatalf("HandleTaskEvent: %v", err)
	}
	if len(sched.scheduled) != 0 {
		t.Fatal("a fire time in the past must not schedule")
	}
}

func TestReminderCancelledOnCompleteAndDelete(t *testing.T) {
	svc, _, sched, _ := newReminderFixture(t)
	userID := uuid.New()
	due := time.Now().UTC().Add(48 * time.Hour)
	task := reminderTask(userID, due, "2h")

	if err := svc.HandleTaskEvent(context.Background(), createdEnvelope(t, task)); err != nil {
		t.Fatalf("HandleTaskEvent: %v", err)
	}

	env, _ := events.New(events.TaskCompleted, userID, "api", events.TaskCompletedPayload{
		TaskID:      task.ID,
		CompletedAt: time.Now().UTC(),
		Recurrence:  "none",
	})
	if err := svc.HandleTaskEvent(context.Background(), env); err != nil {
		t.Fatalf("HandleTaskEvent completed: %v", err)
	}
	if svc.Pending() != 0 {
		t.Fatalf("pending = %d after completion, want 0", svc.Pending())
	}
	if len(sched.cancelled) == 0 {
		t.Fatal("scheduler cancel not invoked")
	}
}

func TestReminderRescheduledOnUpdateFromStore(t *testing.T) {
	svc, repo, sched, _ := newReminderFixture(t)
	userID := uuid.New()
	due := time.Now().UTC().Add(48 * time.Hour)
	task := reminderTask(userID, due, "1h")

	if err := svc.HandleTaskEvent(context.Background(), createdEnvelope(t, task)); err != nil {
		t.Fatalf("HandleTaskEvent: %v", err)
	}

	moved := due.Add(24 * time.Hour)
	task.DueDate = &moved
	if err := repo.Create(context.Background(), task); err != nil {
		t.Fatalf("seed repo: %v", err)
	}

	env, _ := events.New(events.TaskUpdated, userID, "api", events.TaskUpdatedPayload{
		TaskID:        task.ID,
		UpdatedFields: map[string]interface{}{"due_date": moved},
		UpdatedAt:     time.Now().UTC(),
	})
	if err := svc.HandleTaskEvent(context.Background(), env); err != nil {
		t.Fatalf("HandleTaskEvent updated: %v", err)
	}

	newJob := ReminderJobID(task.ID, moved.Add(-time.Hour))
	if _, ok := sched.scheduled[newJob]; !ok {
		t.Fatalf("job not rescheduled at new fire time; scheduled: %v", sched.scheduled)
	}
	if svc.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", svc.Pending())
	}
}

func TestReminderUpdateForDeletedTaskIsBenign(t *testing.T) {
	svc, _, _, _ := newReminderFixture(t)
	env, _ := events.New(events.TaskUpdated, uuid.New(), "api", events.TaskUpdatedPayload{
		TaskID:        uuid.New(),
		UpdatedFields: map[string]interface{}{"title": "gone"},
		UpdatedAt:     time.Now().UTC(),
	})
	if err := svc.HandleTaskEvent(context.Background(), env); err != nil {
		t.Fatalf("missing task must not error: %v", err)
	}
}

func TestReminderJobsGaugeCountsEachJobOnce(t *testing.T) {
	m := metrics.New()
	sched := scheduler.New(logger.Nop(), m)
	svc := NewReminderService(newFakeTaskRepo(), sched, &fakeBus{}, logger.Nop(), m, "worker")
	userID := uuid.New()
	due := time.Now().UTC().Add(48 * time.Hour)
	task := reminderTask(userID, due, "1h")

	if err := svc.HandleTaskEvent(context.Background(), createdEnvelope(t, task)); err != nil {
		t.Fatalf("HandleTaskEvent: %v", err)
	}
	if got := testutil.ToFloat64(m.ReminderJobsActive); got != 1 {
		t.Fatalf("gauge = %v with one live job, want 1", got)
	}

	env, _ := events.New(events.TaskCompleted, userID, "api", events.TaskCompletedPayload{
		TaskID:      task.ID,
		CompletedAt: time.Now().UTC(),
		Recurrence:  "none",
	})
	if err := svc.HandleTaskEvent(context.Background(), env); err != nil {
		t.Fatalf("HandleTaskEvent completed: %v", err)
	}
	if got := testutil.ToFloat64(m.ReminderJobsActive); got != 0 {
		t.Fatalf("gauge = %v after cancel, want 0", got)
	}
}

func TestReminderFirePublishesTriggered(t *testing.T) {
	svc, _, sched, bus := newReminderFixture(t)
	userID := uuid.New()
	due := time.Now().UTC().Add(48 * time.Hour)
	task := reminderTask(userID, due, "1h")

	cause := createdEnvelope(t, task)
	if err := svc.HandleTaskEvent(context.Background(), cause); err != nil {
		t.Fatalf("HandleTaskEvent: %v", err)
	}

	sched.fire(ReminderJobID(task.ID, due.Add(-time.Hour)))

	env := bus.last()
	if env.EventType != events.ReminderTriggered {
		t.Fatalf("event = %s, want reminder.triggered", env.EventType)
	}
	var p events.ReminderTriggeredPayload
	if err := env.Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.TaskID != task.ID || p.TaskTitle != task.Title {
		t.Fatalf("payload = %+v, want task context carried", p)
	}
	if svc.Pending() != 0 {
		t.Fatalf("pending = %d after fire, want 0", svc.Pending())
	}
	if env.CorrelationID == nil || *env.CorrelationID != cause.EventID {
		t.Fatal("triggered event must carry the originating correlation")
	}
}
