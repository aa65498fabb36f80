package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/core/internal/domain/entities"
	"github.com/taskforge/core/internal/domain/events"
	"github.com/taskforge/core/internal/infrastructure/logger"
	"github.com/taskforge/core/internal/infrastructure/metrics"
)

func TestAdvance(t *testing.T) {
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		r    entities.Recurrence
		want time.Time
	}{
		{entities.RecurrenceDaily, base.AddDate(0, 0, 1)},
		{entities.RecurrenceWeekly, base.AddDate(0, 0, 7)},
		{entities.RecurrenceMonthly, base.AddDate(0, 0, 30)},
		{entities.RecurrenceNone, base},
	}
	for _, c := range cases {
		if got := Advance(base, c.r); !got.Equal(c.want) {
			t.Fatalf("Advance(%s) = %v, want %v", c.r, got, c.want)
		}
	}
}

func TestNextDueDateSkipsMissedSlots(t *testing.T) {
	prev := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	got := NextDueDate(prev, entities.RecurrenceDaily, now)
	want := time.Date(2026, 1, 11, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NextDueDate = %v, want next slot after now %v", got, want)
	}
}

func TestNextDueDateSingleAdvanceWhenCurrent(t *testing.T) {
	prev := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	got := NextDueDate(prev, entities.RecurrenceWeekly, now)
	if !got.Equal(prev.AddDate(0, 0, 7)) {
		t.Fatalf("NextDueDate = %v, want one week after prev", got)
	}
}

func newRecurrenceFixture(t *testing.T) (*RecurrenceService, *fakeTaskRepo, *fakeBus) {
	t.Helper()
	repo := newFakeTaskRepo()
	bus := &fakeBus{}
	tasks := NewTaskService(repo, bus, logger.Nop(), metrics.New(), "worker")
	svc := NewRecurrenceService(tasks, bus, logger.Nop(), metrics.New(), "worker")
	return svc, repo, bus
}

func completedEnvelope(t *testing.T, userID uuid.UUID, p events.TaskCompletedPayload) *events.Envelope {
	t.Helper()
	env, err := events.New(events.TaskCompleted, userID, "api", p)
	if err != nil {
		t.Fatalf("events.New: %v", err)
	}
	return env
}

func TestRecurrenceMaterializesNextInstance(t *testing.T) {
	svc, repo, bus := newRecurrenceFixture(t)
	userID := uuid.New()
	due := time.Now().UTC().Add(-2 * time.Hour)
	offset := "1h"
	snap := &events.TaskSnapshot{
		TaskID:         uuid.New(),
		Title:          "weekly review",
		Description:    "retro notes",
		Status:         string(entities.TaskStatusComplete),
		Priority:       entities.PriorityHigh,
		Tags:           []string{"work"},
		DueDate:        &due,
		Recurrence:     string(entities.RecurrenceWeekly),
		ReminderOffset: &offset,
	}

	env := completedEnvelope(t, userID, events.TaskCompletedPayload{
		TaskID:       snap.TaskID,
		CompletedAt:  time.Now().UTC(),
		Recurrence:   string(entities.RecurrenceWeekly),
		OriginalTask: snap,
	})
	if err := svc.HandleTaskCompleted(context.Background(), env); err != nil {
		t.Fatalf("HandleTaskCompleted: %v", err)
	}

	tasks, _, err := repo.List(context.Background(), userID, listAll())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want one successor", len(tasks))
	}
	succ := tasks[0]
	if succ.Title != snap.Title || succ.Priority != snap.Priority {
		t.Fatalf("successor = %+v, want attributes carried over", succ)
	}
	if succ.Status != entities.TaskStatusIncomplete {
		t.Fatalf("successor status = %s, want incomplete", succ.Status)
	}
	if succ.DueDate == nil || !succ.DueDate.After(time.Now().UTC()) {
		t.Fatal("successor due date must be in the future")
	}
	if succ.ReminderOffset == nil || *succ.ReminderOffset != offset {
		t.Fatal("reminder offset must carry over")
	}

	// Creation goes through the task service, so task.created precedes
	// task.recurrence.triggered on the bus.
	var sawCreated, sawTriggered bool
	for _, p := range bus.published {
		switch p.env.EventType {
		case events.TaskCreated:
			sawCreated = true
		case events.RecurrenceTriggered:
			sawTriggered = true
			var body events.RecurrenceTriggeredPayload
			if err := p.env.Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.SourceTaskID != snap.TaskID || body.NewTaskID != succ.ID {
				t.Fatalf("payload = %+v", body)
			}
			if p.topic != events.TopicRecurrenceEvents {
				t.Fatalf("topic = %s", p.topic)
			}
			if p.env.CausationID == nil || *p.env.CausationID != env.EventID {
				t.Fatal("recurrence event must be caused by the completion")
			}
		}
	}
	if !sawCreated || !sawTriggered {
		t.Fatalf("created=%v triggered=%v, want both", sawCreated, sawTriggered)
	}
}

func TestRecurrenceIgnoresNonRecurring(t *testing.T) {
	svc, repo, _ := newRecurrenceFixture(t)
	userID := uuid.New()

	env := completedEnvelope(t, userID, events.TaskCompletedPayload{
		TaskID:      uuid.New(),
		CompletedAt: time.Now().UTC(),
		Recurrence:  string(entities.RecurrenceNone),
	})
	if err := svc.HandleTaskCompleted(context.Background(), env); err != nil {
		t.Fatalf("HandleTaskCompleted: %v", err)
	}
	if tasks, _, _ := repo.List(context.Background(), userID, listAll()); len(tasks) != 0 {
		t.Fatal("non-recurring completion must not create a task")
	}
}

func TestRecurrenceIgnoresOtherEventTypes(t *testing.T) {
	svc, repo, _ := newRecurrenceFixture(t)
	userID := uuid.New()
	env, _ := events.New(events.TaskDeleted, userID, "api", events.TaskDeletedPayload{
		TaskID:    uuid.New(),
		DeletedAt: time.Now().UTC(),
	})
	if err := svc.HandleTaskCompleted(context.Background(), env); err != nil {
		t.Fatalf("HandleTaskCompleted: %v", err)
	}
	if tasks, _, _ := repo.List(context.Background(), userID, listAll()); len(tasks) != 0 {
		t.Fatal("deleted event must be a no-op")
	}
}
