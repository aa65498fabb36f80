// Package events defines the envelope every bus message is wrapped in
// and the typed payloads for each event type.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/core/internal/domain/entities"
)

// Type enumerates every event the system publishes.
type Type string

const (
	TaskCreated         Type = "task.created"
	TaskUpdated         Type = "task.updated"
	TaskCompleted       Type = "task.completed"
	TaskDeleted         Type = "task.deleted"
	ReminderScheduled   Type = "reminder.scheduled"
	ReminderTriggered   Type = "reminder.triggered"
	RecurrenceTriggered Type = "task.recurrence.triggered"
)

// Topic names. The bus partitions each topic by user_id so per-user
// publish order is preserved at every consumer.
const (
	TopicTaskEvents         = "task.events"
	TopicReminderEvents     = "reminder.events"
	TopicRecurrenceEvents   = "recurrence.events"
	TopicNotificationEvents = "notification.events"
)

// SchemaVersion is the current envelope schema version.
const SchemaVersion = "1.0"

// Envelope is the common metadata wrapping every event.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     Type            `json:"event_type"`
	CorrelationID *uuid.UUID      `json:"correlation_id,omitempty"`
	CausationID   *uuid.UUID      `json:"causation_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	UserID        uuid.UUID       `json:"user_id"`
	Version       string          `json:"version"`
	Source        string          `json:"source"`
	Payload       json.RawMessage `json:"payload"`
}

// New wraps a payload in a fresh envelope.
func New(eventType Type, userID uuid.UUID, source string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Envelope{
		EventID:   uuid.New(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		Version:   SchemaVersion,
		Source:    source,
		Payload:   raw,
	}, nil
}

// CausedBy links this envelope to the event that caused it and carries
// the correlation id across the causal chain.
func (e *Envelope) CausedBy(parent *Envelope) *Envelope {
	id := parent.EventID
	e.CausationID = &id
	if parent.CorrelationID != nil {
		e.CorrelationID = parent.CorrelationID
	} else {
		e.CorrelationID = &id
	}
	return e
}

// Decode unmarshals the payload into dst.
func (e *Envelope) Decode(dst interface{}) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}

// TaskSnapshot is the full attribute set of a task as carried in event
// payloads.
type TaskSnapshot struct {
	TaskID         uuid.UUID         `json:"task_id"`
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	Status         string            `json:"status"`
	Priority       entities.Priority `json:"priority"`
	Tags           []string          `json:"tags,omitempty"`
	DueDate        *time.Time        `json:"due_date,omitempty"`
	Recurrence     string            `json:"recurrence"`
	ReminderOffset *string           `json:"reminder_offset,omitempty"`
}

// Snapshot captures a task's attributes for an event payload.
func Snapshot(t *entities.Task) TaskSnapshot {
	return TaskSnapshot{
		TaskID:         t.ID,
		Title:          t.Title,
		Description:    t.Description,
		Status:         string(t.Status),
		Priority:       t.Priority,
		Tags:           t.Tags,
		DueDate:        t.DueDate,
		Recurrence:     string(t.Recurrence),
		ReminderOffset: t.ReminderOffset,
	}
}

// TaskCreatedPayload is the body of task.created.
type TaskCreatedPayload struct {
	Task      TaskSnapshot `json:"task"`
	CreatedAt time.Time    `json:"created_at"`
}

// TaskUpdatedPayload is the body of task.updated. UpdatedFields holds
// just the changed keys with their new values.
type TaskUpdatedPayload struct {
	TaskID        uuid.UUID              `json:"task_id"`
	UpdatedFields map[string]interface{} `json:"updated_fields"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// TaskCompletedPayload is the body of task.completed. OriginalTask is
// populated iff the task recurs; it is what the recurrence processor
// consumes to materialize the next instance.
type TaskCompletedPayload struct {
	TaskID       uuid.UUID     `json:"task_id"`
	CompletedAt  time.Time     `json:"completed_at"`
	Recurrence   string        `json:"recurrence"`
	OriginalTask *TaskSnapshot `json:"original_task,omitempty"`
}

// TaskDeletedPayload is the body of task.deleted.
type TaskDeletedPayload struct {
	TaskID    uuid.UUID `json:"task_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// ReminderScheduledPayload is the body of reminder.scheduled.
type ReminderScheduledPayload struct {
	JobID         uuid.UUID `json:"reminder_id"`
	TaskID        uuid.UUID `json:"task_id"`
	JobKey        string    `json:"job_key"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Message       string    `json:"message"`
}

// ReminderTriggeredPayload is the body of reminder.triggered, the event
// a fired timer re-enters the system as. It carries full task context
// so delivery needs no further lookups.
type ReminderTriggeredPayload struct {
	TaskID          uuid.UUID  `json:"task_id"`
	TaskTitle       string     `json:"task_title"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	ReminderMessage string     `json:"reminder_message"`
	TriggeredAt     time.Time  `json:"triggered_at"`
}

// RecurrenceTriggeredPayload is the body of task.recurrence.triggered.
type RecurrenceTriggeredPayload struct {
	SourceTaskID uuid.UUID `json:"source_task_id"`
	NewTaskID    uuid.UUID `json:"new_task_id"`
	NextDueDate  time.Time `json:"next_due_date"`
	Recurrence   string    `json:"recurrence"`
}
