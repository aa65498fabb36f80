package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/core/internal/domain/entities"
	"github.com/taskforge/core/internal/domain/events"
)

// EventHandler processes one envelope. Handlers must be retryable;
// side effects are guarded by the idempotency ledger.
type EventHandler func(ctx context.Context, env *events.Envelope) error

// EventBus is the publish/subscribe port. Delivery is at-least-once;
// within one user's partition envelopes arrive in publish order.
type EventBus interface {
	Publish(ctx context.Context, topic string, env *events.Envelope) error
	// Subscribe registers a named durable consumer on a topic. Handlers
	// for one partition run single-threaded.
	Subscribe(ctx context.Context, topic, consumer string, handler EventHandler) error
	// SubscribeBroadcast delivers every envelope on a topic to this
	// process only (no consumer group), for fan-out such as websocket sync.
	SubscribeBroadcast(ctx context.Context, topic string, handler EventHandler) error
}

// DeadLetterer routes envelopes whose handlers exhausted their retries
// to a dead-letter destination.
type DeadLetterer interface {
	PublishDeadLetter(ctx context.Context, consumer string, env *events.Envelope, attempts int, lastErr error) error
}

// IdempotencyLedger deduplicates event handling across consumers.
type IdempotencyLedger interface {
	// MarkProcessed atomically records (consumer, eventID). It returns
	// true when this is the first time the pair is seen.
	MarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
}

// RateLimiter bounds request rates per user over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// JobScheduler registers one-shot timers. Job ids are deterministic
// (reminder-<task_id>-<unix_seconds>) so cancel and reschedule can find
// the previous job without auxiliary state.
type JobScheduler interface {
	ScheduleAt(jobID string, fireAt time.Time, fn func()) error
	Cancel(jobID string) error
}

// Notification is what the delivery layer hands to each transport.
type Notification struct {
	UserID  uuid.UUID
	TaskID  uuid.UUID
	Title   string
	Message string
}

// Transport delivers a notification through one channel (email, push,
// in-app). Implementations own their retry; a failure never propagates
// to the event that produced the notification.
type Transport interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// CreateTaskRequest carries the attributes for task creation.
type CreateTaskRequest struct {
	Title          string             `json:"title" validate:"required"`
	Description    string             `json:"description"`
	Priority       *entities.Priority `json:"priority"`
	Tags           []string           `json:"tags"`
	DueDate        *time.Time         `json:"due_date"`
	Recurrence     *entities.Recurrence `json:"recurrence"`
	ReminderOffset *string            `json:"reminder_offset"`
}

// UpdateTaskRequest applies only the supplied fields.
type UpdateTaskRequest struct {
	Title          *string               `json:"title"`
	Description    *string               `json:"description"`
	Status         *entities.TaskStatus  `json:"status"`
	Priority       *entities.Priority    `json:"priority"`
	Tags           *[]string             `json:"tags"`
	DueDate        *time.Time            `json:"due_date"`
	ClearDueDate   bool                  `json:"clear_due_date,omitempty"`
	Recurrence     *entities.Recurrence  `json:"recurrence"`
	ReminderOffset *string               `json:"reminder_offset"`
}

// Empty reports whether the patch touches no field.
func (r UpdateTaskRequest) Empty() bool {
	return r.Title == nil && r.Description == nil && r.Status == nil &&
		r.Priority == nil && r.Tags == nil && r.DueDate == nil &&
		!r.ClearDueDate && r.Recurrence == nil && r.ReminderOffset == nil
}

// TaskResult is a mutated task plus the publish outcome. Warning is set
// when the store mutation succeeded but the envelope could not be
// emitted (partial success).
type TaskResult struct {
	Task    *entities.Task `json:"task"`
	Warning string         `json:"warning,omitempty"`
}

// RegisterRequest creates an account.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
}

// LoginRequest authenticates an account.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse carries the issued token and the account it belongs to.
type AuthResponse struct {
	Token     string         `json:"token"`
	TokenType string         `json:"token_type"`
	ExpiresIn int64          `json:"expires_in"`
	User      *entities.User `json:"user"`
}

// Identity is the verified credential context for one request.
type Identity struct {
	UserID uuid.UUID
	Email  string
}

// ChatRequest is one chat turn.
type ChatRequest struct {
	Message        string     `json:"message" validate:"required"`
	ConversationID *uuid.UUID `json:"conversation_id"`
}

// ChatToolCall is a settled tool call as returned to the client.
type ChatToolCall struct {
	ToolName string                  `json:"tool_name"`
	Input    interface{}             `json:"input"`
	Output   interface{}             `json:"output"`
	Status   entities.ToolCallStatus `json:"status"`
}

// ChatResponse is the result of one chat turn.
type ChatResponse struct {
	ConversationID uuid.UUID      `json:"conversation_id"`
	Response       string         `json:"response"`
	ToolCalls      []ChatToolCall `json:"tool_calls"`
}
