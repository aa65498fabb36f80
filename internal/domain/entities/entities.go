package entities

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrTaskNotFound         = errors.New("task not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrDuplicateEmail       = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrTenantViolation      = errors.New("resource belongs to another user")
	ErrRateLimited          = errors.New("rate limit exceeded")

	ErrTokenMissing          = errors.New("missing credential")
	ErrTokenMalformed        = errors.New("malformed token")
	ErrTokenSignatureInvalid = errors.New("invalid token signature")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenMissingClaims    = errors.New("token missing required claims")

	ErrEventPublishFailed = errors.New("event publish failed")
	ErrReminderInPast     = errors.New("reminder time is in the past")
)

// ValidationError carries a field-level invariant violation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a field validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

type TaskStatus string

const (
	TaskStatusIncomplete TaskStatus = "incomplete"
	TaskStatusComplete   TaskStatus = "complete"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank returns the canonical ordering of priorities (low < medium < high < urgent).
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	}
	return 0
}

func (p Priority) Valid() bool { return p.Rank() != 0 }

type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 2000
	MaxTags           = 20
	MaxTagLen         = 50
)

// Tags is a set of labels stored as a JSONB array.
type Tags []string

// Normalize deduplicates, trims, and sorts the tag set.
func (t Tags) Normalize() Tags {
	seen := make(map[string]struct{}, len(t))
	out := make(Tags, 0, len(t))
	for _, tag := range t {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether every tag in want is present.
func (t Tags) Contains(want []string) bool {
	for _, w := range want {
		found := false
		for _, have := range t {
			if have == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (t *Tags) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*t = nil
		return nil
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	}
	return fmt.Errorf("cannot scan %T into Tags", src)
}

// reminderOffsetRe matches relative offsets like "1h", "2d", "1w".
var reminderOffsetRe = regexp.MustCompile(`^(\d+)([hdw])$`)

// ValidReminderOffset reports whether s is a well-formed reminder offset.
func ValidReminderOffset(s string) bool {
	return reminderOffsetRe.MatchString(s)
}

// ReminderOffsetParts returns [full, count, unit] for a well-formed
// offset, nil otherwise.
func ReminderOffsetParts(s string) []string {
	return reminderOffsetRe.FindStringSubmatch(s)
}

// ReminderOffsetDuration converts a well-formed offset into its
// duration. ok is false for malformed or zero-count offsets.
func ReminderOffsetDuration(s string) (time.Duration, bool) {
	m := reminderOffsetRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n == 0 {
		return 0, false
	}
	switch m[2] {
	case "h":
		return time.Duration(n) * time.Hour, true
	case "d":
		return time.Duration(n) * 24 * time.Hour, true
	case "w":
		return time.Duration(n) * 7 * 24 * time.Hour, true
	}
	return 0, false
}

// Task is the primary aggregate, owned by exactly one user.
type Task struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	UserID         uuid.UUID  `json:"user_id" db:"user_id"`
	Title          string     `json:"title" db:"title"`
	Description    string     `json:"description" db:"description"`
	Status         TaskStatus `json:"status" db:"status"`
	Priority       Priority   `json:"priority" db:"priority"`
	Tags           Tags       `json:"tags" db:"tags"`
	DueDate        *time.Time `json:"due_date" db:"due_date"`
	Recurrence     Recurrence `json:"recurrence" db:"recurrence"`
	ReminderOffset *string    `json:"reminder_offset" db:"reminder_offset"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at" db:"completed_at"`
}

// Validate checks the task invariants against the given wall clock:
// bounded title/description/tags, future due date, and a reminder offset
// only alongside a due date.
func (t *Task) Validate(now time.Time) error {
	title := strings.TrimSpace(t.Title)
	if title == "" {
		return &ValidationError{Field: "title", Message: "must not be empty"}
	}
	if len([]rune(t.Title)) > MaxTitleLen {
		return &ValidationError{Field: "title", Message: fmt.Sprintf("must be at most %d characters", MaxTitleLen)}
	}
	if len([]rune(t.Description)) > MaxDescriptionLen {
		return &ValidationError{Field: "description", Message: fmt.Sprintf("must be at most %d characters", MaxDescriptionLen)}
	}
	if len(t.Tags) > MaxTags {
		return &ValidationError{Field: "tags", Message: fmt.Sprintf("at most %d tags allowed", MaxTags)}
	}
	for _, tag := range t.Tags {
		if len([]rune(tag)) > MaxTagLen {
			return &ValidationError{Field: "tags", Message: fmt.Sprintf("tag %q exceeds %d characters", tag, MaxTagLen)}
		}
	}
	if !t.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: "must be one of low, medium, high, urgent"}
	}
	if !t.Recurrence.Valid() {
		return &ValidationError{Field: "recurrence", Message: "must be one of none, daily, weekly, monthly"}
	}
	if t.DueDate != nil && !t.DueDate.After(now) {
		return &ValidationError{Field: "due_date", Message: "must be in the future"}
	}
	if t.ReminderOffset != nil {
		if t.DueDate == nil {
			return &ValidationError{Field: "reminder_offset", Message: "requires a due date"}
		}
		if !ValidReminderOffset(*t.ReminderOffset) {
			return &ValidationError{Field: "reminder_offset", Message: "expected format <n>{h|d|w}, e.g. \"1h\""}
		}
		d, ok := ReminderOffsetDuration(*t.ReminderOffset)
		if !ok {
			return &ValidationError{Field: "reminder_offset", Message: "offset must be a positive count"}
		}
		// A one-off task whose reminder would already have fired is
		// unschedulable. Recurring tasks are exempt: the next instance
		// gets a fresh due date.
		if t.Recurrence == RecurrenceNone {
			if fire := t.DueDate.Add(-d); !fire.After(now) {
				return fmt.Errorf("reminder would fire at %s: %w", fire.UTC().Format(time.RFC3339), ErrReminderInPast)
			}
		}
	}
	return nil
}

// IsComplete reports whether the task has been completed.
func (t *Task) IsComplete() bool { return t.Status == TaskStatusComplete }

// User is an account holder. Password handling lives in the auth service.
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
