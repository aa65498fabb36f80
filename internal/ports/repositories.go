package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/taskforge/core/internal/domain/entities"
)

// DueWindow narrows a task list to a date range relative to now.
type DueWindow string

const (
	DueOverdue   DueWindow = "overdue"
	DueToday     DueWindow = "today"
	DueThisWeek  DueWindow = "this_week"
	DueThisMonth DueWindow = "this_month"
)

func (w DueWindow) Valid() bool {
	switch w {
	case DueOverdue, DueToday, DueThisWeek, DueThisMonth:
		return true
	}
	return false
}

// TaskFilter is the composable list query. Filters are
// AND-combined; Search, when present, dominates ordering by relevance.
type TaskFilter struct {
	Status    *entities.TaskStatus
	Priority  *entities.Priority
	Tags      []string // task tags must be a superset
	DueWindow *DueWindow
	Search    string
	SortBy    string // created_at, updated_at, completed_at, due_date, priority, status
	SortOrder string // asc, desc
	Limit     int
	Offset    int
}

// TaskRepository is the persistence port for tasks. Every operation is
// scoped to a user_id; a lookup for another user's task reports not found.
type TaskRepository interface {
	Create(ctx context.Context, task *entities.Task) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*entities.Task, error)
	Update(ctx context.Context, task *entities.Task) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, filter TaskFilter) ([]*entities.Task, int64, error)
}

// UserRepository is the persistence port for accounts.
type UserRepository interface {
	Create(ctx context.Context, user *entities.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.User, error)
	GetByEmail(ctx context.Context, email string) (*entities.User, error)
}

// ConversationRepository persists transcripts: conversations, their
// messages, and the tool calls recorded during chat turns.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, conv *entities.Conversation) error
	GetConversation(ctx context.Context, userID, id uuid.UUID) (*entities.Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Conversation, error)
	TouchConversation(ctx context.Context, id uuid.UUID) error

	CreateMessage(ctx context.Context, msg *entities.Message) error
	ListMessages(ctx context.Context, userID, conversationID uuid.UUID, limit int) ([]*entities.Message, error)

	CreateToolCall(ctx context.Context, call *entities.ToolCall) error
	SettleToolCall(ctx context.Context, id uuid.UUID, status entities.ToolCallStatus, output []byte) error
}
