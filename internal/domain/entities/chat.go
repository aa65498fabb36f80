package entities

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

type ToolCallStatus string

const (
	ToolCallPending ToolCallStatus = "pending"
	ToolCallSuccess ToolCallStatus = "success"
	ToolCallError   ToolCallStatus = "error"
)

// Conversation is an ordered chat transcript owned by one user.
// Messages and tool calls reference it by id only; the aggregate keeps
// no back-pointers.
type Conversation struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Message is one turn in a conversation. The message shares its
// conversation's user_id; the repositories enforce that on read.
type Message struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	ConversationID uuid.UUID       `json:"conversation_id" db:"conversation_id"`
	UserID         uuid.UUID       `json:"user_id" db:"user_id"`
	Role           MessageRole     `json:"role" db:"role"`
	Content        string          `json:"content" db:"content"`
	Metadata       json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	Timestamp      time.Time       `json:"timestamp" db:"timestamp"`
}

// ToolCall records one side-effectful action taken by the reasoning
// shell during a chat turn. Created pending, settled exactly once.
type ToolCall struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	ConversationID uuid.UUID       `json:"conversation_id" db:"conversation_id"`
	MessageID      *uuid.UUID      `json:"message_id" db:"message_id"`
	ToolName       string          `json:"tool_name" db:"tool_name"`
	ToolInput      json.RawMessage `json:"tool_input" db:"tool_input"`
	ToolOutput     json.RawMessage `json:"tool_output" db:"tool_output"`
	Status         ToolCallStatus  `json:"status" db:"status"`
	Timestamp      time.Time       `json:"timestamp" db:"timestamp"`
}
