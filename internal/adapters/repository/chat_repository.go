package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/taskforge/core/internal/domain/entities"
	"github.com/taskforge/core/internal/ports"
)

// ConversationRepositoryImpl implements the ConversationRepository
// interface. Message and tool-call reads join back to the conversation
// owner so a foreign conversation id behaves like a missing one.
type ConversationRepositoryImpl struct {
	db *sqlx.DB
}

// NewConversationRepository creates a new conversation repository.
func NewConversationRepository(db *sqlx.DB) ports.ConversationRepository {
	return &ConversationRepositoryImpl{db: db}
}

func (r *ConversationRepositoryImpl) CreateConversation(ctx context.Context, conv *entities.Conversation) error {
	query := `
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}

	_, err := r.db.ExecContext(ctx, query,
		conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepositoryImpl) GetConversation(ctx context.Context, userID, id uuid.UUID) (*entities.Conversation, error) {
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND user_id = $2`

	var conv entities.Conversation
	err := r.db.GetContext(ctx, &conv, query, id, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, entities.ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

func (r *ConversationRepositoryImpl) ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Conversation, error) {
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3`

	conversations := make([]*entities.Conversation, 0)
	if err := r.db.SelectContext(ctx, &conversations, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return conversations, nil
}

func (r *ConversationRepositoryImpl) TouchConversation(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepositoryImpl) CreateMessage(ctx context.Context, msg *entities.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, user_id, role, content, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}

	metadata := msg.Metadata
	if metadata == nil {
		metadata = []byte("{}")
	}

	_, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.ConversationID, msg.UserID, msg.Role, msg.Content,
		metadata, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// ListMessages returns the newest limit messages in chronological order.
func (r *ConversationRepositoryImpl) ListMessages(ctx context.Context, userID, conversationID uuid.UUID, limit int) ([]*entities.Message, error) {
	query := `
		SELECT * FROM (
			SELECT m.id, m.conversation_id, m.user_id, m.role, m.content, m.metadata, m.timestamp
			FROM messages m
			JOIN conversations c ON c.id = m.conversation_id
			WHERE m.conversation_id = $1 AND c.user_id = $2
			ORDER BY m.timestamp DESC
			LIMIT $3
		) recent
		ORDER BY timestamp ASC`

	messages := make([]*entities.Message, 0)
	if err := r.db.SelectContext(ctx, &messages, query, conversationID, userID, limit); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func (r *ConversationRepositoryImpl) CreateToolCall(ctx context.Context, call *entities.ToolCall) error {
	query := `
		INSERT INTO tool_calls (id, conversation_id, message_id, tool_name, tool_input, tool_output, status, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}

	input := call.ToolInput
	if input == nil {
		input = []byte("{}")
	}
	output := call.ToolOutput
	if output == nil {
		output = []byte("null")
	}

	_, err := r.db.ExecContext(ctx, query,
		call.ID, call.ConversationID, call.MessageID, call.ToolName,
		input, output, call.Status, call.Timestamp)
	if err != nil {
		return fmt.Errorf("create tool call: %w", err)
	}
	return nil
}

func (r *ConversationRepositoryImpl) SettleToolCall(ctx context.Context, id uuid.UUID, status entities.ToolCallStatus, output []byte) error {
	if output == nil {
		output = []byte("null")
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE tool_calls SET status = $2, tool_output = $3 WHERE id = $1`,
		id, status, output)
	if err != nil {
		return fmt.Errorf("settle tool call: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("settle tool call: no row for %s", id)
	}
	return nil
}
