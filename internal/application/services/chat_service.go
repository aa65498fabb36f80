package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/core/internal/agent"
	"github.com/taskforge/core/internal/domain/entities"
	"github.com/taskforge/core/internal/infrastructure/config"
	"github.com/taskforge/core/internal/infrastructure/logger"
	"github.com/taskforge/core/internal/ports"
)

// ChatService runs the chat turn cycle: rate limit, transcript
// persistence, shell planning, tool execution, response rendering. A
// failed tool call settles as an error and becomes part of the reply;
// it never fails the turn.
type ChatService struct {
	convRepo ports.ConversationRepository
	tasks    *TaskService
	shell    *agent.Shell
	limiter  ports.RateLimiter
	logger   *logger.Logger
	cfg      config.ChatConfig
}

// NewChatService creates a new chat service.
func NewChatService(convRepo ports.ConversationRepository, tasks *TaskService, limiter ports.RateLimiter, log *logger.Logger, cfg config.ChatConfig) *ChatService {
	return &ChatService{
		convRepo: convRepo,
		tasks:    tasks,
		shell:    agent.NewShell(cfg.IntentConfidenceThreshold, cfg.ResponseTemplates),
		limiter:  limiter,
		logger:   log.WithComponent("chat"),
		cfg:      cfg,
	}
}

// HandleMessage processes one chat turn for userID.
func (s *ChatService) HandleMessage(ctx context.Context, userID uuid.UUID, req ports.ChatRequest) (*ports.ChatResponse, error) {
	allowed, err := s.limiter.Allow(ctx, "chat:"+userID.String())
	if err != nil {
		s.logger.WithError(err).Warnw("Rate limiter unavailable, allowing request", "user_id", userID)
	} else if !allowed {
		return nil, entities.ErrRateLimited
	}

	conv, err := s.resolveConversation(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	// The window is read before the current message is persisted so the
	// planner sees prior turns only.
	window, err := s.convRepo.ListMessages(ctx, userID, conv.ID, s.cfg.ContextWindowSize)
	if err != nil {
		s.logger.WithError(err).Warnw("Failed to load context window", "conversation_id", conv.ID)
	}
	history := make([]agent.Turn, 0, len(window))
	for _, m := range window {
		history = append(history, agent.Turn{Role: string(m.Role), Content: m.Content})
	}

	now := time.Now().UTC()
	userMsg := &entities.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		UserID:         userID,
		Role:           entities.RoleUser,
		Content:        req.Message,
		Timestamp:      now,
	}
	if err := s.convRepo.CreateMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	plan := s.shell.Plan(req.Message, history)
	s.logger.Debugw("Planned chat turn",
		"conversation_id", conv.ID,
		"intent", plan.Intent,
		"confidence", plan.Confidence,
		"action", plan.Action)

	var (
		results []agent.ToolResult
		reply   string
	)

	switch plan.Action {
	case agent.ActionClarify:
		reply = s.shell.Clarify(plan, nil)

	case agent.ActionInvoke:
		res := s.execute(ctx, userID, conv.ID, *plan.Invocation)
		results = append(results, res)
		reply = s.shell.Respond(plan, results)

	case agent.ActionDiscover:
		listing := s.execute(ctx, userID, conv.ID, *plan.Invocation)
		results = append(results, listing)
		if listing.Err != nil {
			reply = s.shell.Respond(plan, results)
			break
		}
		inv, ambiguity, matches := s.shell.Resolve(plan, listing.Tasks)
		if inv == nil {
			plan.Ambiguity = ambiguity
			reply = s.shell.Clarify(plan, matches)
			break
		}
		res := s.execute(ctx, userID, conv.ID, *inv)
		results = append(results, res)
		reply = s.shell.Respond(plan, results)
	}

	meta, _ := json.Marshal(map[string]interface{}{
		"intent":     plan.Intent,
		"confidence": plan.Confidence,
	})
	assistantMsg := &entities.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		UserID:         userID,
		Role:           entities.RoleAssistant,
		Content:        reply,
		Metadata:       meta,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.convRepo.CreateMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}

	if err := s.convRepo.TouchConversation(ctx, conv.ID); err != nil {
		s.logger.WithError(err).Warnw("Failed to touch conversation", "conversation_id", conv.ID)
	}

	return &ports.ChatResponse{
		ConversationID: conv.ID,
		Response:       reply,
		ToolCalls:      toChatToolCalls(results),
	}, nil
}

func (s *ChatService) resolveConversation(ctx context.Context, userID uuid.UUID, req ports.ChatRequest) (*entities.Conversation, error) {
	if req.ConversationID != nil {
		return s.convRepo.GetConversation(ctx, userID, *req.ConversationID)
	}

	now := time.Now().UTC()
	conv := &entities.Conversation{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     conversationTitle(req.Message),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.convRepo.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// conversationTitle derives a title from the opening message.
func conversationTitle(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	if len([]rune(title)) > 60 {
		title = string([]rune(title)[:57]) + "..."
	}
	if title == "" {
		title = "New conversation"
	}
	return title
}

// execute runs one invocation against the task store, recording it in
// the transcript as pending and settling it with the outcome.
func (s *ChatService) execute(ctx context.Context, userID, conversationID uuid.UUID, inv agent.Invocation) agent.ToolResult {
	res := agent.ToolResult{Invocation: inv}

	input, _ := json.Marshal(inv.Args())
	call := &entities.ToolCall{
		ID:             uuid.New(),
		ConversationID: conversationID,
		ToolName:       inv.Name(),
		ToolInput:      input,
		Status:         entities.ToolCallPending,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.convRepo.CreateToolCall(ctx, call); err != nil {
		s.logger.WithError(err).Warnw("Failed to record tool call", "tool", inv.Name())
	}

	toolCtx, cancel := context.WithTimeout(ctx, s.cfg.ToolResponseTimeout)
	defer cancel()

	s.dispatch(toolCtx, userID, inv, &res)

	status := entities.ToolCallSuccess
	var output []byte
	if res.Err != nil {
		status = entities.ToolCallError
		output, _ = json.Marshal(map[string]string{"error": res.Err.Error()})
	} else {
		output, _ = json.Marshal(toolOutput(res))
	}
	if err := s.convRepo.SettleToolCall(ctx, call.ID, status, output); err != nil {
		s.logger.WithError(err).Warnw("Failed to settle tool call", "tool_call_id", call.ID)
	}

	return res
}

func (s *ChatService) dispatch(ctx context.Context, userID uuid.UUID, inv agent.Invocation, res *agent.ToolResult) {
	switch {
	case inv.AddTask != nil:
		a := inv.AddTask
		result, err := s.tasks.CreateTask(ctx, userID, ports.CreateTaskRequest{
			Title:          a.Title,
			Description:    a.Description,
			Priority:       a.Priority,
			Tags:           a.Tags,
			DueDate:        a.DueDate,
			Recurrence:     a.Recurrence,
			ReminderOffset: a.ReminderOffset,
		})
		if err != nil {
			res.Err = err
			return
		}
		res.Task, res.Warning = result.Task, result.Warning

	case inv.ListTasks != nil:
		filter := listArgsToFilter(inv.ListTasks)
		tasks, total, err := s.tasks.ListTasks(ctx, userID, filter)
		if err != nil {
			res.Err = err
			return
		}
		res.Tasks, res.Total = tasks, total

	case inv.CompleteTask != nil:
		result, err := s.tasks.CompleteTask(ctx, userID, inv.CompleteTask.TaskID)
		if err != nil {
			res.Err = err
			return
		}
		res.Task, res.Warning = result.Task, result.Warning

	case inv.DeleteTask != nil:
		result, err := s.tasks.DeleteTask(ctx, userID, inv.DeleteTask.TaskID)
		if err != nil {
			res.Err = err
			return
		}
		res.Task, res.Warning = result.Task, result.Warning

	case inv.UpdateTask != nil:
		a := inv.UpdateTask
		result, err := s.tasks.UpdateTask(ctx, userID, a.TaskID, ports.UpdateTaskRequest{
			Title:          a.Title,
			Description:    a.Description,
			Status:         a.Status,
			Priority:       a.Priority,
			Tags:           a.Tags,
			DueDate:        a.DueDate,
			Recurrence:     a.Recurrence,
			ReminderOffset: a.ReminderOffset,
		})
		if err != nil {
			res.Err = err
			return
		}
		res.Task, res.Warning = result.Task, result.Warning

	default:
		res.Err = fmt.Errorf("empty tool invocation")
	}
}

func listArgsToFilter(a *agent.ListTasksArgs) ports.TaskFilter {
	filter := ports.TaskFilter{
		Priority:  a.Priority,
		Tags:      a.Tags,
		Search:    a.Search,
		SortBy:    a.SortBy,
		SortOrder: a.SortOrder,
		Limit:     a.Limit,
		Offset:    a.Offset,
	}
	switch a.StatusFilter {
	case "completed":
		st := entities.TaskStatusComplete
		filter.Status = &st
	case "pending":
		st := entities.TaskStatusIncomplete
		filter.Status = &st
	}
	if a.DueWindow != "" {
		w := ports.DueWindow(a.DueWindow)
		if w.Valid() {
			filter.DueWindow = &w
		}
	}
	return filter
}

func toolOutput(res agent.ToolResult) interface{} {
	if res.Tasks != nil {
		return map[string]interface{}{"tasks": res.Tasks, "total": res.Total}
	}
	if res.Task != nil {
		return res.Task
	}
	return map[string]string{"status": "ok"}
}

func toChatToolCalls(results []agent.ToolResult) []ports.ChatToolCall {
	out := make([]ports.ChatToolCall, 0, len(results))
	for _, r := range results {
		call := ports.ChatToolCall{
			ToolName: r.Invocation.Name(),
			Input:    r.Invocation.Args(),
			Status:   entities.ToolCallSuccess,
		}
		if r.Err != nil {
			call.Status = entities.ToolCallError
			call.Output = map[string]string{"error": r.Err.Error()}
		} else {
			call.Output = toolOutput(r)
		}
		out = append(out, call)
	}
	return out
}

// ListConversations returns a user's conversations, newest first.
func (s *ChatService) ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.convRepo.ListConversations(ctx, userID, limit, offset)
}

// ListMessages returns a conversation's transcript, oldest first.
func (s *ChatService) ListMessages(ctx context.Context, userID, conversationID uuid.UUID, limit int) ([]*entities.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.convRepo.ListMessages(ctx, userID, conversationID, limit)
}
