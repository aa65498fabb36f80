package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/core/internal/domain/entities"
	"github.com/taskforge/core/internal/infrastructure/config"
	"github.com/taskforge/core/internal/infrastructure/logger"
	"github.com/taskforge/core/internal/infrastructure/metrics"
	"github.com/taskforge/core/internal/ports"
)

func chatConfig() config.ChatConfig {
	return config.ChatConfig{
		IntentConfidenceThreshold: 0.5,
		MaxAmbiguityAttempts:      2,
		ContextWindowSize:         20,
		ToolResponseTimeout:       30 * time.Second,
	}
}

func newChatFixture(t *testing.T) (*ChatService, *fakeConvRepo, *fakeTaskRepo, *fakeLimiter) {
	t.Helper()
	taskRepo := newFakeTaskRepo()
	convRepo := newFakeConvRepo()
	limiter := &fakeLimiter{}
	tasks := NewTaskService(taskRepo, &fakeBus{}, logger.Nop(), metrics.New(), "api")
	svc := NewChatService(convRepo, tasks, limiter, logger.Nop(), chatConfig())
	return svc, convRepo, taskRepo, limiter
}

func TestChatCreateTaskTurn(t *testing.T) {
	svc, convRepo, taskRepo, _ := newChatFixture(t)
	userID := uuid.New()

	resp, err := svc.HandleMessage(context.Background(), userID, ports.ChatRequest{
		Message: `add a task called "buy groceries"`,
	})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if resp.ConversationID == uuid.Nil {
		t.Fatal("conversation not created")
	}
	if !strings.Contains(resp.Response, "buy groceries") {
		t.Fatalf("response = %q, want created title echoed", resp.Response)
	}

	tasks, _, _ := taskRepo.List(context.Background(), userID, listAll())
	if len(tasks) != 1 || tasks[0].Title != "buy groceries" {
		t.Fatalf("tasks = %v, want the created task", tasks)
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ToolName != "add_task" {
		t.Fatalf("tool = %s", resp.ToolCalls[0].ToolName)
	}
	if resp.ToolCalls[0].Status != entities.ToolCallSuccess {
		t.Fatalf("status = %s", resp.ToolCalls[0].Status)
	}

	convRepo.mu.Lock()
	msgs := len(convRepo.messages)
	convRepo.mu.Unlock()
	if msgs != 2 {
		t.Fatalf("messages = %d, want user and assistant", msgs)
	}
}

func TestChatRateLimited(t *testing.T) {
	svc, convRepo, _, limiter := newChatFixture(t)
	limiter.deny = true

	_, err := svc.HandleMessage(context.Background(), uuid.New(), ports.ChatRequest{Message: "hello"})
	if !errors.Is(err, entities.ErrRateLimited) {
		t.Fatalf("err = %v, want rate limited", err)
	}
	convRepo.mu.Lock()
	conversations := len(convRepo.conversations)
	convRepo.mu.Unlock()
	if conversations != 0 {
		t.Fatal("rejected turn must not create a conversation")
	}
}

func TestChatToolFailureStillAnswers(t *testing.T) {
	svc, _, _, _ := newChatFixture(t)
	userID := uuid.New()

	// A concrete task id that does not exist forces the complete tool
	// to fail without a discovery round.
	missing := uuid.New()
	resp, err := svc.HandleMessage(context.Background(), userID, ports.ChatRequest{
		Message: "complete task " + missing.String(),
	})
	if err != nil {
		t.Fatalf("tool failure must not fail the turn: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Status != entities.ToolCallError {
		t.Fatalf("tool calls = %+v, want one errored call", resp.ToolCalls)
	}
	if resp.Response == "" {
		t.Fatal("reply must describe the failure")
	}
}

func TestChatDiscoveryResolvesByTitle(t *testing.T) {
	svc, _, taskRepo, _ := newChatFixture(t)
	userID := uuid.New()

	seedTask(t, taskRepo, userID, "pay rent")
	seedTask(t, taskRepo, userID, "call dentist")

	resp, err := svc.HandleMessage(context.Background(), userID, ports.ChatRequest{
		Message: `complete "pay rent"`,
	})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	// Discovery listing plus the resolved completion.
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("tool calls = %d, want list then complete", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ToolName != "list_tasks" || resp.ToolCalls[1].ToolName != "complete_task" {
		t.Fatalf("tools = %s, %s", resp.ToolCalls[0].ToolName, resp.ToolCalls[1].ToolName)
	}

	tasks, _, _ := taskRepo.List(context.Background(), userID, listAll())
	var done int
	for _, task := range tasks {
		if task.IsComplete() {
			done++
			if task.Title != "pay rent" {
				t.Fatalf("completed %q, want pay rent", task.Title)
			}
		}
	}
	if done != 1 {
		t.Fatalf("completed tasks = %d, want 1", done)
	}
}

func TestChatDiscoveryNoMatchAsksForClarification(t *testing.T) {
	svc, _, taskRepo, _ := newChatFixture(t)
	userID := uuid.New()
	seedTask(t, taskRepo, userID, "pay rent")

	resp, err := svc.HandleMessage(context.Background(), userID, ports.ChatRequest{
		Message: `delete "walk the dog"`,
	})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	// Only the discovery listing ran; no destructive call happened.
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ToolName != "list_tasks" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	tasks, _, _ := taskRepo.List(context.Background(), userID, listAll())
	if len(tasks) != 1 {
		t.Fatal("no task may be deleted on a miss")
	}
}

func TestChatVagueReferenceAsksForClarification(t *testing.T) {
	svc, _, _, _ := newChatFixture(t)

	resp, err := svc.HandleMessage(context.Background(), uuid.New(), ports.ChatRequest{
		Message: "complete that one",
	})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(resp.ToolCalls) != 0 {
		t.Fatalf("vague reference must not invoke tools, got %+v", resp.ToolCalls)
	}
	if resp.Response == "" {
		t.Fatal("clarification reply missing")
	}
}

func TestChatFollowUpResolvesFromHistory(t *testing.T) {
	svc, _, taskRepo, _ := newChatFixture(t)
	userID := uuid.New()
	seedTask(t, taskRepo, userID, "pay rent")

	first, err := svc.HandleMessage(context.Background(), userID, ports.ChatRequest{
		Message: "complete my task",
	})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if len(first.ToolCalls) != 0 {
		t.Fatalf("generic reference must clarify, got %+v", first.ToolCalls)
	}

	second, err := svc.HandleMessage(context.Background(), userID, ports.ChatRequest{
		Message:        `"pay rent"`,
		ConversationID: &first.ConversationID,
	})
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if len(second.ToolCalls) != 2 {
		t.Fatalf("tool calls = %+v, want list then complete", second.ToolCalls)
	}
	if second.ToolCalls[1].ToolName != "complete_task" {
		t.Fatalf("second tool = %s, want complete_task", second.ToolCalls[1].ToolName)
	}

	tasks, _, _ := taskRepo.List(context.Background(), userID, listAll())
	if len(tasks) != 1 || !tasks[0].IsComplete() {
		t.Fatal("follow-up must complete the referenced task")
	}
}

func TestChatReusesConversation(t *testing.T) {
	svc, _, _, _ := newChatFixture(t)
	userID := uuid.New()

	first, err := svc.HandleMessage(context.Background(), userID, ports.ChatRequest{Message: "show my tasks"})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	second, err := svc.HandleMessage(context.Background(), userID, ports.ChatRequest{
		Message:        "show completed tasks",
		ConversationID: &first.ConversationID,
	})
	if err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if second.ConversationID != first.ConversationID {
		t.Fatal("turn must stay in the given conversation")
	}
}

func TestChatConversationOwnershipEnforced(t *testing.T) {
	svc, _, _, _ := newChatFixture(t)

	first, err := svc.HandleMessage(context.Background(), uuid.New(), ports.ChatRequest{Message: "show my tasks"})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	_, err = svc.HandleMessage(context.Background(), uuid.New(), ports.ChatRequest{
		Message:        "hello",
		ConversationID: &first.ConversationID,
	})
	if !errors.Is(err, entities.ErrConversationNotFound) {
		t.Fatalf("err = %v, want conversation not found", err)
	}
}

func TestConversationTitleTruncation(t *testing.T) {
	long := strings.Repeat("remind me about the quarterly planning meeting ", 4)
	title := conversationTitle(long)
	if got := len([]rune(title)); got > 60 {
		t.Fatalf("title length = %d, want <= 60", got)
	}
	if !strings.HasSuffix(title, "...") {
		t.Fatalf("title = %q, want ellipsis", title)
	}
	if conversationTitle("  hi  there ") != "hi there" {
		t.Fatal("whitespace must collapse")
	}
	if conversationTitle("") != "New conversation" {
		t.Fatal("empty message needs a fallback title")
	}
}

func seedTask(t *testing.T, repo *fakeTaskRepo, userID uuid.UUID, title string) *entities.Task {
	t.Helper()
	now := time.Now().UTC()
	task := &entities.Task{
		ID:         uuid.New(),
		UserID:     userID,
		Title:      title,
		Status:     entities.TaskStatusIncomplete,
		Priority:   entities.PriorityMedium,
		Recurrence: entities.RecurrenceNone,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.Create(context.Background(), task); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return task
}
