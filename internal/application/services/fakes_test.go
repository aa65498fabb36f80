package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/core/internal/domain/entities"
	"github.com/taskforge/core/internal/domain/events"
	"github.com/taskforge/core/internal/ports"
)

type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*entities.Task
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[uuid.UUID]*entities.Task)}
}

func (r *fakeTaskRepo) Create(_ context.Context, task *entities.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *fakeTaskRepo) GetByID(_ context.Context, userID, id uuid.UUID) (*entities.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.UserID != userID {
		return nil, entities.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTaskRepo) Update(_ context.Context, task *entities.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[task.ID]
	if !ok || t.UserID != task.UserID {
		return entities.ErrTaskNotFound
	}
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *fakeTaskRepo) Delete(_ context.Context, userID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.UserID != userID {
		return entities.ErrTaskNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *fakeTaskRepo) List(_ context.Context, userID uuid.UUID, filter ports.TaskFilter) ([]*entities.Task, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Task
	for _, t := range r.tasks {
		if t.UserID != userID {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(filter.Search)) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func listAll() ports.TaskFilter {
	return ports.TaskFilter{Limit: 50}
}

type published struct {
	topic string
	env   *events.Envelope
}

type fakeBus struct {
	mu        sync.Mutex
	published []published
	failNext  bool
}

func (b *fakeBus) Publish(_ context.Context, topic string, env *events.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext {
		b.failNext = false
		return entities.ErrEventPublishFailed
	}
	b.published = append(b.published, published{topic: topic, env: env})
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string, string, ports.EventHandler) error {
	return nil
}

func (b *fakeBus) SubscribeBroadcast(context.Context, string, ports.EventHandler) error {
	return nil
}

func (b *fakeBus) last() *events.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.published) == 0 {
		return nil
	}
	return b.published[len(b.published)-1].env
}

func (b *fakeBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
	fns       map[string]func()
	cancelled []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		scheduled: make(map[string]time.Time),
		fns:       make(map[string]func()),
	}
}

func (s *fakeScheduler) ScheduleAt(jobID string, fireAt time.Time, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[jobID] = fireAt
	s.fns[jobID] = fn
	return nil
}

func (s *fakeScheduler) Cancel(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scheduled, jobID)
	delete(s.fns, jobID)
	s.cancelled = append(s.cancelled, jobID)
	return nil
}

func (s *fakeScheduler) fire(jobID string) {
	s.mu.Lock()
	fn := s.fns[jobID]
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type fakeConvRepo struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*entities.Conversation
	messages      []*entities.Message
	toolCalls     map[uuid.UUID]*entities.ToolCall
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{
		conversations: make(map[uuid.UUID]*entities.Conversation),
		toolCalls:     make(map[uuid.UUID]*entities.ToolCall),
	}
}

func (r *fakeConvRepo) CreateConversation(_ context.Context, conv *entities.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *conv
	r.conversations[conv.ID] = &cp
	return nil
}

func (r *fakeConvRepo) GetConversation(_ context.Context, userID, id uuid.UUID) (*entities.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok || c.UserID != userID {
		return nil, entities.ErrConversationNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeConvRepo) ListConversations(_ context.Context, userID uuid.UUID, _, _ int) ([]*entities.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Conversation
	for _, c := range r.conversations {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeConvRepo) TouchConversation(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conversations[id]; ok {
		c.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (r *fakeConvRepo) CreateMessage(_ context.Context, msg *entities.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *msg
	r.messages = append(r.messages, &cp)
	return nil
}

func (r *fakeConvRepo) ListMessages(_ context.Context, userID, conversationID uuid.UUID, _ int) ([]*entities.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Message
	for _, m := range r.messages {
		if m.ConversationID == conversationID && m.UserID == userID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *fakeConvRepo) CreateToolCall(_ context.Context, call *entities.ToolCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *call
	r.toolCalls[call.ID] = &cp
	return nil
}

func (r *fakeConvRepo) SettleToolCall(_ context.Context, id uuid.UUID, status entities.ToolCallStatus, output []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.toolCalls[id]; ok {
		c.Status = status
		c.ToolOutput = output
	}
	return nil
}

type fakeLimiter struct {
	deny bool
}

func (l *fakeLimiter) Allow(context.Context, string) (bool, error) {
	return !l.deny, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*entities.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*entities.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user *entities.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return entities.ErrDuplicateEmail
		}
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, entities.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*entities.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, entities.ErrUserNotFound
}
