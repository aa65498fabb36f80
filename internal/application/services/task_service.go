package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/core/internal/domain/entities"
	"github.com/taskforge/core/internal/domain/events"
	"github.com/taskforge/core/internal/infrastructure/logger"
	"github.com/taskforge/core/internal/infrastructure/metrics"
	"github.com/taskforge/core/internal/ports"
)

// SyncWarning is returned as TaskResult.Warning when a store mutation
// succeeded but its event could not be published. Live views may lag
// until the next successful publish.
const SyncWarning = "saved, but change propagation is delayed"

// TaskService owns the task lifecycle: validated mutations against the
// store, each followed by an envelope on the task topic. The store is
// the source of truth; publish failures degrade to a warning instead of
// rolling back.
type TaskService struct {
	taskRepo ports.TaskRepository
	bus      ports.EventBus
	logger   *logger.Logger
	metrics  *metrics.Metrics
	source   string
}

// NewTaskService creates a new task service.
func NewTaskService(taskRepo ports.TaskRepository, bus ports.EventBus, log *logger.Logger, m *metrics.Metrics, source string) *TaskService {
	return &TaskService{
		taskRepo: taskRepo,
		bus:      bus,
		logger:   log.WithComponent("tasks"),
		metrics:  m,
		source:   source,
	}
}

// CreateTask validates and persists a new task, then publishes
// task.created.
func (s *TaskService) CreateTask(ctx context.Context, userID uuid.UUID, req ports.CreateTaskRequest) (*ports.TaskResult, error) {
	now := time.Now().UTC()

	task := &entities.Task{
		ID:             uuid.New(),
		UserID:         userID,
		Title:          req.Title,
		Description:    req.Description,
		Status:         entities.TaskStatusIncomplete,
		Priority:       entities.PriorityMedium,
		Tags:           entities.Tags(req.Tags).Normalize(),
		DueDate:        req.DueDate,
		Recurrence:     entities.RecurrenceNone,
		ReminderOffset: req.ReminderOffset,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.Recurrence != nil {
		task.Recurrence = *req.Recurrence
	}

	if err := task.Validate(now); err != nil {
		return nil, err
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Infow("Task created", "task_id", task.ID, "user_id", userID)

	warning := s.publish(ctx, events.TaskCreated, userID, events.TaskCreatedPayload{
		Task:      events.Snapshot(task),
		CreatedAt: task.CreatedAt,
	})

	return &ports.TaskResult{Task: task, Warning: warning}, nil
}

// GetTask fetches one task scoped to its owner.
func (s *TaskService) GetTask(ctx context.Context, userID, taskID uuid.UUID) (*entities.Task, error) {
	return s.taskRepo.GetByID(ctx, userID, taskID)
}

// ListTasks runs a filtered, sorted, paginated listing.
func (s *TaskService) ListTasks(ctx context.Context, userID uuid.UUID, filter ports.TaskFilter) ([]*entities.Task, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.taskRepo.List(ctx, userID, filter)
}

// UpdateTask applies a partial patch and publishes task.updated with
// just the changed fields. Completing through a status patch routes to
// CompleteTask so recurrence semantics hold.
func (s *TaskService) UpdateTask(ctx context.Context, userID, taskID uuid.UUID, req ports.UpdateTaskRequest) (*ports.TaskResult, error) {
	if req.Empty() {
		return nil, &entities.ValidationError{Field: "body", Message: "no fields to update"}
	}

	if req.Status != nil && *req.Status == entities.TaskStatusComplete {
		return s.CompleteTask(ctx, userID, taskID)
	}

	task, err := s.taskRepo.GetByID(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	changed := map[string]interface{}{}

	if req.Title != nil && *req.Title != task.Title {
		task.Title = *req.Title
		changed["title"] = task.Title
	}
	if req.Description != nil && *req.Description != task.Description {
		task.Description = *req.Description
		changed["description"] = task.Description
	}
	if req.Status != nil && *req.Status != task.Status {
		task.Status = *req.Status
		task.CompletedAt = nil
		changed["status"] = task.Status
	}
	if req.Priority != nil && *req.Priority != task.Priority {
		task.Priority = *req.Priority
		changed["priority"] = task.Priority
	}
	if req.Tags != nil {
		normalized := entities.Tags(*req.Tags).Normalize()
		task.Tags = normalized
		changed["tags"] = normalized
	}
	if req.ClearDueDate {
		task.DueDate = nil
		changed["due_date"] = nil
	} else if req.DueDate != nil {
		task.DueDate = req.DueDate
		changed["due_date"] = req.DueDate
	}
	if req.Recurrence != nil && *req.Recurrence != task.Recurrence {
		task.Recurrence = *req.Recurrence
		changed["recurrence"] = task.Recurrence
	}
	if req.ReminderOffset != nil {
		task.ReminderOffset = req.ReminderOffset
		changed["reminder_offset"] = req.ReminderOffset
	}

	if len(changed) == 0 {
		return &ports.TaskResult{Task: task}, nil
	}

	task.UpdatedAt = now
	if err := task.Validate(now); err != nil {
		return nil, err
	}

	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	s.logger.Infow("Task updated", "task_id", task.ID, "user_id", userID, "fields", len(changed))

	warning := s.publish(ctx, events.TaskUpdated, userID, events.TaskUpdatedPayload{
		TaskID:        task.ID,
		UpdatedFields: changed,
		UpdatedAt:     task.UpdatedAt,
	})

	return &ports.TaskResult{Task: task, Warning: warning}, nil
}

// CompleteTask marks a task complete. Completing an already-complete
// task is a no-op that publishes nothing. For recurring tasks the
// published payload carries the full pre-completion snapshot so the
// recurrence processor can materialize the next instance.
func (s *TaskService) CompleteTask(ctx context.Context, userID, taskID uuid.UUID) (*ports.TaskResult, error) {
	task, err := s.taskRepo.GetByID(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	if task.IsComplete() {
		return &ports.TaskResult{Task: task}, nil
	}

	snapshot := events.Snapshot(task)

	now := time.Now().UTC()
	task.Status = entities.TaskStatusComplete
	task.CompletedAt = &now
	task.UpdatedAt = now

	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}

	s.logger.Infow("Task completed", "task_id", task.ID, "user_id", userID, "recurrence", task.Recurrence)

	payload := events.TaskCompletedPayload{
		TaskID:      task.ID,
		CompletedAt: now,
		Recurrence:  string(task.Recurrence),
	}
	if task.Recurrence != entities.RecurrenceNone {
		payload.OriginalTask = &snapshot
	}

	warning := s.publish(ctx, events.TaskCompleted, userID, payload)

	return &ports.TaskResult{Task: task, Warning: warning}, nil
}

// DeleteTask removes a task and publishes task.deleted.
func (s *TaskService) DeleteTask(ctx context.Context, userID, taskID uuid.UUID) (*ports.TaskResult, error) {
	task, err := s.taskRepo.GetByID(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	if err := s.taskRepo.Delete(ctx, userID, taskID); err != nil {
		return nil, fmt.Errorf("failed to delete task: %w", err)
	}

	s.logger.Infow("Task deleted", "task_id", taskID, "user_id", userID)

	warning := s.publish(ctx, events.TaskDeleted, userID, events.TaskDeletedPayload{
		TaskID:    taskID,
		DeletedAt: time.Now().UTC(),
	})

	return &ports.TaskResult{Task: task, Warning: warning}, nil
}

// publish emits one envelope on the task topic. On failure it logs,
// counts, and returns the partial-success warning; the store mutation
// stands.
func (s *TaskService) publish(ctx context.Context, eventType events.Type, userID uuid.UUID, payload interface{}) string {
	env, err := events.New(eventType, userID, s.source, payload)
	if err == nil {
		err = s.bus.Publish(ctx, events.TopicTaskEvents, env)
	}
	if err != nil {
		s.metrics.EventPublishFailures.WithLabelValues(events.TopicTaskEvents).Inc()
		s.logger.WithError(err).Errorw("Event publish failed", "event_type", eventType, "user_id", userID)
		return SyncWarning
	}
	s.metrics.EventsPublished.WithLabelValues(events.TopicTaskEvents, string(eventType)).Inc()
	return ""
}
