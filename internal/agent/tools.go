package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/core/internal/domain/entities"
)

// Tool argument records. Each tool has one explicit options struct with
// its defaults baked in; the chat cycle executes these against the task
// store on the caller's behalf.

// AddTaskArgs creates a task. Title is the only required field.
type AddTaskArgs struct {
	Title          string               `json:"title"`
	Description    string               `json:"description,omitempty"`
	Priority       *entities.Priority   `json:"priority,omitempty"`
	Tags           []string             `json:"tags,omitempty"`
	DueDate        *time.Time           `json:"due_date,omitempty"`
	ReminderOffset *string              `json:"reminder_offset,omitempty"`
	Recurrence     *entities.Recurrence `json:"recurrence,omitempty"`
}

// ListTasksArgs queries the store. Zero values mean "no filter".
type ListTasksArgs struct {
	StatusFilter string             `json:"status_filter,omitempty"` // all, completed, pending
	Priority     *entities.Priority `json:"priority,omitempty"`
	Tags         []string           `json:"tags,omitempty"`
	DueWindow    string             `json:"due_date_window,omitempty"`
	Search       string             `json:"search,omitempty"`
	SortBy       string             `json:"sort_by,omitempty"`
	SortOrder    string             `json:"sort_order,omitempty"`
	Limit        int                `json:"limit,omitempty"`
	Offset       int                `json:"offset,omitempty"`
}

// NewListTasksArgs returns the default listing: everything, most recent
// first, first page.
func NewListTasksArgs() *ListTasksArgs {
	return &ListTasksArgs{
		StatusFilter: "all",
		SortBy:       "created_at",
		SortOrder:    "desc",
		Limit:        50,
	}
}

// CompleteTaskArgs marks one task complete.
type CompleteTaskArgs struct {
	TaskID uuid.UUID `json:"task_id"`
}

// DeleteTaskArgs removes one task.
type DeleteTaskArgs struct {
	TaskID uuid.UUID `json:"task_id"`
}

// UpdateTaskArgs patches one task; at least one mutable field must be set.
type UpdateTaskArgs struct {
	TaskID         uuid.UUID            `json:"task_id"`
	Title          *string              `json:"title,omitempty"`
	Description    *string              `json:"description,omitempty"`
	Priority       *entities.Priority   `json:"priority,omitempty"`
	Tags           *[]string            `json:"tags,omitempty"`
	DueDate        *time.Time           `json:"due_date,omitempty"`
	Recurrence     *entities.Recurrence `json:"recurrence,omitempty"`
	ReminderOffset *string              `json:"reminder_offset,omitempty"`
	Status         *entities.TaskStatus `json:"status,omitempty"`
}

// HasMutation reports whether the patch carries at least one field.
func (a *UpdateTaskArgs) HasMutation() bool {
	return a.Title != nil || a.Description != nil || a.Priority != nil ||
		a.Tags != nil || a.DueDate != nil || a.Recurrence != nil ||
		a.ReminderOffset != nil || a.Status != nil
}

// Invocation is the tagged union over the five-tool surface. Exactly
// one variant is set; the tool name derives from the set variant rather
// than from a runtime string.
type Invocation struct {
	AddTask      *AddTaskArgs      `json:"add_task,omitempty"`
	ListTasks    *ListTasksArgs    `json:"list_tasks,omitempty"`
	CompleteTask *CompleteTaskArgs `json:"complete_task,omitempty"`
	DeleteTask   *DeleteTaskArgs   `json:"delete_task,omitempty"`
	UpdateTask   *UpdateTaskArgs   `json:"update_task,omitempty"`
}

// Name returns the wire name of the set variant.
func (i Invocation) Name() string {
	switch {
	case i.AddTask != nil:
		return "add_task"
	case i.ListTasks != nil:
		return "list_tasks"
	case i.CompleteTask != nil:
		return "complete_task"
	case i.DeleteTask != nil:
		return "delete_task"
	case i.UpdateTask != nil:
		return "update_task"
	}
	return ""
}

// Args returns the set variant's argument record.
func (i Invocation) Args() interface{} {
	switch {
	case i.AddTask != nil:
		return i.AddTask
	case i.ListTasks != nil:
		return i.ListTasks
	case i.CompleteTask != nil:
		return i.CompleteTask
	case i.DeleteTask != nil:
		return i.DeleteTask
	case i.UpdateTask != nil:
		return i.UpdateTask
	}
	return nil
}

// ToolResult is the settled outcome of one invocation.
type ToolResult struct {
	Invocation Invocation
	Err        error
	Task       *entities.Task
	Tasks      []*entities.Task
	Total      int64
	Warning    string
}
