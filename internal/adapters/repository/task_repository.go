package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/taskforge/core/internal/domain/entities"
	"github.com/taskforge/core/internal/ports"
)

// TaskRepositoryImpl implements the TaskRepository interface over
// Postgres. Every query carries user_id so tenant scoping happens in
// SQL, not in the caller.
type TaskRepositoryImpl struct {
	db *sqlx.DB
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *sqlx.DB) ports.TaskRepository {
	return &TaskRepositoryImpl{db: db}
}

func (r *TaskRepositoryImpl) Create(ctx context.Context, task *entities.Task) error {
	query := `
		INSERT INTO tasks (id, user_id, title, description, status, priority, tags,
			due_date, recurrence, reminder_offset, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}

	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.UserID, task.Title, task.Description, task.Status,
		task.Priority, task.Tags, task.DueDate, task.Recurrence,
		task.ReminderOffset, task.CreatedAt, task.UpdatedAt, task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepositoryImpl) GetByID(ctx context.Context, userID, id uuid.UUID) (*entities.Task, error) {
	query := `
		SELECT id, user_id, title, description, status, priority, tags,
			due_date, recurrence, reminder_offset, created_at, updated_at, completed_at
		FROM tasks
		WHERE id = $1 AND user_id = $2`

	var task entities.Task
	err := r.db.GetContext(ctx, &task, query, id, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, entities.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task by id: %w", err)
	}
	return &task, nil
}

func (r *TaskRepositoryImpl) Update(ctx context.Context, task *entities.Task) error {
	query := `
		UPDATE tasks
		SET title = $3, description = $4, status = $5, priority = $6, tags = $7,
			due_date = $8, recurrence = $9, reminder_offset = $10,
			updated_at = $11, completed_at = $12
		WHERE id = $1 AND user_id = $2`

	result, err := r.db.ExecContext(ctx, query,
		task.ID, task.UserID, task.Title, task.Description, task.Status,
		task.Priority, task.Tags, task.DueDate, task.Recurrence,
		task.ReminderOffset, task.UpdatedAt, task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return entities.ErrTaskNotFound
	}
	return nil
}

func (r *TaskRepositoryImpl) Delete(ctx context.Context, userID, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return entities.ErrTaskNotFound
	}
	return nil
}

// List applies the filter algebra: AND-combined predicates, superset
// tag matching, relative due windows, full-text search. Search results
// order by relevance first; otherwise the requested sort applies with
// NULL due dates last.
func (r *TaskRepositoryImpl) List(ctx context.Context, userID uuid.UUID, filter ports.TaskFilter) ([]*entities.Task, int64, error) {
	where := []string{"user_id = $1"}
	args := []interface{}{userID}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != nil {
		where = append(where, "status = "+arg(*filter.Status))
	}
	if filter.Priority != nil {
		where = append(where, "priority = "+arg(*filter.Priority))
	}
	if len(filter.Tags) > 0 {
		// tags JSONB must contain every requested tag
		where = append(where, "tags @> "+arg(entities.Tags(filter.Tags))+"::jsonb")
	}
	if filter.DueWindow != nil {
		switch *filter.DueWindow {
		case ports.DueOverdue:
			where = append(where, "due_date < NOW()", "status = 'incomplete'")
		case ports.DueToday:
			where = append(where, "due_date >= date_trunc('day', NOW())",
				"due_date < date_trunc('day', NOW()) + INTERVAL '1 day'")
		case ports.DueThisWeek:
			where = append(where, "due_date >= date_trunc('week', NOW())",
				"due_date < date_trunc('week', NOW()) + INTERVAL '1 week'")
		case ports.DueThisMonth:
			where = append(where, "due_date >= date_trunc('month', NOW())",
				"due_date < date_trunc('month', NOW()) + INTERVAL '1 month'")
		}
	}

	searching := strings.TrimSpace(filter.Search) != ""
	rankCol := ""
	if searching {
		q := arg(filter.Search)
		where = append(where, "search_vector @@ plainto_tsquery('english', "+q+")")
		rankCol = ", ts_rank(search_vector, plainto_tsquery('english', " + q + ")) AS rank"
	}

	whereClause := strings.Join(where, " AND ")

	var total int64
	countQuery := "SELECT COUNT(*) FROM tasks WHERE " + whereClause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	orderBy := buildOrderBy(filter, searching)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, title, description, status, priority, tags,
			due_date, recurrence, reminder_offset, created_at, updated_at, completed_at%s
		FROM tasks
		WHERE %s
		ORDER BY %s
		LIMIT %s OFFSET %s`,
		rankCol, whereClause, orderBy, arg(limit), arg(offset))

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*entities.Task, 0)
	for rows.Next() {
		var t taskRow
		if err := rows.StructScan(&t); err != nil {
			return nil, 0, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, &t.Task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, total, nil
}

// taskRow absorbs the optional rank column produced by search queries.
type taskRow struct {
	entities.Task
	Rank *float64 `db:"rank"`
}

// sortColumns whitelists sort keys; anything else falls back to
// created_at.
var sortColumns = map[string]string{
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"completed_at": "completed_at",
	"due_date":     "due_date",
	"status":       "status",
}

func buildOrderBy(filter ports.TaskFilter, searching bool) string {
	dir := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		dir = "ASC"
	}

	var key string
	switch {
	case filter.SortBy == "priority":
		// Canonical severity order, not lexicographic.
		key = "CASE priority WHEN 'low' THEN 1 WHEN 'medium' THEN 2 WHEN 'high' THEN 3 WHEN 'urgent' THEN 4 END"
	case sortColumns[filter.SortBy] != "":
		key = sortColumns[filter.SortBy]
	default:
		key = "created_at"
	}

	clause := fmt.Sprintf("%s %s NULLS LAST", key, dir)
	if searching {
		clause = "rank DESC, " + clause
	}
	return clause
}
