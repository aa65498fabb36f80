package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/taskforge/core/internal/application/services"
	"github.com/taskforge/core/internal/domain/entities"
	"github.com/taskforge/core/internal/infrastructure/logger"
	"github.com/taskforge/core/internal/ports"
)

// AuthHandler handles authentication requests.
type AuthHandler struct {
	authService *services.AuthService
	logger      *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService *services.AuthService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: log}
}

// Register godoc
// @Summary Register a new account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ports.RegisterRequest true "Registration details"
// @Success 201 {object} ports.AuthResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req ports.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	response, err := h.authService.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, response)
}

// Login godoc
// @Summary Authenticate and receive a token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ports.LoginRequest true "Credentials"
// @Success 200 {object} ports.AuthResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req ports.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	response, err := h.authService.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, response)
}

// TaskHandler handles the task CRUD surface.
type TaskHandler struct {
	taskService *services.TaskService
	logger      *logger.Logger
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(taskService *services.TaskService, log *logger.Logger) *TaskHandler {
	return &TaskHandler{taskService: taskService, logger: log}
}

// CreateTask godoc
// @Summary Create a task
// @Tags tasks
// @Accept json
// @Produce json
// @Param user_id path string true "User id"
// @Param request body ports.CreateTaskRequest true "Task attributes"
// @Success 201 {object} ports.TaskResult
// @Security BearerAuth
// @Router /{user_id}/tasks [post]
func (h *TaskHandler) CreateTask(c echo.Context) error {
	userID := pathUserID(c)

	var req ports.CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.taskService.CreateTask(c.Request().Context(), userID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// GetTask godoc
// @Summary Fetch one task
// @Tags tasks
// @Produce json
// @Param user_id path string true "User id"
// @Param id path string true "Task id"
// @Success 200 {object} entities.Task
// @Security BearerAuth
// @Router /{user_id}/tasks/{id} [get]
func (h *TaskHandler) GetTask(c echo.Context) error {
	userID := pathUserID(c)
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid task id")
	}

	task, err := h.taskService.GetTask(c.Request().Context(), userID, taskID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

// ListTasks godoc
// @Summary List tasks with filters
// @Tags tasks
// @Produce json
// @Param user_id path string true "User id"
// @Param status query string false "incomplete or complete"
// @Param priority query string false "low, medium, high, urgent"
// @Param tags query string false "comma-separated; tasks must carry all"
// @Param due_date_window query string false "overdue, today, this_week, this_month"
// @Param search query string false "full-text search"
// @Param sort_by query string false "created_at, updated_at, completed_at, due_date, priority, status"
// @Param sort_order query string false "asc or desc"
// @Param limit query int false "page size, default 50"
// @Param offset query int false "page start"
// @Success 200 {object} TaskListResponse
// @Security BearerAuth
// @Router /{user_id}/tasks [get]
func (h *TaskHandler) ListTasks(c echo.Context) error {
	userID := pathUserID(c)

	filter, err := parseTaskFilter(c)
	if err != nil {
		return err
	}

	tasks, total, err := h.taskService.ListTasks(c.Request().Context(), userID, filter)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, TaskListResponse{
		Tasks:  tasks,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// UpdateTask godoc
// @Summary Patch a task
// @Tags tasks
// @Accept json
// @Produce json
// @Param user_id path string true "User id"
// @Param id path string true "Task id"
// @Param request body ports.UpdateTaskRequest true "Changed fields"
// @Success 200 {object} ports.TaskResult
// @Security BearerAuth
// @Router /{user_id}/tasks/{id} [put]
func (h *TaskHandler) UpdateTask(c echo.Context) error {
	userID := pathUserID(c)
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid task id")
	}

	var req ports.UpdateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	result, err := h.taskService.UpdateTask(c.Request().Context(), userID, taskID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// CompleteTask godoc
// @Summary Mark a task complete
// @Tags tasks
// @Produce json
// @Param user_id path string true "User id"
// @Param id path string true "Task id"
// @Success 200 {object} ports.TaskResult
// @Security BearerAuth
// @Router /{user_id}/tasks/{id}/complete [patch]
func (h *TaskHandler) CompleteTask(c echo.Context) error {
	userID := pathUserID(c)
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid task id")
	}

	result, err := h.taskService.CompleteTask(c.Request().Context(), userID, taskID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// DeleteTask godoc
// @Summary Delete a task
// @Tags tasks
// @Param user_id path string true "User id"
// @Param id path string true "Task id"
// @Success 204
// @Security BearerAuth
// @Router /{user_id}/tasks/{id} [delete]
func (h *TaskHandler) DeleteTask(c echo.Context) error {
	userID := pathUserID(c)
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid task id")
	}

	result, err := h.taskService.DeleteTask(c.Request().Context(), userID, taskID)
	if err != nil {
		return err
	}
	if result.Warning != "" {
		// 204 has no body; surface partial success through a header.
		c.Response().Header().Set("X-Sync-Warning", result.Warning)
	}
	return c.NoContent(http.StatusNoContent)
}

// TaskListResponse is a page of tasks with the unpaginated total.
type TaskListResponse struct {
	Tasks  []*entities.Task `json:"tasks"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

func parseTaskFilter(c echo.Context) (ports.TaskFilter, error) {
	var filter ports.TaskFilter

	if v := c.QueryParam("status"); v != "" {
		st := entities.TaskStatus(v)
		if st != entities.TaskStatusIncomplete && st != entities.TaskStatusComplete {
			return filter, echo.NewHTTPError(http.StatusBadRequest, "Invalid status filter")
		}
		filter.Status = &st
	}
	if v := c.QueryParam("priority"); v != "" {
		p := entities.Priority(v)
		if !p.Valid() {
			return filter, echo.NewHTTPError(http.StatusBadRequest, "Invalid priority filter")
		}
		filter.Priority = &p
	}
	if v := c.QueryParam("tags"); v != "" {
		filter.Tags = splitCSV(v)
	}
	if v := c.QueryParam("due_date_window"); v != "" {
		w := ports.DueWindow(v)
		if !w.Valid() {
			return filter, echo.NewHTTPError(http.StatusBadRequest, "Invalid due date window")
		}
		filter.DueWindow = &w
	}
	filter.Search = c.QueryParam("search")
	filter.SortBy = c.QueryParam("sort_by")
	filter.SortOrder = c.QueryParam("sort_order")

	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, echo.NewHTTPError(http.StatusBadRequest, "Invalid limit")
		}
		filter.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, echo.NewHTTPError(http.StatusBadRequest, "Invalid offset")
		}
		filter.Offset = n
	}

	return filter, nil
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// pathUserID reads the user id the tenant middleware already validated.
func pathUserID(c echo.Context) uuid.UUID {
	id, _ := uuid.Parse(c.Param("user_id"))
	return id
}
