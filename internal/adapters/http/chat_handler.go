package http

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/taskforge/core/internal/application/services"
	"github.com/taskforge/core/internal/infrastructure/logger"
	"github.com/taskforge/core/internal/ports"
)

// ChatHandler handles the conversational surface.
type ChatHandler struct {
	chatService *services.ChatService
	logger      *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatService *services.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{chatService: chatService, logger: log}
}

// Chat godoc
// @Summary Send a chat message
// @Tags chat
// @Accept json
// @Produce json
// @Param user_id path string true "User id"
// @Param request body ports.ChatRequest true "Message"
// @Success 200 {object} ports.ChatResponse
// @Security BearerAuth
// @Router /api/{user_id}/chat [post]
func (h *ChatHandler) Chat(c echo.Context) error {
	userID := pathUserID(c)

	var req ports.ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	response, err := h.chatService.HandleMessage(c.Request().Context(), userID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, response)
}

// ListConversations godoc
// @Summary List conversations
// @Tags chat
// @Produce json
// @Param user_id path string true "User id"
// @Success 200 {array} entities.Conversation
// @Security BearerAuth
// @Router /api/{user_id}/conversations [get]
func (h *ChatHandler) ListConversations(c echo.Context) error {
	userID := pathUserID(c)

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	conversations, err := h.chatService.ListConversations(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conversations)
}

// ListMessages godoc
// @Summary Fetch a conversation transcript
// @Tags chat
// @Produce json
// @Param user_id path string true "User id"
// @Param id path string true "Conversation id"
// @Success 200 {array} entities.Message
// @Security BearerAuth
// @Router /api/{user_id}/conversations/{id}/messages [get]
func (h *ChatHandler) ListMessages(c echo.Context) error {
	userID := pathUserID(c)
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid conversation id")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	messages, err := h.chatService.ListMessages(c.Request().Context(), userID, conversationID, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messages)
}

// ReminderHandler receives external scheduler callbacks.
type ReminderHandler struct {
	reminderService *services.ReminderService
	logger          *logger.Logger
}

// NewReminderHandler creates a new reminder handler.
func NewReminderHandler(reminderService *services.ReminderService, log *logger.Logger) *ReminderHandler {
	return &ReminderHandler{reminderService: reminderService, logger: log}
}

// TriggerRequest is the external scheduler's job payload.
type TriggerRequest struct {
	UserID  uuid.UUID `json:"user_id" validate:"required"`
	TaskID  uuid.UUID `json:"task_id" validate:"required"`
	Message string    `json:"message"`
}

// Trigger godoc
// @Summary Fire a reminder from an external scheduler
// @Tags reminders
// @Accept json
// @Param request body TriggerRequest true "Job payload"
// @Success 202
// @Router /api/reminders/trigger [post]
func (h *ReminderHandler) Trigger(c echo.Context) error {
	var req TriggerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.reminderService.Trigger(c.Request().Context(), req.UserID, req.TaskID, req.Message); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}
