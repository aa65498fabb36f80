package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	httpHandlers "github.com/taskforge/core/internal/adapters/http"
	"github.com/taskforge/core/internal/application/services"
	"github.com/taskforge/core/internal/domain/entities"
	"github.com/taskforge/core/internal/infrastructure/config"
	"github.com/taskforge/core/internal/infrastructure/database"
	"github.com/taskforge/core/internal/infrastructure/logger"
	"github.com/taskforge/core/internal/infrastructure/metrics"
)

// Deps are the wired application components the server exposes over HTTP.
type Deps struct {
	DB       *database.DB
	Metrics  *metrics.Metrics
	Auth     *services.AuthService
	Tasks    *services.TaskService
	Chat     *services.ChatService
	Reminder *services.ReminderService
	Hub      *httpHandlers.Hub
	Ready    func(ctx context.Context) error
}

// Server is the HTTP front of the application.
type Server struct {
	echo   *echo.Echo
	config *config.Config
	logger *logger.Logger
	deps   Deps
}

// CustomValidator wraps the validator.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates structs.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// New creates a new server instance.
func New(cfg *config.Config, appLogger *logger.Logger, deps Deps) (*Server, error) {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(appLogger)

	s := &Server{
		echo:   e,
		config: cfg,
		logger: appLogger,
		deps:   deps,
	}

	s.setupMiddleware()
	s.setupRoutes()
	if cfg.Metrics.Enabled {
		s.setupMetrics()
	}

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, values middleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", values.Method,
				"uri", values.URI,
				"status", values.Status,
				"latency_ms", float64(values.Latency.Nanoseconds()) / 1e6,
				"remote_ip", values.RemoteIP,
			}
			if values.Error != nil {
				fields = append(fields, "error", values.Error.Error())
				s.logger.Errorw("HTTP request failed", fields...)
			} else {
				s.logger.Infow("HTTP request", fields...)
			}
			return nil
		},
	}))

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: strings.Split(s.config.Security.CORSAllowedOrigins, ","),
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowMethods: []string{echo.GET, echo.HEAD, echo.PUT, echo.PATCH, echo.POST, echo.DELETE},
	}))

	// Coarse per-IP limit; the chat endpoint additionally enforces its
	// per-user sliding window in the service layer.
	s.echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(s.config.Security.IPRateLimit),
				Burst:     s.config.Security.IPRateLimit,
				ExpiresIn: s.config.Security.RateLimitWindow,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, errorBody("rate_limited", "rate limit exceeded", ""))
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, errorBody("rate_limited", "rate limit exceeded", ""))
		},
	}))

	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         31536000,
	}))

	s.echo.Use(middleware.RequestID())
}

func (s *Server) setupRoutes() {
	authHandler := httpHandlers.NewAuthHandler(s.deps.Auth, s.logger)
	taskHandler := httpHandlers.NewTaskHandler(s.deps.Tasks, s.logger)
	chatHandler := httpHandlers.NewChatHandler(s.deps.Chat, s.logger)
	reminderHandler := httpHandlers.NewReminderHandler(s.deps.Reminder, s.logger)
	wsHandler := httpHandlers.NewWSHandler(s.deps.Hub, s.deps.Auth, s.logger)

	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ready", s.readinessCheck)
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	auth := s.echo.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	tenant := []echo.MiddlewareFunc{s.authMiddleware(), s.tenantMiddleware()}

	tasks := s.echo.Group("/:user_id/tasks", tenant...)
	tasks.GET("", taskHandler.ListTasks)
	tasks.POST("", taskHandler.CreateTask)
	tasks.GET("/:id", taskHandler.GetTask)
	tasks.PUT("/:id", taskHandler.UpdateTask)
	tasks.PATCH("/:id/complete", taskHandler.CompleteTask)
	tasks.DELETE("/:id", taskHandler.DeleteTask)

	api := s.echo.Group("/api")
	chat := api.Group("/:user_id", tenant...)
	chat.POST("/chat", chatHandler.Chat)
	chat.GET("/conversations", chatHandler.ListConversations)
	chat.GET("/conversations/:id/messages", chatHandler.ListMessages)

	// The websocket handler does its own token check: browsers cannot
	// set the Authorization header on an upgrade request.
	s.echo.GET("/ws/:user_id", wsHandler.Subscribe)

	api.POST("/reminders/trigger", reminderHandler.Trigger)
}

func (s *Server) setupMetrics() {
	m := s.deps.Metrics

	s.echo.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			m.HTTPRequestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				fmt.Sprintf("%d", c.Response().Status),
			).Inc()
			m.HTTPRequestDuration.WithLabelValues(
				c.Request().Method,
				c.Path(),
			).Observe(time.Since(start).Seconds())
			return err
		}
	})

	s.echo.GET("/metrics", echo.WrapHandler(
		promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) readinessCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := s.deps.DB.Ping(); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready", "reason": "database_not_ready",
		})
	}
	if s.deps.Ready != nil {
		if err := s.deps.Ready(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready", "reason": err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

// Start starts the HTTP server.
func (s *Server) Start(address string) error {
	s.logger.Infow("Starting server", "address", address)
	return s.echo.Start(address)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	return s.echo.Shutdown(ctx)
}

// errorBody is the error payload shape for every failed request.
func errorBody(kind, message, correlationID string) map[string]interface{} {
	e := map[string]interface{}{"kind": kind, "message": message}
	if correlationID != "" {
		e["correlation_id"] = correlationID
	}
	return map[string]interface{}{"error": e}
}

// errorHandler maps domain sentinels onto status codes and error kinds.
func errorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var (
			code = http.StatusInternalServerError
			kind = "internal"
			msg  = "internal error"
		)

		var ve *entities.ValidationError
		var he *echo.HTTPError

		switch {
		case errors.Is(err, entities.ErrTokenMissing):
			code, kind, msg = http.StatusUnauthorized, "auth.missing", err.Error()
		case errors.Is(err, entities.ErrTokenExpired):
			code, kind, msg = http.StatusUnauthorized, "auth.expired", err.Error()
		case errors.Is(err, entities.ErrTokenMalformed),
			errors.Is(err, entities.ErrTokenSignatureInvalid),
			errors.Is(err, entities.ErrTokenMissingClaims):
			code, kind, msg = http.StatusUnauthorized, "auth.invalid", err.Error()
		case errors.Is(err, entities.ErrTenantViolation):
			code, kind, msg = http.StatusForbidden, "auth.tenant_violation", err.Error()
		case errors.Is(err, entities.ErrTaskNotFound),
			errors.Is(err, entities.ErrUserNotFound),
			errors.Is(err, entities.ErrConversationNotFound):
			code, kind, msg = http.StatusNotFound, "not_found", err.Error()
		case errors.Is(err, entities.ErrDuplicateEmail):
			code, kind, msg = http.StatusConflict, "duplicate", err.Error()
		case errors.Is(err, entities.ErrInvalidCredentials):
			code, kind, msg = http.StatusUnauthorized, "auth.invalid", err.Error()
		case errors.Is(err, entities.ErrRateLimited):
			code, kind, msg = http.StatusTooManyRequests, "rate_limited", err.Error()
		case errors.Is(err, entities.ErrEventPublishFailed):
			code, kind, msg = http.StatusServiceUnavailable, "event_publish_failure", err.Error()
		case errors.Is(err, entities.ErrReminderInPast):
			code, kind, msg = http.StatusBadRequest, "scheduler.past", err.Error()
		case errors.As(err, &ve):
			code, kind, msg = http.StatusBadRequest, "validation", ve.Error()
		case errors.As(err, &he):
			code = he.Code
			kind = kindForStatus(code)
			msg = fmt.Sprintf("%v", he.Message)
		}

		correlationID := ""
		if code == http.StatusInternalServerError {
			correlationID = c.Response().Header().Get(echo.HeaderXRequestID)
			log.Errorw("Internal server error",
				"error", err,
				"path", c.Request().URL.Path,
				"correlation_id", correlationID)
		}

		if !c.Response().Committed {
			var sendErr error
			if c.Request().Method == echo.HEAD {
				sendErr = c.NoContent(code)
			} else {
				sendErr = c.JSON(code, errorBody(kind, msg, correlationID))
			}
			if sendErr != nil {
				log.Errorw("Error sending response", "error", sendErr)
			}
		}
	}
}

func kindForStatus(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "validation"
	case http.StatusUnauthorized:
		return "auth.invalid"
	case http.StatusForbidden:
		return "auth.tenant_violation"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "duplicate"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "internal"
	}
}
