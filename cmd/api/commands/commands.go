package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	httpHandlers "github.com/taskforge/core/internal/adapters/http"
	"github.com/taskforge/core/internal/adapters/repository"
	"github.com/taskforge/core/internal/application/consumers"
	"github.com/taskforge/core/internal/application/services"
	"github.com/taskforge/core/internal/domain/events"
	"github.com/taskforge/core/internal/infrastructure/bus"
	"github.com/taskforge/core/internal/infrastructure/config"
	"github.com/taskforge/core/internal/infrastructure/database"
	"github.com/taskforge/core/internal/infrastructure/ledger"
	"github.com/taskforge/core/internal/infrastructure/logger"
	"github.com/taskforge/core/internal/infrastructure/metrics"
	"github.com/taskforge/core/internal/infrastructure/scheduler"
	"github.com/taskforge/core/internal/infrastructure/server"
	"github.com/taskforge/core/internal/ports"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server with scheduler and consumers",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

// NewWorkerCommand creates the worker command.
func NewWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run event consumers without the HTTP API",
		Run: func(cmd *cobra.Command, args []string) {
			runWorker()
		},
	}
}

// NewMigrateCommand creates the migrate command with subcommands.
func NewMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Run all up migrations",
		Run: func(cmd *cobra.Command, args []string) {
			runMigration("up")
		},
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Run all down migrations",
		Run: func(cmd *cobra.Command, args []string) {
			runMigration("down")
		},
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print current migration version",
		Run: func(cmd *cobra.Command, args []string) {
			showMigrationVersion()
		},
	})

	return migrateCmd
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print TaskForge version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("TaskForge v1.0.0")
		},
	}
}

// app bundles everything the serve and worker processes share.
type app struct {
	cfg       *config.Config
	logger    *logger.Logger
	metrics   *metrics.Metrics
	db        *database.DB
	redis     *ledger.Client
	bus       *bus.Bus
	scheduler *scheduler.OneShotScheduler

	auth     *services.AuthService
	tasks    *services.TaskService
	chat     *services.ChatService
	reminder *services.ReminderService
	hub      *httpHandlers.Hub

	registrations []consumers.Registration
}

func buildApp() *app {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	m := metrics.New()

	db, err := database.New(cfg.Database)
	if err != nil {
		appLogger.Fatalw("Failed to connect to database", "error", err)
	}

	redisClient, err := ledger.NewClient(cfg.Redis, appLogger)
	if err != nil {
		appLogger.Fatalw("Failed to connect to redis", "error", err)
	}

	topics := []string{
		cfg.Events.TaskTopic,
		cfg.Events.ReminderTopic,
		cfg.Events.RecurrenceTopic,
		cfg.Events.NotifyTopic,
	}
	eventBus, err := bus.New(cfg.NATS, topics, appLogger, m)
	if err != nil {
		appLogger.Fatalw("Failed to connect to event bus", "error", err)
	}

	sched := scheduler.New(appLogger, m)

	userRepo := repository.NewUserRepository(db.DB)
	taskRepo := repository.NewTaskRepository(db.DB)
	convRepo := repository.NewConversationRepository(db.DB)

	chatLimiter := ledger.NewSlidingWindowLimiter(
		redisClient, cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow, "rl")

	authService := services.NewAuthService(userRepo, cfg.JWT, appLogger)
	taskService := services.NewTaskService(taskRepo, eventBus, appLogger, m, cfg.Events.Source)
	chatService := services.NewChatService(convRepo, taskService, chatLimiter, appLogger, cfg.Chat)
	reminderService := services.NewReminderService(taskRepo, sched, eventBus, appLogger, m, cfg.Events.Source)
	recurrenceService := services.NewRecurrenceService(taskService, eventBus, appLogger, m, cfg.Events.Source)
	notificationService := services.NewNotificationService(
		[]ports.Transport{services.NewLogTransport(appLogger)},
		eventBus, appLogger, m, cfg.Events.Source)

	hub := httpHandlers.NewHub(appLogger)

	registrations := []consumers.Registration{
		{Topic: cfg.Events.TaskTopic, Consumer: consumers.ConsumerReminder, Handler: reminderService.HandleTaskEvent},
		{Topic: cfg.Events.TaskTopic, Consumer: consumers.ConsumerRecurrence, Handler: recurrenceService.HandleTaskCompleted},
		{Topic: cfg.Events.ReminderTopic, Consumer: consumers.ConsumerNotification, Handler: notificationService.HandleReminderTriggered},
	}

	return &app{
		cfg:           cfg,
		logger:        appLogger,
		metrics:       m,
		db:            db,
		redis:         redisClient,
		bus:           eventBus,
		scheduler:     sched,
		auth:          authService,
		tasks:         taskService,
		chat:          chatService,
		reminder:      reminderService,
		hub:           hub,
		registrations: registrations,
	}
}

func (a *app) startConsumers(ctx context.Context) {
	idemLedger := ledger.NewIdempotencyLedger(a.redis, a.cfg.Events.IdempotencyTTL)
	if err := consumers.Register(ctx, a.bus, idemLedger, a.bus, a.logger, a.metrics, a.cfg.Events, a.registrations); err != nil {
		a.logger.Fatalw("Failed to register consumers", "error", err)
	}
	// Websocket fan-out reads every task event on this replica.
	if err := a.bus.SubscribeBroadcast(ctx, a.cfg.Events.TaskTopic, a.hub.HandleEnvelope); err != nil {
		a.logger.Fatalw("Failed to subscribe websocket broadcast", "error", err)
	}
}

func (a *app) close() {
	a.scheduler.Stop()
	a.bus.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Warnw("Redis close failed", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warnw("Database close failed", "error", err)
	}
	_ = a.logger.Close()
}

func runServe() {
	a := buildApp()
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.scheduler.Start()
	a.startConsumers(ctx)

	srv, err := server.New(a.cfg, a.logger, server.Deps{
		DB:       a.db,
		Metrics:  a.metrics,
		Auth:     a.auth,
		Tasks:    a.tasks,
		Chat:     a.chat,
		Reminder: a.reminder,
		Hub:      a.hub,
		Ready: func(ctx context.Context) error {
			if err := a.bus.HealthCheck(ctx); err != nil {
				return fmt.Errorf("bus_not_ready")
			}
			if err := a.redis.HealthCheck(ctx); err != nil {
				return fmt.Errorf("redis_not_ready")
			}
			return nil
		},
	})
	if err != nil {
		a.logger.Fatalw("Failed to initialize server", "error", err)
	}

	go func() {
		a.logger.Infow("Starting TaskForge API server",
			"address", fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
			"environment", a.cfg.App.Environment)
		if err := srv.Start(fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)); err != nil {
			a.logger.Infow("HTTP server stopped", "reason", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Errorw("Graceful shutdown failed", "error", err)
	}
}

func runWorker() {
	a := buildApp()
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.scheduler.Start()
	a.startConsumers(ctx)

	a.logger.Infow("Worker running",
		"consumers", len(a.registrations),
		"topics", []string{events.TopicTaskEvents, events.TopicReminderEvents})

	<-ctx.Done()
	a.logger.Info("Worker shutting down")
}

func runMigration(direction string) {
	m := newMigrator()
	defer m.Close()

	var err error
	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}
	if err != nil && err != migrate.ErrNoChange {
		log.Fatalf("Migration %s failed: %v", direction, err)
	}
	fmt.Printf("Migration %s completed\n", direction)
}

func showMigrationVersion() {
	m := newMigrator()
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil {
		if err == migrate.ErrNilVersion {
			fmt.Println("No migrations applied")
			return
		}
		log.Fatalf("Failed to read migration version: %v", err)
	}
	fmt.Printf("Version: %d, dirty: %v\n", version, dirty)
}

func newMigrator() *migrate.Migrate {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	driver, err := postgres.WithInstance(db.DB.DB, &postgres.Config{})
	if err != nil {
		log.Fatalf("Failed to create migration driver: %v", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		log.Fatalf("Failed to initialize migrator: %v", err)
	}
	return m
}
