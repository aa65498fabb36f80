package services

import (
	"context"

	"github.com/taskforge/core/internal/domain/events"
	"github.com/taskforge/core/internal/infrastructure/logger"
	"github.com/taskforge/core/internal/infrastructure/metrics"
	"github.com/taskforge/core/internal/ports"
)

// NotificationService fans triggered reminders out to every registered
// transport and forwards the envelope onto the notification topic for
// downstream audit. A transport failure is counted and logged but never
// fails the event that produced the notification.
type NotificationService struct {
	transports []ports.Transport
	bus        ports.EventBus
	logger     *logger.Logger
	metrics    *metrics.Metrics
	source     string
}

// NewNotificationService creates a new notification service.
func NewNotificationService(transports []ports.Transport, bus ports.EventBus, log *logger.Logger, m *metrics.Metrics, source string) *NotificationService {
	return &NotificationService{
		transports: transports,
		bus:        bus,
		logger:     log.WithComponent("notifications"),
		metrics:    m,
		source:     source,
	}
}

// HandleReminderTriggered is the reminder-topic consumer entrypoint.
func (s *NotificationService) HandleReminderTriggered(ctx context.Context, env *events.Envelope) error {
	if env.EventType != events.ReminderTriggered {
		return nil
	}

	var p events.ReminderTriggeredPayload
	if err := env.Decode(&p); err != nil {
		return err
	}

	n := ports.Notification{
		UserID:  env.UserID,
		TaskID:  p.TaskID,
		Title:   p.TaskTitle,
		Message: p.ReminderMessage,
	}

	for _, t := range s.transports {
		if err := t.Send(ctx, n); err != nil {
			s.metrics.NotificationsDelivered.WithLabelValues(t.Name(), "error").Inc()
			s.logger.WithError(err).Errorw("Notification delivery failed",
				"transport", t.Name(), "task_id", p.TaskID, "user_id", env.UserID)
			continue
		}
		s.metrics.NotificationsDelivered.WithLabelValues(t.Name(), "ok").Inc()
	}

	out, err := events.New(env.EventType, env.UserID, s.source, p)
	if err == nil {
		out.CausedBy(env)
		err = s.bus.Publish(ctx, events.TopicNotificationEvents, out)
	}
	if err != nil {
		s.metrics.EventPublishFailures.WithLabelValues(events.TopicNotificationEvents).Inc()
		s.logger.WithError(err).Errorw("Failed to forward notification event", "task_id", p.TaskID)
		return nil
	}
	s.metrics.EventsPublished.WithLabelValues(events.TopicNotificationEvents, string(env.EventType)).Inc()
	return nil
}

// LogTransport writes notifications to the application log. It stands
// in for email or push in deployments that have neither.
type LogTransport struct {
	logger *logger.Logger
}

// NewLogTransport creates the log-backed transport.
func NewLogTransport(log *logger.Logger) *LogTransport {
	return &LogTransport{logger: log.WithComponent("transport.log")}
}

func (t *LogTransport) Name() string { return "log" }

func (t *LogTransport) Send(_ context.Context, n ports.Notification) error {
	t.logger.Infow("Notification",
		"user_id", n.UserID,
		"task_id", n.TaskID,
		"title", n.Title,
		"message", n.Message)
	return nil
}
