// Package consumers wires event handlers onto the bus with the
// processing guarantees every consumer shares: idempotency, bounded
// retry, and dead-lettering.
package consumers

import (
	"context"
	"time"

	"github.com/taskforge/core/internal/domain/events"
	"github.com/taskforge/core/internal/infrastructure/config"
	"github.com/taskforge/core/internal/infrastructure/logger"
	"github.com/taskforge/core/internal/infrastructure/metrics"
	"github.com/taskforge/core/internal/ports"
)

// Consumer names double as durable subscription names and ledger key
// segments; renaming one resets its delivery state.
const (
	ConsumerReminder     = "reminder-scheduler"
	ConsumerRecurrence   = "recurrence-processor"
	ConsumerNotification = "notification-delivery"
)

// IdempotentHandler wraps a handler with the shared consumer contract:
// skip envelopes the ledger has seen, retry transient failures with
// exponential backoff, dead-letter what keeps failing, and always ack
// so one poison envelope cannot wedge a partition.
func IdempotentHandler(consumer string, handler ports.EventHandler, ledger ports.IdempotencyLedger, dlq ports.DeadLetterer, log *logger.Logger, m *metrics.Metrics, cfg config.EventsConfig) ports.EventHandler {
	clog := log.WithComponent("consumer." + consumer)

	return func(ctx context.Context, env *events.Envelope) error {
		first, err := ledger.MarkProcessed(ctx, consumer, env.EventID)
		if err != nil {
			// Ledger outage: process anyway. At-least-once beats
			// dropping the envelope.
			clog.WithError(err).Warnw("Idempotency ledger unavailable", "event_id", env.EventID)
		} else if !first {
			m.EventDuplicates.WithLabelValues(consumer).Inc()
			clog.Debugw("Duplicate envelope skipped", "event_id", env.EventID, "event_type", env.EventType)
			return nil
		}

		backoff := cfg.RetryBackoff
		var lastErr error
		for attempt := 1; attempt <= cfg.RetryAttempts; attempt++ {
			lastErr = handler(ctx, env)
			if lastErr == nil {
				m.EventsConsumed.WithLabelValues(consumer, string(env.EventType)).Inc()
				return nil
			}
			clog.WithError(lastErr).Warnw("Handler attempt failed",
				"event_id", env.EventID,
				"event_type", env.EventType,
				"attempt", attempt)
			if attempt < cfg.RetryAttempts {
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return ctx.Err()
				}
				backoff *= 2
			}
		}

		m.EventsDeadLettered.WithLabelValues(consumer).Inc()
		if err := dlq.PublishDeadLetter(ctx, consumer, env, cfg.RetryAttempts, lastErr); err != nil {
			clog.WithError(err).Errorw("Dead-letter publish failed", "event_id", env.EventID)
		}
		clog.WithError(lastErr).Errorw("Envelope dead-lettered after retry exhaustion",
			"event_id", env.EventID, "event_type", env.EventType)
		// Returning nil acks the message; the dead-letter stream owns it now.
		return nil
	}
}

// Registration binds one named consumer to a topic.
type Registration struct {
	Topic    string
	Consumer string
	Handler  ports.EventHandler
}

// Register subscribes every registration through the idempotent wrapper.
func Register(ctx context.Context, bus ports.EventBus, ledger ports.IdempotencyLedger, dlq ports.DeadLetterer, log *logger.Logger, m *metrics.Metrics, cfg config.EventsConfig, regs []Registration) error {
	for _, r := range regs {
		wrapped := IdempotentHandler(r.Consumer, r.Handler, ledger, dlq, log, m, cfg)
		if err := bus.Subscribe(ctx, r.Topic, r.Consumer, wrapped); err != nil {
			return err
		}
		log.Infow("Consumer registered", "consumer", r.Consumer, "topic", r.Topic)
	}
	return nil
}
