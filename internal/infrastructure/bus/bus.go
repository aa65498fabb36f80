// Package bus implements the event log on NATS JetStream. Each topic
// maps to one stream; subjects carry the partition key (user_id) as
// their last token so per-user publish order is preserved.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/taskforge/core/internal/domain/events"
	"github.com/taskforge/core/internal/infrastructure/config"
	"github.com/taskforge/core/internal/infrastructure/logger"
	"github.com/taskforge/core/internal/infrastructure/metrics"
	"github.com/taskforge/core/internal/ports"
)

const (
	// DLQStream collects envelopes whose handlers exhausted their retries.
	DLQStream  = "EVENTS_DLQ"
	dlqSubject = "dlq.events"
)

// DeadLetter is the record written to the DLQ stream.
type DeadLetter struct {
	Consumer string           `json:"consumer"`
	Error    string           `json:"error"`
	Attempts int              `json:"attempts"`
	FailedAt time.Time        `json:"failed_at"`
	Envelope *events.Envelope `json:"envelope"`
}

// Bus is the JetStream-backed event bus.
type Bus struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	logger  *logger.Logger
	metrics *metrics.Metrics
	topics  []string
}

// New connects to NATS and ensures one stream per topic plus the DLQ
// stream exist.
func New(cfg config.NATSConfig, topics []string, log *logger.Logger, m *metrics.Metrics) (*Bus, error) {
	blog := log.WithComponent("bus")

	nc, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				blog.Warnw("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			blog.Infow("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	b := &Bus{
		conn:    nc,
		js:      js,
		logger:  blog,
		metrics: m,
		topics:  topics,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	for _, topic := range topics {
		streamCfg := jetstream.StreamConfig{
			Name:      StreamName(topic),
			Subjects:  []string{topic + ".>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    cfg.StreamMaxAge,
			Replicas:  1,
		}
		if _, err := js.CreateOrUpdateStream(ctx, streamCfg); err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream for %s: %w", topic, err)
		}
		blog.Infow("JetStream stream ready", "topic", topic, "stream", streamCfg.Name)
	}

	dlqCfg := jetstream.StreamConfig{
		Name:      DLQStream,
		Subjects:  []string{dlqSubject + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    cfg.StreamMaxAge,
		Replicas:  1,
	}
	if _, err := js.CreateOrUpdateStream(ctx, dlqCfg); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create DLQ stream: %w", err)
	}

	return b, nil
}

// StreamName derives the JetStream stream name from a topic
// ("task.events" -> "TASK_EVENTS").
func StreamName(topic string) string {
	return strings.ToUpper(strings.ReplaceAll(topic, ".", "_"))
}

// Close drains the connection.
func (b *Bus) Close() {
	b.conn.Close()
}

// HealthCheck verifies the connection is alive.
func (b *Bus) HealthCheck(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS connection lost")
	}
	return nil
}

// Publish writes an envelope to its topic's stream, partitioned by
// user_id. The envelope id doubles as the JetStream message id so the
// log itself drops redundant publish retries.
func (b *Bus) Publish(ctx context.Context, topic string, env *events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		b.metrics.EventPublishFailures.WithLabelValues(topic).Inc()
		return fmt.Errorf("marshal envelope %s: %w", env.EventID, err)
	}

	subject := fmt.Sprintf("%s.%s", topic, env.UserID)
	_, err = b.js.Publish(ctx, subject, data, jetstream.WithMsgID(env.EventID.String()))
	if err != nil {
		b.metrics.EventPublishFailures.WithLabelValues(topic).Inc()
		return fmt.Errorf("publish %s to %s: %w", env.EventType, subject, err)
	}

	b.metrics.EventsPublished.WithLabelValues(topic, string(env.EventType)).Inc()
	b.logger.Debugw("Event published",
		"topic", topic,
		"event_id", env.EventID,
		"event_type", env.EventType,
		"user_id", env.UserID,
	)
	return nil
}

// Subscribe attaches a named durable consumer to a topic. Messages are
// dispatched one at a time (MaxAckPending=1) so partition order reaches
// the handler intact.
func (b *Bus) Subscribe(ctx context.Context, topic, consumer string, handler ports.EventHandler) error {
	stream, err := b.js.Stream(ctx, StreamName(topic))
	if err != nil {
		return fmt.Errorf("lookup stream for %s: %w", topic, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       2 * time.Minute,
		MaxAckPending: 1,
		MaxDeliver:    -1,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s on %s: %w", consumer, topic, err)
	}

	_, err = cons.Consume(func(msg jetstream.Msg) {
		b.dispatch(context.Background(), consumer, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("start consumer %s on %s: %w", consumer, topic, err)
	}

	b.logger.Infow("Consumer attached", "topic", topic, "consumer", consumer)
	return nil
}

// SubscribeBroadcast delivers new envelopes on a topic to this process
// only, via an ephemeral ordered consumer. Used for websocket fan-out,
// where every replica needs every event.
func (b *Bus) SubscribeBroadcast(ctx context.Context, topic string, handler ports.EventHandler) error {
	stream, err := b.js.Stream(ctx, StreamName(topic))
	if err != nil {
		return fmt.Errorf("lookup stream for %s: %w", topic, err)
	}

	cons, err := stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create broadcast consumer on %s: %w", topic, err)
	}

	_, err = cons.Consume(func(msg jetstream.Msg) {
		var env events.Envelope
		if err := json.Unmarshal(msg.Data(), &env); err != nil {
			b.logger.Errorw("Broadcast envelope unreadable", "subject", msg.Subject(), "error", err)
			return
		}
		if err := handler(ctx, &env); err != nil {
			b.logger.Warnw("Broadcast handler failed", "event_id", env.EventID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("start broadcast consumer on %s: %w", topic, err)
	}

	b.logger.Infow("Broadcast consumer attached", "topic", topic)
	return nil
}

func (b *Bus) dispatch(ctx context.Context, consumer string, msg jetstream.Msg, handler ports.EventHandler) {
	var env events.Envelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		// A poison message can never succeed; record it and move on.
		b.logger.Errorw("Envelope unreadable, dead-lettering", "subject", msg.Subject(), "error", err)
		_ = b.publishRawDeadLetter(ctx, consumer, msg.Data(), err)
		_ = msg.Ack()
		return
	}

	if err := handler(ctx, &env); err != nil {
		// Handlers wrap their own retry and DLQ routing; an error here
		// means redelivery is wanted.
		b.logger.Warnw("Handler requested redelivery", "consumer", consumer, "event_id", env.EventID, "error", err)
		_ = msg.Nak()
		return
	}

	b.metrics.EventsConsumed.WithLabelValues(consumer, string(env.EventType)).Inc()
	_ = msg.Ack()
}

// PublishDeadLetter routes an exhausted envelope to the DLQ stream with
// the last error attached.
func (b *Bus) PublishDeadLetter(ctx context.Context, consumer string, env *events.Envelope, attempts int, lastErr error) error {
	dl := DeadLetter{
		Consumer: consumer,
		Error:    lastErr.Error(),
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
		Envelope: env,
	}
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", dlqSubject, consumer)
	if _, err := b.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish dead letter to %s: %w", subject, err)
	}

	b.metrics.EventsDeadLettered.WithLabelValues(consumer).Inc()
	return nil
}

func (b *Bus) publishRawDeadLetter(ctx context.Context, consumer string, raw []byte, cause error) error {
	payload := map[string]interface{}{
		"consumer":  consumer,
		"error":     cause.Error(),
		"failed_at": time.Now().UTC(),
		"raw":       string(raw),
	}
	data, _ := json.Marshal(payload)
	subject := fmt.Sprintf("%s.%s", dlqSubject, consumer)
	_, err := b.js.Publish(ctx, subject, data)
	return err
}
