// Package metrics holds the Prometheus registry and the instruments
// shared by the HTTP layer and the event pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every instrument the application registers.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	EventsPublished      *prometheus.CounterVec
	EventPublishFailures *prometheus.CounterVec
	EventsConsumed       *prometheus.CounterVec
	EventDuplicates      *prometheus.CounterVec
	EventsDeadLettered   *prometheus.CounterVec

	ReminderJobsActive     prometheus.Gauge
	NotificationsDelivered *prometheus.CounterVec
}

// New builds a fresh registry with every instrument registered.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_published_total",
				Help: "Envelopes written to the event log, by topic and type",
			},
			[]string{"topic", "event_type"},
		),
		EventPublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "event_publish_failures_total",
				Help: "Envelope publish attempts that failed, by topic",
			},
			[]string{"topic"},
		),
		EventsConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_consumed_total",
				Help: "Envelopes handled by consumers, by consumer and type",
			},
			[]string{"consumer", "event_type"},
		),
		EventDuplicates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "event_duplicates_total",
				Help: "Envelopes skipped by the idempotency ledger, by consumer",
			},
			[]string{"consumer"},
		),
		EventsDeadLettered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_dead_lettered_total",
				Help: "Envelopes routed to the dead-letter stream after retry exhaustion",
			},
			[]string{"consumer"},
		),

		ReminderJobsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "reminder_jobs_active",
				Help: "One-shot reminder jobs currently registered",
			},
		),
		NotificationsDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_delivered_total",
				Help: "Notifications handed to a transport, by transport and outcome",
			},
			[]string{"transport", "outcome"},
		),
	}

	m.Registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EventsPublished,
		m.EventPublishFailures,
		m.EventsConsumed,
		m.EventDuplicates,
		m.EventsDeadLettered,
		m.ReminderJobsActive,
		m.NotificationsDelivered,
	)

	return m
}
