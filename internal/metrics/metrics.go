// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	seatOperations *prometheus.CounterVec
	webhookEvents  *prometheus.CounterVec
	emailsSent     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "estateflow_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "estateflow_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	seatOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "estateflow_billing_seat_operations_total",
		Help: "Seat reconciliations against the billing provider by operation and result.",
	}, []string{"operation", "result"})

	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "estateflow_billing_webhook_events_total",
		Help: "Billing webhook events by type and outcome.",
	}, []string{"type", "result"})

	emailsSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "estateflow_emails_total",
		Help: "Outgoing e-mails by kind and result.",
	}, []string{"kind", "result"})

	reg.MustRegister(httpRequests, httpDuration, seatOperations, webhookEvents, emailsSent)

	return &Metrics{
		httpRequests:   httpRequests,
		httpDuration:   httpDuration,
		seatOperations: seatOperations,
		webhookEvents:  webhookEvents,
		emailsSent:     emailsSent,
	}
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// SeatOperation counts one add or remove; result is ok, skipped or error.
func (m *Metrics) SeatOperation(operation, result string) {
	if m == nil {
		return
	}
	m.seatOperations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) WebhookEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) EmailSent(kind, result string) {
	if m == nil {
		return
	}
	m.emailsSent.WithLabelValues(kind, result).Inc()
}
