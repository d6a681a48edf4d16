// Package metrics holds the Prometheus collectors for order entry, the CDS
// engine and event relay. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	CDSEvaluations        prometheus.Counter
	CDSEvaluationDuration prometheus.Histogram
	CDSAlerts             *prometheus.CounterVec
	OrderSubmissions      *prometheus.CounterVec
	OrderTransitions      *prometheus.CounterVec
	OutboxPending         prometheus.Gauge
	OutboxPublished       prometheus.Counter
	OutboxFailures        prometheus.Counter
	KafkaMessagesProduced prometheus.Counter
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CDSEvaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cds_evaluations_total",
			Help: "Total CDS evaluations run",
		}),
		CDSEvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cds_evaluation_duration_seconds",
			Help:    "CDS evaluation duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		CDSAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cds_alerts_total",
			Help: "CDS alerts raised by type and severity",
		}, []string{"type", "severity"}),
		OrderSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_submissions_total",
			Help: "Order submissions by outcome (created, blocked, failed)",
		}, []string{"outcome"}),
		OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order status transitions by target status",
		}, []string{"status"}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		OutboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox entries published",
		}),
		OutboxFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_publish_failures_total",
			Help: "Outbox publish attempts that failed",
		}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.CDSEvaluations,
		m.CDSEvaluationDuration,
		m.CDSAlerts,
		m.OrderSubmissions,
		m.OrderTransitions,
		m.OutboxPending,
		m.OutboxPublished,
		m.OutboxFailures,
		m.KafkaMessagesProduced,
		m.CircuitBreakerState,
	)

	return m
}

func (m *Metrics) ObserveEvaluation(d time.Duration) {
	if m == nil {
		return
	}
	m.CDSEvaluations.Inc()
	m.CDSEvaluationDuration.Observe(d.Seconds())
}

func (m *Metrics) AlertRaised(alertType, severity string) {
	if m == nil {
		return
	}
	m.CDSAlerts.WithLabelValues(alertType, severity).Inc()
}

func (m *Metrics) OrderSubmitted(outcome string) {
	if m == nil {
		return
	}
	m.OrderSubmissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) OrderTransitioned(status string) {
	if m == nil {
		return
	}
	m.OrderTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) SetOutboxPending(n int64) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(n))
}

func (m *Metrics) OutboxPublishedInc() {
	if m == nil {
		return
	}
	m.OutboxPublished.Inc()
	m.KafkaMessagesProduced.Inc()
}

func (m *Metrics) OutboxFailureInc() {
	if m == nil {
		return
	}
	m.OutboxFailures.Inc()
}

// SetBreakerState records 0=closed, 1=open, 2=half-open.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler exposes the collectors in g for scraping.
func Handler(g prometheus.Gatherer) echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
