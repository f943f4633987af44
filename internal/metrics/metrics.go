// ABOUTME: Prometheus metrics for exchanges, stream events, parse failures and persistence
// ABOUTME: Each Metrics owns a private registry served by Handler

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mahakaal"

// Exchange outcomes
const (
	OutcomeCompleted  = "completed"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
)

// Persistence results
const (
	PersistSaved   = "saved"
	PersistSkipped = "skipped"
	PersistFailed  = "failed"
)

// Metrics holds the collectors for one process.
type Metrics struct {
	registry         *prometheus.Registry
	exchanges        *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
	events           *prometheus.CounterVec
	parseFailures    prometheus.Counter
	persist          *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Chat exchanges by terminal outcome.",
		}, []string{"outcome"}),
		exchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Time from send to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Stream events reconciled, by kind.",
		}, []string{"kind"}),
		parseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      "Stream lines dropped because they did not parse.",
		}),
		persist: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_total",
			Help:      "Message persistence attempts by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.exchanges,
		m.exchangeDuration,
		m.events,
		m.parseFailures,
		m.persist,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ExchangeFinished records one exchange reaching outcome after d.
func (m *Metrics) ExchangeFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues(outcome).Inc()
	m.exchangeDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// EventReconciled counts one stream event of the given kind.
func (m *Metrics) EventReconciled(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

// ParseFailed counts one dropped line.
func (m *Metrics) ParseFailed() {
	if m == nil {
		return
	}
	m.parseFailures.Inc()
}

// Persisted counts one persistence attempt.
func (m *Metrics) Persisted(result string) {
	if m == nil {
		return
	}
	m.persist.WithLabelValues(result).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
