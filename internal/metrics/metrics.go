// Package metrics exposes turn and scheduler counters in the Prometheus
// text format.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/relayclaw/internal/relay"
	"github.com/flemzord/relayclaw/internal/security"
)

const namespace = "relayclaw"

// Outcome label values.
const (
	OutcomeOK         = "ok"
	OutcomeSuppressed = "suppressed"
	OutcomeError      = "error"
)

// Metrics owns a private registry so tests and multiple instances never
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	turns            *prometheus.CounterVec
	turnDuration     *prometheus.HistogramVec
	directives       *prometheus.CounterVec
	failedDirectives *prometheus.CounterVec
	jobFires         *prometheus.CounterVec
	securityEvents   *prometheus.CounterVec
	facts            prometheus.GaugeFunc
	jobs             prometheus.GaugeFunc
}

// Sizes reports store sizes for the gauges. Either func may be nil.
type Sizes struct {
	Facts func() int
	Jobs  func() int
}

// New builds the collectors and registers them, together with the Go
// runtime and process collectors.
func New(sizes Sizes) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by source and outcome.",
		}, []string{"source", "outcome"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Backend time per turn.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"source"}),
		directives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directives_applied_total",
			Help:      "Directives applied, by kind.",
		}, []string{"kind"}),
		failedDirectives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directives_failed_total",
			Help:      "Directives that were malformed or rejected, by kind.",
		}, []string{"kind"}),
		jobFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_fires_total",
			Help:      "Scheduled job runs by outcome.",
		}, []string{"outcome"}),
		securityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_events_total",
			Help:      "Audit log events by type and source.",
		}, []string{"type", "source"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.turns, m.turnDuration, m.directives, m.failedDirectives, m.jobFires, m.securityEvents,
	)

	if sizes.Facts != nil {
		m.facts = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "facts",
			Help:      "Facts currently stored.",
		}, func() float64 { return float64(sizes.Facts()) })
		m.registry.MustRegister(m.facts)
	}
	if sizes.Jobs != nil {
		m.jobs = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs",
			Help:      "Scheduled jobs currently stored.",
		}, func() float64 { return float64(sizes.Jobs()) })
		m.registry.MustRegister(m.jobs)
	}
	return m
}

var _ relay.Observer = (*Metrics)(nil)

// ObserveTurn implements relay.Observer.
func (m *Metrics) ObserveTurn(_ context.Context, rec relay.TurnRecord) {
	outcome := OutcomeOK
	switch {
	case rec.Err != "":
		outcome = OutcomeError
	case rec.Suppressed:
		outcome = OutcomeSuppressed
	}

	m.turns.WithLabelValues(string(rec.Source), outcome).Inc()
	m.turnDuration.WithLabelValues(string(rec.Source)).Observe(rec.Duration.Seconds())
	for _, k := range rec.Directives {
		m.directives.WithLabelValues(string(k)).Inc()
	}
	for _, k := range rec.FailedDirectives {
		m.failedDirectives.WithLabelValues(string(k)).Inc()
	}
	if rec.Source == relay.SourceScheduled {
		m.jobFires.WithLabelValues(outcome).Inc()
	}
}

// ObserveAudit counts an audit event. Subscribe it on the audit logger.
func (m *Metrics) ObserveAudit(e security.AuditEvent) {
	m.securityEvents.WithLabelValues(string(e.Type), e.Source).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
