package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "session_service"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry        *prometheus.Registry
	sessionOps      *prometheus.CounterVec
	guardDecisions  *prometheus.CounterVec
	sweptRecords    prometheus.Counter
	supersededTotal prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Session controller operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_decisions_total",
			Help:      "Authentication guard decisions by outcome.",
		}, []string{"outcome"}),
		sweptRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_sessions_total",
			Help:      "Expired refresh sessions removed by the sweeper.",
		}),
		supersededTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "superseded_sessions_total",
			Help:      "Live refresh sessions replaced by a newer login.",
		}),
	}
	m.registry.MustRegister(
		m.sessionOps,
		m.guardDecisions,
		m.sweptRecords,
		m.supersededTotal,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionOp(operation, outcome string) {
	if m == nil {
		return
	}
	m.sessionOps.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) GuardDecision(outcome string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptRecords.Add(float64(n))
}

func (m *Metrics) Superseded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.supersededTotal.Add(float64(n))
}
