// Package observability groups the Prometheus instruments of the service.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zurustar/unitask/pkg/task"
)

// Editor session outcomes.
const (
	OutcomeSaved       = "saved"
	OutcomeUnchanged   = "unchanged"
	OutcomeFrozen      = "frozen"
	OutcomeNotEditable = "not_editable"
	OutcomeFailed      = "failed"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	EditorSessions      *prometheus.CounterVec
	ActiveEditors       prometheus.Gauge
	Predictions         *prometheus.CounterVec
	PredictedStatements prometheus.Counter
	PredictionLength    prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewMetrics registers the instruments with a fresh registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	return NewMetricsWith(namespace, reg, reg)
}

// NewMetricsWith registers the instruments with reg and serves them from gatherer.
func NewMetricsWith(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EditorSessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "editor_sessions_total",
			Help:      "Task editor sessions by outcome.",
		}, []string{"outcome"}),
		ActiveEditors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_editors",
			Help:      "Number of task editors currently holding a process.",
		}),
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions by kind.",
		}, []string{"kind"}),
		PredictedStatements: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predicted_statements_total",
			Help:      "Statements handed to prediction hooks.",
		}),
		PredictionLength: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_length_statements",
			Help:      "Statements predicted per task prediction.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100, 500},
		}),
		gatherer: gatherer,
	}
}

// ObserveSession counts one finished editor session.
func (m *Metrics) ObserveSession(outcome string) {
	m.EditorSessions.WithLabelValues(outcome).Inc()
}

// CountingHook wraps h so that every statement it receives is counted.
func (m *Metrics) CountingHook(h task.Hook) *CountingHook {
	return &CountingHook{hook: h, metrics: m}
}

// Handler serves the registered instruments.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// CountingHook counts statements passed to a wrapped hook.
type CountingHook struct {
	hook    task.Hook
	metrics *Metrics
	count   int
}

// PredictInstruction counts the statement and forwards it.
func (c *CountingHook) PredictInstruction(name string, args []any) bool {
	c.count++
	c.metrics.PredictedStatements.Inc()
	return c.hook.PredictInstruction(name, args)
}

// Count returns the number of statements seen.
func (c *CountingHook) Count() int {
	return c.count
}
