package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the unit of work. All methods are nil
// safe so tests can run without a registry.
type Metrics struct {
	// Operation latency by operation and kind
	OperationLatency *prometheus.HistogramVec

	// Documents written or removed by operation and kind
	DocumentsAffected *prometheus.CounterVec

	// Paired activity records dropped by the transition check
	TransitionsRejected *prometheus.CounterVec

	// Failed operations by error code
	OperationErrors *prometheus.CounterVec
}

// New creates a new Metrics instance registered on the default registry.
func New() *Metrics {
	return &Metrics{
		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cradle_uow_operation_duration_seconds",
			Help:    "Duration of unit of work operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation", "kind"}),

		DocumentsAffected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cradle_uow_documents_affected_total",
			Help: "Documents inserted, updated or deleted",
		}, []string{"operation", "kind"}),

		TransitionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cradle_uow_transitions_rejected_total",
			Help: "Paired activity records skipped because their phase did not alternate",
		}, []string{"activity_kind"}),

		OperationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cradle_uow_operation_errors_total",
			Help: "Failed unit of work operations by error code",
		}, []string{"operation", "code"}),
	}
}

func (m *Metrics) ObserveLatency(operation, kind string, d time.Duration) {
	if m != nil {
		m.OperationLatency.WithLabelValues(operation, kind).Observe(d.Seconds())
	}
}

func (m *Metrics) AddAffected(operation, kind string, n int) {
	if m != nil && n > 0 {
		m.DocumentsAffected.WithLabelValues(operation, kind).Add(float64(n))
	}
}

func (m *Metrics) IncrementRejected(activityKind string) {
	if m != nil {
		m.TransitionsRejected.WithLabelValues(activityKind).Inc()
	}
}

func (m *Metrics) IncrementError(operation, code string) {
	if m != nil {
		m.OperationErrors.WithLabelValues(operation, code).Inc()
	}
}
