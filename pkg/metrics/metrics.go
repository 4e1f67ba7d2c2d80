// Package metrics exposes Prometheus instrumentation for the credential
// vaulting workflow.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workflowOpsTotal  *prometheus.CounterVec
	workflowDuration  *prometheus.HistogramVec
	credentialFetches *prometheus.CounterVec
	unsealAttempts    prometheus.Counter

	metricsOnce sync.Once
)

// Init registers all Prometheus metrics. Safe to call more than once.
func Init() {
	metricsOnce.Do(func() {
		workflowOpsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_connection_ops_total",
				Help: "Total connection workflow operations by operation and status",
			},
			[]string{"operation", "status"},
		)

		workflowDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insight_connection_op_duration_seconds",
				Help:    "Duration of connection workflow operations in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		)

		credentialFetches = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_credential_fetches_total",
				Help: "Credential fetches from the secret store by outcome",
			},
			[]string{"outcome"}, // "hit", "miss", "error"
		)

		unsealAttempts = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "insight_unseal_attempts_total",
				Help: "Unseal share submissions to the secret store",
			},
		)
	})
}

// WorkflowMetrics records workflow-level metrics. The zero value is unusable;
// construct with NewWorkflowMetrics after Init.
type WorkflowMetrics struct{}

// NewWorkflowMetrics returns a recorder backed by the registered metrics.
func NewWorkflowMetrics() *WorkflowMetrics {
	Init()
	return &WorkflowMetrics{}
}

// RecordOp records one workflow operation and its duration.
func (m *WorkflowMetrics) RecordOp(operation, status string, elapsed time.Duration) {
	workflowOpsTotal.WithLabelValues(operation, status).Inc()
	workflowDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordCredentialFetch records the outcome of a secret store lookup.
func (m *WorkflowMetrics) RecordCredentialFetch(outcome string) {
	credentialFetches.WithLabelValues(outcome).Inc()
}

// RecordUnsealAttempt counts one unseal share submission.
func RecordUnsealAttempt() {
	Init()
	unsealAttempts.Inc()
}
