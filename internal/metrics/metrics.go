package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric pkginstall exposes via the serve
// verb's /metrics endpoint.
type Metrics struct {
	// Transaction lifecycle metrics
	TransactionsTotal    *prometheus.CounterVec
	TransactionDuration  *prometheus.HistogramVec
	ActiveTransactions   prometheus.Gauge

	// Step execution metrics
	StepsExecutedTotal     *prometheus.CounterVec
	StepExecutionDuration  *prometheus.HistogramVec

	// Rollback metrics
	RollbacksTotal          *prometheus.CounterVec
	CompensationFailuresTotal prometheus.Counter

	// Durable log metrics
	StoreOperationsTotal    *prometheus.CounterVec
	StoreOperationDuration  *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// Registry returns the private registry these metrics were registered
// against, for wiring into promhttp.HandlerFor. Each Metrics owns its own
// registry rather than the global DefaultRegisterer, so constructing more
// than one Metrics (as tests do, one per test) never panics on duplicate
// registration.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// NewMetrics creates and registers every metric against a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		TransactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkginstall_transactions_total",
				Help: "Total number of transactions, by terminal status",
			},
			[]string{"status"},
		),

		TransactionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pkginstall_transaction_duration_seconds",
				Help:    "Duration of a transaction from begin to its terminal status",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 300, 600},
			},
			[]string{"status"},
		),

		ActiveTransactions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pkginstall_active_transactions",
				Help: "1 if a transaction is currently in_progress or rolling_back on this instance, else 0",
			},
		),

		StepsExecutedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkginstall_steps_executed_total",
				Help: "Total number of steps applied, by type and outcome",
			},
			[]string{"type", "status"},
		),

		StepExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pkginstall_step_execution_duration_seconds",
				Help:    "Duration of a single step's apply, by type",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"type"},
		),

		RollbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkginstall_rollbacks_total",
				Help: "Total number of rollback sweeps, by final outcome",
			},
			[]string{"outcome"},
		),

		CompensationFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pkginstall_compensation_failures_total",
				Help: "Total number of per-step compensation failures across all rollbacks",
			},
		),

		StoreOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkginstall_store_operations_total",
				Help: "Total number of durable log operations, by operation and outcome",
			},
			[]string{"op", "status"},
		),

		StoreOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pkginstall_store_operation_duration_seconds",
				Help:    "Duration of durable log operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"op"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkginstall_http_requests_total",
				Help: "Total number of HTTP requests served by the serve verb",
			},
			[]string{"method", "endpoint", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pkginstall_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "endpoint"},
		),
	}

	return m
}

// RecordTransaction records a transaction reaching a terminal status.
func (m *Metrics) RecordTransaction(status string, durationSeconds float64) {
	m.TransactionsTotal.WithLabelValues(status).Inc()
	m.TransactionDuration.WithLabelValues(status).Observe(durationSeconds)
}

// SetActiveTransaction reports whether this instance currently holds an
// in_progress or rolling_back transaction.
func (m *Metrics) SetActiveTransaction(active bool) {
	value := 0.0
	if active {
		value = 1.0
	}
	m.ActiveTransactions.Set(value)
}

// RecordStep records one step's apply outcome and duration.
func (m *Metrics) RecordStep(stepType, status string, durationSeconds float64) {
	m.StepsExecutedTotal.WithLabelValues(stepType, status).Inc()
	m.StepExecutionDuration.WithLabelValues(stepType).Observe(durationSeconds)
}

// RecordRollback records a rollback sweep's final outcome.
func (m *Metrics) RecordRollback(outcome string) {
	m.RollbacksTotal.WithLabelValues(outcome).Inc()
}

// RecordCompensationFailure records one per-step compensation failure.
func (m *Metrics) RecordCompensationFailure() {
	m.CompensationFailuresTotal.Inc()
}

// RecordStoreOperation records one durable-log operation's outcome and
// duration.
func (m *Metrics) RecordStoreOperation(op, status string, durationSeconds float64) {
	m.StoreOperationsTotal.WithLabelValues(op, status).Inc()
	m.StoreOperationDuration.WithLabelValues(op).Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request served by the serve verb.
func (m *Metrics) RecordHTTPRequest(method, endpoint, status string, durationSeconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
