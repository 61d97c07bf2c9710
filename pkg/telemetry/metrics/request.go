package metrics

import (
	"time"

	"github.com/mercator-hq/warden/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks metrics related to transaction processing.
//
// Metrics:
//   - warden_gateway_transactions_total: Total transaction count by method, status class, verdict
//   - warden_gateway_transaction_duration_seconds: Transaction duration histogram
//   - warden_gateway_sessions_active: Currently open proxy sessions
//   - warden_gateway_sessions_bypassed_total: Sessions running without an engine
type RequestMetrics struct {
	// Total transaction count
	transactionsTotal *prometheus.CounterVec

	// Transaction duration histogram
	transactionDuration *prometheus.HistogramVec

	// Currently open sessions
	sessionsActive prometheus.Gauge

	// Sessions that entered bypass mode
	sessionsBypassed prometheus.Counter
}

// NewRequestMetrics creates and registers transaction metrics with the provided registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		transactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "transactions_total",
				Help:      "Total number of transactions processed",
			},
			[]string{"method", "status_class", "verdict"},
		),

		transactionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "transaction_duration_seconds",
				Help:      "Duration of transactions in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"verdict"},
		),

		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "sessions_active",
				Help:      "Number of currently open proxy sessions",
			},
		),

		sessionsBypassed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "sessions_bypassed_total",
				Help:      "Number of sessions that ran without an engine (bypass mode)",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		rm.transactionsTotal,
		rm.transactionDuration,
		rm.sessionsActive,
		rm.sessionsBypassed,
	)

	return rm
}

// RecordTransaction records metrics for a completed transaction.
//
// Parameters:
//   - method: HTTP method of the request
//   - statusClass: Status class of the final response ("2xx", "4xx", ...)
//   - verdict: Outcome ("passed", "blocked", "edited", "bypassed")
//   - duration: Transaction duration
func (rm *RequestMetrics) RecordTransaction(method, statusClass, verdict string, duration time.Duration) {
	rm.transactionsTotal.WithLabelValues(method, statusClass, verdict).Inc()
	rm.transactionDuration.WithLabelValues(verdict).Observe(duration.Seconds())
}

// SessionOpened increments the active-session gauge.
func (rm *RequestMetrics) SessionOpened() {
	rm.sessionsActive.Inc()
}

// SessionClosed decrements the active-session gauge.
func (rm *RequestMetrics) SessionClosed() {
	rm.sessionsActive.Dec()
}

// SessionBypassed records a session that entered bypass mode.
func (rm *RequestMetrics) SessionBypassed() {
	rm.sessionsBypassed.Inc()
}
