package metrics

import (
	"time"

	"github.com/mercator-hq/warden/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics tracks the notification dispatcher and rendezvous.
//
// Metrics:
//   - warden_gateway_dispatch_queue_depth: Notifications waiting for an eligible worker
//   - warden_gateway_notifications_total: Engine notifications dispatched by event
//   - warden_gateway_notification_duration_seconds: Time spent in an engine notification
//   - warden_gateway_rendezvous_wait_seconds: Time a serving goroutine spent parked
type DispatchMetrics struct {
	// Current queue depth
	queueDepth prometheus.Gauge

	// Notifications dispatched, by event name
	notificationsTotal *prometheus.CounterVec

	// Per-notification duration histogram
	notificationDuration *prometheus.HistogramVec

	// Rendezvous wait histogram
	rendezvousWait prometheus.Histogram
}

// NewDispatchMetrics creates and registers dispatcher metrics with the provided registry.
func NewDispatchMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *DispatchMetrics {
	dm := &DispatchMetrics{
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "dispatch_queue_depth",
				Help:      "Number of notifications waiting for an eligible worker",
			},
		),

		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "notifications_total",
				Help:      "Total engine notifications dispatched, by event",
			},
			[]string{"event"},
		),

		notificationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "notification_duration_seconds",
				Help:      "Time spent inside a single engine notification",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"event"},
		),

		rendezvousWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rendezvous_wait_seconds",
				Help:      "Time a serving goroutine spent waiting for an in-flight engine notification",
				Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		dm.queueDepth,
		dm.notificationsTotal,
		dm.notificationDuration,
		dm.rendezvousWait,
	)

	return dm
}

// SetQueueDepth records the current dispatcher queue depth.
func (dm *DispatchMetrics) SetQueueDepth(depth int) {
	dm.queueDepth.Set(float64(depth))
}

// RecordNotification records one dispatched engine notification.
//
// Parameters:
//   - event: Notification name (e.g., "request_header_data", "logging")
//   - duration: Time the engine call took
func (dm *DispatchMetrics) RecordNotification(event string, duration time.Duration) {
	dm.notificationsTotal.WithLabelValues(event).Inc()
	dm.notificationDuration.WithLabelValues(event).Observe(duration.Seconds())
}

// RecordRendezvousWait records how long a serving goroutine was parked
// waiting for the engine.
func (dm *DispatchMetrics) RecordRendezvousWait(duration time.Duration) {
	dm.rendezvousWait.Observe(duration.Seconds())
}
