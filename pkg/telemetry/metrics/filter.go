package metrics

import (
	"github.com/mercator-hq/warden/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// FilterMetrics tracks the per-direction body stream filters.
//
// Metrics:
//   - warden_gateway_bytes_forwarded_total: Bytes forwarded downstream by direction
//   - warden_gateway_bytes_notified_total: Pre-edit bytes delivered to the engine
//   - warden_gateway_edits_applied_total: Byte-range edits applied by direction
//   - warden_gateway_edits_dropped_total: Edits rejected or unsatisfiable, by reason
//   - warden_gateway_body_bytes: Per-transaction body size histogram
type FilterMetrics struct {
	// Bytes forwarded downstream (post-edit)
	bytesForwarded *prometheus.CounterVec

	// Bytes notified to the engine (pre-edit)
	bytesNotified *prometheus.CounterVec

	// Edits applied
	editsApplied *prometheus.CounterVec

	// Edits dropped (too late, out of range, overlap)
	editsDropped *prometheus.CounterVec

	// Per-transaction body size distribution
	bodyBytes *prometheus.HistogramVec
}

// NewFilterMetrics creates and registers stream-filter metrics with the provided registry.
func NewFilterMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *FilterMetrics {
	fm := &FilterMetrics{
		bytesForwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "bytes_forwarded_total",
				Help:      "Body bytes forwarded downstream after edits, by direction",
			},
			[]string{"direction"},
		),

		bytesNotified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "bytes_notified_total",
				Help:      "Pre-edit body bytes delivered to the rules engine, by direction",
			},
			[]string{"direction"},
		),

		editsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "edits_applied_total",
				Help:      "Byte-range edits applied to a body stream, by direction",
			},
			[]string{"direction"},
		),

		editsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "edits_dropped_total",
				Help:      "Byte-range edits rejected or unsatisfiable, by direction and reason",
			},
			[]string{"direction", "reason"},
		),

		bodyBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "body_bytes",
				Help:      "Per-transaction body size in bytes, by direction",
				Buckets:   cfg.BodyBytesBuckets,
			},
			[]string{"direction"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		fm.bytesForwarded,
		fm.bytesNotified,
		fm.editsApplied,
		fm.editsDropped,
		fm.bodyBytes,
	)

	return fm
}

// RecordForwarded adds to the bytes-forwarded counter for a direction.
func (fm *FilterMetrics) RecordForwarded(direction string, n int64) {
	if n > 0 {
		fm.bytesForwarded.WithLabelValues(direction).Add(float64(n))
	}
}

// RecordNotified adds to the bytes-notified counter for a direction.
func (fm *FilterMetrics) RecordNotified(direction string, n int64) {
	if n > 0 {
		fm.bytesNotified.WithLabelValues(direction).Add(float64(n))
	}
}

// RecordEditApplied counts one applied edit.
func (fm *FilterMetrics) RecordEditApplied(direction string) {
	fm.editsApplied.WithLabelValues(direction).Inc()
}

// RecordEditDropped counts one dropped edit.
//
// Common reasons:
//   - "too_late": edit targeted bytes already forwarded
//   - "out_of_range": edit extended past end of stream at terminal flush
//   - "overlap": edit overlapped a previously queued edit
func (fm *FilterMetrics) RecordEditDropped(direction, reason string) {
	fm.editsDropped.WithLabelValues(direction, reason).Inc()
}

// RecordBodySize observes a transaction's total body size for a direction.
func (fm *FilterMetrics) RecordBodySize(direction string, n int64) {
	if n >= 0 {
		fm.bodyBytes.WithLabelValues(direction).Observe(float64(n))
	}
}
