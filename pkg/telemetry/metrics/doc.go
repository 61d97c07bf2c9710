// Package metrics provides Prometheus metrics for the gateway.
//
// A single Collector owns every metric family and the registry behind
// the /metrics endpoint. Subsystems record through the collector rather
// than holding raw prometheus types:
//
//   - Transactions: count, duration, and verdict of each exchange, plus
//     session open/close/bypass accounting.
//   - Dispatch: notification queue depth, per-event dispatch counts and
//     durations, and rendezvous wait times — a slow rules engine shows
//     up here before it shows up as user-visible latency.
//   - Stream filters: bytes forwarded (post-edit) and notified
//     (pre-edit) per direction, edits applied and dropped, and body
//     size distributions.
//   - Policy: per-rule evaluation counts, durations, hits, and misses.
//   - Caches: hit/miss/size for the policy and regex compile caches.
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	http.Handle(cfg.Telemetry.Metrics.Path, metrics.Handler(collector))
//
// Label cardinality is bounded by a CardinalityLimiter: once 10K unique
// label sets exist, further method labels collapse into "other".
package metrics
