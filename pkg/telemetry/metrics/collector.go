package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/mercator-hq/warden/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the main orchestrator for all Prometheus metrics in the
// gateway. It manages metric registration, collection, and provides a
// unified interface for recording metrics across all components.
//
// The collector is designed for high-performance with minimal overhead (<50µs per update):
//   - Pre-allocated metric instances
//   - Lock-free counters where possible
//   - Cardinality limits to prevent memory issues
//   - Histogram buckets sized for proxy body streams
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Transaction metrics
	requestMetrics *RequestMetrics

	// Dispatcher / rendezvous metrics
	dispatchMetrics *DispatchMetrics

	// Stream filter metrics
	filterMetrics *FilterMetrics

	// Policy metrics
	policyMetrics *PolicyMetrics

	// Cache metrics (policy compile cache)
	cacheMetrics *CacheMetrics

	// Cardinality tracking
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a fresh registry is used.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "warden",
//		Subsystem: "gateway",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	// Set defaults if not specified
	if cfg.Namespace == "" {
		cfg.Namespace = "warden"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "gateway"
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		// Sized for proxied exchanges (1ms - 30s)
		cfg.RequestDurationBuckets = []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0}
	}
	if len(cfg.BodyBytesBuckets) == 0 {
		// Sized for body streams (1 KiB - 8 MiB)
		cfg.BodyBytesBuckets = []float64{1024, 8192, 65536, 262144, 1048576, 8388608}
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(10000), // Max 10K unique label sets
	}

	// Initialize metric subsystems
	c.requestMetrics = NewRequestMetrics(cfg, registry)
	c.dispatchMetrics = NewDispatchMetrics(cfg, registry)
	c.filterMetrics = NewFilterMetrics(cfg, registry)
	c.policyMetrics = NewPolicyMetrics(cfg, registry)
	c.cacheMetrics = NewCacheMetrics(cfg, registry)

	return c
}

// RecordTransaction records metrics for a completed transaction.
//
// Parameters:
//   - method: HTTP method of the request
//   - statusClass: Final response status class ("2xx", "4xx", ...)
//   - verdict: Outcome ("passed", "blocked", "edited", "bypassed")
//   - duration: Total transaction duration
func (c *Collector) RecordTransaction(method, statusClass, verdict string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	// Check cardinality limit
	labelSet := fmt.Sprintf("txn:%s:%s:%s", method, statusClass, verdict)
	if !c.cardinalityLimiter.Allow(labelSet) {
		// Aggregate into "other" to prevent cardinality explosion
		method = "other"
	}

	c.requestMetrics.RecordTransaction(method, statusClass, verdict, duration)
}

// SessionOpened records a new proxy session.
func (c *Collector) SessionOpened() {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.SessionOpened()
}

// SessionClosed records a proxy session teardown.
func (c *Collector) SessionClosed() {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.SessionClosed()
}

// SessionBypassed records a session that ran without an engine.
func (c *Collector) SessionBypassed() {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.SessionBypassed()
}

// SetDispatchQueueDepth records the dispatcher's current queue depth.
func (c *Collector) SetDispatchQueueDepth(depth int) {
	if !c.config.Enabled {
		return
	}
	c.dispatchMetrics.SetQueueDepth(depth)
}

// RecordNotification records one dispatched engine notification.
func (c *Collector) RecordNotification(event string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.dispatchMetrics.RecordNotification(event, duration)
}

// RecordRendezvousWait records a rendezvous wait on a serving goroutine.
func (c *Collector) RecordRendezvousWait(duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.dispatchMetrics.RecordRendezvousWait(duration)
}

// RecordBytesForwarded adds to the post-edit bytes forwarded downstream.
func (c *Collector) RecordBytesForwarded(direction string, n int64) {
	if !c.config.Enabled {
		return
	}
	c.filterMetrics.RecordForwarded(direction, n)
}

// RecordBytesNotified adds to the pre-edit bytes delivered to the engine.
func (c *Collector) RecordBytesNotified(direction string, n int64) {
	if !c.config.Enabled {
		return
	}
	c.filterMetrics.RecordNotified(direction, n)
}

// RecordEditApplied counts one applied stream edit.
func (c *Collector) RecordEditApplied(direction string) {
	if !c.config.Enabled {
		return
	}
	c.filterMetrics.RecordEditApplied(direction)
}

// RecordEditDropped counts one rejected or unsatisfiable stream edit.
func (c *Collector) RecordEditDropped(direction, reason string) {
	if !c.config.Enabled {
		return
	}
	c.filterMetrics.RecordEditDropped(direction, reason)
}

// RecordBodySize observes a transaction's total body size for a direction.
func (c *Collector) RecordBodySize(direction string, n int64) {
	if !c.config.Enabled {
		return
	}
	c.filterMetrics.RecordBodySize(direction, n)
}

// RecordPolicyEvaluation records metrics for a policy evaluation.
//
// Parameters:
//   - ruleID: Policy rule identifier
//   - action: Policy action taken ("allow", "deny", "edit_header", "edit_body")
//   - duration: Evaluation duration
func (c *Collector) RecordPolicyEvaluation(ruleID, action string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	c.policyMetrics.RecordEvaluation(ruleID, action, duration)
}

// RecordPolicyHit records when a policy rule matched and took action.
func (c *Collector) RecordPolicyHit(ruleID string) {
	if !c.config.Enabled {
		return
	}

	c.policyMetrics.RecordHit(ruleID)
}

// RecordPolicyMiss records when a policy rule did not match.
func (c *Collector) RecordPolicyMiss(ruleID string) {
	if !c.config.Enabled {
		return
	}

	c.policyMetrics.RecordMiss(ruleID)
}

// RecordCacheHit records a cache hit.
//
// Parameters:
//   - cacheName: Name of the cache (e.g., "policy", "regex")
func (c *Collector) RecordCacheHit(cacheName string) {
	if !c.config.Enabled {
		return
	}

	c.cacheMetrics.RecordHit(cacheName)
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(cacheName string) {
	if !c.config.Enabled {
		return
	}

	c.cacheMetrics.RecordMiss(cacheName)
}

// UpdateCacheSize updates the current size of a cache.
func (c *Collector) UpdateCacheSize(cacheName string, size int) {
	if !c.config.Enabled {
		return
	}

	c.cacheMetrics.UpdateSize(cacheName, size)
}

// Registry returns the Prometheus registry used by this collector.
// This can be used to create an HTTP handler for the /metrics endpoint:
//
//	http.Handle("/metrics", promhttp.HandlerFor(
//		collector.Registry(),
//		promhttp.HandlerOpts{},
//	))
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if we haven't reached the cardinality limit yet.
// Returns false if adding this label set would exceed the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
