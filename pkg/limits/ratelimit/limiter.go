package ratelimit

import (
	"time"
)

// Limiter coordinates multiple rate limiting strategies.
//
// The Limiter combines token bucket, sliding window, and concurrent limiters
// to provide comprehensive rate limiting across multiple dimensions:
//
//   - Request-based limits (requests per second/minute/hour)
//   - Byte-based limits (bytes per minute/hour)
//   - Concurrent request limits
//
// All limits are evaluated together - if any limit is exceeded, the request
// is rejected with details about which limit was hit.
type Limiter struct {
	// Request-based limits (token buckets)
	reqPerSecond *TokenBucket
	reqPerMinute *TokenBucket
	reqPerHour   *TokenBucket

	// Byte-based limits (sliding windows)
	bytesPerMinute *SlidingWindow
	bytesPerHour   *SlidingWindow

	// Concurrent limit
	concurrent *ConcurrentLimiter

	// Configuration
	config Config
}

// NewLimiter creates a new rate limiter with the given configuration.
//
// Only non-zero limits in the config are enforced. Zero values mean no limit.
//
// Example:
//
//	limiter := NewLimiter(Config{
//	    RequestsPerSecond: 10,
//	    RequestsPerMinute: 500,
//	    BytesPerMinute:   100000,
//	    MaxConcurrent:     50,
//	})
func NewLimiter(config Config) *Limiter {
	limiter := &Limiter{
		config: config,
	}

	// Initialize request-based limits (token buckets)
	if config.RequestsPerSecond > 0 {
		// Allow burst up to 2x the per-second rate
		capacity := int64(config.RequestsPerSecond * 2)
		limiter.reqPerSecond = NewTokenBucket(capacity, float64(config.RequestsPerSecond))
	}

	if config.RequestsPerMinute > 0 {
		// Allow burst up to the full minute rate
		capacity := int64(config.RequestsPerMinute)
		limiter.reqPerMinute = NewTokenBucket(capacity, float64(config.RequestsPerMinute)/60.0)
	}

	if config.RequestsPerHour > 0 {
		// Allow burst up to 5 minutes worth
		capacity := int64(config.RequestsPerHour / 12)
		limiter.reqPerHour = NewTokenBucket(capacity, float64(config.RequestsPerHour)/3600.0)
	}

	// Initialize byte-based limits (sliding windows)
	if config.BytesPerMinute > 0 {
		// 1-second granularity for per-minute window
		limiter.bytesPerMinute = NewSlidingWindow(time.Minute, time.Second)
	}

	if config.BytesPerHour > 0 {
		// 1-minute granularity for per-hour window
		limiter.bytesPerHour = NewSlidingWindow(time.Hour, time.Minute)
	}

	// Initialize concurrent limiter
	if config.MaxConcurrent > 0 {
		limiter.concurrent = NewConcurrentLimiter(config.MaxConcurrent)
	}

	return limiter
}

// CheckRequest checks if a request is allowed based on request-based limits.
// This should be called before processing the request.
//
// Returns CheckResult indicating if the request is allowed and why.
func (l *Limiter) CheckRequest() *CheckResult {
	// Check requests per second
	if l.reqPerSecond != nil {
		if !l.reqPerSecond.Take(1) {
			retryAfter := l.reqPerSecond.TimeUntilAvailable(1)
			return &CheckResult{
				Allowed:    false,
				Reason:     "requests per second limit exceeded",
				Limit:      l.reqPerSecond.Capacity(),
				Remaining:  l.reqPerSecond.Remaining(),
				Reset:      time.Now().Add(time.Second),
				RetryAfter: retryAfter,
			}
		}
	}

	// Check requests per minute
	if l.reqPerMinute != nil {
		if !l.reqPerMinute.Take(1) {
			retryAfter := l.reqPerMinute.TimeUntilAvailable(1)
			return &CheckResult{
				Allowed:    false,
				Reason:     "requests per minute limit exceeded",
				Limit:      l.reqPerMinute.Capacity(),
				Remaining:  l.reqPerMinute.Remaining(),
				Reset:      time.Now().Add(time.Minute),
				RetryAfter: retryAfter,
			}
		}
	}

	// Check requests per hour
	if l.reqPerHour != nil {
		if !l.reqPerHour.Take(1) {
			retryAfter := l.reqPerHour.TimeUntilAvailable(1)
			return &CheckResult{
				Allowed:    false,
				Reason:     "requests per hour limit exceeded",
				Limit:      l.reqPerHour.Capacity(),
				Remaining:  l.reqPerHour.Remaining(),
				Reset:      time.Now().Add(time.Hour),
				RetryAfter: retryAfter,
			}
		}
	}

	// All request limits passed
	return &CheckResult{
		Allowed: true,
	}
}

// CheckBytes checks if a request is allowed based on byte-based limits.
// This should be called before processing the request.
//
// Parameters:
//   - estimatedBytes: Estimated body bytes this request will carry
//
// Returns CheckResult indicating if the request is allowed and why.
func (l *Limiter) CheckBytes(estimatedBytes int) *CheckResult {
	// Check bytes per minute
	if l.bytesPerMinute != nil {
		currentUsage := l.bytesPerMinute.Sum()
		if currentUsage+int64(estimatedBytes) > int64(l.config.BytesPerMinute) {
			return &CheckResult{
				Allowed:    false,
				Reason:     "bytes per minute limit exceeded",
				Limit:      int64(l.config.BytesPerMinute),
				Remaining:  int64(l.config.BytesPerMinute) - currentUsage,
				Reset:      time.Now().Add(time.Minute),
				RetryAfter: time.Minute, // Conservative estimate
			}
		}
	}

	// Check bytes per hour
	if l.bytesPerHour != nil {
		currentUsage := l.bytesPerHour.Sum()
		if currentUsage+int64(estimatedBytes) > int64(l.config.BytesPerHour) {
			return &CheckResult{
				Allowed:    false,
				Reason:     "bytes per hour limit exceeded",
				Limit:      int64(l.config.BytesPerHour),
				Remaining:  int64(l.config.BytesPerHour) - currentUsage,
				Reset:      time.Now().Add(time.Hour),
				RetryAfter: time.Hour, // Conservative estimate
			}
		}
	}

	// All byte limits passed
	return &CheckResult{
		Allowed: true,
	}
}

// RecordBytes records actual byte usage after a request completes.
// This updates the sliding window counters.
//
// Parameters:
//   - actualBytes: Actual body bytes carried by the request
func (l *Limiter) RecordBytes(actualBytes int) {
	if l.bytesPerMinute != nil {
		l.bytesPerMinute.Add(int64(actualBytes))
	}

	if l.bytesPerHour != nil {
		l.bytesPerHour.Add(int64(actualBytes))
	}
}

// AcquireConcurrent attempts to acquire a concurrency slot.
// Returns true if acquired, false if limit reached.
//
// If this returns true, the caller MUST call ReleaseConcurrent() when done.
func (l *Limiter) AcquireConcurrent() bool {
	if l.concurrent == nil {
		return true // No concurrent limit configured
	}

	return l.concurrent.Acquire()
}

// ReleaseConcurrent releases a concurrency slot.
// This MUST be called after a successful AcquireConcurrent().
func (l *Limiter) ReleaseConcurrent() {
	if l.concurrent != nil {
		l.concurrent.Release()
	}
}

// GetConcurrentStatus returns the current concurrent request status.
func (l *Limiter) GetConcurrentStatus() *CheckResult {
	if l.concurrent == nil {
		return &CheckResult{Allowed: true}
	}

	return &CheckResult{
		Allowed:   true,
		Limit:     l.concurrent.Limit(),
		Remaining: l.concurrent.Remaining(),
	}
}

// Reset resets all limits. This is primarily for testing.
func (l *Limiter) Reset() {
	if l.reqPerSecond != nil {
		l.reqPerSecond.Reset()
	}
	if l.reqPerMinute != nil {
		l.reqPerMinute.Reset()
	}
	if l.reqPerHour != nil {
		l.reqPerHour.Reset()
	}
	if l.bytesPerMinute != nil {
		l.bytesPerMinute.Reset()
	}
	if l.bytesPerHour != nil {
		l.bytesPerHour.Reset()
	}
	if l.concurrent != nil {
		l.concurrent.Reset()
	}
}
