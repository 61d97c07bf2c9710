package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/mercator-hq/warden/pkg/config"
	"github.com/mercator-hq/warden/pkg/limits"
	"github.com/mercator-hq/warden/pkg/limits/budget"
	"github.com/mercator-hq/warden/pkg/limits/enforcement"
	"github.com/mercator-hq/warden/pkg/limits/ratelimit"
	"github.com/mercator-hq/warden/pkg/limits/storage"
)

// LimitsMiddleware checks rate limits and request budgets before the
// exchange enters the mediation pipeline.
//
// This middleware:
//   - Extracts an identifier (API key, then client IP) from the request
//   - Checks rate limits and request budgets
//   - Sets rate limit headers (X-RateLimit-*, X-Budget-*)
//   - Blocks requests when limits are exceeded
//   - Records usage after the request completes
//
// Example:
//
//	manager := limits.NewManager(limits.Config{
//	    RateLimits: rateLimitConfigs,
//	    Budgets:    budgetConfigs,
//	})
//	handler := LimitsMiddleware(manager)(next)
func LimitsMiddleware(manager *limits.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// Extract identifier (API key first, client IP as fallback)
			identifier := extractIdentifier(r)
			if identifier == "" {
				// No identifier, skip limits check
				next.ServeHTTP(w, r)
				return
			}

			// Check rate limits and budgets, sized by the announced body
			estimatedBytes := int(r.ContentLength)
			if estimatedBytes < 0 {
				estimatedBytes = 0
			}

			result, err := manager.CheckLimits(ctx, identifier, estimatedBytes)
			if err != nil {
				http.Error(w, "Internal error checking limits", http.StatusInternalServerError)
				return
			}

			// Set rate limit headers
			setLimitHeaders(w, result)

			// Handle limit violations
			if !result.Allowed {
				handleLimitViolation(w, result)
				return
			}

			// Acquire concurrent slot if configured
			if manager.AcquireConcurrent(identifier) {
				defer manager.ReleaseConcurrent(identifier)

				// Forward request
				next.ServeHTTP(w, r)

				// Record the request against its budget. Byte counts come
				// from the announced sizes; the stream filters account for
				// the exact totals in evidence.
				_ = manager.RecordUsage(ctx, &limits.UsageRecord{
					Identifier:   identifier,
					Dimension:    limits.DimensionAPIKey,
					RequestBytes: estimatedBytes,
					TotalBytes:   estimatedBytes,
				})
			} else {
				// Concurrent limit exceeded
				w.Header().Set("X-RateLimit-Limit", "concurrent")
				http.Error(w, "Too many concurrent requests", http.StatusTooManyRequests)
				return
			}
		})
	}
}

// extractIdentifier extracts the limiting identifier from the request.
// Priority: API key > client IP.
func extractIdentifier(r *http.Request) string {
	if key := r.Header.Get("X-Api-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// setLimitHeaders sets rate limit and budget headers on the response.
func setLimitHeaders(w http.ResponseWriter, result *limits.LimitCheckResult) {
	// Set rate limit headers
	if result.RateLimit != nil {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", result.RateLimit.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.RateLimit.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", result.RateLimit.Reset.Unix()))
	}

	// Set budget headers
	if result.Budget != nil {
		w.Header().Set("X-Budget-Limit", fmt.Sprintf("%.0f", result.Budget.Limit))
		w.Header().Set("X-Budget-Used", fmt.Sprintf("%.0f", result.Budget.Used))
		w.Header().Set("X-Budget-Remaining", fmt.Sprintf("%.0f", result.Budget.Remaining))
		w.Header().Set("X-Budget-Reset", fmt.Sprintf("%d", result.Budget.Reset.Unix()))
	}

	// Set retry-after header if applicable
	if result.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(result.RetryAfter.Seconds())))
	}
}

// handleLimitViolation handles a limit violation by returning appropriate error.
func handleLimitViolation(w http.ResponseWriter, result *limits.LimitCheckResult) {
	// Set headers
	w.WriteHeader(http.StatusTooManyRequests)

	// Write error response
	fmt.Fprintf(w, `{"error": {"message": "%s", "type": "rate_limit_exceeded"}}`, result.Reason)
}

// NewLimitsManagerFromConfig creates a limits manager from the gateway
// configuration.
func NewLimitsManagerFromConfig(cfg *config.LimitsConfig) (*limits.Manager, error) {
	// Convert config format to manager format
	rateLimitsMap := make(map[string]ratelimit.Config)
	budgetsMap := make(map[string]budget.Config)

	// Convert rate limits (API keys and client IPs share a namespace)
	for identifier, rl := range cfg.RateLimits.ByAPIKey {
		rateLimitsMap[identifier] = ratelimit.Config{
			RequestsPerSecond: rl.RequestsPerSecond,
			RequestsPerMinute: rl.RequestsPerMinute,
			RequestsPerHour:   rl.RequestsPerHour,
			BytesPerMinute:    rl.BytesPerMinute,
			BytesPerHour:      rl.BytesPerHour,
			MaxConcurrent:     rl.MaxConcurrent,
		}
	}
	for identifier, rl := range cfg.RateLimits.ByClientIP {
		rateLimitsMap[identifier] = ratelimit.Config{
			RequestsPerSecond: rl.RequestsPerSecond,
			RequestsPerMinute: rl.RequestsPerMinute,
			RequestsPerHour:   rl.RequestsPerHour,
			BytesPerMinute:    rl.BytesPerMinute,
			BytesPerHour:      rl.BytesPerHour,
			MaxConcurrent:     rl.MaxConcurrent,
		}
	}

	// Convert budgets
	for identifier, b := range cfg.Budgets.ByAPIKey {
		budgetsMap[identifier] = budget.Config{
			Hourly:         b.Hourly,
			Daily:          b.Daily,
			Monthly:        b.Monthly,
			AlertThreshold: cfg.Budgets.AlertThreshold,
		}
	}
	for identifier, b := range cfg.Budgets.ByClientIP {
		budgetsMap[identifier] = budget.Config{
			Hourly:         b.Hourly,
			Daily:          b.Daily,
			Monthly:        b.Monthly,
			AlertThreshold: cfg.Budgets.AlertThreshold,
		}
	}

	// Create storage backend
	var storageBackend storage.Backend
	switch cfg.Storage.Backend {
	case "sqlite":
		backend, err := storage.NewSQLiteBackend(cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		storageBackend = backend
	case "memory":
		storageBackend = storage.NewMemoryBackendWithConfig(storage.MemoryBackendConfig{
			MaxEntries:      cfg.Storage.Memory.MaxEntries,
			CleanupInterval: cfg.Storage.Memory.CleanupInterval,
		})
	default:
		storageBackend = storage.NewMemoryBackend()
	}

	// Create manager
	return limits.NewManager(limits.Config{
		RateLimits: rateLimitsMap,
		Budgets:    budgetsMap,
		Enforcement: enforcement.Config{
			DefaultAction: enforcement.Action(cfg.Enforcement.Action),
			QueueDepth:    cfg.Enforcement.QueueDepth,
			QueueTimeout:  cfg.Enforcement.QueueTimeout,
		},
		Storage: storageBackend,
	}), nil
}
