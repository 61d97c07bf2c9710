package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mercator-hq/warden/pkg/mpl/ast"
)

// DefaultExecutor is the default implementation of ActionExecutor.
type DefaultExecutor struct {
	logger *slog.Logger
}

// NewDefaultExecutor creates a new default action executor.
func NewDefaultExecutor(logger *slog.Logger) *DefaultExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultExecutor{
		logger: logger,
	}
}

// Execute executes an action and returns the result.
func (e *DefaultExecutor) Execute(ctx context.Context, action *ast.Action, evalCtx *EvaluationContext) (*ActionResult, error) {
	if action == nil {
		return nil, fmt.Errorf("action cannot be nil")
	}

	e.logger.Debug("executing action",
		"type", action.Type,
		"request_id", evalCtx.RequestID,
	)

	switch action.Type {
	case ast.ActionTypeAllow:
		return e.executeAllow(ctx, action, evalCtx)

	case ast.ActionTypeDeny:
		return e.executeDeny(ctx, action, evalCtx)

	case ast.ActionTypeLog:
		return e.executeLog(ctx, action, evalCtx)

	case ast.ActionTypeRedact:
		return e.executeRedact(ctx, action, evalCtx)

	case ast.ActionTypeEditHeader:
		return e.executeEditHeader(ctx, action, evalCtx)

	case ast.ActionTypeAlert:
		return e.executeAlert(ctx, action, evalCtx)

	case ast.ActionTypeTag:
		return e.executeTag(ctx, action, evalCtx)

	case ast.ActionTypeRateLimit:
		return e.executeRateLimit(ctx, action, evalCtx)

	default:
		return &ActionResult{
			ActionType: action.Type,
			Success:    false,
			Error:      fmt.Errorf("unknown action type: %q", action.Type),
		}, nil
	}
}

// executeAllow explicitly allows the transaction (short-circuit).
func (e *DefaultExecutor) executeAllow(ctx context.Context, action *ast.Action, evalCtx *EvaluationContext) (*ActionResult, error) {
	// Stop further evaluation
	evalCtx.Stop()

	e.logger.Info("action allow: transaction explicitly allowed",
		"request_id", evalCtx.RequestID,
	)

	return &ActionResult{
		ActionType: action.Type,
		Success:    true,
		Details: map[string]interface{}{
			"action": "allow",
		},
	}, nil
}

// executeDeny blocks the transaction with a synthetic error response.
func (e *DefaultExecutor) executeDeny(ctx context.Context, action *ast.Action, evalCtx *EvaluationContext) (*ActionResult, error) {
	// Get deny parameters
	message := action.GetStringParameter("message")
	if message == "" {
		message = "Request denied by policy"
	}

	statusCode := int(action.GetNumberParameter("status_code"))
	if statusCode == 0 {
		statusCode = 403 // Default to Forbidden
	}

	// Set block in evaluation context
	evalCtx.SetBlock(message, statusCode)

	if body := action.GetStringParameter("body"); body != "" {
		evalCtx.BlockBody = body
	}
	if name := action.GetStringParameter("header_name"); name != "" {
		evalCtx.AddBlockHeader(name, action.GetStringParameter("header_value"))
	}

	e.logger.Warn("action deny: blocking transaction",
		"request_id", evalCtx.RequestID,
		"message", message,
		"status_code", statusCode,
	)

	return &ActionResult{
		ActionType: action.Type,
		Success:    true,
		Details: map[string]interface{}{
			"message":     message,
			"status_code": statusCode,
		},
	}, nil
}

// executeLog logs an event.
func (e *DefaultExecutor) executeLog(ctx context.Context, action *ast.Action, evalCtx *EvaluationContext) (*ActionResult, error) {
	message := action.GetStringParameter("message")
	level := action.GetStringParameter("level")

	if level == "" {
		level = "info"
	}

	// Log based on level
	switch level {
	case "debug":
		e.logger.Debug(message, "request_id", evalCtx.RequestID)
	case "info":
		e.logger.Info(message, "request_id", evalCtx.RequestID)
	case "warn":
		e.logger.Warn(message, "request_id", evalCtx.RequestID)
	case "error":
		e.logger.Error(message, "request_id", evalCtx.RequestID)
	default:
		e.logger.Info(message, "request_id", evalCtx.RequestID)
	}

	return &ActionResult{
		ActionType: action.Type,
		Success:    true,
		Details: map[string]interface{}{
			"message": message,
			"level":   level,
		},
	}, nil
}

// executeRedact redacts body content. Each match of the pattern becomes a
// byte-range stream edit issued by the mediator.
func (e *DefaultExecutor) executeRedact(ctx context.Context, action *ast.Action, evalCtx *EvaluationContext) (*ActionResult, error) {
	// Get redact parameters
	strategy := action.GetStringParameter("strategy")
	if strategy == "" {
		strategy = "mask" // Default to masking
	}

	direction := action.GetStringParameter("direction")
	if direction == "" {
		direction = "response" // Default to response bodies
	}

	pattern := action.GetStringParameter("pattern")
	replacement := action.GetStringParameter("replacement")

	if replacement == "" {
		replacement = "***"
	}

	// Add redaction to evaluation context. The byte-range edits are
	// computed by the mediator as body chunks arrive.
	evalCtx.AddRedaction(direction, strategy, pattern, replacement, 0)

	e.logger.Info("action redact: content redaction configured",
		"request_id", evalCtx.RequestID,
		"direction", direction,
		"strategy", strategy,
		"pattern", pattern,
	)

	return &ActionResult{
		ActionType: action.Type,
		Success:    true,
		Details: map[string]interface{}{
			"direction":   direction,
			"strategy":    strategy,
			"pattern":     pattern,
			"replacement": replacement,
		},
	}, nil
}

// executeEditHeader queues a header mutation.
func (e *DefaultExecutor) executeEditHeader(ctx context.Context, action *ast.Action, evalCtx *EvaluationContext) (*ActionResult, error) {
	name := action.GetStringParameter("name")
	if name == "" {
		return &ActionResult{
			ActionType: action.Type,
			Success:    false,
			Error:      fmt.Errorf("name parameter is required for edit_header action"),
		}, nil
	}

	direction := action.GetStringParameter("direction")
	if direction == "" {
		direction = "request"
	}

	op := action.GetStringParameter("op")
	if op == "" {
		op = "set"
	}

	value := action.GetStringParameter("value")
	replacement := action.GetStringParameter("replacement")

	if op == "edit" && value == "" {
		return &ActionResult{
			ActionType: action.Type,
			Success:    false,
			Error:      fmt.Errorf("value (pattern) parameter is required for edit op"),
		}, nil
	}

	evalCtx.AddHeaderEdit(direction, op, name, value, replacement)

	e.logger.Info("action edit_header: queuing header mutation",
		"request_id", evalCtx.RequestID,
		"direction", direction,
		"op", op,
		"header", name,
	)

	return &ActionResult{
		ActionType: action.Type,
		Success:    true,
		Details: map[string]interface{}{
			"direction": direction,
			"op":        op,
			"name":      name,
			"value":     value,
		},
	}, nil
}

// executeAlert sends an external alert/webhook.
func (e *DefaultExecutor) executeAlert(ctx context.Context, action *ast.Action, evalCtx *EvaluationContext) (*ActionResult, error) {
	// Get alert parameters
	destination := action.GetStringParameter("destination")
	message := action.GetStringParameter("message")
	notifType := action.GetStringParameter("type")

	if destination == "" {
		return &ActionResult{
			ActionType: action.Type,
			Success:    false,
			Error:      fmt.Errorf("destination parameter is required for alert action"),
		}, nil
	}

	if notifType == "" {
		notifType = "webhook"
	}

	// Build notification payload
	payload := map[string]interface{}{
		"request_id": evalCtx.RequestID,
		"message":    message,
		"timestamp":  evalCtx.StartTime,
	}

	// Add notification to evaluation context
	evalCtx.AddNotification(notifType, destination, payload, true)

	e.logger.Info("action alert: adding notification",
		"request_id", evalCtx.RequestID,
		"type", notifType,
		"destination", destination,
	)

	return &ActionResult{
		ActionType: action.Type,
		Success:    true,
		Details: map[string]interface{}{
			"type":        notifType,
			"destination": destination,
			"message":     message,
		},
	}, nil
}

// RateLimitChecker is consulted by the rate_limit action. It reports
// whether the keyed client has exhausted its limits.
type RateLimitChecker interface {
	// Allow reports whether the identified client may proceed.
	Allow(ctx context.Context, identifier string) (bool, error)
}

// rateLimiter is the process-wide checker installed by the gateway at
// startup; nil means rate_limit actions always pass.
var rateLimiter RateLimitChecker

// SetRateLimitChecker installs the checker consulted by rate_limit
// actions. Call once at startup, before traffic flows.
func SetRateLimitChecker(c RateLimitChecker) {
	rateLimiter = c
}

// executeRateLimit consults the rate limiter and blocks with a 429 when
// the keyed client is over its limits.
func (e *DefaultExecutor) executeRateLimit(ctx context.Context, action *ast.Action, evalCtx *EvaluationContext) (*ActionResult, error) {
	// The key defaults to the client IP; a rule can key by a header
	// (e.g. an API key) instead.
	key := ""
	if evalCtx.Request != nil {
		key = evalCtx.Request.ClientIP
		if headerKey := action.GetStringParameter("key_header"); headerKey != "" {
			if v := evalCtx.Request.Header(headerKey); v != "" {
				key = v
			}
		}
	}

	if rateLimiter == nil || key == "" {
		return &ActionResult{
			ActionType: action.Type,
			Success:    true,
			Details:    map[string]interface{}{"key": key, "checked": false},
		}, nil
	}

	allowed, err := rateLimiter.Allow(ctx, key)
	if err != nil {
		e.logger.Error("action rate_limit: check failed",
			"request_id", evalCtx.RequestID,
			"key", key,
			"error", err,
		)
		// A broken limiter never blocks traffic on its own.
		return &ActionResult{
			ActionType: action.Type,
			Success:    true,
			Error:      err,
			Details:    map[string]interface{}{"key": key, "checked": false},
		}, nil
	}

	if !allowed {
		evalCtx.SetBlock("rate limit exceeded", 429)
		e.logger.Warn("action rate_limit: limit exceeded",
			"request_id", evalCtx.RequestID,
			"key", key,
		)
	}

	return &ActionResult{
		ActionType: action.Type,
		Success:    true,
		Details: map[string]interface{}{
			"key":     key,
			"allowed": allowed,
		},
	}, nil
}

// executeTag adds metadata tags to the evaluation context.
// Tags can be used for tracking, analytics, and auditing.
//
// Parameters:
//   - key: Tag key (required)
//   - value: Static tag value (optional if value_from provided)
//   - value_from: Extract value from a transaction field
//
// Supported value_from paths:
//   - request.method - The HTTP method
//   - request.path - The request path
//   - request.client_ip - The client address
//   - request.risk_score - The computed risk score
//   - response.status - The response status code
//
// Examples:
//   - tag: {key: "method", value_from: "request.method"}
//   - tag: {key: "environment", value: "production"}
func (e *DefaultExecutor) executeTag(ctx context.Context, action *ast.Action, evalCtx *EvaluationContext) (*ActionResult, error) {
	key := action.GetStringParameter("key")
	if key == "" {
		return &ActionResult{
			ActionType: action.Type,
			Success:    false,
			Error:      fmt.Errorf("key parameter is required for tag action"),
		}, nil
	}

	value := action.GetStringParameter("value")

	// Support value_from for dynamic values
	if value == "" {
		if valueFrom := action.GetStringParameter("value_from"); valueFrom != "" {
			extractedValue, err := extractField(valueFrom, evalCtx)
			if err != nil {
				e.logger.Warn("failed to extract tag value from field",
					"request_id", evalCtx.RequestID,
					"field", valueFrom,
					"error", err,
				)
				// Continue with empty value rather than failing
				value = ""
			} else {
				value = fmt.Sprintf("%v", extractedValue)
			}
		}
	}

	if value == "" {
		value = "true" // Default value if nothing specified
	}

	// Add tag to evaluation context
	evalCtx.AddTag(key, value)

	e.logger.Info("action tag: added metadata tag",
		"request_id", evalCtx.RequestID,
		"key", key,
		"value", value,
	)

	return &ActionResult{
		ActionType: action.Type,
		Success:    true,
		Details: map[string]interface{}{
			"key":   key,
			"value": value,
		},
	}, nil
}
