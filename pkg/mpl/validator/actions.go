package validator

import (
	"fmt"

	"github.com/mercator-hq/warden/pkg/mpl/ast"
	mplErrors "github.com/mercator-hq/warden/pkg/mpl/errors"
)

// ActionValidator validates action definitions and parameters.
// It checks required parameters, parameter types, and conflicting actions.
type ActionValidator struct {
	errors *mplErrors.ErrorList
}

// NewActionValidator creates a new action validator.
func NewActionValidator() *ActionValidator {
	return &ActionValidator{
		errors: mplErrors.NewErrorList(),
	}
}

// Validate performs action validation on a policy.
func (v *ActionValidator) Validate(policy *ast.Policy) error {
	v.errors = mplErrors.NewErrorList()

	for _, rule := range policy.Rules {
		v.validateRuleActions(rule)
	}

	return v.errors.ToError()
}

// validateRuleActions validates all actions in a rule.
func (v *ActionValidator) validateRuleActions(rule *ast.Rule) {
	// Check for conflicting actions
	v.detectConflictingActions(rule)

	// Validate each action's parameters
	for _, action := range rule.Actions {
		v.validateAction(action, rule.Name)
	}
}

// detectConflictingActions detects conflicting actions in a rule.
func (v *ActionValidator) detectConflictingActions(rule *ast.Rule) {
	hasAllow := rule.HasActionType(ast.ActionTypeAllow)
	hasDeny := rule.HasActionType(ast.ActionTypeDeny)

	// Allow and deny are mutually exclusive
	if hasAllow && hasDeny {
		v.errors.AddError(
			mplErrors.ErrorTypeValidation,
			fmt.Sprintf("Rule %q has both 'allow' and 'deny' actions (conflicting)", rule.Name),
			rule.Location,
		)
	}
}

// validateAction validates a single action.
func (v *ActionValidator) validateAction(action *ast.Action, ruleName string) {
	switch action.Type {
	case ast.ActionTypeAllow:
		v.validateAllowAction(action, ruleName)
	case ast.ActionTypeDeny:
		v.validateDenyAction(action, ruleName)
	case ast.ActionTypeLog:
		v.validateLogAction(action, ruleName)
	case ast.ActionTypeRedact:
		v.validateRedactAction(action, ruleName)
	case ast.ActionTypeEditHeader:
		v.validateEditHeaderAction(action, ruleName)
	case ast.ActionTypeAlert:
		v.validateAlertAction(action, ruleName)
	case ast.ActionTypeRateLimit:
		v.validateRateLimitAction(action, ruleName)
	}
}

// validateAllowAction validates an 'allow' action.
func (v *ActionValidator) validateAllowAction(action *ast.Action, ruleName string) {
	// Allow action has no required parameters
	// But we can warn about unexpected parameters
	for param := range action.Parameters {
		v.errors.AddError(
			mplErrors.ErrorTypeValidation,
			fmt.Sprintf("Rule %q 'allow' action has unexpected parameter %q", ruleName, param),
			action.Location,
		)
	}
}

// validateDenyAction validates a 'deny' action.
func (v *ActionValidator) validateDenyAction(action *ast.Action, ruleName string) {
	// Required: message
	if !action.HasParameter("message") {
		v.errors.AddErrorWithSuggestion(
			mplErrors.ErrorTypeValidation,
			fmt.Sprintf("Rule %q 'deny' action missing required parameter 'message'", ruleName),
			action.Location,
			"Add 'message: \"Reason for denial\"'",
		)
	} else {
		msg := action.GetParameter("message")
		if msg.Type != ast.ValueTypeString && msg.Type != ast.ValueTypeVariable {
			v.errors.AddError(
				mplErrors.ErrorTypeValidation,
				fmt.Sprintf("Rule %q 'deny' action 'message' must be a string", ruleName),
				action.Location,
			)
		}
	}

	// Optional: code (string)
	if action.HasParameter("code") {
		code := action.GetParameter("code")
		if code.Type != ast.ValueTypeString && code.Type != ast.ValueTypeVariable {
			v.errors.AddError(
				mplErrors.ErrorTypeValidation,
				fmt.Sprintf("Rule %q 'deny' action 'code' must be a string", ruleName),
				action.Location,
			)
		}
	}
}

// validateLogAction validates a 'log' action.
func (v *ActionValidator) validateLogAction(action *ast.Action, ruleName string) {
	// Required: message
	if !action.HasParameter("message") {
		v.errors.AddErrorWithSuggestion(
			mplErrors.ErrorTypeValidation,
			fmt.Sprintf("Rule %q 'log' action missing required parameter 'message'", ruleName),
			action.Location,
			"Add 'message: \"Log message\"'",
		)
	}

	// Optional: level (debug, info, warn, error)
	if action.HasParameter("level") {
		level := action.GetParameter("level")
		if level.Type == ast.ValueTypeString {
			levelStr := level.Value.(string)
			validLevels := map[string]bool{
				"debug": true,
				"info":  true,
				"warn":  true,
				"error": true,
			}
			if !validLevels[levelStr] {
				v.errors.AddErrorWithSuggestion(
					mplErrors.ErrorTypeValidation,
					fmt.Sprintf("Rule %q 'log' action has invalid level %q", ruleName, levelStr),
					action.Location,
					"Valid levels: debug, info, warn, error",
				)
			}
		}
	}
}

// validateRedactAction validates a 'redact' action.
func (v *ActionValidator) validateRedactAction(action *ast.Action, ruleName string) {
	// Required: pattern (regex matched against body content)
	if !action.HasParameter("pattern") {
		v.errors.AddErrorWithSuggestion(
			mplErrors.ErrorTypeValidation,
			fmt.Sprintf("Rule %q 'redact' action missing required parameter 'pattern'", ruleName),
			action.Location,
			"Add 'pattern: \"secret-[0-9]+\"'",
		)
	}

	// Optional: direction (request, response)
	if action.HasParameter("direction") {
		direction := action.GetParameter("direction")
		if direction.Type == ast.ValueTypeString {
			dirStr := direction.Value.(string)
			if dirStr != "request" && dirStr != "response" {
				v.errors.AddErrorWithSuggestion(
					mplErrors.ErrorTypeValidation,
					fmt.Sprintf("Rule %q 'redact' action has invalid direction %q", ruleName, dirStr),
					action.Location,
					"Valid directions: request, response",
				)
			}
		}
	}

	// Optional: strategy (mask, remove, replace)
	if action.HasParameter("strategy") {
		strategy := action.GetParameter("strategy")
		if strategy.Type == ast.ValueTypeString {
			strategyStr := strategy.Value.(string)
			validStrategies := map[string]bool{
				"mask":    true,
				"remove":  true,
				"replace": true,
			}
			if !validStrategies[strategyStr] {
				v.errors.AddErrorWithSuggestion(
					mplErrors.ErrorTypeValidation,
					fmt.Sprintf("Rule %q 'redact' action has invalid strategy %q", ruleName, strategyStr),
					action.Location,
					"Valid strategies: mask, remove, replace",
				)
			}
		}
	}

	// Optional: replacement (required if strategy is 'replace')
	if action.HasParameter("strategy") {
		strategy := action.GetParameter("strategy")
		if strategy.Type == ast.ValueTypeString && strategy.Value.(string) == "replace" {
			if !action.HasParameter("replacement") {
				v.errors.AddErrorWithSuggestion(
					mplErrors.ErrorTypeValidation,
					fmt.Sprintf("Rule %q 'redact' action with strategy 'replace' missing 'replacement'", ruleName),
					action.Location,
					"Add 'replacement: \"[REDACTED]\"'",
				)
			}
		}
	}
}

// validateEditHeaderAction validates an 'edit_header' action.
func (v *ActionValidator) validateEditHeaderAction(action *ast.Action, ruleName string) {
	// Required: name (header to mutate)
	if !action.HasParameter("name") {
		v.errors.AddErrorWithSuggestion(
			mplErrors.ErrorTypeValidation,
			fmt.Sprintf("Rule %q 'edit_header' action missing required parameter 'name'", ruleName),
			action.Location,
			"Add 'name: \"User-Agent\"'",
		)
	}

	// Optional: op (set, unset, add, append, merge, edit)
	if action.HasParameter("op") {
		op := action.GetParameter("op")
		if op.Type == ast.ValueTypeString {
			opStr := op.Value.(string)
			validOps := map[string]bool{
				"set": true, "unset": true, "add": true,
				"append": true, "merge": true, "edit": true,
			}
			if !validOps[opStr] {
				v.errors.AddErrorWithSuggestion(
					mplErrors.ErrorTypeValidation,
					fmt.Sprintf("Rule %q 'edit_header' action has invalid op %q", ruleName, opStr),
					action.Location,
					"Valid ops: set, unset, add, append, merge, edit",
				)
			}

			// 'edit' needs a pattern in 'value' and a 'replacement'
			if opStr == "edit" {
				if !action.HasParameter("value") {
					v.errors.AddError(
						mplErrors.ErrorTypeValidation,
						fmt.Sprintf("Rule %q 'edit_header' action with op 'edit' missing 'value' pattern", ruleName),
						action.Location,
					)
				}
				if !action.HasParameter("replacement") {
					v.errors.AddError(
						mplErrors.ErrorTypeValidation,
						fmt.Sprintf("Rule %q 'edit_header' action with op 'edit' missing 'replacement'", ruleName),
						action.Location,
					)
				}
			}
		}
	}

	// Optional: direction (request, response)
	if action.HasParameter("direction") {
		direction := action.GetParameter("direction")
		if direction.Type == ast.ValueTypeString {
			dirStr := direction.Value.(string)
			if dirStr != "request" && dirStr != "response" {
				v.errors.AddErrorWithSuggestion(
					mplErrors.ErrorTypeValidation,
					fmt.Sprintf("Rule %q 'edit_header' action has invalid direction %q", ruleName, dirStr),
					action.Location,
					"Valid directions: request, response",
				)
			}
		}
	}
}

// validateAlertAction validates an 'alert' action.
func (v *ActionValidator) validateAlertAction(action *ast.Action, ruleName string) {
	// Required: webhook (URL)
	if !action.HasParameter("webhook") {
		v.errors.AddErrorWithSuggestion(
			mplErrors.ErrorTypeValidation,
			fmt.Sprintf("Rule %q 'alert' action missing required parameter 'webhook'", ruleName),
			action.Location,
			"Add 'webhook: \"https://example.com/webhook\"'",
		)
	}

	// Optional: message
	// Optional: severity (low, medium, high, critical)
	if action.HasParameter("severity") {
		severity := action.GetParameter("severity")
		if severity.Type == ast.ValueTypeString {
			severityStr := severity.Value.(string)
			validSeverities := map[string]bool{
				"low":      true,
				"medium":   true,
				"high":     true,
				"critical": true,
			}
			if !validSeverities[severityStr] {
				v.errors.AddErrorWithSuggestion(
					mplErrors.ErrorTypeValidation,
					fmt.Sprintf("Rule %q 'alert' action has invalid severity %q", ruleName, severityStr),
					action.Location,
					"Valid severities: low, medium, high, critical",
				)
			}
		}
	}
}

// validateRateLimitAction validates a 'rate_limit' action.
func (v *ActionValidator) validateRateLimitAction(action *ast.Action, ruleName string) {
	// Required: key (rate limit key)
	if !action.HasParameter("key") {
		v.errors.AddErrorWithSuggestion(
			mplErrors.ErrorTypeValidation,
			fmt.Sprintf("Rule %q 'rate_limit' action missing required parameter 'key'", ruleName),
			action.Location,
			"Add 'key: \"user\"' or 'key: \"ip\"'",
		)
	}

	// Required: limit (number)
	if !action.HasParameter("limit") {
		v.errors.AddErrorWithSuggestion(
			mplErrors.ErrorTypeValidation,
			fmt.Sprintf("Rule %q 'rate_limit' action missing required parameter 'limit'", ruleName),
			action.Location,
			"Add 'limit: 100'",
		)
	} else {
		limit := action.GetParameter("limit")
		if limit.Type != ast.ValueTypeNumber && limit.Type != ast.ValueTypeVariable {
			v.errors.AddError(
				mplErrors.ErrorTypeValidation,
				fmt.Sprintf("Rule %q 'rate_limit' action 'limit' must be a number", ruleName),
				action.Location,
			)
		}
	}

	// Required: window (time window in seconds)
	if !action.HasParameter("window") {
		v.errors.AddErrorWithSuggestion(
			mplErrors.ErrorTypeValidation,
			fmt.Sprintf("Rule %q 'rate_limit' action missing required parameter 'window'", ruleName),
			action.Location,
			"Add 'window: 3600' (time window in seconds)",
		)
	} else {
		window := action.GetParameter("window")
		if window.Type != ast.ValueTypeNumber && window.Type != ast.ValueTypeVariable {
			v.errors.AddError(
				mplErrors.ErrorTypeValidation,
				fmt.Sprintf("Rule %q 'rate_limit' action 'window' must be a number", ruleName),
				action.Location,
			)
		}
	}
}
