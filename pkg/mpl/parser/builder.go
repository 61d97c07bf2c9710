package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/mercator-hq/warden/pkg/mpl/ast"
	mplErrors "github.com/mercator-hq/warden/pkg/mpl/errors"
)

// Field-path prefixes whose trailing segment names an HTTP header. The
// inspected transaction keys headers by lowercase name, so the builder
// canonicalizes the tail at parse time — rule authors write
// `request.header.User-Agent` and it still matches.
var headerFieldPrefixes = []string{
	"request.header.",
	"response.header.",
}

// Action parameters that name a stream direction, normalized and
// checked at parse time so a typo fails the load instead of silently
// never matching a direction.
const directionParam = "direction"

// builder constructs AST nodes from intermediate YAML structures,
// normalizing WAF field paths and direction parameters as it goes.
type builder struct {
	sourcePath string
	errors     *mplErrors.ErrorList
}

// newBuilder creates a new AST builder for the given source file.
func newBuilder(sourcePath string) *builder {
	return &builder{
		sourcePath: sourcePath,
		errors:     mplErrors.NewErrorList(),
	}
}

// loc is the builder's source location. Line/column granularity below
// file level is not tracked through the intermediate maps.
func (b *builder) loc() ast.Location {
	return ast.Location{File: b.sourcePath, Line: 1, Column: 1}
}

// buildPolicy transforms a yamlPolicy into an ast.Policy.
func (b *builder) buildPolicy(yp *yamlPolicy) (*ast.Policy, error) {
	policy := &ast.Policy{
		MPLVersion:  yp.MPLVersion,
		Name:        yp.Name,
		Version:     yp.Version,
		Description: yp.Description,
		Author:      yp.Author,
		Tags:        yp.Tags,
		Includes:    yp.Includes,
		SourceFile:  b.sourcePath,
		Variables:   make(map[string]*ast.Variable),
		Rules:       make([]*ast.Rule, 0, len(yp.Rules)),
		Location:    b.loc(),
	}

	if t, ok := parseTimestamp(yp.Created); ok {
		policy.Created = t
	}
	if t, ok := parseTimestamp(yp.Updated); ok {
		policy.Updated = t
	}

	for name, value := range yp.Variables {
		variable, err := b.buildVariable(name, value)
		if err != nil {
			b.errors.AddError(mplErrors.ErrorTypeStructural,
				fmt.Sprintf("Invalid variable %q: %v", name, err),
				policy.Location)
			continue
		}
		policy.Variables[name] = variable
	}

	for i, yr := range yp.Rules {
		rule, err := b.buildRule(&yr)
		if err != nil {
			b.errors.AddError(mplErrors.ErrorTypeStructural,
				fmt.Sprintf("Invalid rule at index %d: %v", i, err),
				policy.Location)
			continue
		}
		policy.Rules = append(policy.Rules, rule)
	}

	policy.Tests = make([]*ast.PolicyTest, 0, len(yp.Tests))
	for i, yt := range yp.Tests {
		test, err := b.buildTest(&yt)
		if err != nil {
			b.errors.AddError(mplErrors.ErrorTypeStructural,
				fmt.Sprintf("Invalid test at index %d: %v", i, err),
				policy.Location)
			continue
		}
		policy.Tests = append(policy.Tests, test)
	}

	if b.errors.HasErrors() {
		return nil, b.errors
	}
	return policy, nil
}

// parseTimestamp accepts RFC3339 timestamps and reports whether one was
// present and well-formed.
func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// buildVariable transforms a variable value into an ast.Variable.
func (b *builder) buildVariable(name string, value interface{}) (*ast.Variable, error) {
	valueNode, err := b.buildValue(value)
	if err != nil {
		return nil, err
	}

	return &ast.Variable{
		Name:     name,
		Value:    valueNode,
		Type:     valueNode.Type,
		Location: b.loc(),
	}, nil
}

// buildRule transforms a yamlRule into an ast.Rule.
func (b *builder) buildRule(yr *yamlRule) (*ast.Rule, error) {
	rule := &ast.Rule{
		Name:        yr.Name,
		Description: yr.Description,
		Enabled:     true, // default when the flag is absent
		Priority:    yr.Priority,
		Actions:     make([]*ast.Action, 0, len(yr.Actions)),
		Location:    b.loc(),
	}
	if yr.Enabled != nil {
		rule.Enabled = *yr.Enabled
	}

	if yr.Conditions != nil {
		cond, err := b.buildConditions(yr.Conditions)
		if err != nil {
			return nil, fmt.Errorf("invalid conditions: %w", err)
		}
		rule.Conditions = cond
	}

	for i, ya := range yr.Actions {
		action, err := b.buildAction(ya)
		if err != nil {
			return nil, fmt.Errorf("invalid action at index %d: %w", i, err)
		}
		rule.Actions = append(rule.Actions, action)
	}

	return rule, nil
}

// buildConditions dispatches on the YAML shape of a condition:
// a single map, an array (implicit AND), or nothing else.
func (b *builder) buildConditions(cond interface{}) (*ast.ConditionNode, error) {
	switch v := cond.(type) {
	case map[string]interface{}:
		return b.buildConditionMap(v)
	case []interface{}:
		return b.buildConditionArray(v)
	default:
		return nil, fmt.Errorf("invalid condition type: %T", cond)
	}
}

// buildConditionMap builds a condition from a map: a logical operator
// (all/any/not), a function call, or a simple field comparison.
func (b *builder) buildConditionMap(m map[string]interface{}) (*ast.ConditionNode, error) {
	for _, logical := range []struct {
		key      string
		condType ast.ConditionType
	}{
		{"all", ast.ConditionTypeAll},
		{"any", ast.ConditionTypeAny},
		{"not", ast.ConditionTypeNot},
	} {
		if children, ok := m[logical.key]; ok {
			return b.buildLogicalCondition(logical.condType, children)
		}
	}

	if fn, ok := m["function"]; ok {
		return b.buildFunctionCondition(fn, m)
	}

	return b.buildSimpleCondition(m)
}

// buildSimpleCondition builds a field comparison, canonicalizing header
// field paths on the way.
func (b *builder) buildSimpleCondition(m map[string]interface{}) (*ast.ConditionNode, error) {
	field, ok := m["field"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'field'")
	}

	operatorStr, ok := m["operator"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'operator'")
	}

	valueNode, err := b.buildValue(m["value"])
	if err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}

	return &ast.ConditionNode{
		Type:     ast.ConditionTypeSimple,
		Field:    canonicalFieldPath(field),
		Operator: ast.Operator(operatorStr),
		Value:    valueNode,
		Location: b.loc(),
	}, nil
}

// canonicalFieldPath lowercases the header-name tail of header field
// paths; every other path is returned unchanged.
func canonicalFieldPath(field string) string {
	for _, prefix := range headerFieldPrefixes {
		if strings.HasPrefix(field, prefix) {
			return prefix + strings.ToLower(field[len(prefix):])
		}
	}
	return field
}

// buildLogicalCondition builds an all/any/not node over child conditions.
func (b *builder) buildLogicalCondition(condType ast.ConditionType, children interface{}) (*ast.ConditionNode, error) {
	childArray, ok := children.([]interface{})
	if !ok {
		return nil, fmt.Errorf("logical operator must have array of children")
	}

	childNodes := make([]*ast.ConditionNode, 0, len(childArray))
	for i, child := range childArray {
		childNode, err := b.buildConditions(child)
		if err != nil {
			return nil, fmt.Errorf("invalid child condition at index %d: %w", i, err)
		}
		childNodes = append(childNodes, childNode)
	}

	return &ast.ConditionNode{
		Type:     condType,
		Children: childNodes,
		Location: b.loc(),
	}, nil
}

// buildFunctionCondition builds a function call condition
// (e.g. has_signature("sqli")).
func (b *builder) buildFunctionCondition(fn interface{}, m map[string]interface{}) (*ast.ConditionNode, error) {
	fnName, ok := fn.(string)
	if !ok {
		return nil, fmt.Errorf("function name must be a string")
	}

	var args []*ast.ValueNode
	if argsRaw, ok := m["args"]; ok {
		argsArray, ok := argsRaw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("function args must be an array")
		}
		args = make([]*ast.ValueNode, 0, len(argsArray))
		for i, arg := range argsArray {
			argNode, err := b.buildValue(arg)
			if err != nil {
				return nil, fmt.Errorf("invalid argument at index %d: %w", i, err)
			}
			args = append(args, argNode)
		}
	}

	return &ast.ConditionNode{
		Type:     ast.ConditionTypeFunction,
		Function: fnName,
		Args:     args,
		Location: b.loc(),
	}, nil
}

// buildConditionArray builds an implicit AND from an array of
// conditions; a one-element array unwraps to its only child.
func (b *builder) buildConditionArray(arr []interface{}) (*ast.ConditionNode, error) {
	if len(arr) == 0 {
		return nil, fmt.Errorf("empty condition array")
	}
	if len(arr) == 1 {
		return b.buildConditions(arr[0])
	}

	children := make([]*ast.ConditionNode, 0, len(arr))
	for i, cond := range arr {
		childNode, err := b.buildConditions(cond)
		if err != nil {
			return nil, fmt.Errorf("invalid condition at index %d: %w", i, err)
		}
		children = append(children, childNode)
	}

	return &ast.ConditionNode{
		Type:     ast.ConditionTypeAll,
		Children: children,
		Location: b.loc(),
	}, nil
}

// buildAction transforms an action map into an ast.Action. Every key
// except "type" becomes a parameter; direction parameters are
// normalized and checked here so a typo fails the load.
func (b *builder) buildAction(m map[string]interface{}) (*ast.Action, error) {
	actionTypeStr, ok := m["type"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid action 'type'")
	}

	action := &ast.Action{
		Type:       ast.ActionType(actionTypeStr),
		Parameters: make(map[string]*ast.ValueNode),
		Location:   b.loc(),
	}

	for key, value := range m {
		if key == "type" {
			continue
		}

		if key == directionParam {
			dir, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("direction must be a string")
			}
			dir = strings.ToLower(strings.TrimSpace(dir))
			if dir != "request" && dir != "response" {
				return nil, fmt.Errorf("invalid direction %q (want request or response)", dir)
			}
			value = dir
		}

		valueNode, err := b.buildValue(value)
		if err != nil {
			return nil, fmt.Errorf("invalid parameter %q: %w", key, err)
		}
		action.Parameters[key] = valueNode
	}

	return action, nil
}

// buildValue transforms a Go value into an ast.ValueNode.
func (b *builder) buildValue(value interface{}) (*ast.ValueNode, error) {
	node := &ast.ValueNode{Location: b.loc()}

	switch v := value.(type) {
	case nil:
		node.Type = ast.ValueTypeNull

	case string:
		if b.isVariableReference(v) {
			node.Type = ast.ValueTypeVariable
			node.Value = v
			node.VariableName = b.extractVariableName(v)
		} else {
			node.Type = ast.ValueTypeString
			node.Value = v
		}

	case int:
		node.Type = ast.ValueTypeNumber
		node.Value = float64(v)
	case int64:
		node.Type = ast.ValueTypeNumber
		node.Value = float64(v)
	case float64:
		node.Type = ast.ValueTypeNumber
		node.Value = v

	case bool:
		node.Type = ast.ValueTypeBoolean
		node.Value = v

	case []interface{}:
		node.Type = ast.ValueTypeArray
		node.Value = v

	case map[string]interface{}:
		node.Type = ast.ValueTypeObject
		node.Value = v

	default:
		return nil, fmt.Errorf("unsupported value type: %T", value)
	}

	return node, nil
}

// isVariableReference checks for the {{ ... }} reference syntax.
func (b *builder) isVariableReference(s string) bool {
	return len(s) > 4 && strings.HasPrefix(s, "{{") && strings.HasSuffix(s, "}}")
}

// extractVariableName pulls the name out of a reference string.
// Input: "{{ variables.max_body_bytes }}" -> Output: "max_body_bytes"
func (b *builder) extractVariableName(s string) string {
	s = strings.TrimSpace(s[2 : len(s)-2])
	return strings.TrimPrefix(s, "variables.")
}

// buildTest transforms a yamlTest into an ast.PolicyTest.
func (b *builder) buildTest(yt *yamlTest) (*ast.PolicyTest, error) {
	if yt.Name == "" {
		return nil, fmt.Errorf("test name is required")
	}
	if yt.Request == nil {
		return nil, fmt.Errorf("test request is required")
	}
	if yt.Expected.Action == "" {
		return nil, fmt.Errorf("test expected action is required")
	}

	return &ast.PolicyTest{
		Name:        yt.Name,
		Description: yt.Description,
		Request:     yt.Request,
		Expected: ast.TestExpectation{
			Action:      yt.Expected.Action,
			RuleMatches: yt.Expected.RuleMatches,
			Transforms:  yt.Expected.Transforms,
			Error:       yt.Expected.Error,
			ErrorMsg:    yt.Expected.ErrorMsg,
		},
		Location: b.loc(),
	}, nil
}
