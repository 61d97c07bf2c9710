package engine

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mercator-hq/warden/pkg/processing/content"
)

// extractField extracts a field value from the evaluation context.
// Field names use dot notation: request.method, request.header.user-agent,
// request.content.sqli, response.status, etc.
func extractField(fieldPath string, evalCtx *EvaluationContext) (interface{}, error) {
	// Split field path into parts
	parts := strings.Split(fieldPath, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid field path: %q (must be at least two parts)", fieldPath)
	}

	// First part determines the source (request, response, metadata)
	source := parts[0]
	fieldName := parts[1:]

	switch source {
	case "request":
		return extractRequestField(fieldName, evalCtx)

	case "response":
		return extractResponseField(fieldName, evalCtx)

	case "metadata":
		return extractMetadataField(fieldName, evalCtx)

	default:
		return nil, fmt.Errorf("unknown field source: %q", source)
	}
}

// extractRequestField extracts a field from the inspected request.
func extractRequestField(fieldPath []string, evalCtx *EvaluationContext) (interface{}, error) {
	if evalCtx.Request == nil {
		return nil, fmt.Errorf("request not available in evaluation context")
	}
	req := evalCtx.Request

	// Handle common request fields
	if len(fieldPath) == 1 {
		switch fieldPath[0] {
		case "request_id":
			return req.RequestID, nil

		case "session_id":
			return req.SessionID, nil

		case "client_ip":
			return req.ClientIP, nil

		case "method":
			return req.Method, nil

		case "path":
			return req.Path, nil

		case "query":
			return req.Query, nil

		case "request_line":
			return req.RequestLine, nil

		case "body":
			return string(req.Body), nil

		case "body_bytes":
			return len(req.Body), nil

		case "risk_score":
			return req.RiskScore, nil
		}
	}

	// Handle nested fields
	if len(fieldPath) >= 2 {
		switch fieldPath[0] {
		case "header":
			// request.header.<name>, name may itself contain dots
			name := strings.Join(fieldPath[1:], ".")
			return req.Header(name), nil

		case "content":
			return extractContentField(fieldPath[1:], req.ContentAnalysis)
		}
	}

	// Fallback to reflection for other fields
	return extractFieldReflection(req, fieldPath)
}

// extractResponseField extracts a field from the inspected response.
func extractResponseField(fieldPath []string, evalCtx *EvaluationContext) (interface{}, error) {
	if evalCtx.Response == nil {
		return nil, fmt.Errorf("response not available in evaluation context")
	}
	resp := evalCtx.Response

	// Handle common response fields
	if len(fieldPath) == 1 {
		switch fieldPath[0] {
		case "request_id":
			return resp.RequestID, nil

		case "status":
			return resp.Status, nil

		case "status_line":
			return resp.StatusLine, nil

		case "body":
			return string(resp.Body), nil

		case "body_bytes":
			return len(resp.Body), nil
		}
	}

	// Handle nested fields
	if len(fieldPath) >= 2 {
		switch fieldPath[0] {
		case "header":
			name := strings.Join(fieldPath[1:], ".")
			return resp.Header(name), nil

		case "content":
			return extractContentField(fieldPath[1:], resp.ContentAnalysis)
		}
	}

	// Fallback to reflection
	return extractFieldReflection(resp, fieldPath)
}

// extractMetadataField extracts a metadata field.
func extractMetadataField(fieldPath []string, evalCtx *EvaluationContext) (interface{}, error) {
	if len(fieldPath) == 0 {
		return nil, fmt.Errorf("empty metadata field path")
	}

	switch fieldPath[0] {
	case "request_id":
		return evalCtx.RequestID, nil

	default:
		return nil, fmt.Errorf("unknown metadata field: %q", fieldPath[0])
	}
}

// extractContentField resolves signature-scan fields: content.detected,
// content.types, content.severity, content.sqli / xss / traversal.
func extractContentField(fieldPath []string, a *content.Analysis) (interface{}, error) {
	if len(fieldPath) != 1 {
		return nil, fmt.Errorf("invalid content field path: %v", fieldPath)
	}

	if a == nil {
		// No scan has run: every content predicate is false/empty.
		switch fieldPath[0] {
		case "types":
			return []string{}, nil
		case "severity":
			return "", nil
		default:
			return false, nil
		}
	}

	switch fieldPath[0] {
	case "detected":
		return a.Detected(), nil
	case "types":
		return a.Types(), nil
	case "severity":
		return a.MaxSeverity(), nil
	case "sqli", "xss", "traversal":
		for _, typ := range a.Types() {
			if typ == fieldPath[0] {
				return true, nil
			}
		}
		return false, nil
	default:
		return nil, fmt.Errorf("unknown content field: %q", fieldPath[0])
	}
}

// extractFieldReflection uses reflection to extract nested fields.
// This is a fallback for fields not explicitly handled above.
func extractFieldReflection(obj interface{}, fieldPath []string) (interface{}, error) {
	if obj == nil {
		return nil, fmt.Errorf("nil object")
	}

	v := reflect.ValueOf(obj)

	// Dereference pointers
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, fmt.Errorf("nil pointer in field path")
		}
		v = v.Elem()
	}

	// Traverse field path
	for _, fieldName := range fieldPath {
		if v.Kind() != reflect.Struct {
			return nil, fmt.Errorf("cannot access field %q on non-struct type %s", fieldName, v.Kind())
		}

		// Find field (case-insensitive)
		f := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !f.IsValid() {
			return nil, fmt.Errorf("field %q not found", fieldName)
		}

		v = f
	}

	// Return the value
	if !v.CanInterface() {
		return nil, fmt.Errorf("cannot access unexported field")
	}

	return v.Interface(), nil
}
