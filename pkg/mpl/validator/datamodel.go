package validator

import (
	"strings"

	"github.com/mercator-hq/warden/pkg/mpl/ast"
)

// FieldInfo describes a field in the MPL data model.
type FieldInfo struct {
	Name        string                // Field name (e.g., "request.method")
	Type        ast.ValueType         // Field type
	Description string                // Human-readable description
	Children    map[string]*FieldInfo // Child fields for objects
	// Wildcard marks an object whose children are keyed dynamically
	// (e.g. request.header.<name>); any child path is valid.
	Wildcard bool
}

// DataModel defines all valid fields available in MPL conditions.
// It represents the request, response, and metadata namespaces.
var DataModel = &FieldInfo{
	Name: "root",
	Type: ast.ValueTypeObject,
	Children: map[string]*FieldInfo{
		"request":  requestFields,
		"response": responseFields,
		"metadata": metadataFields,
	},
}

// requestFields defines the request.* namespace
var requestFields = &FieldInfo{
	Name:        "request",
	Type:        ast.ValueTypeObject,
	Description: "Inspected HTTP request fields",
	Children: map[string]*FieldInfo{
		"request_id": {
			Name:        "request.request_id",
			Type:        ast.ValueTypeString,
			Description: "Unique transaction identifier",
		},
		"session_id": {
			Name:        "request.session_id",
			Type:        ast.ValueTypeString,
			Description: "Proxy session identifier",
		},
		"client_ip": {
			Name:        "request.client_ip",
			Type:        ast.ValueTypeString,
			Description: "Connecting client address",
		},
		"method": {
			Name:        "request.method",
			Type:        ast.ValueTypeString,
			Description: "HTTP method (GET, POST, ...)",
		},
		"path": {
			Name:        "request.path",
			Type:        ast.ValueTypeString,
			Description: "Request path",
		},
		"query": {
			Name:        "request.query",
			Type:        ast.ValueTypeString,
			Description: "Raw query string",
		},
		"request_line": {
			Name:        "request.request_line",
			Type:        ast.ValueTypeString,
			Description: "Normalized request start-line",
		},
		"body": {
			Name:        "request.body",
			Type:        ast.ValueTypeString,
			Description: "Request body content",
		},
		"body_bytes": {
			Name:        "request.body_bytes",
			Type:        ast.ValueTypeNumber,
			Description: "Request body size in bytes",
		},
		"risk_score": {
			Name:        "request.risk_score",
			Type:        ast.ValueTypeNumber,
			Description: "Computed risk score (1-10)",
		},
		"header": {
			Name:        "request.header",
			Type:        ast.ValueTypeObject,
			Description: "Request headers by name",
			Wildcard:    true,
		},
		"content": {
			Name:        "request.content",
			Type:        ast.ValueTypeObject,
			Description: "Signature scan over the request",
			Children:    contentFields("request"),
		},
	},
}

// responseFields defines the response.* namespace
var responseFields = &FieldInfo{
	Name:        "response",
	Type:        ast.ValueTypeObject,
	Description: "Inspected HTTP response fields",
	Children: map[string]*FieldInfo{
		"request_id": {
			Name:        "response.request_id",
			Type:        ast.ValueTypeString,
			Description: "Unique transaction identifier",
		},
		"status": {
			Name:        "response.status",
			Type:        ast.ValueTypeNumber,
			Description: "HTTP status code",
		},
		"status_line": {
			Name:        "response.status_line",
			Type:        ast.ValueTypeString,
			Description: "Response start-line",
		},
		"body": {
			Name:        "response.body",
			Type:        ast.ValueTypeString,
			Description: "Response body content",
		},
		"body_bytes": {
			Name:        "response.body_bytes",
			Type:        ast.ValueTypeNumber,
			Description: "Response body size in bytes",
		},
		"header": {
			Name:        "response.header",
			Type:        ast.ValueTypeObject,
			Description: "Response headers by name",
			Wildcard:    true,
		},
		"content": {
			Name:        "response.content",
			Type:        ast.ValueTypeObject,
			Description: "Signature scan over the response",
			Children:    contentFields("response"),
		},
	},
}

// metadataFields defines the metadata.* namespace
var metadataFields = &FieldInfo{
	Name:        "metadata",
	Type:        ast.ValueTypeObject,
	Description: "Evaluation metadata",
	Children: map[string]*FieldInfo{
		"request_id": {
			Name:        "metadata.request_id",
			Type:        ast.ValueTypeString,
			Description: "Unique transaction identifier",
		},
	},
}

// contentFields builds the shared signature-scan sub-namespace.
func contentFields(prefix string) map[string]*FieldInfo {
	return map[string]*FieldInfo{
		"detected": {
			Name:        prefix + ".content.detected",
			Type:        ast.ValueTypeBoolean,
			Description: "Whether any attack signature matched",
		},
		"types": {
			Name:        prefix + ".content.types",
			Type:        ast.ValueTypeArray,
			Description: "Signature classes that matched (sqli, xss, traversal)",
		},
		"severity": {
			Name:        prefix + ".content.severity",
			Type:        ast.ValueTypeString,
			Description: "Highest matched severity (low, medium, high)",
		},
		"sqli": {
			Name:        prefix + ".content.sqli",
			Type:        ast.ValueTypeBoolean,
			Description: "Whether a SQL injection signature matched",
		},
		"xss": {
			Name:        prefix + ".content.xss",
			Type:        ast.ValueTypeBoolean,
			Description: "Whether a cross-site scripting signature matched",
		},
		"traversal": {
			Name:        prefix + ".content.traversal",
			Type:        ast.ValueTypeBoolean,
			Description: "Whether a path traversal signature matched",
		},
	}
}

// LookupField finds a field in the data model by its path.
// Returns the field info and true if found, nil and false otherwise.
func LookupField(path string) (*FieldInfo, bool) {
	parts := strings.Split(path, ".")
	current := DataModel

	for i, part := range parts {
		if current.Wildcard {
			// Any remaining path names a dynamic child (a header name).
			return &FieldInfo{
				Name: current.Name + "." + strings.Join(parts[i:], "."),
				Type: ast.ValueTypeString,
			}, true
		}
		if current.Children == nil {
			return nil, false
		}
		next, ok := current.Children[part]
		if !ok {
			return nil, false
		}
		current = next
	}

	return current, true
}

// GetAllFieldPaths returns all valid field paths in the data model.
// This is used for error suggestions.
func GetAllFieldPaths() []string {
	var paths []string
	collectPaths(DataModel, "", &paths)
	return paths
}

// collectPaths recursively collects all field paths.
func collectPaths(field *FieldInfo, prefix string, paths *[]string) {
	if field.Name != "root" && field.Name != "" {
		*paths = append(*paths, field.Name)
	}

	for _, child := range field.Children {
		collectPaths(child, field.Name, paths)
	}
}
