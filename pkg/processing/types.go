package processing

import (
	"strings"
	"time"

	"github.com/mercator-hq/warden/pkg/processing/content"
)

// InspectedRequest is the request-phase view of a transaction, built
// from the mediator's request notifications.
type InspectedRequest struct {
	// RequestID is the unique identifier for this exchange.
	RequestID string

	// SessionID identifies the proxy session carrying the exchange.
	SessionID string

	// ClientIP is the connecting client's address.
	ClientIP string

	// Method, Path, and Query are parsed from the normalized start-line.
	Method string
	Path   string
	Query  string

	// RequestLine is the full normalized start-line.
	RequestLine string

	// Headers holds every header field, by canonicalized lowercase name.
	// Repeated fields keep their arrival order.
	Headers map[string][]string

	// Body is the request body seen so far (pre-edit bytes). May be
	// partial when evaluation runs at header time.
	Body []byte

	// ContentAnalysis is the signature scan over start-line, headers,
	// and body. Nil until a scan has run.
	ContentAnalysis *content.Analysis

	// RiskScore is a coarse 1-10 rating derived from the analysis.
	RiskScore int

	// ReceivedAt is when the request headers arrived.
	ReceivedAt time.Time
}

// Header returns the first value of the named header, or "".
func (r *InspectedRequest) Header(name string) string {
	if vals := r.Headers[strings.ToLower(name)]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// InspectedResponse is the response-phase view of a transaction.
type InspectedResponse struct {
	// RequestID ties the response back to its request.
	RequestID string

	// StatusLine is the response start-line; Status its parsed code.
	StatusLine string
	Status     int

	// Headers holds every header field, by canonicalized lowercase name.
	Headers map[string][]string

	// Body is the response body seen so far (pre-edit bytes).
	Body []byte

	// ContentAnalysis is the signature scan over the response body.
	ContentAnalysis *content.Analysis

	// ReceivedAt is when the response headers arrived.
	ReceivedAt time.Time
}

// Header returns the first value of the named header, or "".
func (r *InspectedResponse) Header(name string) string {
	if vals := r.Headers[strings.ToLower(name)]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}
