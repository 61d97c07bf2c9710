package errorresponse

import "fmt"

// HeaderField is a name/value pair queued for the synthetic response.
type HeaderField struct {
	Name  string
	Value string
}

// Target is the subset of host-proxy response-header capability the
// builder needs: enough to set a status/reason, append header fields,
// and install the error body, without depending on any particular proxy
// SDK's types.
type Target interface {
	SetStatus(code int, reason string)
	SetHeader(name, value string)
	SetBody(body []byte)
}

var defaultReasons = map[int]string{
	200: "OK",
	301: "Moved Permanently",
	302: "Found",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	429: "Too Many Requests",
	500: "Internal Server Error",
	502: "Bad Gateway",
	503: "Service Unavailable",
}

// ReasonFor returns the proxy's default reason phrase for code, or
// "Other" if none is known.
func ReasonFor(code int) string {
	if r, ok := defaultReasons[code]; ok {
		return r
	}
	return "Other"
}

// Built records what was actually committed, so the caller can replay it
// to the rules engine as response_started / response_header_data /
// response_body_data notifications.
type Built struct {
	StatusLine string
	Headers    []HeaderField
	Body       []byte
}

// Commit performs the five steps of the error-response builder: set
// status and reason, append each pending header, install the body if
// present. reason may be empty, in which case ReasonFor(status) is used.
func Commit(target Target, status int, reason string, headers []HeaderField, body []byte) Built {
	if reason == "" {
		reason = ReasonFor(status)
	}
	target.SetStatus(status, reason)
	for _, h := range headers {
		target.SetHeader(h.Name, h.Value)
	}
	if len(body) > 0 {
		target.SetBody(body)
	}
	return Built{
		StatusLine: fmt.Sprintf("HTTP/1.1 %d %s", status, reason),
		Headers:    headers,
		Body:       body,
	}
}
