package proxycap

import (
	"github.com/mercator-hq/warden/pkg/streamfilter"
)

// Event identifies one of the host proxy's hook points. The mediator
// registers for all of them and handles each through a single dispatch
// switch.
type Event int

const (
	SessionStart Event = iota
	SessionClose
	TxnStart
	TxnClose
	ReadRequestHeaders
	PreRemap
	ReadResponseHeaders
	SendResponseHeaders
	ControlUpdate
)

func (e Event) String() string {
	switch e {
	case SessionStart:
		return "session-start"
	case SessionClose:
		return "session-close"
	case TxnStart:
		return "txn-start"
	case TxnClose:
		return "txn-close"
	case ReadRequestHeaders:
		return "read-request-headers"
	case PreRemap:
		return "pre-remap"
	case ReadResponseHeaders:
		return "read-response-headers"
	case SendResponseHeaders:
		return "send-response-headers"
	case ControlUpdate:
		return "control-update"
	default:
		return "unknown"
	}
}

// Verdict is the mediator's answer to a hook invocation: continue normal
// processing, or divert into the host's error path.
type Verdict int

const (
	Continue Verdict = iota
	Error
)

// SessionHandle is the host's per-connection object. The mediator
// attaches its session context through the data slot, mirroring a
// continuation's opaque data pointer.
type SessionHandle interface {
	// RemoteAddr reports the client's IP and port.
	RemoteAddr() (ip string, port int)
	// LocalAddr reports the listener's IP and port.
	LocalAddr() (ip string, port int)
	// Data returns the opaque value previously stored with SetData, or
	// nil.
	Data() any
	// SetData attaches an opaque value to the session.
	SetData(v any)
}

// HeaderObject is the host's header marshal buffer for one direction:
// enumerate fields, and create/set/append/merge/remove them by name.
type HeaderObject interface {
	// Fields enumerates every field in wire order.
	Fields() []HeaderField
	// Values returns every value of the named field, nil if absent.
	Values(name string) []string
	// Set replaces the named field's values with a single value,
	// creating the field if absent.
	Set(name, value string)
	// Add appends a new field instance regardless of existing ones.
	Add(name, value string)
	// Remove deletes every instance of the named field.
	Remove(name string)
	// SetStatus sets the response status code and reason phrase. Only
	// meaningful on a response header object.
	SetStatus(code int, reason string)
}

// HeaderField is one name/value pair as the host marshals it.
type HeaderField struct {
	Name  string
	Value string
}

// TxnHandle is the host's per-exchange object: raw header recovery, the
// URL accessor, marshal buffers for both directions, the error-body
// slot, and the re-enable decision.
type TxnHandle interface {
	// Session returns the handle of the connection carrying this
	// exchange.
	Session() SessionHandle

	// RequestHeaderBlock returns the serialized request start-line and
	// header block recovered from the host's internal buffers. The
	// bytes may contain the line-terminator and NUL irregularities the
	// header reparser is built to repair.
	RequestHeaderBlock() ([]byte, error)
	// ResponseHeaderBlock is the response-direction equivalent.
	ResponseHeaderBlock() ([]byte, error)

	// URL prints the current request URL as the host understands it.
	URL() (string, error)

	// RequestHeaders returns the marshal buffer the origin will see.
	RequestHeaders() HeaderObject
	// ResponseHeaders returns the marshal buffer the client will see.
	ResponseHeaders() HeaderObject

	// SetErrorBody installs body bytes to be served when the host sends
	// its error response. Ownership of body transfers to the host.
	SetErrorBody(body []byte)

	// Reenable resumes the host's processing of this exchange after a
	// hook, choosing between the normal and error paths.
	Reenable(v Verdict)

	// RequestBodySink returns the downstream sink for transformed
	// request-body bytes (toward the origin).
	RequestBodySink() BodySink
	// ResponseBodySink returns the downstream sink for transformed
	// response-body bytes (toward the client).
	ResponseBodySink() BodySink

	// Data and SetData mirror SessionHandle's opaque attachment slot.
	Data() any
	SetData(v any)
}

// BodySink is the downstream half of the transforming pipe for one
// direction. It extends the stream filter's output contract with a
// close, which the host uses to learn the transformation is done.
type BodySink interface {
	streamfilter.Output
	Close() error
}

// Handler receives hook invocations from the host. Session events carry
// a SessionHandle; transaction events carry a TxnHandle; ControlUpdate
// carries neither.
type Handler interface {
	HandleEvent(e Event, session SessionHandle, txn TxnHandle)
}

// BodyFilter is the transforming-pipe contract: the host delivers each
// newly arrived chunk of body bytes for one direction, with end set on
// the final delivery. The filter forwards transformed bytes through the
// transaction's corresponding BodySink.
type BodyFilter interface {
	BodyChunk(t TxnHandle, dir streamfilter.Direction, data []byte, end bool)
}

// Host is the registration surface: a host accepts exactly one handler
// for the full event set. Handlers that also implement BodyFilter are
// attached to the host's transforming body pipes.
type Host interface {
	Register(h Handler)
}
