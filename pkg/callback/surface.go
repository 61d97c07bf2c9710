package callback

import (
	"errors"
	"regexp"

	"github.com/mercator-hq/warden/pkg/streamfilter"
)

// Action names a header mutation requested by the engine.
type Action int

const (
	Set Action = iota
	Unset
	Add
	Append
	Merge
	Edit
)

func (a Action) String() string {
	switch a {
	case Set:
		return "SET"
	case Unset:
		return "UNSET"
	case Add:
		return "ADD"
	case Append:
		return "APPEND"
	case Merge:
		return "MERGE"
	case Edit:
		return "EDIT"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrTooLate is returned when a callback arrives after the commit
	// point it would have affected (headers already started for the
	// relevant direction, or the response already started).
	ErrTooLate = errors.New("callback: too late, commit point already passed")
	// ErrDeclined is returned when a callback is individually refused
	// without being a state error — e.g. error_status when status is
	// already set.
	ErrDeclined = errors.New("callback: declined")
	// ErrOutOfRange is returned by StreamEdit when start precedes the
	// direction's bytes already forwarded.
	ErrOutOfRange = errors.New("callback: edit start precedes bytes already forwarded")
	// ErrEditNeedsRegex is returned when action is Edit and no regex was
	// supplied or compilable.
	ErrEditNeedsRegex = errors.New("callback: EDIT action requires a regular expression")
)

// HeaderActionEntry is one queued header mutation, consumed exactly once
// by the header emitter at the moment headers are serialized to the
// proxy.
type HeaderActionEntry struct {
	Dir    streamfilter.Direction
	Action Action
	Name   string
	Value  string
	// Replacement is only meaningful when Action == Edit; Regex is its
	// compiled form of Value (the match pattern).
	Replacement string
	Regex       *regexp.Regexp
}

// Surface is the fixed set of calls the engine makes into the mediator
// for a single transaction.
type Surface interface {
	// HeaderAction appends to the header-action list for dir. For every
	// action except Edit, value is the header value to set/add/append/
	// merge and replacement is ignored. For Edit, value is a regex
	// pattern matched against the header's current value and replacement
	// is the substitution text; the mediator compiles and caches the
	// pattern.
	HeaderAction(dir streamfilter.Direction, action Action, name, value, replacement string) error

	// ErrorStatus sets the synthetic status code for the transaction, if
	// one has not already been set and the response has not started.
	ErrorStatus(code int) error

	// ErrorHeader appends a pending error-response header.
	ErrorHeader(name, value string) error

	// ErrorBody replaces the pending error-response body with a private
	// copy of body.
	ErrorBody(body []byte) error

	// StreamEdit queues a byte-range replacement for dir.
	StreamEdit(dir streamfilter.Direction, start, n int64, repl []byte) error

	// EditInit marks the given directions as having declared edit intent,
	// disabling NOBUF selection for them.
	EditInit(dirs ...streamfilter.Direction)

	// CloseConnection is not implemented by any known engine; callers
	// should issue ErrorStatus(400) instead.
	CloseConnection() error
}
