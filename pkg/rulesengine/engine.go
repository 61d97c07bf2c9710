package rulesengine

import (
	"errors"

	"github.com/mercator-hq/warden/pkg/callback"
	"github.com/mercator-hq/warden/pkg/streamfilter"
)

// ErrDeclined is returned by Acquire (via pkg/enginemgr) when the engine
// manager chooses not to hand out an engine for a session. The caller
// enters bypass mode rather than treating this as a hard failure.
var ErrDeclined = errors.New("rulesengine: engine declined")

// HeaderField is a single name/value pair handed to the engine. Distinct
// from headerparse.HeaderField so this package has no dependency on the
// header-reparsing internals.
type HeaderField struct {
	Name  string
	Value string
}

// BufferConfig reports the buffering policy and limit the engine wants
// applied to one direction of a transaction, read once per direction at
// transaction creation.
type BufferConfig struct {
	Mode  streamfilter.BufferingMode
	Limit int64
}

// Engine is one loaded rules-engine instance, created from a config path
// by pkg/enginemgr.
type Engine interface {
	// NewConnection is called once per proxy session that reaches its
	// first transaction.
	NewConnection(meta ConnMeta) (Connection, error)
	// Close tears down the engine instance. Called by the engine manager
	// once no session references it.
	Close() error
}

// ConnMeta carries the connection identity the host proxy supplies at
// session start.
type ConnMeta struct {
	RemoteIP   string
	RemotePort int
	LocalIP    string
	LocalPort  int
}

// Connection is the engine-side object for one proxy session.
type Connection interface {
	// Opened notifies the engine that the connection object now exists.
	// Called exactly once, before any transaction notification.
	Opened()
	// Closed notifies the engine that the connection is going away.
	// Called exactly once, after every transaction on this connection has
	// finished its terminal notifications.
	Closed()
	// NewTransaction creates the engine-side transaction object for one
	// request/response exchange. surface is the mediator's callback
	// surface for that exchange; every verdict the engine reaches is
	// issued through it.
	NewTransaction(surface callback.Surface) (Transaction, error)
	// Destroy releases the connection object itself.
	Destroy()
}

// Transaction is the engine-side object for one request/response
// exchange. Every method corresponds to a named notification; the
// mediator calls them in a fixed total order per transaction, off the
// dispatcher's worker pool.
type Transaction interface {
	RequestStarted(requestLine string) error
	RequestHeaderData(headers []HeaderField) error
	RequestHeaderFinished() error
	RequestBodyData(data []byte) error
	RequestFinished() error

	ResponseStarted(statusLine string) error
	ResponseHeaderData(headers []HeaderField) error
	ResponseHeaderFinished() error
	ResponseBodyData(data []byte) error
	ResponseFinished() error

	Postprocess() error
	Logging() error

	// BufferConfig reports the buffering policy for one direction. Read
	// once per direction at the first body event.
	BufferConfig(dir streamfilter.Direction) BufferConfig

	// Destroy releases the transaction object. Called after every
	// terminal notification above has fired (or been skipped per the
	// continuation-100 boundary behavior).
	Destroy()
}
