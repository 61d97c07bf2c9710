package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/mercator-hq/warden/pkg/rulesengine"
)

// Context is one proxy-level connection. It is created at the proxy's
// session-start event and destroyed by whichever of {last transaction
// close, session close} observes txn_count == 0 under the session mutex.
type Context struct {
	ID string

	RemoteIP   string
	RemotePort int
	LocalIP    string
	LocalPort  int

	mu       sync.Mutex
	engine   rulesengine.Engine
	conn     rulesengine.Connection
	txnCount int
	closing  bool
	acquired bool
	bypass   bool
}

// New allocates a session context from the identity the proxy reports at
// session start. The engine is not acquired yet; that happens lazily on
// the first transaction via EnsureEngine.
func New(meta rulesengine.ConnMeta) *Context {
	return &Context{
		ID:         uuid.NewString(),
		RemoteIP:   meta.RemoteIP,
		RemotePort: meta.RemotePort,
		LocalIP:    meta.LocalIP,
		LocalPort:  meta.LocalPort,
	}
}

// EnsureEngine acquires the process-wide engine on the first transaction
// of the session, creates its connection object, and notifies the engine
// that the connection is open. Subsequent calls are no-ops. If acquire
// returns rulesengine.ErrDeclined, or fails for any other reason, the
// session enters bypass mode instead of propagating the error —
// ordinary traffic is never blocked by engine-acquisition failure.
func (c *Context) EnsureEngine(acquire func() (rulesengine.Engine, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acquired {
		return
	}
	c.acquired = true

	engine, err := acquire()
	if err != nil {
		c.bypass = true
		return
	}

	conn, err := engine.NewConnection(rulesengine.ConnMeta{
		RemoteIP:   c.RemoteIP,
		RemotePort: c.RemotePort,
		LocalIP:    c.LocalIP,
		LocalPort:  c.LocalPort,
	})
	if err != nil {
		c.bypass = true
		return
	}

	c.engine = engine
	c.conn = conn
	conn.Opened()
}

// Bypass reports whether the session is running without an engine
// (either acquisition was declined, or it failed).
func (c *Context) Bypass() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bypass
}

// Connection returns the session's engine connection object, or nil in
// bypass mode.
func (c *Context) Connection() rulesengine.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// ErrNotAttached is returned by Detach if called without a matching
// Attach; it indicates a bug in the caller's lifecycle handling.
var ErrNotAttached = errors.New("session: detach without matching attach")

// Attach increments the count of transactions currently attached to this
// session. Call before creating a transaction context.
func (c *Context) Attach() {
	c.mu.Lock()
	c.txnCount++
	c.mu.Unlock()
}

// Detach decrements the attached-transaction count. If the count reaches
// zero and the proxy has already signalled session-close, it tears down
// the connection (notifying conn_closed exactly once) and runs release,
// which should return the engine handle to the engine manager. Detach
// reports whether it performed the teardown.
func (c *Context) Detach(release func()) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.txnCount == 0 {
		return false, ErrNotAttached
	}
	c.txnCount--
	if c.txnCount == 0 && c.closing {
		c.teardownLocked(release)
		return true, nil
	}
	return false, nil
}

// Close marks the session as closing. If no transactions remain attached
// it tears down immediately and reports true; otherwise teardown is
// deferred to the last Detach call.
func (c *Context) Close(release func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closing = true
	if c.txnCount == 0 {
		c.teardownLocked(release)
		return true
	}
	return false
}

func (c *Context) teardownLocked(release func()) {
	if c.conn != nil {
		c.conn.Closed()
		c.conn.Destroy()
		c.conn = nil
	}
	if release != nil {
		release()
	}
}
