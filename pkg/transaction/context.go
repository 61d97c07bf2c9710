package transaction

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/google/uuid"

	"github.com/mercator-hq/warden/pkg/callback"
	"github.com/mercator-hq/warden/pkg/errorresponse"
	"github.com/mercator-hq/warden/pkg/rulesengine"
	"github.com/mercator-hq/warden/pkg/session"
	"github.com/mercator-hq/warden/pkg/streamfilter"
)

// HeaderState is a direction's position in the UNSEEN -> SEEN_HEADER ->
// FINISHED state machine.
type HeaderState int

const (
	Unseen HeaderState = iota
	SeenHeader
	Finished
)

// ErrorState is the transaction's position in the CLEAN ->
// STATUS_REQUESTED -> COMMITTED state machine.
type ErrorState int

const (
	Clean ErrorState = iota
	StatusRequested
	Committed
)

// Dispatcher is the narrow capability a Context needs from the
// notification dispatcher: enqueue a body-data or body-finished
// notification for this transaction's id, to be run off the calling
// goroutine.
type Dispatcher interface {
	NotifyBodyData(txnID string, dir streamfilter.Direction, data []byte) error
	NotifyBodyFinished(txnID string, dir streamfilter.Direction) error
}

type filterNotifier struct {
	txnID      string
	dispatcher Dispatcher
}

func (n *filterNotifier) NotifyBodyData(dir streamfilter.Direction, data []byte) error {
	return n.dispatcher.NotifyBodyData(n.txnID, dir, data)
}

func (n *filterNotifier) NotifyBodyFinished(dir streamfilter.Direction) error {
	return n.dispatcher.NotifyBodyFinished(n.txnID, dir)
}

// Config supplies everything a Context needs at creation. EngineTx is
// nil when the session is in bypass mode.
type Config struct {
	Session    *session.Context
	EngineTx   rulesengine.Transaction
	Dispatcher Dispatcher
	Logger     streamfilter.Logger
	ReqOut     streamfilter.Output
	RespOut    streamfilter.Output
	ReqBuf     rulesengine.BufferConfig
	RespBuf    rulesengine.BufferConfig
}

// Context is one request/response exchange.
type Context struct {
	ID      string
	Session *session.Context

	ReqFilter  *streamfilter.Filter
	RespFilter *streamfilter.Filter

	mu       sync.Mutex
	engineTx rulesengine.Transaction
	logger   streamfilter.Logger

	status int

	headerActions []callback.HeaderActionEntry
	errHeaders    []errorresponse.HeaderField
	errBody       []byte

	reqHeaderState  HeaderState
	respHeaderState HeaderState
	errState        ErrorState

	reqFinishedDone  bool
	respFinishedDone bool
	postprocessDone  bool
	loggingDone      bool

	rendMu   sync.Mutex
	rendCond *sync.Cond
}

// New creates a transaction context and its two stream filters.
func New(cfg Config) *Context {
	id := uuid.NewString()
	c := &Context{
		ID:       id,
		Session:  cfg.Session,
		engineTx: cfg.EngineTx,
		logger:   cfg.Logger,
	}
	c.rendCond = sync.NewCond(&c.rendMu)

	notifier := &filterNotifier{txnID: id, dispatcher: cfg.Dispatcher}

	c.ReqFilter = streamfilter.New(streamfilter.Request, streamfilter.Config{
		Mode:     cfg.ReqBuf.Mode,
		BufLimit: cfg.ReqBuf.Limit,
		Notifier: notifier,
		Logger:   cfg.Logger,
		Out:      cfg.ReqOut,
	}, c.Status)
	c.RespFilter = streamfilter.New(streamfilter.Response, streamfilter.Config{
		Mode:     cfg.RespBuf.Mode,
		BufLimit: cfg.RespBuf.Limit,
		Notifier: notifier,
		Logger:   cfg.Logger,
		Out:      cfg.RespOut,
	}, c.Status)
	return c
}

// Status returns the synthetic status code, or 0 if none has been
// requested. Passed to each stream filter as its statusFn so that a
// status set mid-body switches both filters to Discard.
func (c *Context) Status() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Context) filterFor(dir streamfilter.Direction) *streamfilter.Filter {
	if dir == streamfilter.Response {
		return c.RespFilter
	}
	return c.ReqFilter
}

// HeaderAction implements callback.Surface.
func (c *Context) HeaderAction(dir streamfilter.Direction, action callback.Action, name, value, replacement string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.errState == Committed {
		return callback.ErrTooLate
	}
	if dir == streamfilter.Request && c.reqHeaderState == Finished {
		return callback.ErrTooLate
	}

	entry := callback.HeaderActionEntry{Dir: dir, Action: action, Name: name, Value: value, Replacement: replacement}
	if action == callback.Edit {
		re, err := regexp.Compile(value)
		if err != nil {
			return fmt.Errorf("%w: %v", callback.ErrEditNeedsRegex, err)
		}
		entry.Regex = re
	}
	c.headerActions = append(c.headerActions, entry)
	return nil
}

// ErrorStatus implements callback.Surface.
func (c *Context) ErrorStatus(code int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.errState == Committed {
		return callback.ErrDeclined
	}
	if code < 200 || code >= 600 {
		return callback.ErrDeclined
	}
	if c.status != 0 {
		return nil
	}
	c.status = code
	c.errState = StatusRequested
	return nil
}

// ErrorHeader implements callback.Surface.
func (c *Context) ErrorHeader(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errState == Committed {
		return callback.ErrDeclined
	}
	c.errHeaders = append(c.errHeaders, errorresponse.HeaderField{Name: name, Value: value})
	return nil
}

// ErrorBody implements callback.Surface.
func (c *Context) ErrorBody(body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errState == Committed {
		return callback.ErrDeclined
	}
	cp := make([]byte, len(body))
	copy(cp, body)
	c.errBody = cp
	return nil
}

// StreamEdit implements callback.Surface.
func (c *Context) StreamEdit(dir streamfilter.Direction, start, n int64, repl []byte) error {
	f := c.filterFor(dir)
	err := f.AddEdit(streamfilter.Edit{Start: start, Bytes: n, Repl: repl})
	if err == nil {
		return nil
	}
	if err == streamfilter.ErrEditTooLate {
		return callback.ErrOutOfRange
	}
	return err
}

// EditInit implements callback.Surface.
func (c *Context) EditInit(dirs ...streamfilter.Direction) {
	for _, d := range dirs {
		c.filterFor(d).MarkEditsDeclared()
	}
}

// CloseConnection implements callback.Surface. The callback is not
// implemented by any known engine; the fallback is a synthetic 400.
func (c *Context) CloseConnection() error {
	return c.ErrorStatus(400)
}

// MarkHeaderSeen advances dir's header state machine to SEEN_HEADER.
func (c *Context) MarkHeaderSeen(dir streamfilter.Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dir == streamfilter.Response {
		c.respHeaderState = SeenHeader
	} else {
		c.reqHeaderState = SeenHeader
	}
}

// MarkHeaderFinished advances dir's header state machine to FINISHED.
func (c *Context) MarkHeaderFinished(dir streamfilter.Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dir == streamfilter.Response {
		c.respHeaderState = Finished
	} else {
		c.reqHeaderState = Finished
	}
}

// DrainHeaderActions removes and returns every queued header action for
// dir, in the order they were queued. Called exactly once by the header
// emitter at the moment headers are serialized to the proxy.
func (c *Context) DrainHeaderActions(dir streamfilter.Direction) []callback.HeaderActionEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out, keep []callback.HeaderActionEntry
	for _, e := range c.headerActions {
		if e.Dir == dir {
			out = append(out, e)
		} else {
			keep = append(keep, e)
		}
	}
	c.headerActions = keep
	return out
}

// CommitErrorState transitions the error-response state machine to
// COMMITTED, reporting the status that was requested (0 if none) and
// whether this call performed the transition (false if already
// committed, which should never happen since the proxy fires
// send-response-headers once).
func (c *Context) CommitErrorState() (status int, committed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errState == Committed {
		return c.status, false
	}
	c.errState = Committed
	return c.status, true
}

// PendingErrorHeaders returns a copy of the queued error-response
// headers.
func (c *Context) PendingErrorHeaders() []errorresponse.HeaderField {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]errorresponse.HeaderField, len(c.errHeaders))
	copy(out, c.errHeaders)
	return out
}

// PendingErrorBody returns the queued error-response body, or nil if
// none was set.
func (c *Context) PendingErrorBody() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errBody
}

// EngineTransaction returns the engine-side transaction handle, or nil
// in bypass mode.
func (c *Context) EngineTransaction() rulesengine.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engineTx
}

// SetEngineTransaction installs the engine-side transaction handle after
// construction. The engine needs this context as its callback surface
// before it can create the handle, so creation is two-phase: build the
// context, hand it to the engine, then bind the returned handle here and
// apply the buffering policy the engine reports.
func (c *Context) SetEngineTransaction(tx rulesengine.Transaction) {
	c.mu.Lock()
	c.engineTx = tx
	c.mu.Unlock()
	if tx == nil {
		return
	}
	reqBuf := tx.BufferConfig(streamfilter.Request)
	respBuf := tx.BufferConfig(streamfilter.Response)
	c.ReqFilter.SetPolicy(reqBuf.Mode, reqBuf.Limit)
	c.RespFilter.SetPolicy(respBuf.Mode, respBuf.Limit)
}

func (c *Context) MarkRequestFinished() {
	c.mu.Lock()
	c.reqFinishedDone = true
	c.mu.Unlock()
}

func (c *Context) MarkResponseFinished() {
	c.mu.Lock()
	c.respFinishedDone = true
	c.mu.Unlock()
}

func (c *Context) MarkPostprocess() {
	c.mu.Lock()
	c.postprocessDone = true
	c.mu.Unlock()
}

func (c *Context) MarkLogging() {
	c.mu.Lock()
	c.loggingDone = true
	c.mu.Unlock()
}

// TerminalsDrained reports whether all four terminal notifications have
// fired. Used as a rendezvous predicate by the close path when the
// normal completion items are already in flight on the dispatcher.
func (c *Context) TerminalsDrained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reqFinishedDone && c.respFinishedDone && c.postprocessDone && c.loggingDone
}

// DrainTerminalNotifications synchronously fires any of
// {request_finished, response_finished, postprocess, logging} that has
// not already fired, in that order, directly against the engine
// transaction. Called from the transaction-close path, which must not
// free state without having attempted every one of them — this is the
// "hard cancel" drain described for proxy-initiated close.
func (c *Context) DrainTerminalNotifications() {
	c.mu.Lock()
	tx := c.engineTx
	reqDone, respDone, ppDone, logDone := c.reqFinishedDone, c.respFinishedDone, c.postprocessDone, c.loggingDone
	c.mu.Unlock()

	if tx == nil {
		return
	}
	if !reqDone {
		if err := tx.RequestFinished(); err != nil {
			c.logError("drain request_finished: %v", err)
		}
		c.MarkRequestFinished()
	}
	if !respDone {
		if err := tx.ResponseFinished(); err != nil {
			c.logError("drain response_finished: %v", err)
		}
		c.MarkResponseFinished()
	}
	if !ppDone {
		if err := tx.Postprocess(); err != nil {
			c.logError("drain postprocess: %v", err)
		}
		c.MarkPostprocess()
	}
	if !logDone {
		if err := tx.Logging(); err != nil {
			c.logError("drain logging: %v", err)
		}
		c.MarkLogging()
	}
}

func (c *Context) logError(format string, err error) {
	if c.logger != nil {
		c.logger.Errorf(format, err)
	}
}

// Close drains any remaining terminal notifications, destroys the engine
// transaction handle, and applies the session's decrement-or-teardown
// protocol. release returns the session's engine handle to the engine
// manager and is only invoked if this call causes the session itself to
// tear down.
func (c *Context) Close(release func()) {
	c.DrainTerminalNotifications()

	c.mu.Lock()
	tx := c.engineTx
	c.engineTx = nil
	c.mu.Unlock()
	if tx != nil {
		tx.Destroy()
	}

	if c.Session != nil {
		if _, err := c.Session.Detach(release); err != nil {
			c.logError("session detach: %v", err)
		}
	}
}

// Await blocks until predicate returns true or ctx is done. It implements
// the rendezvous a proxy thread uses to wait for an in-flight
// notification that gates header or response issuance.
func (c *Context) Await(ctx context.Context, predicate func() bool) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.rendMu.Lock()
			c.rendCond.Broadcast()
			c.rendMu.Unlock()
		case <-stop:
		}
	}()

	c.rendMu.Lock()
	defer c.rendMu.Unlock()
	for !predicate() {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.rendCond.Wait()
	}
	return nil
}

// Signal wakes every goroutine blocked in Await. Call after dispatching
// request_header_finished, request_finished, response_finished, or
// logging.
func (c *Context) Signal() {
	c.rendMu.Lock()
	c.rendCond.Broadcast()
	c.rendMu.Unlock()
}
