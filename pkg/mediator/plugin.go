package mediator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mercator-hq/warden/pkg/callback"
	"github.com/mercator-hq/warden/pkg/dispatch"
	"github.com/mercator-hq/warden/pkg/enginemgr"
	"github.com/mercator-hq/warden/pkg/errorresponse"
	"github.com/mercator-hq/warden/pkg/headerparse"
	"github.com/mercator-hq/warden/pkg/proxycap"
	"github.com/mercator-hq/warden/pkg/rulesengine"
	"github.com/mercator-hq/warden/pkg/session"
	"github.com/mercator-hq/warden/pkg/streamfilter"
	"github.com/mercator-hq/warden/pkg/transaction"
)

// Config wires a Plugin to its collaborators.
type Config struct {
	Manager    *enginemgr.Manager
	Dispatcher *dispatch.Dispatcher
	Logger     *slog.Logger

	// Blocking makes header-gating events wait (rendezvous) for the
	// corresponding engine notification to finish before re-enabling the
	// host, so a verdict reached during header inspection can divert the
	// transaction before any origin contact.
	Blocking bool

	// RendezvousTimeout bounds each rendezvous wait. Zero means a
	// generous default; the host's own transaction timeout is the real
	// backstop.
	RendezvousTimeout time.Duration

	// EngineConfigPath is reloaded on the control-update event.
	EngineConfigPath string
}

// Plugin implements proxycap.Handler and proxycap.BodyFilter: the single
// dispatch switch over the host's hook events.
type Plugin struct {
	mgr        *enginemgr.Manager
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	logf       *logfAdapter
	blocking   bool
	rendWait   time.Duration
	configPath string
}

// New creates the plugin. Manager and Dispatcher must be non-nil.
func New(cfg Config) *Plugin {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	wait := cfg.RendezvousTimeout
	if wait <= 0 {
		wait = 30 * time.Second
	}
	return &Plugin{
		mgr:        cfg.Manager,
		dispatcher: cfg.Dispatcher,
		logger:     logger,
		logf:       &logfAdapter{l: logger},
		blocking:   cfg.Blocking,
		rendWait:   wait,
		configPath: cfg.EngineConfigPath,
	}
}

// sessState is what the plugin attaches to a host session handle.
type sessState struct {
	ctx    *session.Context
	engine rulesengine.Engine
	mgr    *enginemgr.Manager
}

// release returns the session's engine reference to the manager. Invoked
// exactly once, by whichever of session-close or last-transaction-close
// tears the session down.
func (ss *sessState) release() {
	if ss.engine != nil {
		ss.mgr.Release(ss.engine)
		ss.engine = nil
	}
}

// txnState is what the plugin attaches to a host transaction handle.
type txnState struct {
	tctx *transaction.Context
	host proxycap.TxnHandle

	mu              sync.Mutex
	reqHdrFinished  bool
	respHdrFinished bool
	synthEnqueued   bool
	synthNotified   bool
}

func (ts *txnState) markHdrFinished(dir streamfilter.Direction) {
	ts.mu.Lock()
	if dir == streamfilter.Response {
		ts.respHdrFinished = true
	} else {
		ts.reqHdrFinished = true
	}
	ts.mu.Unlock()
}

func (ts *txnState) hdrFinished(dir streamfilter.Direction) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if dir == streamfilter.Response {
		return ts.respHdrFinished
	}
	return ts.reqHdrFinished
}

// HandleEvent implements proxycap.Handler: one switch over the full hook
// set.
func (p *Plugin) HandleEvent(e proxycap.Event, sess proxycap.SessionHandle, txn proxycap.TxnHandle) {
	switch e {
	case proxycap.SessionStart:
		p.sessionStart(sess)
	case proxycap.SessionClose:
		p.sessionClose(sess)
	case proxycap.TxnStart:
		p.txnStart(sess, txn)
	case proxycap.TxnClose:
		p.txnClose(sess, txn)
	case proxycap.ReadRequestHeaders:
		p.readRequestHeaders(txn)
	case proxycap.PreRemap:
		p.preRemap(txn)
	case proxycap.ReadResponseHeaders:
		p.readResponseHeaders(txn)
	case proxycap.SendResponseHeaders:
		p.sendResponseHeaders(txn)
	case proxycap.ControlUpdate:
		p.controlUpdate()
	default:
		p.logger.Error("unhandled host event", "event", e.String())
	}
}

func (p *Plugin) sessionStart(sess proxycap.SessionHandle) {
	rip, rport := sess.RemoteAddr()
	lip, lport := sess.LocalAddr()
	ctx := session.New(rulesengine.ConnMeta{
		RemoteIP:   rip,
		RemotePort: rport,
		LocalIP:    lip,
		LocalPort:  lport,
	})
	sess.SetData(&sessState{ctx: ctx, mgr: p.mgr})
}

func (p *Plugin) sessionClose(sess proxycap.SessionHandle) {
	ss, ok := sess.Data().(*sessState)
	if !ok {
		return
	}
	ss.ctx.Close(ss.release)
}

func (p *Plugin) txnStart(sess proxycap.SessionHandle, txn proxycap.TxnHandle) {
	ss, ok := sess.Data().(*sessState)
	if !ok {
		// Transaction on a session the plugin never saw start. Create
		// the session state now rather than running the exchange blind.
		p.sessionStart(sess)
		ss = sess.Data().(*sessState)
	}

	ss.ctx.EnsureEngine(func() (rulesengine.Engine, error) {
		engine, err := p.mgr.Acquire()
		if err != nil {
			if err != rulesengine.ErrDeclined {
				p.logger.Error("engine acquire failed, session bypassed", "error", err)
			}
			return nil, err
		}
		ss.engine = engine
		return engine, nil
	})
	ss.ctx.Attach()

	tctx := transaction.New(transaction.Config{
		Session:    ss.ctx,
		Dispatcher: p.dispatcher,
		Logger:     p.logf,
		ReqOut:     &sinkOutput{get: txn.RequestBodySink},
		RespOut:    &sinkOutput{get: txn.ResponseBodySink},
		ReqBuf:     rulesengine.BufferConfig{Mode: streamfilter.NoBuf},
		RespBuf:    rulesengine.BufferConfig{Mode: streamfilter.NoBuf},
	})

	// The engine receives the transaction context as its callback
	// surface, then the returned handle is bound back onto the context.
	if conn := ss.ctx.Connection(); conn != nil {
		tx, err := conn.NewTransaction(tctx)
		if err != nil {
			p.logger.Error("engine transaction create declined, exchange bypassed", "error", err)
		} else {
			tctx.SetEngineTransaction(tx)
		}
	}

	p.dispatcher.RegisterTransaction(tctx)
	txn.SetData(&txnState{tctx: tctx, host: txn})
}

func (p *Plugin) txnClose(sess proxycap.SessionHandle, txn proxycap.TxnHandle) {
	ts, ok := txn.Data().(*txnState)
	if !ok {
		return
	}
	var release func()
	if ss, ok := sess.Data().(*sessState); ok {
		release = ss.release
	}
	_ = release
	// If the normal completion items are already in flight, let them land
	// before the synchronous drain so nothing fires twice. Likewise a
	// committed synthetic response: its replay to the engine must precede
	// the terminal drain.
	if ts.tctx.EngineTransaction() != nil {
		if ts.tctx.RespFilter.Finished() {
			p.await(ts.tctx, ts.tctx.TerminalsDrained)
		}
		ts.mu.Lock()
		synthPending := ts.synthEnqueued
		ts.mu.Unlock()
		if synthPending {
			p.await(ts.tctx, func() bool {
				ts.mu.Lock()
				defer ts.mu.Unlock()
				return ts.synthNotified
			})
		}
	}
	p.dispatcher.UnregisterTransaction(ts.tctx.ID)
	txn.SetData(nil)
}

func (p *Plugin) readRequestHeaders(txn proxycap.TxnHandle) {
	ts, ok := txn.Data().(*txnState)
	if !ok || ts.tctx.EngineTransaction() == nil {
		txn.Reenable(proxycap.Continue)
		return
	}
	tctx := ts.tctx

	block, err := txn.RequestHeaderBlock()
	if err != nil {
		p.failTransaction(txn, tctx, 500, "request header recovery failed", err)
		return
	}
	res, err := headerparse.ParseBlock(block)
	if err != nil {
		p.failTransaction(txn, tctx, 400, "request header block unparseable", err)
		return
	}
	if res.Status == headerparse.StatusDegraded {
		p.logger.Debug("request header block required repair", "txn", tctx.ID)
	}

	startLine := res.StartLine
	if url, uerr := txn.URL(); uerr == nil {
		fixed, ferr := headerparse.FixRequestLine(startLine, url)
		if ferr != nil {
			p.failTransaction(txn, tctx, 400, "request line fixup mismatch", ferr)
			return
		}
		startLine = fixed
	}

	p.notifyHeaders(ts, streamfilter.Request, string(startLine), toEngineFields(res.Headers))
	tctx.MarkHeaderSeen(streamfilter.Request)

	if p.blocking {
		p.await(tctx, func() bool { return ts.hdrFinished(streamfilter.Request) })
	}

	// A request that announces no body is finished the moment its
	// headers are: terminal-flush the empty request stream so
	// request_finished follows request_header_finished immediately.
	if !res.HasBody && !tctx.ReqFilter.Finished() {
		tctx.ReqFilter.ApplyChunk(nil, true)
	}

	if tctx.Status() != 0 {
		txn.Reenable(proxycap.Error)
		return
	}
	txn.Reenable(proxycap.Continue)
}

func (p *Plugin) preRemap(txn proxycap.TxnHandle) {
	ts, ok := txn.Data().(*txnState)
	if !ok || ts.tctx.EngineTransaction() == nil {
		txn.Reenable(proxycap.Continue)
		return
	}
	tctx := ts.tctx

	// Last event before origin contact: the request header actions are
	// consumed here, as the headers serialize toward the origin.
	applyHeaderActions(txn.RequestHeaders(), tctx.DrainHeaderActions(streamfilter.Request), p.logger)
	tctx.MarkHeaderFinished(streamfilter.Request)

	if tctx.Status() != 0 {
		txn.Reenable(proxycap.Error)
		return
	}
	txn.Reenable(proxycap.Continue)
}

func (p *Plugin) readResponseHeaders(txn proxycap.TxnHandle) {
	ts, ok := txn.Data().(*txnState)
	if !ok || ts.tctx.EngineTransaction() == nil {
		txn.Reenable(proxycap.Continue)
		return
	}
	tctx := ts.tctx

	block, err := txn.ResponseHeaderBlock()
	if err != nil {
		p.logger.Error("response header recovery failed", "txn", tctx.ID, "error", err)
		txn.Reenable(proxycap.Continue)
		return
	}
	res, err := headerparse.ParseBlock(block)
	if err != nil {
		p.logger.Error("response header block unparseable", "txn", tctx.ID, "error", err)
		txn.Reenable(proxycap.Continue)
		return
	}

	// An interim 100 carries no terminal notifications; processing
	// resumes when the real response arrives.
	if statusFromLine(res.StartLine) == 100 {
		txn.Reenable(proxycap.Continue)
		return
	}

	p.notifyHeaders(ts, streamfilter.Response, string(res.StartLine), toEngineFields(res.Headers))
	tctx.MarkHeaderSeen(streamfilter.Response)

	if p.blocking {
		p.await(tctx, func() bool { return ts.hdrFinished(streamfilter.Response) })
	}
	txn.Reenable(proxycap.Continue)
}

func (p *Plugin) sendResponseHeaders(txn proxycap.TxnHandle) {
	ts, ok := txn.Data().(*txnState)
	if !ok {
		txn.Reenable(proxycap.Continue)
		return
	}
	tctx := ts.tctx

	status, committed := tctx.CommitErrorState()
	if committed && status != 0 {
		built := errorresponse.Commit(
			&headerTarget{txn: txn},
			status, "",
			tctx.PendingErrorHeaders(),
			tctx.PendingErrorBody(),
		)
		p.notifySynthetic(ts, built)
		tctx.MarkHeaderFinished(streamfilter.Response)
		txn.Reenable(proxycap.Error)
		return
	}

	// Normal path: response header actions are consumed here, as the
	// headers serialize toward the client.
	applyHeaderActions(txn.ResponseHeaders(), tctx.DrainHeaderActions(streamfilter.Response), p.logger)
	tctx.MarkHeaderFinished(streamfilter.Response)
	txn.Reenable(proxycap.Continue)
}

func (p *Plugin) controlUpdate() {
	if p.configPath == "" {
		return
	}
	if err := p.mgr.Create(p.configPath); err != nil {
		p.logger.Error("control update: engine reload failed", "path", p.configPath, "error", err)
		return
	}
	p.mgr.Cleanup()
	p.logger.Info("control update: engine reloaded", "path", p.configPath)
}

// BodyChunk implements proxycap.BodyFilter: the transforming-pipe entry
// point for both directions.
func (p *Plugin) BodyChunk(txn proxycap.TxnHandle, dir streamfilter.Direction, data []byte, end bool) {
	ts, ok := txn.Data().(*txnState)
	if !ok {
		// Bypass or unknown transaction: forward untouched.
		p.passthrough(txn, dir, data)
		return
	}
	f := ts.tctx.ReqFilter
	if dir == streamfilter.Response {
		f = ts.tctx.RespFilter
	}
	if f.Finished() {
		return
	}

	// At end-of-stream, give in-flight body notifications a chance to
	// land their edits before the terminal flush makes those byte ranges
	// unreachable. Only worth a rendezvous when the engine has declared
	// edit intent for this direction.
	if end && p.blocking && ts.tctx.EngineTransaction() != nil {
		if len(data) > 0 {
			f.ApplyChunk(data, false)
		}
		if f.HasEdits() {
			p.await(ts.tctx, func() bool { return p.dispatcher.Idle(ts.tctx.ID) })
		}
		f.ApplyChunk(nil, true)
		return
	}

	f.ApplyChunk(data, end)
}

func (p *Plugin) passthrough(txn proxycap.TxnHandle, dir streamfilter.Direction, data []byte) {
	if len(data) == 0 {
		return
	}
	sink := txn.RequestBodySink()
	if dir == streamfilter.Response {
		sink = txn.ResponseBodySink()
	}
	if sink == nil {
		return
	}
	if _, err := sink.Write(data); err != nil {
		p.logger.Error("bypass body forward failed", "direction", dir.String(), "error", err)
	}
}

// notifyHeaders enqueues the started / header_data / header_finished
// triple for one direction, marking the per-transaction header-finished
// flag and signalling the rendezvous when the last lands.
func (p *Plugin) notifyHeaders(ts *txnState, dir streamfilter.Direction, startLine string, fields []rulesengine.HeaderField) {
	tctx := ts.tctx
	p.dispatcher.Enqueue(dispatch.Item{TxnID: tctx.ID, Run: func() error {
		tx := tctx.EngineTransaction()
		if tx == nil {
			return nil
		}
		if dir == streamfilter.Response {
			return tx.ResponseStarted(startLine)
		}
		return tx.RequestStarted(startLine)
	}})
	p.dispatcher.Enqueue(dispatch.Item{TxnID: tctx.ID, Run: func() error {
		tx := tctx.EngineTransaction()
		if tx == nil {
			return nil
		}
		if dir == streamfilter.Response {
			return tx.ResponseHeaderData(fields)
		}
		return tx.RequestHeaderData(fields)
	}})
	p.dispatcher.Enqueue(dispatch.Item{TxnID: tctx.ID, Run: func() error {
		tx := tctx.EngineTransaction()
		var err error
		if tx != nil {
			if dir == streamfilter.Response {
				err = tx.ResponseHeaderFinished()
			} else {
				err = tx.RequestHeaderFinished()
			}
		}
		ts.markHdrFinished(dir)
		tctx.Signal()
		return err
	}})
}

// notifySynthetic replays the committed synthetic response to the engine
// as its own response lifecycle.
func (p *Plugin) notifySynthetic(ts *txnState, built errorresponse.Built) {
	tctx := ts.tctx
	fields := make([]rulesengine.HeaderField, len(built.Headers))
	for i, h := range built.Headers {
		fields[i] = rulesengine.HeaderField{Name: h.Name, Value: h.Value}
	}
	ts.mu.Lock()
	ts.synthEnqueued = true
	ts.mu.Unlock()
	p.dispatcher.Enqueue(dispatch.Item{TxnID: tctx.ID, Run: func() error {
		defer func() {
			ts.mu.Lock()
			ts.synthNotified = true
			ts.mu.Unlock()
			tctx.Signal()
		}()
		tx := tctx.EngineTransaction()
		if tx == nil {
			return nil
		}
		if err := tx.ResponseStarted(built.StatusLine); err != nil {
			return err
		}
		if err := tx.ResponseHeaderData(fields); err != nil {
			return err
		}
		if err := tx.ResponseHeaderFinished(); err != nil {
			return err
		}
		if len(built.Body) > 0 {
			return tx.ResponseBodyData(built.Body)
		}
		return nil
	}})
}

// failTransaction records an error-status verdict for a failure found on
// the proxy-thread path and diverts the host into its error path.
func (p *Plugin) failTransaction(txn proxycap.TxnHandle, tctx *transaction.Context, status int, msg string, err error) {
	p.logger.Error(msg, "txn", tctx.ID, "error", err)
	if serr := tctx.ErrorStatus(status); serr != nil {
		p.logger.Error("error status refused", "txn", tctx.ID, "status", status, "error", serr)
	}
	txn.Reenable(proxycap.Error)
}

func (p *Plugin) await(tctx *transaction.Context, pred func() bool) {
	ctx, cancel := context.WithTimeout(context.Background(), p.rendWait)
	defer cancel()
	if err := tctx.Await(ctx, pred); err != nil {
		p.logger.Error("rendezvous wait abandoned", "txn", tctx.ID, "error", err)
	}
}

// applyHeaderActions replays queued header actions against a marshal
// buffer at its serialization point.
func applyHeaderActions(hdr proxycap.HeaderObject, actions []callback.HeaderActionEntry, logger *slog.Logger) {
	for _, a := range actions {
		switch a.Action {
		case callback.Set:
			hdr.Set(a.Name, a.Value)
		case callback.Unset:
			hdr.Remove(a.Name)
		case callback.Add:
			hdr.Add(a.Name, a.Value)
		case callback.Append:
			if vals := hdr.Values(a.Name); len(vals) > 0 {
				hdr.Set(a.Name, vals[0]+a.Value)
			} else {
				hdr.Set(a.Name, a.Value)
			}
		case callback.Merge:
			merged := false
			for _, v := range hdr.Values(a.Name) {
				if v == a.Value {
					merged = true
					break
				}
			}
			if !merged {
				if vals := hdr.Values(a.Name); len(vals) > 0 {
					hdr.Set(a.Name, vals[0]+", "+a.Value)
				} else {
					hdr.Set(a.Name, a.Value)
				}
			}
		case callback.Edit:
			if a.Regex == nil {
				logger.Error("EDIT header action without compiled pattern", "header", a.Name)
				continue
			}
			vals := hdr.Values(a.Name)
			if len(vals) == 0 {
				continue
			}
			hdr.Set(a.Name, a.Regex.ReplaceAllString(vals[0], a.Replacement))
		default:
			logger.Error("unknown header action", "action", fmt.Sprintf("%d", int(a.Action)), "header", a.Name)
		}
	}
}

// headerTarget adapts a host transaction's client response surface into
// the error-response builder's target.
type headerTarget struct {
	txn proxycap.TxnHandle
}

func (t *headerTarget) SetStatus(code int, reason string) {
	t.txn.ResponseHeaders().SetStatus(code, reason)
}

func (t *headerTarget) SetHeader(name, value string) {
	t.txn.ResponseHeaders().Add(name, value)
}

func (t *headerTarget) SetBody(body []byte) {
	t.txn.SetErrorBody(body)
}

// sinkOutput defers sink resolution to write time: the host creates the
// per-direction sinks after the transaction (and its filters) already
// exist.
type sinkOutput struct {
	get func() proxycap.BodySink
}

func (o *sinkOutput) Write(p []byte) (int, error) {
	if s := o.get(); s != nil {
		return s.Write(p)
	}
	return len(p), nil
}

func (o *sinkOutput) SetNBytes(n int64) {
	if s := o.get(); s != nil {
		s.SetNBytes(n)
	}
}

// toEngineFields converts reparsed fields into the engine's pair type.
func toEngineFields(in []headerparse.HeaderField) []rulesengine.HeaderField {
	out := make([]rulesengine.HeaderField, len(in))
	for i, f := range in {
		out[i] = rulesengine.HeaderField{Name: f.Name, Value: f.Value}
	}
	return out
}

// statusFromLine extracts the status code from a response start-line,
// returning 0 when the line does not look like one.
func statusFromLine(line []byte) int {
	parts := strings.SplitN(string(line), " ", 3)
	if len(parts) < 2 {
		return 0
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0
	}
	return code
}

// logfAdapter bridges the printf-style logging the stream filter and
// dispatcher expect onto the structured logger.
type logfAdapter struct {
	l *slog.Logger
}

func (a *logfAdapter) Debugf(format string, args ...any) {
	a.l.Debug(fmt.Sprintf(format, args...))
}

func (a *logfAdapter) Errorf(format string, args ...any) {
	a.l.Error(fmt.Sprintf(format, args...))
}

func (a *logfAdapter) Infof(format string, args ...any) {
	a.l.Info(fmt.Sprintf(format, args...))
}
