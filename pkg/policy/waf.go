package policy

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mercator-hq/warden/pkg/callback"
	"github.com/mercator-hq/warden/pkg/evidence"
	"github.com/mercator-hq/warden/pkg/evidence/recorder"
	"github.com/mercator-hq/warden/pkg/policy/engine"
	"github.com/mercator-hq/warden/pkg/processing"
	"github.com/mercator-hq/warden/pkg/processing/content"
	"github.com/mercator-hq/warden/pkg/rulesengine"
	"github.com/mercator-hq/warden/pkg/streamfilter"
)

// maxBodyCapture bounds how much body is retained per direction for
// full-body evaluation; the stream filters see everything regardless.
const maxBodyCapture = 1 << 20 // 1 MiB

// Config fixes the adapter's per-direction buffering answers and
// evaluation behavior.
type Config struct {
	// RequestBuffering and ResponseBuffering are reported to the
	// mediator through BufferConfig.
	RequestBuffering  rulesengine.BufferConfig
	ResponseBuffering rulesengine.BufferConfig

	// Recorder, when non-nil, receives an evidence record for every
	// transaction: the request side at verdict time, the response side
	// at the logging notification.
	Recorder *recorder.Recorder
}

// Engine adapts the MPL interpreter engine to the rulesengine interface
// the mediator consumes.
type Engine struct {
	eval     engine.Engine
	analyzer *content.Analyzer
	cfg      Config
	logger   *slog.Logger
}

// New builds the adapter around an interpreter engine and a signature
// analyzer. analyzer may be nil to skip content scanning.
func New(eval engine.Engine, analyzer *content.Analyzer, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{eval: eval, analyzer: analyzer, cfg: cfg, logger: logger}
}

// NewConnection implements rulesengine.Engine.
func (e *Engine) NewConnection(meta rulesengine.ConnMeta) (rulesengine.Connection, error) {
	return &conn{engine: e, meta: meta}, nil
}

// Close implements rulesengine.Engine.
func (e *Engine) Close() error {
	return e.eval.Close()
}

type conn struct {
	engine *Engine
	meta   rulesengine.ConnMeta
}

func (c *conn) Opened() {
	c.engine.logger.Debug("connection opened",
		"remote", c.meta.RemoteIP, "port", c.meta.RemotePort)
}

func (c *conn) Closed() {
	c.engine.logger.Debug("connection closed", "remote", c.meta.RemoteIP)
}

func (c *conn) Destroy() {}

func (c *conn) NewTransaction(surface callback.Surface) (rulesengine.Transaction, error) {
	return &txn{
		engine:  c.engine,
		surface: surface,
		req: processing.InspectedRequest{
			RequestID: uuid.NewString(),
			ClientIP:  c.meta.RemoteIP,
			Headers:   make(map[string][]string),
		},
	}, nil
}

// compiledRedaction is one body redaction ready to turn chunk matches
// into stream edits.
type compiledRedaction struct {
	re   *regexp.Regexp
	repl []byte
}

// txn accumulates the transaction's inspected views and replays verdict
// callbacks as the notifications arrive.
type txn struct {
	engine  *Engine
	surface callback.Surface

	mu   sync.Mutex
	req  processing.InspectedRequest
	resp processing.InspectedResponse

	reqOffset  int64
	respOffset int64

	reqRedactions  []compiledRedaction
	respRedactions []compiledRedaction

	// seenRedactions dedupes registration across the repeated per-chunk
	// evaluations.
	seenRedactions map[string]bool

	// blocked and blockStatus remember a block verdict for the evidence
	// record; requestRecorded dedupes the request-phase record across the
	// repeated evaluations.
	blocked         bool
	blockStatus     int
	requestRecorded bool
	editsIssued     []evidence.StreamEditRecord
}

func (t *txn) RequestStarted(requestLine string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.req.RequestLine = requestLine
	parts := strings.SplitN(requestLine, " ", 3)
	if len(parts) >= 2 {
		t.req.Method = parts[0]
		target := parts[1]
		if q := strings.IndexByte(target, '?'); q >= 0 {
			t.req.Path = target[:q]
			t.req.Query = target[q+1:]
		} else {
			t.req.Path = target
		}
	}
	return nil
}

func (t *txn) RequestHeaderData(headers []rulesengine.HeaderField) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, h := range headers {
		name := strings.ToLower(h.Name)
		t.req.Headers[name] = append(t.req.Headers[name], h.Value)
	}
	return nil
}

func (t *txn) RequestHeaderFinished() error {
	t.mu.Lock()
	t.scanRequestLocked()
	req := t.req
	t.mu.Unlock()

	decision, err := t.engine.eval.EvaluateRequest(context.Background(), &req)
	if err != nil {
		return err
	}
	t.applyDecision(decision)
	t.recordRequest(&req, decision)
	return nil
}

func (t *txn) RequestBodyData(data []byte) error {
	t.mu.Lock()
	if len(t.req.Body) < maxBodyCapture {
		room := maxBodyCapture - len(t.req.Body)
		if room > len(data) {
			room = len(data)
		}
		t.req.Body = append(t.req.Body, data[:room]...)
	}
	offset := t.reqOffset
	t.reqOffset += int64(len(data))
	req := t.req
	t.mu.Unlock()

	// Body-dependent rules see the body as it grows; a redact rule that
	// first matches on this chunk registers its pattern before the
	// chunk's edits are computed.
	if decision, err := t.engine.eval.EvaluateRequest(context.Background(), &req); err == nil {
		t.applyDecision(decision)
	} else {
		t.engine.logger.Error("request body evaluation failed", "error", err)
	}

	t.mu.Lock()
	redactions := t.reqRedactions
	t.mu.Unlock()

	t.emitEdits(streamfilter.Request, data, offset, redactions)
	return nil
}

func (t *txn) RequestFinished() error {
	t.mu.Lock()
	hasBody := len(t.req.Body) > 0
	if hasBody {
		t.scanRequestLocked()
	}
	req := t.req
	t.mu.Unlock()

	if !hasBody {
		return nil
	}

	// Body-dependent rules get a second look now that the full (capped)
	// body is present. The response has not started, so a deny here can
	// still divert the exchange.
	decision, err := t.engine.eval.EvaluateRequest(context.Background(), &req)
	if err != nil {
		return err
	}
	t.applyDecision(decision)
	return nil
}

func (t *txn) ResponseStarted(statusLine string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resp.RequestID = t.req.RequestID
	t.resp.StatusLine = statusLine
	t.resp.Headers = make(map[string][]string)
	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) >= 2 {
		if code, err := strconv.Atoi(parts[1]); err == nil {
			t.resp.Status = code
		}
	}
	return nil
}

func (t *txn) ResponseHeaderData(headers []rulesengine.HeaderField) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resp.Headers == nil {
		t.resp.Headers = make(map[string][]string)
	}
	for _, h := range headers {
		name := strings.ToLower(h.Name)
		t.resp.Headers[name] = append(t.resp.Headers[name], h.Value)
	}
	return nil
}

func (t *txn) ResponseHeaderFinished() error {
	t.mu.Lock()
	resp := t.resp
	t.mu.Unlock()

	decision, err := t.engine.eval.EvaluateResponse(context.Background(), &resp)
	if err != nil {
		return err
	}
	t.applyDecision(decision)
	return nil
}

func (t *txn) ResponseBodyData(data []byte) error {
	t.mu.Lock()
	if len(t.resp.Body) < maxBodyCapture {
		room := maxBodyCapture - len(t.resp.Body)
		if room > len(data) {
			room = len(data)
		}
		t.resp.Body = append(t.resp.Body, data[:room]...)
	}
	offset := t.respOffset
	t.respOffset += int64(len(data))
	resp := t.resp
	t.mu.Unlock()

	// Re-evaluate with the body seen so far, so a redact rule matching
	// this chunk registers before the chunk's edits are computed.
	if decision, err := t.engine.eval.EvaluateResponse(context.Background(), &resp); err == nil {
		t.applyDecision(decision)
	} else {
		t.engine.logger.Error("response body evaluation failed", "error", err)
	}

	t.mu.Lock()
	redactions := t.respRedactions
	t.mu.Unlock()

	t.emitEdits(streamfilter.Response, data, offset, redactions)
	return nil
}

func (t *txn) ResponseFinished() error { return nil }

func (t *txn) Postprocess() error { return nil }

func (t *txn) Logging() error {
	t.mu.Lock()
	t.engine.logger.Info("transaction inspected",
		"request_id", t.req.RequestID,
		"method", t.req.Method,
		"path", t.req.Path,
		"status", t.resp.Status,
		"request_bytes", t.reqOffset,
		"response_bytes", t.respOffset,
	)
	t.mu.Unlock()

	t.recordResponse()
	return nil
}

func (t *txn) BufferConfig(dir streamfilter.Direction) rulesengine.BufferConfig {
	if dir == streamfilter.Response {
		return t.engine.cfg.ResponseBuffering
	}
	return t.engine.cfg.RequestBuffering
}

func (t *txn) Destroy() {}

// scanRequestLocked refreshes the request's signature scan over the
// start-line, query, and captured body. Callers hold t.mu.
func (t *txn) scanRequestLocked() {
	if t.engine.analyzer == nil {
		return
	}
	var sb strings.Builder
	sb.WriteString(t.req.RequestLine)
	sb.WriteByte('\n')
	sb.Write(t.req.Body)

	analysis, err := t.engine.analyzer.Analyze([]byte(sb.String()))
	if err != nil {
		t.engine.logger.Error("request signature scan failed", "error", err)
		return
	}
	t.req.ContentAnalysis = analysis
	t.req.RiskScore = riskScore(analysis)
}

// applyDecision replays a verdict through the mediator's callback
// surface.
func (t *txn) applyDecision(d *engine.PolicyDecision) {
	if d == nil {
		return
	}

	if d.Action == engine.ActionBlock {
		t.mu.Lock()
		t.blocked = true
		t.blockStatus = d.BlockStatusCode
		t.mu.Unlock()
		if err := t.surface.ErrorStatus(d.BlockStatusCode); err != nil {
			t.engine.logger.Debug("error status refused", "error", err)
		}
		for _, h := range d.BlockHeaders {
			if err := t.surface.ErrorHeader(h.Name, h.Value); err != nil {
				t.engine.logger.Debug("error header refused", "error", err)
			}
		}
		body := d.BlockBody
		if body == "" {
			body = d.BlockReason
		}
		if body != "" {
			if err := t.surface.ErrorBody([]byte(body)); err != nil {
				t.engine.logger.Debug("error body refused", "error", err)
			}
		}
		return
	}

	for _, edit := range d.HeaderEdits {
		dir := directionFor(edit.Direction)
		action, ok := headerActionFor(edit.Action)
		if !ok {
			t.engine.logger.Error("unknown header edit op", "op", edit.Action)
			continue
		}
		if err := t.surface.HeaderAction(dir, action, edit.Name, edit.Value, edit.Replacement); err != nil {
			t.engine.logger.Debug("header action refused",
				"header", edit.Name, "error", err)
		}
	}

	if len(d.Redactions) > 0 {
		t.registerRedactions(d.Redactions)
	}
}

// registerRedactions compiles redaction patterns and declares edit
// intent so the stream filters hold bytes long enough to edit them.
func (t *txn) registerRedactions(redactions []engine.Redaction) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.seenRedactions == nil {
		t.seenRedactions = make(map[string]bool)
	}

	var dirs []streamfilter.Direction
	for _, r := range redactions {
		if r.Pattern == "" {
			continue
		}
		key := r.Direction + "\x00" + r.Pattern + "\x00" + r.Strategy + "\x00" + r.Replacement
		if t.seenRedactions[key] {
			continue
		}
		t.seenRedactions[key] = true
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			t.engine.logger.Error("redaction pattern unparseable",
				"pattern", r.Pattern, "error", err)
			continue
		}
		repl := r.Replacement
		switch r.Strategy {
		case "remove":
			repl = ""
		case "mask":
			if repl == "" {
				repl = "***"
			}
		}
		compiled := compiledRedaction{re: re, repl: []byte(repl)}
		if directionFor(r.Direction) == streamfilter.Response {
			t.respRedactions = append(t.respRedactions, compiled)
			dirs = append(dirs, streamfilter.Response)
		} else {
			t.reqRedactions = append(t.reqRedactions, compiled)
			dirs = append(dirs, streamfilter.Request)
		}
	}
	if len(dirs) > 0 {
		t.surface.EditInit(dirs...)
	}
}

// emitEdits turns pattern matches inside one body chunk into stream
// edits at absolute pre-edit offsets.
func (t *txn) emitEdits(dir streamfilter.Direction, data []byte, offset int64, redactions []compiledRedaction) {
	for _, r := range redactions {
		for _, loc := range r.re.FindAllIndex(data, -1) {
			start := offset + int64(loc[0])
			n := int64(loc[1] - loc[0])
			if err := t.surface.StreamEdit(dir, start, n, r.repl); err != nil {
				t.engine.logger.Debug("stream edit refused",
					"direction", dir.String(), "start", start, "error", err)
				continue
			}
			t.mu.Lock()
			t.editsIssued = append(t.editsIssued, evidence.StreamEditRecord{
				Direction: dir.String(),
				Start:     start,
				Bytes:     n,
				ReplLen:   int64(len(r.repl)),
			})
			t.mu.Unlock()
		}
	}
}

// recordRequest hands the request-phase evidence to the recorder. Only
// the first evaluation's verdict is recorded; the per-chunk
// re-evaluations refine edits, not the audit record.
func (t *txn) recordRequest(req *processing.InspectedRequest, d *engine.PolicyDecision) {
	rec := t.engine.cfg.Recorder
	if rec == nil {
		return
	}

	t.mu.Lock()
	if t.requestRecorded {
		t.mu.Unlock()
		return
	}
	t.requestRecorded = true
	t.mu.Unlock()

	headers := make(map[string]string, len(req.Headers))
	for name, values := range req.Headers {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	var sigTypes []string
	if req.ContentAnalysis != nil {
		sigTypes = req.ContentAnalysis.Types()
	}

	var rules []evidence.MatchedRuleRecord
	for _, r := range d.MatchedRules {
		if !r.ConditionResult {
			continue
		}
		action := ""
		if len(r.ActionsExecuted) > 0 {
			action = string(r.ActionsExecuted[0].ActionType)
		}
		rules = append(rules, evidence.MatchedRuleRecord{
			PolicyID:       r.PolicyID,
			RuleID:         r.RuleID,
			Action:         action,
			Reason:         r.RuleName,
			EvaluationTime: r.EvaluationTime,
		})
	}

	err := rec.RecordRequest(context.Background(), &recorder.RequestInfo{
		RequestID:      req.RequestID,
		SessionID:      req.SessionID,
		Method:         req.Method,
		Path:           req.Path,
		RequestLine:    req.RequestLine,
		Headers:        headers,
		Body:           req.Body,
		ClientIP:       req.ClientIP,
		APIKey:         req.Header("x-api-key"),
		RiskScore:      req.RiskScore,
		SignatureTypes: sigTypes,
	}, &recorder.Decision{
		Decision:     string(d.Action),
		BlockReason:  d.BlockReason,
		MatchedRules: rules,
	})
	if err != nil {
		t.engine.logger.Error("evidence request record failed", "error", err)
	}
}

// recordResponse completes the transaction's evidence record at the
// logging notification.
func (t *txn) recordResponse() {
	rec := t.engine.cfg.Recorder
	if rec == nil {
		return
	}

	t.mu.Lock()
	status := t.resp.Status
	if t.blocked {
		status = t.blockStatus
	}
	var edited int64
	for _, e := range t.editsIssued {
		edited += e.Bytes
	}
	info := &recorder.ResponseInfo{
		RequestID:     t.req.RequestID,
		Status:        status,
		Synthetic:     t.blocked,
		Body:          t.resp.Body,
		StreamEdits:   append([]evidence.StreamEditRecord(nil), t.editsIssued...),
		RequestBytes:  t.reqOffset,
		ResponseBytes: t.respOffset,
		BytesEdited:   edited,
	}
	t.mu.Unlock()

	if err := rec.RecordResponse(context.Background(), info); err != nil {
		t.engine.logger.Error("evidence response record failed", "error", err)
	}
}

// riskScore folds a signature scan into the 1-10 scale policies match on.
func riskScore(a *content.Analysis) int {
	if a == nil || !a.Detected() {
		return 0
	}
	switch a.MaxSeverity() {
	case "high":
		return 9
	case "medium":
		return 6
	default:
		return 3
	}
}

func directionFor(s string) streamfilter.Direction {
	if s == "response" {
		return streamfilter.Response
	}
	return streamfilter.Request
}

func headerActionFor(op string) (callback.Action, bool) {
	switch op {
	case "set":
		return callback.Set, true
	case "unset":
		return callback.Unset, true
	case "add":
		return callback.Add, true
	case "append":
		return callback.Append, true
	case "merge":
		return callback.Merge, true
	case "edit":
		return callback.Edit, true
	default:
		return 0, false
	}
}
