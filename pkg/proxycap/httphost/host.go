package httphost

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/mercator-hq/warden/pkg/proxycap"
	"github.com/mercator-hq/warden/pkg/streamfilter"
)

// pumpChunkSize is how much body the adapter hands to the transforming
// pipe per delivery.
const pumpChunkSize = 32 * 1024

type connKeyType struct{}

var connKey connKeyType

// hopByHop are connection-scoped fields never forwarded in either
// direction.
var hopByHop = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Proxy-Connection", "Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// Host drives a registered handler with the proxycap event stream,
// deriving sessions from server connections and transactions from
// request/response exchanges. It serves as the http.Handler of the
// gateway's listener and forwards to a single upstream origin.
type Host struct {
	upstream  *url.URL
	transport http.RoundTripper
	logger    *slog.Logger

	mu       sync.Mutex
	handler  proxycap.Handler
	filter   proxycap.BodyFilter
	sessions map[net.Conn]*connSession
}

// New creates a host forwarding to upstream. transport may be nil, in
// which case http.DefaultTransport is used.
func New(upstream *url.URL, transport http.RoundTripper, logger *slog.Logger) *Host {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		upstream:  upstream,
		transport: transport,
		logger:    logger,
		sessions:  make(map[net.Conn]*connSession),
	}
}

// Register installs the single event handler. A handler that also
// implements proxycap.BodyFilter is attached to the body pipes;
// otherwise bodies stream through untransformed.
func (h *Host) Register(handler proxycap.Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
	if bf, ok := handler.(proxycap.BodyFilter); ok {
		h.filter = bf
	}
}

// ConnContext is installed as http.Server.ConnContext so each accepted
// connection carries its session object.
func (h *Host) ConnContext(ctx context.Context, c net.Conn) context.Context {
	sess := newConnSession(c.RemoteAddr(), c.LocalAddr())
	h.mu.Lock()
	h.sessions[c] = sess
	h.mu.Unlock()
	return context.WithValue(ctx, connKey, sess)
}

// ConnState is installed as http.Server.ConnState; it fires the
// session-close hook once the connection is gone.
func (h *Host) ConnState(c net.Conn, state http.ConnState) {
	if state != http.StateClosed && state != http.StateHijacked {
		return
	}
	h.mu.Lock()
	sess := h.sessions[c]
	delete(h.sessions, c)
	handler := h.handler
	h.mu.Unlock()
	if sess == nil || handler == nil || !sess.wasStarted() {
		return
	}
	handler.HandleEvent(proxycap.SessionClose, sess, nil)
}

// ControlUpdate fires the control-update hook, standing in for the
// host's plugin-message event.
func (h *Host) ControlUpdate() {
	h.mu.Lock()
	handler := h.handler
	h.mu.Unlock()
	if handler != nil {
		handler.HandleEvent(proxycap.ControlUpdate, nil, nil)
	}
}

func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	handler := h.handler
	filter := h.filter
	h.mu.Unlock()
	if handler == nil {
		http.Error(w, "no handler registered", http.StatusServiceUnavailable)
		return
	}

	sess := h.sessionFor(r)
	if sess.markStarted() {
		handler.HandleEvent(proxycap.SessionStart, sess, nil)
	}

	txn := newTxn(sess, r)
	handler.HandleEvent(proxycap.TxnStart, sess, txn)

	handler.HandleEvent(proxycap.ReadRequestHeaders, sess, txn)
	if txn.currentVerdict() == proxycap.Error {
		h.finishSynthetic(w, handler, sess, txn)
		return
	}

	handler.HandleEvent(proxycap.PreRemap, sess, txn)
	if txn.currentVerdict() == proxycap.Error {
		h.finishSynthetic(w, handler, sess, txn)
		return
	}

	resp, err := h.roundTrip(r, txn, filter)
	if err != nil {
		h.logger.Error("origin round trip failed", "error", err, "url", txn.url)
		txn.respHdr.SetStatus(http.StatusBadGateway, "Bad Gateway")
		handler.HandleEvent(proxycap.SendResponseHeaders, sess, txn)
		h.writeClientResponse(w, txn, http.StatusBadGateway)
		handler.HandleEvent(proxycap.TxnClose, sess, txn)
		return
	}
	defer resp.Body.Close()

	txn.setResponse(resp)
	handler.HandleEvent(proxycap.ReadResponseHeaders, sess, txn)
	handler.HandleEvent(proxycap.SendResponseHeaders, sess, txn)

	status, _ := txn.respHdr.statusLine()
	if status == 0 {
		status = resp.StatusCode
	}
	h.writeClientResponse(w, txn, status)

	// Response body flows through the transforming pipe toward the
	// client. When a synthetic response was committed the mediator's
	// filter is discarding, so pumping only drives engine notifications.
	txn.respSink = &writerSink{w: w}
	h.pump(resp.Body, txn, streamfilter.Response, filter, txn.respSink)

	handler.HandleEvent(proxycap.TxnClose, sess, txn)
}

// finishSynthetic handles a transaction diverted to the error path
// before the origin was contacted: the send-response-headers hook
// commits the synthetic response, then the adapter writes it out.
func (h *Host) finishSynthetic(w http.ResponseWriter, handler proxycap.Handler, sess *connSession, txn *httpTxn) {
	handler.HandleEvent(proxycap.SendResponseHeaders, sess, txn)
	status, _ := txn.respHdr.statusLine()
	if status == 0 {
		status = http.StatusForbidden
	}
	h.writeClientResponse(w, txn, status)
	handler.HandleEvent(proxycap.TxnClose, sess, txn)
}

// roundTrip sends the (possibly header-rewritten) request to the origin,
// streaming the request body through the transforming pipe.
func (h *Host) roundTrip(r *http.Request, txn *httpTxn, filter proxycap.BodyFilter) (*http.Response, error) {
	outURL := *r.URL
	outURL.Scheme = h.upstream.Scheme
	outURL.Host = h.upstream.Host

	var body io.Reader = http.NoBody
	var pw *io.PipeWriter
	if r.ContentLength != 0 {
		var pr *io.PipeReader
		pr, pw = io.Pipe()
		body = pr
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, outURL.String(), body)
	if err != nil {
		return nil, err
	}
	out.ContentLength = -1
	if r.ContentLength == 0 {
		out.ContentLength = 0
	}

	for _, f := range txn.reqHdr.Fields() {
		if f.Name == "Host" {
			out.Host = f.Value
			continue
		}
		if isHopByHop(f.Name) {
			continue
		}
		out.Header.Add(f.Name, f.Value)
	}

	if pw != nil {
		txn.reqSink = &writerSink{w: pw}
		go func() {
			h.pump(r.Body, txn, streamfilter.Request, filter, txn.reqSink)
			pw.Close()
		}()
	} else {
		txn.reqSink = &writerSink{w: io.Discard}
		h.pump(http.NoBody, txn, streamfilter.Request, filter, txn.reqSink)
	}

	return h.transport.RoundTrip(out)
}

// pump reads src to EOF, delivering each chunk to the transforming pipe
// (or straight to sink when no filter is registered).
func (h *Host) pump(src io.Reader, txn *httpTxn, dir streamfilter.Direction, filter proxycap.BodyFilter, sink proxycap.BodySink) {
	buf := make([]byte, pumpChunkSize)
	for {
		n, err := src.Read(buf)
		end := err == io.EOF
		if n > 0 || end {
			if filter != nil {
				filter.BodyChunk(txn, dir, buf[:n], end)
			} else if n > 0 {
				if _, werr := sink.Write(buf[:n]); werr != nil {
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				h.logger.Error("body read failed", "direction", dir.String(), "error", err)
				if filter != nil {
					filter.BodyChunk(txn, dir, nil, true)
				}
			}
			return
		}
	}
}

// writeClientResponse serializes the response header object (status,
// reason, fields) to the client, plus the error body if one was
// installed.
func (h *Host) writeClientResponse(w http.ResponseWriter, txn *httpTxn, status int) {
	for _, f := range txn.respHdr.Fields() {
		if isHopByHop(f.Name) {
			continue
		}
		w.Header().Add(f.Name, f.Value)
	}
	if body := txn.takeErrorBody(); body != nil {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(status)
		if _, err := w.Write(body); err != nil {
			h.logger.Error("error body write failed", "error", err)
		}
		return
	}
	w.WriteHeader(status)
}

func (h *Host) sessionFor(r *http.Request) *connSession {
	if sess, ok := r.Context().Value(connKey).(*connSession); ok {
		return sess
	}
	// No ConnContext (e.g. httptest direct handler call): synthesize a
	// one-request session from the request's addresses.
	remote := &net.TCPAddr{}
	if host, portStr, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remote.IP = net.ParseIP(host)
		remote.Port, _ = strconv.Atoi(portStr)
	}
	return newConnSession(remote, nil)
}

// writerSink adapts an io.Writer into the body-sink contract. SetNBytes
// records the terminal byte total; whether a downstream hop can apply a
// late size change is outside the adapter's control, so the value is
// kept for diagnostics only.
type writerSink struct {
	mu     sync.Mutex
	w      io.Writer
	nbytes int64
	closed bool
}

func (s *writerSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	n, err := s.w.Write(p)
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return n, err
}

func (s *writerSink) SetNBytes(n int64) {
	s.mu.Lock()
	s.nbytes = n
	s.mu.Unlock()
}

func (s *writerSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func isHopByHop(name string) bool {
	for _, h := range hopByHop {
		if equalFold(h, name) {
			return true
		}
	}
	return false
}
