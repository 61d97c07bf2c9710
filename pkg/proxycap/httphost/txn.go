package httphost

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/mercator-hq/warden/pkg/proxycap"
)

// httpTxn is the adapter's per-exchange object.
type httpTxn struct {
	sess *connSession

	rawReqBlock  []byte
	rawRespBlock []byte
	url          string

	reqHdr  *headerObject
	respHdr *headerObject

	mu        sync.Mutex
	errorBody []byte
	verdict   proxycap.Verdict
	data      any

	reqSink  proxycap.BodySink
	respSink proxycap.BodySink
}

func newTxn(sess *connSession, r *http.Request) *httpTxn {
	t := &httpTxn{sess: sess}

	fields := make([]proxycap.HeaderField, 0, len(r.Header)+1)
	fields = append(fields, proxycap.HeaderField{Name: "Host", Value: r.Host})
	for _, name := range headerOrder(r.Header) {
		for _, v := range r.Header[name] {
			fields = append(fields, proxycap.HeaderField{Name: name, Value: v})
		}
	}
	t.reqHdr = newHeaderObject(fields)
	t.respHdr = newHeaderObject(nil)

	t.url = r.URL.String()
	t.rawReqBlock = serializeBlock(
		fmt.Sprintf("%s %s %s", r.Method, r.URL.RequestURI(), r.Proto),
		fields,
	)
	return t
}

// setResponse records the origin's response into the transaction: the
// serialized block for reparsing and the marshal buffer the client-side
// header emitter mutates.
func (t *httpTxn) setResponse(resp *http.Response) {
	fields := make([]proxycap.HeaderField, 0, len(resp.Header))
	for _, name := range headerOrder(resp.Header) {
		for _, v := range resp.Header[name] {
			fields = append(fields, proxycap.HeaderField{Name: name, Value: v})
		}
	}
	t.respHdr = newHeaderObject(fields)
	t.rawRespBlock = serializeBlock(fmt.Sprintf("%s %s", resp.Proto, resp.Status), fields)
}

func (t *httpTxn) Session() proxycap.SessionHandle { return t.sess }

func (t *httpTxn) RequestHeaderBlock() ([]byte, error) {
	if t.rawReqBlock == nil {
		return nil, io.ErrUnexpectedEOF
	}
	return t.rawReqBlock, nil
}

func (t *httpTxn) ResponseHeaderBlock() ([]byte, error) {
	if t.rawRespBlock == nil {
		return nil, io.ErrUnexpectedEOF
	}
	return t.rawRespBlock, nil
}

func (t *httpTxn) URL() (string, error) { return t.url, nil }

func (t *httpTxn) RequestHeaders() proxycap.HeaderObject  { return t.reqHdr }
func (t *httpTxn) ResponseHeaders() proxycap.HeaderObject { return t.respHdr }

func (t *httpTxn) SetErrorBody(body []byte) {
	t.mu.Lock()
	t.errorBody = body
	t.mu.Unlock()
}

func (t *httpTxn) takeErrorBody() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errorBody
}

func (t *httpTxn) Reenable(v proxycap.Verdict) {
	t.mu.Lock()
	t.verdict = v
	t.mu.Unlock()
}

func (t *httpTxn) currentVerdict() proxycap.Verdict {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.verdict
}

func (t *httpTxn) RequestBodySink() proxycap.BodySink  { return t.reqSink }
func (t *httpTxn) ResponseBodySink() proxycap.BodySink { return t.respSink }

func (t *httpTxn) Data() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data
}

func (t *httpTxn) SetData(v any) {
	t.mu.Lock()
	t.data = v
	t.mu.Unlock()
}

// serializeBlock renders a start-line plus ordered header fields as the
// CRLF-terminated wire block the header reparser consumes.
func serializeBlock(startLine string, fields []proxycap.HeaderField) []byte {
	size := len(startLine) + 4
	for _, f := range fields {
		size += len(f.Name) + len(f.Value) + 4
	}
	out := make([]byte, 0, size)
	out = append(out, startLine...)
	out = append(out, '\r', '\n')
	for _, f := range fields {
		out = append(out, f.Name...)
		out = append(out, ':', ' ')
		out = append(out, f.Value...)
		out = append(out, '\r', '\n')
	}
	out = append(out, '\r', '\n')
	return out
}

// headerOrder returns map keys in a stable order. net/http has already
// discarded wire order; sorting keeps the serialized block deterministic
// for the reparser and for tests.
func headerOrder(h http.Header) []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
