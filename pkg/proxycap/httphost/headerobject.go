package httphost

import (
	"sync"

	"github.com/mercator-hq/warden/pkg/proxycap"
)

// headerObject is an ordered header marshal buffer. net/http's Header
// map loses wire order, so the adapter keeps its own field slice and
// only converts to an http.Header at the moment the bytes leave the
// process.
type headerObject struct {
	mu     sync.Mutex
	fields []proxycap.HeaderField
	status int
	reason string
}

func newHeaderObject(fields []proxycap.HeaderField) *headerObject {
	return &headerObject{fields: fields}
}

func (h *headerObject) Fields() []proxycap.HeaderField {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]proxycap.HeaderField, len(h.fields))
	copy(out, h.fields)
	return out
}

func (h *headerObject) Values(name string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, f := range h.fields {
		if equalFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

func (h *headerObject) Set(name, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	replaced := false
	kept := h.fields[:0]
	for _, f := range h.fields {
		if equalFold(f.Name, name) {
			if !replaced {
				kept = append(kept, proxycap.HeaderField{Name: f.Name, Value: value})
				replaced = true
			}
			continue
		}
		kept = append(kept, f)
	}
	h.fields = kept
	if !replaced {
		h.fields = append(h.fields, proxycap.HeaderField{Name: name, Value: value})
	}
}

func (h *headerObject) Add(name, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fields = append(h.fields, proxycap.HeaderField{Name: name, Value: value})
}

func (h *headerObject) Remove(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.fields[:0]
	for _, f := range h.fields {
		if !equalFold(f.Name, name) {
			kept = append(kept, f)
		}
	}
	h.fields = kept
}

func (h *headerObject) SetStatus(code int, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = code
	h.reason = reason
}

func (h *headerObject) statusLine() (int, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status, h.reason
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
