package httphost

import (
	"net"
	"strconv"
	"sync"
)

// connSession is the adapter's per-connection object. One is created the
// first time a request arrives on a connection and closed when the
// server reports the connection gone.
type connSession struct {
	remoteIP   string
	remotePort int
	localIP    string
	localPort  int

	mu      sync.Mutex
	data    any
	started bool
}

func newConnSession(remote, local net.Addr) *connSession {
	s := &connSession{}
	s.remoteIP, s.remotePort = splitAddr(remote)
	s.localIP, s.localPort = splitAddr(local)
	return s
}

func splitAddr(a net.Addr) (string, int) {
	if a == nil {
		return "", 0
	}
	host, portStr, err := net.SplitHostPort(a.String())
	if err != nil {
		return a.String(), 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func (s *connSession) RemoteAddr() (string, int) { return s.remoteIP, s.remotePort }
func (s *connSession) LocalAddr() (string, int)  { return s.localIP, s.localPort }

func (s *connSession) Data() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

func (s *connSession) SetData(v any) {
	s.mu.Lock()
	s.data = v
	s.mu.Unlock()
}

func (s *connSession) wasStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// markStarted reports whether this call was the first; the adapter fires
// the session-start hook exactly once per connection.
func (s *connSession) markStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return false
	}
	s.started = true
	return true
}
