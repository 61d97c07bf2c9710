package enginemgr

import (
	"sync"

	"github.com/mercator-hq/warden/pkg/rulesengine"
)

// Logger is the minimal logging capability the manager needs.
type Logger interface {
	Errorf(format string, args ...any)
	Infof(format string, args ...any)
}

// Factory builds one engine instance from a config file path.
type Factory func(configPath string) (rulesengine.Engine, error)

type generation struct {
	engine rulesengine.Engine
	path   string
	refs   int
}

// Manager is the process-wide engine manager: Acquire/Release form a
// reference-counted handle on the current generation's engine; Create
// starts a new generation without disturbing sessions still referencing
// an older one; Cleanup releases generations nothing references anymore.
type Manager struct {
	mu            sync.Mutex
	factory       Factory
	gens          []*generation
	maxConcurrent int
	logger        Logger
}

// New creates a manager with no engine loaded yet; call Create to load
// the first generation. maxConcurrent <= 0 means unlimited.
func New(factory Factory, maxConcurrent int, logger Logger) *Manager {
	return &Manager{factory: factory, maxConcurrent: maxConcurrent, logger: logger}
}

// Create builds a new engine generation from configPath and makes it the
// target of future Acquire calls. Sessions already holding an older
// generation's engine are unaffected until they release it.
func (m *Manager) Create(configPath string) error {
	engine, err := m.factory(configPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.gens = append(m.gens, &generation{engine: engine, path: configPath})
	m.mu.Unlock()
	return nil
}

// Acquire returns the current generation's engine and increments its
// reference count. Returns rulesengine.ErrDeclined if no generation has
// ever been created or the configured concurrency ceiling is reached —
// the caller is expected to enter bypass mode, not treat this as fatal.
func (m *Manager) Acquire() (rulesengine.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.gens) == 0 {
		return nil, rulesengine.ErrDeclined
	}
	if m.maxConcurrent > 0 && m.totalRefsLocked() >= m.maxConcurrent {
		return nil, rulesengine.ErrDeclined
	}
	g := m.gens[len(m.gens)-1]
	g.refs++
	return g.engine, nil
}

// Release decrements the reference count of whichever generation engine
// belongs to. It is safe to call with an engine from a generation that
// Cleanup has not yet collected.
func (m *Manager) Release(engine rulesengine.Engine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.gens {
		if g.engine == engine {
			g.refs--
			return
		}
	}
}

// Cleanup closes and drops every generation except the most recent one
// that has no remaining references.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.gens) == 0 {
		return
	}
	last := len(m.gens) - 1
	kept := m.gens[:0]
	for i, g := range m.gens {
		if i != last && g.refs <= 0 {
			if err := g.engine.Close(); err != nil && m.logger != nil {
				m.logger.Errorf("enginemgr: close idle engine (%s): %v", g.path, err)
			}
			continue
		}
		kept = append(kept, g)
	}
	m.gens = kept
}

// Shutdown closes every remaining engine generation unconditionally.
// Called once at process exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.gens {
		if err := g.engine.Close(); err != nil && m.logger != nil {
			m.logger.Errorf("enginemgr: close engine on shutdown (%s): %v", g.path, err)
		}
	}
	m.gens = nil
}

// Generations reports the number of engine generations currently tracked
// (for tests and diagnostics).
func (m *Manager) Generations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.gens)
}

func (m *Manager) totalRefsLocked() int {
	total := 0
	for _, g := range m.gens {
		total += g.refs
	}
	return total
}
