package reload

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/swapvm/vm"
)

// Manager owns the reload protocol for one isolate and guarantees that at
// most one Session is live at a time.
type Manager struct {
	isolate *vm.Isolate
	bus     *EventBus

	trace    bool
	testMode bool

	mu   sync.Mutex
	live *Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithTrace enables the diagnostic trace.
func WithTrace(enabled bool) Option {
	return func(m *Manager) { m.trace = enabled }
}

// WithTestMode suppresses the trace regardless of WithTrace.
func WithTestMode() Option {
	return func(m *Manager) { m.testMode = true }
}

// WithObserver subscribes o to the manager's events.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.bus.Subscribe(o) }
}

// NewManager creates a manager for iso.
func NewManager(iso *vm.Isolate, opts ...Option) *Manager {
	m := &Manager{
		isolate: iso,
		bus:     NewEventBus(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Isolate returns the managed isolate.
func (m *Manager) Isolate() *vm.Isolate { return m.isolate }

// Subscribe registers o for reload events and returns its unsubscribe func.
func (m *Manager) Subscribe(o Observer) func() {
	return m.bus.Subscribe(o)
}

// Begin creates the live session. It fails with ErrAlreadyReloading while
// another session has not finished.
func (m *Manager) Begin() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live != nil {
		return nil, ErrAlreadyReloading
	}
	s := &Session{
		manager: m,
		isolate: m.isolate,
		tracer:  newTracer(m.trace && !m.testMode),
		id:      uuid.New(),
		started: time.Now(),
		remap:   NewRemappingTable(),
	}
	m.live = s
	return s, nil
}

// Live returns the live session, or nil.
func (m *Manager) Live() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// IsReloading returns true while a session is live.
func (m *Manager) IsReloading() bool {
	return m.Live() != nil
}

// Reload runs a whole attempt: Begin, StartReload, FinishReload.
func (m *Manager) Reload(ctx context.Context) Result {
	s, err := m.Begin()
	if err != nil {
		return Result{Err: err}
	}
	s.StartReload(ctx)
	return s.FinishReload()
}

func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live == s {
		m.live = nil
	}
}
