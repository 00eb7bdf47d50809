package debugger

import (
	"context"
	"fmt"
	"sync"

	"tabmon/internal/logger"
	"tabmon/pkg/model"
)

// Session tracks one tab under observation.
type Session struct {
	TabID    model.TabID
	URL      string
	Attached bool

	requests map[model.RequestID]struct{}
}

// Info is a read-only snapshot of a session.
type Info struct {
	TabID           model.TabID
	URL             string
	Attached        bool
	TrackedRequests int
}

// Manager owns the attach/detach lifecycle of debugging connections.
// A session is attached only after both the connection handshake and
// the network-observation enable succeed; a partial session is
// discarded, never kept half-attached.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[model.TabID]*Session
	attaching map[model.TabID]*attachCall
	transport Transport
	log       logger.Logger
}

// attachCall is one in-flight handshake. Late callers for the same tab
// wait on done and share err instead of dialing a second connection.
type attachCall struct {
	done chan struct{}
	err  error
}

// NewManager creates a session manager over a transport.
func NewManager(t Transport, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		sessions:  make(map[model.TabID]*Session),
		attaching: make(map[model.TabID]*attachCall),
		transport: t,
		log:       l,
	}
}

// Attach opens a debugging connection to the tab and enables network
// observation. Idempotent: an already attached tab returns immediately,
// and concurrent callers for the same tab share one handshake.
func (m *Manager) Attach(ctx context.Context, tab model.TabID, url string) error {
	m.mu.Lock()
	if s, ok := m.sessions[tab]; ok && s.Attached {
		m.mu.Unlock()
		return nil
	}
	if call, ok := m.attaching[tab]; ok {
		m.mu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &attachCall{done: make(chan struct{})}
	m.attaching[tab] = call
	m.sessions[tab] = &Session{
		TabID:    tab,
		URL:      url,
		requests: make(map[model.RequestID]struct{}),
	}
	m.mu.Unlock()

	err := m.handshake(ctx, tab, url)

	m.mu.Lock()
	call.err = err
	delete(m.attaching, tab)
	m.mu.Unlock()
	close(call.done)
	return err
}

func (m *Manager) handshake(ctx context.Context, tab model.TabID, url string) error {
	if err := m.transport.Attach(ctx, tab); err != nil {
		m.drop(tab)
		m.log.Err(err, "attach failed", "tab", string(tab))
		return fmt.Errorf("attach tab %s: %w", tab, err)
	}
	if err := m.transport.EnableNetwork(ctx, tab); err != nil {
		// Best effort: close the half-open connection before dropping.
		if derr := m.transport.Detach(ctx, tab); derr != nil {
			m.log.Warn("detach after failed enable", "tab", string(tab), "error", derr)
		}
		m.drop(tab)
		m.log.Err(err, "network enable failed", "tab", string(tab))
		return fmt.Errorf("enable network on tab %s: %w", tab, err)
	}

	m.mu.Lock()
	if s, ok := m.sessions[tab]; ok {
		s.Attached = true
	}
	m.mu.Unlock()
	m.log.Info("debugger attached", "tab", string(tab), "url", url)
	return nil
}

// Detach closes the tab's debugging connection. The session record is
// removed even when the close call errors; the error is only logged.
// Returns ErrNotAttached when no attached session exists.
func (m *Manager) Detach(ctx context.Context, tab model.TabID) error {
	m.mu.Lock()
	s, ok := m.sessions[tab]
	if !ok || !s.Attached {
		m.mu.Unlock()
		return ErrNotAttached
	}
	delete(m.sessions, tab)
	m.mu.Unlock()

	if err := m.transport.Detach(ctx, tab); err != nil {
		m.log.Warn("detach close errored", "tab", string(tab), "error", err)
	} else {
		m.log.Info("debugger detached", "tab", string(tab))
	}
	return nil
}

// OnTabClosed forces a detach for a closed tab. Tab teardown never
// raises; all errors are swallowed.
func (m *Manager) OnTabClosed(ctx context.Context, tab model.TabID) {
	if err := m.Detach(ctx, tab); err != nil && err != ErrNotAttached {
		m.log.Warn("detach on tab close", "tab", string(tab), "error", err)
	}
	m.drop(tab)
}

// IsAttached reports whether the tab has a fully attached session.
func (m *Manager) IsAttached(tab model.TabID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[tab]
	return ok && s.Attached
}

// Session returns a snapshot of the tab's session.
func (m *Manager) Session(tab model.TabID) (Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[tab]
	if !ok {
		return Info{}, false
	}
	return Info{
		TabID:           s.TabID,
		URL:             s.URL,
		Attached:        s.Attached,
		TrackedRequests: len(s.requests),
	}, true
}

// AttachedTabs lists tabs with attached sessions.
func (m *Manager) AttachedTabs() []model.TabID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.TabID, 0, len(m.sessions))
	for id, s := range m.sessions {
		if s.Attached {
			out = append(out, id)
		}
	}
	return out
}

// TrackRequest records a request identifier as observed on the tab.
func (m *Manager) TrackRequest(tab model.TabID, id model.RequestID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[tab]; ok {
		s.requests[id] = struct{}{}
	}
}

// ForgetRequest removes a request identifier from the tab's tracked set.
func (m *Manager) ForgetRequest(tab model.TabID, id model.RequestID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[tab]; ok {
		delete(s.requests, id)
	}
}

func (m *Manager) drop(tab model.TabID) {
	m.mu.Lock()
	delete(m.sessions, tab)
	m.mu.Unlock()
}
