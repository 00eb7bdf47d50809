package state

import (
	"sync"

	"tabmon/internal/logger"
	"tabmon/internal/storage"
	"tabmon/pkg/model"

	"github.com/google/uuid"
)

const stateKey = "monitor_state"

type persisted struct {
	Running bool         `json:"running"`
	RunID   string       `json:"runId"`
	Config  model.Config `json:"config"`
}

// Manager owns the monitor's running flag and active configuration.
// Every mutation is persisted so a restart resumes where it left off.
type Manager struct {
	mu      sync.RWMutex
	running bool
	runID   string
	cfg     model.Config

	store *storage.Store
	log   logger.Logger
}

// NewManager creates a manager. store may be nil, in which case state
// lives only in memory.
func NewManager(store *storage.Store, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{store: store, log: l}
}

// Load restores persisted state from a previous run. A missing record
// leaves the manager stopped with an empty configuration.
func (m *Manager) Load() error {
	if m.store == nil {
		return nil
	}
	var p persisted
	ok, err := m.store.Get(stateKey, &p)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	m.mu.Lock()
	m.running = p.Running
	m.runID = p.RunID
	m.cfg = p.Config
	m.mu.Unlock()
	m.log.Info("state restored", "running", p.Running, "runId", p.RunID)
	return nil
}

// Start activates monitoring with the given configuration and mints a
// fresh run ID. Starting while already running replaces the
// configuration and the run ID.
func (m *Manager) Start(cfg model.Config) string {
	m.mu.Lock()
	m.running = true
	m.runID = uuid.NewString()
	m.cfg = cfg
	id := m.runID
	m.mu.Unlock()

	m.persist()
	m.log.Info("monitoring started", "runId", id, "listenUrl", cfg.ListenURL)
	return id
}

// Stop deactivates monitoring. The configuration is kept for the next
// Start.
func (m *Manager) Stop() {
	m.mu.Lock()
	wasRunning := m.running
	m.running = false
	m.mu.Unlock()

	m.persist()
	if wasRunning {
		m.log.Info("monitoring stopped")
	}
}

// Snapshot returns the current running flag and configuration as one
// consistent view.
func (m *Manager) Snapshot() model.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return model.Snapshot{Running: m.running, Config: m.cfg}
}

// RunID returns the identifier of the current (or last) run.
func (m *Manager) RunID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runID
}

func (m *Manager) persist() {
	if m.store == nil {
		return
	}
	m.mu.RLock()
	p := persisted{Running: m.running, RunID: m.runID, Config: m.cfg}
	m.mu.RUnlock()
	if err := m.store.Put(stateKey, p); err != nil {
		m.log.Err(err, "persist state")
	}
}
