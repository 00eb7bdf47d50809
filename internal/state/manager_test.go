package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabmon/internal/storage"
	"tabmon/pkg/model"
)

func testStore(t *testing.T, dir string) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(dir, "state.sqlite3"), "tabmon_", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStartStopSnapshot(t *testing.T) {
	m := NewManager(nil, nil)
	assert.False(t, m.Snapshot().Running)

	cfg := model.Config{ListenURL: "*/api/*", SubmitURL: "https://collector.example.com/ingest"}
	id := m.Start(cfg)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, m.RunID())

	snap := m.Snapshot()
	assert.True(t, snap.Running)
	assert.Equal(t, cfg, snap.Config)

	m.Stop()
	snap = m.Snapshot()
	assert.False(t, snap.Running)
	// Configuration survives a stop so the next start can reuse it.
	assert.Equal(t, cfg, snap.Config)
	assert.Equal(t, id, m.RunID())
}

func TestRestartMintsNewRunID(t *testing.T) {
	m := NewManager(nil, nil)
	id1 := m.Start(model.Config{ListenURL: "*/a/*"})
	id2 := m.Start(model.Config{ListenURL: "*/b/*"})
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, "*/b/*", m.Snapshot().Config.ListenURL)
}

func TestStatePersistsAcrossManagers(t *testing.T) {
	dir := t.TempDir()
	cfg := model.Config{ListenURL: "*/api/*", QueryClickIntervalMin: 5}

	first := NewManager(testStore(t, dir), nil)
	id := first.Start(cfg)

	second := NewManager(testStore(t, dir), nil)
	require.NoError(t, second.Load())

	snap := second.Snapshot()
	assert.True(t, snap.Running)
	assert.Equal(t, cfg, snap.Config)
	assert.Equal(t, id, second.RunID())
}

func TestLoadWithoutPriorState(t *testing.T) {
	m := NewManager(testStore(t, t.TempDir()), nil)
	require.NoError(t, m.Load())
	assert.False(t, m.Snapshot().Running)
	assert.Empty(t, m.RunID())
}
