package ledger

import (
	"sync"
	"time"

	"tabmon/pkg/model"
)

// State tracks how far a record has progressed.
type State int

const (
	// StatePending: request-sent observed, no response yet.
	StatePending State = iota + 1
	// StateAwaitingBody: headers accepted, body retrieval in progress.
	StateAwaitingBody
)

// Record is one in-flight or recently completed network request. Status
// stays 0 exactly until a response arrives.
type Record struct {
	RequestID       model.RequestID
	TabID           model.TabID
	Generation      uint64
	URL             string
	Method          string
	RequestedAt     time.Time
	RequestHeaders  map[string]string
	RequestBody     string
	Status          int
	ResponseHeaders map[string]string
	ContentType     string
	ResponseBody    string
	BodyReady       bool
	State           State
}

type entry struct {
	rec       Record
	protected bool
}

// Table is the in-memory ledger keyed by request identifier. The
// debugging protocol reuses identifiers sequentially, so Insert always
// overwrites; each insert gets a fresh generation so stale retrievals
// can detect that their record was superseded. The table holds no
// policy: callers decide what to insert and when to expire.
type Table struct {
	mu      sync.Mutex
	entries map[model.RequestID]*entry
	gen     uint64
}

// NewTable creates an empty ledger.
func NewTable() *Table {
	return &Table{entries: make(map[model.RequestID]*entry)}
}

// Insert stores rec under its request identifier, unconditionally
// replacing any prior record, and returns the assigned generation.
func (t *Table) Insert(rec Record) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	rec.Generation = t.gen
	t.entries[rec.RequestID] = &entry{rec: rec}
	return rec.Generation
}

// Get returns a copy of the record, if present.
func (t *Table) Get(id model.RequestID) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return Record{}, false
	}
	return e.rec, true
}

// Update applies mutate to the record under id. Absent records are a
// no-op: events routinely arrive after deletion.
func (t *Table) Update(id model.RequestID, mutate func(*Record)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return false
	}
	mutate(&e.rec)
	return true
}

// Remove deletes the record under id, if present.
func (t *Table) Remove(id model.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// RemoveGeneration deletes the record under id only if its generation
// still matches gen. It reports whether a deletion happened.
func (t *Table) RemoveGeneration(id model.RequestID, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok || e.rec.Generation != gen {
		return false
	}
	delete(t.entries, id)
	return true
}

// Protect marks the record as having an in-flight body retrieval,
// shielding it from Expire. Generation-guarded like RemoveGeneration:
// a stale retrieval cannot protect a reused identifier's new record.
func (t *Table) Protect(id model.RequestID, gen uint64) {
	t.setProtected(id, gen, true)
}

// Unprotect clears the retrieval protection flag. Generation-guarded:
// a stale retrieval's release cannot strip the protection of a record
// that superseded it.
func (t *Table) Unprotect(id model.RequestID, gen uint64) {
	t.setProtected(id, gen, false)
}

func (t *Table) setProtected(id model.RequestID, gen uint64, v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok && e.rec.Generation == gen {
		e.protected = v
	}
}

// Protected reports the protection flag for id.
func (t *Table) Protected(id model.RequestID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	return ok && e.protected
}

// Len returns the number of live records.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Expire removes every record requested before cutoff, skipping
// protected ones. It returns the removed and skipped counts.
func (t *Table) Expire(cutoff time.Time) (removed, skipped int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, e := range t.entries {
		if !e.rec.RequestedAt.Before(cutoff) {
			continue
		}
		if e.protected {
			skipped++
			continue
		}
		delete(t.entries, id)
		removed++
	}
	return removed, skipped
}
