// Package staleness counts metric records ingested since the last successful
// training and decides whether recommendations may be served.
package staleness

import "sync"

// State is the tracker's counter. Until the first ingest the counter is
// uninitialized and the gate stays closed regardless of the record count.
type State struct {
	Initialized bool  `json:"initialized"`
	Count       int64 `json:"count"`
}

// Tracker is safe for concurrent use. The zero value is an uninitialized
// tracker.
type Tracker struct {
	mu    sync.Mutex
	state State
}

// New returns an uninitialized tracker.
func New() *Tracker {
	return &Tracker{}
}

// RecordIngested counts one newly persisted record.
func (t *Tracker) RecordIngested() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Initialized = true
	t.state.Count++
}

// IsGateOpen reports whether a recommendation may proceed: at least one
// record has been ingested by this process and the store holds more than
// threshold records.
func (t *Tracker) IsGateOpen(totalRecords, threshold int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Initialized && totalRecords > threshold
}

// IsStale reports whether more than threshold records arrived since the
// counter was last consumed.
func (t *Tracker) IsStale(threshold int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Initialized && t.state.Count > threshold
}

// Consume subtracts n records covered by a successful training from the
// counter. Records ingested while that training ran stay counted. The counter
// never drops below zero.
func (t *Tracker) Consume(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Initialized = true
	t.state.Count = max(t.state.Count-max(n, 0), 0)
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
