package executor

import (
	"sync"
	"time"
)

// ProcessRecord describes one in-flight child process. Records exist from
// spawn until exit-status collection and are used purely for liveness
// accounting.
type ProcessRecord struct {
	CommandID string
	Pid       int
	Label     string
	StartedAt time.Time
}

// processTable is the active-process collection. Owned exclusively by the
// executor; mutated only inside the acquire/release bracket of a single
// execution.
type processTable struct {
	mu    sync.Mutex
	procs map[string]ProcessRecord
}

func newProcessTable() *processTable {
	return &processTable{procs: make(map[string]ProcessRecord)}
}

func (t *processTable) add(rec ProcessRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.procs[rec.CommandID] = rec
}

func (t *processTable) remove(commandID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.procs, commandID)
}

func (t *processTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.procs)
}

func (t *processTable) snapshot() []ProcessRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ProcessRecord, 0, len(t.procs))
	for _, rec := range t.procs {
		out = append(out, rec)
	}
	return out
}
