package engine

import (
	"github.com/cuemby/keel/pkg/backend"
	"github.com/cuemby/keel/pkg/types"
)

// StatusReport is the reporting-only snapshot of engine health returned
// by Status.
type StatusReport struct {
	Name        string
	Table       string
	Partition   int
	State       State
	LastApplied types.LogPosition
	Backend     []backend.StatusEntry
}

// Status reports the engine's current state, position, and backend
// status entries. Runs on the worker goroutine so it reflects a
// consistent snapshot of in-flight work.
func (e *Engine) Status() (StatusReport, error) {
	type result struct {
		report StatusReport
		err    error
	}
	done := make(chan result, 1)
	err := e.submit(func() {
		entries, serr := e.be.Status(e.handle)
		if serr != nil {
			done <- result{err: serr}
			return
		}
		e.mu.Lock()
		state, pos := e.state, e.lastApplied
		e.mu.Unlock()
		done <- result{report: StatusReport{
			Name:        e.name,
			Table:       e.table,
			Partition:   e.partition,
			State:       state,
			LastApplied: pos,
			Backend:     entries,
		}}
	})
	if err != nil {
		return StatusReport{}, err
	}
	r := <-done
	return r.report, r.err
}

// ReadMetadata reads a versioned metadata entry directly from the
// backend. This is a read-only backend call with no ordering
// requirement, so it bypasses the inbox and can run concurrently with
// the worker goroutine's other work.
func (e *Engine) ReadMetadata(key types.MetadataKey) (types.LogPosition, []byte, error) {
	e.mu.Lock()
	state := e.state
	h := e.handle
	e.mu.Unlock()

	if state == StateTerminating {
		return types.LogPosition{}, nil, types.ErrClosed
	}
	return e.be.ReadMetadata(h, key)
}
