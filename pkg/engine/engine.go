package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/keel/pkg/acceptor"
	"github.com/cuemby/keel/pkg/backend"
	"github.com/cuemby/keel/pkg/config"
	"github.com/cuemby/keel/pkg/log"
	"github.com/cuemby/keel/pkg/metrics"
	"github.com/cuemby/keel/pkg/registry"
	"github.com/cuemby/keel/pkg/snapshot"
	"github.com/cuemby/keel/pkg/types"
	"github.com/rs/zerolog"
)

// State is the engine's lifecycle stage.
type State int

const (
	// StateInitializing is the state before Open has succeeded.
	StateInitializing State = iota
	// StateReady is the normal operating state: the inbox accepts work.
	StateReady
	// StateTerminating is entered on any fatal error or on shutdown; every
	// pending promise has been (or is being) resolved with an error and
	// no further operations are accepted.
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// Engine is the serialized apply engine for one (table, partition). It is
// the sole writer of the backend.Handle it owns; every mutating operation
// is funneled through a single worker goroutine via the jobs channel, so
// no operation needs to hold a lock over the handle itself.
type Engine struct {
	name      string
	table     string
	partition int
	rootDir   string

	be     backend.Backend
	handle backend.Handle

	queue    acceptor.Queue
	registry *registry.Registry
	snaps    *snapshot.Manager

	snapshotPrefix       string
	maxRetainedSnapshots int

	log zerolog.Logger

	jobs       chan func()
	terminated chan struct{}

	mu            sync.Mutex
	state         State
	lastApplied   types.LogPosition
	termErr       error
	backendClosed bool

	tableLabel     string
	partitionLabel string
}

// New constructs an Engine from cfg. Open must be called before Start.
func New(cfg *config.Config, be backend.Backend, reg *registry.Registry, q acceptor.Queue) *Engine {
	partitionLabel := fmt.Sprintf("%d", cfg.Partition)
	return &Engine{
		name:                 cfg.Name,
		table:                cfg.Table,
		partition:            cfg.Partition,
		rootDir:              cfg.RootDir,
		be:                   be,
		queue:                q,
		registry:             reg,
		snapshotPrefix:       cfg.SnapshotPrefix,
		maxRetainedSnapshots: cfg.MaxRetainedSnapshots,
		log:                  log.WithInstance(cfg.Table, cfg.Partition),
		jobs:                 make(chan func(), cfg.InboxSize),
		terminated:           make(chan struct{}),
		state:                StateInitializing,
		tableLabel:           cfg.Table,
		partitionLabel:       partitionLabel,
	}
}

// Open recovers (or initializes) the backend's on-disk state and the
// engine's in-memory position. It runs before Start, with no concurrent
// access possible yet, so it needs no synchronization of its own.
func (e *Engine) Open() error {
	h, err := e.be.Open(e.name, e.table, e.partition, e.rootDir)
	if err != nil {
		return fmt.Errorf("engine open: %w", err)
	}
	pos, err := e.be.Position(h)
	if err != nil {
		return fmt.Errorf("engine open: read position: %w", err)
	}

	e.handle = h
	e.lastApplied = pos
	e.snaps = snapshot.New(e.rootDir, e.snapshotPrefix, e.log)
	e.state = StateReady

	e.log.Info().Str("position", pos.String()).Msg("engine opened")
	metrics.AppliedIndex.WithLabelValues(e.tableLabel, e.partitionLabel).Set(float64(pos.Index))
	return nil
}

// Start begins the worker loop. It returns immediately; the loop runs
// until ctx is cancelled. Once a fatal error has terminated the engine,
// submit refuses new jobs, but jobs already queued still run.
func (e *Engine) Start(ctx context.Context) {
	go e.run(ctx)
}

func (e *Engine) run(ctx context.Context) {
	for {
		select {
		case job, ok := <-e.jobs:
			if !ok {
				return
			}
			job()
		case <-ctx.Done():
			e.terminate(ctx.Err())
			return
		}
	}
}

// submit enqueues job to run on the worker goroutine, rejecting it
// immediately if the engine has already terminated. If the inbox is
// full, submit blocks until there is room or the engine terminates.
func (e *Engine) submit(job func()) error {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	if state == StateTerminating {
		return types.ErrClosed
	}

	select {
	case e.jobs <- job:
		return nil
	case <-e.terminated:
		return types.ErrClosed
	}
}

func (e *Engine) setLastApplied(pos types.LogPosition) {
	e.mu.Lock()
	e.lastApplied = pos
	e.mu.Unlock()
	metrics.AppliedIndex.WithLabelValues(e.tableLabel, e.partitionLabel).Set(float64(pos.Index))
}

// LastApplied returns the most recently applied position. Safe to call
// from any goroutine.
func (e *Engine) LastApplied() types.LogPosition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastApplied
}

// State reports the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// TerminationError reports why the engine stopped accepting work, if it
// has terminated.
func (e *Engine) TerminationError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.termErr
}

// Cancel is invoked on leadership loss. It resolves every commit and read
// promise currently pending in the acceptor queue with err (or
// types.ErrNotLeader if err is nil), but — unlike terminate — it does not
// change engine state or stop the worker from accepting work: every
// replica, leader or not, keeps applying future committed entries.
// Idempotent and safe to call with nothing pending.
func (e *Engine) Cancel(err error) {
	if err == nil {
		err = types.ErrNotLeader
	}
	e.log.Warn().Err(err).Msg("cancelled, draining pending promises")
	e.queue.CancelAll(err)
}

// terminate moves the engine to Terminating: the worker stops accepting
// new jobs and every pending promise is resolved with err. It is the
// fatal path (a gapped apply, a backend error) and the internal half of
// shutdown; it never closes the backend handle itself. Idempotent.
func (e *Engine) terminate(err error) {
	e.mu.Lock()
	if e.state == StateTerminating {
		e.mu.Unlock()
		return
	}
	e.state = StateTerminating
	if err == nil {
		err = types.ErrClosed
	}
	e.termErr = err
	e.mu.Unlock()

	close(e.terminated)
	e.log.Warn().Err(err).Msg("engine terminating, draining pending promises")
	e.queue.CancelAll(err)
}

// Terminate destroys the engine: it stops the worker from accepting any
// further work, drains every pending promise, and closes the backend
// handle unconditionally — the EngineState lifecycle's terminate
// operation. Safe to call more than once; the backend is closed at most
// once regardless of how many times Terminate or a fatal internal error
// already moved the engine to Terminating.
func (e *Engine) Terminate() error {
	e.terminate(types.ErrClosed)

	e.mu.Lock()
	alreadyClosed := e.backendClosed
	e.backendClosed = true
	e.mu.Unlock()
	if alreadyClosed {
		return nil
	}
	return e.be.Close(e.handle)
}
