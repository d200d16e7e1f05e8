package engine

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/keel/pkg/acceptor"
	"github.com/cuemby/keel/pkg/backend"
	"github.com/cuemby/keel/pkg/config"
	"github.com/cuemby/keel/pkg/registry"
	"github.com/cuemby/keel/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEngine wires a fresh Engine over a BoltBackend in a temp directory,
// started against a cancellable context so the test can tear it down.
func testEngine(t *testing.T) (*Engine, *acceptor.InMemoryQueue) {
	t.Helper()
	cfg := &config.Config{
		Name:                 "t",
		Table:                "orders",
		Partition:            0,
		RootDir:              t.TempDir(),
		SnapshotPrefix:       "snapshot",
		MaxRetainedSnapshots: 1,
		InboxSize:            16,
	}
	q := acceptor.NewInMemoryQueue()
	e := New(cfg, backend.NewBoltBackend(), registry.New(), q)
	require.NoError(t, e.Open())

	ctx, cancel := context.WithCancel(context.Background())
	e.Start(ctx)
	t.Cleanup(cancel)
	return e, q
}

func applyAndWait(t *testing.T, e *Engine, q *acceptor.InMemoryQueue, record types.LogRecord) types.Reply {
	t.Helper()
	result := make(chan types.Reply, 1)
	q.RegisterCommit(record.Ref, func(r types.Reply) { result <- r })

	require.NoError(t, e.ApplyOp(record, record.Term))

	select {
	case r := <-result:
		return r
	case <-time.After(time.Second):
		t.Fatal("commit promise never resolved")
		return types.Reply{}
	}
}

func TestScenarioFreshStartApplyAndStatus(t *testing.T) {
	e, q := testEngine(t)

	assert.Equal(t, types.ZeroPosition, e.LastApplied())

	reply := applyAndWait(t, e, q, types.LogRecord{
		Index: 1, Term: 1, Ref: []byte("refA"), Command: types.Noop(),
	})
	assert.False(t, reply.IsError())

	assert.Equal(t, types.LogPosition{Index: 1, Term: 1}, e.LastApplied())

	report, err := e.Status()
	require.NoError(t, err)
	assert.Equal(t, types.LogPosition{Index: 1, Term: 1}, report.LastApplied)
}

func TestScenarioConfigVisibility(t *testing.T) {
	e, q := testEngine(t)
	applyAndWait(t, e, q, types.LogRecord{Index: 1, Term: 1, Ref: []byte("refA"), Command: types.Noop()})

	reply := applyAndWait(t, e, q, types.LogRecord{
		Index: 2, Term: 1, Ref: []byte("refB"), Command: types.ConfigCommand([]byte("C")),
	})
	require.False(t, reply.IsError())

	version, value, err := e.ReadMetadata(types.MetadataKeyConfig)
	require.NoError(t, err)
	assert.Equal(t, types.LogPosition{Index: 2, Term: 1}, version)
	assert.Equal(t, []byte("C"), value)
	assert.Equal(t, types.LogPosition{Index: 2, Term: 1}, e.LastApplied())
}

func TestScenarioRedeliveryIsIdempotent(t *testing.T) {
	e, q := testEngine(t)
	applyAndWait(t, e, q, types.LogRecord{Index: 1, Term: 1, Ref: []byte("refA"), Command: types.Noop()})
	applyAndWait(t, e, q, types.LogRecord{Index: 2, Term: 1, Ref: []byte("refB"), Command: types.ConfigCommand([]byte("C"))})

	resolvedAgain := false
	q.RegisterCommit([]byte("refB"), func(types.Reply) { resolvedAgain = true })

	// Resending an already-applied index must not error, must not mutate
	// metadata, and must not re-resolve refB's promise.
	require.NoError(t, e.ApplyOp(types.LogRecord{
		Index: 2, Term: 1, Ref: []byte("refB"), Command: types.ConfigCommand([]byte("C")),
	}, 1))

	assert.False(t, resolvedAgain)
	assert.Equal(t, types.LogPosition{Index: 2, Term: 1}, e.LastApplied())

	_, value, err := e.ReadMetadata(types.MetadataKeyConfig)
	require.NoError(t, err)
	assert.Equal(t, []byte("C"), value)
}

func TestScenarioGapIsFatal(t *testing.T) {
	e, q := testEngine(t)
	applyAndWait(t, e, q, types.LogRecord{Index: 1, Term: 1, Ref: []byte("refA"), Command: types.Noop()})
	applyAndWait(t, e, q, types.LogRecord{Index: 2, Term: 1, Ref: []byte("refB"), Command: types.ConfigCommand([]byte("C"))})

	err := e.ApplyOp(types.LogRecord{Index: 4, Term: 1, Ref: []byte("refC"), Command: types.Noop()}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrGap)

	assert.Equal(t, StateTerminating, e.State())
	assert.Equal(t, types.LogPosition{Index: 2, Term: 1}, e.LastApplied())
}

func TestScenarioSnapshotRoundTrip(t *testing.T) {
	e, q := testEngine(t)
	applyAndWait(t, e, q, types.LogRecord{Index: 1, Term: 1, Ref: []byte("refA"), Command: types.Noop()})
	applyAndWait(t, e, q, types.LogRecord{Index: 2, Term: 1, Ref: []byte("refB"), Command: types.ConfigCommand([]byte("C"))})

	entry, err := e.CreateSnapshot()
	require.NoError(t, err)
	assert.Equal(t, "snapshot.2.1", entry.Name)
	assert.Equal(t, types.LogPosition{Index: 2, Term: 1}, entry.Position)

	entries, err := e.ListSnapshots()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.Name, entries[0].Name)

	require.NoError(t, e.OpenSnapshot(types.LogPosition{Index: 2, Term: 1}))
	assert.Equal(t, types.LogPosition{Index: 2, Term: 1}, e.LastApplied())
}

func TestCreateSnapshotNamedUsesGivenName(t *testing.T) {
	e, q := testEngine(t)
	applyAndWait(t, e, q, types.LogRecord{Index: 1, Term: 1, Ref: []byte("refA"), Command: types.Noop()})

	entry, err := e.CreateSnapshotNamed("manual-backup")
	require.NoError(t, err)
	assert.Equal(t, "manual-backup", entry.Name)
	assert.Equal(t, types.LogPosition{Index: 1, Term: 1}, entry.Position)
}

func TestCreateSnapshotIsIdempotentWhenDestinationExists(t *testing.T) {
	e, q := testEngine(t)
	applyAndWait(t, e, q, types.LogRecord{Index: 1, Term: 1, Ref: []byte("refA"), Command: types.Noop()})

	first, err := e.CreateSnapshot()
	require.NoError(t, err)

	second, err := e.CreateSnapshot()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestScenarioRetentionKeepsOnlyLatest(t *testing.T) {
	e, q := testEngine(t)
	applyAndWait(t, e, q, types.LogRecord{Index: 1, Term: 1, Ref: []byte("refA"), Command: types.Noop()})

	_, err := e.CreateSnapshot()
	require.NoError(t, err)

	applyAndWait(t, e, q, types.LogRecord{Index: 2, Term: 1, Ref: []byte("refB"), Command: types.Noop()})
	_, err = e.CreateSnapshot()
	require.NoError(t, err)

	entries, err := e.ListSnapshots()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "snapshot.2.1", entries[0].Name)
}

func TestScenarioCancelResolvesWaiters(t *testing.T) {
	e, q := testEngine(t)

	var r1, r2, rq types.Reply
	q.RegisterCommit([]byte("r1"), func(r types.Reply) { r1 = r })
	q.RegisterCommit([]byte("r2"), func(r types.Reply) { r2 = r })

	done := make(chan struct{})
	parkErr := e.submit(func() {
		e.queue.ParkRead(acceptor.ParkedRead{
			TargetIndex: 999,
			Resolve:     func(r types.Reply) { rq = r; close(done) },
		})
	})
	require.NoError(t, parkErr)

	e.Cancel(types.ErrNotLeader)
	<-done

	for _, r := range []types.Reply{r1, r2, rq} {
		require.True(t, r.IsError())
		assert.ErrorIs(t, r.Err, types.ErrNotLeader)
	}

	// cancel() on leadership loss never changes state: every replica,
	// leader or not, keeps applying future committed entries.
	assert.Equal(t, StateReady, e.State())
	reply := applyAndWait(t, e, q, types.LogRecord{Index: 1, Term: 1, Ref: []byte("refD"), Command: types.Noop()})
	assert.False(t, reply.IsError())
}

func TestCancelIsIdempotentWithNothingPending(t *testing.T) {
	e, _ := testEngine(t)
	e.Cancel(nil)
	e.Cancel(nil)
	assert.Equal(t, StateReady, e.State())
}

func TestStaleTermReplyIsDroppedButStateAdvances(t *testing.T) {
	e, q := testEngine(t)

	resolved := false
	q.RegisterCommit([]byte("refA"), func(types.Reply) { resolved = true })

	// record.Term (2) does not match the serverTerm (1) this instance is
	// currently serving under: the entry still applies and last_applied
	// still advances, but the client promise must not be resolved.
	require.NoError(t, e.ApplyOp(types.LogRecord{
		Index: 1, Term: 2, Ref: []byte("refA"), Command: types.Noop(),
	}, 1))

	assert.False(t, resolved)
	assert.Equal(t, types.LogPosition{Index: 1, Term: 2}, e.LastApplied())
}

func TestApplyOpResolvesWhenTermMatchesServerTerm(t *testing.T) {
	e, q := testEngine(t)
	reply := applyAndWait(t, e, q, types.LogRecord{Index: 1, Term: 1, Ref: []byte("refA"), Command: types.Noop()})
	assert.False(t, reply.IsError())
}

func TestTerminateClosesBackendAndRejectsFurtherWork(t *testing.T) {
	e, q := testEngine(t)
	applyAndWait(t, e, q, types.LogRecord{Index: 1, Term: 1, Ref: []byte("refA"), Command: types.Noop()})

	require.NoError(t, e.Terminate())
	assert.Equal(t, StateTerminating, e.State())

	err := e.ApplyOp(types.LogRecord{Index: 2, Term: 1, Ref: []byte("refB"), Command: types.Noop()}, 1)
	assert.ErrorIs(t, err, types.ErrClosed)

	// Terminate must be safe to call more than once, closing the backend
	// at most once.
	require.NoError(t, e.Terminate())
}

func TestFulfillOpDeliversExogenousReply(t *testing.T) {
	e, q := testEngine(t)

	result := make(chan types.Reply, 1)
	q.RegisterCommit([]byte("ref-ext"), func(r types.Reply) { result <- r })

	require.NoError(t, e.FulfillOp([]byte("ref-ext"), types.OK([]byte("done"))))

	select {
	case r := <-result:
		assert.False(t, r.IsError())
		assert.Equal(t, []byte("done"), r.Value)
	case <-time.After(time.Second):
		t.Fatal("fulfilled promise never resolved")
	}
}

func TestFulfillOpUnknownRefIsNoOp(t *testing.T) {
	e, _ := testEngine(t)
	require.NoError(t, e.FulfillOp([]byte("missing"), types.OK(nil)))
}

func TestReadDispatchesImmediatelyWhenPositionAlreadyReached(t *testing.T) {
	e, q := testEngine(t)
	e.registry.Register("kv", "get", func(h backend.Handle, pos types.LogPosition, table string, args []byte) ([]byte, error) {
		return []byte("value"), nil
	})
	applyAndWait(t, e, q, types.LogRecord{Index: 1, Term: 1, Ref: []byte("refA"), Command: types.Noop()})

	reply, err := e.Read(1, types.ExecuteCmd("orders", "k", "kv", "get", nil))
	require.NoError(t, err)
	assert.False(t, reply.IsError())
	assert.Equal(t, []byte("value"), reply.Value)
}

func TestReadParksUntilTargetIndexIsApplied(t *testing.T) {
	e, q := testEngine(t)
	e.registry.Register("kv", "get", func(h backend.Handle, pos types.LogPosition, table string, args []byte) ([]byte, error) {
		return []byte("value"), nil
	})

	result := make(chan types.Reply, 1)
	go func() {
		reply, err := e.Read(1, types.ExecuteCmd("orders", "k", "kv", "get", nil))
		require.NoError(t, err)
		result <- reply
	}()

	// Give the read time to park before the apply that unblocks it arrives.
	time.Sleep(20 * time.Millisecond)
	applyAndWait(t, e, q, types.LogRecord{Index: 1, Term: 1, Ref: []byte("refA"), Command: types.Noop()})

	select {
	case reply := <-result:
		assert.False(t, reply.IsError())
		assert.Equal(t, []byte("value"), reply.Value)
	case <-time.After(time.Second):
		t.Fatal("parked read never resolved")
	}
}

func TestOpenSetsReadyStateAndZeroPosition(t *testing.T) {
	e, _ := testEngine(t)
	assert.Equal(t, StateReady, e.State())
	assert.Equal(t, types.ZeroPosition, e.LastApplied())
}
