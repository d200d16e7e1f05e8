package acceptor

import (
	"errors"
	"testing"

	"github.com/cuemby/keel/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCommitDeliversToWaiter(t *testing.T) {
	q := NewInMemoryQueue()
	var got types.Reply
	q.RegisterCommit([]byte("ref-1"), func(r types.Reply) { got = r })

	q.ResolveCommit([]byte("ref-1"), types.OK([]byte("value")))

	assert.Equal(t, types.OK([]byte("value")), got)
}

func TestResolveCommitUnknownRefIsNoop(t *testing.T) {
	q := NewInMemoryQueue()
	assert.NotPanics(t, func() {
		q.ResolveCommit([]byte("missing"), types.OK(nil))
	})
}

func TestResolveCommitOnlyFiresOnce(t *testing.T) {
	q := NewInMemoryQueue()
	calls := 0
	q.RegisterCommit([]byte("ref-1"), func(types.Reply) { calls++ })

	q.ResolveCommit([]byte("ref-1"), types.OK(nil))
	q.ResolveCommit([]byte("ref-1"), types.OK(nil))

	assert.Equal(t, 1, calls)
}

func TestParkReadAndDrainReadsUpTo(t *testing.T) {
	q := NewInMemoryQueue()

	var resolvedLow, resolvedHigh types.Reply
	q.ParkRead(ParkedRead{TargetIndex: 5, Resolve: func(r types.Reply) { resolvedLow = r }})
	q.ParkRead(ParkedRead{TargetIndex: 10, Resolve: func(r types.Reply) { resolvedHigh = r }})

	require.Equal(t, 2, q.PendingReads())

	ready := q.DrainReadsUpTo(5)
	require.Len(t, ready, 1)
	assert.Equal(t, 1, q.PendingReads())

	ready[0].Resolve(types.OK([]byte("low")))
	assert.Equal(t, types.OK([]byte("low")), resolvedLow)
	assert.Equal(t, types.Reply{}, resolvedHigh)

	ready = q.DrainReadsUpTo(10)
	require.Len(t, ready, 1)
	ready[0].Resolve(types.OK([]byte("high")))
	assert.Equal(t, types.OK([]byte("high")), resolvedHigh)
	assert.Equal(t, 0, q.PendingReads())
}

func TestDrainReadsUpToLeavesHigherTargetsParked(t *testing.T) {
	q := NewInMemoryQueue()
	q.ParkRead(ParkedRead{TargetIndex: 100})

	ready := q.DrainReadsUpTo(5)
	assert.Empty(t, ready)
	assert.Equal(t, 1, q.PendingReads())
}

func TestCancelAllResolvesCommitsAndReads(t *testing.T) {
	q := NewInMemoryQueue()
	cancelErr := errors.New("leadership lost")

	var commitReply, readReply types.Reply
	q.RegisterCommit([]byte("ref-1"), func(r types.Reply) { commitReply = r })
	q.ParkRead(ParkedRead{TargetIndex: 99, Resolve: func(r types.Reply) { readReply = r }})

	q.CancelAll(cancelErr)

	require.True(t, commitReply.IsError())
	assert.ErrorIs(t, commitReply.Err, cancelErr)
	require.True(t, readReply.IsError())
	assert.ErrorIs(t, readReply.Err, cancelErr)
	assert.Equal(t, 0, q.PendingReads())
}

func TestCancelAllIdempotentWhenEmpty(t *testing.T) {
	q := NewInMemoryQueue()
	assert.NotPanics(t, func() {
		q.CancelAll(errors.New("boom"))
		q.CancelAll(errors.New("boom again"))
	})
}
