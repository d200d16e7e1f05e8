package acceptor

import "github.com/cuemby/keel/pkg/types"

// ParkedRead is a read request whose target index had not yet been
// reached when it arrived. Resolve delivers the eventual reply; it must
// not block.
type ParkedRead struct {
	TargetIndex uint64
	Command     types.Command
	Resolve     func(types.Reply)
}

// Queue is the surface the apply engine needs from the acceptor queue:
// resolving commit promises by ref, parking/draining delayed reads, and
// cancelling everything pending. Registering a new commit promise when a
// command is first accepted is an upstream concern and is not part of
// this interface.
type Queue interface {
	// ResolveCommit delivers reply to the commit promise keyed by ref, if
	// one is still pending. Resolving an unknown ref is a silent no-op —
	// the client may no longer be waiting on this leader.
	ResolveCommit(ref []byte, reply types.Reply)

	// ParkRead holds a read until a future DrainReadsUpTo reaches its
	// target index.
	ParkRead(read ParkedRead)

	// DrainReadsUpTo removes and returns every parked read whose target
	// index is <= index, in no particular order.
	DrainReadsUpTo(index uint64) []ParkedRead

	// CancelAll resolves every pending commit and read promise with err.
	// Idempotent: safe to call when nothing is pending.
	CancelAll(err error)
}
