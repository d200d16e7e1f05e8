package acceptor

import (
	"sync"

	"github.com/cuemby/keel/pkg/types"
)

// commitWaiter is a pending commit promise, resolved exactly once.
type commitWaiter struct {
	resolve func(types.Reply)
}

// InMemoryQueue is a process-local Queue implementation: a mutex-guarded
// map of pending commit waiters plus a slice of parked reads. It is the
// default used by the cmd/keel harness and by engine tests.
type InMemoryQueue struct {
	mu      sync.Mutex
	commits map[string]commitWaiter
	reads   []ParkedRead
}

// NewInMemoryQueue constructs an empty queue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{commits: make(map[string]commitWaiter)}
}

// RegisterCommit registers a pending commit promise keyed by ref, before
// the matching ApplyOp runs. It is not part of the Queue interface the
// engine itself depends on — only the caller that first accepts a command
// needs it.
func (q *InMemoryQueue) RegisterCommit(ref []byte, resolve func(types.Reply)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.commits[string(ref)] = commitWaiter{resolve: resolve}
}

func (q *InMemoryQueue) ResolveCommit(ref []byte, reply types.Reply) {
	q.mu.Lock()
	waiter, ok := q.commits[string(ref)]
	if ok {
		delete(q.commits, string(ref))
	}
	q.mu.Unlock()

	if ok {
		waiter.resolve(reply)
	}
}

func (q *InMemoryQueue) ParkRead(read ParkedRead) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reads = append(q.reads, read)
}

func (q *InMemoryQueue) DrainReadsUpTo(index uint64) []ParkedRead {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ready []ParkedRead
	var remaining []ParkedRead
	for _, r := range q.reads {
		if r.TargetIndex <= index {
			ready = append(ready, r)
		} else {
			remaining = append(remaining, r)
		}
	}
	q.reads = remaining
	return ready
}

func (q *InMemoryQueue) CancelAll(err error) {
	q.mu.Lock()
	commits := q.commits
	q.commits = make(map[string]commitWaiter)
	reads := q.reads
	q.reads = nil
	q.mu.Unlock()

	reply := types.Failed(err)
	for _, waiter := range commits {
		waiter.resolve(reply)
	}
	for _, r := range reads {
		r.Resolve(reply)
	}
}

// PendingReads reports how many reads are currently parked, used by the
// metrics collector to sample keel_pending_reads.
func (q *InMemoryQueue) PendingReads() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.reads)
}
