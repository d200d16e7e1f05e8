package engine

import "github.com/cuemby/keel/pkg/types"

// FulfillOp forwards an exogenously-produced reply to the acceptor queue:
// some upper layer already has a reply for ref — computed outside the
// normal apply path — and just needs it delivered to whichever promise is
// still registered under that ref. Runs on the worker goroutine like every
// other control operation; resolving an unknown or already-resolved ref is
// a silent no-op.
func (e *Engine) FulfillOp(ref []byte, reply types.Reply) error {
	done := make(chan struct{})
	err := e.submit(func() {
		e.queue.ResolveCommit(ref, reply)
		close(done)
	})
	if err != nil {
		return err
	}
	<-done
	return nil
}
