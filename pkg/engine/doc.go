/*
Package engine implements the apply engine: the serialized component that
owns one backend.Handle for a single (table, partition) and is the only
writer of that partition's state.

The engine's concurrency model is a single buffered inbox channel plus
one worker goroutine, started by Start and stopped when Start's context
is cancelled, so every
operation against the backend and the acceptor queue runs on one
goroutine without locking. Callers submit requests and block on a reply
channel embedded in the request — a synchronous request/response shape
that keeps every exported method safe to call from any goroutine while
the underlying state mutates on exactly one.

# Operations

  - Open: recovers backend state and the engine's in-memory position.
  - ApplyOp(record, serverTerm): the ordering gate. Enforces
    record.Index == last_applied+1 (a redelivery at or before
    last_applied is a silent no-op), dispatches by command kind, and
    advances last_applied only on success. The commit promise only
    resolves if record.Term == serverTerm — a record that outlived a
    leadership change still gets applied, but its reply is dropped
    silently, since the client that submitted it is no longer this
    leader's responsibility. Any other violation — a gap ahead or a
    backend error — is fatal: the engine terminates, draining every
    pending promise and refusing further work.
  - Read: dispatches immediately if the requested version has already
    been applied, otherwise parks the read in the acceptor queue until a
    later ApplyOp reaches it.
  - FulfillOp: delivers a reply some upper layer produced outside the
    normal apply path straight to the acceptor queue, by ref.
  - CreateSnapshot / CreateSnapshotNamed / OpenSnapshot / DeleteSnapshot:
    manage point-in-time backend copies via pkg/snapshot. A create whose
    destination directory already exists succeeds as a no-op.
  - ReadMetadata: reads a versioned metadata entry straight from the
    backend, bypassing the inbox (a read-only, lock-free backend call).
  - Status: reports backend status entries plus last_applied.

# Cancellation and termination

Cancel is the leadership-loss signal: it drains every promise pending in
the acceptor queue with a NotLeader error (or whatever cause is given),
but never changes engine state — every replica, leader or not, keeps
applying future committed entries. A gapped apply or a backend error is
different: those terminate the engine outright, transitioning it to
Terminating, draining every pending promise with the originating error,
and refusing all further work. Terminate additionally closes the backend
handle unconditionally, as the destroy half of the EngineState lifecycle;
it is safe to call more than once, closing the backend at most once.
*/
package engine
