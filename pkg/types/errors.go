package types

import "errors"

// Sentinel errors making up the engine's error taxonomy.
var (
	// ErrNotLeader is the sentinel used to resolve pending promises when
	// cancel() drains them on leadership loss.
	ErrNotLeader = errors.New("keel: not leader")

	// ErrGap is raised when an apply arrives with index > last_applied+1.
	// It is always fatal: the caller must terminate the instance.
	ErrGap = errors.New("keel: gapped apply, out of order")

	// ErrSnapshotNotFound is returned when open_snapshot targets a
	// position with no matching directory. delete_snapshot never returns it.
	ErrSnapshotNotFound = errors.New("keel: snapshot not found")

	// ErrUnknownCommand is returned (wrapped) when a command's Kind is not
	// one the dispatcher handles, or when a read carries a non-Execute command.
	ErrUnknownCommand = errors.New("keel: unknown command")

	// ErrMetadataNotFound is returned by read_metadata when the key has
	// never been written.
	ErrMetadataNotFound = errors.New("keel: metadata key not found")

	// ErrClosed is returned by operations invoked after terminate().
	ErrClosed = errors.New("keel: engine terminated")
)
