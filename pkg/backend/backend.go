package backend

import "github.com/cuemby/keel/pkg/types"

// Handle is the opaque, engine-owned storage handle produced by Open and
// replaced wholesale by OpenSnapshot. Callers outside the owning engine
// must never retain or share a Handle.
type Handle interface {
	// String identifies the handle for logging only.
	String() string
}

// StatusEntry is one key/value line of a backend's status report.
type StatusEntry struct {
	Key   string
	Value string
}

// Backend is the capability set the apply engine requires of a storage
// implementation. Every method is invoked synchronously from the engine's
// serialized command loop; implementations may block on I/O but must never
// fail silently — a failed Open is fatal to the owning instance.
type Backend interface {
	// Open recovers (or initializes) the backend's state for
	// (name, table, partition) under rootDir.
	Open(name, table string, partition int, rootDir string) (Handle, error)

	// Position reports the current applied position, ZeroPosition if empty.
	Position(h Handle) (types.LogPosition, error)

	// Close releases the handle. Called once at shutdown.
	Close(h Handle) error

	// Apply deterministically mutates state for cmd at pos, returning an
	// opaque reply and the (possibly unchanged) handle. Only invoked for
	// command kinds the engine's dispatcher does not resolve itself
	// (CommandNoop, CommandUser).
	Apply(cmd types.Command, pos types.LogPosition, h Handle) (reply []byte, next Handle, err error)

	// AdvancePosition persists pos as the backend's recovery position
	// without otherwise mutating state. The engine calls this after
	// dispatching a CommandConfig or CommandExecute command, whose side
	// effects land through WriteMetadata or a host function rather than
	// through Apply, so the backend's own on-disk position still needs a
	// matching write to stay consistent with the engine's last_applied.
	AdvancePosition(h Handle, pos types.LogPosition) error

	// CreateSnapshot materializes a self-contained directory at path.
	// Implementations must make the result atomic from the consumer's
	// point of view (build under a temp name, rename into place).
	CreateSnapshot(path string, h Handle) error

	// OpenSnapshot replaces live state with the snapshot at path, which is
	// expected to represent pos. The old handle is invalidated; the
	// returned handle is the only valid one going forward.
	OpenSnapshot(path string, pos types.LogPosition, h Handle) (Handle, error)

	// Status returns a reporting-only key/value list.
	Status(h Handle) ([]StatusEntry, error)

	// WriteMetadata stores a versioned opaque blob under key.
	WriteMetadata(h Handle, key types.MetadataKey, version types.LogPosition, value []byte) error

	// ReadMetadata returns the version and value stored under key, or
	// types.ErrMetadataNotFound if key has never been written.
	ReadMetadata(h Handle, key types.MetadataKey) (types.LogPosition, []byte, error)
}
