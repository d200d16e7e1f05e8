package backend

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/keel/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketEngine   = []byte("engine")
	bucketMetadata = []byte("metadata")
	bucketKV       = []byte("kv")

	keyPosition = []byte("position")
)

// boltHandle is the Handle produced by BoltBackend. It is never shared
// across engine instances and is replaced wholesale by OpenSnapshot.
type boltHandle struct {
	db   *bolt.DB
	path string
}

func (h *boltHandle) String() string {
	return fmt.Sprintf("bolt(%s)", h.path)
}

// BoltBackend implements Backend on top of a single BoltDB file per
// (table, partition), using one bucket per concern: engine position,
// metadata, and key-value state.
type BoltBackend struct{}

// NewBoltBackend constructs a BoltBackend. It holds no state of its own:
// all state lives behind the Handle returned by Open.
func NewBoltBackend() *BoltBackend {
	return &BoltBackend{}
}

func dbPath(table string, partition int, rootDir string) string {
	return filepath.Join(rootDir, fmt.Sprintf("%s-%d.db", table, partition))
}

// Open recovers the backend's on-disk state, creating it if absent.
// Failure here is fatal to the owning instance per the backend contract.
func (b *BoltBackend) Open(name, table string, partition int, rootDir string) (Handle, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create root dir: %w", err)
	}

	path := dbPath(table, partition, rootDir)
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open backend db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketEngine, bucketMetadata, bucketKV} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		eng := tx.Bucket(bucketEngine)
		if eng.Get(keyPosition) == nil {
			return putPosition(eng, types.ZeroPosition)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &boltHandle{db: db, path: path}, nil
}

func (b *BoltBackend) Position(h Handle) (types.LogPosition, error) {
	bh := h.(*boltHandle)
	var pos types.LogPosition
	err := bh.db.View(func(tx *bolt.Tx) error {
		var err error
		pos, err = getPosition(tx.Bucket(bucketEngine))
		return err
	})
	return pos, err
}

func (b *BoltBackend) Close(h Handle) error {
	bh := h.(*boltHandle)
	return bh.db.Close()
}

// userOp is the JSON shape of a CommandUser payload: a minimal key-value
// apply (set or delete).
type userOp struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (b *BoltBackend) Apply(cmd types.Command, pos types.LogPosition, h Handle) ([]byte, Handle, error) {
	bh := h.(*boltHandle)

	var reply []byte
	err := bh.db.Update(func(tx *bolt.Tx) error {
		switch cmd.Kind {
		case types.CommandNoop:
			reply = []byte(fmt.Sprintf(`{"index":%d,"term":%d}`, pos.Index, pos.Term))

		case types.CommandUser:
			var op userOp
			if err := json.Unmarshal(cmd.User, &op); err != nil {
				return fmt.Errorf("decode user command: %w", err)
			}
			kv := tx.Bucket(bucketKV)
			switch op.Op {
			case "set":
				if err := kv.Put([]byte(op.Key), []byte(op.Value)); err != nil {
					return fmt.Errorf("kv put: %w", err)
				}
			case "delete":
				if err := kv.Delete([]byte(op.Key)); err != nil {
					return fmt.Errorf("kv delete: %w", err)
				}
			default:
				return fmt.Errorf("unknown user op: %s", op.Op)
			}
			reply = []byte(`{"ok":true}`)

		default:
			return fmt.Errorf("backend apply does not accept command kind %q", cmd.Kind)
		}

		return putPosition(tx.Bucket(bucketEngine), pos)
	})
	if err != nil {
		return nil, h, err
	}
	return reply, h, nil
}

func (b *BoltBackend) AdvancePosition(h Handle, pos types.LogPosition) error {
	bh := h.(*boltHandle)
	return bh.db.Update(func(tx *bolt.Tx) error {
		return putPosition(tx.Bucket(bucketEngine), pos)
	})
}

// CreateSnapshot copies the live BoltDB file into a fresh directory under a
// temporary name, then renames it into place — the rename is the atomic
// step a consumer listing root_dir can never observe half-finished. A
// destination that already exists is treated as a successful no-op rather
// than a conflict: renaming onto an existing non-empty directory would
// otherwise fail, and a repeated create at the same position must succeed.
func (b *BoltBackend) CreateSnapshot(path string, h Handle) error {
	bh := h.(*boltHandle)

	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat snapshot dest %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return fmt.Errorf("clear stale temp snapshot dir: %w", err)
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return fmt.Errorf("create temp snapshot dir: %w", err)
	}

	err := bh.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(filepath.Join(tmp, "data.db"), 0o600)
	})
	if err != nil {
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("copy backend db: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// OpenSnapshot replaces the live database with the one found at path,
// closing and reopening the handle around the swap.
func (b *BoltBackend) OpenSnapshot(path string, pos types.LogPosition, h Handle) (Handle, error) {
	bh := h.(*boltHandle)

	src := filepath.Join(path, "data.db")
	if _, err := os.Stat(src); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrSnapshotNotFound, path)
	}

	if err := bh.db.Close(); err != nil {
		return nil, fmt.Errorf("close live db before restore: %w", err)
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read snapshot db: %w", err)
	}
	if err := os.WriteFile(bh.path, data, 0o600); err != nil {
		return nil, fmt.Errorf("install snapshot db: %w", err)
	}

	db, err := bolt.Open(bh.path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("reopen db after restore: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		return putPosition(tx.Bucket(bucketEngine), pos)
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("stamp restored position: %w", err)
	}

	return &boltHandle{db: db, path: bh.path}, nil
}

func (b *BoltBackend) Status(h Handle) ([]StatusEntry, error) {
	bh := h.(*boltHandle)

	var kvCount int
	err := bh.db.View(func(tx *bolt.Tx) error {
		kvCount = tx.Bucket(bucketKV).Stats().KeyN
		return nil
	})
	if err != nil {
		return nil, err
	}

	return []StatusEntry{
		{Key: "backend", Value: "bolt"},
		{Key: "db_path", Value: bh.path},
		{Key: "kv_keys", Value: fmt.Sprintf("%d", kvCount)},
	}, nil
}

type metadataRecord struct {
	Version types.LogPosition `json:"version"`
	Value   []byte            `json:"value"`
}

func (b *BoltBackend) WriteMetadata(h Handle, key types.MetadataKey, version types.LogPosition, value []byte) error {
	bh := h.(*boltHandle)
	rec := metadataRecord{Version: version, Value: value}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode metadata record: %w", err)
	}
	return bh.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put([]byte(key), data)
	})
}

func (b *BoltBackend) ReadMetadata(h Handle, key types.MetadataKey) (types.LogPosition, []byte, error) {
	bh := h.(*boltHandle)

	var rec metadataRecord
	found := false
	err := bh.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMetadata).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return types.LogPosition{}, nil, fmt.Errorf("decode metadata record: %w", err)
	}
	if !found {
		return types.LogPosition{}, nil, types.ErrMetadataNotFound
	}
	return rec.Version, rec.Value, nil
}

func putPosition(b *bolt.Bucket, pos types.LogPosition) error {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], pos.Index)
	binary.BigEndian.PutUint64(buf[8:16], pos.Term)
	return b.Put(keyPosition, buf)
}

func getPosition(b *bolt.Bucket) (types.LogPosition, error) {
	buf := b.Get(keyPosition)
	if buf == nil || len(buf) != 16 {
		return types.ZeroPosition, nil
	}
	return types.LogPosition{
		Index: binary.BigEndian.Uint64(buf[0:8]),
		Term:  binary.BigEndian.Uint64(buf[8:16]),
	}, nil
}
