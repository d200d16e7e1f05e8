package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/keel/pkg/metrics"
	"github.com/cuemby/keel/pkg/snapshot"
	"github.com/cuemby/keel/pkg/types"
)

// CreateSnapshot materializes the current backend state under a fresh
// directory named from last_applied.
func (e *Engine) CreateSnapshot() (snapshot.Entry, error) {
	return e.createSnapshot("")
}

// CreateSnapshotNamed materializes the current backend state under name
// instead of one derived from last_applied.
func (e *Engine) CreateSnapshotNamed(name string) (snapshot.Entry, error) {
	return e.createSnapshot(name)
}

// createSnapshot implements both create_snapshot() and create_snapshot(name).
// If the destination directory already exists, it succeeds as a no-op
// without running retention or touching the backend. Otherwise retention
// runs first so a tightly disk-budgeted instance can still make room for
// the new snapshot.
func (e *Engine) createSnapshot(name string) (snapshot.Entry, error) {
	type result struct {
		entry snapshot.Entry
		err   error
	}
	done := make(chan result, 1)
	err := e.submit(func() {
		pos := e.lastApplied
		entryName := name
		if entryName == "" {
			entryName = e.snaps.Name(pos)
		}
		path := filepath.Join(e.rootDir, entryName)

		if _, statErr := os.Stat(path); statErr == nil {
			e.log.Info().Str("path", path).Msg("snapshot destination already exists, create is a no-op")
			done <- result{entry: snapshot.Entry{Name: entryName, Position: pos, Path: path}}
			return
		}

		if rerr := e.snaps.Retain(e.maxRetainedSnapshots - 1); rerr != nil {
			e.log.Warn().Err(rerr).Msg("snapshot retention failed before create")
		}

		if cerr := e.be.CreateSnapshot(path, e.handle); cerr != nil {
			metrics.SnapshotErrorsTotal.WithLabelValues(e.tableLabel, e.partitionLabel, "create").Inc()
			e.log.Error().Err(cerr).Str("position", pos.String()).Msg("snapshot create failed")
			done <- result{err: fmt.Errorf("create snapshot at %s: %w", pos, cerr)}
			return
		}

		metrics.SnapshotsTotal.WithLabelValues(e.tableLabel, e.partitionLabel).Inc()
		e.log.Info().Str("position", pos.String()).Str("path", path).Msg("snapshot created")
		done <- result{entry: snapshot.Entry{Name: entryName, Position: pos, Path: path}}
	})
	if err != nil {
		return snapshot.Entry{}, err
	}
	r := <-done
	return r.entry, r.err
}

// OpenSnapshot replaces the live backend state with the snapshot at pos,
// naming the directory from pos itself — not from the current
// last_applied — matching the contract an open_snapshot caller expects:
// it names the snapshot it wants installed, not the one currently active.
func (e *Engine) OpenSnapshot(pos types.LogPosition) error {
	done := make(chan error, 1)
	err := e.submit(func() {
		path := e.snaps.Path(pos)
		next, oerr := e.be.OpenSnapshot(path, pos, e.handle)
		if oerr != nil {
			metrics.SnapshotErrorsTotal.WithLabelValues(e.tableLabel, e.partitionLabel, "open").Inc()
			e.log.Error().Err(oerr).Str("position", pos.String()).Msg("snapshot open failed")
			done <- fmt.Errorf("open snapshot at %s: %w", pos, oerr)
			return
		}
		e.handle = next
		e.setLastApplied(pos)
		e.log.Info().Str("position", pos.String()).Msg("snapshot installed")
		done <- nil
	})
	if err != nil {
		return err
	}
	return <-done
}

// DeleteSnapshot removes a snapshot directory by name. Best-effort per
// spec: the underlying Manager.Delete never returns an error.
func (e *Engine) DeleteSnapshot(name string) error {
	done := make(chan struct{})
	err := e.submit(func() {
		e.snaps.Delete(name)
		close(done)
	})
	if err != nil {
		return err
	}
	<-done
	return nil
}

// ListSnapshots enumerates snapshot directories, ascending by position.
func (e *Engine) ListSnapshots() ([]snapshot.Entry, error) {
	return e.snaps.List()
}
