package backend

import (
	"testing"

	"github.com/cuemby/keel/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBackend(t *testing.T) (*BoltBackend, Handle) {
	t.Helper()
	b := NewBoltBackend()
	h, err := b.Open("test", "orders", 0, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(h) })
	return b, h
}

func TestOpenInitializesZeroPosition(t *testing.T) {
	b, h := openTestBackend(t)

	pos, err := b.Position(h)
	require.NoError(t, err)
	assert.Equal(t, types.ZeroPosition, pos)
}

func TestApplyUserSetAndDeleteAdvancesPosition(t *testing.T) {
	b, h := openTestBackend(t)

	setCmd := types.UserCommand([]byte(`{"op":"set","key":"a","value":"1"}`))
	reply, h2, err := b.Apply(setCmd, types.LogPosition{Index: 1, Term: 1}, h)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"ok":true}`), reply)
	h = h2

	pos, err := b.Position(h)
	require.NoError(t, err)
	assert.Equal(t, types.LogPosition{Index: 1, Term: 1}, pos)

	status, err := b.Status(h)
	require.NoError(t, err)
	assert.Contains(t, statusValue(status, "kv_keys"), "1")

	delCmd := types.UserCommand([]byte(`{"op":"delete","key":"a"}`))
	_, h3, err := b.Apply(delCmd, types.LogPosition{Index: 2, Term: 1}, h)
	require.NoError(t, err)
	h = h3

	status, err = b.Status(h)
	require.NoError(t, err)
	assert.Equal(t, "0", statusValue(status, "kv_keys"))
}

func TestApplyUnknownUserOpFails(t *testing.T) {
	b, h := openTestBackend(t)

	cmd := types.UserCommand([]byte(`{"op":"bogus"}`))
	_, _, err := b.Apply(cmd, types.LogPosition{Index: 1, Term: 1}, h)
	assert.Error(t, err)

	pos, err := b.Position(h)
	require.NoError(t, err)
	assert.Equal(t, types.ZeroPosition, pos, "a failed apply must not advance position")
}

func TestApplyRejectsNonBackendCommandKinds(t *testing.T) {
	b, h := openTestBackend(t)

	_, _, err := b.Apply(types.ConfigCommand([]byte("x")), types.LogPosition{Index: 1, Term: 1}, h)
	assert.Error(t, err)
}

func TestAdvancePositionPersistsWithoutMutatingData(t *testing.T) {
	b, h := openTestBackend(t)

	require.NoError(t, b.AdvancePosition(h, types.LogPosition{Index: 9, Term: 2}))

	pos, err := b.Position(h)
	require.NoError(t, err)
	assert.Equal(t, types.LogPosition{Index: 9, Term: 2}, pos)

	status, err := b.Status(h)
	require.NoError(t, err)
	assert.Equal(t, "0", statusValue(status, "kv_keys"))
}

func TestWriteAndReadMetadataRoundTrip(t *testing.T) {
	b, h := openTestBackend(t)

	version := types.LogPosition{Index: 3, Term: 1}
	require.NoError(t, b.WriteMetadata(h, types.MetadataKeyConfig, version, []byte("payload")))

	gotVersion, value, err := b.ReadMetadata(h, types.MetadataKeyConfig)
	require.NoError(t, err)
	assert.Equal(t, version, gotVersion)
	assert.Equal(t, []byte("payload"), value)
}

func TestReadMetadataMissingKey(t *testing.T) {
	b, h := openTestBackend(t)

	_, _, err := b.ReadMetadata(h, types.MetadataKeyConfig)
	assert.ErrorIs(t, err, types.ErrMetadataNotFound)
}

func TestSnapshotCreateAndOpenRoundTrip(t *testing.T) {
	b, h := openTestBackend(t)

	setCmd := types.UserCommand([]byte(`{"op":"set","key":"a","value":"1"}`))
	_, h, err := b.Apply(setCmd, types.LogPosition{Index: 1, Term: 1}, h)
	require.NoError(t, err)

	snapDir := t.TempDir() + "/snap.1.1"
	require.NoError(t, b.CreateSnapshot(snapDir, h))

	restored, err := b.OpenSnapshot(snapDir, types.LogPosition{Index: 1, Term: 1}, h)
	require.NoError(t, err)

	pos, err := b.Position(restored)
	require.NoError(t, err)
	assert.Equal(t, types.LogPosition{Index: 1, Term: 1}, pos)

	status, err := b.Status(restored)
	require.NoError(t, err)
	assert.Equal(t, "1", statusValue(status, "kv_keys"))

	_ = b.Close(restored)
}

func TestCreateSnapshotIsIdempotentWhenDestinationExists(t *testing.T) {
	b, h := openTestBackend(t)

	snapDir := t.TempDir() + "/snap.1.1"
	require.NoError(t, b.CreateSnapshot(snapDir, h))

	// A repeated create at the same destination must succeed as a no-op
	// rather than fail trying to rename onto an existing directory.
	require.NoError(t, b.CreateSnapshot(snapDir, h))
}

func TestOpenSnapshotMissingDirectory(t *testing.T) {
	b, h := openTestBackend(t)

	_, err := b.OpenSnapshot(t.TempDir()+"/does-not-exist", types.LogPosition{Index: 1, Term: 1}, h)
	assert.ErrorIs(t, err, types.ErrSnapshotNotFound)
}

func statusValue(entries []StatusEntry, key string) string {
	for _, e := range entries {
		if e.Key == key {
			return e.Value
		}
	}
	return ""
}
