package registry

import (
	"testing"

	"github.com/cuemby/keel/pkg/backend"
	"github.com/cuemby/keel/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndInvoke(t *testing.T) {
	r := New()
	r.Register("kv", "get", func(h backend.Handle, pos types.LogPosition, table string, args []byte) ([]byte, error) {
		return append([]byte("got:"), args...), nil
	})

	reply, err := r.Invoke("kv", "get", nil, types.LogPosition{Index: 1}, "t", []byte("key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("got:key"), reply)
}

func TestInvokeUnknownFunction(t *testing.T) {
	r := New()
	_, err := r.Invoke("kv", "missing", nil, types.LogPosition{}, "t", nil)
	assert.Error(t, err)
}

func TestInvokeRecoversPanic(t *testing.T) {
	r := New()
	r.Register("kv", "panics", func(h backend.Handle, pos types.LogPosition, table string, args []byte) ([]byte, error) {
		panic("boom")
	})

	_, err := r.Invoke("kv", "panics", nil, types.LogPosition{}, "t", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestRegisterReplacesExistingHandler(t *testing.T) {
	r := New()
	r.Register("kv", "get", func(h backend.Handle, pos types.LogPosition, table string, args []byte) ([]byte, error) {
		return []byte("first"), nil
	})
	r.Register("kv", "get", func(h backend.Handle, pos types.LogPosition, table string, args []byte) ([]byte, error) {
		return []byte("second"), nil
	})

	reply, err := r.Invoke("kv", "get", nil, types.LogPosition{}, "t", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), reply)
}
