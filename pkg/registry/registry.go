package registry

import (
	"fmt"
	"sync"

	"github.com/cuemby/keel/pkg/backend"
	"github.com/cuemby/keel/pkg/types"
)

// Func is the uniform signature every registered host function must
// implement. It receives the backend handle, the position the enclosing
// Execute command is being applied at, and the target table name.
type Func func(h backend.Handle, pos types.LogPosition, table string, args []byte) ([]byte, error)

type key struct {
	module, function string
}

// Registry is a (module, function) -> Func lookup table, safe for
// concurrent registration and invocation.
type Registry struct {
	mu    sync.RWMutex
	funcs map[key]Func
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{funcs: make(map[key]Func)}
}

// Register installs fn under (module, function), replacing any existing
// handler with the same name.
func (r *Registry) Register(module, function string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[key{module, function}] = fn
}

// Invoke looks up (module, function) and calls it, converting a lookup
// miss or a recovered panic into an (error, cause) reply — the engine's
// dispatcher treats both identically, never propagating a panic out of
// apply_op.
func (r *Registry) Invoke(module, function string, h backend.Handle, pos types.LogPosition, table string, args []byte) (reply []byte, err error) {
	r.mu.RLock()
	fn, ok := r.funcs[key{module, function}]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("registry: no function registered for %s.%s", module, function)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("registry: %s.%s panicked: %v", module, function, rec)
		}
	}()

	return fn(h, pos, table, args)
}
