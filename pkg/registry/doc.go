// Package registry implements the host function table backing the
// Execute command: a static map from (module, function) to a typed
// handler, invoked with (handle, position, table, args). Callers register
// handlers once at startup rather than the engine resolving names through
// reflection on every apply.
package registry
