// Package acceptor defines the interface the apply engine uses to resolve
// pending client promises: the acceptor queue.
// The queue itself — registering a promise when a command is first
// accepted — lives upstream of the engine and is out of this module's
// scope; Queue is only the narrow surface the engine needs to resolve
// commit promises by ref, park and drain delayed reads, and cancel
// everything pending on leadership loss.
//
// InMemoryQueue is a complete, usable implementation provided for tests
// and the cmd/keel harness: a mutex-guarded map of commit callbacks plus a
// slice of parked reads, no background goroutine required.
package acceptor
