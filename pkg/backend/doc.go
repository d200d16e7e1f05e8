/*
Package backend defines the storage capability set the apply engine
consumes (the "backend contract") and ships one concrete implementation,
BoltBackend, built on go.etcd.io/bbolt.

A Backend owns all persisted state for one (table, partition) pair behind
an opaque Handle. The engine never reaches past the interface: every
mutation, snapshot, and metadata read/write goes through these methods,
invoked synchronously from the engine's single serialized goroutine. A
Backend may block internally — the engine has nothing else to do while it
waits.

# Determinism

For any prefix of the committed command stream, two backends started from
the zero position and fed the same prefix must agree on every subsequent
reply and on exported metadata. BoltBackend satisfies this by committing
each apply's data mutation and its recorded position in the same BoltDB
transaction: there is no window where the two can disagree.

# Handle lifecycle

A Handle is exclusive to the engine instance that opened it, never cloned,
and replaced wholesale by OpenSnapshot. BoltBackend's handle wraps a single
*bbolt.DB plus the on-disk path it was opened from, so snapshot install can
close the old database, materialize the snapshot's file in its place, and
reopen.
*/
package backend
