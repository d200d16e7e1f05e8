// Package types holds the data model shared by every component of the
// apply engine: log positions, the committed-command sum type, metadata
// keys, and the sentinel errors that make up the error taxonomy.
//
// Nothing in this package touches storage, channels, or goroutines — it is
// the vocabulary the rest of keel is written in.
package types
