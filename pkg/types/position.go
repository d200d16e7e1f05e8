package types

import "fmt"

// LogPosition identifies a committed log entry by its index and the term
// in which it was proposed. Positions compare by index only — term is
// carried for verification and snapshot naming, never for ordering.
type LogPosition struct {
	Index uint64
	Term  uint64
}

// ZeroPosition is the position of an empty backend: no entries applied.
var ZeroPosition = LogPosition{Index: 0, Term: 0}

// Less reports whether p precedes other by index.
func (p LogPosition) Less(other LogPosition) bool {
	return p.Index < other.Index
}

// Next returns the position immediately following p for the given term,
// i.e. the position a correctly-ordered next apply must land on.
func (p LogPosition) Next(term uint64) LogPosition {
	return LogPosition{Index: p.Index + 1, Term: term}
}

func (p LogPosition) String() string {
	return fmt.Sprintf("%d@%d", p.Index, p.Term)
}
