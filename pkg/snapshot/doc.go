// Package snapshot manages the on-disk directory of point-in-time backend
// snapshots for one apply engine instance: naming, listing, retention, and
// deletion. It never touches backend state itself — Manager only knows
// about directory names of the form <prefix>.<index>.<term> under a root
// directory exclusive to the owning instance's partition subtree.
package snapshot
