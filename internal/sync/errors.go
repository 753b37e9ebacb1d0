package sync

import "fmt"

// ValidationError signals a name or alias collision while materializing a
// new table or column. It aborts the whole per-source transaction.
type ValidationError struct {
	Entity string
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Entity, e.Name, e.Reason)
}

// ReferentialInconsistencyError marks a catalog relation whose endpoint
// vanished. It is not fatal: the diff computer degrades it to a removal
// change instead of aborting.
type ReferentialInconsistencyError struct {
	RelationColumnID string
	Missing          string
}

func (e *ReferentialInconsistencyError) Error() string {
	return fmt.Sprintf("relation column %s references missing %s", e.RelationColumnID, e.Missing)
}
