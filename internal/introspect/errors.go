package introspect

import "fmt"

// Error wraps a connection or driver failure. Reconciliation surfaces it
// immediately, before any catalog mutation is attempted.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("introspection failed during %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
