package store

import "fmt"

// MergeIOError is a ledger read/write failure. Reads are retried with
// bounded attempts before this surfaces; a merge cycle that fails leaves the
// persisted ledger at its last successfully written state.
type MergeIOError struct {
	Op    string
	Path  string
	Cause error
}

func (e *MergeIOError) Error() string {
	return fmt.Sprintf("[MERGE_IO] %s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *MergeIOError) Unwrap() error {
	return e.Cause
}

// ValidationError rejects a malformed entry payload on CRUD. The ledger is
// left unchanged.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[VALIDATION] %s: %s", e.Field, e.Reason)
}
