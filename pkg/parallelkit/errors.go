package parallelkit

import (
	"errors"
	"fmt"
)

// Sentinel errors for Map.
var (
	// ErrNilFunc indicates Map was called without a function.
	ErrNilFunc = errors.New("map function cannot be nil")

	// ErrItemsFailed is matched by every RunError.
	ErrItemsFailed = errors.New("one or more items failed")

	// ErrCheckpointType indicates the checkpoint manager's result type does
	// not match the function's result type.
	ErrCheckpointType = errors.New("checkpoint manager result type does not match")
)

// ItemError records a failed item.
type ItemError struct {
	// Index is the item's position in the input.
	Index int
	// Err is the last error returned for the item.
	Err error
	// Attempts is how many times the item was tried.
	Attempts int
}

// Error implements the error interface.
func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d failed after %d attempt(s): %v", e.Index, e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *ItemError) Unwrap() error {
	return e.Err
}

// RunError reports a run that finished with failed items.
type RunError struct {
	Failed int
	Total  int
}

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("%d of %d items failed", e.Failed, e.Total)
}

// Unwrap returns ErrItemsFailed.
func (e *RunError) Unwrap() error {
	return ErrItemsFailed
}

// PanicError captures a panic raised by the map function.
type PanicError struct {
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("map function panicked: %v", e.Value)
}

// CheckpointError wraps a checkpoint failure that ended or outlived a run.
type CheckpointError struct {
	// Name is the logical checkpoint name.
	Name string
	// Op is "load", "validate", "save" or "cleanup".
	Op  string
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s %q: %v", e.Op, e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}
