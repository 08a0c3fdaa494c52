package checkpoint

import (
	"errors"
	"fmt"
)

// Sentinel errors for checkpoint operations.
var (
	// ErrInvalidPolicy is matched by every ConfigurationError.
	ErrInvalidPolicy = errors.New("invalid checkpoint policy")

	// ErrLengthMismatch indicates completed indices and results differ in length.
	ErrLengthMismatch = errors.New("completed indices and results length mismatch")

	// ErrMissingField indicates a required record field was absent.
	ErrMissingField = errors.New("missing required field")

	// ErrUnknownFormat indicates a format outside {json, binary}.
	ErrUnknownFormat = errors.New("unknown checkpoint format")
)

// ConfigurationError is returned when a Policy fails validation.
// It is only ever produced at construction time.
type ConfigurationError struct {
	// Field is the policy field that failed ("Interval", "Format", ...).
	Field string
	// Message describes the constraint that was violated.
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("checkpoint policy: %s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrInvalidPolicy.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidPolicy
}

// PersistenceError wraps an I/O failure during save, load or delete.
type PersistenceError struct {
	// Op is the manager operation ("save", "load", "delete", "list", "rotate").
	Op string
	// Name is the logical checkpoint name, if any.
	Name string
	// Path is the file involved, if known.
	Path string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("checkpoint %s %q (%s): %v", e.Op, e.Name, e.Path, e.Err)
	}
	return fmt.Sprintf("checkpoint %s %q: %v", e.Op, e.Name, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// DecodeError indicates bytes that could not be turned into a valid Record.
// Load surfaces it wrapped in a PersistenceError, so errors.As finds both.
type DecodeError struct {
	Format Format
	// Reason is a short description ("malformed", "missing field", ...).
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s checkpoint: %s: %v", e.Format, e.Reason, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
