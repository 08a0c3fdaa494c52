package dlq

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

// Entry is one item that failed permanently.
type Entry struct {
	// ID uniquely identifies the entry. Assigned by Add when empty.
	ID string `json:"id"`

	// Index is the item's position in the original input.
	Index int `json:"index"`

	// Item is the input that failed. It must be JSON-encodable for the
	// queue to persist; after Load it holds the decoded JSON value.
	Item any `json:"item"`

	// Error is the failure message.
	Error string `json:"error"`

	// ErrorType is the Go type of the innermost error.
	ErrorType string `json:"error_type"`

	// Attempts is how many times the item was tried.
	Attempts int `json:"attempts"`

	// FailedAt is when the last attempt failed. Set by Add when zero.
	FailedAt time.Time `json:"failed_at"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewEntry builds an entry for item at index that failed with err after
// the given number of attempts.
func NewEntry(index int, item any, err error, attempts int) Entry {
	e := Entry{
		Index:    index,
		Item:     item,
		Attempts: attempts,
		FailedAt: time.Now(),
	}
	if err != nil {
		e.Error = err.Error()
		e.ErrorType = errorType(err)
	}
	return e
}

// WithMetadata returns a copy of e with key set to value.
func (e Entry) WithMetadata(key, value string) Entry {
	md := make(map[string]string, len(e.Metadata)+1)
	maps.Copy(md, e.Metadata)
	md[key] = value
	e.Metadata = md
	return e
}

// errorType names the type at the bottom of err's Unwrap chain.
func errorType(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}
