// Package resume reconciles an original input sequence with a loaded
// checkpoint: which items still need work, and how fresh results combine
// with checkpointed ones into a single ordered output.
//
// Both Pending and Merge are pure and clamp out-of-range indices silently.
// Callers that want a stale or inconsistent checkpoint to be an error call
// Validate first.
package resume

import (
	"fmt"

	"github.com/randalmurphal/parallelkit/pkg/parallelkit/checkpoint"
)

// Pending returns, in ascending order, the indices of input not listed as
// completed in rec, together with the matching items. A nil rec means no
// checkpoint: every index is pending and input is returned as is.
func Pending[T, R any](input []T, rec *checkpoint.Record[R]) ([]int, []T) {
	if rec == nil {
		indices := make([]int, len(input))
		for i := range indices {
			indices[i] = i
		}
		return indices, input
	}

	done := make(map[int]struct{}, len(rec.CompletedIndices))
	for _, idx := range rec.CompletedIndices {
		done[idx] = struct{}{}
	}

	indices := make([]int, 0, len(input))
	items := make([]T, 0, len(input))
	for i, item := range input {
		if _, ok := done[i]; ok {
			continue
		}
		indices = append(indices, i)
		items = append(items, item)
	}
	return indices, items
}

// Merged is the ordered output of Merge. Filled[i] reports whether
// Results[i] was written by either source.
type Merged[R any] struct {
	Results []R
	Filled  []bool
}

// Missing returns the indices that neither source filled.
func (m Merged[R]) Missing() []int {
	var missing []int
	for i, ok := range m.Filled {
		if !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// Complete reports whether every slot was filled.
func (m Merged[R]) Complete() bool {
	for _, ok := range m.Filled {
		if !ok {
			return false
		}
	}
	return true
}

// Merge places checkpointed results and then newResults into a slice of
// length totalItems. newResults[k] belongs at pendingIndices[k]. Where both
// sources name the same index the fresh result wins. Indices outside
// [0, totalItems) are dropped.
//
// With a nil rec, newResults is returned unchanged and marked filled.
func Merge[R any](newResults []R, pendingIndices []int, rec *checkpoint.Record[R], totalItems int) Merged[R] {
	if rec == nil {
		filled := make([]bool, len(newResults))
		for i := range filled {
			filled[i] = true
		}
		return Merged[R]{Results: newResults, Filled: filled}
	}

	if totalItems < 0 {
		totalItems = 0
	}
	out := Merged[R]{
		Results: make([]R, totalItems),
		Filled:  make([]bool, totalItems),
	}
	place := func(indices []int, results []R) {
		n := min(len(indices), len(results))
		for k := 0; k < n; k++ {
			idx := indices[k]
			if idx < 0 || idx >= totalItems {
				continue
			}
			out.Results[idx] = results[k]
			out.Filled[idx] = true
		}
	}

	place(rec.CompletedIndices, rec.Results)
	place(pendingIndices, newResults)
	return out
}

// ReconciliationError describes a checkpoint that does not fit the input
// it is being resumed against.
type ReconciliationError struct {
	// OutOfRange lists completed indices outside [0, Expected).
	OutOfRange []int
	// Indices and Results are the record's slice lengths.
	Indices int
	Results int
	// RecordTotal is the record's TotalItems; Expected is the input length.
	RecordTotal int
	Expected    int
}

// Error implements the error interface.
func (e *ReconciliationError) Error() string {
	switch {
	case e.Indices != e.Results:
		return fmt.Sprintf("checkpoint has %d completed indices but %d results", e.Indices, e.Results)
	case e.RecordTotal != e.Expected:
		return fmt.Sprintf("checkpoint was taken over %d items, input has %d", e.RecordTotal, e.Expected)
	default:
		return fmt.Sprintf("checkpoint references %d indices outside [0, %d): %v",
			len(e.OutOfRange), e.Expected, e.OutOfRange)
	}
}

// Validate checks rec against an input of length total. It returns nil for
// a nil rec, otherwise a *ReconciliationError when the record's lengths
// disagree, when it was taken over a different number of items, or when
// it references indices outside [0, total).
func Validate[R any](rec *checkpoint.Record[R], total int) error {
	if rec == nil {
		return nil
	}

	var outOfRange []int
	for _, idx := range rec.CompletedIndices {
		if idx < 0 || idx >= total {
			outOfRange = append(outOfRange, idx)
		}
	}

	if len(rec.CompletedIndices) == len(rec.Results) &&
		rec.TotalItems == total &&
		len(outOfRange) == 0 {
		return nil
	}

	return &ReconciliationError{
		OutOfRange:  outOfRange,
		Indices:     len(rec.CompletedIndices),
		Results:     len(rec.Results),
		RecordTotal: rec.TotalItems,
		Expected:    total,
	}
}
