package checkpoint

import (
	"math"
	"time"
)

// Record is the persisted snapshot of a partially completed parallel map.
//
// Results[k] is the output for input index CompletedIndices[k]. The two
// slices must have the same length; DecodeRecord rejects records that
// violate this.
type Record[R any] struct {
	// CompletedIndices are 0-based positions into the original input.
	// Order is not significant and duplicates are tolerated.
	CompletedIndices []int `json:"completed_indices"`

	// Results are positionally aligned with CompletedIndices.
	Results []R `json:"results"`

	// TotalItems is the length of the original input at checkpoint time.
	TotalItems int `json:"total_items"`

	// CheckpointTime is seconds since the Unix epoch.
	CheckpointTime float64 `json:"checkpoint_time"`

	// Execution configuration in effect when the checkpoint was taken.
	// Informational only.
	WorkerCount int `json:"n_jobs"`
	BatchSize   int `json:"chunksize"`

	Metadata map[string]string `json:"metadata"`
}

// NewRecord creates a record stamped with the current time.
func NewRecord[R any](completed []int, results []R, totalItems int) Record[R] {
	return Record[R]{
		CompletedIndices: completed,
		Results:          results,
		TotalItems:       totalItems,
		CheckpointTime:   epochSeconds(time.Now()),
		Metadata:         map[string]string{},
	}
}

// WithExecution sets the worker count and batch size.
func (r Record[R]) WithExecution(workers, batchSize int) Record[R] {
	r.WorkerCount = workers
	r.BatchSize = batchSize
	return r
}

// WithMetadata returns a copy of the record with key set to value.
// The receiver's map is not modified.
func (r Record[R]) WithMetadata(key, value string) Record[R] {
	md := make(map[string]string, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		md[k] = v
	}
	md[key] = value
	r.Metadata = md
	return r
}

// Time converts CheckpointTime to a time.Time.
func (r Record[R]) Time() time.Time {
	sec, frac := math.Modf(r.CheckpointTime)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// Len returns the number of completed items in the record.
func (r Record[R]) Len() int {
	return len(r.CompletedIndices)
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
