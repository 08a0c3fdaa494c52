// Package history records one summary per parallel run so that runs can be
// listed and compared later.
package history

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Run summarizes one execution of a parallel map.
type Run struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	TotalItems int `json:"total_items"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	// Resumed is the number of items restored from a checkpoint rather than
	// processed in this run.
	Resumed int `json:"resumed"`

	WorkerCount int    `json:"worker_count"`
	BatchSize   int    `json:"batch_size"`
	Executor    string `json:"executor"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewRun returns a Run with a fresh ID, started now.
func NewRun(name string) *Run {
	return &Run{
		ID:        uuid.New().String(),
		Name:      name,
		StartedAt: time.Now(),
		Metadata:  make(map[string]string),
	}
}

// Clone returns a deep copy of r.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	c := *r
	c.Metadata = maps.Clone(r.Metadata)
	return &c
}

// Throughput returns processed items per second, 0 for a zero duration.
func (r *Run) Throughput() float64 {
	secs := r.Duration.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(r.TotalItems) / secs
}

// SuccessRate returns Succeeded / TotalItems, 0 for an empty run.
func (r *Run) SuccessRate() float64 {
	if r.TotalItems == 0 {
		return 0
	}
	return float64(r.Succeeded) / float64(r.TotalItems)
}
