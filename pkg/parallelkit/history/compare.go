package history

import (
	"context"
	"fmt"
)

// Comparison contrasts a candidate run with a baseline.
type Comparison struct {
	Baseline  *Run
	Candidate *Run

	// Speedup is baseline duration over candidate duration; above 1 means
	// the candidate was faster. 0 when the candidate took no measurable time.
	Speedup float64

	BaselineThroughput  float64
	CandidateThroughput float64

	// SuccessRateDelta is candidate success rate minus baseline success rate.
	SuccessRateDelta float64
}

// Compare loads two runs from store and compares them.
func Compare(ctx context.Context, store Store, baselineID, candidateID string) (*Comparison, error) {
	baseline, err := store.Get(ctx, baselineID)
	if err != nil {
		return nil, fmt.Errorf("baseline %s: %w", baselineID, err)
	}
	candidate, err := store.Get(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("candidate %s: %w", candidateID, err)
	}
	return CompareRuns(baseline, candidate), nil
}

// CompareRuns compares two runs already in hand.
func CompareRuns(baseline, candidate *Run) *Comparison {
	c := &Comparison{
		Baseline:            baseline,
		Candidate:           candidate,
		BaselineThroughput:  baseline.Throughput(),
		CandidateThroughput: candidate.Throughput(),
		SuccessRateDelta:    candidate.SuccessRate() - baseline.SuccessRate(),
	}
	if candidate.Duration > 0 {
		c.Speedup = baseline.Duration.Seconds() / candidate.Duration.Seconds()
	}
	return c
}
