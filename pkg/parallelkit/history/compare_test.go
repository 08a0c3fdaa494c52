package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/parallelkit/pkg/parallelkit/history"
)

func TestNewRun(t *testing.T) {
	a := history.NewRun("embed")
	b := history.NewRun("embed")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "embed", a.Name)
	assert.False(t, a.StartedAt.IsZero())
	assert.NotNil(t, a.Metadata)
}

func TestRun_Rates(t *testing.T) {
	r := &history.Run{TotalItems: 200, Succeeded: 150, Duration: 4 * time.Second}

	assert.InDelta(t, 50.0, r.Throughput(), 1e-9)
	assert.InDelta(t, 0.75, r.SuccessRate(), 1e-9)

	empty := &history.Run{}
	assert.Zero(t, empty.Throughput())
	assert.Zero(t, empty.SuccessRate())
}

func TestCompare(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore()

	baseline := &history.Run{ID: "serial", TotalItems: 100, Succeeded: 90, Duration: 10 * time.Second}
	candidate := &history.Run{ID: "parallel", TotalItems: 100, Succeeded: 99, Duration: 2500 * time.Millisecond}
	require.NoError(t, store.Save(ctx, baseline))
	require.NoError(t, store.Save(ctx, candidate))

	cmp, err := history.Compare(ctx, store, "serial", "parallel")
	require.NoError(t, err)

	assert.InDelta(t, 4.0, cmp.Speedup, 1e-9)
	assert.InDelta(t, 10.0, cmp.BaselineThroughput, 1e-9)
	assert.InDelta(t, 40.0, cmp.CandidateThroughput, 1e-9)
	assert.InDelta(t, 0.09, cmp.SuccessRateDelta, 1e-9)
	assert.Equal(t, "serial", cmp.Baseline.ID)
	assert.Equal(t, "parallel", cmp.Candidate.ID)
}

func TestCompare_MissingRun(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore()
	require.NoError(t, store.Save(ctx, &history.Run{ID: "a"}))

	_, err := history.Compare(ctx, store, "a", "b")
	assert.ErrorIs(t, err, history.ErrRunNotFound)
	assert.Contains(t, err.Error(), "candidate b")
}

func TestCompareRuns_ZeroDuration(t *testing.T) {
	cmp := history.CompareRuns(&history.Run{Duration: time.Second}, &history.Run{})

	assert.Zero(t, cmp.Speedup)
}
