package parallelkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/parallelkit/pkg/parallelkit/checkpoint"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/dlq"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/history"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/observability"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/resume"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/retry"
)

// Result is the outcome of Map.
type Result[R any] struct {
	// Results is ordered like the input. Results[i] holds the zero value
	// when Filled[i] is false.
	Results []R
	Filled  []bool

	// Failed lists permanently failed items in ascending index order.
	Failed []ItemError

	// Resumed reports whether a checkpoint was loaded.
	Resumed bool
	// ResumedCount is the number of results restored from the checkpoint.
	ResumedCount int

	RunID          string
	CheckpointName string
	Duration       time.Duration
}

// Succeeded returns the number of filled results.
func (r *Result[R]) Succeeded() int {
	n := 0
	for _, ok := range r.Filled {
		if ok {
			n++
		}
	}
	return n
}

// Map applies fn to every item using a bounded pool of goroutines and
// returns the results in input order.
//
// With WithCheckpoint, Map first loads the named checkpoint and only runs
// the items it does not cover, saves progress every Policy.Interval
// processed items, and saves once more at the end unless the run
// succeeded and the policy asks for cleanup, in which case the checkpoint
// is deleted.
//
// A failing item does not stop the run. When items fail, Map returns the
// full Result together with a *RunError. When ctx is cancelled, Map stops
// scheduling, saves what finished, and returns the partial Result with the
// context error.
func Map[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error), opts ...Option) (*Result[R], error) {
	if fn == nil {
		return nil, ErrNilFunc
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &run[T, R]{
		cfg:   cfg,
		items: items,
		fn:    fn,
		id:    uuid.New().String(),
	}
	if cfg.manager != nil {
		m, ok := cfg.manager.(*checkpoint.Manager[R])
		if !ok {
			return nil, fmt.Errorf("%w: got %T", ErrCheckpointType, cfg.manager)
		}
		r.mgr = m
	}
	r.name = r.deriveName()
	r.logger = observability.EnrichLogger(cfg.logger, r.id, r.name)

	return r.execute(ctx)
}

// run carries the state of one Map call. Progress fields are owned by the
// coordinating goroutine.
type run[T, R any] struct {
	cfg   runConfig
	items []T
	fn    func(context.Context, T) (R, error)
	mgr   *checkpoint.Manager[R]

	id     string
	name   string
	logger *slog.Logger

	// doneIdx[k] and doneRes[k] pair up; the first restored pairs came
	// from the checkpoint.
	doneIdx     []int
	doneRes     []R
	restored    int
	failed      []ItemError
	unsaved     int
	interrupted bool
	errs        []error
}

type batch[T any] struct {
	seq     int
	indices []int
	items   []T
}

type batchOutcome[R any] struct {
	seq      int
	size     int
	indices  []int
	results  []R
	failed   []ItemError
	skipped  int
	duration time.Duration
}

func (r *run[T, R]) deriveName() string {
	if r.cfg.checkpointName != "" {
		return r.cfg.checkpointName
	}
	if r.mgr != nil && r.mgr.Policy().Name != "" {
		return r.mgr.Policy().Name
	}
	return "run-" + r.id
}

func (r *run[T, R]) execute(ctx context.Context) (*Result[R], error) {
	start := time.Now()
	total := len(r.items)

	ctx, span := r.cfg.spans.StartRunSpan(ctx, r.name, r.id, total)

	rec, err := r.loadCheckpoint(total)
	if err != nil {
		observability.LogRunError(r.logger, r.id, err, float64(time.Since(start).Milliseconds()))
		r.cfg.spans.EndSpanWithError(span, err)
		return nil, err
	}

	pendingIdx, pendingItems := resume.Pending(r.items, rec)
	if rec != nil {
		observability.LogResume(r.logger, r.name, r.restored, total)
		r.cfg.spans.AddSpanEvent(ctx, "resume", attribute.Int("restored", r.restored))
	}
	observability.LogRunStart(r.logger, r.id, total, len(pendingIdx), r.cfg.workers)

	ctxErr := r.process(ctx, pendingIdx, pendingItems)

	base := rec
	if base == nil {
		empty := checkpoint.NewRecord[R](nil, nil, total)
		base = &empty
	}
	merged := resume.Merge(r.doneRes[r.restored:], r.doneIdx[r.restored:], base, total)

	slices.SortFunc(r.failed, func(a, b ItemError) int { return a.Index - b.Index })
	res := &Result[R]{
		Results:      merged.Results,
		Filled:       merged.Filled,
		Failed:       r.failed,
		Resumed:      rec != nil,
		ResumedCount: r.restored,
		RunID:        r.id,
	}
	if r.mgr != nil {
		res.CheckpointName = r.name
	}

	r.finishCheckpoint(ctxErr == nil && merged.Complete())
	res.Duration = time.Since(start)
	r.recordHistory(ctx, res, start)

	var runErr error
	switch {
	case ctxErr != nil:
		runErr = ctxErr
	case len(res.Failed) > 0:
		runErr = &RunError{Failed: len(res.Failed), Total: total}
	}
	if len(r.errs) > 0 {
		runErr = errors.Join(append([]error{runErr}, r.errs...)...)
	}

	durationMs := float64(res.Duration.Microseconds()) / 1000
	r.cfg.metrics.RecordRun(ctx, runErr == nil, res.Resumed, res.Duration)
	if runErr != nil && !errors.Is(runErr, ErrItemsFailed) {
		observability.LogRunError(r.logger, r.id, runErr, durationMs)
	} else {
		observability.LogRunComplete(r.logger, r.id, durationMs, res.Succeeded(), len(res.Failed))
	}
	r.cfg.spans.EndSpanWithError(span, runErr)

	return res, runErr
}

// loadCheckpoint loads the named checkpoint and keeps only the result
// pairs that fit an input of length total. It returns nil when
// checkpointing is off or nothing was saved yet.
func (r *run[T, R]) loadCheckpoint(total int) (*checkpoint.Record[R], error) {
	r.doneIdx = []int{}
	r.doneRes = []R{}
	if r.mgr == nil {
		return nil, nil
	}

	rec, err := r.mgr.Load(r.name)
	if err != nil {
		return nil, &CheckpointError{Name: r.name, Op: "load", Err: err}
	}
	if rec == nil {
		return nil, nil
	}
	if r.cfg.strictResume {
		if err := resume.Validate(rec, total); err != nil {
			return nil, &CheckpointError{Name: r.name, Op: "validate", Err: err}
		}
	}

	// Drop pairs without a result or outside the input so that Pending
	// schedules those items again. A repeated index keeps its last result.
	pos := make(map[int]int, len(rec.CompletedIndices))
	n := min(len(rec.CompletedIndices), len(rec.Results))
	for k := 0; k < n; k++ {
		idx := rec.CompletedIndices[k]
		if idx < 0 || idx >= total {
			continue
		}
		if p, ok := pos[idx]; ok {
			r.doneRes[p] = rec.Results[k]
			continue
		}
		pos[idx] = len(r.doneIdx)
		r.doneIdx = append(r.doneIdx, idx)
		r.doneRes = append(r.doneRes, rec.Results[k])
	}
	r.restored = len(r.doneIdx)

	clean := *rec
	clean.CompletedIndices = slices.Clone(r.doneIdx)
	clean.Results = slices.Clone(r.doneRes)
	return &clean, nil
}

// process runs the pending items and folds every batch outcome. It returns
// the context error only if cancellation left work undone.
func (r *run[T, R]) process(ctx context.Context, indices []int, items []T) error {
	if len(indices) == 0 {
		return nil
	}

	size := r.cfg.batchSize
	outcomes := make(chan batchOutcome[R])
	stopped := false

	go func() {
		var g errgroup.Group
		g.SetLimit(r.cfg.workers)
		for seq, lo := 0, 0; lo < len(indices); seq, lo = seq+1, lo+size {
			if ctx.Err() != nil {
				stopped = true
				break
			}
			hi := min(lo+size, len(indices))
			b := batch[T]{seq: seq, indices: indices[lo:hi], items: items[lo:hi]}
			g.Go(func() error {
				outcomes <- r.runBatch(ctx, b)
				return nil
			})
		}
		_ = g.Wait()
		close(outcomes)
	}()

	for out := range outcomes {
		r.fold(ctx, out)
	}

	if stopped || r.interrupted {
		return ctx.Err()
	}
	return nil
}

func (r *run[T, R]) runBatch(ctx context.Context, b batch[T]) batchOutcome[R] {
	start := time.Now()
	ctx, span := r.cfg.spans.StartBatchSpan(ctx, b.seq, len(b.indices))

	out := batchOutcome[R]{seq: b.seq, size: len(b.indices)}
	for k, idx := range b.indices {
		if ctx.Err() != nil {
			out.skipped = len(b.indices) - k
			break
		}

		item := b.items[k]
		res := retry.Do(ctx, r.cfg.retry, func(ctx context.Context) (R, error) {
			return r.call(ctx, item)
		})
		if res.Err != nil {
			if ctx.Err() != nil {
				out.skipped = len(b.indices) - k
				break
			}
			out.failed = append(out.failed, ItemError{Index: idx, Err: itemCause(res.Err), Attempts: res.Attempts})
			continue
		}
		out.indices = append(out.indices, idx)
		out.results = append(out.results, res.Value)
	}
	out.duration = time.Since(start)

	var spanErr error
	if len(out.failed) > 0 {
		spanErr = fmt.Errorf("%d of %d items failed", len(out.failed), out.size)
	}
	r.cfg.spans.EndSpanWithError(span, spanErr)
	return out
}

// call invokes fn, turning a panic into a *PanicError.
func (r *run[T, R]) call(ctx context.Context, item T) (result R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p, Stack: string(debug.Stack())}
		}
	}()
	return r.fn(ctx, item)
}

// itemCause strips the wrapper retry.Do puts around the last error.
func itemCause(err error) error {
	if catErr, ok := err.(*retry.CategorizedError); ok {
		return catErr.Err
	}
	return err
}

func (r *run[T, R]) fold(ctx context.Context, out batchOutcome[R]) {
	r.doneIdx = append(r.doneIdx, out.indices...)
	r.doneRes = append(r.doneRes, out.results...)
	r.failed = append(r.failed, out.failed...)
	if out.skipped > 0 {
		r.interrupted = true
	}

	lettered := 0
	for _, f := range out.failed {
		observability.LogItemFailed(r.logger, f.Index, f.Attempts, f.Err)
		if r.deadLetter(f) {
			lettered++
		}
	}
	if lettered > 0 {
		r.cfg.metrics.RecordDeadLetter(ctx, lettered)
	}

	processed := len(out.indices) + len(out.failed)
	r.unsaved += processed
	r.cfg.metrics.RecordBatch(ctx, processed, len(out.failed), out.duration)
	observability.LogBatchComplete(r.logger, out.seq, out.size, len(out.failed),
		float64(out.duration.Microseconds())/1000)

	if r.mgr == nil {
		return
	}
	if interval := r.mgr.Policy().Interval; interval > 0 && r.unsaved >= interval {
		// A failed periodic save is logged by the manager; the next one
		// or the final save carries the same progress.
		if err := r.save(); err == nil {
			r.cfg.spans.AddSpanEvent(ctx, "checkpoint.saved",
				attribute.Int("completed", len(r.doneIdx)))
		}
	}
}

func (r *run[T, R]) deadLetter(f ItemError) bool {
	if r.cfg.dlq == nil {
		return false
	}

	entry := dlq.NewEntry(f.Index, r.items[f.Index], f.Err, f.Attempts).
		WithMetadata("run_id", r.id).
		WithMetadata("run_name", r.name)
	if err := r.cfg.dlq.Add(entry); err != nil {
		r.errs = append(r.errs, fmt.Errorf("dead-letter item %d: %w", f.Index, err))
		return false
	}
	return true
}

func (r *run[T, R]) save() error {
	rec := checkpoint.NewRecord(r.doneIdx, r.doneRes, len(r.items)).
		WithExecution(r.cfg.workers, r.cfg.batchSize).
		WithMetadata("run_id", r.id)
	if _, err := r.mgr.Save(r.name, rec); err != nil {
		return &CheckpointError{Name: r.name, Op: "save", Err: err}
	}
	r.unsaved = 0
	return nil
}

// finishCheckpoint deletes the checkpoint after a complete run when the
// policy asks for it, and otherwise saves any unsaved progress.
func (r *run[T, R]) finishCheckpoint(complete bool) {
	if r.mgr == nil {
		return
	}

	if complete && r.mgr.Policy().AutoCleanupOnSuccess {
		if _, err := r.mgr.Delete(r.name); err != nil {
			r.errs = append(r.errs, &CheckpointError{Name: r.name, Op: "cleanup", Err: err})
		}
		return
	}

	if r.unsaved > 0 {
		if err := r.save(); err != nil {
			r.errs = append(r.errs, err)
		}
	}
}

func (r *run[T, R]) recordHistory(ctx context.Context, res *Result[R], start time.Time) {
	if r.cfg.history == nil {
		return
	}

	hr := history.NewRun(r.name)
	hr.ID = r.id
	hr.StartedAt = start
	hr.Duration = res.Duration
	hr.TotalItems = len(r.items)
	hr.Succeeded = res.Succeeded()
	hr.Failed = len(res.Failed)
	hr.Resumed = res.ResumedCount
	hr.WorkerCount = r.cfg.workers
	hr.BatchSize = r.cfg.batchSize
	hr.Executor = executorLabel
	if res.CheckpointName != "" {
		hr.Metadata["checkpoint"] = res.CheckpointName
	}

	if err := r.cfg.history.Save(context.WithoutCancel(ctx), hr); err != nil {
		r.errs = append(r.errs, fmt.Errorf("record history: %w", err))
	}
}
