/*
Package parallelkit runs a function over a slice with a bounded pool of
goroutines and can resume a run that was interrupted.

# Basic Usage

	res, err := parallelkit.Map(ctx, docs, embed, parallelkit.WithWorkers(8))
	if err != nil {
	    var runErr *parallelkit.RunError
	    if !errors.As(err, &runErr) {
	        return err
	    }
	    // res.Failed lists the items that failed; everything else is in res.Results.
	}

# Checkpoint and Resume

With a checkpoint manager, progress is saved every Policy.Interval processed
items under a logical name. Calling Map again with the same name and input
only runs what the checkpoint does not cover:

	policy, err := checkpoint.NewPolicy("./ckpt",
	    checkpoint.WithInterval(100),
	    checkpoint.WithRetention(2),
	    checkpoint.WithAutoCleanup(true),
	)
	m, err := checkpoint.NewManager[Vector](policy)
	res, err := parallelkit.Map(ctx, docs, embed, parallelkit.WithCheckpoint(m, "embed-docs"))
	// res.Resumed, res.ResumedCount

Checkpoints are written from a single coordinating goroutine between
batches, never from workers. A checkpoint that does not fit the input is
tolerated by default (entries outside the input are ignored); use
WithStrictResume to reject it.

# Failures

A failing item never stops the run. WithRetry retries transient failures
(see package retry), WithDeadLetterQueue hands permanent failures to a dlq.Queue,
and panics in the function are reported as *PanicError. Map returns the
full Result together with a *RunError when any item failed.

# Observability

WithLogger, WithMetrics and WithTracing attach slog logging and
OpenTelemetry metrics and spans (see package observability). WithHistory
records one history.Run per call.
*/
package parallelkit
