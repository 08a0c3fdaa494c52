// Package observability provides structured logging, metrics, and tracing
// for parallelkit runs and checkpoint operations.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// Every log helper accepts a nil logger.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger returns a logger carrying run_id and checkpoint fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "embed-docs")
//	enriched.Info("batch done") // includes run_id, checkpoint
func EnrichLogger(logger *slog.Logger, runID, checkpointName string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("checkpoint", checkpointName),
	)
}

// LogRunStart logs the start of a parallel map.
func LogRunStart(logger *slog.Logger, runID string, total, pending, workers int) {
	if logger == nil {
		return
	}
	logger.Info("parallel run starting",
		slog.String("run_id", runID),
		slog.Int("total_items", total),
		slog.Int("pending_items", pending),
		slog.Int("workers", workers),
	)
}

// LogRunComplete logs run completion. Failed items do not make a run an error
// at this level; they are reported in the counts.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, succeeded, failed int) {
	if logger == nil {
		return
	}
	logger.Info("parallel run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", failed),
	)
}

// LogRunError logs a run that aborted.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("parallel run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogBatchComplete logs a finished batch.
func LogBatchComplete(logger *slog.Logger, batch, size, failed int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("batch completed",
		slog.Int("batch", batch),
		slog.Int("size", size),
		slog.Int("failed", failed),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogItemFailed logs an item that exhausted its attempts.
func LogItemFailed(logger *slog.Logger, index, attempts int, err error) {
	if logger == nil {
		return
	}
	logger.Warn("item failed",
		slog.Int("index", index),
		slog.Int("attempts", attempts),
		slog.String("error", err.Error()),
	)
}

// LogResume logs that a run continues from a checkpoint.
func LogResume(logger *slog.Logger, name string, completed, total int) {
	if logger == nil {
		return
	}
	logger.Info("resuming from checkpoint",
		slog.String("checkpoint", name),
		slog.Int("completed", completed),
		slog.Int("total_items", total),
	)
}

// LogCheckpointSaved logs a successful checkpoint write.
func LogCheckpointSaved(logger *slog.Logger, name, path string, completed int, sizeBytes int64) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("checkpoint", name),
		slog.String("path", path),
		slog.Int("completed", completed),
		slog.Int64("size_bytes", sizeBytes),
	)
}

// LogCheckpointDeleted logs checkpoint removal.
func LogCheckpointDeleted(logger *slog.Logger, name string, removed int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint deleted",
		slog.String("checkpoint", name),
		slog.Int("files_removed", removed),
	)
}

// LogCheckpointError logs a checkpoint failure.
func LogCheckpointError(logger *slog.Logger, name string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("checkpoint", name),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogPersistError logs a best-effort persistence failure that was not
// propagated to the caller.
func LogPersistError(logger *slog.Logger, component, path string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("best-effort persist failed",
		slog.String("component", component),
		slog.String("path", path),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
