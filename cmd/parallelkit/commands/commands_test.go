package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/parallelkit/pkg/parallelkit/checkpoint"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/config"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/dlq"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/history"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// seedCheckpoints saves two versions of "embed" into dir.
func seedCheckpoints(t *testing.T, dir string, format checkpoint.Format) {
	t.Helper()

	policy, err := checkpoint.NewPolicy(dir,
		checkpoint.WithFormat(format),
		checkpoint.WithRetention(2),
	)
	require.NoError(t, err)
	m, err := checkpoint.NewManager[int](policy)
	require.NoError(t, err)

	_, err = m.Save("embed", checkpoint.NewRecord([]int{0}, []int{10}, 5))
	require.NoError(t, err)
	rec := checkpoint.NewRecord([]int{0, 3}, []int{10, 40}, 5).
		WithExecution(4, 2).
		WithMetadata("run_id", "run-42")
	_, err = m.Save("embed", rec)
	require.NoError(t, err)
}

func TestCheckpointsList_Empty(t *testing.T) {
	dir := t.TempDir()

	out, err := runCLI(t, "checkpoints", "list", "--checkpoint-dir", dir)

	require.NoError(t, err)
	assert.Contains(t, out, "No checkpoints in "+dir)
}

func TestCheckpointsList(t *testing.T) {
	dir := t.TempDir()
	seedCheckpoints(t, dir, checkpoint.FormatJSON)

	out, err := runCLI(t, "checkpoints", "list", "--checkpoint-dir", dir, "--retention", "2")

	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "embed")
}

func TestCheckpointsShow(t *testing.T) {
	dir := t.TempDir()
	seedCheckpoints(t, dir, checkpoint.FormatJSON)

	out, err := runCLI(t, "checkpoints", "show", "embed",
		"--checkpoint-dir", dir, "--retention", "2", "--results")

	require.NoError(t, err)
	assert.Contains(t, out, "current")
	assert.Contains(t, out, "v1")
	assert.Contains(t, out, "2 / 5 (40.0%)")
	assert.Contains(t, out, "metadata.run_id")
	assert.Contains(t, out, "run-42")
	assert.Contains(t, out, "40")
}

func TestCheckpointsShow_OlderVersion(t *testing.T) {
	dir := t.TempDir()
	seedCheckpoints(t, dir, checkpoint.FormatJSON)

	out, err := runCLI(t, "checkpoints", "show", "embed", "--version", "1",
		"--checkpoint-dir", dir, "--retention", "2")

	require.NoError(t, err)
	assert.Contains(t, out, "1 / 5 (20.0%)")
}

func TestCheckpointsShow_Binary(t *testing.T) {
	dir := t.TempDir()
	seedCheckpoints(t, dir, checkpoint.FormatBinary)

	out, err := runCLI(t, "checkpoints", "show", "embed",
		"--checkpoint-dir", dir, "--format", "binary")

	require.NoError(t, err)
	assert.Contains(t, out, "embed_checkpoint.gob")
	assert.Contains(t, out, "not shown for binary")
}

func TestCheckpointsShow_Missing(t *testing.T) {
	_, err := runCLI(t, "checkpoints", "show", "ghost", "--checkpoint-dir", t.TempDir())

	require.Error(t, err)
	assert.Contains(t, err.Error(), `checkpoint "ghost" not found`)
}

func TestCheckpointsDelete(t *testing.T) {
	dir := t.TempDir()
	seedCheckpoints(t, dir, checkpoint.FormatJSON)

	out, err := runCLI(t, "checkpoints", "delete", "embed", "--checkpoint-dir", dir, "--retention", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "embed: removed 2 file(s)")

	out, err = runCLI(t, "checkpoints", "delete", "embed", "--checkpoint-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "embed: removed 0 file(s)")
}

func TestCheckpointsDelete_RejectsPathEscape(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "checkpoints")
	outside := filepath.Join(root, "escaped_checkpoint.json")
	require.NoError(t, os.WriteFile(outside, []byte("{}"), 0o644))

	_, err := runCLI(t, "checkpoints", "delete", "../escaped", "--checkpoint-dir", dir)

	assert.ErrorIs(t, err, checkpoint.ErrInvalidName)
	assert.FileExists(t, outside)
}

func TestCheckpoints_InvalidFormat(t *testing.T) {
	_, err := runCLI(t, "checkpoints", "list", "--checkpoint-dir", t.TempDir(), "--format", "xml")

	assert.ErrorIs(t, err, checkpoint.ErrInvalidPolicy)
}

func TestSettings_Environment(t *testing.T) {
	dir := t.TempDir()
	seedCheckpoints(t, dir, checkpoint.FormatJSON)
	t.Setenv("PARALLELKIT_CHECKPOINT_DIRECTORY", dir)

	out, err := runCLI(t, "checkpoints", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "embed")
}

func TestSettings_FlagBeatsEnvironment(t *testing.T) {
	seeded := t.TempDir()
	seedCheckpoints(t, seeded, checkpoint.FormatJSON)
	t.Setenv("PARALLELKIT_CHECKPOINT_DIRECTORY", t.TempDir())

	out, err := runCLI(t, "checkpoints", "list", "--checkpoint-dir", seeded)

	require.NoError(t, err)
	assert.Contains(t, out, "embed")
}

func TestSettings_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	seedCheckpoints(t, dir, checkpoint.FormatJSON)

	cfgPath := filepath.Join(t.TempDir(), "parallelkit.yaml")
	cfg := "checkpoint:\n  directory: " + dir + "\n  retention: 2\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	out, err := runCLI(t, "checkpoints", "show", "embed", "--config", cfgPath)

	require.NoError(t, err)
	assert.Contains(t, out, "v1")
}

func TestSettings_ConfigFileExpandsEnvironment(t *testing.T) {
	dir := t.TempDir()
	seedCheckpoints(t, dir, checkpoint.FormatJSON)
	t.Setenv("PK_CKPT_ROOT", dir)

	cfgPath := filepath.Join(t.TempDir(), "parallelkit.json")
	cfg := `{"checkpoint": {"directory": "${PK_CKPT_ROOT}"}}`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	out, err := runCLI(t, "checkpoints", "list", "--config", cfgPath)

	require.NoError(t, err)
	assert.Contains(t, out, "embed")
}

func TestSettings_UnknownConfigFormat(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "parallelkit.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("x = 1"), 0o644))

	_, err := runCLI(t, "checkpoints", "list", "--config", cfgPath)

	assert.ErrorIs(t, err, config.ErrUnknownFormat)
}

func TestSettings_MissingConfigFile(t *testing.T) {
	_, err := runCLI(t, "checkpoints", "list", "--config", filepath.Join(t.TempDir(), "absent.yaml"))

	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDLQ_NoPath(t *testing.T) {
	_, err := runCLI(t, "dlq", "list")

	assert.ErrorIs(t, err, ErrNoDLQPath)
}

func TestDLQ_ListAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed.json")
	q := dlq.New(dlq.WithPath(path))
	require.NoError(t, q.Add(dlq.Entry{Index: 3, Error: "rate limited", ErrorType: "*errors.errorString", Attempts: 2}))
	require.NoError(t, q.Add(dlq.Entry{Index: 9, Error: "bad input", Attempts: 1}))

	out, err := runCLI(t, "dlq", "list", "--dlq", path)
	require.NoError(t, err)
	assert.Contains(t, out, "rate limited")
	assert.Contains(t, out, "bad input")
	assert.Contains(t, out, "2 item(s)")

	out, err = runCLI(t, "dlq", "clear", "--dlq", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 2 item(s)")

	reopened, err := dlq.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Len())

	out, err = runCLI(t, "dlq", "list", "--dlq", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No dead letters")
}

func TestDLQ_ListTruncatesErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed.json")
	q := dlq.New(dlq.WithPath(path))
	require.NoError(t, q.Add(dlq.Entry{Index: 0, Error: "0123456789abcdef"}))

	out, err := runCLI(t, "dlq", "list", "--dlq", path, "--error-width", "8")

	require.NoError(t, err)
	assert.Contains(t, out, "0123456…")
	assert.NotContains(t, out, "abcdef")
}

// seedHistory stores a baseline and a faster candidate run.
func seedHistory(t *testing.T, path string) (baseline, candidate *history.Run) {
	t.Helper()

	store, err := history.NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	baseline = history.NewRun("embed")
	baseline.StartedAt = time.Now().Add(-time.Hour)
	baseline.Duration = 4 * time.Second
	baseline.TotalItems = 100
	baseline.Succeeded = 90
	baseline.Failed = 10
	baseline.WorkerCount = 2

	candidate = history.NewRun("embed")
	candidate.Duration = 2 * time.Second
	candidate.TotalItems = 100
	candidate.Succeeded = 100
	candidate.WorkerCount = 8
	candidate.Metadata["host"] = "worker-1"

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, baseline))
	require.NoError(t, store.Save(ctx, candidate))
	return baseline, candidate
}

func TestHistory_NoPath(t *testing.T) {
	_, err := runCLI(t, "history", "list")

	assert.ErrorIs(t, err, ErrNoHistoryPath)
}

func TestHistory_List(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	baseline, candidate := seedHistory(t, path)

	out, err := runCLI(t, "history", "list", "--history", path)
	require.NoError(t, err)
	assert.Contains(t, out, baseline.ID)
	assert.Contains(t, out, candidate.ID)
	assert.Less(t, bytes.Index([]byte(out), []byte(candidate.ID)), bytes.Index([]byte(out), []byte(baseline.ID)))

	out, err = runCLI(t, "history", "list", "--history", path, "--since", "10m")
	require.NoError(t, err)
	assert.Contains(t, out, candidate.ID)
	assert.NotContains(t, out, baseline.ID)
}

func TestHistory_Show(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	_, candidate := seedHistory(t, path)

	out, err := runCLI(t, "history", "show", candidate.ID, "--history", path)

	require.NoError(t, err)
	assert.Contains(t, out, "100.0%")
	assert.Contains(t, out, "50.0 items/s")
	assert.Contains(t, out, "metadata.host")
}

func TestHistory_Compare(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	baseline, candidate := seedHistory(t, path)

	out, err := runCLI(t, "history", "compare", baseline.ID, candidate.ID, "--history", path)

	require.NoError(t, err)
	assert.Contains(t, out, "Speedup: 2.00x")
	assert.Contains(t, out, "+10.0%")
}

func TestHistory_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	baseline, _ := seedHistory(t, path)

	out, err := runCLI(t, "history", "delete", baseline.ID, "--history", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+baseline.ID)

	_, err = runCLI(t, "history", "show", baseline.ID, "--history", path)
	assert.ErrorIs(t, err, history.ErrRunNotFound)

	_, err = runCLI(t, "history", "delete", baseline.ID, "--history", path)
	assert.ErrorIs(t, err, history.ErrRunNotFound)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
	assert.Equal(t, "abcdef", truncate("abcdef", 0))
}
