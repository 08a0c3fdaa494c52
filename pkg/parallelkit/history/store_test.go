package history_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/parallelkit/pkg/parallelkit/history"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) history.Store

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func run(id, name string, offset time.Duration) *history.Run {
	return &history.Run{
		ID:          id,
		Name:        name,
		StartedAt:   base.Add(offset),
		Duration:    2 * time.Second,
		TotalItems:  100,
		Succeeded:   98,
		Failed:      2,
		WorkerCount: 4,
		BatchSize:   10,
		Executor:    "goroutines",
		Metadata:    map[string]string{"host": "ci"},
	}
}

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	ctx := context.Background()

	t.Run(name+"/Save_and_Get", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		want := run("r1", "embed", 0)
		want.Resumed = 40
		require.NoError(t, store.Save(ctx, want))

		got, err := store.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Name, got.Name)
		assert.True(t, want.StartedAt.Equal(got.StartedAt))
		assert.Equal(t, want.Duration, got.Duration)
		assert.Equal(t, 100, got.TotalItems)
		assert.Equal(t, 98, got.Succeeded)
		assert.Equal(t, 2, got.Failed)
		assert.Equal(t, 40, got.Resumed)
		assert.Equal(t, 4, got.WorkerCount)
		assert.Equal(t, 10, got.BatchSize)
		assert.Equal(t, "goroutines", got.Executor)
		assert.Equal(t, map[string]string{"host": "ci"}, got.Metadata)
	})

	t.Run(name+"/Get_NotFound", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		_, err := store.Get(ctx, "nope")
		assert.ErrorIs(t, err, history.ErrRunNotFound)
	})

	t.Run(name+"/Save_Overwrite", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		r := run("r1", "embed", 0)
		require.NoError(t, store.Save(ctx, r))
		r.Failed = 0
		r.Succeeded = 100
		require.NoError(t, store.Save(ctx, r))

		got, err := store.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, 100, got.Succeeded)

		all, err := store.List(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run(name+"/Save_MissingID", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		assert.ErrorIs(t, store.Save(ctx, &history.Run{Name: "x"}), history.ErrMissingID)
	})

	t.Run(name+"/List_NewestFirst", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, run("old", "embed", 0)))
		require.NoError(t, store.Save(ctx, run("new", "embed", 2*time.Hour)))
		require.NoError(t, store.Save(ctx, run("mid", "embed", time.Hour)))

		runs, err := store.List(ctx, nil)
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, "new", runs[0].ID)
		assert.Equal(t, "mid", runs[1].ID)
		assert.Equal(t, "old", runs[2].ID)
	})

	t.Run(name+"/List_Empty", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		runs, err := store.List(ctx, &history.ListFilter{Name: "nothing"})
		require.NoError(t, err)
		assert.Empty(t, runs)
	})

	t.Run(name+"/List_Filters", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		a := run("a", "embed", 0)
		b := run("b", "embed", time.Hour)
		b.Executor = "processes"
		c := run("c", "tokenize", 2*time.Hour)
		for _, r := range []*history.Run{a, b, c} {
			require.NoError(t, store.Save(ctx, r))
		}

		byName, err := store.List(ctx, &history.ListFilter{Name: "embed"})
		require.NoError(t, err)
		assert.Len(t, byName, 2)

		byExecutor, err := store.List(ctx, &history.ListFilter{Executor: "processes"})
		require.NoError(t, err)
		require.Len(t, byExecutor, 1)
		assert.Equal(t, "b", byExecutor[0].ID)

		since, err := store.List(ctx, &history.ListFilter{Since: base.Add(30 * time.Minute)})
		require.NoError(t, err)
		require.Len(t, since, 2)
		assert.Equal(t, "c", since[0].ID)
	})

	t.Run(name+"/List_Pagination", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		for i, id := range []string{"r0", "r1", "r2", "r3", "r4"} {
			require.NoError(t, store.Save(ctx, run(id, "embed", time.Duration(i)*time.Minute)))
		}

		page, err := store.List(ctx, &history.ListFilter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "r4", page[0].ID)
		assert.Equal(t, "r3", page[1].ID)

		page, err = store.List(ctx, &history.ListFilter{Limit: 2, Offset: 2})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "r2", page[0].ID)

		page, err = store.List(ctx, &history.ListFilter{Offset: 4})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "r0", page[0].ID)

		page, err = store.List(ctx, &history.ListFilter{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, page)
	})

	t.Run(name+"/Delete", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Save(ctx, run("r1", "embed", 0)))
		require.NoError(t, store.Delete(ctx, "r1"))

		_, err := store.Get(ctx, "r1")
		assert.ErrorIs(t, err, history.ErrRunNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "r1"), history.ErrRunNotFound)
	})

	t.Run(name+"/Closed", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Close())
		require.NoError(t, store.Close())

		assert.ErrorIs(t, store.Save(ctx, run("r1", "embed", 0)), history.ErrStoreClosed)
		_, err := store.Get(ctx, "r1")
		assert.ErrorIs(t, err, history.ErrStoreClosed)
		_, err = store.List(ctx, nil)
		assert.ErrorIs(t, err, history.ErrStoreClosed)
	})

	t.Run(name+"/Concurrent", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		var wg sync.WaitGroup
		for i := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r := history.NewRun("concurrent")
				r.StartedAt = base.Add(time.Duration(i) * time.Second)
				assert.NoError(t, store.Save(ctx, r))
			}()
		}
		wg.Wait()

		runs, err := store.List(ctx, &history.ListFilter{Name: "concurrent"})
		require.NoError(t, err)
		assert.Len(t, runs, 10)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContractTest(t, "MemoryStore", func(t *testing.T) history.Store {
		return history.NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	storeContractTest(t, "SQLiteStore", func(t *testing.T) history.Store {
		store, err := history.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		return store
	})
}

func TestSQLiteStore_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := history.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, run("r1", "embed", 0)))
	require.NoError(t, store.Close())

	reopened, err := history.NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "embed", got.Name)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	store, err := history.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(context.Background(), run("r1", "embed", 0)))
	_, err = store.Get(context.Background(), "r1")
	assert.NoError(t, err)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore()

	r := run("r1", "embed", 0)
	require.NoError(t, store.Save(ctx, r))
	r.Metadata["host"] = "changed"

	got, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "ci", got.Metadata["host"])
}
