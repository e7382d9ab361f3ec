package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags"`
}

var widgetSchema = Schema[widget]{
	Entity: "test-widget",
	Index:  "test-widgets",
	Key:    func(w widget) string { return w.ID },
}

func newMemory(t *testing.T) Backend {
	t.Helper()
	return NewMemoryBackend()
}

func newRedis(t *testing.T) Backend {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisBackend(rdb, "test:")
}

func newSQLite(t *testing.T) Backend {
	t.Helper()
	b, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

var backends = map[string]func(*testing.T) Backend{
	"memory": newMemory,
	"redis":  newRedis,
	"sqlite": newSQLite,
}

func TestBackends(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			runConformance(t, open)
		})
	}
}

// runConformance exercises the record store contract against one backend.
// Integration tests reuse it for MongoDB and Postgres.
func runConformance(t *testing.T, open func(*testing.T) Backend) {
	ctx := context.Background()

	t.Run("CreateThenGet", func(t *testing.T) {
		s := New(open(t), widgetSchema)

		require.NoError(t, s.Create(ctx, widget{ID: "w1", Name: "one", Tags: []string{"a"}}))

		ok, err := s.Exists(ctx, "w1")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := s.Get(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, widget{ID: "w1", Name: "one", Tags: []string{"a"}}, got)
	})

	t.Run("ExistsFalseForAbsentKey", func(t *testing.T) {
		s := New(open(t), widgetSchema)

		ok, err := s.Exists(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("CreateDuplicateFails", func(t *testing.T) {
		s := New(open(t), widgetSchema)

		require.NoError(t, s.Create(ctx, widget{ID: "w1"}))
		err := s.Create(ctx, widget{ID: "w1", Name: "again"})
		assert.ErrorIs(t, err, ErrAlreadyExists)

		got, err := s.Get(ctx, "w1")
		require.NoError(t, err)
		assert.Empty(t, got.Name, "duplicate create must not overwrite")
	})

	t.Run("CreateEmptyKeyFails", func(t *testing.T) {
		s := New(open(t), widgetSchema)
		assert.ErrorIs(t, s.Create(ctx, widget{}), ErrEmptyKey)
	})

	t.Run("GetAbsentFails", func(t *testing.T) {
		s := New(open(t), widgetSchema)

		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("PatchMergesShallow", func(t *testing.T) {
		s := New(open(t), widgetSchema)
		require.NoError(t, s.Create(ctx, widget{ID: "w1", Name: "one", Count: 3, Tags: []string{"a", "b"}}))

		got, err := s.Patch(ctx, "w1", map[string]any{"name": "uno", "tags": []string{"z"}})
		require.NoError(t, err)
		assert.Equal(t, widget{ID: "w1", Name: "uno", Count: 3, Tags: []string{"z"}}, got)

		stored, err := s.Get(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, got, stored)
	})

	t.Run("PatchAbsentFails", func(t *testing.T) {
		s := New(open(t), widgetSchema)

		_, err := s.Patch(ctx, "missing", map[string]any{"name": "x"})
		assert.ErrorIs(t, err, ErrNotFound)

		ok, err := s.Exists(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok, "patch must not create records")
	})

	t.Run("PatchRejectsMistypedField", func(t *testing.T) {
		s := New(open(t), widgetSchema)
		require.NoError(t, s.Create(ctx, widget{ID: "w1", Count: 1}))

		_, err := s.Patch(ctx, "w1", map[string]any{"count": "lots"})
		require.Error(t, err)

		got, err := s.Get(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Count)
	})

	t.Run("MutateAppliesTransform", func(t *testing.T) {
		s := New(open(t), widgetSchema)
		require.NoError(t, s.Create(ctx, widget{ID: "w1", Count: 1}))

		got, err := s.Mutate(ctx, "w1", func(w widget) (widget, error) {
			w.Count *= 10
			return w, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 10, got.Count)

		stored, err := s.Get(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, 10, stored.Count)
	})

	t.Run("MutateTransformErrorLeavesRecord", func(t *testing.T) {
		s := New(open(t), widgetSchema)
		require.NoError(t, s.Create(ctx, widget{ID: "w1", Count: 1}))

		boom := errors.New("boom")
		_, err := s.Mutate(ctx, "w1", func(w widget) (widget, error) {
			w.Count = 99
			return w, boom
		})
		assert.ErrorIs(t, err, boom)

		stored, err := s.Get(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, 1, stored.Count)
	})

	t.Run("MutateAbsentFails", func(t *testing.T) {
		s := New(open(t), widgetSchema)

		_, err := s.Mutate(ctx, "missing", func(w widget) (widget, error) { return w, nil })
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ConcurrentMutateLosesNothing", func(t *testing.T) {
		s := New(open(t), widgetSchema, WithMaxRetries(1000))
		require.NoError(t, s.Create(ctx, widget{ID: "w1"}))

		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.Mutate(ctx, "w1", func(w widget) (widget, error) {
					w.Count++
					w.Tags = append(append([]string(nil), w.Tags...), fmt.Sprintf("t%d", i))
					return w, nil
				})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := s.Get(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, writers, got.Count)
		assert.Len(t, got.Tags, writers)
	})

	t.Run("RecreatedKeyGetsFreshVersion", func(t *testing.T) {
		b := open(t)
		coll := Collection{Entity: widgetSchema.Entity, Index: widgetSchema.Index}

		require.NoError(t, b.Insert(ctx, coll, "k", []byte("old")))
		before, err := b.Get(ctx, coll, "k")
		require.NoError(t, err)

		_, err = b.Delete(ctx, coll, "k")
		require.NoError(t, err)
		require.NoError(t, b.Insert(ctx, coll, "k", []byte("fresh")))

		after, err := b.Get(ctx, coll, "k")
		require.NoError(t, err)
		assert.NotEqual(t, before.Version, after.Version)

		swapped, err := b.CompareAndSwap(ctx, coll, "k", before.Version, []byte("stale"))
		require.NoError(t, err)
		assert.False(t, swapped, "a version read before the delete must not match")

		got, err := b.Get(ctx, coll, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("fresh"), got.Data)
	})

	t.Run("MutateAcrossDeleteAndRecreate", func(t *testing.T) {
		s := New(open(t), widgetSchema)
		require.NoError(t, s.Create(ctx, widget{ID: "k", Name: "old"}))

		calls := 0
		got, err := s.Mutate(ctx, "k", func(w widget) (widget, error) {
			calls++
			if calls == 1 {
				_, err := s.Delete(ctx, "k")
				require.NoError(t, err)
				require.NoError(t, s.Create(ctx, widget{ID: "k", Name: "fresh"}))
			}
			w.Name += "+mutated"
			return w, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.Equal(t, "fresh+mutated", got.Name)

		stored, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "fresh+mutated", stored.Name)
	})

	t.Run("VersionsNeverRepeat", func(t *testing.T) {
		b := open(t)
		coll := Collection{Entity: widgetSchema.Entity, Index: widgetSchema.Index}

		seen := map[int64]bool{}
		for i := 0; i < 3; i++ {
			require.NoError(t, b.Insert(ctx, coll, "k", []byte("v")))
			cur, err := b.Get(ctx, coll, "k")
			require.NoError(t, err)
			assert.False(t, seen[cur.Version], "version %d reused", cur.Version)
			seen[cur.Version] = true

			ok, err := b.CompareAndSwap(ctx, coll, "k", cur.Version, []byte("w"))
			require.NoError(t, err)
			require.True(t, ok)
			cur, err = b.Get(ctx, coll, "k")
			require.NoError(t, err)
			assert.False(t, seen[cur.Version], "version %d reused", cur.Version)
			seen[cur.Version] = true

			_, err = b.Delete(ctx, coll, "k")
			require.NoError(t, err)
		}
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		s := New(open(t), widgetSchema)
		require.NoError(t, s.Create(ctx, widget{ID: "w1"}))

		existed, err := s.Delete(ctx, "w1")
		require.NoError(t, err)
		assert.True(t, existed)

		existed, err = s.Delete(ctx, "w1")
		require.NoError(t, err)
		assert.False(t, existed)

		_, err = s.Get(ctx, "w1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListInInsertionOrder", func(t *testing.T) {
		s := New(open(t), widgetSchema)
		for _, id := range []string{"c", "a", "b"} {
			require.NoError(t, s.Create(ctx, widget{ID: id}))
		}
		_, err := s.Delete(ctx, "a")
		require.NoError(t, err)
		require.NoError(t, s.Create(ctx, widget{ID: "d"}))

		got, err := s.List(ctx)
		require.NoError(t, err)
		ids := make([]string, len(got))
		for i, w := range got {
			ids[i] = w.ID
		}
		assert.Equal(t, []string{"c", "b", "d"}, ids)
	})

	t.Run("CollectionsAreIsolated", func(t *testing.T) {
		b := open(t)
		one := New(b, widgetSchema)
		other := New(b, Schema[widget]{Entity: "other-widget", Index: "other-widgets", Key: widgetSchema.Key})

		require.NoError(t, one.Create(ctx, widget{ID: "w1"}))

		ok, err := other.Exists(ctx, "w1")
		require.NoError(t, err)
		assert.False(t, ok)

		list, err := other.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("EnsureSeedOnlyWhenEmpty", func(t *testing.T) {
		s := New(open(t), widgetSchema)
		seed := []widget{{ID: "s1"}, {ID: "s2"}}

		n, err := s.EnsureSeed(ctx, seed)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.EnsureSeed(ctx, append(seed, widget{ID: "s3"}))
		require.NoError(t, err)
		assert.Zero(t, n)

		list, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("EnsureSeedRace", func(t *testing.T) {
		s := New(open(t), widgetSchema)
		seed := []widget{{ID: "s1"}, {ID: "s2"}, {ID: "s3"}}

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.EnsureSeed(ctx, seed)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		list, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 3)
	})
}

// conflictBackend never lets a swap succeed.
type conflictBackend struct {
	*MemoryBackend
	swaps int
}

func (c *conflictBackend) CompareAndSwap(context.Context, Collection, string, int64, []byte) (bool, error) {
	c.swaps++
	return false, nil
}

func TestMutateGivesUpAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	b := &conflictBackend{MemoryBackend: NewMemoryBackend()}
	s := New[widget](b, widgetSchema, WithMaxRetries(3), WithBackoff(0))
	require.NoError(t, s.Create(ctx, widget{ID: "w1", Count: 1}))

	calls := 0
	_, err := s.Mutate(ctx, "w1", func(w widget) (widget, error) {
		calls++
		w.Count++
		return w, nil
	})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 3, calls, "transform re-applied once per attempt")
	assert.Equal(t, 3, b.swaps)

	got, err := s.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Count)
}

func TestMutateDefaultRetryBudget(t *testing.T) {
	ctx := context.Background()
	b := &conflictBackend{MemoryBackend: NewMemoryBackend()}
	s := New[widget](b, widgetSchema, WithBackoff(0))
	require.NoError(t, s.Create(ctx, widget{ID: "w1"}))

	_, err := s.Mutate(ctx, "w1", func(w widget) (widget, error) { return w, nil })
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, defaultMaxRetries, b.swaps)
	assert.Equal(t, 8, b.swaps)
}

func TestMutateStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &conflictBackend{MemoryBackend: NewMemoryBackend()}
	s := New[widget](b, widgetSchema, WithMaxRetries(50))
	require.NoError(t, s.Create(ctx, widget{ID: "w1"}))

	cancel()
	_, err := s.Mutate(ctx, "w1", func(w widget) (widget, error) { return w, nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, b.swaps)
}
