package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"eventide/codec"
)

const (
	defaultMaxRetries = 8
	defaultBackoff    = 2 * time.Millisecond
)

// Schema describes one collection of T.
type Schema[T any] struct {
	// Entity and Index name the collection, see Collection.
	Entity string
	Index  string
	// Key extracts the record key from a record; used by Create and EnsureSeed.
	Key func(T) string
}

type settings struct {
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*settings)

// WithMaxRetries bounds the number of read-transform-write attempts made by
// Mutate and Patch before they give up with ErrConflict.
func WithMaxRetries(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithBackoff sets the base delay between conflicting attempts. Each retry
// sleeps a random duration up to base*attempt. Zero disables the sleep.
func WithBackoff(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.backoff = d
		}
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store is a typed handle over one collection of a Backend. It is safe for
// concurrent use; all shared state lives in the backend.
type Store[T any] struct {
	backend    Backend
	coll       Collection
	key        func(T) string
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// New binds schema to backend.
func New[T any](backend Backend, schema Schema[T], opts ...Option) *Store[T] {
	cfg := settings{
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Store[T]{
		backend:    backend,
		coll:       Collection{Entity: schema.Entity, Index: schema.Index},
		key:        schema.Key,
		maxRetries: cfg.maxRetries,
		backoff:    cfg.backoff,
		logger:     cfg.logger.With(slog.String("collection", schema.Entity)),
	}
}

// Exists reports whether key is indexed. An absent key is not an error.
func (s *Store[T]) Exists(ctx context.Context, key string) (bool, error) {
	return s.backend.Exists(ctx, s.coll, key)
}

// Create stores rec under its key. Creation is not idempotent: a key that is
// already indexed fails with ErrAlreadyExists.
func (s *Store[T]) Create(ctx context.Context, rec T) error {
	key := s.key(rec)
	if key == "" {
		return ErrEmptyKey
	}

	data, err := codec.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", s.coll.Entity, key, err)
	}

	return s.backend.Insert(ctx, s.coll, key, data)
}

// Get returns the record stored under key, or ErrNotFound.
func (s *Store[T]) Get(ctx context.Context, key string) (T, error) {
	var rec T

	v, err := s.backend.Get(ctx, s.coll, key)
	if err != nil {
		return rec, err
	}

	return s.decode(key, v.Data)
}

// Patch shallow-merges fields into the stored record. Field names are the
// record's json tag names; each supplied field replaces its prior value and
// unsupplied fields are untouched. Fails with ErrNotFound if key is absent.
func (s *Store[T]) Patch(ctx context.Context, key string, fields map[string]any) (T, error) {
	var rec T

	data, err := s.update(ctx, key, func(cur []byte) ([]byte, error) {
		merged, err := codec.Merge(cur, fields)
		if err != nil {
			return nil, fmt.Errorf("patch %s/%s: %w", s.coll.Entity, key, err)
		}

		// Round-trip through T so unknown field names are dropped and
		// mistyped values are rejected before anything is written.
		next, err := s.decode(key, merged)
		if err != nil {
			return nil, err
		}

		return codec.Marshal(next)
	})
	if err != nil {
		return rec, err
	}

	return s.decode(key, data)
}

// Mutate reads the record under key, applies fn and writes the result back.
// If another writer changed the record between the read and the write, the
// record is re-read and fn is applied again, so fn must be free of side
// effects. An error from fn aborts the mutation without writing.
func (s *Store[T]) Mutate(ctx context.Context, key string, fn func(T) (T, error)) (T, error) {
	var rec T

	data, err := s.update(ctx, key, func(cur []byte) ([]byte, error) {
		prev, err := s.decode(key, cur)
		if err != nil {
			return nil, err
		}

		next, err := fn(prev)
		if err != nil {
			return nil, err
		}

		return codec.Marshal(next)
	})
	if err != nil {
		return rec, err
	}

	return s.decode(key, data)
}

// Delete removes key and reports whether it existed. Deleting an absent key
// is not an error.
func (s *Store[T]) Delete(ctx context.Context, key string) (bool, error) {
	return s.backend.Delete(ctx, s.coll, key)
}

// List returns every indexed record in index insertion order.
func (s *Store[T]) List(ctx context.Context) ([]T, error) {
	raws, err := s.backend.List(ctx, s.coll)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var rec T
		if err := codec.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", s.coll.Entity, err)
		}
		out = append(out, rec)
	}

	return out, nil
}

// EnsureSeed inserts seed when the collection index is empty and returns
// the number of records it inserted. Once any record exists it does
// nothing. Concurrent callers may both see an empty index; the loser's
// inserts fail with ErrAlreadyExists, which is ignored, so nothing is
// inserted twice.
func (s *Store[T]) EnsureSeed(ctx context.Context, seed []T) (int, error) {
	n, err := s.backend.Count(ctx, s.coll)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", s.coll.Index, err)
	}
	if n > 0 {
		return 0, nil
	}

	inserted := 0
	for _, rec := range seed {
		err := s.Create(ctx, rec)
		if errors.Is(err, ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return inserted, fmt.Errorf("seed %s: %w", s.coll.Entity, err)
		}
		inserted++
	}

	return inserted, nil
}

// update runs the optimistic read-transform-write loop shared by Patch and
// Mutate. It returns the bytes that were written.
func (s *Store[T]) update(ctx context.Context, key string, apply func([]byte) ([]byte, error)) ([]byte, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		cur, err := s.backend.Get(ctx, s.coll, key)
		if err != nil {
			return nil, err
		}

		next, err := apply(cur.Data)
		if err != nil {
			return nil, err
		}

		swapped, err := s.backend.CompareAndSwap(ctx, s.coll, key, cur.Version, next)
		if err != nil {
			return nil, err
		}
		if swapped {
			return next, nil
		}

		s.logger.Debug("write conflict, retrying",
			slog.String("key", key),
			slog.Int("attempt", attempt),
			slog.Int64("version", cur.Version),
		)

		if err := s.wait(ctx, attempt); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %s/%s after %d attempts", ErrConflict, s.coll.Entity, key, s.maxRetries)
}

func (s *Store[T]) wait(ctx context.Context, attempt int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.backoff <= 0 {
		return nil
	}

	d := time.Duration(rand.Int64N(int64(s.backoff)*int64(attempt) + 1))
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Store[T]) decode(key string, data []byte) (T, error) {
	var rec T
	if err := codec.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode %s/%s: %w", s.coll.Entity, key, err)
	}
	return rec, nil
}
