// Package store provides a generic keyed record store.
//
// Records of one type live in a named collection. Each collection keeps an
// index of live keys so it can be listed without scanning unrelated storage.
// Store[T] handles encoding and the read-transform-write retry loop; the
// byte-level persistence is delegated to a Backend (memory, Redis, MongoDB or
// SQL).
package store

import "context"

// Collection names the storage for one record type. Entity prefixes the
// stored records, Index names the set of live keys.
type Collection struct {
	Entity string
	Index  string
}

// Versioned is an encoded record together with its write version. Versions
// come from a per-collection counter that never goes back, so a key that is
// deleted and created again never repeats a version an earlier reader saw.
type Versioned struct {
	Data    []byte
	Version int64
}

// Backend is the byte-level persistence contract every store driver
// implements. A key counts as present only while it is in the collection's
// index; backends must report ErrNotFound for unindexed keys even when stale
// record data survives.
type Backend interface {
	// Exists reports whether key is indexed.
	Exists(ctx context.Context, c Collection, key string) (bool, error)

	// Get returns the record and its current version, or ErrNotFound.
	Get(ctx context.Context, c Collection, key string) (Versioned, error)

	// Insert stores a new record at a fresh version and appends key to the
	// index.
	// It returns ErrAlreadyExists when key is already indexed.
	Insert(ctx context.Context, c Collection, key string, data []byte) error

	// CompareAndSwap replaces the record only if its version still equals
	// version, giving it a fresh version. It reports false, with a nil error, when another writer got
	// there first, and ErrNotFound when the key has been removed.
	CompareAndSwap(ctx context.Context, c Collection, key string, version int64, data []byte) (bool, error)

	// Delete removes the record and its index entry, reporting whether the
	// key was indexed beforehand.
	Delete(ctx context.Context, c Collection, key string) (bool, error)

	// List returns every indexed record in index insertion order.
	List(ctx context.Context, c Collection) ([][]byte, error)

	// Count returns the number of indexed keys.
	Count(ctx context.Context, c Collection) (int64, error)
}
