package store

import "errors"

var (
	// ErrNotFound is returned when a key is not in the collection's index.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned by Create when the key is already indexed.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrConflict is returned when Mutate or Patch runs out of retries
	// against concurrent writers.
	ErrConflict = errors.New("write conflict")
	// ErrEmptyKey is returned when a record yields an empty key.
	ErrEmptyKey = errors.New("record key is empty")
)
