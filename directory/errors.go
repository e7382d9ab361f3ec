// Package directory enforces who may see and change users and events on
// top of the record store.
package directory

import (
	"errors"
	"fmt"

	"eventide/store"
)

var (
	// ErrForbidden is returned when an authenticated user acts on a record
	// they do not own.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput is returned for missing or malformed fields. It is
	// always wrapped with the offending field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUserNotFound and ErrEventNotFound wrap store.ErrNotFound. An event
	// the caller may not see is reported as ErrEventNotFound as well.
	ErrUserNotFound  = fmt.Errorf("user %w", store.ErrNotFound)
	ErrEventNotFound = fmt.Errorf("event %w", store.ErrNotFound)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// notFound maps a store miss to the directory's own error and passes
// everything else through.
func notFound(err, as error) error {
	if errors.Is(err, store.ErrNotFound) {
		return as
	}
	return err
}
