package core

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnreadable is matched by every SourceError.
	ErrSourceUnreadable = errors.New("source unreadable")

	// ErrNoKeyColumn is returned when the roster declares no columns at all.
	ErrNoKeyColumn = errors.New("no key column in roster")

	// ErrLoadMismatch is returned when the persisted fact count does not
	// match the number of fact rows produced.
	ErrLoadMismatch = errors.New("fact count mismatch")
)

// SourceError reports that one input dataset could not be produced.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source unreadable: %s: %v", e.Source, e.Err)
}

// Unwrap exposes both ErrSourceUnreadable and the underlying cause.
func (e *SourceError) Unwrap() []error {
	return []error{ErrSourceUnreadable, e.Err}
}
