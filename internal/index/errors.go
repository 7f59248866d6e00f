package index

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record matches a lookup.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguous is returned when more than one record matches a lookup.
	ErrAmbiguous = errors.New("ambiguous match")
)

// NotFoundError wraps ErrNotFound with the requested full name.
type NotFoundError struct {
	FullName string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("No gems found matching [%s]", e.FullName)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AmbiguousError wraps ErrAmbiguous with the requested full name and the
// number of records that matched it.
type AmbiguousError struct {
	FullName string
	Count    int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("Multiple gems found matching [%s]", e.FullName)
}

func (e *AmbiguousError) Unwrap() error {
	return ErrAmbiguous
}
