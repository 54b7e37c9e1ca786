package types

import (
	"errors"
	"fmt"
)

// FetchError is a failed HTTP fetch. Transient errors were retried until the
// attempt limit before being returned.
type FetchError struct {
	Stream    string
	URL       string
	Status    int
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	kind := "terminal"
	if e.Transient {
		kind = "transient"
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s fetch of %s failed with status %d: %s", kind, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s fetch of %s failed: %s", kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ContextError means a parent record lacks data a child stream needs to build its request.
type ContextError struct {
	Stream string
	Field  string
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("stream[%s]: missing value for placeholder [%s]", e.Stream, e.Field)
}

// TransformError is an ambiguous or malformed payload shape.
type TransformError struct {
	Stream string
	Path   string
	Err    error
}

func (e *TransformError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("stream[%s]: transform failed: %s", e.Stream, e.Err)
	}
	return fmt.Sprintf("stream[%s]: transform failed at [%s]: %s", e.Stream, e.Path, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// StateError is a failure to persist a checkpoint.
type StateError struct {
	Path string
	Err  error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("failed to persist state to %s: %s", e.Path, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err carries a transient FetchError.
func IsTransient(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr) && fetchErr.Transient
}
