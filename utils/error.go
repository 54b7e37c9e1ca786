package utils

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ErrExecSequential executes all functions in order and accumulates every failure.
func ErrExecSequential(functions ...func() error) error {
	var multErr error
	for _, one := range functions {
		if err := one(); err != nil {
			multErr = multierror.Append(multErr, err)
		}
	}
	return multErr
}

// ErrExecFormat formats the error returned from a function according to the provided format string.
func ErrExecFormat(format string, function func() error) func() error {
	return func() error {
		if err := function(); err != nil {
			return fmt.Errorf(format, err)
		}
		return nil
	}
}

// IsCancelled reports whether err comes from a cancelled or expired context.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
