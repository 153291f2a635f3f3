// Package errs holds the error taxonomy shared by the cache, network and
// repository layers. Each type also matches a containerd/errdefs category so
// the HTTP edge can classify failures without knowing the concrete types.
package errs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/containerd/errdefs"
)

// NetworkAccessError reports that the shared location was unreachable,
// timed out, or failed an I/O call.
type NetworkAccessError struct {
	Path string
	Op   string
	Err  error
}

func (e *NetworkAccessError) Error() string {
	msg := "network access failed"
	if e.Op != "" {
		msg = e.Op + " failed"
	}
	if e.Path != "" {
		msg += " for " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NetworkAccessError) Unwrap() []error {
	if e.Err == nil {
		return []error{errdefs.ErrUnavailable}
	}
	return []error{errdefs.ErrUnavailable, e.Err}
}

// DataValidationError reports a document or record that is present but
// malformed. It is never coerced into a default.
type DataValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *DataValidationError) Error() string {
	msg := "invalid data"
	if e.Field != "" {
		msg += " in field " + e.Field
	}
	if e.Value != "" {
		msg += fmt.Sprintf(" (value %q)", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{errdefs.ErrInvalidArgument}
	}
	return []error{errdefs.ErrInvalidArgument, e.Err}
}

// TimeoutError is produced by the guard when an operation misses its deadline.
type TimeoutError struct {
	Label   string
	Timeout time.Duration
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s (limit %s)", e.Label, e.Elapsed.Round(time.Millisecond), e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// Network builds a NetworkAccessError, keeping an existing one intact.
func Network(op, path string, err error) error {
	var nae *NetworkAccessError
	if errors.As(err, &nae) && nae.Path == path {
		return err
	}
	return &NetworkAccessError{Path: path, Op: op, Err: err}
}

// Validation builds a DataValidationError for field.
func Validation(field, value string, err error) error {
	return &DataValidationError{Field: field, Value: value, Err: err}
}

func IsNetwork(err error) bool {
	var nae *NetworkAccessError
	return errors.As(err, &nae)
}

func IsValidation(err error) bool {
	var dve *DataValidationError
	return errors.As(err, &dve)
}

func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
