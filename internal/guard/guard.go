// Package guard runs blocking operations under a hard wall-clock deadline.
//
// A hung network mount cannot always be interrupted, so Run releases the
// caller when the deadline passes and abandons the worker goroutine. The
// worker receives a context carrying the same deadline, so operations that
// honour ctx stop early; the rest may finish later and their result is
// dropped. Callers must treat a timed-out operation as possibly completed.
package guard

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/bassista/manifest_alert/internal/errs"
	"github.com/bassista/manifest_alert/internal/logger"
)

// Op is the unit of work run under the guard.
type Op[T any] func(ctx context.Context) (T, error)

type outcome[T any] struct {
	val T
	err error
}

// Run executes op and waits at most timeout for it.
// It returns the op result, the op's own error unchanged, an *errs.TimeoutError
// when the deadline elapses first, or ctx.Err() if the caller's context ends.
func Run[T any](ctx context.Context, timeout time.Duration, label string, op Op[T]) (T, error) {
	var zero T
	if timeout <= 0 {
		return zero, fmt.Errorf("guard %s: timeout must be positive, got %s", label, timeout)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	opCtx, cancel := context.WithTimeout(ctx, timeout)

	// Buffered so an abandoned worker can always deliver and exit.
	done := make(chan outcome[T], 1)
	go func() {
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				logger.WithComponent("guard").WithField("label", label).
					Errorf("operation panicked: %v\n%s", rec, debug.Stack())
				done <- outcome[T]{err: fmt.Errorf("%s panicked: %v", label, rec)}
			}
		}()
		v, err := op(opCtx)
		done <- outcome[T]{val: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		// An op honouring opCtx may return its own deadline error a hair
		// before the timer fires; report that as a timeout too.
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil && opCtx.Err() != nil {
			return zero, timedOut(label, timeout, start)
		}
		logger.WithComponent("guard").WithField("label", label).WithFields(logger.Since(start)).
			Trace("operation completed")
		return res.val, res.err
	case <-timer.C:
		return zero, timedOut(label, timeout, start)
	case <-ctx.Done():
		logger.WithComponent("guard").WithField("label", label).WithFields(logger.Since(start)).
			Debugf("caller context done: %v", ctx.Err())
		return zero, ctx.Err()
	}
}

// Do is Run for operations without a result value.
func Do(ctx context.Context, timeout time.Duration, label string, op func(ctx context.Context) error) error {
	_, err := Run(ctx, timeout, label, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func timedOut(label string, timeout time.Duration, start time.Time) error {
	elapsed := time.Since(start)
	logger.WithComponent("guard").WithField("label", label).WithFields(logger.Since(start)).
		Warnf("operation abandoned after %s timeout", timeout)
	return &errs.TimeoutError{Label: label, Timeout: timeout, Elapsed: elapsed}
}
