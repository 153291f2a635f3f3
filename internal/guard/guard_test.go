package guard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bassista/manifest_alert/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ReturnsResult(t *testing.T) {
	v, err := Run(context.Background(), time.Second, "quick", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRun_PropagatesOperationError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Run(context.Background(), time.Second, "failing", func(ctx context.Context) (string, error) {
		return "", boom
	})
	assert.Same(t, boom, err)
	assert.False(t, errs.IsTimeout(err))
}

func TestRun_BlockedOperationTimesOut(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	start := time.Now()
	_, err := Run(context.Background(), 200*time.Millisecond, "hung mount", func(ctx context.Context) (int, error) {
		<-block // ignores ctx, like a stuck filesystem call
		return 1, nil
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	var te *errs.TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "hung mount", te.Label)
	assert.Equal(t, 200*time.Millisecond, te.Timeout)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, 400*time.Millisecond, "caller must be released near the deadline")
}

func TestRun_AbandonedOperationMayStillComplete(t *testing.T) {
	var completed atomic.Bool
	release := make(chan struct{})

	_, err := Run(context.Background(), 50*time.Millisecond, "slow write", func(ctx context.Context) (int, error) {
		<-release
		completed.Store(true)
		return 1, nil
	})
	require.True(t, errs.IsTimeout(err))
	assert.False(t, completed.Load())

	close(release)
	assert.Eventually(t, completed.Load, time.Second, 5*time.Millisecond)
}

func TestRun_OperationSeesDeadline(t *testing.T) {
	_, err := Run(context.Background(), 50*time.Millisecond, "ctx aware", func(ctx context.Context) (int, error) {
		_, ok := ctx.Deadline()
		if !ok {
			return 0, errors.New("no deadline")
		}
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.True(t, errs.IsTimeout(err))
}

func TestRun_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Run(ctx, 5*time.Second, "cancelled", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_RecoversPanic(t *testing.T) {
	_, err := Run(context.Background(), time.Second, "panicky", func(ctx context.Context) (int, error) {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRun_RejectsNonPositiveTimeout(t *testing.T) {
	called := false
	_, err := Run(context.Background(), 0, "zero", func(ctx context.Context) (int, error) {
		called = true
		return 0, nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestDo(t *testing.T) {
	assert.NoError(t, Do(context.Background(), time.Second, "noop", func(ctx context.Context) error { return nil }))

	boom := errors.New("boom")
	assert.ErrorIs(t, Do(context.Background(), time.Second, "err", func(ctx context.Context) error { return boom }), boom)
}
