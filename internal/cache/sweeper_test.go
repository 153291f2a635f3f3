package cache

import (
	"context"
	"testing"
	"time"
)

func TestStartSweeper_PurgesAndStops(t *testing.T) {
	m, clock := newTestManager()
	l := &countingLoader{value: "v"}
	if _, err := m.GetOrLoad(context.Background(), TierFast, "mute", l.Load, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := m.StartSweeper(ctx, 10*time.Millisecond)

	deadline := time.After(time.Second)
	for len(m.Info()) > 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper did not purge expired entry")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
