package cache

import (
	"context"
	"time"

	"github.com/bassista/manifest_alert/internal/logger"
)

// StartSweeper runs a goroutine that purges expired entries every interval.
// A non-positive interval uses the manager's configured one.
// Returns a channel that is closed when the sweeper has stopped.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = m.interval
	}
	done := make(chan struct{})
	logger.WithComponent("sweep").Debugf("starting cache sweeper with interval: %v", interval)
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.WithComponent("sweep").Info("cache sweeper stopped")
				return
			case <-ticker.C:
				n := m.Sweep()
				logger.WithComponent("sweep").Tracef("sweep tick removed %d entries", n)
			}
		}
	}()
	return done
}
