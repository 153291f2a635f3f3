//go:build linux || darwin

package network

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/bassista/manifest_alert/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A FIFO with no writer blocks open(2) indefinitely, which behaves like a
// hung network mount.
func TestLoad_HungFileTimesOut(t *testing.T) {
	dir := t.TempDir()
	fifo := filepath.Join(dir, "mute_status.json")
	require.NoError(t, syscall.Mkfifo(fifo, 0o644))
	t.Cleanup(func() {
		// release the abandoned reader
		if f, err := os.OpenFile(fifo, os.O_WRONLY|syscall.O_NONBLOCK, 0); err == nil {
			f.Close()
		}
	})

	a := newTestAccessor(t, dir)
	start := time.Now()
	var got map[string]any
	err := a.LoadDocument(context.Background(), "mute_status.json", &got, 200*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errs.IsNetwork(err))
	assert.True(t, errs.IsTimeout(err))
	assert.Less(t, elapsed, 600*time.Millisecond)

	s := a.Stats()
	assert.EqualValues(t, 1, s.Timeouts)
	assert.EqualValues(t, 0, s.Retries, "timeouts are not retried")
}
