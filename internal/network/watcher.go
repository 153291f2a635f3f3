package network

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bassista/manifest_alert/internal/guard"
	"github.com/bassista/manifest_alert/internal/logger"
	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 200 * time.Millisecond

// Watcher reports changes to documents in the shared directory.
// Network shares often do not deliver change events, so this only shortens
// the staleness window; cache TTLs remain the visibility bound.
type Watcher struct {
	dir      string
	debounce time.Duration
	timeout  time.Duration
	onChange func(filename string)
}

// addWatch registers dir with fw. A hung mount can block it indefinitely.
var addWatch = func(fw *fsnotify.Watcher, dir string) error { return fw.Add(dir) }

// NewWatcher creates a watcher for dir calling onChange with the base name of
// each changed document after debounce. timeout bounds registering the
// directory; zero uses DefaultTimeout.
func NewWatcher(dir string, debounce, timeout time.Duration, onChange func(filename string)) (*Watcher, error) {
	if dir == "" {
		return nil, errors.New("watch dir is required")
	}
	if onChange == nil {
		return nil, errors.New("onChange callback is required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Watcher{dir: dir, debounce: debounce, timeout: timeout, onChange: onChange}, nil
}

// ignored filters our own temp files and timestamped backups.
func ignored(name string) bool {
	return strings.Contains(name, tempMarker) ||
		strings.Contains(name, backupMarker) ||
		strings.HasPrefix(name, ".")
}

// Start watches the directory (not the files) so atomic replace sequences
// (temp+rename) are still observed. Events are debounced per file name. The
// caller owns ctx: cancel it to stop the goroutine and close the watcher.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := guard.Do(ctx, w.timeout, "watch "+w.dir, func(context.Context) error {
		return addWatch(fw, w.dir)
	}); err != nil {
		fw.Close()
		return fmt.Errorf("watch dir: %w", err)
	}

	log := logger.WithComponent("watcher")
	log.Debugf("watching %s", w.dir)

	go func() {
		defer fw.Close()

		var mu sync.Mutex
		timers := map[string]*time.Timer{}
		defer func() {
			mu.Lock()
			for _, t := range timers {
				t.Stop()
			}
			mu.Unlock()
		}()

		schedule := func(name string) {
			mu.Lock()
			defer mu.Unlock()
			if t, ok := timers[name]; ok {
				t.Stop()
			}
			timers[name] = time.AfterFunc(w.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				log.WithField("file", name).Debug("shared document changed")
				w.onChange(name)
			})
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				name := filepath.Base(event.Name)
				if ignored(name) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					schedule(name)
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				log.Warnf("watcher error: %v", err)
			}
		}
	}()

	return nil
}
