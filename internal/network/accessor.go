// Package network reads and writes the JSON documents kept on the shared
// network folder. Every filesystem call runs under the timeout guard so a
// stalled mount can never hang a caller for longer than the per-call timeout.
package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bassista/manifest_alert/internal/errs"
	"github.com/bassista/manifest_alert/internal/guard"
	"github.com/bassista/manifest_alert/internal/logger"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTimeout    = time.Second
	DefaultRetries    = 2
	DefaultRetryDelay = 100 * time.Millisecond

	backupMarker = "_backup_"
	tempMarker   = ".tmp-"
)

// Options configures an Accessor. Zero values fall back to the defaults.
type Options struct {
	Root       string
	Timeout    time.Duration
	Retries    int // total attempts for transient I/O errors
	RetryDelay time.Duration
	Now        func() time.Time
}

// Stats summarizes accessor activity since start.
type Stats struct {
	Operations      uint64  `json:"operations"`
	Failures        uint64  `json:"failures"`
	Timeouts        uint64  `json:"timeouts"`
	Retries         uint64  `json:"retries"`
	AverageTimeMs   float64 `json:"average_time_ms"`
	TotalDurationMs float64 `json:"total_duration_ms"`
}

// Accessor performs timeout-guarded JSON reads and atomic writes against
// a root directory on the shared location.
type Accessor struct {
	root       string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	now        func() time.Time

	mu    sync.Mutex
	stats Stats
	log   *logrus.Entry
}

// NewAccessor creates an accessor rooted at opts.Root.
func NewAccessor(opts Options) (*Accessor, error) {
	if opts.Root == "" {
		return nil, errors.New("shared root path is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Accessor{
		root:       filepath.Clean(opts.Root),
		timeout:    opts.Timeout,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		now:        opts.Now,
		log:        logger.WithComponent("network"),
	}, nil
}

// Root returns the shared directory.
func (a *Accessor) Root() string { return a.root }

// Path resolves a document name inside the root. Only bare file names are accepted.
func (a *Accessor) Path(filename string) (string, error) {
	if filename == "" || filename == "." || filename == ".." || filepath.Base(filename) != filename {
		return "", errs.Validation("filename", filename, errors.New("must be a bare file name"))
	}
	return filepath.Join(a.root, filename), nil
}

func (a *Accessor) timeoutOr(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return a.timeout
	}
	return timeout
}

// LoadDocument reads filename and decodes it into dst.
// Timeouts and I/O failures come back as *errs.NetworkAccessError,
// undecodable content as *errs.DataValidationError.
func (a *Accessor) LoadDocument(ctx context.Context, filename string, dst any, timeout time.Duration) error {
	path, err := a.Path(filename)
	if err != nil {
		return err
	}
	timeout = a.timeoutOr(timeout)
	start := time.Now()

	var data []byte
	err = a.withRetry(ctx, "load", path, func(ctx context.Context) error {
		b, err := guard.Run(ctx, timeout, "read "+filename, func(ctx context.Context) ([]byte, error) {
			return os.ReadFile(path)
		})
		if err != nil {
			return err
		}
		data = b
		return nil
	})
	if err != nil {
		a.record("load", start, err)
		a.log.WithError(err).WithFields(logger.Since(start)).WithField("file", filename).Debug("load failed")
		return errs.Network("load", path, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		a.record("load", start, err)
		a.log.WithError(err).WithField("file", filename).Warn("document is not valid JSON")
		return errs.Validation(filename, "", fmt.Errorf("decode: %w", err))
	}
	a.record("load", start, nil)
	a.log.WithFields(logger.Since(start)).WithField("file", filename).Trace("loaded")
	return nil
}

// SaveDocument encodes doc with two-space indentation and replaces filename
// atomically. With createBackup the current file is first copied to a
// timestamped sibling; a failed backup is logged and does not stop the save.
func (a *Accessor) SaveDocument(ctx context.Context, filename string, doc any, createBackup bool, timeout time.Duration) error {
	path, err := a.Path(filename)
	if err != nil {
		return errs.Network("save", filename, err)
	}
	if doc == nil {
		return errs.Network("save", path, errors.New("document is nil"))
	}
	timeout = a.timeoutOr(timeout)
	start := time.Now()

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		a.record("save", start, err)
		return errs.Network("save", path, fmt.Errorf("marshal: %w", err))
	}

	if createBackup {
		if backup, err := a.backup(ctx, filename, timeout); err != nil {
			a.log.WithError(err).WithField("file", filename).Warn("backup before save failed")
		} else if backup != "" {
			a.log.WithField("file", filename).Debugf("backup written to %s", backup)
		}
	}

	err = a.withRetry(ctx, "save", path, func(ctx context.Context) error {
		return guard.Do(ctx, timeout, "write "+filename, func(ctx context.Context) error {
			return WriteFileAtomic(path, payload)
		})
	})
	a.record("save", start, err)
	if err != nil {
		a.log.WithError(err).WithFields(logger.Since(start)).WithField("file", filename).Warn("save failed")
		return errs.Network("save", path, err)
	}
	a.log.WithFields(logger.Since(start)).WithField("file", filename).Debug("saved")
	return nil
}

// WriteFileAtomic writes payload to a temp file next to path and renames it into
// place, so readers and late-completing abandoned writes only ever see whole documents.
func WriteFileAtomic(path string, payload []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+tempMarker)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}()

	if _, err := tmpFile.Write(payload); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), path); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}
	return nil
}

// BackupName returns the sibling backup name for filename at the given unix time.
func BackupName(filename string, unix int64) string {
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	return stem + backupMarker + strconv.FormatInt(unix, 10) + ext
}

// backup copies the current file to its timestamped sibling. It returns ""
// when there is nothing to back up.
func (a *Accessor) backup(ctx context.Context, filename string, timeout time.Duration) (string, error) {
	src := filepath.Join(a.root, filename)
	dstName := BackupName(filename, a.now().Unix())
	dst := filepath.Join(a.root, dstName)
	return guard.Run(ctx, timeout, "backup "+filename, func(ctx context.Context) (string, error) {
		data, err := os.ReadFile(src)
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		if err := WriteFileAtomic(dst, data); err != nil {
			return "", err
		}
		return dstName, nil
	})
}

// PruneBackups removes all but the newest keep network-side backups of
// filename and returns how many were removed. keep <= 0 disables pruning.
func (a *Accessor) PruneBackups(ctx context.Context, filename string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	if _, err := a.Path(filename); err != nil {
		return 0, err
	}
	start := time.Now()
	ext := filepath.Ext(filename)
	prefix := strings.TrimSuffix(filename, ext) + backupMarker

	removed, err := guard.Run(ctx, a.timeout*4, "prune "+filename, func(ctx context.Context) (int, error) {
		entries, err := os.ReadDir(a.root)
		if err != nil {
			return 0, err
		}
		type backup struct {
			name string
			ts   int64
		}
		var backups []backup
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
				continue
			}
			ts, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ext), 10, 64)
			if err != nil {
				continue
			}
			backups = append(backups, backup{name: name, ts: ts})
		}
		if len(backups) <= keep {
			return 0, nil
		}
		sort.Slice(backups, func(i, j int) bool { return backups[i].ts > backups[j].ts })
		n := 0
		for _, b := range backups[keep:] {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			if err := os.Remove(filepath.Join(a.root, b.name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return n, err
			}
			n++
		}
		return n, nil
	})
	a.record("prune", start, err)
	if err != nil {
		return removed, errs.Network("prune", filepath.Join(a.root, filename), err)
	}
	if removed > 0 {
		a.log.WithField("file", filename).Infof("pruned %d old backups", removed)
	}
	return removed, nil
}

// FileExists reports whether filename exists on the shared location.
func (a *Accessor) FileExists(ctx context.Context, filename string, timeout time.Duration) (bool, error) {
	path, err := a.Path(filename)
	if err != nil {
		return false, err
	}
	start := time.Now()
	exists, err := guard.Run(ctx, a.timeoutOr(timeout), "stat "+filename, func(ctx context.Context) (bool, error) {
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return err == nil, err
	})
	a.record("stat", start, err)
	if err != nil {
		return false, errs.Network("stat", path, err)
	}
	return exists, nil
}

// ModTime returns the last modification time of filename.
func (a *Accessor) ModTime(ctx context.Context, filename string, timeout time.Duration) (time.Time, error) {
	path, err := a.Path(filename)
	if err != nil {
		return time.Time{}, err
	}
	start := time.Now()
	mt, err := guard.Run(ctx, a.timeoutOr(timeout), "stat "+filename, func(ctx context.Context) (time.Time, error) {
		info, err := os.Stat(path)
		if err != nil {
			return time.Time{}, err
		}
		return info.ModTime(), nil
	})
	a.record("stat", start, err)
	if err != nil {
		return time.Time{}, errs.Network("stat", path, err)
	}
	return mt, nil
}

// ValidateAccess checks that the root is a reachable, writable directory.
func (a *Accessor) ValidateAccess(ctx context.Context, timeout time.Duration) error {
	start := time.Now()
	err := guard.Do(ctx, a.timeoutOr(timeout), "validate "+a.root, func(ctx context.Context) error {
		info, err := os.Stat(a.root)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", a.root)
		}
		probe, err := os.CreateTemp(a.root, ".manifest_alert_probe-")
		if err != nil {
			return fmt.Errorf("not writable: %w", err)
		}
		name := probe.Name()
		probe.Close()
		return os.Remove(name)
	})
	a.record("validate", start, err)
	if err != nil {
		a.log.WithError(err).WithFields(logger.Since(start)).Warn("shared location not accessible")
		return errs.Network("validate", a.root, err)
	}
	return nil
}

// Stats returns a snapshot of the accessor counters.
func (a *Accessor) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

func (a *Accessor) record(op string, start time.Time, err error) {
	elapsed := time.Since(start)
	result := "ok"
	switch {
	case errs.IsTimeout(err):
		result = "timeout"
		operationTimeouts.WithLabelValues(op).Inc()
	case err != nil:
		result = "error"
	}
	operationDuration.WithLabelValues(op, result).Observe(elapsed.Seconds())

	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Operations++
	if err != nil {
		a.stats.Failures++
	}
	if errs.IsTimeout(err) {
		a.stats.Timeouts++
	}
	a.stats.TotalDurationMs += float64(elapsed.Microseconds()) / 1000
	a.stats.AverageTimeMs = a.stats.TotalDurationMs / float64(a.stats.Operations)
}

// retryable reports whether err is a transient I/O failure worth another attempt.
func retryable(ctx context.Context, err error) bool {
	switch {
	case err == nil, ctx.Err() != nil:
		return false
	case errs.IsTimeout(err), errs.IsValidation(err):
		return false
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func (a *Accessor) withRetry(ctx context.Context, op, path string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= a.retries; attempt++ {
		err = fn(ctx)
		if !retryable(ctx, err) || attempt == a.retries {
			return err
		}
		a.mu.Lock()
		a.stats.Retries++
		a.mu.Unlock()
		a.log.WithError(err).WithField("file", filepath.Base(path)).Debugf("%s attempt %d failed, retrying in %s", op, attempt, a.retryDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.retryDelay):
		}
	}
	return err
}
