package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bassista/manifest_alert/internal/cache"
	"github.com/bassista/manifest_alert/internal/errs"
	"github.com/bassista/manifest_alert/internal/logger"
	"github.com/bassista/manifest_alert/internal/network"
	"github.com/sirupsen/logrus"
)

// Options carries what every repository shares.
type Options struct {
	Accessor *network.Accessor
	Cache    *cache.Manager
	// BackupDir holds the local copy of the last good document of each entity.
	BackupDir string
	// Timeout bounds each network call; zero uses the accessor default.
	Timeout time.Duration
	// NetworkBackups copies the previous version next to the shared file before each write.
	NetworkBackups bool
	Now            func() time.Time
}

func (o Options) check() error {
	if o.Accessor == nil {
		return errors.New("network accessor is nil")
	}
	if o.Cache == nil {
		return errors.New("cache manager is nil")
	}
	if o.BackupDir == "" {
		return errors.New("local backup dir is required")
	}
	return nil
}

// docStore binds one shared document to its local backup copy.
type docStore struct {
	filename       string
	accessor       *network.Accessor
	cache          *cache.Manager
	backupPath     string
	timeout        time.Duration
	networkBackups bool
	now            func() time.Time
	log            *logrus.Entry
}

func newDocStore(opts Options, filename, component string) (*docStore, error) {
	if err := opts.check(); err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &docStore{
		filename:       filename,
		accessor:       opts.Accessor,
		cache:          opts.Cache,
		backupPath:     filepath.Join(opts.BackupDir, filename),
		timeout:        opts.Timeout,
		networkBackups: opts.NetworkBackups,
		now:            now,
		log:            logger.WithComponent(component).WithField("file", filename),
	}, nil
}

// Filename is the shared document this store reads and writes.
func (s *docStore) Filename() string { return s.filename }

// loadNetwork reads the shared document into dst, runs check on it and only
// then refreshes the local backup, so a malformed document never replaces a good copy.
func (s *docStore) loadNetwork(ctx context.Context, dst any, check func() error) error {
	if err := s.accessor.LoadDocument(ctx, s.filename, dst, s.timeout); err != nil {
		return err
	}
	if check != nil {
		if err := check(); err != nil {
			return err
		}
	}
	s.writeLocalBackup(dst)
	return nil
}

// loadBackup reads the local copy into dst.
func (s *docStore) loadBackup(dst any) error {
	data, err := os.ReadFile(s.backupPath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errs.Validation(s.backupPath, "", fmt.Errorf("decode: %w", err))
	}
	return nil
}

// save writes doc to the shared location, then refreshes the local backup.
// The local copy is only touched after the network write succeeded.
func (s *docStore) save(ctx context.Context, doc any) error {
	if err := s.accessor.SaveDocument(ctx, s.filename, doc, s.networkBackups, s.timeout); err != nil {
		return err
	}
	s.writeLocalBackup(doc)
	return nil
}

// writeLocalBackup is best-effort; failures are logged.
func (s *docStore) writeLocalBackup(doc any) {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.log.WithError(err).Warn("cannot encode local backup")
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.backupPath), 0o755); err != nil {
		s.log.WithError(err).Warn("cannot create local backup dir")
		return
	}
	if err := network.WriteFileAtomic(s.backupPath, payload); err != nil {
		s.log.WithError(err).Warn("cannot write local backup")
		return
	}
	s.log.Trace("local backup refreshed")
}

// loadForWrite reads the shared document bypassing the cache, for
// read-modify-write cycles. A missing document on a reachable share yields
// found=false; anything else that fails is returned so the caller never
// merges onto a stale or backup copy.
func (s *docStore) loadForWrite(ctx context.Context, dst any, check func() error) (found bool, err error) {
	err = s.loadNetwork(ctx, dst, check)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) || errs.IsTimeout(err) {
		if errs.IsNetwork(err) {
			return false, err
		}
		return false, errs.Network("load for write", s.filename, err)
	}
	if verr := s.accessor.ValidateAccess(ctx, s.timeout); verr != nil {
		return false, verr
	}
	s.log.Info("shared document does not exist yet, starting empty")
	return false, nil
}

// fallback logs why the primary read failed and reads the local backup.
func (s *docStore) fallback(cause error, dst any) bool {
	entry := s.log.WithError(cause)
	if errs.IsValidation(cause) {
		entry.Error("shared document is malformed, trying local backup")
	} else {
		entry.Warn("shared document unavailable, trying local backup")
	}
	if err := s.loadBackup(dst); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.WithError(err).Warn("local backup unusable")
		}
		return false
	}
	s.log.Info("serving local backup")
	return true
}
