package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bassista/manifest_alert/internal/cache"
	"github.com/bassista/manifest_alert/internal/config"
	"github.com/bassista/manifest_alert/internal/logger"
	"github.com/bassista/manifest_alert/internal/network"
	"github.com/bassista/manifest_alert/internal/repository"
	"github.com/bassista/manifest_alert/internal/scheduler"
)

// App is the application container (immutable dependencies + lifecycle context).
// It is not a request context; handlers should still use gin's request context.
type App struct {
	Config   *config.Config
	Accessor *network.Accessor
	Cache    *cache.Manager

	Manifests *repository.ManifestRepository
	Acks      *repository.AcknowledgmentRepository
	Mute      *repository.MuteRepository
	Settings  *repository.ConfigRepository

	// Maintenance is nil when maintenance is disabled.
	Maintenance *scheduler.MaintenanceScheduler

	BaseCtx context.Context
	Cancel  context.CancelFunc

	now         func() time.Time
	sweeperDone <-chan struct{}
}

// New wires every component from cfg. now may be nil to use the wall clock.
func New(cfg *config.Config, now func() time.Time) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if now == nil {
		now = time.Now
	}

	acc, err := network.NewAccessor(network.Options{
		Root:       cfg.Shared.Path,
		Timeout:    cfg.Network.Timeout,
		Retries:    cfg.Network.Retries,
		RetryDelay: cfg.Network.RetryDelay,
		Now:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("network accessor: %w", err)
	}

	if err := os.MkdirAll(cfg.Shared.BackupDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create local backup dir: %w", err)
	}

	cm := cache.NewManager(cache.Options{
		NetworkTTL:    cfg.Cache.NetworkTTL,
		FastTTL:       cfg.Cache.FastTTL,
		SweepInterval: cfg.Cache.SweepInterval,
		Now:           now,
	})

	opts := repository.Options{
		Accessor:       acc,
		Cache:          cm,
		BackupDir:      cfg.Shared.BackupDir(),
		Timeout:        cfg.Network.Timeout,
		NetworkBackups: cfg.Network.CreateBackups,
		Now:            now,
	}
	a := &App{Config: cfg, Accessor: acc, Cache: cm, now: now}
	if a.Manifests, err = repository.NewManifestRepository(opts); err != nil {
		return nil, err
	}
	if a.Acks, err = repository.NewAcknowledgmentRepository(opts); err != nil {
		return nil, err
	}
	if a.Mute, err = repository.NewMuteRepository(opts); err != nil {
		return nil, err
	}
	if a.Settings, err = repository.NewConfigRepository(opts); err != nil {
		return nil, err
	}

	if cfg.Maintenance.Enabled {
		loc, err := cfg.Maintenance.Location()
		if err != nil {
			return nil, fmt.Errorf("invalid maintenance timezone: %w", err)
		}
		a.Maintenance, err = scheduler.NewMaintenanceScheduler(scheduler.Options{
			Acks:          a.Acks,
			Pruner:        acc,
			Files:         a.Filenames(),
			RetentionDays: cfg.Maintenance.AckRetentionDays,
			BackupsToKeep: cfg.Network.BackupsToKeep,
			RunAt:         cfg.Maintenance.RunAt,
			Poll:          cfg.Maintenance.Poll,
			Location:      loc,
			Now:           now,
		})
		if err != nil {
			return nil, err
		}
	}

	a.BaseCtx, a.Cancel = context.WithCancel(context.Background())
	return a, nil
}

// Now is the clock every component was built with.
func (a *App) Now() time.Time { return a.now() }

// Watched lists every repository backed by a shared file.
func (a *App) Watched() []repository.Watched {
	return []repository.Watched{a.Manifests, a.Acks, a.Mute, a.Settings}
}

// Filenames lists the shared documents this process reads and writes.
func (a *App) Filenames() []string {
	ws := a.Watched()
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Filename())
	}
	return out
}

// InvalidateFile drops the cached copy of the repository owning filename.
// It reports whether any repository matched.
func (a *App) InvalidateFile(filename string) bool {
	for _, w := range a.Watched() {
		if w.Filename() == filename {
			w.Invalidate()
			return true
		}
	}
	return false
}

func (a *App) Shutdown() {
	if a == nil || a.Cancel == nil {
		return
	}
	a.Cancel()
	if a.sweeperDone != nil {
		<-a.sweeperDone
	}
}

// StartWatchers starts the background goroutines: the cache sweeper, the
// shared folder watcher and the maintenance scheduler. A watcher that cannot
// start is logged and skipped; TTLs still bound staleness.
func (a *App) StartWatchers() {
	a.sweeperDone = a.Cache.StartSweeper(a.BaseCtx, a.Config.Cache.SweepInterval)

	if a.Config.Network.WatchEnabled {
		w, err := network.NewWatcher(a.Accessor.Root(), a.Config.Network.WatchDebounce, a.Config.Network.Timeout, func(name string) {
			a.InvalidateFile(name)
		})
		if err == nil {
			err = w.Start(a.BaseCtx)
		}
		if err != nil {
			logger.WithComponent("app").Warnf("shared folder watcher disabled: %v", err)
		}
	}

	if a.Maintenance != nil {
		a.Maintenance.Start(a.BaseCtx)
	}
}
