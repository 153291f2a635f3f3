package repository

import (
	"context"
	"maps"

	"github.com/bassista/manifest_alert/internal/cache"
)

const (
	SettingsFile = "settings.json"
	settingsKey  = "app_config"
)

// ConfigRepository manages the shared application settings.
type ConfigRepository struct {
	store *docStore
}

func NewConfigRepository(opts Options) (*ConfigRepository, error) {
	s, err := newDocStore(opts, SettingsFile, "settings")
	if err != nil {
		return nil, err
	}
	return &ConfigRepository{store: s}, nil
}

func (r *ConfigRepository) Filename() string { return r.store.Filename() }

func (r *ConfigRepository) Invalidate() {
	r.store.cache.Invalidate(settingsKey)
}

func (r *ConfigRepository) fetch(ctx context.Context) (Settings, error) {
	var s Settings
	err := r.store.loadNetwork(ctx, &s, s.Validate)
	return s, err
}

// Load returns the settings from cache, the share, the local backup or the defaults.
func (r *ConfigRepository) Load(ctx context.Context) (Settings, error) {
	s, err := cache.Load(ctx, r.store.cache, cache.TierNetwork, settingsKey, false, r.fetch)
	if err == nil {
		s.Extra = maps.Clone(s.Extra)
		return s, nil
	}
	if ctx.Err() != nil {
		return Settings{}, ctx.Err()
	}
	var backup Settings
	if r.store.fallback(err, &backup) && backup.Validate() == nil {
		return backup, nil
	}
	r.store.log.Warn("using default settings")
	return DefaultSettings(), nil
}

// Save replaces the shared settings.
func (r *ConfigRepository) Save(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := r.store.save(ctx, s); err != nil {
		return err
	}
	r.Invalidate()
	r.store.log.Info("settings saved")
	return nil
}

// Setting returns one top-level key, or def when it is absent or unreadable.
func (r *ConfigRepository) Setting(ctx context.Context, key string, def any) any {
	s, err := r.Load(ctx)
	if err != nil {
		return def
	}
	if v, ok := s.Lookup(key); ok {
		return v
	}
	return def
}
