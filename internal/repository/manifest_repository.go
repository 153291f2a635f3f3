package repository

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"

	"github.com/bassista/manifest_alert/internal/cache"
	"github.com/bassista/manifest_alert/internal/errs"
)

const (
	ManifestConfigFile = "config.json"
	manifestConfigKey  = "manifest_config"
)

// ManifestRepository serves the shared manifest schedule.
type ManifestRepository struct {
	store *docStore
}

func NewManifestRepository(opts Options) (*ManifestRepository, error) {
	s, err := newDocStore(opts, ManifestConfigFile, "manifests")
	if err != nil {
		return nil, err
	}
	return &ManifestRepository{store: s}, nil
}

func (r *ManifestRepository) Filename() string { return r.store.Filename() }

// Invalidate drops the cached config so the next read goes to the share.
func (r *ManifestRepository) Invalidate() {
	r.store.cache.Invalidate(manifestConfigKey)
}

// LoadConfig returns the manifest config from cache, the share, the local
// backup or the built-in default, in that order.
func (r *ManifestRepository) LoadConfig(ctx context.Context) (ManifestConfig, error) {
	cfg, err := cache.Load(ctx, r.store.cache, cache.TierNetwork, manifestConfigKey, false, r.fetch)
	if err == nil {
		return cloneManifestConfig(cfg), nil
	}
	if ctx.Err() != nil {
		return ManifestConfig{}, ctx.Err()
	}
	var backup ManifestConfig
	if r.store.fallback(err, &backup) {
		backup.ApplyDefaults()
		if verr := backup.Validate(); verr == nil {
			return backup, nil
		}
	}
	r.store.log.Warn("using default manifest config")
	return DefaultManifestConfig(), nil
}

func (r *ManifestRepository) fetch(ctx context.Context) (ManifestConfig, error) {
	var cfg ManifestConfig
	err := r.store.loadNetwork(ctx, &cfg, func() error {
		cfg.ApplyDefaults()
		return cfg.Validate()
	})
	return cfg, err
}

// LoadManifests lists the manifests of date, one per distinct time, sorted.
func (r *ManifestRepository) LoadManifests(ctx context.Context, date string) ([]Manifest, error) {
	if !IsDate(date) {
		return nil, errs.Validation("date", date, errors.New("expected YYYY-MM-DD"))
	}
	cfg, err := r.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return BuildManifests(cfg, date), nil
}

// SaveConfig replaces the manifest keys of the shared config. Keys written
// there by other clients are kept.
func (r *ManifestRepository) SaveConfig(ctx context.Context, cfg ManifestConfig) error {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	var current ManifestConfig
	_, err := r.store.loadForWrite(ctx, &current, func() error {
		current.ApplyDefaults()
		return current.Validate()
	})
	switch {
	case err == nil:
		cfg.Extra = mergeExtra(current.Extra, cfg.Extra)
	case errs.IsValidation(err):
		r.store.log.WithError(err).Warn("shared config is malformed, replacing it")
	default:
		return err
	}
	if err := r.store.save(ctx, cfg); err != nil {
		return err
	}
	r.Invalidate()
	r.store.log.Infof("manifest config saved with %d times and %d carriers", len(cfg.ManifestTimes), len(cfg.Carriers))
	return nil
}

func cloneManifestConfig(c ManifestConfig) ManifestConfig {
	c.ManifestTimes = slices.Clone(c.ManifestTimes)
	c.Carriers = slices.Clone(c.Carriers)
	c.Extra = maps.Clone(c.Extra)
	return c
}

// mergeExtra overlays update on stored; nil when both are empty.
func mergeExtra(stored, update map[string]json.RawMessage) map[string]json.RawMessage {
	if len(stored) == 0 && len(update) == 0 {
		return nil
	}
	out := maps.Clone(stored)
	if out == nil {
		out = map[string]json.RawMessage{}
	}
	maps.Copy(out, update)
	return out
}
