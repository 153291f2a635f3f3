package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bassista/manifest_alert/internal/errs"
	"github.com/bassista/manifest_alert/internal/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultNetworkTTL    = 30 * time.Second
	DefaultFastTTL       = 5 * time.Second
	DefaultSweepInterval = 60 * time.Second

	// rough per-entry bookkeeping cost added to the serialized value size
	entryOverhead = 96
)

// Loader fetches a fresh value for a key on a miss.
type Loader func(ctx context.Context) (any, error)

// Options configures a Manager. Zero values fall back to the defaults.
type Options struct {
	NetworkTTL    time.Duration
	FastTTL       time.Duration
	SweepInterval time.Duration
	// Now is the clock used for expiry; tests inject a fake one.
	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		NetworkTTL:    DefaultNetworkTTL,
		FastTTL:       DefaultFastTTL,
		SweepInterval: DefaultSweepInterval,
		Now:           time.Now,
	}
}

// EntryInfo describes one cached entry for diagnostics.
type EntryInfo struct {
	Key                 string    `json:"key"`
	Tier                string    `json:"tier"`
	AgeSeconds          float64   `json:"age_seconds"`
	RemainingTTLSeconds float64   `json:"remaining_ttl_seconds"`
	AccessCount         int64     `json:"access_count"`
	Expired             bool      `json:"expired"`
	CreatedAt           time.Time `json:"created_at"`
}

// Manager is a two-tier in-memory TTL cache in front of the shared location.
// Loaders run outside the lock and concurrent misses for the same key share
// one load. An expired entry is kept until a load succeeds so it can be
// served stale when the location is unreachable.
type Manager struct {
	mu        sync.Mutex
	tiers     map[Tier]map[string]*Entry
	ttls      map[Tier]time.Duration
	stats     Statistics
	epoch     uint64 // bumped on invalidation; in-flight loads started earlier do not store
	lastSweep time.Time
	interval  time.Duration
	now       func() time.Time
	group     singleflight.Group
	log       *logrus.Entry
}

// NewManager creates an empty cache manager.
func NewManager(opts Options) *Manager {
	def := DefaultOptions()
	if opts.NetworkTTL <= 0 {
		opts.NetworkTTL = def.NetworkTTL
	}
	if opts.FastTTL <= 0 {
		opts.FastTTL = def.FastTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = def.SweepInterval
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	m := &Manager{
		tiers: map[Tier]map[string]*Entry{
			TierNetwork: {},
			TierFast:    {},
		},
		ttls: map[Tier]time.Duration{
			TierNetwork: opts.NetworkTTL,
			TierFast:    opts.FastTTL,
		},
		interval: opts.SweepInterval,
		now:      opts.Now,
		log:      logger.WithComponent("cache"),
	}
	m.lastSweep = m.now()
	return m
}

// TTL returns the configured TTL of a tier.
func (m *Manager) TTL(tier Tier) time.Duration {
	return m.ttls[tier]
}

type loadResult struct {
	value any
	stale bool
}

func flightKey(tier Tier, key string) string {
	return tier.String() + "\x00" + key
}

// GetOrLoad returns the cached value for key in tier, calling loader on a miss,
// on expiry, or when force is set. If the loader fails and an older value for
// the key exists, that value is served stale. Otherwise the error is returned
// as a *errs.NetworkAccessError that still wraps the loader's cause.
func (m *Manager) GetOrLoad(ctx context.Context, tier Tier, key string, loader Loader, force bool) (any, error) {
	if !tier.valid() {
		return nil, errs.Validation("tier", tier.String(), errors.New("unknown cache tier"))
	}
	if key == "" {
		return nil, errs.Validation("key", key, errors.New("cache key must not be empty"))
	}
	if loader == nil {
		return nil, fmt.Errorf("cache: nil loader for %q", key)
	}

	start := time.Now()
	m.mu.Lock()
	m.maybeSweepLocked()
	if !force {
		if e, ok := m.tiers[tier][key]; ok && !e.IsExpired(m.now()) {
			v, _ := e.Access(m.now())
			m.stats.recordHit(time.Since(start))
			if tier == TierNetwork {
				m.stats.NetworkCallsSaved++
			}
			m.mu.Unlock()
			cacheLookups.WithLabelValues(tier.String(), "hit").Inc()
			m.log.Tracef("hit %s/%s", tier, key)
			return v, nil
		}
	}
	epoch := m.epoch
	m.mu.Unlock()

	res, err, shared := m.group.Do(flightKey(tier, key), func() (any, error) {
		return m.load(ctx, tier, key, loader, epoch)
	})

	m.mu.Lock()
	m.stats.recordMiss(time.Since(start))
	if err == nil && res.(loadResult).stale {
		m.stats.StaleServed++
	}
	m.mu.Unlock()

	if err != nil {
		cacheLookups.WithLabelValues(tier.String(), "error").Inc()
		return nil, err
	}
	r := res.(loadResult)
	if r.stale {
		cacheLookups.WithLabelValues(tier.String(), "stale").Inc()
	} else {
		cacheLookups.WithLabelValues(tier.String(), "miss").Inc()
	}
	if shared {
		m.log.Tracef("shared load for %s/%s", tier, key)
	}
	return r.value, nil
}

func (m *Manager) load(ctx context.Context, tier Tier, key string, loader Loader, epoch uint64) (any, error) {
	start := time.Now()
	value, err := loader(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	if err != nil {
		m.stats.LoadFailures++
		if prior, ok := m.tiers[tier][key]; ok {
			m.log.WithError(err).Warnf("load failed for %s/%s, serving stale value aged %s", tier, key, prior.Age(now).Round(time.Millisecond))
			return loadResult{value: prior.Value, stale: true}, nil
		}
		m.log.WithError(err).Debugf("load failed for %s/%s with no fallback", tier, key)
		return nil, errs.Network("cache load", key, err)
	}

	if epoch != m.epoch {
		m.log.Debugf("discarding load for %s/%s started before invalidation", tier, key)
		return loadResult{value: value}, nil
	}
	if e, ok := m.tiers[tier][key]; ok {
		_ = e.Refresh(value, m.ttls[tier], now)
	} else {
		e, nerr := NewEntry(key, value, m.ttls[tier], now)
		if nerr != nil {
			return nil, nerr
		}
		m.tiers[tier][key] = e
	}
	m.updateGaugesLocked()
	m.log.WithFields(logger.Since(start)).Debugf("loaded %s/%s", tier, key)
	return loadResult{value: value}, nil
}

// Load is the typed form of GetOrLoad.
func Load[T any](ctx context.Context, m *Manager, tier Tier, key string, force bool, loader func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := m.GetOrLoad(ctx, tier, key, func(ctx context.Context) (any, error) {
		return loader(ctx)
	}, force)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache: key %q holds %T, want %T", key, v, zero)
	}
	return t, nil
}

func selectTiers(tiers []Tier) []Tier {
	if len(tiers) == 0 {
		return allTiers
	}
	return tiers
}

// Invalidate removes key from the given tiers, or from every tier when none
// is given. It reports whether any entry was removed.
func (m *Manager) Invalidate(key string, tiers ...Tier) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	removed := false
	for _, t := range selectTiers(tiers) {
		if _, ok := m.tiers[t][key]; ok {
			delete(m.tiers[t], key)
			removed = true
		}
		m.group.Forget(flightKey(t, key))
	}
	m.updateGaugesLocked()
	if removed {
		m.log.Debugf("invalidated %s", key)
	}
	return removed
}

// InvalidatePrefix removes every key starting with prefix and returns the count.
func (m *Manager) InvalidatePrefix(prefix string, tiers ...Tier) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	n := 0
	for _, t := range selectTiers(tiers) {
		for key := range m.tiers[t] {
			if strings.HasPrefix(key, prefix) {
				delete(m.tiers[t], key)
				m.group.Forget(flightKey(t, key))
				n++
			}
		}
	}
	m.updateGaugesLocked()
	return n
}

// ClearAll empties both tiers and resets the statistics.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	for _, t := range allTiers {
		for key := range m.tiers[t] {
			m.group.Forget(flightKey(t, key))
		}
		m.tiers[t] = map[string]*Entry{}
	}
	m.stats = Statistics{}
	m.lastSweep = m.now()
	m.updateGaugesLocked()
	m.log.Info("cache cleared")
}

// Sweep purges expired entries from both tiers and returns how many went.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked()
}

func (m *Manager) maybeSweepLocked() {
	if m.now().Sub(m.lastSweep) >= m.interval {
		m.sweepLocked()
	}
}

func (m *Manager) sweepLocked() int {
	now := m.now()
	n := 0
	for _, t := range allTiers {
		for key, e := range m.tiers[t] {
			if e.IsExpired(now) {
				delete(m.tiers[t], key)
				n++
			}
		}
	}
	m.lastSweep = now
	m.stats.Sweeps++
	m.updateGaugesLocked()
	if n > 0 {
		cacheSweptEntries.Add(float64(n))
		m.log.Debugf("swept %d expired entries", n)
	}
	return n
}

func (m *Manager) updateGaugesLocked() {
	for _, t := range allTiers {
		cacheEntries.WithLabelValues(t.String()).Set(float64(len(m.tiers[t])))
	}
}

// Statistics returns a snapshot including entry count and memory estimate.
func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	s := m.stats
	values := make(map[string]any)
	for _, t := range allTiers {
		for key, e := range m.tiers[t] {
			values[flightKey(t, key)] = e.Value
		}
	}
	m.mu.Unlock()

	s.TotalEntries = len(values)
	for key, v := range values {
		s.MemoryEstimate += int64(len(key) + entryOverhead)
		if b, err := json.Marshal(v); err == nil {
			s.MemoryEstimate += int64(len(b))
		}
	}
	return s
}

// Info lists entries of the given tiers (all when none), ordered by tier then key.
func (m *Manager) Info(tiers ...Tier) []EntryInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := []EntryInfo{}
	for _, t := range selectTiers(tiers) {
		keys := make([]string, 0, len(m.tiers[t]))
		for key := range m.tiers[t] {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			e := m.tiers[t][key]
			info := EntryInfo{
				Key:         key,
				Tier:        t.String(),
				AgeSeconds:  e.Age(now).Seconds(),
				AccessCount: e.AccessCount,
				Expired:     e.IsExpired(now),
				CreatedAt:   e.CreatedAt,
			}
			if e.TTL == InfiniteTTL {
				info.RemainingTTLSeconds = -1
			} else {
				info.RemainingTTLSeconds = e.RemainingTTL(now).Seconds()
			}
			out = append(out, info)
		}
	}
	return out
}
