package cache

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// InfiniteTTL marks an entry that never expires.
const InfiniteTTL time.Duration = math.MaxInt64

// ErrExpired is returned by Entry.Access on an expired entry.
var ErrExpired = errors.New("cache entry expired")

// Entry is a cached value with expiry bookkeeping and access counters.
// The value is owned by the cache slot until it is replaced or evicted;
// callers that mutate what they get back must copy it first.
type Entry struct {
	Key            string
	Value          any
	CreatedAt      time.Time
	TTL            time.Duration
	AccessCount    int64
	LastAccessedAt time.Time
}

// NewEntry creates an entry populated at now. ttl must be positive.
func NewEntry(key string, value any, ttl time.Duration, now time.Time) (*Entry, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache entry %q: ttl must be positive, got %s", key, ttl)
	}
	return &Entry{
		Key:            key,
		Value:          value,
		CreatedAt:      now,
		TTL:            ttl,
		LastAccessedAt: now,
	}, nil
}

func (e *Entry) infinite() bool { return e.TTL == InfiniteTTL }

// ExpiresAt returns the expiry instant; zero time for infinite entries.
func (e *Entry) ExpiresAt() time.Time {
	if e.infinite() {
		return time.Time{}
	}
	return e.CreatedAt.Add(e.TTL)
}

// IsExpired reports now > CreatedAt+TTL. A freshly created entry is never expired.
func (e *Entry) IsExpired(now time.Time) bool {
	if e.infinite() {
		return false
	}
	return now.After(e.CreatedAt.Add(e.TTL))
}

// RemainingTTL is max(0, CreatedAt+TTL-now), or InfiniteTTL.
func (e *Entry) RemainingTTL(now time.Time) time.Duration {
	if e.infinite() {
		return InfiniteTTL
	}
	return max(0, e.CreatedAt.Add(e.TTL).Sub(now))
}

// Age is the time since the last (re)population.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// Access returns the value and updates access stats.
func (e *Entry) Access(now time.Time) (any, error) {
	if e.IsExpired(now) {
		return nil, fmt.Errorf("%w: %s", ErrExpired, e.Key)
	}
	e.AccessCount++
	e.LastAccessedAt = now
	return e.Value, nil
}

// Refresh replaces the value in place and resets CreatedAt.
// A zero ttl keeps the current TTL; a negative one is rejected.
func (e *Entry) Refresh(value any, ttl time.Duration, now time.Time) error {
	if ttl < 0 {
		return fmt.Errorf("cache entry %q: ttl must be positive, got %s", e.Key, ttl)
	}
	e.Value = value
	e.CreatedAt = now
	e.LastAccessedAt = now
	if ttl > 0 {
		e.TTL = ttl
	}
	return nil
}
