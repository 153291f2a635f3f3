package repository

import (
	"context"
	"time"
)

// Watched is a repository backed by one shared file whose cached copy must
// be dropped when the file changes on the share.
type Watched interface {
	Filename() string
	Invalidate()
}

// ManifestStore serves the manifest schedule.
// ManifestRepository implements this interface.
type ManifestStore interface {
	Watched
	LoadConfig(ctx context.Context) (ManifestConfig, error)
	LoadManifests(ctx context.Context, date string) ([]Manifest, error)
	SaveConfig(ctx context.Context, cfg ManifestConfig) error
}

// AckStore manages acknowledgments.
// AcknowledgmentRepository implements this interface.
type AckStore interface {
	Watched
	LoadAll(ctx context.Context) ([]Acknowledgment, error)
	LoadForDate(ctx context.Context, date string) ([]Acknowledgment, error)
	Get(ctx context.Context, date, manifestTime, carrier string) (Acknowledgment, error)
	Save(ctx context.Context, ack Acknowledgment) error
	SaveMany(ctx context.Context, acks ...Acknowledgment) (int, error)
	ClearDate(ctx context.Context, date string) (int, error)
	Summary(ctx context.Context, date string) (AckSummary, error)
	Cleaner
}

// Cleaner is the small interface used by the maintenance scheduler.
type Cleaner interface {
	Cleanup(ctx context.Context, keepDays int, now time.Time) (int, error)
}

// MuteStore manages the shared mute state.
// MuteRepository implements this interface.
type MuteStore interface {
	Watched
	Load(ctx context.Context) (MuteStatus, error)
	IsMuted(ctx context.Context) (bool, error)
	Save(ctx context.Context, st MuteStatus) error
	Mute(ctx context.Context, user, reason string, duration time.Duration) (MuteStatus, error)
	Snooze(ctx context.Context, user string, minutes int) (MuteStatus, error)
	Unmute(ctx context.Context, user string) (MuteStatus, error)
	Toggle(ctx context.Context, user string, duration time.Duration) (MuteStatus, error)
}

// SettingsStore manages the shared application settings.
// ConfigRepository implements this interface.
type SettingsStore interface {
	Watched
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
	Setting(ctx context.Context, key string, def any) any
}

var (
	_ ManifestStore = (*ManifestRepository)(nil)
	_ AckStore      = (*AcknowledgmentRepository)(nil)
	_ MuteStore     = (*MuteRepository)(nil)
	_ SettingsStore = (*ConfigRepository)(nil)
)
