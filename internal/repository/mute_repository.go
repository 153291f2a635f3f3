package repository

import (
	"context"
	"time"

	"github.com/bassista/manifest_alert/internal/cache"
)

const (
	MuteFile = "mute_status.json"
	muteKey  = "mute_status"
)

// MuteRepository manages the single shared mute/snooze state.
type MuteRepository struct {
	store *docStore
}

func NewMuteRepository(opts Options) (*MuteRepository, error) {
	s, err := newDocStore(opts, MuteFile, "mute")
	if err != nil {
		return nil, err
	}
	return &MuteRepository{store: s}, nil
}

func (r *MuteRepository) Filename() string { return r.store.Filename() }

// Invalidate drops the status from both tiers.
func (r *MuteRepository) Invalidate() {
	r.store.cache.Invalidate(muteKey, cache.TierFast, cache.TierNetwork)
}

func (r *MuteRepository) fetch(ctx context.Context) (MuteStatus, error) {
	var doc MuteDocument
	err := r.store.loadNetwork(ctx, &doc, doc.MuteStatus.Validate)
	return doc.MuteStatus, err
}

// Load returns the stored status. It tries the fast tier, then the network
// tier, then the local backup, and finally reports unmuted.
func (r *MuteRepository) Load(ctx context.Context) (MuteStatus, error) {
	st, err := cache.Load(ctx, r.store.cache, cache.TierFast, muteKey, false, r.fetch)
	if err == nil {
		return st, nil
	}
	r.store.log.WithError(err).Debug("fast tier load failed, trying network tier")
	st, err = cache.Load(ctx, r.store.cache, cache.TierNetwork, muteKey, false, r.fetch)
	if err == nil {
		return st, nil
	}
	if ctx.Err() != nil {
		return MuteStatus{}, ctx.Err()
	}
	var doc MuteDocument
	if r.store.fallback(err, &doc) {
		return doc.MuteStatus, nil
	}
	r.store.log.Warn("mute status unavailable, reporting unmuted")
	return Unmuted(""), nil
}

// IsMuted reports whether alerts are muted right now.
func (r *MuteRepository) IsMuted(ctx context.Context) (bool, error) {
	st, err := r.Load(ctx)
	if err != nil {
		return false, err
	}
	return st.IsCurrentlyMuted(r.store.now()), nil
}

// Save replaces the shared status and drops both cache tiers.
func (r *MuteRepository) Save(ctx context.Context, st MuteStatus) error {
	if err := st.Validate(); err != nil {
		return err
	}
	doc := MuteDocument{
		MuteStatus:  st,
		LastUpdated: NewTimestamp(r.store.now()),
		Version:     DocumentVersion,
	}
	if err := r.store.save(ctx, doc); err != nil {
		return err
	}
	r.Invalidate()
	r.store.log.WithField("muted", st.IsMuted).WithField("type", st.MuteType).Infof("mute status saved by %q", st.MutedBy)
	return nil
}

// Mute mutes indefinitely, or for duration when it is positive.
func (r *MuteRepository) Mute(ctx context.Context, user, reason string, duration time.Duration) (MuteStatus, error) {
	st, err := Muted(user, reason, duration, r.store.now())
	if err != nil {
		return MuteStatus{}, err
	}
	return st, r.Save(ctx, st)
}

// Snooze mutes for minutes.
func (r *MuteRepository) Snooze(ctx context.Context, user string, minutes int) (MuteStatus, error) {
	st, err := Snoozed(user, minutes, r.store.now())
	if err != nil {
		return MuteStatus{}, err
	}
	return st, r.Save(ctx, st)
}

func (r *MuteRepository) Unmute(ctx context.Context, user string) (MuteStatus, error) {
	st := Unmuted(user)
	return st, r.Save(ctx, st)
}

// Toggle unmutes when currently muted, otherwise mutes for duration
// (indefinitely when zero).
func (r *MuteRepository) Toggle(ctx context.Context, user string, duration time.Duration) (MuteStatus, error) {
	cur, err := r.Load(ctx)
	if err != nil {
		return MuteStatus{}, err
	}
	if cur.IsCurrentlyMuted(r.store.now()) {
		return r.Unmute(ctx, user)
	}
	return r.Mute(ctx, user, "Toggled", duration)
}
