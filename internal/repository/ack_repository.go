package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bassista/manifest_alert/internal/cache"
	"github.com/bassista/manifest_alert/internal/errs"
	"github.com/containerd/errdefs"
)

const (
	AckFile          = "ack.json"
	ackAllKey        = "acknowledgments"
	ackDateKeyPrefix = "acknowledgments:"
)

// ErrAckNotFound is returned by Get when no record has the requested key.
var ErrAckNotFound = fmt.Errorf("acknowledgment %w", errdefs.ErrNotFound)

func ackDateKey(date string) string { return ackDateKeyPrefix + date }

// AcknowledgmentRepository manages the shared acknowledgment log.
//
// Writes load the whole log fresh from the share, merge by natural key and
// write the whole log back. Two machines writing at the same time can lose
// one of the updates; the last writer wins.
type AcknowledgmentRepository struct {
	store *docStore
}

func NewAcknowledgmentRepository(opts Options) (*AcknowledgmentRepository, error) {
	s, err := newDocStore(opts, AckFile, "acks")
	if err != nil {
		return nil, err
	}
	return &AcknowledgmentRepository{store: s}, nil
}

func (r *AcknowledgmentRepository) Filename() string { return r.store.Filename() }

// Invalidate drops the whole-log entry and every per-date entry.
func (r *AcknowledgmentRepository) Invalidate() {
	r.store.cache.Invalidate(ackAllKey)
	r.store.cache.InvalidatePrefix(ackDateKeyPrefix)
}

func (r *AcknowledgmentRepository) fetch(ctx context.Context) (AckDocument, error) {
	var doc AckDocument
	err := r.store.loadNetwork(ctx, &doc, func() error {
		doc.Acknowledgments = r.sanitize(doc.Acknowledgments)
		return nil
	})
	return doc, err
}

// sanitize drops records that fail validation, logging each one.
func (r *AcknowledgmentRepository) sanitize(in []Acknowledgment) []Acknowledgment {
	out := make([]Acknowledgment, 0, len(in))
	for _, a := range in {
		if err := a.Validate(); err != nil {
			r.store.log.WithError(err).Warnf("skipping invalid acknowledgment %s %s %q", a.Date, a.ManifestTime, a.Carrier)
			continue
		}
		out = append(out, a)
	}
	return out
}

func (r *AcknowledgmentRepository) loadDocument(ctx context.Context) (AckDocument, error) {
	doc, err := cache.Load(ctx, r.store.cache, cache.TierNetwork, ackAllKey, false, r.fetch)
	if err == nil {
		return doc, nil
	}
	if ctx.Err() != nil {
		return AckDocument{}, ctx.Err()
	}
	var backup AckDocument
	if r.store.fallback(err, &backup) {
		backup.Acknowledgments = r.sanitize(backup.Acknowledgments)
		return backup, nil
	}
	r.store.log.Warn("no acknowledgment source available, using empty log")
	return AckDocument{Acknowledgments: []Acknowledgment{}}, nil
}

// LoadAll returns every stored acknowledgment.
func (r *AcknowledgmentRepository) LoadAll(ctx context.Context) ([]Acknowledgment, error) {
	doc, err := r.loadDocument(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(doc.Acknowledgments), nil
}

// LoadForDate returns the acknowledgments of date. Served from the fast tier.
func (r *AcknowledgmentRepository) LoadForDate(ctx context.Context, date string) ([]Acknowledgment, error) {
	if !IsDate(date) {
		return nil, errs.Validation("date", date, errors.New("expected YYYY-MM-DD"))
	}
	acks, err := cache.Load(ctx, r.store.cache, cache.TierFast, ackDateKey(date), false, func(ctx context.Context) ([]Acknowledgment, error) {
		doc, err := r.loadDocument(ctx)
		if err != nil {
			return nil, err
		}
		return FilterByDate(doc.Acknowledgments, date), nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(acks), nil
}

// Get finds one acknowledgment by natural key.
func (r *AcknowledgmentRepository) Get(ctx context.Context, date, manifestTime, carrier string) (Acknowledgment, error) {
	acks, err := r.LoadForDate(ctx, date)
	if err != nil {
		return Acknowledgment{}, err
	}
	if t, ok := NormalizeClock(strings.TrimSpace(manifestTime)); ok {
		manifestTime = t
	}
	key := AckKey{Date: date, ManifestTime: manifestTime, Carrier: strings.TrimSpace(carrier)}
	for _, a := range acks {
		if a.Key() == key {
			return a, nil
		}
	}
	return Acknowledgment{}, ErrAckNotFound
}

// Save stores one acknowledgment, replacing any record with the same key.
func (r *AcknowledgmentRepository) Save(ctx context.Context, ack Acknowledgment) error {
	_, err := r.SaveMany(ctx, ack)
	return err
}

// SaveMany merges acks into the shared log in one write and returns how
// many replaced existing records.
func (r *AcknowledgmentRepository) SaveMany(ctx context.Context, acks ...Acknowledgment) (int, error) {
	if len(acks) == 0 {
		return 0, nil
	}
	now := r.store.now()
	prepared := make([]Acknowledgment, len(acks))
	for i, a := range acks {
		if err := a.Validate(); err != nil {
			return 0, err
		}
		if a.Timestamp.IsZero() {
			a.Timestamp = NewTimestamp(now)
		}
		prepared[i] = a
	}

	replaced := 0
	err := r.update(ctx, func(doc *AckDocument) bool {
		for _, a := range prepared {
			var was bool
			doc.Acknowledgments, was = MergeAcknowledgment(doc.Acknowledgments, a)
			if was {
				replaced++
			}
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	r.store.log.Infof("saved %d acknowledgments (%d replaced)", len(prepared), replaced)
	return replaced, nil
}

// ClearDate removes every acknowledgment of date and returns how many went.
func (r *AcknowledgmentRepository) ClearDate(ctx context.Context, date string) (int, error) {
	if !IsDate(date) {
		return 0, errs.Validation("date", date, errors.New("expected YYYY-MM-DD"))
	}
	return r.removeWhere(ctx, func(a Acknowledgment) bool { return a.Date == date })
}

// Cleanup removes acknowledgments dated before now minus keepDays.
func (r *AcknowledgmentRepository) Cleanup(ctx context.Context, keepDays int, now time.Time) (int, error) {
	if keepDays <= 0 {
		return 0, errs.Validation("keep_days", fmt.Sprint(keepDays), errors.New("must be positive"))
	}
	cutoff := now.AddDate(0, 0, -keepDays).Format(DateLayout)
	removed, err := r.removeWhere(ctx, func(a Acknowledgment) bool { return a.Date < cutoff })
	if err == nil && removed > 0 {
		r.store.log.Infof("removed %d acknowledgments older than %s", removed, cutoff)
	}
	return removed, err
}

// Summary aggregates the acknowledgments of date.
func (r *AcknowledgmentRepository) Summary(ctx context.Context, date string) (AckSummary, error) {
	acks, err := r.LoadForDate(ctx, date)
	if err != nil {
		return AckSummary{}, err
	}
	return Summarize(date, acks), nil
}

func (r *AcknowledgmentRepository) removeWhere(ctx context.Context, drop func(Acknowledgment) bool) (int, error) {
	removed := 0
	err := r.update(ctx, func(doc *AckDocument) bool {
		kept := doc.Acknowledgments[:0]
		for _, a := range doc.Acknowledgments {
			if drop(a) {
				removed++
				continue
			}
			kept = append(kept, a)
		}
		doc.Acknowledgments = kept
		return removed > 0
	})
	return removed, err
}

// update runs one read-modify-write cycle against the share. mutate reports
// whether anything changed; nothing is written otherwise.
func (r *AcknowledgmentRepository) update(ctx context.Context, mutate func(doc *AckDocument) bool) error {
	var doc AckDocument
	if _, err := r.store.loadForWrite(ctx, &doc, func() error {
		doc.Acknowledgments = r.sanitize(doc.Acknowledgments)
		return nil
	}); err != nil {
		r.store.log.WithError(err).Warn("cannot read acknowledgment log for update")
		return err
	}
	if !mutate(&doc) {
		return nil
	}
	doc.Stamp(r.store.now())
	if err := r.store.save(ctx, doc); err != nil {
		return err
	}
	r.Invalidate()
	return nil
}
