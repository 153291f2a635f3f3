package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bassista/manifest_alert/internal/errs"
	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAckRepo(t *testing.T) (*AcknowledgmentRepository, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	r, err := NewAcknowledgmentRepository(env.opts)
	require.NoError(t, err)
	return r, env
}

func ack(date, at, carrier, user string) Acknowledgment {
	return Acknowledgment{Date: date, ManifestTime: at, Carrier: carrier, User: user}
}

func TestAck_SaveAndLoad(t *testing.T) {
	r, env := newAckRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, ack("2026-03-02", "07:00", "DHL Express", "sam")))
	require.NoError(t, r.Save(ctx, ack("2026-03-02", "13:00", "TNT Express", "alex")))
	require.NoError(t, r.Save(ctx, ack("2026-03-03", "07:00", "DHL Express", "sam")))

	all, err := r.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	day, err := r.LoadForDate(ctx, "2026-03-02")
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, "07:00", day[0].ManifestTime)
	assert.True(t, day[0].Timestamp.Equal(t0), "missing timestamp is set on save")

	var doc AckDocument
	env.readShared(t, AckFile, &doc)
	assert.Equal(t, 3, doc.Count)
	assert.Equal(t, DocumentVersion, doc.Version)
}

func TestAck_SameKeyReplaces(t *testing.T) {
	r, _ := newAckRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, ack("2026-03-02", "07:00", "DHL Express", "sam")))
	second := ack("2026-03-02", "07:00", "DHL Express", "alex")
	second.Reason = "late truck"
	replaced, err := r.SaveMany(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, replaced)

	got, err := r.Get(ctx, "2026-03-02", "07:00", "DHL Express")
	require.NoError(t, err)
	assert.Equal(t, "alex", got.User)
	assert.Equal(t, "late truck", got.Reason)

	all, err := r.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAck_GetNotFound(t *testing.T) {
	r, _ := newAckRepo(t)
	_, err := r.Get(context.Background(), "2026-03-02", "07:00", "DHL Express")
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
	assert.True(t, errors.Is(err, ErrAckNotFound))
}

func TestAck_ValidationRejected(t *testing.T) {
	r, _ := newAckRepo(t)
	ctx := context.Background()

	err := r.Save(ctx, ack("02/03/2026", "07:00", "DHL Express", "sam"))
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))

	err = r.Save(ctx, ack("2026-03-02", "7am", "DHL Express", "sam"))
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))

	err = r.Save(ctx, ack("2026-03-02", "07:00", "  ", "sam"))
	require.Error(t, err)

	_, err = r.LoadForDate(ctx, "yesterday")
	assert.True(t, errs.IsValidation(err))
}

func TestAck_InvalidRecordsSkippedOnRead(t *testing.T) {
	r, env := newAckRepo(t)
	env.writeShared(t, AckFile, `{"acknowledgments": [
		{"date": "2026-03-02", "manifest_time": "07:00", "carrier": "DHL Express", "user": "sam", "timestamp": "2026-03-02T07:05:00"},
		{"date": "2026-03-02", "manifest_time": "25:00", "carrier": "DHL Express", "user": "sam"},
		{"date": "2026-03-02", "manifest_time": "13:00", "carrier": "", "user": "sam"}
	]}`)

	all, err := r.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "07:00", all[0].ManifestTime)
}

func TestAck_SingleDigitHourSurvivesUpdate(t *testing.T) {
	r, env := newAckRepo(t)
	ctx := context.Background()
	env.writeShared(t, AckFile, `{"acknowledgments": [
		{"date": "2026-03-02", "manifest_time": "7:00", "carrier": "DHL Express", "user": "sam"}
	]}`)

	require.NoError(t, r.Save(ctx, ack("2026-03-02", "13:00", "DHL Express", "alex")))

	var doc AckDocument
	env.readShared(t, AckFile, &doc)
	require.Len(t, doc.Acknowledgments, 2)
	assert.Equal(t, "07:00", doc.Acknowledgments[0].ManifestTime)

	got, err := r.Get(ctx, "2026-03-02", "7:00", "DHL Express")
	require.NoError(t, err)
	assert.Equal(t, "sam", got.User)
}

func TestAck_ForDateIsServedFromFastTier(t *testing.T) {
	r, env := newAckRepo(t)
	ctx := context.Background()
	require.NoError(t, r.Save(ctx, ack("2026-03-02", "07:00", "DHL Express", "sam")))

	_, err := r.LoadForDate(ctx, "2026-03-02")
	require.NoError(t, err)
	before := env.cache.Statistics()

	_, err = r.LoadForDate(ctx, "2026-03-02")
	require.NoError(t, err)
	after := env.cache.Statistics()
	assert.Equal(t, before.Hits+1, after.Hits)
	assert.Equal(t, before.Misses, after.Misses)
}

func TestAck_SaveFailsWhenShareUnreachable(t *testing.T) {
	r, env := newAckRepo(t)
	ctx := context.Background()
	require.NoError(t, r.Save(ctx, ack("2026-03-02", "07:00", "DHL Express", "sam")))

	env.breakShare(t)
	err := r.Save(ctx, ack("2026-03-02", "13:00", "DHL Express", "sam"))
	require.Error(t, err)
	assert.True(t, errs.IsNetwork(err))

	// reads keep working from the stale entry or the local backup
	env.clock.Advance(time.Minute)
	all, err := r.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAck_MalformedDocumentBlocksWrites(t *testing.T) {
	r, env := newAckRepo(t)
	env.writeShared(t, AckFile, `{"acknowledgments": [`)

	err := r.Save(context.Background(), ack("2026-03-02", "07:00", "DHL Express", "sam"))
	require.Error(t, err)

	all, err := r.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAck_ClearDate(t *testing.T) {
	r, _ := newAckRepo(t)
	ctx := context.Background()
	_, err := r.SaveMany(ctx,
		ack("2026-03-02", "07:00", "DHL Express", "sam"),
		ack("2026-03-02", "13:00", "DHL Express", "sam"),
		ack("2026-03-03", "07:00", "DHL Express", "sam"),
	)
	require.NoError(t, err)

	n, err := r.ClearDate(ctx, "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	day, err := r.LoadForDate(ctx, "2026-03-02")
	require.NoError(t, err)
	assert.Empty(t, day)
}

func TestAck_Cleanup(t *testing.T) {
	r, env := newAckRepo(t)
	ctx := context.Background()
	_, err := r.SaveMany(ctx,
		ack("2026-01-01", "07:00", "DHL Express", "sam"),
		ack("2026-01-30", "07:00", "DHL Express", "sam"),
		ack("2026-01-31", "07:00", "DHL Express", "sam"),
	)
	require.NoError(t, err)

	_, err = r.Cleanup(ctx, 0, t0)
	assert.True(t, errs.IsValidation(err))

	n, err := r.Cleanup(ctx, 30, t0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var doc AckDocument
	env.readShared(t, AckFile, &doc)
	require.Len(t, doc.Acknowledgments, 1)
	assert.Equal(t, "2026-01-31", doc.Acknowledgments[0].Date, "the cutoff day itself is kept")

	n, err = r.Cleanup(ctx, 30, t0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAck_Summary(t *testing.T) {
	r, _ := newAckRepo(t)
	ctx := context.Background()
	_, err := r.SaveMany(ctx,
		ack("2026-03-02", "07:00", "DHL Express", "sam"),
		ack("2026-03-02", "07:00", "TNT Express", "alex"),
		ack("2026-03-02", "13:00", "DHL Express", "sam"),
	)
	require.NoError(t, err)

	s, err := r.Summary(ctx, "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, 3, s.TotalCount)
	assert.Equal(t, 2, s.UniqueManifests)
	assert.Equal(t, 2, s.UniqueCarriers)
	assert.Equal(t, map[string]int{"sam": 2, "alex": 1}, s.ByUser)
}
