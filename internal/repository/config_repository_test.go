package repository

import (
	"context"
	"testing"

	"github.com/bassista/manifest_alert/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConfigRepo(t *testing.T) (*ConfigRepository, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	r, err := NewConfigRepository(env.opts)
	require.NoError(t, err)
	return r, env
}

func TestSettings_DefaultsWhenMissing(t *testing.T) {
	r, _ := newConfigRepo(t)
	s, err := r.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestSettings_PartialDocumentFilled(t *testing.T) {
	r, env := newConfigRepo(t)
	env.writeShared(t, SettingsFile, `{"volume": 80, "theme": "dark"}`)

	s, err := r.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 80, s.Volume)
	assert.Equal(t, 30, s.AlertWindowMinutes)
	assert.True(t, s.SoundEnabled)

	assert.Equal(t, "dark", r.Setting(context.Background(), "theme", "light"))
	assert.Equal(t, float64(80), r.Setting(context.Background(), "volume", 0))
	assert.Equal(t, "x", r.Setting(context.Background(), "missing", "x"))
}

func TestSettings_SaveKeepsUnknownKeys(t *testing.T) {
	r, env := newConfigRepo(t)
	ctx := context.Background()
	env.writeShared(t, SettingsFile, `{"volume": 80, "theme": "dark"}`)

	s, err := r.Load(ctx)
	require.NoError(t, err)
	s.SoundEnabled = false
	require.NoError(t, r.Save(ctx, s))

	var raw map[string]any
	env.readShared(t, SettingsFile, &raw)
	assert.Equal(t, "dark", raw["theme"])
	assert.Equal(t, false, raw["sound_enabled"])
}

func TestSettings_SaveValidates(t *testing.T) {
	r, _ := newConfigRepo(t)
	s := DefaultSettings()
	s.Volume = 101
	err := r.Save(context.Background(), s)
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}
