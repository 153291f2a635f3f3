package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockCleaner implements repository.Cleaner for testing
type MockCleaner struct {
	mock.Mock
}

func (m *MockCleaner) Cleanup(ctx context.Context, keepDays int, now time.Time) (int, error) {
	args := m.Called(ctx, keepDays, now)
	return args.Int(0), args.Error(1)
}

// MockPruner implements Pruner for testing
type MockPruner struct {
	mock.Mock
}

func (m *MockPruner) PruneBackups(ctx context.Context, filename string, keep int) (int, error) {
	args := m.Called(ctx, filename, keep)
	return args.Int(0), args.Error(1)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestScheduler(t *testing.T, cleaner *MockCleaner, pruner *MockPruner, clock *testClock) *MaintenanceScheduler {
	t.Helper()
	s, err := NewMaintenanceScheduler(Options{
		Acks:          cleaner,
		Pruner:        pruner,
		Files:         []string{"ack.json", "mute_status.json"},
		RetentionDays: 30,
		BackupsToKeep: 10,
		RunAt:         "02:00",
		Location:      time.UTC,
		Now:           clock.Now,
	})
	require.NoError(t, err)
	return s
}

func TestNewMaintenanceScheduler_Defaults(t *testing.T) {
	s, err := NewMaintenanceScheduler(Options{Acks: &MockCleaner{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultRetentionDays, s.retentionDays)
	assert.Equal(t, DefaultPoll, s.poll)
	assert.Equal(t, time.Local, s.loc)
	assert.Equal(t, 2, s.runAt.Hour())
}

func TestNewMaintenanceScheduler_Invalid(t *testing.T) {
	_, err := NewMaintenanceScheduler(Options{})
	assert.Error(t, err)

	_, err = NewMaintenanceScheduler(Options{Acks: &MockCleaner{}, RunAt: "2am"})
	assert.Error(t, err)
}

func TestDayKey(t *testing.T) {
	testTime := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-15", dayKey(testTime))
}

func TestTick_NotDueBeforeRunAt(t *testing.T) {
	cleaner := &MockCleaner{}
	pruner := &MockPruner{}
	clock := &testClock{now: time.Date(2026, 3, 2, 1, 59, 0, 0, time.UTC)}
	s := newTestScheduler(t, cleaner, pruner, clock)

	s.tick(context.Background())

	cleaner.AssertNotCalled(t, "Cleanup", mock.Anything, mock.Anything, mock.Anything)
	pruner.AssertNotCalled(t, "PruneBackups", mock.Anything, mock.Anything, mock.Anything)
}

func TestTick_RunsOncePerDay(t *testing.T) {
	cleaner := &MockCleaner{}
	pruner := &MockPruner{}
	clock := &testClock{now: time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)}
	s := newTestScheduler(t, cleaner, pruner, clock)

	cleaner.On("Cleanup", mock.Anything, 30, mock.Anything).Return(4, nil)
	pruner.On("PruneBackups", mock.Anything, "ack.json", 10).Return(2, nil)
	pruner.On("PruneBackups", mock.Anything, "mute_status.json", 10).Return(0, nil)

	s.tick(context.Background())
	clock.Set(time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC))
	s.tick(context.Background())

	cleaner.AssertNumberOfCalls(t, "Cleanup", 1)
	pruner.AssertNumberOfCalls(t, "PruneBackups", 2)

	res, ok := s.LastResult()
	require.True(t, ok)
	assert.Equal(t, "2026-03-02", res.Day)
	assert.Equal(t, 4, res.AcksRemoved)
	assert.Equal(t, map[string]int{"ack.json": 2}, res.BackupsRemoved)

	clock.Set(time.Date(2026, 3, 3, 2, 5, 0, 0, time.UTC))
	s.tick(context.Background())
	cleaner.AssertNumberOfCalls(t, "Cleanup", 2)
}

func TestTick_FailedRunRetried(t *testing.T) {
	cleaner := &MockCleaner{}
	pruner := &MockPruner{}
	clock := &testClock{now: time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)}
	s := newTestScheduler(t, cleaner, pruner, clock)

	cleaner.On("Cleanup", mock.Anything, 30, mock.Anything).Return(0, errors.New("share offline")).Once()
	cleaner.On("Cleanup", mock.Anything, 30, mock.Anything).Return(1, nil).Once()
	pruner.On("PruneBackups", mock.Anything, mock.Anything, 10).Return(0, nil)

	s.tick(context.Background())
	assert.False(t, s.ranToday("2026-03-02"))

	s.tick(context.Background())
	assert.True(t, s.ranToday("2026-03-02"))
	cleaner.AssertNumberOfCalls(t, "Cleanup", 2)
}

func TestRunNow_ContinuesAfterErrors(t *testing.T) {
	cleaner := &MockCleaner{}
	pruner := &MockPruner{}
	clock := &testClock{now: time.Date(2026, 3, 2, 0, 30, 0, 0, time.UTC)}
	s := newTestScheduler(t, cleaner, pruner, clock)

	cleaner.On("Cleanup", mock.Anything, 30, clock.Now()).Return(0, errors.New("ack failed"))
	pruner.On("PruneBackups", mock.Anything, "ack.json", 10).Return(0, errors.New("prune failed"))
	pruner.On("PruneBackups", mock.Anything, "mute_status.json", 10).Return(3, nil)

	res, err := s.RunNow(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "ack failed")
	assert.ErrorContains(t, err, "prune failed")
	assert.Equal(t, map[string]int{"mute_status.json": 3}, res.BackupsRemoved)
	assert.False(t, s.ranToday("2026-03-02"), "RunNow does not set the day flag")
}

func TestRunNow_PruningDisabled(t *testing.T) {
	cleaner := &MockCleaner{}
	pruner := &MockPruner{}
	s, err := NewMaintenanceScheduler(Options{
		Acks:   cleaner,
		Pruner: pruner,
		Files:  []string{"ack.json"},
		Now:    func() time.Time { return time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	cleaner.On("Cleanup", mock.Anything, DefaultRetentionDays, mock.Anything).Return(0, nil)

	_, err = s.RunNow(context.Background())
	require.NoError(t, err)
	pruner.AssertNotCalled(t, "PruneBackups", mock.Anything, mock.Anything, mock.Anything)
}

func TestStart_StopsOnCancel(t *testing.T) {
	cleaner := &MockCleaner{}
	cleaner.On("Cleanup", mock.Anything, mock.Anything, mock.Anything).Return(0, nil)
	s, err := NewMaintenanceScheduler(Options{
		Acks:     cleaner,
		RunAt:    "00:00",
		Poll:     5 * time.Millisecond,
		Location: time.UTC,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	assert.Eventually(t, func() bool {
		_, ok := s.LastResult()
		return ok
	}, time.Second, 5*time.Millisecond)
	cancel()
}
