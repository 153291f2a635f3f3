package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bassista/manifest_alert/internal/logger"
	"github.com/bassista/manifest_alert/internal/repository"
)

const (
	DefaultRetentionDays = 30
	DefaultBackupsToKeep = 10
	DefaultRunAt         = "02:00"
	DefaultPoll          = time.Minute
)

// Pruner removes old network-side backups of one shared file.
type Pruner interface {
	PruneBackups(ctx context.Context, filename string, keep int) (int, error)
}

// Options configures a MaintenanceScheduler. Zero values fall back to the defaults.
type Options struct {
	Acks   repository.Cleaner
	Pruner Pruner
	// Files are the shared documents whose backups are pruned.
	Files []string
	// RetentionDays is how many days of acknowledgments are kept.
	RetentionDays int
	// BackupsToKeep is how many network backups survive per file; zero disables pruning.
	BackupsToKeep int
	// RunAt is the local "HH:MM" after which the daily run happens.
	RunAt    string
	Poll     time.Duration
	Location *time.Location
	Now      func() time.Time
}

// Result describes one maintenance run.
type Result struct {
	Day            string         `json:"day"`
	AcksRemoved    int            `json:"acks_removed"`
	BackupsRemoved map[string]int `json:"backups_removed"`
	Duration       time.Duration  `json:"duration"`
}

// MaintenanceScheduler polls on a fixed interval and runs the maintenance
// tasks at most once per day (in the configured timezone), after RunAt.
// A failed run is retried on the next tick.
//
// NOTE: the day flag is in-memory only; a restart after RunAt runs again.
type MaintenanceScheduler struct {
	acks          repository.Cleaner
	pruner        Pruner
	files         []string
	retentionDays int
	backupsToKeep int
	runAt         time.Time
	poll          time.Duration
	loc           *time.Location
	now           func() time.Time

	mu         sync.Mutex
	ranDayKey  string
	lastResult *Result
}

func NewMaintenanceScheduler(opts Options) (*MaintenanceScheduler, error) {
	if opts.Acks == nil && opts.Pruner == nil {
		return nil, errors.New("maintenance scheduler has nothing to do")
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = DefaultRetentionDays
	}
	if opts.RunAt == "" {
		opts.RunAt = DefaultRunAt
	}
	runAt, err := time.Parse(repository.TimeLayout, opts.RunAt)
	if err != nil || !repository.IsClock(opts.RunAt) {
		return nil, fmt.Errorf("invalid maintenance run_at %q: expected HH:MM", opts.RunAt)
	}
	if opts.Poll <= 0 {
		opts.Poll = DefaultPoll
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &MaintenanceScheduler{
		acks:          opts.Acks,
		pruner:        opts.Pruner,
		files:         opts.Files,
		retentionDays: opts.RetentionDays,
		backupsToKeep: opts.BackupsToKeep,
		runAt:         runAt,
		poll:          opts.Poll,
		loc:           opts.Location,
		now:           opts.Now,
	}, nil
}

func (s *MaintenanceScheduler) Start(ctx context.Context) {
	logger.WithComponent("sched").Debugf("starting maintenance scheduler with interval: %v, run at: %s, timezone: %s", s.poll, s.runAt.Format(repository.TimeLayout), s.loc.String())
	ticker := time.NewTicker(s.poll)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.WithComponent("sched").Info("scheduler stopped")
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *MaintenanceScheduler) tick(ctx context.Context) {
	now := s.now().In(s.loc)
	todayKey := dayKey(now)
	if !s.due(now) {
		logger.WithComponent("sched").Tracef("maintenance not due at %s", now.Format("15:04:05"))
		return
	}
	if s.ranToday(todayKey) {
		return
	}

	res, err := s.RunNow(ctx)
	if err != nil {
		logger.WithComponent("sched").Errorf("maintenance for %s failed, retrying next tick: %v", todayKey, err)
		return
	}
	s.mu.Lock()
	s.ranDayKey = todayKey
	s.mu.Unlock()
	logger.WithComponent("sched").Infof("maintenance for %s done: %d acknowledgments removed", res.Day, res.AcksRemoved)
}

// due reports whether now is at or after today's RunAt.
func (s *MaintenanceScheduler) due(now time.Time) bool {
	start := time.Date(now.Year(), now.Month(), now.Day(), s.runAt.Hour(), s.runAt.Minute(), 0, 0, now.Location())
	return !now.Before(start)
}

func (s *MaintenanceScheduler) ranToday(todayKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ranDayKey == todayKey
}

// RunNow runs every maintenance task once, regardless of the day flag.
// Each task runs even if an earlier one failed; the errors are joined.
func (s *MaintenanceScheduler) RunNow(ctx context.Context) (Result, error) {
	start := time.Now()
	now := s.now().In(s.loc)
	res := Result{Day: dayKey(now), BackupsRemoved: map[string]int{}}
	var errList []error

	if s.acks != nil {
		n, err := s.acks.Cleanup(ctx, s.retentionDays, now)
		if err != nil {
			errList = append(errList, fmt.Errorf("acknowledgment cleanup: %w", err))
		}
		res.AcksRemoved = n
	}

	if s.pruner != nil && s.backupsToKeep > 0 {
		for _, f := range s.files {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			default:
			}
			n, err := s.pruner.PruneBackups(ctx, f, s.backupsToKeep)
			if err != nil {
				errList = append(errList, fmt.Errorf("prune %s: %w", f, err))
				continue
			}
			if n > 0 {
				res.BackupsRemoved[f] = n
				logger.WithComponent("sched").Debugf("pruned %d backups of %s", n, f)
			}
		}
	}

	res.Duration = time.Since(start)
	s.mu.Lock()
	s.lastResult = &res
	s.mu.Unlock()
	return res, errors.Join(errList...)
}

// LastResult returns the outcome of the most recent run, if any.
func (s *MaintenanceScheduler) LastResult() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastResult == nil {
		return Result{}, false
	}
	return *s.lastResult, true
}

func dayKey(t time.Time) string {
	return t.Format(repository.DateLayout)
}
