package cache

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Statistics is a point-in-time snapshot of cache activity.
// Counters only grow; ClearAll resets them.
type Statistics struct {
	Hits              uint64  `json:"hits"`
	Misses            uint64  `json:"misses"`
	NetworkCallsSaved uint64  `json:"network_calls_saved"`
	StaleServed       uint64  `json:"stale_served"`
	LoadFailures      uint64  `json:"load_failures"`
	Sweeps            uint64  `json:"sweeps"`
	AverageAccessMs   float64 `json:"average_access_ms"`
	TotalEntries      int     `json:"total_entries"`
	MemoryEstimate    int64   `json:"memory_estimate_bytes"`
}

func (s Statistics) TotalAccesses() uint64 { return s.Hits + s.Misses }

// HitRatio is in [0,1]; zero when nothing has been accessed yet.
func (s Statistics) HitRatio() float64 {
	total := s.TotalAccesses()
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (s Statistics) MissRatio() float64 {
	if s.TotalAccesses() == 0 {
		return 0
	}
	return 1 - s.HitRatio()
}

func (s *Statistics) recordHit(d time.Duration) {
	s.Hits++
	s.updateAverage(d)
}

func (s *Statistics) recordMiss(d time.Duration) {
	s.Misses++
	s.updateAverage(d)
}

// updateAverage folds d into the running mean over all accesses.
func (s *Statistics) updateAverage(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000
	if ms <= 0 {
		return
	}
	total := s.TotalAccesses()
	if total <= 1 {
		s.AverageAccessMs = ms
		return
	}
	s.AverageAccessMs = (s.AverageAccessMs*float64(total-1) + ms) / float64(total)
}

// Summary formats the snapshot for operators.
func (s Statistics) Summary() map[string]string {
	return map[string]string{
		"total_accesses":      humanize.Comma(int64(s.TotalAccesses())),
		"hits":                humanize.Comma(int64(s.Hits)),
		"misses":              humanize.Comma(int64(s.Misses)),
		"hit_ratio":           fmt.Sprintf("%.2f%%", s.HitRatio()*100),
		"miss_ratio":          fmt.Sprintf("%.2f%%", s.MissRatio()*100),
		"network_calls_saved": humanize.Comma(int64(s.NetworkCallsSaved)),
		"stale_served":        humanize.Comma(int64(s.StaleServed)),
		"load_failures":       humanize.Comma(int64(s.LoadFailures)),
		"total_entries":       humanize.Comma(int64(s.TotalEntries)),
		"memory_usage":        humanize.Bytes(uint64(max(0, s.MemoryEstimate))),
		"avg_access_time_ms":  fmt.Sprintf("%.2f", s.AverageAccessMs),
	}
}
