package database

import (
	"sync"
	"time"
)

// QueryStats is a snapshot of the running query aggregate.
type QueryStats struct {
	Total       int64         `json:"total"`
	Slow        int64         `json:"slow"`
	Failed      int64         `json:"failed"`
	AvgDuration time.Duration `json:"avg_duration_ns"`
}

// PoolStats reports pool occupancy.
type PoolStats struct {
	InUse    int64 `json:"in_use"`
	PeakUse  int64 `json:"peak_in_use"`
	Acquired int64 `json:"acquired"`
	Released int64 `json:"released"`
	Open     int   `json:"open"`
	Idle     int   `json:"idle"`
	MaxOpen  int   `json:"max_open"`
	Waits    int64 `json:"wait_count"`
}

// Stats combines query and pool statistics.
type Stats struct {
	Queries QueryStats `json:"queries"`
	Pool    PoolStats  `json:"pool"`
}

type queryStats struct {
	mu     sync.Mutex
	total  int64
	slow   int64
	failed int64
	sum    time.Duration
}

func (s *queryStats) record(d time.Duration, slow, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.sum += d
	if slow {
		s.slow++
	}
	if failed {
		s.failed++
	}
}

func (s *queryStats) snapshot() QueryStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := QueryStats{Total: s.total, Slow: s.slow, Failed: s.failed}
	if s.total > 0 {
		out.AvgDuration = s.sum / time.Duration(s.total)
	}
	return out
}

func (s *queryStats) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total, s.slow, s.failed, s.sum = 0, 0, 0, 0
}
