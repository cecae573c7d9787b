package progress

import (
	"maps"
	"time"

	"strmsync/internal/catalog"
)

// CategoryStats holds per-category counters.
type CategoryStats struct {
	Found          int
	Allowed        int
	ExcludedPolicy int
	ExcludedError  int
	Owned          int
	Created        int
	UpToDate       int
	Failed         int
}

// PhaseTiming records how long a phase took.
type PhaseTiming struct {
	Phase    Phase
	Duration time.Duration
}

// RunStats is the in-memory summary of one run.
type RunStats struct {
	RunID    string
	DryRun   bool
	Started  time.Time
	Duration time.Duration
	State    string

	Categories map[catalog.Category]CategoryStats

	// Local media.
	LocalFiles   int
	LocalIndexed int
	RootsSkipped int

	// Parsing.
	Pairs        int
	Replays      int
	Duplicates   int
	ParseErrors  int
	Unclassified int
	Ignored      int

	// Filtering.
	Lookups       int
	CacheHits     int
	RateLimited   int
	FilterSkipped int
	ErrorReasons  map[string]int

	// Synchronizing and cleanup.
	Collisions     int
	OrphansRemoved int
	DirsRemoved    int
	CleanupFailed  int

	CacheDegraded bool
	Phases        []PhaseTiming
}

// NewRunStats returns empty statistics for a run.
func NewRunStats(runID string, dryRun bool) RunStats {
	return RunStats{
		RunID:        runID,
		DryRun:       dryRun,
		Started:      time.Now(),
		Categories:   make(map[catalog.Category]CategoryStats),
		ErrorReasons: make(map[string]int),
	}
}

// Update applies fn to the counters of category.
func (s *RunStats) Update(category catalog.Category, fn func(*CategoryStats)) {
	if s.Categories == nil {
		s.Categories = make(map[catalog.Category]CategoryStats)
	}
	c := s.Categories[category]
	fn(&c)
	s.Categories[category] = c
}

// Category returns the counters of category.
func (s RunStats) Category(category catalog.Category) CategoryStats {
	return s.Categories[category]
}

// Total sums the output categories.
func (s RunStats) Total() CategoryStats {
	var total CategoryStats
	for _, category := range catalog.OutputCategories {
		c := s.Categories[category]
		total.Found += c.Found
		total.Allowed += c.Allowed
		total.ExcludedPolicy += c.ExcludedPolicy
		total.ExcludedError += c.ExcludedError
		total.Owned += c.Owned
		total.Created += c.Created
		total.UpToDate += c.UpToDate
		total.Failed += c.Failed
	}
	return total
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s RunStats) Clone() RunStats {
	out := s
	out.Categories = maps.Clone(s.Categories)
	out.ErrorReasons = maps.Clone(s.ErrorReasons)
	out.Phases = append([]PhaseTiming(nil), s.Phases...)
	return out
}
