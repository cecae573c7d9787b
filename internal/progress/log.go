package progress

import (
	"log/slog"
	"sync/atomic"
	"time"

	"strmsync/internal/logging"
)

// Verbosity levels accepted by [logging] verbosity.
const (
	VerbosityQuiet   = "quiet"
	VerbosityNormal  = "normal"
	VerbosityVerbose = "verbose"
	VerbosityDebug   = "debug"
)

// LogSink writes progress as structured log lines. Per-item lines are only
// emitted at verbose or debug verbosity.
type LogSink struct {
	logger  *slog.Logger
	perItem bool
	items   atomic.Int64
}

// NewLogSink constructs a log sink for the given verbosity.
func NewLogSink(logger *slog.Logger, verbosity string) *LogSink {
	return &LogSink{
		logger:  logging.NewComponentLogger(logger, "progress"),
		perItem: verbosity == VerbosityVerbose || verbosity == VerbosityDebug,
	}
}

func (s *LogSink) PhaseStarted(phase Phase, total int) {
	s.items.Store(0)
	s.logger.Info("phase started",
		logging.String(logging.FieldPhase, string(phase)),
		logging.Int("total", total),
	)
}

func (s *LogSink) ItemDone(phase Phase, index int, label string) {
	n := s.items.Add(1)
	if !s.perItem {
		return
	}
	s.logger.Info("item done",
		logging.String(logging.FieldPhase, string(phase)),
		logging.Int("index", index),
		logging.Int64("done", n),
		logging.String("item", label),
	)
}

func (s *LogSink) StatsUpdate(stats RunStats) {
	total := stats.Total()
	s.logger.Debug("stats update",
		logging.Int("found", total.Found),
		logging.Int("allowed", total.Allowed),
		logging.Int("excluded_policy", total.ExcludedPolicy),
		logging.Int("excluded_error", total.ExcludedError),
	)
}

func (s *LogSink) PhaseComplete(phase Phase, elapsed time.Duration) {
	s.logger.Info("phase complete",
		logging.String(logging.FieldPhase, string(phase)),
		logging.Duration("duration", elapsed),
		logging.Int64("items", s.items.Load()),
	)
}

func (s *LogSink) RunComplete(stats RunStats) {
	total := stats.Total()
	attrs := []logging.Attr{
		logging.String(logging.FieldRunID, stats.RunID),
		logging.Bool("dry_run", stats.DryRun),
		logging.Duration("duration", stats.Duration),
		logging.Int("found", total.Found),
		logging.Int("allowed", total.Allowed),
		logging.Int("excluded_policy", total.ExcludedPolicy),
		logging.Int("excluded_error", total.ExcludedError),
		logging.Int("owned_locally", total.Owned),
		logging.Int("strm_created", total.Created),
		logging.Int("strm_up_to_date", total.UpToDate),
		logging.Int("strm_failed", total.Failed),
		logging.Int("orphans_removed", stats.OrphansRemoved),
		logging.Int("dirs_removed", stats.DirsRemoved),
		logging.Int("lookups", stats.Lookups),
		logging.Int("cache_hits", stats.CacheHits),
		logging.Int("rate_limited", stats.RateLimited),
		logging.Int("parse_errors", stats.ParseErrors),
		logging.Int("duplicates", stats.Duplicates),
		logging.Int("unclassified", stats.Unclassified),
		logging.Int("ignored", stats.Ignored),
		logging.Int("replays", stats.Replays),
	}
	if stats.CacheDegraded {
		attrs = append(attrs, logging.Alert("cache_degraded"))
	}
	s.logger.Info("run complete", logging.Args(attrs...)...)
}

func (s *LogSink) RunFailed(err error) {
	logging.ErrorWithContext(s.logger, "run failed", "run_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check configuration and cache path"),
	)
}
