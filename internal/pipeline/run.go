package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"strmsync/internal/cache"
	"strmsync/internal/catalog"
	"strmsync/internal/filter"
	"strmsync/internal/logging"
	"strmsync/internal/mediascan"
	"strmsync/internal/playlist"
	"strmsync/internal/progress"
	"strmsync/internal/report"
	"strmsync/internal/services"
	"strmsync/internal/strmsync"
)

const refreshTimeout = 30 * time.Second

// Options tunes one run. Both flags are ORed with their config values.
type Options struct {
	DryRun          bool
	ForceRegenerate bool
}

// Runner executes runs against one Env.
type Runner struct {
	env    *Env
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

// NewRunner validates env and returns an idle runner.
func NewRunner(env *Env) (*Runner, error) {
	if env == nil {
		return nil, services.Wrap(services.ErrConfiguration, "startup", "new runner", "environment is required", nil)
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	if env.Sink == nil {
		env.Sink = progress.Nop{}
	}
	return &Runner{
		env:    env,
		logger: logging.NewComponentLogger(env.Logger, "pipeline"),
		state:  StateIdle,
	}, nil
}

// State returns the current state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle && !r.state.Terminal() {
		return ErrRunInProgress
	}
	r.state = StateIdle
	return nil
}

func (r *Runner) transition(to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !canTransition(r.state, to) {
		panic(fmt.Sprintf("pipeline: invalid transition %s -> %s", r.state, to))
	}
	r.state = to
}

// run carries the per-run working set between phases.
type run struct {
	id      string
	opts    Options
	stats   progress.RunStats
	local   *mediascan.Index
	entries []catalog.Entry
	outcome filter.Outcome
	plan    strmsync.Plan
	syncer  *strmsync.Synchronizer
}

// ErrRunInProgress is returned when Run is called while another run on the
// same runner has not finished.
var ErrRunInProgress = errors.New("run already in progress")

// Run executes one sync. The returned statistics are populated even when an
// error is returned.
func (r *Runner) Run(ctx context.Context, opts Options) (progress.RunStats, error) {
	if err := r.reset(); err != nil {
		return progress.RunStats{}, err
	}
	cfg := r.env.Config
	opts.DryRun = opts.DryRun || cfg.Run.DryRun
	opts.ForceRegenerate = opts.ForceRegenerate || cfg.Run.ForceRegenerate

	rn := &run{id: uuid.NewString(), opts: opts}
	rn.stats = progress.NewRunStats(rn.id, opts.DryRun)
	ctx = services.WithRunID(ctx, rn.id)
	logger := logging.WithContext(ctx, r.logger)

	lock, err := acquireLock(cfg.LockPath())
	if err != nil {
		return r.fail(ctx, rn, err)
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			logging.WarnWithContext(logger, "failed to release run lock", "lock_release_failed",
				logging.Error(unlockErr),
				logging.String(logging.FieldImpact, "the next run may report the cache as locked"),
			)
		}
	}()

	logger.Info("run started",
		logging.Bool("dry_run", opts.DryRun),
		logging.Bool("force_regenerate", opts.ForceRegenerate),
		logging.Int("workers", r.env.Workers),
	)

	rn.syncer = strmsync.New(cfg.Paths.OutputDir, r.env.Cache, strmsync.Options{
		Logger: r.env.Logger,
		DryRun: opts.DryRun,
		Force:  opts.ForceRegenerate,
		OnItem: func(index int, label string) {
			r.env.Sink.ItemDone(progress.PhaseSynchronizing, index, label)
		},
	})

	phases := []struct {
		state State
		fn    func(context.Context, *run) error
	}{
		{StateScanning, r.scan},
		{StateParsing, r.parse},
		{StateFiltering, r.filter},
		{StateSynchronizing, r.synchronize},
		{StateCleanup, r.cleanup},
	}
	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, rn, err)
		}
		r.transition(phase.state)
		phaseCtx := services.WithPhase(ctx, phase.state.String())
		started := time.Now()
		if err := phase.fn(phaseCtx, rn); err != nil {
			return r.fail(ctx, rn, err)
		}
		elapsed := time.Since(started)
		rn.stats.Phases = append(rn.stats.Phases, progress.PhaseTiming{Phase: phase.state.Phase(), Duration: elapsed})
		r.env.Sink.PhaseComplete(phase.state.Phase(), elapsed)
		r.env.Sink.StatsUpdate(rn.stats.Clone())
	}

	r.finish(ctx, rn)
	r.transition(StateDone)
	rn.stats.State = StateDone.String()
	rn.stats.Duration = time.Since(rn.stats.Started)
	rn.stats.CacheDegraded = r.env.Cache.Degraded()
	r.env.Sink.RunComplete(rn.stats.Clone())
	r.notify(ctx, func(ctx context.Context) error {
		return r.env.Notifier.NotifyRunCompleted(ctx, rn.stats.Clone())
	})
	return rn.stats, nil
}

func (r *Runner) fail(ctx context.Context, rn *run, err error) (progress.RunStats, error) {
	r.transition(StateFailed)
	rn.stats.State = StateFailed.String()
	rn.stats.Duration = time.Since(rn.stats.Started)
	rn.stats.CacheDegraded = r.env.Cache.Degraded()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "run canceled", "run_canceled",
			logging.Error(err),
			logging.String(logging.FieldImpact, "output tree was left as of the last completed phase"),
		)
	} else {
		logging.ErrorWithContext(logging.WithContext(ctx, r.logger), "run failed", "run_failed",
			logging.Error(err),
			logging.String("reason", services.Reason(err)),
			logging.Bool("fatal", services.IsFatal(err)),
		)
	}
	r.env.Sink.RunFailed(err)
	r.notify(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return r.env.Notifier.NotifyRunFailed(ctx, err)
	})
	return rn.stats, err
}

func (r *Runner) notify(ctx context.Context, send func(context.Context) error) {
	if r.env.Notifier == nil {
		return
	}
	if err := send(ctx); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "run summary was not pushed"),
		)
	}
}

func (r *Runner) scan(ctx context.Context, rn *run) error {
	roots := r.env.Config.Paths.ExistingMediaDirs
	r.env.Sink.PhaseStarted(progress.PhaseScanning, len(roots))
	index, scanReport := mediascan.Scan(ctx, roots, mediascan.Options{
		Workers: r.env.Workers,
		Logger:  r.env.Logger,
		OnRoot: func(i int, root string) {
			r.env.Sink.ItemDone(progress.PhaseScanning, i, root)
		},
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	rn.local = index
	rn.stats.LocalFiles = scanReport.Files
	rn.stats.LocalIndexed = scanReport.Indexed
	rn.stats.RootsSkipped = scanReport.RootsSkipped

	if err := r.env.Cache.ReplaceLocalMedia(ctx, index.Records()); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "failed to persist local media index", "local_media_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "cache stats show a stale local media count"),
		)
	}
	return nil
}

func (r *Runner) parse(ctx context.Context, rn *run) error {
	path := r.env.Config.Paths.Playlist
	file, err := os.Open(path)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "parsing", "open playlist", path, err)
	}
	defer file.Close()

	r.env.Sink.PhaseStarted(progress.PhaseParsing, 0)
	result, err := playlist.Parse(ctx, file, r.env.Classifier, playlist.Options{
		Logger: r.env.Logger,
		OnEntry: func(i int, entry catalog.Entry) {
			r.env.Sink.ItemDone(progress.PhaseParsing, i, entry.RawTitle)
		},
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		// A read failure keeps whatever was parsed before it.
		rn.stats.ParseErrors++
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "playlist read stopped early", "playlist_read_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the playlist for oversized lines or truncation"),
			logging.String(logging.FieldImpact, "entries after the failure point are ignored"),
		)
	}

	stats := result.Stats
	rn.entries = result.Entries
	rn.stats.Pairs = stats.Pairs
	rn.stats.Replays = result.Replays
	rn.stats.Duplicates = stats.Duplicates
	rn.stats.ParseErrors += stats.ParseErrors
	rn.stats.Unclassified = stats.Unclassified
	rn.stats.Ignored = stats.Ignored
	for category, n := range stats.Found {
		rn.stats.Update(category, func(c *progress.CategoryStats) { c.Found = n })
	}
	return nil
}

func (r *Runner) filter(ctx context.Context, rn *run) error {
	r.env.Sink.PhaseStarted(progress.PhaseFiltering, len(rn.entries))
	f := filter.New(r.env.Lookup, r.env.Cache, r.env.Rules, filter.Options{
		Logger: r.env.Logger,
		Policy: r.env.Retry,
		Force:  rn.opts.ForceRegenerate,
		OnItem: func(i int, d filter.Decision) {
			r.env.Sink.ItemDone(progress.PhaseFiltering, i, d.Entry.RawTitle)
		},
	})
	rn.outcome = f.Run(ctx, rn.entries, r.env.Workers)
	if err := ctx.Err(); err != nil {
		return err
	}

	out := rn.outcome
	rn.stats.Lookups = out.Lookups
	rn.stats.CacheHits = out.CacheHits
	rn.stats.RateLimited = out.RateLimited
	rn.stats.FilterSkipped = out.Skipped
	for category, counts := range out.ByCategory {
		rn.stats.Update(category, func(c *progress.CategoryStats) {
			c.Allowed = counts.Allowed
			c.ExcludedPolicy = counts.ExcludedPolicy
			c.ExcludedError = counts.ExcludedError
		})
	}
	for _, d := range out.Excluded {
		if d.Verdict == filter.VerdictExcludedError {
			rn.stats.ErrorReasons[d.Reason]++
		}
	}
	return nil
}

func (r *Runner) synchronize(ctx context.Context, rn *run) error {
	allowed := rn.outcome.Allowed
	rn.plan = rn.syncer.Plan(ctx, allowed, rn.local, r.env.Workers)
	if err := ctx.Err(); err != nil {
		return err
	}
	// Only planned writes report item progress.
	r.env.Sink.PhaseStarted(progress.PhaseSynchronizing, len(rn.plan.Writes))
	rn.stats.Collisions = rn.plan.Collisions
	for _, entry := range rn.plan.Owned {
		rn.stats.Update(entry.Category, func(c *progress.CategoryStats) { c.Owned++ })
	}
	for _, target := range rn.plan.UpToDate {
		rn.stats.Update(target.Entry.Category, func(c *progress.CategoryStats) { c.UpToDate++ })
	}

	result, err := rn.syncer.Apply(ctx, rn.plan, r.env.Workers)
	for category, n := range result.CreatedBy {
		rn.stats.Update(category, func(c *progress.CategoryStats) { c.Created = n })
	}
	for category, n := range result.FailedBy {
		rn.stats.Update(category, func(c *progress.CategoryStats) { c.Failed = n })
	}
	return err
}

func (r *Runner) cleanup(ctx context.Context, rn *run) error {
	r.env.Sink.PhaseStarted(progress.PhaseCleanup, 0)
	r.retainFailedLookups(ctx, rn)

	result, err := rn.syncer.Cleanup(ctx, rn.plan.Keep)
	rn.stats.OrphansRemoved = result.OrphansRemoved
	rn.stats.DirsRemoved = result.DirsRemoved
	rn.stats.CleanupFailed = result.Failed
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "orphan cleanup incomplete", "cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale pointer files may remain until the next run"),
		)
	}
	for _, e := range result.Errors {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "failed to remove orphan", "orphan_remove_failed",
			logging.Error(e),
			logging.String(logging.FieldImpact, "media server keeps listing a removed title"),
		)
	}
	return nil
}

// retainFailedLookups keeps the existing files of titles whose lookup failed
// for a transient reason so an outage does not empty the library.
func (r *Runner) retainFailedLookups(ctx context.Context, rn *run) {
	for _, d := range rn.outcome.Excluded {
		if d.Verdict != filter.VerdictExcludedError || d.Reason == cache.ReasonNotFound {
			continue
		}
		record, ok, err := r.env.Cache.Get(ctx, d.Entry.Key)
		if err != nil || !ok || record.StrmPath == "" {
			continue
		}
		rn.plan.Retain(record.StrmPath)
	}
}

// finish writes the excluded report and asks the media server to rescan.
// Neither step can fail the run.
func (r *Runner) finish(ctx context.Context, rn *run) {
	cfg := r.env.Config
	logger := logging.WithContext(ctx, r.logger)

	if cfg.Run.WriteExcludedReport {
		path := report.Path(cfg.Paths.OutputDir)
		if rn.opts.DryRun {
			logger.Info("excluded report skipped", logging.String("reason", "dry run"))
		} else if err := report.Write(path, rn.outcome.Excluded, len(rn.outcome.Allowed)); err != nil {
			logging.WarnWithContext(logger, "failed to write excluded report", "report_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "excluded titles are only visible in the logs"),
			)
		} else {
			logger.Info("excluded report written", logging.String("path", path))
		}
	}

	if rn.opts.DryRun || r.env.Refresher == nil || !r.env.Refresher.Enabled() {
		return
	}
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
	defer cancel()
	if err := r.env.Refresher.Refresh(refreshCtx); err != nil {
		logging.WarnWithContext(logger, "library refresh failed", "library_refresh_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check library_refresh.url and api_key"),
			logging.String(logging.FieldImpact, "new titles appear after the next scheduled library scan"),
		)
		return
	}
	logger.Info("library refresh triggered")
}
