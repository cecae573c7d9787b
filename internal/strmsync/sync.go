package strmsync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"strmsync/internal/cache"
	"strmsync/internal/catalog"
	"strmsync/internal/fileutil"
	"strmsync/internal/logging"
	"strmsync/internal/mediascan"
	"strmsync/internal/services"
	"strmsync/internal/titlekey"
	"strmsync/internal/workers"
)

const maxErrorSamples = 50

// Cache is the subset of the decision store the synchronizer needs.
type Cache interface {
	Get(ctx context.Context, key titlekey.Key) (cache.Decision, bool, error)
	SetOutput(ctx context.Context, key titlekey.Key, strmPath string) error
	Scan(ctx context.Context, fn func(cache.Decision) error) error
}

// Options configures a Synchronizer.
type Options struct {
	Logger *slog.Logger
	// DryRun computes and counts everything without touching the filesystem
	// or the cache.
	DryRun bool
	// Force rewrites files even when they are up to date.
	Force bool
	// OnItem is called once per planned write, including dry-run writes.
	OnItem func(index int, label string)
}

// Target is one desired pointer file.
type Target struct {
	Entry catalog.Entry
	Path  string
}

// Plan is the desired output set.
type Plan struct {
	Writes   []Target
	UpToDate []Target
	Owned    []catalog.Entry
	// Collisions counts entries whose path was already claimed by an earlier
	// entry.
	Collisions int
	// Keep holds every path the output tree should still contain after the
	// sync.
	Keep map[string]struct{}
}

// Retain adds path to the keep set so Cleanup leaves it alone.
func (p *Plan) Retain(path string) {
	if path == "" {
		return
	}
	if p.Keep == nil {
		p.Keep = make(map[string]struct{})
	}
	p.Keep[filepath.Clean(path)] = struct{}{}
}

// ApplyResult summarizes the write step.
type ApplyResult struct {
	Created     int
	Failed      int
	DirsCreated int
	// Per-category breakdown of Created and Failed.
	CreatedBy map[catalog.Category]int
	FailedBy  map[catalog.Category]int
	Errors    []error
}

// CleanupResult summarizes the orphan pass.
type CleanupResult struct {
	OrphansRemoved int
	DirsRemoved    int
	Failed         int
	Errors         []error
}

// Synchronizer writes and prunes .strm files below one output directory.
type Synchronizer struct {
	outputDir string
	cache     Cache
	dryRun    bool
	force     bool
	logger    *slog.Logger
	onItem    func(int, string)
}

// New constructs a synchronizer. store may be nil.
func New(outputDir string, store Cache, opts Options) *Synchronizer {
	return &Synchronizer{
		outputDir: filepath.Clean(outputDir),
		cache:     store,
		dryRun:    opts.DryRun,
		force:     opts.Force,
		logger:    logging.NewComponentLogger(opts.Logger, "strmsync"),
		onItem:    opts.OnItem,
	}
}

// OutputDir returns the root of the managed tree.
func (s *Synchronizer) OutputDir() string { return s.outputDir }

// Plan computes targets for entries. Titles present in local are skipped as
// owned. A target is up to date when the cache recorded the same path and
// fingerprint and the file on disk already holds the stream URL.
func (s *Synchronizer) Plan(ctx context.Context, entries []catalog.Entry, local *mediascan.Index, n int) Plan {
	plan := Plan{Keep: make(map[string]struct{}, len(entries))}
	targets := make([]Target, 0, len(entries))
	for _, entry := range entries {
		if local.Has(entry.Key) {
			plan.Owned = append(plan.Owned, entry)
			continue
		}
		rel := RelativePath(entry)
		if rel == "" {
			continue
		}
		path := filepath.Join(s.outputDir, rel)
		if _, claimed := plan.Keep[path]; claimed {
			plan.Collisions++
			s.logger.Debug("output path already claimed",
				logging.String(logging.FieldKey, string(entry.Key)),
				logging.String("path", path),
			)
			continue
		}
		plan.Keep[path] = struct{}{}
		targets = append(targets, Target{Entry: entry, Path: path})
	}

	upToDate := make([]bool, len(targets))
	if !s.force {
		_ = workers.ForEach(ctx, n, targets, func(ctx context.Context, i int, target Target) {
			upToDate[i] = s.isUpToDate(ctx, target)
		})
	}
	for i, target := range targets {
		if upToDate[i] {
			plan.UpToDate = append(plan.UpToDate, target)
		} else {
			plan.Writes = append(plan.Writes, target)
		}
	}
	return plan
}

func (s *Synchronizer) isUpToDate(ctx context.Context, target Target) bool {
	if s.cache == nil {
		return false
	}
	record, ok, err := s.cache.Get(ctx, target.Entry.Key)
	if err != nil || !ok {
		return false
	}
	if record.StrmPath != target.Path || record.Fingerprint != target.Entry.Fingerprint() {
		return false
	}
	same, err := fileutil.ContentEquals(target.Path, []byte(target.Entry.URL))
	return err == nil && same
}

// Apply writes every planned file with at most n writes in flight. Each
// parent directory is created once. A failed write is counted and never
// stops the batch.
func (s *Synchronizer) Apply(ctx context.Context, plan Plan, n int) (ApplyResult, error) {
	result := ApplyResult{
		CreatedBy: make(map[catalog.Category]int),
		FailedBy:  make(map[catalog.Category]int),
	}
	if s.dryRun {
		result.Created = len(plan.Writes)
		for i, target := range plan.Writes {
			result.CreatedBy[target.Entry.Category]++
			if s.onItem != nil {
				s.onItem(i, target.Path)
			}
		}
		return result, ctx.Err()
	}

	dirs := newDirSet()
	// outcome[i] is 1 once Writes[i] succeeded and -1 when it failed.
	outcome := make([]int8, len(plan.Writes))
	var mu sync.Mutex
	recordErr := func(i int, err error) {
		outcome[i] = -1
		mu.Lock()
		if len(result.Errors) < maxErrorSamples {
			result.Errors = append(result.Errors, err)
		}
		mu.Unlock()
	}

	err := workers.ForEach(ctx, n, plan.Writes, func(ctx context.Context, i int, target Target) {
		defer func() {
			if s.onItem != nil {
				s.onItem(i, target.Path)
			}
		}()
		if err := dirs.ensure(filepath.Dir(target.Path)); err != nil {
			recordErr(i, services.Wrap(services.ErrFilesystemWrite, "synchronizing", "create directory", filepath.Dir(target.Path), err))
			return
		}
		if err := fileutil.WriteFileAtomic(target.Path, []byte(target.Entry.URL), 0o644); err != nil {
			recordErr(i, services.Wrap(services.ErrFilesystemWrite, "synchronizing", "write strm", target.Path, err))
			return
		}
		outcome[i] = 1
		if s.cache != nil {
			if err := s.cache.SetOutput(ctx, target.Entry.Key, target.Path); err != nil && ctx.Err() == nil {
				logging.WarnWithContext(s.logger, "failed to record output path", "cache_write_failed",
					logging.String(logging.FieldKey, string(target.Entry.Key)),
					logging.Error(err),
					logging.String(logging.FieldImpact, "file is rewritten on the next run"),
				)
			}
		}
	})

	for i, target := range plan.Writes {
		switch outcome[i] {
		case 1:
			result.Created++
			result.CreatedBy[target.Entry.Category]++
		case -1:
			result.Failed++
			result.FailedBy[target.Entry.Category]++
		}
	}
	result.DirsCreated = dirs.created()
	for _, e := range result.Errors {
		logging.WarnWithContext(s.logger, "strm write failed", "strm_write_failed",
			logging.Error(e),
			logging.String(logging.FieldErrorHint, "check permissions and free space on the output volume"),
			logging.String(logging.FieldImpact, "title is missing from the library until the next run"),
		)
	}
	return result, err
}

// Cleanup removes .strm files not in keep, clears their recorded output
// paths, and prunes empty directories bottom-up. The output root and the
// category roots are never removed.
func (s *Synchronizer) Cleanup(ctx context.Context, keep map[string]struct{}) (CleanupResult, error) {
	var result CleanupResult
	removed := make(map[string]struct{})

	walkErr := filepath.WalkDir(s.outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), Extension) {
			return nil
		}
		if _, ok := keep[path]; ok {
			return nil
		}
		if !s.dryRun {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				result.Failed++
				if len(result.Errors) < maxErrorSamples {
					result.Errors = append(result.Errors, services.Wrap(services.ErrFilesystemWrite, "cleanup", "remove orphan", path, err))
				}
				return nil
			}
		}
		removed[path] = struct{}{}
		result.OrphansRemoved++
		s.logger.Debug("orphan removed", logging.String("path", path), logging.Bool("dry_run", s.dryRun))
		return nil
	})
	if walkErr != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, fmt.Errorf("walk output dir: %w", walkErr)
	}

	if s.dryRun {
		return result, nil
	}
	if err := s.forgetOutputs(ctx, removed); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(s.logger, "failed to clear recorded output paths", "cache_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale paths are corrected on the next run"),
		)
	}

	protected := map[string]struct{}{s.outputDir: {}}
	for _, root := range CategoryRoots(s.outputDir) {
		protected[root] = struct{}{}
	}
	dirsRemoved, err := fileutil.RemoveEmptyDirs(s.outputDir, protected)
	result.DirsRemoved = dirsRemoved
	if err != nil {
		return result, fmt.Errorf("prune empty directories: %w", err)
	}
	return result, ctx.Err()
}

// forgetOutputs clears the cached output path of every decision pointing at
// a removed file.
func (s *Synchronizer) forgetOutputs(ctx context.Context, removed map[string]struct{}) error {
	if s.cache == nil || len(removed) == 0 {
		return nil
	}
	var stale []titlekey.Key
	err := s.cache.Scan(ctx, func(d cache.Decision) error {
		if _, ok := removed[d.StrmPath]; ok {
			stale = append(stale, d.Key)
		}
		return nil
	})
	if err != nil {
		return err
	}
	var errs []error
	for _, key := range stale {
		if err := s.cache.SetOutput(ctx, key, ""); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// dirSet creates each directory at most once across workers.
type dirSet struct {
	mu    sync.Mutex
	dirs  map[string]*dirState
	count atomic.Int64
}

type dirState struct {
	once sync.Once
	err  error
}

func newDirSet() *dirSet {
	return &dirSet{dirs: make(map[string]*dirState)}
}

func (d *dirSet) ensure(dir string) error {
	d.mu.Lock()
	state, ok := d.dirs[dir]
	if !ok {
		state = &dirState{}
		d.dirs[dir] = state
	}
	d.mu.Unlock()

	state.once.Do(func() {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return
		}
		if state.err = os.MkdirAll(dir, 0o755); state.err == nil {
			d.count.Add(1)
		}
	})
	return state.err
}

func (d *dirSet) created() int { return int(d.count.Load()) }
