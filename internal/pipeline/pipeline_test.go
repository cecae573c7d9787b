package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/flock"

	"strmsync/internal/catalog"
	"strmsync/internal/config"
	"strmsync/internal/pipeline"
	"strmsync/internal/progress"
	"strmsync/internal/services"
	"strmsync/internal/testsupport"
	"strmsync/internal/tmdb"
)

type fakeLookup struct {
	mu      sync.Mutex
	results map[string]tmdb.Availability
	fail    map[string]error
	calls   int
}

func (f *fakeLookup) Lookup(_ context.Context, q tmdb.Query) (tmdb.Availability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.fail[q.Title]; ok {
		return tmdb.Availability{}, err
	}
	if res, ok := f.results[q.Title]; ok {
		return res, nil
	}
	return tmdb.Availability{}, services.Wrap(services.ErrNotFound, "", "lookup", q.Title, nil)
}

func (f *fakeLookup) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeRefresher) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeRefresher) Enabled() bool { return true }

type fakeNotifier struct {
	completed int
	failed    []error
}

func (f *fakeNotifier) NotifyRunCompleted(context.Context, progress.RunStats) error {
	f.completed++
	return nil
}

func (f *fakeNotifier) NotifyRunFailed(_ context.Context, err error) error {
	f.failed = append(f.failed, err)
	return nil
}

func (f *fakeNotifier) TestNotification(context.Context) error { return nil }

type recordingSink struct {
	progress.Nop
	mu       sync.Mutex
	phases   []progress.Phase
	totals   map[progress.Phase]int
	items    map[progress.Phase]int
	complete int
	failed   []error
}

func (s *recordingSink) PhaseStarted(phase progress.Phase, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases = append(s.phases, phase)
	if s.totals == nil {
		s.totals = map[progress.Phase]int{}
		s.items = map[progress.Phase]int{}
	}
	s.totals[phase] = total
	s.items[phase] = 0
}

func (s *recordingSink) ItemDone(phase progress.Phase, _ int, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		s.items = map[progress.Phase]int{}
	}
	s.items[phase]++
}

func (s *recordingSink) counts(phase progress.Phase) (total, items int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals[phase], s.items[phase]
}

func (s *recordingSink) RunComplete(progress.RunStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.complete++
}

func (s *recordingSink) RunFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, err)
}

type harness struct {
	cfg       *config.Config
	lookup    *fakeLookup
	refresher *fakeRefresher
	notifier  *fakeNotifier
	sink      *recordingSink
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	h := &harness{
		cfg: testsupport.NewConfig(t, opts...),
		lookup: &fakeLookup{
			results: map[string]tmdb.Availability{
				"Heat":         {Countries: []string{"US"}, Language: "en"},
				"Amelie":       {Countries: []string{"FR"}, Language: "fr"},
				"Breaking Bad": {Countries: []string{"US"}, Language: "en"},
				"Planet Earth": {Countries: []string{"GB"}, Language: "en"},
				"Owned Movie":  {Countries: []string{"US"}, Language: "en"},
			},
			fail: map[string]error{},
		},
		refresher: &fakeRefresher{},
		notifier:  &fakeNotifier{},
		sink:      &recordingSink{},
	}

	testsupport.WritePlaylist(t, h.cfg.Paths.Playlist,
		testsupport.PlaylistItem{Group: "Movies", Title: "Heat (1995)", URL: "http://iptv/heat"},
		testsupport.PlaylistItem{Group: "Movies", Title: "Amelie (2001)", URL: "http://iptv/amelie"},
		testsupport.PlaylistItem{Group: "Movies", Title: "Owned Movie (2010)", URL: "http://iptv/owned"},
		testsupport.PlaylistItem{Group: "Series", Title: "Breaking Bad S01E01", URL: "http://iptv/bb1"},
		testsupport.PlaylistItem{Group: "Series", Title: "Breaking Bad S01E02", URL: "http://iptv/bb2"},
		testsupport.PlaylistItem{Group: "Documentaries", Title: "Planet Earth (2006)", URL: "http://iptv/earth"},
		testsupport.PlaylistItem{Group: "Replay Sports", Title: "Match of the Day", URL: "http://iptv/motd"},
		testsupport.PlaylistItem{Group: "Movies", Title: "Heat (1995)", URL: "http://iptv/heat-dup"},
	)
	mediaRoot := h.cfg.Paths.ExistingMediaDirs[0]
	testsupport.WriteFile(t, filepath.Join(mediaRoot, "Owned Movie (2010)", "Owned Movie (2010).mkv"), "video")
	return h
}

func (h *harness) runner(t *testing.T) *pipeline.Runner {
	t.Helper()
	env, err := pipeline.NewEnv(context.Background(), h.cfg, nil, pipeline.EnvOptions{
		Sink:      h.sink,
		Lookup:    h.lookup,
		Refresher: h.refresher,
		Notifier:  h.notifier,
	})
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	t.Cleanup(func() { _ = env.Close() })
	runner, err := pipeline.NewRunner(env)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return runner
}

func TestRunEndToEnd(t *testing.T) {
	h := newHarness(t)
	runner := h.runner(t)

	stats, err := runner.Run(context.Background(), pipeline.Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if runner.State() != pipeline.StateDone || stats.State != "done" {
		t.Fatalf("expected done state, got %s / %s", runner.State(), stats.State)
	}

	files := testsupport.ListFiles(t, h.cfg.Paths.OutputDir, ".strm")
	want := []string{
		filepath.Join("Documentaries", "Planet Earth (2006)", "Planet Earth (2006).strm"),
		filepath.Join("Movies", "Heat (1995)", "Heat (1995).strm"),
		filepath.Join("TV Shows", "Breaking Bad", "Season 01", "Breaking Bad S01E01.strm"),
		filepath.Join("TV Shows", "Breaking Bad", "Season 01", "Breaking Bad S01E02.strm"),
	}
	if strings.Join(files, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected output tree:\n got %v\nwant %v", files, want)
	}

	movies := stats.Category(catalog.CategoryMovie)
	if movies.Found != 3 || movies.Allowed != 2 || movies.ExcludedPolicy != 1 || movies.Owned != 1 || movies.Created != 1 {
		t.Fatalf("unexpected movie stats: %+v", movies)
	}
	if tv := stats.Category(catalog.CategoryTV); tv.Created != 2 {
		t.Fatalf("unexpected tv stats: %+v", tv)
	}
	if stats.Replays != 1 || stats.Duplicates != 1 || stats.LocalIndexed != 1 {
		t.Fatalf("unexpected parse/scan stats: replays=%d duplicates=%d local=%d", stats.Replays, stats.Duplicates, stats.LocalIndexed)
	}
	if stats.Lookups != 6 {
		t.Fatalf("expected 6 lookups, got %d", stats.Lookups)
	}

	reportText := testsupport.ReadFile(t, filepath.Join(h.cfg.Paths.OutputDir, "excluded_entries.txt"))
	if !strings.Contains(reportText, "Amelie (2001) [country]") {
		t.Fatalf("expected Amelie in report:\n%s", reportText)
	}
	if h.refresher.calls != 1 || h.notifier.completed != 1 || h.sink.complete != 1 {
		t.Fatalf("expected refresh, notification and completion once; got %d/%d/%d", h.refresher.calls, h.notifier.completed, h.sink.complete)
	}
	wantPhases := []progress.Phase{progress.PhaseScanning, progress.PhaseParsing, progress.PhaseFiltering, progress.PhaseSynchronizing, progress.PhaseCleanup}
	if len(h.sink.phases) != len(wantPhases) {
		t.Fatalf("unexpected phases %v", h.sink.phases)
	}
	for i, phase := range wantPhases {
		if h.sink.phases[i] != phase {
			t.Fatalf("phase %d = %s, want %s", i, h.sink.phases[i], phase)
		}
	}
}

func TestSecondRunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	runner := h.runner(t)
	if _, err := runner.Run(context.Background(), pipeline.Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	calls := h.lookup.Calls()

	stats, err := runner.Run(context.Background(), pipeline.Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	total := stats.Total()
	if total.Created != 0 || total.UpToDate != 4 {
		t.Fatalf("expected everything up to date, got %+v", total)
	}
	if stats.OrphansRemoved != 0 || stats.DirsRemoved != 0 {
		t.Fatalf("expected no cleanup, got orphans=%d dirs=%d", stats.OrphansRemoved, stats.DirsRemoved)
	}
	if h.lookup.Calls() != calls || stats.CacheHits != 6 {
		t.Fatalf("expected cached decisions, got %d new lookups and %d hits", h.lookup.Calls()-calls, stats.CacheHits)
	}
}

func TestSynchronizingTotalMatchesWrites(t *testing.T) {
	h := newHarness(t)
	runner := h.runner(t)
	if _, err := runner.Run(context.Background(), pipeline.Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if total, items := h.sink.counts(progress.PhaseSynchronizing); total != 4 || items != 4 {
		t.Fatalf("first run: total=%d items=%d, want 4/4", total, items)
	}

	if _, err := runner.Run(context.Background(), pipeline.Options{}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if total, items := h.sink.counts(progress.PhaseSynchronizing); total != 0 || items != 0 {
		t.Fatalf("second run: total=%d items=%d, want 0/0", total, items)
	}
}

func TestRemovedEntriesAreCleanedUp(t *testing.T) {
	h := newHarness(t)
	runner := h.runner(t)
	if _, err := runner.Run(context.Background(), pipeline.Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	testsupport.WritePlaylist(t, h.cfg.Paths.Playlist,
		testsupport.PlaylistItem{Group: "Movies", Title: "Heat (1995)", URL: "http://iptv/heat"},
	)
	stats, err := runner.Run(context.Background(), pipeline.Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if stats.OrphansRemoved != 3 {
		t.Fatalf("expected 3 orphans removed, got %d", stats.OrphansRemoved)
	}
	if files := testsupport.ListFiles(t, h.cfg.Paths.OutputDir, ".strm"); len(files) != 1 {
		t.Fatalf("expected only Heat to remain, got %v", files)
	}
}

func TestTransientLookupFailureKeepsExistingFile(t *testing.T) {
	h := newHarness(t)
	runner := h.runner(t)
	if _, err := runner.Run(context.Background(), pipeline.Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	h.lookup.fail["Heat"] = services.Wrap(services.ErrTransient, "", "lookup", "502", nil)
	stats, err := runner.Run(context.Background(), pipeline.Options{ForceRegenerate: true})
	if err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if stats.ErrorReasons["transient_exhausted"] != 1 {
		t.Fatalf("expected a transient exclusion, got %+v", stats.ErrorReasons)
	}
	heat := filepath.Join(h.cfg.Paths.OutputDir, "Movies", "Heat (1995)", "Heat (1995).strm")
	if _, err := os.Stat(heat); err != nil {
		t.Fatalf("expected Heat to survive a transient lookup failure: %v", err)
	}
}

func TestDryRunLeavesOutputUntouched(t *testing.T) {
	h := newHarness(t, testsupport.WithDryRun())
	stats, err := h.runner(t).Run(context.Background(), pipeline.Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !stats.DryRun || stats.Total().Created != 4 {
		t.Fatalf("expected dry run to count 4 creations, got %+v", stats.Total())
	}
	if files := testsupport.ListFiles(t, h.cfg.Paths.OutputDir, ".strm"); len(files) != 0 {
		t.Fatalf("dry run wrote files: %v", files)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.OutputDir, "excluded_entries.txt")); !os.IsNotExist(err) {
		t.Fatalf("dry run wrote the excluded report: %v", err)
	}
	if h.refresher.calls != 0 {
		t.Fatal("dry run must not refresh the library")
	}
}

func TestRunFailsWhenLocked(t *testing.T) {
	h := newHarness(t)
	runner := h.runner(t)

	held := flock.New(h.cfg.LockPath())
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("pre-lock: ok=%v err=%v", ok, err)
	}
	t.Cleanup(func() { _ = held.Unlock() })

	_, err := runner.Run(context.Background(), pipeline.Options{})
	if !errors.Is(err, pipeline.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if runner.State() != pipeline.StateFailed || len(h.sink.failed) != 1 || len(h.notifier.failed) != 1 {
		t.Fatalf("expected failed state reported once, got state=%s sink=%d notify=%d", runner.State(), len(h.sink.failed), len(h.notifier.failed))
	}
}

func TestMissingPlaylistIsFatal(t *testing.T) {
	h := newHarness(t)
	if err := os.Remove(h.cfg.Paths.Playlist); err != nil {
		t.Fatalf("remove playlist: %v", err)
	}
	_, err := h.runner(t).Run(context.Background(), pipeline.Options{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCanceledRunFails(t *testing.T) {
	h := newHarness(t)
	runner := h.runner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, pipeline.Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if runner.State() != pipeline.StateFailed {
		t.Fatalf("expected failed state, got %s", runner.State())
	}
	if files := testsupport.ListFiles(t, h.cfg.Paths.OutputDir, ".strm"); len(files) != 0 {
		t.Fatalf("canceled run wrote files: %v", files)
	}
}

func TestNewEnvRequiresAPIKeyWithoutLookup(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTMDBKey(""))
	_, err := pipeline.NewEnv(context.Background(), cfg, nil, pipeline.EnvOptions{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
