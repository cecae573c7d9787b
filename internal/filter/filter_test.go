package filter_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"strmsync/internal/cache"
	"strmsync/internal/catalog"
	"strmsync/internal/filter"
	"strmsync/internal/retry"
	"strmsync/internal/services"
	"strmsync/internal/testsupport"
	"strmsync/internal/tmdb"
)

type stubLookup struct {
	mu       sync.Mutex
	results  map[string]tmdb.Availability
	errs     map[string]error
	failures map[string]int
	calls    map[string]int
	total    atomic.Int64
}

func newStubLookup() *stubLookup {
	return &stubLookup{
		results:  make(map[string]tmdb.Availability),
		errs:     make(map[string]error),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
}

func (s *stubLookup) Lookup(_ context.Context, q tmdb.Query) (tmdb.Availability, error) {
	s.total.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[q.Title]++
	if remaining := s.failures[q.Title]; remaining > 0 {
		s.failures[q.Title] = remaining - 1
		return tmdb.Availability{}, services.Wrap(services.ErrRateLimited, "filtering", "lookup", "429", nil)
	}
	if err, ok := s.errs[q.Title]; ok {
		return tmdb.Availability{}, err
	}
	if res, ok := s.results[q.Title]; ok {
		return res, nil
	}
	return tmdb.Availability{}, services.Wrap(services.ErrNotFound, "filtering", "lookup", q.Title, nil)
}

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Retryable:   services.IsRetryable,
	}
}

func testRules() filter.Rules {
	return filter.Rules{
		MovieCountries:    map[string]struct{}{"US": {}, "GB": {}, "CA": {}},
		TVCountries:       map[string]struct{}{"US": {}, "GB": {}},
		ExcludedLanguages: map[string]struct{}{"hi": {}},
	}
}

func TestCountryFilter(t *testing.T) {
	lookup := newStubLookup()
	lookup.results["Amelie"] = tmdb.Availability{Countries: []string{"FR"}, Language: "fr"}
	lookup.results["Heat"] = tmdb.Availability{Countries: []string{"US"}, Language: "fr"}

	f := filter.New(lookup, nil, testRules(), filter.Options{Policy: testPolicy()})
	out := f.Run(context.Background(), []catalog.Entry{
		testsupport.NewMovie("Amelie", 2001, "http://x/1"),
		testsupport.NewMovie("Heat", 1995, "http://x/2"),
	}, 2)

	if len(out.Allowed) != 1 || out.Allowed[0].Title != "Heat" {
		t.Fatalf("expected only Heat allowed, got %+v", out.Allowed)
	}
	if len(out.Excluded) != 1 || out.Excluded[0].Reason != cache.ReasonCountry || out.Excluded[0].Verdict != filter.VerdictExcludedPolicy {
		t.Fatalf("expected Amelie excluded by country, got %+v", out.Excluded)
	}
	if got := out.ByCategory[catalog.CategoryMovie]; got.Allowed != 1 || got.ExcludedPolicy != 1 {
		t.Fatalf("unexpected category counts: %+v", got)
	}
}

func TestLanguageExclusionAndTVAllowList(t *testing.T) {
	lookup := newStubLookup()
	lookup.results["Sacred Games"] = tmdb.Availability{Countries: []string{"US"}, Language: "hi"}
	lookup.results["Letterkenny"] = tmdb.Availability{Countries: []string{"CA"}, Language: "en"}

	f := filter.New(lookup, nil, testRules(), filter.Options{Policy: testPolicy()})
	out := f.Run(context.Background(), []catalog.Entry{
		testsupport.NewEpisode("Sacred Games", 1, 1, "http://x/1"),
		testsupport.NewEpisode("Letterkenny", 1, 1, "http://x/2"),
	}, 2)

	if len(out.Allowed) != 0 {
		t.Fatalf("expected nothing allowed, got %+v", out.Allowed)
	}
	if out.ByReason[cache.ReasonLanguage] != 1 || out.ByReason[cache.ReasonCountry] != 1 {
		t.Fatalf("unexpected reasons: %+v", out.ByReason)
	}
}

func TestDocumentariesUseMovieAllowList(t *testing.T) {
	lookup := newStubLookup()
	lookup.results["Planet Earth"] = tmdb.Availability{Countries: []string{"CA"}, Language: "en"}
	entry := testsupport.NewMovie("Planet Earth", 2006, "http://x/1")
	entry.Category = catalog.CategoryDocumentary

	f := filter.New(lookup, nil, testRules(), filter.Options{Policy: testPolicy()})
	out := f.Run(context.Background(), []catalog.Entry{entry}, 1)
	if len(out.Allowed) != 1 {
		t.Fatalf("expected documentary allowed via movie list, got %+v", out)
	}
}

func TestRateLimitResilience(t *testing.T) {
	lookup := newStubLookup()
	lookup.results["Heat"] = tmdb.Availability{Countries: []string{"US"}, Language: "en"}
	lookup.failures["Heat"] = 2
	for _, title := range []string{"Alien", "Brazil", "Casino"} {
		lookup.results[title] = tmdb.Availability{Countries: []string{"GB"}, Language: "en"}
	}

	entries := []catalog.Entry{
		testsupport.NewMovie("Heat", 1995, "http://x/heat"),
		testsupport.NewMovie("Alien", 1979, "http://x/alien"),
		testsupport.NewMovie("Brazil", 1985, "http://x/brazil"),
		testsupport.NewMovie("Casino", 1995, "http://x/casino"),
	}
	f := filter.New(lookup, nil, testRules(), filter.Options{Policy: testPolicy()})
	out := f.Run(context.Background(), entries, 4)

	if len(out.Allowed) != 4 || len(out.Excluded) != 0 {
		t.Fatalf("expected every entry allowed, got allowed=%d excluded=%+v", len(out.Allowed), out.Excluded)
	}
	if lookup.calls["Heat"] != 3 {
		t.Fatalf("expected 3 attempts for Heat, got %d", lookup.calls["Heat"])
	}
	if out.RateLimited != 2 {
		t.Fatalf("expected 2 rate limit hits, got %d", out.RateLimited)
	}
	if out.Lookups != 4 {
		t.Fatalf("expected 4 lookups, got %d", out.Lookups)
	}
}

func TestExhaustedRetriesAreExcludedAndNotCached(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCache(t, cfg)
	lookup := newStubLookup()
	lookup.failures["Heat"] = 100

	f := filter.New(lookup, store, testRules(), filter.Options{Policy: testPolicy()})
	out := f.Run(context.Background(), []catalog.Entry{testsupport.NewMovie("Heat", 1995, "http://x/heat")}, 1)

	if len(out.Excluded) != 1 || out.Excluded[0].Reason != filter.ReasonRateLimitedExhausted {
		t.Fatalf("expected rate_limited_exhausted exclusion, got %+v", out.Excluded)
	}
	if !retry.IsExhausted(out.Excluded[0].Err) {
		t.Fatalf("expected exhausted error, got %v", out.Excluded[0].Err)
	}
	if _, ok, _ := store.Get(context.Background(), out.Excluded[0].Entry.Key); ok {
		t.Fatal("exhausted lookup must not be cached")
	}
}

func TestTransientAndUnknownReasons(t *testing.T) {
	lookup := newStubLookup()
	lookup.errs["Flaky"] = services.Wrap(services.ErrTransient, "", "lookup", "502", nil)
	lookup.errs["Broken"] = errors.New("unexpected payload")

	f := filter.New(lookup, nil, testRules(), filter.Options{Policy: testPolicy()})
	out := f.Run(context.Background(), []catalog.Entry{
		testsupport.NewMovie("Flaky", 2000, "http://x/1"),
		testsupport.NewMovie("Broken", 2000, "http://x/2"),
	}, 2)

	if out.ByReason[filter.ReasonTransientExhausted] != 1 || out.ByReason[filter.ReasonUnknown] != 1 {
		t.Fatalf("unexpected reasons: %+v", out.ByReason)
	}
	if lookup.calls["Broken"] != 1 {
		t.Fatalf("non-retryable error must not be retried, got %d calls", lookup.calls["Broken"])
	}
	if got := out.ByCategory[catalog.CategoryMovie].ExcludedError; got != 2 {
		t.Fatalf("expected 2 error exclusions, got %d", got)
	}
}

func TestCachedDecisionsAreReused(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCache(t, cfg)
	lookup := newStubLookup()
	lookup.results["Heat"] = tmdb.Availability{Countries: []string{"US"}, Language: "en"}
	entries := []catalog.Entry{
		testsupport.NewMovie("Heat", 1995, "http://x/heat"),
		testsupport.NewMovie("Missing", 2010, "http://x/missing"),
	}

	first := filter.New(lookup, store, testRules(), filter.Options{Policy: testPolicy()}).
		Run(context.Background(), entries, 2)
	if first.Lookups != 2 || first.CacheHits != 0 {
		t.Fatalf("first run: expected 2 lookups, got %+v", first)
	}

	second := filter.New(lookup, store, testRules(), filter.Options{Policy: testPolicy()}).
		Run(context.Background(), entries, 2)
	if second.Lookups != 0 || second.CacheHits != 2 {
		t.Fatalf("second run: expected only cache hits, got lookups=%d hits=%d", second.Lookups, second.CacheHits)
	}
	if len(second.Allowed) != 1 || second.ByReason[cache.ReasonNotFound] != 1 {
		t.Fatalf("second run: unexpected outcome %+v", second)
	}

	forced := filter.New(lookup, store, testRules(), filter.Options{Policy: testPolicy(), Force: true}).
		Run(context.Background(), entries, 2)
	if forced.Lookups != 2 {
		t.Fatalf("forced run: expected 2 lookups, got %d", forced.Lookups)
	}
}

func TestFingerprintChangeTriggersLookup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCache(t, cfg)
	lookup := newStubLookup()
	lookup.results["Heat"] = tmdb.Availability{Countries: []string{"US"}, Language: "en"}

	entry := testsupport.NewMovie("Heat", 1995, "http://x/old")
	filter.New(lookup, store, testRules(), filter.Options{Policy: testPolicy()}).
		Run(context.Background(), []catalog.Entry{entry}, 1)

	entry.URL = "http://x/new"
	out := filter.New(lookup, store, testRules(), filter.Options{Policy: testPolicy()}).
		Run(context.Background(), []catalog.Entry{entry}, 1)
	if out.Lookups != 1 {
		t.Fatalf("expected fingerprint change to force a lookup, got %d", out.Lookups)
	}
	d, ok, err := store.Get(context.Background(), entry.Key)
	if err != nil || !ok || d.StreamURL != "http://x/new" || d.Fingerprint != entry.Fingerprint() {
		t.Fatalf("expected refreshed cache record, got %+v ok=%v err=%v", d, ok, err)
	}
}

func TestDuplicateKeysShareOneLookup(t *testing.T) {
	lookup := newStubLookup()
	lookup.results["Heat"] = tmdb.Availability{Countries: []string{"US"}, Language: "en"}
	entry := testsupport.NewMovie("Heat", 1995, "http://x/heat")

	var items atomic.Int64
	f := filter.New(lookup, nil, testRules(), filter.Options{
		Policy: testPolicy(),
		OnItem: func(int, filter.Decision) { items.Add(1) },
	})
	out := f.Run(context.Background(), []catalog.Entry{entry, entry, entry}, 3)
	if lookup.total.Load() != 1 || items.Load() != 1 {
		t.Fatalf("expected one lookup, got %d (items %d)", lookup.total.Load(), items.Load())
	}
	if len(out.Allowed) != 3 {
		t.Fatalf("expected every copy allowed, got %d", len(out.Allowed))
	}
}

func TestCanceledRunSkipsEntries(t *testing.T) {
	lookup := newStubLookup()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := filter.New(lookup, nil, testRules(), filter.Options{Policy: testPolicy()})
	out := f.Run(ctx, []catalog.Entry{
		testsupport.NewMovie("Heat", 1995, "http://x/1"),
		testsupport.NewMovie("Alien", 1979, "http://x/2"),
	}, 2)
	if out.Skipped != 2 || lookup.total.Load() != 0 {
		t.Fatalf("expected all entries skipped without lookups, got %+v", out)
	}
}
