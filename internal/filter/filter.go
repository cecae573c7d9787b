package filter

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"strmsync/internal/cache"
	"strmsync/internal/catalog"
	"strmsync/internal/logging"
	"strmsync/internal/retry"
	"strmsync/internal/services"
	"strmsync/internal/titlekey"
	"strmsync/internal/tmdb"
	"strmsync/internal/workers"
)

// Error exclusion reasons. Policy reasons live in the cache package.
const (
	ReasonRateLimitedExhausted = "rate_limited_exhausted"
	ReasonTransientExhausted   = "transient_exhausted"
	ReasonUnknown              = "unknown"
)

// Lookup resolves a title's availability metadata.
type Lookup interface {
	Lookup(ctx context.Context, q tmdb.Query) (tmdb.Availability, error)
}

// Cache is the decision store used by the filter.
type Cache interface {
	Get(ctx context.Context, key titlekey.Key) (cache.Decision, bool, error)
	Upsert(ctx context.Context, d cache.Decision) error
}

// Verdict is the outcome class of one entry.
type Verdict int

const (
	VerdictAllowed Verdict = iota
	VerdictExcludedPolicy
	VerdictExcludedError
)

func (v Verdict) String() string {
	switch v {
	case VerdictAllowed:
		return "allowed"
	case VerdictExcludedPolicy:
		return "excluded_policy"
	default:
		return "excluded_error"
	}
}

// Decision is the per-entry result of a run.
type Decision struct {
	Entry   catalog.Entry
	Verdict Verdict
	Reason  string
	// Cached is true when the decision came from the cache.
	Cached bool
	// Attempts counts lookup attempts, zero for cached decisions.
	Attempts int
	Err      error
}

// Counts tallies decisions for one category.
type Counts struct {
	Allowed        int
	ExcludedPolicy int
	ExcludedError  int
}

// Outcome aggregates a filter run. Allowed and Excluded keep input order.
type Outcome struct {
	Allowed    []catalog.Entry
	Excluded   []Decision
	ByCategory map[catalog.Category]Counts
	ByReason   map[string]int
	Lookups    int
	CacheHits  int
	// RateLimited counts rate-limit responses that pushed the shared gate.
	RateLimited int
	// Skipped counts entries never decided because the run was canceled.
	Skipped int
}

// Options configures a Filter.
type Options struct {
	Logger *slog.Logger
	Policy retry.Policy
	// Force ignores cached decisions.
	Force bool
	// OnItem is called after each entry is decided.
	OnItem func(index int, d Decision)
}

// Filter applies Rules to playlist entries using cached decisions and
// metadata lookups.
type Filter struct {
	lookup Lookup
	cache  Cache
	rules  Rules
	policy retry.Policy
	force  bool
	logger *slog.Logger
	onItem func(int, Decision)
}

// New constructs a filter. cache may be nil, in which case every entry is
// looked up and nothing is persisted.
func New(lookup Lookup, store Cache, rules Rules, opts Options) *Filter {
	return &Filter{
		lookup: lookup,
		cache:  store,
		rules:  rules,
		policy: opts.Policy,
		force:  opts.Force,
		logger: logging.NewComponentLogger(opts.Logger, "filter"),
		onItem: opts.OnItem,
	}
}

// Run decides every entry with at most n lookups in flight. Entries sharing
// a key share one decision. Run never fails; per-entry errors become
// error exclusions and cancellation leaves the remaining entries skipped.
func (f *Filter) Run(ctx context.Context, entries []catalog.Entry, n int) Outcome {
	unique := make([]int, 0, len(entries))
	firstByKey := make(map[string]int, len(entries))
	for i, entry := range entries {
		if _, seen := firstByKey[string(entry.Key)]; seen {
			continue
		}
		firstByKey[string(entry.Key)] = i
		unique = append(unique, i)
	}

	gate := retry.NewGate()
	results := make([]Decision, len(entries))
	done := make([]bool, len(entries))
	var lookups, hits atomic.Int64

	_ = workers.ForEach(ctx, n, unique, func(ctx context.Context, _ int, idx int) {
		d, looked := f.decide(ctx, gate, entries[idx])
		if errors.Is(d.Err, context.Canceled) || errors.Is(d.Err, context.DeadlineExceeded) {
			return
		}
		if looked {
			lookups.Add(1)
		} else {
			hits.Add(1)
		}
		results[idx] = d
		done[idx] = true
		if f.onItem != nil {
			f.onItem(idx, d)
		}
	})

	out := Outcome{
		ByCategory:  make(map[catalog.Category]Counts),
		ByReason:    make(map[string]int),
		Lookups:     int(lookups.Load()),
		CacheHits:   int(hits.Load()),
		RateLimited: gate.Hits(),
	}
	for _, entry := range entries {
		first := firstByKey[string(entry.Key)]
		if !done[first] {
			out.Skipped++
			continue
		}
		d := results[first]
		d.Entry = entry
		counts := out.ByCategory[entry.Category]
		switch d.Verdict {
		case VerdictAllowed:
			counts.Allowed++
			out.Allowed = append(out.Allowed, entry)
		case VerdictExcludedPolicy:
			counts.ExcludedPolicy++
			out.Excluded = append(out.Excluded, d)
			out.ByReason[d.Reason]++
		default:
			counts.ExcludedError++
			out.Excluded = append(out.Excluded, d)
			out.ByReason[d.Reason]++
		}
		out.ByCategory[entry.Category] = counts
	}
	return out
}

// decide returns the decision for entry and whether a lookup was issued.
func (f *Filter) decide(ctx context.Context, gate *retry.Gate, entry catalog.Entry) (Decision, bool) {
	fingerprint := entry.Fingerprint()
	var previous cache.Decision
	if f.cache != nil {
		cached, ok, err := f.cache.Get(ctx, entry.Key)
		if err != nil {
			logging.WarnWithContext(f.logger, "cache read failed; looking up instead", "cache_read_failed",
				logging.String(logging.FieldKey, string(entry.Key)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "title is looked up again"),
			)
		}
		if ok {
			previous = cached
			if !f.force && cached.Fingerprint == fingerprint {
				return fromCache(entry, cached), false
			}
		}
	}

	var info tmdb.Availability
	query := tmdb.Query{Title: entry.Title, Year: entry.Year, TV: entry.Category == catalog.CategoryTV}
	attempts, err := f.policy.Do(ctx, gate, func(ctx context.Context) error {
		var lookupErr error
		info, lookupErr = f.lookup.Lookup(ctx, query)
		return lookupErr
	}, func(attempt int, delay time.Duration, err error) {
		f.logger.Debug("lookup retry scheduled",
			logging.String(logging.FieldEventType, "lookup_retry"),
			logging.String(logging.FieldKey, string(entry.Key)),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Decision{Entry: entry, Err: err}, true
	}

	d := Decision{Entry: entry, Attempts: attempts, Err: err}
	if err != nil {
		d.Verdict = VerdictExcludedError
		d.Reason = errorReason(err)
		if errors.Is(err, services.ErrNotFound) {
			f.store(ctx, entry, previous, false, d.Reason)
		} else {
			logging.WarnWithContext(f.logger, "metadata lookup failed; title excluded for this run", "lookup_failed",
				logging.String(logging.FieldKey, string(entry.Key)),
				logging.String("reason", d.Reason),
				logging.Int("attempts", attempts),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check TMDB availability and rate limits"),
				logging.String(logging.FieldImpact, "title will be retried on the next run"),
			)
		}
		return d, true
	}

	allowed, reason := f.rules.Decide(entry.Category, info)
	if allowed {
		d.Verdict = VerdictAllowed
	} else {
		d.Verdict = VerdictExcludedPolicy
		d.Reason = reason
	}
	f.logger.Debug("availability decided",
		logging.Args(append(logging.DecisionAttrs("availability", d.Verdict.String(), reason),
			logging.String(logging.FieldKey, string(entry.Key)),
			logging.Int64("tmdb_id", info.ID),
			logging.Any("countries", info.Countries),
			logging.String("language", info.Language),
		)...)...,
	)
	f.store(ctx, entry, previous, allowed, reason)
	return d, true
}

func (f *Filter) store(ctx context.Context, entry catalog.Entry, previous cache.Decision, allowed bool, reason string) {
	if f.cache == nil {
		return
	}
	err := f.cache.Upsert(ctx, cache.Decision{
		Key:         entry.Key,
		Allowed:     allowed,
		Reason:      reason,
		Category:    entry.Category,
		StrmPath:    previous.StrmPath,
		StreamURL:   entry.URL,
		Group:       entry.Group,
		Fingerprint: entry.Fingerprint(),
	})
	if err != nil && ctx.Err() == nil {
		logging.WarnWithContext(f.logger, "failed to cache decision", "cache_write_failed",
			logging.String(logging.FieldKey, string(entry.Key)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "title is looked up again next run"),
		)
	}
}

func fromCache(entry catalog.Entry, cached cache.Decision) Decision {
	d := Decision{Entry: entry, Cached: true, Reason: cached.Reason}
	switch {
	case cached.Allowed:
		d.Verdict = VerdictAllowed
	case cached.Reason == cache.ReasonNotFound:
		d.Verdict = VerdictExcludedError
	default:
		d.Verdict = VerdictExcludedPolicy
	}
	return d
}

func errorReason(err error) string {
	exhausted := retry.IsExhausted(err)
	switch {
	case errors.Is(err, services.ErrNotFound):
		return cache.ReasonNotFound
	case exhausted && errors.Is(err, services.ErrRateLimited):
		return ReasonRateLimitedExhausted
	case exhausted && errors.Is(err, services.ErrTransient):
		return ReasonTransientExhausted
	default:
		return ReasonUnknown
	}
}
