package progress_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"strmsync/internal/catalog"
	"strmsync/internal/progress"
)

type recordingSink struct {
	progress.Nop
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) PhaseStarted(phase progress.Phase, total int) {
	r.record("start:" + string(phase))
}

func (r *recordingSink) ItemDone(phase progress.Phase, _ int, label string) {
	r.record("item:" + label)
}

func (r *recordingSink) RunFailed(err error) {
	r.record("failed:" + err.Error())
}

func (r *recordingSink) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func TestMultiForwardsToEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	sink := progress.NewMulti(a, nil, b)
	if len(sink) != 2 {
		t.Fatalf("expected nil sinks dropped, got %d", len(sink))
	}

	sink.PhaseStarted(progress.PhaseFiltering, 2)
	sink.ItemDone(progress.PhaseFiltering, 0, "Heat")
	sink.RunFailed(errors.New("boom"))

	want := "start:filtering,item:Heat,failed:boom"
	for name, r := range map[string]*recordingSink{"a": a, "b": b} {
		if got := strings.Join(r.events, ","); got != want {
			t.Fatalf("sink %s events = %q, want %q", name, got, want)
		}
	}
}

func TestLogSinkPerItemVerbosity(t *testing.T) {
	for _, tc := range []struct {
		verbosity string
		wantItems bool
	}{
		{progress.VerbosityNormal, false},
		{progress.VerbosityVerbose, true},
	} {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
		sink := progress.NewLogSink(logger, tc.verbosity)

		sink.PhaseStarted(progress.PhaseSynchronizing, 1)
		sink.ItemDone(progress.PhaseSynchronizing, 0, "Heat (1995).strm")
		sink.PhaseComplete(progress.PhaseSynchronizing, time.Second)

		out := buf.String()
		if got := strings.Contains(out, `"msg":"item done"`); got != tc.wantItems {
			t.Fatalf("verbosity %s: item lines present=%v, want %v\n%s", tc.verbosity, got, tc.wantItems, out)
		}
		if !strings.Contains(out, `"msg":"phase complete"`) || !strings.Contains(out, `"items":1`) {
			t.Fatalf("verbosity %s: missing phase summary\n%s", tc.verbosity, out)
		}
	}
}

func TestLogSinkRunComplete(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	stats := progress.NewRunStats("run-1", false)
	stats.Update(catalog.CategoryMovie, func(c *progress.CategoryStats) {
		c.Found = 3
		c.Allowed = 1
		c.ExcludedPolicy = 1
		c.ExcludedError = 1
	})
	stats.CacheDegraded = true

	progress.NewLogSink(logger, progress.VerbosityNormal).RunComplete(stats)
	out := buf.String()
	for _, want := range []string{`"excluded_policy":1`, `"excluded_error":1`, `"alert":"cache_degraded"`, `"run_id":"run-1"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestRunStatsTotalAndClone(t *testing.T) {
	stats := progress.NewRunStats("run", true)
	stats.Update(catalog.CategoryMovie, func(c *progress.CategoryStats) { c.Created = 2 })
	stats.Update(catalog.CategoryTV, func(c *progress.CategoryStats) { c.Created = 3 })
	stats.Update(catalog.CategoryReplay, func(c *progress.CategoryStats) { c.Found = 9 })
	stats.ErrorReasons["not_found"] = 1

	if total := stats.Total(); total.Created != 5 || total.Found != 0 {
		t.Fatalf("unexpected totals: %+v", total)
	}
	clone := stats.Clone()
	clone.ErrorReasons["not_found"] = 7
	clone.Update(catalog.CategoryMovie, func(c *progress.CategoryStats) { c.Created = 0 })
	if stats.ErrorReasons["not_found"] != 1 || stats.Category(catalog.CategoryMovie).Created != 2 {
		t.Fatal("clone shares state with the original")
	}
}

func TestSummaryTable(t *testing.T) {
	stats := progress.NewRunStats("run", true)
	stats.Update(catalog.CategoryDocumentary, func(c *progress.CategoryStats) { c.Found = 4 })
	stats.OrphansRemoved = 2

	out := progress.SummaryTable(stats)
	for _, want := range []string{"Run summary (dry run)", "Documentaries", "Excluded (policy)", "Excluded (error)", "Up to date", "Total", "Orphans removed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in summary:\n%s", want, out)
		}
	}
}

func TestConsoleSinkPrintsSummary(t *testing.T) {
	var buf syncBuffer
	sink := progress.NewConsoleSink(&buf)
	sink.PhaseStarted(progress.PhaseParsing, 2)
	sink.ItemDone(progress.PhaseParsing, 0, "a")
	sink.ItemDone(progress.PhaseParsing, 1, "b")
	sink.PhaseComplete(progress.PhaseParsing, time.Millisecond)
	sink.RunComplete(progress.NewRunStats("run", false))

	if out := buf.String(); !strings.Contains(out, "Run summary") {
		t.Fatalf("expected summary in console output:\n%s", out)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
