package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"strmsync/internal/catalog"
)

// ConsoleSink draws one tracker per phase and prints a summary table when
// the run ends. It is meant for interactive terminals.
type ConsoleSink struct {
	out io.Writer
	pw  progress.Writer

	mu       sync.Mutex
	trackers map[Phase]*progress.Tracker
	started  bool
}

// NewConsoleSink renders to out.
func NewConsoleSink(out io.Writer) *ConsoleSink {
	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(30)
	pw.SetMessageLength(16)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.SetStyle(progress.StyleDefault)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Percentage = true
	pw.Style().Visibility.Value = true
	return &ConsoleSink{
		out:      out,
		pw:       pw,
		trackers: make(map[Phase]*progress.Tracker),
	}
}

func (s *ConsoleSink) PhaseStarted(phase Phase, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.started = true
		go s.pw.Render()
	}
	tracker := &progress.Tracker{
		Message: phaseLabel(phase),
		Total:   int64(total),
		Units:   progress.UnitsDefault,
	}
	s.trackers[phase] = tracker
	s.pw.AppendTracker(tracker)
}

func (s *ConsoleSink) ItemDone(phase Phase, _ int, _ string) {
	if tracker := s.tracker(phase); tracker != nil {
		tracker.Increment(1)
	}
}

func (s *ConsoleSink) StatsUpdate(RunStats) {}

func (s *ConsoleSink) PhaseComplete(phase Phase, _ time.Duration) {
	if tracker := s.tracker(phase); tracker != nil {
		tracker.MarkAsDone()
	}
}

func (s *ConsoleSink) RunComplete(stats RunStats) {
	s.stop()
	fmt.Fprintln(s.out, SummaryTable(stats))
}

func (s *ConsoleSink) RunFailed(err error) {
	s.mu.Lock()
	for _, tracker := range s.trackers {
		if !tracker.IsDone() {
			tracker.MarkAsErrored()
		}
	}
	s.mu.Unlock()
	s.stop()
	fmt.Fprintf(s.out, "run failed: %v\n", err)
}

func (s *ConsoleSink) tracker(phase Phase) *progress.Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackers[phase]
}

func (s *ConsoleSink) stop() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	// Let the renderer draw the final state of every tracker.
	time.Sleep(150 * time.Millisecond)
	s.pw.Stop()
	for s.pw.IsRenderInProgress() {
		time.Sleep(10 * time.Millisecond)
	}
}

func phaseLabel(phase Phase) string {
	switch phase {
	case PhaseScanning:
		return "Scanning media"
	case PhaseParsing:
		return "Parsing"
	case PhaseFiltering:
		return "Filtering"
	case PhaseSynchronizing:
		return "Writing STRM"
	case PhaseCleanup:
		return "Cleanup"
	default:
		return string(phase)
	}
}

// SummaryTable renders the per-category counters and run totals.
func SummaryTable(stats RunStats) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(table.Row{"Category", "Found", "Allowed", "Excluded (policy)", "Excluded (error)", "Owned", "Created", "Up to date", "Failed"})
	for _, category := range catalog.OutputCategories {
		c := stats.Category(category)
		tw.AppendRow(table.Row{category.Label(), c.Found, c.Allowed, c.ExcludedPolicy, c.ExcludedError, c.Owned, c.Created, c.UpToDate, c.Failed})
	}
	total := stats.Total()
	tw.AppendFooter(table.Row{"Total", total.Found, total.Allowed, total.ExcludedPolicy, total.ExcludedError, total.Owned, total.Created, total.UpToDate, total.Failed})

	configs := []table.ColumnConfig{{Number: 1, Align: text.AlignLeft}}
	for i := 2; i <= 9; i++ {
		configs = append(configs, table.ColumnConfig{Number: i, Align: text.AlignRight, AlignHeader: text.AlignLeft, AlignFooter: text.AlignRight})
	}
	tw.SetColumnConfigs(configs)

	title := "Run summary"
	if stats.DryRun {
		title += " (dry run)"
	}
	tw.SetTitle(title)

	extra := table.NewWriter()
	extra.SetStyle(table.StyleRounded)
	extra.AppendRows([]table.Row{
		{"Replays", stats.Replays},
		{"Duplicates", stats.Duplicates},
		{"Parse errors", stats.ParseErrors},
		{"Unclassified", stats.Unclassified},
		{"Ignored", stats.Ignored},
		{"Lookups", stats.Lookups},
		{"Cache hits", stats.CacheHits},
		{"Rate limited", stats.RateLimited},
		{"Orphans removed", stats.OrphansRemoved},
		{"Directories removed", stats.DirsRemoved},
		{"Duration", stats.Duration.Round(time.Millisecond)},
	})
	extra.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})

	out := tw.Render() + "\n" + extra.Render()
	if stats.CacheDegraded {
		out += "\nwarning: cache writes failed during the run; decisions were kept in memory only"
	}
	return out
}
