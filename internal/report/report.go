// Package report writes the excluded-entries report.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"strmsync/internal/catalog"
	"strmsync/internal/fileutil"
	"strmsync/internal/filter"
	"strmsync/internal/titlekey"
)

// FileName is the report's name inside the output directory.
const FileName = "excluded_entries.txt"

// Path returns the report location for outputDir.
func Path(outputDir string) string {
	return filepath.Join(outputDir, FileName)
}

// Render formats the report. Movies and documentaries are listed one per
// line; TV episodes are grouped per show.
func Render(excluded []filter.Decision, allowed int) string {
	var policy, errored int
	var movies, docs []string
	type showGroup struct {
		episodes int
		reasons  map[string]struct{}
	}
	shows := make(map[string]*showGroup)

	for _, d := range excluded {
		if d.Verdict == filter.VerdictExcludedPolicy {
			policy++
		} else {
			errored++
		}
		switch d.Entry.Category {
		case catalog.CategoryTV:
			name := titlekey.DisplayTitle(d.Entry.Title)
			group := shows[name]
			if group == nil {
				group = &showGroup{reasons: make(map[string]struct{})}
				shows[name] = group
			}
			group.episodes++
			group.reasons[d.Reason] = struct{}{}
		case catalog.CategoryDocumentary:
			docs = append(docs, entryLine(d))
		default:
			movies = append(movies, entryLine(d))
		}
	}
	slices.Sort(movies)
	slices.Sort(docs)

	var b strings.Builder
	b.WriteString("=== Excluded Entries Report ===\n\n")
	fmt.Fprintf(&b, "Total allowed: %d\n", allowed)
	fmt.Fprintf(&b, "Total excluded: %d (policy: %d, lookup errors: %d)\n\n", len(excluded), policy, errored)

	writeSection(&b, "Movies", movies)
	fmt.Fprintf(&b, "Total movies excluded: %d\n\n", len(movies))
	writeSection(&b, "Documentaries", docs)
	fmt.Fprintf(&b, "Total documentaries excluded: %d\n\n", len(docs))

	b.WriteString("--- TV Shows ---\n")
	names := make([]string, 0, len(shows))
	for name := range shows {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		group := shows[name]
		reasons := make([]string, 0, len(group.reasons))
		for reason := range group.reasons {
			reasons = append(reasons, reason)
		}
		slices.Sort(reasons)
		fmt.Fprintf(&b, "%s - %d episodes excluded [%s]\n", name, group.episodes, strings.Join(reasons, ", "))
	}
	fmt.Fprintf(&b, "\nTotal shows excluded: %d\n", len(shows))
	b.WriteString("=== End of Report ===\n")
	return b.String()
}

// Write renders the report to path atomically.
func Write(path string, excluded []filter.Decision, allowed int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, []byte(Render(excluded, allowed)), 0o644); err != nil {
		return fmt.Errorf("write excluded report: %w", err)
	}
	return nil
}

func entryLine(d filter.Decision) string {
	title := strings.TrimSpace(d.Entry.RawTitle)
	if title == "" {
		title = d.Entry.Title
	}
	return fmt.Sprintf("%s [%s]", title, d.Reason)
}

func writeSection(b *strings.Builder, name string, lines []string) {
	fmt.Fprintf(b, "--- %s ---\n", name)
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
}
