package playlist

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"strmsync/internal/catalog"
	"strmsync/internal/logging"
	"strmsync/internal/services"
	"strmsync/internal/titlekey"
)

const (
	maxLineBytes = 1024 * 1024
	// maxErrorSamples bounds how many parse errors are kept for reporting;
	// all of them are still counted.
	maxErrorSamples = 50
	phaseName       = "parsing"
)

// attrPattern extracts key="value" or key=value pairs from #EXTINF lines.
var attrPattern = regexp.MustCompile(`([\w-]+)=(?:"([^"]*)"|([^\s,"]+))`)

// Options controls a parse.
type Options struct {
	Logger *slog.Logger
	// OnEntry is called for every retained entry.
	OnEntry func(index int, entry catalog.Entry)
}

// Stats counts what happened to every metadata/URL pair.
type Stats struct {
	Lines         int
	MissingHeader bool
	Pairs         int
	ParseErrors   int
	Unclassified  int
	Ignored       int
	Duplicates    int
	Found         map[catalog.Category]int
}

// Result holds the retained entries in file order.
type Result struct {
	Entries []catalog.Entry
	// Replays are classified but never produce output.
	Replays int
	Stats   Stats
	// Errors holds the first parse errors, each tagged with
	// services.ErrPlaylistFormat.
	Errors []error
}

type extinf struct {
	line  int
	title string
	group string
	err   string
}

type parser struct {
	classifier *Classifier
	logger     *slog.Logger
	onEntry    func(int, catalog.Entry)
	result     *Result
	seen       map[titlekey.Key]struct{}
}

// Parse reads an M3U playlist from r. Only read failures and cancellation
// return an error; in both cases the entries parsed so far are returned too.
func Parse(ctx context.Context, r io.Reader, classifier *Classifier, opts Options) (*Result, error) {
	p := &parser{
		classifier: classifier,
		logger:     logging.NewComponentLogger(opts.Logger, "playlist"),
		onEntry:    opts.OnEntry,
		result:     &Result{Stats: Stats{Found: make(map[catalog.Category]int)}},
		seen:       make(map[titlekey.Key]struct{}),
	}
	if p.classifier == nil {
		p.classifier = NewClassifier(Keywords{}, IgnoreRules{})
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var pending *extinf
	headerChecked := false
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if ctx.Err() != nil {
			return p.result, ctx.Err()
		}
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" {
			continue
		}
		if !headerChecked {
			headerChecked = true
			if strings.HasPrefix(line, "#EXTM3U") {
				continue
			}
			p.result.Stats.MissingHeader = true
			logging.WarnWithContext(p.logger, "playlist header missing; parsing anyway", "playlist_header_missing",
				logging.String(logging.FieldErrorHint, "verify the playlist file is an M3U export"))
		}

		switch {
		case strings.HasPrefix(line, "#EXTINF:"):
			if pending != nil {
				p.fail(pending.line, "metadata line has no URL")
			}
			info := parseExtinf(line)
			info.line = lineNo
			pending = &info
		case strings.HasPrefix(line, "#EXTGRP:"):
			if pending != nil && pending.group == "" {
				pending.group = strings.TrimSpace(strings.TrimPrefix(line, "#EXTGRP:"))
			}
		case strings.HasPrefix(line, "#"):
			// Player directives (#EXTVLCOPT, #KODIPROP, ...) carry nothing we use.
		default:
			if pending == nil {
				p.fail(lineNo, "URL without metadata line")
				continue
			}
			info := *pending
			pending = nil
			if !looksLikeURL(line) {
				p.fail(info.line, fmt.Sprintf("expected URL, got %q", truncate(line, 80)))
				continue
			}
			if info.err != "" {
				p.fail(info.line, info.err)
				continue
			}
			p.result.Stats.Pairs++
			p.accept(info, line)
		}
	}
	p.result.Stats.Lines = lineNo
	if pending != nil {
		p.fail(pending.line, "metadata line has no URL")
	}
	if err := scanner.Err(); err != nil {
		return p.result, services.Wrap(services.ErrPlaylistFormat, phaseName, "read playlist", fmt.Sprintf("after line %d", lineNo), err)
	}
	if err := ctx.Err(); err != nil {
		return p.result, err
	}

	stats := p.result.Stats
	p.logger.Info("playlist parsed",
		logging.Int("lines", stats.Lines),
		logging.Int("entries", len(p.result.Entries)),
		logging.Int("replays", p.result.Replays),
		logging.Int("parse_errors", stats.ParseErrors),
		logging.Int("unclassified", stats.Unclassified),
		logging.Int("ignored", stats.Ignored),
		logging.Int("duplicates", stats.Duplicates))
	return p.result, nil
}

func (p *parser) accept(info extinf, url string) {
	category, ok := p.classifier.Classify(info.group)
	if !ok {
		p.result.Stats.Unclassified++
		p.logger.Debug("entry unclassified",
			logging.Int("line", info.line),
			logging.String("group", info.group),
			logging.String("title", info.title))
		return
	}

	parsed := titlekey.Parse(info.title)
	if parsed.Title == "" {
		p.fail(info.line, fmt.Sprintf("title %q is empty after cleanup", info.title))
		return
	}
	if p.classifier.Ignored(category, info.title) {
		p.result.Stats.Ignored++
		p.logger.Debug("entry ignored by keyword",
			logging.Int("line", info.line),
			logging.String(logging.FieldCategory, string(category)),
			logging.String("title", info.title))
		return
	}

	entry := catalog.Entry{
		Line:     info.line,
		RawTitle: info.title,
		Title:    parsed.Title,
		URL:      url,
		Group:    info.group,
		Year:     parsed.Year,
		Category: category,
	}
	switch category {
	case catalog.CategoryTV:
		entry.Season, entry.Episode = parsed.Season, parsed.Episode
		if !parsed.HasEpisode {
			entry.Season, entry.Episode = 1, 1
		}
		entry.Key = titlekey.EpisodeKey(parsed.Title, entry.Season, entry.Episode)
	default:
		entry.Key = titlekey.MovieKey(parsed.Title, parsed.Year)
	}

	if category == catalog.CategoryReplay {
		p.result.Replays++
		p.result.Stats.Found[category]++
		return
	}
	if _, dup := p.seen[entry.Key]; dup {
		p.result.Stats.Duplicates++
		p.logger.Debug("duplicate entry skipped",
			logging.Int("line", info.line),
			logging.String(logging.FieldKey, entry.Key.String()))
		return
	}
	p.seen[entry.Key] = struct{}{}
	p.result.Stats.Found[category]++
	p.result.Entries = append(p.result.Entries, entry)
	if p.onEntry != nil {
		p.onEntry(len(p.result.Entries)-1, entry)
	}
}

func (p *parser) fail(line int, reason string) {
	p.result.Stats.ParseErrors++
	err := services.Wrap(services.ErrPlaylistFormat, phaseName, "parse entry", fmt.Sprintf("line %d: %s", line, reason), nil)
	if len(p.result.Errors) < maxErrorSamples {
		p.result.Errors = append(p.result.Errors, err)
	}
	p.logger.Debug("playlist entry skipped", logging.Error(err))
}

// parseExtinf reads attributes and the display title from an #EXTINF line.
// The title follows the first comma outside quoted attribute values, so
// titles may themselves contain commas.
func parseExtinf(line string) extinf {
	body := strings.TrimPrefix(line, "#EXTINF:")
	attrs := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(body, -1) {
		value := m[2]
		if value == "" {
			value = m[3]
		}
		attrs[strings.ToLower(m[1])] = strings.TrimSpace(value)
	}

	title := ""
	if idx := titleComma(body); idx >= 0 {
		title = strings.TrimSpace(body[idx+1:])
	}
	if title == "" {
		title = attrs["tvg-name"]
	}
	info := extinf{title: title, group: attrs["group-title"]}
	if title == "" {
		info.err = "metadata line has no title"
	}
	return info
}

// titleComma finds the comma that separates attributes from the title,
// ignoring commas inside quoted values.
func titleComma(body string) int {
	inQuotes := false
	for i, r := range body {
		switch r {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				return i
			}
		}
	}
	return -1
}

func looksLikeURL(line string) bool {
	scheme, rest, ok := strings.Cut(line, "://")
	if !ok || scheme == "" || rest == "" {
		return false
	}
	for _, r := range scheme {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
			return false
		}
	}
	return !strings.ContainsAny(line, " \t")
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
