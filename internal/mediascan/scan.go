package mediascan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"strmsync/internal/catalog"
	"strmsync/internal/logging"
	"strmsync/internal/titlekey"
	"strmsync/internal/workers"
)

// Options controls a scan.
type Options struct {
	// Workers bounds how many roots are walked concurrently.
	Workers int
	Logger  *slog.Logger
	// OnRoot is called after each root finishes, in completion order.
	OnRoot func(index int, root string)
}

// Report summarizes a scan.
type Report struct {
	Roots        int
	RootsSkipped int
	Files        int
	Indexed      int
	Unrecognized int
	Duplicates   int
}

var seasonDirPattern = regexp.MustCompile(`(?i)^(season|saison|staffel|series)[ ._-]*\d+$|^s\d{1,2}$|^specials?$`)

func isVideoExt(ext string) bool {
	switch ext {
	case ".mkv", ".mp4", ".avi", ".m4v", ".mov", ".ts", ".m2ts", ".wmv", ".mpg", ".mpeg", ".webm", ".iso":
		return true
	default:
		return false
	}
}

type rootResult struct {
	records      []catalog.LocalRecord
	files        int
	unrecognized int
	skipped      bool
}

// Scan walks every root and builds the ownership index. Missing or unreadable
// roots are skipped with a warning. Records from earlier roots win over later
// roots holding the same key, regardless of walk completion order.
func Scan(ctx context.Context, roots []string, opts Options) (*Index, Report) {
	logger := logging.NewComponentLogger(opts.Logger, "mediascan")
	results := make([]rootResult, len(roots))

	_ = workers.ForEach(ctx, opts.Workers, roots, func(ctx context.Context, i int, root string) {
		results[i] = scanRoot(ctx, root, logger)
		if opts.OnRoot != nil {
			opts.OnRoot(i, root)
		}
	})

	idx := NewIndex(nil)
	report := Report{Roots: len(roots)}
	for _, res := range results {
		if res.skipped {
			report.RootsSkipped++
			continue
		}
		report.Files += res.files
		report.Unrecognized += res.unrecognized
		for _, rec := range res.records {
			if idx.add(rec) {
				report.Indexed++
			} else {
				report.Duplicates++
			}
		}
	}
	logger.Info("local media indexed",
		logging.Int("roots", report.Roots),
		logging.Int("roots_skipped", report.RootsSkipped),
		logging.Int("files", report.Files),
		logging.Int("indexed", report.Indexed),
		logging.Int("duplicates", report.Duplicates))
	return idx, report
}

func scanRoot(ctx context.Context, root string, logger *slog.Logger) rootResult {
	root = filepath.Clean(root)
	if ctx.Err() != nil {
		return rootResult{skipped: true}
	}
	info, err := os.Stat(root)
	if err == nil && !info.IsDir() {
		err = fmt.Errorf("%s is not a directory", root)
	}
	if err != nil {
		logging.WarnWithContext(logger, "media directory unavailable; skipping", "media_root_skipped",
			logging.String("root", root),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check existing_media_dirs in config and mount status"),
			logging.String(logging.FieldImpact, "owned titles under this root may receive pointer files"))
		return rootResult{skipped: true}
	}

	var res rootResult
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped; the rest of the root still counts.
			if d != nil && d.IsDir() && path != root {
				logger.Debug("skipping unreadable directory", logging.String("path", path), logging.Error(err))
				return filepath.SkipDir
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isVideoExt(strings.ToLower(filepath.Ext(name))) {
			return nil
		}
		res.files++
		rec, ok := recordFor(root, path)
		if !ok {
			res.unrecognized++
			return nil
		}
		res.records = append(res.records, rec)
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, context.Canceled) && !errors.Is(walkErr, context.DeadlineExceeded) {
		logging.WarnWithContext(logger, "media directory scan incomplete", "media_root_partial",
			logging.String("root", root),
			logging.Error(walkErr),
			logging.String(logging.FieldErrorHint, "check directory permissions"))
	}

	sort.Slice(res.records, func(i, j int) bool { return res.records[i].Path < res.records[j].Path })
	return res
}

// recordFor derives the key and category for one media file. File names carry
// the episode marker; folder names fill in show titles and movie years.
func recordFor(root, path string) (catalog.LocalRecord, bool) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parsed := titlekey.Parse(name)
	dirs := relativeDirs(root, path)

	rec := catalog.LocalRecord{Path: path, Category: catalog.CategoryMovie}
	if parsed.HasEpisode {
		show := parsed.Title
		if show == "" {
			show = showFromDirs(dirs)
		}
		if show == "" {
			return rec, false
		}
		rec.Category = catalog.CategoryTV
		rec.Key = titlekey.EpisodeKey(show, parsed.Season, parsed.Episode)
		return rec, true
	}

	if isDocumentaryPath(root, dirs) {
		rec.Category = catalog.CategoryDocumentary
	}
	title, year := parsed.Title, parsed.Year
	if len(dirs) > 0 && (title == "" || year == 0) {
		folder := titlekey.Parse(dirs[len(dirs)-1])
		if title == "" {
			title = folder.Title
		}
		if year == 0 && titlekey.MovieKey(folder.Title, 0) == titlekey.MovieKey(title, 0) {
			year = folder.Year
		}
	}
	if title == "" {
		return rec, false
	}
	rec.Key = titlekey.MovieKey(title, year)
	return rec, true
}

func relativeDirs(root, path string) []string {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil || rel == "." {
		return nil
	}
	return strings.Split(rel, string(filepath.Separator))
}

func showFromDirs(dirs []string) string {
	for i := len(dirs) - 1; i >= 0; i-- {
		if seasonDirPattern.MatchString(strings.TrimSpace(dirs[i])) {
			continue
		}
		if title := titlekey.Parse(dirs[i]).Title; title != "" {
			return title
		}
	}
	return ""
}

func isDocumentaryPath(root string, dirs []string) bool {
	segments := append([]string{filepath.Base(root)}, dirs...)
	for _, seg := range segments {
		if strings.Contains(strings.ToLower(seg), "documentar") {
			return true
		}
	}
	return false
}
