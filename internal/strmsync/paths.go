package strmsync

import (
	"fmt"
	"path/filepath"

	"strmsync/internal/catalog"
	"strmsync/internal/textutil"
	"strmsync/internal/titlekey"
)

// Extension is the pointer file suffix.
const Extension = ".strm"

// RelativePath returns the entry's path below the output directory, or ""
// for categories that produce no output.
//
//	Movies/<Title> (<Year>)/<Title> (<Year>).strm
//	TV Shows/<Show>/Season 01/<Show> S01E02.strm
//	Documentaries/<Title> (<Year>)/<Title> (<Year>).strm
func RelativePath(entry catalog.Entry) string {
	root := entry.Category.OutputDir()
	if root == "" {
		return ""
	}
	title := textutil.SanitizeFileName(titlekey.DisplayTitle(entry.Title))
	if entry.Category == catalog.CategoryTV {
		season, episode := entry.Season, entry.Episode
		if season < 1 {
			season = 1
		}
		if episode < 1 {
			episode = 1
		}
		return filepath.Join(root, title,
			fmt.Sprintf("Season %02d", season),
			fmt.Sprintf("%s S%02dE%02d%s", title, season, episode, Extension))
	}
	name := title
	if entry.Year > 0 {
		name = fmt.Sprintf("%s (%d)", title, entry.Year)
	}
	return filepath.Join(root, name, name+Extension)
}

// CategoryRoots returns the per-category directories below outputDir.
func CategoryRoots(outputDir string) []string {
	roots := make([]string, 0, len(catalog.OutputCategories))
	for _, category := range catalog.OutputCategories {
		roots = append(roots, filepath.Join(outputDir, category.OutputDir()))
	}
	return roots
}
