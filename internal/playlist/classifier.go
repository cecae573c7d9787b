package playlist

import (
	"strings"

	"strmsync/internal/catalog"
	"strmsync/internal/config"
)

// Keywords holds the group-label substrings for each category.
type Keywords struct {
	Movie       []string
	TV          []string
	Documentary []string
	Replay      []string
}

// IgnoreRules holds title substrings that drop an entry of a category.
type IgnoreRules struct {
	Movie       []string
	TV          []string
	Documentary []string
}

type rule struct {
	category catalog.Category
	keywords []string
}

// Classifier maps group labels to categories. Matching is a case-insensitive
// substring test evaluated in a fixed priority order: replay, documentary,
// tv, movie. The order does not depend on configuration.
type Classifier struct {
	rules  []rule
	ignore map[catalog.Category][]string
}

// NewClassifier builds a classifier. Keywords are lower-cased and blanks
// dropped.
func NewClassifier(keywords Keywords, ignore IgnoreRules) *Classifier {
	return &Classifier{
		rules: []rule{
			{catalog.CategoryReplay, lowerAll(keywords.Replay)},
			{catalog.CategoryDocumentary, lowerAll(keywords.Documentary)},
			{catalog.CategoryTV, lowerAll(keywords.TV)},
			{catalog.CategoryMovie, lowerAll(keywords.Movie)},
		},
		ignore: map[catalog.Category][]string{
			catalog.CategoryMovie:       lowerAll(ignore.Movie),
			catalog.CategoryTV:          lowerAll(ignore.TV),
			catalog.CategoryDocumentary: lowerAll(ignore.Documentary),
		},
	}
}

// NewClassifierFromConfig builds a classifier from the keyword and ignore
// sections of cfg.
func NewClassifierFromConfig(cfg *config.Config) *Classifier {
	return NewClassifier(
		Keywords{
			Movie:       cfg.Keywords.Movie,
			TV:          cfg.Keywords.TV,
			Documentary: cfg.Keywords.Documentary,
			Replay:      cfg.Keywords.Replay,
		},
		IgnoreRules{
			Movie:       cfg.Ignore.Movie,
			TV:          cfg.Ignore.TV,
			Documentary: cfg.Ignore.Documentary,
		},
	)
}

// Classify returns the first category whose keywords match group.
func (c *Classifier) Classify(group string) (catalog.Category, bool) {
	label := strings.ToLower(group)
	if strings.TrimSpace(label) == "" {
		return "", false
	}
	for _, r := range c.rules {
		for _, kw := range r.keywords {
			if strings.Contains(label, kw) {
				return r.category, true
			}
		}
	}
	return "", false
}

// Ignored reports whether title contains one of the category's ignore
// keywords.
func (c *Classifier) Ignored(category catalog.Category, title string) bool {
	words := c.ignore[category]
	if len(words) == 0 {
		return false
	}
	lowered := strings.ToLower(title)
	for _, w := range words {
		if strings.Contains(lowered, w) {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
