package catalog

// Category is the content class assigned to a playlist entry or local file.
type Category string

const (
	CategoryMovie       Category = "movie"
	CategoryTV          Category = "tv"
	CategoryDocumentary Category = "documentary"
	CategoryReplay      Category = "replay"
)

// OutputCategories lists the categories that produce pointer files, in the
// order summaries are rendered.
var OutputCategories = []Category{CategoryMovie, CategoryTV, CategoryDocumentary}

// OutputDir returns the top-level output folder for the category, or "" when
// the category produces no files.
func (c Category) OutputDir() string {
	switch c {
	case CategoryMovie:
		return "Movies"
	case CategoryTV:
		return "TV Shows"
	case CategoryDocumentary:
		return "Documentaries"
	default:
		return ""
	}
}

// Produces reports whether entries of this category become pointer files.
func (c Category) Produces() bool {
	return c.OutputDir() != ""
}

// Label returns a plural, human-readable name used in summaries.
func (c Category) Label() string {
	switch c {
	case CategoryMovie:
		return "Movies"
	case CategoryTV:
		return "TV Episodes"
	case CategoryDocumentary:
		return "Documentaries"
	case CategoryReplay:
		return "Replays"
	default:
		return string(c)
	}
}
