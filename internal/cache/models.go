package cache

import (
	"time"

	"strmsync/internal/catalog"
	"strmsync/internal/titlekey"
)

// Decision reasons recorded for excluded titles.
const (
	ReasonCountry  = "country"
	ReasonLanguage = "language"
	ReasonNotFound = "not_found"
)

// Decision is the persisted filter outcome for one normalized key.
type Decision struct {
	Key      titlekey.Key
	Allowed  bool
	Reason   string
	Category catalog.Category
	// StrmPath is the pointer file last written for this key, or "".
	StrmPath     string
	StreamURL    string
	Group        string
	Fingerprint  string
	LastVerified time.Time
}

// Stats summarizes cache contents.
type Stats struct {
	Path              string
	SchemaVersion     int
	NormalizerVersion int
	Decisions         int
	Allowed           int
	Excluded          int
	ByReason          map[string]int
	WithOutput        int
	LocalMedia        int
	Degraded          bool
}
