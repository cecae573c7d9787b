package mediascan

import (
	"maps"
	"slices"

	"strmsync/internal/catalog"
	"strmsync/internal/titlekey"
)

// Index is an immutable key -> local record lookup.
type Index struct {
	records map[titlekey.Key]catalog.LocalRecord
	counts  map[catalog.Category]int
}

// NewIndex builds an index from records. When two records share a key the
// first one wins.
func NewIndex(records []catalog.LocalRecord) *Index {
	idx := &Index{
		records: make(map[titlekey.Key]catalog.LocalRecord, len(records)),
		counts:  make(map[catalog.Category]int),
	}
	for _, rec := range records {
		idx.add(rec)
	}
	return idx
}

func (i *Index) add(rec catalog.LocalRecord) bool {
	if _, exists := i.records[rec.Key]; exists {
		return false
	}
	i.records[rec.Key] = rec
	i.counts[rec.Category]++
	return true
}

// Has reports whether the key is owned locally.
func (i *Index) Has(key titlekey.Key) bool {
	if i == nil {
		return false
	}
	_, ok := i.records[key]
	return ok
}

// Get returns the local record for key.
func (i *Index) Get(key titlekey.Key) (catalog.LocalRecord, bool) {
	if i == nil {
		return catalog.LocalRecord{}, false
	}
	rec, ok := i.records[key]
	return rec, ok
}

// Len returns the number of indexed keys.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.records)
}

// Counts returns a copy of the per-category record counts.
func (i *Index) Counts() map[catalog.Category]int {
	if i == nil {
		return map[catalog.Category]int{}
	}
	return maps.Clone(i.counts)
}

// Records returns all records ordered by key.
func (i *Index) Records() []catalog.LocalRecord {
	if i == nil {
		return nil
	}
	keys := slices.Sorted(maps.Keys(i.records))
	out := make([]catalog.LocalRecord, 0, len(keys))
	for _, key := range keys {
		out = append(out, i.records[key])
	}
	return out
}
