package catalog

import (
	"crypto/sha256"
	"encoding/hex"

	"strmsync/internal/titlekey"
)

// Entry is a parsed and classified playlist item. Entries are created once by
// the playlist parser and never mutated afterwards.
type Entry struct {
	// Line is the 1-based line number of the #EXTINF metadata line.
	Line     int
	RawTitle string
	// Title is the cleaned title with year and episode markers removed.
	Title    string
	URL      string
	Group    string
	Year     int
	Season   int
	Episode  int
	Category Category
	Key      titlekey.Key
}

// Fingerprint identifies the entry's source. A cached decision is only reused
// while the fingerprint is unchanged.
func (e Entry) Fingerprint() string {
	return SourceFingerprint(e.URL, e.Group)
}

// SourceFingerprint hashes a stream URL and group label.
func SourceFingerprint(url, group string) string {
	sum := sha256.Sum256([]byte(url + "\x00" + group))
	return hex.EncodeToString(sum[:])
}

// LocalRecord is an owned media file discovered by the local scanner.
type LocalRecord struct {
	Key      titlekey.Key
	Path     string
	Category Category
}
