// Package playlist parses M3U playlists into classified catalog entries.
//
// Parsing is streaming and tolerant: malformed metadata/URL pairs are counted
// and skipped, never fatal. Entries keep file order and the first entry for a
// normalized key wins.
package playlist
