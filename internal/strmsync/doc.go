// Package strmsync reconciles the output tree of .strm pointer files with
// the filtered playlist.
//
// A sync has three steps. Plan computes the desired file set, skipping
// titles owned locally and files that are already up to date. Apply creates
// each needed directory once and writes the remaining files across a bounded
// worker pool. Cleanup removes pointer files that are no longer desired and
// prunes the empty directories they leave behind.
package strmsync
