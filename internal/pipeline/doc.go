// Package pipeline runs one playlist sync from start to finish.
//
// A run moves through Scanning, Parsing, Filtering, Synchronizing and
// Cleanup before reaching Done. Only startup problems (configuration, cache,
// run lock, unreadable playlist) and cancellation end a run in Failed;
// per-item problems are counted in the run statistics and the run carries
// on. Env bundles every collaborator a run needs so tests can substitute
// the metadata client, the refresher and the progress sink.
package pipeline
