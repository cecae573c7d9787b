// Package progress reports run progress and the final run statistics.
//
// The pipeline talks to a single Sink. LogSink writes structured log lines,
// ConsoleSink draws live trackers and a summary table for interactive
// terminals, and Multi fans events out to several sinks.
package progress
