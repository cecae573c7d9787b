// Package workers sizes and runs the bounded worker pools used by the
// filtering and synchronization phases.
//
// The symbolic "auto" setting is resolved exactly once per run by Resolve;
// downstream phases receive only the resulting integer.
package workers
