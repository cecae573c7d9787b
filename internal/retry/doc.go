// Package retry provides the backoff policy used for metadata lookups.
//
// A Policy decides how many attempts an operation gets and how long to wait
// between them. A Gate is shared by every worker of a phase: when one worker
// is rate limited it pushes the gate forward and all workers wait before
// their next request.
package retry
