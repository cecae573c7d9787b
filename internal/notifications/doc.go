// Package notifications publishes run summaries to ntfy.
//
// The topic configured under [notifications] is the full ntfy URL. When it
// is empty a no-op service is returned, so the pipeline can notify
// unconditionally.
package notifications
