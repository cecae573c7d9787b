// Package filter decides which playlist entries are available in the
// configured countries and languages.
//
// Every unique title key is looked up at most once per run. Decisions that
// came from a successful lookup, or from a definitive not-found, are written
// to the cache and reused on later runs while the entry's source fingerprint
// is unchanged. Lookups that exhaust their retries are excluded for this run
// only so the next run tries again.
package filter
