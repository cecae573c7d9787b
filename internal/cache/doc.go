// Package cache persists filter decisions across runs in SQLite.
//
// A decision is keyed by the normalized title key and stays authoritative
// until its source fingerprint changes, a forced regeneration is requested,
// or the normalizer version recorded in the database no longer matches the
// running binary. Opening the database is fatal when it fails; later write
// failures switch the store to an in-memory overlay so the run can finish.
//
// The local_media table mirrors the scanner's index for inspection only and
// is replaced wholesale every run.
package cache
