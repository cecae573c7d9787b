// Package mediascan indexes media the user already owns so the synchronizer
// can skip pointer files for it.
//
// Keys are produced by titlekey, the same normalizer used for playlist
// entries, so ownership checks are exact key lookups. The index is built once
// per run and never mutated afterwards.
package mediascan
