// Package tmdb provides the minimal TMDB API client used by the metadata
// filter.
//
// Lookup resolves a title to its origin countries and original language via
// a movie or TV search followed, for movies, by a detail request. Failures
// are returned as *LookupError whose Kind maps onto the shared error markers
// in internal/services, so callers can decide between retrying and excluding
// without inspecting HTTP details.
package tmdb
