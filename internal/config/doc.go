// Package config loads, normalizes, and validates strmsync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TMDB_API_KEY. The symbolic max_workers setting is parsed here but resolved
// to a concrete worker count by the workers package, once, at startup.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, upper-cased country codes, and clear validation errors.
package config
