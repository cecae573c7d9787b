// Package catalog holds the content types shared by the playlist, local
// media, filter, and synchronization phases.
package catalog
