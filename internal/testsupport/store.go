package testsupport

import (
	"context"
	"testing"

	"strmsync/internal/cache"
	"strmsync/internal/catalog"
	"strmsync/internal/config"
	"strmsync/internal/titlekey"
)

// MustOpenCache opens the cache store configured in cfg and registers cleanup.
func MustOpenCache(t testing.TB, cfg *config.Config) *cache.Store {
	t.Helper()

	store, err := cache.Open(context.Background(), cfg.Paths.Cache, cache.Options{})
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewMovie builds a classified movie entry the way the parser would.
func NewMovie(title string, year int, url string) catalog.Entry {
	return catalog.Entry{
		RawTitle: title,
		Title:    title,
		URL:      url,
		Group:    "Movies",
		Year:     year,
		Category: catalog.CategoryMovie,
		Key:      titlekey.MovieKey(title, year),
	}
}

// NewEpisode builds a classified TV entry the way the parser would.
func NewEpisode(show string, season, episode int, url string) catalog.Entry {
	return catalog.Entry{
		RawTitle: show,
		Title:    show,
		URL:      url,
		Group:    "Series",
		Season:   season,
		Episode:  episode,
		Category: catalog.CategoryTV,
		Key:      titlekey.EpisodeKey(show, season, episode),
	}
}
