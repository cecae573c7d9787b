package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"strmsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.TMDB.APIKey = "test"
	cfgVal.Paths.Playlist = filepath.Join(base, "playlist.m3u")
	cfgVal.Paths.Cache = filepath.Join(base, "state", "cache.db")
	cfgVal.Paths.Log = filepath.Join(base, "logs", "strmsync.log")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.ExistingMediaDirs = []string{filepath.Join(base, "media")}
	cfgVal.Filter.AllowedMovieCountries = []string{"US", "GB", "CA"}
	cfgVal.Filter.AllowedTVCountries = []string{"US", "GB", "CA"}
	cfgVal.Keywords = config.Keywords{
		Movie:       []string{"movie", "film"},
		TV:          []string{"series", "serie"},
		Documentary: []string{"documentar", "doc"},
		Replay:      []string{"replay"},
	}
	cfgVal.Run.Workers = 4
	cfgVal.Run.MaxWorkers = int64(4)
	cfgVal.Retry.BaseDelayMS = 1
	cfgVal.Retry.MaxDelayMS = 5
	cfgVal.Retry.Jitter = 0
	cfgVal.Logging.Level = "info"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithTMDBKey sets the TMDB API key on the test config.
func WithTMDBKey(key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.TMDB.APIKey = key
	}
}

// WithTMDBBaseURL points the metadata client at a test server.
func WithTMDBBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.TMDB.BaseURL = url
	}
}

// WithWorkers fixes the resolved worker count.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Run.Workers = n
		b.cfg.Run.MaxWorkers = int64(n)
	}
}

// WithDryRun toggles dry-run mode.
func WithDryRun() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Run.DryRun = true
	}
}

// WithCreatedDirs creates the media root and output directory up front.
func WithCreatedDirs() ConfigOption {
	return func(b *configBuilder) {
		dirs := append([]string{b.cfg.Paths.OutputDir, filepath.Dir(b.cfg.Paths.Cache)}, b.cfg.Paths.ExistingMediaDirs...)
		for _, dir := range dirs {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				b.t.Fatalf("mkdir %s: %v", dir, err)
			}
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.Playlist)
}
