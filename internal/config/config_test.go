package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"strmsync/internal/config"
	"strmsync/internal/services"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultConfigUsesEnvKeysAndExpandsPaths(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "test-key")
	t.Setenv("JELLYFIN_API_KEY", "jf-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != filepath.Join(tempHome, ".config", "strmsync", "config.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantCache := filepath.Join(tempHome, ".local", "share", "strmsync", "cache.db")
	if cfg.Paths.Cache != wantCache {
		t.Fatalf("unexpected cache path: got %q want %q", cfg.Paths.Cache, wantCache)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "strm") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.TMDB.APIKey != "test-key" {
		t.Fatalf("expected TMDB key from env, got %q", cfg.TMDB.APIKey)
	}
	if cfg.LibraryRefresh.APIKey != "jf-key" {
		t.Fatalf("expected refresh key from env, got %q", cfg.LibraryRefresh.APIKey)
	}
	if cfg.Run.Workers != 0 || cfg.Run.MaxWorkers != "auto" {
		t.Fatalf("expected auto workers, got %d / %v", cfg.Run.Workers, cfg.Run.MaxWorkers)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Verbosity != config.VerbosityNormal {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.LockPath() != wantCache+".lock" {
		t.Fatalf("unexpected lock path %q", cfg.LockPath())
	}
	if cfg.ExcludedReportPath() != filepath.Join(tempHome, "strm", "excluded_entries.txt") {
		t.Fatalf("unexpected report path %q", cfg.ExcludedReportPath())
	}
}

func TestLoadMissingAPIKeyIsConfigurationError(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "")
	os.Unsetenv("TMDB_API_KEY")
	t.Setenv("HOME", t.TempDir())

	path := writeConfig(t, "[paths]\noutput_dir = \"/tmp/strm-out\"\n")
	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "tmdb.api_key") {
		t.Fatalf("expected message to name the field, got %v", err)
	}
}

func TestLoadNormalizesSections(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	base := t.TempDir()
	path := writeConfig(t, `
[paths]
playlist = "`+filepath.Join(base, "list.m3u")+`"
cache = "`+filepath.Join(base, "cache.db")+`"
output_dir = "`+filepath.Join(base, "out")+`"
existing_media_dirs = ["`+filepath.Join(base, "media")+`", "`+filepath.Join(base, "media")+`", " "]

[tmdb]
api_key = " abc "

[filter]
allowed_movie_countries = ["us", " gb ", "US"]
excluded_languages = ["HI", "ta"]

[keywords]
movie = ["Movies", "movies"]
tv = []
documentary = []
replay = ["REPLAY"]

[library_refresh]
url = "http://jellyfin:8096/"

[run]
max_workers = 12

[logging]
verbosity = "Quiet"
`)

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if len(cfg.Paths.ExistingMediaDirs) != 1 {
		t.Fatalf("expected deduplicated media dirs, got %v", cfg.Paths.ExistingMediaDirs)
	}
	if strings.Join(cfg.Filter.AllowedMovieCountries, ",") != "US,GB" {
		t.Fatalf("unexpected movie countries: %v", cfg.Filter.AllowedMovieCountries)
	}
	if strings.Join(cfg.Filter.ExcludedLanguages, ",") != "hi,ta" {
		t.Fatalf("unexpected excluded languages: %v", cfg.Filter.ExcludedLanguages)
	}
	if strings.Join(cfg.Keywords.Movie, ",") != "movies" || cfg.Keywords.Replay[0] != "replay" {
		t.Fatalf("unexpected keywords: %+v", cfg.Keywords)
	}
	if cfg.TMDB.APIKey != "abc" {
		t.Fatalf("expected trimmed api key, got %q", cfg.TMDB.APIKey)
	}
	if cfg.LibraryRefresh.URL != "http://jellyfin:8096" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.LibraryRefresh.URL)
	}
	if cfg.Run.Workers != 12 {
		t.Fatalf("expected 12 workers, got %d", cfg.Run.Workers)
	}
	if cfg.Logging.Verbosity != config.VerbosityQuiet || cfg.Logging.Level != "warn" {
		t.Fatalf("expected quiet verbosity to map to warn, got %+v", cfg.Logging)
	}
}

func TestLoadMaxWorkersValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TMDB_API_KEY", "k")
	cases := []struct {
		value   string
		workers int
		wantErr bool
	}{
		{`"auto"`, 0, false},
		{`"MAX"`, 0, false},
		{`"8"`, 8, false},
		{`16`, 16, false},
		{`0`, 0, true},
		{`-2`, 0, true},
		{`"lots"`, 0, true},
		{`2.5`, 0, true},
	}
	for _, tc := range cases {
		path := writeConfig(t, "[run]\nmax_workers = "+tc.value+"\n")
		cfg, _, _, err := config.Load(path)
		if tc.wantErr {
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("max_workers=%s: expected configuration error, got %v", tc.value, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("max_workers=%s: unexpected error %v", tc.value, err)
		}
		if cfg.Run.Workers != tc.workers {
			t.Fatalf("max_workers=%s: expected %d, got %d", tc.value, tc.workers, cfg.Run.Workers)
		}
	}
}

func TestValidateRejectsOverlappingOutput(t *testing.T) {
	cfg := config.Default()
	cfg.TMDB.APIKey = "k"
	cfg.Logging.Level = "info"
	cfg.Paths.OutputDir = "/srv/media/strm"
	cfg.Paths.ExistingMediaDirs = []string{"/srv/media"}
	if err := cfg.Validate(); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected overlap to be rejected, got %v", err)
	}
	cfg.Paths.ExistingMediaDirs = []string{"/srv/media-library"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected sibling directory to validate, got %v", err)
	}
}

func TestValidateRetryBounds(t *testing.T) {
	cfg := config.Default()
	cfg.TMDB.APIKey = "k"
	cfg.Logging.Level = "info"
	cfg.Retry.MaxDelayMS = cfg.Retry.BaseDelayMS - 1
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "max_delay_ms") {
		t.Fatalf("expected retry bound error, got %v", err)
	}
}

func TestSampleConfigParses(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var parsed config.Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if parsed.Run.MaxWorkers != "auto" {
		t.Fatalf("expected sample max_workers auto, got %v", parsed.Run.MaxWorkers)
	}
	if len(parsed.Keywords.TV) == 0 {
		t.Fatal("expected sample tv keywords")
	}

	t.Setenv("TMDB_API_KEY", "k")
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load with env key: %v", err)
	}
}
