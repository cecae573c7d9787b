package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTMDB()
	c.normalizeFilter()
	c.normalizeKeywords()
	c.normalizeLibraryRefresh()
	if err := c.normalizeRun(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.Playlist, err = expandPath(strings.TrimSpace(c.Paths.Playlist)); err != nil {
		return fmt.Errorf("paths.playlist: %w", err)
	}
	if c.Paths.Cache, err = expandPath(strings.TrimSpace(c.Paths.Cache)); err != nil {
		return fmt.Errorf("paths.cache: %w", err)
	}
	if c.Paths.Log, err = expandPath(strings.TrimSpace(c.Paths.Log)); err != nil {
		return fmt.Errorf("paths.log: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	dirs := make([]string, 0, len(c.Paths.ExistingMediaDirs))
	seen := make(map[string]struct{}, len(c.Paths.ExistingMediaDirs))
	for _, dir := range c.Paths.ExistingMediaDirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		expanded, err := expandPath(dir)
		if err != nil {
			return fmt.Errorf("paths.existing_media_dirs: %w", err)
		}
		if _, ok := seen[expanded]; ok {
			continue
		}
		seen[expanded] = struct{}{}
		dirs = append(dirs, expanded)
	}
	c.Paths.ExistingMediaDirs = dirs
	return nil
}

func (c *Config) normalizeTMDB() {
	if c.TMDB.APIKey == "" {
		if value, ok := os.LookupEnv("TMDB_API_KEY"); ok {
			c.TMDB.APIKey = value
		}
	}
	c.TMDB.APIKey = strings.TrimSpace(c.TMDB.APIKey)
	c.TMDB.BaseURL = strings.TrimSpace(c.TMDB.BaseURL)
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = defaultTMDBBaseURL
	}
	c.TMDB.Language = strings.TrimSpace(c.TMDB.Language)
	if c.TMDB.TimeoutSeconds <= 0 {
		c.TMDB.TimeoutSeconds = defaultTMDBTimeoutSeconds
	}
}

func (c *Config) normalizeFilter() {
	c.Filter.AllowedMovieCountries = normalizeList(c.Filter.AllowedMovieCountries, strings.ToUpper)
	c.Filter.AllowedTVCountries = normalizeList(c.Filter.AllowedTVCountries, strings.ToUpper)
	c.Filter.ExcludedLanguages = normalizeList(c.Filter.ExcludedLanguages, strings.ToLower)
}

func (c *Config) normalizeKeywords() {
	c.Keywords.Movie = normalizeList(c.Keywords.Movie, strings.ToLower)
	c.Keywords.TV = normalizeList(c.Keywords.TV, strings.ToLower)
	c.Keywords.Documentary = normalizeList(c.Keywords.Documentary, strings.ToLower)
	c.Keywords.Replay = normalizeList(c.Keywords.Replay, strings.ToLower)
	c.Ignore.Movie = normalizeList(c.Ignore.Movie, strings.ToLower)
	c.Ignore.TV = normalizeList(c.Ignore.TV, strings.ToLower)
	c.Ignore.Documentary = normalizeList(c.Ignore.Documentary, strings.ToLower)
}

func (c *Config) normalizeLibraryRefresh() {
	if c.LibraryRefresh.APIKey == "" {
		if value, ok := os.LookupEnv("JELLYFIN_API_KEY"); ok {
			c.LibraryRefresh.APIKey = value
		}
	}
	c.LibraryRefresh.URL = strings.TrimRight(strings.TrimSpace(c.LibraryRefresh.URL), "/")
	c.LibraryRefresh.APIKey = strings.TrimSpace(c.LibraryRefresh.APIKey)
}

func (c *Config) normalizeRun() error {
	workers, err := parseWorkers(c.Run.MaxWorkers)
	if err != nil {
		return fmt.Errorf("run.max_workers: %w", err)
	}
	c.Run.Workers = workers
	if workers == 0 {
		c.Run.MaxWorkers = defaultMaxWorkers
	} else {
		c.Run.MaxWorkers = int64(workers)
	}
	return nil
}

// parseWorkers accepts "auto"/"max"/empty (0), TOML integers, and numeric strings.
func parseWorkers(value any) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int64:
		return checkWorkers(v)
	case int:
		return checkWorkers(int64(v))
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("must be an integer or \"auto\", got %v", v)
		}
		return checkWorkers(int64(v))
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(v))
		switch trimmed {
		case "", "auto", "max":
			return 0, nil
		}
		n, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("must be an integer or \"auto\", got %q", v)
		}
		return checkWorkers(n)
	default:
		return 0, fmt.Errorf("unsupported value %v (%T)", value, value)
	}
}

func checkWorkers(n int64) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return int(n), nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Verbosity = strings.ToLower(strings.TrimSpace(c.Logging.Verbosity))
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = defaultVerbosity
	}
	if c.Logging.Level == "" {
		switch c.Logging.Verbosity {
		case "quiet":
			c.Logging.Level = "warn"
		case "debug":
			c.Logging.Level = "debug"
		default:
			c.Logging.Level = defaultLogLevel
		}
	}
}

func normalizeList(values []string, fold func(string) string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := fold(strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
