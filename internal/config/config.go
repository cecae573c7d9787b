package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains input, output, and state file locations.
type Paths struct {
	Playlist          string   `toml:"playlist"`
	Cache             string   `toml:"cache"`
	Log               string   `toml:"log"`
	OutputDir         string   `toml:"output_dir"`
	ExistingMediaDirs []string `toml:"existing_media_dirs"`
}

// TMDB contains configuration for The Movie Database API.
type TMDB struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Filter contains the availability rules applied to metadata lookups.
type Filter struct {
	AllowedMovieCountries []string `toml:"allowed_movie_countries"`
	AllowedTVCountries    []string `toml:"allowed_tv_countries"`
	ExcludedLanguages     []string `toml:"excluded_languages"`
}

// Keywords maps playlist group labels to content categories.
type Keywords struct {
	Movie       []string `toml:"movie"`
	TV          []string `toml:"tv"`
	Documentary []string `toml:"documentary"`
	Replay      []string `toml:"replay"`
}

// Ignore lists title keywords that drop an entry for a category.
type Ignore struct {
	Movie       []string `toml:"movie"`
	TV          []string `toml:"tv"`
	Documentary []string `toml:"documentary"`
}

// LibraryRefresh configures the Jellyfin/Emby library refresh call.
type LibraryRefresh struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// Run contains per-invocation behaviour switches.
type Run struct {
	DryRun              bool `toml:"dry_run"`
	MaxWorkers          any  `toml:"max_workers"`
	ForceRegenerate     bool `toml:"force_regenerate"`
	WriteExcludedReport bool `toml:"write_excluded_report"`

	// Workers is the resolved form of MaxWorkers; 0 means "auto".
	Workers int `toml:"-"`
}

// Retry configures backoff for metadata lookups.
type Retry struct {
	MaxAttempts int     `toml:"max_attempts"`
	BaseDelayMS int     `toml:"base_delay_ms"`
	MaxDelayMS  int     `toml:"max_delay_ms"`
	Jitter      float64 `toml:"jitter"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format    string `toml:"format"`
	Level     string `toml:"level"`
	Verbosity string `toml:"verbosity"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Config encapsulates all configuration values for strmsync.
//
// Configuration sections by subsystem:
//   - Paths: playlist input, cache database, log file, output tree, owned media roots
//   - TMDB: metadata lookups used for availability filtering
//   - Filter: country allow-lists and language exclusions
//   - Keywords / Ignore: playlist classification rules
//   - LibraryRefresh: Jellyfin/Emby refresh after a run
//   - Run: dry run, worker count, forced regeneration, reports
//   - Retry: backoff policy for rate-limited lookups
//   - Logging: log format, level, and progress verbosity
//   - Notifications: ntfy summary after a run
type Config struct {
	Paths          Paths          `toml:"paths"`
	TMDB           TMDB           `toml:"tmdb"`
	Filter         Filter         `toml:"filter"`
	Keywords       Keywords       `toml:"keywords"`
	Ignore         Ignore         `toml:"ignore"`
	LibraryRefresh LibraryRefresh `toml:"library_refresh"`
	Run            Run            `toml:"run"`
	Retry          Retry          `toml:"retry"`
	Logging        Logging        `toml:"logging"`
	Notifications  Notifications  `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/strmsync/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, invalid(fmt.Errorf("parse config: %w", err))
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, invalid(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("strmsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output tree root and the parents of the
// cache and log files.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.OutputDir, filepath.Dir(c.Paths.Cache)}
	if strings.TrimSpace(c.Paths.Log) != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.Log))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the run lock file guarding the cache database.
func (c *Config) LockPath() string {
	return c.Paths.Cache + ".lock"
}

// ExcludedReportPath returns where the excluded-entries report is written.
func (c *Config) ExcludedReportPath() string {
	return filepath.Join(c.Paths.OutputDir, "excluded_entries.txt")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
