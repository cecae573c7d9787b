package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"strmsync/internal/services"
)

// Verbosity levels accepted by logging.verbosity.
const (
	VerbosityQuiet   = "quiet"
	VerbosityNormal  = "normal"
	VerbosityVerbose = "verbose"
	VerbosityDebug   = "debug"
)

// Validate ensures the configuration is usable. Every returned error matches
// services.ErrConfiguration.
func (c *Config) Validate() error {
	for _, check := range []func() error{
		c.validatePaths,
		c.validateTMDB,
		c.validateKeywords,
		c.validateRun,
		c.validateRetry,
		c.validateLogging,
	} {
		if err := check(); err != nil {
			return invalid(err)
		}
	}
	return nil
}

func invalid(err error) error {
	if err == nil || errors.Is(err, services.ErrConfiguration) {
		return err
	}
	return fmt.Errorf("%w: %w", services.ErrConfiguration, err)
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.Playlist) == "" {
		return errors.New("paths.playlist must be set")
	}
	if strings.TrimSpace(c.Paths.Cache) == "" {
		return errors.New("paths.cache must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	for _, dir := range c.Paths.ExistingMediaDirs {
		if pathWithin(c.Paths.OutputDir, dir) || pathWithin(dir, c.Paths.OutputDir) {
			return fmt.Errorf("paths.output_dir %q must not overlap existing media dir %q", c.Paths.OutputDir, dir)
		}
	}
	return nil
}

func (c *Config) validateTMDB() error {
	if c.TMDB.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/strmsync/config.toml"
		}
		return fmt.Errorf("tmdb.api_key is required. Set TMDB_API_KEY env var or edit %s (create with 'strmsync config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateKeywords() error {
	if len(c.Keywords.Movie) == 0 && len(c.Keywords.TV) == 0 && len(c.Keywords.Documentary) == 0 {
		return errors.New("keywords: at least one of movie, tv, or documentary must be set")
	}
	return nil
}

func (c *Config) validateRun() error {
	if c.Run.Workers < 0 {
		return errors.New("run.max_workers must be positive or \"auto\"")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if c.Retry.BaseDelayMS <= 0 {
		return errors.New("retry.base_delay_ms must be positive")
	}
	if c.Retry.MaxDelayMS < c.Retry.BaseDelayMS {
		return errors.New("retry.max_delay_ms must be >= retry.base_delay_ms")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return errors.New("retry.jitter must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Verbosity {
	case VerbosityQuiet, VerbosityNormal, VerbosityVerbose, VerbosityDebug:
	default:
		return fmt.Errorf("logging.verbosity must be one of quiet, normal, verbose, debug (got %q)", c.Logging.Verbosity)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	return nil
}

func pathWithin(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
