package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"strmsync/internal/cache"
	"strmsync/internal/config"
	"strmsync/internal/filter"
	"strmsync/internal/logging"
	"strmsync/internal/notifications"
	"strmsync/internal/playlist"
	"strmsync/internal/progress"
	"strmsync/internal/retry"
	"strmsync/internal/services"
	"strmsync/internal/services/jellyfin"
	"strmsync/internal/tmdb"
	"strmsync/internal/workers"
)

// Env carries every collaborator of a run.
type Env struct {
	Config     *config.Config
	Logger     *slog.Logger
	Cache      *cache.Store
	Sink       progress.Sink
	Lookup     filter.Lookup
	Refresher  jellyfin.Refresher
	Notifier   notifications.Service
	Classifier *playlist.Classifier
	Rules      filter.Rules
	Retry      retry.Policy
	// Workers is resolved once at startup and passed to every phase.
	Workers int
}

// EnvOptions overrides collaborators NewEnv would otherwise build from the
// configuration.
type EnvOptions struct {
	Sink      progress.Sink
	Lookup    filter.Lookup
	Refresher jellyfin.Refresher
	Notifier  notifications.Service
}

// NewEnv opens the cache and builds the collaborators described by cfg.
// Failures are fatal and tagged ErrConfiguration or ErrCacheIO.
func NewEnv(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts EnvOptions) (*Env, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "startup", "build environment", "config is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "startup", "prepare directories", "", err)
	}

	lookup := opts.Lookup
	if lookup == nil {
		client, err := tmdb.NewFromConfig(cfg.TMDB)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "startup", "tmdb client", "", err)
		}
		lookup = client
	}

	resolution := workers.Resolve(cfg.Run.Workers, cfg.Paths.OutputDir, logger)
	logger.Info("worker pool sized",
		logging.Int("workers", resolution.Workers),
		logging.Bool("auto", resolution.Auto),
		logging.Bool("rotational", resolution.Rotational),
	)

	store, err := cache.Open(ctx, cfg.Paths.Cache, cache.Options{Logger: logger})
	if err != nil {
		return nil, err
	}

	env := &Env{
		Config:     cfg,
		Logger:     logger,
		Cache:      store,
		Sink:       opts.Sink,
		Lookup:     lookup,
		Refresher:  opts.Refresher,
		Notifier:   opts.Notifier,
		Classifier: playlist.NewClassifierFromConfig(cfg),
		Rules:      filter.RulesFromConfig(cfg.Filter),
		Retry:      retry.FromConfig(cfg.Retry),
		Workers:    resolution.Workers,
	}
	if env.Sink == nil {
		env.Sink = progress.NewLogSink(logger, cfg.Logging.Verbosity)
	}
	if env.Refresher == nil {
		env.Refresher = jellyfin.NewConfiguredRefresher(cfg)
	}
	if env.Notifier == nil {
		env.Notifier = notifications.NewService(cfg)
	}
	return env, nil
}

// Close releases the cache.
func (e *Env) Close() error {
	if e == nil || e.Cache == nil {
		return nil
	}
	if err := e.Cache.Close(); err != nil {
		return fmt.Errorf("close cache: %w", err)
	}
	return nil
}

func (e *Env) validate() error {
	var missing []error
	if e.Config == nil {
		missing = append(missing, errors.New("config"))
	}
	if e.Cache == nil {
		missing = append(missing, errors.New("cache"))
	}
	if e.Lookup == nil {
		missing = append(missing, errors.New("lookup client"))
	}
	if len(missing) > 0 {
		return services.Wrap(services.ErrConfiguration, "startup", "validate environment", "missing collaborators", errors.Join(missing...))
	}
	return nil
}
