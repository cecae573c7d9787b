package config

const (
	defaultPlaylistPath        = "~/.local/share/strmsync/playlist.m3u"
	defaultCachePath           = "~/.local/share/strmsync/cache.db"
	defaultLogPath             = "~/.local/share/strmsync/logs/strmsync.log"
	defaultOutputDir           = "~/strm"
	defaultTMDBLanguage        = "en-US"
	defaultTMDBBaseURL         = "https://api.themoviedb.org/3"
	defaultTMDBTimeoutSeconds  = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultVerbosity           = "normal"
	defaultMaxWorkers          = "auto"
	defaultRetryMaxAttempts    = 5
	defaultRetryBaseDelayMS    = 500
	defaultRetryMaxDelayMS     = 30000
	defaultRetryJitter         = 0.2
	defaultNotifyTimeout       = 10
	defaultWriteExcludedReport = true
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			Playlist:  defaultPlaylistPath,
			Cache:     defaultCachePath,
			Log:       defaultLogPath,
			OutputDir: defaultOutputDir,
		},
		TMDB: TMDB{
			Language:       defaultTMDBLanguage,
			BaseURL:        defaultTMDBBaseURL,
			TimeoutSeconds: defaultTMDBTimeoutSeconds,
		},
		Filter: Filter{
			AllowedMovieCountries: []string{"US"},
			AllowedTVCountries:    []string{"US"},
		},
		Keywords: Keywords{
			Movie:       []string{"4k", "actionm", "comedym", "dramam"},
			TV:          []string{"ser", "action", "comedy", "drama"},
			Documentary: []string{"doc"},
			Replay:      []string{"replays"},
		},
		Run: Run{
			MaxWorkers:          defaultMaxWorkers,
			WriteExcludedReport: defaultWriteExcludedReport,
		},
		Retry: Retry{
			MaxAttempts: defaultRetryMaxAttempts,
			BaseDelayMS: defaultRetryBaseDelayMS,
			MaxDelayMS:  defaultRetryMaxDelayMS,
			Jitter:      defaultRetryJitter,
		},
		Logging: Logging{
			Format:    defaultLogFormat,
			Verbosity: defaultVerbosity,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
	}
}
