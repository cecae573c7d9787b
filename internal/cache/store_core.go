package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"strmsync/internal/logging"
	"strmsync/internal/services"
	"strmsync/internal/titlekey"
)

// Store manages decision persistence backed by SQLite.
type Store struct {
	db                *sql.DB
	path              string
	normalizerVersion int
	logger            *slog.Logger

	mu       sync.RWMutex
	degraded bool
	overlay  map[titlekey.Key]Decision
	deleted  map[titlekey.Key]struct{}
}

// Options configures Open.
type Options struct {
	Logger *slog.Logger
	// NormalizerVersion overrides titlekey.Version; zero uses the default.
	NormalizerVersion int
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// Open initializes or connects to the cache database at path. Any failure is
// tagged with services.ErrCacheIO.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	ctx = ensureContext(ctx)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, services.Wrap(services.ErrCacheIO, "startup", "open cache", "create directory", err)
	}

	// busy_timeout is per connection; the DSN applies it to every pooled one.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, services.Wrap(services.ErrCacheIO, "startup", "open cache", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, services.Wrap(services.ErrCacheIO, "startup", "open cache", fmt.Sprintf("apply %q", pragma), execErr)
		}
	}

	version := opts.NormalizerVersion
	if version == 0 {
		version = titlekey.Version
	}
	store := &Store{
		db:                db,
		path:              path,
		normalizerVersion: version,
		logger:            logging.NewComponentLogger(opts.Logger, "cache"),
		overlay:           make(map[titlekey.Key]Decision),
		deleted:           make(map[titlekey.Key]struct{}),
	}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrCacheIO, "startup", "open cache", "initialize schema", err)
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Degraded reports whether a write failure switched the store to its
// in-memory overlay. Decisions made since then are lost at exit.
func (s *Store) Degraded() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

func (s *Store) isDegraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// degrade switches to the in-memory overlay after a write failure. Only the
// first failure is logged.
func (s *Store) degrade(op string, err error) {
	s.mu.Lock()
	first := !s.degraded
	s.degraded = true
	s.mu.Unlock()
	if first {
		logging.WarnWithContext(s.logger, "cache write failed; continuing with in-memory cache", "cache_degraded",
			logging.String("operation", op),
			logging.String("path", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check disk space and permissions for the cache file"),
			logging.String(logging.FieldImpact, "decisions from this run will not be persisted"),
			logging.Alert("cache_degraded"))
	}
}
