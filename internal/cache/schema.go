package cache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"

	"strmsync/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; older databases are dropped and recreated.
const schemaVersion = 1

const (
	metaSchemaVersion     = "schema_version"
	metaNormalizerVersion = "normalizer_version"
)

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	version, found, err := s.readMetaInt(ctx, metaSchemaVersion)
	if err != nil {
		return err
	}
	if found && version != schemaVersion {
		s.logger.Warn("cache schema changed; rebuilding database",
			logging.Int("found_version", version),
			logging.Int("expected_version", schemaVersion))
		if err := s.rebuild(ctx); err != nil {
			return err
		}
	}

	normalizer, found, err := s.readMetaInt(ctx, metaNormalizerVersion)
	if err != nil {
		return err
	}
	if found && normalizer != s.normalizerVersion {
		res, err := s.db.ExecContext(ctx, "DELETE FROM decisions")
		if err != nil {
			return fmt.Errorf("invalidate decisions: %w", err)
		}
		dropped, _ := res.RowsAffected()
		s.logger.Info("title normalizer changed; cached decisions invalidated",
			logging.Int("found_version", normalizer),
			logging.Int("expected_version", s.normalizerVersion),
			logging.Int64("dropped", dropped))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin meta tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for key, value := range map[string]int{
		metaSchemaVersion:     schemaVersion,
		metaNormalizerVersion: s.normalizerVersion,
	} {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			key, strconv.Itoa(value)); err != nil {
			return fmt.Errorf("record %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit meta: %w", err)
	}
	return nil
}

func (s *Store) rebuild(ctx context.Context) error {
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS decisions",
		"DROP TABLE IF EXISTS local_media",
		"DROP TABLE IF EXISTS meta",
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("rebuild schema: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) readMetaInt(ctx context.Context, key string) (int, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read %s: %w", key, err)
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		// Unparseable metadata is treated as a mismatch.
		return -1, true, nil
	}
	return value, true, nil
}
