package cache

import (
	"context"
	"database/sql"
	"errors"
	"maps"
	"slices"
	"time"

	"strmsync/internal/catalog"
	"strmsync/internal/services"
	"strmsync/internal/titlekey"
)

const decisionColumns = "key, allowed, reason, category, strm_path, stream_url, group_label, fingerprint, last_verified"

func scanDecision(scanner interface{ Scan(dest ...any) error }) (Decision, error) {
	var (
		key      string
		allowed  int
		category string
		verified string
		d        Decision
	)
	if err := scanner.Scan(&key, &allowed, &d.Reason, &category, &d.StrmPath, &d.StreamURL, &d.Group, &d.Fingerprint, &verified); err != nil {
		return Decision{}, err
	}
	d.Key = titlekey.Key(key)
	d.Allowed = allowed != 0
	d.Category = catalog.Category(category)
	if ts, err := time.Parse(time.RFC3339Nano, verified); err == nil {
		d.LastVerified = ts
	}
	return d, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// Get returns the decision for key. A missing key reports false with a nil
// error.
func (s *Store) Get(ctx context.Context, key titlekey.Key) (Decision, bool, error) {
	ctx = ensureContext(ctx)
	s.mu.RLock()
	if d, ok := s.overlay[key]; ok {
		s.mu.RUnlock()
		return d, true, nil
	}
	if _, gone := s.deleted[key]; gone {
		s.mu.RUnlock()
		return Decision{}, false, nil
	}
	s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+decisionColumns+" FROM decisions WHERE key = ?", string(key))
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Decision{}, false, nil
	}
	if err != nil {
		return Decision{}, false, services.Wrap(services.ErrCacheIO, "", "get decision", string(key), err)
	}
	return d, true, nil
}

// Upsert stores d atomically for d.Key. LastVerified defaults to now. When
// the database write fails the decision is kept in memory and the store is
// marked degraded; the returned error is nil in that case.
func (s *Store) Upsert(ctx context.Context, d Decision) error {
	ctx = ensureContext(ctx)
	if d.Key == "" {
		return errors.New("cache upsert: empty key")
	}
	if d.LastVerified.IsZero() {
		d.LastVerified = time.Now().UTC()
	}
	if !s.isDegraded() {
		err := s.execWithRetry(ctx, `INSERT INTO decisions (`+decisionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
    allowed = excluded.allowed,
    reason = excluded.reason,
    category = excluded.category,
    strm_path = excluded.strm_path,
    stream_url = excluded.stream_url,
    group_label = excluded.group_label,
    fingerprint = excluded.fingerprint,
    last_verified = excluded.last_verified`,
			string(d.Key), boolInt(d.Allowed), d.Reason, string(d.Category), d.StrmPath, d.StreamURL,
			d.Group, d.Fingerprint, d.LastVerified.UTC().Format(time.RFC3339Nano))
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.degrade("upsert", err)
	}
	s.mu.Lock()
	s.overlay[d.Key] = d
	delete(s.deleted, d.Key)
	s.mu.Unlock()
	return nil
}

// SetOutput records (or clears, with an empty path) the pointer file written
// for key. Keys without a decision are ignored.
func (s *Store) SetOutput(ctx context.Context, key titlekey.Key, strmPath string) error {
	d, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return err
	}
	if d.StrmPath == strmPath {
		return nil
	}
	d.StrmPath = strmPath
	return s.Upsert(ctx, d)
}

// Delete removes the decision for key.
func (s *Store) Delete(ctx context.Context, key titlekey.Key) error {
	ctx = ensureContext(ctx)
	if !s.isDegraded() {
		err := s.execWithRetry(ctx, "DELETE FROM decisions WHERE key = ?", string(key))
		if err == nil {
			s.mu.Lock()
			delete(s.overlay, key)
			s.mu.Unlock()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.degrade("delete", err)
	}
	s.mu.Lock()
	delete(s.overlay, key)
	s.deleted[key] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Scan calls fn for every decision ordered by key, stopping at the first
// error fn returns.
func (s *Store) Scan(ctx context.Context, fn func(Decision) error) error {
	ctx = ensureContext(ctx)
	merged := make(map[titlekey.Key]Decision)
	rows, err := s.db.QueryContext(ctx, "SELECT "+decisionColumns+" FROM decisions")
	if err != nil {
		if !s.isDegraded() {
			return services.Wrap(services.ErrCacheIO, "", "scan decisions", "", err)
		}
	} else {
		defer rows.Close()
		for rows.Next() {
			d, err := scanDecision(rows)
			if err != nil {
				return services.Wrap(services.ErrCacheIO, "", "scan decisions", "", err)
			}
			merged[d.Key] = d
		}
		if err := rows.Err(); err != nil {
			return services.Wrap(services.ErrCacheIO, "", "scan decisions", "", err)
		}
	}

	s.mu.RLock()
	for key := range s.deleted {
		delete(merged, key)
	}
	maps.Copy(merged, s.overlay)
	s.mu.RUnlock()

	for _, key := range slices.Sorted(maps.Keys(merged)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(merged[key]); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceLocalMedia swaps the persisted local index for records.
func (s *Store) ReplaceLocalMedia(ctx context.Context, records []catalog.LocalRecord) error {
	ctx = ensureContext(ctx)
	if s.isDegraded() {
		return nil
	}
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, "DELETE FROM local_media"); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO local_media (key, path, category) VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, rec := range records {
			if _, err := stmt.ExecContext(ctx, string(rec.Key), rec.Path, string(rec.Category)); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.degrade("replace local media", err)
	}
	return nil
}

// LocalMedia returns the persisted local index ordered by key.
func (s *Store) LocalMedia(ctx context.Context) ([]catalog.LocalRecord, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT key, path, category FROM local_media ORDER BY key")
	if err != nil {
		return nil, services.Wrap(services.ErrCacheIO, "", "list local media", "", err)
	}
	defer rows.Close()
	var out []catalog.LocalRecord
	for rows.Next() {
		var key, path, category string
		if err := rows.Scan(&key, &path, &category); err != nil {
			return nil, err
		}
		out = append(out, catalog.LocalRecord{Key: titlekey.Key(key), Path: path, Category: catalog.Category(category)})
	}
	return out, rows.Err()
}

// Stats summarizes the decisions table.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Path:              s.path,
		SchemaVersion:     schemaVersion,
		NormalizerVersion: s.normalizerVersion,
		ByReason:          make(map[string]int),
		Degraded:          s.Degraded(),
	}
	err := s.Scan(ctx, func(d Decision) error {
		stats.Decisions++
		if d.Allowed {
			stats.Allowed++
		} else {
			stats.Excluded++
			stats.ByReason[d.Reason]++
		}
		if d.StrmPath != "" {
			stats.WithOutput++
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	if err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM local_media").Scan(&stats.LocalMedia); err != nil {
		return stats, services.Wrap(services.ErrCacheIO, "", "count local media", "", err)
	}
	return stats, nil
}

// Clear removes all decisions and the persisted local index. Returns the
// number of decisions removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var removed int64
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		res, err := tx.ExecContext(ctx, "DELETE FROM decisions")
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		if _, err := tx.ExecContext(ctx, "DELETE FROM local_media"); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, services.Wrap(services.ErrCacheIO, "", "clear cache", s.path, err)
	}
	s.mu.Lock()
	clear(s.overlay)
	clear(s.deleted)
	s.mu.Unlock()
	return removed, nil
}
