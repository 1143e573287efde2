package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// VacuumInterval is the minimum time between two VACUUMs. The message log
// only grows, so compaction mostly reclaims space from phonebook churn.
const VacuumInterval = 7 * 24 * time.Hour

const metaLastVacuum = "last_vacuum_at"

// VacuumIfNeeded compacts the database when the previous VACUUM is older than
// VacuumInterval. It reports whether VACUUM ran.
func (s *Store) VacuumIfNeeded(ctx context.Context) (bool, error) {
	return s.vacuumAt(ctx, time.Now())
}

func (s *Store) vacuumAt(ctx context.Context, now time.Time) (bool, error) {
	last, err := s.lastVacuum(ctx)
	if err != nil {
		return false, err
	}
	if now.Sub(last) < VacuumInterval {
		return false, nil
	}

	slog.Info("running vacuum", "previous", last)
	start := time.Now()
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return false, fmt.Errorf("vacuum: %w", err)
	}
	slog.Info("vacuum done", "elapsed", time.Since(start))

	if err := s.setMeta(ctx, metaLastVacuum, now.UTC().Format(TimeFormat)); err != nil {
		slog.Warn("record vacuum time", "error", err)
	}
	return true, nil
}

// lastVacuum returns the zero time when no valid timestamp is recorded.
func (s *Store) lastVacuum(ctx context.Context) (time.Time, error) {
	value, ok, err := s.getMeta(ctx, metaLastVacuum)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(TimeFormat, value)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

func (s *Store) getMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read metadata %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("write metadata %s: %w", key, err)
	}
	return nil
}
