package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// InsertWebhookFailure records an inbound payload that could not be handled.
// Returns true if the failure was inserted, false if it was a duplicate.
func (s *Store) InsertWebhookFailure(ctx context.Context, source, payload, errorMsg string) (inserted bool, err error) {
	if source == "" {
		return false, fmt.Errorf("source is required")
	}

	const query = `
	INSERT INTO webhook_failures (ts, source, payload, error_msg, dedupe_key)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(dedupe_key) DO NOTHING
	`

	dedupeKey := sha256Hex(source + "\x00" + payload)
	ts := time.Now().UTC().Format(TimeFormat)

	result, err := s.db.ExecContext(ctx, query, ts, source, payload, errorMsg, dedupeKey)
	if err != nil {
		return false, fmt.Errorf("insert webhook failure: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// CountWebhookFailures returns the number of recorded failures.
func (s *Store) CountWebhookFailures(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM webhook_failures").Scan(&n); err != nil {
		return 0, fmt.Errorf("count webhook failures: %w", err)
	}
	return n, nil
}

// sha256Hex returns the SHA256 hash of the input string as a hex string.
func sha256Hex(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
