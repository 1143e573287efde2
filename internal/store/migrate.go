package store

import (
	"context"
	"fmt"
)

// migrate creates all tables. Every statement is idempotent.
func (s *Store) migrate(ctx context.Context) error {
	steps := []struct {
		name   string
		schema string
	}{
		{"phonebook", `
		CREATE TABLE IF NOT EXISTS phonebook (
			id       INTEGER PRIMARY KEY,
			nickname TEXT NOT NULL UNIQUE,
			number   TEXT NOT NULL UNIQUE
		);
		`},
		{"phonebook_email", `
		CREATE TABLE IF NOT EXISTS phonebook_email (
			id       INTEGER PRIMARY KEY,
			nickname TEXT NOT NULL,
			email    TEXT NOT NULL UNIQUE
		);
		CREATE INDEX IF NOT EXISTS idx_phonebook_email_nickname ON phonebook_email(nickname);
		`},
		{"smslog", `
		CREATE TABLE IF NOT EXISTS smslog (
			id        INTEGER PRIMARY KEY,
			ts        TEXT NOT NULL,
			sender    TEXT NOT NULL,
			recipient TEXT,
			contents  TEXT NOT NULL,
			direction TEXT NOT NULL CHECK (direction IN ('IN', 'OUT')),
			sms_count INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_smslog_direction_ts ON smslog(direction, ts);
		`},
		{"webhook_failures", `
		CREATE TABLE IF NOT EXISTS webhook_failures (
			id         INTEGER PRIMARY KEY,
			ts         TEXT NOT NULL,
			source     TEXT NOT NULL,
			payload    TEXT NOT NULL,
			error_msg  TEXT NOT NULL,
			dedupe_key TEXT NOT NULL UNIQUE
		);
		`},
		{"metadata", `
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		`},
	}

	for _, step := range steps {
		if _, err := s.db.ExecContext(ctx, step.schema); err != nil {
			return fmt.Errorf("create %s table: %w", step.name, err)
		}
	}
	return nil
}
