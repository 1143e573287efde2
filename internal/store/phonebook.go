package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Entry is one phonebook row.
type Entry struct {
	Nickname string
	Number   string
}

// AddNumber stores a nickname -> number mapping. Both sides must be unused.
func (s *Store) AddNumber(ctx context.Context, nickname, number string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO phonebook (nickname, number) VALUES (?, ?)",
		nickname, number,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s or %s already present", ErrDuplicateEntry, nickname, number)
		}
		return fmt.Errorf("insert phonebook entry: %w", err)
	}
	return nil
}

// AddEmail binds an email address to a nickname. The address must be unused.
func (s *Store) AddEmail(ctx context.Context, nickname, email string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO phonebook_email (nickname, email) VALUES (?, ?)",
		nickname, email,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s already present", ErrDuplicateEntry, email)
		}
		return fmt.Errorf("insert email binding: %w", err)
	}
	return nil
}

// GetNumber returns the number stored for nickname.
func (s *Store) GetNumber(ctx context.Context, nickname string) (string, error) {
	if number, ok := s.numbers.Get(nickname); ok {
		return number, nil
	}

	var number string
	err := s.db.QueryRowContext(ctx,
		"SELECT number FROM phonebook WHERE nickname = ?",
		nickname,
	).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrUnknownEntry, nickname)
	}
	if err != nil {
		return "", fmt.Errorf("query number: %w", err)
	}

	s.numbers.Add(nickname, number)
	s.nicknames.Add(number, nickname)
	return number, nil
}

// GetNickname returns the nickname that owns number.
func (s *Store) GetNickname(ctx context.Context, number string) (string, error) {
	if nickname, ok := s.nicknames.Get(number); ok {
		return nickname, nil
	}

	var nickname string
	err := s.db.QueryRowContext(ctx,
		"SELECT nickname FROM phonebook WHERE number = ?",
		number,
	).Scan(&nickname)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrUnknownEntry, number)
	}
	if err != nil {
		return "", fmt.Errorf("query nickname: %w", err)
	}

	s.nicknames.Add(number, nickname)
	s.numbers.Add(nickname, number)
	return nickname, nil
}

// GetNicknameFromEmail returns the nickname bound to email.
func (s *Store) GetNicknameFromEmail(ctx context.Context, email string) (string, error) {
	var nickname string
	err := s.db.QueryRowContext(ctx,
		"SELECT nickname FROM phonebook_email WHERE email = ?",
		email,
	).Scan(&nickname)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrUnknownEntry, email)
	}
	if err != nil {
		return "", fmt.Errorf("query email binding: %w", err)
	}
	return nickname, nil
}

// DelEntry removes the phonebook entry for nickname together with its email
// bindings.
func (s *Store) DelEntry(ctx context.Context, nickname string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"DELETE FROM phonebook WHERE nickname = ?",
		nickname,
	)
	if err != nil {
		return fmt.Errorf("delete phonebook entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownEntry, nickname)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM phonebook_email WHERE nickname = ?",
		nickname,
	); err != nil {
		return fmt.Errorf("delete email bindings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	if number, ok := s.numbers.Peek(nickname); ok {
		s.nicknames.Remove(number)
	}
	s.numbers.Remove(nickname)
	return nil
}

// DelEmail removes the binding for email, which must belong to nickname.
func (s *Store) DelEmail(ctx context.Context, nickname, email string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM phonebook_email WHERE nickname = ? AND email = ?",
		nickname, email,
	)
	if err != nil {
		return fmt.Errorf("delete email binding: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s for %s", ErrUnknownEntry, email, nickname)
	}
	return nil
}

// Entries returns every phonebook entry ordered by nickname.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT nickname, number FROM phonebook ORDER BY nickname")
	if err != nil {
		return nil, fmt.Errorf("query phonebook: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Nickname, &e.Number); err != nil {
			return nil, fmt.Errorf("scan phonebook: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
