package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Direction of a logged message.
const (
	DirectionIn  = "IN"
	DirectionOut = "OUT"
)

// Message is one smslog row.
type Message struct {
	Ts        time.Time
	Sender    string
	Recipient string
	Contents  string
	Direction string
	// SMSCount is the number of carrier segments; only set for outgoing messages.
	SMSCount int
}

// Stats aggregates the message log.
type Stats struct {
	TotalIn  int
	TotalOut int
	// LastAt is the timestamp of the most recent message, empty if none.
	LastAt string
	// TopRecipients lists the recipients with most sent segments, best first.
	TopRecipients []RecipientCount
}

// RecipientCount is the number of segments sent to one recipient.
type RecipientCount struct {
	Recipient string
	Segments  int
}

// topRecipientsLimit bounds Stats.TopRecipients.
const topRecipientsLimit = 3

// LogIncoming records a received message.
func (s *Store) LogIncoming(ctx context.Context, sender, contents string) error {
	return s.insertMessage(ctx, &Message{
		Ts:        time.Now(),
		Sender:    sender,
		Contents:  contents,
		Direction: DirectionIn,
	})
}

// LogOutgoing records a sent message and the number of segments it used.
func (s *Store) LogOutgoing(ctx context.Context, sender, recipient, contents string, smsCount int) error {
	return s.insertMessage(ctx, &Message{
		Ts:        time.Now(),
		Sender:    sender,
		Recipient: recipient,
		Contents:  contents,
		Direction: DirectionOut,
		SMSCount:  smsCount,
	})
}

func (s *Store) insertMessage(ctx context.Context, m *Message) error {
	if err := m.validate(); err != nil {
		return err
	}

	var recipient sql.NullString
	if m.Recipient != "" {
		recipient = sql.NullString{String: m.Recipient, Valid: true}
	}
	var smsCount sql.NullInt64
	if m.Direction == DirectionOut {
		smsCount = sql.NullInt64{Int64: int64(m.SMSCount), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO smslog (ts, sender, recipient, contents, direction, sms_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.Ts.UTC().Format(TimeFormat), m.Sender, recipient, m.Contents, m.Direction, smsCount)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (m *Message) validate() error {
	if m.Sender == "" {
		return fmt.Errorf("%w: sender is required", ErrInvalidMessage)
	}
	switch m.Direction {
	case DirectionIn:
	case DirectionOut:
		if m.SMSCount < 0 {
			return fmt.Errorf("%w: negative sms count", ErrInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidMessage, m.Direction)
	}
	return nil
}

// Statistics returns the number of received messages and the number of
// segments sent.
func (s *Store) Statistics(ctx context.Context) (*Stats, error) {
	stats := &Stats{TopRecipients: []RecipientCount{}}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN direction = 'IN' THEN 1 ELSE 0 END), 0) AS total_in,
			COALESCE(SUM(CASE WHEN direction = 'OUT' THEN sms_count ELSE 0 END), 0) AS total_out
		FROM smslog
	`).Scan(&stats.TotalIn, &stats.TotalOut)
	if err != nil {
		return nil, fmt.Errorf("query statistics: %w", err)
	}

	var lastTs sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT ts FROM smslog
		ORDER BY ts DESC, id DESC
		LIMIT 1
	`).Scan(&lastTs)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("query last message: %w", err)
	}
	if lastTs.Valid {
		stats.LastAt = lastTs.String
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT recipient, SUM(sms_count) AS segments FROM smslog
		WHERE direction = 'OUT' AND recipient IS NOT NULL
		GROUP BY recipient
		ORDER BY segments DESC, recipient
		LIMIT ?
	`, topRecipientsLimit)
	if err != nil {
		return nil, fmt.Errorf("query top recipients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rc RecipientCount
		if err := rows.Scan(&rc.Recipient, &rc.Segments); err != nil {
			return nil, fmt.Errorf("scan top recipients: %w", err)
		}
		stats.TopRecipients = append(stats.TopRecipients, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
