package irc

import (
	"strings"
	"sync"
)

// Line is one queued outbound PRIVMSG.
type Line struct {
	Target string
	Text   string
}

// Outbox is the multi-producer, single-consumer FIFO of outbound messages.
// Producers call Send from any goroutine; the session drains it.
type Outbox struct {
	mu    sync.Mutex
	lines []Line
}

// NewOutbox creates an empty Outbox.
func NewOutbox() *Outbox {
	return &Outbox{lines: make([]Line, 0, 16)}
}

// Send queues text for target. Text is split on CR, LF and CRLF into one
// line per row; empty rows are dropped.
func (o *Outbox) Send(target, text string) {
	rows := strings.FieldsFunc(text, isLineBreak)

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, row := range rows {
		if strings.TrimSpace(row) == "" {
			continue
		}
		o.lines = append(o.lines, Line{Target: target, Text: row})
	}
}

// Drain removes and returns all queued lines in FIFO order.
func (o *Outbox) Drain() []Line {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.lines) == 0 {
		return nil
	}
	lines := o.lines
	o.lines = make([]Line, 0, 16)
	return lines
}

// Len returns the number of queued lines.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.lines)
}

func isLineBreak(r rune) bool {
	return r == '\r' || r == '\n'
}
