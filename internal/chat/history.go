package chat

import (
	"sync"
	"time"
)

// EntryKind distinguishes what produced a history entry.
type EntryKind int

const (
	KindIRC EntryKind = iota
	KindSMS
	KindReminder
)

// Entry is one remembered line.
type Entry struct {
	Kind      EntryKind
	Timestamp time.Time
	Channel   string
	Nickname  string
	Msg       string
}

// History is a bounded, concurrency-safe log of recent lines. Oldest entries
// are dropped first.
type History struct {
	mu      sync.Mutex
	entries []Entry
	max     int
	now     func() time.Time
}

// NewHistory creates a History holding at most max entries.
func NewHistory(max int) *History {
	if max <= 0 {
		max = 50
	}
	return &History{max: max, now: time.Now}
}

func (h *History) add(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = h.now()
	}
	h.entries = append(h.entries, e)
	if over := len(h.entries) - h.max; over > 0 {
		h.entries = append(h.entries[:0:0], h.entries[over:]...)
	}
}

// Record stores a line said on IRC.
func (h *History) Record(channel, nick, text string) {
	h.add(Entry{Kind: KindIRC, Channel: channel, Nickname: nick, Msg: text})
}

// RecordSMS stores an incoming SMS relayed to channel.
func (h *History) RecordSMS(channel, nick, text string) {
	h.add(Entry{Kind: KindSMS, Channel: channel, Nickname: nick, Msg: text})
}

// RecordReminder stores a reminder that just fired.
func (h *History) RecordReminder(channel, text string) {
	h.add(Entry{Kind: KindReminder, Channel: channel, Msg: text})
}

// Recent returns up to n most recent entries for channel, oldest first.
// n <= 0 returns all of them.
func (h *History) Recent(channel string, n int) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []Entry
	for _, e := range h.entries {
		if e.Channel == channel {
			out = append(out, e)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Reset forgets everything.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}
