// Package irc maintains the bot's IRC session and turns channel commands into events.
package irc

import (
	"fmt"
	"strings"
)

// Numeric replies handled by the session.
const (
	ReplyWelcome     = "001"
	ErrNicknameInUse = "433"
)

const lineTerminator = "\r\n"

// Message is one parsed protocol line.
type Message struct {
	Prefix  string
	Command string
	Params  []string
}

// ParseLine parses a raw protocol line without its terminator.
func ParseLine(line string) (*Message, error) {
	line = strings.TrimRight(line, "\r\n")
	m := &Message{}

	// IRCv3 tags are not negotiated, but some servers send them anyway.
	if strings.HasPrefix(line, "@") {
		_, rest, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedLine, line)
		}
		line = rest
	}

	if strings.HasPrefix(line, ":") {
		prefix, rest, ok := strings.Cut(line[1:], " ")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedLine, line)
		}
		m.Prefix = prefix
		line = rest
	}

	line = strings.TrimLeft(line, " ")
	for line != "" {
		if strings.HasPrefix(line, ":") {
			m.Params = append(m.Params, line[1:])
			break
		}
		var field string
		field, line, _ = strings.Cut(line, " ")
		line = strings.TrimLeft(line, " ")
		if m.Command == "" {
			m.Command = strings.ToUpper(field)
			continue
		}
		m.Params = append(m.Params, field)
	}

	if m.Command == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	return m, nil
}

// Nick returns the nickname part of the prefix.
func (m *Message) Nick() string {
	nick, _, _ := strings.Cut(m.Prefix, "!")
	return nick
}

// Param returns the i-th parameter or "" if absent.
func (m *Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// Trailing returns the last parameter.
func (m *Message) Trailing() string {
	return m.Param(len(m.Params) - 1)
}

// String encodes the message as a protocol line without terminator.
// CR, LF and NUL are removed from params so a param cannot end the line.
func (m *Message) String() string {
	var b strings.Builder
	if m.Prefix != "" {
		b.WriteString(":")
		b.WriteString(m.Prefix)
		b.WriteString(" ")
	}
	b.WriteString(m.Command)
	for i, p := range m.Params {
		p = stripControl(p)
		b.WriteString(" ")
		if i == len(m.Params)-1 && (p == "" || strings.ContainsAny(p, " :")) {
			b.WriteString(":")
		}
		b.WriteString(p)
	}
	return b.String()
}

func stripControl(s string) string {
	if !strings.ContainsAny(s, "\r\n\x00") {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', 0:
			return -1
		}
		return r
	}, s)
}

// isChannel reports whether target names a channel rather than a user.
func isChannel(target string) bool {
	return strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&")
}
