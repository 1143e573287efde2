package chat

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ActionKind is a command the model can embed in its completion.
type ActionKind string

const (
	ActionSMS    ActionKind = "SMS"
	ActionRemind ActionKind = "REMIND"
)

// Action is one "|KIND/arg/message|" command found in a completion.
type Action struct {
	Kind ActionKind
	// Target is the SMS recipient or the reminder time.
	Target  string
	Message string
}

// ErrInvalidWhen is returned by ParseWhen for unrecognised times.
var ErrInvalidWhen = errors.New("invalid reminder time")

var actionPattern = regexp.MustCompile(`\|(SMS|REMIND)/([^/|]+)/([^|]+)\|`)

// ParseActions extracts the commands from text and returns the text with
// the commands removed.
func ParseActions(text string) (string, []Action) {
	var actions []Action
	for _, m := range actionPattern.FindAllStringSubmatch(text, -1) {
		actions = append(actions, Action{
			Kind:    ActionKind(m[1]),
			Target:  strings.TrimSpace(m[2]),
			Message: strings.TrimSpace(m[3]),
		})
	}
	if len(actions) == 0 {
		return text, nil
	}

	cleaned := actionPattern.ReplaceAllString(text, "")
	var lines []string
	for _, line := range strings.Split(cleaned, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), actions
}

var (
	relativeWords = regexp.MustCompile(`^(?i)(?:in\s+)?(\d+)\s*(s|sec|secs|seconds?|m|min|mins|minutes?|h|hours?|d|days?)$`)
	absoluteForms = []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02T15:04",
	}
)

// ParseWhen resolves a reminder time relative to now. It accepts Go
// durations ("90m", "1h30m"), simple phrases ("in 5 minutes", "2 days"),
// absolute timestamps ("2024-05-01 18:00") and a time of day ("18:30",
// the next occurrence).
func ParseWhen(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)

	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return now.Add(d), nil
	}

	if m := relativeWords.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidWhen, s)
		}
		unit := time.Second
		switch strings.ToLower(m[2])[0] {
		case 'm':
			unit = time.Minute
		case 'h':
			unit = time.Hour
		case 'd':
			unit = 24 * time.Hour
		}
		return now.Add(time.Duration(n) * unit), nil
	}

	for _, layout := range absoluteForms {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}

	if t, err := time.ParseInLocation("15:04", s, now.Location()); err == nil {
		at := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidWhen, s)
}
