package chat

import (
	"fmt"
	"strings"
	"time"
)

const (
	basePrompt = "You're on an IRC channel called %[1]s and your nickname is %[2]s. " +
		"You have the ability to send SMS by writing '|SMS/recipient/message|', including the '|' and '/'. " +
		"If you want to send SMS to multiple people, you need to write the command multiple times. " +
		"You can also remind yourself to do things in the future, by writing '|REMIND/relative-or-absolute-time/message|'. " +
		"In reminders, include all necessary information for you to act on them (e.g. who to remind, and so on). " +
		"Assume that no other context will be available. " +
		"Commands cannot be nested; for example you cannot include an SMS command inside a REMINDER command. " +
		"You only send/set or even talk about SMS/reminders when someone explicitly asks you to. " +
		"Your responses usually fit on a line, but you can use multiple lines when for example generating code. " +
		"You never include \"<%[2]s>\" in your completion. "

	timestampLayout = "2006-01-02 15:04:05 MST"
)

// buildPrompt renders the instructions followed by the channel history and
// an open line for the bot to complete.
func buildPrompt(channel, nick, extra string, history []Entry, now time.Time) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(fmt.Sprintf(basePrompt, channel, nick) + extra))
	b.WriteString("\n\n")

	for _, e := range history {
		b.WriteString(formatEntry(e))
		b.WriteString("\n")
	}
	b.WriteString(formatEntry(Entry{Kind: KindIRC, Timestamp: now, Nickname: nick}))
	return b.String()
}

func formatEntry(e Entry) string {
	ts := e.Timestamp.Format(timestampLayout)
	switch e.Kind {
	case KindSMS:
		return fmt.Sprintf("[%s] [SMS from %s] %s", ts, e.Nickname, e.Msg)
	case KindReminder:
		return fmt.Sprintf("[%s] [REMINDER TRIGGERED] %s", ts, e.Msg)
	default:
		return fmt.Sprintf("[%s] <%s> %s", ts, e.Nickname, e.Msg)
	}
}
