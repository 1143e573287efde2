package irc

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/graaaaa/sms900/internal/event"
	"github.com/graaaaa/sms900/internal/phone"
)

// Replies sent directly by the session without going through the event core.
const (
	HelpText = "Commands: s(end message), a(add contact), d(elete contact), l(ookup), r(eindex all), st(ats), h(elp)"

	usageSend    = "Usage: !s(end) <contact|number> <msg..>"
	usageAdd     = "Usage: !a(dd) contact <number|email>"
	usageDel     = "Usage: !d(elete) contact [email]"
	usageLookup  = "Usage: !l(ookup) <number>"
	usageReindex = "Usage: !r(eindex all)"
	usageStats   = "Usage: !st(ats)"
	usageReset   = "Usage: !or(reset history)"
	usageComment = "Usage: !oc(comment) <number-of-lines>"
)

var (
	commandPattern = regexp.MustCompile(`^!(st|s|S|a|d|h|l|r|op|or|oc|om)( .*|$)`)

	sendArgs    = regexp.MustCompile(`^\s*(\S+)\s+(.+)`)
	addArgs     = regexp.MustCompile(`^\s*(\S+)\s+(\S+)\s*$`)
	singleArg   = regexp.MustCompile(`^\s*(\S+)\s*$`)
	lookupArgs  = regexp.MustCompile(`^\s*(\S+)$`)
	noArgs      = regexp.MustCompile(`^\s*$`)
	commentArgs = regexp.MustCompile(`^\s*\d+\s*$`)
)

// ChatControl adjusts the chat responder at runtime.
type ChatControl interface {
	SetPrompt(prompt string)
	SetModel(model string)
	ResetHistory()
}

// Commands maps channel text to events. Malformed input yields a usage
// reply instead of an event.
type Commands struct {
	submit       event.Submitter
	chat         ChatControl
	quickContact string
	logger       *slog.Logger
}

// CommandsOption configures Commands.
type CommandsOption func(*Commands)

// WithChatControl enables the chat commands and nickname mentions.
func WithChatControl(chat ChatControl) CommandsOption {
	return func(c *Commands) { c.chat = chat }
}

// WithQuickContact sets the destination used by !S.
func WithQuickContact(contact string) CommandsOption {
	return func(c *Commands) { c.quickContact = contact }
}

// WithCommandsLogger sets the logger.
func WithCommandsLogger(logger *slog.Logger) CommandsOption {
	return func(c *Commands) { c.logger = logger }
}

// NewCommands creates a command parser that submits events to submit.
func NewCommands(submit event.Submitter, opts ...CommandsOption) *Commands {
	c := &Commands{
		submit: submit,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle interprets one message said by hostmask. myNick is the session's
// current nickname. The returned reply, if non-empty, must be sent back
// to the channel immediately.
func (c *Commands) Handle(hostmask, text, myNick string) string {
	m := commandPattern.FindStringSubmatch(text)
	if m == nil {
		if c.chat != nil && mentions(text, myNick) {
			c.logger.Info("nickname mentioned, requesting completion", "hostmask", hostmask)
			c.submit.Submit(event.NewTriggerCompletion(event.TriggerCompletion{}))
		}
		return ""
	}

	name, args := m[1], m[2]
	c.logger.Info("command received", "command", name, "hostmask", hostmask, "args", args)

	switch name {
	case "s":
		return c.send(hostmask, args)
	case "S":
		if c.quickContact == "" {
			return "Quick contact not configured"
		}
		return c.send(hostmask, c.quickContact+" "+args)
	case "a":
		return c.add(hostmask, args)
	case "d":
		return c.del(hostmask, args)
	case "l":
		sm := lookupArgs.FindStringSubmatch(args)
		if sm == nil {
			return usageLookup
		}
		c.submit.Submit(event.NewLookupCarrier(event.LookupCarrier{Hostmask: hostmask, Number: sm[1]}))
	case "r":
		if !noArgs.MatchString(args) {
			return usageReindex
		}
		c.submit.Submit(event.NewReindexAll())
	case "st":
		if !noArgs.MatchString(args) {
			return usageStats
		}
		c.submit.Submit(event.NewShowStats())
	case "h":
		return HelpText
	default:
		return c.chatCommand(name, args)
	}
	return ""
}

func (c *Commands) send(hostmask, args string) string {
	sm := sendArgs.FindStringSubmatch(args)
	if sm == nil {
		return usageSend
	}
	c.submit.Submit(event.NewSendSMS(event.SendSMS{
		Hostmask:    hostmask,
		Destination: sm[1],
		Message:     sm[2],
	}))
	return ""
}

func (c *Commands) add(hostmask, args string) string {
	sm := addArgs.FindStringSubmatch(args)
	if sm == nil {
		return usageAdd
	}
	p := event.AddEntry{Hostmask: hostmask, Nickname: sm[1]}
	if phone.IsEmail(sm[2]) {
		p.Email = sm[2]
	} else {
		p.Number = sm[2]
	}
	c.submit.Submit(event.NewAddEntry(p))
	return ""
}

func (c *Commands) del(hostmask, args string) string {
	sm := singleArg.FindStringSubmatch(args)
	if sm == nil {
		return usageDel
	}
	p := event.DelEntry{Hostmask: hostmask}
	if phone.IsEmail(sm[1]) {
		p.Email = sm[1]
	} else {
		p.Nickname = sm[1]
	}
	c.submit.Submit(event.NewDelEntry(p))
	return ""
}

func (c *Commands) chatCommand(name, args string) string {
	if c.chat == nil {
		return "Chat is not enabled"
	}

	switch name {
	case "op":
		prompt := strings.TrimSpace(args)
		c.chat.SetPrompt(prompt)
		if prompt == "" {
			return "Prompt reset"
		}
		return "Kashikomarimashita"
	case "or":
		if !noArgs.MatchString(args) {
			return usageReset
		}
		c.chat.ResetHistory()
		return "History reset"
	case "oc":
		if !commentArgs.MatchString(args) {
			return usageComment
		}
		lines, err := strconv.Atoi(strings.TrimSpace(args))
		if err != nil {
			return usageComment
		}
		c.submit.Submit(event.NewTriggerCompletion(event.TriggerCompletion{Lines: lines}))
	case "om":
		c.chat.SetModel(strings.TrimSpace(args))
		return "Done"
	}
	return ""
}

// mentions reports whether text addresses nick as a whole word.
func mentions(text, nick string) bool {
	if nick == "" {
		return false
	}
	lower, n := strings.ToLower(text), strings.ToLower(nick)
	for i := 0; ; {
		j := strings.Index(lower[i:], n)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(n)
		if !nickByte(lower, start-1) && !nickByte(lower, end) {
			return true
		}
		i = start + 1
	}
}

func nickByte(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	b := s[i]
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || strings.IndexByte("_{}[]\\`^-|", b) >= 0
}
