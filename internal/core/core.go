// Package core serializes all side-effecting work of the bot. Producers
// submit events from any goroutine; a single dispatcher handles them in
// submission order.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/graaaaa/sms900/internal/carrier"
	"github.com/graaaaa/sms900/internal/chat"
	"github.com/graaaaa/sms900/internal/event"
	"github.com/graaaaa/sms900/internal/mms"
	"github.com/graaaaa/sms900/internal/store"
)

// Phonebook resolves and edits nickname bindings.
type Phonebook interface {
	AddNumber(ctx context.Context, nickname, number string) error
	AddEmail(ctx context.Context, nickname, email string) error
	GetNumber(ctx context.Context, nickname string) (string, error)
	GetNickname(ctx context.Context, number string) (string, error)
	GetNicknameFromEmail(ctx context.Context, email string) (string, error)
	DelEntry(ctx context.Context, nickname string) error
	DelEmail(ctx context.Context, nickname, email string) error
}

// MessageLog records traffic and webhook failures.
type MessageLog interface {
	LogIncoming(ctx context.Context, sender, contents string) error
	LogOutgoing(ctx context.Context, sender, recipient, contents string, smsCount int) error
	Statistics(ctx context.Context) (*store.Stats, error)
	InsertWebhookFailure(ctx context.Context, source, payload, errorMsg string) (bool, error)
}

// Carrier sends SMS and looks up numbers.
type Carrier interface {
	Send(ctx context.Context, to, from, body string) (*carrier.SendResult, error)
	Lookup(ctx context.Context, to string) (*carrier.LookupResult, error)
}

// Replier queues a line for the IRC channel.
type Replier interface {
	Send(target, text string)
}

// MediaStore persists received MMS.
type MediaStore interface {
	Save(msg event.MMSReceived) (*mms.Message, error)
}

// Indexer renders media index pages.
type Indexer interface {
	GenerateLocalIndex(dir string) error
	GenerateGlobalIndex() error
	ReindexAll() (int, error)
}

// Fetcher downloads an MMS announced by an SMS notification.
type Fetcher interface {
	Fetch(ctx context.Context, code string) (*event.MMSReceived, error)
}

// Responder produces chat completions and schedules reminders.
type Responder interface {
	Respond(ctx context.Context, lines int, reminder string) (*chat.Reply, error)
	ScheduleReminder(when, message string) (time.Time, error)
	RecordSMS(sender, text string)
}

// Core owns the event queue and dispatches events one at a time.
type Core struct {
	queue     *Queue
	channel   string
	phonebook Phonebook
	log       MessageLog
	replier   Replier
	logger    *slog.Logger

	carrier    Carrier
	fromNumber string

	media   MediaStore
	indexer Indexer

	fetcher    Fetcher
	mmsPattern *regexp.Regexp

	chat Responder
	nick func() string
}

// Option configures a Core.
type Option func(*Core)

// WithCarrier enables SEND_SMS and LOOKUP_CARRIER. from is the sender number.
func WithCarrier(c Carrier, from string) Option {
	return func(co *Core) {
		co.carrier = c
		co.fromNumber = from
	}
}

// WithMedia enables MMS storage and index rendering.
func WithMedia(media MediaStore, indexer Indexer) Option {
	return func(co *Core) {
		co.media = media
		co.indexer = indexer
	}
}

// WithMMSFetcher makes SMS bodies matching pattern trigger an MMS download.
// The first submatch of pattern is passed to the fetcher as the message code.
func WithMMSFetcher(f Fetcher, pattern *regexp.Regexp) Option {
	return func(co *Core) {
		co.fetcher = f
		co.mmsPattern = pattern
	}
}

// WithResponder enables TRIGGER_COMPLETION.
func WithResponder(r Responder) Option {
	return func(co *Core) { co.chat = r }
}

// WithNick sets the function returning the bot's current nickname.
func WithNick(nick func() string) Option {
	return func(co *Core) { co.nick = nick }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(co *Core) {
		if logger != nil {
			co.logger = logger
		}
	}
}

// New creates a Core replying to channel through replier.
func New(channel string, phonebook Phonebook, log MessageLog, replier Replier, opts ...Option) *Core {
	c := &Core{
		queue:     NewQueue(),
		channel:   channel,
		phonebook: phonebook,
		log:       log,
		replier:   replier,
		logger:    slog.Default(),
		nick:      func() string { return "sms900" },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit enqueues e. It never blocks and is safe for concurrent use.
func (c *Core) Submit(e event.Event) {
	if e.QueuedAt.IsZero() {
		e.QueuedAt = time.Now()
	}
	c.queue.Push(e)
}

// Pending returns the number of queued events.
func (c *Core) Pending() int {
	return c.queue.Len()
}

// Run dispatches events until ctx is cancelled. Failures of single events
// are reported to the channel and never stop the loop.
func (c *Core) Run(ctx context.Context) error {
	c.logger.Info("event core started")
	for {
		e, err := c.queue.Pop(ctx)
		if err != nil {
			c.logger.Info("event core stopped", "pending", c.queue.Len())
			return nil
		}
		c.dispatch(ctx, e)
	}
}

func (c *Core) dispatch(ctx context.Context, e event.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic handling event",
				"event", e.String(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			c.reply(fmt.Sprintf("Unknown error: %v", r))
		}
	}()

	c.logger.Debug("handling event", "event", e.String(), "waited", time.Since(e.QueuedAt))
	if err := c.handle(ctx, e); err != nil {
		c.reportError(e, err)
	}
}

func (c *Core) reportError(e event.Event, err error) {
	if isDomainError(err) {
		c.logger.Info("event rejected", "event", e.String(), "error", err)
		c.reply("Error: " + err.Error())
		return
	}
	c.logger.Error("event failed",
		"event", e.String(),
		"error", err,
		"stack", string(debug.Stack()),
	)
	c.reply("Unknown error: " + err.Error())
}

func (c *Core) handle(ctx context.Context, e event.Event) error {
	switch e.Type {
	case event.TypeSendSMS:
		return withPayload(e, func(p event.SendSMS) error { return c.handleSendSMS(ctx, p) })
	case event.TypeAddEntry:
		return withPayload(e, func(p event.AddEntry) error { return c.handleAddEntry(ctx, p) })
	case event.TypeDelEntry:
		return withPayload(e, func(p event.DelEntry) error { return c.handleDelEntry(ctx, p) })
	case event.TypeLookupCarrier:
		return withPayload(e, func(p event.LookupCarrier) error { return c.handleLookup(ctx, p) })
	case event.TypeSMSReceived:
		return withPayload(e, func(p event.SMSReceived) error { return c.handleSMSReceived(ctx, p) })
	case event.TypeMMSReceived:
		return withPayload(e, func(p event.MMSReceived) error { return c.handleMMSReceived(ctx, p) })
	case event.TypeGitHubWebhook:
		return withPayload(e, func(p event.GitHubWebhook) error { return c.handleGitHub(ctx, p) })
	case event.TypeReindexAll:
		return c.handleReindex()
	case event.TypeShowStats:
		return c.handleStats(ctx)
	case event.TypeTriggerCompletion:
		return withPayload(e, func(p event.TriggerCompletion) error { return c.handleCompletion(ctx, p) })
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrMalformedPayload, e.Type)
	}
}

func withPayload[T any](e event.Event, fn func(T) error) error {
	p, ok := e.Payload.(T)
	if !ok {
		return fmt.Errorf("%w: %s carries %T", ErrMalformedPayload, e.Type, e.Payload)
	}
	return fn(p)
}

func (c *Core) reply(text string) {
	c.replier.Send(c.channel, text)
}

func notConfigured(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotConfigured)
}
