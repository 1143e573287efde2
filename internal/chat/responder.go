// Package chat implements the LLM-backed channel responder.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/graaaaa/sms900/internal/event"
)

// Completer turns a prompt into a completion.
type Completer interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// Reply is the outcome of one completion.
type Reply struct {
	// Text is the completion with commands removed, split into IRC-sized lines.
	Text    string
	Actions []Action
}

// Responder builds prompts from channel history and runs completions.
// Settings may be changed from any goroutine.
type Responder struct {
	completer Completer
	history   *History
	channel   string
	nick      func() string
	submit    event.Submitter
	afterFunc AfterFunc
	now       func() time.Time
	logger    *slog.Logger

	mu             sync.Mutex
	model          string
	prompt         string
	overrideModel  string
	overridePrompt string
	reminders      map[TimerHandle]struct{}
}

// Option configures a Responder.
type Option func(*Responder)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(r *Responder) { r.model = model }
}

// WithPrompt sets the default extra instructions appended to the prompt.
func WithPrompt(prompt string) Option {
	return func(r *Responder) { r.prompt = prompt }
}

// WithNick sets the function returning the bot's current nickname.
func WithNick(nick func() string) Option {
	return func(r *Responder) { r.nick = nick }
}

// WithAfterFunc sets the timer function used for reminders (for testing).
func WithAfterFunc(af AfterFunc) Option {
	return func(r *Responder) { r.afterFunc = af }
}

// WithClock sets the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(r *Responder) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Responder) { r.logger = logger }
}

// NewResponder creates a responder for channel. Fired reminders are
// submitted to submit as TRIGGER_COMPLETION events.
func NewResponder(completer Completer, history *History, channel string, submit event.Submitter, opts ...Option) *Responder {
	r := &Responder{
		completer: completer,
		history:   history,
		channel:   channel,
		nick:      func() string { return "sms900" },
		submit:    submit,
		afterFunc: DefaultAfterFunc,
		now:       time.Now,
		logger:    slog.Default(),
		reminders: make(map[TimerHandle]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// History returns the responder's history.
func (r *Responder) History() *History {
	return r.history
}

// RecordSMS adds a relayed SMS to the channel history.
func (r *Responder) RecordSMS(sender, text string) {
	r.history.RecordSMS(r.channel, sender, text)
}

// SetPrompt overrides the extra instructions; "" restores the default.
func (r *Responder) SetPrompt(prompt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overridePrompt = prompt
}

// SetModel overrides the model; "" restores the default.
func (r *Responder) SetModel(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrideModel = model
}

// ResetHistory forgets the channel history.
func (r *Responder) ResetHistory() {
	r.history.Reset()
}

func (r *Responder) settings() (model, prompt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	model, prompt = r.model, r.prompt
	if r.overrideModel != "" {
		model = r.overrideModel
	}
	if r.overridePrompt != "" {
		prompt = r.overridePrompt
	}
	return model, prompt
}

// Respond completes the conversation using the last lines entries of
// history (all of it when lines <= 0). A non-empty reminder is recorded as
// a fired reminder first.
func (r *Responder) Respond(ctx context.Context, lines int, reminder string) (*Reply, error) {
	if reminder != "" {
		r.history.RecordReminder(r.channel, reminder)
	}

	model, extra := r.settings()
	nick := r.nick()
	prompt := buildPrompt(r.channel, nick, extra, r.history.Recent(r.channel, lines), r.now())

	completion, err := r.completer.Complete(ctx, model, prompt)
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}

	// Actions are extracted before wrapping so a marker is never split.
	text, actions := ParseActions(StripImaginaryResponse(completion))
	text = strings.TrimPrefix(strings.TrimSpace(text), "<"+nick+"> ")
	return &Reply{Text: SplitLong(text, MaxLineLength), Actions: actions}, nil
}

// ScheduleReminder arranges for message to be fed back as a completion
// trigger at the time described by when. It returns the resolved time.
func (r *Responder) ScheduleReminder(when, message string) (time.Time, error) {
	now := r.now()
	at, err := ParseWhen(when, now)
	if err != nil {
		return time.Time{}, err
	}

	var handle TimerHandle
	fire := func() {
		r.mu.Lock()
		delete(r.reminders, handle)
		r.mu.Unlock()
		r.logger.Info("reminder fired", "message", message)
		r.submit.Submit(event.NewTriggerCompletion(event.TriggerCompletion{Reminder: message}))
	}

	r.mu.Lock()
	handle = r.afterFunc(at.Sub(now), fire)
	r.reminders[handle] = struct{}{}
	r.mu.Unlock()

	r.logger.Info("reminder scheduled", "at", at, "message", message)
	return at, nil
}

// PendingReminders returns the number of reminders not yet fired.
func (r *Responder) PendingReminders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reminders)
}

// Stop cancels all pending reminders.
func (r *Responder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h := range r.reminders {
		h.Stop()
		delete(r.reminders, h)
	}
}
