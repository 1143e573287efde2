// Package event provides the typed events exchanged between the producers
// (IRC session, webhook listener, timers) and the event core.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type is the discriminant of an Event.
type Type string

// Event types.
const (
	TypeSendSMS           Type = "SEND_SMS"
	TypeAddEntry          Type = "ADD_PB_ENTRY"
	TypeDelEntry          Type = "DEL_PB_ENTRY"
	TypeLookupCarrier     Type = "LOOKUP_CARRIER"
	TypeSMSReceived       Type = "SMS_RECEIVED"
	TypeMMSReceived       Type = "MMS_RECEIVED"
	TypeGitHubWebhook     Type = "GITHUB_WEBHOOK"
	TypeReindexAll        Type = "REINDEX_ALL"
	TypeShowStats         Type = "SHOW_STATS"
	TypeTriggerCompletion Type = "TRIGGER_COMPLETION"
)

// Event is a unit of work for the event core. It is created by a producer,
// consumed exactly once, then discarded.
type Event struct {
	Type     Type
	Payload  any
	QueuedAt time.Time
}

// String implements fmt.Stringer for log output.
// Attachment contents and webhook bodies are summarized, not dumped.
func (e Event) String() string {
	switch p := e.Payload.(type) {
	case MMSReceived:
		return fmt.Sprintf("%s sender=%s subject=%q attachments=%d", e.Type, p.Sender, p.Subject, len(p.Attachments))
	case GitHubWebhook:
		return fmt.Sprintf("%s bytes=%d", e.Type, len(p.Payload))
	default:
		return fmt.Sprintf("%s %+v", e.Type, e.Payload)
	}
}

// SendSMS asks the core to send Message to Destination (a number or a phonebook nickname).
type SendSMS struct {
	Hostmask    string
	Destination string
	Message     string
}

// AddEntry adds a number or an email binding to the phonebook.
// Exactly one of Number and Email is set.
type AddEntry struct {
	Hostmask string
	Nickname string
	Number   string
	Email    string
}

// DelEntry removes a phonebook nickname or an email binding.
// Exactly one of Nickname and Email is set.
type DelEntry struct {
	Hostmask string
	Nickname string
	Email    string
}

// LookupCarrier asks for the carrier of Number.
type LookupCarrier struct {
	Hostmask string
	Number   string
}

// SMSReceived is an inbound SMS reported by the carrier callback.
type SMSReceived struct {
	From string
	Body string
}

// Attachment is a file received with an MMS.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// MMSReceived is an inbound MMS delivered through the mail gateway.
type MMSReceived struct {
	Sender      string
	Subject     string
	Text        string
	Attachments []Attachment
}

// GitHubWebhook carries the raw JSON body of a repository push notification.
type GitHubWebhook struct {
	Payload json.RawMessage
}

// ReindexAll regenerates the media index pages.
type ReindexAll struct{}

// ShowStats reports message statistics.
type ShowStats struct{}

// TriggerCompletion asks the chat responder for a reply.
// Lines limits how much channel history is included (0 means all retained history).
// Reminder, when set, is the text of a reminder the responder scheduled earlier.
type TriggerCompletion struct {
	Lines    int
	Reminder string
}

func newEvent(t Type, payload any) Event {
	return Event{Type: t, Payload: payload, QueuedAt: time.Now()}
}

// NewSendSMS creates a SEND_SMS event.
func NewSendSMS(p SendSMS) Event { return newEvent(TypeSendSMS, p) }

// NewAddEntry creates an ADD_PB_ENTRY event.
func NewAddEntry(p AddEntry) Event { return newEvent(TypeAddEntry, p) }

// NewDelEntry creates a DEL_PB_ENTRY event.
func NewDelEntry(p DelEntry) Event { return newEvent(TypeDelEntry, p) }

// NewLookupCarrier creates a LOOKUP_CARRIER event.
func NewLookupCarrier(p LookupCarrier) Event { return newEvent(TypeLookupCarrier, p) }

// NewSMSReceived creates an SMS_RECEIVED event.
func NewSMSReceived(p SMSReceived) Event { return newEvent(TypeSMSReceived, p) }

// NewMMSReceived creates an MMS_RECEIVED event.
func NewMMSReceived(p MMSReceived) Event { return newEvent(TypeMMSReceived, p) }

// NewGitHubWebhook creates a GITHUB_WEBHOOK event.
func NewGitHubWebhook(p GitHubWebhook) Event { return newEvent(TypeGitHubWebhook, p) }

// NewReindexAll creates a REINDEX_ALL event.
func NewReindexAll() Event { return newEvent(TypeReindexAll, ReindexAll{}) }

// NewShowStats creates a SHOW_STATS event.
func NewShowStats() Event { return newEvent(TypeShowStats, ShowStats{}) }

// NewTriggerCompletion creates a TRIGGER_COMPLETION event.
func NewTriggerCompletion(p TriggerCompletion) Event { return newEvent(TypeTriggerCompletion, p) }

// Submitter accepts events for asynchronous processing.
// Implementations must be safe for concurrent use and must not block.
type Submitter interface {
	Submit(e Event)
}

// SubmitterFunc adapts a function to the Submitter interface.
type SubmitterFunc func(e Event)

// Submit calls f(e).
func (f SubmitterFunc) Submit(e Event) { f(e) }
