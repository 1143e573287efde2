package event

import (
	"strings"
	"testing"
)

func TestConstructorsSetType(t *testing.T) {
	tests := []struct {
		ev   Event
		want Type
	}{
		{NewSendSMS(SendSMS{}), TypeSendSMS},
		{NewAddEntry(AddEntry{}), TypeAddEntry},
		{NewDelEntry(DelEntry{}), TypeDelEntry},
		{NewLookupCarrier(LookupCarrier{}), TypeLookupCarrier},
		{NewSMSReceived(SMSReceived{}), TypeSMSReceived},
		{NewMMSReceived(MMSReceived{}), TypeMMSReceived},
		{NewGitHubWebhook(GitHubWebhook{}), TypeGitHubWebhook},
		{NewReindexAll(), TypeReindexAll},
		{NewShowStats(), TypeShowStats},
		{NewTriggerCompletion(TriggerCompletion{}), TypeTriggerCompletion},
	}
	for _, tt := range tests {
		if tt.ev.Type != tt.want {
			t.Errorf("Type = %s, want %s", tt.ev.Type, tt.want)
		}
		if tt.ev.QueuedAt.IsZero() {
			t.Errorf("%s: QueuedAt not set", tt.want)
		}
	}
}

func TestString_SummarizesAttachments(t *testing.T) {
	e := NewMMSReceived(MMSReceived{
		Sender:      "alice@example.org",
		Attachments: []Attachment{{Name: "a.jpg", Data: make([]byte, 1<<20)}},
	})

	s := e.String()
	if !strings.Contains(s, "attachments=1") {
		t.Errorf("String() = %q, want attachment count", s)
	}
	if len(s) > 200 {
		t.Errorf("String() should not dump attachment data (len %d)", len(s))
	}
}

func TestSubmitterFunc(t *testing.T) {
	var got []Type
	var s Submitter = SubmitterFunc(func(e Event) { got = append(got, e.Type) })

	s.Submit(NewShowStats())
	s.Submit(NewReindexAll())

	if len(got) != 2 || got[0] != TypeShowStats || got[1] != TypeReindexAll {
		t.Errorf("got %v", got)
	}
}
