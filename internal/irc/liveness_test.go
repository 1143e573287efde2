package irc

import (
	"errors"
	"testing"
	"time"
)

func TestLiveness_SendsPingAfterInterval(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	l := newLiveness(60*time.Second, 180*time.Second)
	l.reset(start)

	if token, _, _ := l.check(start.Add(59 * time.Second)); token != "" {
		t.Errorf("ping sent too early: %q", token)
	}

	token, _, err := l.check(start.Add(61 * time.Second))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if token != "1700000061" {
		t.Errorf("token = %q, want %q", token, "1700000061")
	}
	if !l.outstanding() {
		t.Error("ping should be outstanding")
	}

	// No second ping while one is outstanding.
	if token, _, _ := l.check(start.Add(120 * time.Second)); token != "" {
		t.Errorf("unexpected second ping %q", token)
	}
}

func TestLiveness_TimeoutRaisesConnectionLost(t *testing.T) {
	start := time.Unix(0, 0)
	l := newLiveness(60*time.Second, 180*time.Second)
	l.reset(start)

	sentAt := start.Add(61 * time.Second)
	l.check(sentAt)

	if _, _, err := l.check(sentAt.Add(180 * time.Second)); err != nil {
		t.Errorf("timeout fired at exactly the limit: %v", err)
	}
	_, lag, err := l.check(sentAt.Add(181 * time.Second))
	if !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("err = %v, want ErrConnectionLost", err)
	}
	if lag != 181*time.Second {
		t.Errorf("lag = %v, want 181s", lag)
	}
}

func TestLiveness_AnyPongSatisfiesPing(t *testing.T) {
	start := time.Unix(0, 0)
	l := newLiveness(60*time.Second, 180*time.Second)
	l.reset(start)

	sentAt := start.Add(61 * time.Second)
	l.check(sentAt)

	// The pong payload is never inspected.
	l.pong()
	_, lag, err := l.check(sentAt.Add(2 * time.Second))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if lag != 2*time.Second {
		t.Errorf("lag = %v, want 2s", lag)
	}
	if l.outstanding() {
		t.Error("ping should be satisfied")
	}

	// The interval restarts from the pong.
	if token, _, _ := l.check(sentAt.Add(60 * time.Second)); token != "" {
		t.Errorf("ping sent before interval elapsed: %q", token)
	}
	if _, _, err := l.check(sentAt.Add(1000 * time.Second)); err != nil {
		t.Errorf("unexpected error after pong: %v", err)
	}
}

func TestLiveness_ResetClearsState(t *testing.T) {
	start := time.Unix(0, 0)
	l := newLiveness(time.Second, time.Second)
	l.reset(start)
	l.check(start.Add(2 * time.Second))
	l.pong()

	l.reset(start.Add(time.Hour))
	if l.outstanding() || l.ponged {
		t.Error("reset should clear outstanding ping and pong flag")
	}
}
