package irc

import (
	"fmt"
	"time"
)

const (
	// DefaultPingInterval is how long the session stays silent before sending
	// a liveness ping.
	DefaultPingInterval = 60 * time.Second
	// DefaultPingTimeout is how long an outstanding ping may go unanswered.
	DefaultPingTimeout = 180 * time.Second
)

// liveness tracks application-level pings. Any PONG satisfies the outstanding
// ping regardless of its token. It is owned by the session goroutine.
type liveness struct {
	interval time.Duration
	timeout  time.Duration

	lastReply  time.Time
	pingSentAt time.Time // zero when no ping is outstanding
	ponged     bool
}

func newLiveness(interval, timeout time.Duration) *liveness {
	return &liveness{interval: interval, timeout: timeout}
}

// reset starts tracking a fresh connection.
func (l *liveness) reset(now time.Time) {
	l.lastReply = now
	l.pingSentAt = time.Time{}
	l.ponged = false
}

// pong records that a PONG arrived.
func (l *liveness) pong() {
	l.ponged = true
}

// outstanding reports whether a ping is awaiting its pong.
func (l *liveness) outstanding() bool {
	return !l.pingSentAt.IsZero()
}

// check advances the tracker. It returns a non-empty token when a ping should
// be sent now, and ErrConnectionLost when the outstanding ping timed out.
func (l *liveness) check(now time.Time) (token string, lag time.Duration, err error) {
	if !l.outstanding() {
		if now.Sub(l.lastReply) > l.interval {
			l.pingSentAt = now
			return fmt.Sprintf("%d", now.Unix()), 0, nil
		}
		return "", 0, nil
	}

	lag = now.Sub(l.pingSentAt)
	if l.ponged {
		l.pingSentAt = time.Time{}
		l.lastReply = now
		l.ponged = false
		return "", lag, nil
	}
	if lag > l.timeout {
		return "", lag, fmt.Errorf("%w: lag %s exceeded timeout %s", ErrConnectionLost, lag, l.timeout)
	}
	return "", lag, nil
}
