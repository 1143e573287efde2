package irc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// State is the connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateJoined
	StatePinging
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StatePinging:
		return "pinging"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	// DefaultTickInterval is how often the outbox is drained and liveness checked.
	DefaultTickInterval = 200 * time.Millisecond

	writeTimeout = 30 * time.Second
)

// Dialer opens the transport connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, network, address string) (net.Conn, error)

// DialContext implements Dialer.
func (f DialerFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

// CommandHandler interprets channel text. See Commands.
type CommandHandler interface {
	Handle(hostmask, text, myNick string) string
}

// HistoryRecorder receives every line said in the channel, including the
// session's own messages.
type HistoryRecorder interface {
	Record(channel, nick, text string)
}

// Session owns one IRC connection at a time and reconnects forever.
type Session struct {
	addr     string
	nickname string
	channel  string

	outbox   *Outbox
	commands CommandHandler
	history  HistoryRecorder

	dialer       Dialer
	backoff      Backoff
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
	tickInterval time.Duration
	pingInterval time.Duration
	pingTimeout  time.Duration
	logger       *slog.Logger

	mu    sync.Mutex
	state State
	nick  string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithDialer sets the transport dialer.
func WithDialer(d Dialer) SessionOption {
	return func(s *Session) { s.dialer = d }
}

// WithBackoff sets the reconnect delay policy.
func WithBackoff(b Backoff) SessionOption {
	return func(s *Session) { s.backoff = b }
}

// WithClock sets the time source used for liveness tracking (for testing).
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithSleep sets the function that waits between reconnects (for testing).
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) SessionOption {
	return func(s *Session) { s.sleep = sleep }
}

// WithTickInterval sets how often the outbox is drained.
func WithTickInterval(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithPingTiming sets the liveness ping interval and timeout.
func WithPingTiming(interval, timeout time.Duration) SessionOption {
	return func(s *Session) {
		s.pingInterval = interval
		s.pingTimeout = timeout
	}
}

// WithHistory sets the recorder for channel lines.
func WithHistory(h HistoryRecorder) SessionOption {
	return func(s *Session) { s.history = h }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// NewSession creates a session for addr ("host:port") that registers as
// nickname and joins channel. Outbound messages are taken from outbox and
// channel text is passed to commands.
func NewSession(addr, nickname, channel string, outbox *Outbox, commands CommandHandler, opts ...SessionOption) *Session {
	s := &Session{
		addr:         addr,
		nickname:     nickname,
		channel:      channel,
		outbox:       outbox,
		commands:     commands,
		dialer:       &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second},
		backoff:      NewBackoffCalculator(DefaultBackoffConfig),
		now:          time.Now,
		sleep:        sleepContext,
		tickInterval: DefaultTickInterval,
		pingInterval: DefaultPingInterval,
		pingTimeout:  DefaultPingTimeout,
		logger:       slog.Default(),
		nick:         nickname,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Nick returns the nickname currently in use.
func (s *Session) Nick() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nick
}

// Channel returns the configured channel.
func (s *Session) Channel() string {
	return s.channel
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.logger.Debug("irc state changed", "from", prev.String(), "to", st.String())
	}
}

func (s *Session) setNick(nick string) {
	s.mu.Lock()
	s.nick = nick
	s.mu.Unlock()
}

// Run connects and serves until ctx is cancelled. Every failure is logged and
// followed by a backoff delay and a fresh connection attempt; it never gives up.
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(StateDisconnected)

	for attempt := 0; ; attempt++ {
		err := s.connectAndServe(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.setState(StateDisconnected)

		delay := s.backoff.Calculate(attempt)
		s.logger.Warn("irc session ended, reconnecting", "error", err, "delay", delay, "attempt", attempt+1)
		if err := s.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

// connectAndServe runs one connection from dial to failure.
func (s *Session) connectAndServe(ctx context.Context) error {
	s.setState(StateConnecting)
	s.setNick(s.nickname)

	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.addr, err)
	}
	defer conn.Close()
	s.logger.Info("connected to irc server", "addr", s.addr)

	// Unblock the reader when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go readLines(conn, lines, readErr, done)

	live := newLiveness(s.pingInterval, s.pingTimeout)
	live.reset(s.now())

	if err := s.write(conn, &Message{Command: "NICK", Params: []string{s.nickname}}); err != nil {
		return err
	}
	if err := s.write(conn, &Message{Command: "USER", Params: []string{s.nickname, "0", "*", s.nickname}}); err != nil {
		return err
	}

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			return err

		case line := <-lines:
			if err := s.handleLine(conn, live, line); err != nil {
				return err
			}

		case <-ticker.C:
			if err := s.tick(conn, live); err != nil {
				return err
			}
		}
	}
}

// tick drains the outbox and advances the liveness tracker.
func (s *Session) tick(conn net.Conn, live *liveness) error {
	if s.State() == StateConnecting {
		return nil
	}

	for _, l := range s.outbox.Drain() {
		s.logger.Debug("sending message", "target", l.Target, "text", l.Text)
		if err := s.privmsg(conn, l.Target, l.Text); err != nil {
			return err
		}
	}

	token, lag, err := live.check(s.now())
	if err != nil {
		return err
	}
	if token != "" {
		s.setState(StatePinging)
		return s.write(conn, &Message{Command: "PING", Params: []string{token}})
	}
	if s.State() == StatePinging && !live.outstanding() {
		s.logger.Info("liveness pong received", "lag", lag)
		s.setState(StateJoined)
	}
	return nil
}

func (s *Session) handleLine(conn net.Conn, live *liveness, line string) error {
	msg, err := ParseLine(line)
	if err != nil {
		s.logger.Debug("ignoring line", "error", err)
		return nil
	}

	switch msg.Command {
	case "PING":
		s.logger.Debug("server ping", "token", msg.Trailing())
		return s.write(conn, &Message{Command: "PONG", Params: msg.Params})

	case "PONG":
		live.pong()

	case ReplyWelcome:
		if nick := msg.Param(0); nick != "" {
			s.setNick(nick)
		}
		s.logger.Info("registered, joining channel", "nick", s.Nick(), "channel", s.channel)
		if err := s.write(conn, &Message{Command: "JOIN", Params: []string{s.channel}}); err != nil {
			return err
		}
		s.setState(StateJoined)

	case ErrNicknameInUse:
		nick := msg.Param(1)
		if nick == "" {
			nick = s.Nick()
		}
		nick += "_"
		s.logger.Info("nickname in use, retrying", "nick", nick)
		s.setNick(nick)
		return s.write(conn, &Message{Command: "NICK", Params: []string{nick}})

	case "PRIVMSG":
		return s.handlePrivmsg(conn, msg)

	case "ERROR":
		return fmt.Errorf("%w: %s", ErrServerClosed, msg.Trailing())
	}
	return nil
}

func (s *Session) handlePrivmsg(conn net.Conn, msg *Message) error {
	target, text := msg.Param(0), msg.Trailing()
	if len(msg.Params) < 2 {
		return nil
	}

	replyTo := msg.Nick()
	if isChannel(target) {
		replyTo = target
		if s.history != nil && strings.EqualFold(target, s.channel) {
			s.history.Record(s.channel, msg.Nick(), text)
		}
	}

	reply := s.commands.Handle(msg.Prefix, text, s.Nick())
	if reply == "" {
		return nil
	}
	return s.privmsg(conn, replyTo, reply)
}

func (s *Session) privmsg(conn net.Conn, target, text string) error {
	if err := s.write(conn, &Message{Command: "PRIVMSG", Params: []string{target, text}}); err != nil {
		return err
	}
	if s.history != nil && strings.EqualFold(target, s.channel) {
		s.history.Record(s.channel, s.Nick(), text)
	}
	return nil
}

func (s *Session) write(conn net.Conn, msg *Message) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := io.WriteString(conn, msg.String()+lineTerminator); err != nil {
		return fmt.Errorf("write %s: %w", msg.Command, err)
	}
	return nil
}

// readLines forwards lines from r until it fails or done is closed.
func readLines(r io.Reader, lines chan<- string, errc chan<- error, done <-chan struct{}) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			select {
			case lines <- strings.ToValidUTF8(strings.TrimRight(line, "\r\n"), ""):
			case <-done:
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrServerClosed
			}
			errc <- err
			return
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
