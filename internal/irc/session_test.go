package irc

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graaaaa/sms900/internal/event"
)

const waitTimeout = 2 * time.Second

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeServer plays the server side of a net.Pipe.
type fakeServer struct {
	t     *testing.T
	conn  net.Conn
	lines chan string
}

func newFakeServer(t *testing.T, conn net.Conn) *fakeServer {
	f := &fakeServer{t: t, conn: conn, lines: make(chan string, 256)}
	go func() {
		defer close(f.lines)
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			f.lines <- strings.TrimRight(sc.Text(), "\r")
		}
	}()
	t.Cleanup(func() { conn.Close() })
	return f
}

// expect waits for want, skipping other lines.
func (f *fakeServer) expect(want string) {
	f.t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case line, ok := <-f.lines:
			if !ok {
				f.t.Fatalf("connection closed while waiting for %q", want)
			}
			if line == want {
				return
			}
		case <-timeout:
			f.t.Fatalf("timed out waiting for %q", want)
		}
	}
}

// expectPrefix waits for a line starting with prefix and returns it.
func (f *fakeServer) expectPrefix(prefix string) string {
	f.t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case line, ok := <-f.lines:
			if !ok {
				f.t.Fatalf("connection closed while waiting for %q", prefix)
			}
			if strings.HasPrefix(line, prefix) {
				return line
			}
		case <-timeout:
			f.t.Fatalf("timed out waiting for %q", prefix)
		}
	}
}

func (f *fakeServer) send(line string) {
	f.t.Helper()
	_, err := io.WriteString(f.conn, line+"\r\n")
	require.NoError(f.t, err)
}

// pipeDialer hands out the client ends of fresh pipes and publishes the
// server ends. The first `failures` dials return an error.
type pipeDialer struct {
	mu       sync.Mutex
	dials    int
	failures int
	servers  chan net.Conn
}

func newPipeDialer(failures int) *pipeDialer {
	return &pipeDialer{failures: failures, servers: make(chan net.Conn, 8)}
}

func (d *pipeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failures {
		return nil, errors.New("connection refused")
	}
	client, server := net.Pipe()
	d.servers <- server
	return client, nil
}

func (d *pipeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *pipeDialer) next(t *testing.T) *fakeServer {
	t.Helper()
	select {
	case conn := <-d.servers:
		return newFakeServer(t, conn)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleep) all() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

type recordingHistory struct {
	mu    sync.Mutex
	lines []string
}

func (h *recordingHistory) Record(channel, nick, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = append(h.lines, channel+" <"+nick+"> "+text)
}

func (h *recordingHistory) all() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.lines...)
}

type sessionHarness struct {
	session *Session
	dialer  *pipeDialer
	sleeps  *recordingSleep
	clock   *fakeClock
	outbox  *Outbox
	sub     *recordingSubmitter
	history *recordingHistory
	cancel  context.CancelFunc
	done    chan error
}

func startSession(t *testing.T, dialFailures int) *sessionHarness {
	t.Helper()
	h := &sessionHarness{
		dialer:  newPipeDialer(dialFailures),
		sleeps:  &recordingSleep{},
		clock:   newFakeClock(),
		outbox:  NewOutbox(),
		sub:     &recordingSubmitter{},
		history: &recordingHistory{},
		done:    make(chan error, 1),
	}
	h.session = NewSession("irc.example.net:6667", "bot", "#chan", h.outbox, NewCommands(h.sub),
		WithDialer(h.dialer),
		WithSleep(h.sleeps.sleep),
		WithClock(h.clock.Now),
		WithTickInterval(5*time.Millisecond),
		WithHistory(h.history),
	)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.session.Run(ctx) }()

	t.Cleanup(h.stop)
	return h
}

func (h *sessionHarness) stop() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(waitTimeout):
		panic("session did not stop")
	}
}

// register completes registration on srv and waits for the JOIN.
func (h *sessionHarness) register(t *testing.T, srv *fakeServer) {
	t.Helper()
	srv.expect("NICK bot")
	srv.expect("USER bot 0 * bot")
	srv.send(":irc.example.net 001 bot :Welcome")
	srv.expect("JOIN #chan")
	require.Eventually(t, func() bool { return h.session.State() == StateJoined }, waitTimeout, time.Millisecond)
}

func TestSession_RegistersJoinsAndAnswersPing(t *testing.T) {
	h := startSession(t, 0)
	srv := h.dialer.next(t)
	h.register(t, srv)

	srv.send("PING :irc.example.net")
	srv.expect("PONG irc.example.net")
	assert.Equal(t, StateJoined, h.session.State())
}

func TestSession_NicknameCollision(t *testing.T) {
	h := startSession(t, 0)
	srv := h.dialer.next(t)

	srv.expect("NICK bot")
	srv.send(":irc.example.net 433 * bot :Nickname is already in use")
	srv.expect("NICK bot_")
	require.Eventually(t, func() bool { return h.session.Nick() == "bot_" }, waitTimeout, time.Millisecond)

	srv.send(":irc.example.net 001 bot_ :Welcome")
	srv.expect("JOIN #chan")
}

func TestSession_CommandsAndUsageReplies(t *testing.T) {
	h := startSession(t, 0)
	srv := h.dialer.next(t)
	h.register(t, srv)

	srv.send(":alice!x@y PRIVMSG #chan :!s")
	srv.expect("PRIVMSG #chan :" + usageSend)

	srv.send(":alice!x@y PRIVMSG #chan :!s bob hi there")
	require.Eventually(t, func() bool { return len(h.sub.all()) == 1 }, waitTimeout, time.Millisecond)
	assert.Equal(t, event.SendSMS{Hostmask: "alice!x@y", Destination: "bob", Message: "hi there"}, h.sub.all()[0].Payload)

	// Private messages are answered to the sender.
	srv.send(":alice!x@y PRIVMSG bot :!h")
	srv.expect("PRIVMSG alice :" + HelpText)
}

func TestSession_DrainsOutboxInOrder(t *testing.T) {
	h := startSession(t, 0)
	srv := h.dialer.next(t)
	h.register(t, srv)

	h.outbox.Send("#chan", "first line\nsecond line")
	h.outbox.Send("alice", "third")

	srv.expect("PRIVMSG #chan :first line")
	srv.expect("PRIVMSG #chan :second line")
	srv.expect("PRIVMSG alice third")
}

func TestSession_RelayedCarriageReturnStaysInsidePrivmsg(t *testing.T) {
	h := startSession(t, 0)
	srv := h.dialer.next(t)
	h.register(t, srv)

	h.outbox.Send("#chan", "<+46701111111> hi\rQUIT :gone")
	srv.expect("PRIVMSG #chan :<+46701111111> hi")
	srv.expect("PRIVMSG #chan :QUIT :gone")
}

func TestSession_RecordsChannelHistory(t *testing.T) {
	h := startSession(t, 0)
	srv := h.dialer.next(t)
	h.register(t, srv)

	srv.send(":alice!x@y PRIVMSG #chan :hello")
	h.outbox.Send("#chan", "hi alice")
	srv.expect("PRIVMSG #chan :hi alice")

	require.Eventually(t, func() bool { return len(h.history.all()) == 2 }, waitTimeout, time.Millisecond)
	assert.Equal(t, []string{"#chan <alice> hello", "#chan <bot> hi alice"}, h.history.all())
}

func TestSession_OutboxWaitsForRegistration(t *testing.T) {
	h := startSession(t, 0)
	h.outbox.Send("#chan", "queued early")

	srv := h.dialer.next(t)
	srv.expect("USER bot 0 * bot")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.outbox.Len())

	srv.send(":irc.example.net 001 bot :Welcome")
	srv.expect("JOIN #chan")
	srv.expect("PRIVMSG #chan :queued early")
}

func TestSession_LivenessTimeoutReconnects(t *testing.T) {
	h := startSession(t, 0)
	srv := h.dialer.next(t)
	h.register(t, srv)

	h.clock.Advance(DefaultPingInterval + time.Second)
	ping := srv.expectPrefix("PING ")
	assert.Equal(t, "PING 1700000061", ping)
	require.Eventually(t, func() bool { return h.session.State() == StatePinging }, waitTimeout, time.Millisecond)

	h.clock.Advance(DefaultPingTimeout + time.Second)

	next := h.dialer.next(t)
	next.expect("NICK bot")
	assert.Equal(t, []time.Duration{5 * time.Second}, h.sleeps.all())
	assert.Equal(t, 2, h.dialer.count())
}

func TestSession_AnyPongSatisfiesPing(t *testing.T) {
	h := startSession(t, 0)
	srv := h.dialer.next(t)
	h.register(t, srv)

	h.clock.Advance(DefaultPingInterval + time.Second)
	srv.expectPrefix("PING ")
	require.Eventually(t, func() bool { return h.session.State() == StatePinging }, waitTimeout, time.Millisecond)

	srv.send(":irc.example.net PONG irc.example.net :not-the-token")
	require.Eventually(t, func() bool { return h.session.State() == StateJoined }, waitTimeout, time.Millisecond)

	// Well past the timeout, the next check starts a new ping instead of
	// dropping the connection.
	h.clock.Advance(DefaultPingTimeout + time.Second)
	srv.expectPrefix("PING ")
	assert.Equal(t, 1, h.dialer.count())
	assert.Empty(t, h.sleeps.all())
}

func TestSession_TransportFailureReconnectsAfterBackoff(t *testing.T) {
	h := startSession(t, 0)
	srv := h.dialer.next(t)
	h.register(t, srv)

	srv.conn.Close()

	next := h.dialer.next(t)
	next.expect("NICK bot")
	assert.Equal(t, []time.Duration{5 * time.Second}, h.sleeps.all())
	assert.Equal(t, 2, h.dialer.count())
}

func TestSession_DialFailuresRetryIndefinitely(t *testing.T) {
	h := startSession(t, 3)

	srv := h.dialer.next(t)
	srv.expect("NICK bot")
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, h.sleeps.all())
	assert.Equal(t, 4, h.dialer.count())
}

func TestSession_ServerErrorReconnects(t *testing.T) {
	h := startSession(t, 0)
	srv := h.dialer.next(t)
	h.register(t, srv)

	srv.send("ERROR :Closing Link: bot (Ping timeout)")

	next := h.dialer.next(t)
	next.expect("NICK bot")
	assert.Len(t, h.sleeps.all(), 1)
}

func TestSession_StopsOnCancel(t *testing.T) {
	h := startSession(t, 0)
	srv := h.dialer.next(t)
	h.register(t, srv)

	h.cancel()
	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- err
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateDisconnected, h.session.State())
}
