//go:build integration

// Package integration runs the gateway end to end against a fake IRC server,
// a fake carrier API and the real webhook listener.
package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/graaaaa/sms900/internal/carrier"
	"github.com/graaaaa/sms900/internal/core"
	"github.com/graaaaa/sms900/internal/irc"
	"github.com/graaaaa/sms900/internal/mms"
	"github.com/graaaaa/sms900/internal/store"
	"github.com/graaaaa/sms900/internal/webhook"
	"github.com/graaaaa/sms900/webembed"
)

const (
	testChannel = "#sms900"
	testNick    = "smsbot"
	testFrom    = "+46700000000"
	waitTimeout = 5 * time.Second
)

// TestApp holds the running gateway and its fakes.
type TestApp struct {
	IRC     *fakeIRC
	Webhook *httptest.Server
	Store   *store.Store
	Carrier *fakeCarrier
	MMSRoot string

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewTestApp wires the gateway the way cmd/sms900 does and starts it.
func NewTestApp(t *testing.T) *TestApp {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "sms900.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	fc := newFakeCarrier(t)
	client := carrier.NewClient("AC123", "token", carrier.WithEndpoints(fc.server.URL, fc.server.URL))

	templates, err := webembed.GetFS()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	mmsRoot := filepath.Join(dir, "mms")
	indexer, err := mms.NewIndexer(mmsRoot, templates, nil)
	if err != nil {
		t.Fatalf("indexer: %v", err)
	}
	media := mms.NewStore(mmsRoot, "https://media.example.org/mms")

	ircServer := newFakeIRC(t)
	outbox := irc.NewOutbox()

	var session *irc.Session
	ec := core.New(testChannel, st, st, outbox,
		core.WithCarrier(client, testFrom),
		core.WithMedia(media, indexer),
		core.WithNick(func() string { return session.Nick() }),
	)
	session = irc.NewSession(ircServer.Addr(), testNick, testChannel, outbox, irc.NewCommands(ec),
		irc.WithTickInterval(20*time.Millisecond),
	)
	hooks := webhook.NewServer("127.0.0.1:0", ec)
	ts := httptest.NewServer(hooks.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ec.Run(gctx) })
	g.Go(func() error { return session.Run(gctx) })

	app := &TestApp{
		IRC:     ircServer,
		Webhook: ts,
		Store:   st,
		Carrier: fc,
		MMSRoot: mmsRoot,
		cancel:  cancel,
		group:   g,
	}
	t.Cleanup(func() {
		cancel()
		if err := g.Wait(); err != nil {
			t.Errorf("gateway stopped with error: %v", err)
		}
		ts.Close()
		hooks.Shutdown(context.Background())
		st.Close()
	})

	ircServer.AwaitRegistration(t)
	return app
}

// PostForm posts an urlencoded form to the webhook listener.
func (app *TestApp) PostForm(t *testing.T, path string, values url.Values) *http.Response {
	t.Helper()
	resp, err := http.PostForm(app.Webhook.URL+path, values)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// fakeIRC accepts a single client and records what it says.
type fakeIRC struct {
	ln    net.Listener
	mu    sync.Mutex
	conn  net.Conn
	lines chan string
	ready chan struct{}
}

func newFakeIRC(t *testing.T) *fakeIRC {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeIRC{ln: ln, lines: make(chan string, 1024), ready: make(chan struct{})}
	go f.accept()
	t.Cleanup(func() {
		ln.Close()
		f.mu.Lock()
		if f.conn != nil {
			f.conn.Close()
		}
		f.mu.Unlock()
	})
	return f
}

func (f *fakeIRC) Addr() string {
	return f.ln.Addr().String()
}

func (f *fakeIRC) accept() {
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	close(f.ready)

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.HasPrefix(line, "USER ") {
			f.Send(":irc.example.org 001 " + testNick + " :Welcome")
		}
		f.lines <- line
	}
}

// Send writes a raw line to the client.
func (f *fakeIRC) Send(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		fmt.Fprintf(f.conn, "%s\r\n", line)
	}
}

// Say sends a channel message from nick.
func (f *fakeIRC) Say(nick, text string) {
	f.Send(fmt.Sprintf(":%s!~%s@example.org PRIVMSG %s :%s", nick, nick, testChannel, text))
}

// AwaitRegistration waits until the client joins the channel.
func (f *fakeIRC) AwaitRegistration(t *testing.T) {
	t.Helper()
	f.Expect(t, "JOIN "+testChannel)
}

// Expect waits for a line from the client equal to want.
func (f *fakeIRC) Expect(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case line := <-f.lines:
			if line == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

// ExpectChannel waits for a PRIVMSG to the channel with the given text.
func (f *fakeIRC) ExpectChannel(t *testing.T, text string) {
	t.Helper()
	f.Expect(t, "PRIVMSG "+testChannel+" :"+text)
}

// fakeCarrier is a minimal Twilio Messages endpoint.
type fakeCarrier struct {
	server *httptest.Server
	sent   chan url.Values
}

func newFakeCarrier(t *testing.T) *fakeCarrier {
	t.Helper()
	fc := &fakeCarrier{sent: make(chan url.Values, 16)}
	fc.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fc.sent <- r.PostForm
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"sid": "SM1", "num_segments": "1"})
	}))
	t.Cleanup(fc.server.Close)
	return fc
}

// Sent waits for the next message submitted to the carrier.
func (fc *fakeCarrier) Sent(t *testing.T) url.Values {
	t.Helper()
	select {
	case v := <-fc.sent:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for carrier request")
		return nil
	}
}
