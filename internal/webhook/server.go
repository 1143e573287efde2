// Package webhook turns inbound HTTP callbacks into events for the core.
// Each request is served on its own goroutine and only submits events; no
// state is shared with the rest of the bot.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/graaaaa/sms900/internal/config"
	"github.com/graaaaa/sms900/internal/event"
)

// DefaultMaxBodyBytes bounds request bodies; MMS attachments dominate.
const DefaultMaxBodyBytes = 64 << 20

// Server is the webhook HTTP listener.
type Server struct {
	httpServer   *http.Server
	router       chi.Router
	submit       event.Submitter
	limiter      *RateLimiter
	githubSecret config.Secret
	maxBody      int64
	logger       *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGitHubSecret enables X-Hub-Signature-256 verification.
func WithGitHubSecret(secret config.Secret) Option {
	return func(s *Server) { s.githubSecret = secret }
}

// WithRateLimit throttles requests per client IP.
func WithRateLimit(cfg RateLimiterConfig) Option {
	return func(s *Server) { s.limiter = NewRateLimiter(cfg) }
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// NewServer creates a Server listening on addr that submits events to submit.
func NewServer(addr string, submit event.Submitter, opts ...Option) *Server {
	s := &Server{
		submit:  submit,
		maxBody: DefaultMaxBodyBytes,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}
	r.Use(s.limitBody)

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleNotFound)

	r.Post("/api/sms/callback", s.handleSMSCallback)
	r.Post("/api/github/webhook", s.handleGitHub)
	r.Post("/api/mailgun/incoming", s.handleMailgun)

	s.router = r
}

// Handler returns the routing handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("webhook listener started", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusNotFound, "Error")
}

// handleSMSCallback accepts the carrier's form-encoded inbound SMS report.
func (s *Server) handleSMSCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeText(w, http.StatusBadRequest, "Error")
		return
	}
	from := r.PostForm.Get("From")
	if from == "" {
		s.logger.Warn("sms callback without sender")
		writeText(w, http.StatusBadRequest, "Error")
		return
	}
	body := r.PostForm.Get("Body")

	s.logger.Info("sms received", "from", from, "length", len(body))
	s.submit.Submit(event.NewSMSReceived(event.SMSReceived{From: from, Body: body}))
	writeBody(w, http.StatusOK, contentTypeXML, twimlAck)
}

// handleGitHub forwards push notifications. Payload validation happens in
// the core so that malformed deliveries are recorded.
func (s *Server) handleGitHub(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeText(w, http.StatusBadRequest, "Error")
		return
	}

	if !s.githubSecret.IsEmpty() && !validSignature(s.githubSecret.Value(), r.Header.Get("X-Hub-Signature-256"), body) {
		s.logger.Warn("github webhook with bad signature", "remote", clientIP(r))
		writeText(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	if kind := r.Header.Get("X-GitHub-Event"); kind != "" && kind != "push" {
		s.logger.Debug("ignoring github event", "event", kind)
		writeText(w, http.StatusOK, "Ok")
		return
	}

	s.submit.Submit(event.NewGitHubWebhook(event.GitHubWebhook{Payload: json.RawMessage(body)}))
	writeText(w, http.StatusOK, "Ok")
}

// handleMailgun accepts MMS forwarded by the mail gateway.
func (s *Server) handleMailgun(w http.ResponseWriter, r *http.Request) {
	msg, err := parseMailgun(r)
	if err != nil {
		s.logger.Warn("rejecting mail delivery", "error", err)
		if errors.Is(err, ErrUnsupportedContentType) {
			writeText(w, http.StatusBadRequest, "Unknown Content-Type")
			return
		}
		writeText(w, http.StatusBadRequest, "Error")
		return
	}

	s.logger.Info("mms received", "sender", msg.Sender, "attachments", len(msg.Attachments))
	s.submit.Submit(event.NewMMSReceived(msg))
	writeText(w, http.StatusOK, "Ok")
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"remote", clientIP(r),
		)
	})
}
