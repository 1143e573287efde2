// Package carrier is a client for the Twilio messaging and lookup REST APIs.
package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/graaaaa/sms900/internal/config"
)

const (
	DefaultAPIURL    = "https://api.twilio.com"
	DefaultLookupURL = "https://lookups.twilio.com"

	maxResponseBytes = 1 << 20
)

// SendResult is the outcome of a delivered message.
type SendResult struct {
	SID      string
	Segments int
}

// LookupResult describes the network a number belongs to.
type LookupResult struct {
	Type string
	Name string
}

// Client sends SMS and looks up carriers. Calls are synchronous and guarded
// by a circuit breaker.
type Client struct {
	accountSID string
	authToken  config.Secret
	apiURL     string
	lookupURL  string
	client     *http.Client
	logger     *slog.Logger
	breaker    *gobreaker.CircuitBreaker

	maxFailures  uint32
	openInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithEndpoints overrides the messaging and lookup base URLs.
func WithEndpoints(apiURL, lookupURL string) Option {
	return func(c *Client) {
		c.apiURL = strings.TrimRight(apiURL, "/")
		c.lookupURL = strings.TrimRight(lookupURL, "/")
	}
}

// WithBreaker sets how many consecutive failures open the circuit and how
// long it stays open before a trial request is let through.
func WithBreaker(maxFailures uint32, openInterval time.Duration) Option {
	return func(c *Client) {
		c.maxFailures = maxFailures
		c.openInterval = openInterval
	}
}

// NewClient creates a carrier client for the given account.
func NewClient(accountSID string, authToken config.Secret, opts ...Option) *Client {
	c := &Client{
		accountSID:   accountSID,
		authToken:    authToken,
		apiURL:       DefaultAPIURL,
		lookupURL:    DefaultLookupURL,
		client:       &http.Client{Timeout: 30 * time.Second},
		logger:       slog.Default(),
		maxFailures:  5,
		openInterval: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "twilio",
		Timeout: c.openInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.maxFailures
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.clientError()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("carrier circuit state changed", "from", from.String(), "to", to.String())
		},
	})
	return c
}

type messageResponse struct {
	SID         string `json:"sid"`
	NumSegments string `json:"num_segments"`
}

// Send delivers body to the canonical number to, from the canonical number from.
func (c *Client) Send(ctx context.Context, to, from, body string) (*SendResult, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.apiURL, url.PathEscape(c.accountSID))

	var resp messageResponse
	err := c.do(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()), &resp)
	if err != nil {
		return nil, err
	}

	segments, err := strconv.Atoi(resp.NumSegments)
	if err != nil || segments < 1 {
		segments = 1
	}
	c.logger.Debug("message sent", "sid", resp.SID, "segments", segments)
	return &SendResult{SID: resp.SID, Segments: segments}, nil
}

type lookupResponse struct {
	PhoneNumber string `json:"phone_number"`
	Carrier     struct {
		Type string `json:"type"`
		Name string `json:"name"`
	} `json:"carrier"`
}

// Lookup returns the carrier type and name for the canonical number to.
func (c *Client) Lookup(ctx context.Context, to string) (*LookupResult, error) {
	endpoint := fmt.Sprintf("%s/v1/PhoneNumbers/%s?Type=carrier", c.lookupURL, url.PathEscape(to))

	var resp lookupResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &LookupResult{Type: resp.Carrier.Type, Name: resp.Carrier.Name}, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, endpoint, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrCarrier, ErrCircuitOpen)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, endpoint string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrCarrier, err)
	}
	// authToken logs as [REDACTED]; Value() is only used on the wire.
	req.SetBasicAuth(c.accountSID, c.authToken.Value())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("carrier request failed", "error", err)
		return fmt.Errorf("%w: %w", ErrCarrier, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrCarrier, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{}
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = truncate(strings.TrimSpace(string(data)), 200)
		}
		apiErr.Status = resp.StatusCode
		c.logger.Warn("carrier returned error",
			"status", resp.StatusCode,
			"code", apiErr.Code,
			"account_sid", c.accountSID,
		)
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrCarrier, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
