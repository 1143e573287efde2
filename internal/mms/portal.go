package mms

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/http"
	"net/http/cookiejar"
	"net/mail"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/graaaaa/sms900/internal/event"
)

// DefaultPortalURL is the carrier's legacy MMS retrieval portal.
const DefaultPortalURL = "http://mms.otp.tele2.se"

const (
	portalUserAgent = "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:41.0) Gecko/20100101 Firefox/41.0"
	portalLoginPath = "/mmbox/otp.html"
	portalMediaPath = "/mmbox/getOtpMedia?id=msg&act=viewmsg&locale=en"

	maxMessageBytes = 32 << 20
)

// PortalFetcher downloads a message from the carrier portal using the
// retrieval code sent by SMS.
type PortalFetcher struct {
	baseURL string
	msisdn  string
	client  *http.Client
	logger  *slog.Logger
}

// PortalOption configures a PortalFetcher.
type PortalOption func(*PortalFetcher)

// WithPortalURL overrides the portal base URL.
func WithPortalURL(u string) PortalOption {
	return func(p *PortalFetcher) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithPortalHTTPClient sets the HTTP client. Its cookie jar is replaced per fetch.
func WithPortalHTTPClient(c *http.Client) PortalOption {
	return func(p *PortalFetcher) { p.client = c }
}

// WithPortalLogger sets the logger.
func WithPortalLogger(logger *slog.Logger) PortalOption {
	return func(p *PortalFetcher) { p.logger = logger }
}

// NewPortalFetcher creates a fetcher logging in as msisdn.
func NewPortalFetcher(msisdn string, opts ...PortalOption) *PortalFetcher {
	p := &PortalFetcher{
		baseURL: DefaultPortalURL,
		msisdn:  msisdn,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fetch logs in with code and returns the message parts as attachments.
func (p *PortalFetcher) Fetch(ctx context.Context, code string) (*event.MMSReceived, error) {
	base, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse portal URL: %v", ErrPortal, err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	jar.SetCookies(base, []*http.Cookie{
		{Name: "otp", Value: "yes"},
		{Name: "skin", Value: "light"},
	})
	client := *p.client
	client.Jar = jar

	form := "msisdn=" + url.QueryEscape(p.msisdn) + "&msgid=" + url.QueryEscape(code) + "&subLogin=Log+In"
	login, err := p.request(ctx, http.MethodPost, portalLoginPath, strings.NewReader(form))
	if err != nil {
		return nil, err
	}
	login.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := p.do(&client, login, io.Discard); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	download, err := p.request(ctx, http.MethodGet, portalMediaPath, nil)
	if err != nil {
		return nil, err
	}
	var eml strings.Builder
	if err := p.do(&client, download, &eml); err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	p.logger.Info("mms downloaded from portal", "bytes", eml.Len())

	return SplitMessage(strings.NewReader(eml.String()))
}

func (p *PortalFetcher) request(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrPortal, err)
	}
	req.Header.Set("User-Agent", portalUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Referer", p.baseURL+portalLoginPath)
	return req, nil
}

func (p *PortalFetcher) do(client *http.Client, req *http.Request, dst io.Writer) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPortal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: HTTP %d", ErrPortal, resp.StatusCode)
	}
	if _, err := io.Copy(dst, io.LimitReader(resp.Body, maxMessageBytes)); err != nil {
		return fmt.Errorf("%w: read body: %v", ErrPortal, err)
	}
	return nil
}

// SplitMessage walks a MIME message and returns every leaf part as an
// attachment, skipping multipart containers and SMIL layout.
func SplitMessage(r io.Reader) (*event.MMSReceived, error) {
	m, err := mail.ReadMessage(r)
	if err != nil {
		return nil, fmt.Errorf("%w: parse message: %v", ErrPortal, err)
	}

	dec := new(mime.WordDecoder)
	out := &event.MMSReceived{}
	if from, err := mail.ParseAddress(m.Header.Get("From")); err == nil {
		out.Sender = strings.ToLower(from.Address)
	}
	if subject, err := dec.DecodeHeader(m.Header.Get("Subject")); err == nil {
		out.Subject = subject
	}

	if err := walkPart(textproto.MIMEHeader(m.Header), m.Body, dec, out); err != nil {
		return nil, err
	}
	return out, nil
}

func walkPart(h textproto.MIMEHeader, body io.Reader, dec *mime.WordDecoder, out *event.MMSReceived) error {
	ct := h.Get("Content-Type")
	if ct == "" {
		ct = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil {
		mediaType, params = "application/octet-stream", nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextRawPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%w: read part: %v", ErrPortal, err)
			}
			if err := walkPart(part.Header, part, dec, out); err != nil {
				return err
			}
		}
	}

	if mediaType == "application/smil" {
		return nil
	}

	data, err := io.ReadAll(decodeBody(h.Get("Content-Transfer-Encoding"), body))
	if err != nil {
		return fmt.Errorf("%w: decode part: %v", ErrPortal, err)
	}

	name := partFileName(h, params, dec)
	if mediaType == "text/plain" && name == "" && out.Text == "" {
		out.Text = string(data)
		return nil
	}

	out.Attachments = append(out.Attachments, event.Attachment{
		Name:        name,
		ContentType: mediaType,
		Data:        data,
	})
	return nil
}

func decodeBody(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

func partFileName(h textproto.MIMEHeader, ctParams map[string]string, dec *mime.WordDecoder) string {
	var name string
	if _, params, err := mime.ParseMediaType(h.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	if name == "" {
		name = ctParams["name"]
	}
	if decoded, err := dec.DecodeHeader(name); err == nil {
		name = decoded
	}
	return name
}
