// Package mms stores received multimedia messages and builds their indexes.
package mms

import (
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/graaaaa/sms900/internal/event"
)

// TextFileName holds the message body next to the attachments.
const TextFileName = "message.txt"

// File is one stored file of a message.
type File struct {
	Name        string
	ContentType string
	URL         string
}

// Message is a stored multimedia message.
type Message struct {
	ID      string
	Dir     string
	Sender  string
	Subject string
	Text    string
	Files   []File
	// IndexURL links to the message's generated index page.
	IndexURL string
}

// Store writes messages into one directory per message under its root.
type Store struct {
	root    string
	baseURL string
	newID   func() string
	logger  *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIDGenerator sets the directory name generator (for testing).
func WithIDGenerator(f func() string) StoreOption {
	return func(s *Store) { s.newID = f }
}

// WithStoreLogger sets the logger.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a Store rooted at root whose files are published under baseURL.
func NewStore(root, baseURL string, opts ...StoreOption) *Store {
	s := &Store{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		newID:   func() string { return uuid.NewString() },
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the directory holding all messages.
func (s *Store) Root() string {
	return s.root
}

// Save writes the text and attachments of msg to a fresh directory.
func (s *Store) Save(msg event.MMSReceived) (*Message, error) {
	if strings.TrimSpace(msg.Text) == "" && len(msg.Attachments) == 0 {
		return nil, ErrNoContent
	}

	id := s.newID()
	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create message directory: %w", err)
	}

	m := &Message{
		ID:       id,
		Dir:      dir,
		Sender:   msg.Sender,
		Subject:  msg.Subject,
		Text:     strings.TrimSpace(msg.Text),
		IndexURL: s.url(id, LocalIndexName),
	}

	used := map[string]bool{LocalIndexName: true}
	if m.Text != "" {
		if err := os.WriteFile(filepath.Join(dir, TextFileName), []byte(m.Text+"\n"), 0o644); err != nil {
			return nil, fmt.Errorf("write message text: %w", err)
		}
		used[TextFileName] = true
		m.Files = append(m.Files, File{Name: TextFileName, ContentType: "text/plain", URL: s.url(id, TextFileName)})
	}

	for i, a := range msg.Attachments {
		name := uniqueName(sanitizeName(a.Name, a.ContentType, i+1), used)
		used[name] = true

		if err := os.WriteFile(filepath.Join(dir, name), a.Data, 0o644); err != nil {
			return nil, fmt.Errorf("write attachment %s: %w", name, err)
		}
		m.Files = append(m.Files, File{Name: name, ContentType: contentType(a.ContentType, name), URL: s.url(id, name)})
	}

	s.logger.Info("mms saved", "id", id, "files", len(m.Files))
	return m, nil
}

func (s *Store) url(id, name string) string {
	return s.baseURL + "/" + url.PathEscape(id) + "/" + url.PathEscape(name)
}

var preferredExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"text/plain": ".txt",
	"video/mp4":  ".mp4",
	"video/3gpp": ".3gp",
	"audio/amr":  ".amr",
}

// sanitizeName reduces name to a safe base file name, inventing one from
// the content type when nothing usable is left.
func sanitizeName(name, ct string, n int) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == '/', r == ':', r == '*', r == '?', r == '"', r == '<', r == '>', r == '|':
			return '_'
		}
		return r
	}, name)
	name = strings.TrimLeft(name, ".")

	if name == "" || name == "_" {
		ext := ".bin"
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			if e, ok := preferredExt[mediaType]; ok {
				ext = e
			} else if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
				ext = exts[0]
			}
		}
		name = fmt.Sprintf("part-%d%s", n, ext)
	}
	return name
}

func uniqueName(name string, used map[string]bool) string {
	if !used[name] {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if !used[candidate] {
			return candidate
		}
	}
}

func contentType(ct, name string) string {
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil && mediaType != "application/octet-stream" {
		return mediaType
	}
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		mediaType, _, _ := mime.ParseMediaType(byExt)
		return mediaType
	}
	return "application/octet-stream"
}
