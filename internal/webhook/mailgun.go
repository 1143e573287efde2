package webhook

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/mail"
	"sort"
	"strings"

	"github.com/graaaaa/sms900/internal/event"
)

// maxMemory is the part of a multipart body kept in memory; the rest spills
// to temporary files.
const maxMemory = 32 << 20

// parseMailgun converts a Mailgun inbound-route POST into an MMSReceived.
// Files arrive as attachment-1..attachment-N in multipart bodies; urlencoded
// bodies carry text only.
func parseMailgun(r *http.Request) (event.MMSReceived, error) {
	ct := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return event.MMSReceived{}, fmt.Errorf("%w: %q", ErrUnsupportedContentType, ct)
	}

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return event.MMSReceived{}, fmt.Errorf("parse multipart body: %w", err)
		}
		defer r.MultipartForm.RemoveAll()
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return event.MMSReceived{}, fmt.Errorf("parse form body: %w", err)
		}
	default:
		return event.MMSReceived{}, fmt.Errorf("%w: %q", ErrUnsupportedContentType, ct)
	}

	msg := event.MMSReceived{
		Sender:  mailSender(r),
		Subject: r.PostFormValue("subject"),
		Text:    r.PostFormValue("stripped-text"),
	}
	if msg.Sender == "" {
		return event.MMSReceived{}, fmt.Errorf("%w: sender", ErrMissingField)
	}
	if msg.Text == "" {
		msg.Text = r.PostFormValue("body-plain")
	}

	if r.MultipartForm != nil {
		attachments, err := readAttachments(r.MultipartForm.File)
		if err != nil {
			return event.MMSReceived{}, err
		}
		msg.Attachments = attachments
	}
	return msg, nil
}

// mailSender prefers the envelope sender and falls back to the From header.
func mailSender(r *http.Request) string {
	if s := strings.TrimSpace(r.PostFormValue("sender")); s != "" {
		return s
	}
	from := r.PostFormValue("from")
	if from == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(from)
}

func readAttachments(files map[string][]*multipart.FileHeader) ([]event.Attachment, error) {
	fields := make([]string, 0, len(files))
	for field := range files {
		fields = append(fields, field)
	}
	// attachment-2 sorts before attachment-10.
	sort.Slice(fields, func(i, j int) bool {
		if len(fields[i]) != len(fields[j]) {
			return len(fields[i]) < len(fields[j])
		}
		return fields[i] < fields[j]
	})

	var out []event.Attachment
	for _, field := range fields {
		for _, fh := range files[field] {
			data, err := readFile(fh)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", field, err)
			}
			out = append(out, event.Attachment{
				Name:        fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}
	return out, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
