package mms

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graaaaa/sms900/internal/event"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), "https://media.example.com/mms/", WithIDGenerator(func() string { return "msg-1" }))
}

func TestSave_WritesTextAndAttachments(t *testing.T) {
	s := newTestStore(t)

	m, err := s.Save(event.MMSReceived{
		Sender:  "alice@example.com",
		Subject: "Holiday",
		Text:    "  Look at this!  ",
		Attachments: []event.Attachment{
			{Name: "beach.jpg", ContentType: "image/jpeg", Data: []byte("jpeg-bytes")},
			{Name: "../../etc/passwd", ContentType: "text/plain", Data: []byte("nope")},
			{Name: "beach.jpg", ContentType: "image/jpeg", Data: []byte("second")},
			{Name: "", ContentType: "video/mp4", Data: []byte("mp4")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "msg-1", m.ID)
	assert.Equal(t, filepath.Join(s.Root(), "msg-1"), m.Dir)
	assert.Equal(t, "Look at this!", m.Text)
	assert.Equal(t, "https://media.example.com/mms/msg-1/index.html", m.IndexURL)

	names := make([]string, 0, len(m.Files))
	for _, f := range m.Files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"message.txt", "beach.jpg", "passwd", "beach-2.jpg", "part-4.mp4"}, names)
	assert.Equal(t, "https://media.example.com/mms/msg-1/beach.jpg", m.Files[1].URL)

	data, err := os.ReadFile(filepath.Join(m.Dir, "beach-2.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	text, err := os.ReadFile(filepath.Join(m.Dir, TextFileName))
	require.NoError(t, err)
	assert.Equal(t, "Look at this!\n", string(text))
}

func TestSave_RejectsEmptyMessage(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Save(event.MMSReceived{Sender: "a@b", Text: "   "})
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestSave_UsesUUIDByDefault(t *testing.T) {
	s := NewStore(t.TempDir(), "http://x")
	a, err := s.Save(event.MMSReceived{Text: "one"})
	require.NoError(t, err)
	b, err := s.Save(event.MMSReceived{Text: "two"})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ID, 36)
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name         string
		msg          Message
		wantLine     string
		unsummarized bool
	}{
		{
			name: "text and image",
			msg: Message{Text: "Look\nat this", IndexURL: "u/index.html", Files: []File{
				{Name: "message.txt", ContentType: "text/plain", URL: "u/message.txt"},
				{Name: "a.jpg", ContentType: "image/jpeg", URL: "u/a.jpg"},
			}},
			wantLine: "MMS from alice: Look at this u/a.jpg",
		},
		{
			name: "subject when no text",
			msg: Message{Subject: "Hello", Files: []File{
				{Name: "a.png", ContentType: "image/png", URL: "u/a.png"},
			}},
			wantLine: "MMS from alice: Hello u/a.png",
		},
		{
			name: "extra files are unsummarized",
			msg: Message{IndexURL: "u/index.html", Files: []File{
				{Name: "a.jpg", ContentType: "image/jpeg", URL: "u/a.jpg"},
				{Name: "b.jpg", ContentType: "image/jpeg", URL: "u/b.jpg"},
				{Name: "c.mp4", ContentType: "video/mp4", URL: "u/c.mp4"},
			}},
			wantLine:     "MMS from alice: u/a.jpg",
			unsummarized: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(&tt.msg, "alice")
			assert.Equal(t, tt.wantLine, s.Line)
			assert.Equal(t, tt.unsummarized, s.Unsummarized)
			if tt.unsummarized {
				assert.Equal(t, tt.msg.IndexURL, s.DownloadURL)
			} else {
				assert.Empty(t, s.DownloadURL)
			}
		})
	}
}

func TestSnippet_Truncates(t *testing.T) {
	long := ""
	for i := 0; i < 300; i++ {
		long += "å"
	}
	got := snippet(long)
	assert.Equal(t, maxSnippetRunes+3, len([]rune(got)))
}
