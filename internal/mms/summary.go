package mms

import (
	"strings"
	"unicode/utf8"
)

const maxSnippetRunes = 200

// Summary is the one-line channel rendering of a message.
type Summary struct {
	Line string
	// Unsummarized is set when some file is neither the first image nor text.
	Unsummarized bool
	// DownloadURL links to everything when Unsummarized is set.
	DownloadURL string
}

// Summarize describes m for the channel as "MMS from X: snippet image-url".
func Summarize(m *Message, from string) Summary {
	var image, text string
	unsummarized := false

	for _, f := range m.Files {
		switch {
		case isImage(f.ContentType) && image == "":
			image = f.URL
		case isText(f.ContentType):
		default:
			unsummarized = true
		}
	}

	text = m.Text
	if text == "" {
		text = m.Subject
	}
	text = snippet(text)

	parts := []string{"MMS from " + from + ":"}
	if text != "" {
		parts = append(parts, text)
	}
	if image != "" {
		parts = append(parts, image)
	}

	s := Summary{Line: strings.Join(parts, " "), Unsummarized: unsummarized}
	if unsummarized {
		s.DownloadURL = m.IndexURL
	}
	return s
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= maxSnippetRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxSnippetRunes]) + "..."
}

func isImage(ct string) bool {
	return strings.HasPrefix(ct, "image/")
}

func isText(ct string) bool {
	return ct == "text/plain"
}
