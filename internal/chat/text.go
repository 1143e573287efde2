package chat

import (
	"regexp"
	"strings"
)

// MaxLineLength is the longest line, in bytes, sent to IRC.
const MaxLineLength = 430

var imaginaryResponse = regexp.MustCompile(`(?s)^(.+)\n<[-_a-zA-Z0-9]+>`)

// SplitLong breaks text into lines of at most max bytes. Lines are split at
// the last space when there is one, otherwise mid-word, and never inside a
// UTF-8 sequence. Existing newlines are kept.
func SplitLong(text string, max int) string {
	if max <= 0 {
		max = MaxLineLength
	}
	b := []byte(strings.ToValidUTF8(text, ""))

	var out []byte
	lastNewline := 0
	lastSpace := -1

	for i := 0; i < len(b); i++ {
		if b[i] == '\n' {
			out = append(out, b[lastNewline:i+1]...)
			lastNewline = i + 1
			lastSpace = -1
			continue
		}
		if b[i] == ' ' {
			lastSpace = i
		}
		if i-lastNewline < max {
			continue
		}

		// A space at the very start of the text does not count as a split point.
		splitAt := i
		hasSpace := lastSpace > 0
		if hasSpace {
			splitAt = lastSpace
		}
		for splitAt > lastNewline && b[splitAt]&0xc0 == 0x80 {
			splitAt--
		}

		out = append(out, b[lastNewline:splitAt]...)
		out = append(out, '\n')
		lastNewline = splitAt
		if hasSpace {
			lastNewline++
		}
		lastSpace = -1
	}
	out = append(out, b[lastNewline:]...)

	return strings.ToValidUTF8(string(out), "")
}

// StripImaginaryResponse cuts the completion at the last line where the
// model starts writing a "<nick>" turn for someone else.
func StripImaginaryResponse(text string) string {
	if m := imaginaryResponse.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}
