// Package phone canonicalizes phone numbers and validates phonebook keys.
package phone

import (
	"fmt"
	"regexp"
	"strings"
)

// CountryCode is prepended to local mobile numbers.
const CountryCode = "+46"

var (
	reCanonical   = regexp.MustCompile(`^\+[0-9]+$`)
	reLocalMobile = regexp.MustCompile(`^0(7[0-9]{8})$`)

	// NicknamePattern is the accepted shape of a phonebook nickname.
	NicknamePattern = `^([a-zA-Z][a-zA-Z0-9{}\[\]\\` + "`" + `^-]{0,15})$`
	reNickname      = regexp.MustCompile(NicknamePattern)

	reEmail = regexp.MustCompile(`^.+@.+`)
)

// Canonicalize returns number in international +<country><subscriber> form.
// Already canonical numbers are returned unchanged, local mobile numbers
// (07xxxxxxxx) are rewritten to +467xxxxxxxx. Anything else is rejected.
func Canonicalize(number string) (string, error) {
	if reCanonical.MatchString(number) {
		return number, nil
	}
	if m := reLocalMobile.FindStringSubmatch(number); m != nil {
		return CountryCode + m[1], nil
	}
	return "", fmt.Errorf("%w: %s is not a valid number", ErrInvalidNumberFormat, number)
}

// ValidNickname checks nickname against NicknamePattern and returns it lower-cased.
func ValidNickname(nickname string) (string, error) {
	m := reNickname.FindStringSubmatch(nickname)
	if m == nil {
		return "", fmt.Errorf("%w: %s (should match %s)", ErrInvalidNickname, nickname, NicknamePattern)
	}
	return strings.ToLower(m[1]), nil
}

// ValidEmail checks that email looks like an address and returns it lower-cased.
func ValidEmail(email string) (string, error) {
	if !reEmail.MatchString(email) {
		return "", fmt.Errorf("%w: %s", ErrInvalidEmail, email)
	}
	return strings.ToLower(email), nil
}

// IsEmail reports whether s should be treated as an email address rather than a number or nickname.
func IsEmail(s string) bool {
	return strings.Contains(s, "@")
}

// NickFromHostmask returns the nickname part of an IRC nick!user@host identity.
// A hostmask without '!' is returned as is.
func NickFromHostmask(hostmask string) string {
	nick, _, _ := strings.Cut(hostmask, "!")
	if nick == "" {
		return hostmask
	}
	return nick
}
