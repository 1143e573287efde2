package core

import (
	"errors"

	"github.com/graaaaa/sms900/internal/phone"
	"github.com/graaaaa/sms900/internal/store"
)

var (
	// ErrInvalidDestination is returned when a destination is neither a
	// number nor a known nickname.
	ErrInvalidDestination = errors.New("invalid destination")

	// ErrMalformedPayload is returned when an event or webhook payload lacks
	// expected fields.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrNotConfigured is returned when an event needs an optional
	// collaborator that was not set up.
	ErrNotConfigured = errors.New("not configured")
)

// isDomainError reports whether err is an expected user-facing failure.
// Such errors are shown as "Error: ..." without a stack trace.
func isDomainError(err error) bool {
	for _, target := range []error{
		phone.ErrInvalidNumberFormat,
		phone.ErrInvalidNickname,
		phone.ErrInvalidEmail,
		store.ErrUnknownEntry,
		store.ErrDuplicateEntry,
		ErrInvalidDestination,
		ErrNotConfigured,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
