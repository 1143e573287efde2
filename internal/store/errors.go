package store

import "errors"

// Sentinel errors for the store package.
var (
	// ErrUnknownEntry is returned when a phonebook lookup or deletion finds no entry.
	ErrUnknownEntry = errors.New("unknown addressbook entry")

	// ErrDuplicateEntry is returned when a nickname, number or email is already present.
	ErrDuplicateEntry = errors.New("duplicate addressbook entry")

	// ErrInvalidMessage is returned when a message log record fails validation.
	ErrInvalidMessage = errors.New("invalid message")
)
