package phone

import "errors"

// Sentinel errors for the phone package.
var (
	// ErrInvalidNumberFormat is returned when a number is neither canonical nor a local mobile number.
	ErrInvalidNumberFormat = errors.New("invalid number format")

	// ErrInvalidNickname is returned when a nickname does not match the allowed pattern.
	ErrInvalidNickname = errors.New("invalid nickname")

	// ErrInvalidEmail is returned when an email address is malformed.
	ErrInvalidEmail = errors.New("invalid email")
)
