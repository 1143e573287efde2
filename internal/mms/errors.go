package mms

import "errors"

var (
	// ErrNoContent is returned when a message has neither text nor attachments.
	ErrNoContent = errors.New("message has no content")

	// ErrPortal is returned when the carrier MMS portal misbehaves.
	ErrPortal = errors.New("mms portal failure")
)
