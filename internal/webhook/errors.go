package webhook

import "errors"

var (
	// ErrUnsupportedContentType is returned for mail deliveries that are
	// neither multipart nor urlencoded.
	ErrUnsupportedContentType = errors.New("unknown Content-Type")

	// ErrMissingField is returned when a callback lacks a required form field.
	ErrMissingField = errors.New("missing field")
)
