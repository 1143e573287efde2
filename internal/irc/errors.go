package irc

import "errors"

var (
	// ErrConnectionLost is returned when a liveness ping goes unanswered
	// for longer than the ping timeout.
	ErrConnectionLost = errors.New("connection lost")

	// ErrServerClosed is returned when the server ends the session with ERROR
	// or closes the socket.
	ErrServerClosed = errors.New("server closed connection")

	// ErrMalformedLine is returned by ParseLine for lines without a command.
	ErrMalformedLine = errors.New("malformed IRC line")
)
