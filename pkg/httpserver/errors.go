package httpserver

import "errors"

var (
	// ErrStart is returned by Run when the listener cannot be opened or
	// Serve fails.
	ErrStart = errors.New("httpserver: start failed")

	// ErrShutdown is returned when draining or a stop hook fails.
	ErrShutdown = errors.New("httpserver: shutdown failed")
)
