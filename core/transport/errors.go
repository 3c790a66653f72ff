package transport

import "errors"

var (
	// ErrClosed is returned by a Connection after Close.
	ErrClosed = errors.New("connection closed")
	// ErrInvalidEndpoint reports a connection string that cannot be parsed.
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)
