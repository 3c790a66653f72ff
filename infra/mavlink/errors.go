package mavlink

import "errors"

// ErrNoChannel is returned by Send before the endpoint has an open channel
// to write to, such as a udpout link that has not connected yet.
var ErrNoChannel = errors.New("no open channel")
