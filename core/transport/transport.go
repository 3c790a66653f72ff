package transport

import (
	"context"
	"time"

	"github.com/kilianp07/skylink/core/protocol"
)

// Connection is one bound MAVLink endpoint (UDP, TCP or serial).
type Connection interface {
	// Receive waits up to timeout for the next decoded frame. A nil frame
	// with a nil error means the timeout elapsed without traffic.
	Receive(timeout time.Duration) (*protocol.Frame, error)
	// Send encodes and writes msg on this link.
	Send(msg protocol.Message) error
	// Close releases the underlying port. Pending and later Receive calls
	// return ErrClosed.
	Close() error
	// Name is the connection string the link was opened from.
	Name() string
}

// Opener turns a connection string into an open Connection.
type Opener interface {
	Open(ctx context.Context, uri string) (Connection, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, uri string) (Connection, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, uri string) (Connection, error) { return f(ctx, uri) }
