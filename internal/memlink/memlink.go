// Package memlink provides an in-memory transport.Connection. Two links
// created by Pair deliver each other's messages as frames, which lets the
// fleet and the simulator talk without sockets.
package memlink

import (
	"sync"
	"time"

	"github.com/kilianp07/skylink/core/protocol"
	"github.com/kilianp07/skylink/core/transport"
)

const bufferSize = 256

// Identity is the MAVLink source stamped on frames a link sends.
type Identity struct {
	SystemID    uint8
	ComponentID uint8
}

// Link is one side of an in-memory connection.
type Link struct {
	name string
	id   Identity
	in   chan *protocol.Frame
	peer *Link

	mu      sync.Mutex
	sent    []protocol.Message
	sendErr error

	closed    chan struct{}
	closeOnce sync.Once
}

// New returns an unpaired link. Frames reach it only through Inject.
func New(name string, id Identity) *Link {
	return &Link{
		name:   name,
		id:     id,
		in:     make(chan *protocol.Frame, bufferSize),
		closed: make(chan struct{}),
	}
}

// Pair returns two connected links. Messages sent on a arrive on b stamped
// with a's identity, and the other way round.
func Pair(nameA string, idA Identity, nameB string, idB Identity) (*Link, *Link) {
	a := New(nameA, idA)
	b := New(nameB, idB)
	a.peer = b
	b.peer = a
	return a, b
}

// Name implements transport.Connection.
func (l *Link) Name() string { return l.name }

// Receive implements transport.Connection.
func (l *Link) Receive(timeout time.Duration) (*protocol.Frame, error) {
	select {
	case <-l.closed:
		return nil, transport.ErrClosed
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-l.in:
		return f, nil
	case <-timer.C:
		return nil, nil
	case <-l.closed:
		return nil, transport.ErrClosed
	}
}

// Send records msg and forwards it to the peer, if any.
func (l *Link) Send(msg protocol.Message) error {
	select {
	case <-l.closed:
		return transport.ErrClosed
	default:
	}
	l.mu.Lock()
	if l.sendErr != nil {
		err := l.sendErr
		l.mu.Unlock()
		return err
	}
	l.sent = append(l.sent, msg)
	l.mu.Unlock()
	if l.peer != nil {
		l.peer.deliver(&protocol.Frame{SystemID: l.id.SystemID, ComponentID: l.id.ComponentID, Message: msg})
	}
	return nil
}

// Inject queues a frame as if it had been read from the wire.
func (l *Link) Inject(f *protocol.Frame) { l.deliver(f) }

// InjectFrom is a shortcut for Inject with the given source identity.
func (l *Link) InjectFrom(sysID uint8, msg protocol.Message) {
	l.deliver(&protocol.Frame{SystemID: sysID, ComponentID: 1, Message: msg})
}

func (l *Link) deliver(f *protocol.Frame) {
	select {
	case l.in <- f:
	case <-l.closed:
	}
}

// FailSends makes every following Send return err. A nil err restores
// normal behaviour.
func (l *Link) FailSends(err error) {
	l.mu.Lock()
	l.sendErr = err
	l.mu.Unlock()
}

// Sent returns a copy of every message sent on this link.
func (l *Link) Sent() []protocol.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]protocol.Message, len(l.sent))
	copy(out, l.sent)
	return out
}

// SentKind returns the sent messages of the given kind.
func (l *Link) SentKind(k protocol.Kind) []protocol.Message {
	var out []protocol.Message
	for _, m := range l.Sent() {
		if m.Kind() == k {
			out = append(out, m)
		}
	}
	return out
}

// Close implements transport.Connection.
func (l *Link) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

// Closed reports whether Close was called.
func (l *Link) Closed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}
