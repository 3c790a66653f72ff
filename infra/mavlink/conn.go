package mavlink

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/kilianp07/skylink/core/logger"
	"github.com/kilianp07/skylink/core/protocol"
	"github.com/kilianp07/skylink/core/transport"
)

const frameBuffer = 512

// Options configures the local MAVLink identity of every link.
type Options struct {
	SystemID    uint8
	ComponentID uint8
	// Version is "v1" or "v2".
	Version string
	// HeartbeatDisable stops the node heartbeat. Simulated vehicles send
	// their own.
	HeartbeatDisable bool
}

func (o Options) withDefaults() Options {
	if o.SystemID == 0 {
		o.SystemID = 255
	}
	if o.ComponentID == 0 {
		o.ComponentID = 190
	}
	return o
}

func (o Options) outVersion() gomavlib.Version {
	if strings.EqualFold(o.Version, "v1") {
		return gomavlib.V1
	}
	return gomavlib.V2
}

// Opener opens gomavlib links from connection strings.
type Opener struct {
	opts Options
	log  logger.Logger
}

// NewOpener returns an Opener using opts for every link.
func NewOpener(opts Options, log logger.Logger) *Opener {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Opener{opts: opts.withDefaults(), log: log}
}

// Open implements transport.Opener.
func (o *Opener) Open(ctx context.Context, uri string) (transport.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Dial(uri, o.opts, o.log)
}

// Conn is a transport.Connection over one gomavlib node.
type Conn struct {
	name string
	node *gomavlib.Node
	log  logger.Logger

	frames chan *protocol.Frame

	mu       sync.Mutex
	channels map[uint8]*gomavlib.Channel
	open     map[*gomavlib.Channel]struct{}

	done      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// Dial opens the endpoint described by uri.
func Dial(uri string, opts Options, log logger.Logger) (*Conn, error) {
	if log == nil {
		log = logger.NopLogger{}
	}
	opts = opts.withDefaults()
	ep, err := ParseEndpoint(uri)
	if err != nil {
		return nil, err
	}
	node := &gomavlib.Node{
		Endpoints:        []gomavlib.EndpointConf{ep},
		Dialect:          common.Dialect,
		OutVersion:       opts.outVersion(),
		OutSystemID:      opts.SystemID,
		OutComponentID:   opts.ComponentID,
		HeartbeatDisable: opts.HeartbeatDisable,
	}
	if err := node.Initialize(); err != nil {
		return nil, fmt.Errorf("open %s: %w", uri, err)
	}
	c := &Conn{
		name:     uri,
		node:     node,
		log:      log,
		frames:   make(chan *protocol.Frame, frameBuffer),
		channels: make(map[uint8]*gomavlib.Channel),
		open:     make(map[*gomavlib.Channel]struct{}),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
	go c.run()
	log.Infof("link %s open", uri)
	return c, nil
}

// Name implements transport.Connection.
func (c *Conn) Name() string { return c.name }

func (c *Conn) run() {
	defer close(c.done)
	for evt := range c.node.Events() {
		switch e := evt.(type) {
		case *gomavlib.EventFrame:
			msg, ok := Decode(e.Message())
			if !ok {
				continue
			}
			sys := e.SystemID()
			c.mu.Lock()
			c.channels[sys] = e.Channel
			c.mu.Unlock()
			f := &protocol.Frame{SystemID: sys, ComponentID: e.ComponentID(), Message: msg}
			// keep draining after Close so the node can shut down
			select {
			case c.frames <- f:
			case <-c.closed:
			}
		case *gomavlib.EventChannelOpen:
			c.mu.Lock()
			c.open[e.Channel] = struct{}{}
			c.mu.Unlock()
			c.log.Debugf("%s: channel open %v", c.name, e.Channel)
		case *gomavlib.EventChannelClose:
			c.log.Debugf("%s: channel closed %v", c.name, e.Channel)
			c.forget(e.Channel)
		case *gomavlib.EventParseError:
			c.log.Debugf("%s: parse error: %v", c.name, e.Error)
		}
	}
}

func (c *Conn) forget(ch *gomavlib.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.open, ch)
	for sys, known := range c.channels {
		if known == ch {
			delete(c.channels, sys)
		}
	}
}

// Receive implements transport.Connection.
func (c *Conn) Receive(timeout time.Duration) (*protocol.Frame, error) {
	select {
	case <-c.closed:
		return nil, transport.ErrClosed
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-c.frames:
		return f, nil
	case <-timer.C:
		return nil, nil
	case <-c.closed:
		return nil, transport.ErrClosed
	}
}

// Send implements transport.Connection. Addressed messages go to the
// channel that last carried their target; the rest are broadcast. It
// fails with ErrNoChannel while the endpoint has no open channel.
func (c *Conn) Send(msg protocol.Message) error {
	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}
	out, err := Encode(msg)
	if err != nil {
		return err
	}
	var ch *gomavlib.Channel
	c.mu.Lock()
	if t, ok := msg.(protocol.Targeted); ok && t.Target() != 0 {
		ch = c.channels[t.Target()]
	}
	open := len(c.open)
	c.mu.Unlock()
	switch {
	case ch != nil:
		err = c.node.WriteMessageTo(ch, out)
	case open == 0:
		return fmt.Errorf("%s: send %s: %w", c.name, msg.Kind(), ErrNoChannel)
	default:
		err = c.node.WriteMessageAll(out)
	}
	if err != nil {
		return fmt.Errorf("%s: send %s: %w", c.name, msg.Kind(), err)
	}
	return nil
}

// Close implements transport.Connection.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.node.Close()
		<-c.done
		c.log.Infof("link %s closed", c.name)
	})
	return nil
}
