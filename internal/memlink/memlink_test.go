package memlink

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/skylink/core/protocol"
	"github.com/kilianp07/skylink/core/transport"
)

func TestPairDeliversWithIdentity(t *testing.T) {
	gcs, veh := Pair("gcs", Identity{SystemID: 255, ComponentID: 190}, "veh", Identity{SystemID: 7, ComponentID: 1})
	require.NoError(t, veh.Send(&protocol.Heartbeat{Type: protocol.TypeQuadrotor}))

	f, err := gcs.Receive(time.Second)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, uint8(7), f.SystemID)
	assert.Equal(t, protocol.KindHeartbeat, f.Message.Kind())
	assert.Len(t, veh.SentKind(protocol.KindHeartbeat), 1)
}

func TestReceiveTimeoutReturnsNil(t *testing.T) {
	l := New("l", Identity{})
	f, err := l.Receive(10 * time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, f)
}

func TestClosedLink(t *testing.T) {
	l := New("l", Identity{})
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	_, err := l.Receive(time.Second)
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.ErrorIs(t, l.Send(&protocol.Heartbeat{}), transport.ErrClosed)
	assert.True(t, l.Closed())
}

func TestFailSends(t *testing.T) {
	l := New("l", Identity{})
	boom := errors.New("boom")
	l.FailSends(boom)
	assert.ErrorIs(t, l.Send(&protocol.Heartbeat{}), boom)
	l.FailSends(nil)
	assert.NoError(t, l.Send(&protocol.Heartbeat{}))
	assert.Len(t, l.Sent(), 1)
}
