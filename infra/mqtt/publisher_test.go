package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/skylink/core/fleet"
	"github.com/kilianp07/skylink/internal/eventbus"
)

type fakeBroker struct {
	mu       sync.Mutex
	messages []publication
	handlers map[string]Handler
	fail     error
}

func newFakeBroker() *fakeBroker { return &fakeBroker{handlers: map[string]Handler{}} }

func (b *fakeBroker) Publish(topic, _ string, retained bool, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.messages = append(b.messages, publication{topic: topic, retained: retained, payload: string(payload)})
	return nil
}

func (b *fakeBroker) Subscribe(topic, _ string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = h
	return nil
}

func (b *fakeBroker) on(topic string) []publication {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []publication
	for _, m := range b.messages {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type staticSource map[uint8]fleet.Status

func (s staticSource) Snapshot() map[uint8]fleet.Status { return s }

func TestPublishSnapshotRetained(t *testing.T) {
	b := newFakeBroker()
	lat := 48.85
	src := staticSource{
		2: {SysID: 2, Connected: true, FlightMode: "GUIDED"},
		1: {SysID: 1, Connected: true, FlightMode: "AUTO", LatitudeDeg: &lat},
	}
	topics := Topics{Prefix: "skylink"}
	p := NewStatusPublisher(b, topics, src, nil, time.Second, nil)
	require.NoError(t, p.PublishSnapshot())

	msgs := b.on("skylink/vehicle/1/status")
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].retained)
	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(msgs[0].payload), &st))
	assert.Equal(t, "AUTO", st["flight_mode"])
	assert.InDelta(t, 48.85, st["latitude_deg"], 1e-9)
	assert.Nil(t, st["battery_remaining"])
	assert.Len(t, b.on("skylink/vehicle/2/status"), 1)
}

func TestPublishSnapshotJoinsErrors(t *testing.T) {
	b := newFakeBroker()
	b.fail = errors.New("down")
	p := NewStatusPublisher(b, Topics{Prefix: "x"}, staticSource{1: {SysID: 1}, 2: {SysID: 2}}, nil, 0, nil)
	err := p.PublishSnapshot()
	require.Error(t, err)
	assert.ErrorIs(t, err, b.fail)
}

func TestRunForwardsEvents(t *testing.T) {
	b := newFakeBroker()
	bus := eventbus.NewTyped[fleet.Event]()
	p := NewStatusPublisher(b, Topics{Prefix: "skylink"}, staticSource{}, bus, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		bus.Publish(fleet.Event{Kind: fleet.EventVehicleDiscovered, SysID: 7, Link: "udp"})
		return len(b.on("skylink/events")) > 0
	}, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	var ev fleet.Event
	require.NoError(t, json.Unmarshal([]byte(b.on("skylink/events")[0].payload), &ev))
	assert.Equal(t, fleet.EventVehicleDiscovered, ev.Kind)
	assert.Equal(t, uint8(7), ev.SysID)
}

type fakeSender struct {
	mu    sync.Mutex
	calls []fleet.CommandKind
}

func (s *fakeSender) SendCommand(_ context.Context, sysID uint8, kind fleet.CommandKind, params map[string]any) (any, error) {
	s.mu.Lock()
	s.calls = append(s.calls, kind)
	s.mu.Unlock()
	switch {
	case sysID == 9:
		return nil, fleet.ErrUnknownVehicle
	case kind == fleet.CmdArmAndStartMission:
		return false, nil
	default:
		return nil, nil
	}
}

func intakeResult(t *testing.T, b *fakeBroker, topic string) CommandResult {
	t.Helper()
	msgs := b.on(topic)
	require.Len(t, msgs, 1)
	var res CommandResult
	require.NoError(t, json.Unmarshal([]byte(msgs[0].payload), &res))
	return res
}

func TestCommandIntake(t *testing.T) {
	b := newFakeBroker()
	sender := &fakeSender{}
	ci := NewCommandIntake(b, Topics{Prefix: "skylink"}, sender, nil)
	require.NoError(t, ci.Start(context.Background()))
	h := b.handlers["skylink/vehicle/+/command"]
	require.NotNil(t, h)

	h("skylink/vehicle/3/command", []byte(`{"command_id":"c1","kind":"set_mode","params":{"mode":"GUIDED"}}`))
	h("skylink/vehicle/4/command", []byte(`{"kind":"arm_and_start_mission"}`))
	h("skylink/vehicle/9/command", []byte(`{"command_id":"c3","kind":"arm"}`))
	ci.Wait()

	res := intakeResult(t, b, "skylink/vehicle/3/command/result")
	assert.Equal(t, "c1", res.CommandID)
	assert.Equal(t, "ok", res.Outcome)
	assert.Equal(t, uint8(3), res.SysID)

	res = intakeResult(t, b, "skylink/vehicle/4/command/result")
	assert.NotEmpty(t, res.CommandID)
	assert.Equal(t, "failed", res.Outcome)
	assert.Equal(t, false, res.Result)

	res = intakeResult(t, b, "skylink/vehicle/9/command/result")
	assert.Equal(t, "error", res.Outcome)
	assert.Contains(t, res.Error, "unknown vehicle")
}

func TestCommandIntakeIgnoresMalformed(t *testing.T) {
	b := newFakeBroker()
	sender := &fakeSender{}
	ci := NewCommandIntake(b, Topics{Prefix: "skylink"}, sender, nil)
	require.NoError(t, ci.Start(context.Background()))
	h := b.handlers["skylink/vehicle/+/command"]

	h("skylink/vehicle/300/command", []byte(`{"kind":"arm"}`))
	h("skylink/vehicle/x/command", []byte(`{"kind":"arm"}`))
	h("skylink/vehicle/1/command", []byte(`not json`))
	h("skylink/vehicle/1/command", []byte(`{"params":{}}`))
	ci.Wait()

	assert.Empty(t, sender.calls)
	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Empty(t, b.messages)
}

func TestCommandIntakeRefusesAfterStop(t *testing.T) {
	b := newFakeBroker()
	sender := &fakeSender{}
	ctx, cancel := context.WithCancel(context.Background())
	ci := NewCommandIntake(b, Topics{Prefix: "skylink"}, sender, nil)
	require.NoError(t, ci.Start(ctx))
	h := b.handlers["skylink/vehicle/+/command"]

	cancel()
	h("skylink/vehicle/1/command", []byte(`{"kind":"arm"}`))

	ci2 := NewCommandIntake(b, Topics{Prefix: "other"}, sender, nil)
	require.NoError(t, ci2.Start(context.Background()))
	ci2.Wait()
	b.handlers["other/vehicle/+/command"]("other/vehicle/1/command", []byte(`{"kind":"arm"}`))
	ci2.Wait()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Empty(t, sender.calls)
	assert.Empty(t, b.on("skylink/vehicle/1/command/result"))
	assert.Empty(t, b.on("other/vehicle/1/command/result"))
}
