package fleet_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/skylink/core/fleet"
	"github.com/kilianp07/skylink/core/journal"
	coremetrics "github.com/kilianp07/skylink/core/metrics"
	"github.com/kilianp07/skylink/core/mission"
	"github.com/kilianp07/skylink/core/protocol"
	"github.com/kilianp07/skylink/core/transport"
	"github.com/kilianp07/skylink/internal/eventbus"
	"github.com/kilianp07/skylink/internal/memlink"
	"github.com/kilianp07/skylink/simulator"
)

type memJournal struct {
	mu   sync.Mutex
	recs []journal.Record
}

func (j *memJournal) Append(_ context.Context, rec journal.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recs = append(j.recs, rec)
	return nil
}

func (j *memJournal) Query(_ context.Context, q journal.Query) ([]journal.Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []journal.Record
	for _, r := range j.recs {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (j *memJournal) Close() error { return nil }

func (j *memJournal) records() []journal.Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]journal.Record(nil), j.recs...)
}

type recordingSink struct {
	mu         sync.Mutex
	commands   []coremetrics.CommandResultEvent
	discovered []coremetrics.DiscoveryEvent
	uploads    []coremetrics.UploadEvent
	size       int
}

func (s *recordingSink) RecordCommandResult(ev coremetrics.CommandResultEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, ev)
	return nil
}

func (s *recordingSink) RecordDiscovery(ev coremetrics.DiscoveryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discovered = append(s.discovered, ev)
	return nil
}

func (s *recordingSink) RecordUpload(ev coremetrics.UploadEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, ev)
	return nil
}

func (s *recordingSink) RecordFleetSize(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = n
	return nil
}

type recordingMonitor struct {
	mu   sync.Mutex
	errs []error
	tags []map[string]string
}

func (m *recordingMonitor) CaptureException(err error, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
	m.tags = append(m.tags, tags)
}

func (m *recordingMonitor) Recover()              {}
func (m *recordingMonitor) Flush(time.Duration) {}

func (m *recordingMonitor) captured() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errs)
}

func startCoordinator(t *testing.T, cfg fleet.Config, opts ...fleet.Option) *fleet.Coordinator {
	t.Helper()
	c := fleet.NewCoordinator(cfg, nil, nil, nil, append(opts, fleet.WithGCSSystemID(255))...)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Stop)
	return c
}

func runVehicle(t *testing.T, sim simulator.Config) (*memlink.Link, *simulator.Vehicle) {
	t.Helper()
	if sim.TelemetryInterval == 0 {
		sim.TelemetryInterval = 20 * time.Millisecond
	}
	gcs, air := memlink.Pair(fmt.Sprintf("link-%d", sim.SysID), gcsIdentity, "air", memlink.Identity{SystemID: sim.SysID, ComponentID: 1})
	v := simulator.NewVehicle(sim, air, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = v.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = air.Close()
		<-done
	})
	return gcs, v
}

func TestFirstLinkOwnsRoute(t *testing.T) {
	cfg := fastConfig()
	cfg.CommandAckTimeoutMS = 50
	l1 := memlink.New("l1", gcsIdentity)
	l2 := memlink.New("l2", gcsIdentity)
	c := startCoordinator(t, cfg, fleet.WithConnections(l1, l2))

	l1.InjectFrom(3, &protocol.Heartbeat{Type: protocol.TypeQuadrotor, Autopilot: 3, BaseMode: protocol.ModeFlagCustomModeEnabled})
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 5*time.Millisecond)
	l2.InjectFrom(3, &protocol.Heartbeat{Type: protocol.TypeQuadrotor, Autopilot: 3, BaseMode: protocol.ModeFlagCustomModeEnabled})
	l2.InjectFrom(3, &protocol.SysStatus{VoltageBattery: 12000, BatteryRemaining: 50})
	require.Eventually(t, func() bool {
		st := c.Snapshot()[3]
		return st.BatteryRemaining != nil
	}, time.Second, 5*time.Millisecond)

	route, ok := c.Route(3)
	require.True(t, ok)
	assert.Equal(t, "l1", route.Name())
	assert.Equal(t, 1, c.Len())

	_, err := c.SendCommand(context.Background(), 3, fleet.CmdArm, nil)
	assert.ErrorIs(t, err, fleet.ErrProtocolTimeout)
	assert.Len(t, l1.SentKind(protocol.KindCommandLong), 1)
	assert.Empty(t, l2.SentKind(protocol.KindCommandLong))
	assert.Len(t, l1.SentKind(protocol.KindRequestDataStream), 1)
	assert.Empty(t, l2.Sent())
}

func TestUnknownVehicleHasNoSideEffects(t *testing.T) {
	l1 := memlink.New("l1", gcsIdentity)
	store := &memJournal{}
	sink := &recordingSink{}
	mon := &recordingMonitor{}
	bus := eventbus.NewTyped[fleet.Event]()
	events := bus.Subscribe()
	c := startCoordinator(t, fastConfig(), fleet.WithConnections(l1), fleet.WithJournal(store),
		fleet.WithMetricsSink(sink), fleet.WithMonitor(mon), fleet.WithEventBus(bus))

	_, err := c.SendCommand(context.Background(), 99, fleet.CmdArm, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fleet.ErrUnknownVehicle))
	assert.Contains(t, err.Error(), "99")

	assert.Empty(t, l1.Sent())
	assert.Empty(t, store.records())
	assert.Empty(t, sink.commands)
	assert.Zero(t, mon.captured())
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestIgnoresOwnAndBroadcastFrames(t *testing.T) {
	l1 := memlink.New("l1", gcsIdentity)
	c := startCoordinator(t, fastConfig(), fleet.WithConnections(l1))
	l1.InjectFrom(255, &protocol.Heartbeat{Type: protocol.TypeGCS})
	l1.InjectFrom(0, &protocol.Heartbeat{})
	l1.InjectFrom(7, &protocol.Heartbeat{Type: protocol.TypeQuadrotor, Autopilot: 3})
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint8{7}, c.SystemIDs())
}

func TestSendCommandEndToEnd(t *testing.T) {
	gcs, v := runVehicle(t, simulator.Config{SysID: 4})
	store := &memJournal{}
	sink := &recordingSink{}
	mon := &recordingMonitor{}
	bus := eventbus.NewTyped[fleet.Event]()
	events := bus.SubscribeN(256)
	c := startCoordinator(t, fastConfig(), fleet.WithConnections(gcs), fleet.WithJournal(store),
		fleet.WithMetricsSink(sink), fleet.WithMonitor(mon), fleet.WithEventBus(bus))

	require.Eventually(t, func() bool { return c.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	params := map[string]any{"waypoints": [][]float64{{47.3977, 8.5456, 20}, {47.3980, 8.5460, 25}}}
	res, err := c.SendCommand(context.Background(), 4, fleet.CmdUploadMission, params)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Len(t, v.Mission(), 2)

	res, err = c.SendCommand(context.Background(), 4, fleet.CmdArmAndStartMission, map[string]any{"takeoff_altitude": 12.5})
	require.NoError(t, err)
	assert.Equal(t, true, res)
	assert.True(t, v.Armed())

	_, err = c.SendCommand(context.Background(), 4, fleet.CommandKind("self_destruct"), nil)
	assert.ErrorIs(t, err, fleet.ErrUnsupportedCommand)

	recs := store.records()
	require.Len(t, recs, 3)
	assert.Equal(t, "upload_mission", recs[0].Kind)
	assert.Equal(t, journal.OutcomeOK, recs[0].Outcome)
	assert.Equal(t, "link-4", recs[0].Link)
	assert.NotEmpty(t, recs[0].ID)
	assert.Equal(t, journal.OutcomeOK, recs[1].Outcome)
	assert.Equal(t, journal.OutcomeError, recs[2].Outcome)
	assert.Contains(t, recs[2].Error, "self_destruct")

	sink.mu.Lock()
	require.Len(t, sink.uploads, 1)
	assert.Equal(t, "accepted", sink.uploads[0].Result)
	assert.Equal(t, 2, sink.uploads[0].Items)
	assert.Len(t, sink.commands, 3)
	require.Len(t, sink.discovered, 1)
	assert.Equal(t, uint8(4), sink.discovered[0].SysID)
	assert.Equal(t, 1, sink.size)
	sink.mu.Unlock()
	assert.Equal(t, 1, mon.captured())

	kinds := map[fleet.EventKind]int{}
	phases := map[fleet.Phase]bool{}
	for len(events) > 0 {
		ev := <-events
		kinds[ev.Kind]++
		if ev.Kind == fleet.EventUploadPhase {
			phases[ev.Phase] = true
		}
	}
	assert.Equal(t, 1, kinds[fleet.EventVehicleDiscovered])
	assert.Equal(t, 3, kinds[fleet.EventCommandResult])
	assert.True(t, phases[fleet.PhaseAwaitingFinalAck])
	assert.True(t, phases[fleet.PhaseAccepted])
}

func TestConcurrentUploadsAcrossFleet(t *testing.T) {
	var conns []transport.Connection
	var vehicles []*simulator.Vehicle
	for id := uint8(1); id <= 3; id++ {
		gcs, v := runVehicle(t, simulator.Config{SysID: id, Home: simulator.Spread(mission.Point{Lat: 47.39, Lon: 8.54}, int(id), 10)})
		conns = append(conns, gcs)
		vehicles = append(vehicles, v)
	}
	c := startCoordinator(t, fastConfig(), fleet.WithConnections(conns...))
	require.Eventually(t, func() bool { return c.Len() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint8{1, 2, 3}, c.SystemIDs())

	g, ctx := errgroup.WithContext(context.Background())
	for _, id := range c.SystemIDs() {
		g.Go(func() error {
			params := map[string]any{"waypoints": [][]float64{{47.39, 8.54, float64(10 * id)}}}
			_, err := c.SendCommand(ctx, id, fleet.CmdUploadMission, params)
			return err
		})
	}
	require.NoError(t, g.Wait())
	for i, v := range vehicles {
		got := v.Mission()
		require.Len(t, got, 1)
		assert.InDelta(t, float64(10*(i+1)), float64(got[0].Z), 1e-6)
	}
}

func TestSnapshotReportsLinkLoss(t *testing.T) {
	gcs, air := memlink.Pair("l1", gcsIdentity, "air", memlink.Identity{SystemID: 6, ComponentID: 1})
	v := simulator.NewVehicle(simulator.Config{SysID: 6, Home: mission.Point{Lat: 48.85, Lon: 2.35}, TelemetryInterval: 20 * time.Millisecond}, air, nil)
	vctx, stopVehicle := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = v.Run(vctx)
	}()
	t.Cleanup(func() {
		stopVehicle()
		<-done
	})
	cfg := fastConfig()
	cfg.StreamRateHz = -1
	c := startCoordinator(t, cfg, fleet.WithConnections(gcs))

	require.Eventually(t, func() bool {
		st, ok := c.Snapshot()[6]
		return ok && st.Connected && st.LatitudeDeg != nil && st.BatteryRemaining != nil
	}, 2*time.Second, 5*time.Millisecond)
	st := c.Snapshot()[6]
	assert.InDelta(t, 48.85, *st.LatitudeDeg, 1e-6)
	assert.Equal(t, "STABILIZE", st.FlightMode)
	assert.Equal(t, 12, *st.GPSSatellites)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				snap := c.Snapshot()
				if s, ok := snap[6]; ok {
					s.FlightMode = "mutated"
				}
			}
		}()
	}
	wg.Wait()
	assert.NotEqual(t, "mutated", c.Snapshot()[6].FlightMode)

	stopVehicle()
	<-done
	require.Eventually(t, func() bool { return !c.Snapshot()[6].Connected }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, c.Len())
}

func TestStartStop(t *testing.T) {
	l1 := memlink.New("l1", gcsIdentity)
	c := fleet.NewCoordinator(fastConfig(), nil, nil, nil, fleet.WithConnections(l1))
	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Start(context.Background()), fleet.ErrAlreadyRunning)

	l1.InjectFrom(2, &protocol.Heartbeat{Autopilot: 3})
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 5*time.Millisecond)

	c.Stop()
	c.Stop()
	assert.True(t, l1.Closed())
	assert.Zero(t, c.Len())
	_, ok := c.Route(2)
	assert.False(t, ok)

	// preset links are used once; nothing left to open
	assert.ErrorIs(t, c.Start(context.Background()), fleet.ErrNoLinks)
}

func TestStartOpensURIs(t *testing.T) {
	var mu sync.Mutex
	opened := map[string]*memlink.Link{}
	opener := transport.OpenerFunc(func(_ context.Context, uri string) (transport.Connection, error) {
		if uri == "udpin:bad" {
			return nil, errors.New("address in use")
		}
		l := memlink.New(uri, gcsIdentity)
		mu.Lock()
		opened[uri] = l
		mu.Unlock()
		return l, nil
	})

	c := fleet.NewCoordinator(fastConfig(), opener, []string{"udpin:a", "udpin:b"}, nil)
	require.NoError(t, c.Start(context.Background()))
	mu.Lock()
	require.Len(t, opened, 2)
	b := opened["udpin:b"]
	mu.Unlock()
	b.InjectFrom(9, &protocol.Heartbeat{Autopilot: 3})
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 5*time.Millisecond)
	route, _ := c.Route(9)
	assert.Equal(t, "udpin:b", route.Name())
	c.Stop()

	bad := fleet.NewCoordinator(fastConfig(), opener, []string{"udpin:c", "udpin:bad"}, nil)
	err := bad.Start(context.Background())
	var terr *fleet.TransportError
	require.True(t, errors.As(err, &terr), "got %v", err)
	assert.Equal(t, "udpin:bad", terr.Link)
	assert.Equal(t, "open", terr.Op)
	mu.Lock()
	assert.True(t, opened["udpin:c"].Closed())
	mu.Unlock()

	assert.ErrorIs(t, fleet.NewCoordinator(fastConfig(), nil, nil, nil).Start(context.Background()), fleet.ErrNoLinks)
}
