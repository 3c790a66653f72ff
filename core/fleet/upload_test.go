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

	"github.com/kilianp07/skylink/core/fleet"
	"github.com/kilianp07/skylink/core/mission"
	"github.com/kilianp07/skylink/core/protocol"
	"github.com/kilianp07/skylink/internal/memlink"
	"github.com/kilianp07/skylink/simulator"
)

var gcsIdentity = memlink.Identity{SystemID: 255, ComponentID: 190}

func fastConfig() fleet.Config {
	return fleet.Config{
		ClearAckTimeoutMS:   100,
		RequestTimeoutMS:    400,
		FinalAckTimeoutMS:   400,
		CommandAckTimeoutMS: 300,
		ReadTimeoutMS:       20,
		LinkLossTimeoutMS:   200,
		StopTimeoutMS:       500,
		GuidedSettleMS:      1,
		ArmSettleMS:         1,
		TakeoffSettleMS:     1,
		AutoSettleMS:        1,
	}
}

// harness runs one simulated vehicle against a bare agent. A pump
// goroutine plays the part of the coordinator reader.
type harness struct {
	agent   *fleet.Agent
	gcs     *memlink.Link
	vehicle *simulator.Vehicle
}

func newHarness(t *testing.T, sim simulator.Config, cfg fleet.Config) *harness {
	t.Helper()
	if sim.SysID == 0 {
		sim.SysID = 1
	}
	if sim.TelemetryInterval == 0 {
		sim.TelemetryInterval = -1
	}
	gcs, air := memlink.Pair("gcs", gcsIdentity, "air", memlink.Identity{SystemID: sim.SysID, ComponentID: 1})
	h := &harness{
		agent:   fleet.NewAgent(sim.SysID, gcs, cfg, nil),
		gcs:     gcs,
		vehicle: simulator.NewVehicle(sim, air, nil),
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = h.vehicle.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			f, err := gcs.Receive(20 * time.Millisecond)
			if err != nil {
				return
			}
			if f != nil && f.SystemID == sim.SysID {
				h.agent.Update(f)
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		_ = gcs.Close()
		_ = air.Close()
		wg.Wait()
	})
	return h
}

func (h *harness) itemSeqs() []uint16 {
	var seqs []uint16
	for _, m := range h.gcs.SentKind(protocol.KindMissionItem) {
		seqs = append(seqs, m.(*protocol.MissionItem).Seq)
	}
	return seqs
}

func points(n int) []mission.Point {
	out := make([]mission.Point, n)
	for i := range out {
		out[i] = mission.Point{Lat: 47.3977 + float64(i)*0.0005, Lon: 8.5456 + float64(i)*0.0005, Alt: 20 + float64(i)}
	}
	return out
}

func TestUploadInOrder(t *testing.T) {
	h := newHarness(t, simulator.Config{Strategy: simulator.InOrder{}}, fastConfig())
	pts := []mission.Point{
		{Lat: 47.3977, Lon: 8.5456, Alt: 20},
		{Lat: 47.3980, Lon: 8.5460, Alt: 25},
		{Lat: 47.3985, Lon: 8.5465, Alt: 30},
	}

	require.NoError(t, h.agent.Upload(context.Background(), mission.FromPoints(pts)))
	assert.Equal(t, fleet.PhaseAccepted, h.agent.Phase())
	assert.False(t, h.agent.Uploading())

	sent := h.gcs.SentKind(protocol.KindMissionItem)
	require.Len(t, sent, 3)
	for i, m := range sent {
		it := m.(*protocol.MissionItem)
		assert.Equal(t, uint16(i), it.Seq)
		assert.Equal(t, uint8(1), it.TargetSystem)
		assert.Equal(t, mission.ToDegE7(pts[i].Lat), it.X)
		assert.Equal(t, mission.ToDegE7(pts[i].Lon), it.Y)
		assert.InDelta(t, pts[i].Alt, float64(it.Z), 1e-6)
		assert.Equal(t, protocol.FrameGlobalRelativeAlt, it.Frame)
	}
	assert.Len(t, h.gcs.SentKind(protocol.KindMissionClearAll), 1)
	count := h.gcs.SentKind(protocol.KindMissionCount)
	require.Len(t, count, 1)
	assert.Equal(t, uint16(3), count[0].(*protocol.MissionCount).Count)

	got := h.vehicle.Mission()
	require.Len(t, got, 3)
	assert.InDelta(t, 47.3985, got[2].Lat(), 1e-7)
}

func TestUploadRepeatedRequest(t *testing.T) {
	h := newHarness(t, simulator.Config{Strategy: &simulator.Scripted{Order: []uint16{0, 0, 1, 2}}}, fastConfig())
	require.NoError(t, h.agent.Upload(context.Background(), mission.FromPoints(points(3))))
	assert.Equal(t, []uint16{0, 0, 1, 2}, h.itemSeqs())
	assert.Equal(t, 4, h.vehicle.ItemsReceived())
	assert.Len(t, h.vehicle.Mission(), 3)
}

func TestUploadOutOfOrder(t *testing.T) {
	h := newHarness(t, simulator.Config{Strategy: &simulator.Scripted{Order: []uint16{2, 0, 1}}}, fastConfig())
	require.NoError(t, h.agent.Upload(context.Background(), mission.FromPoints(points(3))))
	assert.Equal(t, []uint16{2, 0, 1}, h.itemSeqs())
}

func TestUploadSilentVehicleTimesOut(t *testing.T) {
	h := newHarness(t, simulator.Config{Strategy: simulator.Silent{}}, fastConfig())
	start := time.Now()
	err := h.agent.Upload(context.Background(), mission.FromPoints(points(2)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fleet.ErrProtocolTimeout), "got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, h.agent.Uploading())
	assert.Equal(t, fleet.PhaseTimedOut, h.agent.Phase())
	assert.Empty(t, h.gcs.SentKind(protocol.KindMissionItem))
}

func TestUploadRejected(t *testing.T) {
	h := newHarness(t, simulator.Config{Strategy: simulator.InOrder{Final: protocol.MissionNoSpace}}, fastConfig())
	err := h.agent.Upload(context.Background(), mission.FromPoints(points(2)))
	var rej *fleet.RejectionError
	require.True(t, errors.As(err, &rej), "got %v", err)
	assert.Equal(t, uint8(protocol.MissionNoSpace), rej.Code)
	assert.Equal(t, fleet.PhaseRejected, h.agent.Phase())
	assert.Empty(t, h.vehicle.Mission())
}

func TestUploadToleratesNoiseAndDuplicates(t *testing.T) {
	strategy := &simulator.Scripted{
		Order:  []uint16{0, 1},
		Before: []protocol.MissionResult{protocol.MissionError},
		After:  []protocol.MissionResult{protocol.MissionAccepted, protocol.MissionAccepted},
	}
	h := newHarness(t, simulator.Config{Strategy: strategy, IgnoreClear: true}, fastConfig())
	require.NoError(t, h.agent.Upload(context.Background(), mission.FromPoints(points(2))))

	// the trailing duplicates must not leak into the next upload
	require.NoError(t, h.agent.Upload(context.Background(), mission.FromPoints(points(2))))
	assert.Equal(t, []uint16{0, 1, 0, 1}, h.itemSeqs())
}

func TestUploadSizes(t *testing.T) {
	for _, n := range []int{1, 2, 7, 20} {
		t.Run(fmt.Sprintf("%d items", n), func(t *testing.T) {
			h := newHarness(t, simulator.Config{}, fastConfig())
			require.NoError(t, h.agent.Upload(context.Background(), mission.FromPoints(points(n))))
			seqs := h.itemSeqs()
			require.Len(t, seqs, n)
			for i, s := range seqs {
				assert.Equal(t, uint16(i), s)
			}
			assert.Len(t, h.vehicle.Mission(), n)
		})
	}
}

func TestArmAndStart(t *testing.T) {
	h := newHarness(t, simulator.Config{}, fastConfig())
	require.NoError(t, h.agent.Upload(context.Background(), mission.FromPoints(points(2))))
	assert.True(t, h.agent.ArmAndStart(context.Background(), 15))
	assert.Eventually(t, func() bool { return h.vehicle.Mode() == simulator.ModeAuto }, time.Second, 5*time.Millisecond)
	assert.True(t, h.vehicle.Armed())

	cmds := h.gcs.SentKind(protocol.KindCommandLong)
	require.Len(t, cmds, 2)
	takeoff := cmds[1].(*protocol.CommandLong)
	assert.Equal(t, protocol.CmdNavTakeoff, takeoff.Command)
	assert.Equal(t, float32(15), takeoff.Params[6])
}

func TestArmAndStartArmRefused(t *testing.T) {
	h := newHarness(t, simulator.Config{Commands: simulator.RejectCommands(protocol.CmdComponentArmDisarm)}, fastConfig())
	assert.False(t, h.agent.ArmAndStart(context.Background(), 15))
	assert.Eventually(t, func() bool { return h.vehicle.Mode() == simulator.ModeGuided }, time.Second, 5*time.Millisecond)
	assert.False(t, h.vehicle.Armed())
	for _, m := range h.gcs.SentKind(protocol.KindCommandLong) {
		assert.NotEqual(t, protocol.CmdNavTakeoff, m.(*protocol.CommandLong).Command)
	}
}

func TestArmAndStartCancelled(t *testing.T) {
	cfg := fastConfig()
	cfg.GuidedSettleMS = 5000
	h := newHarness(t, simulator.Config{}, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.False(t, h.agent.ArmAndStart(ctx, 15))
	assert.Empty(t, h.gcs.SentKind(protocol.KindCommandLong))
}
