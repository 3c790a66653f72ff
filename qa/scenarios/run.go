package scenarios

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/skylink/core/fleet"
	"github.com/kilianp07/skylink/core/logger"
	"github.com/kilianp07/skylink/core/protocol"
	"github.com/kilianp07/skylink/internal/memlink"
	"github.com/kilianp07/skylink/simulator"
)

const (
	gcsSystemID      = 255
	telemetryPeriod  = 20 * time.Millisecond
	discoveryTimeout = 2 * time.Second
)

// Timing is a fleet configuration fast enough for replaying scenarios.
var Timing = fleet.Config{
	ClearAckTimeoutMS:   100,
	RequestTimeoutMS:    400,
	FinalAckTimeoutMS:   400,
	CommandAckTimeoutMS: 300,
	ReadTimeoutMS:       20,
	LinkLossTimeoutMS:   500,
	StopTimeoutMS:       500,
	GuidedSettleMS:      1,
	ArmSettleMS:         1,
	TakeoffSettleMS:     1,
	AutoSettleMS:        1,
}

// Result is what happened when a scenario ran.
type Result struct {
	Value      any
	Err        error
	Outcome    string
	ItemsSent  int
	FramesSent int
	Route      string
	Agents     int
}

type instance struct {
	sysID   uint8
	gcs     *memlink.Link
	vehicle *simulator.Vehicle
}

// Run replays sc against a coordinator using cfg and returns what the
// command produced.
func Run(ctx context.Context, sc *Scenario, cfg fleet.Config) (*Result, error) {
	var instances []instance
	var gcsLinks []*memlink.Link
	for _, v := range sc.Vehicles {
		for _, name := range v.LinkNames() {
			strategy, err := v.MissionStrategy()
			if err != nil {
				return nil, err
			}
			gcs, air := memlink.Pair(
				name, memlink.Identity{SystemID: gcsSystemID, ComponentID: 190},
				name+"-air", memlink.Identity{SystemID: v.SysID, ComponentID: 1},
			)
			simCfg := simulator.Config{
				SysID:             v.SysID,
				TelemetryInterval: telemetryPeriod,
				RequestRetry:      time.Duration(v.RetryMS) * time.Millisecond,
				Strategy:          strategy,
				IgnoreClear:       v.IgnoreClear,
			}
			if len(v.RejectCommands) > 0 {
				simCfg.Commands = simulator.RejectCommands(v.RejectCommands...)
			}
			instances = append(instances, instance{sysID: v.SysID, gcs: gcs, vehicle: simulator.NewVehicle(simCfg, air, nil)})
			gcsLinks = append(gcsLinks, gcs)
		}
	}

	opts := []fleet.Option{fleet.WithGCSSystemID(gcsSystemID)}
	for _, l := range gcsLinks {
		opts = append(opts, fleet.WithConnections(l))
	}
	coord := fleet.NewCoordinator(cfg, nil, nil, logger.NopLogger{}, opts...)
	if len(gcsLinks) > 0 {
		if err := coord.Start(ctx); err != nil {
			return nil, err
		}
		defer coord.Stop()
	}

	simCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	for _, in := range instances {
		wg.Add(1)
		go func(v *simulator.Vehicle) {
			defer wg.Done()
			_ = v.Run(simCtx)
		}(in.vehicle)
		if err := awaitHeard(ctx, coord, in); err != nil {
			return nil, err
		}
	}

	itemsBefore, framesBefore := sentCounts(gcsLinks)
	res := &Result{}
	res.Value, res.Err = coord.SendCommand(ctx, sc.Command.SysID, fleet.CommandKind(sc.Command.Kind), sc.Command.Params)
	res.Outcome = fleet.CommandOutcome(res.Value, res.Err)
	itemsAfter, framesAfter := sentCounts(gcsLinks)
	res.ItemsSent = itemsAfter - itemsBefore
	res.FramesSent = framesAfter - framesBefore
	if conn, ok := coord.Route(sc.Command.SysID); ok {
		res.Route = conn.Name()
	}
	res.Agents = coord.Len()
	return res, nil
}

// awaitHeard waits until the coordinator has processed a frame of the
// instance's vehicle on the instance's link.
func awaitHeard(ctx context.Context, coord *fleet.Coordinator, in instance) error {
	deadline := time.Now().Add(discoveryTimeout)
	for time.Now().Before(deadline) {
		if _, ok := coord.Route(in.sysID); ok {
			// later links of a known vehicle only need their first frames read
			time.Sleep(3 * telemetryPeriod)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(telemetryPeriod / 2):
		}
	}
	return fmt.Errorf("sys %d never heard on %s", in.sysID, in.gcs.Name())
}

func sentCounts(links []*memlink.Link) (items, frames int) {
	for _, l := range links {
		items += len(l.SentKind(protocol.KindMissionItem))
		frames += len(l.Sent())
	}
	return items, frames
}

// Check compares res with the expectations of sc.
func (sc *Scenario) Check(res *Result) error {
	exp := sc.Expected
	var errs []error
	if exp.Error == "" {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("unexpected error: %w", res.Err))
		}
	} else if want := errorNames[exp.Error]; !errors.Is(res.Err, want) {
		errs = append(errs, fmt.Errorf("error = %v, want %s", res.Err, exp.Error))
	}
	if exp.Outcome != "" && res.Outcome != exp.Outcome {
		errs = append(errs, fmt.Errorf("outcome = %s, want %s", res.Outcome, exp.Outcome))
	}
	if exp.ItemsSent != nil && res.ItemsSent != *exp.ItemsSent {
		errs = append(errs, fmt.Errorf("items sent = %d, want %d", res.ItemsSent, *exp.ItemsSent))
	}
	if exp.Route != "" && res.Route != exp.Route {
		errs = append(errs, fmt.Errorf("route = %q, want %q", res.Route, exp.Route))
	}
	if exp.Agents != nil && res.Agents != *exp.Agents {
		errs = append(errs, fmt.Errorf("agents = %d, want %d", res.Agents, *exp.Agents))
	}
	if exp.NoFramesSent && res.FramesSent != 0 {
		errs = append(errs, fmt.Errorf("%d frames sent, want none", res.FramesSent))
	}
	return errors.Join(errs...)
}
