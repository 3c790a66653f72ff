package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/skylink/core/mission"
	"github.com/kilianp07/skylink/infra/logger"
	"github.com/kilianp07/skylink/infra/mavlink"
	"github.com/kilianp07/skylink/simulator"
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run simulated vehicles against a ground station",
	RunE:  runSim,
}

var simFlags struct {
	link      string
	sysID     uint8
	count     int
	lat, lon  float64
	spacing   float64
	interval  time.Duration
	ignoreClr bool
}

func init() {
	f := simCmd.Flags()
	f.StringVar(&simFlags.link, "link", "udpout:127.0.0.1:14550", "connection string of the ground station")
	f.Uint8Var(&simFlags.sysID, "sys-id", 1, "system id of the first vehicle")
	f.IntVar(&simFlags.count, "count", 1, "number of vehicles")
	f.Float64Var(&simFlags.lat, "lat", 48.8584, "home latitude")
	f.Float64Var(&simFlags.lon, "lon", 2.2945, "home longitude")
	f.Float64Var(&simFlags.spacing, "spacing", 10, "metres between vehicle homes")
	f.DurationVar(&simFlags.interval, "telemetry", time.Second, "telemetry period")
	f.BoolVar(&simFlags.ignoreClr, "ignore-clear", false, "leave mission clears unacknowledged")
	rootCmd.AddCommand(simCmd)
}

func runSim(cmd *cobra.Command, args []string) error {
	if simFlags.count < 1 || int(simFlags.sysID)+simFlags.count-1 > 254 {
		return fmt.Errorf("invalid vehicle range starting at %d", simFlags.sysID)
	}
	ctx, stop := signalContext()
	defer stop()

	home := mission.Point{Lat: simFlags.lat, Lon: simFlags.lon}
	vehicles := make([]*simulator.Vehicle, 0, simFlags.count)
	for i := 0; i < simFlags.count; i++ {
		sysID := simFlags.sysID + uint8(i)
		log := logger.ForVehicle("sim", sysID)
		link, err := mavlink.Dial(simFlags.link, mavlink.Options{
			SystemID:         sysID,
			ComponentID:      1,
			HeartbeatDisable: true,
		}, log)
		if err != nil {
			return err
		}
		defer link.Close()
		vehicles = append(vehicles, simulator.NewVehicle(simulator.Config{
			SysID:             sysID,
			Home:              simulator.Spread(home, i, simFlags.spacing),
			TelemetryInterval: simFlags.interval,
			RequestRetry:      time.Second,
			IgnoreClear:       simFlags.ignoreClr,
		}, link, log))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "simulating %d vehicle(s) on %s\n", len(vehicles), simFlags.link)
	return simulator.RunAll(ctx, vehicles...)
}
