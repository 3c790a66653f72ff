package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/skylink/app"
	"github.com/kilianp07/skylink/core/fleet"
	"github.com/kilianp07/skylink/core/journal"
	"github.com/kilianp07/skylink/infra/logger"
)

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Fleet related commands",
}

var fleetLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the vehicles heard on the configured links",
	RunE:  runFleetLs,
}

var fleetWait time.Duration

func init() {
	fleetLsCmd.Flags().DurationVar(&fleetWait, "wait", 3*time.Second, "how long to listen before listing")
	fleetCmd.AddCommand(fleetLsCmd)
	rootCmd.AddCommand(fleetCmd)
}

// station is a coordinator started for a single CLI command.
type station struct {
	coord   *fleet.Coordinator
	journal journal.Store
}

func openStation(ctx context.Context, cmd *cobra.Command) (*station, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}
	store, err := journal.Open(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	coord := app.NewCoordinator(cfg, fleet.WithJournal(store))
	if err := coord.Start(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return &station{coord: coord, journal: store}, nil
}

func (s *station) close() error {
	s.coord.Stop()
	return s.journal.Close()
}

// waitVehicle polls until sysID has been heard or wait elapses.
func (s *station) waitVehicle(ctx context.Context, sysID uint8, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for {
		if _, ok := s.coord.Agent(sysID); ok {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func runFleetLs(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	st, err := openStation(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = st.close() }()

	select {
	case <-ctx.Done():
	case <-time.After(fleetWait):
	}
	return printFleet(cmd.OutOrStdout(), st.coord.Snapshot())
}

// printFleet writes one row per vehicle, ordered by system id. Unknown
// values print as "-".
func printFleet(w io.Writer, snap map[uint8]fleet.Status) error {
	ids := make([]uint8, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYSID\tMODE\tARMED\tLAT\tLON\tALT(m)\tBAT(%)\tLINK")
	for _, id := range ids {
		s := snap[id]
		link := "up"
		if !s.Connected {
			link = "lost"
		}
		fmt.Fprintf(tw, "%d\t%s\t%t\t%s\t%s\t%s\t%s\t%s\n",
			id, orDash(s.FlightMode), s.Armed,
			floatOrDash(s.LatitudeDeg, 6), floatOrDash(s.LongitudeDeg, 6),
			floatOrDash(s.AltitudeM, 1), intOrDash(s.BatteryRemaining), link)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func floatOrDash(v *float64, prec int) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func intOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}
