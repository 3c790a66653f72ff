package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/skylink/core/fleet"
	"github.com/kilianp07/skylink/core/mission"
)

var missionCmd = &cobra.Command{
	Use:   "mission",
	Short: "Mission related commands",
}

var missionUploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a mission to one vehicle",
	RunE:  runMissionUpload,
}

var missionExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a plan or KML file as a QGC WPL 110 mission",
	RunE:  runMissionExport,
}

var missionFlags struct {
	sysID      uint8
	kml        string
	plan       string
	qgc        string
	start      bool
	takeoffAlt float64
	wait       time.Duration
	out        string
}

func init() {
	f := missionUploadCmd.Flags()
	f.Uint8Var(&missionFlags.sysID, "sys-id", 1, "target system id")
	f.StringVar(&missionFlags.kml, "kml", "", "KML file with the waypoints")
	f.StringVar(&missionFlags.plan, "plan", "", "YAML or JSON plan file")
	f.StringVar(&missionFlags.qgc, "qgc", "", "QGC WPL 110 mission file")
	f.BoolVar(&missionFlags.start, "start", false, "arm, take off and start the mission after the upload")
	f.Float64Var(&missionFlags.takeoffAlt, "takeoff-alt", 30, "takeoff altitude in metres")
	f.DurationVar(&missionFlags.wait, "wait", 5*time.Second, "how long to wait for the vehicle")
	missionUploadCmd.MarkFlagsMutuallyExclusive("kml", "plan", "qgc")
	missionUploadCmd.MarkFlagsOneRequired("kml", "plan", "qgc")

	e := missionExportCmd.Flags()
	e.StringVar(&missionFlags.plan, "plan", "", "YAML or JSON plan file")
	e.StringVar(&missionFlags.kml, "kml", "", "KML file with the waypoints")
	e.StringVar(&missionFlags.out, "out", "", "output file, stdout when empty")
	missionExportCmd.MarkFlagsMutuallyExclusive("kml", "plan")
	missionExportCmd.MarkFlagsOneRequired("kml", "plan")

	missionCmd.AddCommand(missionUploadCmd, missionExportCmd)
	rootCmd.AddCommand(missionCmd)
}

// loadItems builds the mission from whichever source flag is set. The
// second result is the takeoff altitude named by a plan, zero otherwise.
func loadItems(kml, plan, qgc string) ([]mission.Item, float64, error) {
	switch {
	case kml != "":
		points, err := mission.ParseKMLFile(kml)
		if err != nil {
			return nil, 0, err
		}
		name := strings.TrimSuffix(filepath.Base(kml), filepath.Ext(kml))
		items, err := mission.PlanFromPoints(name, points).Items()
		return items, 0, err
	case plan != "":
		p, err := mission.LoadPlan(plan)
		if err != nil {
			return nil, 0, err
		}
		items, err := p.Items()
		return items, p.TakeoffAlt(), err
	case qgc != "":
		f, err := os.Open(qgc)
		if err != nil {
			return nil, 0, err
		}
		defer f.Close()
		items, err := mission.ReadQGC(f)
		return items, 0, err
	default:
		return nil, 0, mission.ErrEmptyMission
	}
}

func runMissionUpload(cmd *cobra.Command, args []string) error {
	items, planAlt, err := loadItems(missionFlags.kml, missionFlags.plan, missionFlags.qgc)
	if err != nil {
		return err
	}
	alt := missionFlags.takeoffAlt
	if planAlt > 0 && !cmd.Flags().Changed("takeoff-alt") {
		alt = planAlt
	}

	ctx, stop := signalContext()
	defer stop()
	st, err := openStation(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = st.close() }()

	sysID := missionFlags.sysID
	if !st.waitVehicle(ctx, sysID, missionFlags.wait) {
		return fmt.Errorf("%w: sys_id %d not heard within %s", fleet.ErrUnknownVehicle, sysID, missionFlags.wait)
	}
	out := cmd.OutOrStdout()
	sum := mission.Summarize(items)
	fmt.Fprintf(out, "uploading %d items (%.0f m) to sys %d\n", sum.Items, sum.PathM, sysID)
	params := map[string]any{"mission_items": mission.Specs(items)}
	if _, err := st.coord.SendCommand(ctx, sysID, fleet.CmdUploadMission, params); err != nil {
		return err
	}
	fmt.Fprintln(out, "mission accepted")
	if !missionFlags.start {
		return nil
	}
	res, err := st.coord.SendCommand(ctx, sysID, fleet.CmdArmAndStartMission, map[string]any{"takeoff_altitude": alt})
	if err != nil {
		return err
	}
	if ok, _ := res.(bool); !ok {
		return errors.New("arm and start sequence failed, see the log")
	}
	fmt.Fprintln(out, "mission started")
	return nil
}

func runMissionExport(cmd *cobra.Command, args []string) error {
	items, _, err := loadItems(missionFlags.kml, missionFlags.plan, "")
	if err != nil {
		return err
	}
	if missionFlags.out == "" {
		return mission.WriteQGC(cmd.OutOrStdout(), items)
	}
	f, err := os.Create(missionFlags.out)
	if err != nil {
		return err
	}
	if err := mission.WriteQGC(f, items); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
