package scenarios

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilianp07/skylink/core/fleet"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no scenarios found")
	}
	for _, f := range files {
		sc, err := Load(f)
		if err != nil {
			t.Fatalf("load %s: %v", f, err)
		}
		t.Run(sc.Name, func(t *testing.T) {
			fleet.ResetMetrics(nil)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			res, err := Run(ctx, sc, Timing)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if err := sc.Check(res); err != nil {
				t.Errorf("%s: %v", sc.Name, err)
			}
		})
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Load("no-file.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
	cases := map[string]string{
		"syntax":     ":",
		"no name":    "command: {kind: arm}\n",
		"no kind":    "name: x\n",
		"bad error":  "name: x\ncommand: {kind: arm}\nexpected: {error: boom}\n",
		"bad result": "name: x\ncommand: {kind: arm}\nvehicles: [{sys_id: 1, final: LATER}]\n",
		"strategy":   "name: x\ncommand: {kind: arm}\nvehicles: [{sys_id: 1, strategy: chaotic}]\n",
		"same link":  "name: x\ncommand: {kind: arm}\nvehicles: [{sys_id: 1, links: [a]}, {sys_id: 2, links: [a]}]\n",
	}
	for name, data := range cases {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestCheckReportsMismatch(t *testing.T) {
	three := 3
	sc := &Scenario{Name: "x", Expected: Expected{Outcome: "ok", ItemsSent: &three, Route: "a", NoFramesSent: true}}
	if err := sc.Check(&Result{Outcome: "ok", ItemsSent: 3, Route: "a"}); err != nil {
		t.Fatalf("unexpected mismatch: %v", err)
	}
	if err := sc.Check(&Result{Outcome: "error", Err: fleet.ErrProtocolTimeout, ItemsSent: 2, Route: "b", FramesSent: 1}); err == nil {
		t.Fatal("expected mismatch")
	}
}
