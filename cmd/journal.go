package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/skylink/core/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Command journal",
}

var journalQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Print journal records as JSON lines",
	RunE:  runJournalQuery,
}

var journalFlags struct {
	sysID   uint8
	kind    string
	outcome string
	since   time.Duration
}

func init() {
	f := journalQueryCmd.Flags()
	f.Uint8Var(&journalFlags.sysID, "sys-id", 0, "only this system id")
	f.StringVar(&journalFlags.kind, "kind", "", "only this command kind")
	f.StringVar(&journalFlags.outcome, "outcome", "", "only this outcome (ok, failed, error)")
	f.DurationVar(&journalFlags.since, "since", 0, "only records newer than this")
	journalCmd.AddCommand(journalQueryCmd)
	rootCmd.AddCommand(journalCmd)
}

func runJournalQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := journal.Open(cfg.Journal)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	defer store.Close()

	q := journal.Query{SysID: journalFlags.sysID, Kind: journalFlags.kind, Outcome: journalFlags.outcome}
	if journalFlags.since > 0 {
		q.Start = time.Now().Add(-journalFlags.since)
	}
	recs, err := store.Query(context.Background(), q)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
