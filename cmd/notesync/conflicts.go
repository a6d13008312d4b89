package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/notesync/notesync/internal/client/conflictstore"
)

func newConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List documents awaiting conflict resolution",
		Long: `List the named vault's pending conflicts: paths where the last sync could
not auto-merge local and remote edits (or the server could not locate a
common base) and is waiting on "notesync resolve" to decide.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			ledger, err := conflictstore.Load(conflictLedgerPath(cc.SettingsPath, cc.Flags.VaultName))
			if err != nil {
				return fmt.Errorf("loading conflict ledger: %w", err)
			}

			if cc.Flags.JSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(ledger.Pending)
			}

			if len(ledger.Pending) == 0 {
				fmt.Println("No pending conflicts.")
				return nil
			}

			rows := make([][]string, 0, len(ledger.Pending))
			for _, p := range ledger.Pending {
				reason := p.Reason
				if p.RequiresFullSync {
					reason = "requires full sync: " + reason
				}
				rows = append(rows, []string{p.Path, reason, formatTime(p.DetectedAt)})
			}

			printTable(os.Stdout, []string{"PATH", "REASON", "DETECTED"}, rows)

			return nil
		},
	}
}
