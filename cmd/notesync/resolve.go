package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notesync/notesync/internal/client/conflictstore"
	"github.com/notesync/notesync/internal/client/resolver"
)

func newResolveCmd() *cobra.Command {
	var useLocal, useRemote, fullReset, cancel bool

	cmd := &cobra.Command{
		Use:   "resolve <path>",
		Short: "Queue a decision for a pending conflict",
		Long: `Queue one of --use-local, --use-remote, --full-reset, or --cancel for the
named pending conflict. The decision is picked up by the resolver on the
next "notesync sync" run for that path — it is not applied immediately.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			path := args[0]

			chosen := 0
			for _, b := range []bool{useLocal, useRemote, fullReset, cancel} {
				if b {
					chosen++
				}
			}
			if chosen != 1 {
				return fmt.Errorf("exactly one of --use-local, --use-remote, --full-reset, or --cancel is required")
			}

			decision := resolver.Cancel
			switch {
			case useLocal:
				decision = resolver.UseLocal
			case useRemote:
				decision = resolver.UseRemote
			case fullReset:
				decision = resolver.FullReset
			}

			ledgerPath := conflictLedgerPath(cc.SettingsPath, cc.Flags.VaultName)

			ledger, err := conflictstore.Load(ledgerPath)
			if err != nil {
				return fmt.Errorf("loading conflict ledger: %w", err)
			}

			found := false
			for _, p := range ledger.Pending {
				if p.Path == path {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("no pending conflict for %q (run 'notesync conflicts' to list them)", path)
			}

			ledger.QueueDecision(path, decision)

			if err := ledger.Save(ledgerPath); err != nil {
				return fmt.Errorf("saving conflict ledger: %w", err)
			}

			cc.Statusf("Queued %s for %q; run 'notesync sync' to apply\n", decision, path)

			return nil
		},
	}

	cmd.Flags().BoolVar(&useLocal, "use-local", false, "keep the local file and force-push it")
	cmd.Flags().BoolVar(&useRemote, "use-remote", false, "overwrite the local file with the server's content")
	cmd.Flags().BoolVar(&fullReset, "full-reset", false, "escalate to a full resync (clears cursors and caches)")
	cmd.Flags().BoolVar(&cancel, "cancel", false, "leave the conflict pending")

	return cmd
}
