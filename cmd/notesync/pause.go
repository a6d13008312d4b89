package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause auto-sync for a vault",
		Long: `Mark the named vault as paused: a running "sync --daemon" rejects its timer
and on-save triggers, and a one-shot "notesync sync" skips the vault until
"notesync resume". If a daemon is running for this vault, it is sent SIGHUP
to pick up the change immediately.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			v, err := loadVault(cc)
			if err != nil {
				return err
			}

			v.Paused = true
			cc.Settings.SetVault(cc.Flags.VaultName, v)

			if err := cc.Settings.Save(cc.SettingsPath); err != nil {
				return fmt.Errorf("saving settings: %w", err)
			}

			cc.Statusf("Vault %q paused\n", cc.Flags.VaultName)
			notifyDaemon(cc)

			return nil
		},
	}
}

// notifyDaemon attempts to send SIGHUP to a running "sync --daemon" for
// this vault. Non-fatal: if none is running, the change takes effect on
// the daemon's next start.
func notifyDaemon(cc *CLIContext) {
	pidPath := pidFilePathFor(cc.SettingsPath, cc.Flags.VaultName)

	if err := sendSIGHUP(pidPath); err != nil {
		cc.Statusf("Note: %v — change takes effect on next daemon start\n", err)
	} else {
		cc.Statusf("Notified running daemon\n")
	}
}
