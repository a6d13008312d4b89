package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume auto-sync for a paused vault",
		Long: `Clear the named vault's paused flag. If a "sync --daemon" is running for
this vault, it is sent SIGHUP to pick up the change immediately.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			v, err := loadVault(cc)
			if err != nil {
				return err
			}

			if !v.Paused {
				cc.Statusf("Vault %q is not paused\n", cc.Flags.VaultName)
				return nil
			}

			v.Paused = false
			cc.Settings.SetVault(cc.Flags.VaultName, v)

			if err := cc.Settings.Save(cc.SettingsPath); err != nil {
				return fmt.Errorf("saving settings: %w", err)
			}

			cc.Statusf("Vault %q resumed\n", cc.Flags.VaultName)
			notifyDaemon(cc)

			return nil
		},
	}
}
