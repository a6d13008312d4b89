package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notesync/notesync/internal/setupuri"
)

func newLoginCmd() *cobra.Command {
	var serverURL, apiKey, vaultID, localPath, setupURI, passphrase string
	var syncAttachments, autoSync, syncOnSave, syncOnStartup bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Configure a vault's connection to a notesync server",
		Long: `Configure the named vault (--vault, default "default") to sync against a
server: either pass --server/--api-key/--local-path directly, or pair with an
existing device's "notesync pairing-uri" output via --setup-uri and
--passphrase.

Running login again for an already-configured vault updates its connection
details without touching its cursors or caches.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			v, _ := cc.Settings.Vault(cc.Flags.VaultName)

			if setupURI != "" {
				if passphrase == "" {
					return fmt.Errorf("--passphrase is required to decode --setup-uri")
				}

				payload, err := setupuri.Decode(setupURI, passphrase)
				if err != nil {
					return fmt.Errorf("decoding setup URI: %w", err)
				}

				v.ServerURL = payload.ServerURL
				v.APIKey = payload.APIKey
				v.VaultID = payload.VaultID
			}

			if serverURL != "" {
				v.ServerURL = serverURL
			}
			if apiKey != "" {
				v.APIKey = apiKey
			}
			if vaultID != "" {
				v.VaultID = vaultID
			}
			if localPath != "" {
				v.LocalPath = localPath
			}

			if v.VaultID == "" {
				v.VaultID = "default"
			}

			if v.ServerURL == "" || v.APIKey == "" || v.LocalPath == "" {
				return fmt.Errorf("--server, --api-key, and --local-path (or an equivalent --setup-uri) are all required")
			}

			if cmd.Flags().Changed("auto-sync") {
				v.AutoSync = autoSync
			}
			if cmd.Flags().Changed("sync-on-save") {
				v.SyncOnSave = syncOnSave
			}
			if cmd.Flags().Changed("sync-on-startup") {
				v.SyncOnStartup = syncOnStartup
			}
			if cmd.Flags().Changed("sync-attachments") {
				v.SyncAttachments = syncAttachments
			}

			cc.Settings.SetVault(cc.Flags.VaultName, v)

			if err := cc.Settings.Save(cc.SettingsPath); err != nil {
				return fmt.Errorf("saving settings: %w", err)
			}

			cc.Statusf("Vault %q configured against %s (vault_id=%s)\n", cc.Flags.VaultName, v.ServerURL, v.VaultID)

			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "server base URL, e.g. https://notes.example.com")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "bearer token presented to the server")
	cmd.Flags().StringVar(&vaultID, "vault-id", "", "vault namespace on the server (default \"default\")")
	cmd.Flags().StringVar(&localPath, "local-path", "", "local directory to sync")
	cmd.Flags().StringVar(&setupURI, "setup-uri", "", "pairing URI produced by \"notesync pairing-uri\"")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "passphrase protecting --setup-uri")
	cmd.Flags().BoolVar(&autoSync, "auto-sync", false, "record the auto-sync preference (the daemon's periodic timer runs whether or not it is set)")
	cmd.Flags().BoolVar(&syncOnSave, "sync-on-save", false, "enable the daemon's on-save debounced trigger")
	cmd.Flags().BoolVar(&syncOnStartup, "sync-on-startup", false, "sync once when the daemon starts")
	cmd.Flags().BoolVar(&syncAttachments, "sync-attachments", false, "also sync binary attachments")

	return cmd
}

func newPairingURICmd() *cobra.Command {
	var passphrase string

	cmd := &cobra.Command{
		Use:   "pairing-uri",
		Short: "Print a setup URI for pairing another device to this vault",
		Long: `Encode the named vault's server URL, API key, and vault ID into a
passphrase-protected pairing URI, for "notesync login --setup-uri" on another
device (§6's AES-256-GCM/PBKDF2 setup-sync-workers format).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if passphrase == "" {
				return fmt.Errorf("--passphrase is required")
			}

			v, err := loadVault(cc)
			if err != nil {
				return err
			}

			uri, err := setupuri.Encode(setupuri.Payload{
				ServerURL: v.ServerURL,
				APIKey:    v.APIKey,
				VaultID:   v.VaultID,
			}, passphrase)
			if err != nil {
				return fmt.Errorf("encoding setup URI: %w", err)
			}

			fmt.Println(uri)

			return nil
		},
	}

	cmd.Flags().StringVar(&passphrase, "passphrase", "", "passphrase to protect the generated URI")

	return cmd
}
