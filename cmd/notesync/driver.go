package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/notesync/notesync/internal/basestore"
	"github.com/notesync/notesync/internal/client/attachsync"
	"github.com/notesync/notesync/internal/client/conflictstore"
	"github.com/notesync/notesync/internal/client/docsync"
	"github.com/notesync/notesync/internal/client/orchestrator"
	"github.com/notesync/notesync/internal/client/resolver"
	"github.com/notesync/notesync/internal/client/settings"
	"github.com/notesync/notesync/internal/metacache"
	"github.com/notesync/notesync/internal/transport"
	"github.com/notesync/notesync/pkg/vaultfs"
)

// vaultDataDir returns the directory holding a vault's base-content
// database, next to the settings file the way the teacher keeps per-drive
// state next to its config. The conflict ledger and PID file live in their
// own sibling directories (see conflictLedgerPath and pidFilePathFor).
func vaultDataDir(settingsPath, vaultName string) string {
	return filepath.Join(filepath.Dir(settingsPath), "vaults", vaultName)
}

// conflictLedgerPath returns the path to a vault's pending-conflict ledger.
func conflictLedgerPath(settingsPath, vaultName string) string {
	return conflictstore.DefaultPath(filepath.Dir(settingsPath), vaultName)
}

// pidFilePathFor returns the PID file a running "sync --daemon" for vaultName
// writes, mirroring the teacher's config.PIDFilePath() but scoped per vault
// instead of per drive.
func pidFilePathFor(settingsPath, vaultName string) string {
	return filepath.Join(filepath.Dir(settingsPath), "run", vaultName+".pid")
}

// loadVault resolves the named vault's settings, erroring out with actionable
// guidance if it has never been configured via "notesync login".
func loadVault(cc *CLIContext) (settings.VaultSettings, error) {
	v, ok := cc.Settings.Vault(cc.Flags.VaultName)
	if !ok || v.ServerURL == "" {
		return settings.VaultSettings{}, fmt.Errorf("vault %q is not configured, run %q first", cc.Flags.VaultName, "notesync login")
	}

	return v, nil
}

// buildOrchestrator wires an Orchestrator for the named vault out of its
// persisted settings: transport, vault filesystem, metadata cache,
// base-content store, and a conflict resolver stack (ledger-backed, falling
// back to an interactive TTY prompt only when stdout is a terminal).
func buildOrchestrator(ctx context.Context, cc *CLIContext) (*orchestrator.Orchestrator, settings.VaultSettings, func(), error) {
	v, err := loadVault(cc)
	if err != nil {
		return nil, settings.VaultSettings{}, nil, err
	}

	tr := transport.New(v.ServerURL, v.APIKey, transport.WithLogger(cc.Logger))

	files := vaultfs.New(v.LocalPath)

	meta := metacache.New(v.MetadataCache, v.AttachmentCache)

	dataDir := vaultDataDir(cc.SettingsPath, cc.Flags.VaultName)
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, settings.VaultSettings{}, nil, fmt.Errorf("creating vault data directory: %w", err)
	}

	base, err := basestore.Open(ctx, filepath.Join(dataDir, "basecontent.db"), cc.Logger)
	if err != nil {
		return nil, settings.VaultSettings{}, nil, fmt.Errorf("opening base-content store: %w", err)
	}

	ledgerPath := conflictLedgerPath(cc.SettingsPath, cc.Flags.VaultName)

	ledger, err := conflictstore.Load(ledgerPath)
	if err != nil {
		base.Close()
		return nil, settings.VaultSettings{}, nil, fmt.Errorf("loading conflict ledger: %w", err)
	}

	var fallback resolver.Resolver
	if isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd()) {
		fallback = resolver.NewTTY(os.Stdin, os.Stdout)
	}

	res := ledger.Resolver(fallback, func() int64 { return time.Now().UnixMilli() })

	docs := docsync.New(tr, files, meta, base, res, v.VaultID, cc.Logger)
	attach := attachsync.New(tr, files, meta, v.VaultID, cc.Logger)

	reset := func(context.Context) error {
		ledger.Pending = nil
		ledger.Decisions = nil
		return ledger.Save(ledgerPath)
	}

	orch := orchestrator.New(docs, attach, tr, meta, cc.Settings, cc.SettingsPath, cc.Flags.VaultName, reset, cc.Logger)

	cleanup := func() {
		if err := ledger.Save(ledgerPath); err != nil {
			cc.Logger.Warn("saving conflict ledger", "error", err)
		}
		base.Close()
	}

	return orch, v, cleanup, nil
}
