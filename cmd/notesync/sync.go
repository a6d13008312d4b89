package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/notesync/notesync/internal/client/orchestrator"
	"github.com/notesync/notesync/internal/client/settings"
)

func newSyncCmd() *cobra.Command {
	var daemon bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle against the configured server",
		Long: `Run a single pull/push cycle for the named vault: pull remote document and
attachment changes since the last cursor, reconcile them against local edits,
then push local changes back.

With --daemon, runs continuously instead, until interrupted: a periodic timer
(--interval, default 5m), plus an on-save watch of the vault directory when
the vault has sync-on-save enabled, and one immediate cycle at start when it
has sync-on-startup enabled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			if daemon {
				return runSyncDaemon(cmd.Context(), cc, interval)
			}
			return runSyncOnce(cmd.Context(), cc)
		},
	}

	cmd.Flags().BoolVar(&daemon, "daemon", false, "run continuously instead of a single cycle")
	cmd.Flags().DurationVar(&interval, "interval", 0, "auto-sync poll interval in daemon mode (default 5m)")

	return cmd
}

func runSyncOnce(ctx context.Context, cc *CLIContext) error {
	orch, v, cleanup, err := buildOrchestrator(ctx, cc)
	if err != nil {
		return err
	}
	defer cleanup()

	if v.Paused {
		cc.Statusf("Vault %q is paused, skipping (run 'notesync resume' to re-enable)\n", cc.Flags.VaultName)
		return nil
	}

	result, err := orch.Sync(ctx)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	printSyncResult(cc, result)

	if result.Docs.Errors > 0 || result.Attach.Errors > 0 {
		return fmt.Errorf("sync completed with %d document and %d attachment errors",
			result.Docs.Errors, result.Attach.Errors)
	}

	return nil
}

func runSyncDaemon(parentCtx context.Context, cc *CLIContext, interval time.Duration) error {
	v, err := loadVault(cc)
	if err != nil {
		return err
	}

	pidPath := pidFilePathFor(cc.SettingsPath, cc.Flags.VaultName)

	cleanupPID, err := writePIDFile(pidPath)
	if err != nil {
		return err
	}
	defer cleanupPID()

	ctx := shutdownContext(parentCtx, cc.Logger)

	orch, _, cleanup, err := buildOrchestrator(ctx, cc)
	if err != nil {
		return err
	}
	defer cleanup()

	if v.Paused {
		orch.Pause()
	}

	hups := reloadSignal()
	go func() {
		for range hups {
			sf, err := settings.Load(cc.SettingsPath)
			if err != nil {
				cc.Logger.Warn("daemon: reloading settings on SIGHUP", "error", err)
				continue
			}
			vv, ok := sf.Vault(cc.Flags.VaultName)
			if !ok {
				cc.Logger.Warn("daemon: reloading settings on SIGHUP", "error", "vault missing from settings file")
				continue
			}
			if vv.Paused {
				orch.Pause()
			} else {
				orch.Resume()
			}
			cc.Logger.Info("daemon: reloaded settings on SIGHUP", "paused", vv.Paused)
		}
	}()

	cc.Statusf("notesync: daemon started for vault %q (pid %d)\n", cc.Flags.VaultName, os.Getpid())

	if v.SyncOnStartup && !v.Paused {
		if _, err := orch.Sync(ctx); err != nil {
			cc.Logger.Error("daemon: startup sync failed", "error", err)
		}
	}

	watchRoot := ""
	if v.SyncOnSave {
		watchRoot = v.LocalPath
	}

	return orch.RunDaemon(ctx, interval, watchRoot)
}

func printSyncResult(cc *CLIContext, result orchestrator.Result) {
	if result.NoChanges {
		cc.Statusf("No changes\n")
		return
	}

	cc.Statusf("Sync complete: docs pulled=%d pushed=%d conflicts=%d errors=%d; attachments pushed=%d reused=%d errors=%d\n",
		result.Docs.Pulled, result.Docs.Pushed, result.Docs.Conflicts, result.Docs.Errors,
		result.Attach.Pushed, result.Attach.Reused, result.Attach.Errors)
}
