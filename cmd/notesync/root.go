package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/notesync/notesync/internal/client/settings"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// Flags holds the root command's persistent flags, mirroring the
// teacher's root.go: --config, --vault, --json, -v/--verbose, --debug,
// -q/--quiet.
type Flags struct {
	ConfigPath string
	VaultName  string
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
	LogFile    string
}

// CLIContext bundles the resolved flags, logger, and loaded settings
// file shared by every subcommand, injected into the cobra command's
// context the way the teacher's root.go does for its own CLIContext.
type CLIContext struct {
	Flags        Flags
	Logger       *slog.Logger
	SettingsPath string
	Settings     *settings.File
}

type cliContextKeyType struct{}

var cliContextKey = cliContextKeyType{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey, cc)
}

// mustCLIContext retrieves the CLIContext installed by the root command's
// PersistentPreRunE, panicking if absent — a programmer error, not a
// runtime condition, since every subcommand hangs off the root.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey).(*CLIContext)
	if !ok {
		panic("notesync: CLIContext missing from command context")
	}
	return cc
}

func newRootCmd() *cobra.Command {
	flags := &Flags{}

	cmd := &cobra.Command{
		Use:           "notesync",
		Short:         "Sync notes with a notesync server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cc, err := buildCLIContext(flags)
			if err != nil {
				return err
			}
			cmd.SetContext(withCLIContext(cmd.Context(), cc))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to settings file (default ~/.config/notesync/config.toml)")
	cmd.PersistentFlags().StringVar(&flags.VaultName, "vault", "default", "named vault to operate on")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "emit machine-readable JSON output")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "verbose logging")
	cmd.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress status output")
	cmd.PersistentFlags().StringVar(&flags.LogFile, "log-file", "", "write logs to a rotating file instead of stderr (for --daemon)")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newPairingURICmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConflictsCmd())
	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())

	return cmd
}

func buildCLIContext(flags *Flags) (*CLIContext, error) {
	level := slog.LevelWarn
	switch {
	case flags.Debug:
		level = slog.LevelDebug
	case flags.Verbose:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var out io.Writer = os.Stderr
	jsonOutput := flags.JSON
	if flags.LogFile != "" {
		// A daemon's stderr usually isn't attached to anything; rotate to
		// disk instead so a long-running process doesn't grow one file
		// without bound.
		out = &lumberjack.Logger{
			Filename:   flags.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		jsonOutput = true
	}

	var handler slog.Handler
	if jsonOutput || (out == os.Stderr && !isatty.IsTerminal(os.Stderr.Fd())) {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	logger := slog.New(handler)

	path := flags.ConfigPath
	if path == "" {
		var err error
		path, err = settings.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolving default settings path: %w", err)
		}
	}

	f, err := settings.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	return &CLIContext{Flags: *flags, Logger: logger, SettingsPath: path, Settings: f}, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
