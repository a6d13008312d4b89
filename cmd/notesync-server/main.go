// Command notesync-server runs the authenticated HTTP API (C8) over the
// document store (C6) and attachment store (C7), per spec.md §6.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/notesync/notesync/internal/server/api"
	"github.com/notesync/notesync/internal/server/attachstore"
	"github.com/notesync/notesync/internal/server/config"
	"github.com/notesync/notesync/internal/server/docstore"
	"github.com/notesync/notesync/internal/server/storedb"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, listenAddr, dbPath, blobRoot, apiKey string

	cmd := &cobra.Command{
		Use:   "notesync-server",
		Short: "HTTP API server for note-sync clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			if blobRoot != "" {
				cfg.BlobRoot = blobRoot
			}
			if apiKey != "" {
				cfg.APIKey = apiKey
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to server config TOML file")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "address to listen on (overrides config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the SQLite database file (overrides config)")
	cmd.Flags().StringVar(&blobRoot, "blob-root", "", "directory for attachment blob storage (overrides config)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "bearer token clients must present (overrides config)")

	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	logger.Info("notesync-server starting", slog.String("version", version), slog.String("listen_addr", cfg.ListenAddr))

	db, err := storedb.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	docs, err := docstore.Open(ctx, db, logger)
	if err != nil {
		return fmt.Errorf("opening document store: %w", err)
	}

	attachments, err := attachstore.Open(ctx, db, cfg.BlobRoot, logger)
	if err != nil {
		return fmt.Errorf("opening attachment store: %w", err)
	}

	api.Version = version
	srv := api.New(docs, attachments, cfg.APIKey, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-sigCtx.Done():
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return httpServer.Shutdown(shutdownCtx)
	}
}
