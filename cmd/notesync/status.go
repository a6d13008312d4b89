package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/notesync/notesync/internal/client/conflictstore"
	"github.com/notesync/notesync/internal/transport"
	"github.com/notesync/notesync/internal/wire"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show a vault's cursors, pause state, and server tip",
		Long: `Display the named vault's last-synced cursors and local pause state, plus
the server's current change-feed tips (via GET /api/status) so you can see at
a glance whether a sync would have anything to do.`,
		RunE: runStatus,
	}
}

type statusJSON struct {
	Vault             string `json:"vault"`
	ServerURL         string `json:"server_url"`
	VaultID           string `json:"vault_id"`
	Paused            bool   `json:"paused"`
	LastSync          int64  `json:"last_sync"`
	LastSeq           int64  `json:"last_seq"`
	LastAttachmentSeq int64  `json:"last_attachment_seq"`
	PendingConflicts  int    `json:"pending_conflicts"`
	ServerReachable   bool   `json:"server_reachable"`
	ServerLastSeq     int64  `json:"server_last_seq,omitempty"`
	ServerLastAttSeq  int64  `json:"server_last_attachment_seq,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	v, err := loadVault(cc)
	if err != nil {
		return err
	}

	out := statusJSON{
		Vault:             cc.Flags.VaultName,
		ServerURL:         v.ServerURL,
		VaultID:           v.VaultID,
		Paused:            v.Paused,
		LastSync:          v.LastSync,
		LastSeq:           v.LastSeq,
		LastAttachmentSeq: v.LastAttachmentSeq,
	}

	ledger, err := conflictstore.Load(conflictLedgerPath(cc.SettingsPath, cc.Flags.VaultName))
	if err == nil {
		out.PendingConflicts = len(ledger.Pending)
	}

	if status, ok := fetchRemoteStatus(cmd.Context(), v.ServerURL, v.APIKey, v.VaultID, cc); ok {
		out.ServerReachable = true
		out.ServerLastSeq = status.LastSeq
		out.ServerLastAttSeq = status.LastAttachmentSeq
	}

	if cc.Flags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	printStatusText(out)

	return nil
}

func fetchRemoteStatus(ctx context.Context, serverURL, apiKey, vaultID string, cc *CLIContext) (wire.StatusResponse, bool) {
	tr := transport.New(serverURL, apiKey, transport.WithLogger(cc.Logger))

	path := fmt.Sprintf("/api/status?vault_id=%s", url.QueryEscape(vaultID))

	resp, err := tr.Do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return wire.StatusResponse{}, false
	}
	defer resp.Body.Close()

	var out wire.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return wire.StatusResponse{}, false
	}

	return out, true
}

func printStatusText(s statusJSON) {
	fmt.Printf("Vault:    %s (%s)\n", s.Vault, s.ServerURL)
	fmt.Printf("Paused:   %t\n", s.Paused)
	fmt.Printf("LastSync: %s\n", formatTime(s.LastSync))
	fmt.Printf("Cursors:  docs=%d attachments=%d\n", s.LastSeq, s.LastAttachmentSeq)

	if s.PendingConflicts > 0 {
		fmt.Printf("Pending conflicts: %d (run 'notesync conflicts')\n", s.PendingConflicts)
	}

	if s.ServerReachable {
		behindDocs := s.ServerLastSeq - s.LastSeq
		behindAtt := s.ServerLastAttSeq - s.LastAttachmentSeq
		fmt.Printf("Server:   reachable, last_seq=%d (behind by %d) last_attachment_seq=%d (behind by %d)\n",
			s.ServerLastSeq, behindDocs, s.ServerLastAttSeq, behindAtt)
	} else {
		fmt.Printf("Server:   unreachable\n")
	}
}
