package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/himanstore/dmpilot/internal/config"
	"github.com/himanstore/dmpilot/internal/ingest"
	"github.com/himanstore/dmpilot/internal/store/db"
)

// ingestCmd reads inbound message events as JSON lines on stdin and records
// them. The webhook receiver (or a backfill script) pipes events here; the
// worker picks the conversations up on its next scan.
func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Record inbound message events from stdin (one JSON object per line)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			setupLogging(cfg.LogLevel)

			stores, conn, err := db.NewStores(cfg.Database.DSN)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer conn.Close()

			ing := ingest.New(*stores)
			ctx := context.Background()

			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			recorded, failed := 0, 0
			for scanner.Scan() {
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}
				var msg ingest.InboundMessage
				if err := json.Unmarshal(line, &msg); err != nil {
					slog.Error("bad event line", "error", err)
					failed++
					continue
				}
				if err := ing.Record(ctx, msg); err != nil {
					slog.Error("record failed", "conversation", msg.ConversationID, "error", err)
					failed++
					continue
				}
				recorded++
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			slog.Info("ingest complete", "recorded", recorded, "failed", failed)
			return nil
		},
	}
}
