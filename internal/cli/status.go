package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show block cursors and relay queue depths",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	_, store := openStore(ctx)
	defer func() {
		_ = store.Close()
	}()

	cursors, err := store.ListCursors(ctx)
	if err != nil {
		slog.Error("Failed to query cursors", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CURSOR\tBLOCK\tUPDATED")
	for _, c := range cursors {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", c.Name, c.LatestBlockNumber, c.UpdatedAt.Format(time.RFC3339))
	}
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, "QUEUE\tPENDING\tSENT")
	for _, q := range []domain.Queue{domain.QueueRelay, domain.QueueBridge} {
		pending, err := store.ListByStatus(ctx, q, domain.TxStatusPending)
		if err != nil {
			slog.Error("Failed to query queue", "queue", q, "error", err)
			os.Exit(1)
		}
		sent, err := store.ListByStatus(ctx, q, domain.TxStatusSent)
		if err != nil {
			slog.Error("Failed to query queue", "queue", q, "error", err)
			os.Exit(1)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\n", q, len(pending), len(sent))
	}
	_ = w.Flush()
}
