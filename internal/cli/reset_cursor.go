package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/indexing/indexer"
)

var cursorName string

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [block_height]",
	Short: "Reset the indexer cursor to a given block height",
	Long: `Reset the indexer cursor. The next cycle starts at block_height + 1.
Positions are re-queried from the chain, so moving the cursor back is safe.`,
	Args: cobra.ExactArgs(1),
	Run:  runResetCursor,
}

func init() {
	resetCursorCmd.Flags().StringVar(&cursorName, "name", indexer.DefaultCursorName, "cursor name")
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	height, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid block height: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	_, store := openStore(ctx)
	defer func() {
		_ = store.Close()
	}()

	if err := store.ResetCursor(ctx, cursorName, height); err != nil {
		slog.Error("Failed to reset cursor", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset cursor %s to block %d\n", cursorName, height)
}
