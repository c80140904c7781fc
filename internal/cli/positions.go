package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
)

var includeFormer bool

var positionsCmd = &cobra.Command{
	Use:   "positions [token_address]",
	Short: "List the indexed positions of a token",
	Args:  cobra.ExactArgs(1),
	Run:   runPositions,
}

func init() {
	positionsCmd.Flags().BoolVar(&includeFormer, "include-former", false, "include former holders with all-zero positions")
	rootCmd.AddCommand(positionsCmd)
}

func runPositions(cmd *cobra.Command, args []string) {
	if !domain.IsAddress(args[0]) {
		fmt.Printf("Invalid token address: %s\n", args[0])
		os.Exit(1)
	}
	token := domain.NormalizeAddress(args[0])

	ctx := context.Background()
	_, store := openStore(ctx)
	defer func() {
		_ = store.Close()
	}()

	positions, err := store.ListPositions(ctx, token, includeFormer)
	if err != nil {
		slog.Error("Failed to query positions", "error", err)
		os.Exit(1)
	}
	locked, err := store.ListLockedPositions(ctx, token)
	if err != nil {
		slog.Error("Failed to query locked positions", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ACCOUNT\tBALANCE\tEXCHANGE_BALANCE\tEXCHANGE_COMMITMENT\tPENDING_TRANSFER")
	for _, p := range positions {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n",
			p.AccountAddress, p.Balance, p.ExchangeBalance, p.ExchangeCommitment, p.PendingTransfer)
	}
	if len(locked) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, "LOCK\tACCOUNT\tVALUE")
		for _, l := range locked {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", l.LockAddress, l.AccountAddress, l.Value)
		}
	}
	_ = w.Flush()
}
