package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/custody"
)

var accountPassword string

var accountImportCmd = &cobra.Command{
	Use:   "account-import [keyfile]",
	Short: "Register an issuer keyfile for the bridge relay",
	Long: `Register an issuer keyfile. The keyfile is checked against the password,
and the password is stored encrypted with custody.secret.`,
	Args: cobra.ExactArgs(1),
	Run:  runAccountImport,
}

func init() {
	accountImportCmd.Flags().StringVar(&accountPassword, "password", "", "keyfile password")
	_ = accountImportCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(accountImportCmd)
}

func runAccountImport(cmd *cobra.Command, args []string) {
	keyfile, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("Failed to read keyfile: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	cfg, store := openStore(ctx)
	defer func() {
		_ = store.Close()
	}()

	if cfg.Custody.Secret == "" {
		slog.Error("custody.secret is not configured")
		os.Exit(1)
	}

	signer, err := custody.Decrypt(keyfile, accountPassword)
	if err != nil {
		slog.Error("Keyfile does not open with the given password", "error", err)
		os.Exit(1)
	}
	encrypted, err := custody.EncryptPassword(cfg.Custody.Secret, accountPassword)
	if err != nil {
		slog.Error("Failed to encrypt password", "error", err)
		os.Exit(1)
	}

	err = store.SaveAccount(ctx, &domain.Account{
		IssuerAddress:     signer.Address.Hex(),
		Keyfile:           keyfile,
		EncryptedPassword: encrypted,
	})
	if err != nil {
		slog.Error("Failed to save account", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Registered issuer %s\n", signer.Address.Hex())
}
