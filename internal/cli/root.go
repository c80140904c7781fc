package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/control"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/config"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/storage"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "prime",
	Short: "Security token position indexer and transaction relay",
	Long: `prime keeps account positions of tokenized securities in line with the chain
and relays pre-authorized transactions, including their cross-chain bridge counterparts.`,
	Run: runPrime,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the enabled services (same as no subcommand)",
	Run:   runPrime,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(runCmd)
}

// loadConfig reads .env and the config file and installs the logger.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg
}

func runPrime(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, db, err := control.OpenStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}

	var ledgers control.Ledgers
	if cfg.Indexer.Enabled || cfg.Relay.Enabled || cfg.Bridge.Enabled {
		ledgers, err = control.DialLedgers(ctx, cfg.Chains, slog.Default())
		if err != nil {
			slog.Error("Failed to connect to chain", "error", err)
			os.Exit(1)
		}
	}

	app, err := control.NewApp(cfg, store, db, ledgers)
	if err != nil {
		slog.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start services", "error", err)
		os.Exit(1)
	}

	slog.Info("Services started", "config", cfgPath, "services", len(app.Loops()))

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}

// openStore loads the config and opens the configured store for the
// one-shot commands.
func openStore(ctx context.Context) (*config.AppConfig, storage.Store) {
	cfg := loadConfig()
	store, _, err := control.OpenStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	return cfg, store
}
