// Package control wires the services together and manages their lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/config"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/worker"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/indexing/emitter"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/indexing/health"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/indexing/indexer"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/chain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/chain/evm"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/custody"
	redisclient "github.com/BoostryJP/ibet-Prime-sub007/internal/infra/redis"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/storage"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/storage/memory"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/storage/postgres"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/relay"
)

// App owns the store, the ledgers and every background loop.
type App struct {
	store        storage.Store
	db           *postgres.DB // nil in memory mode
	redisClient  *redisclient.Client
	sink         emitter.Emitter // nil when the notifier is disabled
	loops        []*worker.Loop
	healthServer *health.Server
	log          *slog.Logger
	wg           sync.WaitGroup
}

// Ledgers are the chain clients the services use. Tests inject fakes.
type Ledgers struct {
	Ibet     chain.Ledger
	Ethereum chain.Ledger
}

// OpenStore returns the PostgreSQL store, migrated, when a database URL is
// configured and the in-memory store otherwise.
func OpenStore(ctx context.Context, cfg postgres.Config) (storage.Store, *postgres.DB, error) {
	if cfg.URL == "" {
		slog.Info("Using Memory storage")
		return memory.NewMemoryStorage(), nil, nil
	}
	db, err := postgres.NewDB(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init db: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	slog.Info("Using PostgreSQL storage")
	return postgres.NewStore(db), db, nil
}

// DialLedgers connects to the configured chains.
func DialLedgers(ctx context.Context, cfg config.ChainsConfig, log *slog.Logger) (Ledgers, error) {
	ibet, err := evm.Dial(ctx, evmConfig(cfg.Ibet), log)
	if err != nil {
		return Ledgers{}, fmt.Errorf("failed to dial %s: %w", cfg.Ibet.Name, err)
	}
	if cfg.Ethereum.RPCURL == cfg.Ibet.RPCURL && cfg.Ethereum.ChainID == cfg.Ibet.ChainID {
		return Ledgers{Ibet: ibet, Ethereum: ibet}, nil
	}
	eth, err := evm.Dial(ctx, evmConfig(cfg.Ethereum), log)
	if err != nil {
		return Ledgers{}, fmt.Errorf("failed to dial %s: %w", cfg.Ethereum.Name, err)
	}
	return Ledgers{Ibet: ibet, Ethereum: eth}, nil
}

func evmConfig(c config.ChainConfig) evm.Config {
	return evm.Config{Name: c.Name, RPCURL: c.RPCURL, ChainID: c.ChainID, ReceiptTimeout: c.ReceiptTimeout}
}

// NewApp builds the enabled services over store and ledgers.
func NewApp(cfg *config.AppConfig, store storage.Store, db *postgres.DB, ledgers Ledgers) (*App, error) {
	log := slog.Default()
	app := &App{store: store, db: db, log: log}

	var guard worker.Guard
	if cfg.Redis.URL != "" {
		owner, _ := os.Hostname()
		client, err := redisclient.NewClient(cfg.Redis, owner+"-"+uuid.NewString())
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		app.redisClient = client
		guard = client
	}

	var (
		ix     *indexer.Indexer
		queues []domain.Queue
	)

	if cfg.Indexer.Enabled {
		ix = indexer.New(indexer.Config{
			CursorName:    cfg.Indexer.CursorName,
			StartBlock:    cfg.Indexer.StartBlock,
			MaxBlockRange: cfg.Indexer.MaxBlockRange,
			Concurrency:   cfg.Indexer.Concurrency,
		}, ledgers.Ibet, store, log)
		app.loops = append(app.loops, worker.NewLoop(worker.Config{
			Name:     "indexer",
			Interval: cfg.Indexer.Interval,
			Timeout:  cfg.Indexer.Timeout,
		}, ix.SyncNewLogs, guard, log))
	}

	if cfg.Relay.Enabled {
		signer, err := custody.LoadKeyfile(cfg.Relay.Keyfile, cfg.Relay.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to load relayer key: %w", err)
		}
		r := relay.New(relay.Config{
			Queue:         domain.QueueRelay,
			Confirmations: cfg.Relay.Confirmations,
			Forward:       cfg.Relay.Forward,
		}, ledgers.Ethereum, store, custody.NewStaticKey(signer), log)
		app.loops = append(app.loops, worker.NewLoop(worker.Config{
			Name:     "relay",
			Interval: cfg.Relay.Interval,
			Timeout:  cfg.Relay.Timeout,
		}, r.SendPendingTransactions, guard, log))
		queues = append(queues, domain.QueueRelay)
		log.Info("Relay configured", "relayer", signer.Address.Hex())
	}

	if cfg.Bridge.Enabled {
		keys, err := custody.NewIssuerKeys(store, cfg.Custody.Secret, cfg.Bridge.KeyCacheSize, log)
		if err != nil {
			return nil, err
		}
		b := relay.New(relay.Config{
			Queue:         domain.QueueBridge,
			Confirmations: cfg.Bridge.Confirmations,
		}, ledgers.Ibet, store, keys, log)
		app.loops = append(app.loops, worker.NewLoop(worker.Config{
			Name:     "bridge",
			Interval: cfg.Bridge.Interval,
			Timeout:  cfg.Bridge.Timeout,
		}, b.SendPendingTransactions, guard, log))
		queues = append(queues, domain.QueueBridge)
	}

	if cfg.Notifier.Enabled {
		var out emitter.Emitter
		switch cfg.Notifier.Sink {
		case "redis":
			if app.redisClient == nil {
				return nil, fmt.Errorf("redis sink requires redis.url")
			}
			out = emitter.NewRedisEmitter(app.redisClient)
		default:
			out = emitter.NewLogEmitter(log)
		}
		app.sink = out
		var head emitter.HeadSource
		if ledgers.Ibet != nil {
			head = ledgers.Ibet
		}
		outbox := emitter.NewOutbox(emitter.OutboxConfig{
			BatchSize:     cfg.Notifier.BatchSize,
			Confirmations: cfg.Notifier.Confirmations,
		}, store, out, head, log)
		app.loops = append(app.loops, worker.NewLoop(worker.Config{
			Name:     "notifier",
			Interval: cfg.Notifier.Interval,
		}, outbox.Drain, guard, log))
	}

	var status health.IndexerStatus
	if ix != nil {
		status = ix
	}
	app.healthServer = health.NewServer(health.NewMonitor(status, store, queues, health.Thresholds{}), cfg.Server.Port)

	return app, nil
}

// Loops returns the configured background loops.
func (a *App) Loops() []*worker.Loop {
	return a.loops
}

// Start launches the health server and every loop.
func (a *App) Start(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.Health(ctx); err != nil {
			return fmt.Errorf("database unavailable: %w", err)
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Health(ctx); err != nil {
			return fmt.Errorf("redis unavailable: %w", err)
		}
	}

	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	for _, l := range a.loops {
		a.log.Info("Starting service", "service", l.Name())
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			l.Start(ctx)
		}()
	}
	return nil
}

// Stop waits for running cycles, releases instance locks and closes
// connections. The caller cancels the context given to Start first.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping services...")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("Services did not stop in time")
	}

	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.log.Warn("Failed to close notification sink", "error", err)
		}
	}

	if a.redisClient != nil {
		for _, l := range a.loops {
			if err := a.redisClient.ReleaseLock(ctx, l.Name()); err != nil {
				a.log.Warn("Failed to release lock", "service", l.Name(), "error", err)
			}
		}
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("Failed to close store", "error", err)
	}

	return a.healthServer.Stop(ctx)
}
