package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/indexing/metrics"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/chain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/storage"
)

// DefaultCursorName is the block cursor row of the position indexer.
const DefaultCursorName = "position"

// Config holds indexer configuration
type Config struct {
	CursorName    string
	StartBlock    uint64 // first block when no cursor exists
	MaxBlockRange uint64 // upper bound of blocks per cycle
	Concurrency   int    // parallel re-query calls
}

// Indexer keeps Position and LockedPosition rows in line with the chain.
type Indexer struct {
	cfg    Config
	ledger chain.Ledger
	store  storage.Store
	log    *slog.Logger
}

func New(cfg Config, ledger chain.Ledger, store storage.Store, log *slog.Logger) *Indexer {
	if cfg.CursorName == "" {
		cfg.CursorName = DefaultCursorName
	}
	if cfg.MaxBlockRange == 0 {
		cfg.MaxBlockRange = 1_000_000
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{cfg: cfg, ledger: ledger, store: store, log: log.With("component", "indexer")}
}

// Status is a point-in-time view of indexing progress.
type Status struct {
	CursorName   string
	CurrentBlock uint64
	LatestBlock  uint64
	Lag          int64
	Synced       bool // a cursor row exists
}

// GetStatus reads the cursor and the chain head.
func (ix *Indexer) GetStatus(ctx context.Context) (Status, error) {
	st := Status{CursorName: ix.cfg.CursorName}
	cur, err := ix.store.GetCursor(ctx, ix.cfg.CursorName)
	switch {
	case err == nil:
		st.CurrentBlock = cur.LatestBlockNumber
		st.Synced = true
	case !errors.Is(err, storage.ErrNotFound):
		return st, err
	}
	head, err := ix.ledger.ChainHead(ctx)
	if err != nil {
		return st, err
	}
	st.LatestBlock = head
	st.Lag = int64(head) - int64(st.CurrentBlock)
	return st, nil
}

// SyncNewLogs runs one indexing cycle. It is safe to call repeatedly and
// after a crash: the cursor only moves together with the rows it covers.
func (ix *Indexer) SyncNewLogs(ctx context.Context) error {
	tokens, err := ix.store.ListActiveTokens(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tokens: %w", err)
	}
	watched := make(map[string]*domain.Token, len(tokens))
	for _, t := range tokens {
		t.Normalize()
		watched[t.Address] = t
	}

	if err := ix.seed(ctx, tokens); err != nil {
		return err
	}

	latest, err := ix.ledger.ChainHead(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain head: %w", err)
	}
	from, err := ix.nextBlock(ctx)
	if err != nil {
		return err
	}
	if from > latest {
		ix.log.Debug("skip process", "from", from, "latest", latest)
		return nil
	}
	to := latest
	if to-from+1 > ix.cfg.MaxBlockRange {
		to = from + ix.cfg.MaxBlockRange - 1
	}

	start := time.Now()
	events, err := ix.collect(ctx, tokens, from, to)
	if err != nil {
		return err
	}

	positions, locked, notices := ix.resolve(events, watched)
	snap, err := ix.requery(ctx, watched, positions, locked)
	if err != nil {
		return err
	}

	var written, lockedWritten int
	err = ix.store.WithTx(ctx, func(tx storage.Repository) error {
		var err error
		if written, err = applyPositions(ctx, tx, snap.positions); err != nil {
			return err
		}
		if lockedWritten, err = applyLocked(ctx, tx, snap.locked); err != nil {
			return err
		}
		for _, n := range notices {
			if err := tx.AddNotification(ctx, n); err != nil {
				return err
			}
		}
		return tx.SaveCursor(ctx, &domain.BlockCursor{Name: ix.cfg.CursorName, LatestBlockNumber: to})
	})
	if err != nil {
		return fmt.Errorf("failed to commit block range %d-%d: %w", from, to, err)
	}

	metrics.PositionsWritten.WithLabelValues("position").Add(float64(written))
	metrics.PositionsWritten.WithLabelValues("locked").Add(float64(lockedWritten))
	metrics.IndexerLatestBlock.Set(float64(to))

	ix.log.Info("Synced block range",
		"from", from,
		"to", to,
		"events", len(events),
		"positions", written,
		"locked_positions", lockedWritten,
		"notifications", len(notices),
		"elapsed", time.Since(start),
	)
	return nil
}

func (ix *Indexer) nextBlock(ctx context.Context) (uint64, error) {
	cur, err := ix.store.GetCursor(ctx, ix.cfg.CursorName)
	if errors.Is(err, storage.ErrNotFound) {
		return ix.cfg.StartBlock, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load cursor: %w", err)
	}
	return cur.LatestBlockNumber + 1, nil
}

// seed writes the issuer position of tokens registered since the last
// cycle. Each token commits on its own together with its flag.
func (ix *Indexer) seed(ctx context.Context, tokens []*domain.Token) error {
	for _, t := range tokens {
		if t.InitialPositionSynced {
			continue
		}

		p, err := ix.queryPosition(ctx, t, t.IssuerAddress)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ix.log.Warn("Failed to seed token, retrying next cycle", "token", t.Address, "error", err)
			continue
		}

		err = ix.store.WithTx(ctx, func(tx storage.Repository) error {
			if _, err := applyPositions(ctx, tx, map[domain.PositionKey]*domain.Position{p.Key(): p}); err != nil {
				return err
			}
			return tx.MarkTokenSynced(ctx, t.Address)
		})
		if err != nil {
			return fmt.Errorf("failed to seed token %s: %w", t.Address, err)
		}
		t.InitialPositionSynced = true
		ix.log.Info("Seeded issuer position", "token", t.Address, "issuer", t.IssuerAddress, "balance", p.Balance)
	}
	return nil
}

// collect fetches the events of [from, to] in stage order. A failed
// fetch aborts the cycle.
func (ix *Indexer) collect(ctx context.Context, tokens []*domain.Token, from, to uint64) ([]*domain.Event, error) {
	exchanges := exchangeContracts(tokens)

	var events []*domain.Event
	for _, st := range stages {
		for _, category := range st.categories {
			var contracts []chain.Contract
			if st.venue {
				contracts = exchanges
			} else {
				for _, t := range tokens {
					contracts = append(contracts, chain.TokenContract(t))
				}
			}

			for _, c := range contracts {
				logs, err := ix.ledger.GetLogs(ctx, c, category, from, to)
				if err != nil {
					return nil, fmt.Errorf("failed to get %s logs of %s: %w", category, c.Address, err)
				}
				metrics.EventsProcessed.WithLabelValues(string(category)).Add(float64(len(logs)))
				events = append(events, logs...)
			}
		}
	}
	return events, nil
}

func exchangeContracts(tokens []*domain.Token) []chain.Contract {
	seen := make(map[string]struct{})
	var out []chain.Contract
	for _, t := range tokens {
		if !t.HasExchange() {
			continue
		}
		if _, ok := seen[t.ExchangeAddress]; ok {
			continue
		}
		seen[t.ExchangeAddress] = struct{}{}
		out = append(out, chain.Contract{Address: t.ExchangeAddress, Kind: chain.KindExchange})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// resolve turns events into de-duplicated keys and lock notifications.
// Undecodable events and keys of unwatched tokens are dropped.
func (ix *Indexer) resolve(
	events []*domain.Event,
	watched map[string]*domain.Token,
) ([]domain.PositionKey, []domain.LockedPositionKey, []*domain.Notification) {
	var (
		positions  []domain.PositionKey
		locked     []domain.LockedPositionKey
		notices    []*domain.Notification
		seenPos    = make(map[domain.PositionKey]struct{})
		seenLocked = make(map[domain.LockedPositionKey]struct{})
	)

	for _, ev := range events {
		affected, err := AccountsAffectedBy(ev)
		if err != nil {
			metrics.EventErrors.WithLabelValues("decode").Inc()
			ix.log.Warn("Skipping event", "event", ev.String(), "error", err)
			continue
		}

		for _, k := range affected.Positions {
			if _, ok := watched[k.TokenAddress]; !ok {
				continue
			}
			if _, dup := seenPos[k]; !dup {
				seenPos[k] = struct{}{}
				positions = append(positions, k)
			}
		}
		for _, k := range affected.Locked {
			if _, ok := watched[k.TokenAddress]; !ok {
				continue
			}
			if _, dup := seenLocked[k]; !dup {
				seenLocked[k] = struct{}{}
				locked = append(locked, k)
			}
		}

		if token, ok := watched[domain.NormalizeAddress(ev.Contract)]; ok {
			n, err := lockNotification(ev, token)
			if err != nil {
				metrics.EventErrors.WithLabelValues("decode").Inc()
				ix.log.Warn("Skipping notification", "event", ev.String(), "error", err)
			} else if n != nil {
				notices = append(notices, n)
			}
		}
	}
	return positions, locked, notices
}

// applyPositions writes rows whose amounts changed. All-zero rows are only
// written when a row already exists.
func applyPositions(
	ctx context.Context,
	tx storage.Repository,
	fresh map[domain.PositionKey]*domain.Position,
) (int, error) {
	keys := make([]domain.PositionKey, 0, len(fresh))
	for k := range fresh {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].TokenAddress != keys[j].TokenAddress {
			return keys[i].TokenAddress < keys[j].TokenAddress
		}
		return keys[i].AccountAddress < keys[j].AccountAddress
	})

	written := 0
	for _, k := range keys {
		p := fresh[k]
		cur, err := tx.GetPosition(ctx, k)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			if p.IsZero() {
				continue
			}
		case err != nil:
			return written, err
		case cur.SameAmounts(p):
			continue
		}
		if err := tx.UpsertPosition(ctx, p); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func applyLocked(
	ctx context.Context,
	tx storage.Repository,
	fresh map[domain.LockedPositionKey]*domain.LockedPosition,
) (int, error) {
	keys := make([]domain.LockedPositionKey, 0, len(fresh))
	for k := range fresh {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.TokenAddress != b.TokenAddress {
			return a.TokenAddress < b.TokenAddress
		}
		if a.LockAddress != b.LockAddress {
			return a.LockAddress < b.LockAddress
		}
		return a.AccountAddress < b.AccountAddress
	})

	written := 0
	for _, k := range keys {
		p := fresh[k]
		cur, err := tx.GetLockedPosition(ctx, k)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			if p.Value == 0 {
				continue
			}
		case err != nil:
			return written, err
		case cur.Value == p.Value:
			continue
		}
		if err := tx.UpsertLockedPosition(ctx, p); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}
