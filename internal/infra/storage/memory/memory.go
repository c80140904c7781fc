package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/storage"
)

// MemoryStorage is a storage.Store kept in process memory. WithTx works on a
// copy of the whole state and swaps it in on success, so a failed
// transaction leaves nothing behind.
type MemoryStorage struct {
	mu sync.Mutex
	st *state
}

var _ storage.Store = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{st: newState()}
}

type state struct {
	tokens        map[string]*domain.Token
	positions     map[domain.PositionKey]*domain.Position
	locked        map[domain.LockedPositionKey]*domain.LockedPosition
	cursors       map[string]*domain.BlockCursor
	relay         map[domain.Queue]map[string]*domain.RelayTransaction
	notifications []*domain.Notification
	accounts      map[string]*domain.Account
}

func newState() *state {
	return &state{
		tokens:    make(map[string]*domain.Token),
		positions: make(map[domain.PositionKey]*domain.Position),
		locked:    make(map[domain.LockedPositionKey]*domain.LockedPosition),
		cursors:   make(map[string]*domain.BlockCursor),
		relay:     make(map[domain.Queue]map[string]*domain.RelayTransaction),
		accounts:  make(map[string]*domain.Account),
	}
}

// clone copies the maps. Rows are replaced, never mutated in place, so the
// row pointers can be shared between the copies.
func (s *state) clone() *state {
	c := &state{
		tokens:        maps.Clone(s.tokens),
		positions:     maps.Clone(s.positions),
		locked:        maps.Clone(s.locked),
		cursors:       maps.Clone(s.cursors),
		relay:         make(map[domain.Queue]map[string]*domain.RelayTransaction, len(s.relay)),
		notifications: slices.Clone(s.notifications),
		accounts:      maps.Clone(s.accounts),
	}
	for q, rows := range s.relay {
		c.relay[q] = maps.Clone(rows)
	}
	return c
}

// WithTx runs fn against a private copy of the state and commits it when fn
// returns nil.
func (s *MemoryStorage) WithTx(ctx context.Context, fn func(tx storage.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&view{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *MemoryStorage) Close() error { return nil }

func (s *MemoryStorage) do(fn func(v *view) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&view{st: s.st})
}

// -----------------------------------------------------------------------------
// Non-transactional access
// -----------------------------------------------------------------------------

func (s *MemoryStorage) SaveToken(ctx context.Context, t *domain.Token) error {
	return s.do(func(v *view) error { return v.SaveToken(ctx, t) })
}

func (s *MemoryStorage) GetToken(ctx context.Context, addr string) (t *domain.Token, err error) {
	err = s.do(func(v *view) error { t, err = v.GetToken(ctx, addr); return err })
	return t, err
}

func (s *MemoryStorage) ListActiveTokens(ctx context.Context) (ts []*domain.Token, err error) {
	err = s.do(func(v *view) error { ts, err = v.ListActiveTokens(ctx); return err })
	return ts, err
}

func (s *MemoryStorage) FindTokenByWrapper(ctx context.Context, addr string) (t *domain.Token, err error) {
	err = s.do(func(v *view) error { t, err = v.FindTokenByWrapper(ctx, addr); return err })
	return t, err
}

func (s *MemoryStorage) MarkTokenSynced(ctx context.Context, addr string) error {
	return s.do(func(v *view) error { return v.MarkTokenSynced(ctx, addr) })
}

func (s *MemoryStorage) GetPosition(ctx context.Context, key domain.PositionKey) (p *domain.Position, err error) {
	err = s.do(func(v *view) error { p, err = v.GetPosition(ctx, key); return err })
	return p, err
}

func (s *MemoryStorage) UpsertPosition(ctx context.Context, p *domain.Position) error {
	return s.do(func(v *view) error { return v.UpsertPosition(ctx, p) })
}

func (s *MemoryStorage) ListPositions(ctx context.Context, token string, includeFormer bool) (ps []*domain.Position, err error) {
	err = s.do(func(v *view) error { ps, err = v.ListPositions(ctx, token, includeFormer); return err })
	return ps, err
}

func (s *MemoryStorage) GetLockedPosition(ctx context.Context, key domain.LockedPositionKey) (p *domain.LockedPosition, err error) {
	err = s.do(func(v *view) error { p, err = v.GetLockedPosition(ctx, key); return err })
	return p, err
}

func (s *MemoryStorage) UpsertLockedPosition(ctx context.Context, p *domain.LockedPosition) error {
	return s.do(func(v *view) error { return v.UpsertLockedPosition(ctx, p) })
}

func (s *MemoryStorage) ListLockedPositions(ctx context.Context, token string) (ps []*domain.LockedPosition, err error) {
	err = s.do(func(v *view) error { ps, err = v.ListLockedPositions(ctx, token); return err })
	return ps, err
}

func (s *MemoryStorage) GetCursor(ctx context.Context, name string) (c *domain.BlockCursor, err error) {
	err = s.do(func(v *view) error { c, err = v.GetCursor(ctx, name); return err })
	return c, err
}

func (s *MemoryStorage) SaveCursor(ctx context.Context, c *domain.BlockCursor) error {
	return s.do(func(v *view) error { return v.SaveCursor(ctx, c) })
}

func (s *MemoryStorage) ResetCursor(ctx context.Context, name string, block uint64) error {
	return s.do(func(v *view) error { return v.ResetCursor(ctx, name, block) })
}

func (s *MemoryStorage) ListCursors(ctx context.Context) (cs []*domain.BlockCursor, err error) {
	err = s.do(func(v *view) error { cs, err = v.ListCursors(ctx); return err })
	return cs, err
}

func (s *MemoryStorage) Enqueue(ctx context.Context, tx *domain.RelayTransaction) error {
	return s.do(func(v *view) error { return v.Enqueue(ctx, tx) })
}

func (s *MemoryStorage) GetRelayTransaction(ctx context.Context, q domain.Queue, id string) (tx *domain.RelayTransaction, err error) {
	err = s.do(func(v *view) error { tx, err = v.GetRelayTransaction(ctx, q, id); return err })
	return tx, err
}

func (s *MemoryStorage) ListByStatus(ctx context.Context, q domain.Queue, st domain.TxStatus) (txs []*domain.RelayTransaction, err error) {
	err = s.do(func(v *view) error { txs, err = v.ListByStatus(ctx, q, st); return err })
	return txs, err
}

func (s *MemoryStorage) ListUnfinalized(ctx context.Context, q domain.Queue) (txs []*domain.RelayTransaction, err error) {
	err = s.do(func(v *view) error { txs, err = v.ListUnfinalized(ctx, q); return err })
	return txs, err
}

func (s *MemoryStorage) UpdateStatus(ctx context.Context, tx *domain.RelayTransaction) error {
	return s.do(func(v *view) error { return v.UpdateStatus(ctx, tx) })
}

func (s *MemoryStorage) MarkFinalized(ctx context.Context, q domain.Queue, id string) error {
	return s.do(func(v *view) error { return v.MarkFinalized(ctx, q, id) })
}

func (s *MemoryStorage) AddNotification(ctx context.Context, n *domain.Notification) error {
	return s.do(func(v *view) error { return v.AddNotification(ctx, n) })
}

func (s *MemoryStorage) ListUnpublished(ctx context.Context, limit int) (ns []*domain.Notification, err error) {
	err = s.do(func(v *view) error { ns, err = v.ListUnpublished(ctx, limit); return err })
	return ns, err
}

func (s *MemoryStorage) MarkPublished(ctx context.Context, ids []string) error {
	return s.do(func(v *view) error { return v.MarkPublished(ctx, ids) })
}

func (s *MemoryStorage) SaveAccount(ctx context.Context, a *domain.Account) error {
	return s.do(func(v *view) error { return v.SaveAccount(ctx, a) })
}

func (s *MemoryStorage) GetAccount(ctx context.Context, addr string) (a *domain.Account, err error) {
	err = s.do(func(v *view) error { a, err = v.GetAccount(ctx, addr); return err })
	return a, err
}

// -----------------------------------------------------------------------------
// view operates on one state without locking.
// -----------------------------------------------------------------------------

type view struct {
	st *state
}

func (v *view) SaveToken(ctx context.Context, t *domain.Token) error {
	c := *t
	c.Normalize()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	v.st.tokens[c.Address] = &c
	return nil
}

func (v *view) GetToken(ctx context.Context, addr string) (*domain.Token, error) {
	t, ok := v.st.tokens[domain.NormalizeAddress(addr)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (v *view) ListActiveTokens(ctx context.Context) ([]*domain.Token, error) {
	var out []*domain.Token
	for _, t := range v.st.tokens {
		if t.Active {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (v *view) FindTokenByWrapper(ctx context.Context, addr string) (*domain.Token, error) {
	addr = domain.NormalizeAddress(addr)
	for _, t := range v.st.tokens {
		if t.WrapperAddress != "" && t.WrapperAddress == addr {
			c := *t
			return &c, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (v *view) MarkTokenSynced(ctx context.Context, addr string) error {
	addr = domain.NormalizeAddress(addr)
	t, ok := v.st.tokens[addr]
	if !ok {
		return storage.ErrNotFound
	}
	c := *t
	c.InitialPositionSynced = true
	v.st.tokens[addr] = &c
	return nil
}

func (v *view) GetPosition(ctx context.Context, key domain.PositionKey) (*domain.Position, error) {
	p, ok := v.st.positions[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (v *view) UpsertPosition(ctx context.Context, p *domain.Position) error {
	c := *p
	c.ModifiedAt = time.Now()
	v.st.positions[p.Key()] = &c
	return nil
}

func (v *view) ListPositions(ctx context.Context, token string, includeFormer bool) ([]*domain.Position, error) {
	var out []*domain.Position
	for k, p := range v.st.positions {
		if k.TokenAddress != token || (!includeFormer && p.IsZero()) {
			continue
		}
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountAddress < out[j].AccountAddress })
	return out, nil
}

func (v *view) GetLockedPosition(ctx context.Context, key domain.LockedPositionKey) (*domain.LockedPosition, error) {
	p, ok := v.st.locked[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (v *view) UpsertLockedPosition(ctx context.Context, p *domain.LockedPosition) error {
	c := *p
	c.ModifiedAt = time.Now()
	v.st.locked[p.Key()] = &c
	return nil
}

func (v *view) ListLockedPositions(ctx context.Context, token string) ([]*domain.LockedPosition, error) {
	var out []*domain.LockedPosition
	for k, p := range v.st.locked {
		if k.TokenAddress != token {
			continue
		}
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LockAddress != out[j].LockAddress {
			return out[i].LockAddress < out[j].LockAddress
		}
		return out[i].AccountAddress < out[j].AccountAddress
	})
	return out, nil
}

func (v *view) GetCursor(ctx context.Context, name string) (*domain.BlockCursor, error) {
	c, ok := v.st.cursors[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (v *view) SaveCursor(ctx context.Context, c *domain.BlockCursor) error {
	if cur, ok := v.st.cursors[c.Name]; ok && cur.LatestBlockNumber > c.LatestBlockNumber {
		return nil
	}
	cp := *c
	cp.UpdatedAt = time.Now()
	v.st.cursors[c.Name] = &cp
	return nil
}

func (v *view) ResetCursor(ctx context.Context, name string, block uint64) error {
	v.st.cursors[name] = &domain.BlockCursor{Name: name, LatestBlockNumber: block, UpdatedAt: time.Now()}
	return nil
}

func (v *view) ListCursors(ctx context.Context) ([]*domain.BlockCursor, error) {
	out := make([]*domain.BlockCursor, 0, len(v.st.cursors))
	for _, c := range v.st.cursors {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v *view) Enqueue(ctx context.Context, tx *domain.RelayTransaction) error {
	rows, ok := v.st.relay[tx.Queue]
	if !ok {
		rows = make(map[string]*domain.RelayTransaction)
		v.st.relay[tx.Queue] = rows
	}
	if _, dup := rows[tx.TxID]; dup {
		return storage.ErrDuplicate
	}
	c := *tx
	c.Status = domain.TxStatusPending
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	rows[tx.TxID] = &c
	return nil
}

func (v *view) GetRelayTransaction(ctx context.Context, q domain.Queue, id string) (*domain.RelayTransaction, error) {
	tx, ok := v.st.relay[q][id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *tx
	return &c, nil
}

func (v *view) list(q domain.Queue, keep func(*domain.RelayTransaction) bool) []*domain.RelayTransaction {
	var out []*domain.RelayTransaction
	for _, tx := range v.st.relay[q] {
		if keep(tx) {
			c := *tx
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].TxID < out[j].TxID
	})
	return out
}

func (v *view) ListByStatus(ctx context.Context, q domain.Queue, st domain.TxStatus) ([]*domain.RelayTransaction, error) {
	return v.list(q, func(tx *domain.RelayTransaction) bool { return tx.Status == st }), nil
}

func (v *view) ListUnfinalized(ctx context.Context, q domain.Queue) ([]*domain.RelayTransaction, error) {
	return v.list(q, func(tx *domain.RelayTransaction) bool {
		return tx.Status == domain.TxStatusSucceeded && !tx.Finalized
	}), nil
}

func (v *view) UpdateStatus(ctx context.Context, tx *domain.RelayTransaction) error {
	cur, ok := v.st.relay[tx.Queue][tx.TxID]
	if !ok {
		return storage.ErrNotFound
	}
	if cur.Status.IsTerminal() {
		return storage.ErrStaleTransition
	}
	c := *cur
	c.Status = tx.Status
	c.TxHash = tx.TxHash
	c.BlockNumber = tx.BlockNumber
	c.FailureReason = tx.FailureReason
	c.UpdatedAt = time.Now()
	v.st.relay[tx.Queue][tx.TxID] = &c
	return nil
}

func (v *view) MarkFinalized(ctx context.Context, q domain.Queue, id string) error {
	cur, ok := v.st.relay[q][id]
	if !ok {
		return storage.ErrNotFound
	}
	if cur.Status != domain.TxStatusSucceeded {
		return storage.ErrStaleTransition
	}
	c := *cur
	c.Finalized = true
	c.UpdatedAt = time.Now()
	v.st.relay[q][id] = &c
	return nil
}

// AddNotification ignores an id that is already stored.
func (v *view) AddNotification(ctx context.Context, n *domain.Notification) error {
	for _, cur := range v.st.notifications {
		if cur.ID == n.ID {
			return nil
		}
	}
	c := *n
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	v.st.notifications = append(v.st.notifications, &c)
	return nil
}

func (v *view) ListUnpublished(ctx context.Context, limit int) ([]*domain.Notification, error) {
	var out []*domain.Notification
	for _, n := range v.st.notifications {
		if limit > 0 && len(out) >= limit {
			break
		}
		if !n.Published {
			c := *n
			out = append(out, &c)
		}
	}
	return out, nil
}

func (v *view) MarkPublished(ctx context.Context, ids []string) error {
	for i, n := range v.st.notifications {
		if slices.Contains(ids, n.ID) {
			c := *n
			c.Published = true
			v.st.notifications[i] = &c
		}
	}
	return nil
}

func (v *view) SaveAccount(ctx context.Context, a *domain.Account) error {
	c := *a
	v.st.accounts[a.IssuerAddress] = &c
	return nil
}

func (v *view) GetAccount(ctx context.Context, addr string) (*domain.Account, error) {
	a, ok := v.st.accounts[addr]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *a
	return &c, nil
}
