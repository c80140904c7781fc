// Package chaintest provides an in-memory chain.Ledger for tests.
package chaintest

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/chain"
)

// Submission records one Submit call.
type Submission struct {
	From     string
	Contract string
	Method   string
	Args     []any
}

// SubmitFunc decides the outcome of a Submit call.
type SubmitFunc func(s Submission) (*chain.Receipt, error)

// Ledger is a scripted chain. View calls return 0 unless a value was set.
type Ledger struct {
	mu sync.Mutex

	head    uint64
	headErr error
	logs    []*domain.Event
	logsErr error

	outputs  map[string][]any
	callErrs map[string]error
	calls    []string

	submit      SubmitFunc
	submissions []Submission
	receipts    map[string]*chain.Receipt
	nextBlock   uint64
}

var _ chain.Ledger = (*Ledger)(nil)

func New() *Ledger {
	return &Ledger{
		outputs:   make(map[string][]any),
		callErrs:  make(map[string]error),
		receipts:  make(map[string]*chain.Receipt),
		nextBlock: 100,
	}
}

func callKey(contract, method string, args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case common.Address:
			parts[i] = v.Hex()
		case string:
			if common.IsHexAddress(v) {
				parts[i] = common.HexToAddress(v).Hex()
			} else {
				parts[i] = v
			}
		case *big.Int:
			parts[i] = v.String()
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return fmt.Sprintf("%s.%s(%s)", common.HexToAddress(contract).Hex(), method, strings.Join(parts, ","))
}

// SetHead sets the chain head.
func (l *Ledger) SetHead(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.head = n
}

// FailHead makes ChainHead fail with err (nil clears).
func (l *Ledger) FailHead(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.headErr = err
}

// AddLog appends an event. GetLogs filters by contract, category and range.
func (l *Ledger) AddLog(ev *domain.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, ev)
}

// FailLogs makes GetLogs fail with err (nil clears).
func (l *Ledger) FailLogs(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logsErr = err
}

// SetValue sets the single integer output of a view call.
func (l *Ledger) SetValue(contract, method string, value int64, args ...any) {
	l.SetOutputs(contract, method, []any{big.NewInt(value)}, args...)
}

// SetOutputs sets the outputs of a view call.
func (l *Ledger) SetOutputs(contract, method string, outputs []any, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := callKey(contract, method, args)
	l.outputs[key] = outputs
	delete(l.callErrs, key)
}

// FailCall makes a view call fail with err (nil clears).
func (l *Ledger) FailCall(contract, method string, err error, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := callKey(contract, method, args)
	if err == nil {
		delete(l.callErrs, key)
		return
	}
	l.callErrs[key] = err
}

// OnSubmit scripts Submit. By default every submission is mined.
func (l *Ledger) OnSubmit(fn SubmitFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submit = fn
}

// SetReceipt makes Receipt return r for its hash.
func (l *Ledger) SetReceipt(r *chain.Receipt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receipts[r.TxHash] = r
}

// Calls returns the keys of every view call made so far.
func (l *Ledger) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// Submissions returns every Submit call made so far.
func (l *Ledger) Submissions() []Submission {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Submission(nil), l.submissions...)
}

func (l *Ledger) ChainHead(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.headErr != nil {
		return 0, l.headErr
	}
	return l.head, nil
}

func (l *Ledger) GetLogs(
	ctx context.Context,
	contract chain.Contract,
	category domain.EventCategory,
	from, to uint64,
) ([]*domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logsErr != nil {
		return nil, l.logsErr
	}
	addr := common.HexToAddress(contract.Address).Hex()
	var out []*domain.Event
	for _, ev := range l.logs {
		if ev.Category == category && ev.Contract == addr && ev.BlockNumber >= from && ev.BlockNumber <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (l *Ledger) Call(ctx context.Context, contract chain.Contract, method string, args ...any) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := callKey(contract.Address, method, args)
	l.calls = append(l.calls, key)
	if err := l.callErrs[key]; err != nil {
		return nil, err
	}
	if out, ok := l.outputs[key]; ok {
		return out, nil
	}
	return []any{big.NewInt(0)}, nil
}

func (l *Ledger) Submit(
	ctx context.Context,
	key *ecdsa.PrivateKey,
	contract chain.Contract,
	method string,
	args ...any,
) (*chain.Receipt, error) {
	l.mu.Lock()
	s := Submission{
		From:     crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Contract: common.HexToAddress(contract.Address).Hex(),
		Method:   method,
		Args:     args,
	}
	l.submissions = append(l.submissions, s)
	fn := l.submit
	l.nextBlock++
	block := l.nextBlock
	l.mu.Unlock()

	if fn != nil {
		return fn(s)
	}
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("%s-%d", method, block))).Hex()
	return &chain.Receipt{TxHash: hash, BlockNumber: block}, nil
}

func (l *Ledger) Receipt(ctx context.Context, txHash string) (*chain.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.receipts[txHash]
	if !ok {
		return nil, chain.ErrReceiptNotFound
	}
	return r, nil
}
