package evm

import (
	"context"
	"crypto/ecdsa"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/indexing/metrics"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/chain"
)

// Backend is the subset of ethclient.Client the ledger needs.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BlockNumber(ctx context.Context) (uint64, error)
}

// Config holds node connection settings.
type Config struct {
	Name           string
	RPCURL         string
	ChainID        int64
	ReceiptTimeout time.Duration
}

// Client implements chain.Ledger on an EVM JSON-RPC node.
type Client struct {
	name           string
	backend        Backend
	chainID        *big.Int
	receiptTimeout time.Duration
	abis           *abiCache
	log            *slog.Logger
}

var _ chain.Ledger = (*Client)(nil)

// Dial connects to the node at cfg.RPCURL.
func Dial(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, errors.Wrap(err, "ethclient.Dial")
	}
	return NewClient(cfg, eth, log), nil
}

// NewClient wraps an existing backend.
func NewClient(cfg Config, backend Backend, log *slog.Logger) *Client {
	timeout := cfg.ReceiptTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		name:           cfg.Name,
		backend:        backend,
		chainID:        big.NewInt(cfg.ChainID),
		receiptTimeout: timeout,
		abis:           newABICache(),
		log:            log.With("chain", cfg.Name),
	}
}

func (c *Client) observe(method string, start time.Time, err error) {
	metrics.ChainCalls.WithLabelValues(c.name, method).Inc()
	metrics.ChainLatency.WithLabelValues(c.name, method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ChainErrors.WithLabelValues(c.name, method).Inc()
	}
}

func (c *Client) ChainHead(ctx context.Context) (uint64, error) {
	start := time.Now()
	head, err := c.backend.BlockNumber(ctx)
	c.observe("eth_blockNumber", start, err)
	if err != nil {
		return 0, errors.Wrap(err, "BlockNumber")
	}
	metrics.ChainLatestBlock.WithLabelValues(c.name).Set(float64(head))
	return head, nil
}

// GetLogs returns nothing when the contract's ABI does not declare the event.
func (c *Client) GetLogs(
	ctx context.Context,
	contract chain.Contract,
	category domain.EventCategory,
	from, to uint64,
) ([]*domain.Event, error) {
	parsed, err := c.abis.get(contract)
	if err != nil {
		return nil, err
	}
	ev, ok := parsed.Events[string(category)]
	if !ok {
		return nil, nil
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{common.HexToAddress(contract.Address)},
		Topics:    [][]common.Hash{{ev.ID}},
	}

	start := time.Now()
	logs, err := c.backend.FilterLogs(ctx, query)
	c.observe("eth_getLogs", start, err)
	if err != nil {
		return nil, errors.Wrapf(err, "FilterLogs(%s, %s)", contract.Address, category)
	}

	events := make([]*domain.Event, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		events = append(events, decodeLog(ev, category, lg))
	}
	return events, nil
}

func (c *Client) Call(ctx context.Context, contract chain.Contract, method string, args ...any) ([]any, error) {
	bound, err := c.bind(contract)
	if err != nil {
		return nil, err
	}

	var out []any
	start := time.Now()
	err = bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...)
	c.observe("eth_call", start, err)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s.%s", contract.Address, method)
	}
	return out, nil
}

func (c *Client) Submit(
	ctx context.Context,
	key *ecdsa.PrivateKey,
	contract chain.Contract,
	method string,
	args ...any,
) (*chain.Receipt, error) {
	bound, err := c.bind(contract)
	if err != nil {
		return nil, err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, c.chainID)
	if err != nil {
		return nil, errors.Wrap(err, "bind.NewKeyedTransactorWithChainID")
	}
	opts.Context = ctx

	start := time.Now()
	tx, err := bound.Transact(opts, method, args...)
	c.observe("eth_sendRawTransaction", start, err)
	if err != nil {
		if reason, ok := revertReason(err); ok {
			// Rejected during gas estimation; nothing was broadcast.
			return &chain.Receipt{Reverted: true, RevertReason: reason}, nil
		}
		return nil, errors.Wrapf(err, "transact %s.%s", contract.Address, method)
	}

	c.log.Debug("Transaction sent", "method", method, "tx_hash", tx.Hash().Hex())

	waitCtx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		return nil, &chain.PendingReceiptError{TxHash: tx.Hash().Hex(), Err: err}
	}
	return toReceipt(receipt), nil
}

func (c *Client) Receipt(ctx context.Context, txHash string) (*chain.Receipt, error) {
	start := time.Now()
	receipt, err := c.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	c.observe("eth_getTransactionReceipt", start, err)
	if errors.Is(err, ethereum.NotFound) {
		return nil, chain.ErrReceiptNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "TransactionReceipt")
	}
	return toReceipt(receipt), nil
}

func (c *Client) bind(contract chain.Contract) (*bind.BoundContract, error) {
	parsed, err := c.abis.get(contract)
	if err != nil {
		return nil, err
	}
	addr := common.HexToAddress(contract.Address)
	return bind.NewBoundContract(addr, *parsed, c.backend, c.backend, c.backend), nil
}

func toReceipt(r *types.Receipt) *chain.Receipt {
	out := &chain.Receipt{
		TxHash:      r.TxHash.Hex(),
		BlockNumber: r.BlockNumber.Uint64(),
	}
	if r.Status == types.ReceiptStatusFailed {
		out.Reverted = true
		out.RevertReason = "transaction reverted"
	}
	return out
}

// revertReason reports whether err is a contract rejection and extracts
// the reason string when the node provides one.
func revertReason(err error) (string, bool) {
	if !strings.Contains(err.Error(), "execution reverted") {
		return "", false
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if reason, uerr := abi.UnpackRevert(common.FromHex(hexData)); uerr == nil {
				return reason, true
			}
		}
	}
	return err.Error(), true
}
