package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/storage"
)

// StaticKey is the single relayer identity shared by every record of a queue.
type StaticKey struct {
	signer *Signer
}

func NewStaticKey(signer *Signer) *StaticKey {
	return &StaticKey{signer: signer}
}

// Resolve returns the relayer key. An empty sender means "the relayer".
func (s *StaticKey) Resolve(_ context.Context, sender string) (*Signer, error) {
	if sender != "" && domain.NormalizeAddress(sender) != s.signer.Address.Hex() {
		return nil, fmt.Errorf("%w: %s", ErrSenderMismatch, sender)
	}
	return s.signer, nil
}

// AccountGetter is the store lookup IssuerKeys needs.
type AccountGetter interface {
	GetAccount(ctx context.Context, issuerAddress string) (*domain.Account, error)
}

// IssuerKeys resolves a per-record signer by looking up the issuer account
// whose address equals the sender. Decrypted keys are cached against the
// stored key material, so a re-imported account is decrypted again.
type IssuerKeys struct {
	accounts AccountGetter
	secret   string
	cache    *lru.Cache[string, cachedKey]
	log      *slog.Logger
}

type cachedKey struct {
	fingerprint common.Hash
	signer      *Signer
}

func NewIssuerKeys(accounts AccountGetter, secret string, cacheSize int, log *slog.Logger) (*IssuerKeys, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New[string, cachedKey](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create key cache: %w", err)
	}
	return &IssuerKeys{accounts: accounts, secret: secret, cache: cache, log: log}, nil
}

func (k *IssuerKeys) Resolve(ctx context.Context, sender string) (*Signer, error) {
	addr := domain.NormalizeAddress(sender)

	account, err := k.accounts.GetAccount(ctx, addr)
	if errors.Is(err, storage.ErrNotFound) {
		k.cache.Remove(addr)
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load issuer account: %w", err)
	}

	fp := crypto.Keccak256Hash(account.Keyfile, []byte(account.EncryptedPassword))
	if c, ok := k.cache.Get(addr); ok && c.fingerprint == fp {
		return c.signer, nil
	}

	password, err := DecryptPassword(k.secret, account.EncryptedPassword)
	if err != nil {
		return nil, err
	}
	signer, err := Decrypt(account.Keyfile, password)
	if err != nil {
		return nil, err
	}
	if signer.Address.Hex() != addr {
		k.cache.Remove(addr)
		return nil, fmt.Errorf("%w: keyfile of %s holds %s", ErrSenderMismatch, addr, signer.Address.Hex())
	}

	k.cache.Add(addr, cachedKey{fingerprint: fp, signer: signer})
	k.log.Debug("Issuer key loaded", "issuer", addr)
	return signer, nil
}
