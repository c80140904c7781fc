package custody

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/storage/memory"
)

const secret = "custody-secret"

func newKeyfile(t *testing.T, password string) ([]byte, string) {
	t.Helper()
	pk, err := crypto.GenerateKey()
	require.NoError(t, err)
	raw, err := EncryptKey(pk, password, keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)
	return raw, crypto.PubkeyToAddress(pk.PublicKey).Hex()
}

func TestPasswordRoundTrip(t *testing.T) {
	enc, err := EncryptPassword(secret, "p@ss")
	require.NoError(t, err)
	require.NotEqual(t, "p@ss", enc)

	plain, err := DecryptPassword(secret, enc)
	require.NoError(t, err)
	require.Equal(t, "p@ss", plain)

	_, err = DecryptPassword("other-secret", enc)
	require.Error(t, err)

	_, err = EncryptPassword("", "p@ss")
	require.Error(t, err)
}

func TestDecrypt(t *testing.T) {
	raw, addr := newKeyfile(t, "pw")

	signer, err := Decrypt(raw, "pw")
	require.NoError(t, err)
	require.Equal(t, addr, signer.Address.Hex())

	_, err = Decrypt(raw, "wrong")
	require.Error(t, err)
}

func TestStaticKey(t *testing.T) {
	raw, addr := newKeyfile(t, "pw")
	path := filepath.Join(t.TempDir(), "relayer.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	signer, err := LoadKeyfile(path, "pw")
	require.NoError(t, err)
	key := NewStaticKey(signer)

	got, err := key.Resolve(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, addr, got.Address.Hex())

	_, err = key.Resolve(context.Background(), "0x0000000000000000000000000000000000000001")
	require.ErrorIs(t, err, ErrSenderMismatch)
}

func TestIssuerKeys(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()

	raw, addr := newKeyfile(t, "issuer-pw")
	enc, err := EncryptPassword(secret, "issuer-pw")
	require.NoError(t, err)
	require.NoError(t, store.SaveAccount(ctx, &domain.Account{
		IssuerAddress:     addr,
		Keyfile:           raw,
		EncryptedPassword: enc,
	}))

	keys, err := NewIssuerKeys(store, secret, 4, slog.Default())
	require.NoError(t, err)

	signer, err := keys.Resolve(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, addr, signer.Address.Hex())

	cached, err := keys.Resolve(ctx, addr)
	require.NoError(t, err)
	require.Same(t, signer, cached)

	_, err = keys.Resolve(ctx, "0x0000000000000000000000000000000000000002")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestIssuerKeysReimportedAccount(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()

	pk, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(pk.PublicKey).Hex()
	save := func(raw []byte, password string) {
		enc, err := EncryptPassword(secret, password)
		require.NoError(t, err)
		require.NoError(t, store.SaveAccount(ctx, &domain.Account{IssuerAddress: addr, Keyfile: raw, EncryptedPassword: enc}))
	}

	raw, err := EncryptKey(pk, "first", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)
	save(raw, "first")

	keys, err := NewIssuerKeys(store, secret, 4, slog.Default())
	require.NoError(t, err)
	first, err := keys.Resolve(ctx, addr)
	require.NoError(t, err)

	// Same key under a new password is decrypted again.
	raw, err = EncryptKey(pk, "second", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)
	save(raw, "second")
	second, err := keys.Resolve(ctx, addr)
	require.NoError(t, err)
	require.NotSame(t, first, second)
	require.Equal(t, addr, second.Address.Hex())

	// A keyfile for another address is no longer served from the cache.
	other, _ := newKeyfile(t, "third")
	save(other, "third")
	_, err = keys.Resolve(ctx, addr)
	require.ErrorIs(t, err, ErrSenderMismatch)
}

func TestIssuerKeysWrongSecret(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()

	raw, addr := newKeyfile(t, "issuer-pw")
	enc, err := EncryptPassword("another-secret", "issuer-pw")
	require.NoError(t, err)
	require.NoError(t, store.SaveAccount(ctx, &domain.Account{IssuerAddress: addr, Keyfile: raw, EncryptedPassword: enc}))

	keys, err := NewIssuerKeys(store, secret, 4, slog.Default())
	require.NoError(t, err)

	_, err = keys.Resolve(ctx, addr)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAccountNotFound)
}
