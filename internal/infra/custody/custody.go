// Package custody resolves the signing keys used by the relays.
package custody

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

var (
	// ErrAccountNotFound is returned when no issuer account matches a sender.
	ErrAccountNotFound = errors.New("issuer account not found")

	// ErrSenderMismatch is returned when a record names a sender the
	// configured key cannot sign for.
	ErrSenderMismatch = errors.New("sender does not match signing key")
)

// Signer is a decrypted signing identity.
type Signer struct {
	Address common.Address
	Key     *ecdsa.PrivateKey
}

// Decrypt opens a keystore v3 JSON document.
func Decrypt(keyfile []byte, password string) (*Signer, error) {
	key, err := keystore.DecryptKey(keyfile, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt keyfile: %w", err)
	}
	return &Signer{Address: key.Address, Key: key.PrivateKey}, nil
}

// LoadKeyfile reads and decrypts a keystore file from disk.
func LoadKeyfile(path, password string) (*Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyfile: %w", err)
	}
	return Decrypt(raw, password)
}

// EncryptKey produces a keystore v3 document for key.
func EncryptKey(key *ecdsa.PrivateKey, password string, scryptN, scryptP int) ([]byte, error) {
	k := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: key,
	}
	return keystore.EncryptKey(k, password, scryptN, scryptP)
}

func gcm(secret string) (cipher.AEAD, error) {
	if secret == "" {
		return nil, errors.New("custody secret key is not configured")
	}
	sum := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptPassword seals a keyfile password with the custody secret. The
// result is base64(nonce || ciphertext).
func EncryptPassword(secret, password string) (string, error) {
	aead, err := gcm(secret)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(password), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptPassword reverses EncryptPassword.
func DecryptPassword(secret, encrypted string) (string, error) {
	aead, err := gcm(secret)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("invalid encrypted password: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("invalid encrypted password: too short")
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt password: %w", err)
	}
	return string(plain), nil
}
