// Package keys loads the custody signing key.
// The key is either configured as hex or stored AES-256-GCM encrypted under
// a key derived with HKDF-SHA256 from a master secret held in the environment.
package keys

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
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"

	"github.com/chainsafe/custody-vault/pkg/config"
)

const (
	privateKeySize   = 32
	minMasterKeySize = 32
)

// ErrNoKey is returned when no custody key is configured.
var ErrNoKey = errors.New("no custody key configured")

// LoadCustodyKey resolves the custody key described by cfg. getenv reads the
// master secret when the key is encrypted.
func LoadCustodyKey(cfg config.KeysConfig, getenv func(string) string) (*ecdsa.PrivateKey, error) {
	switch {
	case cfg.CustodyKey != "":
		return ParseHexKey(cfg.CustodyKey)
	case cfg.EncryptedCustodyKey != "":
		encKey, err := MasterEncryptionKey(getenv(cfg.MasterKeyEnv), cfg.DerivationInfo)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.MasterKeyEnv, err)
		}
		raw, err := DecryptPrivateKey(cfg.EncryptedCustodyKey, encKey)
		if err != nil {
			return nil, err
		}
		return crypto.ToECDSA(raw)
	default:
		return nil, ErrNoKey
	}
}

// ParseHexKey parses a secp256k1 private key with or without 0x prefix.
func ParseHexKey(s string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse custody key: %w", err)
	}
	return key, nil
}

// MasterEncryptionKey decodes a base64 master secret and derives the AES-256
// key for info from it.
func MasterEncryptionKey(masterB64, info string) ([]byte, error) {
	if masterB64 == "" {
		return nil, errors.New("master key is not set")
	}
	master, err := base64.StdEncoding.DecodeString(masterB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key: %w", err)
	}
	return DeriveEncryptionKey(master, info)
}

// DeriveEncryptionKey derives a 32-byte key from master with HKDF-SHA256.
func DeriveEncryptionKey(master []byte, info string) ([]byte, error) {
	if len(master) < minMasterKeySize {
		return nil, fmt.Errorf("master key must be at least %d bytes", minMasterKeySize)
	}
	out := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	return out, nil
}

// EncryptPrivateKey seals privateKey with AES-256-GCM.
// The result is base64(nonce || ciphertext || tag).
func EncryptPrivateKey(privateKey, encKey []byte) (string, error) {
	if len(privateKey) != privateKeySize {
		return "", fmt.Errorf("private key must be %d bytes (secp256k1)", privateKeySize)
	}
	gcm, err := newGCM(encKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, privateKey, nil)), nil
}

// DecryptPrivateKey opens a value produced by EncryptPrivateKey.
func DecryptPrivateKey(encrypted string, encKey []byte) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	gcm, err := newGCM(encKey)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	plaintext, err := gcm.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	if len(plaintext) != privateKeySize {
		return nil, fmt.Errorf("decrypted key has wrong size: got %d, want %d", len(plaintext), privateKeySize)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, errors.New("encryption key must be 32 bytes (AES-256)")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
