// Package vault encrypts credentials at rest.
//
// Values are stored as "ivHex:cipherHex" using AES-256-GCM. Anything
// without a ':' separator is a legacy plaintext value and is returned
// unchanged by Decrypt.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	KeySize = 32

	argonTime        uint32 = 3
	argonMemory      uint32 = 64 * 1024
	argonParallelism uint8  = 4

	minSecretLength = 12
	minSaltLength   = 16
)

// Generic messages so callers never leak why decryption failed.
var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrEmptyPlaintext   = errors.New("empty plaintext")
	ErrWeakSecret       = errors.New("encryption secret must be 64 hex chars or at least 12 characters")
	ErrInvalidSalt      = errors.New("encryption salt must be at least 16 bytes")
)

type Vault struct {
	aead cipher.AEAD
}

// New builds a vault from the configured secret. A 64-character hex
// secret is used as the raw key; any other secret is stretched with
// Argon2id over salt.
func New(secret, salt string) (*Vault, error) {
	key, err := deriveKey(secret, salt)
	if err != nil {
		return nil, err
	}
	return NewWithKey(key)
}

// NewWithKey builds a vault from a raw 32-byte key.
func NewWithKey(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, ErrEncryptionFailed
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrEncryptionFailed
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrEncryptionFailed
	}
	return &Vault{aead: gcm}, nil
}

func deriveKey(secret, salt string) ([]byte, error) {
	if len(secret) == KeySize*2 {
		if key, err := hex.DecodeString(secret); err == nil {
			return key, nil
		}
	}
	if len(secret) < minSecretLength {
		return nil, ErrWeakSecret
	}
	if len(salt) < minSaltLength {
		return nil, ErrInvalidSalt
	}
	return argon2.IDKey([]byte(secret), []byte(salt), argonTime, argonMemory, argonParallelism, KeySize), nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", ErrEncryptionFailed
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Legacy plaintext passes
// through.
func (v *Vault) Decrypt(value string) (string, error) {
	ivHex, cipherHex, ok := strings.Cut(value, ":")
	if !ok {
		return value, nil
	}

	nonce, err := hex.DecodeString(ivHex)
	if err != nil || len(nonce) != v.aead.NonceSize() {
		return "", ErrDecryptionFailed
	}
	sealed, err := hex.DecodeString(cipherHex)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	plain, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// IsEncrypted reports whether value carries the encrypted envelope.
func IsEncrypted(value string) bool {
	return strings.Contains(value, ":")
}
