package signer

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ParsePrivateKey accepts a hex key with or without the 0x prefix.
func ParsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if privateKeyHex == "" {
		return nil, ErrInvalidSigningInput
	}
	pk, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return pk, nil
}

// WalletSign signs message as an Ethereum personal message and returns
// the 65-byte signature as 0x-prefixed hex with V in {27,28}.
func WalletSign(privateKeyHex, message string) (string, error) {
	if message == "" {
		return "", ErrInvalidSigningInput
	}
	pk, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return "", err
	}

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), pk)
	if err != nil {
		return "", err
	}

	// Adjust V value for Ethereum compatibility
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverAddress returns the signer of a personal message signature.
func RecoverAddress(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature length %d", len(sig))
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
