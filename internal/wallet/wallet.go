// Package wallet creates custodial EVM wallets and moves ERC-20 tokens
// out of them.
package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/asterbot/internal/apperr"
	"github.com/web3guy0/asterbot/internal/signer"
)

const (
	fallbackBalance = "0.00"
	nativeDecimals  = 18

	defaultCallTimeout    = 15 * time.Second
	defaultConfirmTimeout = 2 * time.Minute
	defaultPollInterval   = 3 * time.Second
)

// ERC-20 selectors
var (
	selectorBalanceOf = common.Hex2Bytes("70a08231")
	selectorDecimals  = common.Hex2Bytes("313ce567")
	selectorTransfer  = common.Hex2Bytes("a9059cbb")
)

// Keys is a freshly generated wallet. PrivateKey is 0x-prefixed hex and
// must be encrypted before it is stored.
type Keys struct {
	Address    string
	PrivateKey string
}

// Create generates a new key pair from crypto/rand.
func Create() (Keys, error) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		return Keys{}, fmt.Errorf("generate key: %w", err)
	}
	return Keys{
		Address:    crypto.PubkeyToAddress(pk.PublicKey).Hex(),
		PrivateKey: "0x" + hex.EncodeToString(crypto.FromECDSA(pk)),
	}, nil
}

// ChainClient is the subset of ethclient.Client the helper uses.
type ChainClient interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

type Options struct {
	// Token is the ERC-20 contract SendToken transfers.
	Token string
	// MinGas is the native balance kept back for fees, in whole units.
	MinGas decimal.Decimal

	CallTimeout    time.Duration
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

type Helper struct {
	client ChainClient
	token  common.Address
	minGas *big.Int

	callTimeout    time.Duration
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// Dial connects to the RPC node at rpcURL.
func Dial(ctx context.Context, rpcURL string, opts Options) (*Helper, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return New(client, opts)
}

func New(client ChainClient, opts Options) (*Helper, error) {
	if !common.IsHexAddress(opts.Token) {
		return nil, fmt.Errorf("invalid token address: %q", opts.Token)
	}
	h := &Helper{
		client:         client,
		token:          common.HexToAddress(opts.Token),
		minGas:         opts.MinGas.Shift(nativeDecimals).BigInt(),
		callTimeout:    opts.CallTimeout,
		confirmTimeout: opts.ConfirmTimeout,
		pollInterval:   opts.PollInterval,
	}
	if h.callTimeout <= 0 {
		h.callTimeout = defaultCallTimeout
	}
	if h.confirmTimeout <= 0 {
		h.confirmTimeout = defaultConfirmTimeout
	}
	if h.pollInterval <= 0 {
		h.pollInterval = defaultPollInterval
	}
	return h, nil
}

// Token returns the address SendToken transfers.
func (h *Helper) Token() string { return h.token.Hex() }

// NativeBalance returns the gas-token balance for display. RPC failures
// yield "0.00".
func (h *Helper) NativeBalance(ctx context.Context, address string) string {
	wei, err := h.nativeBalance(ctx, common.HexToAddress(address))
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Native balance lookup failed")
		return fallbackBalance
	}
	return decimal.NewFromBigInt(wei, -nativeDecimals).StringFixed(4)
}

// TokenBalance returns the ERC-20 balance of address for display. RPC
// failures yield "0.00".
func (h *Helper) TokenBalance(ctx context.Context, address, token string) string {
	if !common.IsHexAddress(token) {
		return fallbackBalance
	}
	tokenAddr := common.HexToAddress(token)
	raw, err := h.tokenBalance(ctx, tokenAddr, common.HexToAddress(address))
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Token balance lookup failed")
		return fallbackBalance
	}
	decimals, err := h.decimals(ctx, tokenAddr)
	if err != nil {
		return fallbackBalance
	}
	return decimal.NewFromBigInt(raw, -decimals).StringFixed(4)
}

func (h *Helper) nativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, h.callTimeout)
	defer cancel()
	return h.client.BalanceAt(ctx, addr, nil)
}

func (h *Helper) tokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, h.callTimeout)
	defer cancel()

	data := append(append([]byte{}, selectorBalanceOf...), common.LeftPadBytes(holder.Bytes(), 32)...)
	result, err := h.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, errors.New("empty balanceOf result")
	}
	return new(big.Int).SetBytes(result), nil
}

func (h *Helper) decimals(ctx context.Context, token common.Address) (int32, error) {
	ctx, cancel := context.WithTimeout(ctx, h.callTimeout)
	defer cancel()

	result, err := h.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: selectorDecimals}, nil)
	if err != nil {
		return 0, err
	}
	if len(result) == 0 {
		return 0, errors.New("empty decimals result")
	}
	return int32(new(big.Int).SetBytes(result).Int64()), nil
}

// SendToken transfers amount of the configured token from the wallet of
// privateKey to to, and waits for one confirmation.
func (h *Helper) SendToken(ctx context.Context, privateKey, to string, amount decimal.Decimal) (string, error) {
	const op = "send_token"

	if !common.IsHexAddress(to) {
		return "", apperr.Invalid(op, "destination address is invalid")
	}
	if !amount.IsPositive() {
		return "", apperr.Invalid(op, "amount must be positive")
	}
	pk, err := signer.ParsePrivateKey(privateKey)
	if err != nil {
		return "", apperr.Wrap(err, apperr.KindAuthentication, op, "wallet key could not be loaded")
	}
	from := crypto.PubkeyToAddress(pk.PublicKey)
	dest := common.HexToAddress(to)

	decimals, err := h.decimals(ctx, h.token)
	if err != nil {
		return "", apperr.Transient(op, err)
	}
	value := amount.Shift(decimals).Truncate(0).BigInt()

	balance, err := h.tokenBalance(ctx, h.token, from)
	if err != nil {
		return "", apperr.Transient(op, err)
	}
	if balance.Cmp(value) < 0 {
		have := decimal.NewFromBigInt(balance, -decimals).StringFixed(2)
		return "", apperr.New(apperr.KindInsufficientFunds, op, "not enough tokens in your wallet (have "+have+")").
			WithHint("Send tokens to " + from.Hex() + " and try again.")
	}

	data := append(append([]byte{}, selectorTransfer...), common.LeftPadBytes(dest.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(value.Bytes(), 32)...)

	callCtx, cancel := context.WithTimeout(ctx, h.callTimeout)
	defer cancel()

	gasPrice, err := h.client.SuggestGasPrice(callCtx)
	if err != nil {
		return "", apperr.Transient(op, err)
	}
	gasLimit, err := h.client.EstimateGas(callCtx, ethereum.CallMsg{From: from, To: &h.token, Data: data})
	if err != nil {
		if isInsufficientGas(err) {
			return "", insufficientGas(op, from, err)
		}
		return "", apperr.Wrap(err, apperr.KindInvalidParameter, op, "the token transfer would fail")
	}

	native, err := h.client.BalanceAt(callCtx, from, nil)
	if err != nil {
		return "", apperr.Transient(op, err)
	}
	need := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	if need.Cmp(h.minGas) < 0 {
		need = h.minGas
	}
	if native.Cmp(need) < 0 {
		return "", insufficientGas(op, from, nil)
	}

	nonce, err := h.client.PendingNonceAt(callCtx, from)
	if err != nil {
		return "", apperr.Transient(op, err)
	}
	chainID, err := h.client.ChainID(callCtx)
	if err != nil {
		return "", apperr.Transient(op, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &h.token,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), pk)
	if err != nil {
		return "", fmt.Errorf("%s: sign: %w", op, err)
	}

	if err := h.client.SendTransaction(callCtx, signedTx); err != nil {
		if isInsufficientGas(err) {
			return "", insufficientGas(op, from, err)
		}
		return "", apperr.Transient(op, err)
	}

	hash := signedTx.Hash()
	log.Info().Str("tx", hash.Hex()).Str("from", from.Hex()).Str("to", dest.Hex()).Msg("⛓️ Token transfer sent")

	if err := h.waitMined(ctx, hash); err != nil {
		return hash.Hex(), err
	}
	return hash.Hex(), nil
}

func (h *Helper) waitMined(ctx context.Context, hash common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, h.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		callCtx, callCancel := context.WithTimeout(ctx, h.callTimeout)
		receipt, err := h.client.TransactionReceipt(callCtx, hash)
		callCancel()

		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return apperr.New(apperr.KindInvalidParameter, "send_token", "transaction reverted on chain")
			}
			return nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			log.Debug().Err(err).Str("tx", hash.Hex()).Msg("Receipt lookup failed")
		}

		select {
		case <-ctx.Done():
			return apperr.Wrap(ctx.Err(), apperr.KindTransient, "send_token", "transaction was sent but not yet confirmed")
		case <-ticker.C:
		}
	}
}

func isInsufficientGas(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "insufficient funds")
}

func insufficientGas(op string, from common.Address, cause error) error {
	e := &apperr.Error{
		Kind: apperr.KindInsufficientFunds,
		Op:   op,
		Msg:  "not enough BNB to pay for gas",
		Hint: "Send a little BNB to " + from.Hex() + " for fees.",
		Err:  cause,
	}
	return e
}

// IsInsufficientGas reports whether err is the gas shortfall of SendToken.
func IsInsufficientGas(err error) bool {
	e, ok := apperr.As(err)
	return ok && e.Kind == apperr.KindInsufficientFunds && strings.Contains(e.Msg, "gas")
}
