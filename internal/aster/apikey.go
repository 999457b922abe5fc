package aster

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/asterbot/internal/apperr"
	"github.com/web3guy0/asterbot/internal/signer"
	"github.com/web3guy0/asterbot/internal/wallet"
)

const (
	loginMessage       = "You are signing into Astherus "
	createKeyOperation = "CREATE_API_KEY"
)

// CreateAPIKeys issues an API key pair bound to the wallet: fetch a
// nonce for the address, sign the login message with the wallet key,
// and exchange the signature for credentials.
func (c *Client) CreateAPIKeys(ctx context.Context, w wallet.Keys) (Credentials, error) {
	const op = "create_api_key"

	if w.Address == "" || w.PrivateKey == "" {
		return Credentials{}, apperr.Invalid(op, "wallet is incomplete")
	}

	nonceBody, err := c.call(ctx, op, c.handshake("/api/v1/getNonce", map[string]string{
		"address":           w.Address,
		"userOperationType": createKeyOperation,
	}))
	if err != nil {
		return Credentials{}, err
	}
	nonce, err := parseNonce(nonceBody)
	if err != nil {
		return Credentials{}, apperr.Wrap(err, apperr.KindUnknown, op, "unexpected response from the exchange")
	}

	signature, err := signer.WalletSign(w.PrivateKey, loginMessage+nonce)
	if err != nil {
		return Credentials{}, apperr.Wrap(err, apperr.KindInvalidParameter, op, "wallet could not sign the login message")
	}

	var resp struct {
		APIKey    string `json:"apiKey"`
		APISecret string `json:"apiSecret"`
	}
	err = c.getJSON(ctx, op, c.handshake("/api/v1/createApiKey", map[string]string{
		"address":           w.Address,
		"userOperationType": createKeyOperation,
		"userSignature":     signature,
		"desc":              "asterbot_" + strconv.FormatInt(c.now().UnixMilli(), 10),
	}), &resp)
	if err != nil {
		return Credentials{}, err
	}
	if resp.APIKey == "" || resp.APISecret == "" {
		return Credentials{}, apperr.New(apperr.KindUnknown, op, "exchange returned empty credentials")
	}

	log.Info().Str("address", w.Address).Msg("🔑 API key created")

	return Credentials{APIKey: resp.APIKey, APISecret: resp.APISecret}, nil
}

// handshake signs with the operator key when one is configured.
func (c *Client) handshake(path string, params map[string]string) request {
	r := request{
		method: http.MethodPost,
		base:   c.spotURL,
		path:   path,
		params: params,
	}
	if c.operator.APIKey != "" && c.operator.APISecret != "" {
		r.creds = signed(c.operator)
	}
	return r
}

var errEmptyNonce = errors.New("empty nonce")

// parseNonce accepts a bare number, a quoted string or {"nonce": ...}.
func parseNonce(body []byte) (string, error) {
	var obj struct {
		Nonce json.Number `json:"nonce"`
	}
	if err := json.Unmarshal(body, &obj); err == nil && obj.Nonce != "" {
		return obj.Nonce.String(), nil
	}

	var n json.Number
	if err := json.Unmarshal(body, &n); err == nil && n != "" {
		return n.String(), nil
	}

	s := strings.Trim(strings.TrimSpace(string(body)), `"`)
	if s == "" {
		return "", errEmptyNonce
	}
	return s, nil
}
