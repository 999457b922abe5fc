// Package signer produces the two signatures the exchange accepts:
// HMAC-SHA256 over a canonical query string for API calls, and an
// EIP-191 personal-message signature from a custodial wallet.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
)

// ErrInvalidSigningInput is returned for an empty secret, payload or key.
var ErrInvalidSigningInput = errors.New("invalid signing input")

// Canonical serializes params as key=value pairs sorted by key and joined
// with '&'. Values are query-escaped, so the returned bytes are exactly
// what goes on the wire.
func Canonical(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

// HMAC returns the lowercase hex HMAC-SHA256 of payload under secret.
func HMAC(secret, payload string) (string, error) {
	if secret == "" || payload == "" {
		return "", ErrInvalidSigningInput
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SignParams canonicalizes params and appends the signature as the last
// parameter. params must already contain recvWindow and timestamp.
func SignParams(secret string, params map[string]string) (string, error) {
	payload := Canonical(params)
	sig, err := HMAC(secret, payload)
	if err != nil {
		return "", err
	}
	return payload + "&signature=" + sig, nil
}
