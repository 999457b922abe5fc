package aster

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/web3guy0/asterbot/internal/apperr"
)

// apiError is the {code, msg} body the exchange returns on failure.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e apiError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Msg)
}

type codeInfo struct {
	kind apperr.Kind
	msg  string
	hint string
}

var codes = map[int]codeInfo{
	-1003: {apperr.KindRateLimited, "too many requests", ""},
	-1015: {apperr.KindRateLimited, "too many orders", ""},
	-1021: {apperr.KindTransient, "request timestamp is outside the allowed window", "Try again."},
	-1022: {apperr.KindAuthentication, "signature was rejected", ""},
	-2014: {apperr.KindAuthentication, "API key format is invalid", ""},
	-2015: {apperr.KindAuthentication, "API key, IP or permissions were rejected", ""},
	-1013: {apperr.KindInvalidParameter, "order size is below the symbol minimum", "Increase the size."},
	-1111: {apperr.KindInvalidParameter, "quantity has too many decimals", ""},
	-1121: {apperr.KindInvalidParameter, "symbol is not valid", "Pick a symbol from /markets."},
	-4003: {apperr.KindInvalidParameter, "quantity is below the minimum", "Increase the size."},
	-4028: {apperr.KindInvalidParameter, "leverage is not valid for this symbol", "Pick a lower leverage."},
	-4095: {apperr.KindInvalidParameter, "symbol is not supported", "Pick a symbol from /markets."},
	-4164: {apperr.KindInvalidParameter, "order notional is below the minimum", "Increase the size."},
	-2018: {apperr.KindInsufficientFunds, "balance is insufficient", ""},
	-2019: {apperr.KindInsufficientFunds, "margin is insufficient", "Deposit with /deposit, move funds with /transfer, or lower the size."},
	-4050: {apperr.KindInsufficientFunds, "cross balance is insufficient", ""},
}

// classify turns a non-success response into a classified error. It
// returns nil for successful responses.
func classify(op string, status int, body []byte) error {
	var ae apiError
	hasCode := json.Unmarshal(body, &ae) == nil && ae.Code < 0

	if status < 400 && !hasCode {
		return nil
	}

	var cause error = ae
	if !hasCode {
		cause = fmt.Errorf("API error %d: %s", status, truncate(string(body), 200))
	}

	if hasCode {
		if info, ok := codes[ae.Code]; ok {
			return &apperr.Error{Kind: info.kind, Op: op, Msg: info.msg, Hint: info.hint, Code: ae.Code, Err: cause}
		}
	}

	kind, msg := classifyStatus(status)
	if hasCode && status < 400 {
		kind, msg = apperr.KindInvalidParameter, "request was rejected"
	}
	if hasCode && kind == apperr.KindInvalidParameter {
		if info, ok := classifyRange(ae); ok {
			kind, msg = info.kind, info.msg
		}
	}
	return &apperr.Error{Kind: kind, Op: op, Msg: msg, Code: ae.Code, Err: cause}
}

func classifyStatus(status int) (apperr.Kind, string) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.KindAuthentication, "credentials were rejected"
	case status == http.StatusTooManyRequests || status == http.StatusTeapot:
		return apperr.KindRateLimited, "exchange rate limit reached"
	case status >= 500:
		return apperr.KindTransient, "exchange is temporarily unavailable"
	default:
		return apperr.KindInvalidParameter, "request was rejected"
	}
}

func classifyRange(ae apiError) (codeInfo, bool) {
	msg := strings.ToLower(ae.Msg)
	switch {
	case strings.Contains(msg, "insufficient") || strings.Contains(msg, "margin is"):
		return codeInfo{kind: apperr.KindInsufficientFunds, msg: "balance is insufficient"}, true
	case ae.Code <= -1100 && ae.Code >= -1130:
		return codeInfo{kind: apperr.KindInvalidParameter, msg: "a request parameter was rejected"}, true
	}
	return codeInfo{}, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
