// Package aster is a REST client for the Aster futures and spot APIs.
//
// One Client is shared by every user; each call receives the user's
// credentials. Signed requests carry recvWindow and timestamp, are
// canonicalized by the signer, and send the key in X-MBX-APIKEY.
package aster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/asterbot/internal/apperr"
	"github.com/web3guy0/asterbot/internal/signer"
)

const (
	DefaultFuturesURL = "https://fapi.asterdex.com"
	DefaultSpotURL    = "https://sapi.asterdex.com"

	DefaultTimeout     = 15 * time.Second
	DefaultRecvWindow  = 5000
	DefaultMaxLeverage = 100

	exchangeInfoTTL = 5 * time.Minute
)

// Credentials are one user's API key pair.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Options configure a Client. Zero values fall back to the defaults.
type Options struct {
	FuturesURL         string
	SpotURL            string
	Timeout            time.Duration
	RecvWindow         int64
	Retry              RetryConfig
	QuoteAssets        []string
	DefaultMaxLeverage int

	// Operator signs the API key handshake for new wallets when set.
	Operator Credentials
}

type Client struct {
	futuresURL         string
	spotURL            string
	httpClient         *http.Client
	recvWindow         int64
	retry              RetryConfig
	quoteAssets        []string
	defaultMaxLeverage int
	operator           Credentials

	now   func() time.Time
	newID func() string

	infoMu sync.Mutex
	info   *exchangeInfo
	infoAt time.Time
}

func New(opts Options) *Client {
	c := &Client{
		futuresURL:         strings.TrimRight(opts.FuturesURL, "/"),
		spotURL:            strings.TrimRight(opts.SpotURL, "/"),
		httpClient:         &http.Client{Timeout: opts.Timeout},
		recvWindow:         opts.RecvWindow,
		retry:              opts.Retry,
		quoteAssets:        opts.QuoteAssets,
		defaultMaxLeverage: opts.DefaultMaxLeverage,
		operator:           opts.Operator,
		now:                time.Now,
		newID:              uuid.NewString,
	}
	if c.futuresURL == "" {
		c.futuresURL = DefaultFuturesURL
	}
	if c.spotURL == "" {
		c.spotURL = DefaultSpotURL
	}
	if c.httpClient.Timeout <= 0 || c.httpClient.Timeout > DefaultTimeout {
		c.httpClient.Timeout = DefaultTimeout
	}
	if c.recvWindow <= 0 {
		c.recvWindow = DefaultRecvWindow
	}
	if c.retry.MaxTries <= 0 {
		c.retry = DefaultRetryConfig()
	}
	if len(c.quoteAssets) == 0 {
		c.quoteAssets = []string{"USDT", "USDC", "USD1"}
	}
	if c.defaultMaxLeverage <= 0 {
		c.defaultMaxLeverage = DefaultMaxLeverage
	}
	return c
}

type request struct {
	method string
	base   string
	path   string
	params map[string]string
	creds  *Credentials
}

// call sends r and returns the raw body of a successful response.
// Failures come back classified.
func (c *Client) call(ctx context.Context, op string, r request) ([]byte, error) {
	params := make(map[string]string, len(r.params)+2)
	for k, v := range r.params {
		params[k] = v
	}

	var encoded string
	if r.creds != nil {
		params["recvWindow"] = strconv.FormatInt(c.recvWindow, 10)
		params["timestamp"] = strconv.FormatInt(c.now().UnixMilli(), 10)
		query, err := signer.SignParams(r.creds.APISecret, params)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindAuthentication, op, "API credentials are missing")
		}
		encoded = query
	} else {
		encoded = signer.Canonical(params)
	}

	url := r.base + r.path
	var body io.Reader
	if r.method == http.MethodGet || r.method == http.MethodDelete {
		if encoded != "" {
			url += "?" + encoded
		}
	} else {
		body = strings.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if r.creds != nil && r.creds.APIKey != "" {
		req.Header.Set("X-MBX-APIKEY", r.creds.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Transient(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Transient(op, err)
	}

	log.Debug().
		Str("op", op).
		Str("path", r.path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Exchange request")

	if err := classify(op, resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

func (c *Client) getJSON(ctx context.Context, op string, r request, out interface{}) error {
	body, err := c.call(ctx, op, r)
	if err != nil {
		return err
	}
	return decode(op, body, out)
}

func decode(op string, body []byte, out interface{}) error {
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Wrap(fmt.Errorf("parse error: %w", err), apperr.KindUnknown, op, "unexpected response from the exchange")
	}
	return nil
}

func signed(creds Credentials) *Credentials {
	return &creds
}
