package aster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/asterbot/internal/apperr"
)

// Market is a tradable futures symbol.
type Market struct {
	Symbol            string
	BaseAsset         string
	QuoteAsset        string
	QuantityPrecision int32
	PricePrecision    int32
}

// Ticker is the 24h statistics of a symbol. Missing fields are zero.
type Ticker struct {
	Symbol    string
	Last      decimal.Decimal
	ChangePct decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Volume    decimal.Decimal
}

type Kline struct {
	OpenTime  int64           `json:"openTime"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	CloseTime int64           `json:"closeTime"`
}

type exchangeInfo struct {
	Symbols []symbolInfo `json:"symbols"`
}

type symbolInfo struct {
	Symbol            string         `json:"symbol"`
	Status            string         `json:"status"`
	BaseAsset         string         `json:"baseAsset"`
	QuoteAsset        string         `json:"quoteAsset"`
	QuantityPrecision *int32         `json:"quantityPrecision"`
	PricePrecision    int32          `json:"pricePrecision"`
	Filters           []symbolFilter `json:"filters"`
}

type symbolFilter struct {
	FilterType string `json:"filterType"`
	StepSize   string `json:"stepSize"`
}

// quantityPrecision prefers the declared precision and falls back to the
// LOT_SIZE step size.
func (s symbolInfo) quantityPrecision() int32 {
	if s.QuantityPrecision != nil {
		return *s.QuantityPrecision
	}
	for _, f := range s.Filters {
		if f.FilterType != "LOT_SIZE" || f.StepSize == "" {
			continue
		}
		trimmed := strings.TrimRight(f.StepSize, "0")
		if i := strings.IndexByte(trimmed, '.'); i >= 0 {
			return int32(len(trimmed) - i - 1)
		}
		return 0
	}
	return 0
}

// exchangeInfo returns the cached symbol list, refreshing it when stale.
func (c *Client) exchangeInfo(ctx context.Context) (*exchangeInfo, error) {
	c.infoMu.Lock()
	if c.info != nil && c.now().Sub(c.infoAt) < exchangeInfoTTL {
		info := c.info
		c.infoMu.Unlock()
		return info, nil
	}
	c.infoMu.Unlock()

	info, err := retryRead(ctx, c.retry, "exchange_info", func(ctx context.Context) (*exchangeInfo, error) {
		var info exchangeInfo
		err := c.getJSON(ctx, "exchange_info", request{
			method: http.MethodGet,
			base:   c.futuresURL,
			path:   "/fapi/v1/exchangeInfo",
		}, &info)
		return &info, err
	})
	if err != nil {
		return nil, err
	}

	c.infoMu.Lock()
	c.info, c.infoAt = info, c.now()
	c.infoMu.Unlock()
	return info, nil
}

func (c *Client) symbol(ctx context.Context, symbol string) (symbolInfo, error) {
	info, err := c.exchangeInfo(ctx)
	if err != nil {
		return symbolInfo{}, err
	}
	for _, s := range info.Symbols {
		if s.Symbol == symbol {
			return s, nil
		}
	}
	return symbolInfo{}, apperr.Invalid("symbol", "%s is not listed", symbol).WithHint("Pick a symbol from /markets.")
}

// Markets lists trading symbols quoted in the configured stable assets,
// sorted by symbol.
func (c *Client) Markets(ctx context.Context) ([]Market, error) {
	info, err := c.exchangeInfo(ctx)
	if err != nil {
		return nil, err
	}

	var out []Market
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || !c.isQuote(s) || isLeveragedToken(c.baseAsset(s)) {
			continue
		}
		out = append(out, Market{
			Symbol:            s.Symbol,
			BaseAsset:         s.BaseAsset,
			QuoteAsset:        s.QuoteAsset,
			QuantityPrecision: s.quantityPrecision(),
			PricePrecision:    s.PricePrecision,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (c *Client) isQuote(s symbolInfo) bool {
	for _, q := range c.quoteAssets {
		if s.QuoteAsset == q || (s.QuoteAsset == "" && strings.HasSuffix(s.Symbol, q)) {
			return true
		}
	}
	return false
}

// Leveraged tokens are listed as <underlying><suffix>, e.g. BTCUP.
var leveragedSuffixes = []string{"UP", "DOWN", "BULL", "BEAR"}

// minUnderlying keeps short bases such as JUP from matching a suffix.
const minUnderlying = 3

func isLeveragedToken(base string) bool {
	for _, suffix := range leveragedSuffixes {
		if strings.HasSuffix(base, suffix) && len(base)-len(suffix) >= minUnderlying {
			return true
		}
	}
	return false
}

// baseAsset returns the declared base asset or the symbol without its quote.
func (c *Client) baseAsset(s symbolInfo) string {
	if s.BaseAsset != "" {
		return s.BaseAsset
	}
	if s.QuoteAsset != "" {
		return strings.TrimSuffix(s.Symbol, s.QuoteAsset)
	}
	for _, q := range c.quoteAssets {
		if strings.HasSuffix(s.Symbol, q) {
			return strings.TrimSuffix(s.Symbol, q)
		}
	}
	return s.Symbol
}

// ResolveSymbol maps loose user input such as "btc" or "BTCUSDT" to a
// listed symbol.
func (c *Client) ResolveSymbol(ctx context.Context, query string) (string, error) {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return "", apperr.Invalid("symbol", "symbol is required")
	}
	info, err := c.exchangeInfo(ctx)
	if err != nil {
		return "", err
	}

	var partial string
	for _, s := range info.Symbols {
		switch {
		case s.Symbol == q:
			return s.Symbol, nil
		case s.Symbol == q+"USDT":
			partial = s.Symbol
		case partial == "" && strings.Contains(s.Symbol, q):
			partial = s.Symbol
		}
	}
	if partial == "" {
		return "", apperr.Invalid("symbol", "%s is not listed", q).WithHint("Pick a symbol from /markets.")
	}
	return partial, nil
}

// Price returns the 24h ticker of symbol.
func (c *Client) Price(ctx context.Context, creds Credentials, symbol string) (Ticker, error) {
	return retryRead(ctx, c.retry, "price", func(ctx context.Context) (Ticker, error) {
		var raw struct {
			Symbol             string `json:"symbol"`
			LastPrice          string `json:"lastPrice"`
			PriceChangePercent string `json:"priceChangePercent"`
			HighPrice          string `json:"highPrice"`
			LowPrice           string `json:"lowPrice"`
			Volume             string `json:"volume"`
		}
		err := c.getJSON(ctx, "price", request{
			method: http.MethodGet,
			base:   c.futuresURL,
			path:   "/fapi/v1/ticker/24hr",
			params: map[string]string{"symbol": symbol},
			creds:  signed(creds),
		}, &raw)
		if err != nil {
			return Ticker{}, err
		}
		if raw.Symbol == "" {
			raw.Symbol = symbol
		}
		return Ticker{
			Symbol:    raw.Symbol,
			Last:      dec(raw.LastPrice),
			ChangePct: dec(raw.PriceChangePercent),
			High:      dec(raw.HighPrice),
			Low:       dec(raw.LowPrice),
			Volume:    dec(raw.Volume),
		}, nil
	})
}

// MaxLeverage returns the highest initial leverage of symbol's brackets,
// or the default when the response has an unexpected shape.
func (c *Client) MaxLeverage(ctx context.Context, creds Credentials, symbol string) (int, error) {
	body, err := retryRead(ctx, c.retry, "leverage_bracket", func(ctx context.Context) ([]byte, error) {
		return c.call(ctx, "leverage_bracket", request{
			method: http.MethodGet,
			base:   c.futuresURL,
			path:   "/fapi/v1/leverageBracket",
			params: map[string]string{"symbol": symbol},
			creds:  signed(creds),
		})
	})
	if err != nil {
		return 0, err
	}
	if max := parseMaxLeverage(body, symbol); max > 0 {
		return max, nil
	}
	return c.defaultMaxLeverage, nil
}

type leverageBracket struct {
	Symbol   string `json:"symbol"`
	Brackets []struct {
		InitialLeverage int `json:"initialLeverage"`
	} `json:"brackets"`
}

func parseMaxLeverage(body []byte, symbol string) int {
	var list []leverageBracket
	if err := json.Unmarshal(body, &list); err != nil {
		var one leverageBracket
		if err := json.Unmarshal(body, &one); err != nil {
			return 0
		}
		list = []leverageBracket{one}
	}

	max := 0
	for _, lb := range list {
		if lb.Symbol != "" && lb.Symbol != symbol {
			continue
		}
		for _, b := range lb.Brackets {
			if b.InitialLeverage > max {
				max = b.InitialLeverage
			}
		}
	}
	return max
}

// Klines returns candlesticks for symbol. It needs no credentials.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	if symbol == "" || interval == "" {
		return nil, apperr.Invalid("klines", "symbol and interval are required")
	}
	if limit <= 0 || limit > 1500 {
		limit = 500
	}

	rows, err := retryRead(ctx, c.retry, "klines", func(ctx context.Context) ([][]json.RawMessage, error) {
		var rows [][]json.RawMessage
		err := c.getJSON(ctx, "klines", request{
			method: http.MethodGet,
			base:   c.futuresURL,
			path:   "/fapi/v1/klines",
			params: map[string]string{
				"symbol":   strings.ToUpper(symbol),
				"interval": interval,
				"limit":    strconv.Itoa(limit),
			},
		}, &rows)
		return rows, err
	})
	if err != nil {
		return nil, err
	}

	out := make([]Kline, 0, len(rows))
	for _, r := range rows {
		if len(r) < 7 {
			return nil, fmt.Errorf("klines: short row of %d fields", len(r))
		}
		out = append(out, Kline{
			OpenTime:  rawInt(r[0]),
			Open:      rawDec(r[1]),
			High:      rawDec(r[2]),
			Low:       rawDec(r[3]),
			Close:     rawDec(r[4]),
			Volume:    rawDec(r[5]),
			CloseTime: rawInt(r[6]),
		})
	}
	return out, nil
}

// dec parses a decimal string, treating anything malformed as zero.
func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func rawDec(m json.RawMessage) decimal.Decimal {
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		return dec(s)
	}
	return dec(string(m))
}

func rawInt(m json.RawMessage) int64 {
	var n int64
	if err := json.Unmarshal(m, &n); err != nil {
		return 0
	}
	return n
}
