package aster

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

// Balance is the USDT row of the futures wallet.
type Balance struct {
	Asset     string
	Total     decimal.Decimal
	Available decimal.Decimal
}

// Position is an open futures position. Amount is signed: positive for
// long, negative for short.
type Position struct {
	Symbol        string
	Amount        decimal.Decimal
	EntryPrice    decimal.Decimal
	MarkPrice     decimal.Decimal
	Leverage      int
	UnrealizedPnL decimal.Decimal
}

// IsLong reports whether the position is long.
func (p Position) IsLong() bool { return p.Amount.IsPositive() }

// AccountBalance returns the futures USDT balance. An account without a
// USDT row has a zero balance.
func (c *Client) AccountBalance(ctx context.Context, creds Credentials) (Balance, error) {
	return retryRead(ctx, c.retry, "balance", func(ctx context.Context) (Balance, error) {
		var rows []struct {
			Asset            string `json:"asset"`
			Balance          string `json:"balance"`
			AvailableBalance string `json:"availableBalance"`
		}
		err := c.getJSON(ctx, "balance", request{
			method: http.MethodGet,
			base:   c.futuresURL,
			path:   "/fapi/v2/balance",
			creds:  signed(creds),
		}, &rows)
		if err != nil {
			return Balance{}, err
		}

		for _, r := range rows {
			if r.Asset == "USDT" {
				return Balance{Asset: r.Asset, Total: dec(r.Balance), Available: dec(r.AvailableBalance)}, nil
			}
		}
		return Balance{Asset: "USDT", Total: decimal.Zero, Available: decimal.Zero}, nil
	})
}

// SpotBalances returns free+locked per asset for assets with a non-zero
// holding.
func (c *Client) SpotBalances(ctx context.Context, creds Credentials) (map[string]decimal.Decimal, error) {
	return retryRead(ctx, c.retry, "spot_balance", func(ctx context.Context) (map[string]decimal.Decimal, error) {
		var account struct {
			Balances []struct {
				Asset  string `json:"asset"`
				Free   string `json:"free"`
				Locked string `json:"locked"`
			} `json:"balances"`
		}
		err := c.getJSON(ctx, "spot_balance", request{
			method: http.MethodGet,
			base:   c.spotURL,
			path:   "/api/v1/account",
			creds:  signed(creds),
		}, &account)
		if err != nil {
			return nil, err
		}

		out := make(map[string]decimal.Decimal)
		for _, b := range account.Balances {
			total := dec(b.Free).Add(dec(b.Locked))
			if !total.IsZero() {
				out[b.Asset] = total
			}
		}
		return out, nil
	})
}

// Positions returns the open positions, optionally limited to symbol.
func (c *Client) Positions(ctx context.Context, creds Credentials, symbol string) ([]Position, error) {
	return retryRead(ctx, c.retry, "positions", func(ctx context.Context) ([]Position, error) {
		params := map[string]string{}
		if symbol != "" {
			params["symbol"] = symbol
		}

		var rows []struct {
			Symbol           string `json:"symbol"`
			PositionAmt      string `json:"positionAmt"`
			EntryPrice       string `json:"entryPrice"`
			MarkPrice        string `json:"markPrice"`
			Leverage         string `json:"leverage"`
			UnRealizedProfit string `json:"unRealizedProfit"`
		}
		err := c.getJSON(ctx, "positions", request{
			method: http.MethodGet,
			base:   c.futuresURL,
			path:   "/fapi/v2/positionRisk",
			params: params,
			creds:  signed(creds),
		}, &rows)
		if err != nil {
			return nil, err
		}

		var out []Position
		for _, r := range rows {
			amt := dec(r.PositionAmt)
			if amt.IsZero() || (symbol != "" && r.Symbol != symbol) {
				continue
			}
			out = append(out, Position{
				Symbol:        r.Symbol,
				Amount:        amt,
				EntryPrice:    dec(r.EntryPrice),
				MarkPrice:     dec(r.MarkPrice),
				Leverage:      int(dec(r.Leverage).IntPart()),
				UnrealizedPnL: dec(r.UnRealizedProfit),
			})
		}
		return out, nil
	})
}
