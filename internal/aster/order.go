package aster

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/asterbot/internal/apperr"
)

var ErrInvalidPrice = errors.New("price must be positive")

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// orderSide maps a position direction to the exchange order side.
func (s Side) orderSide() (string, error) {
	switch s {
	case SideLong:
		return "BUY", nil
	case SideShort:
		return "SELL", nil
	}
	return "", apperr.Invalid("order", "unknown side %q", s)
}

type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

type OrderRequest struct {
	Symbol   string
	Side     Side
	SizeUSDT decimal.Decimal
	Leverage int
	Type     OrderType
	// Price is required for limit orders.
	Price decimal.Decimal
}

type OrderResult struct {
	OrderID  string
	Symbol   string
	Side     string
	Status   string
	Quantity string
	AvgPrice decimal.Decimal
}

type orderResponse struct {
	OrderID  int64  `json:"orderId"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Status   string `json:"status"`
	OrigQty  string `json:"origQty"`
	AvgPrice string `json:"avgPrice"`
}

func (r orderResponse) result() *OrderResult {
	return &OrderResult{
		OrderID:  strconv.FormatInt(r.OrderID, 10),
		Symbol:   r.Symbol,
		Side:     r.Side,
		Status:   r.Status,
		Quantity: r.OrigQty,
		AvgPrice: dec(r.AvgPrice),
	}
}

// Quantity converts a USDT size into a base quantity truncated (never
// rounded) to precision decimals.
func Quantity(sizeUSDT, price decimal.Decimal, precision int32) (string, error) {
	if !price.IsPositive() {
		return "", apperr.Wrap(ErrInvalidPrice, apperr.KindInvalidParameter, "quantity", "price is not available")
	}
	if precision < 0 {
		precision = 0
	}
	q, _ := sizeUSDT.QuoRem(price, precision)
	return q.StringFixed(precision), nil
}

// SetLeverage sets symbol's leverage and checks the exchange echoed it.
func (c *Client) SetLeverage(ctx context.Context, creds Credentials, symbol string, leverage int) error {
	if leverage <= 0 {
		return apperr.Invalid("set_leverage", "leverage must be positive")
	}

	var resp struct {
		Symbol   string `json:"symbol"`
		Leverage int    `json:"leverage"`
	}
	err := c.getJSON(ctx, "set_leverage", request{
		method: http.MethodPost,
		base:   c.futuresURL,
		path:   "/fapi/v1/leverage",
		params: map[string]string{"symbol": symbol, "leverage": strconv.Itoa(leverage)},
		creds:  signed(creds),
	}, &resp)
	if err != nil {
		return err
	}
	if resp.Leverage != leverage {
		return apperr.New(apperr.KindInvalidParameter, "set_leverage", "leverage was not applied").
			WithHint("Pick a lower leverage.")
	}
	return nil
}

// PlaceOrder sets leverage, then submits the order. It is never retried.
func (c *Client) PlaceOrder(ctx context.Context, creds Credentials, req OrderRequest) (*OrderResult, error) {
	side, err := req.Side.orderSide()
	if err != nil {
		return nil, err
	}
	if !req.SizeUSDT.IsPositive() {
		return nil, apperr.Invalid("order", "size must be positive")
	}
	if req.Type == "" {
		req.Type = OrderMarket
	}

	info, err := c.symbol(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	precision := info.quantityPrecision()

	if req.Leverage > 0 {
		if err := c.SetLeverage(ctx, creds, req.Symbol, req.Leverage); err != nil {
			return nil, err
		}
	}

	params := map[string]string{
		"symbol": req.Symbol,
		"side":   side,
		"type":   string(req.Type),
	}

	var price decimal.Decimal
	switch req.Type {
	case OrderMarket:
		ticker, err := c.Price(ctx, creds, req.Symbol)
		if err != nil {
			return nil, err
		}
		price = ticker.Last
	case OrderLimit:
		if !req.Price.IsPositive() {
			return nil, apperr.Invalid("order", "limit orders need a price")
		}
		price = req.Price
		params["price"] = req.Price.StringFixed(info.PricePrecision)
		params["timeInForce"] = "GTC"
	default:
		return nil, apperr.Invalid("order", "unsupported order type %q", req.Type)
	}

	qty, err := Quantity(req.SizeUSDT, price, precision)
	if err != nil {
		return nil, err
	}
	if dec(qty).IsZero() {
		return nil, apperr.Invalid("order", "size is too small for %s", req.Symbol).WithHint("Increase the size.")
	}
	params["quantity"] = qty

	var resp orderResponse
	err = c.getJSON(ctx, "order", request{
		method: http.MethodPost,
		base:   c.futuresURL,
		path:   "/fapi/v1/order",
		params: params,
		creds:  signed(creds),
	}, &resp)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("symbol", req.Symbol).
		Str("side", side).
		Str("qty", qty).
		Int64("order_id", resp.OrderID).
		Msg("📝 Order placed")

	return resp.result(), nil
}

// ClosePosition submits a reduce-only market order opposite to the open
// position on symbol.
func (c *Client) ClosePosition(ctx context.Context, creds Credentials, symbol string) (*OrderResult, error) {
	positions, err := c.Positions(ctx, creds, symbol)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, apperr.Invalid("close", "no open position on %s", symbol).WithHint("Check /positions.")
	}
	pos := positions[0]

	var resp orderResponse
	err = c.getJSON(ctx, "close", request{
		method: http.MethodPost,
		base:   c.futuresURL,
		path:   "/fapi/v1/order",
		params: map[string]string{
			"symbol":     symbol,
			"side":       CloseSide(pos.Amount),
			"type":       string(OrderMarket),
			"quantity":   pos.Amount.Abs().String(),
			"reduceOnly": "true",
		},
		creds: signed(creds),
	}, &resp)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("symbol", symbol).
		Str("amount", pos.Amount.String()).
		Int64("order_id", resp.OrderID).
		Msg("📕 Position closed")

	return resp.result(), nil
}

// CloseSide returns the order side that reduces a position of the given
// signed amount: SELL for long, BUY for short.
func CloseSide(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return "BUY"
	}
	return "SELL"
}
