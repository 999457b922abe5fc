package aster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/asterbot/internal/apperr"
	"github.com/web3guy0/asterbot/internal/signer"
	"github.com/web3guy0/asterbot/internal/wallet"
)

var testCreds = Credentials{APIKey: "key-1", APISecret: "secret-1"}

// fakeExchange records every request and answers from per-path handlers.
type fakeExchange struct {
	t        *testing.T
	mu       sync.Mutex
	calls    []recorded
	handlers map[string]func(w http.ResponseWriter, params url.Values)
}

type recorded struct {
	method string
	path   string
	params url.Values
	apiKey string
}

func newFakeExchange(t *testing.T) (*fakeExchange, *Client) {
	t.Helper()
	f := &fakeExchange{t: t, handlers: map[string]func(http.ResponseWriter, url.Values){}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	c := New(Options{
		FuturesURL: srv.URL,
		SpotURL:    srv.URL,
		Timeout:    2 * time.Second,
		Retry:      RetryConfig{MaxTries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	})
	c.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return f, c
}

func (f *fakeExchange) handle(path string, h func(w http.ResponseWriter, params url.Values)) {
	f.handlers[path] = h
}

func (f *fakeExchange) json(path string, status int, body string) {
	f.handle(path, func(w http.ResponseWriter, _ url.Values) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	})
}

func (f *fakeExchange) serve(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.RawQuery
	if r.Method == http.MethodPost {
		b, _ := io.ReadAll(r.Body)
		raw = string(b)
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			f.t.Errorf("%s: content type %q", r.URL.Path, ct)
		}
	}

	apiKey := r.Header.Get("X-MBX-APIKEY")
	if apiKey != "" {
		verifySignature(f.t, r.URL.Path, raw)
	}

	params, _ := url.ParseQuery(raw)
	f.mu.Lock()
	f.calls = append(f.calls, recorded{method: r.Method, path: r.URL.Path, params: params, apiKey: apiKey})
	h := f.handlers[r.URL.Path]
	f.mu.Unlock()

	if h == nil {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"code":-1,"msg":"not found"}`)
		return
	}
	h(w, params)
}

func (f *fakeExchange) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.path
	}
	return out
}

func (f *fakeExchange) callsTo(path string) []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recorded
	for _, c := range f.calls {
		if c.path == path {
			out = append(out, c)
		}
	}
	return out
}

func verifySignature(t *testing.T, path, raw string) {
	t.Helper()
	i := strings.LastIndex(raw, "&signature=")
	if i < 0 {
		t.Errorf("%s: missing signature in %q", path, raw)
		return
	}
	payload, sig := raw[:i], raw[i+len("&signature="):]
	want, _ := signer.HMAC(testCreds.APISecret, payload)
	if sig != want {
		t.Errorf("%s: signature mismatch", path)
	}
	params, _ := url.ParseQuery(payload)
	if params.Get("recvWindow") != "5000" || params.Get("timestamp") != "1700000000000" {
		t.Errorf("%s: recvWindow/timestamp missing in %q", path, payload)
	}
	if payload != signer.Canonical(flatten(params)) {
		t.Errorf("%s: payload %q is not canonical", path, payload)
	}
}

func flatten(v url.Values) map[string]string {
	m := map[string]string{}
	for k := range v {
		m[k] = v.Get(k)
	}
	return m
}

const exchangeInfoBody = `{"symbols":[
	{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT","quantityPrecision":3,"pricePrecision":1},
	{"symbol":"ETHUSDT","status":"TRADING","baseAsset":"ETH","quoteAsset":"USDT","quantityPrecision":3,"pricePrecision":2},
	{"symbol":"DOGEUSDT","status":"TRADING","baseAsset":"DOGE","quoteAsset":"USDT","quantityPrecision":0,"pricePrecision":5},
	{"symbol":"SOLUSDT","status":"TRADING","baseAsset":"SOL","quoteAsset":"USDT","filters":[{"filterType":"LOT_SIZE","stepSize":"0.0100"}]},
	{"symbol":"OLDUSDT","status":"SETTLING","baseAsset":"OLD","quoteAsset":"USDT","quantityPrecision":1},
	{"symbol":"ETHBTC","status":"TRADING","baseAsset":"ETH","quoteAsset":"BTC","quantityPrecision":3},
	{"symbol":"BTCUPUSDT","status":"TRADING","baseAsset":"BTCUP","quoteAsset":"USDT","quantityPrecision":2},
	{"symbol":"ETHDOWNUSDT","status":"TRADING","baseAsset":"ETHDOWN","quoteAsset":"USDT","quantityPrecision":2},
	{"symbol":"BNBBULLUSDT","status":"TRADING","quoteAsset":"USDT","quantityPrecision":2},
	{"symbol":"XRPBEARUSDT","status":"TRADING","quantityPrecision":2},
	{"symbol":"JUPUSDT","status":"TRADING","baseAsset":"JUP","quoteAsset":"USDT","quantityPrecision":0}
]}`

func TestAccountBalanceSignedRequest(t *testing.T) {
	f, c := newFakeExchange(t)
	f.json("/fapi/v2/balance", 200, `[{"asset":"BNB","balance":"1"},{"asset":"USDT","balance":"150.5","availableBalance":"100.25"}]`)

	bal, err := c.AccountBalance(context.Background(), testCreds)
	if err != nil {
		t.Fatalf("AccountBalance() error = %v", err)
	}
	if !bal.Total.Equal(decimal.RequireFromString("150.5")) || !bal.Available.Equal(decimal.RequireFromString("100.25")) {
		t.Fatalf("AccountBalance() = %+v", bal)
	}

	calls := f.callsTo("/fapi/v2/balance")
	if len(calls) != 1 || calls[0].apiKey != "key-1" || calls[0].method != http.MethodGet {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestAccountBalanceEmptyIsZero(t *testing.T) {
	f, c := newFakeExchange(t)
	f.json("/fapi/v2/balance", 200, `[]`)

	bal, err := c.AccountBalance(context.Background(), testCreds)
	if err != nil {
		t.Fatalf("AccountBalance() error = %v", err)
	}
	if !bal.Available.IsZero() || bal.Available.StringFixed(2) != "0.00" {
		t.Fatalf("Available = %s", bal.Available)
	}
}

func TestMissingCredentialsIsAuthError(t *testing.T) {
	_, c := newFakeExchange(t)
	_, err := c.AccountBalance(context.Background(), Credentials{APIKey: "k"})
	if !apperr.Is(err, apperr.KindAuthentication) {
		t.Fatalf("err = %v, want authentication", err)
	}
}

func TestSpotBalances(t *testing.T) {
	f, c := newFakeExchange(t)
	f.json("/api/v1/account", 200, `{"balances":[
		{"asset":"USDT","free":"10.5","locked":"2"},
		{"asset":"BNB","free":"0","locked":"0"},
		{"asset":"ASTER","free":"0","locked":"3"}]}`)

	got, err := c.SpotBalances(context.Background(), testCreds)
	if err != nil {
		t.Fatalf("SpotBalances() error = %v", err)
	}
	if len(got) != 2 || !got["USDT"].Equal(decimal.RequireFromString("12.5")) || !got["ASTER"].Equal(decimal.NewFromInt(3)) {
		t.Fatalf("SpotBalances() = %v", got)
	}
}

func TestMarkets(t *testing.T) {
	f, c := newFakeExchange(t)
	f.json("/fapi/v1/exchangeInfo", 200, exchangeInfoBody)

	markets, err := c.Markets(context.Background())
	if err != nil {
		t.Fatalf("Markets() error = %v", err)
	}
	var symbols []string
	for _, m := range markets {
		symbols = append(symbols, m.Symbol)
	}
	if got := strings.Join(symbols, ","); got != "BTCUSDT,DOGEUSDT,ETHUSDT,JUPUSDT,SOLUSDT" {
		t.Fatalf("Markets() = %s", got)
	}
	if markets[4].QuantityPrecision != 2 {
		t.Fatalf("SOLUSDT precision from step size = %d, want 2", markets[4].QuantityPrecision)
	}

	// Cached: a second call does not hit the exchange.
	c.Markets(context.Background())
	if n := len(f.callsTo("/fapi/v1/exchangeInfo")); n != 1 {
		t.Fatalf("exchangeInfo fetched %d times", n)
	}
}

func TestIsLeveragedToken(t *testing.T) {
	tests := map[string]bool{
		"BTCUP":   true,
		"ETHDOWN": true,
		"BNBBULL": true,
		"XRPBEAR": true,
		"BTC":     false,
		"JUP":     false,
		"SUP":     false,
		"":        false,
	}
	for base, want := range tests {
		t.Run(base, func(t *testing.T) {
			if got := isLeveragedToken(base); got != want {
				t.Errorf("isLeveragedToken(%q) = %v, want %v", base, got, want)
			}
		})
	}
}

func TestResolveSymbol(t *testing.T) {
	f, c := newFakeExchange(t)
	f.json("/fapi/v1/exchangeInfo", 200, exchangeInfoBody)
	ctx := context.Background()

	tests := map[string]string{"btcusdt": "BTCUSDT", "eth": "ETHUSDT", "SOL": "SOLUSDT"}
	for in, want := range tests {
		got, err := c.ResolveSymbol(ctx, in)
		if err != nil || got != want {
			t.Fatalf("ResolveSymbol(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := c.ResolveSymbol(ctx, "XYZ"); !apperr.Is(err, apperr.KindInvalidParameter) {
		t.Fatalf("unknown symbol err = %v", err)
	}
}

func TestPriceDefaultsMalformedFields(t *testing.T) {
	f, c := newFakeExchange(t)
	f.json("/fapi/v1/ticker/24hr", 200, `{"symbol":"BTCUSDT","lastPrice":"50000.5","highPrice":"oops"}`)

	tk, err := c.Price(context.Background(), testCreds, "BTCUSDT")
	if err != nil {
		t.Fatalf("Price() error = %v", err)
	}
	if !tk.Last.Equal(decimal.RequireFromString("50000.5")) || !tk.High.IsZero() || !tk.Volume.IsZero() {
		t.Fatalf("Price() = %+v", tk)
	}
}

func TestMaxLeverage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"array", `[{"symbol":"BTCUSDT","brackets":[{"initialLeverage":125},{"initialLeverage":50}]}]`, 125},
		{"object", `{"symbol":"BTCUSDT","brackets":[{"initialLeverage":20}]}`, 20},
		{"unexpected", `{"weird":true}`, 100},
		{"empty brackets", `[{"symbol":"BTCUSDT","brackets":[]}]`, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c := newFakeExchange(t)
			f.json("/fapi/v1/leverageBracket", 200, tt.body)

			got, err := c.MaxLeverage(context.Background(), testCreds, "BTCUSDT")
			if err != nil {
				t.Fatalf("MaxLeverage() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("MaxLeverage() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestQuantity(t *testing.T) {
	tests := []struct {
		size, price string
		precision   int32
		want        string
	}{
		{"100", "50000", 3, "0.002"},
		{"100", "50000", 0, "0"},
		{"200", "3000", 3, "0.066"},
		{"10", "0.15", 0, "66"},
		{"1000", "3", 2, "333.33"},
	}

	for _, tt := range tests {
		t.Run(tt.size+"/"+tt.price, func(t *testing.T) {
			got, err := Quantity(decimal.RequireFromString(tt.size), decimal.RequireFromString(tt.price), tt.precision)
			if err != nil {
				t.Fatalf("Quantity() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("Quantity() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestQuantityInvalidPrice(t *testing.T) {
	for _, p := range []string{"0", "-1"} {
		_, err := Quantity(decimal.NewFromInt(100), decimal.RequireFromString(p), 3)
		if !apperr.Is(err, apperr.KindInvalidParameter) {
			t.Fatalf("price %s: err = %v", p, err)
		}
	}
}

func TestPlaceOrderSetsLeverageFirst(t *testing.T) {
	f, c := newFakeExchange(t)
	f.json("/fapi/v1/exchangeInfo", 200, exchangeInfoBody)
	f.handle("/fapi/v1/leverage", func(w http.ResponseWriter, p url.Values) {
		fmt.Fprintf(w, `{"symbol":%q,"leverage":%s}`, p.Get("symbol"), p.Get("leverage"))
	})
	f.json("/fapi/v1/ticker/24hr", 200, `{"symbol":"BTCUSDT","lastPrice":"50000"}`)
	f.json("/fapi/v1/order", 200, `{"orderId":987654,"symbol":"BTCUSDT","side":"BUY","status":"NEW","origQty":"0.002"}`)

	res, err := c.PlaceOrder(context.Background(), testCreds, OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     SideLong,
		SizeUSDT: decimal.NewFromInt(100),
		Leverage: 10,
		Type:     OrderMarket,
	})
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if res.OrderID != "987654" {
		t.Fatalf("OrderID = %s", res.OrderID)
	}

	paths := strings.Join(f.paths(), " ")
	if !strings.Contains(paths, "/fapi/v1/leverage") || strings.Index(paths, "/fapi/v1/leverage") > strings.Index(paths, "/fapi/v1/order") {
		t.Fatalf("leverage must be set before the order: %s", paths)
	}

	order := f.callsTo("/fapi/v1/order")[0]
	if order.params.Get("quantity") != "0.002" || order.params.Get("side") != "BUY" || order.params.Get("type") != "MARKET" {
		t.Fatalf("order params = %v", order.params)
	}
	if lev := f.callsTo("/fapi/v1/leverage")[0]; lev.params.Get("leverage") != "10" {
		t.Fatalf("leverage params = %v", lev.params)
	}
}

func TestPlaceOrderShortLimit(t *testing.T) {
	f, c := newFakeExchange(t)
	f.json("/fapi/v1/exchangeInfo", 200, exchangeInfoBody)
	f.json("/fapi/v1/order", 200, `{"orderId":1,"status":"NEW"}`)

	_, err := c.PlaceOrder(context.Background(), testCreds, OrderRequest{
		Symbol:   "ETHUSDT",
		Side:     SideShort,
		SizeUSDT: decimal.NewFromInt(200),
		Type:     OrderLimit,
		Price:    decimal.NewFromInt(3000),
	})
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	order := f.callsTo("/fapi/v1/order")[0]
	if order.params.Get("side") != "SELL" || order.params.Get("price") != "3000.00" ||
		order.params.Get("timeInForce") != "GTC" || order.params.Get("quantity") != "0.066" {
		t.Fatalf("order params = %v", order.params)
	}
	if len(f.callsTo("/fapi/v1/leverage")) != 0 {
		t.Fatal("leverage 0 should not touch leverage")
	}
}

func TestPlaceOrderLimitNeedsPrice(t *testing.T) {
	f, c := newFakeExchange(t)
	f.json("/fapi/v1/exchangeInfo", 200, exchangeInfoBody)

	_, err := c.PlaceOrder(context.Background(), testCreds, OrderRequest{
		Symbol: "ETHUSDT", Side: SideLong, SizeUSDT: decimal.NewFromInt(10), Type: OrderLimit,
	})
	if !apperr.Is(err, apperr.KindInvalidParameter) {
		t.Fatalf("err = %v", err)
	}
}

func TestPlaceOrderTooSmall(t *testing.T) {
	f, c := newFakeExchange(t)
	f.json("/fapi/v1/exchangeInfo", 200, exchangeInfoBody)
	f.json("/fapi/v1/ticker/24hr", 200, `{"lastPrice":"50000"}`)

	_, err := c.PlaceOrder(context.Background(), testCreds, OrderRequest{
		Symbol: "DOGEUSDT", Side: SideLong, SizeUSDT: decimal.NewFromInt(100), Type: OrderMarket,
	})
	if !apperr.Is(err, apperr.KindInvalidParameter) {
		t.Fatalf("err = %v", err)
	}
	if len(f.callsTo("/fapi/v1/order")) != 0 {
		t.Fatal("zero quantity must not be submitted")
	}
}

func TestPlaceOrderLeverageFailureAborts(t *testing.T) {
	f, c := newFakeExchange(t)
	f.json("/fapi/v1/exchangeInfo", 200, exchangeInfoBody)
	f.json("/fapi/v1/leverage", 400, `{"code":-4028,"msg":"Leverage 200 is not valid"}`)

	_, err := c.PlaceOrder(context.Background(), testCreds, OrderRequest{
		Symbol: "BTCUSDT", Side: SideLong, SizeUSDT: decimal.NewFromInt(100), Leverage: 200,
	})
	if !apperr.Is(err, apperr.KindInvalidParameter) {
		t.Fatalf("err = %v", err)
	}
	if len(f.callsTo("/fapi/v1/order")) != 0 {
		t.Fatal("order must not be placed when leverage fails")
	}
}

func TestPlaceOrderNeverRetried(t *testing.T) {
	f, c := newFakeExchange(t)
	f.json("/fapi/v1/exchangeInfo", 200, exchangeInfoBody)
	f.json("/fapi/v1/ticker/24hr", 200, `{"lastPrice":"50000"}`)
	f.json("/fapi/v1/order", 503, `service unavailable`)

	_, err := c.PlaceOrder(context.Background(), testCreds, OrderRequest{
		Symbol: "BTCUSDT", Side: SideLong, SizeUSDT: decimal.NewFromInt(100),
	})
	if !apperr.Is(err, apperr.KindTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
	if n := len(f.callsTo("/fapi/v1/order")); n != 1 {
		t.Fatalf("order sent %d times, want 1", n)
	}
}

func TestPlaceOrderInsufficientMargin(t *testing.T) {
	f, c := newFakeExchange(t)
	f.json("/fapi/v1/exchangeInfo", 200, exchangeInfoBody)
	f.json("/fapi/v1/ticker/24hr", 200, `{"lastPrice":"50000"}`)
	f.json("/fapi/v1/order", 400, `{"code":-2019,"msg":"Margin is insufficient."}`)

	_, err := c.PlaceOrder(context.Background(), testCreds, OrderRequest{
		Symbol: "BTCUSDT", Side: SideLong, SizeUSDT: decimal.NewFromInt(100),
	})
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindInsufficientFunds || e.Code != -2019 {
		t.Fatalf("err = %v", err)
	}
	if strings.Contains(e.Msg, "Margin is insufficient.") {
		t.Fatal("user message must not echo the raw exchange text")
	}
}

func TestReadsRetryTransient(t *testing.T) {
	f, c := newFakeExchange(t)
	var n atomic.Int32
	f.handle("/fapi/v2/positionRisk", func(w http.ResponseWriter, _ url.Values) {
		if n.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, `[]`)
	})

	if _, err := c.Positions(context.Background(), testCreds, ""); err != nil {
		t.Fatalf("Positions() error = %v", err)
	}
	if got := n.Load(); got != 3 {
		t.Fatalf("positionRisk called %d times, want 3", got)
	}
}

func TestReadsDoNotRetryAuth(t *testing.T) {
	f, c := newFakeExchange(t)
	f.json("/fapi/v2/balance", 401, `{"code":-2015,"msg":"Invalid API-key, IP, or permissions for action."}`)

	_, err := c.AccountBalance(context.Background(), testCreds)
	if !apperr.Is(err, apperr.KindAuthentication) {
		t.Fatalf("err = %v", err)
	}
	if n := len(f.callsTo("/fapi/v2/balance")); n != 1 {
		t.Fatalf("balance called %d times, want 1", n)
	}
}

func TestTimeoutIsTransient(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() { close(block); srv.Close() })

	c := New(Options{FuturesURL: srv.URL, Timeout: 50 * time.Millisecond, Retry: RetryConfig{MaxTries: 1}})
	_, err := c.AccountBalance(context.Background(), testCreds)
	if !apperr.Is(err, apperr.KindTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestPositionsAndClose(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		wantSide string
		wantQty  string
	}{
		{"long closes with sell", "0.500", "SELL", "0.5"},
		{"short closes with buy", "-0.25", "BUY", "0.25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c := newFakeExchange(t)
			f.json("/fapi/v2/positionRisk", 200, fmt.Sprintf(`[
				{"symbol":"BTCUSDT","positionAmt":%q,"entryPrice":"50000","markPrice":"51000","leverage":"10","unRealizedProfit":"500"},
				{"symbol":"ETHUSDT","positionAmt":"0","entryPrice":"0"}]`, tt.amount))
			f.json("/fapi/v1/order", 200, `{"orderId":55,"status":"FILLED"}`)

			positions, err := c.Positions(context.Background(), testCreds, "BTCUSDT")
			if err != nil || len(positions) != 1 || positions[0].Leverage != 10 {
				t.Fatalf("Positions() = %+v, %v", positions, err)
			}

			res, err := c.ClosePosition(context.Background(), testCreds, "BTCUSDT")
			if err != nil {
				t.Fatalf("ClosePosition() error = %v", err)
			}
			if res.OrderID != "55" {
				t.Fatalf("OrderID = %s", res.OrderID)
			}
			p := f.callsTo("/fapi/v1/order")[0].params
			if p.Get("side") != tt.wantSide || p.Get("quantity") != tt.wantQty || p.Get("reduceOnly") != "true" || p.Get("type") != "MARKET" {
				t.Fatalf("close params = %v", p)
			}
		})
	}
}

func TestCloseWithoutPosition(t *testing.T) {
	f, c := newFakeExchange(t)
	f.json("/fapi/v2/positionRisk", 200, `[]`)

	if _, err := c.ClosePosition(context.Background(), testCreds, "BTCUSDT"); !apperr.Is(err, apperr.KindInvalidParameter) {
		t.Fatalf("err = %v", err)
	}
}

func TestCloseSide(t *testing.T) {
	if CloseSide(decimal.NewFromInt(1)) != "SELL" || CloseSide(decimal.NewFromInt(-1)) != "BUY" {
		t.Fatal("close side must oppose the position")
	}
}

func TestTransferUsesFreshClientID(t *testing.T) {
	f, c := newFakeExchange(t)
	f.json("/fapi/v1/asset/wallet/transfer", 200, `{"tranId":100200,"status":"SUCCESS"}`)
	ctx := context.Background()

	a, err := c.TransferSpotToFutures(ctx, testCreds, "usdt", decimal.NewFromInt(25))
	if err != nil {
		t.Fatalf("TransferSpotToFutures() error = %v", err)
	}
	b, _ := c.TransferSpotToFutures(ctx, testCreds, "USDT", decimal.NewFromInt(25))

	if a.TransactionID != "100200" || a.ClientTranID == "" || a.ClientTranID == b.ClientTranID {
		t.Fatalf("transfers = %+v, %+v", a, b)
	}
	calls := f.callsTo("/fapi/v1/asset/wallet/transfer")
	p := calls[0].params
	if p.Get("asset") != "USDT" || p.Get("amount") != "25" || p.Get("kindType") != "SPOT_FUTURE" || p.Get("clientTranId") != a.ClientTranID {
		t.Fatalf("transfer params = %v", p)
	}

	if _, err := c.TransferSpotToFutures(ctx, testCreds, "USDT", decimal.Zero); !apperr.Is(err, apperr.KindInvalidParameter) {
		t.Fatalf("zero amount err = %v", err)
	}
}

func TestCreateAPIKeys(t *testing.T) {
	f, c := newFakeExchange(t)
	keys, err := wallet.Create()
	if err != nil {
		t.Fatal(err)
	}

	f.json("/api/v1/getNonce", 200, `123456`)
	f.handle("/api/v1/createApiKey", func(w http.ResponseWriter, p url.Values) {
		addr, err := signer.RecoverAddress("You are signing into Astherus 123456", p.Get("userSignature"))
		if err != nil || addr.Hex() != keys.Address || p.Get("address") != keys.Address {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"code":-1022,"msg":"bad signature"}`)
			return
		}
		io.WriteString(w, `{"apiKey":"new-key","apiSecret":"new-secret"}`)
	})

	creds, err := c.CreateAPIKeys(context.Background(), keys)
	if err != nil {
		t.Fatalf("CreateAPIKeys() error = %v", err)
	}
	if creds.APIKey != "new-key" || creds.APISecret != "new-secret" {
		t.Fatalf("CreateAPIKeys() = %+v", creds)
	}

	nonce := f.callsTo("/api/v1/getNonce")[0]
	if nonce.params.Get("userOperationType") != "CREATE_API_KEY" || nonce.params.Get("address") != keys.Address {
		t.Fatalf("getNonce params = %v", nonce.params)
	}
	if desc := f.callsTo("/api/v1/createApiKey")[0].params.Get("desc"); desc == "" {
		t.Fatal("desc must be set")
	}
}

func TestParseNonce(t *testing.T) {
	tests := map[string]string{
		`123`:           "123",
		`"456"`:         "456",
		`{"nonce":789}`: "789",
	}
	for body, want := range tests {
		got, err := parseNonce([]byte(body))
		if err != nil || got != want {
			t.Fatalf("parseNonce(%s) = %q, %v", body, got, err)
		}
	}
	for _, body := range []string{``, `""`, `  `} {
		if _, err := parseNonce([]byte(body)); !errors.Is(err, errEmptyNonce) {
			t.Fatalf("parseNonce(%q) err = %v, want errEmptyNonce", body, err)
		}
	}
}

func TestKlines(t *testing.T) {
	f, c := newFakeExchange(t)
	f.json("/fapi/v1/klines", 200, `[[1700000000000,"100.0","110.0","95.0","105.5","1234",1700000059999,"x",1,"y","z","0"]]`)

	klines, err := c.Klines(context.Background(), "btcusdt", "1m", 10)
	if err != nil {
		t.Fatalf("Klines() error = %v", err)
	}
	if len(klines) != 1 || !klines[0].Close.Equal(decimal.RequireFromString("105.5")) || klines[0].CloseTime != 1700000059999 {
		t.Fatalf("Klines() = %+v", klines)
	}
	if p := f.callsTo("/fapi/v1/klines")[0]; p.params.Get("symbol") != "BTCUSDT" || p.apiKey != "" {
		t.Fatalf("klines request = %+v", p)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   apperr.Kind
	}{
		{"ok", 200, `{"orderId":1}`, apperr.KindUnknown},
		{"margin", 400, `{"code":-2019,"msg":"Margin is insufficient."}`, apperr.KindInsufficientFunds},
		{"auth code", 400, `{"code":-2014,"msg":"API-key format invalid."}`, apperr.KindAuthentication},
		{"auth status", 401, `unauthorized`, apperr.KindAuthentication},
		{"rate limit code", 400, `{"code":-1003,"msg":"Too many requests"}`, apperr.KindRateLimited},
		{"rate limit status", 429, ``, apperr.KindRateLimited},
		{"ip ban", 418, ``, apperr.KindRateLimited},
		{"leverage", 400, `{"code":-4028,"msg":"Leverage 150 is not valid"}`, apperr.KindInvalidParameter},
		{"quantity", 400, `{"code":-1013,"msg":"Filter failure: LOT_SIZE"}`, apperr.KindInvalidParameter},
		{"unsupported symbol", 400, `{"code":-4095,"msg":"not supported symbol"}`, apperr.KindInvalidParameter},
		{"param range", 400, `{"code":-1102,"msg":"Mandatory parameter missing"}`, apperr.KindInvalidParameter},
		{"unknown insufficient", 400, `{"code":-5000,"msg":"Balance insufficient"}`, apperr.KindInsufficientFunds},
		{"server", 502, `bad gateway`, apperr.KindTransient},
		{"code on 200", 200, `{"code":-1121,"msg":"Invalid symbol."}`, apperr.KindInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.status, []byte(tt.body))
			if got := apperr.KindOf(err); got != tt.want {
				t.Fatalf("classify() kind = %v, want %v (err %v)", got, tt.want, err)
			}
		})
	}
}
