package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/asterbot/internal/apperr"
	"github.com/web3guy0/asterbot/internal/aster"
)

type fakeKlines struct {
	err   error
	calls []string
}

func (f *fakeKlines) Klines(ctx context.Context, symbol, interval string, limit int) ([]aster.Kline, error) {
	f.calls = append(f.calls, symbol+"/"+interval+"/"+strconv.Itoa(limit))
	if f.err != nil {
		return nil, f.err
	}
	return []aster.Kline{{OpenTime: 1, Open: decimal.NewFromInt(100), Close: decimal.NewFromInt(105), CloseTime: 2}}, nil
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := NewServer(":0", &fakeKlines{}, "")
	rec := do(t, s.Handler(), http.MethodGet, "/health")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("GET /health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestKlines(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		err      error
		wantCode int
		wantCall string
		wantBody string
	}{
		{"ok", "/api/klines?symbol=BTCUSDT&interval=1h&limit=50", nil, http.StatusOK, "BTCUSDT/1h/50", `"close":"105"`},
		{"default limit", "/api/klines?symbol=BTCUSDT&interval=1m", nil, http.StatusOK, "BTCUSDT/1m/500", `"openTime":1`},
		{"missing interval", "/api/klines?symbol=BTCUSDT", nil, http.StatusBadRequest, "", "required"},
		{"bad limit", "/api/klines?symbol=BTCUSDT&interval=1m&limit=x", nil, http.StatusBadRequest, "", "limit"},
		{"upstream", "/api/klines?symbol=BTCUSDT&interval=1m", apperr.New(apperr.KindTransient, "klines", "exchange is temporarily unavailable"), http.StatusInternalServerError, "BTCUSDT/1m/500", "temporarily unavailable"},
		{"raw upstream", "/api/klines?symbol=BTCUSDT&interval=1m", errors.New("dial tcp: secret detail"), http.StatusInternalServerError, "BTCUSDT/1m/500", "failed to load klines"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeKlines{err: tt.err}
			rec := do(t, NewServer(":0", src, "").Handler(), http.MethodGet, tt.target)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Fatalf("body = %s, want %s", rec.Body.String(), tt.wantBody)
			}
			if tt.wantCall == "" && len(src.calls) != 0 || tt.wantCall != "" && (len(src.calls) != 1 || src.calls[0] != tt.wantCall) {
				t.Fatalf("calls = %v, want %q", src.calls, tt.wantCall)
			}
			if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
				t.Fatal("missing CORS header")
			}
		})
	}
}

func TestKlinesJSONShape(t *testing.T) {
	rec := do(t, NewServer(":0", &fakeKlines{}, "").Handler(), http.MethodGet, "/api/klines?symbol=ETHUSDT&interval=5m")

	var rows []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0]["open"] != "100" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestPreflight(t *testing.T) {
	rec := do(t, NewServer(":0", &fakeKlines{}, "").Handler(), http.MethodOptions, "/api/klines")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("OPTIONS = %d", rec.Code)
	}
}

func TestIndexFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.html")
	if err := os.WriteFile(path, []byte("<html>chart</html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewServer(":0", &fakeKlines{}, path).Handler()
	if rec := do(t, h, http.MethodGet, "/"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "chart") {
		t.Fatalf("GET / = %d %q", rec.Code, rec.Body.String())
	}

	missing := NewServer(":0", &fakeKlines{}, filepath.Join(t.TempDir(), "nope.html")).Handler()
	if rec := do(t, missing, http.MethodGet, "/"); rec.Code != http.StatusNotFound {
		t.Fatalf("GET / without index = %d", rec.Code)
	}
}
