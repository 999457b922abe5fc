package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("ENCRYPTION_KEY", strings.Repeat("ab", 32))
	t.Setenv("BSC_RPC_URL", "https://bsc-dataseed.binance.org")
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "bot.db"))
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.FuturesURL != "https://fapi.asterdex.com" {
		t.Fatalf("FuturesURL = %s", cfg.FuturesURL)
	}
	if cfg.HTTPTimeout != 15*time.Second {
		t.Fatalf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
	if cfg.Trading.MarketsPerPage != 20 || cfg.Trading.DefaultMaxLeverage != 100 {
		t.Fatalf("Trading = %+v", cfg.Trading)
	}
	if cfg.RateLimitMax != 5 || cfg.RateLimitWindow != time.Minute {
		t.Fatalf("rate limit = %d/%v", cfg.RateLimitMax, cfg.RateLimitWindow)
	}
}

func TestLoadRequired(t *testing.T) {
	tests := []string{"TELEGRAM_BOT_TOKEN", "ENCRYPTION_KEY", "BSC_RPC_URL", "DATABASE_URL"}

	for _, key := range tests {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "")

			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), key) {
				t.Fatalf("Load() error = %v, want mention of %s", err, key)
			}
		})
	}
}

func TestHTTPTimeoutClamped(t *testing.T) {
	setRequired(t)
	t.Setenv("HTTP_TIMEOUT", "2m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPTimeout != 15*time.Second {
		t.Fatalf("HTTPTimeout = %v, want 15s", cfg.HTTPTimeout)
	}
}

func TestTradingOverlay(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "asterbot.yaml")
	data := "trading:\n  leverage_steps: [20, 5, 10]\n  markets_per_page: 10\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Trading.LeverageSteps; len(got) != 3 || got[0] != 5 || got[2] != 20 {
		t.Fatalf("LeverageSteps = %v, want sorted [5 10 20]", got)
	}
	if cfg.Trading.MarketsPerPage != 10 {
		t.Fatalf("MarketsPerPage = %d", cfg.Trading.MarketsPerPage)
	}
	if cfg.Trading.MarketsPerRow != 5 {
		t.Fatalf("MarketsPerRow = %d, want default kept", cfg.Trading.MarketsPerRow)
	}
}

func TestTradingOverlayMissingFile(t *testing.T) {
	setRequired(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail for a missing config file")
	}
}
