package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	minHTTPTimeout = time.Second
	maxHTTPTimeout = 15 * time.Second
)

// Config holds all configuration for the bot
type Config struct {
	// Telegram
	TelegramToken string

	// Mode
	Debug bool

	// Exchange
	FuturesURL  string
	SpotURL     string
	HTTPTimeout time.Duration
	RecvWindow  int64

	// Optional key pair that signs API key creation for new wallets
	OperatorAPIKey    string
	OperatorAPISecret string

	// Chain
	RPCURL          string
	USDTContract    string
	TreasuryAddress string
	MinGasBNB       decimal.Decimal

	// Credential store
	DatabaseURL    string
	EncryptionKey  string
	EncryptionSalt string

	// Rate limiting
	RedisURL        string
	RateLimitMax    int
	RateLimitWindow time.Duration

	// HTTP surface
	HTTPAddr  string
	IndexFile string

	// Logging
	LogFile      string
	LogMaxSizeMB int

	Trading Trading
}

// Trading holds the knobs of the trade flow. They can be overridden by
// the YAML file named in CONFIG_FILE.
type Trading struct {
	LeverageSteps      []int    `yaml:"leverage_steps"`
	QuoteAssets        []string `yaml:"quote_assets"`
	MarketsPerPage     int      `yaml:"markets_per_page"`
	MarketsPerRow      int      `yaml:"markets_per_row"`
	DefaultMaxLeverage int      `yaml:"default_max_leverage"`
}

// DefaultTrading returns the built-in trade flow settings.
func DefaultTrading() Trading {
	return Trading{
		LeverageSteps:      []int{2, 5, 10, 20, 25, 50, 75, 100, 125},
		QuoteAssets:        []string{"USDT", "USDC", "USD1"},
		MarketsPerPage:     20,
		MarketsPerRow:      5,
		DefaultMaxLeverage: 100,
	}
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		// Telegram
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		Debug: getEnvBool("DEBUG", false),

		// Exchange
		FuturesURL:  getEnv("ASTER_FUTURES_URL", "https://fapi.asterdex.com"),
		SpotURL:     getEnv("ASTER_SPOT_URL", "https://sapi.asterdex.com"),
		HTTPTimeout: clampDuration(getEnvDuration("HTTP_TIMEOUT", maxHTTPTimeout), minHTTPTimeout, maxHTTPTimeout),
		RecvWindow:  int64(getEnvInt("RECV_WINDOW", 5000)),

		OperatorAPIKey:    os.Getenv("ASTER_OPERATOR_API_KEY"),
		OperatorAPISecret: os.Getenv("ASTER_OPERATOR_API_SECRET"),

		// Chain (BSC)
		RPCURL:          os.Getenv("BSC_RPC_URL"),
		USDTContract:    getEnv("USDT_CONTRACT", "0x55d398326f99059fF775485246999027B3197955"),
		TreasuryAddress: getEnv("TREASURY_ADDRESS", "0x128463A60784c4D3f46c23Af3f65Ed859Ba87974"),
		MinGasBNB:       getEnvDecimal("MIN_GAS_BNB", decimal.NewFromFloat(0.001)),

		// Credential store
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		EncryptionKey:  os.Getenv("ENCRYPTION_KEY"),
		EncryptionSalt: getEnv("ENCRYPTION_SALT", "asterbot-credential-store"),

		// Rate limiting
		RedisURL:        os.Getenv("REDIS_URL"),
		RateLimitMax:    getEnvInt("RATE_LIMIT_MAX", 5),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		HTTPAddr:  getEnv("HTTP_ADDR", ":10000"),
		IndexFile: getEnv("WEB_INDEX_FILE", "public/index.html"),

		LogFile:      os.Getenv("LOG_FILE"),
		LogMaxSizeMB: getEnvInt("LOG_MAX_SIZE_MB", 100),

		Trading: DefaultTrading(),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.Trading.overlay(path); err != nil {
			return nil, err
		}
	}

	// Validate required fields
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("BSC_RPC_URL is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if !common.IsHexAddress(cfg.USDTContract) {
		return nil, fmt.Errorf("invalid USDT_CONTRACT: %s", cfg.USDTContract)
	}
	if !common.IsHexAddress(cfg.TreasuryAddress) {
		return nil, fmt.Errorf("invalid TREASURY_ADDRESS: %s", cfg.TreasuryAddress)
	}
	if err := cfg.Trading.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
