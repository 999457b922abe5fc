// Asterbot - Telegram trading bot for AsterDex
//
// Every Telegram user gets a custodial BSC wallet and an exchange API key
// pair. Futures and spot orders are placed through signed REST calls, and
// the multi-step trade flow is persisted so it survives restarts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/web3guy0/asterbot/internal/aster"
	"github.com/web3guy0/asterbot/internal/bot"
	"github.com/web3guy0/asterbot/internal/config"
	"github.com/web3guy0/asterbot/internal/database"
	"github.com/web3guy0/asterbot/internal/ratelimit"
	"github.com/web3guy0/asterbot/internal/vault"
	"github.com/web3guy0/asterbot/internal/wallet"
	"github.com/web3guy0/asterbot/internal/web"
)

const version = "1.0.0"

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.LogFile != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: 5,
			Compress:   true,
		}
		console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, file)).With().Timestamp().Logger()
	}

	log.Info().Str("version", version).Msg("⚡ Asterbot starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cipher, err := vault.New(cfg.EncryptionKey, cfg.EncryptionSalt)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize credential vault")
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Rate limiting fails open without Redis
	var window ratelimit.Window
	if cfg.RedisURL != "" {
		redisWindow, err := ratelimit.Dial(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Redis unavailable, rate limiting disabled")
		} else {
			defer redisWindow.Close()
			window = redisWindow
		}
	} else {
		log.Warn().Msg("⚠️ REDIS_URL not set, rate limiting disabled")
	}
	limiter := ratelimit.New(window, cfg.RateLimitMax, cfg.RateLimitWindow)

	exchange := aster.New(aster.Options{
		FuturesURL:         cfg.FuturesURL,
		SpotURL:            cfg.SpotURL,
		Timeout:            cfg.HTTPTimeout,
		RecvWindow:         cfg.RecvWindow,
		QuoteAssets:        cfg.Trading.QuoteAssets,
		DefaultMaxLeverage: cfg.Trading.DefaultMaxLeverage,
		Operator: aster.Credentials{
			APIKey:    cfg.OperatorAPIKey,
			APISecret: cfg.OperatorAPISecret,
		},
	})

	chain, err := wallet.Dial(ctx, cfg.RPCURL, wallet.Options{
		Token:  cfg.USDTContract,
		MinGas: cfg.MinGasBNB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to BSC")
	}

	tg, err := bot.NewTelegram(cfg.TelegramToken, cfg.Debug)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Telegram bot")
	}
	if err := tg.RegisterCommands(); err != nil {
		log.Warn().Err(err).Msg("Failed to register bot commands")
	}

	controller := bot.NewController(cfg, db, cipher, exchange, chain, limiter, tg)
	go tg.Run(ctx, controller)

	server := web.NewServer(cfg.HTTPAddr, exchange, cfg.IndexFile)
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
			cancel()
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("✅ Asterbot running")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutting down...")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown")
	}

	log.Info().Msg("👋 Goodbye")
}
