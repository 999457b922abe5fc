// Package web serves the keep-alive endpoint and the chart data API.
package web

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/asterbot/internal/apperr"
	"github.com/web3guy0/asterbot/internal/aster"
)

// KlineSource supplies candlesticks for the chart API.
type KlineSource interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]aster.Kline, error)
}

type Server struct {
	klines KlineSource
	engine *gin.Engine
	srv    *http.Server
}

// NewServer builds the HTTP surface. indexFile is served at / when it
// exists.
func NewServer(addr string, klines KlineSource, indexFile string) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{
		klines: klines,
		engine: engine,
		srv: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	s.registerRoutes(indexFile)
	return s
}

func (s *Server) registerRoutes(indexFile string) {
	s.engine.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := s.engine.Group("/api")
	api.Use(corsMiddleware())
	{
		api.GET("/klines", s.handleKlines)
		api.OPTIONS("/klines", func(c *gin.Context) {})
	}

	if indexFile != "" {
		if _, err := os.Stat(indexFile); err == nil {
			s.engine.StaticFile("/", indexFile)
		}
	}
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("🌐 HTTP server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleKlines(c *gin.Context) {
	symbol := c.Query("symbol")
	interval := c.Query("interval")
	if symbol == "" || interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and interval are required"})
		return
	}

	limit := 500
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	klines, err := s.klines.Klines(c.Request.Context(), symbol, interval, limit)
	if err != nil {
		msg := "failed to load klines"
		if e, ok := apperr.As(err); ok {
			msg = e.Msg
		}
		log.Warn().Err(err).Str("symbol", symbol).Str("interval", interval).Msg("Kline request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, klines)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("HTTP request")
	}
}
