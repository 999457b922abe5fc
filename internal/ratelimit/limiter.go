// Package ratelimit throttles sensitive actions per user with a sliding
// window kept in Redis. It fails open: when Redis is missing or
// unhealthy, every action is allowed.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "asterbot:ratelimit:"

// Window counts hits for a key inside a time window.
type Window interface {
	// Hit records a hit at now and returns the number of hits within
	// window, including this one.
	Hit(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error)
}

type Limiter struct {
	window Window
	limit  int
	period time.Duration
	now    func() time.Time
}

// New creates a limiter backed by w. A nil w allows everything.
func New(w Window, limit int, period time.Duration) *Limiter {
	return &Limiter{window: w, limit: limit, period: period, now: time.Now}
}

// Allow reports whether userID may perform action now.
func (l *Limiter) Allow(ctx context.Context, userID int64, action string) bool {
	if l == nil || l.window == nil || l.limit <= 0 {
		return true
	}

	key := keyPrefix + action + ":" + strconv.FormatInt(userID, 10)
	count, err := l.window.Hit(ctx, key, l.now(), l.period)
	if err != nil {
		log.Warn().Err(err).Str("action", action).Msg("⚠️ Rate limiter unavailable, allowing")
		return true
	}

	if count > int64(l.limit) {
		log.Debug().Int64("user", userID).Str("action", action).Int64("hits", count).Msg("Rate limited")
		return false
	}
	return true
}

// RedisWindow implements Window with one sorted set per key.
type RedisWindow struct {
	client *redis.Client
}

// Dial connects to the Redis server at url and verifies it with a ping.
func Dial(ctx context.Context, url string) (*RedisWindow, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second
	opts.MaxRetries = 1

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.Ping(pingCtx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisWindow{client: client}, nil
}

// NewRedisWindow wraps an existing client.
func NewRedisWindow(client *redis.Client) *RedisWindow {
	return &RedisWindow{client: client}
}

func (w *RedisWindow) Hit(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	from := now.Add(-window).UnixNano()
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()

	var card *redis.IntCmd
	_, err := w.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(from, 10))
		p.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixNano()), Member: member})
		card = p.ZCard(ctx, key)
		p.PExpire(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return card.Val(), nil
}

func (w *RedisWindow) Close() error {
	return w.client.Close()
}
