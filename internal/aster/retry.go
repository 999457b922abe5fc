package aster

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/asterbot/internal/apperr"
)

// RetryConfig bounds automatic retries of idempotent reads.
type RetryConfig struct {
	MaxTries     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxTries:     3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
}

// retryRead runs fn until it succeeds, fails with a non-transient error,
// or the tries are used up. Only use it for reads; writes are never
// repeated automatically.
func retryRead[T any](ctx context.Context, cfg RetryConfig, op string, fn func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialDelay
	b.MaxInterval = cfg.MaxDelay

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !apperr.IsRetryable(err) || attempt >= cfg.MaxTries {
			return zero, err
		}

		delay := b.NextBackOff()
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("retry_in", delay).Msg("⚠️ Exchange read failed, retrying")

		select {
		case <-ctx.Done():
			return zero, apperr.Transient(op, ctx.Err())
		case <-time.After(delay):
		}
	}
}
