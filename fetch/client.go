// Package fetch provides the shared resilience contract every source
// adapter embeds: retry with exponential backoff, per-instance sliding-window
// rate limiting, and transport/client error classification.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxAttempts bounds the retry loop, first try included.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay seeds the exponential backoff schedule.
	DefaultBaseDelay = time.Second
)

// Config tunes a Client. Zero values pick the defaults above.
type Config struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	RequestsPerMinute int
	MinDelay          time.Duration
}

// Client executes operations under a uniform retry/backoff/rate-limit
// policy so adapters never re-implement resilience logic. One Client per
// adapter instance; the limiter state is never shared.
type Client struct {
	maxAttempts int
	baseDelay   time.Duration
	limiter     *Limiter
	log         zerolog.Logger

	sleep func(context.Context, time.Duration) error
}

// NewClient builds a Client for one adapter instance.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	return &Client{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		limiter:     NewLimiter(cfg.RequestsPerMinute, cfg.MinDelay),
		log:         log,
		sleep:       sleepContext,
	}
}

// Do runs op under the retry policy. Before each attempt the rate limiter is
// consulted, so every attempt counts against the sliding window whether it
// succeeds or not. Between attempts the loop sleeps base * 2^(attempt-1).
// A non-retryable error stops the loop immediately; exhausting the budget
// surfaces ErrExhaustedRetries wrapping the last error.
func (c *Client) Do(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !Retryable(lastErr) {
			return lastErr
		}
		if attempt == c.maxAttempts {
			break
		}

		delay := c.backoff(attempt)
		c.log.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("retryable fetch failure, backing off")
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhaustedRetries, c.maxAttempts, lastErr)
}

// backoff returns the delay after the given (1-based) failed attempt.
func (c *Client) backoff(attempt int) time.Duration {
	return c.baseDelay * time.Duration(1<<(attempt-1))
}
