package rpcprovider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"
)

// RetryConfig controls the exponential-backoff retry applied to every
// RPC call (5 attempts by default).
type RetryConfig struct {
	MaxAttempts        int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
	BackoffMultiplier  float64
}

// DefaultRetryConfig retries up to a fixed attempt count (default 5).
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// retryableError classifies transient errors worth retrying, the same
// substring/type heuristics as rpc.retryableError.
func retryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}

	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "rate limit") {
		return true
	}

	if strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return true
	}

	if strings.Contains(errStr, "connection reset") || strings.Contains(errStr, "eof") {
		return true
	}

	return false
}

// calculateBackoff computes the jittered exponential backoff for a
// given attempt, same shape as rpc.calculateBackoff.
func calculateBackoff(attempt int, cfg *RetryConfig) time.Duration {
	if attempt <= 1 {
		return 0
	}

	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(attempt-2))
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}

	jitterRange := backoff * 0.25
	jitter := (rand.Float64() * 2 * jitterRange) - jitterRange
	backoff += jitter
	if backoff < 0 {
		backoff = 0
	}

	return time.Duration(backoff)
}

// Retry runs fn with the same exponential-backoff/retry policy RPC
// calls use, exported so other outbound clients (order-book
// submission) can share it instead of reimplementing backoff math.
func Retry(ctx context.Context, cfg *RetryConfig, operation string, fn func() error) error {
	return retryWithBackoff(ctx, cfg, operation, fn)
}

// retryWithBackoff executes fn with exponential-backoff retry,
// respecting context cancellation: any RPC call may suspend here.
func retryWithBackoff(ctx context.Context, cfg *RetryConfig, operation string, fn func() error) error {
	if cfg == nil {
		return fn()
	}

	var lastErr error
	start := time.Now()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled before attempt %d of %s: %w", attempt, operation, err)
		}

		err := fn()
		if err == nil {
			if attempt > 1 {
				rpcRetrySuccessInc(operation)
			}
			return nil
		}

		lastErr = err
		if !retryableError(err) {
			return fmt.Errorf("non-retryable error on attempt %d/%d of %s: %w", attempt, cfg.MaxAttempts, operation, err)
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		backoff := calculateBackoff(attempt, cfg)
		if backoff > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during backoff (attempt %d/%d of %s): %w", attempt, cfg.MaxAttempts, operation, ctx.Err())
			}
		}
		rpcRetryInc(operation)
	}

	return fmt.Errorf("all %d attempts of %s failed after %v (last error: %w)", cfg.MaxAttempts, operation, time.Since(start), lastErr)
}
