// Package retry runs an operation with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxRetries     int           // Maximum number of retry attempts
	InitialBackoff time.Duration // Initial backoff duration
	MaxBackoff     time.Duration // Maximum backoff duration
	Multiplier     float64       // Backoff multiplier (exponential)

	// Retryable decides whether an error is worth another attempt.
	// Nil retries every error.
	Retryable func(error) bool
	// OnRetry is called before each sleep
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultConfig returns the backoff used for store connections
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		Retryable:      IsRetryable,
	}
}

// ErrExhausted is wrapped when every attempt failed
var ErrExhausted = errors.New("retries exhausted")

// Do executes fn with exponential backoff retries
func Do(ctx context.Context, config Config, fn func(ctx context.Context) error) error {
	var lastErr error
	backoff := config.InitialBackoff
	multiplier := config.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if config.Retryable != nil && !config.Retryable(err) {
			return err
		}
		if attempt == config.MaxRetries {
			break
		}

		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * multiplier)
		if config.MaxBackoff > 0 && backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, config.MaxRetries+1, lastErr)
}

// IsRetryable reports whether err looks like a transient connection failure
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryableErrors := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"too many connections",
		"database is locked",
		"eof",
		"broken pipe",
	}
	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}
