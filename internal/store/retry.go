package store

import (
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures bounded retry with exponential backoff for ledger
// reads. Retries exist only to absorb transient read failures such as a
// concurrent writer mid-write; parser failures are never retried.
type RetryConfig struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	JitterFraction float64 // fraction of the delay to randomize, 0..1
}

// DefaultReadRetry keeps the window short: the ledger is small and the
// contention being absorbed is a rename racing a read.
var DefaultReadRetry = RetryConfig{
	MaxRetries:     3,
	InitialDelay:   50 * time.Millisecond,
	MaxDelay:       500 * time.Millisecond,
	BackoffFactor:  2.0,
	JitterFraction: 0.2,
}

// withRetry executes fn with exponential backoff + jitter until it succeeds
// or attempts are exhausted, returning the last error.
func withRetry[T any](cfg RetryConfig, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt >= cfg.MaxRetries {
			break
		}

		delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt))
		if delay > float64(cfg.MaxDelay) {
			delay = float64(cfg.MaxDelay)
		}
		if cfg.JitterFraction > 0 {
			delay += delay * cfg.JitterFraction * (rand.Float64()*2 - 1)
			if delay < 0 {
				delay = float64(cfg.InitialDelay)
			}
		}
		time.Sleep(time.Duration(delay))
	}

	return zero, lastErr
}
