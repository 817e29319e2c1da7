// Package retry provides retry logic with configurable backoff for cache operations.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/tiercache/tiercache/pkg/errors"
)

// Config defines retry behavior configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the initial attempt)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`

	// Multiplier is the factor by which delay increases after each retry.
	// A multiplier of 1.0 gives fixed-delay retries.
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`

	// Jitter adds ±20% randomness to each delay
	Jitter bool `yaml:"jitter" json:"jitter"`

	// RetryAllErrors retries on any error rather than classifying by
	// code. The manager uses this for its loader retries; the remote
	// layer keeps it off and retries only transient connection codes.
	RetryAllErrors bool `yaml:"retry_all_errors" json:"retry_all_errors"`

	// RetryableErrors lists error codes that should trigger a retry
	// when RetryAllErrors is off
	RetryableErrors []errors.ErrorCode `yaml:"retryable_errors" json:"retryable_errors"`

	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-" json:"-"`
}

// DefaultConfig returns the loader-path retry configuration: three
// attempts with exponential backoff starting at 100ms, doubling.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		RetryAllErrors: true,
	}
}

// RemoteConfig returns the remote-layer retry configuration: three
// attempts with a fixed 50ms delay, retrying only transient
// connection failures.
func RemoteConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   1.0,
		RetryableErrors: []errors.ErrorCode{
			errors.ErrCodeConnectionTimeout,
			errors.ErrCodeConnectionFailed,
			errors.ErrCodeConnectionReset,
			errors.ErrCodeNetworkError,
			errors.ErrCodeOperationTimeout,
		},
	}
}

// Retryer handles retry logic with backoff
type Retryer struct {
	config Config
}

// New creates a new Retryer with the given configuration
func New(config Config) *Retryer {
	// Apply defaults for zero values
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}

	return &Retryer{config: config}
}

// Do executes the given function with retry logic
func (r *Retryer) Do(fn func() error) error {
	return r.DoWithContext(context.Background(), func(ctx context.Context) error {
		return fn()
	})
}

// DoWithContext executes the given function with retry logic and
// context support. Backoff sleeps observe context cancellation.
func (r *Retryer) DoWithContext(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return errors.Wrap(errors.ErrCodeOperationCanceled, "operation canceled", ctx.Err())
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if !r.shouldRetry(err) {
			return err
		}

		if attempt < r.config.MaxAttempts {
			delay := r.calculateDelay(attempt)

			if r.config.OnRetry != nil {
				r.config.OnRetry(attempt, err, delay)
			}

			select {
			case <-ctx.Done():
				return errors.Wrap(errors.ErrCodeOperationCanceled, "operation canceled during backoff", ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return errors.Newf(errors.ErrCodeRetryExhausted, "max retry attempts (%d) exceeded", r.config.MaxAttempts).
		WithCause(lastErr)
}

// shouldRetry determines if an error is retryable
func (r *Retryer) shouldRetry(err error) bool {
	// Cancellation is never retried
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if r.config.RetryAllErrors {
		return true
	}

	var cacheErr *errors.CacheError
	if errors.As(err, &cacheErr) {
		if cacheErr.Retryable {
			return true
		}
		for _, code := range r.config.RetryableErrors {
			if cacheErr.Code == code {
				return true
			}
		}
	}

	return false
}

// calculateDelay calculates the delay for the next retry attempt
func (r *Retryer) calculateDelay(attempt int) time.Duration {
	// initialDelay * multiplier^(attempt-1), capped at MaxDelay
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))

	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	if r.config.Jitter {
		jitter := delay * 0.2 * (rand.Float64()*2 - 1)
		delay += jitter
	}

	return time.Duration(delay)
}

// WithMaxAttempts returns a new Retryer with modified max attempts
func (r *Retryer) WithMaxAttempts(attempts int) *Retryer {
	newConfig := r.config
	newConfig.MaxAttempts = attempts
	return New(newConfig)
}

// WithOnRetry returns a new Retryer with a retry callback
func (r *Retryer) WithOnRetry(callback func(attempt int, err error, delay time.Duration)) *Retryer {
	newConfig := r.config
	newConfig.OnRetry = callback
	return New(newConfig)
}
