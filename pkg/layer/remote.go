package layer

import (
	"context"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tiercache/tiercache/internal/circuit"
	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/logging"
	"github.com/tiercache/tiercache/pkg/retry"
	"github.com/tiercache/tiercache/pkg/types"
)

// ErrNotFound is returned by a RemoteStore when the key is absent.
// It is a miss, not a failure: it never counts against the breaker.
var ErrNotFound = errors.New(errors.ErrCodeObjectNotFound, "key not found")

// RemoteStore is the narrow port the remote layer speaks to the
// network KV store through. Implementations exist for Redis; tests
// supply fakes.
type RemoteStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// RemoteConfig represents remote layer configuration
type RemoteConfig struct {
	Name string `yaml:"name"`

	// RetryCount and RetryDelay bound the fixed-delay retry on
	// transient I/O errors
	RetryCount int           `yaml:"retry_count"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	// BreakerFailures consecutive failures open the circuit for
	// BreakerCooldown before a probe is admitted
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`

	Logger *logging.Logger `yaml:"-"`
}

// DefaultRemoteConfig returns the default remote layer configuration
func DefaultRemoteConfig() *RemoteConfig {
	return &RemoteConfig{
		Name:            "remote",
		RetryCount:      3,
		RetryDelay:      50 * time.Millisecond,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// Remote implements the layer contract over a network KV store. Keys
// travel in their string form; values through the injected codec.
// Every I/O operation is wrapped in bounded fixed-delay retry and a
// consecutive-failure circuit breaker; an open breaker or exhausted
// retries surface as "layer unavailable" and the manager moves on.
type Remote[K comparable, V any] struct {
	store   RemoteStore
	codec   types.Codec[V]
	keyFn   types.KeyFunc[K]
	retryer *retry.Retryer
	breaker *circuit.Breaker

	name   string
	logger *logging.Logger

	hits     atomic.Uint64
	misses   atomic.Uint64
	errCount atomic.Uint64
}

// NewRemote creates a remote layer over the given store and codec
func NewRemote[K comparable, V any](store RemoteStore, codec types.Codec[V], config *RemoteConfig) *Remote[K, V] {
	return NewRemoteWithKeyFunc[K, V](store, codec, config, types.DefaultKeyFunc[K]())
}

// NewRemoteWithKeyFunc creates a remote layer with a custom key stringifier
func NewRemoteWithKeyFunc[K comparable, V any](store RemoteStore, codec types.Codec[V], config *RemoteConfig, keyFn types.KeyFunc[K]) *Remote[K, V] {
	defaults := DefaultRemoteConfig()
	if config == nil {
		config = defaults
	}
	if config.Name == "" {
		config.Name = defaults.Name
	}
	if config.RetryCount <= 0 {
		config.RetryCount = defaults.RetryCount
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.BreakerFailures <= 0 {
		config.BreakerFailures = defaults.BreakerFailures
	}
	if config.BreakerCooldown <= 0 {
		config.BreakerCooldown = defaults.BreakerCooldown
	}
	if keyFn == nil {
		keyFn = types.DefaultKeyFunc[K]()
	}

	logger := logging.OrNop(config.Logger).WithComponent(config.Name)

	retryCfg := retry.RemoteConfig()
	retryCfg.MaxAttempts = config.RetryCount
	retryCfg.InitialDelay = config.RetryDelay

	breaker := circuit.New(config.Name, circuit.Config{
		MaxFailures: uint32(config.BreakerFailures),
		Cooldown:    config.BreakerCooldown,
		OnStateChange: func(name string, from, to circuit.State) {
			logger.Warn("breaker state change",
				logging.F("from", from.String()),
				logging.F("to", to.String()))
		},
	})

	return &Remote[K, V]{
		store:   store,
		codec:   codec,
		keyFn:   keyFn,
		retryer: retry.New(retryCfg),
		breaker: breaker,
		name:    config.Name,
		logger:  logger,
	}
}

// Name identifies the layer
func (r *Remote[K, V]) Name() string { return r.name }

// Set encodes and stores the value. Encode failures are terminal;
// I/O failures go through retry and the breaker.
func (r *Remote[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) error {
	data, err := r.codec.Encode(value)
	if err != nil {
		return errors.Wrap(errors.ErrCodeEncodeFailed, "value encode failed", err).
			WithComponent(r.name).WithKey(r.keyFn(key))
	}

	k := r.keyFn(key)
	err = r.execute(ctx, "set", func(ctx context.Context) error {
		return r.store.Set(ctx, k, data, ttl)
	})
	if err != nil {
		r.errCount.Add(1)
		return err
	}
	return nil
}

// TryGet fetches and decodes the value. A missing key is a plain miss;
// an unavailable store returns an error the manager treats as
// "skip this layer".
func (r *Remote[K, V]) TryGet(ctx context.Context, key K) (V, bool, error) {
	var zero V
	k := r.keyFn(key)

	var data []byte
	var found bool
	err := r.execute(ctx, "get", func(ctx context.Context) error {
		d, err := r.store.Get(ctx, k)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				found = false
				return nil
			}
			return err
		}
		data, found = d, true
		return nil
	})
	if err != nil {
		r.errCount.Add(1)
		r.misses.Add(1)
		return zero, false, err
	}
	if !found {
		r.misses.Add(1)
		return zero, false, nil
	}

	value, err := r.codec.Decode(data)
	if err != nil {
		r.errCount.Add(1)
		return zero, false, errors.Wrap(errors.ErrCodeDecodeFailed, "value decode failed", err).
			WithComponent(r.name).WithKey(k)
	}

	r.hits.Add(1)
	return value, true, nil
}

// Delete removes the key from the remote store
func (r *Remote[K, V]) Delete(ctx context.Context, key K) error {
	k := r.keyFn(key)
	return r.execute(ctx, "del", func(ctx context.Context) error {
		return r.store.Del(ctx, k)
	})
}

// Ping probes the remote store through the breaker
func (r *Remote[K, V]) Ping(ctx context.Context) error {
	return r.execute(ctx, "ping", func(ctx context.Context) error {
		return r.store.Ping(ctx)
	})
}

// Len reports -1: the remote store's cardinality is not tracked
func (r *Remote[K, V]) Len() int { return -1 }

// Stats returns a copy of the layer's counters
func (r *Remote[K, V]) Stats() types.LayerStats {
	s := types.LayerStats{
		Hits:    r.hits.Load(),
		Misses:  r.misses.Load(),
		Errors:  r.errCount.Load(),
		Entries: -1,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// BreakerState exposes the current circuit state for health reporting
func (r *Remote[K, V]) BreakerState() circuit.State {
	return r.breaker.State()
}

// Close is a no-op; the store's connection lifecycle belongs to its owner
func (r *Remote[K, V]) Close() error { return nil }

// execute runs op under the breaker with retries on transient errors
func (r *Remote[K, V]) execute(ctx context.Context, opName string, op func(context.Context) error) error {
	err := r.breaker.Execute(func() error {
		return r.retryer.DoWithContext(ctx, func(ctx context.Context) error {
			return classify(op(ctx))
		})
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, circuit.ErrOpenState) || errors.Is(err, circuit.ErrTooManyProbes) {
		return errors.Wrap(errors.ErrCodeBreakerOpen, "circuit open, failing fast", err).
			WithComponent(r.name).WithOperation(opName)
	}
	return errors.Wrap(errors.ErrCodeLayerUnavailable, "remote store unavailable", err).
		WithComponent(r.name).WithOperation(opName)
}

// classify wraps raw network errors into coded cache errors so the
// retryer can distinguish transient failures from terminal ones.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var cacheErr *errors.CacheError
	if errors.As(err, &cacheErr) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(errors.ErrCodeConnectionTimeout, "remote operation timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return errors.Wrap(errors.ErrCodeOperationCanceled, "remote operation canceled", err)
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return errors.Wrap(errors.ErrCodeConnectionReset, "connection reset", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return errors.Wrap(errors.ErrCodeConnectionTimeout, "network timeout", err)
		}
		return errors.Wrap(errors.ErrCodeNetworkError, "network error", err)
	}

	return errors.Wrap(errors.ErrCodeNetworkError, "remote store error", err)
}
