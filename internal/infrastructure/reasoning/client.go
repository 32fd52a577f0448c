package reasoning

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/resilience"
)

// Observer receives client events, typically to export metrics.
type Observer interface {
	ObserveCache(client string, hit bool)
	ObserveThrottled(client string)
	ObserveRetry(client string, event resilience.RetryEvent)
	ObserveCall(client string, code domain.ErrorCode, elapsed time.Duration)
}

type Options struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	CallTimeout    time.Duration
	BreakerEnabled bool
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2,
		CallTimeout:    60 * time.Second,
		BreakerEnabled: true,
	}
}

type Result[T any] struct {
	Value     T
	FromCache bool
	Attempts  int
}

// Client wraps calls to an external reasoning service with a response cache,
// a sliding-window rate limit and retries with exponential backoff.
type Client[T any] struct {
	name     string
	cache    *Cache[T]
	limiter  *SlidingWindowLimiter
	executor *resilience.Executor
	timeout  time.Duration
	observer Observer
	logger   *slog.Logger

	inflight singleflight.Group
}

// NewClient builds a client. cache and limiter may be nil to disable them.
func NewClient[T any](name string, cache *Cache[T], limiter *SlidingWindowLimiter, opts Options, observer Observer, logger *slog.Logger) *Client[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	c := &Client[T]{
		name:     name,
		cache:    cache,
		limiter:  limiter,
		timeout:  opts.CallTimeout,
		observer: observer,
		logger:   logger,
	}
	c.executor = resilience.NewExecutor(resilience.Config{
		Retry: resilience.RetryPolicy{
			MaxAttempts:    opts.MaxRetries + 1,
			InitialBackoff: opts.InitialBackoff,
			MaxBackoff:     opts.MaxBackoff,
			Multiplier:     opts.BackoffFactor,
		},
		Breaker: breakerPolicy(opts.BreakerEnabled),
		OnRetry: func(ev resilience.RetryEvent) {
			if c.observer != nil {
				c.observer.ObserveRetry(c.name, ev)
			}
		},
		Logger: logger,
	})
	return c
}

// Execute returns the cached value for key or runs call. Concurrent callers
// with the same key share one call; the ones that joined it get FromCache.
// An empty key bypasses the cache.
func (c *Client[T]) Execute(ctx context.Context, key string, call func(context.Context) (T, error)) (Result[T], error) {
	if key == "" || c.cache == nil {
		return c.execute(ctx, key, call)
	}
	if v, ok := c.cache.Get(key); ok {
		c.observeCache(true)
		return Result[T]{Value: v, FromCache: true}, nil
	}
	c.observeCache(false)

	leader := false
	v, err, _ := c.inflight.Do(key, func() (any, error) {
		leader = true
		// a call for the same key may have finished between Get and Do
		if cached, ok := c.cache.Get(key); ok {
			return Result[T]{Value: cached, FromCache: true}, nil
		}
		return c.execute(ctx, key, call)
	})
	res, _ := v.(Result[T])
	if !leader {
		res = Result[T]{Value: res.Value, FromCache: err == nil}
	}
	return res, err
}

func (c *Client[T]) execute(ctx context.Context, key string, call func(context.Context) (T, error)) (Result[T], error) {
	op := "reasoning." + c.name
	started := time.Now()
	var (
		value    T
		attempts int
	)
	err := c.executor.Execute(ctx, op, func(execCtx context.Context) error {
		attempts++
		var reservation Reservation
		if c.limiter != nil {
			res, err := c.limiter.Reserve()
			if err != nil {
				if c.observer != nil {
					c.observer.ObserveThrottled(c.name)
				}
				return err
			}
			reservation = res
		}

		callCtx := execCtx
		cancel := func() {}
		if c.timeout > 0 {
			callCtx, cancel = context.WithTimeout(execCtx, c.timeout)
		}
		v, err := call(callCtx)
		cancel()
		if err != nil {
			if c.limiter != nil {
				c.limiter.Cancel(&reservation)
			}
			return classifyError(execCtx, op, err)
		}
		value = v
		return nil
	}, retryClassifier)

	err = classifyError(ctx, op, err)
	if c.observer != nil {
		c.observer.ObserveCall(c.name, domain.CodeOf(err), time.Since(started))
	}
	if err != nil {
		c.logger.Warn("reasoning_call_failed",
			"client", c.name,
			"attempts", attempts,
			"code", string(domain.CodeOf(err)),
			"error", err,
		)
		return Result[T]{Attempts: attempts}, err
	}

	if key != "" && c.cache != nil {
		c.cache.Set(key, value)
	}
	return Result[T]{Value: value, Attempts: attempts}, nil
}

func breakerPolicy(enabled bool) resilience.BreakerPolicy {
	p := resilience.DefaultBreakerPolicy()
	p.Enabled = enabled
	return p
}

func (c *Client[T]) observeCache(hit bool) {
	if c.observer != nil {
		c.observer.ObserveCache(c.name, hit)
	}
}
