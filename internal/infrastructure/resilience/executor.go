package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

type ErrorClassification struct {
	Retryable bool
	// RecordFailure counts the error against the circuit breaker.
	RecordFailure bool
	// RetryAfter is a delay suggested by the failing side. It replaces the
	// computed backoff when longer, still capped by MaxBackoff.
	RetryAfter time.Duration
}

type ErrorClassifier func(err error) ErrorClassification

// Executor runs calls with retries and one circuit breaker per operation name.
type Executor struct {
	retry   RetryPolicy
	breaker BreakerPolicy

	onRetry        func(RetryEvent)
	onBreakerState func(operation, from, to string)
	logger         *slog.Logger
	sleep          func(context.Context, time.Duration) error

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		retry:          cfg.Retry.normalize(),
		breaker:        cfg.Breaker.normalize(),
		onRetry:        cfg.OnRetry,
		onBreakerState: cfg.OnBreakerState,
		logger:         logger,
		sleep:          sleepContext,
		breakers:       make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Execute runs fn until it succeeds, fails with a non-retryable error or the
// attempts are exhausted. The last error is returned unchanged.
func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = recordAll
	}

	if !e.breaker.Enabled {
		return e.withRetry(ctx, op, fn, classifier)
	}
	_, err := e.circuitBreaker(op, classifier).Execute(func() (struct{}, error) {
		return struct{}{}, e.withRetry(ctx, op, fn, classifier)
	})
	return err
}

// BreakerState reports the breaker state for operation, "closed" when none exists yet.
func (e *Executor) BreakerState(operation string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[operation]; ok {
		return cb.State().String()
	}
	return gobreaker.StateClosed.String()
}

func (e *Executor) withRetry(ctx context.Context, op string, fn func(context.Context) error, classifier ErrorClassifier) error {
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		if err = fn(ctx); err == nil {
			return nil
		}
		class := classifier(err)
		if !class.Retryable || attempt >= e.retry.MaxAttempts {
			return err
		}

		wait := min(max(e.retry.Backoff(attempt), class.RetryAfter), e.retry.MaxBackoff)
		if e.onRetry != nil {
			e.onRetry(RetryEvent{Operation: op, Attempt: attempt, MaxAttempts: e.retry.MaxAttempts, Wait: wait, Err: err})
		}
		e.logger.Warn("retry_attempt",
			"operation", op,
			"attempt", attempt,
			"max_attempts", e.retry.MaxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
		if e.sleep(ctx, wait) != nil {
			return err
		}
	}
}

func (e *Executor) circuitBreaker(op string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[op]; ok {
		return cb
	}

	policy := e.breaker
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: policy.HalfOpenMaxCalls,
		Timeout:     policy.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < policy.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= policy.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
			if e.onBreakerState != nil {
				e.onBreakerState(name, from.String(), to.String())
			}
		},
	})
	e.breakers[op] = cb
	return cb
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func recordAll(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
