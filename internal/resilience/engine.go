package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// Engine wraps external calls with classification, retry with backoff,
// per-component circuit breaking and optional graceful degradation.
//
// The breaker registry is injected so tests can instantiate isolated engines;
// in production one registry is shared by every engine and every job.
type Engine struct {
	policy             RetryPolicy
	breakers           *BreakerRegistry
	degradationEnabled bool
	log                zerolog.Logger
	rand               func() float64
}

func NewEngine(policy RetryPolicy, breakers *BreakerRegistry, logger *zerolog.Logger) *Engine {
	if policy.BackoffMultiplier <= 0 {
		policy = DefaultRetryPolicy()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Engine{
		policy:             policy,
		breakers:           breakers,
		degradationEnabled: true,
		log:                logger.With().Str("component", "ResilienceEngine").Logger(),
		rand:               rand.Float64,
	}
}

// SetDegradation toggles the fallback path. When disabled, primary errors
// propagate immediately and fallbacks never run.
func (e *Engine) SetDegradation(enabled bool) { e.degradationEnabled = enabled }

// Breakers exposes the registry for observability.
func (e *Engine) Breakers() *BreakerRegistry { return e.breakers }

// Execute runs op under the engine's retry policy, or the override when
// non-nil. Every attempt is breaker-guarded for ectx.Component, so a breaker
// can open mid-retry-loop. The returned error is always a *PipelineError:
// either a fail-fast circuit-breaker error or a job-category wrapper around
// the last classified failure, never a bare underlying error.
func Execute[T any](ctx context.Context, e *Engine, ectx ErrorContext, op func(context.Context) (T, error), override ...RetryPolicy) (T, error) {
	var zero T

	policy := e.policy
	if len(override) > 0 {
		policy = override[0]
	}
	// A negative retry count still means one attempt; the loop must run at
	// least once so there is always a classified failure to report.
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if ectx.Timestamp.IsZero() {
		ectx.Timestamp = time.Now()
	}

	var last *PipelineError
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err := e.breakers.Allow(ectx.Component); err != nil {
			e.log.Warn().
				Str("op", ectx.Operation).
				Str("breaker_component", ectx.Component).
				Int("attempt", attempt).
				Msg("circuit open, failing fast")
			return zero, err.WithContext(&ectx)
		}

		res, err := op(ctx)
		if err == nil {
			e.breakers.RecordSuccess(ectx.Component)
			if attempt > 0 {
				e.log.Info().
					Str("op", ectx.Operation).
					Int("attempt", attempt+1).
					Msg("operation recovered after retry")
			}
			return res, nil
		}

		e.breakers.RecordFailure(ectx.Component)
		attemptCtx := ectx
		attemptCtx.Attempt = attempt
		last = Classify(err, &attemptCtx)

		e.log.Warn().
			Str("op", ectx.Operation).
			Int("attempt", attempt+1).
			Bool("retryable", last.Retryable).
			Str("category", string(last.Category)).
			Err(err).
			Msg("guarded operation failed")

		if !last.Retryable || attempt == policy.MaxRetries {
			break
		}

		delay := policy.DelayFor(attempt, e.rand)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, NewJobError(
				fmt.Sprintf("%s aborted while waiting to retry: %v", ectx.Operation, ctx.Err()),
				&ectx, ctx.Err())
		case <-timer.C:
		}
	}

	return zero, wrapExhausted(last, &ectx)
}

// Do is Execute for operations with no result value.
func (e *Engine) Do(ctx context.Context, ectx ErrorContext, op func(context.Context) error, override ...RetryPolicy) error {
	_, err := Execute(ctx, e, ectx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, override...)
	return err
}

// wrapExhausted turns the last classified failure into the job-category
// wrapper callers see, preserving the original message and cause.
func wrapExhausted(last *PipelineError, ectx *ErrorContext) *PipelineError {
	wrapped := NewJobError(last.Message, ectx, last)
	wrapped.Code = "JOB_OPERATION_FAILED"
	return wrapped
}

// Strategy is a graceful-degradation pair: a primary path and a
// reduced-quality fallback. Modeled as an interface so alternate strategies
// (cached results, smaller batches) can be substituted without touching the
// engine.
type Strategy[T any] interface {
	Primary(ctx context.Context) (T, error)
	Fallback(ctx context.Context) (T, error)
}

// FuncStrategy adapts a pair of functions to Strategy.
type FuncStrategy[T any] struct {
	Run  func(ctx context.Context) (T, error)
	Fall func(ctx context.Context) (T, error)
}

func (s FuncStrategy[T]) Primary(ctx context.Context) (T, error)  { return s.Run(ctx) }
func (s FuncStrategy[T]) Fallback(ctx context.Context) (T, error) { return s.Fall(ctx) }

// WithFallback runs the strategy's primary path and, on failure, its
// fallback. When the fallback fails too, the original primary error is
// returned so the fallback path never masks the root cause.
func WithFallback[T any](ctx context.Context, e *Engine, ectx ErrorContext, s Strategy[T]) (T, error) {
	var zero T

	res, err := s.Primary(ctx)
	if err == nil {
		return res, nil
	}
	if !e.degradationEnabled {
		return zero, err
	}

	e.log.Warn().
		Str("op", ectx.Operation).
		Err(err).
		Msg("primary path failed, attempting fallback")

	fres, ferr := s.Fallback(ctx)
	if ferr != nil {
		e.log.Error().
			Str("op", ectx.Operation).
			Err(ferr).
			Msg("fallback failed, surfacing primary error")
		return zero, err
	}

	e.log.Info().Str("op", ectx.Operation).Msg("recovered via fallback")
	return fres, nil
}
