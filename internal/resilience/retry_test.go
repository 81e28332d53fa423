package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testEngine(policy RetryPolicy, reg *BreakerRegistry) *Engine {
	if reg == nil {
		reg = NewBreakerRegistry(100, time.Minute)
	}
	nop := zerolog.Nop()
	e := NewEngine(policy, reg, &nop)
	e.rand = func() float64 { return 1.0 }
	return e
}

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:        maxRetries,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestExecuteRetriesExactlyMaxRetriesPlusOne(t *testing.T) {
	e := testEngine(fastPolicy(3), nil)

	calls := 0
	_, err := Execute(context.Background(), e, ErrorContext{Component: "fetcher", Operation: "fetch"},
		func(context.Context) (string, error) {
			calls++
			return "", errors.New("connection refused")
		})

	if calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", calls)
	}
	var perr *PipelineError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PipelineError, got %T", err)
	}
	if perr.Category != CategoryJob || perr.Code != "JOB_OPERATION_FAILED" {
		t.Fatalf("expected job wrapper, got %s/%s", perr.Category, perr.Code)
	}
	var cause *PipelineError
	if !errors.As(perr.Cause, &cause) || cause.Category != CategoryNetwork {
		t.Fatalf("wrapper should carry the classified cause, got %v", perr.Cause)
	}
}

func TestExecuteNegativeMaxRetriesStillAttemptsOnce(t *testing.T) {
	e := testEngine(fastPolicy(3), nil)

	calls := 0
	_, err := Execute(context.Background(), e, ErrorContext{Component: "fetcher", Operation: "fetch"},
		func(context.Context) (string, error) {
			calls++
			return "", errors.New("connection refused")
		}, fastPolicy(-1))

	if calls != 1 {
		t.Fatalf("negative retry count must clamp to a single attempt, got %d", calls)
	}
	var perr *PipelineError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PipelineError, got %T", err)
	}
	if perr.Code != "JOB_OPERATION_FAILED" {
		t.Fatalf("expected job wrapper, got %s", perr.Code)
	}

	// The same clamp applies to an engine built with a negative policy.
	neg := fastPolicy(-2)
	e = testEngine(neg, nil)
	calls = 0
	_, err = Execute(context.Background(), e, ErrorContext{Component: "fetcher", Operation: "fetch"},
		func(context.Context) (string, error) {
			calls++
			return "", errors.New("connection refused")
		})
	if calls != 1 {
		t.Fatalf("engine-level negative retry count must clamp, got %d attempts", calls)
	}
	if err == nil {
		t.Fatal("expected an error after the single failed attempt")
	}
}

func TestExecuteStopsOnNonRetryable(t *testing.T) {
	e := testEngine(fastPolicy(5), nil)

	calls := 0
	_, err := Execute(context.Background(), e, ErrorContext{Component: "validator", Operation: "validate"},
		func(context.Context) (int, error) {
			calls++
			return 0, NewValidationError("invalid URL format", nil)
		})

	if calls != 1 {
		t.Fatalf("non-retryable error must not be retried, got %d attempts", calls)
	}
	var perr *PipelineError
	if !errors.As(err, &perr) || perr.Category != CategoryJob {
		t.Fatalf("expected job wrapper, got %v", err)
	}
	if perr.Message != "invalid URL format" {
		t.Fatalf("wrapper must preserve the original message, got %q", perr.Message)
	}
}

func TestExecuteSucceedsAfterTransientFailure(t *testing.T) {
	e := testEngine(fastPolicy(3), nil)

	calls := 0
	got, err := Execute(context.Background(), e, ErrorContext{Component: "fetcher", Operation: "fetch"},
		func(context.Context) (string, error) {
			calls++
			if calls == 1 {
				return "", errors.New("network unreachable")
			}
			return "page", nil
		})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "page" || calls != 2 {
		t.Fatalf("expected success on second attempt, got %q after %d calls", got, calls)
	}
}

func TestExecuteFailsFastWhenBreakerOpensMidLoop(t *testing.T) {
	reg := NewBreakerRegistry(2, time.Minute)
	e := testEngine(fastPolicy(5), reg)

	calls := 0
	_, err := Execute(context.Background(), e, ErrorContext{Component: "embedder", Operation: "embed"},
		func(context.Context) ([]float32, error) {
			calls++
			return nil, errors.New("connection reset")
		})

	if calls != 2 {
		t.Fatalf("breaker with threshold 2 should stop the loop after 2 calls, got %d", calls)
	}
	var perr *PipelineError
	if !errors.As(err, &perr) || perr.Category != CategoryCircuitBreaker {
		t.Fatalf("expected circuit breaker error, got %v", err)
	}
	if perr.Retryable {
		t.Fatal("breaker-open errors must not be retryable")
	}
}

func TestExecuteRespectsPolicyOverride(t *testing.T) {
	e := testEngine(fastPolicy(5), nil)

	calls := 0
	_ = e.Do(context.Background(), ErrorContext{Component: "index", Operation: "store"},
		func(context.Context) error {
			calls++
			return errors.New("connection refused")
		}, fastPolicy(1))

	if calls != 2 {
		t.Fatalf("override MaxRetries=1 means 2 attempts, got %d", calls)
	}
}

func TestExecuteAbortsOnContextCancel(t *testing.T) {
	policy := fastPolicy(3)
	policy.BaseDelay = time.Second
	policy.MaxDelay = time.Second
	e := testEngine(policy, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Execute(ctx, e, ErrorContext{Component: "fetcher", Operation: "fetch"},
			func(context.Context) (string, error) {
				calls++
				return "", errors.New("connection refused")
			})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		var perr *PipelineError
		if !errors.As(err, &perr) || perr.Category != CategoryJob {
			t.Fatalf("expected job error on cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Execute did not return after context cancellation")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", calls)
	}
}

func TestDelayForWithoutJitter(t *testing.T) {
	p := RetryPolicy{
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
	}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second}, // capped at MaxDelay
		{10, time.Second},
	}
	for _, c := range cases {
		if got := p.DelayFor(c.attempt, nil); got != c.want {
			t.Errorf("DelayFor(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestDelayForJitterRange(t *testing.T) {
	p := RetryPolicy{
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}

	if got := p.DelayFor(1, func() float64 { return 0 }); got != 100*time.Millisecond {
		t.Errorf("jitter floor should be 0.5x: got %v", got)
	}
	if got := p.DelayFor(1, func() float64 { return 1 }); got != 200*time.Millisecond {
		t.Errorf("jitter ceiling should be 1.0x: got %v", got)
	}
}
