package resilience

import (
	"sync"
	"time"
)

// BreakerState is the lifecycle state of one component's circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

type breaker struct {
	state               BreakerState
	consecutiveFailures int
	lastFailureTime     time.Time
	totalFailures       int64
	totalRequests       int64
}

// BreakerSnapshot is a read-only copy of one breaker's state.
type BreakerSnapshot struct {
	Component           string
	State               BreakerState
	ConsecutiveFailures int
	LastFailureTime     time.Time
	TotalFailures       int64
	TotalRequests       int64
}

// BreakerRegistry holds one breaker per component name. Breakers are created
// lazily on first use and live for the process lifetime, shared by every job
// touching that component, so all access goes through the mutex.
type BreakerRegistry struct {
	mu               sync.Mutex
	byComponent      map[string]*breaker
	failureThreshold int
	resetTimeout     time.Duration
	now              func() time.Time
}

func NewBreakerRegistry(failureThreshold int, resetTimeout time.Duration) *BreakerRegistry {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &BreakerRegistry{
		byComponent:      make(map[string]*breaker),
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
	}
}

func (r *BreakerRegistry) get(component string) *breaker {
	b, ok := r.byComponent[component]
	if !ok {
		b = &breaker{state: BreakerClosed}
		r.byComponent[component] = b
	}
	return b
}

// Allow gates one call to the component. An open breaker whose reset timeout
// has elapsed moves to half-open and lets exactly one probe through; any
// other open or half-open state fails fast without invoking the operation.
func (r *BreakerRegistry) Allow(component string) *PipelineError {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(component)
	b.totalRequests++

	switch b.state {
	case BreakerOpen:
		if r.now().Sub(b.lastFailureTime) >= r.resetTimeout {
			b.state = BreakerHalfOpen
			return nil // the single half-open probe
		}
		return NewCircuitBreakerError(component, nil)
	case BreakerHalfOpen:
		// A probe is already in flight.
		return NewCircuitBreakerError(component, nil)
	default:
		return nil
	}
}

// RecordSuccess resets the failure streak; a successful half-open probe
// closes the breaker.
func (r *BreakerRegistry) RecordSuccess(component string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(component)
	b.consecutiveFailures = 0
	if b.state == BreakerHalfOpen {
		b.state = BreakerClosed
	}
}

// RecordFailure counts a failed call and opens the breaker once the streak
// reaches the failure threshold.
func (r *BreakerRegistry) RecordFailure(component string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(component)
	b.consecutiveFailures++
	b.totalFailures++
	b.lastFailureTime = r.now()
	if b.consecutiveFailures >= r.failureThreshold {
		b.state = BreakerOpen
	}
}

// Snapshot returns a copy of the breaker for component, if one exists.
func (r *BreakerRegistry) Snapshot(component string) (BreakerSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byComponent[component]
	if !ok {
		return BreakerSnapshot{}, false
	}
	return BreakerSnapshot{
		Component:           component,
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		LastFailureTime:     b.lastFailureTime,
		TotalFailures:       b.totalFailures,
		TotalRequests:       b.totalRequests,
	}, true
}

// Snapshots returns a copy of every known breaker, for observability.
func (r *BreakerRegistry) Snapshots() []BreakerSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]BreakerSnapshot, 0, len(r.byComponent))
	for name, b := range r.byComponent {
		out = append(out, BreakerSnapshot{
			Component:           name,
			State:               b.state,
			ConsecutiveFailures: b.consecutiveFailures,
			LastFailureTime:     b.lastFailureTime,
			TotalFailures:       b.totalFailures,
			TotalRequests:       b.totalRequests,
		})
	}
	return out
}
