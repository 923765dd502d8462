package httpclient

import (
	"sync"
	"time"

	"github.com/franklinbaldo/baliza/pkg/errz"
	"github.com/franklinbaldo/baliza/pkg/metrics"
	"github.com/franklinbaldo/baliza/pkg/types"
)

// breakerWindow is how many recent outcomes a breaker considers when
// deciding whether to trip.
const breakerWindow = 20

// failureThreshold is the failure ratio within breakerWindow that trips
// CLOSED -> OPEN.
const failureThreshold = 0.5

// CircuitBreaker isolates one endpoint's failures from the rest: states
// CLOSED, OPEN, HALF_OPEN, protected by a mutex per the spec's shared-
// resource policy.
type CircuitBreaker struct {
	mu         sync.Mutex
	endpoint   string
	state      types.CircuitState
	openedAt   time.Time
	coolOff    time.Duration
	outcomes   []bool // true = failure
	pos        int
	halfOpenOK bool
}

// NewCircuitBreaker creates a CLOSED breaker for the named endpoint.
func NewCircuitBreaker(endpoint string, coolOff time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		endpoint: endpoint,
		state:    types.CircuitClosed,
		coolOff:  coolOff,
		outcomes: make([]bool, breakerWindow),
	}
}

// Allow reports whether a request may proceed. OPEN rejects immediately
// until the cool-off elapses, at which point exactly one probe is let
// through (HALF_OPEN).
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case types.CircuitClosed:
		return nil
	case types.CircuitOpen:
		if time.Since(b.openedAt) < b.coolOff {
			return errz.CircuitOpenError(b.endpoint)
		}
		b.state = types.CircuitHalfOpen
		b.halfOpenOK = true // this call is the single probe
		metrics.CircuitBreakerState.WithLabelValues(b.endpoint).Set(metrics.CircuitStateValue(string(b.state)))
		return nil
	case types.CircuitHalfOpen:
		if b.halfOpenOK {
			return errz.CircuitOpenError(b.endpoint)
		}
		b.halfOpenOK = true
		return nil
	default:
		return nil
	}
}

// ReportSuccess records a success; in HALF_OPEN it restores CLOSED.
func (b *CircuitBreaker) ReportSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(false)
	switch b.state {
	case types.CircuitHalfOpen:
		b.state = types.CircuitClosed
		b.resetWindow()
	case types.CircuitOpen:
		// stray success after a concurrent Allow raced the cool-off window
	}
	metrics.CircuitBreakerState.WithLabelValues(b.endpoint).Set(metrics.CircuitStateValue(string(b.state)))
}

// ReportFailure records a failure; trips CLOSED->OPEN past the threshold,
// and HALF_OPEN probes that fail return straight to OPEN.
func (b *CircuitBreaker) ReportFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(true)
	switch b.state {
	case types.CircuitHalfOpen:
		b.trip()
	case types.CircuitClosed:
		if b.failureRatio() > failureThreshold {
			b.trip()
		}
	}
	metrics.CircuitBreakerState.WithLabelValues(b.endpoint).Set(metrics.CircuitStateValue(string(b.state)))
}

func (b *CircuitBreaker) trip() {
	b.state = types.CircuitOpen
	b.openedAt = time.Now()
}

func (b *CircuitBreaker) record(failed bool) {
	b.outcomes[b.pos%len(b.outcomes)] = failed
	b.pos++
}

func (b *CircuitBreaker) resetWindow() {
	for i := range b.outcomes {
		b.outcomes[i] = false
	}
	b.pos = 0
}

func (b *CircuitBreaker) failureRatio() float64 {
	failures := 0
	for _, f := range b.outcomes {
		if f {
			failures++
		}
	}
	return float64(failures) / float64(len(b.outcomes))
}

// State returns the breaker's current state, for status reporting.
func (b *CircuitBreaker) State() types.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerRegistry holds one CircuitBreaker per endpoint, created lazily.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	coolOff  time.Duration
}

// NewBreakerRegistry constructs a registry using coolOff for every new
// breaker it lazily creates.
func NewBreakerRegistry(coolOff time.Duration) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		coolOff:  coolOff,
	}
}

// For returns the breaker for endpoint, creating it on first use.
func (r *BreakerRegistry) For(endpoint string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[endpoint]
	if !ok {
		b = NewCircuitBreaker(endpoint, r.coolOff)
		r.breakers[endpoint] = b
	}
	return b
}
