package httpclient

import (
	"testing"
	"time"

	"github.com/franklinbaldo/baliza/pkg/errz"
	"github.com/franklinbaldo/baliza/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCircuitBreakerStartsClosed tests that a fresh breaker allows
// requests through.
func TestCircuitBreakerStartsClosed(t *testing.T) {
	b := NewCircuitBreaker("contratos", time.Minute)
	assert.Equal(t, types.CircuitClosed, b.State())
	assert.NoError(t, b.Allow())
}

// TestCircuitBreakerTripsPastFailureThreshold tests CLOSED->OPEN once
// more than half of the outcome window is failures.
func TestCircuitBreakerTripsPastFailureThreshold(t *testing.T) {
	b := NewCircuitBreaker("contratos", time.Minute)

	for i := 0; i < 10; i++ {
		b.ReportFailure()
	}
	assert.Equal(t, types.CircuitClosed, b.State(), "exactly half the window failing must not trip")

	b.ReportFailure()
	assert.Equal(t, types.CircuitOpen, b.State(), "more than half the window failing must trip")
}

// TestCircuitBreakerRejectsWhileOpen tests that Allow refuses requests
// until the cool-off elapses.
func TestCircuitBreakerRejectsWhileOpen(t *testing.T) {
	b := NewCircuitBreaker("contratos", time.Hour)
	for i := 0; i < 11; i++ {
		b.ReportFailure()
	}
	require.Equal(t, types.CircuitOpen, b.State())

	err := b.Allow()
	require.Error(t, err)
	assert.Equal(t, errz.KindCircuitOpen, errz.KindOf(err))
}

// TestCircuitBreakerHalfOpenProbeSucceeds tests that a single probe is
// allowed after cool-off, and a success restores CLOSED.
func TestCircuitBreakerHalfOpenProbeSucceeds(t *testing.T) {
	b := NewCircuitBreaker("contratos", 5*time.Millisecond)
	for i := 0; i < 11; i++ {
		b.ReportFailure()
	}
	require.Equal(t, types.CircuitOpen, b.State())

	time.Sleep(10 * time.Millisecond)

	require.NoError(t, b.Allow(), "first Allow after cool-off must admit the probe")
	assert.Equal(t, types.CircuitHalfOpen, b.State())

	err := b.Allow()
	require.Error(t, err, "a second concurrent probe must be rejected")

	b.ReportSuccess()
	assert.Equal(t, types.CircuitClosed, b.State())
}

// TestCircuitBreakerHalfOpenProbeFails tests that a failed probe trips
// the breaker back to OPEN.
func TestCircuitBreakerHalfOpenProbeFails(t *testing.T) {
	b := NewCircuitBreaker("contratos", 5*time.Millisecond)
	for i := 0; i < 11; i++ {
		b.ReportFailure()
	}
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Allow())
	require.Equal(t, types.CircuitHalfOpen, b.State())

	b.ReportFailure()
	assert.Equal(t, types.CircuitOpen, b.State())
}

// TestBreakerRegistryIsolatesEndpoints tests that each endpoint gets its
// own independent breaker, created lazily.
func TestBreakerRegistryIsolatesEndpoints(t *testing.T) {
	reg := NewBreakerRegistry(time.Minute)

	a := reg.For("contratos")
	for i := 0; i < 11; i++ {
		a.ReportFailure()
	}
	assert.Equal(t, types.CircuitOpen, a.State())

	b := reg.For("contratacoes")
	assert.Equal(t, types.CircuitClosed, b.State())
	assert.Same(t, a, reg.For("contratos"), "repeated lookups must return the same instance")
}
