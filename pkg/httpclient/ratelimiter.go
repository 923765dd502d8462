package httpclient

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// AdaptiveLimiter is a single shared token-bucket limiter whose rate is
// adjusted at runtime: additive increase on sustained success, multiplicative
// decrease on a burst of 429/5xx responses. Rate never falls below minRPS
// or rises above maxRPS. Grounded on the same map-of-rate.Limiter-plus-mutex
// shape the teacher's ingress rate limiting used, simplified to one shared
// limiter since the CEE has one HTTP Client, not one per inbound client.
type AdaptiveLimiter struct {
	limiter *rate.Limiter

	minRPS int64 // fixed-point: requests per second * 1000
	maxRPS int64

	currentRPS int64 // atomic, fixed-point

	failWindow []bool // ring of recent outcomes, true = failure
	windowSize int
	windowPos  int32
}

// NewAdaptiveLimiter builds a limiter starting at initialRPS, bounded to
// [minRPS, maxRPS].
func NewAdaptiveLimiter(initialRPS, minRPS, maxRPS float64) *AdaptiveLimiter {
	if initialRPS <= 0 {
		initialRPS = minRPS
	}
	a := &AdaptiveLimiter{
		limiter:    rate.NewLimiter(rate.Limit(initialRPS), burstFor(initialRPS)),
		minRPS:     int64(minRPS * 1000),
		maxRPS:     int64(maxRPS * 1000),
		windowSize: 20,
	}
	a.failWindow = make([]bool, a.windowSize)
	atomic.StoreInt64(&a.currentRPS, int64(initialRPS*1000))
	return a
}

func burstFor(rps float64) int {
	if rps < 1 {
		return 1
	}
	return int(rps)
}

// Limiter exposes the underlying token bucket for callers that need
// context-aware waiting (rate.Limiter.WaitN).
func (a *AdaptiveLimiter) Limiter() *rate.Limiter {
	return a.limiter
}

// CurrentRPS returns the current adaptive rate as a float.
func (a *AdaptiveLimiter) CurrentRPS() float64 {
	return float64(atomic.LoadInt64(&a.currentRPS)) / 1000
}

// ReportSuccess records a successful request and nudges the rate up.
func (a *AdaptiveLimiter) ReportSuccess() {
	a.record(false)
	a.increase()
}

// ReportFailure records a 429/5xx outcome; if the failure ratio in the
// sliding window exceeds the threshold, the rate is halved and a cool-off
// sleep is left to the caller.
func (a *AdaptiveLimiter) ReportFailure() (shouldCoolOff bool) {
	a.record(true)
	if a.failureRatio() > 0.5 {
		a.decrease()
		return true
	}
	return false
}

func (a *AdaptiveLimiter) record(failed bool) {
	pos := int(atomic.AddInt32(&a.windowPos, 1)-1) % a.windowSize
	a.failWindow[pos] = failed
}

func (a *AdaptiveLimiter) failureRatio() float64 {
	failures := 0
	for _, f := range a.failWindow {
		if f {
			failures++
		}
	}
	return float64(failures) / float64(a.windowSize)
}

func (a *AdaptiveLimiter) increase() {
	for {
		cur := atomic.LoadInt64(&a.currentRPS)
		next := cur + 100 // +0.1 rps additive step
		if next > a.maxRPS {
			next = a.maxRPS
		}
		if next == cur {
			return
		}
		if atomic.CompareAndSwapInt64(&a.currentRPS, cur, next) {
			a.applyRate(next)
			return
		}
	}
}

func (a *AdaptiveLimiter) decrease() {
	for {
		cur := atomic.LoadInt64(&a.currentRPS)
		next := cur / 2
		if next < a.minRPS {
			next = a.minRPS
		}
		if next == cur {
			return
		}
		if atomic.CompareAndSwapInt64(&a.currentRPS, cur, next) {
			a.applyRate(next)
			return
		}
	}
}

func (a *AdaptiveLimiter) applyRate(fixedPointRPS int64) {
	rps := float64(fixedPointRPS) / 1000
	a.limiter.SetLimit(rate.Limit(rps))
	a.limiter.SetBurst(burstFor(rps))
}

// coolOffDuration is the sleep applied after a rate decrease: a fixed two
// seconds, whatever the current rate.
func coolOffDuration() time.Duration {
	return 2 * time.Second
}
