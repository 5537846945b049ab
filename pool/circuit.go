package pool

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultCircuitThreshold  = 5
	defaultCircuitResetAfter = 30 * time.Second
)

// circuitBreaker tracks connect failures per Endpoint and gates new
// connects once an endpoint trips, attempting a single half-open probe
// after resetAfter has elapsed.
type circuitBreaker struct {
	endpoints  sync.Map // Endpoint -> *circuitState
	threshold  int
	resetAfter time.Duration
}

type circuitState struct {
	failures    int64
	lastFailure int64
	lastAttempt int64
	isOpen      int32
}

func newCircuitBreaker(threshold int, resetAfter time.Duration) *circuitBreaker {
	if threshold <= 0 {
		threshold = defaultCircuitThreshold
	}
	if resetAfter <= 0 {
		resetAfter = defaultCircuitResetAfter
	}
	return &circuitBreaker{threshold: threshold, resetAfter: resetAfter}
}

// Open reports whether new connects to key should be refused. A tripped
// breaker lets one probe through once resetAfter has elapsed, refuses other
// attempts for a second after that probe, and lets attempts through again
// if no outcome has been reported by then.
func (cb *circuitBreaker) Open(key Endpoint) bool {
	state, ok := cb.load(key)
	if !ok {
		return false
	}

	if atomic.LoadInt32(&state.isOpen) == 0 {
		return false
	}

	lastFailure := atomic.LoadInt64(&state.lastFailure)
	if time.Unix(0, lastFailure).Add(cb.resetAfter).After(time.Now()) {
		return true
	}

	now := time.Now().UnixNano()
	if atomic.CompareAndSwapInt64(&state.lastAttempt, 0, now) {
		return false // half-open: let this one through
	}
	lastAttempt := atomic.LoadInt64(&state.lastAttempt)
	return time.Unix(0, lastAttempt).Add(time.Second).After(time.Now())
}

func (cb *circuitBreaker) ReportSuccess(key Endpoint) {
	state, ok := cb.load(key)
	if !ok {
		return
	}
	atomic.StoreInt64(&state.failures, 0)
	atomic.StoreInt32(&state.isOpen, 0)
	atomic.StoreInt64(&state.lastAttempt, 0)
}

func (cb *circuitBreaker) ReportFailure(key Endpoint) {
	state := cb.loadOrCreate(key)
	failures := atomic.AddInt64(&state.failures, 1)
	atomic.StoreInt64(&state.lastFailure, time.Now().UnixNano())
	atomic.StoreInt64(&state.lastAttempt, 0)
	if failures >= int64(cb.threshold) {
		atomic.StoreInt32(&state.isOpen, 1)
	}
}

func (cb *circuitBreaker) load(key Endpoint) (*circuitState, bool) {
	v, ok := cb.endpoints.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*circuitState), true
}

func (cb *circuitBreaker) loadOrCreate(key Endpoint) *circuitState {
	actual, _ := cb.endpoints.LoadOrStore(key, &circuitState{})
	return actual.(*circuitState)
}
