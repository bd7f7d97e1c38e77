package middleware

import (
	"net/http"
	"sort"
	"sync"
	"time"
)

const (
	BreakerThreshold = 5
	BreakerCooldown  = 60 * time.Second
	BreakerIdleAfter = 5 * time.Minute
)

// BreakerState is the state of one code-url key.
type BreakerState struct {
	Key           string    `json:"key"`
	Failures      int       `json:"failures"`
	LastFailure   time.Time `json:"lastFailure"`
	Open          bool      `json:"open"`
	HalfOpenUntil time.Time `json:"halfOpenUntil,omitempty"`
}

// TripObserver is told when a circuit opens.
type TripObserver interface {
	CircuitOpened(key string)
}

// CircuitBreaker tracks server failures per key. Five 5xx errors open the
// circuit for 60 seconds; any non-5xx error on the key closes it.
type CircuitBreaker struct {
	mu       sync.Mutex
	states   map[string]*BreakerState
	now      func() time.Time
	observer TripObserver
}

func NewCircuitBreaker(now func() time.Time, observer TripObserver) *CircuitBreaker {
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{states: make(map[string]*BreakerState), now: now, observer: observer}
}

// Record applies one error with the given status to key and reports whether
// the circuit is open afterwards.
func (b *CircuitBreaker) Record(key string, status int) bool {
	b.mu.Lock()
	now := b.now()
	st, ok := b.states[key]

	if status < http.StatusInternalServerError {
		if ok {
			st.Failures = 0
			st.Open = false
			st.HalfOpenUntil = time.Time{}
		}
		b.mu.Unlock()
		return false
	}

	if !ok {
		st = &BreakerState{Key: key}
		b.states[key] = st
	}
	if st.Open && now.After(st.HalfOpenUntil) {
		st.Open = false
		st.Failures = 0
		st.HalfOpenUntil = time.Time{}
	}
	if st.Open {
		b.mu.Unlock()
		return true
	}

	st.Failures++
	st.LastFailure = now
	tripped := false
	if st.Failures >= BreakerThreshold {
		st.Open = true
		st.HalfOpenUntil = now.Add(BreakerCooldown)
		tripped = true
	}
	b.mu.Unlock()

	if tripped && b.observer != nil {
		b.observer.CircuitOpened(key)
	}
	return tripped
}

// IsOpen reports whether key is open and still inside its cooldown.
func (b *CircuitBreaker) IsOpen(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[key]
	return ok && st.Open && !b.now().After(st.HalfOpenUntil)
}

// Reset forgets key, e.g. after a successful recovery.
func (b *CircuitBreaker) Reset(key string) {
	b.mu.Lock()
	delete(b.states, key)
	b.mu.Unlock()
}

// Sweep closes circuits past their cooldown and evicts keys idle for more
// than five minutes. It returns the number of evicted keys.
func (b *CircuitBreaker) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	evicted := 0
	for key, st := range b.states {
		if st.Open && now.After(st.HalfOpenUntil) {
			st.Open = false
			st.Failures = 0
			st.HalfOpenUntil = time.Time{}
		}
		if now.Sub(st.LastFailure) > BreakerIdleAfter {
			delete(b.states, key)
			evicted++
		}
	}
	return evicted
}

// Snapshot lists all tracked keys ordered by key.
func (b *CircuitBreaker) Snapshot() []BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BreakerState, 0, len(b.states))
	for _, st := range b.states {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
