package recovery

import (
	"sync"
	"time"
)

const (
	MaxAttempts  = 3
	BudgetWindow = 5 * time.Minute
)

type budgetEntry struct {
	count int
	start time.Time
}

// Budget limits recovery attempts per key within a fixed window.
type Budget struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*budgetEntry
}

func NewBudget(max int, window time.Duration, now func() time.Time) *Budget {
	if now == nil {
		now = time.Now
	}
	return &Budget{max: max, window: window, now: now, entries: make(map[string]*budgetEntry)}
}

// Allow consumes one attempt for key. It reports false once the window's
// attempts are used up.
func (b *Budget) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	e, ok := b.entries[key]
	if !ok || now.Sub(e.start) >= b.window {
		e = &budgetEntry{start: now}
		b.entries[key] = e
	}
	if e.count >= b.max {
		return false
	}
	e.count++
	return true
}

// Attempts returns the attempts used for key in its current window.
func (b *Budget) Attempts(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok || b.now().Sub(e.start) >= b.window {
		return 0
	}
	return e.count
}

// Sweep drops expired windows and returns how many were removed.
func (b *Budget) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	n := 0
	for key, e := range b.entries {
		if now.Sub(e.start) >= b.window {
			delete(b.entries, key)
			n++
		}
	}
	return n
}
