package handler

import (
	"context"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"rentalops/src/apperrors"

	"golang.org/x/time/rate"
)

const limiterIdleAfter = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	rps     rate.Limit
	burst   int
	maxWait time.Duration
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type LimiterOption func(*RateLimiter)

// WithMaxWait lets requests that are over the limit by at most d wait for
// their token instead of being rejected.
func WithMaxWait(d time.Duration) LimiterOption {
	return func(l *RateLimiter) { l.maxWait = d }
}

func NewRateLimiter(cfg Config, now func() time.Time, opts ...LimiterOption) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	l := &RateLimiter{
		rps:     rate.Limit(cfg.RateLimitRPS),
		burst:   burst,
		now:     now,
		clients: make(map[string]*clientLimiter),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RateLimiter) client(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, found := l.clients[key]
	if !found {
		c = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter
}

// Reserve takes one token for key. When none is available it returns the
// number of whole seconds until one is.
func (l *RateLimiter) Reserve(key string) (retryAfter int, ok bool) {
	return l.Admit(context.Background(), key, 0)
}

// Admit takes one token for key, waiting up to maxWait for it. A rejected
// request gets the whole seconds until a token frees up. A wait cut short by
// ctx gives the token back and counts as rejected.
func (l *RateLimiter) Admit(ctx context.Context, key string, maxWait time.Duration) (retryAfter int, ok bool) {
	now := l.now()
	res := l.client(key, now).ReserveN(now, 1)
	if !res.OK() {
		return int(limiterIdleAfter.Seconds()), false
	}
	delay := res.DelayFrom(now)
	if delay <= 0 {
		return 0, true
	}
	if delay > maxWait {
		res.CancelAt(now)
		return int(math.Ceil(delay.Seconds())), false
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return 0, true
	case <-ctx.Done():
		res.CancelAt(l.now())
		return int(math.Ceil(delay.Seconds())), false
	}
}

// Sweep forgets clients idle for more than ten minutes.
func (l *RateLimiter) Sweep() int {
	cutoff := l.now().Add(-limiterIdleAfter)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Middleware holds back requests that are briefly over the limit and rejects
// the rest with a RateLimitError handed to onError. Rejections always wait
// longer than maxWait, so the error pipeline never retries them on the
// client's behalf.
func (l *RateLimiter) Middleware(onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			if retryAfter, ok := l.Admit(r.Context(), key, l.maxWait); !ok {
				if r.Context().Err() != nil {
					return
				}
				onError(w, r, apperrors.NewRateLimitError(retryAfter, apperrors.WithContext("client", key)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
