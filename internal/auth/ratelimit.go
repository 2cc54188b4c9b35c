package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginLimiter bounds login attempts per client IP: a token bucket sized to
// hold the full attempt budget, refilled across the window. A successful
// login clears the client's bucket so the budget starts fresh.
type LoginLimiter struct {
	mu      sync.Mutex
	buckets map[string]*loginBucket

	refill rate.Limit
	burst  int
	ttl    time.Duration

	lastSweep time.Time
	now       func() time.Time
}

type loginBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLoginLimiter allows attempts tries per window for each client IP.
func NewLoginLimiter(attempts int, window time.Duration) *LoginLimiter {
	if attempts <= 0 {
		attempts = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &LoginLimiter{
		buckets: make(map[string]*loginBucket),
		refill:  rate.Every(window / time.Duration(attempts)),
		burst:   attempts,
		ttl:     2 * window,
		now:     time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (l *LoginLimiter) WithClock(fn func() time.Time) *LoginLimiter {
	if fn != nil {
		l.now = fn
	}
	return l
}

// Allow consumes one attempt for the IP and reports whether the attempt may
// proceed. Increments are atomic under the limiter's lock.
func (l *LoginLimiter) Allow(ip string) bool {
	if ip == "" {
		ip = "unknown"
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)

	b, ok := l.buckets[ip]
	if !ok {
		b = &loginBucket{lim: rate.NewLimiter(l.refill, l.burst)}
		l.buckets[ip] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// Reset clears the attempt counter for the IP after a successful login.
func (l *LoginLimiter) Reset(ip string) {
	if ip == "" {
		ip = "unknown"
	}
	l.mu.Lock()
	delete(l.buckets, ip)
	l.mu.Unlock()
}

// sweepLocked drops buckets idle for longer than the retention TTL. Runs at
// most once per TTL period.
func (l *LoginLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.ttl {
		return
	}
	l.lastSweep = now
	for ip, b := range l.buckets {
		if now.Sub(b.seen) > l.ttl {
			delete(l.buckets, ip)
		}
	}
}
