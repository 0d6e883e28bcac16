package netutil

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter provides per-host REST rate limiting via a token bucket.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewLimiter creates a rate limiter with the given requests-per-second
// and burst capacity, applied per distinct host.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{limiters: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (l *Limiter) getLimiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.rps), l.burst)
		l.limiters[host] = lim
	}
	return lim
}

// Wait blocks until a request to host is permitted or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	return l.getLimiter(host).Wait(ctx)
}
