package handlers

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ownerLimiter is a token bucket per cart owner key. Buckets idle for longer than the
// refill window are dropped when new owners arrive.
type ownerLimiter struct {
	every time.Duration
	burst int
	clock func() time.Time

	mu      sync.Mutex
	buckets map[string]*ownerBucket
}

type ownerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newOwnerLimiter allows perMinute requests per owner with the given burst. A
// non-positive perMinute disables limiting and returns nil.
func newOwnerLimiter(perMinute, burst int, clock func() time.Time) *ownerLimiter {
	if perMinute <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &ownerLimiter{
		every:   time.Minute / time.Duration(perMinute),
		burst:   max(burst, 1),
		clock:   clock,
		buckets: make(map[string]*ownerBucket),
	}
}

// Allow reports whether key may proceed now and, if not, how long until it may.
func (l *ownerLimiter) Allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.buckets[key]
	if !ok {
		l.sweep(now)
		bucket = &ownerBucket{limiter: rate.NewLimiter(rate.Every(l.every), l.burst)}
		l.buckets[key] = bucket
	}
	bucket.lastSeen = now

	reservation := bucket.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *ownerLimiter) sweep(now time.Time) {
	idle := l.every * time.Duration(l.burst)
	for key, bucket := range l.buckets {
		if now.Sub(bucket.lastSeen) > idle {
			delete(l.buckets, key)
		}
	}
}
