// Package ratelimiter keeps one token bucket per identity.
package ratelimiter

import (
	"sync"
	"time"
)

type bucket struct {
	tokens   float64
	last     time.Time
	lastSeen time.Time
}

// take refills for the time elapsed since the last call and spends one token.
func (b *bucket) take(now time.Time, rate, capacity float64) bool {
	b.tokens += now.Sub(b.last).Seconds() * rate
	if b.tokens > capacity {
		b.tokens = capacity
	}
	b.last = now
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Limiter allows rate requests per second per identity with bursts up to
// capacity. Buckets idle for longer than expiration are dropped.
type Limiter struct {
	rate       float64
	capacity   float64
	expiration time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func New(rate, capacity float64, expiration time.Duration) *Limiter {
	l := &Limiter{
		rate:       rate,
		capacity:   capacity,
		expiration: expiration,
		buckets:    make(map[string]*bucket),
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	go l.janitor()
	return l
}

// Decision is the outcome of one Take.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until the next token, zero when Allowed.
	RetryAfter time.Duration
}

// Take spends one token from the identity's bucket if it has one.
func (l *Limiter) Take(identity string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[identity]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.buckets[identity] = b
	}

	d := Decision{Allowed: b.take(now, l.rate, l.capacity), Remaining: int(b.tokens)}
	if !d.Allowed {
		d.RetryAfter = l.expiration
		if l.rate > 0 {
			d.RetryAfter = time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
		}
	}
	return d
}

func (l *Limiter) Allow(identity string) bool {
	return l.Take(identity).Allowed
}

// Stop ends the cleanup goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) janitor() {
	interval := l.expiration
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evict()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) evict() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.expiration)
	for id, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, id)
		}
	}
}
