// Package ratelimiter keeps one token bucket per identity (client IP, email)
// and forgets identities that stayed idle for the expiration period.
package ratelimiter

import (
	"sync"
	"time"
)

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	timer      *time.Timer
}

func (b *bucket) take(now time.Time, rate, capacity float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * rate
		if b.tokens > capacity {
			b.tokens = capacity
		}
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Limiter allows rate requests per second per identity with bursts up to capacity.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	rate       float64
	capacity   float64
	expiration time.Duration
	now        func() time.Time
}

func New(rate, capacity float64, expiration time.Duration) *Limiter {
	return &Limiter{
		buckets:    make(map[string]*bucket),
		rate:       rate,
		capacity:   capacity,
		expiration: expiration,
		now:        time.Now,
	}
}

// PerMinute builds a limiter allowing n requests a minute, all of them usable at once.
func PerMinute(n int, expiration time.Duration) *Limiter {
	return New(float64(n)/60, float64(n), expiration)
}

func (l *Limiter) Allow(identity string) bool {
	return l.bucket(identity).take(l.now(), l.rate, l.capacity)
}

func (l *Limiter) bucket(identity string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[identity]
	if !ok {
		b = &bucket{tokens: l.capacity, lastRefill: l.now()}
		l.buckets[identity] = b
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(l.expiration, func() { l.forget(identity, b) })
	return b
}

func (l *Limiter) forget(identity string, b *bucket) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buckets[identity] == b {
		delete(l.buckets, identity)
	}
}

// Len reports how many identities are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stop cancels pending expirations.
func (l *Limiter) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, b := range l.buckets {
		if b.timer != nil {
			b.timer.Stop()
		}
	}
}
