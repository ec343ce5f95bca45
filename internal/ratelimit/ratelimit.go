// Package ratelimit throttles callers with per-key token buckets.
package ratelimit

import (
	"sync"
	"time"
)

// bucket tracks the token state for a single key.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// Limiter is a token-bucket rate limiter keyed by caller (client address
// or identity handle). Every key gets rate tokens per window.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    int
	window  time.Duration
	now     func() time.Time
}

// New creates a Limiter that allows rate requests per window for each key.
// A non-positive rate disables limiting.
func New(rate int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		window:  window,
		now:     time.Now,
	}
}

// Enabled reports whether the limiter restricts anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.rate > 0
}

// take returns the refilled bucket for key. Must be called with l.mu held.
func (l *Limiter) take(key string) *bucket {
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.rate), lastSeen: now}
		l.buckets[key] = b
		return b
	}

	if elapsed := now.Sub(b.lastSeen).Seconds(); elapsed > 0 {
		b.tokens += elapsed * float64(l.rate) / l.window.Seconds()
		if b.tokens > float64(l.rate) {
			b.tokens = float64(l.rate)
		}
		b.lastSeen = now
	}
	return b
}

// Allow consumes one token for key and reports whether the request may
// proceed.
func (l *Limiter) Allow(key string) bool {
	if !l.Enabled() {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.take(key)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Status returns the limit, the whole tokens left for key and the time at
// which its bucket will be full again.
func (l *Limiter) Status(key string) (limit int, remaining int, resetAt time.Time) {
	if !l.Enabled() {
		return 0, 0, time.Time{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.take(key)
	limit = l.rate
	remaining = int(b.tokens)
	if remaining < 0 {
		remaining = 0
	}

	deficit := float64(l.rate) - b.tokens
	if deficit <= 0 {
		resetAt = l.now()
	} else {
		perSecond := float64(l.rate) / l.window.Seconds()
		resetAt = l.now().Add(time.Duration(deficit / perSecond * float64(time.Second)))
	}
	return
}

// Prune forgets buckets untouched for at least one full window; they would
// be full anyway. It returns the number of buckets removed.
func (l *Limiter) Prune() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	n := 0
	for key, b := range l.buckets {
		if !b.lastSeen.After(cutoff) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
