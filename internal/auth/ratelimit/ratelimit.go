// Package ratelimit implements the per-key token bucket the gateway uses
// to throttle scan and registration traffic. Each API key refills at its
// own configured rate; buckets for idle keys are reaped in the background.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// bucket tracks the token state for a single key.
type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// Limiter is an in-memory token-bucket rate limiter. Tokens refill
// continuously at limit/window per second, where limit comes from the
// key's api_keys row.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	window  time.Duration
	stop    chan struct{}
}

// New creates a rate limiter with the given refill window and starts the
// background reaper. Call Close to stop it.
func New(window time.Duration) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		window:  window,
		stop:    make(chan struct{}),
	}
	go l.reap()
	return l
}

// Allow consumes one token for key if any remain and reports whether the
// request may proceed.
func (l *Limiter) Allow(key string, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, exists := l.buckets[key]
	if !exists {
		l.buckets[key] = &bucket{
			tokens:    float64(limit - 1),
			lastCheck: now,
		}
		return true
	}

	l.refill(b, now, limit)

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RetryAfter reports how long until key has a full token again. Zero means
// a request would be allowed now. Used for the Retry-After header on 429s.
func (l *Limiter) RetryAfter(key string, limit int) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.buckets[key]
	if !exists {
		return 0
	}
	l.refill(b, time.Now(), limit)

	deficit := 1 - b.tokens
	if deficit <= 0 {
		return 0
	}
	rate := float64(limit) / l.window.Seconds()
	return time.Duration(math.Ceil(deficit/rate)) * time.Second
}

// Reset clears the bucket for a specific key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Close stops the background reaper.
func (l *Limiter) Close() {
	close(l.stop)
}

// refill credits tokens for the time elapsed since the last check.
// Caller must hold l.mu.
func (l *Limiter) refill(b *bucket, now time.Time, limit int) {
	elapsed := now.Sub(b.lastCheck)
	b.lastCheck = now

	rate := float64(limit) / l.window.Seconds()
	b.tokens += elapsed.Seconds() * rate
	if b.tokens > float64(limit) {
		b.tokens = float64(limit)
	}
}

// reap removes buckets idle for more than two windows.
func (l *Limiter) reap() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			cutoff := time.Now().Add(-2 * l.window)
			for key, b := range l.buckets {
				if b.lastCheck.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}
