package ratelimit

import (
	"math"
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

type Limiter struct {
	mu sync.Mutex
	m  map[string]*bucket
}

func New() *Limiter { return &Limiter{m: make(map[string]*bucket)} }

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.refill(key, capacity, refillPerSec, now)
	if b.tokens >= 1 {
		b.tokens -= 1
		return true
	}
	return false
}

// Remaining reports the whole tokens currently available for key
// without consuming any.
func (l *Limiter) Remaining(key string, capacity, refillPerSec float64) int {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.refill(key, capacity, refillPerSec, now)
	return int(math.Floor(b.tokens))
}

func (l *Limiter) refill(key string, capacity, refillPerSec float64, now time.Time) *bucket {
	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
	}
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	return b
}
