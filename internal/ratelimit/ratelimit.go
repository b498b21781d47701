// Package ratelimit implements the token bucket that paces calls to the
// speech synthesis service.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Default bucket used for the synthesis service.
const (
	DefaultTokens   = 5
	DefaultInterval = time.Minute
)

// Limiter is a token bucket that refills lazily. Tokens are only topped up
// when somebody asks for one: every whole interval that has passed since the
// last refill adds a full bucket, capped at the bucket size.
type Limiter struct {
	mu         sync.Mutex
	maxTokens  int
	tokens     int
	interval   time.Duration
	lastRefill time.Time
	clock      clockwork.Clock
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the clock used to measure refill intervals.
func WithClock(c clockwork.Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// New returns a full bucket of maxTokens that refills every interval.
// Non-positive arguments fall back to the defaults.
func New(maxTokens int, interval time.Duration, opts ...Option) *Limiter {
	if maxTokens <= 0 {
		maxTokens = DefaultTokens
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	l := &Limiter{
		maxTokens: maxTokens,
		tokens:    maxTokens,
		interval:  interval,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastRefill = l.clock.Now()
	return l
}

// Acquire takes one token, waiting for the next refill when the bucket is
// empty. It returns ctx.Err() if the context ends first; no token is
// consumed in that case.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		l.refill()
		if l.tokens > 0 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		wait := l.lastRefill.Add(l.interval).Sub(l.clock.Now())
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}

		timer := l.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.Chan():
		}
	}
}

// TryAcquire takes a token if one is available without waiting.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens == 0 {
		return false
	}
	l.tokens--
	return true
}

// Tokens reports how many tokens are available right now.
func (l *Limiter) Tokens() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	return l.tokens
}

// refill must be called with l.mu held.
func (l *Limiter) refill() {
	now := l.clock.Now()
	periods := int(now.Sub(l.lastRefill) / l.interval)
	if periods <= 0 {
		return
	}
	l.tokens = min(l.maxTokens, l.tokens+periods*l.maxTokens)
	l.lastRefill = now
}
