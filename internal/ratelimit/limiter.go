// Package ratelimit paces calls to a ledger RPC endpoint.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter combines a token bucket with an optional minimum gap between consecutive calls.
// Public mainnet-beta nodes throttle aggressively, so every getAccountInfo goes through Wait.
type Limiter struct {
	tokens      *rate.Limiter
	minInterval time.Duration

	mu       sync.Mutex
	last     time.Time
	requests int
	waited   time.Duration
}

// Config contains rate limiting configuration
type Config struct {
	// RequestsPerSecond is the sustained call rate
	RequestsPerSecond float64

	// BurstSize allows brief bursts above the rate limit
	BurstSize int

	// MinInterval is the minimum gap between two calls, on top of the token bucket
	MinInterval time.Duration
}

// DefaultConfig stays well under the public mainnet-beta limits
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 5.0,
		BurstSize:         1,
	}
}

func NewLimiter(config Config) *Limiter {
	if config.BurstSize < 1 {
		config.BurstSize = 1
	}
	return &Limiter{
		tokens:      rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.BurstSize),
		minInterval: config.MinInterval,
	}
}

// Wait blocks until the next call may go out or ctx ends.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.tokens.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.IsZero() {
		if gap := l.minInterval - time.Since(l.last); gap > 0 {
			timer := time.NewTimer(gap)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	l.last = time.Now()
	l.requests++
	l.waited += l.last.Sub(start)
	return nil
}

// Stats is a snapshot of what the limiter has admitted so far.
type Stats struct {
	Requests int
	Waited   time.Duration
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{Requests: l.requests, Waited: l.waited}
}
