// Package timing produces the human-like pauses placed around outbound
// probe requests.
package timing

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	preDelayMin  = 50 * time.Millisecond
	preDelaySpan = 100 * time.Millisecond
	betweenMin   = 100 * time.Millisecond
	betweenSpan  = 200 * time.Millisecond
)

// Jitter is one draw of request pacing.
type Jitter struct {
	// PreDelay is waited before the first request, in [50ms,150ms).
	PreDelay time.Duration
	// BetweenRequests is the base gap between attempts, in [100ms,300ms).
	// Multi-attempt strategies multiply it by the attempt index.
	BetweenRequests time.Duration
}

// New draws a uniform Jitter. Safe for concurrent use.
func New() Jitter {
	return Jitter{
		PreDelay:        preDelayMin + rand.N(preDelaySpan),
		BetweenRequests: betweenMin + rand.N(betweenSpan),
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep waits for d, returning ctx.Err() if ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoSleep never waits. Used by tests.
func NoSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }
