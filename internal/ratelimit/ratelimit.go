// Package ratelimit enforces a minimum interval between successive outbound
// requests to the same host. Where internal/fetch.Client gates concurrency
// with a lazily created global semaphore channel, this package keeps a
// mutex-guarded, lazily-initialized map of per-host last-request timestamps.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hyperifyio/deepresearch/internal/rerr"
)

// Limiter gates outbound requests per host to at most one per Interval.
// The zero value is usable; Interval defaults to 1 second.
type Limiter struct {
	// Interval is the minimum duration between two Wait(host) calls
	// returning for the same host. Defaults to 1s when zero.
	Interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func (l *Limiter) interval() time.Duration {
	if l.Interval <= 0 {
		return time.Second
	}
	return l.Interval
}

func (l *Limiter) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now()
}

// Wait blocks the caller until at least Interval has elapsed since the
// last Wait(host) for the same host returned. It returns a
// Cancelled-kind rerr.Error wrapping ctx.Err() if ctx is cancelled or
// its deadline elapses before the wait is satisfied; in that case the
// host's timestamp is left untouched so no caller is penalized for a
// timeout that was not its fault.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	for {
		l.mu.Lock()
		if l.last == nil {
			l.last = make(map[string]time.Time)
		}
		now := l.clock()
		prev, ok := l.last[host]
		wait := time.Duration(0)
		if ok {
			elapsed := now.Sub(prev)
			if elapsed < l.interval() {
				wait = l.interval() - elapsed
			}
		}
		if wait <= 0 {
			l.last[host] = now
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return rerr.New(rerr.Cancelled, ctx.Err())
		case <-timer.C:
			// loop around: re-check under the lock since a concurrent
			// waiter for the same host may have already claimed the slot.
		}
	}
}

// Reset clears all recorded timestamps. Intended for tests.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = nil
}
