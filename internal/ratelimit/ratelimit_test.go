package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWaitEnforcesMinimumInterval(t *testing.T) {
	l := &Limiter{Interval: 50 * time.Millisecond}
	ctx := context.Background()

	t0 := time.Now()
	if err := l.Wait(ctx, "example.com"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	t1 := time.Now()
	if err := l.Wait(ctx, "example.com"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	t2 := time.Now()

	if t1.Sub(t0) > 10*time.Millisecond {
		t.Fatalf("first wait should return immediately, took %v", t1.Sub(t0))
	}
	if t2.Sub(t1) < 50*time.Millisecond {
		t.Fatalf("second wait should block ~50ms, took %v", t2.Sub(t1))
	}
}

func TestWaitIndependentPerHost(t *testing.T) {
	l := &Limiter{Interval: 50 * time.Millisecond}
	ctx := context.Background()

	if err := l.Wait(ctx, "a.com"); err != nil {
		t.Fatalf("a.com: %v", err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "b.com"); err != nil {
		t.Fatalf("b.com: %v", err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Fatalf("different host should not be gated by a.com's timestamp")
	}
}

func TestWaitReturnsTimeoutWithoutUpdatingTimestamp(t *testing.T) {
	l := &Limiter{Interval: 200 * time.Millisecond}
	ctx := context.Background()
	if err := l.Wait(ctx, "slow.com"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	shortCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(shortCtx, "slow.com"); err == nil {
		t.Fatalf("expected timeout error")
	}

	// A fresh, longer-lived context should still have to wait out the
	// remainder of the original interval: the timed-out waiter must not
	// have stolen or reset the host's slot.
	start := time.Now()
	if err := l.Wait(ctx, "slow.com"); err != nil {
		t.Fatalf("third wait: %v", err)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Fatalf("expected third wait to still be gated by the original timestamp, took %v", time.Since(start))
	}
}
