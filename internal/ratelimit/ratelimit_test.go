package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAcquire_AllowsUnderWeight(t *testing.T) {
	l := New(time.Minute, 100, 0)
	k := Key{Environment: "live", Account: "acct1"}

	if err := l.Acquire(context.Background(), k, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := l.UsedWeight(k); got != 10 {
		t.Errorf("expected used weight 10, got %d", got)
	}
}

func TestAcquire_BlocksOverWeightUntilWindowSlides(t *testing.T) {
	l := New(50*time.Millisecond, 10, 0)
	k := Key{Environment: "live", Account: "acct1"}

	if err := l.Acquire(context.Background(), k, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	if err := l.Acquire(ctx, k, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Errorf("expected the second acquire to wait for the window to slide, took %v", time.Since(start))
	}
}

func TestAcquire_RespectsMinInterval(t *testing.T) {
	l := New(time.Minute, 1000, 30*time.Millisecond)
	k := Key{Environment: "live", Account: "acct1"}

	l.Acquire(context.Background(), k, 1)
	start := time.Now()
	l.Acquire(context.Background(), k, 1)
	if time.Since(start) < 20*time.Millisecond {
		t.Errorf("expected min interval to delay the second request, took %v", time.Since(start))
	}
}

func TestAcquire_ContextCancellation(t *testing.T) {
	l := New(time.Minute, 1, 0)
	k := Key{Environment: "live", Account: "acct1"}
	l.Acquire(context.Background(), k, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx, k, 1); err == nil {
		t.Error("expected context cancellation to surface as an error")
	}
}

func TestBan_PausesAcquire(t *testing.T) {
	l := New(time.Minute, 1000, 0)
	k := Key{Environment: "live", Account: "acct1"}

	l.Ban(k, time.Now().Add(50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	if err := l.Acquire(ctx, k, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Errorf("expected ban to delay acquisition, took %v", time.Since(start))
	}
}

func TestBan_DoesNotShortenExistingBan(t *testing.T) {
	l := New(time.Minute, 1000, 0)
	k := Key{Environment: "live", Account: "acct1"}

	longBan := time.Now().Add(200 * time.Millisecond)
	l.Ban(k, longBan)
	l.Ban(k, time.Now().Add(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx, k, 1); err == nil {
		t.Error("expected the longer ban to still be in effect")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(time.Minute, 5, 0)
	k1 := Key{Environment: "live", Account: "acct1"}
	k2 := Key{Environment: "live", Account: "acct2"}

	l.Acquire(context.Background(), k1, 5)
	if err := l.Acquire(context.Background(), k2, 5); err != nil {
		t.Fatalf("expected a separate account's window to be unaffected: %v", err)
	}
}
