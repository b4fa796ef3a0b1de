package fetch

import (
	"context"
	"testing"
	"time"
)

// fakeClock drives a limiter deterministically: sleeps advance the clock
// instead of blocking.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) wire(l *Limiter) {
	l.now = func() time.Time { return f.now }
	l.sleep = func(_ context.Context, d time.Duration) error {
		f.now = f.now.Add(d)
		return nil
	}
}

func TestLimiterEnforcesMinDelay(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewLimiter(0, time.Second)
	clock.wire(l)

	start := clock.now
	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}

	// First request is immediate, the next two each wait a full second.
	if elapsed := clock.now.Sub(start); elapsed != 2*time.Second {
		t.Fatalf("elapsed = %v; want 2s", elapsed)
	}
}

func TestLimiterSlidingWindowBound(t *testing.T) {
	const ceiling = 5
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewLimiter(ceiling, time.Millisecond)
	clock.wire(l)

	// Dispatch a burst far larger than the ceiling and verify that no
	// rolling 60-second window ever contains more than ceiling requests.
	var stamps []time.Time
	for i := 0; i < ceiling*3; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
		stamps = append(stamps, clock.now)
	}

	for i := range stamps {
		count := 0
		for j := range stamps {
			diff := stamps[j].Sub(stamps[i])
			if diff >= 0 && diff < rateWindow {
				count++
			}
		}
		if count > ceiling {
			t.Fatalf("window starting at %v holds %d requests; ceiling %d", stamps[i], count, ceiling)
		}
	}
}

func TestLimiterWindowFreesAfterSixtySeconds(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := NewLimiter(2, time.Millisecond)
	clock.wire(l)

	start := clock.now
	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}

	// The third request must wait for the first to age out of the window.
	if elapsed := clock.now.Sub(start); elapsed < rateWindow {
		t.Fatalf("third request admitted after %v; want >= %v", elapsed, rateWindow)
	}
}

func TestLimiterCancelled(t *testing.T) {
	l := NewLimiter(1, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected cancellation error while window exhausted")
	}
}
