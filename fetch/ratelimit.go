package fetch

import (
	"context"
	"sync"
	"time"
)

const (
	// rateWindow is the trailing interval the request log covers.
	rateWindow = time.Minute

	// DefaultMinDelay is the minimum spacing between consecutive requests,
	// enforced even when the per-minute ceiling is not exhausted.
	DefaultMinDelay = time.Second
)

// Limiter is a sliding-window request-rate limiter. It keeps a log of
// request timestamps inside the trailing 60-second window and blocks callers
// until the window frees a slot. State is per adapter instance and is never
// shared across adapters.
type Limiter struct {
	mu          sync.Mutex
	perMinute   int
	minDelay    time.Duration
	lastRequest time.Time
	history     []time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewLimiter builds a limiter with the given requests-per-minute ceiling.
// A ceiling <= 0 disables the window check; the minimum inter-request delay
// still applies. A zero minDelay falls back to DefaultMinDelay.
func NewLimiter(perMinute int, minDelay time.Duration) *Limiter {
	if minDelay <= 0 {
		minDelay = DefaultMinDelay
	}
	return &Limiter{
		perMinute: perMinute,
		minDelay:  minDelay,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Wait blocks until a request may be dispatched: the sliding window must
// have a free slot and at least minDelay must have passed since the last
// request. Returns early only on context cancellation.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		wait := l.nextWaitLocked(now)
		if wait <= 0 {
			l.lastRequest = now
			l.history = append(l.history, now)
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// nextWaitLocked returns how long the caller must wait before the next
// request is admissible. Caller holds l.mu.
func (l *Limiter) nextWaitLocked(now time.Time) time.Duration {
	var wait time.Duration

	if !l.lastRequest.IsZero() {
		if since := now.Sub(l.lastRequest); since < l.minDelay {
			wait = l.minDelay - since
		}
	}

	if l.perMinute > 0 {
		l.pruneLocked(now)
		if len(l.history) >= l.perMinute {
			// Window frees up when the oldest logged request ages out.
			windowWait := l.history[0].Add(rateWindow).Sub(now)
			if windowWait > wait {
				wait = windowWait
			}
		}
	}

	return wait
}

// pruneLocked drops timestamps that fell out of the trailing window.
func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-rateWindow)
	i := 0
	for i < len(l.history) && !l.history[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.history = append(l.history[:0], l.history[i:]...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
