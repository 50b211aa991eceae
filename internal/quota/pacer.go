package quota

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// A pacer brackets one operation: acquire before it starts, release after it
// ends. Acquire gives the caller exclusive use of the managed resource;
// either side may block to shape the operation rate. Safe for concurrent
// callers sharing one quota pool.
type pacer interface {
	acquire(ctx context.Context) error
	release(ctx context.Context)
}

// levelPacer spaces operations evenly at 1/quota of the time unit. The
// limiter has burst 1, so even bursty callers never exceed the rate.
type levelPacer struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

func newLevelPacer(quota int, unit time.Duration) *levelPacer {
	return &levelPacer{
		limiter: rate.NewLimiter(rate.Every(unit/time.Duration(quota)), 1),
	}
}

func (l *levelPacer) acquire(ctx context.Context) error {
	l.mu.Lock()
	if err := l.limiter.Wait(ctx); err != nil {
		l.mu.Unlock()
		return err
	}
	return nil
}

func (l *levelPacer) release(context.Context) {
	l.mu.Unlock()
}

// windowPacer counts operations inside a rolling time window. Once the count
// reaches the configured percentage of the quota, release blocks until the
// window resets.
type windowPacer struct {
	mu     sync.Mutex
	window time.Duration
	limit  int

	end   time.Time
	count int

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func newWindowPacer(quota int, unit time.Duration, percent int) *windowPacer {
	return &windowPacer{
		window: unit,
		limit:  quota * percent / 100,
		now:    time.Now,
		sleep:  ctxSleep,
	}
}

func (w *windowPacer) reset() {
	w.end = w.now().Add(w.window)
	w.count = 0
}

func (w *windowPacer) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	if !w.now().Before(w.end) {
		w.reset()
	}
	w.count++
	return nil
}

func (w *windowPacer) release(ctx context.Context) {
	if w.count >= w.limit {
		// window budget spent, wait it out
		w.sleep(ctx, w.end.Sub(w.now()))
	}
	w.mu.Unlock()
}

// nopPacer provides mutual exclusion without rate shaping.
type nopPacer struct {
	mu sync.Mutex
}

func (n *nopPacer) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	return nil
}

func (n *nopPacer) release(context.Context) {
	n.mu.Unlock()
}

// ctxSleep sleeps for d unless the context is cancelled first, so a user
// abort can interrupt a long pacing or backoff wait.
func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
