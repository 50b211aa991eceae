// Package quota rate-limits access to external resources and retries failed
// operations with truncated exponential backoff.
//
// Each Manager owns the quota state for one resource class (remote reads,
// cache reads, cache writes) and is never shared between classes.
package quota

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"stockhist/internal/observ"
)

// Outcome classifies one attempt of an operation.
type Outcome int

const (
	// Success ends the operation; backoff state resets.
	Success Outcome = iota
	// Retry backs off and re-invokes the operation.
	Retry
	// Fatal ends the operation without retrying; backoff state resets.
	Fatal
)

// Check inspects an attempt's result and decides whether to retry. The
// reason is logged on non-success outcomes.
type Check func(result any, err error) (outcome Outcome, reason string)

// Operation is a single remote call executed under the quota bracket.
type Operation func() (any, error)

// ErrBackoffExceeded reports that retries stopped because the next wait
// would exceed the configured ceiling.
var ErrBackoffExceeded = errors.New("backoff ceiling exceeded")

const (
	initialWait       = time.Second
	backoffMultiplier = 2
)

// Manager serializes operations against one resource and shapes their rate
// per its policy. All methods are safe for concurrent use.
type Manager struct {
	name  string
	pacer pacer

	mu      sync.Mutex
	wait    time.Duration // next backoff wait
	ceiling time.Duration

	sleep  func(context.Context, time.Duration) error
	jitter func() time.Duration
}

// New builds a manager for the named resource class. The policy must
// validate.
func New(name string, p Policy) (*Manager, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("quota %s: %w", name, err)
	}

	var pc pacer
	switch p.Strategy {
	case StrategyLevel:
		unit, _ := p.Unit.Duration()
		pc = newLevelPacer(p.Quota, unit)
	case StrategyRateWindow:
		unit, _ := p.Unit.Duration()
		pc = newWindowPacer(p.Quota, unit, p.WindowPercent)
	case StrategyNone:
		pc = &nopPacer{}
	}

	return &Manager{
		name:    name,
		pacer:   pc,
		wait:    initialWait,
		ceiling: time.Duration(p.MaxBackoffSeconds) * time.Second,
		sleep:   ctxSleep,
		jitter:  defaultJitter,
	}, nil
}

// Acquire takes the bracket for one operation. Must be paired with Release.
func (m *Manager) Acquire(ctx context.Context) error {
	return m.pacer.acquire(ctx)
}

// Release ends the bracket, blocking first if the pacing strategy requires.
func (m *Manager) Release(ctx context.Context) {
	m.pacer.release(ctx)
}

// Perform runs op under the acquire/release bracket. After each attempt,
// check decides the outcome; nil check treats any error as retryable. Retry
// outcomes back off (wait + jitter, wait doubling per failure) and re-invoke
// op. Once the next wait would exceed the ceiling the backoff state resets
// and the last result is returned with ErrBackoffExceeded. A panic inside op
// is converted into a retryable failure rather than propagated.
func (m *Manager) Perform(ctx context.Context, op Operation, check Check) (any, error) {
	if err := m.Acquire(ctx); err != nil {
		return nil, err
	}
	defer m.Release(ctx)

	if check == nil {
		check = func(_ any, err error) (Outcome, string) {
			if err != nil {
				return Retry, err.Error()
			}
			return Success, ""
		}
	}

	for {
		result, err := m.attempt(op)

		outcome, reason := check(result, err)
		switch outcome {
		case Success:
			m.resetBackoff()
			return result, nil
		case Fatal:
			m.resetBackoff()
			return result, err
		}

		wait, ok := m.nextWait()
		if !ok {
			observ.Log("quota_give_up", map[string]any{
				"manager": m.name,
				"reason":  reason,
			})
			observ.IncCounter("quota_give_ups", map[string]string{"manager": m.name})
			if err == nil {
				err = ErrBackoffExceeded
			} else {
				err = fmt.Errorf("%w: %v", ErrBackoffExceeded, err)
			}
			return result, err
		}

		observ.Log("quota_backoff", map[string]any{
			"manager": m.name,
			"reason":  reason,
			"wait_ms": wait.Milliseconds(),
		})
		observ.IncCounter("quota_retries", map[string]string{"manager": m.name})

		if serr := m.sleep(ctx, wait+m.jitter()); serr != nil {
			return result, serr
		}
	}
}

func (m *Manager) attempt(op Operation) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			// unexpected failure inside the remote call becomes a
			// retryable error, never a crash
			err = fmt.Errorf("operation panic: %v", r)
		}
	}()
	return op()
}

// nextWait returns the wait before the next retry and grows the backoff
// state. Returns ok=false when the wait would exceed the ceiling, resetting
// state for the next operation.
func (m *Manager) nextWait() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wait > m.ceiling {
		m.wait = initialWait
		return 0, false
	}
	wait := m.wait
	m.wait *= backoffMultiplier
	return wait, true
}

func (m *Manager) resetBackoff() {
	m.mu.Lock()
	m.wait = initialWait
	m.mu.Unlock()
}

// defaultJitter draws uniformly from [0.1s, 1.0s).
func defaultJitter() time.Duration {
	return 100*time.Millisecond + time.Duration(rand.Int64N(int64(900*time.Millisecond)))
}

// Set holds the process-wide managers, one per resource class. Built once at
// bootstrap and passed by reference to whatever needs rate limiting.
type Set struct {
	RemoteRead *Manager
	CacheRead  *Manager
	CacheWrite *Manager
}

// NewSet constructs the standard manager set from per-class policies.
func NewSet(remoteRead, cacheRead, cacheWrite Policy) (*Set, error) {
	rr, err := New("remote-read", remoteRead)
	if err != nil {
		return nil, err
	}
	cr, err := New("cache-read", cacheRead)
	if err != nil {
		return nil, err
	}
	cw, err := New("cache-write", cacheWrite)
	if err != nil {
		return nil, err
	}
	return &Set{RemoteRead: rr, CacheRead: cr, CacheWrite: cw}, nil
}
