package quota

import (
	"context"
	"time"
)

// NewTestManager returns an unpaced manager whose backoff waits complete
// instantly, for tests that exercise retry behavior without real sleeps.
// The ceiling still applies, so give-up paths are reachable.
func NewTestManager(name string, maxBackoffSeconds int) *Manager {
	m, err := New(name, Policy{Strategy: StrategyNone, MaxBackoffSeconds: maxBackoffSeconds})
	if err != nil {
		panic(err) // policy above is always valid
	}
	m.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	m.jitter = func() time.Duration { return 0 }
	return m
}

// NewTestSet returns a Set of instant test managers.
func NewTestSet() *Set {
	return &Set{
		RemoteRead: NewTestManager("remote-read", 4),
		CacheRead:  NewTestManager("cache-read", 4),
		CacheWrite: NewTestManager("cache-write", 4),
	}
}
