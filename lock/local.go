/*
Package lock provides keyed mutual exclusion for the inventory engine.

PURPOSE:
  Every read-modify-write of a shared document and every check-then-update
  on a (product, warehouse) balance runs while holding a named lock. Locks
  are keyed by resource name ("doc:balances", "stock:p-1:main"), so work on
  different resources never contends.

IMPLEMENTATIONS:
  Local: in-process, for a single server process (the default)
  Redis: github.com/bsm/redislock, for several processes sharing a data dir

RETRY POLICY:
  Acquire tries immediately, then sleeps with exponential backoff between
  attempts (MinBackoff doubling up to MaxBackoff). After MaxAttempts failed
  tries it returns *inventory.LockTimeoutError, which callers may retry.
*/
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/warp/stock-ledger/inventory"
)

type Policy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 20,
		MinBackoff:  5 * time.Millisecond,
		MaxBackoff:  250 * time.Millisecond,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.MinBackoff <= 0 {
		p.MinBackoff = d.MinBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	if p.MaxBackoff < p.MinBackoff {
		p.MaxBackoff = p.MinBackoff
	}
	return p
}

// backoff returns the wait after the given failed attempt (1-based).
func (p Policy) backoff(attempt int) time.Duration {
	wait := p.MinBackoff
	for i := 1; i < attempt && wait < p.MaxBackoff; i++ {
		wait *= 2
	}
	return min(wait, p.MaxBackoff)
}

// TimeoutHook is called whenever an acquisition gives up.
type TimeoutHook func(resource string)

// =============================================================================
// LOCAL
// =============================================================================

type Local struct {
	policy Policy
	mu     sync.Mutex
	held   map[string]struct{}

	OnTimeout TimeoutHook
}

func NewLocal(policy Policy) *Local {
	return &Local{
		policy: policy.normalized(),
		held:   make(map[string]struct{}),
	}
}

func (l *Local) Acquire(ctx context.Context, resource string) (inventory.ReleaseFunc, error) {
	for attempt := 1; ; attempt++ {
		if l.tryLock(resource) {
			var once sync.Once
			return func() { once.Do(func() { l.unlock(resource) }) }, nil
		}
		if attempt >= l.policy.MaxAttempts {
			if l.OnTimeout != nil {
				l.OnTimeout(resource)
			}
			return nil, &inventory.LockTimeoutError{Resource: resource, Attempts: attempt}
		}

		timer := time.NewTimer(l.policy.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Local) tryLock(resource string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[resource]; busy {
		return false
	}
	l.held[resource] = struct{}{}
	return true
}

func (l *Local) unlock(resource string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, resource)
}
