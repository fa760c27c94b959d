package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/inventory"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, MinBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestLocal_ExcludesSameResource(t *testing.T) {
	l := NewLocal(fastPolicy(1000))
	ctx := context.Background()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "stock:widget:main")
			require.NoError(t, err)
			defer release()

			mu.Lock()
			inside++
			maxInside = max(maxInside, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
}

func TestLocal_DifferentResourcesDoNotContend(t *testing.T) {
	l := NewLocal(fastPolicy(1))
	ctx := context.Background()

	a, err := l.Acquire(ctx, "stock:widget:main")
	require.NoError(t, err)
	defer a()

	b, err := l.Acquire(ctx, "stock:widget:north")
	require.NoError(t, err)
	defer b()
}

func TestLocal_TimesOutAfterMaxAttempts(t *testing.T) {
	l := NewLocal(fastPolicy(3))
	var timedOut []string
	l.OnTimeout = func(resource string) { timedOut = append(timedOut, resource) }
	ctx := context.Background()

	release, err := l.Acquire(ctx, "doc:balances")
	require.NoError(t, err)
	defer release()

	_, err = l.Acquire(ctx, "doc:balances")

	require.Error(t, err)
	assert.True(t, errors.Is(err, inventory.ErrLockTimeout))
	assert.True(t, inventory.IsRetryable(err))
	var lerr *inventory.LockTimeoutError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, 3, lerr.Attempts)
	assert.Equal(t, []string{"doc:balances"}, timedOut)
}

func TestLocal_ReleaseIsIdempotent(t *testing.T) {
	l := NewLocal(fastPolicy(1))
	ctx := context.Background()

	first, err := l.Acquire(ctx, "r")
	require.NoError(t, err)
	first()

	second, err := l.Acquire(ctx, "r")
	require.NoError(t, err)

	// A stale release must not free the new holder's lock
	first()
	_, err = l.Acquire(ctx, "r")
	assert.Error(t, err)

	second()
}

func TestLocal_HonoursContextCancellation(t *testing.T) {
	l := NewLocal(Policy{MaxAttempts: 1000, MinBackoff: 50 * time.Millisecond, MaxBackoff: 50 * time.Millisecond})
	release, err := l.Acquire(context.Background(), "r")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "r")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPolicy_BackoffDoublesUpToMax(t *testing.T) {
	p := Policy{MaxAttempts: 10, MinBackoff: 5 * time.Millisecond, MaxBackoff: 30 * time.Millisecond}

	assert.Equal(t, 5*time.Millisecond, p.backoff(1))
	assert.Equal(t, 10*time.Millisecond, p.backoff(2))
	assert.Equal(t, 20*time.Millisecond, p.backoff(3))
	assert.Equal(t, 30*time.Millisecond, p.backoff(4))
	assert.Equal(t, 30*time.Millisecond, p.backoff(9))
}

func TestPolicy_NormalizedFillsDefaults(t *testing.T) {
	p := Policy{}.normalized()

	assert.Equal(t, DefaultPolicy(), p)
}

func TestPolicy_NormalizedKeepsExplicitMaxAndClampsBelowMin(t *testing.T) {
	p := Policy{MinBackoff: 10 * time.Millisecond}.normalized()
	assert.Equal(t, 250*time.Millisecond, p.MaxBackoff)

	p = Policy{MinBackoff: 10 * time.Millisecond, MaxBackoff: time.Millisecond}.normalized()
	assert.Equal(t, 10*time.Millisecond, p.MaxBackoff)
}
