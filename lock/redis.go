package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/warp/stock-ledger/inventory"
)

// Redis holds locks as Redis keys so that several server processes working
// on the same data directory exclude each other.
type Redis struct {
	client *redislock.Client
	policy Policy
	ttl    time.Duration
	prefix string
	log    zerolog.Logger

	OnTimeout TimeoutHook
}

type RedisOptions struct {
	Policy Policy
	// TTL bounds how long a crashed holder can block others.
	TTL    time.Duration
	Prefix string
	Logger zerolog.Logger
}

func NewRedis(rdb redis.UniversalClient, opts RedisOptions) *Redis {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "stock-ledger:lock:"
	}
	return &Redis{
		client: redislock.New(rdb),
		policy: opts.Policy.normalized(),
		ttl:    ttl,
		prefix: prefix,
		log:    opts.Logger,
	}
}

func (r *Redis) Acquire(ctx context.Context, resource string) (inventory.ReleaseFunc, error) {
	retry := redislock.LimitRetry(
		redislock.ExponentialBackoff(r.policy.MinBackoff, r.policy.MaxBackoff),
		r.policy.MaxAttempts-1,
	)
	lk, err := r.client.Obtain(ctx, r.prefix+resource, r.ttl, &redislock.Options{RetryStrategy: retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		if r.OnTimeout != nil {
			r.OnTimeout(resource)
		}
		return nil, &inventory.LockTimeoutError{Resource: resource, Attempts: r.policy.MaxAttempts}
	}
	if err != nil {
		return nil, err
	}

	return func() {
		// Release with a fresh context: the request context may already be done.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lk.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.log.Warn().Err(err).Str("resource", resource).Msg("failed to release redis lock")
		}
	}, nil
}
