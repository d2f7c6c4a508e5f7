package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/enginegate/pkg/domain"
	"github.com/aretw0/enginegate/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

const renewScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`

// DefaultPollInterval is how often a waiting Lock retries SET NX.
const DefaultPollInterval = 100 * time.Millisecond

// Locker implements ports.DistributedLocker using Redis.
// Launchers sharing a Redis instance and prefix admit one engine at a time between them.
type Locker struct {
	client *backend.Client
	prefix string
	poll   time.Duration
	renew  time.Duration
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) LockerOption {
	return func(l *Locker) {
		l.poll = d
	}
}

// WithRenewInterval sets how often a held lock has its TTL extended.
// By default it is a third of the TTL passed to Lock.
func WithRenewInterval(d time.Duration) LockerOption {
	return func(l *Locker) {
		l.renew = d
	}
}

// NewLocker creates a new Redis locker.
func NewLocker(client *backend.Client, prefix string, opts ...LockerOption) *Locker {
	l := &Locker{
		client: client,
		prefix: prefix,
		poll:   DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock acquires the lock for key using SET NX PX, polling until it is free or ctx is done.
// While held, the TTL is extended in the background so an engine may outlive it; the TTL
// only bounds how long a crashed launcher keeps others waiting.
// The returned UnlockFunc stops the renewal and only deletes the key while it still holds
// this caller's token.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrLockAcquire, err)
		}
		if ok {
			renewCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
			done := make(chan struct{})
			go l.keepAlive(renewCtx, lockKey, token, ttl, done)

			var once sync.Once
			return func(ctx context.Context) error {
				once.Do(func() {
					stop()
					<-done
				})
				return l.client.Eval(ctx, unlockScript, []string{lockKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// keepAlive extends the lease until ctx is cancelled or the key no longer holds token.
func (l *Locker) keepAlive(ctx context.Context, lockKey, token string, ttl time.Duration, done chan<- struct{}) {
	defer close(done)

	interval := l.renew
	if interval <= 0 {
		interval = ttl / 3
	}
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		held, err := l.client.Eval(ctx, renewScript, []string{lockKey}, token, ttl.Milliseconds()).Int()
		if err != nil {
			// Transient; the next tick retries while the lease lasts.
			continue
		}
		if held == 0 {
			return
		}
	}
}
