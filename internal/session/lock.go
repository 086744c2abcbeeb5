package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired reports a transient conflict: another request holds the
// rotation lock for the session. Safe to retry.
var ErrLockNotAcquired = errors.New("session lock not acquired")

// Release only deletes the lock when the holder token still matches, so an
// expired-and-reacquired lock is never released by the previous holder.
const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var releaseLockLua = redis.NewScript(releaseLockScript)

// Lock is a held distributed lock.
type Lock struct {
	store *Store
	key   string
	token string
}

// AcquireLock takes the per-session rotation lock with SET NX PX semantics.
// The TTL bounds how long a crashed holder can block others.
func (s *Store) AcquireLock(ctx context.Context, sessionID string, ttl time.Duration) (*Lock, error) {
	key := fmt.Sprintf(lockKey, sessionID)
	token := uuid.NewString()

	acquired, err := s.redis.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !acquired {
		return nil, ErrLockNotAcquired
	}

	return &Lock{store: s, key: key, token: token}, nil
}

// Release frees the lock if it is still held by this owner.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := releaseLockLua.Run(ctx, l.store.redis, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// WithLock runs fn while holding the session's rotation lock.
func (s *Store) WithLock(ctx context.Context, sessionID string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lock, err := s.AcquireLock(ctx, sessionID, ttl)
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release(ctx)
	}()

	return fn(ctx)
}
