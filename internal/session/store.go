// Package session is the Redis-backed bookkeeping layer for the auth core:
// which sessions are currently valid per user, which refresh token each
// session owns, which refresh token ids have already been redeemed, and the
// lineage keys used for mass revocation on breach. All operations are network
// calls against a shared store and take a context.
//
// Key namespace (other components must not collide with it):
//
//	refresh_token:{userId}:{sessionId}  string, TTL = refresh validity
//	user:{userId}:sessions              set, TTL slides on each add
//	token:lastUsed:{tokenId}            marker, TTL = remaining token life
//	token:family:{userId}:{random}      marker, same TTL, pattern-deleted on breach
//	lock:session:{sessionId}            rotation lock
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps every store connectivity failure. It is an
// infrastructure error, distinct from auth rejections: a store outage must
// not look like invalid credentials.
var ErrStoreUnavailable = errors.New("session store unavailable")

const (
	refreshTokenKey  = "refresh_token:%s:%s"
	userSessionsKey  = "user:%s:sessions"
	lastUsedKey      = "token:lastUsed:%s"
	familyKey        = "token:family:%s:%s"
	familyPattern    = "token:family:%s:*"
	refreshPattern   = "refresh_token:%s:*"
	lockKey          = "lock:session:%s"
	patternScanCount = 1000
)

// Store wraps a shared Redis client. It holds no in-process mutable state
// and is safe for concurrent use.
type Store struct {
	redis redis.UniversalClient
}

func NewStore(client redis.UniversalClient) *Store {
	return &Store{redis: client}
}

// SaveRefreshToken stores the single live refresh token for a session,
// replacing any prior value.
func (s *Store) SaveRefreshToken(ctx context.Context, userID, sessionID, token string, ttl time.Duration) error {
	key := fmt.Sprintf(refreshTokenKey, userID, sessionID)
	if err := s.redis.Set(ctx, key, token, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RefreshToken returns the stored refresh token for a session. The second
// return is false when no value is stored.
func (s *Store) RefreshToken(ctx context.Context, userID, sessionID string) (string, bool, error) {
	key := fmt.Sprintf(refreshTokenKey, userID, sessionID)
	value, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return value, true, nil
}

// DeleteRefreshToken removes a session's stored refresh token. Deleting an
// absent value is not an error.
func (s *Store) DeleteRefreshToken(ctx context.Context, userID, sessionID string) error {
	key := fmt.Sprintf(refreshTokenKey, userID, sessionID)
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// AddSession registers a session id in the user's active set and slides the
// set's TTL.
func (s *Store) AddSession(ctx context.Context, userID, sessionID string, ttl time.Duration) error {
	key := fmt.Sprintf(userSessionsKey, userID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, sessionID)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// SessionActive reports whether a session id is a member of the user's
// active set.
func (s *Store) SessionActive(ctx context.Context, userID, sessionID string) (bool, error) {
	key := fmt.Sprintf(userSessionsKey, userID)
	member, err := s.redis.SIsMember(ctx, key, sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return member, nil
}

// RemoveSession drops a session id from the user's active set. Removing an
// absent member is not an error.
func (s *Store) RemoveSession(ctx context.Context, userID, sessionID string) error {
	key := fmt.Sprintf(userSessionsKey, userID)
	if err := s.redis.SRem(ctx, key, sessionID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// MarkTokenUsed records the last-used marker for a redeemed refresh token
// id. It returns false when the marker already existed, meaning this token
// id has been redeemed before. SETNX makes concurrent redemptions of the
// same id resolve to exactly one winner.
func (s *Store) MarkTokenUsed(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	if ttl < time.Second {
		ttl = time.Second
	}
	key := fmt.Sprintf(lastUsedKey, tokenID)
	set, err := s.redis.SetNX(ctx, key, time.Now().UnixMilli(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return set, nil
}

// RecordFamilyMember appends a lineage entry for the user. Lineage keys are
// never read individually; they exist so breach revocation is a single
// pattern delete.
func (s *Store) RecordFamilyMember(ctx context.Context, userID, entryID, tokenID string, ttl time.Duration) error {
	if ttl < time.Second {
		ttl = time.Second
	}
	key := fmt.Sprintf(familyKey, userID, entryID)
	if err := s.redis.Set(ctx, key, tokenID, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RevokeUserLineage invalidates everything descended from the user's login
// chain: family markers, stored refresh tokens, and the active session set.
// After it returns, no session of the user is valid.
func (s *Store) RevokeUserLineage(ctx context.Context, userID string) (int, error) {
	deleted, err := s.DeleteByPattern(ctx, fmt.Sprintf(familyPattern, userID))
	if err != nil {
		return 0, err
	}

	n, err := s.DeleteByPattern(ctx, fmt.Sprintf(refreshPattern, userID))
	if err != nil {
		return deleted, err
	}
	deleted += n

	if err := s.redis.Del(ctx, fmt.Sprintf(userSessionsKey, userID)).Err(); err != nil {
		return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return deleted, nil
}

// DeleteByPattern scans for keys matching pattern and deletes them,
// returning the number removed.
func (s *Store) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, patternScanCount).Result()
		if err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if len(keys) > 0 {
			n, err := s.redis.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}

// Ping returns a point-in-time store availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
