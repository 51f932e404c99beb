package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseLockScript deletes a lock only while it still holds the caller's
// token, so a holder whose TTL lapsed cannot drop a newer holder's lock.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

func rideStartLockKey(userID string) string {
	return fmt.Sprintf("lock:ride-start:%s", userID)
}

// AcquireRideStartLock attempts to acquire the ride start lock for a user.
// The returned token must be passed to ReleaseRideStartLock. acquired is
// false if the lock is already held.
func (s *LockStore) AcquireRideStartLock(ctx context.Context, userID string, ttl time.Duration) (token string, acquired bool, err error) {
	token = uuid.NewString()
	ok, err := s.client.SetNX(ctx, rideStartLockKey(userID), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}

	return token, true, nil
}

// ReleaseRideStartLock releases the ride start lock for a user if it is
// still held with token.
func (s *LockStore) ReleaseRideStartLock(ctx context.Context, userID, token string) error {
	return releaseLockScript.Run(ctx, s.client, []string{rideStartLockKey(userID)}, token).Err()
}
