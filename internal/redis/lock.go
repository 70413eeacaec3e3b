package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds the caller's token,
// so an expired lock re-acquired by someone else is never released by us.
var releaseScript = redis.NewScript(`
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

func verifyLockKey(txRef string) string {
	return fmt.Sprintf("lock:payment:verify:%s", txRef)
}

// AcquireVerifyLock attempts to acquire the verification lock for a transaction reference.
// Returns the lock token and true if the lock was acquired, false if already held.
func (s *LockStore) AcquireVerifyLock(ctx context.Context, txRef string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := s.client.SetNX(ctx, verifyLockKey(txRef), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}

	return token, true, nil
}

// ReleaseVerifyLock releases the verification lock if token still owns it.
func (s *LockStore) ReleaseVerifyLock(ctx context.Context, txRef, token string) error {
	return releaseScript.Run(ctx, s.client, []string{verifyLockKey(txRef)}, token).Err()
}
