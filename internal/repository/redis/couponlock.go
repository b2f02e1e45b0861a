package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const couponLockPrefix = "coupon_lock:"

// unlockScript deletes the key only while it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CouponLock implements repository.CouponLocker with SET NX PX.
type CouponLock struct {
	client redis.Cmdable
}

// NewCouponLock creates a Redis-backed coupon lock.
func NewCouponLock(client redis.Cmdable) *CouponLock {
	return &CouponLock{client: client}
}

func couponLockKey(couponID, userID string) string {
	return couponLockPrefix + couponID + ":" + userID
}

// Lock takes the lock for sessionID. It returns false without error when
// another session holds it.
func (l *CouponLock) Lock(ctx context.Context, couponID, userID, sessionID string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, couponLockKey(couponID, userID), sessionID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock coupon %s: %w", couponID, err)
	}
	return ok, nil
}

// Unlock releases the lock if sessionID still owns it.
func (l *CouponLock) Unlock(ctx context.Context, couponID, userID, sessionID string) error {
	if err := unlockScript.Run(ctx, l.client, []string{couponLockKey(couponID, userID)}, sessionID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis unlock coupon %s: %w", couponID, err)
	}
	return nil
}
