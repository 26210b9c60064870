package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/tourbooking/config"
	"github.com/redis/go-redis/v9"
)

// RedisCache holds short-lived coordination keys. Capacity and discount data
// are never cached here.
type RedisCache struct {
	client   *redis.Client
	dedupTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, dedupTTL time.Duration) *RedisCache {
	return NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}), dedupTTL)
}

func NewRedisCacheFromClient(client *redis.Client, dedupTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, dedupTTL: dedupTTL}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// AcquirePaymentLock guards a single hosted checkout initiation per booking.
func (c *RedisCache) AcquirePaymentLock(ctx context.Context, reference string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, paymentLockKey(reference), "locked", ttl).Result()
}

func (c *RedisCache) ReleasePaymentLock(ctx context.Context, reference string) error {
	return c.client.Del(ctx, paymentLockKey(reference)).Err()
}

// MarkCallbackSeen returns true the first time a (paymentRef, status) pair is
// seen within the dedupe window.
func (c *RedisCache) MarkCallbackSeen(ctx context.Context, paymentRef, status string) (bool, error) {
	return c.client.SetNX(ctx, callbackKey(paymentRef, status), time.Now().UTC().Format(time.RFC3339), c.dedupTTL).Result()
}

// ForgetCallback drops a dedupe key so a callback whose processing failed can
// be delivered again.
func (c *RedisCache) ForgetCallback(ctx context.Context, paymentRef, status string) error {
	return c.client.Del(ctx, callbackKey(paymentRef, status)).Err()
}

func paymentLockKey(reference string) string {
	return fmt.Sprintf("lock:booking:%s:payment", reference)
}

func callbackKey(paymentRef, status string) string {
	return fmt.Sprintf("callback:%s:%s", paymentRef, status)
}
