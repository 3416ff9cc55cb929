package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Deduper marks ids as processed for one consumer. Claim is atomic (SET NX), so two
// deliveries of the same event race on Redis and only one wins.
type Deduper struct {
	rdb     *redis.Client
	service string
	ttl     time.Duration
}

func NewDeduper(rdb *redis.Client, service string) *Deduper {
	return &Deduper{rdb: rdb, service: service, ttl: TTLDedup}
}

// Claim reports true when id had not been seen yet.
func (d *Deduper) Claim(ctx context.Context, id string) (bool, error) {
	return d.rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, d.service, id), "1", d.ttl).Result()
}

// Release forgets id so a failed attempt can be redelivered.
func (d *Deduper) Release(ctx context.Context, id string) error {
	return d.rdb.Del(ctx, fmt.Sprintf(KeyDedup, d.service, id)).Err()
}

// IdempotencyCache is the fast path in front of the (tenant, key) unique index.
// The database stays the source of truth; a miss or a Redis error just falls through.
type IdempotencyCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyCache(rdb *redis.Client) *IdempotencyCache {
	return &IdempotencyCache{rdb: rdb, ttl: TTLIdempotency}
}

func (c *IdempotencyCache) Lookup(ctx context.Context, tenantID, key string) (string, bool, error) {
	id, err := c.rdb.Get(ctx, fmt.Sprintf(KeyIdemRental, tenantID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (c *IdempotencyCache) Remember(ctx context.Context, tenantID, key, rentalID string) error {
	return c.rdb.Set(ctx, fmt.Sprintf(KeyIdemRental, tenantID, key), rentalID, c.ttl).Err()
}
