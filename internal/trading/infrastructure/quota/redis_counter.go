package quota

import (
	"context"
	"fmt"
	"time"

	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
	"github.com/redis/go-redis/v9"
)

// keyTTL keeps a day's counter around long enough to cover late releases.
const keyTTL = 48 * time.Hour

var reserveScript = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
if limit > 0 and used + amount > limit then
  return 0
end
redis.call('INCRBY', KEYS[1], amount)
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[3]))
return 1
`)

var releaseScript = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
if used <= amount then
  redis.call('DEL', KEYS[1])
  return 0
end
return redis.call('DECRBY', KEYS[1], amount)
`)

// RedisCounter is a domain.QuotaCounter shared by every API instance.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

// NewRedisCounter creates a counter storing keys under prefix.
func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "fundsaga:quota"
	}
	return &RedisCounter{client: client, prefix: prefix}
}

var _ domain.QuotaCounter = (*RedisCounter)(nil)

func (c *RedisCounter) key(productCode, day string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, productCode, day)
}

// Reserve atomically adds amount to the day's total unless it would exceed limit.
func (c *RedisCounter) Reserve(ctx context.Context, productCode, day string, amount, limit sharedDomain.Money) (bool, error) {
	amt, lim, err := minorUnits(amount, limit)
	if err != nil {
		return false, err
	}
	ok, err := reserveScript.Run(ctx, c.client,
		[]string{c.key(productCode, day)},
		amt, lim, int64(keyTTL.Seconds()),
	).Int()
	if err != nil {
		return false, fmt.Errorf("reserve quota: %w", err)
	}
	return ok == 1, nil
}

// Release subtracts amount, never dropping below zero.
func (c *RedisCounter) Release(ctx context.Context, productCode, day string, amount sharedDomain.Money) error {
	if err := releaseScript.Run(ctx, c.client,
		[]string{c.key(productCode, day)},
		amount.MinorUnits(),
	).Err(); err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}

// Used returns the day's reserved total in minor units.
func (c *RedisCounter) Used(ctx context.Context, productCode, day string) (int64, error) {
	n, err := c.client.Get(ctx, c.key(productCode, day)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
