package coord

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// boundedIncrScript increments, checks the limit, and rolls back in one
// atomic unit so no concurrent reader ever sees a total above the limit
// that later "succeeds".
// KEYS[1] = counter key
// ARGV[1] = amount, ARGV[2] = limit, ARGV[3] = ttl seconds
var boundedIncrScript = redis.NewScript(`
local total = redis.call('INCRBY', KEYS[1], ARGV[1])
if total > tonumber(ARGV[2]) then
  redis.call('DECRBY', KEYS[1], ARGV[1])
  return {0, 0}
end
redis.call('EXPIRE', KEYS[1], ARGV[3])
return {1, total}
`)

// compareAndSwapScript flips KEYS[1] from ARGV[1] to ARGV[2] with TTL
// ARGV[3], returning the pre-state so callers can distinguish a win from a
// replay from a missing key.
// Returns {exists, swapped, previous-value}.
var compareAndSwapScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == false then
  return {0, 0, ''}
end
if cur == ARGV[1] then
  redis.call('SET', KEYS[1], ARGV[2], 'EX', ARGV[3])
  return {1, 1, cur}
end
return {1, 0, cur}
`)

// Redis is the production Store backed by a shared go-redis client.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing client. The caller owns the client's lifecycle.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*Redis, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("pinging redis: %w", err)
	}
	return NewRedis(client), client, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

func (r *Redis) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	v, err := r.client.IncrBy(ctx, key, n).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing %s: %w", key, err)
	}
	return v, nil
}

func (r *Redis) DecrBy(ctx context.Context, key string, n int64) (int64, error) {
	v, err := r.client.DecrBy(ctx, key, n).Result()
	if err != nil {
		return 0, fmt.Errorf("decrementing %s: %w", key, err)
	}
	return v, nil
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("setting expiry on %s: %w", key, err)
	}
	return nil
}

func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("reading ttl of %s: %w", key, err)
	}
	return d, nil
}

func (r *Redis) Del(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (r *Redis) BoundedIncr(ctx context.Context, key string, amount, limit int64, ttl time.Duration) (bool, int64, error) {
	ttlSec := int64(ttl / time.Second)
	if ttlSec < 1 {
		ttlSec = 1
	}
	res, err := boundedIncrScript.Run(ctx, r.client, []string{key}, amount, limit, ttlSec).Result()
	if err != nil {
		return false, 0, fmt.Errorf("bounded increment of %s: %w", key, err)
	}
	out, ok := res.([]interface{})
	if !ok || len(out) != 2 {
		return false, 0, fmt.Errorf("bounded increment of %s: unexpected script reply %v", key, res)
	}
	accepted, _ := out[0].(int64)
	total, _ := out[1].(int64)
	return accepted == 1, total, nil
}

func (r *Redis) CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (string, bool, bool, error) {
	ttlSec := int64(ttl / time.Second)
	if ttlSec < 1 {
		ttlSec = 1
	}
	res, err := compareAndSwapScript.Run(ctx, r.client, []string{key}, old, new, ttlSec).Result()
	if err != nil {
		return "", false, false, fmt.Errorf("compare-and-swap of %s: %w", key, err)
	}
	out, ok := res.([]interface{})
	if !ok || len(out) != 3 {
		return "", false, false, fmt.Errorf("compare-and-swap of %s: unexpected script reply %v", key, res)
	}
	exists, _ := out[0].(int64)
	swapped, _ := out[1].(int64)
	prev, _ := out[2].(string)
	return prev, exists == 1, swapped == 1, nil
}
