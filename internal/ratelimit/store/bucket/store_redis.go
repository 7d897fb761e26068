package bucket

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"corridor/internal/ratelimit/models"
)

// incrementScript bumps the counter and starts the window on the first hit.
// A key left without a TTL is repaired so it cannot block forever.
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

var decrementScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count > 0 and redis.call('PTTL', KEYS[1]) > 0 then
  return redis.call('DECR', KEYS[1])
end
return count
`)

// RedisBucketStore keeps fixed-window counters in Redis so every instance
// shares one quota. Each operation is a single Lua script call.
type RedisBucketStore struct {
	client redis.Scripter
	clock  func() time.Time
}

// RedisOption configures a RedisBucketStore.
type RedisOption func(*RedisBucketStore)

// WithRedisClock overrides the time source used to turn TTLs into reset times.
func WithRedisClock(clock func() time.Time) RedisOption {
	return func(s *RedisBucketStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewRedisBucketStore creates a Redis-backed bucket store.
func NewRedisBucketStore(client redis.Scripter, opts ...RedisOption) *RedisBucketStore {
	s := &RedisBucketStore{client: client, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment counts one request against key.
func (s *RedisBucketStore) Increment(ctx context.Context, key string, window time.Duration) (models.CounterEntry, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return models.CounterEntry{}, fmt.Errorf("increment %s: %w", key, err)
	}
	if len(res) != 2 {
		return models.CounterEntry{}, fmt.Errorf("increment %s: unexpected script result %v", key, res)
	}
	return models.CounterEntry{
		Key:           key,
		Count:         int(res[0]),
		WindowResetAt: s.clock().Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}

// Decrement refunds one request within the live window.
func (s *RedisBucketStore) Decrement(ctx context.Context, key string) error {
	if err := decrementScript.Run(ctx, s.client, []string{key}).Err(); err != nil {
		return fmt.Errorf("decrement %s: %w", key, err)
	}
	return nil
}
