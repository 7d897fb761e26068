//go:build integration

package bucket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"corridor/internal/ratelimit/models"
	"corridor/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisBucketStore
}

func TestRedisBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = NewRedisBucketStore(s.redis.Client)
}

func (s *RedisBucketStoreSuite) TearDownSuite() {
	s.redis.Terminate(context.Background())
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisBucketStoreSuite) TestFirstIncrementStartsWindow() {
	ctx := context.Background()
	before := time.Now()

	entry, err := s.store.Increment(ctx, models.CounterKey("general", "10.0.0.1"), time.Minute)
	s.Require().NoError(err)
	s.Equal(1, entry.Count)
	s.WithinDuration(before.Add(time.Minute), entry.WindowResetAt, 2*time.Second)

	second, err := s.store.Increment(ctx, models.CounterKey("general", "10.0.0.1"), time.Minute)
	s.Require().NoError(err)
	s.Equal(2, second.Count)
	s.False(second.WindowResetAt.After(entry.WindowResetAt.Add(time.Second)), "window must not be extended")
}

func (s *RedisBucketStoreSuite) TestWindowExpiryResetsCount() {
	ctx := context.Background()
	_, err := s.store.Increment(ctx, models.CounterKey("cost", "sub:oid-1"), 200*time.Millisecond)
	s.Require().NoError(err)

	time.Sleep(300 * time.Millisecond)

	entry, err := s.store.Increment(ctx, models.CounterKey("cost", "sub:oid-1"), 200*time.Millisecond)
	s.Require().NoError(err)
	s.Equal(1, entry.Count)
}

func (s *RedisBucketStoreSuite) TestConcurrentInstancesShareOneCounter() {
	ctx := context.Background()
	other := NewRedisBucketStore(s.redis.Client)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store := s.store
			if i%2 == 1 {
				store = other
			}
			_, err := store.Increment(ctx, models.CounterKey("general", "shared"), time.Minute)
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	entry, err := s.store.Increment(ctx, models.CounterKey("general", "shared"), time.Minute)
	s.Require().NoError(err)
	s.Equal(51, entry.Count)
}

func (s *RedisBucketStoreSuite) TestDecrementRefundsWithinWindow() {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.store.Increment(ctx, models.CounterKey("auth", "10.0.0.1:alice"), time.Minute)
		s.Require().NoError(err)
	}

	s.Require().NoError(s.store.Decrement(ctx, models.CounterKey("auth", "10.0.0.1:alice")))

	entry, err := s.store.Increment(ctx, models.CounterKey("auth", "10.0.0.1:alice"), time.Minute)
	s.Require().NoError(err)
	s.Equal(3, entry.Count)
}

func (s *RedisBucketStoreSuite) TestDecrementMissingKeyIsNoop() {
	key := models.CounterKey("auth", "nobody")
	s.Require().NoError(s.store.Decrement(context.Background(), key))

	exists, err := s.redis.Client.Exists(context.Background(), key).Result()
	s.Require().NoError(err)
	s.Zero(exists)
}

func (s *RedisBucketStoreSuite) TestCounterKeyIsStoredVerbatim() {
	ctx := context.Background()
	key := models.CounterKey("auth", models.Identity("10.0.0.7", "oid-7"))
	_, err := s.store.Increment(ctx, key, time.Minute)
	s.Require().NoError(err)

	keys, err := s.redis.Client.Keys(ctx, "*oid-7").Result()
	s.Require().NoError(err)
	s.Equal([]string{"rl:auth:10.0.0.7:oid-7"}, keys)
}
