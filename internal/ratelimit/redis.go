package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"voice-gateway/internal/util"
)

const redisKeyPrefix = "rate_limit:"

// RedisStore keeps the fixed-window counters in Redis, so the budget holds
// across gateway instances. The window is enforced by the key's TTL: the
// first increment sets the expiry, later increments in the same window
// leave it alone.
type RedisStore struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedisStore(client *redis.Client, limit int, window time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Take implements Store.
func (s *RedisStore) Take(ctx context.Context, key string) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rkey := redisKeyPrefix + key

	count, err := s.client.Incr(ctx, rkey).Result()
	if err != nil {
		util.Error("Failed to increment rate limit counter",
			zap.String("key", key),
			zap.Error(err))
		return Decision{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	if count == 1 {
		if err := s.client.PExpire(ctx, rkey, s.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	ttl, err := s.client.PTTL(ctx, rkey).Result()
	if err != nil || ttl < 0 {
		ttl = s.window
	}

	d := Decision{
		Allowed:   count <= int64(s.limit),
		Limit:     s.limit,
		Remaining: s.limit - int(count),
		ResetAt:   time.Now().Add(ttl),
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	return d, nil
}

// NewRedisClient connects a Redis client for the shared store. Accepts
// redis:// and rediss:// URLs and verifies connectivity with a ping.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	util.Info("Redis rate-limit store initialized", zap.String("url", url))
	return client, nil
}
