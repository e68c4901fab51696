package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/multistore-backend/internal/config"
)

// RedisClient holds the Redis client connection
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects and pings the configured Redis instance
func NewRedisClient(cfg config.RedisConfig) (*RedisClient, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is not set")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logrus.WithField("ping", pong).Info("Connected to Redis")

	return &RedisClient{client: client}, nil
}

func (c *RedisClient) Close() {
	if c.client != nil {
		c.client.Close()
		logrus.Info("Redis connection closed")
	}
}

func (c *RedisClient) GetClient() *redis.Client {
	return c.client
}

// Deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a lock shared by every server instance pointed at the same
// Redis. A lock expires after TTL if its holder dies.
type RedisLocker struct {
	client     *redis.Client
	ttl        time.Duration
	retryEvery time.Duration
}

func NewRedisLocker(c *RedisClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: c.client, ttl: ttl, retryEvery: 25 * time.Millisecond}
}

// Lock retries SET NX until it wins or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = "lock:" + key
	token := uuid.New().String()

	ticker := time.NewTicker(l.retryEvery)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// The caller's ctx may already be done; release on a fresh one.
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
					logrus.WithError(err).WithField("key", key).Warn("Failed to release lock")
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
