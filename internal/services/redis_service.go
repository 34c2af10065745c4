package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisService provides the shared Redis connection used by the USSD session
// store and the realtime pub/sub fan-out
type RedisService struct {
	client *redis.Client
	mu     sync.RWMutex
}

// NewRedisService connects to redisURL and verifies the connection
func NewRedisService(redisURL string) (*RedisService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis connection established")
	return &RedisService{client: client}, nil
}

// Client returns the underlying Redis client
func (r *RedisService) Client() *redis.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client
}

// Close closes the Redis connection
func (r *RedisService) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Ping checks if Redis is healthy
func (r *RedisService) Ping(ctx context.Context) error {
	return r.Client().Ping(ctx).Err()
}

// Publish publishes a message to a channel
func (r *RedisService) Publish(ctx context.Context, channel string, message interface{}) error {
	return r.Client().Publish(ctx, channel, message).Err()
}

// PSubscribe subscribes to one or more channel patterns
func (r *RedisService) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	return r.Client().PSubscribe(ctx, patterns...)
}
