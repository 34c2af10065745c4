package ussd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"mobilespo/internal/models"
)

const redisSessionPrefix = "ussd:session:"

// RedisStore keeps sessions in Redis so several gateway instances can share
// dialogs. Keys carry a TTL equal to the idle timeout.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
	now     func() time.Time
}

// NewRedisStore creates a Redis-backed store
func NewRedisStore(client *redis.Client, timeout time.Duration, opts ...StoreOption) *RedisStore {
	o := applyStoreOptions(opts)
	return &RedisStore{
		client:  client,
		timeout: timeout,
		now:     o.now,
	}
}

func redisSessionKey(id string) string {
	return redisSessionPrefix + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.UssdSession, bool, error) {
	data, err := s.client.Get(ctx, redisSessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load ussd session: %w", err)
	}

	var session models.UssdSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, false, fmt.Errorf("failed to decode ussd session: %w", err)
	}

	if session.Expired(s.now(), s.timeout) {
		if err := s.client.Del(ctx, redisSessionKey(id)).Err(); err != nil {
			log.Printf("⚠️  [USSD] Failed to delete expired session %s: %v", id, err)
		}
		return nil, false, nil
	}

	if session.Context == nil {
		session.Context = make(map[string]string)
	}
	return &session, true, nil
}

func (s *RedisStore) Create(ctx context.Context, id, phoneNumber string) (*models.UssdSession, error) {
	session := models.NewUssdSession(id, phoneNumber, s.now())
	if err := s.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *RedisStore) Save(ctx context.Context, session *models.UssdSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode ussd session: %w", err)
	}
	if err := s.client.Set(ctx, redisSessionKey(session.ID), data, s.timeout).Err(); err != nil {
		return fmt.Errorf("failed to save ussd session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, redisSessionKey(id)).Err()
}

// Sweep removes sessions whose recorded activity is past the timeout. Redis
// TTLs already expire idle keys; this catches keys saved by skewed clocks.
func (s *RedisStore) Sweep(ctx context.Context) (int, error) {
	removed := 0
	err := s.scan(ctx, func(key string, session *models.UssdSession) error {
		if !session.Expired(s.now(), s.timeout) {
			return nil
		}
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return err
		}
		removed++
		return nil
	})
	if removed > 0 {
		log.Printf("🧹 [USSD] Swept %d expired sessions from Redis", removed)
	}
	return removed, err
}

func (s *RedisStore) Stats(ctx context.Context) (*models.UssdSessionStats, error) {
	stats := models.NewUssdSessionStats()
	err := s.scan(ctx, func(_ string, session *models.UssdSession) error {
		if !session.Expired(s.now(), s.timeout) {
			stats.Add(session)
		}
		return nil
	})
	return stats, err
}

func (s *RedisStore) scan(ctx context.Context, fn func(key string, session *models.UssdSession) error) error {
	iter := s.client.Scan(ctx, 0, redisSessionPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", key, err)
		}

		var session models.UssdSession
		if err := json.Unmarshal(data, &session); err != nil {
			log.Printf("⚠️  [USSD] Skipping undecodable session %s: %v", key, err)
			continue
		}
		if err := fn(key, &session); err != nil {
			return err
		}
	}
	return iter.Err()
}
