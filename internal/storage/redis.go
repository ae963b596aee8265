package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maxfell/recipe-scraper/internal/models"
)

const (
	redisKeyPrefix   = "scraper:result:"
	defaultResultTTL = 24 * time.Hour
)

// RedisStore keeps job results as JSON values with a per-result TTL, so
// expiry is enforced by Redis rather than an in-process sweeper.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Store(ctx context.Context, result *models.JobResult) error {
	if result.JobID == "" {
		return fmt.Errorf("job id is required")
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}

	ttl := result.ExpiresAfter
	if ttl <= 0 {
		ttl = defaultResultTTL
	}
	if err := s.client.Set(ctx, redisKeyPrefix+result.JobID, data, ttl).Err(); err != nil {
		return fmt.Errorf("store job result: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, jobID string) (*models.JobResult, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job result: %w", err)
	}

	var result models.JobResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal job result: %w", err)
	}
	return &result, nil
}

func (s *RedisStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scan job results: %w", err)
		}

		var result models.JobResult
		if err := json.Unmarshal(data, &result); err != nil {
			continue
		}
		stats.Results++
		stats.TotalProducts += result.ProductCount
		stats.TotalVariations += result.VariationCount
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan job results: %w", err)
	}
	return stats, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("clear job results: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("clear job results: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
