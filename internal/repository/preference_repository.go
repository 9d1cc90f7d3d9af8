package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
)

// PreferenceRepository stores UI preferences as JSON in Redis under pref:{user}:{key}.
// A nil client behaves as an empty store.
type PreferenceRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewPreferenceRepository constructs a preference repository. A zero ttl keeps values forever.
func NewPreferenceRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) *PreferenceRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreferenceRepository{client: client, ttl: ttl, logger: logger}
}

// PreferenceKey builds the Redis key of a user's preference.
func PreferenceKey(userID, key string) string {
	if userID == "" {
		userID = "anonymous"
	}
	return fmt.Sprintf("pref:%s:%s", userID, key)
}

// Get unmarshals the stored value into dest. A missing value is errors.ErrCacheMiss.
func (r *PreferenceRepository) Get(ctx context.Context, userID, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}
	redisKey := PreferenceKey(userID, key)
	raw, err := r.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", redisKey, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal preference %s: %w", redisKey, err)
	}
	return nil
}

// Set marshals value and stores it.
func (r *PreferenceRepository) Set(ctx context.Context, userID, key string, value interface{}) error {
	if r.client == nil {
		return nil
	}
	redisKey := PreferenceKey(userID, key)
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal preference %s: %w", redisKey, err)
	}
	if err := r.client.Set(ctx, redisKey, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", redisKey, err)
	}
	return nil
}

// Clear removes every preference of a user.
func (r *PreferenceRepository) Clear(ctx context.Context, userID string) error {
	if r.client == nil {
		return nil
	}
	pattern := PreferenceKey(userID, "*")
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis delete %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	return nil
}

// Close releases the Redis connection if present.
func (r *PreferenceRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
