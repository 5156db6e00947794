package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/sympcheck/backend/internal/config"
	"github.com/zhouzirui/sympcheck/backend/internal/model/diagnosis"
)

// KeyPrefix namespaces condition detail keys in Redis.
const KeyPrefix = "sympcheck:condition:"

// ErrMissingID is returned when a detail without an id is stored.
var ErrMissingID = errors.New("condition detail id is required")

// RedisStore keeps condition details in Redis as JSON.
type RedisStore struct {
	client *redis.Client
}

// NewRedisClient connects to Redis and verifies the connection with a ping.
func NewRedisClient(ctx context.Context, cfg config.CacheConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Key returns the Redis key for a condition id.
func Key(id string) string {
	return KeyPrefix + id
}

// Get reads the detail for id. A missing key is a miss, not an error.
func (s *RedisStore) Get(ctx context.Context, id string) (diagnosis.ConditionDetailResponse, bool, error) {
	data, err := s.client.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return diagnosis.ConditionDetailResponse{}, false, nil
	}
	if err != nil {
		return diagnosis.ConditionDetailResponse{}, false, fmt.Errorf("redis get %s: %w", Key(id), err)
	}

	var detail diagnosis.ConditionDetailResponse
	if err := json.Unmarshal(data, &detail); err != nil {
		return diagnosis.ConditionDetailResponse{}, false, fmt.Errorf("decode cached condition %s: %w", id, err)
	}
	return detail, true, nil
}

// Set writes detail with the given expiry. A non-positive ttl never expires.
func (s *RedisStore) Set(ctx context.Context, detail diagnosis.ConditionDetailResponse, ttl time.Duration) error {
	if detail.ID == "" {
		return ErrMissingID
	}
	if ttl < 0 {
		ttl = 0
	}

	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("encode condition %s: %w", detail.ID, err)
	}
	if err := s.client.Set(ctx, Key(detail.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", Key(detail.ID), err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
