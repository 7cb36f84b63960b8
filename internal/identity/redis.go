package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "support:session:"

// RedisSessionStore persists anonymous session ids in Redis.
type RedisSessionStore struct {
	client *redis.Client
}

var _ SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore connects to Redis and verifies the connection.
func NewRedisSessionStore(url string) (*RedisSessionStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisSessionStore{client: client}, nil
}

func (s *RedisSessionStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, sessionKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

func (s *RedisSessionStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, sessionKeyPrefix+key, value, ttl).Err()
}

// Close releases the Redis connection.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

// MemorySessionStore is an in-process SessionStore for tests and local
// development. TTLs are ignored.
type MemorySessionStore struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{data: make(map[string]string)}
}

func (s *MemorySessionStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[key], nil
}

func (s *MemorySessionStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}
