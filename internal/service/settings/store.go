package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryStore keeps settings in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]AppConfig
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]AppConfig)}
}

func (s *MemoryStore) Get(_ context.Context, clientID string) (AppConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.items[clientID]
	return cfg, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, clientID string, cfg AppConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[clientID] = cfg
	return nil
}

const redisTTL = 30 * 24 * time.Hour

// RedisStore keeps settings as JSON under settings:{clientID}.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisStore{client: client, ttl: redisTTL}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, ttl: redisTTL}
}

func settingsKey(clientID string) string {
	return fmt.Sprintf("settings:%s", clientID)
}

func (s *RedisStore) Get(ctx context.Context, clientID string) (AppConfig, bool, error) {
	data, err := s.client.Get(ctx, settingsKey(clientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return AppConfig{}, false, nil
	}
	if err != nil {
		return AppConfig{}, false, err
	}

	var cfg AppConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, false, fmt.Errorf("decode settings: %w", err)
	}
	return cfg, true, nil
}

func (s *RedisStore) Put(ctx context.Context, clientID string, cfg AppConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, settingsKey(clientID), data, s.ttl).Err()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
