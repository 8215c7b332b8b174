// ABOUTME: Redis persistence backend storing the settings and agents payloads under two keys per design.
// ABOUTME: Both keys are written in one pipeline with an optional TTL; a missing key means nothing to load.
package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "clusterdesigner:design:"

// RedisStore is a Backend on Redis.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the expiration of saved designs. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedis connects to a Redis server.
func NewRedis(address, password string, db int, opts ...RedisOption) *RedisStore {
	return NewRedisFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) settingsKey(name string) string { return s.prefix + name + ":settings" }
func (s *RedisStore) agentsKey(name string) string   { return s.prefix + name + ":agents" }

// Save writes both payloads atomically.
func (s *RedisStore) Save(ctx context.Context, name string, snap *Snapshot) (string, error) {
	settings, agents, err := EncodePayloads(snap)
	if err != nil {
		return "", err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.settingsKey(name), settings, s.ttl)
	pipe.Set(ctx, s.agentsKey(name), agents, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("save to redis: %w", err)
	}
	return fmt.Sprintf("saved %s", name), nil
}

// Load reads both payloads.
func (s *RedisStore) Load(ctx context.Context, name string) (*Snapshot, error) {
	vals, err := s.client.MGet(ctx, s.settingsKey(name), s.agentsKey(name)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, ErrNothingToLoad
		}
		return nil, fmt.Errorf("load from redis: %w", err)
	}
	settings, ok1 := vals[0].(string)
	agents, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return nil, ErrNothingToLoad
	}
	return DecodePayloads([]byte(settings), []byte(agents))
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
