package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/buildflow/site-client/internal/config"
	util "github.com/buildflow/site-client/pkg/util"
)

// RedisStore keeps client state in Redis, namespaced by a fixed prefix.
// Useful for headless clients that share a session across processes.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore connects to Redis using the provided configuration.
func NewRedisStore(cfg config.RedisConfig, logger *zap.Logger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &RedisStore{client: client, namespace: cfg.Namespace}
}

// Get returns the value for key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.qualify(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, util.NewStorageUnavailable(err)
	}
	return val, true, nil
}

// Set stores the value under key without expiry; lifecycle is owned by the
// session manager, not Redis TTLs.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.qualify(key), value, 0).Err(); err != nil {
		return util.NewStorageUnavailable(err)
	}
	return nil
}

// Delete removes key; absent keys are a no-op.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.qualify(key)).Err(); err != nil {
		return util.NewStorageUnavailable(err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() {
	if s != nil && s.client != nil {
		_ = s.client.Close()
	}
}

func (s *RedisStore) qualify(key string) string {
	if s.namespace == "" {
		return key
	}
	return s.namespace + ":" + key
}
