package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-query-service/types"
	"github.com/saiset-co/sai-query-service/utils"
)

type RedisConfig struct {
	Host         string         `json:"host"`
	Port         int            `json:"port"`
	Password     string         `json:"password"`
	DB           int            `json:"db"`
	PoolSize     int            `json:"pool_size"`
	DialTimeout  types.Duration `json:"dial_timeout"`
	ReadTimeout  types.Duration `json:"read_timeout"`
	WriteTimeout types.Duration `json:"write_timeout"`
	KeyPrefix    string         `json:"key_prefix"`
}

// RedisCache stores marshaled response payloads under prefixed keys and
// delegates expiry to redis. Values come back as raw bytes; callers
// decode them. Capacity bounding is redis' concern, not ours.
type RedisCache struct {
	ctx     context.Context
	logger  types.Logger
	config  *RedisConfig
	client  *redis.Client
	hits    uint64
	misses  uint64
	started int32
}

func NewRedisCache(ctx context.Context, logger types.Logger, config *types.CacheConfig) (types.CacheManager, error) {
	redisConfig := &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		PoolSize:     10,
		DialTimeout:  types.Duration(5 * time.Second),
		ReadTimeout:  types.Duration(3 * time.Second),
		WriteTimeout: types.Duration(3 * time.Second),
		KeyPrefix:    "sai-query-service",
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, redisConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis cache config")
		}
	}

	cache := &RedisCache{
		ctx:    ctx,
		logger: logger,
		config: redisConfig,
	}

	cache.client = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		PoolSize:     redisConfig.PoolSize,
		DialTimeout:  redisConfig.DialTimeout.Std(),
		ReadTimeout:  redisConfig.ReadTimeout.Std(),
		WriteTimeout: redisConfig.WriteTimeout.Std(),
	})

	if err := cache.client.Ping(ctx).Err(); err != nil {
		return nil, types.Errorf(types.ErrCacheConnectionFailed, "redis ping: %v", err)
	}

	return cache, nil
}

func (r *RedisCache) Get(key string) (interface{}, bool) {
	if key == "" {
		return nil, false
	}

	result, err := r.client.Get(r.ctx, r.buildFullKey(key)).Bytes()
	if err != nil {
		if !types.IsError(err, redis.Nil) {
			r.logger.Error("Failed to get cache entry", zap.String("key", key), zap.Error(err))
		}
		atomic.AddUint64(&r.misses, 1)
		return nil, false
	}

	atomic.AddUint64(&r.hits, 1)
	return result, true
}

func (r *RedisCache) Set(key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	var payload []byte
	switch v := value.(type) {
	case []byte:
		payload = v
	case string:
		payload = []byte(v)
	default:
		marshaled, err := utils.Marshal(value)
		if err != nil {
			return types.WrapError(err, "failed to marshal cache value")
		}
		payload = marshaled
	}

	err := r.client.Set(r.ctx, r.buildFullKey(key), payload, ttl).Err()
	if err != nil {
		return types.Errorf(types.ErrCacheOperationFailed, "redis set: %v", err)
	}

	return nil
}

func (r *RedisCache) Delete(key string) error {
	err := r.client.Del(r.ctx, r.buildFullKey(key)).Err()
	if err != nil {
		return types.Errorf(types.ErrCacheOperationFailed, "redis del: %v", err)
	}
	return nil
}

func (r *RedisCache) Clear() error {
	iter := r.client.Scan(r.ctx, 0, r.config.KeyPrefix+":*", 100).Iterator()
	for iter.Next(r.ctx) {
		if err := r.client.Del(r.ctx, iter.Val()).Err(); err != nil {
			return types.Errorf(types.ErrCacheOperationFailed, "redis del: %v", err)
		}
	}
	return iter.Err()
}

func (r *RedisCache) Size() int {
	var count int
	iter := r.client.Scan(r.ctx, 0, r.config.KeyPrefix+":*", 100).Iterator()
	for iter.Next(r.ctx) {
		count++
	}
	return count
}

func (r *RedisCache) Stats() types.CacheStats {
	return types.CacheStats{
		Entries: r.Size(),
		Hits:    atomic.LoadUint64(&r.hits),
		Misses:  atomic.LoadUint64(&r.misses),
	}
}

func (r *RedisCache) Start() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return types.ErrComponentRunning
	}

	r.logger.Info("Redis cache started",
		zap.String("host", r.config.Host),
		zap.Int("port", r.config.Port))
	return nil
}

func (r *RedisCache) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.started, 1, 0) {
		return types.ErrComponentNotRunning
	}

	if err := r.client.Close(); err != nil {
		return types.WrapError(err, "failed to close redis client")
	}

	r.logger.Info("Redis cache stopped")
	return nil
}

func (r *RedisCache) IsRunning() bool {
	return atomic.LoadInt32(&r.started) == 1
}

func (r *RedisCache) buildFullKey(key string) string {
	return r.config.KeyPrefix + ":" + key
}
