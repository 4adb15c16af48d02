package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"blobvault/pkg/storage"
	"blobvault/pkg/types"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedStore 是一个装饰器，它为底层的 storage.Store 添加 Redis 读穿缓存层
type CachedStore struct {
	backend storage.Store // 被装饰的底层存储 (如 S3)
	client  *redis.Client // Redis 客户端
	ttl     time.Duration // 缓存过期时间
	log     *zap.Logger
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间
}

func NewCachedStore(backend storage.Store, cfg Config, log *zap.Logger) (*CachedStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &CachedStore{
		backend: backend,
		client:  client,
		ttl:     cfg.TTL,
		log:     log,
	}, nil
}

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (s *CachedStore) cacheKey(id types.BlockID) string {
	return "bv:blk:" + id.String()
}

// Load 优先读 Redis，未命中则读底层存储并回填
func (s *CachedStore) Load(ctx context.Context, id types.BlockID) ([]byte, error) {
	key := s.cacheKey(id)

	data, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, redis.Nil):
		// miss
	default:
		// 缓存故障降级：Redis 挂了就直接查底层存储
		s.log.Warn("redis get failed, falling back to backend", zap.String("block", id.Short()), zap.Error(err))
	}

	data, err = s.backend.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, key, data)
	return data, nil
}

// Create 先写底层存储，成功后再写缓存
func (s *CachedStore) Create(ctx context.Context, id types.BlockID, data []byte) error {
	if err := s.backend.Create(ctx, id, data); err != nil {
		return err
	}
	s.fill(ctx, s.cacheKey(id), data)
	return nil
}

// Store 覆盖写，缓存同步更新 (write-through)，避免读到旧内容
func (s *CachedStore) Store(ctx context.Context, id types.BlockID, data []byte) error {
	if err := s.backend.Store(ctx, id, data); err != nil {
		s.invalidate(ctx, id)
		return err
	}
	s.fill(ctx, s.cacheKey(id), data)
	return nil
}

func (s *CachedStore) Remove(ctx context.Context, id types.BlockID) error {
	// 先删缓存，即使底层失败也不会留下脏数据
	s.invalidate(ctx, id)
	return s.backend.Remove(ctx, id)
}

// Has 命中缓存则无需访问底层存储
func (s *CachedStore) Has(ctx context.Context, id types.BlockID) (bool, error) {
	n, err := s.client.Exists(ctx, s.cacheKey(id)).Result()
	if err != nil {
		s.log.Warn("redis exists failed, falling back to backend", zap.String("block", id.Short()), zap.Error(err))
	} else if n > 0 {
		return true, nil
	}
	return s.backend.Has(ctx, id)
}

// Count 透传：缓存只是子集
func (s *CachedStore) Count(ctx context.Context) (uint64, error) {
	return s.backend.Count(ctx)
}

// Close 关闭 Redis 连接以及底层存储
func (s *CachedStore) Close() error {
	err := s.client.Close()
	if cerr := storage.Close(s.backend); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (s *CachedStore) fill(ctx context.Context, key string, data []byte) {
	// 这里的 Set 错误可以忽略，不影响主流程
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.log.Warn("redis set failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *CachedStore) invalidate(ctx context.Context, id types.BlockID) {
	if err := s.client.Del(ctx, s.cacheKey(id)).Err(); err != nil {
		s.log.Warn("redis del failed", zap.String("block", id.Short()), zap.Error(err))
	}
}
