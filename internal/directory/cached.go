package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const cachePrefix = "results:directory:"

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")

// Cache 目录缓存后端
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache 基于 Redis 的缓存
type RedisCache struct {
	rdb *goredis.Client
}

// NewRedisCache 创建 Redis 连接并执行 Ping 健康检查
func NewRedisCache(addr, password string, db, poolSize int) (*RedisCache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	return &RedisCache{rdb: rdb}, nil
}

// Get 读取缓存,未命中返回 ErrCacheMiss
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

// Set 写入缓存
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Ping 健康检查
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close 关闭 Redis 连接
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// CachedDirectory 读穿透缓存,缓存故障时直接访问下游,搜索结果不缓存
type CachedDirectory struct {
	next  Source
	cache Cache
	ttl   time.Duration
}

// NewCachedDirectory 创建带缓存的目录
func NewCachedDirectory(next Source, cache Cache, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{next: next, cache: cache, ttl: ttl}
}

// Source 返回被缓存的下游数据源
func (d *CachedDirectory) Source() Source {
	return d.next
}

func (d *CachedDirectory) GetStudent(ctx context.Context, id string) (*Student, error) {
	return readThrough(ctx, d, "student:"+id, func() (*Student, error) {
		return d.next.GetStudent(ctx, id)
	})
}

func (d *CachedDirectory) GetLecturer(ctx context.Context, id string) (*Lecturer, error) {
	return readThrough(ctx, d, "lecturer:"+id, func() (*Lecturer, error) {
		return d.next.GetLecturer(ctx, id)
	})
}

func (d *CachedDirectory) GetUnit(ctx context.Context, code string) (*Unit, error) {
	return readThrough(ctx, d, "unit:"+code, func() (*Unit, error) {
		return d.next.GetUnit(ctx, code)
	})
}

func (d *CachedDirectory) SearchStudents(ctx context.Context, query string) ([]*Student, error) {
	return d.next.SearchStudents(ctx, query)
}

func readThrough[T any](ctx context.Context, d *CachedDirectory, key string, load func() (*T, error)) (*T, error) {
	key = cachePrefix + key
	if b, err := d.cache.Get(ctx, key); err == nil {
		var v T
		if json.Unmarshal(b, &v) == nil {
			return &v, nil
		}
	}

	v, err := load()
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(v); err == nil {
		// 写缓存失败不影响读取
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return v, nil
}
