package thumbnail

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openmarket/openmarket-cli/internal/cache"
)

// Store is a second tier holding raw image bytes by cache key.
type Store interface {
	// Get returns ok=false on a miss; err is reserved for tier failures.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte) error
	Clear(ctx context.Context) error
}

const (
	DefaultRedisPrefix = "openmarket:thumb:"
	DefaultStoreTTL    = 24 * time.Hour
)

// RedisStore keeps image bytes in Redis under prefix+sha1(key).
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps client. A zero ttl means DefaultStoreTTL.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultStoreTTL
	}
	return &RedisStore{client: client, prefix: DefaultRedisPrefix, ttl: ttl}
}

// NewRedisStoreFromURL parses a redis:// URL and connects lazily.
func NewRedisStoreFromURL(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(opts), ttl), nil
}

func (s *RedisStore) key(k string) string {
	sum := sha1.Sum([]byte(k))
	return s.prefix + hex.EncodeToString(sum[:])
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, data []byte) error {
	return s.client.Set(ctx, s.key(key), data, s.ttl).Err()
}

// Clear deletes every key under the store prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return s.client.Del(ctx, batch...).Err()
	}
	return nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// DirStore keeps image bytes as files in a cache directory.
type DirStore struct {
	blobs *cache.Blobs
}

// NewDirStore stores blobs in dir. A zero ttl means the cache package default.
func NewDirStore(dir string, ttl time.Duration) *DirStore {
	return &DirStore{blobs: cache.NewBlobs(dir, ttl)}
}

func (s *DirStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	return s.blobs.Get(key)
}

func (s *DirStore) Set(_ context.Context, key string, data []byte) error {
	return s.blobs.Put(key, data)
}

func (s *DirStore) Clear(context.Context) error {
	return s.blobs.Clear()
}
