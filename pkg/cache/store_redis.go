package cache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 200

// deleteIfScript removes KEYS[1] only while it still holds ARGV[1].
const deleteIfScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`

// RedisStore persists entries in Redis.
type RedisStore struct {
	redis *redis.Client

	// retention is the Redis-level expiration of every key; 0 keeps keys
	// until they are overwritten, invalidated or swept.
	retention time.Duration
}

// NewRedisStore creates a store on top of an existing Redis client.
// Retention should exceed the longest entry TTL so expired entries remain
// readable as expired until Redis drops them.
func NewRedisStore(redisClient *redis.Client, retention time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:     redisClient,
		retention: retention,
	}
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.redis.Set(ctx, key, value, s.retention).Err(); err != nil {
		return classifyStoreError("redis set", err)
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, classifyStoreError("redis get", err)
	}
	return data, true, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return classifyStoreError("redis del", err)
	}
	return nil
}

// DeleteIf implements Store.
func (s *RedisStore) DeleteIf(ctx context.Context, key string, old []byte) (bool, error) {
	n, err := s.redis.Eval(ctx, deleteIfScript, []string{key}, old).Int()
	if err != nil {
		return false, classifyStoreError("redis delete if", err)
	}
	return n == 1, nil
}

// Keys implements Store.
func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.redis.Scan(ctx, 0, escapeGlob(prefix)+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, classifyStoreError("redis scan", err)
	}
	// SCAN may return duplicates across iterations.
	sort.Strings(keys)
	return dedupSorted(keys), nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.redis.Close()
}

// escapeGlob escapes Redis MATCH pattern metacharacters.
func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

func dedupSorted(keys []string) []string {
	if len(keys) < 2 {
		return keys
	}
	out := keys[:1]
	for _, k := range keys[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}
