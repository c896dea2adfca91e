package username

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/go-redis/redis/v8"
)

// DefaultKeyPrefix namespaces username keys in a shared Redis database.
const DefaultKeyPrefix = "gochat:username:"

// RedisStore keeps reserved usernames as Redis keys. Add uses SETNX, so a
// name is reserved at most once while its key exists.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a store using client. An empty prefix selects
// DefaultKeyPrefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedis connects to Redis at addr and verifies the connection with PING.
// Addr is either host:port or a redis:// URL.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("could not connect to Redis at %s: %w", opts.Addr, err)
	}

	log.Printf("Successfully connected to Redis at %s", opts.Addr)
	return client, nil
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

// Contains implements Store.
func (s *RedisStore) Contains(ctx context.Context, name string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(name)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Add implements Store.
func (s *RedisStore) Add(ctx context.Context, name string) (bool, error) {
	return s.client.SetNX(ctx, s.key(name), 1, 0).Result()
}

// Remove implements Store.
func (s *RedisStore) Remove(ctx context.Context, name string) error {
	return s.client.Del(ctx, s.key(name)).Err()
}

// Purge deletes every username key under the prefix and returns how many
// were removed. It drops names left behind by a relay that exited without
// releasing them, and also names held by any other live relay using the
// same prefix.
func (s *RedisStore) Purge(ctx context.Context) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := s.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			return removed, err
		}
		removed += int(n)
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}
