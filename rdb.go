package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// The script defaultLoadCommand is a Lua script that reads a stored payload and extends its lifetime.
// It uses GET to read the value and, only when the key exists, PEXPIRE to push its expiry ttl milliseconds
// into the future, so payloads that keep being reused are never evicted while still in demand.
var defaultLoadCommand = redis.NewScript(`
local key = KEYS[1]
local ttl = tonumber(ARGV[1])
local value = redis.call('GET', key)

if value and ttl > 0 then
	redis.call('PEXPIRE', key, ttl)
end

return value
`)

// defaultTTL defines how long a payload lives after it was last written or read.
const defaultTTL = 10 * time.Minute

// RedisStore struct provides a redis-backed Store shared by every process pointing at the same redis.
// Payloads round-trip through the transcoder, so with the default JSON transcoder a loaded value
// has the generic JSON shape (map[string]any, []any, float64, string, bool or nil) rather than its original type.
// All fields are configured during construction and are not modified afterward.
type RedisStore struct {
	transcoder  Transcoder[any]
	rdb         redis.UniversalClient
	loadCommand *redis.Script
	prefix      string
	ttl         time.Duration
}

// NewRedisStore function constructs a fully configured RedisStore instance.
// It applies all provided functional options, validates required dependencies,
// and initializes default values for any optional configuration not explicitly set.
// The function returns an error only when mandatory configuration is missing.
func NewRedisStore(opts ...redisOption) (*RedisStore, error) {
	store := &RedisStore{}

	for _, opt := range opts {
		opt(store)
	}

	if store.rdb == nil {
		return nil, ErrEmptyRedisClient
	}

	if store.ttl <= 0 {
		store.ttl = defaultTTL
	}

	if store.transcoder == nil {
		store.transcoder = &defaultTranscoder[any]{}
	}

	if store.loadCommand == nil {
		store.loadCommand = defaultLoadCommand
	}

	return store, nil
}

// Load runs the load script for key and decodes the payload it returns.
// A missing key is reported as not found without an error.
func (s *RedisStore) Load(ctx context.Context, key string) (any, bool, error) {
	result, err := s.loadCommand.Run(ctx, s.rdb, []string{s.prefix + key}, s.ttl.Milliseconds()).Text()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	value, err := s.transcoder.Decode(result)
	if err != nil {
		return nil, false, err
	}

	return value, true, nil
}

// Save encodes value and writes it under key with the configured ttl.
func (s *RedisStore) Save(ctx context.Context, key string, value any) error {
	payload, err := s.transcoder.Encode(value)
	if err != nil {
		return err
	}

	return s.rdb.Set(ctx, s.prefix+key, payload, s.ttl).Err()
}

// Delete removes the payload stored under key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.prefix+key).Err()
}
