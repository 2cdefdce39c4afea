package fetcher

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// options type defines the functional options pattern used to configure a Wrapper instance.
type options func(w *Wrapper)

// WithFetcher option assigns the fetch primitive every wrapped method delegates to.
// Providing a fetcher is required, New fails with ErrEmptyFetcher without one.
func WithFetcher(f Fetcher) options {
	return func(w *Wrapper) {
		w.fetcher = f
	}
}

// WithKeyEncoder option configures how argument lists are serialized into cache keys.
// If no encoder is provided the Wrapper falls back to JSON encoding of the argument list.
func WithKeyEncoder(e KeyEncoder) options {
	return func(w *Wrapper) {
		w.keys = e
	}
}

// WithLogger option sets the logger used to report wrapping and call dispatch.
func WithLogger(l zerolog.Logger) options {
	return func(w *Wrapper) {
		w.logger = l
	}
}

// WithDescriptors option restricts wrapping to an explicit capability declaration.
// Only members named by a descriptor are wrapped, and a descriptor whose arity disagrees
// with the discovered function is ignored together with that member.
func WithDescriptors(descriptors ...Descriptor) options {
	return func(w *Wrapper) {
		w.descriptors = descriptors
	}
}

// EngineOption configures an Engine.
type EngineOption func(e *Engine)

// WithStore option sets the payload store results are reused from.
// Without it the Engine keeps payloads in process memory.
func WithStore(s Store) EngineOption {
	return func(e *Engine) {
		e.store = s
	}
}

// WithServerPass option marks the Engine as running a server pass.
// Calls configured with WithServer(false) are then registered but not executed.
func WithServerPass(enabled bool) EngineOption {
	return func(e *Engine) {
		e.server = enabled
	}
}

// WithEngineLogger option sets the logger used to report executions and store failures.
func WithEngineLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// redisOption type defines the functional options pattern used to configure a RedisStore instance.
type redisOption func(s *RedisStore)

// WithClient option assigns the redis client used by the RedisStore to communicate with redis.
// Providing a valid redis client is required for the store to function correctly.
func WithClient(rdb redis.UniversalClient) redisOption {
	return func(s *RedisStore) {
		s.rdb = rdb
	}
}

// WithTranscoder option configures the transcoder used to encode and decode stored payloads.
// Providing a custom transcoder allows callers to control serialization behavior.
func WithTranscoder(t Transcoder[any]) redisOption {
	return func(s *RedisStore) {
		s.transcoder = t
	}
}

// WithScript option specifies the Lua script used to load payloads from redis.
// The script receives the key as KEYS[1] and the ttl in milliseconds as ARGV[1], and must return
// the stored payload or nil. If no script is provided the RedisStore falls back to its default script.
func WithScript(src *redis.Script) redisOption {
	return func(s *RedisStore) {
		s.loadCommand = src
	}
}

// WithPrefix option namespaces every key written by the RedisStore.
func WithPrefix(prefix string) redisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTTL option configures how long a stored payload lives after it was last written or read.
// If this option is not provided, the RedisStore uses its internal default of ten minutes.
func WithTTL(ttl time.Duration) redisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}
