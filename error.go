package fetcher

import "errors"

// ErrEmptyRedisClient is returned when attempting to create a redis store without providing a Redis client.
// The Redis client is mandatory for all store operations, construction fails if it is missing.
var ErrEmptyRedisClient = errors.New("redis client is empty")

// ErrEmptyFetcher is returned by New when no fetch primitive was configured.
// Every wrapped method delegates to it, so a wrapper without one cannot do anything useful.
var ErrEmptyFetcher = errors.New("fetcher is empty")

// ErrEmptyArgsSupplier is returned by CallWithArgs when the argument supplier is nil.
var ErrEmptyArgsSupplier = errors.New("args supplier is empty")

// ErrMethodNotFound is returned when a wrapped object has no method with the requested name.
var ErrMethodNotFound = errors.New("method not found")

var (
	// ErrArgumentCount rejects a call whose supplied argument count does not match the declared parameters.
	ErrArgumentCount = errors.New("argument count mismatch")
	// ErrArgumentType rejects a call whose argument cannot be assigned or converted to the parameter type.
	ErrArgumentType = errors.New("argument type mismatch")
	// ErrProducerPanic wraps a panic recovered while running an original method.
	ErrProducerPanic = errors.New("producer panicked")
)
