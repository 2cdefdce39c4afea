package fetcher

import (
	"context"
	"time"
)

// Fetcher is the contract of a cache-aware fetch primitive.
// It executes a producer under a cache key, tracks pending, error and data state on the returned Result,
// and reuses results stored under the same key. Wrapped methods never manage that state themselves,
// they only register one call per invocation and hand back whatever Result the primitive returns.
type Fetcher interface {
	// Fetch registers producer under key and returns the Result tracking its execution.
	// The config describes when and how the producer runs, its semantics belong to the implementation.
	Fetch(ctx context.Context, key string, producer Producer, cfg Config) *Result
}

// FetcherFunc is an adapter to allow the use of ordinary functions as a Fetcher.
type FetcherFunc func(ctx context.Context, key string, producer Producer, cfg Config) *Result

// Fetch implements the Fetcher interface.
func (f FetcherFunc) Fetch(ctx context.Context, key string, producer Producer, cfg Config) *Result {
	return f(ctx, key, producer, cfg)
}

// Producer starts one execution of the underlying computation and returns its deferred outcome.
type Producer func(ctx context.Context) *Deferred

// WatchSource reads the current value of a reactive dependency.
// A fetch primitive compares successive readings to decide whether to recompute.
type WatchSource func() any

// Config carries the directives recognised by a fetch primitive.
// The wrapper only fills Watch and Key for argument-supplying calls, everything else comes from the caller.
type Config struct {
	// Lazy defers the initial execution instead of running it before Fetch returns.
	Lazy bool
	// Server controls execution during a server pass. Nil means enabled.
	Server *bool
	// Default produces the placeholder data exposed until the first execution completes.
	Default func() any
	// Watch lists the dependencies whose change triggers recomputation.
	Watch []WatchSource
	// Key rebuilds the cache key from the current state of the call. When set, a recomputation
	// stores its payload under the rebuilt key instead of the key the call was registered with.
	Key func() (string, error)
	// Timeout bounds a single execution when positive.
	Timeout time.Duration
	// Extra holds directives unknown to this package, passed through untouched.
	Extra map[string]any
}

// ServerEnabled reports whether the producer may run during a server pass.
func (c Config) ServerEnabled() bool {
	return c.Server == nil || *c.Server
}

// CallOption mutates the Config of a single wrapped call.
type CallOption func(c *Config)

// WithLazy option defers the initial execution of the call.
func WithLazy() CallOption {
	return func(c *Config) {
		c.Lazy = true
	}
}

// WithServer option enables or disables execution during a server pass.
func WithServer(enabled bool) CallOption {
	return func(c *Config) {
		c.Server = &enabled
	}
}

// WithDefault option sets the placeholder factory used before the first execution completes.
func WithDefault(fn func() any) CallOption {
	return func(c *Config) {
		c.Default = fn
	}
}

// WithWatch option replaces the watched dependencies of the call.
// For argument-supplying calls this overrides the dependency the wrapper injects on the argument supplier,
// caller supplied dependencies are authoritative.
func WithWatch(sources ...WatchSource) CallOption {
	return func(c *Config) {
		c.Watch = sources
	}
}

// WithTimeout option bounds each execution of the call.
func WithTimeout(d time.Duration) CallOption {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithExtra option attaches an implementation specific directive to the call.
func WithExtra(key string, value any) CallOption {
	return func(c *Config) {
		if c.Extra == nil {
			c.Extra = make(map[string]any)
		}
		c.Extra[key] = value
	}
}

// buildConfig starts from base and applies the caller options on top of it, in order.
func buildConfig(base Config, opts []CallOption) Config {
	for _, opt := range opts {
		if opt != nil {
			opt(&base)
		}
	}

	return base
}
