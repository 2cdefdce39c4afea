package fetcher

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Engine is an in-process Fetcher.
// It reuses payloads stored under a key instead of executing again, seeds placeholders from Default,
// skips server-disabled calls during a server pass, runs lazy calls in the background,
// and coalesces concurrent executions of the same key into a single producer call.
type Engine struct {
	store  Store
	server bool
	logger zerolog.Logger
	group  singleflight.Group
}

// NewEngine constructs an Engine, keeping payloads in memory unless WithStore is given.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{logger: zerolog.Nop()}

	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = NewMemoryStore()
	}

	return e
}

// Fetch implements the Fetcher interface.
func (e *Engine) Fetch(ctx context.Context, key string, producer Producer, cfg Config) *Result {
	r := &Result{key: key, producer: producer, cfg: cfg, engine: e, snapshot: e.snapshot(cfg.Watch)}

	cached, ok, err := e.store.Load(ctx, key)
	if err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("load cached payload")
	}
	if ok {
		r.data, r.status = cached, StatusSuccess
		e.logger.Debug().Str("key", key).Msg("cache hit")
		return r
	}

	if cfg.Default != nil {
		r.data = cfg.Default()
	}

	if e.server && !cfg.ServerEnabled() {
		e.logger.Debug().Str("key", key).Msg("skipped during server pass")
		return r
	}

	done, _ := r.start(key)
	if cfg.Lazy {
		go r.run(ctx, key, done)
		return r
	}

	r.run(ctx, key, done)

	return r
}

// execute runs producer once for key, sharing the outcome with concurrent executions of the same key,
// and saves a successful payload to the store.
func (e *Engine) execute(ctx context.Context, key string, producer Producer, cfg Config) (any, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	v, err, shared := e.group.Do(key, func() (any, error) {
		d := producer(ctx)
		if d == nil {
			return nil, nil
		}
		return d.Await(ctx)
	})

	e.logger.Debug().Str("key", key).Bool("shared", shared).Err(err).Msg("executed")

	if err != nil {
		return nil, err
	}

	if saveErr := e.store.Save(ctx, key, v); saveErr != nil {
		e.logger.Warn().Err(saveErr).Str("key", key).Msg("save payload")
	}

	return v, nil
}

// snapshot reads every watch source and encodes the readings into a comparable string.
func (e *Engine) snapshot(sources []WatchSource) string {
	if len(sources) == 0 {
		return ""
	}

	readings := make([]any, len(sources))
	for i, src := range sources {
		if src != nil {
			readings[i] = src()
		}
	}

	encoded, err := defaultTranscoder[any]{}.EncodeKey(readings)
	if err != nil {
		return fmt.Sprintf("%#v", readings)
	}

	return encoded
}
