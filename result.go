package fetcher

import (
	"context"
	"sync"
)

// Status describes the lifecycle state of a Result.
type Status int

const (
	// StatusIdle means no execution has been started.
	StatusIdle Status = iota
	// StatusPending means an execution is in flight.
	StatusPending
	// StatusSuccess means the last execution resolved.
	StatusSuccess
	// StatusError means the last execution rejected.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Result tracks the state of one registered fetch.
// It is safe for concurrent use; readers always observe the state of the last completed execution.
type Result struct {
	key      string
	producer Producer
	cfg      Config
	engine   *Engine

	mu       sync.RWMutex
	data     any
	err      error
	status   Status
	done     chan struct{}
	snapshot string
}

// NewResult returns a settled Result not backed by an Engine.
// Fetcher implementations that manage state elsewhere can use it to report an outcome;
// Refresh and Sync on such a Result are no-ops.
func NewResult(key string, data any, err error) *Result {
	r := &Result{key: key, data: data, err: err, status: StatusSuccess}
	if err != nil {
		r.status = StatusError
	}

	return r
}

// Key returns the cache key of the last execution.
// It starts as the key the Result was registered under and follows the rebuilt key
// after recomputations of calls whose Config carries a Key builder.
func (r *Result) Key() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.key
}

// Data returns the value of the last successful execution, the cached payload,
// or the Default placeholder when nothing completed yet.
func (r *Result) Data() any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.data
}

// Error returns the error of the last execution, nil after a success.
func (r *Result) Error() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.err
}

// Status returns the current lifecycle state.
func (r *Result) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.status
}

// Pending reports whether an execution is in flight.
func (r *Result) Pending() bool { return r.Status() == StatusPending }

// Wait blocks until the in-flight execution, if any, completes or ctx is cancelled,
// and returns the resulting data and error.
func (r *Result) Wait(ctx context.Context) (any, error) {
	r.mu.RLock()
	done := r.done
	r.mu.RUnlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.data, r.err
}

// Refresh executes the producer again, ignoring any cached payload, and waits for it.
// The key is rebuilt first, so the payload is stored under the key of the current arguments.
// When an execution is already in flight Refresh joins it instead of starting another.
func (r *Result) Refresh(ctx context.Context) error {
	if r.engine == nil {
		return nil
	}

	key, err := r.rekey()
	if err != nil {
		return err
	}

	if done, started := r.start(key); started {
		r.run(ctx, key, done)
	}

	_, err = r.Wait(ctx)

	return err
}

// rekey returns the key the next execution runs under.
// A key builder failure is recorded on the Result unless an execution is in flight.
func (r *Result) rekey() (string, error) {
	if r.cfg.Key == nil {
		return r.Key(), nil
	}

	key, err := r.cfg.Key()
	if err != nil {
		r.mu.Lock()
		if r.status != StatusPending {
			r.err, r.status = err, StatusError
		}
		r.mu.Unlock()

		return "", err
	}

	return key, nil
}

// Sync reads the watched dependencies and refreshes the Result when any of them changed
// since the previous reading. It reports whether a recomputation happened.
func (r *Result) Sync(ctx context.Context) (bool, error) {
	if r.engine == nil {
		return false, nil
	}

	snapshot := r.engine.snapshot(r.cfg.Watch)

	r.mu.Lock()
	changed := snapshot != r.snapshot
	r.snapshot = snapshot
	r.mu.Unlock()

	if !changed {
		return false, nil
	}

	return true, r.Refresh(ctx)
}

// Clear resets the Result to its idle state and drops the cached payload of its key.
func (r *Result) Clear(ctx context.Context) error {
	r.mu.Lock()
	r.data, r.err, r.status = nil, nil, StatusIdle
	if r.cfg.Default != nil {
		r.data = r.cfg.Default()
	}
	key := r.key
	r.mu.Unlock()

	if r.engine == nil {
		return nil
	}

	return r.engine.store.Delete(ctx, key)
}

// start marks the Result pending under key and returns the channel closed by the matching run.
// If an execution is already in flight its channel is returned with started set to false.
func (r *Result) start(key string) (chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusPending {
		return r.done, false
	}

	r.key = key
	r.status = StatusPending
	r.done = make(chan struct{})

	return r.done, true
}

func (r *Result) run(ctx context.Context, key string, done chan struct{}) {
	v, err := r.engine.execute(ctx, key, r.producer, r.cfg)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.err, r.status = err, StatusError
	} else {
		r.data, r.err, r.status = v, nil, StatusSuccess
	}
	close(done)
}
