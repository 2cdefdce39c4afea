package fetcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingProducer returns a producer resolving with value and the counter of its executions.
func countingProducer(value any) (Producer, *atomic.Int32) {
	calls := &atomic.Int32{}

	return func(context.Context) *Deferred {
		calls.Add(1)
		return Resolved(value)
	}, calls
}

// TestEngineFetch verifies the behaviour of a single Fetch on the in-process Engine.
// The subtests cover eager and lazy execution, cache reuse by key, placeholders, server passes and timeouts.
func TestEngineFetch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// Eager verifies that a non-lazy fetch executes before returning.
	t.Run("Eager", func(t *testing.T) {
		engine := NewEngine()
		producer, calls := countingProducer("data")

		// Fetch with an empty config, the producer must run before Fetch returns.
		res := engine.Fetch(ctx, "eager", producer, Config{})

		// Assert that the Result already carries the resolved value.
		assert.Equal(t, StatusSuccess, res.Status(), "Expected the eager fetch to be settled")
		assert.Equal(t, "data", res.Data())
		assert.NoError(t, res.Error())
		assert.EqualValues(t, 1, calls.Load(), "Expected exactly one execution")
	})

	// CacheReuse verifies that a second fetch of the same key reuses the stored payload.
	t.Run("CacheReuse", func(t *testing.T) {
		engine := NewEngine()
		producer, calls := countingProducer("data")

		// The first fetch stores the payload, the second one must be served from the store.
		engine.Fetch(ctx, "reuse", producer, Config{})
		res := engine.Fetch(ctx, "reuse", producer, Config{})

		assert.Equal(t, StatusSuccess, res.Status())
		assert.Equal(t, "data", res.Data())
		assert.EqualValues(t, 1, calls.Load(), "Cached key must not execute again")
	})

	// ErrorNotCached verifies that a rejected execution is reported and not stored.
	t.Run("ErrorNotCached", func(t *testing.T) {
		engine := NewEngine()
		failure := errors.New("backend down")
		calls := 0
		producer := func(context.Context) *Deferred {
			calls++
			return Rejected(failure)
		}

		// Fetch with a placeholder so we can check it survives the failure.
		res := engine.Fetch(ctx, "failing", producer, Config{Default: func() any { return "fallback" }})

		assert.Equal(t, StatusError, res.Status())
		assert.ErrorIs(t, res.Error(), failure)
		assert.Equal(t, "fallback", res.Data(), "Placeholder must survive a failed execution")

		// Fetching the same key again must execute the producer a second time.
		engine.Fetch(ctx, "failing", producer, Config{})
		assert.Equal(t, 2, calls, "Failures must not be cached")
	})

	// Lazy verifies that a lazy fetch returns while the producer is still running.
	t.Run("Lazy", func(t *testing.T) {
		engine := NewEngine()
		// The producer blocks until release is closed.
		release := make(chan struct{})
		producer := func(ctx context.Context) *Deferred {
			return Go(ctx, func(context.Context) (any, error) {
				<-release
				return "late", nil
			})
		}

		res := engine.Fetch(ctx, "lazy", producer, Config{Lazy: true, Default: func() any { return "early" }})

		// While the producer is blocked the Result exposes the placeholder.
		assert.True(t, res.Pending(), "Lazy fetch must return before completion")
		assert.Equal(t, "early", res.Data())

		// Unblock the producer and wait for the execution to settle.
		close(release)
		data, err := res.Wait(ctx)

		assert.NoError(t, err)
		assert.Equal(t, "late", data)
		assert.Equal(t, StatusSuccess, res.Status())
	})

	// ServerPass verifies that server-disabled calls are not executed during a server pass.
	t.Run("ServerPass", func(t *testing.T) {
		engine := NewEngine(WithServerPass(true))
		producer, calls := countingProducer("data")

		// A call opting out of the server pass only receives its placeholder.
		res := engine.Fetch(ctx, "client-only", producer, buildConfig(Config{}, []CallOption{
			WithServer(false),
			WithDefault(func() any { return []string{} }),
		}))

		assert.Equal(t, StatusIdle, res.Status())
		assert.Equal(t, []string{}, res.Data())
		assert.EqualValues(t, 0, calls.Load(), "Server-disabled producers must not run")

		// A call without a server directive runs as usual.
		res = engine.Fetch(ctx, "server", producer, Config{})
		assert.Equal(t, StatusSuccess, res.Status(), "Calls without a server directive run during the pass")
	})

	// Timeout verifies that a producer that never settles is cut off by the configured timeout.
	t.Run("Timeout", func(t *testing.T) {
		engine := NewEngine()
		producer := func(context.Context) *Deferred { return NewDeferred() }

		res := engine.Fetch(ctx, "slow", producer, Config{Timeout: 10 * time.Millisecond})

		assert.Equal(t, StatusError, res.Status())
		assert.ErrorIs(t, res.Error(), context.DeadlineExceeded)
	})

	t.Run("NilDeferred", func(t *testing.T) {
		engine := NewEngine()

		// A nil Deferred resolves with nil.
		res := engine.Fetch(ctx, "nil", func(context.Context) *Deferred { return nil }, Config{})

		assert.Equal(t, StatusSuccess, res.Status())
		assert.Nil(t, res.Data())
	})
}

// TestEngineRecompute verifies recomputation of an already registered Result
// through Sync, Refresh and Clear, and the coalescing of concurrent executions.
func TestEngineRecompute(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// Sync verifies that a change of a watched dependency triggers exactly one recomputation.
	t.Run("Sync", func(t *testing.T) {
		engine := NewEngine()
		id := 1
		producer := func(context.Context) *Deferred { return Resolved(id * 100) }

		res := engine.Fetch(ctx, "watched", producer, Config{Watch: []WatchSource{func() any { return id }}})
		require.Equal(t, 100, res.Data())

		// Nothing changed since registration, Sync must be a no-op.
		changed, err := res.Sync(ctx)
		assert.NoError(t, err)
		assert.False(t, changed, "Unchanged dependencies must not recompute")

		// Change the dependency and sync again.
		id = 2
		changed, err = res.Sync(ctx)
		assert.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 200, res.Data())
		assert.Equal(t, "watched", res.Key(), "Without a key builder the key never changes")
	})

	// Refresh verifies that a refresh executes again even though the payload is cached.
	t.Run("Refresh", func(t *testing.T) {
		engine := NewEngine()
		producer, calls := countingProducer("data")

		res := engine.Fetch(ctx, "refresh", producer, Config{})
		assert.NoError(t, res.Refresh(ctx))

		assert.EqualValues(t, 2, calls.Load(), "Refresh must bypass the cached payload")
	})

	// KeyBuilderFailure verifies that a failing key builder aborts the refresh
	// and is reported on the Result without executing the producer.
	t.Run("KeyBuilderFailure", func(t *testing.T) {
		engine := NewEngine()
		failure := errors.New("unencodable")
		producer, calls := countingProducer("data")
		fail := false
		keyFn := func() (string, error) {
			if fail {
				return "", failure
			}
			return "built", nil
		}

		res := engine.Fetch(ctx, "built", producer, Config{Key: keyFn})
		require.Equal(t, StatusSuccess, res.Status())

		// Make the builder fail and refresh.
		fail = true
		err := res.Refresh(ctx)

		assert.ErrorIs(t, err, failure)
		assert.Equal(t, StatusError, res.Status())
		assert.ErrorIs(t, res.Error(), failure)
		assert.EqualValues(t, 1, calls.Load(), "Producer must not run without a key")
	})

	// Clear verifies that a cleared Result goes back to idle and its key executes again.
	t.Run("Clear", func(t *testing.T) {
		engine := NewEngine()
		producer, calls := countingProducer("data")

		res := engine.Fetch(ctx, "clear", producer, Config{})
		require.NoError(t, res.Clear(ctx))

		assert.Equal(t, StatusIdle, res.Status())
		assert.Nil(t, res.Data())

		// The stored payload is gone, so fetching the key runs the producer again.
		engine.Fetch(ctx, "clear", producer, Config{})
		assert.EqualValues(t, 2, calls.Load(), "Cleared key must execute again")
	})

	// Coalesce verifies that concurrent executions of one key share a single producer call.
	t.Run("Coalesce", func(t *testing.T) {
		engine := NewEngine()
		release := make(chan struct{})
		calls := &atomic.Int32{}
		producer := func(ctx context.Context) *Deferred {
			calls.Add(1)
			return Go(ctx, func(context.Context) (any, error) {
				<-release
				return "shared", nil
			})
		}

		// Start two lazy fetches of the same key while the producer is blocked.
		first := engine.Fetch(ctx, "coalesce", producer, Config{Lazy: true})
		second := engine.Fetch(ctx, "coalesce", producer, Config{Lazy: true})

		// Give both executions time to join the same flight before releasing it.
		time.Sleep(50 * time.Millisecond)
		close(release)

		var wg sync.WaitGroup
		for _, res := range []*Result{first, second} {
			wg.Add(1)
			go func(res *Result) {
				defer wg.Done()
				data, err := res.Wait(ctx)
				assert.NoError(t, err)
				assert.Equal(t, "shared", data)
			}(res)
		}
		wg.Wait()

		assert.EqualValues(t, 1, calls.Load(), "Concurrent executions must share one producer call")
	})
}

// TestWrapperWithEngine verifies a wrapped method end to end on the in-process Engine,
// recomputing when the supplied arguments change.
func TestWrapperWithEngine(t *testing.T) {
	ctx := context.Background()

	w, err := New(WithFetcher(NewEngine()))
	require.NoError(t, err)

	wrapped := w.Wrap(&UserService{prefix: "user-"})
	get, _ := wrapped.Method("Get")

	// Register the call while the supplier yields 5.
	id := 5
	res, err := get.CallWithArgs(ctx, func() []any { return []any{id} })
	require.NoError(t, err)

	assert.Equal(t, "Get[5]", res.Key())
	assert.Equal(t, "user-5", res.Data())

	// Change the argument, Sync must notice and recompute.
	id = 6
	changed, err := res.Sync(ctx)
	require.NoError(t, err)

	assert.True(t, changed, "Changed arguments must trigger a recomputation")
	assert.Equal(t, "user-6", res.Data())

	// A rejected recomputation is reported through Sync and the Result.
	id = -1
	_, err = res.Sync(ctx)
	assert.ErrorIs(t, err, errNegativeID)
	assert.Equal(t, StatusError, res.Status())
}

// TestWrapperWithEngineRekeys verifies that a recomputation triggered by new arguments is cached
// under the key of those arguments, leaving the payload of the previous arguments intact.
func TestWrapperWithEngineRekeys(t *testing.T) {
	ctx := context.Background()

	engine := NewEngine()
	w, err := New(WithFetcher(engine))
	require.NoError(t, err)

	get, _ := w.Wrap(&UserService{prefix: "user-"}).Method("Get")

	// Register with 5 and switch to 6, the Result must follow the new key.
	id := 5
	res, err := get.CallWithArgs(ctx, func() []any { return []any{id} })
	require.NoError(t, err)

	id = 6
	changed, err := res.Sync(ctx)
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, "Get[6]", res.Key(), "Recomputed Result must report the key of the current arguments")
	assert.Equal(t, "user-6", res.Data())

	// A fresh call with 5 must still be served the payload computed for 5.
	fresh, err := get.CallWithArgs(ctx, func() []any { return []any{5} })
	require.NoError(t, err)

	assert.Equal(t, "Get[5]", fresh.Key())
	assert.Equal(t, "user-5", fresh.Data(), "Payload of the previous arguments must not be overwritten")

	// The payload of 6 is stored under its own key as well.
	cached, ok, err := engine.store.Load(ctx, "Get[6]")
	require.NoError(t, err)
	assert.True(t, ok, "Expected the recomputed payload to be stored under the new key")
	assert.Equal(t, "user-6", cached)
}

// TestNewResult verifies a settled Result that is not backed by an Engine.
func TestNewResult(t *testing.T) {
	ctx := context.Background()

	// A successful Result ignores recomputation requests.
	ok := NewResult("k", 1, nil)
	assert.Equal(t, StatusSuccess, ok.Status())
	assert.NoError(t, ok.Refresh(ctx), "Refresh without an engine is a no-op")

	changed, err := ok.Sync(ctx)
	assert.NoError(t, err)
	assert.False(t, changed)

	// A failed Result reports its error through Status and Wait.
	failed := NewResult("k", nil, errNegativeID)
	assert.Equal(t, StatusError, failed.Status())
	assert.Equal(t, "error", failed.Status().String())

	_, err = failed.Wait(ctx)
	assert.ErrorIs(t, err, errNegativeID)
}
