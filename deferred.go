package fetcher

import (
	"context"
	"fmt"
	"sync"
)

// Deferred represents the eventual result of an asynchronous computation.
// It settles exactly once, either resolved with a value or rejected with an error,
// and any number of goroutines may wait on it through Await or Done.
// The zero value is an unsettled Deferred ready to use.
type Deferred struct {
	mu      sync.Mutex
	done    chan struct{}
	settled bool
	value   any
	err     error
}

// Immediate is a result that is already known at the time it is produced.
// Methods may return it instead of a Deferred, Normalize turns it into a settled Deferred.
type Immediate struct {
	Value any
	Err   error
}

// NewDeferred returns an unsettled Deferred.
func NewDeferred() *Deferred {
	return &Deferred{done: make(chan struct{})}
}

// Resolved returns a Deferred already resolved with v.
func Resolved(v any) *Deferred {
	d := NewDeferred()
	d.Resolve(v)

	return d
}

// Rejected returns a Deferred already rejected with err.
func Rejected(err error) *Deferred {
	d := NewDeferred()
	d.Reject(err)

	return d
}

// Go runs fn in its own goroutine and returns a Deferred settled with its outcome.
// A panic in fn rejects the Deferred with ErrProducerPanic.
func Go(ctx context.Context, fn func(context.Context) (any, error)) *Deferred {
	d := NewDeferred()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.Reject(fmt.Errorf("%w: %v", ErrProducerPanic, r))
			}
		}()

		v, err := fn(ctx)
		d.settle(v, err)
	}()

	return d
}

// Resolve settles d with v. Calls after the first settlement are ignored.
func (d *Deferred) Resolve(v any) { d.settle(v, nil) }

// Reject settles d with err. Calls after the first settlement are ignored.
func (d *Deferred) Reject(err error) { d.settle(nil, err) }

func (d *Deferred) settle(v any, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.settled {
		return
	}

	d.settled = true
	d.value, d.err = v, err
	if d.done == nil {
		d.done = make(chan struct{})
	}
	close(d.done)
}

// channel returns the settlement channel, creating it on first use so the zero value works.
func (d *Deferred) channel() chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.done == nil {
		d.done = make(chan struct{})
	}

	return d.done
}

// Done returns a channel closed once d has settled.
func (d *Deferred) Done() <-chan struct{} { return d.channel() }

// Await blocks until d settles or ctx is cancelled.
// A cancelled context returns the context error but does not settle d.
func (d *Deferred) Await(ctx context.Context) (any, error) {
	select {
	case <-d.channel():
		d.mu.Lock()
		defer d.mu.Unlock()

		return d.value, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Normalize converts any value into a Deferred.
// A non-nil *Deferred passes through untouched, an Immediate settles with its own outcome,
// and every other value, nil included, becomes an already resolved Deferred.
func Normalize(v any) *Deferred {
	switch t := v.(type) {
	case *Deferred:
		if t == nil {
			return Resolved(nil)
		}
		return t
	case Immediate:
		if t.Err != nil {
			return Rejected(t.Err)
		}
		return Resolved(t.Value)
	default:
		return Resolved(v)
	}
}
