package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeferredSettlesOnce(t *testing.T) {
	ctx := context.Background()
	d := NewDeferred()

	d.Resolve("first")
	d.Reject(errors.New("late"))
	d.Resolve("second")

	v, err := d.Await(ctx)

	assert.NoError(t, err, "Only the first settlement must count")
	assert.Equal(t, "first", v)
}

func TestDeferredAwaitCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	d := NewDeferred()
	_, err := d.Await(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-d.Done():
		t.Fatal("A cancelled wait must not settle the deferred value")
	default:
	}
}

func TestGo(t *testing.T) {
	d := Go(context.Background(), func(context.Context) (any, error) { return 7, nil })

	<-d.Done()
	v, err := d.Await(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 7, v)
}

// TestNormalize is the table-driven test for Normalize.
// It verifies that deferred values pass through untouched and that every other result
// is turned into an already settled deferred value.
func TestNormalize(t *testing.T) {
	failure := errors.New("failure")
	pending := NewDeferred()

	cases := []struct {
		name    string
		input   any
		want    any
		wantErr error
		same    *Deferred
	}{
		{name: "Plain value", input: 5, want: 5},
		{name: "Nil", input: nil, want: nil},
		{name: "Typed nil deferred", input: (*Deferred)(nil), want: nil},
		{name: "Resolved immediate", input: Immediate{Value: "ok"}, want: "ok"},
		{name: "Rejected immediate", input: Immediate{Err: failure}, wantErr: failure},
		{name: "Deferred passes through", input: pending, same: pending},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			d := Normalize(tt.input)

			if tt.same != nil {
				assert.Same(t, tt.same, d, "Deferred values must not be rewrapped")
				return
			}

			v, err := d.Await(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

// TestDeferredZeroValue verifies that a Deferred declared without NewDeferred can still be settled and awaited.
func TestDeferredZeroValue(t *testing.T) {
	ctx := context.Background()

	// A zero value has no settlement channel yet, settling must create and close it.
	var resolved Deferred
	assert.NotPanics(t, func() { resolved.Resolve("ok") }, "Resolving a zero value must not panic")

	v, err := resolved.Await(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "ok", v)

	// Waiting first and settling afterwards must share the same lazily created channel.
	var later Deferred
	done := later.Done()
	later.Reject(errors.New("failed"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected the channel obtained before settlement to be closed")
	}
}

// TestGoRecoversPanic verifies that a panic inside the goroutine started by Go rejects the Deferred
// instead of crashing the process.
func TestGoRecoversPanic(t *testing.T) {
	d := Go(context.Background(), func(context.Context) (any, error) { panic("boom") })

	// Await must return the recovered panic as a rejection wrapping ErrProducerPanic.
	v, err := d.Await(context.Background())

	assert.ErrorIs(t, err, ErrProducerPanic)
	assert.Contains(t, err.Error(), "boom", "The panic value must be kept in the error message")
	assert.Nil(t, v)
}
