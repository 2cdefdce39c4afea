package fetcher

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// ArgsSupplier yields the current argument list of a parameterized call.
// It is read once to build the cache key and again each time the producer executes.
type ArgsSupplier func() []any

// Wrapper binds the methods of service objects to a fetch primitive.
// All fields are configured during construction and are not modified afterward,
// so a single Wrapper may wrap any number of sources concurrently.
type Wrapper struct {
	fetcher     Fetcher
	keys        KeyEncoder
	logger      zerolog.Logger
	descriptors []Descriptor
}

// New function constructs a fully configured Wrapper instance.
// It applies all provided functional options, validates required dependencies,
// and initializes default values for any optional configuration not explicitly set.
// The function returns an error only when the fetch primitive is missing.
func New(opts ...options) (*Wrapper, error) {
	w := &Wrapper{logger: zerolog.Nop()}

	for _, opt := range opts {
		opt(w)
	}

	if w.fetcher == nil {
		return nil, ErrEmptyFetcher
	}

	if w.keys == nil {
		w.keys = defaultTranscoder[any]{}
	}

	return w, nil
}

// Wrap builds a Wrapped object exposing one Method per function member of source.
// It never invokes the original functions and never fails: a nil source, or one without
// exported functions, simply yields an empty Wrapped.
func (w *Wrapper) Wrap(source any) *Wrapped {
	bindings := discover(source)
	if w.descriptors != nil {
		bindings = w.declared(bindings)
	}

	wrapped := &Wrapped{methods: make(map[string]*Method, len(bindings))}
	for _, b := range bindings {
		wrapped.names = append(wrapped.names, b.name)
		wrapped.methods[b.name] = &Method{wrapper: w, binding: b}
	}

	w.logger.Debug().
		Str("source", fmt.Sprintf("%T", source)).
		Int("methods", len(bindings)).
		Msg("wrapped source")

	return wrapped
}

// declared keeps the bindings matching a descriptor, in descriptor order.
func (w *Wrapper) declared(bindings []*binding) []*binding {
	byName := make(map[string]*binding, len(bindings))
	for _, b := range bindings {
		byName[b.name] = b
	}

	out := make([]*binding, 0, len(w.descriptors))
	for _, d := range w.descriptors {
		b, ok := byName[d.Name]
		if !ok || b.arity != d.Arity {
			w.logger.Warn().Str("method", d.Name).Int("arity", d.Arity).Msg("descriptor does not match source")
			continue
		}
		out = append(out, b)
		delete(byName, d.Name)
	}

	return out
}

// Wrapped maps function names of a source to their wrapped Methods.
type Wrapped struct {
	names   []string
	methods map[string]*Method
}

// Len returns the number of wrapped methods.
func (o *Wrapped) Len() int { return len(o.names) }

// Names returns the wrapped method names in discovery order.
func (o *Wrapped) Names() []string {
	return append([]string(nil), o.names...)
}

// Method returns the wrapped method registered under name.
func (o *Wrapped) Method(name string) (*Method, bool) {
	m, ok := o.methods[name]
	return m, ok
}

// Call looks up name and performs an argument-free call on it.
func (o *Wrapped) Call(ctx context.Context, name string, opts ...CallOption) (*Result, error) {
	m, ok := o.methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, name)
	}

	return m.Call(ctx, opts...), nil
}

// CallWithArgs looks up name and performs an argument-supplying call on it.
func (o *Wrapped) CallWithArgs(ctx context.Context, name string, args ArgsSupplier, opts ...CallOption) (*Result, error) {
	m, ok := o.methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, name)
	}

	return m.CallWithArgs(ctx, args, opts...)
}

// Method is a single wrapped function.
type Method struct {
	wrapper *Wrapper
	binding *binding
}

// Name returns the name of the original function.
func (m *Method) Name() string { return m.binding.name }

// Arity returns the number of declared parameters, a leading context.Context excluded.
func (m *Method) Arity() int { return m.binding.arity }

// Parameterized reports whether the original function declares parameters
// and therefore expects to be called through CallWithArgs.
func (m *Method) Parameterized() bool { return m.binding.arity > 0 }

// Call registers an argument-free call with the fetch primitive.
// The cache key is the bare method name and the configuration is built from opts alone.
// On a parameterized method the producer rejects with ErrArgumentCount.
func (m *Method) Call(ctx context.Context, opts ...CallOption) *Result {
	b := m.binding
	producer := func(ctx context.Context) *Deferred {
		return b.invoke(ctx, nil)
	}

	m.wrapper.logger.Debug().Str("key", b.name).Msg("fetch")

	return m.wrapper.fetcher.Fetch(ctx, b.name, producer, buildConfig(Config{}, opts))
}

// CallWithArgs registers an argument-supplying call with the fetch primitive.
// The cache key is the method name followed by the encoded current arguments, and args is
// injected as the watched dependency before opts are applied, so a caller WithWatch replaces it.
// The key builder is handed to the fetch primitive too, so recomputations after an argument
// change are cached under the key of the new arguments.
// args is invoked synchronously here and a panic in it propagates to the caller.
func (m *Method) CallWithArgs(ctx context.Context, args ArgsSupplier, opts ...CallOption) (*Result, error) {
	if args == nil {
		return nil, ErrEmptyArgsSupplier
	}

	b := m.binding
	keyFn := func() (string, error) {
		suffix, err := m.wrapper.keys.EncodeKey(args())
		if err != nil {
			return "", fmt.Errorf("encode key for %s: %w", b.name, err)
		}
		return b.name + suffix, nil
	}

	key, err := keyFn()
	if err != nil {
		return nil, err
	}

	producer := func(ctx context.Context) *Deferred {
		return b.invoke(ctx, args)
	}

	base := Config{
		Watch: []WatchSource{func() any { return args() }},
		Key:   keyFn,
	}

	m.wrapper.logger.Debug().Str("key", key).Msg("fetch")

	return m.wrapper.fetcher.Fetch(ctx, key, producer, buildConfig(base, opts)), nil
}
