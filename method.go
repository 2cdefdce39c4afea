package fetcher

import (
	"context"
	"fmt"
	"math"
	"reflect"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Descriptor declares one callable member of a source object.
// Arity counts declared parameters, a leading context.Context excluded.
type Descriptor struct {
	Name  string
	Arity int
}

// binding is a function value captured from a source, together with how to invoke it.
type binding struct {
	name       string
	fn         reflect.Value
	withCtx    bool
	params     []reflect.Type
	variadic   bool
	arity      int
	resultKind []reflect.Type
}

func newBinding(name string, fn reflect.Value) *binding {
	ft := fn.Type()
	b := &binding{name: name, fn: fn, variadic: ft.IsVariadic()}

	start := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		b.withCtx = true
		start = 1
	}

	for i := start; i < ft.NumIn(); i++ {
		b.params = append(b.params, ft.In(i))
	}
	b.arity = len(b.params)

	for i := 0; i < ft.NumOut(); i++ {
		b.resultKind = append(b.resultKind, ft.Out(i))
	}

	return b
}

// discover collects the bindings of every exported function member of source.
// Methods come first in reflect order, followed by func-typed struct fields in declaration order,
// methods promoted from embedded structs included. A name seen once is never bound again.
func discover(source any) []*binding {
	if source == nil {
		return nil
	}

	v := reflect.ValueOf(source)
	seen := make(map[string]struct{})
	var out []*binding

	add := func(name string, fn reflect.Value) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, newBinding(name, fn))
	}

	// Method values returned by reflect are already bound to the receiver.
	for i := 0; i < v.NumMethod(); i++ {
		add(v.Type().Method(i).Name, v.Method(i))
	}

	sv := v
	for sv.Kind() == reflect.Pointer || sv.Kind() == reflect.Interface {
		if sv.IsNil() {
			return out
		}
		sv = sv.Elem()
	}

	if sv.Kind() != reflect.Struct {
		return out
	}

	for _, field := range reflect.VisibleFields(sv.Type()) {
		if !field.IsExported() || field.Type.Kind() != reflect.Func {
			continue
		}

		fv, err := sv.FieldByIndexErr(field.Index)
		if err != nil || fv.IsNil() || !fv.CanInterface() {
			continue
		}
		add(field.Name, fv)
	}

	return out
}

// invoke calls the bound function with the arguments read from supply, if any,
// and normalizes whatever it returns into a Deferred.
// Panics raised while reading the arguments or running the function are recovered into a rejection.
func (b *binding) invoke(ctx context.Context, supply ArgsSupplier) (d *Deferred) {
	defer func() {
		if r := recover(); r != nil {
			d = Rejected(fmt.Errorf("%w: %s: %v", ErrProducerPanic, b.name, r))
		}
	}()

	var args []any
	if supply != nil {
		args = supply()
	}

	in, err := b.arguments(ctx, args)
	if err != nil {
		return Rejected(err)
	}

	return b.normalize(b.fn.Call(in))
}

func (b *binding) arguments(ctx context.Context, args []any) ([]reflect.Value, error) {
	fixed := b.arity
	if b.variadic {
		fixed--
	}

	if len(args) < fixed || (!b.variadic && len(args) > fixed) {
		return nil, fmt.Errorf("%w: %s expects %d, got %d", ErrArgumentCount, b.name, b.arity, len(args))
	}

	in := make([]reflect.Value, 0, len(args)+1)
	if b.withCtx {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}

	for i, arg := range args {
		var pt reflect.Type
		if b.variadic && i >= fixed {
			pt = b.params[fixed].Elem()
		} else {
			pt = b.params[i]
		}

		av, err := convert(arg, pt)
		if err != nil {
			return nil, fmt.Errorf("%w: %s argument %d: %v", ErrArgumentType, b.name, i, err)
		}
		in = append(in, av)
	}

	return in, nil
}

func convert(arg any, to reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch to.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(to), nil
		default:
			return reflect.Value{}, fmt.Errorf("nil is not assignable to %s", to)
		}
	}

	av := reflect.ValueOf(arg)
	switch {
	case av.Type().AssignableTo(to):
		return av, nil
	case isNumber(av.Kind()) && isNumber(to.Kind()):
		return convertNumber(av, to)
	case av.Kind() == reflect.String && to.Kind() == reflect.String:
		return av.Convert(to), nil
	case av.Type().ConvertibleTo(to) && av.Kind() != reflect.String && to.Kind() != reflect.String:
		return av.Convert(to), nil
	default:
		return reflect.Value{}, fmt.Errorf("%s is not assignable to %s", av.Type(), to)
	}
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// convertNumber converts between numeric kinds only when the value survives unchanged.
// The cache key records the value as supplied, so a narrowed or truncated argument would
// make the call compute something other than what its key names.
func convertNumber(av reflect.Value, to reflect.Type) (reflect.Value, error) {
	target := reflect.Zero(to)
	lossy := false

	switch av.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v := av.Int()
		switch {
		case target.CanInt():
			lossy = target.OverflowInt(v)
		case target.CanUint():
			lossy = v < 0 || target.OverflowUint(uint64(v))
		default:
			lossy = target.OverflowFloat(float64(v))
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		v := av.Uint()
		switch {
		case target.CanInt():
			lossy = v > math.MaxInt64 || target.OverflowInt(int64(v))
		case target.CanUint():
			lossy = target.OverflowUint(v)
		default:
			lossy = target.OverflowFloat(float64(v))
		}
	default:
		v := av.Float()
		switch {
		case target.CanInt():
			lossy = v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 || target.OverflowInt(int64(v))
		case target.CanUint():
			lossy = v != math.Trunc(v) || v < 0 || v >= math.MaxUint64 || target.OverflowUint(uint64(v))
		default:
			lossy = target.OverflowFloat(v)
		}
	}

	if lossy {
		return reflect.Value{}, fmt.Errorf("%v does not fit %s", av.Interface(), to)
	}

	return av.Convert(to), nil
}

// normalize maps the returned values onto a Deferred.
// A trailing non-nil error rejects, a single *Deferred or Immediate passes through Normalize,
// and several values resolve as a []any.
func (b *binding) normalize(out []reflect.Value) *Deferred {
	if n := len(out); n > 0 && b.resultKind[n-1] == errorType {
		if errV := out[n-1]; !errV.IsNil() {
			return Rejected(errV.Interface().(error))
		}
		out = out[:n-1]
	}

	switch len(out) {
	case 0:
		return Resolved(nil)
	case 1:
		return Normalize(out[0].Interface())
	default:
		values := make([]any, len(out))
		for i, v := range out {
			values[i] = v.Interface()
		}
		return Resolved(values)
	}
}
