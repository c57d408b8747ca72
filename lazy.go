package fluid

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
)

// Handle is a lazy handle to a component. The component, along with all
// of its own dependencies, is constructed when the handle is first forced;
// concurrent forcers share that single construction. A construction that
// fails leaves the handle unresolved so it can be forced again.
type Handle struct {
	bindingID uint64
	api       reflect.Type
	build     func(ctx context.Context) (any, error)

	// latch admits one forcer at a time.
	latch    chan struct{}
	resolved atomic.Bool
	value    any
}

func newDeferred(bindingID uint64, api reflect.Type, build func(ctx context.Context) (any, error)) *Handle {
	return &Handle{
		bindingID: bindingID,
		api:       api,
		build:     build,
		latch:     make(chan struct{}, 1),
	}
}

// resolvedDeferred wraps an already available component.
func resolvedDeferred(api reflect.Type, v any) *Handle {
	d := newDeferred(0, api, nil)
	d.value = v
	d.resolved.Store(true)
	return d
}

// API returns the type the handle was requested as.
func (d *Handle) API() reflect.Type {
	return d.api
}

// Resolved reports whether the component has been constructed.
func (d *Handle) Resolved() bool {
	return d.resolved.Load()
}

// Get forces the handle and returns the component. Waiting for another
// forcer honours ctx.
func (d *Handle) Get(ctx context.Context) (any, error) {
	if d.resolved.Load() {
		return d.value, nil
	}
	if d.bindingID != 0 && chainFrom(ctx).find(d.bindingID, d.api) != nil {
		// Forced from within its own construction.
		return nil, chainError(ctx, ErrCircular, d.api, "deferred component forced during its construction", nil)
	}

	select {
	case d.latch <- struct{}{}:
	case <-ctx.Done():
		return nil, chainError(ctx, ErrWaitTimeout, d.api, "deferred component", ctx.Err())
	}
	defer func() { <-d.latch }()

	if d.resolved.Load() {
		return d.value, nil
	}
	v, err := d.build(ctx)
	if err != nil {
		return nil, err
	}
	d.value = v
	d.resolved.Store(true)
	return v, nil
}

// lazyParam is implemented by Lazy[T] so constructors can declare lazy
// parameters.
type lazyParam interface {
	lazyTarget() reflect.Type
	wrapHandle(d *Handle) reflect.Value
}

// Lazy is a typed lazy handle. Declaring a Lazy[T] constructor parameter
// requests T without constructing it, which also breaks dependency cycles.
// The zero Lazy is absent: an optional dependency that was not bound.
type Lazy[T any] struct {
	handle *Handle
}

func (Lazy[T]) lazyTarget() reflect.Type {
	return typeOf[T]()
}

func (Lazy[T]) wrapHandle(d *Handle) reflect.Value {
	return reflect.ValueOf(Lazy[T]{handle: d})
}

// Present reports whether the handle refers to a component.
func (l Lazy[T]) Present() bool {
	return l.handle != nil
}

// Resolved reports whether the component has been constructed.
func (l Lazy[T]) Resolved() bool {
	return l.handle != nil && l.handle.Resolved()
}

// Get forces the handle.
func (l Lazy[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if l.handle == nil {
		return zero, &ResolutionError{Kind: ErrNotBound, Type: typeOf[T](), Message: "absent lazy dependency"}
	}
	v, err := l.handle.Get(ctx)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, &ResolutionError{Kind: ErrConstruction, Type: typeOf[T](), Message: fmt.Sprintf("deferred component is %T", v)}
	}
	return typed, nil
}

// MustGet is like Get but panics on failure.
func (l Lazy[T]) MustGet(ctx context.Context) T {
	v, err := l.Get(ctx)
	if err != nil {
		panic(err)
	}
	return v
}

// groupParam is implemented by Group[T] so constructors can declare group
// parameters.
type groupParam interface {
	groupAPI() reflect.Type
	fromMembers(ctx context.Context, members []any) (reflect.Value, error)
}

// Group is a constructor parameter receiving every member of the group of
// T, ancestors' members first. An empty group is valid.
type Group[T any] []T

func (Group[T]) groupAPI() reflect.Type {
	return typeOf[T]()
}

func (Group[T]) fromMembers(ctx context.Context, members []any) (reflect.Value, error) {
	typed, err := groupOf[T](ctx, members)
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(Group[T](typed)), nil
}

func groupOf[T any](ctx context.Context, members []any) ([]T, error) {
	api := typeOf[T]()
	typed := make([]T, 0, len(members))
	for _, m := range members {
		v, err := assignable(ctx, m, api)
		if err != nil {
			return nil, err
		}
		member, _ := v.Interface().(T)
		typed = append(typed, member)
	}
	return typed, nil
}

// Resolution describes the request a factory is invoked for.
type Resolution struct {
	// API is the requested type.
	API reflect.Type
	// Context is the factory binding's filtered context.
	Context ComponentContext
	// Circular is set when the factory is re-entered through a dependency
	// cycle. Its component parameters are zero in that case.
	Circular bool
	// Path is the reference chain leading to the request.
	Path Path
}
