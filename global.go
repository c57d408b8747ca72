package fluid

import (
	"context"
	"fmt"

	"github.com/gburgyan/go-timing"
)

type TimingMode int

const (
	// TimingDisable will disable timing for all containers.
	TimingDisable TimingMode = iota

	// TimingImmediate will start a new timing context for the eager
	// construction that happens when a container starts.
	TimingImmediate

	// TimingConstructors will start a timing context for each constructor or
	// factory that is called. This is useful to see where time is spent
	// during resolution, and the timing tree mirrors the dependency graph.
	TimingConstructors
)

var EnableTiming = TimingDisable

func (c *Container) startTiming(ctx context.Context, b *binding) (context.Context, func()) {
	if EnableTiming != TimingConstructors {
		return ctx, func() {}
	}
	timingCtx, complete := timing.Start(ctx, b.String())
	return timingCtx, complete
}

// Bind registers src as the implementation of T.
func Bind[T any](r Registry, src *Source, opts ...BindOption) error {
	return r.Bind(src, append([]BindOption{As[T]()}, opts...)...)
}

// Get behaves like GetWithError except it panics if T cannot be resolved.
func Get[T any](ctx context.Context, r ComponentResolver, md ...Metadata) T {
	v, err := GetWithError[T](ctx, r, md...)
	if err != nil {
		panic(err)
	}
	return v
}

// GetWithError resolves T in the component context made of md. A T that is
// bound as deferred is forced, unless T is *Handle itself.
func GetWithError[T any](ctx context.Context, r ComponentResolver, md ...Metadata) (T, error) {
	v, found, err := GetOptional[T](ctx, r, md...)
	if err == nil && !found {
		err = &ResolutionError{Kind: ErrNotBound, Type: typeOf[T]()}
	}
	return v, err
}

// GetOptional resolves T like GetWithError, reporting with found whether
// anything binds T instead of failing.
func GetOptional[T any](ctx context.Context, r ComponentResolver, md ...Metadata) (v T, found bool, err error) {
	api := typeOf[T]()
	raw, found, err := r.Lookup(ctx, api, NewContext(md...))
	if err != nil || !found {
		return v, found, err
	}
	rv, err := assignable(ctx, raw, api)
	if err != nil {
		return v, true, err
	}
	v, _ = rv.Interface().(T)
	return v, true, nil
}

// GetGroup resolves every member of the group of T, ancestors' members
// first.
func GetGroup[T any](ctx context.Context, r ComponentResolver, md ...Metadata) ([]T, error) {
	members, err := r.ComponentGroup(ctx, typeOf[T](), NewContext(md...))
	if err != nil {
		return nil, err
	}
	return groupOf[T](ctx, members)
}

// GetLazy returns a handle to T without constructing it.
func GetLazy[T any](ctx context.Context, c *Container, md ...Metadata) (Lazy[T], error) {
	api := typeOf[T]()
	d, found, err := c.lazy(withRequester(ctx, c), api, NewContext(md...))
	if err != nil {
		return Lazy[T]{}, err
	}
	if !found {
		return Lazy[T]{}, &ResolutionError{Kind: ErrNotBound, Type: api, Message: fmt.Sprintf("lazy %v", api)}
	}
	return Lazy[T]{handle: d}, nil
}
