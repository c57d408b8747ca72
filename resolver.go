package fluid

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

// lookupBinding finds the binding of api in c or, failing that, the nearest
// ancestor. It returns the container owning the binding.
func (c *Container) lookupBinding(api reflect.Type) (*Container, *binding) {
	for cur := c; cur != nil; cur = cur.parent {
		if b, ok := cur.reg.lookup(api); ok {
			return cur, b
		}
	}
	return nil, nil
}

// resolve produces a component for api in the component context cc. found
// is false when no container in the hierarchy binds api.
func (c *Container) resolve(ctx context.Context, api reflect.Type, cc ComponentContext) (any, bool, error) {
	owner, b := c.lookupBinding(api)
	if b == nil {
		return nil, false, nil
	}
	if c.stopped.Load() {
		return nil, true, chainError(ctx, ErrStopped, api, "", nil)
	}
	v, err := owner.resolveBinding(ctx, b, api, cc, false)
	return v, true, err
}

// resolveBinding runs one resolution of b for api. A binding is always
// resolved by the container that owns it, so its dependencies and cache
// are that container's. force constructs deferred bindings instead of
// handing out a handle.
func (c *Container) resolveBinding(ctx context.Context, b *binding, api reflect.Type, cc ComponentContext, force bool) (any, error) {
	if c.stopped.Load() {
		return nil, chainError(ctx, ErrStopped, api, "", nil)
	}
	filtered := cc.Filter(b.accepts)

	return nested(ctx, b, api, func(ctx context.Context, node *chainNode, prior *chainNode) (any, error) {
		var v any
		var err error
		switch {
		case prior != nil:
			v, err = c.circular(ctx, node, prior, b, api, filtered)
		case b.scope&Deferred != 0 && !force:
			v = c.deferred(ctx, b, api, filtered)
		default:
			v, err = c.instantiate(ctx, node, b, filtered)
		}
		if err != nil {
			return nil, err
		}
		c.notifyResolving(ctx, node.path(), reflect.TypeOf(v))
		return v, nil
	})
}

// circular handles a request that is already in progress further up the
// chain. Only an indirection can satisfy it: the instance of a node that is
// receiving field injections, a deferred handle, or a factory's stand-in.
func (c *Container) circular(ctx context.Context, node, prior *chainNode, b *binding, api reflect.Type, filtered ComponentContext) (any, error) {
	if v, ok := prior.injecting(); ok {
		return v, nil
	}
	switch {
	case b.scope&Deferred != 0:
		return c.deferred(ctx, b, api, filtered), nil
	case b.source.kind == sourceFactory:
		return c.construct(ctx, node, b, filtered, true)
	}
	return nil, chainError(ctx, ErrCircular, api, fmt.Sprintf("%v", b), nil)
}

// instantiate returns the instance of b for its scope, constructing it if
// the scope has none yet.
func (c *Container) instantiate(ctx context.Context, node *chainNode, b *binding, filtered ComponentContext) (any, error) {
	if b.source.kind == sourceInstance {
		// Bound instances are owned by whoever bound them.
		return b.source.value, nil
	}
	key := b.cacheKey(filtered)
	build := func() (any, error) {
		return c.construct(ctx, node, b, filtered, false)
	}

	switch {
	case b.scope&Singleton != 0:
		return c.memoized(ctx, node, b, slot{part: sharedPartition, key: key, owner: node}, build)
	case b.scope&ThreadLocal != 0:
		s := slot{part: sharedPartition, key: key, owner: node}
		if t := ThreadFrom(ctx); t != nil {
			if !t.attach(c.cache) {
				return nil, chainError(ctx, ErrThreadEnded, node.link.API, fmt.Sprintf("thread %d", t.ID()), nil)
			}
			s.part = t.ID()
			s.thread = t
		}
		return c.memoized(ctx, node, b, s, build)
	case b.source.kind == sourceFactory:
		return graphFrom(ctx).memoize(key, build)
	}
	return build()
}

func (c *Container) memoized(ctx context.Context, node *chainNode, b *binding, s slot, build func() (any, error)) (any, error) {
	if v, ok := c.cache.load(s.part, s.key); ok {
		return v, nil
	}

	// The binding may already be under construction on this call path,
	// requested through another of its APIs. Its key is locked by us, so
	// waiting for it would never return.
	for cur := node.parent; cur != nil; cur = cur.parent {
		if cur.link.BindingID != b.id || cur.key != s.key {
			continue
		}
		if v, ok := cur.injecting(); ok {
			return v, nil
		}
		return nil, chainError(ctx, ErrCircular, node.link.API, fmt.Sprintf("%v re-entered as %v", b, cur.link.API), nil)
	}
	node.key = s.key

	v, err := c.cache.memoize(ctx, s, build)
	var we *waitError
	if errors.As(err, &we) {
		if errors.Is(we.cause, errWaitCycle) {
			return nil, chainError(ctx, ErrCircular, node.link.API, fmt.Sprintf("%v awaits a resolution that awaits it", b), nil)
		}
		cause := we.cause
		if errors.Is(cause, ErrWaitTimeout) {
			cause = nil
		}
		return nil, chainError(ctx, ErrWaitTimeout, node.link.API, fmt.Sprintf("%v", b), cause)
	}
	return v, err
}

// construct builds a new instance of b. When circular is set the binding is
// a factory re-entered through a cycle and the product is a stand-in.
func (c *Container) construct(ctx context.Context, node *chainNode, b *binding, filtered ComponentContext, circular bool) (any, error) {
	var v any
	var err error
	switch b.source.kind {
	case sourceInstance:
		return b.source.value, nil
	case sourceConcrete:
		v = reflect.New(b.impl.Elem()).Interface()
	default:
		timed, complete := c.startTiming(ctx, b)
		v, err = c.invoke(timed, node, b, filtered, circular)
		complete()
		if err != nil {
			return nil, err
		}
	}

	if !circular {
		if err := c.injectFields(ctx, node, b, v, filtered); err != nil {
			return nil, err
		}
	}

	c.logger.Debug("constructed component",
		zap.Stringer("binding", b),
		zap.Stringer("api", node.link.API),
		zap.Stringer("scope", b.scope),
		zap.Stringer("context", filtered),
		zap.Bool("circular", circular))
	c.notifyInstantiated(ctx, node.path())
	return v, nil
}

// deferred returns a handle that resolves b when forced. The handle keeps
// the values of ctx but takes its reference chain, thread, resolution graph
// and cancellation from whoever forces it.
func (c *Container) deferred(ctx context.Context, b *binding, api reflect.Type, cc ComponentContext) *Handle {
	captured := ctx
	return newDeferred(b.id, api, func(forcing context.Context) (any, error) {
		sc := &secureContext{baseContext: captured, innerContext: forcing}
		return c.resolveBinding(sc, b, api, cc, true)
	})
}

// lazy returns a handle for api without constructing anything. Singletons
// that already exist are handed out resolved.
func (c *Container) lazy(ctx context.Context, api reflect.Type, cc ComponentContext) (*Handle, bool, error) {
	owner, b := c.lookupBinding(api)
	if b == nil {
		return nil, false, nil
	}
	if c.stopped.Load() || owner.stopped.Load() {
		return nil, true, chainError(ctx, ErrStopped, api, "", nil)
	}
	filtered := cc.Filter(b.accepts)
	if b.scope&Singleton != 0 {
		if v, ok := owner.cache.load(sharedPartition, b.cacheKey(filtered)); ok {
			return resolvedDeferred(api, v), true, nil
		}
	}
	return owner.deferred(ctx, b, api, filtered), true, nil
}

// group resolves every member of the group of api, the root container's
// members first.
func (c *Container) group(ctx context.Context, api reflect.Type, cc ComponentContext) ([]any, error) {
	var lineage []*Container
	for cur := c; cur != nil; cur = cur.parent {
		lineage = append(lineage, cur)
	}

	var members []any
	for i := len(lineage) - 1; i >= 0; i-- {
		owner := lineage[i]
		for _, b := range owner.reg.members(api) {
			v, err := owner.resolveBinding(ctx, b, api, cc, false)
			if err != nil {
				return nil, err
			}
			members = append(members, v)
		}
	}
	return members, nil
}

// chainError builds a ResolutionError carrying the reference chain of ctx.
func chainError(ctx context.Context, kind error, t reflect.Type, msg string, cause error) *ResolutionError {
	return &ResolutionError{
		Kind:        kind,
		Type:        t,
		Chain:       PathFrom(ctx).String(),
		Message:     msg,
		SourceError: cause,
	}
}
