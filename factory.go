package fluid

import (
	"context"
	"sync"
)

// Factory binds a function that produces the component on request. It
// takes dependencies like a constructor, and may also take a *Resolution to
// learn the requested API, the filtered context and whether it is being
// re-entered through a dependency cycle.
//
// Factories are the indirection that absorbs cycles: when a cycle reaches a
// factory binding it is invoked with Resolution.Circular set instead of
// failing, and can return a stand-in built from Lazy parameters.
//
// Unscoped factory products are shared within one top-level resolution, so
// sibling dependents of the same product see one instance:
//
//	type Connection struct{ DSN string }
//
//	func connect(r *fluid.Resolution, cfg *Config) (*Connection, error) {
//	    return &Connection{DSN: cfg.DSN}, nil
//	}
//
//	err := c.Bind(fluid.Factory(connect))
func Factory(fn any, deps ...Dependency) *Source {
	return &Source{kind: sourceFactory, fn: fn, deps: deps}
}

type graph int

const graphKey graph = 0

// resolutionGraph memoizes unscoped factory products for one top-level
// resolution.
type resolutionGraph struct {
	mu       sync.Mutex
	products map[string]any
}

// withGraph starts a resolution graph unless ctx already carries one.
func withGraph(ctx context.Context) context.Context {
	if graphFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, graphKey, &resolutionGraph{products: map[string]any{}})
}

func graphFrom(ctx context.Context) *resolutionGraph {
	g, _ := ctx.Value(graphKey).(*resolutionGraph)
	return g
}

func (g *resolutionGraph) memoize(key string, build func() (any, error)) (any, error) {
	if g == nil {
		return build()
	}
	g.mu.Lock()
	v, ok := g.products[key]
	g.mu.Unlock()
	if ok {
		return v, nil
	}

	// The lock is not held while building: the product's own dependencies
	// may be factory products of the same graph.
	v, err := build()
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.products[key]; ok {
		return existing, nil
	}
	g.products[key] = v
	return v, nil
}
