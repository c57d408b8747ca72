package fluid

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Registry is the binding surface of a container.
type Registry interface {
	// Bind registers a binding. It fails if one of the binding's APIs is
	// already bound in this registry, if the source cannot be instantiated,
	// or if the implementation does not satisfy a declared API.
	Bind(src *Source, opts ...BindOption) error

	// BindGroup registers each source as a member of the group of api.
	BindGroup(api reflect.Type, srcs ...*Source) error
}

// ComponentResolver is the query surface of a container.
type ComponentResolver interface {
	// Lookup resolves api in the component context cc. found is false when
	// nothing in the container hierarchy binds api.
	Lookup(ctx context.Context, api reflect.Type, cc ComponentContext) (v any, found bool, err error)

	// GetComponent resolves api, returning nil when it is not bound.
	GetComponent(ctx context.Context, api reflect.Type, cc ComponentContext) (any, error)

	// ComponentGroup resolves every member of the group of api.
	ComponentGroup(ctx context.Context, api reflect.Type, cc ComponentContext) ([]any, error)

	// MakeNested creates a child container configured by setup.
	MakeNested(setup func(Registry) error, opts ...Option) (*Container, error)
}

// Container is a registry of bindings plus the cache of the components it
// owns. A child container resolves its own bindings first and delegates
// everything else to its parent. Every container binds itself, so asking
// for *Container, ComponentResolver or Registry yields the container asked.
//
// Containers are safe for concurrent use. Bindings are expected to be in
// place before the components that need them are resolved.
type Container struct {
	parent   *Container
	reg      registry
	cache    *componentCache
	cfg      Config
	logger   *zap.Logger
	observer Observer
	cleanups []cleanup

	validators []any

	mu       sync.Mutex
	children map[*Container]struct{}

	started atomic.Bool
	stopped atomic.Bool
}

// Option configures a Container.
type Option func(*Container)

// WithConfig replaces the container's configuration.
func WithConfig(cfg Config) Option {
	return func(c *Container) {
		c.cfg = cfg
	}
}

// WithLogger sets the logger of the container. The package logger is used
// otherwise.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver sets the resolution observer. Use Observers to combine
// several. The observer hears about every resolution made through the
// container, including those it delegates to its ancestors, and about
// nothing queried through its children unless they inherit it.
func WithObserver(o Observer) Option {
	return func(c *Container) {
		c.observer = o
	}
}

// New creates a root container.
func New(opts ...Option) *Container {
	c := &Container{
		cfg:    DefaultConfig(),
		logger: Logger(),
	}
	return c.init(opts)
}

// NewChild creates a container that delegates unresolved lookups to c. The
// child starts from c's configuration, logger, observer and cleanup
// functions; opts may override them. The child is stopped along with c.
func (c *Container) NewChild(opts ...Option) *Container {
	child := &Container{
		parent:   c,
		cfg:      c.cfg,
		logger:   c.logger,
		observer: c.observer,
		cleanups: append([]cleanup(nil), c.cleanups...),
	}
	child.init(opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped.Load() {
		child.stopped.Store(true)
		return child
	}
	if c.children == nil {
		c.children = map[*Container]struct{}{}
	}
	c.children[child] = struct{}{}
	return child
}

func (c *Container) init(opts []Option) *Container {
	for _, opt := range opts {
		opt(c)
	}
	c.cache = newComponentCache(c.cfg.ConstructionWait)

	self, err := newBinding(Instance(c), []BindOption{
		As[*Container](),
		As[ComponentResolver](),
		As[Registry](),
		Named("container"),
	})
	if err == nil {
		err = c.reg.add(self)
	}
	if err != nil {
		// Only reachable through a broken Container type.
		panic(err)
	}
	return c
}

// MakeNested creates a child container and lets setup register its
// bindings. If setup fails the child is discarded.
func (c *Container) MakeNested(setup func(Registry) error, opts ...Option) (*Container, error) {
	child := c.NewChild(opts...)
	if setup == nil {
		return child, nil
	}
	if err := setup(child); err != nil {
		_ = child.Stop(context.Background())
		return nil, err
	}
	return child, nil
}

// Parent returns the parent container, or nil for a root.
func (c *Container) Parent() *Container {
	return c.parent
}

// Bind registers a binding in this container.
func (c *Container) Bind(src *Source, opts ...BindOption) error {
	if c.stopped.Load() {
		return &BindingError{Kind: ErrStopped, Message: "bind"}
	}
	b, err := newBinding(src, opts)
	if err != nil {
		return err
	}
	if err := c.reg.add(b); err != nil {
		return err
	}
	c.logger.Debug("bound component",
		zap.Stringer("binding", b),
		zap.Stringer("scope", b.scope),
		zap.Int("apis", len(b.apis)),
		zap.Int("groups", len(b.groups)))
	return nil
}

// BindGroup registers each source as an unscoped member of the group of
// api. Use Bind with MemberOf for scoped members.
func (c *Container) BindGroup(api reflect.Type, srcs ...*Source) error {
	for _, src := range srcs {
		if err := c.Bind(src, memberOfType(api)); err != nil {
			return err
		}
	}
	return nil
}

func memberOfType(api reflect.Type) BindOption {
	return func(s *bindSpec) {
		s.groups = append(s.groups, api)
	}
}

// Lookup resolves api in the component context cc.
func (c *Container) Lookup(ctx context.Context, api reflect.Type, cc ComponentContext) (any, bool, error) {
	if api == nil {
		return nil, false, nil
	}
	v, found, err := c.resolve(withGraph(withRequester(ctx, c)), api, cc)
	if err != nil {
		return nil, found, err
	}
	return v, found, nil
}

// GetComponent resolves api, returning nil without an error when nothing
// binds it. A deferred binding yields its *Handle.
func (c *Container) GetComponent(ctx context.Context, api reflect.Type, cc ComponentContext) (any, error) {
	v, _, err := c.Lookup(ctx, api, cc)
	return v, err
}

// ComponentGroup resolves every member of the group of api, ancestors'
// members first. An empty group is not an error. Deferred members are
// returned as their *Handle values.
func (c *Container) ComponentGroup(ctx context.Context, api reflect.Type, cc ComponentContext) ([]any, error) {
	if c.stopped.Load() {
		return nil, chainError(ctx, ErrStopped, api, "", nil)
	}
	return c.group(withGraph(withRequester(ctx, c)), api, cc)
}
