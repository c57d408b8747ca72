package fluid

import (
	"context"
	"fmt"
	"io"
	"reflect"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// cleanup releases singletons assignable to typ when the container stops.
type cleanup struct {
	typ reflect.Type
	fn  func(any)
}

// WithCleanupFunc registers a function that releases singletons of type T
// when the container stops. It takes precedence over io.Closer. Child
// containers inherit it.
func WithCleanupFunc[T any](fn func(T)) Option {
	return func(c *Container) {
		c.cleanups = append(c.cleanups, cleanup{
			typ: typeOf[T](),
			fn: func(v any) {
				fn(v.(T))
			},
		})
	}
}

// Start prepares the container for use: it verifies the binding graph when
// Config.VerifyOnStart is set, constructs the eager singletons concurrently
// and runs the validators. Calling Start again is a no-op once it has
// succeeded.
func (c *Container) Start(ctx context.Context) error {
	if c.stopped.Load() {
		return &ResolutionError{Kind: ErrStopped, Message: "start"}
	}
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}

	err := c.start(ctx)
	if err != nil {
		c.started.Store(false)
		c.logger.Warn("container start failed", zap.Error(err))
		return err
	}
	c.logger.Debug("container started")
	return nil
}

func (c *Container) start(ctx context.Context) error {
	if c.cfg.VerifyOnStart {
		if err := c.Verify(); err != nil {
			return err
		}
	}
	if err := c.resolveEager(ctx); err != nil {
		return err
	}
	return c.runValidators(ctx)
}

// Stop tears the container down. Its children are stopped first, then the
// singletons it owns are released, most recently constructed first: through
// a matching cleanup function or, failing that, io.Closer. Resolutions
// through the container fail with ErrStopped afterwards.
//
// Stop does not wait for resolutions in flight. They complete, but what they
// construct is not cached and not released.
func (c *Container) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped.Swap(true) {
		c.mu.Unlock()
		return nil
	}
	children := c.children
	c.children = nil
	c.mu.Unlock()

	var err error
	for child := range children {
		err = multierr.Append(err, child.Stop(ctx))
	}
	if c.parent != nil {
		c.parent.forget(c)
	}

	released := c.cache.close()
	for i, v := range released {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = multierr.Append(err, fmt.Errorf("%d components not released: %w", len(released)-i, ctxErr))
			break
		}
		err = multierr.Append(err, c.release(v))
	}

	c.logger.Debug("container stopped",
		zap.Int("children", len(children)),
		zap.Int("released", len(released)),
		zap.Error(err))
	return err
}

// Stopped reports whether Stop was called on the container or an ancestor.
func (c *Container) Stopped() bool {
	return c.stopped.Load()
}

func (c *Container) forget(child *Container) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.children, child)
}

func (c *Container) release(v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("releasing %T: panic: %v", v, r)
			c.logger.Error("panic releasing component", zap.String("type", fmt.Sprintf("%T", v)), zap.Any("panic", r))
		}
	}()

	t := reflect.TypeOf(v)
	for _, cl := range c.cleanups {
		if t.AssignableTo(cl.typ) {
			cl.fn(v)
			return nil
		}
	}
	if closer, ok := v.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.logger.Warn("closing component failed", zap.Stringer("type", t), zap.Error(err))
			return fmt.Errorf("closing %v: %w", t, err)
		}
	}
	return nil
}
