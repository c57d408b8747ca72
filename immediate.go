package fluid

import (
	"context"
	"fmt"

	"github.com/gburgyan/go-timing"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// resolveEager constructs every eager singleton bound in the container, each
// on its own goroutine. Singletons shared by several eager bindings are
// still built once: whoever reaches the cache key first builds it and the
// others wait.
//
// The first failure cancels the remaining constructions and is returned.
func (c *Container) resolveEager(ctx context.Context) error {
	if EnableTiming == TimingImmediate {
		timingCtx, complete := timing.Start(ctx, "eager")
		defer complete()
		ctx = timingCtx
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range c.reg.list() {
		if !b.eager {
			continue
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic resolving eager %v: %v", b, r)
				}
				if err != nil {
					c.logger.Warn("eager resolution failed", zap.Stringer("binding", b), zap.Error(err))
				}
			}()
			_, err = c.resolveBinding(withGraph(gctx), b, b.primaryAPI(), EmptyContext, true)
			return err
		})
	}
	return g.Wait()
}
