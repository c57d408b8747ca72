package fluid

//go:generate mockgen -destination=mocks/observer_mock.go -package=mocks -source=observer.go

import (
	"context"
	"reflect"

	"go.uber.org/zap"
)

// Observer is notified of resolutions, for diagnostics. Observers cannot
// influence the outcome: a panicking observer is logged and ignored.
type Observer interface {
	// Resolving is called once per successful resolution with the chain
	// that led to it and the type of what was produced.
	Resolving(path Path, resolved reflect.Type)

	// Instantiated is called when a new instance has been constructed,
	// including its field injections.
	Instantiated(path Path)
}

type observers []Observer

// Observers combines several observers into one that notifies each of
// them in order. Nil observers are skipped.
func Observers(obs ...Observer) Observer {
	var all observers
	for _, o := range obs {
		if o != nil {
			all = append(all, o)
		}
	}
	if len(all) == 0 {
		return nil
	}
	return all
}

func (o observers) Resolving(path Path, resolved reflect.Type) {
	for _, ob := range o {
		ob.Resolving(path, resolved)
	}
}

func (o observers) Instantiated(path Path) {
	for _, ob := range o {
		ob.Instantiated(path)
	}
}

type requester int

const requesterKey requester = 0

// withRequester records c as the container a query was made through. A
// query nested in another keeps the outer one's container.
func withRequester(ctx context.Context, c *Container) context.Context {
	if _, ok := ctx.Value(requesterKey).(*Container); ok {
		return ctx
	}
	return context.WithValue(ctx, requesterKey, c)
}

// notified returns the container whose observer hears about resolutions
// made on behalf of ctx: the container queried, falling back to c for
// resolutions that no query started.
func (c *Container) notified(ctx context.Context) *Container {
	if r, ok := ctx.Value(requesterKey).(*Container); ok {
		return r
	}
	return c
}

func (c *Container) notifyResolving(ctx context.Context, path Path, resolved reflect.Type) {
	target := c.notified(ctx)
	if target.observer == nil {
		return
	}
	defer target.recoverObserver("resolving", path)
	target.observer.Resolving(path, resolved)
}

func (c *Container) notifyInstantiated(ctx context.Context, path Path) {
	target := c.notified(ctx)
	if target.observer == nil {
		return
	}
	defer target.recoverObserver("instantiated", path)
	target.observer.Instantiated(path)
}

func (c *Container) recoverObserver(event string, path Path) {
	if r := recover(); r != nil {
		c.logger.Error("observer panicked",
			zap.String("event", event),
			zap.Stringer("api", path.Last().API),
			zap.Any("panic", r))
	}
}
