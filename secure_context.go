package fluid

import (
	"context"
	"time"
)

// secureContext is the context a deferred handle resolves with. Values come
// from the baseContext, captured when the handle was created, while
// cancellation and the per-call state (reference chain, thread and
// resolution graph) come from the innerContext of whoever forces the handle.
//
// This keeps a handle forced on another goroutine from seeing the chain of
// the call that created it.
type secureContext struct {
	baseContext  context.Context
	innerContext context.Context
}

func (h *secureContext) Deadline() (deadline time.Time, ok bool) {
	return h.innerContext.Deadline()
}

func (h *secureContext) Done() <-chan struct{} {
	return h.innerContext.Done()
}

func (h *secureContext) Err() error {
	return h.innerContext.Err()
}

func (h *secureContext) Value(key any) any {
	switch key {
	case chainKey, threadKey, graphKey:
		return h.innerContext.Value(key)
	}
	return h.baseContext.Value(key)
}
