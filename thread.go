package fluid

import (
	"context"
	"sync"
	"sync/atomic"
)

type thread int

const threadKey thread = 0

var threadIDs atomic.Uint64

// Thread is the identity that thread-local components are partitioned by.
// Go has no addressable thread identity, so a logical thread is attached to
// a context.Context with WithThread and travels down the calls that share
// it.
type Thread struct {
	id uint64

	mu     sync.Mutex
	caches map[*componentCache]struct{}
	ended  bool
}

// WithThread returns a context carrying a new Thread. Thread-local
// components resolved with the returned context are private to it.
func WithThread(ctx context.Context) (context.Context, *Thread) {
	t := &Thread{
		id:     threadIDs.Add(1),
		caches: map[*componentCache]struct{}{},
	}
	return context.WithValue(ctx, threadKey, t), t
}

// ThreadFrom returns the Thread carried by ctx, if any.
func ThreadFrom(ctx context.Context) *Thread {
	t, _ := ctx.Value(threadKey).(*Thread)
	return t
}

// ID returns the thread's identifier. Identifiers are never reused.
func (t *Thread) ID() uint64 {
	return t.id
}

// attach records that cc holds a partition for this thread. It returns false
// once the thread has ended.
func (t *Thread) attach(cc *componentCache) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return false
	}
	t.caches[cc] = struct{}{}
	return true
}

// End discards every thread-local component created for the thread. Later
// thread-local resolutions through it fail with ErrThreadEnded.
func (t *Thread) End() {
	t.mu.Lock()
	caches := t.caches
	t.caches = nil
	t.ended = true
	t.mu.Unlock()

	for cc := range caches {
		cc.dropPartition(t.id)
	}
}

// Ended reports whether End was called.
func (t *Thread) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}
