package fluid

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// sharedPartition is the cache partition of singletons, and of thread-local
// components requested without a Thread.
const sharedPartition uint64 = 0

// componentCache memoizes scoped components of one container. Entries are
// keyed by binding identity plus the filtered context, and grouped into
// partitions: the shared one, and one per Thread.
type componentCache struct {
	locks keyLock
	wait  time.Duration

	mu         sync.RWMutex
	partitions map[uint64]map[string]any
	// order records shared entries in publication order so that teardown
	// can release them in reverse.
	order  []any
	closed bool
}

func newComponentCache(wait time.Duration) *componentCache {
	return &componentCache{
		wait:       wait,
		partitions: map[uint64]map[string]any{},
	}
}

func (cc *componentCache) load(part uint64, key string) (any, bool) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	v, ok := cc.partitions[part][key]
	return v, ok
}

// slot addresses one cache entry and the resolution that builds it when it
// is absent.
type slot struct {
	part uint64
	key  string
	// owner is the chain node constructing the entry.
	owner *chainNode
	// thread owns part, unless part is the shared partition.
	thread *Thread
}

func (cc *componentCache) store(s slot, v any) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.closed {
		return
	}
	// End drops the partition under cc.mu after marking the thread, so
	// checking here keeps an ended thread's partition from coming back.
	if s.thread != nil && s.thread.Ended() {
		return
	}
	p, ok := cc.partitions[s.part]
	if !ok {
		p = map[string]any{}
		cc.partitions[s.part] = p
	}
	p[s.key] = v
	if s.part == sharedPartition {
		cc.order = append(cc.order, v)
	}
}

// memoize returns the entry for s, building it if absent. Only one caller
// builds a given key at a time; the others wait for it to publish. A failed
// build publishes nothing and releases the waiters, which then retry.
//
// A waiter that would close a cycle of resolutions waiting for each other
// may instead receive an instance that is still receiving field
// injections, see keyLock.breakCycle. If the key cannot be awaited a
// *waitError is returned.
func (cc *componentCache) memoize(ctx context.Context, s slot, build func() (any, error)) (any, error) {
	if v, ok := cc.load(s.part, s.key); ok {
		return v, nil
	}

	lockKey := strconv.FormatUint(s.part, 10) + "/" + s.key
	unlock, shared, err := cc.locks.lock(ctx, lockKey, s.owner, cc.wait)
	if err != nil {
		return nil, &waitError{key: s.key, cause: err}
	}
	if unlock == nil {
		return shared, nil
	}
	defer unlock()

	// Someone may have published while we were waiting.
	if v, ok := cc.load(s.part, s.key); ok {
		return v, nil
	}

	v, err := build()
	if err != nil {
		return nil, err
	}
	cc.store(s, v)
	return v, nil
}

// dropPartition forgets every entry of a thread partition.
func (cc *componentCache) dropPartition(part uint64) {
	if part == sharedPartition {
		return
	}
	cc.mu.Lock()
	defer cc.mu.Unlock()
	delete(cc.partitions, part)
}

// close empties the cache and returns the shared entries, most recently
// published first. Nothing is stored afterwards.
func (cc *componentCache) close() []any {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.closed = true
	released := make([]any, len(cc.order))
	for i, v := range cc.order {
		released[len(cc.order)-1-i] = v
	}
	cc.order = nil
	cc.partitions = map[uint64]map[string]any{}
	return released
}

func (cc *componentCache) size() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	n := 0
	for _, p := range cc.partitions {
		n += len(p)
	}
	return n
}

// waitError reports that an in-progress construction could not be awaited.
type waitError struct {
	key   string
	cause error
}

func (e *waitError) Error() string {
	return "waiting for " + e.key + ": " + e.cause.Error()
}

func (e *waitError) Unwrap() error {
	return e.cause
}

// errWaitCycle reports resolutions waiting for each other's keys where none
// can be handed an instance to proceed with.
var errWaitCycle = errors.New("resolutions await each other")

// keyLock hands out exclusive per-key locks. Holding the lock for a key is
// the in-progress marker of that key's construction; unrelated keys never
// contend.
type keyLock struct {
	mu   sync.Mutex
	keys map[string]*keyHold
}

// keyHold is a locked key: the chain node constructing it and the
// resolutions waiting for it.
type keyHold struct {
	holder  *chainNode
	waiters []*keyWaiter
}

type keyWaiter struct {
	node *chainNode
	key  string
	ch   chan struct{}
	// shared is the instance handed over when a wait cycle is broken
	// through this waiter.
	shared any
}

// lock acquires the lock for key on behalf of node, waiting while someone
// else holds it. A positive timeout bounds each wait; ctx cancellation
// aborts it.
//
// When the wait is resolved by breaking a wait cycle, lock returns a nil
// unlock function and the instance to use instead of building one.
func (kl *keyLock) lock(ctx context.Context, key string, node *chainNode, timeout time.Duration) (func(), any, error) {
	for {
		kl.mu.Lock()
		if kl.keys == nil {
			kl.keys = make(map[string]*keyHold)
		}
		h, ok := kl.keys[key]
		if !ok {
			kl.keys[key] = &keyHold{holder: node}
			kl.mu.Unlock()
			return func() {
				kl.unlock(key)
			}, nil, nil
		}
		if v, ok, err := kl.breakCycle(node, key); ok || err != nil {
			kl.mu.Unlock()
			return nil, v, err
		}
		// Already locked, add a wait. The waiter is registered before
		// releasing kl.mu so a concurrent unlock cannot be missed.
		w := &keyWaiter{node: node, key: key, ch: make(chan struct{})}
		h.waiters = append(h.waiters, w)
		kl.mu.Unlock()

		err := wait(ctx, w.ch, timeout)

		kl.mu.Lock()
		shared := w.shared
		if shared == nil && err != nil {
			kl.dropWaiter(w)
		}
		kl.mu.Unlock()
		if shared != nil {
			return nil, shared, nil
		}
		if err != nil {
			return nil, nil, err
		}
		// Retry after waiting
	}
}

// breakCycle checks whether node waiting for key would close a cycle of
// resolutions, each holding a key the next one waits for. Such a cycle is
// broken the way a cycle on one call path is: a waiter whose key holder is
// receiving field injections gets the holder's instance. That waiter is
// node itself when ok is true; otherwise it is woken with the instance and
// node waits as usual. errWaitCycle means no waiter can be satisfied.
//
// kl.mu must be held.
func (kl *keyLock) breakCycle(node *chainNode, key string) (v any, ok bool, err error) {
	var cycle []*keyWaiter
	seen := map[*keyWaiter]bool{}
	for holder := kl.keys[key].holder; !holder.encloses(node); {
		w := kl.waiterUnder(holder, seen)
		if w == nil {
			return nil, false, nil
		}
		seen[w] = true
		cycle = append(cycle, w)
		holder = kl.keys[w.key].holder
	}

	if v, ok := kl.keys[key].holder.injecting(); ok {
		return v, true, nil
	}
	for _, w := range cycle {
		if v, ok := kl.keys[w.key].holder.injecting(); ok {
			kl.dropWaiter(w)
			w.shared = v
			close(w.ch)
			return nil, false, nil
		}
	}
	return nil, false, errWaitCycle
}

// waiterUnder finds a blocked waiter on the call path below holder.
func (kl *keyLock) waiterUnder(holder *chainNode, seen map[*keyWaiter]bool) *keyWaiter {
	if holder == nil {
		return nil
	}
	for _, h := range kl.keys {
		for _, w := range h.waiters {
			if !seen[w] && holder.encloses(w.node) {
				return w
			}
		}
	}
	return nil
}

// dropWaiter removes w from the waiters of its key. kl.mu must be held.
func (kl *keyLock) dropWaiter(w *keyWaiter) {
	h, ok := kl.keys[w.key]
	if !ok {
		return
	}
	for i, other := range h.waiters {
		if other == w {
			h.waiters = append(h.waiters[:i], h.waiters[i+1:]...)
			return
		}
	}
}

// unlock wakes every waiter of key.
func (kl *keyLock) unlock(key string) {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	if h, ok := kl.keys[key]; ok {
		for _, w := range h.waiters {
			close(w.ch)
		}
	}
	delete(kl.keys, key)
}

func wait(ctx context.Context, ch <-chan struct{}, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return ErrWaitTimeout
	}
}
