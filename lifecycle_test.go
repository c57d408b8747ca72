package fluid

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type closeLog struct {
	mu     sync.Mutex
	closed []string
}

func (l *closeLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = append(l.closed, name)
}

type closable struct {
	name string
	log  *closeLog
	err  error
}

func (c *closable) Close() error {
	c.log.add(c.name)
	return c.err
}

type closableA struct{ closable }
type closableB struct{ closable }

func TestStop_ReleasesInReverseOrder(t *testing.T) {
	log := &closeLog{}
	c := New()
	require.NoError(t, c.Bind(Constructor(func() *closableA {
		return &closableA{closable{name: "a", log: log}}
	}), WithScope(Singleton)))
	require.NoError(t, c.Bind(Constructor(func(a *closableA) *closableB {
		return &closableB{closable{name: "b", log: log}}
	}), WithScope(Singleton)))
	ctx := context.Background()

	_ = Get[*closableB](ctx, c)
	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, []string{"b", "a"}, log.closed)
	assert.True(t, c.Stopped())

	// Stopping again is a no-op.
	require.NoError(t, c.Stop(ctx))
	assert.Len(t, log.closed, 2)
}

func TestStop_InstancesAreNotReleased(t *testing.T) {
	log := &closeLog{}
	c := New()
	require.NoError(t, c.Bind(Instance(&closable{name: "instance", log: log})))
	_ = Get[*closable](context.Background(), c)

	require.NoError(t, c.Stop(context.Background()))
	assert.Empty(t, log.closed)
}

func TestStop_ResolutionFailsAfterwards(t *testing.T) {
	c := newSingletonContainer(t)
	ctx := context.Background()
	_ = Get[Key](ctx, c)
	require.NoError(t, c.Stop(ctx))

	_, err := GetWithError[Key](ctx, c)
	assert.ErrorIs(t, err, ErrStopped)

	_, err = GetLazy[Key](ctx, c)
	assert.ErrorIs(t, err, ErrStopped)

	assert.ErrorIs(t, c.Start(ctx), ErrStopped)
}

func TestStop_StopsChildren(t *testing.T) {
	log := &closeLog{}
	parent := New()
	child := parent.NewChild()
	require.NoError(t, child.Bind(Constructor(func() *closableA {
		return &closableA{closable{name: "child", log: log}}
	}), WithScope(Singleton)))
	_ = Get[*closableA](context.Background(), child)

	require.NoError(t, parent.Stop(context.Background()))
	assert.True(t, child.Stopped())
	assert.Equal(t, []string{"child"}, log.closed)

	late := parent.NewChild()
	assert.True(t, late.Stopped())
}

func TestStop_ChildLeavesParentRunning(t *testing.T) {
	parent := newSingletonContainer(t)
	child := parent.NewChild()
	require.NoError(t, child.Stop(context.Background()))

	assert.False(t, parent.Stopped())
	assert.NotNil(t, Get[Key](context.Background(), parent))
	assert.Empty(t, parent.children)
}

func TestStop_ChildRejectsParentBindings(t *testing.T) {
	parent := newSingletonContainer(t)
	child := parent.NewChild()
	ctx := context.Background()
	require.NoError(t, child.Stop(ctx))

	_, err := GetWithError[DependentKey](ctx, child)
	assert.ErrorIs(t, err, ErrStopped)

	_, err = GetLazy[DependentKey](ctx, child)
	assert.ErrorIs(t, err, ErrStopped)

	_, err = GetGroup[DependentKey](ctx, child)
	assert.ErrorIs(t, err, ErrStopped)

	assert.NotNil(t, Get[DependentKey](ctx, parent))
}

func TestStop_CleanupFuncTakesPrecedence(t *testing.T) {
	log := &closeLog{}
	var cleaned []string
	c := New(WithCleanupFunc(func(a *closableA) {
		cleaned = append(cleaned, a.name)
	}))
	require.NoError(t, c.Bind(Constructor(func() *closableA {
		return &closableA{closable{name: "a", log: log}}
	}), WithScope(Singleton)))
	require.NoError(t, c.Bind(Constructor(func() *closableB {
		return &closableB{closable{name: "b", log: log}}
	}), WithScope(Singleton)))
	ctx := context.Background()
	_ = Get[*closableA](ctx, c)
	_ = Get[*closableB](ctx, c)

	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, []string{"a"}, cleaned)
	assert.Equal(t, []string{"b"}, log.closed)
}

func TestStop_AggregatesErrors(t *testing.T) {
	log := &closeLog{}
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	c := New(WithCleanupFunc(func(p *testWidget) {
		panic("cleanup exploded")
	}))
	require.NoError(t, c.Bind(Constructor(func() *closableA {
		return &closableA{closable{name: "a", log: log, err: errA}}
	}), WithScope(Singleton)))
	require.NoError(t, c.Bind(Constructor(func() *closableB {
		return &closableB{closable{name: "b", log: log, err: errB}}
	}), WithScope(Singleton)))
	require.NoError(t, c.Bind(Constructor(func() *testWidget {
		return &testWidget{}
	}), WithScope(Singleton)))
	ctx := context.Background()
	_ = Get[*closableA](ctx, c)
	_ = Get[*closableB](ctx, c)
	_ = Get[*testWidget](ctx, c)

	err := c.Stop(ctx)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.ErrorContains(t, err, "cleanup exploded")
	assert.Len(t, multierr.Errors(err), 3)
	assert.Equal(t, []string{"b", "a"}, log.closed)
}

func TestStop_HonoursContext(t *testing.T) {
	c := newSingletonContainer(t)
	_ = Get[Key](context.Background(), c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Stop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, c.Stopped())
}

func TestStop_InFlightResolutionIsNotCached(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	log := &closeLog{}
	c := New()
	require.NoError(t, c.Bind(Constructor(func() *closableA {
		close(started)
		<-release
		return &closableA{closable{name: "late", log: log}}
	}), WithScope(Singleton)))

	result := make(chan error, 1)
	go func() {
		_, err := GetWithError[*closableA](context.Background(), c)
		result <- err
	}()

	<-started
	require.NoError(t, c.Stop(context.Background()))
	close(release)

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("in-flight resolution did not complete")
	}
	assert.Equal(t, 0, c.cache.size())
	assert.Empty(t, log.closed)
}

func TestStart_Eager(t *testing.T) {
	var builds atomic.Int32
	c := New()
	require.NoError(t, c.Bind(Constructor(func() *DependentValue {
		builds.Add(1)
		time.Sleep(10 * time.Millisecond)
		return NewDependentValue()
	}), As[DependentKey](), WithScope(Singleton), Eager()))
	require.NoError(t, c.Bind(Constructor(NewValue), As[Key](), WithScope(Singleton), Eager()))
	require.NoError(t, c.Bind(Constructor(func(k Key) *testWidget {
		return &testWidget{}
	}), WithScope(Singleton|Deferred), Eager()))
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, int32(1), builds.Load())
	assert.Equal(t, 3, c.cache.size())

	// A second start does nothing.
	require.NoError(t, c.Start(ctx))
	assert.Equal(t, int32(1), builds.Load())
}

func TestStart_EagerFailure(t *testing.T) {
	c := New()
	require.NoError(t, c.Bind(Constructor(NewValue), As[Key](), WithScope(Singleton), Eager()))

	err := c.Start(context.Background())
	assert.ErrorIs(t, err, ErrNotBound)

	// A failed start can be retried once the problem is fixed.
	require.NoError(t, c.Bind(Constructor(NewDependentValue), As[DependentKey]()))
	assert.NoError(t, c.Start(context.Background()))
}

func TestStart_EagerPanic(t *testing.T) {
	c := New()
	require.NoError(t, c.Bind(Constructor(func() *testWidget {
		panic("broken")
	}), WithScope(Singleton), Eager()))

	err := c.Start(context.Background())
	assert.ErrorContains(t, err, "panic resolving eager")
}
