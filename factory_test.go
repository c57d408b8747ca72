package fluid

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type connection struct {
	id     int32
	region string
}

type repoA struct{ conn *connection }
type repoB struct{ conn *connection }

type service struct {
	a *repoA
	b *repoB
}

func bindConnectionGraph(t *testing.T, c *Container, opened *atomic.Int32) {
	t.Helper()
	require.NoError(t, c.Bind(Factory(func(r *Resolution) *connection {
		region, _ := r.Context.Value(regionTag)
		name, _ := region.(string)
		return &connection{id: opened.Add(1), region: name}
	}), Accepting(regionTag)))
	require.NoError(t, c.Bind(Constructor(func(conn *connection) *repoA { return &repoA{conn: conn} })))
	require.NoError(t, c.Bind(Constructor(func(conn *connection) *repoB { return &repoB{conn: conn} })))
	require.NoError(t, c.Bind(Constructor(func(a *repoA, b *repoB) *service { return &service{a: a, b: b} })))
}

func TestFactory_SharedWithinOneResolution(t *testing.T) {
	var opened atomic.Int32
	c := New()
	bindConnectionGraph(t, c, &opened)
	ctx := context.Background()

	first := Get[*service](ctx, c)
	assert.Same(t, first.a.conn, first.b.conn)

	second := Get[*service](ctx, c)
	assert.Same(t, second.a.conn, second.b.conn)
	assert.NotSame(t, first.a.conn, second.a.conn)
	assert.Equal(t, int32(2), opened.Load())
}

func TestFactory_GraphKeyedByContext(t *testing.T) {
	var opened atomic.Int32
	c := New()
	require.NoError(t, c.Bind(Factory(func(r *Resolution) *connection {
		region, _ := r.Context.Value(regionTag)
		return &connection{id: opened.Add(1), region: region.(string)}
	}), Accepting(regionTag)))
	require.NoError(t, c.Bind(Constructor(func(a, b *connection) *service {
		return &service{a: &repoA{conn: a}, b: &repoB{conn: b}}
	}, Arg(0, Meta(regionTag, "eu")), Arg(1, Meta(regionTag, "us")))))

	s := Get[*service](context.Background(), c)
	assert.Equal(t, "eu", s.a.conn.region)
	assert.Equal(t, "us", s.b.conn.region)
	assert.Equal(t, int32(2), opened.Load())
}

func TestFactory_Resolution(t *testing.T) {
	c := New()
	var seen *Resolution
	require.NoError(t, c.Bind(Factory(func(r *Resolution) (*DependentValue, error) {
		seen = r
		return NewDependentValue(), nil
	}), As[DependentKey](), Accepting(regionTag)))

	_ = Get[DependentKey](context.Background(), c, Meta(regionTag, "eu"), Meta(tenantTag, "acme"))

	require.NotNil(t, seen)
	assert.Equal(t, APIOf[DependentKey](), seen.API)
	assert.False(t, seen.Circular)
	assert.True(t, seen.Context.Equal(NewContext(Meta(regionTag, "eu"))))
	require.Len(t, seen.Path, 1)
	assert.Equal(t, APIOf[DependentKey](), seen.Path.Last().API)
}

func TestFactory_SingletonScope(t *testing.T) {
	var opened atomic.Int32
	c := New()
	require.NoError(t, c.Bind(Factory(func() *connection {
		return &connection{id: opened.Add(1)}
	}), WithScope(Singleton)))
	ctx := context.Background()

	assert.Same(t, Get[*connection](ctx, c), Get[*connection](ctx, c))
	assert.Equal(t, int32(1), opened.Load())
}

func TestResolutionGraph_NilBuilds(t *testing.T) {
	var g *resolutionGraph
	v, err := g.memoize("k", func() (any, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Nil(t, graphFrom(context.Background()))

	ctx := withGraph(context.Background())
	assert.Same(t, graphFrom(ctx), graphFrom(withGraph(ctx)))
}
