package fluid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func named(name string) *Source {
	return Instance(&DependentValue{name: name})
}

func names(members []DependentKey) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.Name()
	}
	return out
}

func TestGroup_AncestorsFirst(t *testing.T) {
	root := New()
	require.NoError(t, root.BindGroup(APIOf[DependentKey](), named("root-1"), named("root-2")))
	child := root.NewChild()
	require.NoError(t, child.BindGroup(APIOf[DependentKey](), named("child-1")))
	ctx := context.Background()

	members, err := GetGroup[DependentKey](ctx, child)
	require.NoError(t, err)
	assert.Equal(t, []string{"root-1", "root-2", "child-1"}, names(members))

	members, err = GetGroup[DependentKey](ctx, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"root-1", "root-2"}, names(members))
}

func TestGroup_Empty(t *testing.T) {
	members, err := GetGroup[DependentKey](context.Background(), New())
	assert.NoError(t, err)
	assert.Empty(t, members)
}

func TestGroup_ScopedMembers(t *testing.T) {
	c := New()
	require.NoError(t, c.Bind(Constructor(NewDependentValue), MemberOf[DependentKey](), WithScope(Singleton)))
	require.NoError(t, c.Bind(Constructor(NewDependentValue), MemberOf[DependentKey](), WithScope(Deferred)))
	ctx := context.Background()

	first, err := GetGroup[DependentKey](ctx, c)
	require.NoError(t, err)
	second, err := GetGroup[DependentKey](ctx, c)
	require.NoError(t, err)
	require.Len(t, first, 2)

	assert.Same(t, first[0], second[0])
	assert.NotSame(t, first[1], second[1])

	raw, err := c.ComponentGroup(ctx, APIOf[DependentKey](), EmptyContext)
	require.NoError(t, err)
	assert.IsType(t, &Handle{}, raw[1])
}

type registryOfHandlers struct {
	handlers Group[DependentKey]
}

func TestGroup_Parameter(t *testing.T) {
	c := New()
	require.NoError(t, c.BindGroup(APIOf[DependentKey](), named("a"), named("b")))
	require.NoError(t, c.Bind(Constructor(func(g Group[DependentKey]) *registryOfHandlers {
		return &registryOfHandlers{handlers: g}
	})))

	r := Get[*registryOfHandlers](context.Background(), c)
	assert.Equal(t, []string{"a", "b"}, names(r.handlers))
}

func TestGroup_MemberFailure(t *testing.T) {
	c := New()
	require.NoError(t, c.BindGroup(APIOf[DependentKey](), Constructor(func(w *testWidget) *DependentValue {
		return NewDependentValue()
	})))

	_, err := GetGroup[DependentKey](context.Background(), c)
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestGroup_Stopped(t *testing.T) {
	c := New()
	require.NoError(t, c.Stop(context.Background()))

	_, err := GetGroup[DependentKey](context.Background(), c)
	assert.ErrorIs(t, err, ErrStopped)
}
