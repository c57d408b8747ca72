package fluid

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalArg_Absent(t *testing.T) {
	c := New()
	require.NoError(t, c.Bind(Constructor(NewValue, OptionalArg(0)), As[Key]()))

	v := Get[Key](context.Background(), c).(*Value)
	assert.Nil(t, v.dependent)
}

func TestOptionalArg_Present(t *testing.T) {
	c := New()
	require.NoError(t, c.Bind(Constructor(NewValue, OptionalArg(0)), As[Key]()))
	require.NoError(t, c.Bind(Constructor(NewDependentValue), As[DependentKey]()))

	v := Get[Key](context.Background(), c).(*Value)
	assert.NotNil(t, v.dependent)
}

func TestOptionalArg_Default(t *testing.T) {
	fallback := &DependentValue{name: "fallback"}
	c := New()
	require.NoError(t, c.Bind(Constructor(NewValue, OptionalArg(0).WithDefault(fallback)), As[Key]()))

	v := Get[Key](context.Background(), c).(*Value)
	assert.Same(t, fallback, v.dependent)
}

func TestOptionalArg_UnresolvableIsAbsent(t *testing.T) {
	fallback := &DependentValue{name: "fallback"}
	c := New()
	require.NoError(t, c.Bind(Constructor(NewValue, OptionalArg(0).WithDefault(fallback)), As[Key]()))
	require.NoError(t, c.Bind(Constructor(func(w *testWidget) *DependentValue {
		return NewDependentValue()
	}), As[DependentKey]()))

	v, err := GetWithError[Key](context.Background(), c)
	require.NoError(t, err)
	assert.Same(t, fallback, v.(*Value).dependent)

	_, err = GetWithError[DependentKey](context.Background(), c)
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestOptionalArg_ConstructionErrorsStillFail(t *testing.T) {
	boom := errors.New("boom")
	c := New()
	require.NoError(t, c.Bind(Constructor(NewValue, OptionalArg(0)), As[Key]()))
	require.NoError(t, c.Bind(Constructor(func() (*DependentValue, error) {
		return nil, boom
	}), As[DependentKey]()))

	_, err := GetWithError[Key](context.Background(), c)
	assert.ErrorIs(t, err, ErrConstruction)
	assert.ErrorIs(t, err, boom)
}

func TestRequiredArg_Missing(t *testing.T) {
	c := New()
	require.NoError(t, c.Bind(Constructor(NewValue), As[Key]()))

	_, err := GetWithError[Key](context.Background(), c)
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestOptionalLazy_Absent(t *testing.T) {
	c := New()
	require.NoError(t, c.Bind(Constructor(func(dep Lazy[DependentKey]) *lazyHolder {
		return &lazyHolder{dependent: dep}
	}, OptionalArg(0))))

	holder := Get[*lazyHolder](context.Background(), c)
	assert.False(t, holder.dependent.Present())

	c2 := New()
	require.NoError(t, c2.Bind(Constructor(func(dep Lazy[DependentKey]) *lazyHolder {
		return &lazyHolder{dependent: dep}
	})))
	_, err := GetWithError[*lazyHolder](context.Background(), c2)
	assert.ErrorIs(t, err, ErrNotBound)
}

type injectionTarget struct {
	Key      Key               `inject:""`
	Missing  *testWidget       `inject:"optional"`
	Regional DependentKey      `inject:"" context:"region=eu"`
	Later    Lazy[*testDoodad] `inject:"optional"`
	Ignored  *testWidget
}

func TestFieldInjection(t *testing.T) {
	c := New()
	require.NoError(t, c.Bind(Constructor(NewValue), As[Key]()))
	require.NoError(t, c.Bind(Constructor(func(cc ComponentContext) *DependentValue {
		region, ok := cc.Value(regionTag)
		if !ok {
			return &DependentValue{name: "none"}
		}
		return &DependentValue{name: region.(string)}
	}), As[DependentKey](), Accepting(regionTag)))
	require.NoError(t, c.Bind(ConcreteOf[injectionTarget]()))
	require.NoError(t, c.Bind(Instance(&testWidget{val: 1})))

	v := Get[*injectionTarget](context.Background(), c)
	assert.NotNil(t, v.Key)
	assert.Equal(t, "none", v.Key.(*Value).dependent.Name())
	assert.Equal(t, "eu", v.Regional.Name())
	assert.Same(t, Get[*testWidget](context.Background(), c), v.Missing)
	assert.False(t, v.Later.Present())
	assert.Nil(t, v.Ignored)
}

func TestFieldInjection_ConstructorResult(t *testing.T) {
	c := New()
	require.NoError(t, c.Bind(Constructor(NewDependentValue), As[DependentKey]()))
	require.NoError(t, c.Bind(Constructor(func() *injectionTarget {
		return &injectionTarget{Ignored: &testWidget{val: 9}}
	})))
	require.NoError(t, c.Bind(Constructor(NewValue), As[Key]()))

	v := Get[*injectionTarget](context.Background(), c)
	assert.NotNil(t, v.Key)
	assert.Equal(t, 9, v.Ignored.val)
}

func TestFieldInjection_RequiredMissing(t *testing.T) {
	c := New()
	require.NoError(t, c.Bind(ConcreteOf[injectionTarget]()))

	_, err := GetWithError[*injectionTarget](context.Background(), c)
	assert.ErrorIs(t, err, ErrNotBound)
	assert.ErrorContains(t, err, "field Key of *fluid.injectionTarget")
}

type unexportedInjection struct {
	key Key `inject:""`
}

type unknownInjectionMode struct {
	Key Key `inject:"sometimes"`
}

func TestFieldInjection_Malformed(t *testing.T) {
	c := New()
	require.NoError(t, c.Bind(ConcreteOf[unexportedInjection]()))
	require.NoError(t, c.Bind(ConcreteOf[unknownInjectionMode]()))

	_, err := GetWithError[*unexportedInjection](context.Background(), c)
	assert.ErrorIs(t, err, ErrConstruction)
	assert.ErrorContains(t, err, "field key")

	_, err = GetWithError[*unknownInjectionMode](context.Background(), c)
	assert.ErrorIs(t, err, ErrConstruction)
	assert.ErrorContains(t, err, `unknown inject mode "sometimes"`)

	assert.ErrorIs(t, c.Verify(), ErrInvalidDependency)
}
