package fluid

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gburgyan/go-timing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTiming(t *testing.T, mode TimingMode) {
	t.Helper()
	previous := EnableTiming
	EnableTiming = mode
	t.Cleanup(func() {
		EnableTiming = previous
	})
}

func TestTiming_Constructors(t *testing.T) {
	withTiming(t, TimingConstructors)
	c := New()
	require.NoError(t, c.Bind(Constructor(NewValue), As[Key](), Named("value")))
	require.NoError(t, c.Bind(Constructor(NewDependentValue), As[DependentKey]()))

	timingCtx := timing.Root(context.Background())
	v := Get[Key](timingCtx, c)
	assert.NotNil(t, v.(*Value).dependent)
}

func TestTiming_EagerSpan(t *testing.T) {
	withTiming(t, TimingImmediate)
	var builds atomic.Int32
	c := New()
	require.NoError(t, c.Bind(Constructor(func() *testWidget {
		builds.Add(1)
		time.Sleep(20 * time.Millisecond)
		return &testWidget{val: 42}
	}), WithScope(Singleton), Eager()))

	timingCtx := timing.Root(context.Background())
	require.NoError(t, c.Start(timingCtx))

	start := time.Now()
	assert.Equal(t, 42, Get[*testWidget](timingCtx, c).val)
	assert.Less(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, int32(1), builds.Load())
}
