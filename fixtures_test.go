package fluid

import (
	"fmt"
	"sync/atomic"
)

var identities atomic.Int64

func nextIdentity() string {
	return fmt.Sprintf("instance-%d", identities.Add(1))
}

type Key interface {
	Identity() string
}

type DependentKey interface {
	Name() string
}

type Value struct {
	identity  string
	dependent DependentKey
}

func NewValue(dep DependentKey) *Value {
	return &Value{identity: nextIdentity(), dependent: dep}
}

func (v *Value) Identity() string {
	return v.identity
}

type DependentValue struct {
	name string
}

func NewDependentValue() *DependentValue {
	return &DependentValue{name: nextIdentity()}
}

func (d *DependentValue) Name() string {
	return d.name
}

// both satisfies Key and DependentKey.
type both struct {
	id string
}

func (b *both) Identity() string {
	return b.id
}

func (b *both) Name() string {
	return b.id
}

type testWidget struct {
	val int
}

type testDoodad struct {
	val string
}
