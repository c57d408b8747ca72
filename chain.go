package fluid

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"
)

type chain int

const chainKey chain = 0

// Link is one step of a reference chain: a binding being resolved for a
// requested API.
type Link struct {
	BindingID      uint64
	API            reflect.Type
	Implementation reflect.Type
	// Circular is set when the same binding and API already appear earlier
	// in the chain.
	Circular bool
}

// Path is a snapshot of a reference chain, outermost request first.
type Path []Link

// Last returns the innermost link.
func (p Path) Last() Link {
	if len(p) == 0 {
		return Link{}
	}
	return p[len(p)-1]
}

func (p Path) String() string {
	builder := strings.Builder{}
	for i, l := range p {
		if i > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(fmt.Sprintf("%3d. %v", i+1, l.API))
		if l.Implementation != nil && l.Implementation != l.API {
			builder.WriteString(fmt.Sprintf(" <- %v", l.Implementation))
		}
		if l.Circular {
			builder.WriteString(" (circular)")
		}
	}
	return builder.String()
}

// chainNode is an element of the per-call reference chain. The chain lives
// in the context.Context handed down the resolution, so it is confined to
// the resolving call path and pops itself when the call returns.
type chainNode struct {
	link   Link
	parent *chainNode
	depth  int

	// key is the cache key the node is constructing under, if scoped.
	key string

	// instance is set while the node's component receives field
	// injections.
	instance atomic.Value
}

type injected struct {
	value any
}

func chainFrom(ctx context.Context) *chainNode {
	if ctx == nil {
		return nil
	}
	n, _ := ctx.Value(chainKey).(*chainNode)
	return n
}

// find scans the chain for a link with the same binding and API.
func (n *chainNode) find(bindingID uint64, api reflect.Type) *chainNode {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.link.BindingID == bindingID && cur.link.API == api {
			return cur
		}
	}
	return nil
}

// encloses reports whether n is other or one of its ancestors.
func (n *chainNode) encloses(other *chainNode) bool {
	if n == nil {
		return false
	}
	for cur := other; cur != nil; cur = cur.parent {
		if cur == n {
			return true
		}
	}
	return false
}

func (n *chainNode) path() Path {
	if n == nil {
		return nil
	}
	p := make(Path, n.depth+1)
	for cur := n; cur != nil; cur = cur.parent {
		p[cur.depth] = cur.link
	}
	return p
}

func (n *chainNode) String() string {
	return n.path().String()
}

func (n *chainNode) setInjecting(instance any) {
	n.instance.Store(injected{value: instance})
}

func (n *chainNode) injecting() (any, bool) {
	v, _ := n.instance.Load().(injected)
	return v.value, v.value != nil
}

// nested pushes a link for b and api for the duration of cmd. prior is the
// earlier link for the same binding and API, if the request is circular.
func nested(ctx context.Context, b *binding, api reflect.Type, cmd func(ctx context.Context, node *chainNode, prior *chainNode) (any, error)) (any, error) {
	parent := chainFrom(ctx)
	prior := parent.find(b.id, api)
	node := &chainNode{
		link: Link{
			BindingID:      b.id,
			API:            api,
			Implementation: b.impl,
			Circular:       prior != nil,
		},
		parent: parent,
	}
	if parent != nil {
		node.depth = parent.depth + 1
	}
	return cmd(context.WithValue(ctx, chainKey, node), node, prior)
}

// PathFrom returns the reference chain carried by ctx. Constructors can use
// it for diagnostics.
func PathFrom(ctx context.Context) Path {
	return chainFrom(ctx).path()
}
