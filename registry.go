package fluid

import (
	"reflect"
	"sync"
)

// registry is the binding table of one container. Writes are serialised;
// reads are lock free so resolution never contends with it once
// configuration is done.
type registry struct {
	mu       sync.Mutex
	apis     sync.Map // map[reflect.Type]*binding
	groups   sync.Map // map[reflect.Type][]*binding
	bindings []*binding
}

// add registers b under every API and group it declares. Nothing is
// registered if any of its APIs is already bound.
func (r *registry) add(b *binding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, api := range b.apis {
		if existing, ok := r.apis.Load(api); ok {
			return &BindingError{
				Kind:           ErrDuplicateBinding,
				API:            api,
				Implementation: b.impl,
				Message:        "already bound to " + existing.(*binding).String(),
			}
		}
	}

	for _, api := range b.apis {
		r.apis.Store(api, b)
	}
	for _, g := range b.groups {
		var members []*binding
		if existing, ok := r.groups.Load(g); ok {
			members = existing.([]*binding)
		}
		// Readers may hold the previous slice.
		next := make([]*binding, len(members), len(members)+1)
		copy(next, members)
		r.groups.Store(g, append(next, b))
	}
	r.bindings = append(r.bindings, b)
	return nil
}

func (r *registry) lookup(api reflect.Type) (*binding, bool) {
	b, ok := r.apis.Load(api)
	if !ok {
		return nil, false
	}
	return b.(*binding), true
}

// members returns the group bindings of api in registration order.
func (r *registry) members(api reflect.Type) []*binding {
	members, ok := r.groups.Load(api)
	if !ok {
		return nil
	}
	return members.([]*binding)
}

// list returns every binding in registration order.
func (r *registry) list() []*binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*binding(nil), r.bindings...)
}
