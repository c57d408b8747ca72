package fluid

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/multierr"
)

// WithValidator registers a function that runs when the container starts.
// Its parameters are resolved from the container like a constructor's, and
// the error it returns fails Start.
//
// Example:
//
//	func checkSchema(ctx context.Context, db *Database) error {
//	    // validation logic
//	    return nil
//	}
//
//	c := fluid.New(fluid.WithValidator(checkSchema))
func WithValidator(fn any) Option {
	return func(c *Container) {
		c.validators = append(c.validators, fn)
	}
}

// runValidators executes all registered validators of the container.
func (c *Container) runValidators(ctx context.Context) error {
	for _, fn := range c.validators {
		if err := c.runValidator(withGraph(ctx), fn); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) runValidator(ctx context.Context, fn any) error {
	fnType := reflect.TypeOf(fn)
	if fnType == nil || fnType.Kind() != reflect.Func {
		return &BindingError{Kind: ErrInvalidDependency, Implementation: fnType, Message: "validator must be a function"}
	}
	if fnType.NumOut() != 1 || fnType.Out(0) != errorType {
		return &BindingError{Kind: ErrInvalidDependency, Implementation: fnType, Message: "validator must return exactly one error"}
	}
	if fnType.NumIn() == 0 || fnType.IsVariadic() {
		return &BindingError{Kind: ErrInvalidDependency, Implementation: fnType, Message: "validator must have a fixed, non-empty parameter list"}
	}

	owner := &binding{impl: fnType, label: "validator " + fnType.String()}
	args := make([]reflect.Value, fnType.NumIn())
	for i := range args {
		p := classifyParam(i, fnType.In(i))
		p.name = fmt.Sprintf("parameter %d", i)
		if p.kind == paramResolution {
			return &BindingError{Kind: ErrInvalidDependency, Implementation: fnType, Message: "validators take no *Resolution"}
		}
		arg, err := c.argument(ctx, nil, owner, p, EmptyContext, false)
		if err != nil {
			return err
		}
		args[i] = arg
	}

	out := reflect.ValueOf(fn).Call(args)
	if err, _ := out[0].Interface().(error); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// Verify checks the bindings of the container without constructing
// anything. It reports every required dependency that nothing in the
// hierarchy binds, every malformed injection target and every dependency
// cycle no deferred binding, factory, lazy parameter or field injection
// can absorb. All problems are returned together.
func (c *Container) Verify() error {
	var err error
	for _, b := range c.reg.list() {
		deps, planErr := dependenciesOf(b)
		if planErr != nil {
			err = multierr.Append(err, &BindingError{Kind: ErrInvalidDependency, Implementation: b.impl, Message: planErr.Error()})
			continue
		}
		for _, p := range deps {
			if p.optional {
				continue
			}
			api := p.typ
			switch p.kind {
			case paramLazy:
				api = p.target
			case paramComponent:
			default:
				continue
			}
			if _, dep := c.lookupBinding(api); dep == nil {
				err = multierr.Append(err, &ResolutionError{Kind: ErrNotBound, Type: api, Message: fmt.Sprintf("%s of %v", p.name, b)})
			}
		}
	}

	v := &cycleVerifier{state: map[*binding]visitState{}}
	for _, b := range c.reg.list() {
		v.visit(c, b)
	}
	return multierr.Append(err, v.err)
}

// dependenciesOf lists the constructor parameters and injected fields of b.
func dependenciesOf(b *binding) ([]param, error) {
	deps := append([]param(nil), b.params...)
	if b.source.kind == sourceInstance {
		return deps, nil
	}
	if b.impl.Kind() == reflect.Pointer && b.impl.Elem().Kind() == reflect.Struct {
		info := getTypeInfo(b.impl)
		if info.injectErr != nil {
			return nil, info.injectErr
		}
		deps = append(deps, info.injectFields...)
	}
	return deps, nil
}

type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

// cycleVerifier walks constructor dependencies depth first. Only plain
// component parameters are followed: deferred bindings and factories absorb
// a cycle when re-entered, and lazy parameters and fields never re-enter
// construction.
type cycleVerifier struct {
	state map[*binding]visitState
	stack []*binding
	err   error
}

func (v *cycleVerifier) visit(owner *Container, b *binding) {
	switch v.state[b] {
	case visiting:
		v.report(b)
		return
	case visited:
		return
	}
	v.state[b] = visiting
	if b.scope&Deferred == 0 && b.source.kind != sourceFactory {
		v.stack = append(v.stack, b)
		for _, p := range b.params {
			if p.kind != paramComponent {
				continue
			}
			if depOwner, dep := owner.lookupBinding(p.typ); dep != nil {
				v.visit(depOwner, dep)
			}
		}
		v.stack = v.stack[:len(v.stack)-1]
	}
	v.state[b] = visited
}

func (v *cycleVerifier) report(b *binding) {
	start := 0
	for i, s := range v.stack {
		if s == b {
			start = i
			break
		}
	}
	names := make([]string, 0, len(v.stack)-start+1)
	for _, s := range v.stack[start:] {
		names = append(names, s.String())
	}
	names = append(names, b.String())
	v.err = multierr.Append(v.err, &ResolutionError{
		Kind:    ErrCircular,
		Type:    b.impl,
		Message: strings.Join(names, " -> "),
	})
}
