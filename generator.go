package fluid

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

type paramKind int

const (
	paramComponent paramKind = iota
	paramContext
	paramComponentContext
	paramResolution
	paramLazy
	paramGroup
)

// param is the dependency descriptor of one function parameter.
type param struct {
	kind  paramKind
	index int
	name  string
	typ   reflect.Type

	// target is the API behind a Lazy[T] or Group[T] parameter.
	target reflect.Type
	lazy   lazyParam
	group  groupParam

	ctx      ComponentContext
	optional bool
	def      any
}

// fallback is the value of an optional parameter that could not be
// resolved.
func (p param) fallback() reflect.Value {
	if p.def != nil {
		return reflect.ValueOf(p.def)
	}
	return reflect.Zero(p.typ)
}

func classifyParam(index int, t reflect.Type) param {
	p := param{index: index, typ: t}
	switch {
	case t == contextType:
		p.kind = paramContext
	case t == componentContextType:
		p.kind = paramComponentContext
	case t == resolutionType:
		p.kind = paramResolution
	case t.Kind() != reflect.Interface && t.Implements(lazyParamType):
		p.kind = paramLazy
		p.lazy = reflect.Zero(t).Interface().(lazyParam)
		p.target = p.lazy.lazyTarget()
	case t.Kind() != reflect.Interface && t.Implements(groupParamType):
		p.kind = paramGroup
		p.group = reflect.Zero(t).Interface().(groupParam)
		p.target = p.group.groupAPI()
	default:
		p.kind = paramComponent
	}
	return p
}

type funcAnalysis struct {
	params   []param
	result   reflect.Type
	hasError bool
}

// analyzeFunction validates a constructor or factory function and derives
// its dependency descriptors, refined by deps.
func analyzeFunction(fn any, deps []Dependency) (*funcAnalysis, error) {
	if isNil(fn) {
		return nil, &BindingError{Kind: ErrAbstractImplementation, Message: "nil function"}
	}
	fnType := reflect.TypeOf(fn)
	info := getTypeInfo(fnType)
	if !info.isFunc {
		return nil, &BindingError{Kind: ErrAbstractImplementation, Implementation: fnType, Message: "not a function"}
	}
	if info.variadic {
		return nil, &BindingError{Kind: ErrAbstractImplementation, Implementation: fnType, Message: "variadic functions are not supported"}
	}
	if info.errorCount > 1 {
		return nil, &BindingError{Kind: ErrAbstractImplementation, Implementation: fnType, Message: "multiple error results"}
	}
	switch len(info.funcReturns) {
	case 0:
		return nil, &BindingError{Kind: ErrAbstractImplementation, Implementation: fnType, Message: "function has no component result"}
	case 1:
	default:
		return nil, &BindingError{Kind: ErrAmbiguousAPI, Implementation: fnType, Message: "function returns several components"}
	}

	fa := &funcAnalysis{
		result:   info.funcReturns[0],
		hasError: info.errorCount == 1,
		params:   make([]param, len(info.funcParams)),
	}
	for i, in := range info.funcParams {
		fa.params[i] = classifyParam(i, in)
		fa.params[i].name = fmt.Sprintf("parameter %d", i)
	}

	if err := applyDependencies(fnType, fa.params, deps); err != nil {
		return nil, err
	}
	return fa, nil
}

// applyDependencies refines the descriptors of params with deps.
func applyDependencies(fnType reflect.Type, params []param, deps []Dependency) error {
	for _, d := range deps {
		if d.Index < 0 || d.Index >= len(params) {
			return &BindingError{Kind: ErrInvalidDependency, Implementation: fnType, Message: fmt.Sprintf("no parameter at index %d", d.Index)}
		}
		p := &params[d.Index]
		switch p.kind {
		case paramContext, paramComponentContext, paramResolution:
			return &BindingError{Kind: ErrInvalidDependency, Implementation: fnType, Message: fmt.Sprintf("parameter %d is not a dependency", d.Index)}
		}
		if d.Default != nil {
			if p.kind != paramComponent || !reflect.TypeOf(d.Default).AssignableTo(p.typ) {
				return &BindingError{Kind: ErrInvalidDependency, API: p.typ, Implementation: reflect.TypeOf(d.Default), Message: fmt.Sprintf("default of parameter %d", d.Index)}
			}
		}
		p.ctx = d.Context
		p.optional = d.Optional
		p.def = d.Default
	}
	return nil
}

// invoke resolves the function's parameters and calls it. When circular is
// set the function is a factory re-entered through a cycle: its component
// parameters are not resolved and receive zero values, so the factory can
// hand out a stand-in built from its Lazy parameters.
func (c *Container) invoke(ctx context.Context, node *chainNode, b *binding, filtered ComponentContext, circular bool) (any, error) {
	args := make([]reflect.Value, len(b.params))
	for i, p := range b.params {
		if circular && (p.kind == paramComponent || p.kind == paramGroup) {
			args[i] = reflect.Zero(p.typ)
			continue
		}
		arg, err := c.argument(ctx, node, b, p, filtered, circular)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}

	if b.source.kind == sourceAdapter {
		return adapted(b.impl, b.source.fn, args), nil
	}
	results := reflect.ValueOf(b.source.fn).Call(args)

	var component reflect.Value
	for _, result := range results {
		if result.Type() == errorType {
			if !result.IsNil() {
				return nil, chainError(ctx, ErrConstruction, node.link.API, fmt.Sprintf("%s %v", b.source.kind, b), result.Interface().(error))
			}
			continue
		}
		component = result
	}
	if isNil(component.Interface()) {
		return nil, chainError(ctx, ErrConstruction, node.link.API, fmt.Sprintf("%s %v returned nil", b.source.kind, b), nil)
	}
	return component.Interface(), nil
}

// argument produces the value of one parameter.
func (c *Container) argument(ctx context.Context, node *chainNode, b *binding, p param, filtered ComponentContext, circular bool) (reflect.Value, error) {
	switch p.kind {
	case paramContext:
		return reflect.ValueOf(&ctx).Elem(), nil
	case paramComponentContext:
		return reflect.ValueOf(filtered), nil
	case paramResolution:
		return reflect.ValueOf(&Resolution{
			API:      node.link.API,
			Context:  filtered,
			Circular: circular,
			Path:     node.path(),
		}), nil
	case paramLazy:
		d, found, err := c.lazy(ctx, p.target, Derive(filtered, p.ctx))
		if err != nil {
			return reflect.Value{}, err
		}
		if !found {
			if p.optional {
				return reflect.Zero(p.typ), nil
			}
			return reflect.Value{}, chainError(ctx, ErrNotBound, p.target, fmt.Sprintf("lazy %s of %v", p.name, b), nil)
		}
		return p.lazy.wrapHandle(d), nil
	case paramGroup:
		members, err := c.group(ctx, p.target, Derive(filtered, p.ctx))
		if err != nil {
			return reflect.Value{}, err
		}
		return p.group.fromMembers(ctx, members)
	}

	v, found, err := c.resolve(ctx, p.typ, Derive(filtered, p.ctx))
	if !found {
		if p.optional {
			return p.fallback(), nil
		}
		return reflect.Value{}, chainError(ctx, ErrNotBound, p.typ, fmt.Sprintf("%s of %v", p.name, b), nil)
	}
	var arg reflect.Value
	if err == nil {
		arg, err = assignable(ctx, v, p.typ)
	}
	if err != nil {
		// An optional dependency whose own requirements are not bound is
		// absent. Other failures are not masked.
		if p.optional && errors.Is(err, ErrNotBound) {
			c.logger.Debug("optional dependency absent",
				zap.Stringer("api", p.typ),
				zap.String("parameter", p.name),
				zap.Error(err))
			return p.fallback(), nil
		}
		return reflect.Value{}, err
	}
	return arg, nil
}

// assignable turns a resolved component into a value of type t, forcing
// deferred handles when t is not the handle type itself.
func assignable(ctx context.Context, v any, t reflect.Type) (reflect.Value, error) {
	if d, ok := v.(*Handle); ok && t != deferredType {
		forced, err := d.Get(ctx)
		if err != nil {
			return reflect.Value{}, err
		}
		v = forced
	}
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(t) {
		return reflect.Value{}, chainError(ctx, ErrConstruction, t, fmt.Sprintf("resolved %T is not assignable", v), nil)
	}
	return rv, nil
}
