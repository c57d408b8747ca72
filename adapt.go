package fluid

import (
	"fmt"
	"reflect"
)

// Adapt binds the function type T. The bound value is fn with its leading
// parameters filled from the container when the adapter is constructed;
// fn's remaining parameters and its results must match T exactly. deps
// refine the leading parameters like a constructor's.
//
// Example:
//
//	type UserLookup func(ctx context.Context, userID string) (*User, error)
//
//	func lookupUser(db *Database, ctx context.Context, userID string) (*User, error) {
//	    // implementation
//	}
//
//	err := c.Bind(fluid.Adapt[UserLookup](lookupUser))
//	lookup := fluid.Get[UserLookup](ctx, c)
//	user, err := lookup(ctx, "user123")
func Adapt[T any](fn any, deps ...Dependency) *Source {
	return &Source{kind: sourceAdapter, typ: typeOf[T](), fn: fn, deps: deps}
}

// analyzeAdapter checks fn against the target function type and returns
// the descriptors of the parameters the container fills.
func analyzeAdapter(fn any, target reflect.Type, deps []Dependency) ([]param, error) {
	if target.Kind() != reflect.Func {
		return nil, &BindingError{Kind: ErrIncompatibleAPI, API: target, Message: "adapter target must be a function type"}
	}
	if isNil(fn) {
		return nil, &BindingError{Kind: ErrAbstractImplementation, API: target, Message: "nil adapted function"}
	}
	fnType := reflect.TypeOf(fn)
	if fnType.Kind() != reflect.Func {
		return nil, &BindingError{Kind: ErrAbstractImplementation, API: target, Implementation: fnType, Message: "adapted value is not a function"}
	}

	if fnType.NumOut() != target.NumOut() {
		return nil, &BindingError{Kind: ErrIncompatibleAPI, API: target, Implementation: fnType,
			Message: fmt.Sprintf("return count mismatch: %d vs %d", fnType.NumOut(), target.NumOut())}
	}
	for i := 0; i < fnType.NumOut(); i++ {
		if fnType.Out(i) != target.Out(i) {
			return nil, &BindingError{Kind: ErrIncompatibleAPI, API: target, Implementation: fnType,
				Message: fmt.Sprintf("return type mismatch at position %d", i)}
		}
	}

	bound := fnType.NumIn() - target.NumIn()
	if bound < 0 || fnType.IsVariadic() != target.IsVariadic() {
		return nil, &BindingError{Kind: ErrIncompatibleAPI, API: target, Implementation: fnType, Message: "adapter parameter mismatch"}
	}
	for i := 0; i < target.NumIn(); i++ {
		if fnType.In(bound+i) != target.In(i) {
			return nil, &BindingError{Kind: ErrIncompatibleAPI, API: target, Implementation: fnType,
				Message: fmt.Sprintf("parameter type mismatch at position %d", bound+i)}
		}
	}

	params := make([]param, bound)
	for i := range params {
		params[i] = classifyParam(i, fnType.In(i))
		params[i].name = fmt.Sprintf("parameter %d", i)
		if params[i].kind == paramResolution {
			return nil, &BindingError{Kind: ErrInvalidDependency, Implementation: fnType, Message: "adapters take no *Resolution"}
		}
	}
	if err := applyDependencies(fnType, params, deps); err != nil {
		return nil, err
	}
	return params, nil
}

// adapted returns a function of the target type calling fn with bound
// followed by the call's own arguments.
func adapted(target reflect.Type, fn any, bound []reflect.Value) any {
	fnValue := reflect.ValueOf(fn)
	return reflect.MakeFunc(target, func(args []reflect.Value) []reflect.Value {
		all := make([]reflect.Value, 0, len(bound)+len(args))
		all = append(all, bound...)
		all = append(all, args...)
		if target.IsVariadic() {
			return fnValue.CallSlice(all)
		}
		return fnValue.Call(all)
	}).Interface()
}
