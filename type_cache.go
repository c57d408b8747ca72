package fluid

import (
	"context"
	"reflect"
	"sync"
)

var (
	errorType            = reflect.TypeOf((*error)(nil)).Elem()
	contextType          = reflect.TypeOf((*context.Context)(nil)).Elem()
	componentContextType = reflect.TypeOf(ComponentContext{})
	resolutionType       = reflect.TypeOf(&Resolution{})
	deferredType         = reflect.TypeOf(&Handle{})
	lazyParamType        = reflect.TypeOf((*lazyParam)(nil)).Elem()
	groupParamType       = reflect.TypeOf((*groupParam)(nil)).Elem()
)

// typeInfo is the reflection work done once per type: the shape of
// constructor functions and the injection plan of struct pointers.
type typeInfo struct {
	isFunc     bool
	variadic   bool
	errorCount int

	funcParams []reflect.Type
	// funcReturns holds the non-error results.
	funcReturns []reflect.Type

	injectFields []param
	injectErr    error
}

var typeInfos sync.Map // map[reflect.Type]*typeInfo

func getTypeInfo(t reflect.Type) *typeInfo {
	if cached, ok := typeInfos.Load(t); ok {
		return cached.(*typeInfo)
	}

	info := &typeInfo{isFunc: t.Kind() == reflect.Func}
	if info.isFunc {
		info.variadic = t.IsVariadic()
		for i := 0; i < t.NumIn(); i++ {
			info.funcParams = append(info.funcParams, t.In(i))
		}
		for i := 0; i < t.NumOut(); i++ {
			if out := t.Out(i); out == errorType {
				info.errorCount++
			} else {
				info.funcReturns = append(info.funcReturns, out)
			}
		}
	}
	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct {
		info.injectFields, info.injectErr = planInjection(t.Elem())
	}

	actual, _ := typeInfos.LoadOrStore(t, info)
	return actual.(*typeInfo)
}

type assignment struct {
	from, to reflect.Type
}

var assignments sync.Map // map[assignment]bool

// canAssign reports whether impl can be served as api. Interface APIs
// accept any implementation assignable to them; concrete APIs only the
// identical type.
func canAssign(impl, api reflect.Type) bool {
	if api.Kind() != reflect.Interface {
		return impl == api
	}
	key := assignment{from: impl, to: api}
	if ok, found := assignments.Load(key); found {
		return ok.(bool)
	}
	ok := impl.AssignableTo(api)
	assignments.Store(key, ok)
	return ok
}
