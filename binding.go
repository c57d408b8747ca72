package fluid

import (
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"
)

// Scope is the instance-sharing policy of a binding. Scopes are flags;
// Singleton and ThreadLocal are mutually exclusive, and either may be
// combined with Deferred.
type Scope uint8

const (
	// Unscoped bindings construct a fresh instance on every resolution.
	Unscoped Scope = 0

	// Singleton bindings construct once per container and filtered context.
	Singleton Scope = 1 << 0

	// ThreadLocal bindings construct once per Thread and filtered context.
	ThreadLocal Scope = 1 << 1

	// Deferred bindings resolve to a *Handle; construction happens
	// when the handle is first used.
	Deferred Scope = 1 << 2
)

func (s Scope) String() string {
	if s == Unscoped {
		return "unscoped"
	}
	var parts []string
	if s&Singleton != 0 {
		parts = append(parts, "singleton")
	}
	if s&ThreadLocal != 0 {
		parts = append(parts, "thread-local")
	}
	if s&Deferred != 0 {
		parts = append(parts, "deferred")
	}
	return strings.Join(parts, "+")
}

func (s Scope) validate() error {
	if s&^(Singleton|ThreadLocal|Deferred) != 0 {
		return fmt.Errorf("unknown scope flags %#x", uint8(s))
	}
	if s&Singleton != 0 && s&ThreadLocal != 0 {
		return fmt.Errorf("singleton and thread-local are exclusive")
	}
	return nil
}

type sourceKind int

const (
	sourceConcrete sourceKind = iota
	sourceConstructor
	sourceInstance
	sourceFactory
	sourceAdapter
)

func (k sourceKind) String() string {
	switch k {
	case sourceConcrete:
		return "concrete"
	case sourceConstructor:
		return "constructor"
	case sourceInstance:
		return "instance"
	case sourceFactory:
		return "factory"
	case sourceAdapter:
		return "adapter"
	}
	return "unknown"
}

// Source is where a binding's instances come from: a concrete type, a
// constructor function, a fixed instance or a factory function.
type Source struct {
	kind  sourceKind
	typ   reflect.Type
	fn    any
	value any
	deps  []Dependency
}

// Concrete binds a struct type. Instances are allocated with reflect.New
// and receive field injection; t may be the struct or a pointer to it.
func Concrete(t reflect.Type) *Source {
	return &Source{kind: sourceConcrete, typ: t}
}

// ConcreteOf is the generic form of Concrete.
func ConcreteOf[T any]() *Source {
	return Concrete(typeOf[T]())
}

// Constructor binds a function whose parameters are its dependencies and
// whose single non-error result is the component. deps refine individual
// parameters.
//
// Besides components, parameters may be a context.Context, the binding's
// ComponentContext, a *Resolution, a Lazy[T] or a Group[T].
func Constructor(fn any, deps ...Dependency) *Source {
	return &Source{kind: sourceConstructor, fn: fn, deps: deps}
}

// Instance binds a fixed, already built value.
func Instance(v any) *Source {
	return &Source{kind: sourceInstance, value: v}
}

var bindingIDs atomic.Uint64

// binding is a registered, immutable mapping of APIs to a source.
type binding struct {
	id      uint64
	apis    []reflect.Type
	groups  []reflect.Type
	source  *Source
	impl    reflect.Type
	scope   Scope
	accepts TagSet
	eager   bool
	label   string

	// params and hasError describe constructor and factory functions.
	params   []param
	hasError bool
}

// primaryAPI is the type the binding is resolved as when no request
// names one, such as for eager construction.
func (b *binding) primaryAPI() reflect.Type {
	if len(b.apis) > 0 {
		return b.apis[0]
	}
	return b.impl
}

func (b *binding) cacheKey(filtered ComponentContext) string {
	return fmt.Sprintf("%d#%s", b.id, filtered.Key())
}

func (b *binding) String() string {
	if b.label != "" {
		return b.label
	}
	return fmt.Sprintf("%v", b.impl)
}

// bindSpec collects BindOptions.
type bindSpec struct {
	apis    []reflect.Type
	groups  []reflect.Type
	scope   Scope
	accepts []TagID
	eager   bool
	label   string

	discover []reflect.Type
}

// BindOption configures a binding.
type BindOption func(*bindSpec)

// As adds T to the APIs the binding satisfies.
func As[T any]() BindOption {
	return AsType(typeOf[T]())
}

// AsType adds t to the APIs the binding satisfies.
func AsType(t reflect.Type) BindOption {
	return func(s *bindSpec) {
		s.apis = append(s.apis, t)
	}
}

// MemberOf makes the binding a member of the group of T.
func MemberOf[T any]() BindOption {
	return func(s *bindSpec) {
		s.groups = append(s.groups, typeOf[T]())
	}
}

// WithScope sets the binding's scope.
func WithScope(scope Scope) BindOption {
	return func(s *bindSpec) {
		s.scope = scope
	}
}

// Accepting declares the tags the binding cares about. Only those reach its
// constructor and take part in its cache identity.
func Accepting(ids ...TagID) BindOption {
	return func(s *bindSpec) {
		s.accepts = append(s.accepts, ids...)
	}
}

// Eager marks a singleton binding for construction when the container
// starts.
func Eager() BindOption {
	return func(s *bindSpec) {
		s.eager = true
	}
}

// Discover lets the binding pick its API among candidates: the single
// candidate the implementation satisfies is added to its APIs. Satisfying
// several candidates is ambiguous and fails the binding.
func Discover(candidates ...reflect.Type) BindOption {
	return func(s *bindSpec) {
		s.discover = append(s.discover, candidates...)
	}
}

// Named sets the label used for the binding in diagnostics and timings.
func Named(label string) BindOption {
	return func(s *bindSpec) {
		s.label = label
	}
}

// newBinding validates src against the options and builds the binding.
func newBinding(src *Source, opts []BindOption) (*binding, error) {
	spec := bindSpec{}
	for _, opt := range opts {
		opt(&spec)
	}
	if src == nil {
		return nil, &BindingError{Kind: ErrAbstractImplementation, Message: "nil source"}
	}
	if err := spec.scope.validate(); err != nil {
		return nil, &BindingError{Kind: ErrInvalidScope, Message: err.Error()}
	}
	if spec.eager && spec.scope&Singleton == 0 {
		return nil, &BindingError{Kind: ErrInvalidScope, Message: "eager construction requires singleton scope"}
	}

	b := &binding{
		source:  src,
		scope:   spec.scope,
		accepts: Accepts(spec.accepts...),
		eager:   spec.eager,
		label:   spec.label,
		groups:  spec.groups,
	}
	if err := b.analyzeSource(); err != nil {
		return nil, err
	}

	b.apis = spec.apis
	if len(spec.discover) > 0 {
		api, err := discoverAPI(b.impl, spec.discover)
		if err != nil {
			return nil, err
		}
		b.apis = append(b.apis, api)
	}
	if len(b.apis) == 0 && len(b.groups) == 0 {
		b.apis = []reflect.Type{b.impl}
	}
	for _, api := range append(append([]reflect.Type(nil), b.apis...), b.groups...) {
		if api == nil {
			return nil, &BindingError{Kind: ErrIncompatibleAPI, Implementation: b.impl, Message: "nil api"}
		}
		if !canAssign(b.impl, api) {
			return nil, &BindingError{Kind: ErrIncompatibleAPI, API: api, Implementation: b.impl}
		}
	}

	b.id = bindingIDs.Add(1)
	return b, nil
}

func discoverAPI(impl reflect.Type, candidates []reflect.Type) (reflect.Type, error) {
	var matches []reflect.Type
	for _, candidate := range candidates {
		if candidate != nil && canAssign(impl, candidate) {
			matches = append(matches, candidate)
		}
	}
	switch len(matches) {
	case 0:
		return nil, &BindingError{Kind: ErrIncompatibleAPI, Implementation: impl, Message: "no candidate api is satisfied"}
	case 1:
		return matches[0], nil
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.String()
	}
	return nil, &BindingError{Kind: ErrAmbiguousAPI, Implementation: impl, Message: "satisfies " + strings.Join(names, ", ")}
}

// analyzeSource determines the implementation type and, for functions,
// the dependency descriptors.
func (b *binding) analyzeSource() error {
	src := b.source
	switch src.kind {
	case sourceConcrete:
		t := src.typ
		if t != nil && t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t == nil || t.Kind() != reflect.Struct {
			return &BindingError{Kind: ErrAbstractImplementation, Implementation: src.typ, Message: "concrete type must be a struct"}
		}
		b.impl = reflect.PointerTo(t)
	case sourceInstance:
		if isNil(src.value) {
			return &BindingError{Kind: ErrAbstractImplementation, Message: "nil instance"}
		}
		b.impl = reflect.TypeOf(src.value)
	case sourceConstructor, sourceFactory:
		fa, err := analyzeFunction(src.fn, src.deps)
		if err != nil {
			return err
		}
		b.impl = fa.result
		b.params = fa.params
		b.hasError = fa.hasError
	case sourceAdapter:
		params, err := analyzeAdapter(src.fn, src.typ, src.deps)
		if err != nil {
			return err
		}
		b.impl = src.typ
		b.params = params
	}
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// APIOf returns the reflect.Type of T, including interface types.
func APIOf[T any]() reflect.Type {
	return typeOf[T]()
}
