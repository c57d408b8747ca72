// Package fluid is a hierarchical component container. Components are bound
// to the API types they satisfy, and resolving an API produces an instance
// with all of its dependencies, honouring the binding's scope.
//
// A binding's source is a concrete struct type, a constructor function, a
// factory function or a fixed instance. Constructor and factory parameters
// are the component's dependencies; exported struct fields tagged `inject`
// are filled after construction.
//
// Every resolution carries a ComponentContext, a set of metadata tags that
// select between variants of a component. A binding declares the tags it
// accepts; only those reach its constructor and take part in its cache
// identity, so requests differing in tags it ignores share its instances.
//
// Scopes decide how instances are shared. Singletons are built once per
// container and filtered context, even under concurrent first access.
// Thread-local components are built once per Thread, which travels in the
// context.Context. Deferred bindings hand out a handle and construct on first
// use. Everything else is built anew on each resolution.
//
// Containers form a hierarchy. A child resolves its own bindings first and
// delegates the rest to its parent, which never sees the child's bindings.
//
// Dependency cycles are detected along each resolution's reference chain.
// They are absorbed by deferred bindings, factories, Lazy parameters and
// field injection, and reported with the printed chain otherwise.
//
// There are also generic helper functions that make using this more concise.
package fluid
