package fluid

// Dependency refines one parameter of a constructor or factory: the tags it
// declares locally, and whether it may be absent.
type Dependency struct {
	// Index is the position of the parameter.
	Index int

	// Context holds the tags declared for this dependency. They override
	// the dependent's context when the dependency is resolved.
	Context ComponentContext

	// Optional dependencies that cannot be resolved yield Default, or the
	// parameter's zero value, instead of failing the resolution.
	Optional bool
	Default  any
}

// Arg declares tags for the parameter at index.
func Arg(index int, md ...Metadata) Dependency {
	return Dependency{Index: index, Context: NewContext(md...)}
}

// OptionalArg declares the parameter at index optional.
func OptionalArg(index int, md ...Metadata) Dependency {
	return Dependency{Index: index, Context: NewContext(md...), Optional: true}
}

// WithDefault returns a copy of the optional dependency that falls back to
// v.
func (d Dependency) WithDefault(v any) Dependency {
	d.Optional = true
	d.Default = v
	return d
}
