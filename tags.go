package fluid

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// TagID identifies a metadata tag. It is a kind plus optional type
// parameters, the latter distinguishing e.g. the same kind of tag declared
// at differently typed reference sites.
type TagID struct {
	kind   string
	params string
}

// Tag returns the identity of a tag of the given kind, optionally
// parameterised by types.
func Tag(kind string, params ...reflect.Type) TagID {
	if len(params) == 0 {
		return TagID{kind: kind}
	}
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = typeName(p)
	}
	return TagID{kind: kind, params: strings.Join(names, ",")}
}

// Kind returns the kind of the tag.
func (id TagID) Kind() string {
	return id.kind
}

func (id TagID) String() string {
	if id.params == "" {
		return id.kind
	}
	return id.kind + "[" + id.params + "]"
}

func (id TagID) less(other TagID) bool {
	if id.kind != other.kind {
		return id.kind < other.kind
	}
	return id.params < other.params
}

// Metadata is a single tag together with its value(s).
type Metadata struct {
	ID     TagID
	Values []any
}

// Meta is shorthand for building a Metadata value.
func Meta(id TagID, values ...any) Metadata {
	return Metadata{ID: id, Values: values}
}

// TagSet is the set of tag identities a binding accepts. Tags outside of the
// set never reach the binding and do not affect its cache identity.
type TagSet struct {
	ids map[TagID]struct{}
}

// Accepts builds a TagSet from the given identities.
func Accepts(ids ...TagID) TagSet {
	if len(ids) == 0 {
		return TagSet{}
	}
	set := TagSet{ids: make(map[TagID]struct{}, len(ids))}
	for _, id := range ids {
		set.ids[id] = struct{}{}
	}
	return set
}

// Contains reports whether id is part of the set.
func (s TagSet) Contains(id TagID) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of identities in the set.
func (s TagSet) Len() int {
	return len(s.ids)
}

// ComponentContext is an immutable, ordered mapping from tag identity to tag
// values. Contexts are compared and hashed by content, never by identity.
//
// The zero value is the empty context.
type ComponentContext struct {
	entries []Metadata
	key     string
	hash    uint64
}

// EmptyContext is the context carrying no tags.
var EmptyContext = ComponentContext{}

// NewContext builds a context from the given metadata. When the same tag
// appears more than once the last occurrence wins.
func NewContext(md ...Metadata) ComponentContext {
	if len(md) == 0 {
		return EmptyContext
	}
	byID := make(map[TagID]Metadata, len(md))
	for _, m := range md {
		if m.ID.kind == "" {
			continue
		}
		byID[m.ID] = Metadata{ID: m.ID, Values: append([]any(nil), m.Values...)}
	}
	entries := make([]Metadata, 0, len(byID))
	for _, m := range byID {
		entries = append(entries, m)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID.less(entries[j].ID)
	})
	return sealContext(entries)
}

// sealContext computes the canonical key and digest of already sorted
// entries. Entries must not be modified afterwards.
func sealContext(entries []Metadata) ComponentContext {
	if len(entries) == 0 {
		return EmptyContext
	}
	builder := strings.Builder{}
	for i, m := range entries {
		if i > 0 {
			builder.WriteString(";")
		}
		builder.WriteString(m.ID.String())
		builder.WriteString("=")
		for j, v := range m.Values {
			if j > 0 {
				builder.WriteString("|")
			}
			builder.WriteString(valueKey(v))
		}
	}
	key := builder.String()
	return ComponentContext{
		entries: entries,
		key:     key,
		hash:    xxhash.Sum64String(key),
	}
}

// Derive produces a context where every tag of child overrides the same tag
// of parent, and tags only present in parent pass through unchanged.
func Derive(parent, child ComponentContext) ComponentContext {
	if len(child.entries) == 0 {
		return parent
	}
	if len(parent.entries) == 0 {
		return child
	}
	merged := make([]Metadata, 0, len(parent.entries)+len(child.entries))
	i, j := 0, 0
	for i < len(parent.entries) && j < len(child.entries) {
		p, c := parent.entries[i], child.entries[j]
		switch {
		case p.ID == c.ID:
			merged = append(merged, c)
			i++
			j++
		case p.ID.less(c.ID):
			merged = append(merged, p)
			i++
		default:
			merged = append(merged, c)
			j++
		}
	}
	merged = append(merged, parent.entries[i:]...)
	merged = append(merged, child.entries[j:]...)
	return sealContext(merged)
}

// Filter returns a context holding only the tags in accepted.
func (c ComponentContext) Filter(accepted TagSet) ComponentContext {
	if len(c.entries) == 0 || accepted.Len() == 0 {
		return EmptyContext
	}
	kept := make([]Metadata, 0, len(c.entries))
	for _, m := range c.entries {
		if accepted.Contains(m.ID) {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(c.entries) {
		return c
	}
	return sealContext(kept)
}

func (c ComponentContext) find(id TagID) (Metadata, bool) {
	i := sort.Search(len(c.entries), func(i int) bool {
		return !c.entries[i].ID.less(id)
	})
	if i < len(c.entries) && c.entries[i].ID == id {
		return c.entries[i], true
	}
	return Metadata{}, false
}

// Has reports whether the tag is present, with or without values.
func (c ComponentContext) Has(id TagID) bool {
	_, ok := c.find(id)
	return ok
}

// Value returns the first value of the tag.
func (c ComponentContext) Value(id TagID) (any, bool) {
	m, ok := c.find(id)
	if !ok || len(m.Values) == 0 {
		return nil, false
	}
	return m.Values[0], true
}

// Values returns a copy of all values of the tag.
func (c ComponentContext) Values(id TagID) []any {
	m, ok := c.find(id)
	if !ok {
		return nil
	}
	return append([]any(nil), m.Values...)
}

// IDs returns the tag identities in canonical order.
func (c ComponentContext) IDs() []TagID {
	ids := make([]TagID, len(c.entries))
	for i, m := range c.entries {
		ids[i] = m.ID
	}
	return ids
}

// Len returns the number of tags.
func (c ComponentContext) Len() int {
	return len(c.entries)
}

// Key returns the canonical representation of the context's contents. Equal
// contexts have equal keys.
func (c ComponentContext) Key() string {
	return c.key
}

// Hash returns the xxhash digest of Key.
func (c ComponentContext) Hash() uint64 {
	return c.hash
}

// Equal reports whether both contexts carry the same tags and values.
func (c ComponentContext) Equal(other ComponentContext) bool {
	return c.hash == other.hash && c.key == other.key
}

func (c ComponentContext) String() string {
	builder := strings.Builder{}
	builder.WriteString("{")
	for i, m := range c.entries {
		if i > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString(m.ID.String())
		if len(m.Values) > 0 {
			builder.WriteString("=")
			for j, v := range m.Values {
				if j > 0 {
					builder.WriteString("|")
				}
				builder.WriteString(fmt.Sprint(v))
			}
		}
	}
	builder.WriteString("}")
	return builder.String()
}

// MetadataSource is a bundle of metadata declared at a call or declaration
// site.
type MetadataSource interface {
	Metadata() []Metadata
}

// Tags is the simplest MetadataSource.
type Tags []Metadata

func (t Tags) Metadata() []Metadata {
	return t
}

// Extract normalises a metadata bundle into a context.
func Extract(src MetadataSource) ComponentContext {
	if src == nil {
		return EmptyContext
	}
	return NewContext(src.Metadata()...)
}

// ParseTags parses the textual tag form used in struct tags:
//
//	kind=value;other=v1|v2;marker
//
// Values are kept as strings. A kind without '=' declares a tag with no
// values.
func ParseTags(spec string) (Tags, error) {
	var tags Tags
	for _, part := range strings.Split(spec, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, values, hasValues := strings.Cut(part, "=")
		kind = strings.TrimSpace(kind)
		if kind == "" {
			return nil, fmt.Errorf("malformed tag %q: missing kind", part)
		}
		md := Metadata{ID: Tag(kind)}
		if hasValues {
			for _, v := range strings.Split(values, "|") {
				md.Values = append(md.Values, strings.TrimSpace(v))
			}
		}
		tags = append(tags, md)
	}
	return tags, nil
}

// FieldMetadata returns the metadata declared on a struct field through its
// `context` struct tag.
func FieldMetadata(field reflect.StructField) (Tags, error) {
	spec, ok := field.Tag.Lookup("context")
	if !ok {
		return nil, nil
	}
	tags, err := ParseTags(spec)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", field.Name, err)
	}
	return tags, nil
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}
