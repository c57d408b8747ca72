package fluid

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Status is a diagnostic tool that returns a string describing the
// container. The result is each bound API with the binding behind it, its
// scope, and how many instances it has cached, followed by the status of
// the parent container.
//
// Group memberships are listed under the group API with a "group" prefix.
func (c *Container) Status() string {
	lines := map[string]string{}
	var keys []string

	cached := c.cachedPerBinding()
	for _, b := range c.reg.list() {
		source := formatSourceDebug(b)
		for _, api := range b.apis {
			keyString := fmt.Sprintf("%v", api)
			lines[keyString] = fmt.Sprintf("%v - %s - %s - cached: %d", api, b.scope, source, cached[b.id])
			keys = append(keys, keyString)
		}
		for _, g := range b.groups {
			keyString := fmt.Sprintf("group %v #%d", g, b.id)
			lines[keyString] = fmt.Sprintf("group %v - %s - %s", g, b.scope, source)
			keys = append(keys, keyString)
		}
	}

	sort.Strings(keys)

	result := strings.Builder{}
	for _, key := range keys {
		if result.Len() > 0 {
			result.WriteString("\n")
		}
		result.WriteString(lines[key])
	}
	if c.stopped.Load() {
		result.WriteString("\n(stopped)")
	}

	if c.parent != nil {
		result.WriteString("\n----\nparent container:\n")
		result.WriteString(c.parent.Status())
	}

	return result.String()
}

// cachedPerBinding counts the cached instances of each binding across all
// partitions.
func (c *Container) cachedPerBinding() map[uint64]int {
	counts := map[uint64]int{}
	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()
	for _, p := range c.cache.partitions {
		for key := range p {
			var id uint64
			if _, err := fmt.Sscanf(key, "%d#", &id); err == nil {
				counts[id]++
			}
		}
	}
	return counts
}

// formatSourceDebug returns a string representation of a binding's source
// without the raw addresses of functions or instances.
func formatSourceDebug(b *binding) string {
	switch b.source.kind {
	case sourceInstance:
		return fmt.Sprintf("instance %v", b.impl)
	case sourceConcrete:
		return fmt.Sprintf("concrete %v", b.impl)
	}
	fnType := reflect.TypeOf(b.source.fn)
	builder := strings.Builder{}
	builder.WriteString(b.source.kind.String())
	builder.WriteString(" (")
	for i := 0; i < fnType.NumIn(); i++ {
		if i > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString(fnType.In(i).String())
	}
	builder.WriteString(") ")
	for i := 0; i < fnType.NumOut(); i++ {
		if i > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString(fnType.Out(i).String())
	}
	return builder.String()
}
