package fluid

import (
	"context"
	"fmt"
	"reflect"
)

// planInjection lists the fields of a struct type that receive dependencies
// after construction. A field takes part when it carries an `inject` struct
// tag, either empty or "optional", and may declare local tags through a
// `context` struct tag:
//
//	type Handler struct {
//	    Store  Store          `inject:""`
//	    Audit  Lazy[*Auditor] `inject:"optional"`
//	    Mirror Store          `inject:"" context:"region=eu"`
//	}
func planInjection(t reflect.Type) ([]param, error) {
	var fields []param
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		mode, ok := field.Tag.Lookup("inject")
		if !ok {
			continue
		}
		if !field.IsExported() {
			return nil, fmt.Errorf("field %s of %v is not exported", field.Name, t)
		}
		if mode != "" && mode != "optional" {
			return nil, fmt.Errorf("field %s of %v: unknown inject mode %q", field.Name, t, mode)
		}
		tags, err := FieldMetadata(field)
		if err != nil {
			return nil, err
		}

		p := classifyParam(i, field.Type)
		switch p.kind {
		case paramContext, paramResolution:
			return nil, fmt.Errorf("field %s of %v: %v cannot be injected", field.Name, t, field.Type)
		}
		p.name = "field " + field.Name
		p.optional = mode == "optional"
		p.ctx = Extract(tags)
		fields = append(fields, p)
	}
	return fields, nil
}

// injectFields fills the injectable fields of a freshly constructed
// component. While it runs the component is visible to requests that reach
// it again through the chain.
func (c *Container) injectFields(ctx context.Context, node *chainNode, b *binding, v any, filtered ComponentContext) error {
	t := reflect.TypeOf(v)
	info := getTypeInfo(t)
	if info.injectErr != nil {
		return chainError(ctx, ErrConstruction, t, "field injection", info.injectErr)
	}
	if len(info.injectFields) == 0 {
		return nil
	}

	node.setInjecting(v)
	target := reflect.ValueOf(v).Elem()
	for _, p := range info.injectFields {
		arg, err := c.argument(ctx, node, b, p, filtered, false)
		if err != nil {
			return err
		}
		target.Field(p.index).Set(arg)
	}
	return nil
}
