package stub

import (
	"fmt"
	"strconv"

	"stubforge/internal"
	"stubforge/internal/host"
	"stubforge/internal/il"
	"stubforge/internal/metadata"

	"go.uber.org/zap"
)

// BackingFieldName returns the name of the private field a stub property of
// the given name stores its value in. id disambiguates properties sharing a
// name across a type hierarchy. The id follows the last '$', which keeps
// names distinct for distinct (property, id) pairs.
func BackingFieldName(property string, id int64) string {
	return "_" + property + "$" + strconv.FormatInt(id, 10)
}

// ImplementStubProperty implements property on tb with accessors reading and
// writing a private backing field. When forceSetter is set, a setter is
// implemented even if property has none; it takes the getter's attributes and
// is named after the property.
func ImplementStubProperty(tb *host.TypeBuilder, property *metadata.Property, keepVirtual, forceSetter bool) (host.PropertyBuilder, error) {
	if tb == nil {
		return host.PropertyBuilder{}, fmt.Errorf("type builder: %w", ErrInvalidArgument)
	}
	if property == nil {
		return host.PropertyBuilder{}, fmt.Errorf("property: %w", ErrInvalidArgument)
	}

	backing, err := tb.DefineField(BackingFieldName(property.Name, tb.Module().NextID()), property.Type, metadata.FieldPrivate)
	if err != nil {
		return host.PropertyBuilder{}, err
	}

	var getter, setter *host.MethodBuilder
	if g := property.Getter; g != nil {
		mb, err := tb.DefineMethodWithSignature(g.Name, stubAttributes(g.Attributes, keepVirtual), property.Type)
		if err != nil {
			return host.PropertyBuilder{}, err
		}
		b, err := mb.Body()
		if err != nil {
			return host.PropertyBuilder{}, err
		}
		il.LdArg(b, 0)
		b.EmitToken(il.Ldfld, backing)
		b.Emit(il.Ret)
		getter = &mb
	}

	template, name := property.Setter, ""
	if template != nil {
		name = template.Name
	} else if forceSetter {
		template, name = property.Getter, "set_"+property.Name
	}
	if template != nil {
		mb, err := tb.DefineMethodWithSignature(name, stubAttributes(template.Attributes, keepVirtual), metadata.Void, property.Type)
		if err != nil {
			return host.PropertyBuilder{}, err
		}
		b, err := mb.Body()
		if err != nil {
			return host.PropertyBuilder{}, err
		}
		il.LdArg(b, 0)
		il.LdArg(b, 1)
		b.EmitToken(il.Stfld, backing)
		b.Emit(il.Ret)
		setter = &mb
	}

	pb, err := tb.DefineProperty(property.Name, property.Attributes, property.Type)
	if err != nil {
		return pb, err
	}
	if getter != nil {
		if err := pb.SetGetMethod(*getter); err != nil {
			return pb, err
		}
	}
	if setter != nil {
		if err := pb.SetSetMethod(*setter); err != nil {
			return pb, err
		}
	}
	internal.Logger().Debug("stub property implemented",
		zap.String("type", tb.Name()),
		zap.String("member", property.String()),
		zap.String("field", backing.String()),
		zap.Bool("forcedSetter", property.Setter == nil && setter != nil))
	return pb, nil
}
