package host

import (
	"fmt"
	"maps"

	"stubforge/internal/metadata"

	"github.com/google/uuid"
	"github.com/microsoft/go-winmd/flags"
)

// Runtime values are plain Go values: bool, the sized integer types, uint16
// for Char, float32, float64, uintptr for native integers, string, uuid.UUID
// for System.Guid, Struct for other value types and nil for the null
// reference. Reference types are *Object, *Array and *Boxed.

// Object is an instance of a class.
type Object struct {
	Type   *metadata.TypeDef
	fields map[*metadata.Field]any
}

func newObject(def *metadata.TypeDef) (*Object, error) {
	obj := &Object{Type: def, fields: make(map[*metadata.Field]any)}
	for _, f := range def.InstanceFields() {
		v, err := Zero(f.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		obj.fields[f] = v
	}
	return obj, nil
}

func (o *Object) field(name string) (*metadata.Field, error) {
	f := o.Type.Field(name)
	if f == nil || f.IsStatic() {
		return nil, fmt.Errorf("%s has no instance field %s: %w", o.Type, name, ErrInvalidArgument)
	}
	return f, nil
}

// Field returns the value of the instance field named name.
func (o *Object) Field(name string) (any, error) {
	f, err := o.field(name)
	if err != nil {
		return nil, err
	}
	return o.fields[f], nil
}

// SetField assigns the instance field named name.
func (o *Object) SetField(name string, v any) error {
	f, err := o.field(name)
	if err != nil {
		return err
	}
	return o.store(f, v)
}

func (o *Object) load(f *metadata.Field) (any, error) {
	v, ok := o.fields[f]
	if !ok {
		return nil, fmt.Errorf("%s has no field %s: %w", o.Type, f.Name, ErrInvalidProgram)
	}
	return v, nil
}

func (o *Object) store(f *metadata.Field, v any) error {
	if _, ok := o.fields[f]; !ok {
		return fmt.Errorf("%s has no field %s: %w", o.Type, f.Name, ErrInvalidProgram)
	}
	v, err := coerce(v, f.Type)
	if err != nil {
		return fmt.Errorf("field %s: %w", f.Name, err)
	}
	o.fields[f] = v
	return nil
}

func (o *Object) String() string { return fmt.Sprintf("%s@%p", o.Type, o) }

// Struct is an instance of a value type other than the primitives and Guid.
type Struct struct {
	Type   *metadata.Type
	Fields map[string]any
}

func (s Struct) clone() Struct {
	return Struct{Type: s.Type, Fields: maps.Clone(s.Fields)}
}

// Boxed is a value type instance wrapped in a reference.
type Boxed struct {
	Type  *metadata.Type
	Value any
}

// Array is a zero-based single-dimension array.
type Array struct {
	Elem  *metadata.Type
	Items []any
}

// Ref is a managed pointer: the value of a by-reference argument.
type Ref interface {
	Load() any
	Store(v any) error
}

// Cell is a caller-owned storage location passed to by-reference parameters.
type Cell struct {
	Value any
}

func (c *Cell) Load() any { return c.Value }

func (c *Cell) Store(v any) error {
	c.Value = v
	return nil
}

// slotRef points at an argument or a local of a running frame.
type slotRef struct {
	slot *any
	typ  *metadata.Type
}

func (r *slotRef) Load() any { return *r.slot }

func (r *slotRef) Store(v any) error {
	v, err := coerce(v, r.typ)
	if err != nil {
		return err
	}
	*r.slot = v
	return nil
}

// Zero returns the default value of t: all bits zero for value types and
// the null reference otherwise.
func Zero(t *metadata.Type) (any, error) {
	switch t.Kind {
	case metadata.KindPrimitive:
		return coerce(int32(0), t)
	case metadata.KindValueType:
		if t.IsGuid() {
			return uuid.Nil, nil
		}
		s := Struct{Type: t, Fields: make(map[string]any)}
		if t.Def != nil {
			for _, f := range t.Def.InstanceFields() {
				v, err := Zero(metadata.Instantiate(f.Type, t.GenericArguments))
				if err != nil {
					return nil, err
				}
				s.Fields[f.Name] = v
			}
		}
		return s, nil
	case metadata.KindGenericParameter:
		return nil, fmt.Errorf("default value of open generic parameter %s: %w", t, ErrInvalidProgram)
	case metadata.KindVoid:
		return nil, fmt.Errorf("default value of void: %w", ErrInvalidProgram)
	}
	return nil, nil
}

// coerce converts v to the representation of a location of type t.
func coerce(v any, t *metadata.Type) (any, error) {
	switch t.Kind {
	case metadata.KindPrimitive:
		return coercePrimitive(v, t)
	case metadata.KindValueType:
		switch x := v.(type) {
		case uuid.UUID:
			if t.IsGuid() {
				return x, nil
			}
		case Struct:
			if !t.IsGuid() {
				return x.clone(), nil
			}
		}
		return nil, fmt.Errorf("cannot store %T as %s: %w", v, t, ErrInvalidProgram)
	case metadata.KindByRef:
		if _, ok := v.(Ref); !ok {
			return nil, fmt.Errorf("cannot store %T as %s: %w", v, t, ErrInvalidProgram)
		}
	}
	return v, nil
}

func coercePrimitive(v any, t *metadata.Type) (any, error) {
	switch t.Element {
	case flags.ElementType_BOOLEAN:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		if i, ok := toInt64(v); ok {
			return i != 0, nil
		}
	case flags.ElementType_R4:
		if f, ok := toFloat64(v); ok {
			return float32(f), nil
		}
	case flags.ElementType_R8:
		if f, ok := toFloat64(v); ok {
			return f, nil
		}
	default:
		i, ok := toInt64(v)
		if !ok {
			break
		}
		switch t.Element {
		case flags.ElementType_I1:
			return int8(i), nil
		case flags.ElementType_U1:
			return uint8(i), nil
		case flags.ElementType_I2:
			return int16(i), nil
		case flags.ElementType_U2, flags.ElementType_CHAR:
			return uint16(i), nil
		case flags.ElementType_I4:
			return int32(i), nil
		case flags.ElementType_U4:
			return uint32(i), nil
		case flags.ElementType_I8:
			return i, nil
		case flags.ElementType_U8:
			return uint64(i), nil
		case flags.ElementType_I, flags.ElementType_U:
			return uintptr(i), nil
		}
	}
	return nil, fmt.Errorf("cannot store %T as %s: %w", v, t, ErrInvalidProgram)
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case int8:
		return int64(x), true
	case uint8:
		return int64(x), true
	case int16:
		return int64(x), true
	case uint16:
		return int64(x), true
	case int32:
		return int64(x), true
	case uint32:
		return int64(x), true
	case int64:
		return x, true
	case uint64:
		return int64(x), true
	case int:
		return int64(x), true
	case uintptr:
		return int64(x), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// assignable reports whether v can be passed where t is expected without
// changing its kind.
func assignable(v any, t *metadata.Type) bool {
	switch t.Kind {
	case metadata.KindPrimitive:
		switch t.Element {
		case flags.ElementType_BOOLEAN:
			_, ok := v.(bool)
			return ok
		case flags.ElementType_R4, flags.ElementType_R8:
			_, ok := toFloat64(v)
			return ok
		}
		_, isBool := v.(bool)
		_, ok := toInt64(v)
		return ok && !isBool
	case metadata.KindValueType:
		_, err := coerce(v, t)
		return err == nil
	case metadata.KindByRef:
		_, ok := v.(Ref)
		return ok
	}
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return t.Element == flags.ElementType_STRING || t.Element == flags.ElementType_OBJECT
	case *Object:
		return t.Def == nil || x.Type.IsAssignableTo(t.Def)
	case *Array:
		return t.IsArray() || t.Element == flags.ElementType_OBJECT
	case *Boxed:
		return t.Element == flags.ElementType_OBJECT || t.Kind == metadata.KindClass
	}
	return false
}
