// The package used for describing the host type system that stubs are synthesized against.
package metadata

import (
	"fmt"
	"strings"

	"github.com/microsoft/go-winmd/flags"
)

type TypeKind uint8

const (
	KindVoid TypeKind = iota
	KindPrimitive
	KindValueType
	KindClass
	KindGenericParameter
	KindByRef
	KindArray
)

// Type is a semantic type descriptor as it appears in signatures.
type Type struct {
	Kind      TypeKind
	Namespace string
	Name      string
	// Element is the ECMA-335 element type tag of the descriptor.
	Element flags.ElementType
	// Elem is the pointee of a by-ref type or the element of an array.
	Elem *Type
	// Def is the declaration of a named class or value type, when known.
	Def              *TypeDef
	GenericArguments []*Type
	// GenericPosition and MethodGeneric identify a generic parameter (!!n or !n).
	GenericPosition int
	MethodGeneric   bool
	// Modifiers are the required custom modifiers (modreq) attached to the type.
	Modifiers []*Type
}

func newPrimitive(name string, element flags.ElementType) *Type {
	return &Type{Kind: KindPrimitive, Namespace: "System", Name: name, Element: element}
}

// Built-in types.
var (
	Void    = &Type{Kind: KindVoid, Namespace: "System", Name: "Void", Element: flags.ElementType_VOID}
	Boolean = newPrimitive("Boolean", flags.ElementType_BOOLEAN)
	Char    = newPrimitive("Char", flags.ElementType_CHAR)
	SByte   = newPrimitive("SByte", flags.ElementType_I1)
	Byte    = newPrimitive("Byte", flags.ElementType_U1)
	Int16   = newPrimitive("Int16", flags.ElementType_I2)
	UInt16  = newPrimitive("UInt16", flags.ElementType_U2)
	Int32   = newPrimitive("Int32", flags.ElementType_I4)
	UInt32  = newPrimitive("UInt32", flags.ElementType_U4)
	Int64   = newPrimitive("Int64", flags.ElementType_I8)
	UInt64  = newPrimitive("UInt64", flags.ElementType_U8)
	Single  = newPrimitive("Single", flags.ElementType_R4)
	Double  = newPrimitive("Double", flags.ElementType_R8)
	IntPtr  = newPrimitive("IntPtr", flags.ElementType_I)
	UIntPtr = newPrimitive("UIntPtr", flags.ElementType_U)
	String  = &Type{Kind: KindClass, Namespace: "System", Name: "String", Element: flags.ElementType_STRING}
	Object  = &Type{Kind: KindClass, Namespace: "System", Name: "Object", Element: flags.ElementType_OBJECT}
	Guid    = NewValueType("System", "Guid")
)

// NewValueType returns a descriptor for a struct without a known declaration.
func NewValueType(namespace, name string) *Type {
	return &Type{Kind: KindValueType, Namespace: namespace, Name: name, Element: flags.ElementType_VALUETYPE}
}

// NewClass returns a descriptor for a reference type without a known declaration.
func NewClass(namespace, name string) *Type {
	return &Type{Kind: KindClass, Namespace: namespace, Name: name, Element: flags.ElementType_CLASS}
}

// NewGenericParameter returns the descriptor of generic parameter number position.
// Generic parameters are identified by owner kind and position, never by name.
func NewGenericParameter(name string, position int, method bool) *Type {
	element := flags.ElementType_VAR
	if method {
		element = flags.ElementType_MVAR
	}
	return &Type{Kind: KindGenericParameter, Name: name, Element: element, GenericPosition: position, MethodGeneric: method}
}

func (t *Type) IsVoid() bool             { return t.Kind == KindVoid }
func (t *Type) IsValueType() bool        { return t.Kind == KindPrimitive || t.Kind == KindValueType }
func (t *Type) IsByRef() bool            { return t.Kind == KindByRef }
func (t *Type) IsArray() bool            { return t.Kind == KindArray }
func (t *Type) IsGenericParameter() bool { return t.Kind == KindGenericParameter }

// IsGuid reports whether t is System.Guid.
func (t *Type) IsGuid() bool {
	return t.Kind == KindValueType && t.Namespace == "System" && t.Name == "Guid"
}

// ElementType returns the pointee of a by-ref type or the element of an array.
func (t *Type) ElementType() *Type {
	return t.Elem
}

// MakeByRefType returns the by-reference type of t.
func (t *Type) MakeByRefType() *Type {
	return &Type{Kind: KindByRef, Name: t.Name + "&", Namespace: t.Namespace, Element: flags.ElementType_BYREF, Elem: t}
}

// MakeArrayType returns the single-dimension zero-based array type of t.
func (t *Type) MakeArrayType() *Type {
	return &Type{Kind: KindArray, Name: t.Name + "[]", Namespace: t.Namespace, Element: flags.ElementType_SZARRAY, Elem: t}
}

// MakeGenericType instantiates t with args.
func (t *Type) MakeGenericType(args ...*Type) *Type {
	c := *t
	c.GenericArguments = args
	return &c
}

// WithModifiers returns a copy of t carrying the given required modifiers.
func (t *Type) WithModifiers(mods ...*Type) *Type {
	c := *t
	c.Modifiers = append([]*Type(nil), mods...)
	return &c
}

// WithoutModifiers returns t stripped of its required modifiers.
func (t *Type) WithoutModifiers() *Type {
	if len(t.Modifiers) == 0 {
		return t
	}
	c := *t
	c.Modifiers = nil
	return &c
}

// FullName returns the namespace-qualified name of t.
func (t *Type) FullName() string {
	switch t.Kind {
	case KindByRef:
		return t.Elem.FullName() + "&"
	case KindArray:
		return t.Elem.FullName() + "[]"
	case KindGenericParameter:
		return t.String()
	}
	name := t.Name
	if t.Namespace != "" {
		name = t.Namespace + "." + t.Name
	}
	if len(t.GenericArguments) > 0 {
		args := make([]string, len(t.GenericArguments))
		for i, a := range t.GenericArguments {
			args[i] = a.FullName()
		}
		name += "[" + strings.Join(args, ",") + "]"
	}
	return name
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	var sb strings.Builder
	for _, m := range t.Modifiers {
		fmt.Fprintf(&sb, "modreq(%s) ", m.FullName())
	}
	switch t.Kind {
	case KindGenericParameter:
		if t.Name != "" {
			sb.WriteString(t.Name)
		} else if t.MethodGeneric {
			fmt.Fprintf(&sb, "!!%d", t.GenericPosition)
		} else {
			fmt.Fprintf(&sb, "!%d", t.GenericPosition)
		}
	case KindByRef:
		sb.WriteString(t.Elem.String() + "&")
	case KindArray:
		sb.WriteString(t.Elem.String() + "[]")
	default:
		sb.WriteString(t.FullName())
	}
	return sb.String()
}

// Identical reports whether a and b denote the same signature type.
// Generic parameters compare by owner kind and position; required modifiers
// are part of the identity.
func Identical(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind != b.Kind || len(a.Modifiers) != len(b.Modifiers) {
		return false
	}
	for i := range a.Modifiers {
		if !Identical(a.Modifiers[i], b.Modifiers[i]) {
			return false
		}
	}
	switch a.Kind {
	case KindGenericParameter:
		return a.MethodGeneric == b.MethodGeneric && a.GenericPosition == b.GenericPosition
	case KindByRef, KindArray:
		return Identical(a.Elem, b.Elem)
	}
	if a.Namespace != b.Namespace || a.Name != b.Name || len(a.GenericArguments) != len(b.GenericArguments) {
		return false
	}
	for i := range a.GenericArguments {
		if !Identical(a.GenericArguments[i], b.GenericArguments[i]) {
			return false
		}
	}
	return true
}

// IdenticalIgnoringModifiers is Identical with required modifiers disregarded at every level.
func IdenticalIgnoringModifiers(a, b *Type) bool {
	return Identical(stripAll(a), stripAll(b))
}

func stripAll(t *Type) *Type {
	if t == nil {
		return nil
	}
	c := *t
	c.Modifiers = nil
	if t.Elem != nil {
		c.Elem = stripAll(t.Elem)
	}
	if len(t.GenericArguments) > 0 {
		c.GenericArguments = make([]*Type, len(t.GenericArguments))
		for i, a := range t.GenericArguments {
			c.GenericArguments[i] = stripAll(a)
		}
	}
	return &c
}

// Substitute replaces the method generic parameters of t with methodArgs.
func Substitute(t *Type, methodArgs []*Type) *Type {
	return substitute(t, nil, methodArgs)
}

// Instantiate replaces the type generic parameters of t with typeArgs.
func Instantiate(t *Type, typeArgs []*Type) *Type {
	return substitute(t, typeArgs, nil)
}

func substitute(t *Type, typeArgs, methodArgs []*Type) *Type {
	if t == nil || (len(typeArgs) == 0 && len(methodArgs) == 0) {
		return t
	}
	switch t.Kind {
	case KindGenericParameter:
		args := typeArgs
		if t.MethodGeneric {
			args = methodArgs
		}
		if t.GenericPosition < len(args) {
			return args[t.GenericPosition]
		}
		return t
	case KindByRef:
		return substitute(t.Elem, typeArgs, methodArgs).MakeByRefType()
	case KindArray:
		return substitute(t.Elem, typeArgs, methodArgs).MakeArrayType()
	}
	if len(t.GenericArguments) == 0 {
		return t
	}
	args := make([]*Type, len(t.GenericArguments))
	for i, a := range t.GenericArguments {
		args[i] = substitute(a, typeArgs, methodArgs)
	}
	return t.MakeGenericType(args...)
}

// ContainsGenericParameters reports whether t still refers to a generic parameter.
func (t *Type) ContainsGenericParameters() bool {
	switch t.Kind {
	case KindGenericParameter:
		return true
	case KindByRef, KindArray:
		return t.Elem.ContainsGenericParameters()
	}
	for _, a := range t.GenericArguments {
		if a.ContainsGenericParameters() {
			return true
		}
	}
	return false
}
