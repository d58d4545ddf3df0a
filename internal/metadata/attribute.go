package metadata

import (
	"fmt"
	"reflect"
	"strings"
)

// Member is a named member a named attribute argument can target: a *Field or a *Property.
type Member interface {
	MemberName() string
}

// NamedArgument assigns Value to a public field or a settable property of the attribute.
type NamedArgument struct {
	Member Member
	Value  any
}

// IsField reports whether the argument targets a field.
func (n NamedArgument) IsField() bool {
	_, ok := n.Member.(*Field)
	return ok
}

// Name returns the name of the targeted member, empty when there is none.
func (n NamedArgument) Name() string {
	if n.Member == nil {
		return ""
	}
	return n.Member.MemberName()
}

// AttributeApplication is one captured application of an attribute: the
// constructor that builds it, its positional values and its named values.
type AttributeApplication struct {
	Constructor          *Method
	ConstructorArguments []any
	NamedArguments       []NamedArgument
}

// AttributeType returns the type declaring the attribute constructor.
func (a *AttributeApplication) AttributeType() *TypeDef {
	if a.Constructor == nil {
		return nil
	}
	return a.Constructor.DeclaringType
}

// Clone returns an independent copy of a.
func (a *AttributeApplication) Clone() *AttributeApplication {
	return &AttributeApplication{
		Constructor:          a.Constructor,
		ConstructorArguments: append([]any(nil), a.ConstructorArguments...),
		NamedArguments:       append([]NamedArgument(nil), a.NamedArguments...),
	}
}

// Equal reports whether a and b apply the same attribute with the same values.
func (a *AttributeApplication) Equal(b *AttributeApplication) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Constructor != b.Constructor || len(a.NamedArguments) != len(b.NamedArguments) {
		return false
	}
	if !reflect.DeepEqual(a.ConstructorArguments, b.ConstructorArguments) {
		return false
	}
	for i, n := range a.NamedArguments {
		o := b.NamedArguments[i]
		if n.Member != o.Member || !reflect.DeepEqual(n.Value, o.Value) {
			return false
		}
	}
	return true
}

func (a *AttributeApplication) String() string {
	args := make([]string, 0, len(a.ConstructorArguments)+len(a.NamedArguments))
	for _, v := range a.ConstructorArguments {
		args = append(args, fmt.Sprintf("%#v", v))
	}
	for _, n := range a.NamedArguments {
		args = append(args, fmt.Sprintf("%s = %#v", n.Name(), n.Value))
	}
	return fmt.Sprintf("[%s(%s)]", a.AttributeType(), strings.Join(args, ", "))
}

// Attributed holds the custom attributes applied to a type, member or parameter.
type Attributed struct {
	customAttributes []*AttributeApplication
}

func (a *Attributed) AddCustomAttribute(app *AttributeApplication) {
	a.customAttributes = append(a.customAttributes, app)
}

// CustomAttributes returns the applied attributes in declaration order.
// Every call materializes new copies.
func (a *Attributed) CustomAttributes() []*AttributeApplication {
	apps := make([]*AttributeApplication, len(a.customAttributes))
	for i, app := range a.customAttributes {
		apps[i] = app.Clone()
	}
	return apps
}

// IsDefined reports whether an attribute assignable to t is applied.
func (a *Attributed) IsDefined(t *TypeDef) bool {
	for _, app := range a.customAttributes {
		if at := app.AttributeType(); at != nil && at.IsAssignableTo(t) {
			return true
		}
	}
	return false
}

// InAttribute marks a parameter as passed into the callee. It is also the
// required modifier carried by read-only by-reference parameters.
var InAttribute = newMarkerAttribute("System.Runtime.InteropServices", "InAttribute")

// OutAttribute marks a by-reference parameter written by the callee.
var OutAttribute = newMarkerAttribute("System.Runtime.InteropServices", "OutAttribute")

// IsReadOnlyAttribute marks a by-reference parameter as read-only.
var IsReadOnlyAttribute = newMarkerAttribute("System.Runtime.CompilerServices", "IsReadOnlyAttribute")

func newMarkerAttribute(namespace, name string) *TypeDef {
	d := NewTypeDef(namespace, name, TypePublic|TypeSealed)
	d.AddMethod(&Method{
		Name:       ConstructorName,
		Attributes: MethodPublic | MethodHideBySig | MethodSpecialName | MethodRTSpecialName,
		ReturnType: Void,
	})
	return d
}

// ApplyMarker returns an application of a parameterless attribute type.
func ApplyMarker(d *TypeDef) *AttributeApplication {
	return &AttributeApplication{Constructor: d.Constructor(0)}
}

// InParameterType returns the signature type of an "in" parameter of type t:
// a by-reference type carrying the InAttribute required modifier.
func InParameterType(t *Type) *Type {
	return t.MakeByRefType().WithModifiers(InAttribute.Type())
}
