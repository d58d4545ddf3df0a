package metadata

import (
	"fmt"
	"strings"

	"stubforge/internal/il"
)

// Method describes a method or constructor. Once captured from an existing
// member it is a read-only input to synthesis.
type Method struct {
	Attributed
	Name              string
	Attributes        MethodAttributes
	DeclaringType     *TypeDef
	ReturnType        *Type
	Parameters        []*Parameter
	GenericParameters []*GenericParameter
	// Body is nil for abstract methods.
	Body *il.Body
	// Slot is the method that introduced the dispatch slot this method fills.
	// It is set when the declaring type is finalized.
	Slot *Method
}

const ConstructorName = ".ctor"

func (m *Method) MemberName() string { return m.Name }

func (m *Method) IsStatic() bool   { return m.Attributes&MethodStatic != 0 }
func (m *Method) IsVirtual() bool  { return m.Attributes&MethodVirtual != 0 }
func (m *Method) IsAbstract() bool { return m.Attributes&MethodAbstract != 0 }
func (m *Method) IsFinal() bool    { return m.Attributes&MethodFinal != 0 }
func (m *Method) IsNewSlot() bool  { return m.Attributes&MethodNewSlot != 0 }
func (m *Method) IsPrivate() bool  { return m.Attributes&MethodMemberAccessMask == MethodPrivate }
func (m *Method) IsPublic() bool   { return m.Attributes&MethodMemberAccessMask == MethodPublic }

func (m *Method) IsConstructor() bool { return m.Name == ConstructorName }

// HasThis reports whether argument 0 is the receiver.
func (m *Method) HasThis() bool { return !m.IsStatic() }

func (m *Method) ContainsGenericParameters() bool { return len(m.GenericParameters) > 0 }

// ParameterTypes returns the ordered parameter types, direction included.
func (m *Method) ParameterTypes() []*Type {
	types := make([]*Type, len(m.Parameters))
	for i, p := range m.Parameters {
		types[i] = p.Type
	}
	return types
}

// Returns the return type, void when none was declared.
func (m *Method) Returns() *Type {
	if m.ReturnType == nil {
		return Void
	}
	return m.ReturnType
}

// SameSignature reports whether m and other have the same generic arity,
// return type and parameter types.
func (m *Method) SameSignature(other *Method) bool {
	return m.compareSignature(other, Identical)
}

// SameSignatureIgnoringModifiers is SameSignature with required modifiers disregarded.
func (m *Method) SameSignatureIgnoringModifiers(other *Method) bool {
	return m.compareSignature(other, IdenticalIgnoringModifiers)
}

func (m *Method) compareSignature(other *Method, same func(a, b *Type) bool) bool {
	if len(m.GenericParameters) != len(other.GenericParameters) || len(m.Parameters) != len(other.Parameters) {
		return false
	}
	if !same(m.Returns(), other.Returns()) {
		return false
	}
	for i, p := range m.Parameters {
		if !same(p.Type, other.Parameters[i].Type) {
			return false
		}
	}
	return true
}

// SameGenericConstraints reports whether the generic parameters of m and other
// carry the same attributes and constraints, position by position.
func (m *Method) SameGenericConstraints(other *Method) bool {
	if len(m.GenericParameters) != len(other.GenericParameters) {
		return false
	}
	for i, g := range m.GenericParameters {
		o := other.GenericParameters[i]
		if g.Attributes != o.Attributes || len(g.Constraints) != len(o.Constraints) {
			return false
		}
		for j, c := range g.Constraints {
			if !Identical(c, o.Constraints[j]) {
				return false
			}
		}
	}
	return true
}

// Signature renders the method as "ReturnType Name<T0>(ParamTypes)".
func (m *Method) Signature() string {
	var sb strings.Builder
	sb.WriteString(m.Returns().String())
	sb.WriteByte(' ')
	sb.WriteString(m.Name)
	if len(m.GenericParameters) > 0 {
		names := make([]string, len(m.GenericParameters))
		for i, g := range m.GenericParameters {
			names[i] = g.Name
		}
		sb.WriteString("<" + strings.Join(names, ",") + ">")
	}
	params := make([]string, len(m.Parameters))
	for i, p := range m.Parameters {
		params[i] = p.Type.String()
	}
	sb.WriteString("(" + strings.Join(params, ", ") + ")")
	return sb.String()
}

func (m *Method) String() string {
	if m.DeclaringType == nil {
		return m.Signature()
	}
	return fmt.Sprintf("%s::%s", m.DeclaringType.FullName(), m.Signature())
}

// Parameter is a formal parameter of a method.
type Parameter struct {
	Attributed
	Member *Method
	// Position is 0-based and excludes the receiver.
	Position   int
	Name       string
	Type       *Type
	Attributes ParamAttributes
}

func (p *Parameter) IsIn() bool       { return p.Attributes&ParamIn != 0 }
func (p *Parameter) IsOut() bool      { return p.Attributes&ParamOut != 0 }
func (p *Parameter) IsOptional() bool { return p.Attributes&ParamOptional != 0 }

// ArgumentIndex returns the argument slot of p, accounting for the receiver.
func (p *Parameter) ArgumentIndex() int {
	if p.Member != nil && p.Member.HasThis() {
		return p.Position + 1
	}
	return p.Position
}

// GenericParameter is a generic parameter declared by a method.
type GenericParameter struct {
	Name        string
	Position    int
	Attributes  GenericParameterAttributes
	Constraints []*Type
}

// Type returns the signature type (!!n) of g.
func (g *GenericParameter) Type() *Type {
	return NewGenericParameter(g.Name, g.Position, true)
}

// Field is a storage slot declared by a type.
type Field struct {
	Attributed
	Name          string
	Type          *Type
	Attributes    FieldAttributes
	DeclaringType *TypeDef
}

func (f *Field) MemberName() string { return f.Name }
func (f *Field) IsStatic() bool     { return f.Attributes&FieldStatic != 0 }

func (f *Field) String() string {
	if f.DeclaringType == nil {
		return f.Type.String() + " " + f.Name
	}
	return fmt.Sprintf("%s %s::%s", f.Type, f.DeclaringType.FullName(), f.Name)
}

// Property pairs a type with optional accessor methods.
type Property struct {
	Attributed
	Name          string
	Type          *Type
	Attributes    PropertyAttributes
	DeclaringType *TypeDef
	Getter        *Method
	Setter        *Method
}

func (p *Property) MemberName() string { return p.Name }

func (p *Property) String() string {
	return fmt.Sprintf("%s %s", p.Type, p.Name)
}
