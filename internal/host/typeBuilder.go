package host

import (
	"fmt"

	"stubforge/internal"
	"stubforge/internal/il"
	"stubforge/internal/metadata"

	"go.uber.org/zap"
)

// TypeBuilder is a type under construction. It owns every member it declares
// and hands out index handles to them. CreateType seals the builder: from then
// on every handle it issued fails with ErrTypeSealed.
//
// A TypeBuilder is not safe for concurrent use.
type TypeBuilder struct {
	module *Module
	def    *metadata.TypeDef

	methods    []*metadata.Method
	bodies     []*il.Body
	fields     []*metadata.Field
	properties []*metadata.Property
	overrides  []overrideEdge
	sealed     bool
}

type overrideEdge struct {
	body        int
	declaration *metadata.Method
}

func newTypeBuilder(m *Module, def *metadata.TypeDef) *TypeBuilder {
	return &TypeBuilder{module: m, def: def}
}

func (tb *TypeBuilder) Module() *Module { return tb.module }
func (tb *TypeBuilder) Name() string    { return tb.def.FullName() }
func (tb *TypeBuilder) Sealed() bool    { return tb.sealed }

// Type returns the signature type of the type under construction.
func (tb *TypeBuilder) Type() *metadata.Type { return tb.def.Type() }

func (tb *TypeBuilder) BaseType() *metadata.TypeDef { return tb.def.BaseType }

func (tb *TypeBuilder) Interfaces() []*metadata.TypeDef {
	return append([]*metadata.TypeDef(nil), tb.def.Interfaces...)
}

func (tb *TypeBuilder) checkOpen() error {
	if tb.sealed {
		return fmt.Errorf("%s: %w", tb.def.FullName(), ErrTypeSealed)
	}
	return nil
}

// AddInterfaceImplementation declares that the type implements iface.
func (tb *TypeBuilder) AddInterfaceImplementation(iface *metadata.TypeDef) error {
	if err := tb.checkOpen(); err != nil {
		return err
	}
	if iface == nil || !iface.IsInterface() {
		return fmt.Errorf("%s: interface implementation %v: %w", tb.Name(), iface, ErrInvalidArgument)
	}
	for _, existing := range tb.def.Interfaces {
		if existing == iface {
			return nil
		}
	}
	tb.def.Interfaces = append(tb.def.Interfaces, iface)
	return nil
}

// DefineMethod declares a method returning void with no parameters. The
// signature is completed through the returned handle.
func (tb *TypeBuilder) DefineMethod(name string, attrs metadata.MethodAttributes) (MethodBuilder, error) {
	if err := tb.checkOpen(); err != nil {
		return MethodBuilder{}, err
	}
	if name == "" {
		return MethodBuilder{}, fmt.Errorf("%s: method name: %w", tb.Name(), ErrInvalidArgument)
	}
	tb.methods = append(tb.methods, &metadata.Method{
		Name:          name,
		Attributes:    attrs,
		DeclaringType: tb.def,
		ReturnType:    metadata.Void,
	})
	tb.bodies = append(tb.bodies, nil)
	return MethodBuilder{tb: tb, index: len(tb.methods) - 1}, nil
}

// DefineMethodWithSignature declares a method with its full signature.
func (tb *TypeBuilder) DefineMethodWithSignature(name string, attrs metadata.MethodAttributes, returnType *metadata.Type, parameterTypes ...*metadata.Type) (MethodBuilder, error) {
	mb, err := tb.DefineMethod(name, attrs)
	if err != nil {
		return mb, err
	}
	if err := mb.SetReturnType(returnType); err != nil {
		return mb, err
	}
	return mb, mb.SetParameters(parameterTypes...)
}

// DefineConstructor declares an instance constructor.
func (tb *TypeBuilder) DefineConstructor(attrs metadata.MethodAttributes, parameterTypes ...*metadata.Type) (MethodBuilder, error) {
	if attrs&metadata.MethodStatic != 0 || attrs&metadata.MethodVirtual != 0 {
		return MethodBuilder{}, fmt.Errorf("%s: constructor attributes %s: %w", tb.Name(), attrs, ErrInvalidArgument)
	}
	attrs |= metadata.MethodSpecialName | metadata.MethodRTSpecialName
	return tb.DefineMethodWithSignature(metadata.ConstructorName, attrs, metadata.Void, parameterTypes...)
}

// DefineField declares a field. Field names are unique within a type.
func (tb *TypeBuilder) DefineField(name string, fieldType *metadata.Type, attrs metadata.FieldAttributes) (FieldBuilder, error) {
	if err := tb.checkOpen(); err != nil {
		return FieldBuilder{}, err
	}
	if name == "" || fieldType == nil || fieldType.IsVoid() {
		return FieldBuilder{}, fmt.Errorf("%s: field %q of type %v: %w", tb.Name(), name, fieldType, ErrInvalidArgument)
	}
	for _, f := range tb.fields {
		if f.Name == name {
			return FieldBuilder{}, fmt.Errorf("%s: field %s: %w", tb.Name(), name, ErrDuplicateMember)
		}
	}
	tb.fields = append(tb.fields, &metadata.Field{Name: name, Type: fieldType, Attributes: attrs, DeclaringType: tb.def})
	return FieldBuilder{tb: tb, index: len(tb.fields) - 1}, nil
}

// DefineProperty declares a property without accessors.
func (tb *TypeBuilder) DefineProperty(name string, attrs metadata.PropertyAttributes, propertyType *metadata.Type) (PropertyBuilder, error) {
	if err := tb.checkOpen(); err != nil {
		return PropertyBuilder{}, err
	}
	if name == "" || propertyType == nil {
		return PropertyBuilder{}, fmt.Errorf("%s: property %q: %w", tb.Name(), name, ErrInvalidArgument)
	}
	tb.properties = append(tb.properties, &metadata.Property{Name: name, Type: propertyType, Attributes: attrs, DeclaringType: tb.def})
	return PropertyBuilder{tb: tb, index: len(tb.properties) - 1}, nil
}

// DefineMethodOverride records that body implements the slot of declaration.
// The edge is checked and wired by CreateType.
func (tb *TypeBuilder) DefineMethodOverride(body MethodBuilder, declaration *metadata.Method) error {
	if err := tb.checkOpen(); err != nil {
		return err
	}
	if body.tb != tb {
		return fmt.Errorf("%s: override body belongs to another type: %w", tb.Name(), ErrInvalidArgument)
	}
	if declaration == nil {
		return fmt.Errorf("%s: override declaration: %w", tb.Name(), ErrInvalidArgument)
	}
	if !declaration.IsVirtual() {
		return fmt.Errorf("%s: %s is not virtual: %w", tb.Name(), declaration, ErrSignatureBinding)
	}
	tb.overrides = append(tb.overrides, overrideEdge{body: body.index, declaration: declaration})
	internal.Logger().Debug("override declared",
		zap.String("type", tb.Name()),
		zap.String("body", tb.methods[body.index].Name),
		zap.String("declaration", declaration.String()))
	return nil
}

// SetCustomAttribute applies an attribute to the type.
func (tb *TypeBuilder) SetCustomAttribute(cab *CustomAttributeBuilder) error {
	if err := tb.checkOpen(); err != nil {
		return err
	}
	if cab == nil {
		return fmt.Errorf("%s: custom attribute: %w", tb.Name(), ErrInvalidArgument)
	}
	tb.def.AddCustomAttribute(cab.Application())
	return nil
}

// CreateType finalizes the type: bodies are sealed, a default constructor is
// added when none was declared, and the dispatch table is laid out. The
// builder is sealed whether or not finalization succeeds.
func (tb *TypeBuilder) CreateType() (*metadata.TypeDef, error) {
	if err := tb.checkOpen(); err != nil {
		return nil, err
	}
	def := tb.def
	defer tb.release()

	for i, m := range tb.methods {
		if err := tb.finishMethod(m, tb.bodies[i]); err != nil {
			return nil, err
		}
		if m.IsConstructor() {
			def.Constructors = append(def.Constructors, m)
		} else {
			def.Methods = append(def.Methods, m)
		}
	}
	def.Fields = append(def.Fields, tb.fields...)
	def.Properties = append(def.Properties, tb.properties...)

	if !def.IsInterface() && len(def.Constructors) == 0 {
		ctor, err := defaultConstructor(def)
		if err != nil {
			return nil, err
		}
		def.Constructors = append(def.Constructors, ctor)
	}

	if err := tb.layout(); err != nil {
		return nil, err
	}
	tb.module.register(def)
	return def, nil
}

func (tb *TypeBuilder) release() {
	tb.sealed = true
	tb.methods = nil
	tb.bodies = nil
	tb.fields = nil
	tb.properties = nil
	tb.overrides = nil
}

func (tb *TypeBuilder) finishMethod(m *metadata.Method, body *il.Body) error {
	if m.IsAbstract() {
		if !tb.def.IsAbstract() {
			return fmt.Errorf("%s: abstract method %s on a concrete type: %w", tb.Name(), m.Name, ErrAbstractSlot)
		}
		return nil
	}
	if body == nil || body.Len() == 0 {
		return fmt.Errorf("%s: method %s has no body: %w", tb.Name(), m.Signature(), ErrInvalidProgram)
	}
	m.Body = body.Rebind(tb.resolveToken)
	return nil
}

// resolveToken swaps builder handles used as instruction operands for the
// members they declared.
func (tb *TypeBuilder) resolveToken(operand any) any {
	switch h := operand.(type) {
	case MethodBuilder:
		if h.tb == tb {
			return tb.methods[h.index]
		}
	case FieldBuilder:
		if h.tb == tb {
			return tb.fields[h.index]
		}
	}
	return operand
}

func defaultConstructor(def *metadata.TypeDef) (*metadata.Method, error) {
	body := il.NewBody()
	if base := def.BaseType; base != nil && len(base.Constructors) > 0 {
		baseCtor := base.Constructor(0)
		if baseCtor == nil || baseCtor.IsPrivate() {
			return nil, fmt.Errorf("%s: base type %s has no accessible parameterless constructor: %w", def, base, ErrMissingMethod)
		}
		il.LdArg(body, 0)
		body.EmitToken(il.Call, baseCtor)
	}
	body.Emit(il.Ret)
	body.Seal()
	return &metadata.Method{
		Name:          metadata.ConstructorName,
		Attributes:    metadata.MethodPublic | metadata.MethodHideBySig | metadata.MethodSpecialName | metadata.MethodRTSpecialName,
		DeclaringType: def,
		ReturnType:    metadata.Void,
		Body:          body,
	}, nil
}

// MethodBuilder is a handle on a method or constructor of a TypeBuilder.
type MethodBuilder struct {
	tb    *TypeBuilder
	index int
}

func (mb MethodBuilder) method() (*metadata.Method, error) {
	if mb.tb == nil {
		return nil, fmt.Errorf("method handle: %w", ErrInvalidArgument)
	}
	if err := mb.tb.checkOpen(); err != nil {
		return nil, err
	}
	return mb.tb.methods[mb.index], nil
}

// Method returns the declaration behind the handle.
func (mb MethodBuilder) Method() (*metadata.Method, error) {
	return mb.method()
}

// DefineGenericParameters declares the generic parameters of the method.
func (mb MethodBuilder) DefineGenericParameters(names ...string) ([]GenericParameterBuilder, error) {
	m, err := mb.method()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 || len(m.GenericParameters) > 0 {
		return nil, fmt.Errorf("%s: generic parameters %v: %w", m.Name, names, ErrInvalidArgument)
	}
	builders := make([]GenericParameterBuilder, len(names))
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("%s: generic parameter %d has no name: %w", m.Name, i, ErrInvalidArgument)
		}
		m.GenericParameters = append(m.GenericParameters, &metadata.GenericParameter{Name: name, Position: i})
		builders[i] = GenericParameterBuilder{method: mb, position: i}
	}
	return builders, nil
}

func (mb MethodBuilder) SetReturnType(returnType *metadata.Type) error {
	m, err := mb.method()
	if err != nil {
		return err
	}
	if returnType == nil {
		returnType = metadata.Void
	}
	m.ReturnType = returnType.WithoutModifiers()
	return nil
}

// SetParameters declares the ordered parameter types. Required custom
// modifiers cannot be expressed here and are dropped.
func (mb MethodBuilder) SetParameters(parameterTypes ...*metadata.Type) error {
	m, err := mb.method()
	if err != nil {
		return err
	}
	parameters := make([]*metadata.Parameter, len(parameterTypes))
	for i, t := range parameterTypes {
		if t == nil || t.IsVoid() {
			return fmt.Errorf("%s: parameter %d type %v: %w", m.Name, i, t, ErrInvalidArgument)
		}
		parameters[i] = &metadata.Parameter{Member: m, Position: i, Type: t.WithoutModifiers()}
		if i < len(m.Parameters) {
			parameters[i].Name = m.Parameters[i].Name
			parameters[i].Attributes = m.Parameters[i].Attributes
		}
	}
	m.Parameters = parameters
	return nil
}

// DefineParameter names parameter position, which is 1-based.
func (mb MethodBuilder) DefineParameter(position int, attrs metadata.ParamAttributes, name string) (ParameterBuilder, error) {
	m, err := mb.method()
	if err != nil {
		return ParameterBuilder{}, err
	}
	if position < 1 || position > len(m.Parameters) {
		return ParameterBuilder{}, fmt.Errorf("%s: parameter position %d: %w", m.Name, position, ErrInvalidArgument)
	}
	p := m.Parameters[position-1]
	p.Name = name
	p.Attributes = attrs
	return ParameterBuilder{method: mb, position: position}, nil
}

// Body returns the instruction sink of the method, creating it on first use.
func (mb MethodBuilder) Body() (*il.Body, error) {
	m, err := mb.method()
	if err != nil {
		return nil, err
	}
	if m.IsAbstract() {
		return nil, fmt.Errorf("%s: abstract method cannot have a body: %w", m.Name, ErrInvalidArgument)
	}
	if mb.tb.bodies[mb.index] == nil {
		mb.tb.bodies[mb.index] = il.NewBody()
	}
	return mb.tb.bodies[mb.index], nil
}

func (mb MethodBuilder) SetCustomAttribute(cab *CustomAttributeBuilder) error {
	m, err := mb.method()
	if err != nil {
		return err
	}
	if cab == nil {
		return fmt.Errorf("%s: custom attribute: %w", m.Name, ErrInvalidArgument)
	}
	m.AddCustomAttribute(cab.Application())
	return nil
}

// GenericParameterBuilder is a handle on a generic parameter of a method.
type GenericParameterBuilder struct {
	method   MethodBuilder
	position int
}

func (gb GenericParameterBuilder) parameter() (*metadata.GenericParameter, error) {
	m, err := gb.method.method()
	if err != nil {
		return nil, err
	}
	return m.GenericParameters[gb.position], nil
}

// Type returns the signature type (!!n) of the generic parameter.
func (gb GenericParameterBuilder) Type() *metadata.Type {
	name := ""
	if g, err := gb.parameter(); err == nil {
		name = g.Name
	}
	return metadata.NewGenericParameter(name, gb.position, true)
}

func (gb GenericParameterBuilder) SetGenericParameterAttributes(attrs metadata.GenericParameterAttributes) error {
	g, err := gb.parameter()
	if err != nil {
		return err
	}
	g.Attributes = attrs
	return nil
}

func (gb GenericParameterBuilder) SetInterfaceConstraints(constraints ...*metadata.Type) error {
	g, err := gb.parameter()
	if err != nil {
		return err
	}
	g.Constraints = append([]*metadata.Type(nil), constraints...)
	return nil
}

// ParameterBuilder is a handle on a declared parameter.
type ParameterBuilder struct {
	method   MethodBuilder
	position int
}

func (pb ParameterBuilder) parameter() (*metadata.Parameter, error) {
	m, err := pb.method.method()
	if err != nil {
		return nil, err
	}
	return m.Parameters[pb.position-1], nil
}

// Parameter returns the declaration behind the handle.
func (pb ParameterBuilder) Parameter() (*metadata.Parameter, error) {
	return pb.parameter()
}

func (pb ParameterBuilder) SetCustomAttribute(cab *CustomAttributeBuilder) error {
	p, err := pb.parameter()
	if err != nil {
		return err
	}
	if cab == nil {
		return fmt.Errorf("%s: custom attribute: %w", p.Name, ErrInvalidArgument)
	}
	p.AddCustomAttribute(cab.Application())
	return nil
}

// FieldBuilder is a handle on a declared field. It can be used as the
// operand of ldfld and stfld.
type FieldBuilder struct {
	tb    *TypeBuilder
	index int
}

func (fb FieldBuilder) Field() (*metadata.Field, error) {
	if fb.tb == nil {
		return nil, fmt.Errorf("field handle: %w", ErrInvalidArgument)
	}
	if err := fb.tb.checkOpen(); err != nil {
		return nil, err
	}
	return fb.tb.fields[fb.index], nil
}

func (fb FieldBuilder) String() string {
	if f, err := fb.Field(); err == nil {
		return f.String()
	}
	return "<sealed field>"
}

func (fb FieldBuilder) SetCustomAttribute(cab *CustomAttributeBuilder) error {
	f, err := fb.Field()
	if err != nil {
		return err
	}
	if cab == nil {
		return fmt.Errorf("%s: custom attribute: %w", f.Name, ErrInvalidArgument)
	}
	f.AddCustomAttribute(cab.Application())
	return nil
}

// PropertyBuilder is a handle on a declared property.
type PropertyBuilder struct {
	tb    *TypeBuilder
	index int
}

func (pb PropertyBuilder) Property() (*metadata.Property, error) {
	if pb.tb == nil {
		return nil, fmt.Errorf("property handle: %w", ErrInvalidArgument)
	}
	if err := pb.tb.checkOpen(); err != nil {
		return nil, err
	}
	return pb.tb.properties[pb.index], nil
}

func (pb PropertyBuilder) accessor(mb MethodBuilder) (*metadata.Property, *metadata.Method, error) {
	p, err := pb.Property()
	if err != nil {
		return nil, nil, err
	}
	if mb.tb != pb.tb {
		return nil, nil, fmt.Errorf("%s: accessor belongs to another type: %w", p.Name, ErrInvalidArgument)
	}
	m, err := mb.method()
	return p, m, err
}

func (pb PropertyBuilder) SetGetMethod(mb MethodBuilder) error {
	p, m, err := pb.accessor(mb)
	if err != nil {
		return err
	}
	p.Getter = m
	return nil
}

func (pb PropertyBuilder) SetSetMethod(mb MethodBuilder) error {
	p, m, err := pb.accessor(mb)
	if err != nil {
		return err
	}
	p.Setter = m
	return nil
}

func (pb PropertyBuilder) SetCustomAttribute(cab *CustomAttributeBuilder) error {
	p, err := pb.Property()
	if err != nil {
		return err
	}
	if cab == nil {
		return fmt.Errorf("%s: custom attribute: %w", p.Name, ErrInvalidArgument)
	}
	p.AddCustomAttribute(cab.Application())
	return nil
}
