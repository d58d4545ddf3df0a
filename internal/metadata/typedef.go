package metadata

// TypeDef is a type declaration: an interface, a class or a struct.
type TypeDef struct {
	Attributed
	Namespace    string
	Name         string
	Attributes   TypeAttributes
	ValueType    bool
	BaseType     *TypeDef
	Interfaces   []*TypeDef
	Fields       []*Field
	Methods      []*Method
	Constructors []*Method
	Properties   []*Property
	// MethodImpls are the explicit override edges declared by the type.
	MethodImpls []MethodImpl
	// VTable maps each dispatch slot to its implementation for this type,
	// inherited slots included. It is filled when the type is finalized.
	VTable map[*Method]*Method

	typ *Type
}

// MethodImpl records that Body implements the slot of Declaration.
type MethodImpl struct {
	Body        *Method
	Declaration *Method
}

func NewTypeDef(namespace, name string, attrs TypeAttributes) *TypeDef {
	return &TypeDef{Namespace: namespace, Name: name, Attributes: attrs}
}

// Type returns the signature type that refers to d.
func (d *TypeDef) Type() *Type {
	if d.typ == nil {
		if d.ValueType {
			d.typ = NewValueType(d.Namespace, d.Name)
		} else {
			d.typ = NewClass(d.Namespace, d.Name)
		}
		d.typ.Def = d
	}
	return d.typ
}

func (d *TypeDef) FullName() string {
	if d.Namespace == "" {
		return d.Name
	}
	return d.Namespace + "." + d.Name
}

func (d *TypeDef) String() string { return d.FullName() }

func (d *TypeDef) IsInterface() bool { return d.Attributes&TypeInterface != 0 }
func (d *TypeDef) IsAbstract() bool  { return d.Attributes&TypeAbstract != 0 || d.IsInterface() }
func (d *TypeDef) IsSealed() bool    { return d.Attributes&TypeSealed != 0 }

// AddMethod declares m on d.
func (d *TypeDef) AddMethod(m *Method) *Method {
	m.DeclaringType = d
	bindParameters(m)
	if m.IsConstructor() {
		d.Constructors = append(d.Constructors, m)
	} else {
		d.Methods = append(d.Methods, m)
	}
	return m
}

// AddField declares f on d.
func (d *TypeDef) AddField(f *Field) *Field {
	f.DeclaringType = d
	d.Fields = append(d.Fields, f)
	return f
}

// AddProperty declares p on d. Its accessors must be declared separately.
func (d *TypeDef) AddProperty(p *Property) *Property {
	p.DeclaringType = d
	d.Properties = append(d.Properties, p)
	return p
}

func bindParameters(m *Method) {
	for i, p := range m.Parameters {
		p.Member = m
		p.Position = i
	}
}

// Method returns the first method named name declared by d or its bases.
func (d *TypeDef) Method(name string) *Method {
	for t := d; t != nil; t = t.BaseType {
		for _, m := range t.Methods {
			if m.Name == name {
				return m
			}
		}
	}
	return nil
}

// Property returns the first property named name declared by d or its bases.
func (d *TypeDef) Property(name string) *Property {
	for t := d; t != nil; t = t.BaseType {
		for _, p := range t.Properties {
			if p.Name == name {
				return p
			}
		}
	}
	return nil
}

// Field returns the first field named name declared by d or its bases.
func (d *TypeDef) Field(name string) *Field {
	for t := d; t != nil; t = t.BaseType {
		for _, f := range t.Fields {
			if f.Name == name {
				return f
			}
		}
	}
	return nil
}

// InstanceFields returns the non-static fields of d and its bases, base first.
func (d *TypeDef) InstanceFields() []*Field {
	var fields []*Field
	if d.BaseType != nil {
		fields = d.BaseType.InstanceFields()
	}
	for _, f := range d.Fields {
		if !f.IsStatic() {
			fields = append(fields, f)
		}
	}
	return fields
}

// AllInterfaces returns every interface implemented by d, its bases and the
// interfaces themselves, without duplicates.
func (d *TypeDef) AllInterfaces() []*TypeDef {
	seen := map[*TypeDef]bool{}
	var all []*TypeDef
	var visit func(*TypeDef)
	visit = func(i *TypeDef) {
		if seen[i] {
			return
		}
		seen[i] = true
		all = append(all, i)
		for _, parent := range i.Interfaces {
			visit(parent)
		}
	}
	for t := d; t != nil; t = t.BaseType {
		for _, i := range t.Interfaces {
			visit(i)
		}
	}
	return all
}

// IsAssignableTo reports whether a value of type d can be used as other.
func (d *TypeDef) IsAssignableTo(other *TypeDef) bool {
	for t := d; t != nil; t = t.BaseType {
		if t == other {
			return true
		}
	}
	if other.IsInterface() {
		for _, i := range d.AllInterfaces() {
			if i == other {
				return true
			}
		}
	}
	return false
}

// Dispatch returns the implementation that a virtual call to m runs on an
// instance of d.
func (d *TypeDef) Dispatch(m *Method) *Method {
	slot := m.Slot
	if slot == nil {
		slot = m
	}
	if impl, ok := d.VTable[slot]; ok {
		return impl
	}
	return m
}

// Constructor returns the constructor taking exactly paramCount parameters.
func (d *TypeDef) Constructor(paramCount int) *Method {
	for _, c := range d.Constructors {
		if len(c.Parameters) == paramCount {
			return c
		}
	}
	return nil
}
