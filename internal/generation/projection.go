package generation

import (
	"errors"
	"fmt"
	"go/token"
	"strings"
	"unicode"

	"stubforge/internal/il"
	"stubforge/internal/metadata"

	"github.com/dave/jennifer/jen"
	"github.com/microsoft/go-winmd/flags"
)

// ErrUnsupportedInstruction is returned for bodies using instructions the
// projection has no Go form for.
var ErrUnsupportedInstruction = errors.New("instruction cannot be projected")

const (
	receiver = "s"
	uuidPath = "github.com/google/uuid"
)

// The map of primitive element types to Go types
var primitiveTypes = map[flags.ElementType]string{
	flags.ElementType_BOOLEAN: "bool",
	flags.ElementType_CHAR:    "uint16",
	flags.ElementType_I1:      "int8",
	flags.ElementType_U1:      "uint8",
	flags.ElementType_I2:      "int16",
	flags.ElementType_U2:      "uint16",
	flags.ElementType_I4:      "int32",
	flags.ElementType_U4:      "uint32",
	flags.ElementType_I8:      "int64",
	flags.ElementType_U8:      "uint64",
	flags.ElementType_R4:      "float32",
	flags.ElementType_R8:      "float64",
	flags.ElementType_I:       "uintptr",
	flags.ElementType_U:       "uintptr",
}

func identifier(name string) string {
	var sb strings.Builder
	for i, r := range name {
		switch {
		case unicode.IsLetter(r) || r == '_':
			sb.WriteRune(r)
		case unicode.IsDigit(r) && i > 0:
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}

func typeName(def *metadata.TypeDef) string {
	return identifier(def.Name)
}

// Public members are exported, every other access level is not.
func methodName(m *metadata.Method) string {
	name := []rune(identifier(m.Name))
	if m.IsPublic() {
		name[0] = unicode.ToUpper(name[0])
	} else {
		name[0] = unicode.ToLower(name[0])
	}
	return string(name)
}

func parameterName(p *metadata.Parameter, i int) string {
	name := identifier(p.Name)
	switch {
	case name == "" || name == receiver:
		return fmt.Sprintf("arg%d", i+1)
	case token.IsKeyword(name):
		return name + "_"
	}
	return name
}

func goType(t *metadata.Type) *jen.Statement {
	switch t.Kind {
	case metadata.KindPrimitive:
		return jen.Id(primitiveTypes[t.Element])
	case metadata.KindByRef:
		return jen.Op("*").Add(goType(t.Elem))
	case metadata.KindArray:
		return jen.Index().Add(goType(t.Elem))
	case metadata.KindGenericParameter:
		return jen.Any()
	case metadata.KindValueType:
		if t.IsGuid() {
			return jen.Qual(uuidPath, "UUID")
		}
		return jen.Id(identifier(t.Name))
	}
	switch t.Element {
	case flags.ElementType_STRING:
		return jen.String()
	case flags.ElementType_OBJECT:
		return jen.Any()
	}
	return jen.Op("*").Id(identifier(t.Name))
}

func zeroValue(t *metadata.Type) *jen.Statement {
	switch t.Kind {
	case metadata.KindPrimitive:
		if t.Element == flags.ElementType_BOOLEAN {
			return jen.False()
		}
		return jen.Lit(0)
	case metadata.KindValueType:
		if t.IsGuid() {
			return jen.Qual(uuidPath, "Nil")
		}
		return jen.Id(identifier(t.Name)).Values()
	}
	if t.Element == flags.ElementType_STRING {
		return jen.Lit("")
	}
	return jen.Nil()
}

// value is a symbolic evaluation stack entry.
type value struct {
	code *jen.Statement
	typ  *metadata.Type
	// local is the index of the local whose address this is, or -1.
	local int
	null  bool
}

type projection struct {
	method *metadata.Method
	locals []il.Local
	stack  []value
	out    []jen.Code
}

func localName(i int) string { return fmt.Sprintf("local%d", i) }

// project translates the body of m into Go statements by walking its
// instructions with a symbolic stack.
func project(m *metadata.Method) ([]jen.Code, error) {
	if m.Body == nil {
		return nil, fmt.Errorf("%s has no body: %w", m, ErrUnsupportedInstruction)
	}
	p := &projection{method: m, locals: m.Body.Locals()}
	for _, l := range p.locals {
		t, ok := l.Type.(*metadata.Type)
		if !ok {
			return nil, fmt.Errorf("%s local %d has type %T: %w", m, l.Index, l.Type, ErrUnsupportedInstruction)
		}
		p.out = append(p.out, jen.Var().Id(localName(l.Index)).Add(goType(t)))
	}
	for i, inst := range m.Body.Instructions() {
		if err := p.step(inst); err != nil {
			return nil, fmt.Errorf("%s instruction %d %s: %w", m, i, inst, err)
		}
	}
	return p.out, nil
}

func (p *projection) push(v value) {
	if v.typ == nil {
		v.typ = metadata.Object
	}
	p.stack = append(p.stack, v)
}

func (p *projection) pop() (value, error) {
	if len(p.stack) == 0 {
		return value{}, fmt.Errorf("stack underflow: %w", ErrUnsupportedInstruction)
	}
	v := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	return v, nil
}

func (p *projection) argument(i int) value {
	if p.method.HasThis() {
		if i == 0 {
			return value{code: jen.Id(receiver), typ: p.method.DeclaringType.Type(), local: -1}
		}
		i--
	}
	param := p.method.Parameters[i]
	return value{code: jen.Id(parameterName(param, i)), typ: param.Type, local: -1}
}

func (p *projection) local(i int) value {
	t, _ := p.locals[i].Type.(*metadata.Type)
	return value{code: jen.Id(localName(i)), typ: t, local: -1}
}

func index(inst il.Instruction, fused ...il.OpCode) int {
	for i, op := range fused {
		if inst.Op == op {
			return i
		}
	}
	i, _ := inst.Operand.(int)
	return i
}

// integer widens an inline constant so that it renders as an untyped literal.
func integer(operand any) (int64, error) {
	switch n := operand.(type) {
	case int8:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	}
	return 0, fmt.Errorf("constant operand %T: %w", operand, ErrUnsupportedInstruction)
}

// store assigns v through the address addr.
func (p *projection) store(addr, v value) {
	pointee := addr.typ
	if pointee.IsByRef() {
		pointee = pointee.Elem
	}
	rhs := v.code
	if v.null {
		rhs = zeroValue(pointee)
	}
	if addr.local >= 0 {
		p.out = append(p.out, jen.Id(localName(addr.local)).Op("=").Add(rhs))
		return
	}
	p.out = append(p.out, jen.Op("*").Add(addr.code).Op("=").Add(rhs))
}

func (p *projection) step(inst il.Instruction) error {
	switch inst.Op {
	case il.Nop:

	case il.Ldarg0, il.Ldarg1, il.Ldarg2, il.Ldarg3, il.LdargS, il.Ldarg:
		i := index(inst, il.Ldarg0, il.Ldarg1, il.Ldarg2, il.Ldarg3)
		if i >= len(p.method.Parameters)+1 {
			return fmt.Errorf("argument %d: %w", i, ErrUnsupportedInstruction)
		}
		p.push(p.argument(i))

	case il.Ldloc0, il.Ldloc1, il.Ldloc2, il.Ldloc3, il.LdlocS, il.Ldloc:
		i := index(inst, il.Ldloc0, il.Ldloc1, il.Ldloc2, il.Ldloc3)
		if i >= len(p.locals) {
			return fmt.Errorf("local %d: %w", i, ErrUnsupportedInstruction)
		}
		p.push(p.local(i))

	case il.LdlocaS, il.Ldloca:
		i := index(inst)
		if i >= len(p.locals) {
			return fmt.Errorf("local %d: %w", i, ErrUnsupportedInstruction)
		}
		v := p.local(i)
		p.push(value{code: jen.Op("&").Id(localName(i)), typ: v.typ.MakeByRefType(), local: i})

	case il.Stloc0, il.Stloc1, il.Stloc2, il.Stloc3, il.StlocS, il.Stloc:
		i := index(inst, il.Stloc0, il.Stloc1, il.Stloc2, il.Stloc3)
		v, err := p.pop()
		if err != nil {
			return err
		}
		p.store(value{typ: p.local(i).typ, local: i}, v)

	case il.Ldnull:
		p.push(value{code: jen.Nil(), null: true, local: -1})

	case il.LdcI4M1, il.LdcI40, il.LdcI41, il.LdcI42, il.LdcI43, il.LdcI44, il.LdcI45, il.LdcI46, il.LdcI47, il.LdcI48:
		p.push(value{code: jen.Lit(int(inst.Op) - int(il.LdcI40)), typ: metadata.Int32, local: -1})

	case il.LdcI4S, il.LdcI4:
		n, err := integer(inst.Operand)
		if err != nil {
			return err
		}
		p.push(value{code: jen.Lit(int(n)), typ: metadata.Int32, local: -1})

	case il.LdcI8:
		n, err := integer(inst.Operand)
		if err != nil {
			return err
		}
		p.push(value{code: jen.Lit(int(n)), typ: metadata.Int64, local: -1})

	case il.LdcR8:
		p.push(value{code: jen.Lit(inst.Operand), typ: metadata.Double, local: -1})

	case il.Ldstr:
		p.push(value{code: jen.Lit(inst.Operand), typ: metadata.String, local: -1})

	case il.Ldfld:
		f, ok := inst.Operand.(*metadata.Field)
		if !ok {
			return fmt.Errorf("field operand %T: %w", inst.Operand, ErrUnsupportedInstruction)
		}
		target, err := p.pop()
		if err != nil {
			return err
		}
		p.push(value{code: target.code.Clone().Dot(identifier(f.Name)), typ: f.Type, local: -1})

	case il.Stfld:
		f, ok := inst.Operand.(*metadata.Field)
		if !ok {
			return fmt.Errorf("field operand %T: %w", inst.Operand, ErrUnsupportedInstruction)
		}
		v, err := p.pop()
		if err != nil {
			return err
		}
		target, err := p.pop()
		if err != nil {
			return err
		}
		rhs := v.code
		if v.null {
			rhs = zeroValue(f.Type)
		}
		p.out = append(p.out, target.code.Clone().Dot(identifier(f.Name)).Op("=").Add(rhs))

	case il.Initobj:
		t, ok := inst.Operand.(*metadata.Type)
		if !ok {
			return fmt.Errorf("type operand %T: %w", inst.Operand, ErrUnsupportedInstruction)
		}
		addr, err := p.pop()
		if err != nil {
			return err
		}
		p.store(addr, value{code: zeroValue(t), typ: t, local: -1})

	case il.StindRef, il.Stobj:
		v, err := p.pop()
		if err != nil {
			return err
		}
		addr, err := p.pop()
		if err != nil {
			return err
		}
		p.store(addr, v)

	case il.LdindRef, il.Ldobj:
		addr, err := p.pop()
		if err != nil {
			return err
		}
		p.push(value{code: jen.Op("*").Add(addr.code), typ: addr.typ.Elem, local: -1})

	case il.Pop:
		if _, err := p.pop(); err != nil {
			return err
		}

	case il.Ret:
		ret := p.method.Returns()
		if ret.IsVoid() {
			p.out = append(p.out, jen.Return())
			return nil
		}
		v, err := p.pop()
		if err != nil {
			return err
		}
		if v.null {
			v.code = zeroValue(ret)
		}
		p.out = append(p.out, jen.Return(v.code))

	default:
		return ErrUnsupportedInstruction
	}
	return nil
}
