package host

import (
	"fmt"

	"stubforge/internal/il"
	"stubforge/internal/metadata"
)

const maxCallDepth = 256

// frame is the activation record of one running method.
type frame struct {
	method   *metadata.Method
	typeArgs []*metadata.Type
	args     []any
	argTypes []*metadata.Type
	locals   []any
	locTypes []*metadata.Type
	stack    []any
	depth    int
}

// run executes m with fully prepared arguments; args[0] is the receiver of
// an instance method.
func run(m *metadata.Method, typeArgs []*metadata.Type, args []any, depth int) (any, error) {
	if depth > maxCallDepth {
		return nil, fmt.Errorf("%s: call depth exceeded: %w", m, ErrInvalidProgram)
	}
	if m.Body == nil {
		return nil, fmt.Errorf("%s has no body: %w", m, ErrInvalidProgram)
	}
	f, err := newFrame(m, typeArgs, args, depth)
	if err != nil {
		return nil, err
	}
	offset := 0
	for _, inst := range m.Body.Instructions() {
		done, result, err := f.step(inst)
		if err != nil {
			return nil, fmt.Errorf("%s IL_%04x %s: %w", m, offset, inst.Op, err)
		}
		if done {
			return result, nil
		}
		offset += inst.Size()
	}
	return nil, fmt.Errorf("%s: fell through the end of the body: %w", m, ErrInvalidProgram)
}

func newFrame(m *metadata.Method, typeArgs []*metadata.Type, args []any, depth int) (*frame, error) {
	if len(typeArgs) != len(m.GenericParameters) {
		return nil, fmt.Errorf("%s takes %d type arguments, got %d: %w", m, len(m.GenericParameters), len(typeArgs), ErrInvalidArgument)
	}
	f := &frame{method: m, typeArgs: typeArgs, depth: depth}
	if m.HasThis() {
		f.argTypes = append(f.argTypes, m.DeclaringType.Type())
	}
	for _, p := range m.Parameters {
		f.argTypes = append(f.argTypes, f.resolve(p.Type))
	}
	if len(args) != len(f.argTypes) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d: %w", m, len(f.argTypes), len(args), ErrInvalidArgument)
	}
	f.args = make([]any, len(args))
	for i, a := range args {
		if i == 0 && m.HasThis() {
			f.args[i] = a
			continue
		}
		v, err := coerce(a, f.argTypes[i])
		if err != nil {
			return nil, fmt.Errorf("%s argument %d: %w", m, i, err)
		}
		f.args[i] = v
	}
	for _, l := range m.Body.Locals() {
		t, ok := l.Type.(*metadata.Type)
		if !ok {
			return nil, fmt.Errorf("%s local %d has type %T: %w", m, l.Index, l.Type, ErrInvalidProgram)
		}
		t = f.resolve(t)
		v, err := Zero(t)
		if err != nil {
			return nil, err
		}
		f.locTypes = append(f.locTypes, t)
		f.locals = append(f.locals, v)
	}
	return f, nil
}

func (f *frame) resolve(t *metadata.Type) *metadata.Type {
	return metadata.Substitute(t, f.typeArgs)
}

func (f *frame) push(v any) { f.stack = append(f.stack, v) }

func (f *frame) pop() (any, error) {
	if len(f.stack) == 0 {
		return nil, fmt.Errorf("stack underflow: %w", ErrInvalidProgram)
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v, nil
}

func (f *frame) popN(n int) ([]any, error) {
	if len(f.stack) < n {
		return nil, fmt.Errorf("stack underflow: %w", ErrInvalidProgram)
	}
	values := append([]any(nil), f.stack[len(f.stack)-n:]...)
	f.stack = f.stack[:len(f.stack)-n]
	return values, nil
}

func (f *frame) popRef() (Ref, error) {
	v, err := f.pop()
	if err != nil {
		return nil, err
	}
	ref, ok := v.(Ref)
	if !ok {
		if v == nil {
			return nil, ErrNullReference
		}
		return nil, fmt.Errorf("%T is not a managed pointer: %w", v, ErrInvalidProgram)
	}
	return ref, nil
}

func (f *frame) popInt() (int, error) {
	v, err := f.pop()
	if err != nil {
		return 0, err
	}
	i, ok := toInt64(v)
	if !ok {
		return 0, fmt.Errorf("%T is not an integer: %w", v, ErrInvalidProgram)
	}
	return int(i), nil
}

func (f *frame) popArray() (*Array, error) {
	v, err := f.pop()
	if err != nil {
		return nil, err
	}
	switch arr := v.(type) {
	case *Array:
		return arr, nil
	case nil:
		return nil, ErrNullReference
	}
	return nil, fmt.Errorf("%T is not an array: %w", v, ErrInvalidProgram)
}

func operand[T any](inst il.Instruction) (T, error) {
	v, ok := inst.Operand.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("operand %v has type %T: %w", inst.Operand, inst.Operand, ErrInvalidProgram)
	}
	return v, nil
}

func (f *frame) typeOperand(inst il.Instruction) (*metadata.Type, error) {
	t, err := operand[*metadata.Type](inst)
	if err != nil {
		return nil, err
	}
	return f.resolve(t), nil
}

func slotIndex(inst il.Instruction, fused ...il.OpCode) (int, error) {
	for i, op := range fused {
		if inst.Op == op {
			return i, nil
		}
	}
	return operand[int](inst)
}

func (f *frame) arg(i int) (int, error) {
	if i < 0 || i >= len(f.args) {
		return 0, fmt.Errorf("argument %d out of range: %w", i, ErrInvalidProgram)
	}
	return i, nil
}

func (f *frame) local(i int) (int, error) {
	if i < 0 || i >= len(f.locals) {
		return 0, fmt.Errorf("local %d out of range: %w", i, ErrInvalidProgram)
	}
	return i, nil
}

// step executes one instruction. done is true once the method returned.
func (f *frame) step(inst il.Instruction) (done bool, result any, err error) {
	switch inst.Op {
	case il.Nop:

	case il.Ldarg0, il.Ldarg1, il.Ldarg2, il.Ldarg3, il.LdargS, il.Ldarg:
		i, err := slotIndex(inst, il.Ldarg0, il.Ldarg1, il.Ldarg2, il.Ldarg3)
		if err == nil {
			i, err = f.arg(i)
		}
		if err != nil {
			return false, nil, err
		}
		f.push(f.args[i])

	case il.LdargaS, il.Ldarga:
		i, err := slotIndex(inst)
		if err == nil {
			i, err = f.arg(i)
		}
		if err != nil {
			return false, nil, err
		}
		f.push(&slotRef{slot: &f.args[i], typ: f.argTypes[i]})

	case il.StargS, il.Starg:
		i, err := slotIndex(inst)
		if err == nil {
			i, err = f.arg(i)
		}
		if err != nil {
			return false, nil, err
		}
		v, err := f.pop()
		if err != nil {
			return false, nil, err
		}
		if err := (&slotRef{slot: &f.args[i], typ: f.argTypes[i]}).Store(v); err != nil {
			return false, nil, err
		}

	case il.Ldloc0, il.Ldloc1, il.Ldloc2, il.Ldloc3, il.LdlocS, il.Ldloc:
		i, err := slotIndex(inst, il.Ldloc0, il.Ldloc1, il.Ldloc2, il.Ldloc3)
		if err == nil {
			i, err = f.local(i)
		}
		if err != nil {
			return false, nil, err
		}
		f.push(f.locals[i])

	case il.Stloc0, il.Stloc1, il.Stloc2, il.Stloc3, il.StlocS, il.Stloc:
		i, err := slotIndex(inst, il.Stloc0, il.Stloc1, il.Stloc2, il.Stloc3)
		if err == nil {
			i, err = f.local(i)
		}
		if err != nil {
			return false, nil, err
		}
		v, err := f.pop()
		if err != nil {
			return false, nil, err
		}
		if err := (&slotRef{slot: &f.locals[i], typ: f.locTypes[i]}).Store(v); err != nil {
			return false, nil, err
		}

	case il.LdlocaS, il.Ldloca:
		i, err := slotIndex(inst)
		if err == nil {
			i, err = f.local(i)
		}
		if err != nil {
			return false, nil, err
		}
		f.push(&slotRef{slot: &f.locals[i], typ: f.locTypes[i]})

	case il.Ldnull:
		f.push(nil)

	case il.LdcI4M1, il.LdcI40, il.LdcI41, il.LdcI42, il.LdcI43, il.LdcI44, il.LdcI45, il.LdcI46, il.LdcI47, il.LdcI48:
		f.push(int32(int(inst.Op) - int(il.LdcI40)))

	case il.LdcI4S:
		v, err := operand[int8](inst)
		if err != nil {
			return false, nil, err
		}
		f.push(int32(v))

	case il.LdcI4, il.LdcI8, il.LdcR8, il.Ldstr:
		f.push(inst.Operand)

	case il.Dup:
		v, err := f.pop()
		if err != nil {
			return false, nil, err
		}
		f.push(v)
		f.push(v)

	case il.Pop:
		if _, err := f.pop(); err != nil {
			return false, nil, err
		}

	case il.Add, il.Sub, il.Mul:
		operands, err := f.popN(2)
		if err != nil {
			return false, nil, err
		}
		v, err := arithmetic(inst.Op, operands[0], operands[1])
		if err != nil {
			return false, nil, err
		}
		f.push(v)

	case il.Ret:
		returnType := f.resolve(f.method.Returns())
		if returnType.IsVoid() {
			return true, nil, nil
		}
		v, err := f.pop()
		if err != nil {
			return false, nil, err
		}
		v, err = coerce(v, returnType)
		return err == nil, v, err

	case il.Call, il.Callvirt:
		return false, nil, f.call(inst)

	case il.Newobj:
		ctor, err := operand[*metadata.Method](inst)
		if err != nil {
			return false, nil, err
		}
		args, err := f.popN(len(ctor.Parameters))
		if err != nil {
			return false, nil, err
		}
		obj, err := construct(ctor, args, f.depth+1)
		if err != nil {
			return false, nil, err
		}
		f.push(obj)

	case il.Ldfld:
		field, err := operand[*metadata.Field](inst)
		if err != nil {
			return false, nil, err
		}
		target, err := f.pop()
		if err != nil {
			return false, nil, err
		}
		v, err := loadField(target, field)
		if err != nil {
			return false, nil, err
		}
		f.push(v)

	case il.Stfld:
		field, err := operand[*metadata.Field](inst)
		if err != nil {
			return false, nil, err
		}
		values, err := f.popN(2)
		if err != nil {
			return false, nil, err
		}
		obj, ok := values[0].(*Object)
		if !ok {
			if values[0] == nil {
				return false, nil, ErrNullReference
			}
			return false, nil, fmt.Errorf("stfld on %T: %w", values[0], ErrInvalidProgram)
		}
		if err := obj.store(field, values[1]); err != nil {
			return false, nil, err
		}

	case il.LdindRef, il.Ldobj:
		ref, err := f.popRef()
		if err != nil {
			return false, nil, err
		}
		v := ref.Load()
		if s, ok := v.(Struct); ok {
			v = s.clone()
		}
		f.push(v)

	case il.StindRef, il.Stobj:
		v, err := f.pop()
		if err != nil {
			return false, nil, err
		}
		ref, err := f.popRef()
		if err != nil {
			return false, nil, err
		}
		if err := ref.Store(v); err != nil {
			return false, nil, err
		}

	case il.Initobj:
		t, err := f.typeOperand(inst)
		if err != nil {
			return false, nil, err
		}
		ref, err := f.popRef()
		if err != nil {
			return false, nil, err
		}
		zero, err := Zero(t)
		if err != nil {
			return false, nil, err
		}
		if err := ref.Store(zero); err != nil {
			return false, nil, err
		}

	case il.Box:
		t, err := f.typeOperand(inst)
		if err != nil {
			return false, nil, err
		}
		v, err := f.pop()
		if err != nil {
			return false, nil, err
		}
		if t.IsValueType() {
			if v, err = coerce(v, t); err != nil {
				return false, nil, err
			}
			f.push(&Boxed{Type: t, Value: v})
		} else {
			f.push(v)
		}

	case il.UnboxAny:
		t, err := f.typeOperand(inst)
		if err != nil {
			return false, nil, err
		}
		v, err := f.pop()
		if err != nil {
			return false, nil, err
		}
		if t.IsValueType() {
			boxed, ok := v.(*Boxed)
			if !ok {
				if v == nil {
					return false, nil, ErrNullReference
				}
				return false, nil, fmt.Errorf("unbox %T as %s: %w", v, t, ErrInvalidProgram)
			}
			v = boxed.Value
		}
		f.push(v)

	case il.Newarr:
		t, err := f.typeOperand(inst)
		if err != nil {
			return false, nil, err
		}
		n, err := f.popInt()
		if err != nil {
			return false, nil, err
		}
		if n < 0 {
			return false, nil, fmt.Errorf("array length %d: %w", n, ErrInvalidProgram)
		}
		arr := &Array{Elem: t, Items: make([]any, n)}
		for i := range arr.Items {
			if arr.Items[i], err = Zero(t); err != nil {
				return false, nil, err
			}
		}
		f.push(arr)

	case il.Ldlen:
		arr, err := f.popArray()
		if err != nil {
			return false, nil, err
		}
		f.push(uintptr(len(arr.Items)))

	case il.StelemRef:
		values, err := f.popN(2)
		if err != nil {
			return false, nil, err
		}
		arr, err := f.popArray()
		if err != nil {
			return false, nil, err
		}
		i, ok := toInt64(values[0])
		if !ok || i < 0 || int(i) >= len(arr.Items) {
			return false, nil, fmt.Errorf("index %v out of range: %w", values[0], ErrInvalidProgram)
		}
		arr.Items[i] = values[1]

	case il.LdelemRef:
		i, err := f.popInt()
		if err != nil {
			return false, nil, err
		}
		arr, err := f.popArray()
		if err != nil {
			return false, nil, err
		}
		if i < 0 || i >= len(arr.Items) {
			return false, nil, fmt.Errorf("index %d out of range: %w", i, ErrInvalidProgram)
		}
		f.push(arr.Items[i])

	default:
		return false, nil, fmt.Errorf("unsupported opcode %s: %w", inst.Op, ErrInvalidProgram)
	}
	return false, nil, nil
}

func (f *frame) call(inst il.Instruction) error {
	target, err := operand[*metadata.Method](inst)
	if err != nil {
		return err
	}
	if target.ContainsGenericParameters() {
		return fmt.Errorf("call to uninstantiated generic method %s: %w", target, ErrInvalidProgram)
	}
	n := len(target.Parameters)
	if target.HasThis() {
		n++
	}
	args, err := f.popN(n)
	if err != nil {
		return err
	}
	callee := target
	if target.HasThis() {
		if args[0] == nil {
			return fmt.Errorf("call to %s: %w", target, ErrNullReference)
		}
		if obj, ok := args[0].(*Object); ok && inst.Op == il.Callvirt && target.IsVirtual() {
			callee = obj.Type.Dispatch(target)
		}
	}
	result, err := run(callee, nil, args, f.depth+1)
	if err != nil {
		return err
	}
	if !target.Returns().IsVoid() {
		f.push(result)
	}
	return nil
}

func construct(ctor *metadata.Method, args []any, depth int) (*Object, error) {
	def := ctor.DeclaringType
	if def.IsAbstract() {
		return nil, fmt.Errorf("%s: %w", def, ErrAbstractType)
	}
	obj, err := newObject(def)
	if err != nil {
		return nil, err
	}
	if _, err := run(ctor, nil, append([]any{obj}, args...), depth); err != nil {
		return nil, err
	}
	return obj, nil
}

func loadField(target any, field *metadata.Field) (any, error) {
	switch t := target.(type) {
	case *Object:
		return t.load(field)
	case Struct:
		v, ok := t.Fields[field.Name]
		if !ok {
			return nil, fmt.Errorf("%s has no field %s: %w", t.Type, field.Name, ErrInvalidProgram)
		}
		return v, nil
	case nil:
		return nil, ErrNullReference
	}
	return nil, fmt.Errorf("ldfld on %T: %w", target, ErrInvalidProgram)
}

func arithmetic(op il.OpCode, a, b any) (any, error) {
	_, aFloat := a.(float64)
	_, bFloat := b.(float64)
	if aFloat || bFloat {
		x, okA := toFloat64(a)
		y, okB := toFloat64(b)
		if !okA || !okB {
			return nil, fmt.Errorf("%s on %T and %T: %w", op, a, b, ErrInvalidProgram)
		}
		switch op {
		case il.Add:
			return x + y, nil
		case il.Sub:
			return x - y, nil
		}
		return x * y, nil
	}
	x, okA := toInt64(a)
	y, okB := toInt64(b)
	if !okA || !okB {
		return nil, fmt.Errorf("%s on %T and %T: %w", op, a, b, ErrInvalidProgram)
	}
	var r int64
	switch op {
	case il.Add:
		r = x + y
	case il.Sub:
		r = x - y
	default:
		r = x * y
	}
	_, aLong := a.(int64)
	_, bLong := b.(int64)
	if aLong || bLong {
		return r, nil
	}
	return int32(r), nil
}
