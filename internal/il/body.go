package il

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrSealed is the panic value raised when emitting into a finished body.
var ErrSealed = errors.New("instruction sink is sealed")

// Instruction is a single opcode with its inline operand.
// Operand holds an int for argument and local indices, int8/int32/int64/float64
// for constants, a string for ldstr and a metadata object for token operands.
type Instruction struct {
	Op      OpCode
	Operand any
}

// Size returns the encoded size of the instruction.
func (inst Instruction) Size() int {
	return inst.Op.Size() + inst.Op.OperandKind().Size()
}

func (inst Instruction) String() string {
	switch inst.Op.OperandKind() {
	case InlineNone:
		return inst.Op.String()
	case InlineString:
		return fmt.Sprintf("%s %q", inst.Op, inst.Operand)
	default:
		return fmt.Sprintf("%s %v", inst.Op, inst.Operand)
	}
}

// Local is a declared local variable slot.
type Local struct {
	Index int
	Type  any
}

// Body is an append-only instruction sequence with its local variable table.
// A body belongs to exactly one member and is sealed once complete.
type Body struct {
	instructions []Instruction
	locals       []Local
	sealed       bool
}

// NewBody returns an empty, unsealed body.
func NewBody() *Body {
	return &Body{}
}

func (b *Body) append(inst Instruction) {
	if b.sealed {
		panic(ErrSealed)
	}
	b.instructions = append(b.instructions, inst)
}

// Emit appends an opcode that takes no operand.
func (b *Body) Emit(op OpCode) {
	b.append(Instruction{Op: op})
}

// EmitInt8 appends an opcode with a ShortInlineI operand.
func (b *Body) EmitInt8(op OpCode, v int8) {
	b.append(Instruction{Op: op, Operand: v})
}

// EmitInt32 appends an opcode with an InlineI operand.
func (b *Body) EmitInt32(op OpCode, v int32) {
	b.append(Instruction{Op: op, Operand: v})
}

// EmitInt64 appends an opcode with an InlineI8 operand.
func (b *Body) EmitInt64(op OpCode, v int64) {
	b.append(Instruction{Op: op, Operand: v})
}

// EmitFloat64 appends an opcode with an InlineR operand.
func (b *Body) EmitFloat64(op OpCode, v float64) {
	b.append(Instruction{Op: op, Operand: v})
}

// EmitVar appends an opcode whose operand is an argument or local index.
func (b *Body) EmitVar(op OpCode, index int) {
	b.append(Instruction{Op: op, Operand: index})
}

// EmitString appends an opcode with a string operand.
func (b *Body) EmitString(op OpCode, s string) {
	b.append(Instruction{Op: op, Operand: s})
}

// EmitToken appends an opcode whose operand is a type, field or method.
func (b *Body) EmitToken(op OpCode, token any) {
	b.append(Instruction{Op: op, Operand: token})
}

// DeclareLocal adds a local of type t and returns its slot.
func (b *Body) DeclareLocal(t any) Local {
	if b.sealed {
		panic(ErrSealed)
	}
	l := Local{Index: len(b.locals), Type: t}
	b.locals = append(b.locals, l)
	return l
}

// Seal finalizes the body. Further emission panics.
func (b *Body) Seal() {
	b.sealed = true
}

func (b *Body) Sealed() bool {
	return b.sealed
}

// Rebind returns a sealed copy of b with every token operand and local type
// passed through resolve. It is used to swap builder handles for the members
// they produced once a type is finalized.
func (b *Body) Rebind(resolve func(any) any) *Body {
	rebound := &Body{
		instructions: make([]Instruction, len(b.instructions)),
		locals:       make([]Local, len(b.locals)),
		sealed:       true,
	}
	for i, inst := range b.instructions {
		if inst.Op.OperandKind().IsToken() {
			inst.Operand = resolve(inst.Operand)
		}
		rebound.instructions[i] = inst
	}
	for i, l := range b.locals {
		rebound.locals[i] = Local{Index: l.Index, Type: resolve(l.Type)}
	}
	return rebound
}

// Instructions returns a copy of the instruction sequence.
func (b *Body) Instructions() []Instruction {
	return append([]Instruction(nil), b.instructions...)
}

// Locals returns a copy of the local variable table.
func (b *Body) Locals() []Local {
	return append([]Local(nil), b.locals...)
}

// Len returns the number of instructions.
func (b *Body) Len() int {
	return len(b.instructions)
}

// At returns the instruction at index i.
func (b *Body) At(i int) Instruction {
	return b.instructions[i]
}

// Size returns the encoded size of the body in bytes.
func (b *Body) Size() int {
	size := 0
	for _, inst := range b.instructions {
		size += inst.Size()
	}
	return size
}

// TokenResolver maps token operands to metadata tokens.
type TokenResolver interface {
	Token(operand any) (uint32, error)
}

// Encode writes the body in CIL binary form. Token operands are resolved
// through tokens, which may be nil when the body has none.
func (b *Body) Encode(tokens TokenResolver) ([]byte, error) {
	var buf bytes.Buffer
	for i, inst := range b.instructions {
		if err := encodeInst(&buf, inst, tokens); err != nil {
			return nil, fmt.Errorf("instruction %d (%s): %w", i, inst.Op, err)
		}
	}
	return buf.Bytes(), nil
}

func encodeInst(buf *bytes.Buffer, inst Instruction, tokens TokenResolver) error {
	if !inst.Op.Valid() {
		return fmt.Errorf("unknown opcode 0x%X", uint16(inst.Op))
	}
	if inst.Op > 0xFF {
		buf.WriteByte(byte(inst.Op >> 8))
	}
	buf.WriteByte(byte(inst.Op))

	kind := inst.Op.OperandKind()
	switch kind {
	case InlineNone:
		return nil
	case ShortInlineI:
		v, ok := inst.Operand.(int8)
		if !ok {
			return fmt.Errorf("operand %v is not an int8", inst.Operand)
		}
		buf.WriteByte(byte(v))
	case ShortInlineVar:
		v, ok := inst.Operand.(int)
		if !ok || v < 0 || v > math.MaxUint8 {
			return fmt.Errorf("operand %v is not a short slot index", inst.Operand)
		}
		buf.WriteByte(byte(v))
	case InlineVar:
		v, ok := inst.Operand.(int)
		if !ok || v < 0 || v > math.MaxUint16 {
			return fmt.Errorf("operand %v is not a slot index", inst.Operand)
		}
		buf.Write(binary.LittleEndian.AppendUint16(nil, uint16(v)))
	case InlineI:
		v, ok := inst.Operand.(int32)
		if !ok {
			return fmt.Errorf("operand %v is not an int32", inst.Operand)
		}
		buf.Write(binary.LittleEndian.AppendUint32(nil, uint32(v)))
	case InlineI8:
		v, ok := inst.Operand.(int64)
		if !ok {
			return fmt.Errorf("operand %v is not an int64", inst.Operand)
		}
		buf.Write(binary.LittleEndian.AppendUint64(nil, uint64(v)))
	case InlineR:
		v, ok := inst.Operand.(float64)
		if !ok {
			return fmt.Errorf("operand %v is not a float64", inst.Operand)
		}
		buf.Write(binary.LittleEndian.AppendUint64(nil, math.Float64bits(v)))
	default:
		if tokens == nil {
			return fmt.Errorf("no token resolver for operand %v", inst.Operand)
		}
		token, err := tokens.Token(inst.Operand)
		if err != nil {
			return err
		}
		buf.Write(binary.LittleEndian.AppendUint32(nil, token))
	}
	return nil
}

// String disassembles the body, one instruction per line prefixed by its offset.
func (b *Body) String() string {
	var sb strings.Builder
	for _, l := range b.locals {
		fmt.Fprintf(&sb, "  .local [%d] %v\n", l.Index, l.Type)
	}
	offset := 0
	for _, inst := range b.instructions {
		fmt.Fprintf(&sb, "  IL_%04x: %s\n", offset, inst)
		offset += inst.Size()
	}
	return sb.String()
}
