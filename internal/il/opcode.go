// Package il provides the CIL instruction set, an append-only instruction sink
// and the helpers that select the most compact encoding of common loads and stores.
package il

import "fmt"

// OperandKind describes the inline operand that follows an opcode.
type OperandKind byte

const (
	InlineNone     OperandKind = iota // no operand
	ShortInlineI                      // int8
	ShortInlineVar                    // uint8 argument or local index
	InlineVar                         // uint16 argument or local index
	InlineI                           // int32
	InlineI8                          // int64
	InlineR                           // float64
	InlineString                      // string token
	InlineType                        // type token
	InlineField                       // field token
	InlineMethod                      // method token
)

// Size returns the encoded size of the operand in bytes.
func (k OperandKind) Size() int {
	switch k {
	case ShortInlineI, ShortInlineVar:
		return 1
	case InlineVar:
		return 2
	case InlineI, InlineString, InlineType, InlineField, InlineMethod:
		return 4
	case InlineI8, InlineR:
		return 8
	default:
		return 0
	}
}

// IsToken reports whether the operand is a metadata token.
func (k OperandKind) IsToken() bool {
	return k == InlineString || k == InlineType || k == InlineField || k == InlineMethod
}

// OpCode is a CIL opcode. Two-byte opcodes carry the 0xFE prefix in the high byte.
type OpCode uint16

// The subset of ECMA-335 Partition III opcodes used by synthesized bodies.
const (
	Nop       OpCode = 0x00
	Ldarg0    OpCode = 0x02
	Ldarg1    OpCode = 0x03
	Ldarg2    OpCode = 0x04
	Ldarg3    OpCode = 0x05
	Ldloc0    OpCode = 0x06
	Ldloc1    OpCode = 0x07
	Ldloc2    OpCode = 0x08
	Ldloc3    OpCode = 0x09
	Stloc0    OpCode = 0x0A
	Stloc1    OpCode = 0x0B
	Stloc2    OpCode = 0x0C
	Stloc3    OpCode = 0x0D
	LdargS    OpCode = 0x0E
	LdargaS   OpCode = 0x0F
	StargS    OpCode = 0x10
	LdlocS    OpCode = 0x11
	LdlocaS   OpCode = 0x12
	StlocS    OpCode = 0x13
	Ldnull    OpCode = 0x14
	LdcI4M1   OpCode = 0x15
	LdcI40    OpCode = 0x16
	LdcI41    OpCode = 0x17
	LdcI42    OpCode = 0x18
	LdcI43    OpCode = 0x19
	LdcI44    OpCode = 0x1A
	LdcI45    OpCode = 0x1B
	LdcI46    OpCode = 0x1C
	LdcI47    OpCode = 0x1D
	LdcI48    OpCode = 0x1E
	LdcI4S    OpCode = 0x1F
	LdcI4     OpCode = 0x20
	LdcI8     OpCode = 0x21
	LdcR8     OpCode = 0x23
	Dup       OpCode = 0x25
	Pop       OpCode = 0x26
	Call      OpCode = 0x28
	Ret       OpCode = 0x2A
	LdindRef  OpCode = 0x50
	StindRef  OpCode = 0x51
	Add       OpCode = 0x58
	Sub       OpCode = 0x59
	Mul       OpCode = 0x5A
	Callvirt  OpCode = 0x6F
	Ldobj     OpCode = 0x71
	Ldstr     OpCode = 0x72
	Newobj    OpCode = 0x73
	Ldfld     OpCode = 0x7B
	Stfld     OpCode = 0x7D
	Stobj     OpCode = 0x81
	Box       OpCode = 0x8C
	Newarr    OpCode = 0x8D
	Ldlen     OpCode = 0x8E
	LdelemRef OpCode = 0x9A
	StelemRef OpCode = 0xA2
	UnboxAny  OpCode = 0xA5
	Ldarg     OpCode = 0xFE09
	Ldarga    OpCode = 0xFE0A
	Starg     OpCode = 0xFE0B
	Ldloc     OpCode = 0xFE0C
	Ldloca    OpCode = 0xFE0D
	Stloc     OpCode = 0xFE0E
	Initobj   OpCode = 0xFE15
)

// VarPop marks a stack effect that depends on the called signature.
const VarPop = -1

type opInfo struct {
	name    string
	operand OperandKind
	pop     int
	push    int
}

var opTable = map[OpCode]opInfo{
	Nop:       {"nop", InlineNone, 0, 0},
	Ldarg0:    {"ldarg.0", InlineNone, 0, 1},
	Ldarg1:    {"ldarg.1", InlineNone, 0, 1},
	Ldarg2:    {"ldarg.2", InlineNone, 0, 1},
	Ldarg3:    {"ldarg.3", InlineNone, 0, 1},
	Ldloc0:    {"ldloc.0", InlineNone, 0, 1},
	Ldloc1:    {"ldloc.1", InlineNone, 0, 1},
	Ldloc2:    {"ldloc.2", InlineNone, 0, 1},
	Ldloc3:    {"ldloc.3", InlineNone, 0, 1},
	Stloc0:    {"stloc.0", InlineNone, 1, 0},
	Stloc1:    {"stloc.1", InlineNone, 1, 0},
	Stloc2:    {"stloc.2", InlineNone, 1, 0},
	Stloc3:    {"stloc.3", InlineNone, 1, 0},
	LdargS:    {"ldarg.s", ShortInlineVar, 0, 1},
	LdargaS:   {"ldarga.s", ShortInlineVar, 0, 1},
	StargS:    {"starg.s", ShortInlineVar, 1, 0},
	LdlocS:    {"ldloc.s", ShortInlineVar, 0, 1},
	LdlocaS:   {"ldloca.s", ShortInlineVar, 0, 1},
	StlocS:    {"stloc.s", ShortInlineVar, 1, 0},
	Ldnull:    {"ldnull", InlineNone, 0, 1},
	LdcI4M1:   {"ldc.i4.m1", InlineNone, 0, 1},
	LdcI40:    {"ldc.i4.0", InlineNone, 0, 1},
	LdcI41:    {"ldc.i4.1", InlineNone, 0, 1},
	LdcI42:    {"ldc.i4.2", InlineNone, 0, 1},
	LdcI43:    {"ldc.i4.3", InlineNone, 0, 1},
	LdcI44:    {"ldc.i4.4", InlineNone, 0, 1},
	LdcI45:    {"ldc.i4.5", InlineNone, 0, 1},
	LdcI46:    {"ldc.i4.6", InlineNone, 0, 1},
	LdcI47:    {"ldc.i4.7", InlineNone, 0, 1},
	LdcI48:    {"ldc.i4.8", InlineNone, 0, 1},
	LdcI4S:    {"ldc.i4.s", ShortInlineI, 0, 1},
	LdcI4:     {"ldc.i4", InlineI, 0, 1},
	LdcI8:     {"ldc.i8", InlineI8, 0, 1},
	LdcR8:     {"ldc.r8", InlineR, 0, 1},
	Dup:       {"dup", InlineNone, 1, 2},
	Pop:       {"pop", InlineNone, 1, 0},
	Call:      {"call", InlineMethod, VarPop, VarPop},
	Ret:       {"ret", InlineNone, VarPop, 0},
	LdindRef:  {"ldind.ref", InlineNone, 1, 1},
	StindRef:  {"stind.ref", InlineNone, 2, 0},
	Add:       {"add", InlineNone, 2, 1},
	Sub:       {"sub", InlineNone, 2, 1},
	Mul:       {"mul", InlineNone, 2, 1},
	Callvirt:  {"callvirt", InlineMethod, VarPop, VarPop},
	Ldobj:     {"ldobj", InlineType, 1, 1},
	Ldstr:     {"ldstr", InlineString, 0, 1},
	Newobj:    {"newobj", InlineMethod, VarPop, 1},
	Ldfld:     {"ldfld", InlineField, 1, 1},
	Stfld:     {"stfld", InlineField, 2, 0},
	Stobj:     {"stobj", InlineType, 2, 0},
	Box:       {"box", InlineType, 1, 1},
	Newarr:    {"newarr", InlineType, 1, 1},
	Ldlen:     {"ldlen", InlineNone, 1, 1},
	LdelemRef: {"ldelem.ref", InlineNone, 2, 1},
	StelemRef: {"stelem.ref", InlineNone, 3, 0},
	UnboxAny:  {"unbox.any", InlineType, 1, 1},
	Ldarg:     {"ldarg", InlineVar, 0, 1},
	Ldarga:    {"ldarga", InlineVar, 0, 1},
	Starg:     {"starg", InlineVar, 1, 0},
	Ldloc:     {"ldloc", InlineVar, 0, 1},
	Ldloca:    {"ldloca", InlineVar, 0, 1},
	Stloc:     {"stloc", InlineVar, 1, 0},
	Initobj:   {"initobj", InlineType, 1, 0},
}

func (op OpCode) String() string {
	if info, ok := opTable[op]; ok {
		return info.name
	}
	return fmt.Sprintf("op(0x%X)", uint16(op))
}

// Valid reports whether op belongs to the supported instruction set.
func (op OpCode) Valid() bool {
	_, ok := opTable[op]
	return ok
}

// OperandKind returns the kind of inline operand op expects.
func (op OpCode) OperandKind() OperandKind {
	return opTable[op].operand
}

// StackPop returns how many values op pops, or VarPop when it depends on a signature.
func (op OpCode) StackPop() int {
	return opTable[op].pop
}

// StackPush returns how many values op pushes, or VarPop when it depends on a signature.
func (op OpCode) StackPush() int {
	return opTable[op].push
}

// Size is the size of the opcode itself, without its operand.
func (op OpCode) Size() int {
	if op > 0xFF {
		return 2
	}
	return 1
}
