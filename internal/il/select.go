package il

import "math"

// Slot index tiers: 0..3 have fused opcodes, up to shortSlotLimit-1 fit the
// one-byte operand form, everything above uses the two-byte wide form.
const shortSlotLimit = 255

var (
	ldcI4Short = [...]OpCode{LdcI40, LdcI41, LdcI42, LdcI43, LdcI44, LdcI45, LdcI46, LdcI47, LdcI48}
	ldargFused = [...]OpCode{Ldarg0, Ldarg1, Ldarg2, Ldarg3}
	ldlocFused = [...]OpCode{Ldloc0, Ldloc1, Ldloc2, Ldloc3}
	stlocFused = [...]OpCode{Stloc0, Stloc1, Stloc2, Stloc3}
)

// LdInt32 pushes the constant i using the shortest encoding.
func LdInt32(b *Body, i int32) {
	switch {
	case i == -1:
		b.Emit(LdcI4M1)
	case i >= 0 && i <= 8:
		b.Emit(ldcI4Short[i])
	case i >= math.MinInt8 && i <= math.MaxInt8:
		b.EmitInt8(LdcI4S, int8(i))
	default:
		b.EmitInt32(LdcI4, i)
	}
}

func emitSlot(b *Body, i int, fused []OpCode, short, wide OpCode) {
	switch {
	case i < len(fused):
		b.Emit(fused[i])
	case i < shortSlotLimit:
		b.EmitVar(short, i)
	default:
		b.EmitVar(wide, i)
	}
}

// LdLoc pushes the value of local.
func LdLoc(b *Body, local Local) {
	emitSlot(b, local.Index, ldlocFused[:], LdlocS, Ldloc)
}

// StLoc pops the top of the stack into local.
func StLoc(b *Body, local Local) {
	emitSlot(b, local.Index, stlocFused[:], StlocS, Stloc)
}

// LdLoca pushes the address of local.
func LdLoca(b *Body, local Local) {
	emitSlot(b, local.Index, nil, LdlocaS, Ldloca)
}

// LdArg pushes argument i (0 is the receiver of an instance method).
func LdArg(b *Body, i int) {
	emitSlot(b, i, ldargFused[:], LdargS, Ldarg)
}

// StArg pops the top of the stack into argument i.
func StArg(b *Body, i int) {
	emitSlot(b, i, nil, StargS, Starg)
}

// LdArga pushes the address of argument i.
func LdArga(b *Body, i int) {
	emitSlot(b, i, nil, LdargaS, Ldarga)
}

// RepushActualParameters pushes count incoming arguments in order. When
// startAtArgument0 is false the receiver slot is skipped and pushing starts at 1.
func RepushActualParameters(b *Body, startAtArgument0 bool, count int) {
	first := 1
	if startAtArgument0 {
		first = 0
	}
	for i := first; i < first+count; i++ {
		LdArg(b, i)
	}
}
