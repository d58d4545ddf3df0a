package stub

import (
	"fmt"

	"stubforge/internal/il"
	"stubforge/internal/metadata"
)

// LdArgBox pushes argument index as an object reference. Value types and
// generic parameters are boxed; by-reference arguments are dereferenced first.
func LdArgBox(b *il.Body, index int, parameterType *metadata.Type) {
	il.LdArg(b, index)
	switch {
	case parameterType.IsGenericParameter() || parameterType.IsValueType():
		b.EmitToken(il.Box, parameterType)
	case parameterType.IsByRef():
		pointee := parameterType.ElementType()
		if pointee.IsGenericParameter() || pointee.IsValueType() {
			b.EmitToken(il.Ldobj, pointee)
			b.EmitToken(il.Box, pointee)
		} else {
			b.Emit(il.LdindRef)
		}
	}
}

// LdArgBoxParameter is LdArgBox for a parameter of the method being emitted.
func LdArgBoxParameter(b *il.Body, p *metadata.Parameter) {
	LdArgBox(b, p.ArgumentIndex(), p.Type)
}

// CreateObjectArrayFromInstanceParameters stores into array a new object
// array holding the arguments of an instance method, receiver excluded.
func CreateObjectArrayFromInstanceParameters(b *il.Body, array il.Local, parameterTypes []*metadata.Type) {
	createObjectArray(b, array, 1, parameterTypes)
}

// CreateObjectArrayFromParameters stores into array a new object array
// holding the arguments of m.
func CreateObjectArrayFromParameters(b *il.Body, array il.Local, m *metadata.Method) {
	first := 0
	if m.HasThis() {
		first = 1
	}
	createObjectArray(b, array, first, m.ParameterTypes())
}

func createObjectArray(b *il.Body, array il.Local, first int, parameterTypes []*metadata.Type) {
	il.LdInt32(b, int32(len(parameterTypes)))
	b.EmitToken(il.Newarr, metadata.Object)
	il.StLoc(b, array)
	for i, t := range parameterTypes {
		il.LdLoc(b, array)
		il.LdInt32(b, int32(i))
		LdArgBox(b, first+i, t)
		b.Emit(il.StelemRef)
	}
}

// StoreDefaultValueForOutParameter writes the default value of its pointee
// type through the by-reference parameter p.
func StoreDefaultValueForOutParameter(b *il.Body, p *metadata.Parameter) error {
	if p == nil || !p.Type.IsByRef() {
		return fmt.Errorf("parameter %v must be by reference: %w", p, ErrInvalidArgument)
	}
	pointee := p.Type.ElementType()
	il.LdArg(b, p.ArgumentIndex())
	if pointee.IsValueType() || pointee.IsGenericParameter() {
		b.EmitToken(il.Initobj, pointee)
	} else {
		b.Emit(il.Ldnull)
		b.Emit(il.StindRef)
	}
	return nil
}
