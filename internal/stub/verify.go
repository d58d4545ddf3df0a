package stub

import (
	"fmt"

	"stubforge/internal/host"
	"stubforge/internal/metadata"
)

// VerifyOverride checks that impl is what virtual calls to declaration run on
// instances of def. It returns ErrSilentNonBinding when def was finalized
// with impl but the slot of declaration still dispatches elsewhere.
func VerifyOverride(def *metadata.TypeDef, impl, declaration *metadata.Method) error {
	if def == nil || impl == nil || declaration == nil {
		return fmt.Errorf("override verification: %w", ErrInvalidArgument)
	}
	if def.VTable == nil {
		return fmt.Errorf("%s is not finalized: %w", def, ErrInvalidArgument)
	}
	if !host.Overrides(def, impl, declaration) {
		return fmt.Errorf("%s on %s runs %s: %w", declaration, def, def.Dispatch(declaration), ErrSilentNonBinding)
	}
	return nil
}

// VerifyStubs checks that every virtual method of def fills the slots of
// the base and interface methods it matches by name and by signature with
// required modifiers disregarded. The first member left out of its slot is
// reported.
func VerifyStubs(def *metadata.TypeDef) error {
	if def == nil {
		return fmt.Errorf("type: %w", ErrInvalidArgument)
	}
	for _, m := range def.Methods {
		if !m.IsVirtual() || m.IsNewSlot() {
			continue
		}
		for _, candidate := range overridable(def) {
			if candidate.Name != m.Name || !candidate.SameSignatureIgnoringModifiers(m) {
				continue
			}
			if err := VerifyOverride(def, m, candidate); err != nil {
				return err
			}
		}
	}
	return nil
}

func overridable(def *metadata.TypeDef) []*metadata.Method {
	var methods []*metadata.Method
	for t := def.BaseType; t != nil; t = t.BaseType {
		for _, m := range t.Methods {
			if m.IsVirtual() {
				methods = append(methods, m)
			}
		}
	}
	for _, i := range def.AllInterfaces() {
		methods = append(methods, i.Methods...)
	}
	return methods
}
