package host

import (
	"fmt"

	"stubforge/internal"
	"stubforge/internal/metadata"

	"go.uber.org/zap"
)

func (mb MethodBuilder) String() string {
	if m, err := mb.method(); err == nil {
		return m.String()
	}
	return "<sealed method>"
}

// layout builds the dispatch table of the type under construction.
//
// Slots are inherited from the base type. A virtual method that does not ask
// for a new slot fills the most derived inherited slot with the same name and
// an identical signature. Explicit override edges are then applied. An edge
// whose signatures only differ by required modifiers is accepted but never
// wired: the body exists without filling the slot. Interface methods that
// were not explicitly implemented map to public virtual methods by name and
// signature. Explicit edges also require identical generic constraints.
func (tb *TypeBuilder) layout() error {
	def := tb.def
	if def.IsInterface() {
		for _, m := range def.Methods {
			m.Slot = m
		}
		return nil
	}

	vt := inheritedTable(def.BaseType)
	for _, m := range def.Methods {
		if !m.IsVirtual() || m.IsNewSlot() {
			continue
		}
		if slot := inheritedSlot(def.BaseType, m); slot != nil {
			if err := checkFinal(def, vt, slot, m); err != nil {
				return err
			}
		}
	}
	bindImplicit(def, vt)

	explicit := make(map[*metadata.Method]bool)
	for _, edge := range tb.overrides {
		body := tb.methods[edge.body]
		declaration := edge.declaration
		if declaration.DeclaringType == nil || !def.IsAssignableTo(declaration.DeclaringType) {
			return fmt.Errorf("%s: %s is declared neither by a base type nor by an implemented interface: %w", def, declaration, ErrSignatureBinding)
		}
		if !body.IsVirtual() {
			return fmt.Errorf("%s: %s must be virtual to implement %s: %w", def, body.Signature(), declaration, ErrSignatureBinding)
		}
		if !body.SameGenericConstraints(declaration) {
			return fmt.Errorf("%s: generic constraints of %s differ from %s: %w", def, body.Signature(), declaration, ErrSignatureBinding)
		}
		switch {
		case body.SameSignature(declaration):
			slot := slotOf(declaration)
			if err := checkFinal(def, vt, slot, body); err != nil {
				return err
			}
			vt[slot] = body
			explicit[slot] = true
			def.MethodImpls = append(def.MethodImpls, metadata.MethodImpl{Body: body, Declaration: declaration})
		case body.SameSignatureIgnoringModifiers(declaration):
			internal.Logger().Warn("override accepted but not bound to its slot",
				zap.String("type", def.FullName()),
				zap.String("body", body.Signature()),
				zap.String("declaration", declaration.String()))
		default:
			return fmt.Errorf("%s: %s cannot implement %s: %w", def, body.Signature(), declaration, ErrSignatureBinding)
		}
	}

	mapInterfaces(def, vt, explicit)
	def.VTable = vt

	if def.IsAbstract() {
		return nil
	}
	return checkAbstractSlots(def)
}

// inheritedTable returns a copy of the dispatch table of base. Types that were
// not produced by a TypeBuilder get their table laid out on first use.
func inheritedTable(base *metadata.TypeDef) map[*metadata.Method]*metadata.Method {
	vt := make(map[*metadata.Method]*metadata.Method)
	if base == nil {
		return vt
	}
	if base.VTable == nil {
		baseTable := inheritedTable(base.BaseType)
		bindImplicit(base, baseTable)
		mapInterfaces(base, baseTable, nil)
		base.VTable = baseTable
	}
	for slot, impl := range base.VTable {
		vt[slot] = impl
	}
	return vt
}

func bindImplicit(def *metadata.TypeDef, vt map[*metadata.Method]*metadata.Method) {
	for _, m := range def.Methods {
		if !m.IsVirtual() {
			continue
		}
		m.Slot = m
		if !m.IsNewSlot() {
			if slot := inheritedSlot(def.BaseType, m); slot != nil {
				m.Slot = slot
			}
		}
		vt[m.Slot] = m
	}
}

func inheritedSlot(base *metadata.TypeDef, m *metadata.Method) *metadata.Method {
	for t := base; t != nil; t = t.BaseType {
		for _, candidate := range t.Methods {
			if candidate.IsVirtual() && candidate.Name == m.Name && candidate.SameSignature(m) {
				return slotOf(candidate)
			}
		}
	}
	return nil
}

// checkFinal fails when the inherited implementation of slot is final.
// Interface slots may always be implemented again.
func checkFinal(def *metadata.TypeDef, vt map[*metadata.Method]*metadata.Method, slot, m *metadata.Method) error {
	if slot.DeclaringType != nil && slot.DeclaringType.IsInterface() {
		return nil
	}
	if impl := vt[slot]; impl != nil && impl.DeclaringType != def && impl.IsFinal() {
		return fmt.Errorf("%s: %s overrides %s: %w", def, m.Signature(), impl, ErrFinalSlot)
	}
	return nil
}

func slotOf(m *metadata.Method) *metadata.Method {
	if m.Slot != nil {
		return m.Slot
	}
	return m
}

func mapInterfaces(def *metadata.TypeDef, vt map[*metadata.Method]*metadata.Method, explicit map[*metadata.Method]bool) {
	for _, iface := range def.AllInterfaces() {
		for _, im := range iface.Methods {
			if !im.IsVirtual() || explicit[im] {
				continue
			}
			if impl := findInterfaceImplementation(def, im); impl != nil {
				vt[im] = vt[slotOf(impl)]
			}
		}
	}
}

func findInterfaceImplementation(def *metadata.TypeDef, im *metadata.Method) *metadata.Method {
	for t := def; t != nil; t = t.BaseType {
		for _, m := range t.Methods {
			if m.IsVirtual() && m.IsPublic() && m.Name == im.Name && m.SameSignature(im) {
				return m
			}
		}
	}
	return nil
}

func checkAbstractSlots(def *metadata.TypeDef) error {
	for t := def; t != nil; t = t.BaseType {
		for _, m := range t.Methods {
			if !m.IsVirtual() {
				continue
			}
			if impl := def.VTable[slotOf(m)]; impl == nil || impl.IsAbstract() {
				return fmt.Errorf("%s: %s: %w", def, m, ErrAbstractSlot)
			}
		}
	}
	for _, iface := range def.AllInterfaces() {
		for _, im := range iface.Methods {
			if !im.IsVirtual() {
				continue
			}
			if impl := def.VTable[im]; impl == nil || impl.IsAbstract() {
				return fmt.Errorf("%s: %s: %w", def, im, ErrAbstractSlot)
			}
		}
	}
	return nil
}

// Overrides reports whether impl is what a virtual call to declaration runs
// on an instance of def.
func Overrides(def *metadata.TypeDef, impl, declaration *metadata.Method) bool {
	if def == nil || impl == nil || declaration == nil || def.VTable == nil {
		return false
	}
	return def.Dispatch(declaration) == impl
}
