package stub

import (
	"fmt"
	"strconv"

	"stubforge/internal"
	"stubforge/internal/host"
	"stubforge/internal/il"
	"stubforge/internal/metadata"

	"go.uber.org/zap"
)

// stubAttributes derives the attributes of a synthesized member from those of
// the member it replaces. Without keepVirtual the new member is sealed.
func stubAttributes(source metadata.MethodAttributes, keepVirtual bool) metadata.MethodAttributes {
	attrs := source &^ (metadata.MethodAbstract | metadata.MethodVtableLayoutMask)
	if keepVirtual {
		return attrs | metadata.MethodVirtual
	}
	if attrs&metadata.MethodVirtual != 0 {
		attrs |= metadata.MethodFinal
	}
	return attrs
}

// ImplementEmptyStubMethod implements method on tb as a no-operation: out
// parameters receive their default value and the default value of the return
// type is returned. The new method is always registered as the override of
// method, even when its signature would bind implicitly.
func ImplementEmptyStubMethod(tb *host.TypeBuilder, method *metadata.Method, keepVirtual bool) (host.MethodBuilder, error) {
	if tb == nil {
		return host.MethodBuilder{}, fmt.Errorf("type builder: %w", ErrInvalidArgument)
	}
	if method == nil {
		return host.MethodBuilder{}, fmt.Errorf("method: %w", ErrInvalidArgument)
	}

	mb, err := tb.DefineMethod(method.Name, stubAttributes(method.Attributes, keepVirtual))
	if err != nil {
		return mb, err
	}
	if err := defineGenericParameters(mb, method.GenericParameters); err != nil {
		return mb, err
	}
	if err := mb.SetReturnType(method.Returns()); err != nil {
		return mb, err
	}
	if err := mb.SetParameters(method.ParameterTypes()...); err != nil {
		return mb, err
	}
	if err := emitEmptyImplementation(mb, method); err != nil {
		return mb, err
	}
	if err := tb.DefineMethodOverride(mb, method); err != nil {
		return mb, err
	}
	internal.Logger().Debug("stub method implemented",
		zap.String("type", tb.Name()),
		zap.String("member", method.String()),
		zap.Bool("virtual", keepVirtual))
	return mb, nil
}

func defineGenericParameters(mb host.MethodBuilder, source []*metadata.GenericParameter) error {
	if len(source) == 0 {
		return nil
	}
	names := make([]string, len(source))
	for i := range source {
		names[i] = "T" + strconv.Itoa(i)
	}
	builders, err := mb.DefineGenericParameters(names...)
	if err != nil {
		return err
	}
	for i, gb := range builders {
		if err := gb.SetGenericParameterAttributes(source[i].Attributes); err != nil {
			return err
		}
		if err := gb.SetInterfaceConstraints(source[i].Constraints...); err != nil {
			return err
		}
	}
	return nil
}

func emitEmptyImplementation(mb host.MethodBuilder, method *metadata.Method) error {
	b, err := mb.Body()
	if err != nil {
		return err
	}
	for i, p := range method.Parameters {
		pb, err := mb.DefineParameter(i+1, p.Attributes, p.Name)
		if err != nil {
			return err
		}
		for _, app := range p.CustomAttributes() {
			if app.AttributeType() == metadata.InAttribute {
				continue
			}
			cab, err := CreateAttributeBuilder(app)
			if err != nil {
				return err
			}
			if err := pb.SetCustomAttribute(cab); err != nil {
				return err
			}
		}
		if p.IsOut() {
			if err := StoreDefaultValueForOutParameter(b, p); err != nil {
				return err
			}
		}
	}

	if ret := method.Returns(); !ret.IsVoid() {
		if ret.IsValueType() || ret.IsGenericParameter() {
			local := b.DeclareLocal(ret)
			il.LdLoca(b, local)
			b.EmitToken(il.Initobj, ret)
			il.LdLoc(b, local)
		} else {
			b.Emit(il.Ldnull)
		}
	}
	b.Emit(il.Ret)
	return nil
}
