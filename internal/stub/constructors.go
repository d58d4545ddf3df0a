package stub

import (
	"fmt"

	"stubforge/internal"
	"stubforge/internal/host"
	"stubforge/internal/il"
	"stubforge/internal/metadata"

	"go.uber.org/zap"
)

// ConstructorAttributeFilter selects the attributes of a base constructor
// replicated onto its pass-through constructor.
type ConstructorAttributeFilter func(ctor *metadata.Method, app *metadata.AttributeApplication) bool

// ParameterAttributeFilter selects the attributes of a base constructor
// parameter replicated onto the matching pass-through parameter.
type ParameterAttributeFilter func(p *metadata.Parameter, app *metadata.AttributeApplication) bool

// DefinePassThroughConstructors defines on tb one constructor per non-private
// constructor of its base type. Each takes the same parameters and forwards
// them to the base constructor. attributes computes the attributes of the new
// constructor from the base one; nil keeps them. Nil filters replicate every
// attribute.
func DefinePassThroughConstructors(
	tb *host.TypeBuilder,
	attributes func(ctor *metadata.Method) metadata.MethodAttributes,
	ctorFilter ConstructorAttributeFilter,
	paramFilter ParameterAttributeFilter,
) ([]host.MethodBuilder, error) {
	if tb == nil {
		return nil, fmt.Errorf("type builder: %w", ErrInvalidArgument)
	}
	base := tb.BaseType()
	if base == nil {
		return nil, nil
	}

	var ctors []host.MethodBuilder
	for _, baseCtor := range base.Constructors {
		if baseCtor.IsPrivate() || baseCtor.IsStatic() {
			continue
		}
		attrs := baseCtor.Attributes
		if attributes != nil {
			attrs = attributes(baseCtor)
		}
		mb, err := tb.DefineConstructor(attrs&^(metadata.MethodVirtual|metadata.MethodAbstract), baseCtor.ParameterTypes()...)
		if err != nil {
			return ctors, err
		}
		for _, app := range baseCtor.CustomAttributes() {
			if ctorFilter != nil && !ctorFilter(baseCtor, app) {
				continue
			}
			cab, err := CreateAttributeBuilder(app)
			if err != nil {
				return ctors, err
			}
			if err := mb.SetCustomAttribute(cab); err != nil {
				return ctors, err
			}
		}
		for i, p := range baseCtor.Parameters {
			pb, err := mb.DefineParameter(i+1, p.Attributes, p.Name)
			if err != nil {
				return ctors, err
			}
			for _, app := range p.CustomAttributes() {
				if paramFilter != nil && !paramFilter(p, app) {
					continue
				}
				cab, err := CreateAttributeBuilder(app)
				if err != nil {
					return ctors, err
				}
				if err := pb.SetCustomAttribute(cab); err != nil {
					return ctors, err
				}
			}
		}

		b, err := mb.Body()
		if err != nil {
			return ctors, err
		}
		il.RepushActualParameters(b, true, len(baseCtor.Parameters)+1)
		b.EmitToken(il.Call, baseCtor)
		b.Emit(il.Ret)
		ctors = append(ctors, mb)
		internal.Logger().Debug("pass-through constructor defined",
			zap.String("type", tb.Name()),
			zap.String("member", baseCtor.String()))
	}
	return ctors, nil
}
