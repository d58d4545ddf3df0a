package metadata

import "strings"

// MethodAttributes mirrors the ECMA-335 II.23.1.10 flag set.
type MethodAttributes uint16

const (
	MethodMemberAccessMask      MethodAttributes = 0x0007
	MethodPrivateScope          MethodAttributes = 0x0000
	MethodPrivate               MethodAttributes = 0x0001
	MethodFamANDAssem           MethodAttributes = 0x0002
	MethodAssembly              MethodAttributes = 0x0003
	MethodFamily                MethodAttributes = 0x0004
	MethodFamORAssem            MethodAttributes = 0x0005
	MethodPublic                MethodAttributes = 0x0006
	MethodStatic                MethodAttributes = 0x0010
	MethodFinal                 MethodAttributes = 0x0020
	MethodVirtual               MethodAttributes = 0x0040
	MethodHideBySig             MethodAttributes = 0x0080
	MethodVtableLayoutMask      MethodAttributes = 0x0100
	MethodReuseSlot             MethodAttributes = 0x0000
	MethodNewSlot               MethodAttributes = 0x0100
	MethodCheckAccessOnOverride MethodAttributes = 0x0200
	MethodAbstract              MethodAttributes = 0x0400
	MethodSpecialName           MethodAttributes = 0x0800
	MethodRTSpecialName         MethodAttributes = 0x1000
)

var methodAccessNames = map[MethodAttributes]string{
	MethodPrivateScope: "privatescope",
	MethodPrivate:      "private",
	MethodFamANDAssem:  "famandassem",
	MethodAssembly:     "assembly",
	MethodFamily:       "family",
	MethodFamORAssem:   "famorassem",
	MethodPublic:       "public",
}

func (a MethodAttributes) String() string {
	parts := []string{methodAccessNames[a&MethodMemberAccessMask]}
	for _, f := range []struct {
		flag MethodAttributes
		name string
	}{
		{MethodStatic, "static"},
		{MethodFinal, "final"},
		{MethodVirtual, "virtual"},
		{MethodHideBySig, "hidebysig"},
		{MethodNewSlot, "newslot"},
		{MethodAbstract, "abstract"},
		{MethodSpecialName, "specialname"},
		{MethodRTSpecialName, "rtspecialname"},
	} {
		if a&f.flag != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, " ")
}

// ParamAttributes mirrors ECMA-335 II.23.1.13.
type ParamAttributes uint16

const (
	ParamNone            ParamAttributes = 0x0000
	ParamIn              ParamAttributes = 0x0001
	ParamOut             ParamAttributes = 0x0002
	ParamOptional        ParamAttributes = 0x0010
	ParamHasDefault      ParamAttributes = 0x1000
	ParamHasFieldMarshal ParamAttributes = 0x2000
)

func (a ParamAttributes) String() string {
	var parts []string
	if a&ParamIn != 0 {
		parts = append(parts, "[in]")
	}
	if a&ParamOut != 0 {
		parts = append(parts, "[out]")
	}
	if a&ParamOptional != 0 {
		parts = append(parts, "[opt]")
	}
	return strings.Join(parts, "")
}

// GenericParameterAttributes mirrors ECMA-335 II.23.1.7.
type GenericParameterAttributes uint16

const (
	GenericVarianceMask                   GenericParameterAttributes = 0x0003
	GenericNone                           GenericParameterAttributes = 0x0000
	GenericCovariant                      GenericParameterAttributes = 0x0001
	GenericContravariant                  GenericParameterAttributes = 0x0002
	GenericSpecialConstraintMask          GenericParameterAttributes = 0x001C
	GenericReferenceTypeConstraint        GenericParameterAttributes = 0x0004
	GenericNotNullableValueTypeConstraint GenericParameterAttributes = 0x0008
	GenericDefaultConstructorConstraint   GenericParameterAttributes = 0x0010
)

// FieldAttributes mirrors ECMA-335 II.23.1.5.
type FieldAttributes uint16

const (
	FieldAccessMask FieldAttributes = 0x0007
	FieldPrivate    FieldAttributes = 0x0001
	FieldAssembly   FieldAttributes = 0x0003
	FieldFamily     FieldAttributes = 0x0004
	FieldPublic     FieldAttributes = 0x0006
	FieldStatic     FieldAttributes = 0x0010
	FieldInitOnly   FieldAttributes = 0x0020
	FieldLiteral    FieldAttributes = 0x0040
)

// PropertyAttributes mirrors ECMA-335 II.23.1.14.
type PropertyAttributes uint16

const (
	PropertyNone          PropertyAttributes = 0x0000
	PropertySpecialName   PropertyAttributes = 0x0200
	PropertyRTSpecialName PropertyAttributes = 0x0400
	PropertyHasDefault    PropertyAttributes = 0x1000
)

// TypeAttributes mirrors ECMA-335 II.23.1.15.
type TypeAttributes uint32

const (
	TypeVisibilityMask TypeAttributes = 0x00000007
	TypeNotPublic      TypeAttributes = 0x00000000
	TypePublic         TypeAttributes = 0x00000001
	TypeNestedPublic   TypeAttributes = 0x00000002
	TypeClass          TypeAttributes = 0x00000000
	TypeInterface      TypeAttributes = 0x00000020
	TypeAbstract       TypeAttributes = 0x00000080
	TypeSealed         TypeAttributes = 0x00000100
	TypeSpecialName    TypeAttributes = 0x00000400
	TypeImport         TypeAttributes = 0x00001000
	TypeWindowsRuntime TypeAttributes = 0x00004000
)
