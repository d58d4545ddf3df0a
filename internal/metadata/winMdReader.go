package metadata

import (
	"debug/pe"
	"errors"
	"fmt"

	"stubforge/internal"

	"github.com/microsoft/go-winmd"
	"github.com/microsoft/go-winmd/flags"
)

var ErrTypeNotFound = errors.New("type definition not found")

// WinMdReader captures type declarations from a Windows Metadata file.
type WinMdReader struct {
	metadata winmd.Metadata
	types    map[string]*TypeDef
}

// The map of element types to built-in signature types
var builtInElementTypes = map[flags.ElementType]*Type{
	flags.ElementType_VOID:    Void,
	flags.ElementType_BOOLEAN: Boolean,
	flags.ElementType_CHAR:    Char,
	flags.ElementType_STRING:  String,
	flags.ElementType_OBJECT:  Object,
	flags.ElementType_I1:      SByte,
	flags.ElementType_I2:      Int16,
	flags.ElementType_I4:      Int32,
	flags.ElementType_I8:      Int64,
	flags.ElementType_U1:      Byte,
	flags.ElementType_U2:      UInt16,
	flags.ElementType_U4:      UInt32,
	flags.ElementType_U8:      UInt64,
	flags.ElementType_R4:      Single,
	flags.ElementType_R8:      Double,
	flags.ElementType_I:       IntPtr,
	flags.ElementType_U:       UIntPtr,
}

// The map of types created by `typedef` in C code to built-in types
var builtInTypeDefs = map[string]*Type{
	"BOOL":    Int32,
	"BOOLEAN": Byte,
	"HRESULT": Int32,
	"PWSTR":   IntPtr,
	"PSTR":    IntPtr,
	"HANDLE":  IntPtr,
	"Guid":    Guid,
}

// Generates a new metadata reader based WinMd file under given path
func NewReader(winMdPath string) (*WinMdReader, error) {
	peFile, err := pe.Open(winMdPath)
	if err != nil {
		return nil, fmt.Errorf("could not open metadata file: %w", err)
	}
	defer peFile.Close()

	winmdMetadata, err := winmd.New(peFile)
	if err != nil {
		return nil, fmt.Errorf("could not read metadata: %w", err)
	}

	return &WinMdReader{
		metadata: *winmdMetadata,
		types:    make(map[string]*TypeDef),
	}, nil
}

// Tries to get type with given name
func (reader *WinMdReader) TryGetType(name string) (element *TypeDef, found bool) {
	typeDef, err := reader.GetType(name)
	return typeDef, err == nil
}

// GetType captures the type declaration with given name, its methods and fields.
func (reader *WinMdReader) GetType(name string) (*TypeDef, error) {
	typeDef := reader.tryGetTypeDef(func(def *winmd.TypeDef) bool { return def.Name.String() == name })
	if typeDef == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrTypeNotFound)
	}
	return reader.captureType(typeDef)
}

func (reader *WinMdReader) captureType(typeDef *winmd.TypeDef) (*TypeDef, error) {
	fullName := typeDef.Namespace.String() + "." + typeDef.Name.String()
	if def, found := reader.types[fullName]; found {
		return def, nil
	}

	def := NewTypeDef(typeDef.Namespace.String(), typeDef.Name.String(), TypeAttributes(typeDef.Flags))
	reader.types[fullName] = def

	for i := typeDef.FieldList.Start; i < typeDef.FieldList.End; i++ {
		field, err := reader.metadata.Tables.Field.Record(i)
		if err != nil {
			return nil, fmt.Errorf("no matching field was found: %w", err)
		}
		captured, err := reader.getField(*field)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fullName, err)
		}
		def.AddField(captured)
	}

	for i := typeDef.MethodList.Start; i < typeDef.MethodList.End; i++ {
		methodDef, err := reader.metadata.Tables.MethodDef.Record(i)
		if err != nil {
			return nil, fmt.Errorf("no matching method was found: %w", err)
		}
		method, err := reader.getMethod(methodDef)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fullName, err)
		}
		def.AddMethod(method)
	}

	return def, nil
}

func (reader *WinMdReader) getType(sigType winmd.SigType) (*Type, error) {
	builtInType, found := builtInElementTypes[sigType.Kind]
	if found {
		return builtInType, nil
	}

	switch sigType.Kind {
	case flags.ElementType_PTR:
		// Unmanaged pointers travel as native integers.
		return IntPtr, nil
	case flags.ElementType_BYREF, flags.ElementType_SZARRAY, flags.ElementType_ARRAY:
		innerSigType, ok := sigType.Value.(winmd.SigType)
		if !ok {
			return nil, fmt.Errorf("element type %v has no inner type", sigType.Kind)
		}
		innerType, err := reader.getType(innerSigType)
		if err != nil {
			return nil, err
		}
		if sigType.Kind == flags.ElementType_BYREF {
			return innerType.MakeByRefType(), nil
		}
		return innerType.MakeArrayType(), nil
	case flags.ElementType_VAR, flags.ElementType_MVAR:
		position, err := genericPosition(sigType.Value)
		if err != nil {
			return nil, err
		}
		return NewGenericParameter("", position, sigType.Kind == flags.ElementType_MVAR), nil
	}

	namespace, name, err := reader.getTypeRefName(sigType)
	if err != nil {
		return nil, fmt.Errorf("no matching type reference for type was found: %w", err)
	}

	builtInType, found = builtInTypeDefs[name]
	if found {
		return builtInType, nil
	}

	if sigType.Kind == flags.ElementType_VALUETYPE {
		return NewValueType(namespace, name), nil
	}
	return NewClass(namespace, name), nil
}

func genericPosition(value any) (int, error) {
	switch v := value.(type) {
	case uint32:
		return int(v), nil
	case int:
		return v, nil
	case uint8:
		return int(v), nil
	}
	return 0, fmt.Errorf("unexpected generic parameter index %v", value)
}

func (reader *WinMdReader) getField(field winmd.Field) (*Field, error) {
	fieldSignature, err := reader.metadata.FieldSignature(field.Signature)
	if err != nil {
		return nil, fmt.Errorf("no matching field signature for field '%s' was found: %w", field.Name.String(), err)
	}
	fieldType, err := reader.getType(fieldSignature.Type)
	if err != nil {
		return nil, fmt.Errorf("could not determine field type: %w", err)
	}

	return &Field{Name: field.Name.String(), Type: fieldType, Attributes: FieldAttributes(field.Flags)}, nil
}

// Types referenced from signatures go through the TypeRef table. System types
// such as Guid have no TypeDef in the metadata file, so only the name is resolved.
func (reader *WinMdReader) getTypeRefName(sigType winmd.SigType) (namespace, name string, err error) {
	sigTypeIndex, ok := sigType.Value.(winmd.CodedIndex)
	if !ok {
		return "", "", fmt.Errorf("element type %v does not reference a type", sigType.Kind)
	}
	retTypeRef, err := reader.metadata.Tables.TypeRef.Record(sigTypeIndex.Index)
	if err != nil {
		return "", "", fmt.Errorf("did not found matching type reference: %w", err)
	}
	return retTypeRef.Namespace.String(), retTypeRef.Name.String(), nil
}

func (reader *WinMdReader) tryGetTypeDef(match func(*winmd.TypeDef) bool) *winmd.TypeDef {
	return findElementInTable(reader.metadata.Tables.TypeDef, match)
}

func (reader *WinMdReader) getMethod(methodDef *winmd.MethodDef) (*Method, error) {
	methodSignature, err := reader.metadata.MethodDefSignature(methodDef.Signature)
	if err != nil {
		return nil, fmt.Errorf("method '%s': %w", methodDef.Name.String(), err)
	}

	returnType, err := reader.getType(methodSignature.RetType.Type)
	if err != nil {
		return nil, fmt.Errorf("method '%s' return type: %w", methodDef.Name.String(), err)
	}

	method := &Method{
		Name:       methodDef.Name.String(),
		Attributes: MethodAttributes(methodDef.Flags),
		ReturnType: returnType,
	}

	// Sequence 0 describes the return value, parameters start at 1.
	paramRows := make(map[int]*winmd.Param)
	for idx := methodDef.ParamList.Start; idx < methodDef.ParamList.End; idx++ {
		param, err := reader.metadata.Tables.Param.Record(idx)
		if err != nil {
			return nil, fmt.Errorf("method '%s' parameter: %w", method.Name, err)
		}
		paramRows[int(param.Sequence)] = param
	}

	for i, methodParam := range methodSignature.Param {
		paramType, err := reader.getType(methodParam.Type)
		if err != nil {
			return nil, fmt.Errorf("method '%s' parameter %d: %w", method.Name, i, err)
		}
		parameter := &Parameter{Name: fmt.Sprintf("p%d", i), Type: paramType}
		if row, found := paramRows[i+1]; found {
			parameter.Name = row.Name.String()
			parameter.Attributes = ParamAttributes(row.Flags)
		}
		method.Parameters = append(method.Parameters, parameter)
	}

	return method, nil
}

// Finds element in given table and returns it. If element is not found then `nil` is returned.
func findElementInTable[T any, TP winmd.Record[T]](table winmd.Table[T, TP], match func(TP) bool) TP {
	for idx := uint32(0); idx < table.Len; idx++ {
		element, err := table.Record(winmd.Index(idx))
		internal.PanicOnError(err) // It returns an error only when creating return value and for out of scope file
		if match(element) {
			return element
		}
	}
	var notFound TP
	return notFound
}
