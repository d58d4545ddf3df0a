package host

import (
	"fmt"

	"stubforge/internal/metadata"
)

// CustomAttributeBuilder is a re-appliable attribute: the constructor to run,
// its positional arguments, and the values assigned to named properties and
// named fields after construction.
type CustomAttributeBuilder struct {
	constructor    *metadata.Method
	arguments      []any
	properties     []*metadata.Property
	propertyValues []any
	fields         []*metadata.Field
	fieldValues    []any
}

// NewCustomAttributeBuilder validates and captures an attribute application.
// Named properties must be settable and named fields must be public instance
// fields, both declared by the attribute type or one of its bases.
func NewCustomAttributeBuilder(
	constructor *metadata.Method,
	arguments []any,
	properties []*metadata.Property,
	propertyValues []any,
	fields []*metadata.Field,
	fieldValues []any,
) (*CustomAttributeBuilder, error) {
	if constructor == nil || !constructor.IsConstructor() || constructor.DeclaringType == nil {
		return nil, fmt.Errorf("attribute constructor %v: %w", constructor, ErrInvalidArgument)
	}
	attributeType := constructor.DeclaringType
	if len(arguments) != len(constructor.Parameters) {
		return nil, fmt.Errorf("%s: %d arguments for %d parameters: %w", attributeType, len(arguments), len(constructor.Parameters), ErrInvalidArgument)
	}
	if len(properties) != len(propertyValues) || len(fields) != len(fieldValues) {
		return nil, fmt.Errorf("%s: named members and values differ in length: %w", attributeType, ErrInvalidArgument)
	}
	for _, p := range properties {
		if p == nil || p.Setter == nil || p.DeclaringType == nil || !attributeType.IsAssignableTo(p.DeclaringType) {
			return nil, fmt.Errorf("%s: property %v is not a settable property of the attribute: %w", attributeType, p, ErrInvalidArgument)
		}
	}
	for _, f := range fields {
		if f == nil || f.IsStatic() || f.Attributes&metadata.FieldAccessMask != metadata.FieldPublic ||
			f.DeclaringType == nil || !attributeType.IsAssignableTo(f.DeclaringType) {
			return nil, fmt.Errorf("%s: field %v is not a public field of the attribute: %w", attributeType, f, ErrInvalidArgument)
		}
	}
	return &CustomAttributeBuilder{
		constructor:    constructor,
		arguments:      append([]any(nil), arguments...),
		properties:     append([]*metadata.Property(nil), properties...),
		propertyValues: append([]any(nil), propertyValues...),
		fields:         append([]*metadata.Field(nil), fields...),
		fieldValues:    append([]any(nil), fieldValues...),
	}, nil
}

func (cab *CustomAttributeBuilder) Constructor() *metadata.Method { return cab.constructor }

func (cab *CustomAttributeBuilder) ConstructorArguments() []any {
	return append([]any(nil), cab.arguments...)
}

func (cab *CustomAttributeBuilder) NamedProperties() []*metadata.Property {
	return append([]*metadata.Property(nil), cab.properties...)
}

func (cab *CustomAttributeBuilder) PropertyValues() []any {
	return append([]any(nil), cab.propertyValues...)
}

func (cab *CustomAttributeBuilder) NamedFields() []*metadata.Field {
	return append([]*metadata.Field(nil), cab.fields...)
}

func (cab *CustomAttributeBuilder) FieldValues() []any {
	return append([]any(nil), cab.fieldValues...)
}

// Application returns the attribute application cab describes. Named
// properties come before named fields.
func (cab *CustomAttributeBuilder) Application() *metadata.AttributeApplication {
	app := &metadata.AttributeApplication{
		Constructor:          cab.constructor,
		ConstructorArguments: cab.ConstructorArguments(),
	}
	for i, p := range cab.properties {
		app.NamedArguments = append(app.NamedArguments, metadata.NamedArgument{Member: p, Value: cab.propertyValues[i]})
	}
	for i, f := range cab.fields {
		app.NamedArguments = append(app.NamedArguments, metadata.NamedArgument{Member: f, Value: cab.fieldValues[i]})
	}
	return app
}
