package stub

import (
	"fmt"

	"stubforge/internal/host"
	"stubforge/internal/metadata"
)

// CreateAttributeBuilder converts a captured attribute application into a
// builder that re-applies it to another member. Named arguments are split by
// the kind of member they target; positional arguments are kept in order.
func CreateAttributeBuilder(app *metadata.AttributeApplication) (*host.CustomAttributeBuilder, error) {
	if app == nil {
		return nil, fmt.Errorf("attribute application: %w", ErrInvalidArgument)
	}

	var (
		props     []*metadata.Property
		propVals  []any
		fields    []*metadata.Field
		fieldVals []any
	)
	for i, n := range app.NamedArguments {
		switch m := n.Member.(type) {
		case *metadata.Field:
			if m == nil {
				return nil, fmt.Errorf("named argument %d has no field: %w", i, ErrInvalidArgument)
			}
			fields = append(fields, m)
			fieldVals = append(fieldVals, n.Value)
		case *metadata.Property:
			if m == nil {
				return nil, fmt.Errorf("named argument %d has no property: %w", i, ErrInvalidArgument)
			}
			props = append(props, m)
			propVals = append(propVals, n.Value)
		default:
			return nil, fmt.Errorf("named argument %d targets %T, not a field or a property: %w", i, n.Member, ErrInvalidArgument)
		}
	}
	return host.NewCustomAttributeBuilder(app.Constructor, app.ConstructorArguments, props, propVals, fields, fieldVals)
}
