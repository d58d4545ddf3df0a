package host

import (
	"fmt"

	"stubforge/internal/metadata"
)

// New creates an instance of def with the constructor whose parameters accept
// args.
func New(def *metadata.TypeDef, args ...any) (*Object, error) {
	if def == nil {
		return nil, fmt.Errorf("type: %w", ErrInvalidArgument)
	}
	for _, ctor := range def.Constructors {
		if accepts(ctor, args) {
			return NewWith(ctor, args...)
		}
	}
	return nil, fmt.Errorf("%s has no constructor for %d arguments: %w", def, len(args), ErrMissingMethod)
}

// NewWith creates an instance of the declaring type of ctor and runs ctor on it.
func NewWith(ctor *metadata.Method, args ...any) (*Object, error) {
	if ctor == nil || !ctor.IsConstructor() || ctor.DeclaringType == nil {
		return nil, fmt.Errorf("constructor %v: %w", ctor, ErrInvalidArgument)
	}
	return construct(ctor, args, 0)
}

func accepts(m *metadata.Method, args []any) bool {
	if len(args) != len(m.Parameters) {
		return false
	}
	for i, p := range m.Parameters {
		if !assignable(args[i], p.Type) {
			return false
		}
	}
	return true
}

// Invoke calls m on this. Virtual methods dispatch on the run-time type of
// this; this is ignored for static methods.
func Invoke(m *metadata.Method, this any, args ...any) (any, error) {
	return InvokeGeneric(m, nil, this, args...)
}

// InvokeGeneric calls an instantiation of the generic method m.
func InvokeGeneric(m *metadata.Method, typeArgs []*metadata.Type, this any, args ...any) (any, error) {
	return invoke(m, typeArgs, true, this, args)
}

// InvokeNonVirtual calls exactly m, bypassing virtual dispatch.
func InvokeNonVirtual(m *metadata.Method, this any, args ...any) (any, error) {
	return invoke(m, nil, false, this, args)
}

func invoke(m *metadata.Method, typeArgs []*metadata.Type, virtual bool, this any, args []any) (any, error) {
	if m == nil {
		return nil, fmt.Errorf("method: %w", ErrInvalidArgument)
	}
	if m.IsStatic() {
		return run(m, typeArgs, args, 0)
	}
	obj, ok := this.(*Object)
	if !ok {
		if this == nil {
			return nil, fmt.Errorf("%s: %w", m, ErrNullReference)
		}
		return nil, fmt.Errorf("%s: receiver %T: %w", m, this, ErrInvalidArgument)
	}
	if m.DeclaringType != nil && !obj.Type.IsAssignableTo(m.DeclaringType) {
		return nil, fmt.Errorf("%s: receiver of type %s: %w", m, obj.Type, ErrInvalidArgument)
	}
	callee := m
	if virtual && m.IsVirtual() {
		callee = obj.Type.Dispatch(m)
	}
	if callee.IsAbstract() {
		return nil, fmt.Errorf("%s: %w", callee, ErrAbstractSlot)
	}
	return run(callee, typeArgs, append([]any{obj}, args...), 0)
}

// GetProperty reads p on this through its getter.
func GetProperty(this any, p *metadata.Property) (any, error) {
	if p == nil || p.Getter == nil {
		return nil, fmt.Errorf("property %v has no getter: %w", p, ErrMissingMethod)
	}
	return Invoke(p.Getter, this)
}

// SetProperty assigns p on this through its setter.
func SetProperty(this any, p *metadata.Property, v any) error {
	if p == nil || p.Setter == nil {
		return fmt.Errorf("property %v has no setter: %w", p, ErrMissingMethod)
	}
	_, err := Invoke(p.Setter, this, v)
	return err
}

// StaticInvoker calls a resolved static method.
type StaticInvoker func(args ...any) (any, error)

// InstanceInvoker calls a resolved instance method on this.
type InstanceInvoker func(this any, args ...any) (any, error)

// FindMethod looks up the method of def, or of one of its bases, with the
// given name and exact signature. A nil returnType matches void.
func FindMethod(def *metadata.TypeDef, name string, returnType *metadata.Type, parameterTypes ...*metadata.Type) *metadata.Method {
	if returnType == nil {
		returnType = metadata.Void
	}
	for t := def; t != nil; t = t.BaseType {
		for _, m := range t.Methods {
			if m.Name != name || len(m.Parameters) != len(parameterTypes) || !metadata.Identical(m.Returns(), returnType) {
				continue
			}
			match := true
			for i, p := range m.Parameters {
				if !metadata.Identical(p.Type, parameterTypes[i]) {
					match = false
					break
				}
			}
			if match {
				return m
			}
		}
	}
	return nil
}

func lookup(def *metadata.TypeDef, name string, static bool, returnType *metadata.Type, parameterTypes []*metadata.Type, throwOnError bool) (*metadata.Method, error) {
	m := FindMethod(def, name, returnType, parameterTypes...)
	if m != nil && m.IsStatic() == static {
		return m, nil
	}
	if !throwOnError {
		return nil, nil
	}
	kind := "instance"
	if static {
		kind = "static"
	}
	return nil, fmt.Errorf("%s has no %s method %s: %w", def, kind, name, ErrMissingMethod)
}

// GetStaticInvoker binds a static method of def. When no method matches it
// returns nil, or ErrMissingMethod if throwOnError is set.
func GetStaticInvoker(def *metadata.TypeDef, name string, returnType *metadata.Type, parameterTypes []*metadata.Type, throwOnError bool) (StaticInvoker, error) {
	m, err := lookup(def, name, true, returnType, parameterTypes, throwOnError)
	if m == nil {
		return nil, err
	}
	return func(args ...any) (any, error) {
		return Invoke(m, nil, args...)
	}, nil
}

// GetInstanceInvoker binds an instance method of def. Calls dispatch
// virtually on the receiver.
func GetInstanceInvoker(def *metadata.TypeDef, name string, returnType *metadata.Type, parameterTypes []*metadata.Type, throwOnError bool) (InstanceInvoker, error) {
	m, err := lookup(def, name, false, returnType, parameterTypes, throwOnError)
	if m == nil {
		return nil, err
	}
	return func(this any, args ...any) (any, error) {
		return Invoke(m, this, args...)
	}, nil
}

// GetNonVirtualInvoker binds an instance method of def. Calls always run the
// bound method, even when the receiver overrides it.
func GetNonVirtualInvoker(def *metadata.TypeDef, name string, returnType *metadata.Type, parameterTypes []*metadata.Type, throwOnError bool) (InstanceInvoker, error) {
	m, err := lookup(def, name, false, returnType, parameterTypes, throwOnError)
	if m == nil {
		return nil, err
	}
	return func(this any, args ...any) (any, error) {
		return InvokeNonVirtual(m, this, args...)
	}, nil
}
