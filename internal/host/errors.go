package host

import "errors"

var (
	// ErrInvalidArgument reports an absent or malformed required input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSignatureBinding reports an override edge rejected because the body
	// and the declaration do not have the same signature.
	ErrSignatureBinding = errors.New("signature of the body and declaration in a method implementation do not match")
	// ErrTypeSealed reports a mutation through a handle of a finalized type.
	ErrTypeSealed = errors.New("type has already been created")
	// ErrDuplicateMember reports a second declaration of the same type or field name.
	ErrDuplicateMember = errors.New("duplicate member name")
	// ErrAbstractSlot reports a concrete type leaving an abstract or interface slot unimplemented.
	ErrAbstractSlot = errors.New("concrete type does not implement an abstract slot")
	// ErrFinalSlot reports a method overriding a slot whose implementation is final.
	ErrFinalSlot = errors.New("cannot override a final method")
	// ErrAbstractType reports an attempt to instantiate an abstract type or interface.
	ErrAbstractType = errors.New("cannot create an instance of an abstract type")

	ErrInvalidProgram = errors.New("invalid program")
	ErrNullReference  = errors.New("null reference")
	ErrMissingMethod  = errors.New("missing method")
)
