package stub

import (
	"errors"
	"testing"

	"stubforge/internal"
	"stubforge/internal/host"
	"stubforge/internal/il"
	"stubforge/internal/metadata"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	publicMethod    = metadata.MethodPublic | metadata.MethodHideBySig
	familyMethod    = metadata.MethodFamily | metadata.MethodHideBySig
	newSlotMethod   = publicMethod | metadata.MethodVirtual | metadata.MethodNewSlot
	abstractMethod  = newSlotMethod | metadata.MethodAbstract
	accessor        = metadata.MethodSpecialName
	abstractClass   = metadata.TypePublic | metadata.TypeAbstract
	interfaceType   = metadata.TypePublic | metadata.TypeInterface | metadata.TypeAbstract
	publicInstance  = metadata.FieldPublic
	privateInstance = metadata.FieldPrivate
)

func newModule(t *testing.T) *host.Module {
	t.Helper()
	m, err := host.NewModule("StubTest", host.DefaultModuleVersion)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func defineType(t *testing.T, m *host.Module, name string, attrs metadata.TypeAttributes, base *metadata.TypeDef) *host.TypeBuilder {
	t.Helper()
	tb, err := m.DefineType("Stubs", name, attrs, base)
	if err != nil {
		t.Fatalf("DefineType(%s): %v", name, err)
	}
	return tb
}

// createTypeBuilder starts a uniquely named type in the process-wide module.
func createTypeBuilder(t *testing.T, base *metadata.TypeDef) *host.TypeBuilder {
	t.Helper()
	tb, err := host.DefaultModule().DefineUniqueType(base)
	if err != nil {
		t.Fatalf("DefineUniqueType: %v", err)
	}
	return tb
}

func createType(t *testing.T, tb *host.TypeBuilder) *metadata.TypeDef {
	t.Helper()
	def, err := tb.CreateType()
	if err != nil {
		t.Fatalf("CreateType(%s): %v", tb.Name(), err)
	}
	return def
}

func newInstance(t *testing.T, def *metadata.TypeDef, args ...any) *host.Object {
	t.Helper()
	obj, err := host.New(def, args...)
	if err != nil {
		t.Fatalf("New(%s): %v", def, err)
	}
	return obj
}

func bodyOf(t *testing.T, mb host.MethodBuilder) *il.Body {
	t.Helper()
	b, err := mb.Body()
	if err != nil {
		t.Fatalf("Body: %v", err)
	}
	return b
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

// stubType stubs every method of base on a new type and finalizes it.
func stubType(t *testing.T, base *metadata.TypeDef, methods ...*metadata.Method) *metadata.TypeDef {
	t.Helper()
	tb := createTypeBuilder(t, base)
	for _, m := range methods {
		if _, err := ImplementEmptyStubMethod(tb, m, false); err != nil {
			t.Fatalf("ImplementEmptyStubMethod(%s): %v", m, err)
		}
	}
	return createType(t, tb)
}

// singleMethod defines an abstract class declaring "abstract ret M(param)".
func singleMethod(t *testing.T, m *host.Module, name string, ret, param *metadata.Type, attrs metadata.ParamAttributes) (*metadata.TypeDef, *metadata.Method) {
	t.Helper()
	tb := defineType(t, m, name, abstractClass, nil)
	mb, err := tb.DefineMethodWithSignature("M", abstractMethod, ret, param)
	must(t, err)
	_, err = mb.DefineParameter(1, attrs, "i")
	must(t, err)
	def := createType(t, tb)
	return def, def.Method("M")
}

func TestStubMethodDefaults(t *testing.T) {
	m := newModule(t)
	anObject := createType(t, defineType(t, m, "AnObject", metadata.TypePublic, nil))
	obj := newInstance(t, anObject)
	guid := uuid.New()

	tests := []struct {
		name      string
		ret       *metadata.Type
		param     *metadata.Type
		attrs     metadata.ParamAttributes
		arg       any
		byRef     bool
		want      any
		wantAfter any
	}{
		{name: "B returns int", ret: metadata.Int32, param: metadata.Int32, arg: 10, want: int32(0)},
		{name: "C returns short", ret: metadata.Int16, param: metadata.Int32, arg: 10, want: int16(0)},
		{name: "D returns Guid", ret: metadata.Guid, param: metadata.Int32, arg: 10, want: uuid.Nil},
		{name: "E ref int", ret: metadata.Byte, param: metadata.Int32.MakeByRefType(), arg: int32(3712), byRef: true, want: uint8(0), wantAfter: int32(3712)},
		{name: "F out int", ret: metadata.Byte, param: metadata.Int32.MakeByRefType(), attrs: metadata.ParamOut, arg: int32(45), byRef: true, want: uint8(0), wantAfter: int32(0)},
		{name: "G out Guid", ret: metadata.Byte, param: metadata.Guid.MakeByRefType(), attrs: metadata.ParamOut, arg: guid, byRef: true, want: uint8(0), wantAfter: uuid.Nil},
		{name: "H ref Guid", ret: metadata.Byte, param: metadata.Guid.MakeByRefType(), arg: guid, byRef: true, want: uint8(0), wantAfter: guid},
		{name: "I out class", ret: metadata.Byte, param: anObject.Type().MakeByRefType(), attrs: metadata.ParamOut, arg: obj, byRef: true, want: uint8(0), wantAfter: nil},
		{name: "J ref class", ret: metadata.Byte, param: anObject.Type().MakeByRefType(), arg: obj, byRef: true, want: uint8(0), wantAfter: obj},
		{name: "returns class", ret: anObject.Type(), param: metadata.Int32, arg: 10, want: nil},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, method := singleMethod(t, m, "Base"+string(rune('A'+i)), tt.ret, tt.param, tt.attrs)
			def := stubType(t, base, method)
			o := newInstance(t, def)

			arg := tt.arg
			cell := &host.Cell{Value: tt.arg}
			if tt.byRef {
				arg = cell
			}
			got, err := host.Invoke(method, o, arg)
			if err != nil {
				t.Fatalf("M: %v", err)
			}
			if got != tt.want {
				t.Errorf("M() = %#v, want %#v", got, tt.want)
			}
			if tt.byRef && cell.Value != tt.wantAfter {
				t.Errorf("argument after the call = %#v, want %#v", cell.Value, tt.wantAfter)
			}
			if err := VerifyOverride(def, def.Method("M"), method); err != nil {
				t.Errorf("VerifyOverride: %v", err)
			}
		})
	}
}

func TestStubProtectedMethodReturningClass(t *testing.T) {
	m := newModule(t)
	tb := defineType(t, m, "A", abstractClass, nil)
	first, err := tb.DefineMethodWithSignature("FirstMethod", familyMethod|metadata.MethodVirtual|metadata.MethodNewSlot|metadata.MethodAbstract, tb.Type(), metadata.Int32)
	must(t, err)
	call, err := tb.DefineMethodWithSignature("CallFirstMethod", publicMethod, tb.Type(), metadata.Int32)
	must(t, err)
	b := bodyOf(t, call)
	il.RepushActualParameters(b, true, 2)
	b.EmitToken(il.Callvirt, first)
	b.Emit(il.Ret)
	a := createType(t, tb)

	def := stubType(t, a, a.Method("FirstMethod"))
	stubbed := def.Method("FirstMethod")
	if got, want := stubbed.Attributes, familyMethod|metadata.MethodVirtual|metadata.MethodFinal; got != want {
		t.Errorf("stub attributes = %s, want %s", got, want)
	}
	got, err := host.Invoke(a.Method("CallFirstMethod"), newInstance(t, def), int32(10))
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("CallFirstMethod(10) = %v, want null", got)
	}
}

// byte M(out Guid g) returns 0 and clears g whatever its value on entry.
func TestStubOutGuid(t *testing.T) {
	m := newModule(t)
	base, method := singleMethod(t, m, "G", metadata.Byte, metadata.Guid.MakeByRefType(), metadata.ParamOut)
	def := stubType(t, base, method)
	o := newInstance(t, def)

	for _, in := range []uuid.UUID{uuid.Nil, uuid.New(), uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")} {
		g := &host.Cell{Value: in}
		got, err := host.Invoke(method, o, g)
		if err != nil {
			t.Fatal(err)
		}
		if got != uint8(0) || g.Value != uuid.Nil {
			t.Errorf("M(out %s) = %v with g = %v, want 0 and the zero Guid", in, got, g.Value)
		}
	}
}

func TestStubGenericMethod(t *testing.T) {
	m := newModule(t)
	mk := createType(t, defineType(t, m, "MK`1", metadata.TypePublic, nil))
	thing := createType(t, defineType(t, m, "IThing", interfaceType, nil))

	tb := defineType(t, m, "K", abstractClass, nil)
	wrapped, err := tb.DefineMethod("M", abstractMethod)
	must(t, err)
	gps, err := wrapped.DefineGenericParameters("T")
	must(t, err)
	must(t, gps[0].SetGenericParameterAttributes(metadata.GenericDefaultConstructorConstraint))
	must(t, gps[0].SetInterfaceConstraints(thing.Type()))
	must(t, wrapped.SetReturnType(mk.Type().MakeGenericType(gps[0].Type())))

	plain, err := tb.DefineMethod("Get", abstractMethod)
	must(t, err)
	gps, err = plain.DefineGenericParameters("TValue")
	must(t, err)
	must(t, plain.SetReturnType(gps[0].Type()))
	must(t, plain.SetParameters(gps[0].Type().MakeByRefType()))
	_, err = plain.DefineParameter(1, metadata.ParamOut, "value")
	must(t, err)
	k := createType(t, tb)

	def := stubType(t, k, k.Method("M"), k.Method("Get"))
	stubbed := def.Method("M")
	if len(stubbed.GenericParameters) != 1 || stubbed.GenericParameters[0].Name != "T0" {
		t.Fatalf("generic parameters = %v, want [T0]", stubbed.GenericParameters)
	}
	if stubbed.GenericParameters[0].Attributes != metadata.GenericDefaultConstructorConstraint {
		t.Errorf("generic parameter attributes not copied: %v", stubbed.GenericParameters[0].Attributes)
	}
	if c := stubbed.GenericParameters[0].Constraints; len(c) != 1 || !metadata.Identical(c[0], thing.Type()) {
		t.Errorf("generic parameter constraints = %v, want [%s]", c, thing.Type())
	}
	o := newInstance(t, def)

	got, err := host.InvokeGeneric(k.Method("M"), []*metadata.Type{metadata.Int32}, o)
	if err != nil || got != nil {
		t.Errorf("M<int>() = %v, %v, want null", got, err)
	}

	for _, tt := range []struct {
		arg  *metadata.Type
		in   any
		want any
	}{
		{metadata.Int32, int32(7), int32(0)},
		{metadata.Guid, uuid.New(), uuid.Nil},
		{metadata.String, "text", nil},
		{mk.Type(), newInstance(t, mk), nil},
	} {
		cell := &host.Cell{Value: tt.in}
		got, err := host.InvokeGeneric(k.Method("Get"), []*metadata.Type{tt.arg}, o, cell)
		if err != nil {
			t.Fatalf("Get<%s>: %v", tt.arg, err)
		}
		if got != tt.want || cell.Value != tt.want {
			t.Errorf("Get<%s>(out %v) = %#v, value %#v, want %#v", tt.arg, tt.in, got, cell.Value, tt.want)
		}
	}
}

// readOnlyPoint returns an abstract class whose virtual M takes a read-only
// by-reference struct and returns -1.
func readOnlyPoint() (*metadata.TypeDef, *metadata.Method, *metadata.Type) {
	point := metadata.NewTypeDef("Stubs", "ROStruct", metadata.TypePublic|metadata.TypeSealed)
	point.ValueType = true
	point.AddField(&metadata.Field{Name: "Value", Type: metadata.Int32, Attributes: publicInstance | metadata.FieldInitOnly})

	l := metadata.NewTypeDef("Stubs", "L", abstractClass)
	ctor := il.NewBody()
	ctor.Emit(il.Ret)
	ctor.Seal()
	l.AddMethod(&metadata.Method{
		Name:       metadata.ConstructorName,
		Attributes: familyMethod | metadata.MethodSpecialName | metadata.MethodRTSpecialName,
		ReturnType: metadata.Void,
		Body:       ctor,
	})
	body := il.NewBody()
	il.LdInt32(body, -1)
	body.Emit(il.Ret)
	body.Seal()
	p := &metadata.Parameter{Name: "s", Type: metadata.InParameterType(point.Type()), Attributes: metadata.ParamIn}
	p.AddCustomAttribute(metadata.ApplyMarker(metadata.InAttribute))
	p.AddCustomAttribute(metadata.ApplyMarker(metadata.IsReadOnlyAttribute))
	m := l.AddMethod(&metadata.Method{
		Name:       "M",
		Attributes: newSlotMethod,
		ReturnType: metadata.Int32,
		Parameters: []*metadata.Parameter{p},
		Body:       body,
	})
	return l, m, point.Type()
}

func TestStubReadOnlyReferenceIsNotBound(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	internal.SetLogger(zap.New(core))
	defer internal.SetLogger(nil)

	l, method, point := readOnlyPoint()
	def := stubType(t, l, method)
	stubbed := def.Method("M")
	if stubbed.DeclaringType != def {
		t.Fatalf("M resolved to %s", stubbed)
	}

	p := stubbed.Parameters[0]
	if p.Name != "s" || !p.IsIn() {
		t.Errorf("parameter = %s %s, want [in] s", p.Attributes, p.Name)
	}
	if p.IsDefined(metadata.InAttribute) {
		t.Error("InAttribute was replicated")
	}
	if !p.IsDefined(metadata.IsReadOnlyAttribute) {
		t.Error("IsReadOnlyAttribute was not replicated")
	}

	zero, err := host.Zero(point)
	must(t, err)
	o := newInstance(t, def)
	got, err := host.Invoke(method, o, &host.Cell{Value: zero})
	must(t, err)
	if got != int32(-1) {
		t.Errorf("M(in s) = %v, want the inherited -1", got)
	}
	got, err = host.InvokeNonVirtual(stubbed, o, &host.Cell{Value: zero})
	must(t, err)
	if got != int32(0) {
		t.Errorf("stub called directly = %v, want 0", got)
	}

	if err := VerifyOverride(def, stubbed, method); !errors.Is(err, ErrSilentNonBinding) {
		t.Errorf("VerifyOverride: %v, want ErrSilentNonBinding", err)
	}
	if err := VerifyStubs(def); !errors.Is(err, ErrSilentNonBinding) {
		t.Errorf("VerifyStubs: %v, want ErrSilentNonBinding", err)
	}
	if n := logs.FilterMessage("override accepted but not bound to its slot").Len(); n != 1 {
		t.Errorf("got %d non-binding warnings, want 1", n)
	}
}

func valueTuple(arity int) *metadata.TypeDef {
	d := metadata.NewTypeDef("System", "ValueTuple`"+string(rune('0'+arity)), metadata.TypePublic|metadata.TypeSealed)
	d.ValueType = true
	for i := 0; i < arity; i++ {
		d.AddField(&metadata.Field{
			Name:       "Item" + string(rune('1'+i)),
			Type:       metadata.NewGenericParameter("T"+string(rune('1'+i)), i, false),
			Attributes: publicInstance,
		})
	}
	return d
}

func TestStubWithTuples(t *testing.T) {
	m := newModule(t)
	anObject := createType(t, defineType(t, m, "AnObject", metadata.TypePublic, nil))
	pair := valueTuple(2).Type().MakeGenericType(metadata.Byte, metadata.Int32)
	triple := valueTuple(3).Type().MakeGenericType(anObject.Type(), metadata.Int32, metadata.String)

	base, method := singleMethod(t, m, "MT", pair, triple, metadata.ParamNone)
	def := stubType(t, base, method)

	arg, err := host.Zero(triple)
	must(t, err)
	arg.(host.Struct).Fields["Item2"] = int32(45)
	arg.(host.Struct).Fields["Item3"] = "k"
	got, err := host.Invoke(method, newInstance(t, def), arg)
	must(t, err)
	result, ok := got.(host.Struct)
	if !ok {
		t.Fatalf("M() = %T, want a struct", got)
	}
	if result.Fields["Item1"] != uint8(0) || result.Fields["Item2"] != int32(0) {
		t.Errorf("M() = %v, want a zero pair", result.Fields)
	}
}

func TestStubRejectsMissingInputs(t *testing.T) {
	m := newModule(t)
	base, method := singleMethod(t, m, "B", metadata.Int32, metadata.Int32, metadata.ParamNone)
	tb := createTypeBuilder(t, base)

	if _, err := ImplementEmptyStubMethod(nil, method, false); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nil type builder: %v", err)
	}
	if _, err := ImplementEmptyStubMethod(tb, nil, false); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nil method: %v", err)
	}
	if _, err := ImplementStubProperty(nil, &metadata.Property{Name: "P", Type: metadata.Int32}, false, false); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nil type builder: %v", err)
	}
	if _, err := ImplementStubProperty(tb, nil, false, false); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nil property: %v", err)
	}
	if _, err := CreateAttributeBuilder(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nil attribute: %v", err)
	}
}

func TestStubNonVirtualMethodFailsToBind(t *testing.T) {
	m := newModule(t)
	tb := defineType(t, m, "Plain", metadata.TypePublic, nil)
	mb, err := tb.DefineMethodWithSignature("M", publicMethod, metadata.Int32)
	must(t, err)
	b := bodyOf(t, mb)
	il.LdInt32(b, 1)
	b.Emit(il.Ret)
	plain := createType(t, tb)

	if _, err := ImplementEmptyStubMethod(createTypeBuilder(t, plain), plain.Method("M"), false); !errors.Is(err, ErrSignatureBinding) {
		t.Errorf("ImplementEmptyStubMethod: %v, want ErrSignatureBinding", err)
	}
}

func TestStubAttributes(t *testing.T) {
	tests := []struct {
		source      metadata.MethodAttributes
		keepVirtual bool
		want        metadata.MethodAttributes
	}{
		{abstractMethod, false, publicMethod | metadata.MethodVirtual | metadata.MethodFinal},
		{abstractMethod, true, publicMethod | metadata.MethodVirtual},
		{newSlotMethod | accessor, false, publicMethod | accessor | metadata.MethodVirtual | metadata.MethodFinal},
		{publicMethod, false, publicMethod},
		{publicMethod, true, publicMethod | metadata.MethodVirtual},
	}
	for _, tt := range tests {
		if got := stubAttributes(tt.source, tt.keepVirtual); got != tt.want {
			t.Errorf("stubAttributes(%s, %v) = %s, want %s", tt.source, tt.keepVirtual, got, tt.want)
		}
	}
}

func TestStubSealsReplacedSlot(t *testing.T) {
	m := newModule(t)
	base, method := singleMethod(t, m, "Sealed", metadata.Int32, metadata.Int32, metadata.ParamNone)

	for _, tt := range []struct {
		keepVirtual bool
		wantErr     error
	}{
		{false, host.ErrFinalSlot},
		{true, nil},
	} {
		tb := createTypeBuilder(t, base)
		_, err := ImplementEmptyStubMethod(tb, method, tt.keepVirtual)
		must(t, err)
		stubbed := createType(t, tb)

		derived := createTypeBuilder(t, stubbed)
		mb, err := derived.DefineMethodWithSignature("M", publicMethod|metadata.MethodVirtual, metadata.Int32, metadata.Int32)
		must(t, err)
		b := bodyOf(t, mb)
		il.LdInt32(b, 5)
		b.Emit(il.Ret)
		_, err = derived.CreateType()
		if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil) != (err == nil) {
			t.Errorf("keepVirtual=%v: overriding the stub = %v, want %v", tt.keepVirtual, err, tt.wantErr)
		}
	}
}
