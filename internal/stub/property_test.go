package stub

import (
	"strconv"
	"strings"
	"testing"

	"stubforge/internal/host"
	"stubforge/internal/il"
	"stubforge/internal/metadata"
)

// defineProperty declares "int name { get; set; }" on tb. With a nil getter
// body the accessors are abstract.
func defineProperty(t *testing.T, tb *host.TypeBuilder, name string, attrs metadata.MethodAttributes, setter bool, getter func(b *il.Body)) {
	t.Helper()
	get, err := tb.DefineMethodWithSignature("get_"+name, attrs|accessor, metadata.Int32)
	must(t, err)
	if getter != nil {
		getter(bodyOf(t, get))
	}
	pb, err := tb.DefineProperty(name, metadata.PropertyNone, metadata.Int32)
	must(t, err)
	must(t, pb.SetGetMethod(get))
	if !setter {
		return
	}
	set, err := tb.DefineMethodWithSignature("set_"+name, attrs|accessor, metadata.Void, metadata.Int32)
	must(t, err)
	if getter != nil {
		bodyOf(t, set).Emit(il.Ret)
	}
	must(t, pb.SetSetMethod(set))
}

func constant(v int32) func(b *il.Body) {
	return func(b *il.Body) {
		il.LdInt32(b, v)
		b.Emit(il.Ret)
	}
}

func getProperty(t *testing.T, o *host.Object, p *metadata.Property) any {
	t.Helper()
	v, err := host.GetProperty(o, p)
	if err != nil {
		t.Fatalf("get %s: %v", p.Name, err)
	}
	return v
}

func setProperty(t *testing.T, o *host.Object, p *metadata.Property, v any) {
	t.Helper()
	if err := host.SetProperty(o, p, v); err != nil {
		t.Fatalf("set %s: %v", p.Name, err)
	}
}

func TestStubAbstractProperty(t *testing.T) {
	m := newModule(t)
	tb := defineType(t, m, "PA", abstractClass, nil)
	defineProperty(t, tb, "Value", abstractMethod, true, nil)
	defineProperty(t, tb, "Count", abstractMethod, false, nil)
	pa := createType(t, tb)

	stb := createTypeBuilder(t, pa)
	for _, p := range pa.Properties {
		if _, err := ImplementStubProperty(stb, p, false, false); err != nil {
			t.Fatalf("ImplementStubProperty(%s): %v", p.Name, err)
		}
	}
	def := createType(t, stb)
	o := newInstance(t, def)

	value := pa.Property("Value")
	if got := getProperty(t, o, value); got != int32(0) {
		t.Errorf("Value = %v before assignment, want 0", got)
	}
	setProperty(t, o, value, int32(42))
	if got := getProperty(t, o, value); got != int32(42) {
		t.Errorf("Value = %v, want 42", got)
	}
	if got := getProperty(t, o, pa.Property("Count")); got != int32(0) {
		t.Errorf("Count = %v, want 0", got)
	}
	if def.Property("Count").Setter != nil {
		t.Error("a setter was implemented for a get-only property")
	}

	for _, f := range def.Fields {
		if !strings.HasPrefix(f.Name, "_") || f.Attributes != privateInstance {
			t.Errorf("backing field %s is %v, want a private field named after its property", f.Name, f.Attributes)
		}
	}
	if err := VerifyStubs(def); err != nil {
		t.Errorf("VerifyStubs: %v", err)
	}
}

func TestStubNonVirtualProperty(t *testing.T) {
	m := newModule(t)
	tb := defineType(t, m, "CNonVirtualProperty", metadata.TypePublic, nil)
	defineProperty(t, tb, "Stupid", publicMethod, true, constant(1308624))
	base := createType(t, tb)

	stb := createTypeBuilder(t, base)
	_, err := ImplementStubProperty(stb, base.Property("Stupid"), false, false)
	must(t, err)
	def := createType(t, stb)
	o := newInstance(t, def)

	if got := getProperty(t, o, base.Property("Stupid")); got != int32(1308624) {
		t.Errorf("base Stupid = %v, want 1308624", got)
	}
	setProperty(t, o, def.Property("Stupid"), int32(8))
	if got := getProperty(t, o, def.Property("Stupid")); got != int32(8) {
		t.Errorf("Stupid = %v, want 8", got)
	}
	if got := getProperty(t, o, base.Property("Stupid")); got != int32(1308624) {
		t.Errorf("base Stupid = %v after assignment, want 1308624", got)
	}
}

func TestStubVirtualProperty(t *testing.T) {
	m := newModule(t)
	tb := defineType(t, m, "CVirtualProperty", metadata.TypePublic, nil)
	defineProperty(t, tb, "Value", newSlotMethod, true, constant(5))
	base := createType(t, tb)

	stb := createTypeBuilder(t, base)
	_, err := ImplementStubProperty(stb, base.Property("Value"), true, false)
	must(t, err)
	def := createType(t, stb)
	o := newInstance(t, def)

	value := base.Property("Value")
	if got := getProperty(t, o, value); got != int32(0) {
		t.Errorf("Value = %v, want 0 from the replacement", got)
	}
	setProperty(t, o, value, int32(2))
	if got := getProperty(t, o, value); got != int32(2) {
		t.Errorf("Value = %v, want 2", got)
	}
	if getter := def.Property("Value").Getter; !getter.IsVirtual() || getter.IsFinal() {
		t.Errorf("getter attributes = %s, want overridable", getter.Attributes)
	}
}

func TestStubForcedSetter(t *testing.T) {
	m := newModule(t)
	tb := defineType(t, m, "IPocoKind", interfaceType, nil)
	defineProperty(t, tb, "X", abstractMethod, false, nil)
	defineProperty(t, tb, "Y", abstractMethod, true, nil)
	iface := createType(t, tb)

	stb := createTypeBuilder(t, nil)
	must(t, stb.AddInterfaceImplementation(iface))
	for _, p := range iface.Properties {
		if _, err := ImplementStubProperty(stb, p, false, true); err != nil {
			t.Fatalf("ImplementStubProperty(%s): %v", p.Name, err)
		}
	}
	def := createType(t, stb)
	o := newInstance(t, def)

	setProperty(t, o, iface.Property("Y"), int32(8))
	if got := getProperty(t, o, iface.Property("Y")); got != int32(8) {
		t.Errorf("Y = %v, want 8", got)
	}
	if got := getProperty(t, o, iface.Property("X")); got != int32(0) {
		t.Errorf("X = %v, want 0", got)
	}

	x := def.Property("X")
	if x.Setter == nil || x.Setter.Name != "set_X" {
		t.Fatalf("forced setter = %v, want set_X", x.Setter)
	}
	setProperty(t, o, x, int32(19))
	if got := getProperty(t, o, iface.Property("X")); got != int32(19) {
		t.Errorf("X = %v after the forced setter, want 19", got)
	}
	if err := host.SetProperty(o, iface.Property("X"), int32(1)); err == nil {
		t.Error("the interface property gained a setter")
	}
}

func TestBackingFieldName(t *testing.T) {
	tests := []struct {
		property string
		id       int64
		want     string
	}{
		{"Value", 12, "_Value$12"},
		{"A1", 2, "_A1$2"},
		{"A", 12, "_A$12"},
	}
	for _, tt := range tests {
		if got := BackingFieldName(tt.property, tt.id); got != tt.want {
			t.Errorf("BackingFieldName(%q, %d) = %q, want %q", tt.property, tt.id, got, tt.want)
		}
	}
	m := newModule(t)
	tb := defineType(t, m, "Twice", abstractClass, nil)
	defineProperty(t, tb, "P", abstractMethod, true, nil)
	base := createType(t, tb)

	stb := createTypeBuilder(t, base)
	_, err := ImplementStubProperty(stb, base.Property("P"), false, false)
	must(t, err)
	_, err = ImplementStubProperty(stb, base.Property("P"), false, false)
	if err != nil {
		t.Fatalf("second property sharing a name: %v", err)
	}
}

// A1 stubbed with id k and A stubbed with id "1"+k would share a name if the
// id were appended directly.
func TestBackingFieldNamesDoNotCollide(t *testing.T) {
	m := newModule(t)
	tb := defineType(t, m, "Pair", abstractClass, nil)
	defineProperty(t, tb, "A1", abstractMethod, true, nil)
	defineProperty(t, tb, "A", abstractMethod, true, nil)
	base := createType(t, tb)

	stb := defineType(t, m, "PairStub", metadata.TypePublic, base)
	k := m.NextID() + 1
	_, err := ImplementStubProperty(stb, base.Property("A1"), false, false)
	must(t, err)
	target, err := strconv.ParseInt("1"+strconv.FormatInt(k, 10), 10, 64)
	must(t, err)
	for m.NextID() < target-1 {
	}
	if _, err := ImplementStubProperty(stb, base.Property("A"), false, false); err != nil {
		t.Fatalf("ImplementStubProperty(A) after A1: %v", err)
	}
	def := createType(t, stb)

	names := make(map[string]bool)
	for _, f := range def.Fields {
		if names[f.Name] {
			t.Errorf("backing field %s declared twice", f.Name)
		}
		names[f.Name] = true
	}
	if len(names) != 2 {
		t.Errorf("backing fields = %v, want two", names)
	}
	o := newInstance(t, def)
	setProperty(t, o, base.Property("A1"), int32(1))
	setProperty(t, o, base.Property("A"), int32(2))
	if got := getProperty(t, o, base.Property("A1")); got != int32(1) {
		t.Errorf("A1 = %v, want 1", got)
	}
}
