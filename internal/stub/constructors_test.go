package stub

import (
	"errors"
	"testing"

	"stubforge/internal/host"
	"stubforge/internal/il"
	"stubforge/internal/metadata"
)

// custAttr defines an attribute type taking a string, with a settable Note
// property and a public Level field.
func custAttr(t *testing.T, m *host.Module) *metadata.TypeDef {
	t.Helper()
	tb := defineType(t, m, "CustAttr", metadata.TypePublic, nil)
	ctor, err := tb.DefineConstructor(publicMethod, metadata.String)
	must(t, err)
	bodyOf(t, ctor).Emit(il.Ret)
	_, err = tb.DefineField("Level", metadata.Int32, publicInstance)
	must(t, err)
	note, err := tb.DefineField("note", metadata.String, privateInstance)
	must(t, err)
	set, err := tb.DefineMethodWithSignature("set_Note", publicMethod|accessor, metadata.Void, metadata.String)
	must(t, err)
	b := bodyOf(t, set)
	il.LdArg(b, 0)
	il.LdArg(b, 1)
	b.EmitToken(il.Stfld, note)
	b.Emit(il.Ret)
	pb, err := tb.DefineProperty("Note", metadata.PropertyNone, metadata.String)
	must(t, err)
	must(t, pb.SetSetMethod(set))
	return createType(t, tb)
}

func apply(t *testing.T, attr *metadata.TypeDef, text string) *host.CustomAttributeBuilder {
	t.Helper()
	cab, err := host.NewCustomAttributeBuilder(attr.Constructor(1), []any{text}, nil, nil, nil, nil)
	must(t, err)
	return cab
}

// storeMessage emits "this.Message = x * 10 + code" for argument 1.
func storeMessage(b *il.Body, message host.FieldBuilder, code int32) {
	il.LdArg(b, 0)
	il.LdArg(b, 1)
	il.LdInt32(b, 10)
	b.Emit(il.Mul)
	il.LdInt32(b, code)
	b.Emit(il.Add)
	b.EmitToken(il.Stfld, message)
	b.Emit(il.Ret)
}

func baseOne(t *testing.T, m *host.Module) *metadata.TypeDef {
	t.Helper()
	tb := defineType(t, m, "BaseOne", metadata.TypePublic, nil)
	message, err := tb.DefineField("Message", metadata.Int32, publicInstance)
	must(t, err)
	for _, c := range []struct {
		attrs  metadata.MethodAttributes
		params []*metadata.Type
		code   int32
	}{
		{metadata.MethodPrivate | metadata.MethodHideBySig, []*metadata.Type{metadata.Int32}, 1},
		{familyMethod, []*metadata.Type{metadata.Int32, metadata.Boolean}, 2},
		{publicMethod, []*metadata.Type{metadata.Int32, metadata.String}, 3},
	} {
		ctor, err := tb.DefineConstructor(c.attrs, c.params...)
		must(t, err)
		storeMessage(bodyOf(t, ctor), message, c.code)
	}
	return createType(t, tb)
}

func TestPassThroughConstructors(t *testing.T) {
	m := newModule(t)
	base := baseOne(t, m)

	tb := createTypeBuilder(t, base)
	ctors, err := DefinePassThroughConstructors(tb, nil, nil, nil)
	must(t, err)
	if len(ctors) != 2 {
		t.Fatalf("got %d constructors, want the protected and the public one", len(ctors))
	}
	def := createType(t, tb)

	tests := []struct {
		args []any
		want int32
	}{
		{[]any{int32(1), true}, 12},
		{[]any{int32(1), "message"}, 13},
		{[]any{int32(4), false}, 42},
	}
	for _, tt := range tests {
		o := newInstance(t, def, tt.args...)
		got, err := o.Field("Message")
		must(t, err)
		if got != tt.want {
			t.Errorf("new(%v).Message = %v, want %d", tt.args, got, tt.want)
		}
	}
	if _, err := host.New(def, int32(1)); !errors.Is(err, host.ErrMissingMethod) {
		t.Errorf("the private constructor was forwarded: %v", err)
	}
	if got := def.Constructor(2); got == nil || got.Attributes&metadata.MethodMemberAccessMask != metadata.MethodFamily {
		t.Errorf("protected constructor = %v, want family access", got)
	}
}

func TestPassThroughConstructorsAttributes(t *testing.T) {
	m := newModule(t)
	base := baseOne(t, m)

	tb := createTypeBuilder(t, base)
	_, err := DefinePassThroughConstructors(tb, func(*metadata.Method) metadata.MethodAttributes {
		return publicMethod | metadata.MethodVirtual
	}, nil, nil)
	must(t, err)
	def := createType(t, tb)
	for _, c := range def.Constructors {
		if !c.IsPublic() || c.IsVirtual() {
			t.Errorf("constructor %s has attributes %s", c, c.Attributes)
		}
	}
}

func TestPassThroughArrayArgument(t *testing.T) {
	m := newModule(t)
	tb := defineType(t, m, "BaseTwo", abstractClass, nil)
	count, err := tb.DefineField("Count", metadata.Int32, publicInstance)
	must(t, err)
	ctor, err := tb.DefineConstructor(familyMethod, metadata.Object.MakeArrayType())
	must(t, err)
	b := bodyOf(t, ctor)
	il.LdArg(b, 0)
	il.LdArg(b, 1)
	b.Emit(il.Ldlen)
	b.EmitToken(il.Stfld, count)
	b.Emit(il.Ret)
	base := createType(t, tb)

	stb := createTypeBuilder(t, base)
	_, err = DefinePassThroughConstructors(stb, nil, nil, nil)
	must(t, err)
	def := createType(t, stb)

	o := newInstance(t, def, &host.Array{Elem: metadata.Object, Items: []any{"a", nil, int32(3), "d"}})
	if got, _ := o.Field("Count"); got != int32(4) {
		t.Errorf("Count = %v, want 4", got)
	}
}

func TestPassThroughAttributeFilters(t *testing.T) {
	m := newModule(t)
	attr := custAttr(t, m)

	tb := defineType(t, m, "BaseThree", metadata.TypePublic, nil)
	ctor, err := tb.DefineConstructor(publicMethod, metadata.Int32, metadata.String)
	must(t, err)
	must(t, ctor.SetCustomAttribute(apply(t, attr, "ctor")))
	for i, name := range []string{"number", "text"} {
		pb, err := ctor.DefineParameter(i+1, metadata.ParamNone, name)
		must(t, err)
		must(t, pb.SetCustomAttribute(apply(t, attr, name)))
	}
	bodyOf(t, ctor).Emit(il.Ret)
	base := createType(t, tb)
	baseCtor := base.Constructor(2)

	tests := []struct {
		name        string
		ctorFilter  ConstructorAttributeFilter
		paramFilter ParameterAttributeFilter
		wantCtor    int
		wantParams  []int
	}{
		{name: "everything", wantCtor: 1, wantParams: []int{1, 1}},
		{
			name:        "nothing",
			ctorFilter:  func(*metadata.Method, *metadata.AttributeApplication) bool { return false },
			paramFilter: func(*metadata.Parameter, *metadata.AttributeApplication) bool { return false },
			wantCtor:    0,
			wantParams:  []int{0, 0},
		},
		{
			name: "second parameter",
			paramFilter: func(p *metadata.Parameter, _ *metadata.AttributeApplication) bool {
				return p.Name == "text"
			},
			wantCtor:   1,
			wantParams: []int{0, 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stb := createTypeBuilder(t, base)
			_, err := DefinePassThroughConstructors(stb, nil, tt.ctorFilter, tt.paramFilter)
			must(t, err)
			c := createType(t, stb).Constructor(2)

			apps := c.CustomAttributes()
			if len(apps) != tt.wantCtor {
				t.Fatalf("constructor has %d attributes, want %d", len(apps), tt.wantCtor)
			}
			if len(apps) == 1 && !apps[0].Equal(baseCtor.CustomAttributes()[0]) {
				t.Errorf("replicated %s, want %s", apps[0], baseCtor.CustomAttributes()[0])
			}
			for i, p := range c.Parameters {
				if p.Name != baseCtor.Parameters[i].Name {
					t.Errorf("parameter %d named %q, want %q", i, p.Name, baseCtor.Parameters[i].Name)
				}
				if n := len(p.CustomAttributes()); n != tt.wantParams[i] {
					t.Errorf("parameter %s has %d attributes, want %d", p.Name, n, tt.wantParams[i])
				}
			}
		})
	}
}

func TestCreateAttributeBuilder(t *testing.T) {
	m := newModule(t)
	attr := custAttr(t, m)

	source := &metadata.Attributed{}
	source.AddCustomAttribute(&metadata.AttributeApplication{
		Constructor:          attr.Constructor(1),
		ConstructorArguments: []any{"x"},
		NamedArguments: []metadata.NamedArgument{
			{Member: attr.Property("Note"), Value: "n"},
			{Member: attr.Field("Level"), Value: int32(2)},
		},
	})

	app1, app2 := source.CustomAttributes()[0], source.CustomAttributes()[0]
	if app1 == app2 || !app1.Equal(app2) {
		t.Fatal("every read must return an equal, independent application")
	}

	cab, err := CreateAttributeBuilder(app1)
	must(t, err)
	if props := cab.NamedProperties(); len(props) != 1 || props[0].Name != "Note" {
		t.Errorf("named properties = %v", props)
	}
	if fields := cab.NamedFields(); len(fields) != 1 || fields[0].Name != "Level" {
		t.Errorf("named fields = %v", fields)
	}
	if got := cab.Application(); !got.Equal(app1) {
		t.Errorf("Application() = %s, want %s", got, app1)
	}

	invalid := []*metadata.AttributeApplication{
		{Constructor: attr.Constructor(1)},
		{Constructor: attr.Constructor(1), ConstructorArguments: []any{"x"}, NamedArguments: []metadata.NamedArgument{
			{Member: attr.Field("note"), Value: "hidden"},
		}},
		{Constructor: attr.Constructor(1), ConstructorArguments: []any{"x"}, NamedArguments: []metadata.NamedArgument{
			{Value: "untargeted"},
		}},
		{Constructor: attr.Constructor(1), ConstructorArguments: []any{"x"}, NamedArguments: []metadata.NamedArgument{
			{Member: attr.Constructor(1), Value: "method"},
		}},
		{Constructor: attr.Constructor(1), ConstructorArguments: []any{"x"}, NamedArguments: []metadata.NamedArgument{
			{Member: (*metadata.Field)(nil), Value: int32(1)},
		}},
	}
	for i, app := range invalid {
		if _, err := CreateAttributeBuilder(app); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("invalid application %d: CreateAttributeBuilder = %v, want ErrInvalidArgument", i, err)
		}
	}
}
