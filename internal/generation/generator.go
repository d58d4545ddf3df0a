// The package used for rendering finalized stub types as Go source.
package generation

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"stubforge/internal"
	"stubforge/internal/metadata"

	"github.com/dave/jennifer/jen"
	"go.uber.org/zap"
)

// ErrNotFinalized is returned when a type is rendered before its dispatch
// table was laid out.
var ErrNotFinalized = errors.New("type has not been created")

type Generator struct {
	Types       map[string]*metadata.TypeDef
	PackageName string
	OutputPath  string
}

func NewGenerator(packageName string, outputPath string) Generator {
	return Generator{
		make(map[string]*metadata.TypeDef),
		packageName,
		outputPath,
	}
}

// RegisterType queues def for generation. Types are keyed by Go name, so a
// later registration of the same name replaces the former.
func (generator *Generator) RegisterType(def *metadata.TypeDef) {
	generator.Types[typeName(def)] = def
}

// Generate writes one file per registered type into the output path.
func (generator *Generator) Generate() error {
	err := os.MkdirAll(generator.OutputPath, os.ModePerm)
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}

	names := make([]string, 0, len(generator.Types))
	for name := range generator.Types {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		file, err := generator.file(generator.Types[name])
		if err != nil {
			return err
		}
		path := filepath.Join(generator.OutputPath, strings.ToLower(name)+".go")
		if err := file.Save(path); err != nil {
			return fmt.Errorf("could not save %s: %w", path, err)
		}
		internal.Logger().Info("projection written", zap.String("type", name), zap.String("path", path))
	}
	return nil
}

// Render writes the Go projection of def to w.
func (generator *Generator) Render(def *metadata.TypeDef, w io.Writer) error {
	file, err := generator.file(def)
	if err != nil {
		return err
	}
	return file.Render(w)
}

func (generator *Generator) file(def *metadata.TypeDef) (*jen.File, error) {
	if def == nil || def.VTable == nil {
		return nil, fmt.Errorf("%v: %w", def, ErrNotFinalized)
	}
	file := jen.NewFile(generator.PackageName)
	file.HeaderComment("Code generated by stubgen. DO NOT EDIT.")
	generator.generateStruct(def, file)
	if err := generator.generateMethods(def, file); err != nil {
		return nil, err
	}
	return file, nil
}

func (generator *Generator) generateStruct(def *metadata.TypeDef, file *jen.File) {
	name := typeName(def)
	var implemented []string
	for _, i := range def.AllInterfaces() {
		implemented = append(implemented, i.FullName())
	}
	if len(implemented) > 0 {
		file.Commentf("%s implements %s.", name, strings.Join(implemented, ", "))
	}

	file.Type().Id(name).StructFunc(func(g *jen.Group) {
		for _, field := range def.Fields {
			if field.IsStatic() {
				continue
			}
			g.Id(identifier(field.Name)).Add(goType(field.Type))
		}
	}).Line()

	file.Func().Id("New" + name).Params().Op("*").Id(name).Block(
		jen.Return(jen.Op("&").Id(name).Values()),
	).Line()
}

func (generator *Generator) generateMethods(def *metadata.TypeDef, file *jen.File) error {
	seen := make(map[string]int)
	for _, method := range def.Methods {
		if method.IsStatic() || method.IsAbstract() || method.ContainsGenericParameters() {
			// Go methods cannot declare type parameters.
			internal.Logger().Debug("method not projected", zap.String("member", method.String()))
			continue
		}
		name := methodName(method)
		if n := seen[name]; n > 0 {
			name = fmt.Sprintf("%s%d", name, n)
		}
		seen[methodName(method)]++

		body, err := project(method)
		if err != nil {
			return fmt.Errorf("%s: %w", def, err)
		}

		statement := file.Func().
			Params(jen.Id(receiver).Op("*").Id(typeName(def))).
			Id(name).
			ParamsFunc(func(g *jen.Group) {
				for i, p := range method.Parameters {
					g.Id(parameterName(p, i)).Add(goType(p.Type))
				}
			})
		if ret := method.Returns(); !ret.IsVoid() {
			statement.Add(goType(ret))
		}
		statement.Block(body...).Line()
	}
	return nil
}
