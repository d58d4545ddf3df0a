// The package used for defining, finalizing and running types synthesized at run time.
package host

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"stubforge/internal"
	"stubforge/internal/metadata"

	"github.com/hashicorp/go-version"
	"go.uber.org/zap"
)

const (
	DefaultModuleName    = "TypeImplementorModule"
	DefaultModuleVersion = "1.0.0.0"
)

// Module is the container of every type defined at run time. Defining types
// and allocating identifiers is safe for concurrent use.
type Module struct {
	name    string
	version *version.Version
	nextID  atomic.Int64

	mu    sync.Mutex
	names map[string]bool
	types []*metadata.TypeDef
}

var (
	defaultModule     *Module
	defaultModuleOnce sync.Once
)

// DefaultModule returns the process-wide module, creating it on first use.
func DefaultModule() *Module {
	defaultModuleOnce.Do(func() {
		m, err := NewModule(DefaultModuleName, DefaultModuleVersion)
		internal.PanicOnError(err)
		defaultModule = m
	})
	return defaultModule
}

func NewModule(name, moduleVersion string) (*Module, error) {
	if name == "" {
		return nil, fmt.Errorf("module name: %w", ErrInvalidArgument)
	}
	v, err := version.NewVersion(moduleVersion)
	if err != nil {
		return nil, fmt.Errorf("module version %q: %w", moduleVersion, err)
	}
	return &Module{name: name, version: v, names: make(map[string]bool)}, nil
}

func (m *Module) Name() string              { return m.name }
func (m *Module) Version() *version.Version { return m.version }

func (m *Module) String() string {
	return fmt.Sprintf("%s, Version=%s", m.name, m.version.Original())
}

// NextID returns a new identifier, unique within m.
func (m *Module) NextID() int64 {
	return m.nextID.Add(1)
}

// DefineType starts the definition of a new type. base may be nil.
func (m *Module) DefineType(namespace, name string, attrs metadata.TypeAttributes, base *metadata.TypeDef) (*TypeBuilder, error) {
	if name == "" {
		return nil, fmt.Errorf("type name: %w", ErrInvalidArgument)
	}
	if base != nil && (base.IsInterface() || base.IsSealed()) {
		return nil, fmt.Errorf("%s cannot derive from %s: %w", name, base, ErrInvalidArgument)
	}
	def := metadata.NewTypeDef(namespace, name, attrs)
	def.BaseType = base

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.names[def.FullName()] {
		return nil, fmt.Errorf("%s: %w", def.FullName(), ErrDuplicateMember)
	}
	m.names[def.FullName()] = true
	return newTypeBuilder(m, def), nil
}

// DefineUniqueType defines a public class named after base (or "No_Base_Type_")
// followed by a fresh identifier.
func (m *Module) DefineUniqueType(base *metadata.TypeDef) (*TypeBuilder, error) {
	prefix := "No_Base_Type_"
	if base != nil {
		prefix = base.Name
	}
	return m.DefineType("", prefix+strconv.FormatInt(m.NextID(), 10), metadata.TypePublic|metadata.TypeClass, base)
}

// Types returns the finalized types of m in creation order.
func (m *Module) Types() []*metadata.TypeDef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*metadata.TypeDef(nil), m.types...)
}

func (m *Module) register(def *metadata.TypeDef) {
	m.mu.Lock()
	m.types = append(m.types, def)
	m.mu.Unlock()
	internal.Logger().Debug("type created", zap.String("module", m.name), zap.String("type", def.FullName()))
}
