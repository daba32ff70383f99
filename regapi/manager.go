package regapi

import (
	"github.com/crossflow/crossflow/internal/errs"
	"github.com/crossflow/crossflow/registry"
	"github.com/crossflow/crossflow/runtimeapi"
	"github.com/crossflow/crossflow/typeinfo"
)

// Option configures a Manager, mirroring the functional-options pattern used
// throughout this codebase's ambient stack.
type Option func(*Manager)

// WithDefaultCommonOps overrides the common-operation defaults every new
// message type starts from (spec.md §4.B: serialize/deserialize/clone all
// enabled by default).
func WithDefaultCommonOps(ops CommonOps) Option {
	return func(m *Manager) { m.defaults = ops }
}

// NodeRegistration is the declaration a caller provides for one node kind:
// its name, the builder function, and its request/response/stream types.
type NodeRegistration struct {
	// Name is the node's registered identifier, referenced from a diagram's
	// `node` operation's `builder` field.
	Name string
	// Builder constructs a DynNode from configuration at build time.
	Builder runtimeapi.NodeBuilderFunc
	// Request is the live Go type the builder consumes.
	Request typeinfo.TypeInfo
	// Response is the live Go type the builder produces.
	Response typeinfo.TypeInfo
	// Streams names each stream output's key and live Go type.
	Streams map[string]typeinfo.TypeInfo
}

// SectionRegistration is the analogous declaration for a section builder.
type SectionRegistration struct {
	Name    string
	Builder runtimeapi.SectionBuilderFunc
	Inputs  map[string]typeinfo.TypeInfo
	Buffers map[string]typeinfo.TypeInfo
	Outputs map[string]typeinfo.TypeInfo
}

// Manager is the top-level registration surface an application builds
// against before compiling any diagram. It owns a registry.Registry plus the
// named node/section builder tables the `node`/`section` diagram operations
// resolve against (spec.md §4.G).
type Manager struct {
	reg      *registry.Registry
	defaults CommonOps

	nodes    map[string]NodeRegistration
	sections map[string]SectionRegistration
}

// NewManager constructs an empty Manager. The registry starts with no
// builtin messages registered; call messages.RegisterBuiltins(mgr) to
// install the pre-populated set spec.md §4.B requires (JSON, primitive
// scalars, TransformError). That call lives in the separate messages
// package, not here, so regapi never depends on the builtin message set.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		reg:      registry.New(),
		defaults: DefaultCommonOps(),
		nodes:    make(map[string]NodeRegistration),
		sections: make(map[string]SectionRegistration),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Registry returns the underlying type registry, for handing to the
// inference engine and builder at compile time.
func (m *Manager) Registry() *registry.Registry { return m.reg }

// Message starts (or resumes) a fluent declaration for Go type T, seeded
// with the manager's default common-operation settings. Calling Message
// again for the same T returns a builder over the same index.
func Message[T any](m *Manager, name string) *MessageBuilder {
	info := typeinfo.Of[T](name)
	idx := m.reg.GetIndexOrInsertPlaceholder(info)
	return &MessageBuilder{mgr: m, idx: idx, info: info, ops: m.defaults}
}

// RegisterNode declares a node kind: its builder, and its request/response/
// stream types, each inserted into the type registry as a placeholder index
// if not already present. No serialize, deserialize or clone operation is
// installed for these types; the manager's common-operation defaults are
// not applied here.
func (m *Manager) RegisterNode(reg NodeRegistration) error {
	if reg.Name == "" {
		return errs.New(errs.ConfigError, "node registration requires a non-empty name")
	}
	if _, exists := m.nodes[reg.Name]; exists {
		return errs.Errorf(errs.ConfigError, "node %q already registered", reg.Name)
	}
	m.reg.GetIndexOrInsertPlaceholder(reg.Request)
	m.reg.GetIndexOrInsertPlaceholder(reg.Response)
	for _, t := range reg.Streams {
		m.reg.GetIndexOrInsertPlaceholder(t)
	}
	m.nodes[reg.Name] = reg
	return nil
}

// RegisterSection declares a section kind analogously to RegisterNode.
func (m *Manager) RegisterSection(reg SectionRegistration) error {
	if reg.Name == "" {
		return errs.New(errs.ConfigError, "section registration requires a non-empty name")
	}
	if _, exists := m.sections[reg.Name]; exists {
		return errs.Errorf(errs.ConfigError, "section %q already registered", reg.Name)
	}
	for _, t := range reg.Inputs {
		m.reg.GetIndexOrInsertPlaceholder(t)
	}
	for _, t := range reg.Buffers {
		m.reg.GetIndexOrInsertPlaceholder(t)
	}
	for _, t := range reg.Outputs {
		m.reg.GetIndexOrInsertPlaceholder(t)
	}
	m.sections[reg.Name] = reg
	return nil
}

// NodeBuilder looks up a previously registered node kind by name.
func (m *Manager) NodeBuilder(name string) (NodeRegistration, error) {
	reg, ok := m.nodes[name]
	if !ok {
		return NodeRegistration{}, errs.Errorf(errs.UnknownOperation, "no node builder registered for %q", name)
	}
	return reg, nil
}

// SectionBuilder looks up a previously registered section kind by name.
func (m *Manager) SectionBuilder(name string) (SectionRegistration, error) {
	reg, ok := m.sections[name]
	if !ok {
		return SectionRegistration{}, errs.Errorf(errs.UnknownOperation, "no section builder registered for %q", name)
	}
	return reg, nil
}
