// Package registry implements the type registry (spec.md §4.A): a dense,
// indexable table of message types, their optional JSON schemas, their
// per-type operation vtables, and the reverse lookups the inference engine
// needs (e.g. (T,E) -> Result<T,E>).
//
// Grounded on the teacher's append-only, index-keyed style (the arena
// pattern spec.md §9 calls out), mirrored here as a slice of *typeEntry
// guarded by a RWMutex, the same shape goadesign-goa-ai's
// runtime/registry.Manager uses for its registries map.
package registry

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/crossflow/crossflow/internal/errs"
	"github.com/crossflow/crossflow/typeinfo"
)

// Index is the stable, dense integer handle assigned to a registered type.
// Indices are assigned in insertion order and never reused (spec.md §4.A
// "Index stability").
type Index int

// Invalid is the sentinel (-1) used where no index has been assigned; the
// zero Index is the first registered type.
const Invalid Index = -1

type typeEntry struct {
	info        typeinfo.TypeInfo
	schema      *jsonschema.Schema
	schemaBytes []byte
	ops         *OperationsTable
	placeholder bool
}

// Registry is the process-lifetime table of registered message types. It is
// safe for concurrent use; registration normally happens once at startup but
// placeholders may be inserted lazily during diagram compilation.
type Registry struct {
	mu       sync.RWMutex
	entries  []*typeEntry
	byGoType map[reflect.Type]Index

	// Reverse lookups used by the inference engine (spec.md §3 "Reverse
	// lookup").
	resultIndex  map[[2]Index]Index
	unzipIndex   map[string]Index   // encoded element-index tuple -> tuple index
	splitSources map[Index][]Index // element type -> [types whose split yields it]
	jsonIndex    Index
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		byGoType:     make(map[reflect.Type]Index),
		resultIndex:  make(map[[2]Index]Index),
		unzipIndex:   make(map[string]Index),
		splitSources: make(map[Index][]Index),
		jsonIndex:    Invalid,
	}
}

// GetOrInsert returns the index for Go type T, registering a placeholder
// entry (type info only, no operations) the first time T is seen. name is
// only used the first time T is registered.
func GetOrInsert[T any](r *Registry, name string) Index {
	info := typeinfo.Of[T](name)
	return r.GetIndexOrInsertPlaceholder(info)
}

// GetIndexOrInsertPlaceholder returns the index for info, inserting a
// placeholder entry if this is the first time info's Go type has been seen.
// Placeholders exist so types can be referenced (e.g. from a reverse lookup)
// before their full operation set is registered (spec.md §3).
func (r *Registry) GetIndexOrInsertPlaceholder(info typeinfo.TypeInfo) Index {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.byGoType[info.GoType]; ok {
		return idx
	}
	idx := Index(len(r.entries))
	r.entries = append(r.entries, &typeEntry{info: info, placeholder: true})
	r.byGoType[info.GoType] = idx
	return idx
}

// GetIndex returns the index already assigned to info, if any.
func (r *Registry) GetIndex(info typeinfo.TypeInfo) (Index, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byGoType[info.GoType]
	return idx, ok
}

// GetByIndex returns the TypeInfo and operations table registered at idx.
func (r *Registry) GetByIndex(idx Index) (typeinfo.TypeInfo, *OperationsTable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx < 0 || int(idx) >= len(r.entries) {
		return typeinfo.TypeInfo{}, nil, errs.Errorf(errs.UnknownMessageTypeIndex, "no type registered at index %d", idx)
	}
	e := r.entries[idx]
	return e.info, e.ops, nil
}

// GetDyn returns the index for a type identified dynamically by TypeInfo,
// without inserting it. Used by the builder when it only has a TypeInfo
// captured at runtime (e.g. from a message produced by a conversion).
func (r *Registry) GetDyn(info typeinfo.TypeInfo) (Index, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byGoType[info.GoType]
	if !ok {
		return Invalid, errs.Errorf(errs.UnknownMessageTypeIndex, "type %q is not registered", info.Name)
	}
	return idx, nil
}

// Ops returns the operations table for idx, or nil if the type is still a
// placeholder.
func (r *Registry) Ops(idx Index) (*OperationsTable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx < 0 || int(idx) >= len(r.entries) {
		return nil, errs.Errorf(errs.UnknownMessageTypeIndex, "no type registered at index %d", idx)
	}
	return r.entries[idx].ops, nil
}

// Info returns the TypeInfo for idx.
func (r *Registry) Info(idx Index) (typeinfo.TypeInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx < 0 || int(idx) >= len(r.entries) {
		return typeinfo.TypeInfo{}, errs.Errorf(errs.UnknownMessageTypeIndex, "no type registered at index %d", idx)
	}
	return r.entries[idx].info, nil
}

// IsPlaceholder reports whether idx has been inserted but has no operations
// registered yet.
func (r *Registry) IsPlaceholder(idx Index) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx < 0 || int(idx) >= len(r.entries) {
		return true
	}
	return r.entries[idx].placeholder
}

// mutate centralizes the read-modify-write of an entry's operations table,
// lazily allocating it and clearing the placeholder flag.
func (r *Registry) mutate(idx Index, fn func(*OperationsTable)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[idx]
	if e.ops == nil {
		e.ops = &OperationsTable{
			IntoImpls:    map[Index]ConversionCtor{},
			FromImpls:    map[Index]ConversionCtor{},
			TryIntoImpls: map[Index]TryConversionCtor{},
			TryFromImpls: map[Index]TryConversionCtor{},
		}
	}
	e.placeholder = false
	fn(e.ops)
}

// SetSchema compiles and attaches a JSON schema document to idx's entry
// (spec.md §3 "optional JSON schema"). schemaJSON is the raw JSON Schema
// document; compilation uses santhosh-tekuri/jsonschema/v6, the same
// library goadesign-goa-ai uses to validate tool specs.
func (r *Registry) SetSchema(idx Index, schemaJSON []byte) error {
	name, err := r.Info(idx)
	if err != nil {
		return err
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return errs.NewWithCause(errs.ConfigError, "failed to unmarshal schema", err)
	}
	c := jsonschema.NewCompiler()
	resource := fmt.Sprintf("mem://crossflow/%s.json", name.Name)
	if err := c.AddResource(resource, schemaDoc); err != nil {
		return errs.NewWithCause(errs.ConfigError, "failed to add schema resource", err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return errs.NewWithCause(errs.ConfigError, "failed to compile schema", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[idx].schema = schema
	r.entries[idx].schemaBytes = schemaJSON
	return nil
}

// Schema returns the compiled JSON schema registered for idx, if any.
func (r *Registry) Schema(idx Index) *jsonschema.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[idx].schema
}

// SchemaBytes returns the raw JSON schema document registered for idx, if
// any, for re-emission via the registry runtime interface (spec.md §6
// "the JSON schema is emitted by the registry").
func (r *Registry) SchemaBytes(idx Index) []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[idx].schemaBytes
}

// JSONIndex returns the index of the canonical JSON message type, if one has
// been registered.
func (r *Registry) JSONIndex() (Index, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.jsonIndex == Invalid {
		return Invalid, false
	}
	return r.jsonIndex, true
}

// SetJSONIndex records idx as the canonical JSON message type. Called once
// by the messages package when it registers the builtin JSON message.
func (r *Registry) SetJSONIndex(idx Index) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jsonIndex = idx
}
