// Package regapi is the fluent registration surface applications use to
// teach a registry.Registry about their message types and node/section
// builders (spec.md §4.B). It is a thin, opinionated layer over
// registry.Registry: every method here ultimately calls a Register* method,
// chosen so that declaring a type reads as a short pipeline of opt-in/
// opt-out calls rather than direct registry plumbing.
package regapi

import (
	"github.com/crossflow/crossflow/registry"
	"github.com/crossflow/crossflow/typeinfo"
)

// CommonOps tracks which of the three *common operations* (spec.md §4.B) a
// message type gets by default: serialize, deserialize, and clone. All three
// default to enabled; callers opt out of any subset with the With*(false)
// methods below.
type CommonOps struct {
	Serialize   bool
	Deserialize bool
	Clone       bool
}

// DefaultCommonOps returns the all-enabled default spec.md §4.B mandates.
func DefaultCommonOps() CommonOps {
	return CommonOps{Serialize: true, Deserialize: true, Clone: true}
}

// MessageBuilder fluently declares a single message type's capabilities
// against a Registry. Obtain one via Manager.Message.
type MessageBuilder struct {
	mgr  *Manager
	idx  registry.Index
	info typeinfo.TypeInfo
	ops  CommonOps
}

// Index returns the type index this builder is configuring.
func (b *MessageBuilder) Index() registry.Index { return b.idx }

// WithSerialize sets the Serialize flag reported by Ops. It only records the
// choice; it does not install or remove a serializer in the registry.
func (b *MessageBuilder) WithSerialize(enabled bool) *MessageBuilder {
	b.ops.Serialize = enabled
	return b
}

// WithDeserialize overrides whether this type gets a deserializer.
func (b *MessageBuilder) WithDeserialize(enabled bool) *MessageBuilder {
	b.ops.Deserialize = enabled
	return b
}

// WithClone overrides whether this type gets a clone function.
func (b *MessageBuilder) WithClone(enabled bool) *MessageBuilder {
	b.ops.Clone = enabled
	return b
}

// Serialize installs a serializer, implying WithSerialize(true).
func (b *MessageBuilder) Serialize(fn registry.SerializeFunc) *MessageBuilder {
	b.ops.Serialize = true
	b.mgr.reg.RegisterSerialize(b.idx, fn)
	return b
}

// Deserialize installs a deserializer, implying WithDeserialize(true).
func (b *MessageBuilder) Deserialize(fn registry.DeserializeFunc) *MessageBuilder {
	b.ops.Deserialize = true
	b.mgr.reg.RegisterDeserialize(b.idx, fn)
	return b
}

// Clone installs a clone function, implying WithClone(true).
func (b *MessageBuilder) Clone(fn registry.CloneFunc) *MessageBuilder {
	b.ops.Clone = true
	b.mgr.reg.RegisterClone(b.idx, fn)
	return b
}

// ToString installs a stringifier (register_to_string, spec.md §4.A).
func (b *MessageBuilder) ToString(fn registry.StringifyFunc) *MessageBuilder {
	b.mgr.reg.RegisterToString(b.idx, fn)
	return b
}

// Schema attaches a JSON schema document to this type.
func (b *MessageBuilder) Schema(schemaJSON []byte) (*MessageBuilder, error) {
	if err := b.mgr.reg.SetSchema(b.idx, schemaJSON); err != nil {
		return b, err
	}
	return b, nil
}

// Unzip registers this type as a tuple-like message whose elements are
// elements, in order.
func (b *MessageBuilder) Unzip(elements []registry.Index, split func(any) ([]any, error)) *MessageBuilder {
	b.mgr.reg.RegisterUnzip(b.idx, elements, split)
	return b
}

// Result registers this type as Result<ok,err>.
func (b *MessageBuilder) Result(ok, errIdx registry.Index, split func(any) (any, bool, any, error)) *MessageBuilder {
	b.mgr.reg.RegisterResult(b.idx, ok, errIdx, split)
	return b
}

// Split registers this type as splittable into a stream of element.
func (b *MessageBuilder) Split(element registry.Index, split func(any) ([]any, map[string]any, any, bool, error)) *MessageBuilder {
	b.mgr.reg.RegisterSplit(b.idx, element, split)
	return b
}

// Join registers this type as assemblable from the given buffer layout.
func (b *MessageBuilder) Join(layout registry.JoinLayout, assemble func(map[string]any) (any, error)) *MessageBuilder {
	b.mgr.reg.RegisterJoin(b.idx, layout, assemble)
	return b
}

// BufferAccess registers this type as a buffer-access response for request,
// read from the given buffer layout.
func (b *MessageBuilder) BufferAccess(request registry.Index, layout registry.JoinLayout, access func(any, map[string]any) (any, error)) *MessageBuilder {
	b.mgr.reg.RegisterBufferAccess(b.idx, request, layout, access)
	return b
}

// Listen registers this type as assemblable whenever the given buffer
// layout changes.
func (b *MessageBuilder) Listen(layout registry.JoinLayout, assemble func(map[string]any) (any, error)) *MessageBuilder {
	b.mgr.reg.RegisterListen(b.idx, layout, assemble)
	return b
}

// Into registers a conversion from this type to target, symmetrically
// updating target's from_impls (spec.md §4.A "Conversion registration is
// symmetric").
func (b *MessageBuilder) Into(target *MessageBuilder, ctor registry.ConversionCtor) *MessageBuilder {
	b.mgr.reg.RegisterInto(b.idx, target.idx, ctor)
	return b
}

// TryInto registers a fallible conversion from this type to target. The
// builder additionally wires an internal fork-result so the error branch
// surfaces as a stringified TransformError (spec.md §4.A); that wiring
// happens at build time in the builder package, not here — regapi only
// records the conversion itself.
func (b *MessageBuilder) TryInto(target *MessageBuilder, ctor registry.TryConversionCtor) *MessageBuilder {
	b.mgr.reg.RegisterTryInto(b.idx, target.idx, ctor)
	return b
}

// Ops reports which common operations are currently opted in for this type,
// reflecting any WithSerialize/WithDeserialize/WithClone overrides applied so
// far. The flags are informational: nothing in this module reads them
// before installing an operation, and messages.RegisterBuiltins installs
// its codecs regardless of them.
func (b *MessageBuilder) Ops() CommonOps { return b.ops }
