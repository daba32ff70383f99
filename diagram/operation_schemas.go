package diagram

import "encoding/json"

// NodeSchema instantiates a registered node builder (spec.md §4.G "node").
type NodeSchema struct {
	// Builder is the registered node builder id (regapi.NodeRegistration.Name).
	Builder string `json:"builder"`
	// Config is the builder's deserialized configuration, kept raw until the
	// builder resolves its own concrete config type.
	Config json.RawMessage `json:"config,omitempty"`
	// Next routes the node's primary output.
	Next NextOperation `json:"next"`
	// StreamOut routes each of the node's named stream outputs.
	StreamOut map[string]NextOperation `json:"stream_out,omitempty"`
	TraceSettings
}

// SectionSchema instantiates a section, either from a registered builder or
// from a named template (spec.md §4.G "section").
type SectionSchema struct {
	Provider SectionProvider `json:"provider"`
	// Connect routes each of the section's exposed outputs by name.
	Connect map[string]NextOperation `json:"connect,omitempty"`
	TraceSettings
}

// SectionTemplate declares a reusable section body: its inner operations,
// and which input/buffer/output names it exposes at its boundary (spec.md
// §4.G "section template").
type SectionTemplate struct {
	Ops     map[string]*DiagramOperation `json:"ops"`
	Inputs  []string                     `json:"inputs,omitempty"`
	Buffers []string                     `json:"buffers,omitempty"`
	Outputs []string                     `json:"outputs,omitempty"`
	TraceSettings
}

// ScopeSchema instantiates a nested scope with its own ops map, terminate
// target, and implicit-error policy (spec.md §4.G "scope").
type ScopeSchema struct {
	Start           NextOperation            `json:"start"`
	OnImplicitError *NextOperation           `json:"on_implicit_error,omitempty"`
	Ops             map[string]*DiagramOperation `json:"ops"`
	StreamOut       map[string]NextOperation `json:"stream_out,omitempty"`
	Next            NextOperation            `json:"next"`
	TraceSettings
}

// StreamOutSchema exposes one of the enclosing scope's streams under name
// (spec.md §4.G "stream_out").
type StreamOutSchema struct {
	Name string `json:"name"`
	TraceSettings
}

// ForkCloneSchema duplicates a cloneable message onto every target in Next
// (spec.md §4.G "fork_clone").
type ForkCloneSchema struct {
	Next []NextOperation `json:"next"`
	TraceSettings
}

// ForkResultSchema splits a Result<T,E>-shaped message into its ok/err
// branches (spec.md §4.G "fork_result").
type ForkResultSchema struct {
	Ok  NextOperation `json:"ok"`
	Err NextOperation `json:"err"`
	TraceSettings
}

// UnzipSchema splits a tuple-like message into its ordered elements (spec.md
// §4.G "unzip").
type UnzipSchema struct {
	Next []NextOperation `json:"next"`
	TraceSettings
}

// SplitSchema decomposes a collection-like message into sequential, keyed,
// and/or remaining streams (spec.md §4.G "split").
type SplitSchema struct {
	Sequential []NextOperation          `json:"sequential,omitempty"`
	Keyed      map[string]NextOperation `json:"keyed,omitempty"`
	Remaining  *NextOperation           `json:"remaining,omitempty"`
	TraceSettings
}

// JoinSchema assembles a struct-like message from a named/indexed set of
// buffers (spec.md §4.G "join").
type JoinSchema struct {
	Buffers   BufferSelection `json:"buffers"`
	Next      NextOperation   `json:"next"`
	Serialize bool            `json:"serialize,omitempty"`
	TraceSettings
}

// BufferSchema allocates a buffer (spec.md §4.G "buffer").
type BufferSchema struct {
	Serialize bool `json:"serialize,omitempty"`
	TraceSettings
}

// BufferAccessSchema reads a named/indexed set of buffers on demand (spec.md
// §4.G "buffer_access").
type BufferAccessSchema struct {
	Buffers BufferSelection `json:"buffers"`
	Next    NextOperation   `json:"next"`
	TraceSettings
}

// ListenSchema triggers whenever any of a named/indexed set of buffers
// changes (spec.md §4.G "listen").
type ListenSchema struct {
	Buffers BufferSelection `json:"buffers"`
	Next    NextOperation   `json:"next"`
	TraceSettings
}

// TransformSchema evaluates a CEL expression against a JSON-boxed message
// (spec.md §4.G "transform"; operates only on JSON).
type TransformSchema struct {
	CEL  string        `json:"cel"`
	Next NextOperation `json:"next"`
	TraceSettings
}
