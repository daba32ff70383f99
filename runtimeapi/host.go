// Package runtimeapi defines the boundary between the diagram compiler and
// the task-graph runtime that actually dispatches messages. Per spec.md §1,
// the runtime itself — service execution, promise/outcome delivery, async
// runtime integration — is explicitly out of scope for this module; this
// package only names the capabilities (§6 "Runtime interface (consumed by
// the core)") the compiler needs from it, as a set of interfaces and
// type-erased capability handles. A concrete task-graph implementation is an
// external collaborator that plugs in behind Host.
package runtimeapi

import (
	"context"

	"github.com/crossflow/crossflow/typeinfo"
)

type (
	// DynInputSlot is a type-erased capability referring to a live input slot
	// entity. Per §9 "Type-erased capabilities", it carries a TypeInfo
	// alongside an opaque entity identifier; it does not own the underlying
	// entity, and it is not itself safe to fabricate — only a Builder issues
	// valid ones.
	DynInputSlot struct {
		// ID is an opaque, host-assigned entity identifier.
		ID string
		// Type is the message type this slot accepts.
		Type typeinfo.TypeInfo
	}

	// DynOutput is a type-erased capability referring to a live output port.
	DynOutput struct {
		ID   string
		Type typeinfo.TypeInfo
	}

	// AnyBuffer is a type-erased capability referring to a live buffer.
	AnyBuffer struct {
		ID   string
		Type typeinfo.TypeInfo
	}

	// DynNode bundles the input/output/stream capabilities of a freshly
	// instantiated node, the shape every node and conversion builder
	// produces (§4.B "produce a DynNode").
	DynNode struct {
		Input   DynInputSlot
		Output  DynOutput
		Streams map[string]DynOutput
	}

	// SectionInterface bundles the exposed input/buffer/output ports of an
	// instantiated section (§4.G "Scope / Section").
	SectionInterface struct {
		Inputs  map[string]DynInputSlot
		Buffers map[string]AnyBuffer
		Outputs map[string]DynOutput
	}

	// ScopeBoundary describes the request/response/stream types a new scope
	// must be instantiated with (§4.F "Scope construction").
	ScopeBoundary struct {
		Request  typeinfo.TypeInfo
		Response typeinfo.TypeInfo
		Streams  map[string]typeinfo.TypeInfo
	}

	// ScopeHandle bundles the capabilities of an instantiated scope: the slot
	// that feeds it, its externally-visible start/response outputs, the
	// terminate/cancel slots reached from inside it, and its exposed stream
	// outputs. Start and Output mirror portref.OutputRef's implicit
	// start-of-scope port and the scope's own `next` routing respectively
	// (§4.G "scope": "the scope's start output ... carries the same type as
	// the scope's own input"; "whatever is fed into terminate becomes the
	// scope's externally visible response").
	ScopeHandle struct {
		Input     DynInputSlot
		Start     DynOutput
		Output    DynOutput
		Terminate DynInputSlot
		Cancel    DynInputSlot
		Streams   map[string]DynOutput
	}

	// BufferSettings configures a buffer's retention policy. The specific
	// fields are runtime-defined; the compiler only ever threads this value
	// through opaquely from the `buffer`/`create_buffer` operation config.
	BufferSettings struct {
		// KeepLast, when > 0, bounds how many messages the buffer retains.
		KeepLast int
		// Serialize indicates the buffer should store its canonical JSON
		// form rather than the live Go value, matching the `buffer`
		// operation's `serialize` flag (§3).
		Serialize bool
	}

	// MapFunc is a synchronous, fallible transform of one message to
	// another, the shape a `node` builder or implicit adapter wraps.
	MapFunc func(any) (any, error)

	// AsyncMapFunc is the asynchronous analogue of MapFunc, for node
	// builders whose body suspends (§1 "async" services).
	AsyncMapFunc func(context.Context, any) (any, error)

	// Builder is the live handle node/section/conversion builders receive.
	// It is the only way to instantiate runtime entities during a build;
	// every method call is expected to succeed immediately (construction
	// failures are reported by returning an error from the builder function
	// itself, per §4.B).
	Builder interface {
		// CreateMapBlock instantiates a synchronous map node.
		CreateMapBlock(req, resp typeinfo.TypeInfo, f MapFunc) DynNode
		// CreateMapAsync instantiates an asynchronous map node.
		CreateMapAsync(req, resp typeinfo.TypeInfo, f AsyncMapFunc) DynNode
		// CreateForkClone instantiates a fork-clone node duplicating
		// messages of type t onto n downstream outputs.
		CreateForkClone(t typeinfo.TypeInfo, n int) (DynInputSlot, []DynOutput)
		// CreateForkResult instantiates a fork-result node splitting a
		// Result-shaped message of the given ok/err element types.
		CreateForkResult(ok, err typeinfo.TypeInfo) (DynInputSlot, DynOutput, DynOutput)
		// CreateUnzip instantiates a node decomposing a tuple-shaped message
		// of type t into len(elementTypes) outputs, in order, using split to
		// perform the decomposition at runtime (§4.G "Unzip").
		CreateUnzip(t typeinfo.TypeInfo, elementTypes []typeinfo.TypeInfo, split func(any) ([]any, error)) (DynInputSlot, []DynOutput)
		// CreateSplit instantiates a node decomposing a collection-shaped
		// message of type t into nSequential ordered outputs, one output per
		// entry in keys, and (if hasRemaining) one remaining output, each
		// carrying messages of type element (§4.G "Split").
		CreateSplit(t, element typeinfo.TypeInfo, nSequential int, keys []string, hasRemaining bool, split func(any) (seq []any, keyed map[string]any, remaining any, hasRemaining bool, err error)) (slot DynInputSlot, sequential []DynOutput, keyed map[string]DynOutput, remaining *DynOutput)
		// CreateJoin instantiates a node that, once every named buffer holds
		// a value, assembles and emits one message of respType built by
		// assemble (§4.G "Join"). Unlike CreateListen it fires once per
		// complete buffer set rather than on every change.
		CreateJoin(respType typeinfo.TypeInfo, buffers map[string]AnyBuffer, assemble func(contents map[string]any) (any, error)) (DynOutput, error)
		// Connect wires a previously-issued output into a previously-issued
		// input slot. The host is expected to validate type compatibility;
		// the compiler never assumes an output's static type matches a
		// slot's (§9).
		Connect(out DynOutput, in DynInputSlot) error
		// CreateBuffer allocates a buffer of the given type, returning both
		// the input slot upstream operations write into and the buffer
		// handle join/buffer_access/listen read from (spec.md §4.G "buffer").
		CreateBuffer(t typeinfo.TypeInfo, settings BufferSettings) (DynInputSlot, AnyBuffer)
		// CreateBufferAccess instantiates a node that, given a request
		// message, reads the given buffers and produces a response.
		CreateBufferAccess(reqType, respType typeinfo.TypeInfo, buffers map[string]AnyBuffer, f func(req any, contents map[string]any) (any, error)) DynNode
		// CreateListen instantiates a node that is triggered whenever any of
		// the given buffers changes, producing a message of respType built
		// from their contents.
		CreateListen(respType typeinfo.TypeInfo, buffers map[string]AnyBuffer, f func(contents map[string]any) (any, error)) (DynOutput, error)
		// CreateScope allocates a new runtime sub-scope for the given
		// boundary, returning the capabilities needed to feed it, terminate
		// out of it, and read its exposed streams (§4.F "Scope
		// construction").
		CreateScope(boundary ScopeBoundary) ScopeHandle
		// Start returns the implicit start-of-scope output of the scope this
		// builder is currently building within — at the root builder, the
		// workflow's own initial request (spec.md §4.F: the root scope's
		// start/terminate/stream boundary conditions are fixed the same way
		// a nested scope's are).
		Start() DynOutput
		// Terminate returns the terminate input slot of the scope this
		// builder is currently building within.
		Terminate() DynInputSlot
		// Cancel returns the cancel input slot of the scope this builder is
		// currently building within.
		Cancel() DynInputSlot
		// StreamOut returns the input slot a `stream_out` operation named name
		// feeds into; the host exposes whatever flows into it as the
		// enclosing ScopeHandle's Streams[name] output (§4.G "stream_out").
		StreamOut(name string) DynInputSlot
		// InNamespace returns a child Builder scoped to the given namespace
		// segment, used when expanding sections and scopes (§4.F "Section
		// expansion").
		InNamespace(name string) Builder
	}

	// Host is the top-level entry point a concrete task-graph runtime
	// implements; it is what `spawn_workflow` ultimately drives (§6). Host
	// embeds Builder for the root scope plus the two host-level entry
	// points spec.md names explicitly.
	Host interface {
		Builder
		// SpawnWorkflow runs fn with a fresh root Builder scoped to the
		// workflow being spawned, rolling back every entity fn created if
		// fn returns an error (§5 "On build failure, all entities spawned
		// during this build are despawned before the error returns").
		SpawnWorkflow(ctx context.Context, fn func(Builder) error) error
		// Command runs fn against the host's top-level command interface,
		// for runtime operations outside of a single scope's build (§6
		// "command(closure)").
		Command(ctx context.Context, fn func(Builder) error) error
	}

	// NodeBuilderFunc is the function a registered node builder resolves
	// to: given a live Builder and a deserialized configuration value,
	// produce a DynNode (§4.B). Builders may fail at construction time.
	NodeBuilderFunc func(b Builder, config any) (DynNode, error)

	// SectionBuilderFunc is the analogous constructor for section builders.
	SectionBuilderFunc func(b Builder, config any) (SectionInterface, error)

	// ConversionFunc constructs a node converting one message type into
	// another (`into_impls`/`from_impls`); it needs no configuration since
	// the conversion is selected purely by source/target type.
	ConversionFunc func(b Builder) DynNode

	// TryConversionFunc is the fallible analogue, producing a node whose
	// output is a Result<U, E> that the builder forks via `fork_result` and
	// routes the error branch through `to_string` (§4.A "Registering a
	// try-conversion additionally inserts an internal fork-result wiring").
	TryConversionFunc func(b Builder) DynNode
)
