package registry

import (
	"github.com/crossflow/crossflow/runtimeapi"
)

type (
	// SerializeFunc converts a live message value into its canonical JSON
	// form.
	SerializeFunc func(msg any) ([]byte, error)

	// DeserializeFunc converts a canonical JSON message into a live value.
	DeserializeFunc func(data []byte) (any, error)

	// CloneFunc duplicates a message value. Used to validate cloneability
	// and, at build time, to back the fork-clone node the builder
	// instantiates for the inferred type.
	CloneFunc func(msg any) (any, error)

	// StringifyFunc produces a human-readable rendering of a message,
	// registered via register_to_string and used for cancel payloads
	// (spec.md §3).
	StringifyFunc func(msg any) (string, error)

	// ConversionCtor constructs a node converting one registered type into
	// another. Registered symmetrically in both directions (spec.md §4.A).
	ConversionCtor = runtimeapi.ConversionFunc

	// TryConversionCtor is the fallible analogue of ConversionCtor.
	TryConversionCtor = runtimeapi.TryConversionFunc

	// ForkResultOps describes how to split a Result<T,E>-shaped message.
	ForkResultOps struct {
		// Ok is the index of T.
		Ok Index
		// Err is the index of E.
		Err Index
		// Split decomposes a live Result value into its ok/err branch.
		Split func(msg any) (ok any, isOk bool, errVal any, err error)
	}

	// UnzipOps describes how to decompose a tuple-like message.
	UnzipOps struct {
		// Elements holds the type index of each tuple position, in order.
		Elements []Index
		// Split decomposes a live tuple value into its elements, in order.
		Split func(msg any) ([]any, error)
	}

	// SplitOps describes how to decompose a collection-like message into a
	// sequential stream, a keyed stream, and a remaining stream.
	SplitOps struct {
		// Element is the type index of each produced item.
		Element Index
		// Split decomposes a live collection value.
		Split func(msg any) (seq []any, keyed map[string]any, remaining any, hasRemaining bool, err error)
	}

	// JoinLayout describes the buffer layout a joinable type expects: either
	// a dynamic layout (any set of buffers, order/keys decided at build
	// time) or a static map of buffer identifier to expected element type
	// index (spec.md §3 "join").
	JoinLayout struct {
		Dynamic bool
		Static  map[string]Index
	}

	// JoinOps describes how to assemble a struct-like message from a buffer
	// layout.
	JoinOps struct {
		Layout JoinLayout
		// Assemble builds a live value of this type from the named/indexed
		// buffer contents gathered by the builder.
		Assemble func(contents map[string]any) (any, error)
	}

	// BufferAccessOps describes the request/response shape of a generic
	// buffer-access node that produces this type.
	BufferAccessOps struct {
		// Request is the type index of the access-request message this type
		// knows how to answer.
		Request Index
		// Layout names the buffers (and their element type indices) this
		// type reads to answer a request, mirroring JoinLayout.
		Layout JoinLayout
		// Access computes the response from a request and the named buffer
		// contents.
		Access func(req any, contents map[string]any) (any, error)
	}

	// ListenOps describes the buffer layout a listener type assembles its
	// message from whenever any of those buffers changes.
	ListenOps struct {
		Layout JoinLayout
		// Assemble builds a live value of this type from the named buffer
		// contents whenever any of them changes.
		Assemble func(contents map[string]any) (any, error)
	}

	// OperationsTable is the per-message-type capability set (spec.md §3
	// "Operations table"). Every field is optional; a nil field means the
	// capability was never registered for this type.
	OperationsTable struct {
		Serialize   SerializeFunc
		Deserialize DeserializeFunc
		ForkClone   CloneFunc
		ForkResult  *ForkResultOps
		Unzip       *UnzipOps
		Split       *SplitOps
		Join        *JoinOps
		BufferAccess *BufferAccessOps
		Listen       *ListenOps
		ToString     StringifyFunc

		// CreateBuffer and CreateTrigger construct a buffer/trigger node for
		// this type, given a live Builder.
		CreateBuffer  func(b runtimeapi.Builder, settings runtimeapi.BufferSettings) (runtimeapi.DynInputSlot, runtimeapi.AnyBuffer)
		CreateTrigger func(b runtimeapi.Builder) runtimeapi.DynNode
		// BuildScope creates scope-boundary input/output/stream nodes for
		// this type.
		BuildScope func(b runtimeapi.Builder) runtimeapi.ScopeHandle

		// IntoImpls/FromImpls map a target type index to a constructor that
		// builds a Self->U conversion node. TryIntoImpls/TryFromImpls are the
		// fallible analogues.
		IntoImpls    map[Index]ConversionCtor
		FromImpls    map[Index]ConversionCtor
		TryIntoImpls map[Index]TryConversionCtor
		TryFromImpls map[Index]TryConversionCtor
	}
)

// CanRoundTripJSON reports whether this type's JSON buffer adapter can be
// installed, i.e. whether both directions of the canonical JSON conversion
// are available (spec.md §4.A "JSON schema").
func (t *OperationsTable) CanRoundTripJSON() bool {
	return t != nil && t.Serialize != nil && t.Deserialize != nil
}
