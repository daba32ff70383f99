// Package ops implements the build half of spec.md §4.G's Operation
// Schemas: per-operation-kind logic that, given an already-resolved
// inference.Result and a live runtimeapi.Builder, instantiates the runtime
// entities one diagram operation requires and reports which of its outputs
// need routing where. The companion constraint-contribution half lives in
// inference/contribute.go; this package never touches a Constraint, only
// already-concrete registry.Index values.
//
// Grounded on the same per-kind dispatch shape contribute.go uses, mirrored
// here for the build pass, following original_source/src/diagram's
// per-operation `build_diagram_operation` methods (spec.md §4.G "Each
// operation type supplies two small functions").
package ops

import (
	"github.com/crossflow/crossflow/diagram"
	"github.com/crossflow/crossflow/inference"
	"github.com/crossflow/crossflow/internal/errs"
	"github.com/crossflow/crossflow/portref"
	"github.com/crossflow/crossflow/regapi"
	"github.com/crossflow/crossflow/registry"
	"github.com/crossflow/crossflow/runtimeapi"
	"github.com/crossflow/crossflow/transform"
)

// RoutedOutput pairs a freshly emitted capability with the operation
// reference its target NextOperation resolves to, for the builder's
// outputs_into_target queue (spec.md §4.F).
type RoutedOutput struct {
	Target portref.OperationRef
	Out    runtimeapi.DynOutput
}

// PendingOp is a newly discovered operation a scope/section expansion
// contributes to the builder's round loop, in its own enlarged namespace.
type PendingOp struct {
	Ref    portref.OperationRef
	NS     portref.NamespaceList
	Op     *diagram.DiagramOperation
	Parent runtimeapi.Builder
	// OnImplicit is the on_implicit_error target this operation's implicit
	// adapters should route failures to, inherited from the enclosing scope
	// unless this one declares its own override (spec.md §4.F).
	OnImplicit portref.OperationRef
}

// AuxInput publishes a concrete input slot under an operation reference that
// has no diagram.DiagramOperation of its own — the synthetic per-name ports
// a builder-provided section exposes (spec.md §4.G "section": "inputs/
// buffers addressed by direct name equality under the section's
// namespace"). The builder's round loop treats Ref as finished the moment it
// sees this, with no further ops.Build call.
type AuxInput struct {
	Ref  portref.OperationRef
	Slot runtimeapi.DynInputSlot
}

// Redirect asks the builder's round loop to re-target any output routed at
// From to To instead, with the same cycle detection RedirectConnection
// applies elsewhere (spec.md §4.G "section": a template's exposed outputs
// are pseudo-operations with no ops entry of their own; whatever routes to
// one is redirected to the section's own `connect` target").
type Redirect struct {
	From portref.OperationRef
	To   portref.OperationRef
}

// Outcome reports the result of attempting to build one operation this
// round.
type Outcome struct {
	// Finished is true once the operation's own runtime entities all exist
	// and every output it can presently emit has been queued.
	Finished bool
	// Reason explains why Finished is false, surfaced in BuildHalted.
	Reason string
	// InputSlot is the operation's own input capability, once it exists, so
	// the builder can connect previously queued outputs into it.
	InputSlot *runtimeapi.DynInputSlot
	// Outputs lists every output this operation is ready to route this
	// round.
	Outputs []RoutedOutput
	// Children registers new operations discovered by expanding a scope or
	// a template-backed section.
	Children map[string]PendingOp
	// BufferHandle publishes the AnyBuffer a `buffer` operation allocates,
	// for join/buffer_access/listen operations elsewhere to resolve by
	// name.
	BufferHandle *runtimeapi.AnyBuffer
	// AuxInputs publishes additional, already-finished input slots under
	// operation references distinct from Self (a builder-provided section's
	// named pseudo-inputs).
	AuxInputs []AuxInput
	// Redirects asks the round loop to re-target anything routed at From to
	// To (a template-provided section's named pseudo-outputs).
	Redirects []Redirect
}

// BuildContext bundles everything one operation's Build function needs:
// the compile-time products of registration and inference, plus the
// namespace-scoped runtime handle to instantiate entities with.
type BuildContext struct {
	Mgr        *regapi.Manager
	Reg        *registry.Registry
	Result     *inference.Result
	Diagram    *diagram.Diagram
	Transform  *transform.Evaluator
	Buffers    *BufferTable
	Namespace  portref.NamespaceList
	Self       portref.OperationRef
	NSBuilder  runtimeapi.Builder
	OnImplicit portref.OperationRef
}

// BufferTable tracks the AnyBuffer capability each named `buffer` operation
// allocates, shared across every join/buffer_access/listen that references
// it by name (spec.md §4.G "Buffer: ... shared by name").
type BufferTable struct {
	handles map[string]runtimeapi.AnyBuffer
}

// NewBufferTable constructs an empty BufferTable.
func NewBufferTable() *BufferTable { return &BufferTable{handles: map[string]runtimeapi.AnyBuffer{}} }

// Set records buffer's handle under ref's canonical key. Returns
// DuplicateBuffersCreated if ref was already registered (spec.md §3
// "Each buffer maps to at most one concrete buffer handle").
func (t *BufferTable) Set(ref portref.OperationRef, handle runtimeapi.AnyBuffer) error {
	key := ref.Key()
	if _, exists := t.handles[key]; exists {
		return errs.Errorf(errs.DuplicateBuffersCreated, "buffer %q already has a handle", ref.Operation)
	}
	t.handles[key] = handle
	return nil
}

// Get looks up a previously allocated buffer handle by operation reference.
func (t *BufferTable) Get(ref portref.OperationRef) (runtimeapi.AnyBuffer, bool) {
	h, ok := t.handles[ref.Key()]
	return h, ok
}

// ResolveNext computes the operation reference a NextOperation resolves to
// within ns, mirroring inference/contribute.go's resolveNext so that the
// build pass and the constraint-contribution pass agree on every port's
// identity.
func ResolveNext(ns portref.NamespaceList, next diagram.NextOperation) portref.OperationRef {
	switch next.Kind {
	case diagram.NextOperationBuiltin:
		var b portref.Builtin
		switch next.BuiltinTarget {
		case diagram.Terminate:
			b = portref.Terminate
		case diagram.Dispose:
			b = portref.Dispose
		case diagram.Cancel:
			b = portref.Cancel
		}
		return portref.OperationRef{Namespaces: ns, Operation: portref.BuiltinOperation(b)}
	case diagram.NextOperationNamespace:
		childNS := append(append(portref.NamespaceList{}, ns...), next.Namespace)
		return portref.OperationRef{Namespaces: childNS, Operation: portref.NamedOperation(next.Operation)}
	default:
		return portref.OperationRef{Namespaces: ns, Operation: portref.NamedOperation(next.Name)}
	}
}

// Build dispatches to the per-kind build function, the build-time analogue
// of contribute.go's contribute method.
func Build(bc *BuildContext, op *diagram.DiagramOperation) (Outcome, error) {
	switch op.Kind {
	case diagram.OpNode:
		return buildNode(bc, op.Node)
	case diagram.OpForkClone:
		return buildForkClone(bc, op.ForkClone)
	case diagram.OpForkResult:
		return buildForkResult(bc, op.ForkResult)
	case diagram.OpUnzip:
		return buildUnzip(bc, op.Unzip)
	case diagram.OpSplit:
		return buildSplit(bc, op.Split)
	case diagram.OpBuffer:
		return buildBuffer(bc, op.Buffer)
	case diagram.OpJoin:
		return buildJoin(bc, op.Join)
	case diagram.OpBufferAccess:
		return buildBufferAccess(bc, op.BufferAccess)
	case diagram.OpListen:
		return buildListen(bc, op.Listen)
	case diagram.OpTransform:
		return buildTransform(bc, op.Transform)
	case diagram.OpStreamOut:
		return buildStreamOut(bc, op.StreamOut)
	case diagram.OpScope:
		return buildScope(bc, op.Scope)
	case diagram.OpSection:
		return buildSection(bc, op.Section)
	default:
		return Outcome{}, errs.Errorf(errs.InvalidOperation, "unknown operation kind %q", op.Kind)
	}
}
