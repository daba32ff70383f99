package inference

import (
	"github.com/crossflow/crossflow/internal/errs"
	"github.com/crossflow/crossflow/portref"
	"github.com/crossflow/crossflow/registry"
)

// Constraint derives a port's message type from other ports' types, the Go
// analogue of original_source's `dyn MessageTypeConstraint` trait object.
// Dependencies lists the ports whose types Evaluate reads; the engine
// queues every port once at the start and queues a port again whenever one
// of its dependencies resolves, so Evaluate may run while dependencies are
// still unresolved and must then return ok=false.
type Constraint interface {
	Dependencies(ctx *Context) []PortKey
	// Evaluate attempts to resolve the constrained port's type. ok=false with
	// a nil error means "not yet resolvable, try again later"; a non-nil
	// error means the port can never resolve (its message is recorded in
	// the MessageTypeInferenceFailure details for that port).
	Evaluate(ctx *Context) (idx registry.Index, ok bool, err error)
}

// ExactMatch requires the constrained port to carry exactly the same type as
// Target, used for fork_clone outputs, scope-boundary ports, redirected
// inputs (stream_out, template-section outputs), and the outputs of join/
// buffer_access/listen, which take their type from downstream (spec.md
// §4.E). fork_result, unzip and split use their own constraints below.
type ExactMatch struct {
	Target PortKey
}

func (c ExactMatch) Dependencies(*Context) []PortKey { return []PortKey{c.Target} }

func (c ExactMatch) Evaluate(ctx *Context) (registry.Index, bool, error) {
	idx, ok := ctx.typeOf(c.Target)
	return idx, ok, nil
}

// CloneInput resolves a fork_clone operation's input type from the first
// resolved output connected into it, or failing that from the first clone
// target whose input type is resolved. It does not check that the clone
// targets agree with each other or that the type is cloneable; the latter
// is checked when the fork_clone is built.
type CloneInput struct {
	Operation portref.OperationRef
	Targets   []portref.OperationRef
}

func (c CloneInput) Dependencies(ctx *Context) []PortKey {
	deps := make([]PortKey, 0, len(c.Targets)+1)
	for _, out := range ctx.connectionsInto(c.Operation) {
		deps = append(deps, OutputPort(out))
	}
	for _, t := range c.Targets {
		deps = append(deps, InputPort(t))
	}
	return deps
}

func (c CloneInput) Evaluate(ctx *Context) (registry.Index, bool, error) {
	for _, out := range ctx.connectionsInto(c.Operation) {
		if idx, ok := ctx.typeOf(OutputPort(out)); ok {
			return idx, true, nil
		}
	}
	for _, t := range c.Targets {
		if idx, ok := ctx.typeOf(InputPort(t)); ok {
			return idx, true, nil
		}
	}
	return registry.Invalid, false, nil
}

// ResultInto requires a fork_result operation's input type to be exactly the
// Result<Ok,Err> type registered for its ok/err branch types (spec.md §4.G
// "fork_result").
type ResultInto struct {
	Operation portref.OperationRef
	Ok, Err   portref.OperationRef
}

func (c ResultInto) Dependencies(*Context) []PortKey {
	return []PortKey{InputPort(c.Ok), InputPort(c.Err)}
}

func (c ResultInto) Evaluate(ctx *Context) (registry.Index, bool, error) {
	okIdx, okResolved := ctx.typeOf(InputPort(c.Ok))
	errIdx, errResolved := ctx.typeOf(InputPort(c.Err))
	if !okResolved || !errResolved {
		return registry.Invalid, false, nil
	}
	idx, found := ctx.reg.ResultIndex(okIdx, errIdx)
	if !found {
		return registry.Invalid, false, errs.Errorf(errs.CannotForkResult,
			"no Result type registered for ok=%d, err=%d", okIdx, errIdx)
	}
	return idx, true, nil
}

// OkFrom requires the ok-branch output's type to be the Ok component of
// From's own (Result-shaped) input type.
type OkFrom struct {
	From portref.OperationRef
}

func (c OkFrom) Dependencies(*Context) []PortKey { return []PortKey{InputPort(c.From)} }

func (c OkFrom) Evaluate(ctx *Context) (registry.Index, bool, error) {
	fromIdx, ok := ctx.typeOf(InputPort(c.From))
	if !ok {
		return registry.Invalid, false, nil
	}
	ops, err := ctx.reg.Ops(fromIdx)
	if err != nil {
		return registry.Invalid, false, err
	}
	if ops == nil || ops.ForkResult == nil {
		return registry.Invalid, false, errs.Errorf(errs.CannotForkResult, "type %d cannot be fork_result'd", fromIdx)
	}
	return ops.ForkResult.Ok, true, nil
}

// ErrFrom is OkFrom's mirror for the err branch.
type ErrFrom struct {
	From portref.OperationRef
}

func (c ErrFrom) Dependencies(*Context) []PortKey { return []PortKey{InputPort(c.From)} }

func (c ErrFrom) Evaluate(ctx *Context) (registry.Index, bool, error) {
	fromIdx, ok := ctx.typeOf(InputPort(c.From))
	if !ok {
		return registry.Invalid, false, nil
	}
	ops, err := ctx.reg.Ops(fromIdx)
	if err != nil {
		return registry.Invalid, false, err
	}
	if ops == nil || ops.ForkResult == nil {
		return registry.Invalid, false, errs.Errorf(errs.CannotForkResult, "type %d cannot be fork_result'd", fromIdx)
	}
	return ops.ForkResult.Err, true, nil
}

// UnzipInput requires an unzip operation's input type to be exactly the
// tuple type registered as producing its ordered element output types.
type UnzipInput struct {
	Op      portref.OperationRef
	Outputs []portref.OutputRef // one per tuple position, in order
}

func (c UnzipInput) Dependencies(*Context) []PortKey {
	deps := make([]PortKey, len(c.Outputs))
	for i, out := range c.Outputs {
		deps[i] = OutputPort(out)
	}
	return deps
}

func (c UnzipInput) Evaluate(ctx *Context) (registry.Index, bool, error) {
	elements := make([]registry.Index, len(c.Outputs))
	for i, out := range c.Outputs {
		idx, ok := ctx.typeOf(OutputPort(out))
		if !ok {
			return registry.Invalid, false, nil
		}
		elements[i] = idx
	}
	idx, found := ctx.reg.UnzipIndex(elements)
	if !found {
		return registry.Invalid, false, errs.Errorf(errs.NotUnzippable, "no type registered that unzips into %v", elements)
	}
	return idx, true, nil
}

// UnzipOutput requires a tuple position's output type to be exactly the
// Element'th entry of the unzip operation's own (already-resolved) input
// type.
type UnzipOutput struct {
	Op      portref.OperationRef
	Element int
}

func (c UnzipOutput) Dependencies(*Context) []PortKey { return []PortKey{InputPort(c.Op)} }

func (c UnzipOutput) Evaluate(ctx *Context) (registry.Index, bool, error) {
	opIdx, ok := ctx.typeOf(InputPort(c.Op))
	if !ok {
		return registry.Invalid, false, nil
	}
	ops, err := ctx.reg.Ops(opIdx)
	if err != nil {
		return registry.Invalid, false, err
	}
	if ops == nil || ops.Unzip == nil {
		return registry.Invalid, false, errs.Errorf(errs.NotUnzippable, "type %d cannot be unzipped", opIdx)
	}
	if c.Element < 0 || c.Element >= len(ops.Unzip.Elements) {
		return registry.Invalid, false, errs.Errorf(errs.InvalidUnzip, "tuple position %d out of range for type %d", c.Element, opIdx)
	}
	return ops.Unzip.Elements[c.Element], true, nil
}

// BufferInput requires a buffer operation's element type to match whatever
// is connected into it.
type BufferInput struct {
	Op portref.OperationRef
}

func (c BufferInput) Dependencies(ctx *Context) []PortKey {
	outs := ctx.connectionsInto(c.Op)
	deps := make([]PortKey, len(outs))
	for i, out := range outs {
		deps[i] = OutputPort(out)
	}
	return deps
}

func (c BufferInput) Evaluate(ctx *Context) (registry.Index, bool, error) {
	for _, out := range ctx.connectionsInto(c.Op) {
		if idx, ok := ctx.typeOf(OutputPort(out)); ok {
			return idx, true, nil
		}
	}
	return registry.Invalid, false, nil
}

// BufferAccessInput requires a buffer_access operation's request-input type
// to be exactly the Request type its own (already-resolved) output/response
// type declares it answers.
type BufferAccessInput struct {
	// Output is the buffer_access operation's own "next" output port, whose
	// type is inferred from the operation it feeds (the buffer_access schema
	// names only its buffers and next target, not a response type).
	Output portref.OutputRef
}

func (c BufferAccessInput) Dependencies(*Context) []PortKey {
	return []PortKey{OutputPort(c.Output)}
}

func (c BufferAccessInput) Evaluate(ctx *Context) (registry.Index, bool, error) {
	outIdx, ok := ctx.typeOf(OutputPort(c.Output))
	if !ok {
		return registry.Invalid, false, nil
	}
	ops, err := ctx.reg.Ops(outIdx)
	if err != nil {
		return registry.Invalid, false, err
	}
	if ops == nil || ops.BufferAccess == nil {
		return registry.Invalid, false, errs.Errorf(errs.CannotAccessBuffers, "type %d is not a buffer_access response", outIdx)
	}
	return ops.BufferAccess.Request, true, nil
}

// SplitInput requires a split operation's input type to be one of the types
// registered as splitting into the resolved element type of its outputs.
// Ambiguity (more than one source type splits into the same element) is
// resolved here by preferring the canonical JSON type (spec.md §4.E
// "Ambiguity resolution"): Evaluate picks JSONIndex when it is among the
// candidates and reports CannotInferType when it is not.
type SplitInput struct {
	Op      portref.OperationRef
	Element portref.OutputRef
	// JSONIndex, if valid, is preferred when the source type is ambiguous.
	JSONIndex registry.Index
}

func (c SplitInput) Dependencies(*Context) []PortKey { return []PortKey{OutputPort(c.Element)} }

func (c SplitInput) Evaluate(ctx *Context) (registry.Index, bool, error) {
	elemIdx, ok := ctx.typeOf(OutputPort(c.Element))
	if !ok {
		return registry.Invalid, false, nil
	}
	sources := ctx.reg.SplitSources(elemIdx)
	switch len(sources) {
	case 0:
		return registry.Invalid, false, errs.Errorf(errs.NotSplittable, "no type registered that splits into %d", elemIdx)
	case 1:
		return sources[0], true, nil
	default:
		if c.JSONIndex != registry.Invalid {
			for _, s := range sources {
				if s == c.JSONIndex {
					return s, true, nil
				}
			}
		}
		return registry.Invalid, false, errs.Errorf(errs.CannotInferType,
			"ambiguous split source for element type %d: %v", elemIdx, sources)
	}
}

// SplitOutput requires a split operation's element output type to be exactly
// the Element type registered on its own (already-resolved) input type.
type SplitOutput struct {
	Op portref.OperationRef
}

func (c SplitOutput) Dependencies(*Context) []PortKey { return []PortKey{InputPort(c.Op)} }

func (c SplitOutput) Evaluate(ctx *Context) (registry.Index, bool, error) {
	opIdx, ok := ctx.typeOf(InputPort(c.Op))
	if !ok {
		return registry.Invalid, false, nil
	}
	ops, err := ctx.reg.Ops(opIdx)
	if err != nil {
		return registry.Invalid, false, err
	}
	if ops == nil || ops.Split == nil {
		return registry.Invalid, false, errs.Errorf(errs.NotSplittable, "type %d cannot be split", opIdx)
	}
	return ops.Split.Element, true, nil
}
