package inference

import (
	"github.com/crossflow/crossflow/diagram"
	"github.com/crossflow/crossflow/internal/errs"
	"github.com/crossflow/crossflow/portref"
	"github.com/crossflow/crossflow/regapi"
	"github.com/crossflow/crossflow/registry"
)

// contributor walks a diagram's operations (recursively into scope/
// template-section bodies, which form a finite tree) and populates a state
// with every connection, fixed type, and constraint spec.md §4.G's
// per-operation contracts imply. The Go analogue of original_source's
// InferenceContext, simplified by processing the whole (statically finite)
// operation tree in one recursive pass instead of a growing work-list: a
// diagram's nesting of scopes and template sections cannot be cyclic
// (Diagram.Validate already rejects template reference cycles), so there is
// no need to defer newly-discovered child operations to a later round.
type contributor struct {
	st        *state
	mgr       *regapi.Manager
	reg       *registry.Registry
	templates map[string]diagram.SectionTemplate
}

func newContributor(mgr *regapi.Manager, templates map[string]diagram.SectionTemplate) *contributor {
	return &contributor{st: newState(), mgr: mgr, reg: mgr.Registry(), templates: templates}
}

func operationOf(ns portref.NamespaceList, name string) portref.OperationRef {
	return portref.OperationRef{Namespaces: ns, Operation: portref.NamedOperation(name)}
}

func outputOf(op portref.OperationRef, key portref.OutputKey) portref.OutputRef {
	return portref.OutputRef{Namespaces: op.Namespaces, Operation: op.Operation, Key: key}
}

func builtinOf(ns portref.NamespaceList, b portref.Builtin) portref.OperationRef {
	return portref.OperationRef{Namespaces: ns, Operation: portref.BuiltinOperation(b)}
}

// resolveNext converts a diagram.NextOperation, evaluated from inside the
// operation tree rooted at ns, into the OperationRef it addresses. A
// namespaced reference ("section1:input1") always lands on a plain operation
// name inside the referenced child namespace, by construction: a section's
// exposed inputs/buffers are diagram operations named identically to the
// exposed name, and a template's exposed outputs are synthetic pseudo-
// operations of that same shape (see contributeSection).
func resolveNext(ns portref.NamespaceList, next diagram.NextOperation) portref.OperationRef {
	switch next.Kind {
	case diagram.NextOperationBuiltin:
		var b portref.Builtin
		switch next.BuiltinTarget {
		case diagram.Dispose:
			b = portref.Dispose
		case diagram.Cancel:
			b = portref.Cancel
		default:
			b = portref.Terminate
		}
		return builtinOf(ns, b)
	case diagram.NextOperationNamespace:
		return operationOf(append(append(portref.NamespaceList{}, ns...), next.Namespace), next.Operation)
	default:
		return operationOf(ns, next.Name)
	}
}

// route connects from's output to whatever next addresses, and returns the
// resolved target so callers can attach type constraints to it too.
func (c *contributor) route(ns portref.NamespaceList, from portref.OutputRef, next diagram.NextOperation) portref.OperationRef {
	target := resolveNext(ns, next)
	c.st.connect(from, target)
	return target
}

// run contributes every constraint/connection for the given operation map at
// namespace ns.
func (c *contributor) run(ns portref.NamespaceList, ops map[string]*diagram.DiagramOperation) error {
	for name, op := range ops {
		if err := c.contribute(ns, operationOf(ns, name), op); err != nil {
			return err
		}
	}
	return nil
}

func (c *contributor) contribute(ns portref.NamespaceList, self portref.OperationRef, op *diagram.DiagramOperation) error {
	switch op.Kind {
	case diagram.OpNode:
		return c.contributeNode(ns, self, op.Node)
	case diagram.OpSection:
		return c.contributeSection(ns, self, op.Section)
	case diagram.OpScope:
		return c.contributeScope(ns, self, op.Scope)
	case diagram.OpStreamOut:
		return c.contributeStreamOut(ns, self, op.StreamOut)
	case diagram.OpForkClone:
		return c.contributeForkClone(ns, self, op.ForkClone)
	case diagram.OpForkResult:
		return c.contributeForkResult(ns, self, op.ForkResult)
	case diagram.OpUnzip:
		return c.contributeUnzip(ns, self, op.Unzip)
	case diagram.OpSplit:
		return c.contributeSplit(ns, self, op.Split)
	case diagram.OpBuffer:
		return c.contributeBuffer(self, op.Buffer)
	case diagram.OpJoin:
		return c.contributeJoin(ns, self, op.Join)
	case diagram.OpBufferAccess:
		return c.contributeBufferAccess(ns, self, op.BufferAccess)
	case diagram.OpListen:
		return c.contributeListen(ns, self, op.Listen)
	case diagram.OpTransform:
		return c.contributeTransform(ns, self, op.Transform)
	default:
		return errs.Errorf(errs.InvalidOperation, "unknown operation kind %q", op.Kind)
	}
}

// contributeNode fixes a node's input/output/stream types directly from its
// registered builder (spec.md §4.G "node"): no inference needed, its
// interface is declared at registration time.
func (c *contributor) contributeNode(ns portref.NamespaceList, self portref.OperationRef, schema *diagram.NodeSchema) error {
	reg, err := c.mgr.NodeBuilder(schema.Builder)
	if err != nil {
		return err
	}
	reqIdx := c.reg.GetIndexOrInsertPlaceholder(reg.Request)
	respIdx := c.reg.GetIndexOrInsertPlaceholder(reg.Response)
	c.st.fixed(InputPort(self), reqIdx)

	out := outputOf(self, portref.NextKey())
	c.st.fixed(OutputPort(out), respIdx)
	c.route(ns, out, schema.Next)

	for name, next := range schema.StreamOut {
		t, ok := reg.Streams[name]
		if !ok {
			return errs.Errorf(errs.UnknownPort, "node %q has no stream named %q", schema.Builder, name)
		}
		streamIdx := c.reg.GetIndexOrInsertPlaceholder(t)
		streamOut := outputOf(self, portref.StreamOutKey(name))
		c.st.fixed(OutputPort(streamOut), streamIdx)
		c.route(ns, streamOut, next)
	}
	return nil
}

// contributeForkClone requires every clone target's input to match the
// fork's own input (spec.md §4.G "fork_clone").
func (c *contributor) contributeForkClone(ns portref.NamespaceList, self portref.OperationRef, schema *diagram.ForkCloneSchema) error {
	targets := make([]portref.OperationRef, len(schema.Next))
	for i, next := range schema.Next {
		out := outputOf(self, portref.NextIndexKey(i))
		target := c.route(ns, out, next)
		targets[i] = target
		c.st.constrain(OutputPort(out), ExactMatch{Target: InputPort(self)})
	}
	c.st.constrain(InputPort(self), CloneInput{Operation: self, Targets: targets})
	return nil
}

// contributeForkResult splits a Result<T,E> into its branches (spec.md §4.G
// "fork_result").
func (c *contributor) contributeForkResult(ns portref.NamespaceList, self portref.OperationRef, schema *diagram.ForkResultSchema) error {
	okOut := outputOf(self, portref.OkKey())
	okTarget := c.route(ns, okOut, schema.Ok)
	c.st.constrain(OutputPort(okOut), OkFrom{From: self})

	errOut := outputOf(self, portref.ErrKey())
	errTarget := c.route(ns, errOut, schema.Err)
	c.st.constrain(OutputPort(errOut), ErrFrom{From: self})

	c.st.constrain(InputPort(self), ResultInto{Operation: self, Ok: okTarget, Err: errTarget})
	return nil
}

// contributeUnzip decomposes a tuple-like message into its ordered elements
// (spec.md §4.G "unzip").
func (c *contributor) contributeUnzip(ns portref.NamespaceList, self portref.OperationRef, schema *diagram.UnzipSchema) error {
	outs := make([]portref.OutputRef, len(schema.Next))
	for i, next := range schema.Next {
		out := outputOf(self, portref.NextIndexKey(i))
		outs[i] = out
		c.route(ns, out, next)
		c.st.constrain(OutputPort(out), UnzipOutput{Op: self, Element: i})
	}
	c.st.constrain(InputPort(self), UnzipInput{Op: self, Outputs: outs})
	return nil
}

// contributeSplit decomposes a collection-like message into sequential,
// keyed, and/or remaining streams (spec.md §4.G "split").
func (c *contributor) contributeSplit(ns portref.NamespaceList, self portref.OperationRef, schema *diagram.SplitSchema) error {
	var representative portref.OutputRef
	haveRepresentative := false
	note := func(out portref.OutputRef) {
		c.st.constrain(OutputPort(out), SplitOutput{Op: self})
		if !haveRepresentative {
			representative = out
			haveRepresentative = true
		}
	}

	for i, next := range schema.Sequential {
		out := outputOf(self, portref.SequentialKey(i))
		c.route(ns, out, next)
		note(out)
	}
	for name, next := range schema.Keyed {
		out := outputOf(self, portref.KeyedKey(name))
		c.route(ns, out, next)
		note(out)
	}
	if schema.Remaining != nil {
		out := outputOf(self, portref.RemainingKey())
		c.route(ns, out, *schema.Remaining)
		note(out)
	}
	if !haveRepresentative {
		return errs.Errorf(errs.NotSplittable, "split operation %q has no outputs", self.Operation)
	}
	jsonIdx, _ := c.reg.JSONIndex()
	c.st.constrain(InputPort(self), SplitInput{Op: self, Element: representative, JSONIndex: jsonIdx})
	return nil
}

// contributeBuffer fixes nothing on its own: a buffer's element type is
// whatever is connected into it (spec.md §4.G "buffer").
func (c *contributor) contributeBuffer(self portref.OperationRef, schema *diagram.BufferSchema) error {
	c.st.constrain(InputPort(self), BufferInput{Op: self})
	return nil
}

// bufferRefs resolves a BufferSelection into the buffer operations it names,
// alongside the member name each position/key should be addressed by when
// consulting a JoinLayout (spec.md §4.G "buffers").
func (c *contributor) bufferRefs(ns portref.NamespaceList, sel diagram.BufferSelection) (map[string]portref.OperationRef, error) {
	refs := make(map[string]portref.OperationRef)
	if sel.IsDict {
		for member, next := range sel.Dict {
			refs[member] = resolveNext(ns, next)
		}
		return refs, nil
	}
	for i, next := range sel.Array {
		refs[itoaMember(i)] = resolveNext(ns, next)
	}
	return refs, nil
}

func itoaMember(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

// contributeJoin assembles a struct-like message from a set of buffers
// (spec.md §4.G "join"). The join's own output type is inferred from
// whatever it connects into downstream (like a node's output would be, had
// its type not already been fixed); once that succeeds, each buffer gets a
// hint for what element type it is expected to hold.
func (c *contributor) contributeJoin(ns portref.NamespaceList, self portref.OperationRef, schema *diagram.JoinSchema) error {
	out := outputOf(self, portref.NextKey())
	target := resolveNext(ns, schema.Next)
	c.st.inferFromDownstream(out, target)

	if schema.Serialize {
		if jsonIdx, ok := c.reg.JSONIndex(); ok {
			c.st.fixed(OutputPort(out), jsonIdx)
		}
	}

	buffers, err := c.bufferRefs(ns, schema.Buffers)
	if err != nil {
		return err
	}
	usedBy := OutputPort(out)
	for member, buf := range buffers {
		member := member
		c.st.addBufferHint(buf, bufferHint{usedBy: usedBy, member: member, evaluate: joinMemberHint})
	}
	return nil
}

// contributeBufferAccess computes a response on demand from a request plus a
// set of buffers (spec.md §4.G "buffer_access").
func (c *contributor) contributeBufferAccess(ns portref.NamespaceList, self portref.OperationRef, schema *diagram.BufferAccessSchema) error {
	out := outputOf(self, portref.NextKey())
	target := resolveNext(ns, schema.Next)
	c.st.inferFromDownstream(out, target)
	c.st.constrain(InputPort(self), BufferAccessInput{Output: out})

	buffers, err := c.bufferRefs(ns, schema.Buffers)
	if err != nil {
		return err
	}
	usedBy := OutputPort(out)
	for member, buf := range buffers {
		member := member
		c.st.addBufferHint(buf, bufferHint{usedBy: usedBy, member: member, evaluate: bufferAccessMemberHint})
	}
	return nil
}

// contributeListen triggers whenever any of a set of buffers changes
// (spec.md §4.G "listen"); it has no input of its own.
func (c *contributor) contributeListen(ns portref.NamespaceList, self portref.OperationRef, schema *diagram.ListenSchema) error {
	out := outputOf(self, portref.NextKey())
	target := resolveNext(ns, schema.Next)
	c.st.inferFromDownstream(out, target)

	buffers, err := c.bufferRefs(ns, schema.Buffers)
	if err != nil {
		return err
	}
	usedBy := OutputPort(out)
	for member, buf := range buffers {
		member := member
		c.st.addBufferHint(buf, bufferHint{usedBy: usedBy, member: member, evaluate: listenMemberHint})
	}
	return nil
}

// contributeTransform evaluates a CEL expression against a JSON-boxed
// message: both its input and output are the canonical JSON message type
// (spec.md §4.G "transform ... operates only on JSON").
func (c *contributor) contributeTransform(ns portref.NamespaceList, self portref.OperationRef, schema *diagram.TransformSchema) error {
	jsonIdx, ok := c.reg.JSONIndex()
	if !ok {
		return errs.New(errs.CannotTransform, "no canonical JSON message type is registered")
	}
	c.st.fixed(InputPort(self), jsonIdx)
	out := outputOf(self, portref.NextKey())
	c.st.fixed(OutputPort(out), jsonIdx)
	c.route(ns, out, schema.Next)
	return nil
}

// contributeStreamOut exposes one of the enclosing scope's streams under
// name (spec.md §4.G "stream_out"): its own input type is forced to match
// the scope's synthetic per-stream boundary port, set up by
// contributeScope.
func (c *contributor) contributeStreamOut(ns portref.NamespaceList, self portref.OperationRef, schema *diagram.StreamOutSchema) error {
	streamRef := streamOutRef(ns, schema.Name)
	c.st.redirect(self, streamRef)
	return nil
}

// contributeScope builds a nested scope's internal operation tree under its
// own namespace, and ties the scope's external ports to the internal
// start/terminate/stream_out boundary (spec.md §4.G "scope").
func (c *contributor) contributeScope(ns portref.NamespaceList, self portref.OperationRef, schema *diagram.ScopeSchema) error {
	childNS := append(append(portref.NamespaceList{}, ns...), self.Operation.String())

	start := portref.Start()
	start.Namespaces = childNS
	c.st.constrain(OutputPort(start), ExactMatch{Target: InputPort(self)})
	c.st.connect(start, resolveNext(childNS, schema.Start))

	terminate := builtinOf(childNS, portref.Terminate)
	out := outputOf(self, portref.NextKey())
	c.st.constrain(OutputPort(out), ExactMatch{Target: InputPort(terminate)})
	c.route(ns, out, schema.Next)

	for name, next := range schema.StreamOut {
		streamRef := streamOutRef(childNS, name)
		streamOut := outputOf(self, portref.StreamOutKey(name))
		c.st.constrain(OutputPort(streamOut), ExactMatch{Target: InputPort(streamRef)})
		c.route(ns, streamOut, next)
	}

	return c.run(childNS, schema.Ops)
}

// contributeSection wires a section operation, either to an opaque
// registered builder (whose interface is already fully typed, needing no
// inference at all) or to a template body (whose interior ops participate
// in ordinary inference, with inputs/buffers addressed by direct name
// equality under the section's namespace and outputs redirected from a
// same-named pseudo-operation, spec.md §4.G "section").
func (c *contributor) contributeSection(ns portref.NamespaceList, self portref.OperationRef, schema *diagram.SectionSchema) error {
	switch schema.Provider.Kind {
	case diagram.SectionProviderBuilder:
		return c.contributeBuilderSection(ns, self, schema)
	default:
		return c.contributeTemplateSection(ns, self, schema)
	}
}

func (c *contributor) contributeBuilderSection(ns portref.NamespaceList, self portref.OperationRef, schema *diagram.SectionSchema) error {
	reg, err := c.mgr.SectionBuilder(schema.Provider.ID)
	if err != nil {
		return err
	}
	childNS := append(append(portref.NamespaceList{}, ns...), self.Operation.String())
	for name, t := range reg.Inputs {
		c.st.fixed(InputPort(operationOf(childNS, name)), c.reg.GetIndexOrInsertPlaceholder(t))
	}
	for name, t := range reg.Buffers {
		c.st.fixed(InputPort(operationOf(childNS, name)), c.reg.GetIndexOrInsertPlaceholder(t))
	}
	for name, t := range reg.Outputs {
		idx := c.reg.GetIndexOrInsertPlaceholder(t)
		out := outputOf(self, portref.SectionOutputKey(name))
		c.st.fixed(OutputPort(out), idx)
		if next, ok := schema.Connect[name]; ok {
			c.route(ns, out, next)
		}
	}
	return nil
}

// contributeTemplateSection expands a template body under the section's own
// namespace. Exposed inputs/buffers need no extra wiring: a reference like
// {"section1": "input1"} already resolves (via resolveNext) straight to the
// child operation literally named "input1" inside the template, so the
// template author routes to/reads them exactly like any other operation
// name. Exposed outputs are different: the template author routes a result
// to a same-named pseudo-operation (one with no entry in the template's own
// ops map), and this redirects that pseudo-operation's type to whatever the
// section's own `connect` entry names externally.
func (c *contributor) contributeTemplateSection(ns portref.NamespaceList, self portref.OperationRef, schema *diagram.SectionSchema) error {
	tmpl, ok := c.templates[schema.Provider.ID]
	if !ok {
		return errs.Errorf(errs.UnknownTemplate, "unknown template %q", schema.Provider.ID)
	}
	childNS := append(append(portref.NamespaceList{}, ns...), self.Operation.String())
	if err := c.run(childNS, tmpl.Ops); err != nil {
		return err
	}
	for _, name := range tmpl.Outputs {
		pseudo := operationOf(childNS, name)
		next, routed := schema.Connect[name]
		if !routed {
			continue
		}
		target := resolveNext(ns, next)
		c.st.redirect(pseudo, target)
	}
	return nil
}
