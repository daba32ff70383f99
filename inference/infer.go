// Package inference implements the Inference Engine (see port.go's package
// doc comment).
package inference

import (
	"fmt"

	"github.com/crossflow/crossflow/diagram"
	"github.com/crossflow/crossflow/internal/errs"
	"github.com/crossflow/crossflow/portref"
	"github.com/crossflow/crossflow/regapi"
	"github.com/crossflow/crossflow/registry"
	"github.com/crossflow/crossflow/typeinfo"
)

// Result is the outcome of a successful inference pass: every port the
// diagram touches, mapped to its resolved registry index.
type Result struct {
	types map[PortKey]registry.Index
}

// InputType returns the resolved type of op's input port.
func (r *Result) InputType(op portref.OperationRef) (registry.Index, bool) {
	idx, ok := r.types[InputPort(op)]
	return idx, ok
}

// OutputType returns the resolved type of out.
func (r *Result) OutputType(out portref.OutputRef) (registry.Index, bool) {
	idx, ok := r.types[OutputPort(out)]
	return idx, ok
}

// Infer assigns a concrete registry.Index to every input and output port
// reachable from the diagram's root scope, given the caller's declared
// request/response/stream types for that root, or reports why it could not
// (spec.md §4.E "Algorithm").
func Infer(d *diagram.Diagram, mgr *regapi.Manager, request, response typeinfo.TypeInfo, streams map[string]typeinfo.TypeInfo) (*Result, error) {
	reg := mgr.Registry()
	root := portref.NamespaceList{}

	c := newContributor(mgr, d.Templates)
	if err := c.run(root, d.Ops); err != nil {
		return nil, err
	}
	setBoundaryConditions(c.st, reg, root, d, request, response, streams)

	if err := detectCircularRedirects(c.st); err != nil {
		return nil, err
	}

	ctx := newContext(c.st, reg)
	dependents := buildDependents(c.st, ctx)
	usedByIndex := buildUsedByIndex(c.st)

	queue := newPortQueue()
	for p := range c.st.evaluations {
		queue.push(p)
	}

	notified := map[PortKey]bool{}
	portErrors := map[PortKey]error{}

	notify := func(p PortKey) {
		if notified[p] {
			return
		}
		notified[p] = true
		for _, dep := range dependents[p] {
			queue.push(dep)
		}
		for _, hint := range usedByIndex[p] {
			applyBufferHint(c.st, ctx, p, hint, queue, portErrors)
		}
	}

	for !queue.empty() {
		p := queue.pop()
		e := c.st.entry(p)
		if e.hasType {
			notify(p)
			continue
		}
		if e.constraint == nil {
			continue
		}
		idx, ok, err := e.constraint.Evaluate(ctx)
		if err != nil {
			portErrors[p] = err
			continue
		}
		if !ok {
			continue
		}
		e.hasType = true
		e.messageType = idx
		notify(p)
	}

	return finalize(c.st, portErrors)
}

// setBoundaryConditions fixes the types spec.md §4.E step 5 calls out: the
// root's implicit start output carries the caller's request type, the root's
// terminate input carries the response type, and each declared stream's
// synthetic port carries that stream's type.
func setBoundaryConditions(st *state, reg *registry.Registry, root portref.NamespaceList, d *diagram.Diagram, request, response typeinfo.TypeInfo, streams map[string]typeinfo.TypeInfo) {
	reqIdx := reg.GetIndexOrInsertPlaceholder(request)
	start := portref.Start()
	start.Namespaces = root
	st.fixed(OutputPort(start), reqIdx)
	st.connect(start, resolveNext(root, d.Start))

	respIdx := reg.GetIndexOrInsertPlaceholder(response)
	st.fixed(InputPort(builtinOf(root, portref.Terminate)), respIdx)

	for name, t := range streams {
		idx := reg.GetIndexOrInsertPlaceholder(t)
		st.fixed(InputPort(streamOutRef(root, name)), idx)
	}
}

// detectCircularRedirects walks the redirect chain rooted at every
// redirecting operation, reporting CircularRedirect if following `from ->
// into` repeatedly returns to an operation already on the current path
// (spec.md §4.E step 2).
func detectCircularRedirects(st *state) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	status := map[string]int{}
	var walk func(key string) error
	walk = func(key string) error {
		switch status[key] {
		case visiting:
			return errs.Errorf(errs.CircularRedirect, "redirect cycle detected at %q", key)
		case done:
			return nil
		}
		status[key] = visiting
		if into, ok := st.redirectedInto[key]; ok {
			if err := walk(into.Key()); err != nil {
				return err
			}
		}
		status[key] = done
		return nil
	}
	for key := range st.redirectedInto {
		if err := walk(key); err != nil {
			return err
		}
	}
	return nil
}

// buildDependents inverts every constrained port's Dependencies() into a
// forward map of "when this port resolves, re-check these" (spec.md §4.E
// step 3).
func buildDependents(st *state, ctx *Context) map[PortKey][]PortKey {
	dependents := map[PortKey][]PortKey{}
	for p, e := range st.evaluations {
		if e.constraint == nil {
			continue
		}
		for _, dep := range e.constraint.Dependencies(ctx) {
			dependents[dep] = append(dependents[dep], p)
		}
	}
	return dependents
}

type usedByHint struct {
	buffer   portref.OperationRef
	member   string
	evaluate func(ctx *Context, msgType registry.Index, member string) (registry.Index, bool, error)
}

// buildUsedByIndex inverts the per-buffer hint lists recorded during
// contribution into "when this consumer port resolves, these buffers learn
// their expected element type" (spec.md §4.E "buffer hints").
func buildUsedByIndex(st *state) map[PortKey][]usedByHint {
	out := map[PortKey][]usedByHint{}
	for _, hints := range st.bufferHints {
		for _, h := range hints {
			out[h.usedBy] = append(out[h.usedBy], usedByHint{buffer: h.buffer, member: h.member, evaluate: h.evaluate})
		}
	}
	return out
}

// applyBufferHint resolves one buffer's expected type now that usedBy (the
// join/buffer_access/listen port referencing it) has a type, fixing the
// buffer's input port or reporting InconsistentBufferHints if two hints
// disagree (spec.md §4.E "buffer hints").
func applyBufferHint(st *state, ctx *Context, usedBy PortKey, h usedByHint, queue *portQueue, portErrors map[PortKey]error) {
	usedByIdx, ok := ctx.typeOf(usedBy)
	if !ok {
		return
	}
	memberType, ok, err := h.evaluate(ctx, usedByIdx, h.member)
	bufferPort := InputPort(h.buffer)
	if err != nil {
		portErrors[bufferPort] = err
		return
	}
	if !ok {
		return
	}
	e := st.entry(bufferPort)
	if e.hasType {
		if e.messageType != memberType {
			portErrors[bufferPort] = errs.Errorf(errs.InconsistentBufferHints,
				"buffer %q is used as both type %d and type %d", h.buffer.Operation, e.messageType, memberType)
		}
		return
	}
	e.hasType = true
	e.messageType = memberType
	queue.push(bufferPort)
}

// portQueue is a FIFO queue that tracks membership so the fixed-point loop
// never enqueues a port twice while it is already pending (spec.md §9
// "queue with membership tracking").
type portQueue struct {
	items   []PortKey
	pending map[PortKey]bool
}

func newPortQueue() *portQueue {
	return &portQueue{pending: map[PortKey]bool{}}
}

func (q *portQueue) push(p PortKey) {
	if q.pending[p] {
		return
	}
	q.pending[p] = true
	q.items = append(q.items, p)
}

func (q *portQueue) pop() PortKey {
	p := q.items[0]
	q.items = q.items[1:]
	delete(q.pending, p)
	return p
}

func (q *portQueue) empty() bool { return len(q.items) == 0 }

// finalize collects every port lacking a resolved type (or carrying a
// recorded evaluation error) into a single aggregate failure, matching
// spec.md §4.E step 7 / §6 MessageTypeInferenceFailure.
func finalize(st *state, portErrors map[PortKey]error) (*Result, error) {
	types := make(map[PortKey]registry.Index, len(st.evaluations))
	failures := map[string]any{}
	for p, e := range st.evaluations {
		if e.hasType {
			types[p] = e.messageType
			continue
		}
		if err, ok := portErrors[p]; ok {
			failures[string(p)] = err.Error()
			continue
		}
		failures[string(p)] = "could not be inferred"
	}
	if len(failures) > 0 {
		return nil, errs.New(errs.MessageTypeInferenceFailure,
			fmt.Sprintf("failed to infer the message type of %d port(s)", len(failures))).
			WithDetails(map[string]any{"ports": failures})
	}
	return &Result{types: types}, nil
}
