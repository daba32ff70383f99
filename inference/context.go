package inference

import (
	"github.com/crossflow/crossflow/internal/errs"
	"github.com/crossflow/crossflow/portref"
	"github.com/crossflow/crossflow/registry"
)

// Context is the read-only view a Constraint evaluates against: the
// in-progress inference state plus the type registry backing the reverse
// lookups (ResultIndex/UnzipIndex/SplitSources) and operations tables the
// constraints above consult. The Go analogue of original_source's
// ConstraintContext.
type Context struct {
	st  *state
	reg *registry.Registry
}

func newContext(st *state, reg *registry.Registry) *Context {
	return &Context{st: st, reg: reg}
}

// typeOf returns the type already resolved for port, if any.
func (ctx *Context) typeOf(port PortKey) (registry.Index, bool) {
	e, ok := ctx.st.evaluations[port]
	if !ok || !e.hasType {
		return registry.Invalid, false
	}
	return e.messageType, true
}

// connectionsInto returns every output connected into op's input.
func (ctx *Context) connectionsInto(op portref.OperationRef) []portref.OutputRef {
	return ctx.st.connectionsInto[op.Key()]
}

// redirectedInto returns the operation from's input is redirected into, if
// any.
func (ctx *Context) redirectedInto(from portref.OperationRef) (portref.OperationRef, bool) {
	into, ok := ctx.st.redirectedInto[from.Key()]
	return into, ok
}

// memberTypeFromLayout resolves what element type a named buffer member is
// expected to carry under layout: a static layout pins every member to a
// declared type; a dynamic layout imposes no constraint of its own (ok=false
// with no error - any type is acceptable, the layout just records that the
// member exists).
func memberTypeFromLayout(layout registry.JoinLayout, member string) (registry.Index, bool, error) {
	if layout.Dynamic {
		return registry.Invalid, false, nil
	}
	idx, ok := layout.Static[member]
	if !ok {
		return registry.Invalid, false, errs.Errorf(errs.UnknownJoinField, "no buffer member named %q", member)
	}
	return idx, true, nil
}

// joinMemberHint is the bufferHint.evaluate function for a join operation:
// once the join's own output type is known, it pins member to that type's
// declared Join.Layout entry.
func joinMemberHint(ctx *Context, msgType registry.Index, member string) (registry.Index, bool, error) {
	ops, err := ctx.reg.Ops(msgType)
	if err != nil {
		return registry.Invalid, false, err
	}
	if ops == nil || ops.Join == nil {
		return registry.Invalid, false, errs.Errorf(errs.NotJoinable, "type %d cannot be joined", msgType)
	}
	return memberTypeFromLayout(ops.Join.Layout, member)
}

// bufferAccessMemberHint is joinMemberHint's analogue for buffer_access.
func bufferAccessMemberHint(ctx *Context, msgType registry.Index, member string) (registry.Index, bool, error) {
	ops, err := ctx.reg.Ops(msgType)
	if err != nil {
		return registry.Invalid, false, err
	}
	if ops == nil || ops.BufferAccess == nil {
		return registry.Invalid, false, errs.Errorf(errs.CannotAccessBuffers, "type %d is not a buffer_access response", msgType)
	}
	return memberTypeFromLayout(ops.BufferAccess.Layout, member)
}

// listenMemberHint is joinMemberHint's analogue for listen.
func listenMemberHint(ctx *Context, msgType registry.Index, member string) (registry.Index, bool, error) {
	ops, err := ctx.reg.Ops(msgType)
	if err != nil {
		return registry.Invalid, false, err
	}
	if ops == nil || ops.Listen == nil {
		return registry.Invalid, false, errs.Errorf(errs.CannotListen, "type %d cannot be listened to", msgType)
	}
	return memberTypeFromLayout(ops.Listen.Layout, member)
}
