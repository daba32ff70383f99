package ops

import (
	"encoding/json"
	"strconv"

	"github.com/crossflow/crossflow/diagram"
	"github.com/crossflow/crossflow/internal/errs"
	"github.com/crossflow/crossflow/portref"
	"github.com/crossflow/crossflow/registry"
	"github.com/crossflow/crossflow/runtimeapi"
	"github.com/crossflow/crossflow/typeinfo"
)

// selfOutput builds the OutputRef for self's primary ("next") output, the
// port inference/contribute.go's contributeJoin/contributeBufferAccess/
// contributeListen constrained via inferFromDownstream.
func selfOutput(bc *BuildContext) portref.OutputRef {
	return portref.OutputRef{Namespaces: bc.Self.Namespaces, Operation: bc.Self.Operation, Key: portref.NextKey()}
}

// resolveBufferRefs expands a BufferSelection into an ordered list of
// (member name, target operation reference) pairs, matching
// inference/contribute.go's bufferRefs helper so build-time member naming
// agrees with the inference pass's buffer hints.
func resolveBufferRefs(ns portref.NamespaceList, sel diagram.BufferSelection) map[string]portref.OperationRef {
	out := map[string]portref.OperationRef{}
	if sel.IsDict {
		for name, next := range sel.Dict {
			out[name] = ResolveNext(ns, next)
		}
		return out
	}
	for i, next := range sel.Array {
		out[strconv.Itoa(i)] = ResolveNext(ns, next)
	}
	return out
}

// gatherBuffers resolves every member of refs to its already-allocated
// AnyBuffer handle, reporting which ones are still missing so the caller
// can defer this round rather than fail (a `buffer` operation elsewhere in
// the same round may not have built yet).
func gatherBuffers(bc *BuildContext, refs map[string]portref.OperationRef) (map[string]runtimeapi.AnyBuffer, string, bool) {
	out := make(map[string]runtimeapi.AnyBuffer, len(refs))
	for member, ref := range refs {
		h, ok := bc.Buffers.Get(ref)
		if !ok {
			return nil, "waiting for buffer " + ref.Operation.String() + " (member " + member + ")", false
		}
		out[member] = h
	}
	return out, "", true
}

// serializeOutput wraps out through idx's registered serializer into the
// canonical JSON type, the explicit analogue of the implicit serialization
// the builder's default connector would otherwise insert on type mismatch —
// needed here because the join schema's `serialize` flag asks for it
// unconditionally (spec.md §4.G "Join: ... or JSON when serialize is true,
// with implicit serialization injected on the join output").
func serializeOutput(bc *BuildContext, idx registry.Index, info typeinfo.TypeInfo, out runtimeapi.DynOutput) (runtimeapi.DynOutput, error) {
	table, err := bc.Reg.Ops(idx)
	if err != nil {
		return runtimeapi.DynOutput{}, err
	}
	if table == nil || table.Serialize == nil {
		return runtimeapi.DynOutput{}, errs.Errorf(errs.NotSerializable, "%s has no registered serializer", info.Name)
	}
	serialize := table.Serialize
	jsonIdx, ok := bc.Reg.JSONIndex()
	if !ok {
		return runtimeapi.DynOutput{}, errs.New(errs.NotSerializable, "no canonical JSON type registered")
	}
	jsonInfo, err := bc.Reg.Info(jsonIdx)
	if err != nil {
		return runtimeapi.DynOutput{}, err
	}
	dyn := bc.NSBuilder.CreateMapBlock(info, jsonInfo, func(msg any) (any, error) {
		data, err := serialize(msg)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(data), nil
	})
	if err := bc.NSBuilder.Connect(out, dyn.Input); err != nil {
		return runtimeapi.DynOutput{}, err
	}
	return dyn.Output, nil
}

// buildBuffer allocates a buffer of the inferred message type and publishes
// its handle under this operation's own reference so downstream
// join/buffer_access/listen operations can resolve it by name (spec.md
// §4.G "Buffer: declares a buffer of its inferred message type; buffer
// handle is shared by name").
func buildBuffer(bc *BuildContext, schema *diagram.BufferSchema) (Outcome, error) {
	idx, ok := bc.Result.InputType(bc.Self)
	if !ok {
		return Outcome{}, errs.Errorf(errs.CannotInferType, "buffer %s has no resolved type", bc.Self)
	}
	info, err := bc.Reg.Info(idx)
	if err != nil {
		return Outcome{}, err
	}
	slot, handle := bc.NSBuilder.CreateBuffer(info, runtimeapi.BufferSettings{Serialize: schema.Serialize})
	if err := bc.Buffers.Set(bc.Self, handle); err != nil {
		return Outcome{}, err
	}
	h := handle
	return Outcome{Finished: true, InputSlot: &slot, BufferHandle: &h}, nil
}

// buildJoin instantiates a join node once every buffer it references has a
// handle, assembling a message via the target type's registered Join
// capability (spec.md §4.G "Join").
func buildJoin(bc *BuildContext, schema *diagram.JoinSchema) (Outcome, error) {
	respIdx, ok := bc.Result.OutputType(selfOutput(bc))
	if !ok {
		return Outcome{Finished: false, Reason: "waiting for join output type"}, nil
	}
	table, err := bc.Reg.Ops(respIdx)
	if err != nil {
		return Outcome{}, err
	}
	if table == nil || table.Join == nil {
		info, _ := bc.Reg.Info(respIdx)
		return Outcome{}, errs.Errorf(errs.NotJoinable, "%s is not joinable", info.Name)
	}

	refs := resolveBufferRefs(bc.Namespace, schema.Buffers)
	if len(refs) == 0 {
		return Outcome{}, errs.New(errs.EmptyJoin, "join declares no buffers")
	}
	buffers, reason, ready := gatherBuffers(bc, refs)
	if !ready {
		return Outcome{Finished: false, Reason: reason}, nil
	}

	respInfo, err := bc.Reg.Info(respIdx)
	if err != nil {
		return Outcome{}, err
	}
	out, err := bc.NSBuilder.CreateJoin(respInfo, buffers, table.Join.Assemble)
	if err != nil {
		return Outcome{}, errs.NewWithCause(errs.SectionError, "failed to build join", err)
	}

	if schema.Serialize {
		serialized, err := serializeOutput(bc, respIdx, respInfo, out)
		if err != nil {
			return Outcome{}, err
		}
		out = serialized
	}

	return Outcome{Finished: true, Outputs: []RoutedOutput{{Target: ResolveNext(bc.Namespace, schema.Next), Out: out}}}, nil
}

// buildBufferAccess instantiates an on-demand buffer-reader node for the
// inferred request/response pair once its buffers are ready (spec.md §4.G
// "Buffer-access: use the inferred target node's required request type").
func buildBufferAccess(bc *BuildContext, schema *diagram.BufferAccessSchema) (Outcome, error) {
	reqIdx, ok := bc.Result.InputType(bc.Self)
	if !ok {
		return Outcome{Finished: false, Reason: "waiting for buffer_access request type"}, nil
	}
	respIdx, ok := bc.Result.OutputType(selfOutput(bc))
	if !ok {
		return Outcome{Finished: false, Reason: "waiting for buffer_access response type"}, nil
	}
	table, err := bc.Reg.Ops(respIdx)
	if err != nil {
		return Outcome{}, err
	}
	if table == nil || table.BufferAccess == nil {
		info, _ := bc.Reg.Info(respIdx)
		return Outcome{}, errs.Errorf(errs.CannotAccessBuffers, "%s cannot be produced by buffer_access", info.Name)
	}

	refs := resolveBufferRefs(bc.Namespace, schema.Buffers)
	buffers, reason, ready := gatherBuffers(bc, refs)
	if !ready {
		return Outcome{Finished: false, Reason: reason}, nil
	}

	reqInfo, err := bc.Reg.Info(reqIdx)
	if err != nil {
		return Outcome{}, err
	}
	respInfo, err := bc.Reg.Info(respIdx)
	if err != nil {
		return Outcome{}, err
	}
	dyn := bc.NSBuilder.CreateBufferAccess(reqInfo, respInfo, buffers, table.BufferAccess.Access)

	slot := dyn.Input
	return Outcome{Finished: true, InputSlot: &slot, Outputs: []RoutedOutput{{Target: ResolveNext(bc.Namespace, schema.Next), Out: dyn.Output}}}, nil
}

// buildListen instantiates a node re-triggered whenever any referenced
// buffer changes (spec.md §4.G "Listen").
func buildListen(bc *BuildContext, schema *diagram.ListenSchema) (Outcome, error) {
	respIdx, ok := bc.Result.OutputType(selfOutput(bc))
	if !ok {
		return Outcome{Finished: false, Reason: "waiting for listen output type"}, nil
	}
	table, err := bc.Reg.Ops(respIdx)
	if err != nil {
		return Outcome{}, err
	}
	if table == nil || table.Listen == nil {
		info, _ := bc.Reg.Info(respIdx)
		return Outcome{}, errs.Errorf(errs.CannotListen, "%s cannot be produced by listen", info.Name)
	}

	refs := resolveBufferRefs(bc.Namespace, schema.Buffers)
	buffers, reason, ready := gatherBuffers(bc, refs)
	if !ready {
		return Outcome{Finished: false, Reason: reason}, nil
	}

	respInfo, err := bc.Reg.Info(respIdx)
	if err != nil {
		return Outcome{}, err
	}
	out, err := bc.NSBuilder.CreateListen(respInfo, buffers, table.Listen.Assemble)
	if err != nil {
		return Outcome{}, errs.NewWithCause(errs.CannotListen, "failed to build listen", err)
	}

	return Outcome{Finished: true, Outputs: []RoutedOutput{{Target: ResolveNext(bc.Namespace, schema.Next), Out: out}}}, nil
}
