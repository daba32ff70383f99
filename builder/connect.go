package builder

import (
	"context"
	"encoding/json"

	"github.com/crossflow/crossflow/internal/errs"
	"github.com/crossflow/crossflow/messages"
	"github.com/crossflow/crossflow/ops"
	"github.com/crossflow/crossflow/portref"
	"github.com/crossflow/crossflow/registry"
	"github.com/crossflow/crossflow/runtimeapi"
)

// adapterKey identifies one (target, incoming-type) pair so the implicit
// adapter built for it is reused by every later output of the same type
// routed at the same target (spec.md §4.F "Implicit-adapter invariants: for
// a given target and a given incoming type, at most one adapter node is
// instantiated").
type adapterKey struct {
	target string
	src    registry.Index
}

// connectInto implements spec.md §4.F's default ConnectIntoTarget:
// (a) exact type match connects directly; (b) a JSON-typed slot gets an
// implicit serializer; (c) a JSON-typed output into a deserializable slot
// gets an implicit deserializer; (d) otherwise a registered from_impls (or
// fallible try_from_impls, wired with an internal fork_result whose error
// branch is re-queued at the scope's on_implicit_error target) conversion
// node is inserted. The `cancel` builtin target is handled separately by
// connectIntoCancel, and `dispose` is discarded by the caller before this is
// ever reached.
func (rl *roundLoop) connectInto(ctx context.Context, target portref.OperationRef, slot runtimeapi.DynInputSlot, out runtimeapi.DynOutput) error {
	b := rl.builderFor(target.Namespaces)

	if target.Operation.Builtin == portref.Cancel {
		return rl.connectIntoCancel(b, target, slot, out)
	}

	if out.Type.Equal(slot.Type) {
		return b.Connect(out, slot)
	}

	srcIdx, srcOK := rl.reg.GetIndex(out.Type)
	if !srcOK {
		return errs.Errorf(errs.TypeMismatch, "%s: output of unregistered type %q cannot be connected into %q", target.String(), out.Type.String(), slot.Type.String())
	}
	dstIdx, dstOK := rl.reg.GetIndex(slot.Type)
	if !dstOK {
		return errs.Errorf(errs.TypeMismatch, "%s: target slot type %q is not registered", target.String(), slot.Type.String())
	}

	key := adapterKey{target: target.Key(), src: srcIdx}
	if adapterSlot, ok := rl.adapters[key]; ok {
		return b.Connect(out, adapterSlot)
	}

	jsonIdx, hasJSON := rl.reg.JSONIndex()

	if hasJSON && dstIdx == jsonIdx {
		adapterSlot, err := rl.insertSerialize(b, target, slot, out, srcIdx)
		if err != nil {
			return err
		}
		rl.adapters[key] = adapterSlot
		return nil
	}

	dstTable, err := rl.reg.Ops(dstIdx)
	if err != nil {
		return err
	}

	if hasJSON && srcIdx == jsonIdx && dstTable != nil && dstTable.Deserialize != nil {
		adapterSlot, err := rl.insertDeserialize(b, target, slot, out, dstIdx, dstTable)
		if err != nil {
			return err
		}
		rl.adapters[key] = adapterSlot
		return nil
	}

	if dstTable != nil {
		if ctor, ok := dstTable.FromImpls[srcIdx]; ok {
			adapterSlot, err := rl.insertConversion(b, target, slot, out, ctor)
			if err != nil {
				return err
			}
			rl.adapters[key] = adapterSlot
			return nil
		}
		if ctor, ok := dstTable.TryFromImpls[srcIdx]; ok {
			adapterSlot, err := rl.insertTryConversion(b, target, slot, out, ctor)
			if err != nil {
				return err
			}
			rl.adapters[key] = adapterSlot
			return nil
		}
	}

	return errs.Errorf(errs.TypeMismatch, "no implicit adapter from %q to %q at %s", out.Type.String(), slot.Type.String(), target.String())
}

// insertSerialize builds and wires the JSON adapter node spec.md §4.F (a)
// describes, returning its input slot so later same-type outputs reuse it.
func (rl *roundLoop) insertSerialize(b runtimeapi.Builder, target portref.OperationRef, slot runtimeapi.DynInputSlot, out runtimeapi.DynOutput, srcIdx registry.Index) (runtimeapi.DynInputSlot, error) {
	srcInfo, err := rl.reg.Info(srcIdx)
	if err != nil {
		return runtimeapi.DynInputSlot{}, err
	}
	srcTable, err := rl.reg.Ops(srcIdx)
	if err != nil {
		return runtimeapi.DynInputSlot{}, err
	}
	if srcTable == nil || srcTable.Serialize == nil {
		return runtimeapi.DynInputSlot{}, errs.Errorf(errs.NotSerializable, "%s: %s has no registered serializer", target.String(), srcInfo.Name)
	}
	serialize := srcTable.Serialize

	node := b.CreateMapBlock(srcInfo, slot.Type, func(msg any) (any, error) {
		data, err := serialize(msg)
		if err != nil {
			return nil, err
		}
		return messages.JSON(data), nil
	})
	if err := b.Connect(out, node.Input); err != nil {
		return runtimeapi.DynInputSlot{}, err
	}
	if err := b.Connect(node.Output, slot); err != nil {
		return runtimeapi.DynInputSlot{}, err
	}
	return node.Input, nil
}

// insertDeserialize builds and wires the JSON-decoding adapter node spec.md
// §4.F (b) describes.
func (rl *roundLoop) insertDeserialize(b runtimeapi.Builder, target portref.OperationRef, slot runtimeapi.DynInputSlot, out runtimeapi.DynOutput, dstIdx registry.Index, dstTable *registry.OperationsTable) (runtimeapi.DynInputSlot, error) {
	deserialize := dstTable.Deserialize

	node := b.CreateMapBlock(out.Type, slot.Type, func(msg any) (any, error) {
		doc, ok := msg.(messages.JSON)
		if !ok {
			return nil, errs.Errorf(errs.NotDeserializable, "%s: expected canonical JSON, got %T", target.String(), msg)
		}
		return deserialize(doc)
	})
	if err := b.Connect(out, node.Input); err != nil {
		return runtimeapi.DynInputSlot{}, err
	}
	if err := b.Connect(node.Output, slot); err != nil {
		return runtimeapi.DynInputSlot{}, err
	}
	return node.Input, nil
}

// insertConversion wires a registered from_impls conversion node, spec.md
// §4.F (c).
func (rl *roundLoop) insertConversion(b runtimeapi.Builder, target portref.OperationRef, slot runtimeapi.DynInputSlot, out runtimeapi.DynOutput, ctor registry.ConversionCtor) (runtimeapi.DynInputSlot, error) {
	node := ctor(b)
	if err := b.Connect(out, node.Input); err != nil {
		return runtimeapi.DynInputSlot{}, err
	}
	if err := b.Connect(node.Output, slot); err != nil {
		return runtimeapi.DynInputSlot{}, err
	}
	return node.Input, nil
}

// insertTryConversion wires a registered try_from_impls conversion, forking
// its Result output into the ok branch (connected straight into slot) and
// the err branch (re-queued at the enclosing scope's on_implicit_error
// target, spec.md §4.A "Registering a try-conversion additionally inserts an
// internal fork-result wiring"; §4.F "Adapter error branches always route to
// the scope's on_implicit_error target").
func (rl *roundLoop) insertTryConversion(b runtimeapi.Builder, target portref.OperationRef, slot runtimeapi.DynInputSlot, out runtimeapi.DynOutput, ctor registry.TryConversionCtor) (runtimeapi.DynInputSlot, error) {
	node := ctor(b)

	resultIdx, ok := rl.reg.GetIndex(node.Output.Type)
	if !ok {
		return runtimeapi.DynInputSlot{}, errs.Errorf(errs.CannotForkResult, "%s: try-conversion produced an unregistered result type", target.String())
	}
	resultTable, err := rl.reg.Ops(resultIdx)
	if err != nil {
		return runtimeapi.DynInputSlot{}, err
	}
	if resultTable == nil || resultTable.ForkResult == nil {
		return runtimeapi.DynInputSlot{}, errs.Errorf(errs.CannotForkResult, "%s: try-conversion result type is not fork-result-capable", target.String())
	}

	okInfo, err := rl.reg.Info(resultTable.ForkResult.Ok)
	if err != nil {
		return runtimeapi.DynInputSlot{}, err
	}
	errInfo, err := rl.reg.Info(resultTable.ForkResult.Err)
	if err != nil {
		return runtimeapi.DynInputSlot{}, err
	}

	forkSlot, okOut, errOut := b.CreateForkResult(okInfo, errInfo)
	if err := b.Connect(out, node.Input); err != nil {
		return runtimeapi.DynInputSlot{}, err
	}
	if err := b.Connect(node.Output, forkSlot); err != nil {
		return runtimeapi.DynInputSlot{}, err
	}
	if err := b.Connect(okOut, slot); err != nil {
		return runtimeapi.DynInputSlot{}, err
	}

	onImplicit := rl.onImplicitFor(target.Namespaces)
	rl.queue = append(rl.queue, ops.RoutedOutput{Target: onImplicit, Out: errOut})

	return node.Input, nil
}

// connectIntoCancel implements spec.md §4.F's cancel-builtin connector
// override: try to_string, then serialize, then trigger (connect into the
// scope's cancel slot), reusing one adapter node per incoming type the same
// way the default connector does.
func (rl *roundLoop) connectIntoCancel(b runtimeapi.Builder, target portref.OperationRef, slot runtimeapi.DynInputSlot, out runtimeapi.DynOutput) error {
	if out.Type.Equal(slot.Type) {
		return b.Connect(out, slot)
	}

	srcIdx, ok := rl.reg.GetIndex(out.Type)
	if !ok {
		return errs.Errorf(errs.TypeMismatch, "%s: output of unregistered type %q cannot be cancelled with", target.String(), out.Type.String())
	}

	key := adapterKey{target: target.Key(), src: srcIdx}
	if adapterSlot, ok := rl.adapters[key]; ok {
		return b.Connect(out, adapterSlot)
	}

	srcInfo, err := rl.reg.Info(srcIdx)
	if err != nil {
		return err
	}
	srcTable, err := rl.reg.Ops(srcIdx)
	if err != nil {
		return err
	}

	var node runtimeapi.DynNode
	switch {
	case srcTable != nil && srcTable.ToString != nil:
		toString := srcTable.ToString
		node = b.CreateMapBlock(srcInfo, slot.Type, func(msg any) (any, error) {
			s, err := toString(msg)
			if err != nil {
				return nil, err
			}
			data, err := json.Marshal(s)
			if err != nil {
				return nil, err
			}
			return messages.JSON(data), nil
		})
	case srcTable != nil && srcTable.Serialize != nil:
		serialize := srcTable.Serialize
		node = b.CreateMapBlock(srcInfo, slot.Type, func(msg any) (any, error) {
			data, err := serialize(msg)
			if err != nil {
				return nil, err
			}
			return messages.JSON(data), nil
		})
	case srcTable != nil && srcTable.CreateTrigger != nil:
		node = srcTable.CreateTrigger(b)
	default:
		return errs.Errorf(errs.CannotBoxOrUnbox, "%s: %s has no to_string, serialize or trigger for cancellation", target.String(), srcInfo.Name)
	}

	if err := b.Connect(out, node.Input); err != nil {
		return err
	}
	if err := b.Connect(node.Output, slot); err != nil {
		return err
	}
	rl.adapters[key] = node.Input
	return nil
}
