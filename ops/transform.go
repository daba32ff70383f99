package ops

import (
	"github.com/crossflow/crossflow/diagram"
	"github.com/crossflow/crossflow/internal/errs"
	"github.com/crossflow/crossflow/messages"
)

// buildTransform instantiates a CEL-evaluating map node, operating purely on
// the canonical JSON message (spec.md §4.G "transform: evaluates a CEL
// expression against a JSON-boxed message; input and output are both the
// canonical JSON type"). A failed evaluation reports a messages.TransformError
// rather than panicking, routed by the caller's implicit-adapter-error
// handling like any other adapter failure.
func buildTransform(bc *BuildContext, schema *diagram.TransformSchema) (Outcome, error) {
	jsonIdx, ok := bc.Reg.JSONIndex()
	if !ok {
		return Outcome{}, errs.New(errs.NotSerializable, "no canonical JSON type registered")
	}
	jsonInfo, err := bc.Reg.Info(jsonIdx)
	if err != nil {
		return Outcome{}, err
	}
	expr := schema.CEL
	dyn := bc.NSBuilder.CreateMapBlock(jsonInfo, jsonInfo, func(msg any) (any, error) {
		doc, ok := msg.(messages.JSON)
		if !ok {
			return nil, errs.Errorf(errs.InvalidOperation, "transform received non-JSON message %T", msg)
		}
		out, err := bc.Transform.Eval(expr, doc)
		if err != nil {
			return nil, messages.TransformError{Op: expr, Reason: err.Error()}
		}
		return out, nil
	})

	slot := dyn.Input
	return Outcome{
		Finished:  true,
		InputSlot: &slot,
		Outputs:   []RoutedOutput{{Target: ResolveNext(bc.Namespace, schema.Next), Out: dyn.Output}},
	}, nil
}
