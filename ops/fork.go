package ops

import (
	"github.com/crossflow/crossflow/diagram"
	"github.com/crossflow/crossflow/internal/errs"
)

// buildForkClone instantiates a fork-clone sub-graph for the inferred input
// type and publishes one output per target (spec.md §4.G "Fork-clone:
// ... require cloneability. Build: instantiate a fork-clone sub-graph for
// the inferred type; publish N outputs").
func buildForkClone(bc *BuildContext, schema *diagram.ForkCloneSchema) (Outcome, error) {
	idx, ok := bc.Result.InputType(bc.Self)
	if !ok {
		return Outcome{}, errs.Errorf(errs.CannotInferType, "fork_clone %s has no resolved input type", bc.Self)
	}
	info, err := bc.Reg.Info(idx)
	if err != nil {
		return Outcome{}, err
	}
	table, err := bc.Reg.Ops(idx)
	if err != nil {
		return Outcome{}, err
	}
	if table == nil || table.ForkClone == nil {
		return Outcome{}, errs.Errorf(errs.NotCloneable, "%s is not cloneable", info.Name)
	}

	slot, outs := bc.NSBuilder.CreateForkClone(info, len(schema.Next))
	if len(outs) != len(schema.Next) {
		return Outcome{}, errs.Errorf(errs.SectionError, "fork_clone runtime returned %d outputs, expected %d", len(outs), len(schema.Next))
	}

	routed := make([]RoutedOutput, 0, len(schema.Next))
	for i, next := range schema.Next {
		routed = append(routed, RoutedOutput{Target: ResolveNext(bc.Namespace, next), Out: outs[i]})
	}
	return Outcome{Finished: true, InputSlot: &slot, Outputs: routed}, nil
}

// buildForkResult instantiates a fork-result node for the inferred Result
// type and publishes its ok/err outputs (spec.md §4.G "Fork-result: ...
// Build: instantiate a fork-result; publish ok and err outputs").
func buildForkResult(bc *BuildContext, schema *diagram.ForkResultSchema) (Outcome, error) {
	idx, ok := bc.Result.InputType(bc.Self)
	if !ok {
		return Outcome{}, errs.Errorf(errs.CannotInferType, "fork_result %s has no resolved input type", bc.Self)
	}
	table, err := bc.Reg.Ops(idx)
	if err != nil {
		return Outcome{}, err
	}
	if table == nil || table.ForkResult == nil {
		info, _ := bc.Reg.Info(idx)
		return Outcome{}, errs.Errorf(errs.CannotForkResult, "%s is not a Result type", info.Name)
	}

	okInfo, err := bc.Reg.Info(table.ForkResult.Ok)
	if err != nil {
		return Outcome{}, err
	}
	errInfo, err := bc.Reg.Info(table.ForkResult.Err)
	if err != nil {
		return Outcome{}, err
	}

	slot, okOut, errOut := bc.NSBuilder.CreateForkResult(okInfo, errInfo)
	outputs := []RoutedOutput{
		{Target: ResolveNext(bc.Namespace, schema.Ok), Out: okOut},
		{Target: ResolveNext(bc.Namespace, schema.Err), Out: errOut},
	}
	return Outcome{Finished: true, InputSlot: &slot, Outputs: outputs}, nil
}
