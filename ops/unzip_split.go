package ops

import (
	"sort"

	"github.com/crossflow/crossflow/diagram"
	"github.com/crossflow/crossflow/internal/errs"
	"github.com/crossflow/crossflow/typeinfo"
)

// buildUnzip instantiates a tuple-decomposition node and publishes one
// output per element, in order (spec.md §4.G "Unzip: input is a tuple type;
// outputs are its element types in order").
func buildUnzip(bc *BuildContext, schema *diagram.UnzipSchema) (Outcome, error) {
	idx, ok := bc.Result.InputType(bc.Self)
	if !ok {
		return Outcome{}, errs.Errorf(errs.CannotInferType, "unzip %s has no resolved input type", bc.Self)
	}
	table, err := bc.Reg.Ops(idx)
	if err != nil {
		return Outcome{}, err
	}
	if table == nil || table.Unzip == nil {
		info, _ := bc.Reg.Info(idx)
		return Outcome{}, errs.Errorf(errs.NotUnzippable, "%s is not unzippable", info.Name)
	}
	if len(table.Unzip.Elements) != len(schema.Next) {
		return Outcome{}, errs.Errorf(errs.InvalidUnzip, "unzip has %d declared targets but the tuple type has %d elements", len(schema.Next), len(table.Unzip.Elements))
	}

	info, err := bc.Reg.Info(idx)
	if err != nil {
		return Outcome{}, err
	}
	elementTypes := make([]typeinfo.TypeInfo, len(table.Unzip.Elements))
	for i, eIdx := range table.Unzip.Elements {
		eInfo, err := bc.Reg.Info(eIdx)
		if err != nil {
			return Outcome{}, err
		}
		elementTypes[i] = eInfo
	}

	slot, outs := bc.NSBuilder.CreateUnzip(info, elementTypes, table.Unzip.Split)
	if len(outs) != len(schema.Next) {
		return Outcome{}, errs.Errorf(errs.InvalidUnzip, "unzip runtime returned %d outputs, expected %d", len(outs), len(schema.Next))
	}

	routed := make([]RoutedOutput, 0, len(schema.Next))
	for i, next := range schema.Next {
		routed = append(routed, RoutedOutput{Target: ResolveNext(bc.Namespace, next), Out: outs[i]})
	}
	return Outcome{Finished: true, InputSlot: &slot, Outputs: routed}, nil
}

// buildSplit instantiates a collection-decomposition node and publishes the
// sequential, keyed, and remaining outputs the diagram declared (spec.md
// §4.G "Split: input is a splittable type (or JSON by promotion); outputs
// carry the element type; three channels: indexed sequential, keyed,
// remaining").
func buildSplit(bc *BuildContext, schema *diagram.SplitSchema) (Outcome, error) {
	idx, ok := bc.Result.InputType(bc.Self)
	if !ok {
		return Outcome{}, errs.Errorf(errs.CannotInferType, "split %s has no resolved input type", bc.Self)
	}
	table, err := bc.Reg.Ops(idx)
	if err != nil {
		return Outcome{}, err
	}
	if table == nil || table.Split == nil {
		info, _ := bc.Reg.Info(idx)
		return Outcome{}, errs.Errorf(errs.NotSplittable, "%s is not splittable", info.Name)
	}
	info, err := bc.Reg.Info(idx)
	if err != nil {
		return Outcome{}, err
	}
	elementInfo, err := bc.Reg.Info(table.Split.Element)
	if err != nil {
		return Outcome{}, err
	}

	keys := make([]string, 0, len(schema.Keyed))
	for k := range schema.Keyed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	slot, sequential, keyed, remaining := bc.NSBuilder.CreateSplit(
		info, elementInfo, len(schema.Sequential), keys, schema.Remaining != nil, table.Split.Split)

	if len(sequential) != len(schema.Sequential) {
		return Outcome{}, errs.Errorf(errs.InvalidOperation, "split runtime returned %d sequential outputs, expected %d", len(sequential), len(schema.Sequential))
	}

	var routed []RoutedOutput
	for i, next := range schema.Sequential {
		routed = append(routed, RoutedOutput{Target: ResolveNext(bc.Namespace, next), Out: sequential[i]})
	}
	for _, k := range keys {
		out, ok := keyed[k]
		if !ok {
			return Outcome{}, errs.Errorf(errs.InvalidOperation, "split runtime produced no output for key %q", k)
		}
		routed = append(routed, RoutedOutput{Target: ResolveNext(bc.Namespace, schema.Keyed[k]), Out: out})
	}
	if schema.Remaining != nil {
		if remaining == nil {
			return Outcome{}, errs.New(errs.InvalidOperation, "split runtime produced no remaining output")
		}
		routed = append(routed, RoutedOutput{Target: ResolveNext(bc.Namespace, *schema.Remaining), Out: *remaining})
	}

	return Outcome{Finished: true, InputSlot: &slot, Outputs: routed}, nil
}
