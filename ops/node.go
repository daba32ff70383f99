package ops

import (
	"github.com/crossflow/crossflow/diagram"
	"github.com/crossflow/crossflow/internal/errs"
)

// buildNode instantiates a registered node builder and routes its primary
// and stream outputs (spec.md §4.G "Node: ... Build: invoke the builder
// closure with the deserialized config; wire its input/outputs/streams").
func buildNode(bc *BuildContext, schema *diagram.NodeSchema) (Outcome, error) {
	reg, err := bc.Mgr.NodeBuilder(schema.Builder)
	if err != nil {
		return Outcome{}, err
	}

	var config any
	if len(schema.Config) > 0 {
		config = schema.Config
	}
	dyn, err := reg.Builder(bc.NSBuilder, config)
	if err != nil {
		return Outcome{}, errs.NewWithCause(errs.ConfigError, "node builder \""+schema.Builder+"\" failed", err)
	}

	outputs := []RoutedOutput{{Target: ResolveNext(bc.Namespace, schema.Next), Out: dyn.Output}}
	for name, next := range schema.StreamOut {
		stream, ok := dyn.Streams[name]
		if !ok {
			return Outcome{}, errs.Errorf(errs.UnknownPort, "node %q declared no stream %q", schema.Builder, name)
		}
		outputs = append(outputs, RoutedOutput{Target: ResolveNext(bc.Namespace, next), Out: stream})
	}

	slot := dyn.Input
	return Outcome{Finished: true, InputSlot: &slot, Outputs: outputs}, nil
}
