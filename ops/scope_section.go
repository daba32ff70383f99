package ops

import (
	"github.com/crossflow/crossflow/diagram"
	"github.com/crossflow/crossflow/internal/errs"
	"github.com/crossflow/crossflow/portref"
	"github.com/crossflow/crossflow/runtimeapi"
	"github.com/crossflow/crossflow/typeinfo"
)

// onImplicitFor resolves the on_implicit_error target children of ns should
// route adapter failures to: the scope's own override if it declares one,
// otherwise whatever the enclosing context already resolved (spec.md §4.F
// "on_implicit_error is inherited by nested scopes unless overridden").
func onImplicitFor(bc *BuildContext, ns portref.NamespaceList, override *diagram.NextOperation) portref.OperationRef {
	if override != nil {
		return ResolveNext(ns, *override)
	}
	return bc.OnImplicit
}

// buildStreamOut exposes one of the enclosing scope's streams under name by
// returning its concrete input slot; inference has already redirected this
// operation's own port to the scope's per-stream boundary port, so no output
// routing of its own is needed (spec.md §4.G "stream_out").
func buildStreamOut(bc *BuildContext, schema *diagram.StreamOutSchema) (Outcome, error) {
	slot := bc.NSBuilder.StreamOut(schema.Name)
	return Outcome{Finished: true, InputSlot: &slot}, nil
}

// buildScope instantiates a nested scope boundary and registers its internal
// operation tree as children under the scope's own namespace, wiring the
// scope's start/response/stream boundary ports exactly as
// inference/contribute.go's contributeScope constrained them (spec.md §4.G
// "scope").
func buildScope(bc *BuildContext, schema *diagram.ScopeSchema) (Outcome, error) {
	reqIdx, ok := bc.Result.InputType(bc.Self)
	if !ok {
		return Outcome{Finished: false, Reason: "waiting for scope request type"}, nil
	}
	respIdx, ok := bc.Result.OutputType(selfOutput(bc))
	if !ok {
		return Outcome{Finished: false, Reason: "waiting for scope response type"}, nil
	}
	reqInfo, err := bc.Reg.Info(reqIdx)
	if err != nil {
		return Outcome{}, err
	}
	respInfo, err := bc.Reg.Info(respIdx)
	if err != nil {
		return Outcome{}, err
	}

	childSegment := bc.Self.Operation.String()
	childNS := append(append(portref.NamespaceList{}, bc.Namespace...), childSegment)

	streamTypes := make(map[string]typeinfo.TypeInfo, len(schema.StreamOut))
	for name := range schema.StreamOut {
		idx, ok := bc.Result.OutputType(portref.OutputRef{Namespaces: bc.Self.Namespaces, Operation: bc.Self.Operation, Key: portref.StreamOutKey(name)})
		if !ok {
			return Outcome{Finished: false, Reason: "waiting for scope stream " + name + " type"}, nil
		}
		info, err := bc.Reg.Info(idx)
		if err != nil {
			return Outcome{}, err
		}
		streamTypes[name] = info
	}

	handle := bc.NSBuilder.CreateScope(runtimeapi.ScopeBoundary{Request: reqInfo, Response: respInfo, Streams: streamTypes})
	childBuilder := bc.NSBuilder.InNamespace(childSegment)

	children := make(map[string]PendingOp, len(schema.Ops))
	childOnImplicit := onImplicitFor(bc, childNS, schema.OnImplicitError)
	for name, op := range schema.Ops {
		children[name] = PendingOp{
			Ref:        portref.OperationRef{Namespaces: childNS, Operation: portref.NamedOperation(name)},
			NS:         childNS,
			Op:         op,
			Parent:     childBuilder,
			OnImplicit: childOnImplicit,
		}
	}

	outputs := []RoutedOutput{
		{Target: ResolveNext(childNS, schema.Start), Out: handle.Start},
		{Target: ResolveNext(bc.Namespace, schema.Next), Out: handle.Output},
	}
	for name, next := range schema.StreamOut {
		out, ok := handle.Streams[name]
		if !ok {
			return Outcome{}, errs.Errorf(errs.UnknownPort, "scope %s did not expose stream %q", bc.Self, name)
		}
		outputs = append(outputs, RoutedOutput{Target: ResolveNext(bc.Namespace, next), Out: out})
	}

	slot := handle.Input
	return Outcome{Finished: true, InputSlot: &slot, Outputs: outputs, Children: children}, nil
}

// buildSection dispatches to the builder- or template-provided section build,
// mirroring inference/contribute.go's contributeSection split.
func buildSection(bc *BuildContext, schema *diagram.SectionSchema) (Outcome, error) {
	switch schema.Provider.Kind {
	case diagram.SectionProviderBuilder:
		return buildBuilderSection(bc, schema)
	default:
		return buildTemplateSection(bc, schema)
	}
}

// buildBuilderSection invokes a registered section builder and exposes its
// named inputs/buffers as auxiliary, already-finished ports under the
// section's own namespace, and its named outputs routed per schema.Connect
// (spec.md §4.G "section", contributeBuilderSection).
func buildBuilderSection(bc *BuildContext, schema *diagram.SectionSchema) (Outcome, error) {
	reg, err := bc.Mgr.SectionBuilder(schema.Provider.ID)
	if err != nil {
		return Outcome{}, err
	}
	childSegment := bc.Self.Operation.String()
	childNS := append(append(portref.NamespaceList{}, bc.Namespace...), childSegment)
	childBuilder := bc.NSBuilder.InNamespace(childSegment)

	iface, err := reg.Builder(childBuilder, nil)
	if err != nil {
		return Outcome{}, errs.NewWithCause(errs.SectionError, "section builder \""+schema.Provider.ID+"\" failed", err)
	}

	var aux []AuxInput
	for name, slot := range iface.Inputs {
		aux = append(aux, AuxInput{Ref: portref.OperationRef{Namespaces: childNS, Operation: portref.NamedOperation(name)}, Slot: slot})
	}
	for name, buf := range iface.Buffers {
		ref := portref.OperationRef{Namespaces: childNS, Operation: portref.NamedOperation(name)}
		if err := bc.Buffers.Set(ref, buf); err != nil {
			return Outcome{}, err
		}
	}

	var outputs []RoutedOutput
	for name, out := range iface.Outputs {
		if next, routed := schema.Connect[name]; routed {
			outputs = append(outputs, RoutedOutput{Target: ResolveNext(bc.Namespace, next), Out: out})
		}
	}

	return Outcome{Finished: true, Outputs: outputs, AuxInputs: aux}, nil
}

// buildTemplateSection expands a named template body under the section's own
// namespace, leaving its exposed inputs/buffers to be addressed by direct
// name equality (no wiring needed: ResolveNext already routes straight to
// the same-named child op) and redirecting its exposed outputs to
// schema.Connect's target (spec.md §4.G "section", contributeTemplateSection).
func buildTemplateSection(bc *BuildContext, schema *diagram.SectionSchema) (Outcome, error) {
	tmpl, ok := bc.Diagram.Templates[schema.Provider.ID]
	if !ok {
		return Outcome{}, errs.Errorf(errs.UnknownTemplate, "unknown template %q", schema.Provider.ID)
	}
	childSegment := bc.Self.Operation.String()
	childNS := append(append(portref.NamespaceList{}, bc.Namespace...), childSegment)
	childBuilder := bc.NSBuilder.InNamespace(childSegment)

	children := make(map[string]PendingOp, len(tmpl.Ops))
	for name, op := range tmpl.Ops {
		children[name] = PendingOp{
			Ref:        portref.OperationRef{Namespaces: childNS, Operation: portref.NamedOperation(name)},
			NS:         childNS,
			Op:         op,
			Parent:     childBuilder,
			OnImplicit: bc.OnImplicit,
		}
	}

	var redirects []Redirect
	for _, name := range tmpl.Outputs {
		next, routed := schema.Connect[name]
		if !routed {
			continue
		}
		pseudo := portref.OperationRef{Namespaces: childNS, Operation: portref.NamedOperation(name)}
		redirects = append(redirects, Redirect{From: pseudo, To: ResolveNext(bc.Namespace, next)})
	}

	return Outcome{Finished: true, Children: children, Redirects: redirects}, nil
}
