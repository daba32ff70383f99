// Package builder implements the Workflow Builder (spec.md §4.F): the round
// loop that drives an already-solved inference.Result and a live diagram
// tree to completion against a runtimeapi.Host, instantiating every
// operation's runtime entities, connecting outputs into inputs, and
// inserting implicit adapters where two connected ports disagree on type.
//
// Grounded on original_source/src/builder/mod.rs's round-based driver loop
// (apply every unfinished operation once per round, then drain the
// "outputs_into_target" queue through per-target connectors) and, in this
// codebase, on the teacher's own iterative-reconciliation style in
// runtime/agent's tool-call loop (bounded round count, per-round progress
// check, halt on stall) — the closest structural analogue the pack offers
// to a cooperative fixed-round build loop.
package builder

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/crossflow/crossflow/diagram"
	"github.com/crossflow/crossflow/inference"
	"github.com/crossflow/crossflow/internal/cfg"
	"github.com/crossflow/crossflow/internal/errs"
	"github.com/crossflow/crossflow/internal/telemetry"
	"github.com/crossflow/crossflow/ops"
	"github.com/crossflow/crossflow/portref"
	"github.com/crossflow/crossflow/regapi"
	"github.com/crossflow/crossflow/registry"
	"github.com/crossflow/crossflow/runtimeapi"
	"github.com/crossflow/crossflow/transform"
	"github.com/crossflow/crossflow/typeinfo"
)

// Option configures a Build call, mirroring the functional-options pattern
// internal/cfg and regapi already use throughout this codebase.
type Option func(*options)

type options struct {
	cfg    *cfg.Config
	logger telemetry.Logger
	tracer telemetry.Tracer
}

// WithConfig overrides the compiler-wide tunables (round cap, CEL cache
// size) this build uses.
func WithConfig(c *cfg.Config) Option {
	return func(o *options) {
		if c != nil {
			o.cfg = c
		}
	}
}

// WithLogger installs a telemetry.Logger for per-round deferral logging.
func WithLogger(l telemetry.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracer installs a telemetry.Tracer; one span is opened per build round.
func WithTracer(t telemetry.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// Build resolves the diagram's port types against mgr's registry (spec.md
// §4.E) and then drives the round loop (spec.md §4.F) to instantiate d's
// operation tree against host, using request/response/streams as the root
// scope's boundary (the same triple inference.Infer requires). The whole
// build runs inside a single host.SpawnWorkflow call, so a failure at any
// point despawns everything already built (spec.md §5 "On build failure,
// all entities spawned during this build are despawned before the error
// returns").
func Build(ctx context.Context, mgr *regapi.Manager, d *diagram.Diagram, request, response typeinfo.TypeInfo, streams map[string]typeinfo.TypeInfo, host runtimeapi.Host, opts ...Option) error {
	o := &options{cfg: cfg.New(), logger: telemetry.NewNoopLogger(), tracer: telemetry.NewNoopTracer()}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	result, err := inference.Infer(d, mgr, request, response, streams)
	if err != nil {
		return err
	}

	ev, err := transform.NewEvaluator(o.cfg.CELCacheSize)
	if err != nil {
		return err
	}

	buildID := uuid.NewString()

	return host.SpawnWorkflow(ctx, func(root runtimeapi.Builder) error {
		rl := &roundLoop{
			mgr:            mgr,
			reg:            mgr.Registry(),
			result:         result,
			diagram:        d,
			transform:      ev,
			buffers:        ops.NewBufferTable(),
			cfg:            o.cfg,
			logger:         o.logger,
			tracer:         o.tracer,
			buildID:        buildID,
			pending:        map[string]ops.PendingOp{},
			finishedInputs: map[string]runtimeapi.DynInputSlot{},
			redirects:      map[string]portref.OperationRef{},
			adapters:       map[adapterKey]runtimeapi.DynInputSlot{},
			namespaceBuild: map[string]runtimeapi.Builder{},
			onImplicitByNS: map[string]portref.OperationRef{},
		}
		return rl.run(ctx, root)
	})
}

// roundLoop carries all of one build's mutable state across rounds.
type roundLoop struct {
	mgr       *regapi.Manager
	reg       *registry.Registry
	result    *inference.Result
	diagram   *diagram.Diagram
	transform *transform.Evaluator
	buffers   *ops.BufferTable

	cfg     *cfg.Config
	logger  telemetry.Logger
	tracer  telemetry.Tracer
	buildID string

	// pending holds every discovered operation not yet finished, keyed by
	// its OperationRef.Key().
	pending map[string]ops.PendingOp
	// finishedInputs holds the input slot of every finished operation (and
	// every builder-section's synthetic AuxInput), keyed the same way, so
	// the queue drain can look up a routed output's target.
	finishedInputs map[string]runtimeapi.DynInputSlot
	// redirects re-targets a template-section's synthetic output
	// pseudo-operations to the section's own `connect` target.
	redirects map[string]portref.OperationRef
	// adapters remembers the one implicit-adapter node built per (target,
	// incoming-type) pair, so later outputs of the same type reuse it
	// (spec.md §4.F "Implicit-adapter invariants").
	adapters map[adapterKey]runtimeapi.DynInputSlot
	// namespaceBuild records which Builder owns each namespace, needed to
	// instantiate adapter nodes in the right place and to resolve a
	// builtin target's Terminate/Cancel/Start/StreamOut capability.
	namespaceBuild map[string]runtimeapi.Builder
	// onImplicitByNS records the effective on_implicit_error target for
	// each namespace, inherited from the enclosing scope unless overridden
	// (spec.md §4.F).
	onImplicitByNS map[string]portref.OperationRef

	// queue is the outputs_into_target queue (spec.md §4.F).
	queue []ops.RoutedOutput
}

func (rl *roundLoop) builderFor(ns portref.NamespaceList) runtimeapi.Builder {
	if b, ok := rl.namespaceBuild[ns.Key()]; ok {
		return b
	}
	// A namespace never referenced directly (only reached through a
	// child's own Parent builder) falls back to the root; this only
	// happens for the root namespace itself.
	return rl.namespaceBuild[portref.NamespaceList{}.Key()]
}

func (rl *roundLoop) onImplicitFor(ns portref.NamespaceList) portref.OperationRef {
	if ref, ok := rl.onImplicitByNS[ns.Key()]; ok {
		return ref
	}
	return rl.onImplicitByNS[portref.NamespaceList{}.Key()]
}

// run seeds the root namespace's operations and drives the round loop until
// every operation has finished and every output has been routed, or one of
// the three outcomes spec.md §4.F names terminates it early.
func (rl *roundLoop) run(ctx context.Context, root runtimeapi.Builder) error {
	rootNS := portref.NamespaceList{}
	rootOnImplicit := ops.ResolveNext(rootNS, rl.diagram.OnImplicitErrorTarget())
	rl.namespaceBuild[rootNS.Key()] = root
	rl.onImplicitByNS[rootNS.Key()] = rootOnImplicit

	for name, op := range rl.diagram.Ops {
		ref := portref.OperationRef{Namespaces: rootNS, Operation: portref.NamedOperation(name)}
		rl.pending[ref.Key()] = ops.PendingOp{Ref: ref, NS: rootNS, Op: op, Parent: root, OnImplicit: rootOnImplicit}
	}

	rl.queue = append(rl.queue, ops.RoutedOutput{
		Target: ops.ResolveNext(rootNS, rl.diagram.Start),
		Out:    root.Start(),
	})

	round := 0
	for len(rl.pending) > 0 || len(rl.queue) > 0 {
		round++
		if round > rl.cfg.MaxBuildRounds {
			return errs.Errorf(errs.ExcessiveIterations, "build did not converge within %d rounds", rl.cfg.MaxBuildRounds)
		}

		roundCtx, span := rl.tracer.Start(ctx, "crossflow.build.round")
		progressed, reasons, err := rl.runRound(roundCtx)
		if err != nil {
			span.RecordError(err)
			span.End()
			return err
		}
		span.End()

		if !progressed {
			return errs.New(errs.BuildHalted, "build made no progress this round").
				WithDetails(map[string]any{"build_id": rl.buildID, "deferred": reasons})
		}
	}
	return nil
}

// runRound attempts every pending operation once, then drains the output
// queue once, reporting whether either step made progress.
func (rl *roundLoop) runRound(ctx context.Context) (bool, map[string]any, error) {
	progress := false
	reasons := map[string]any{}

	keys := make([]string, 0, len(rl.pending))
	for k := range rl.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		entry := rl.pending[key]
		bc := &ops.BuildContext{
			Mgr:        rl.mgr,
			Reg:        rl.reg,
			Result:     rl.result,
			Diagram:    rl.diagram,
			Transform:  rl.transform,
			Buffers:    rl.buffers,
			Namespace:  entry.NS,
			Self:       entry.Ref,
			NSBuilder:  entry.Parent,
			OnImplicit: entry.OnImplicit,
		}

		outcome, err := ops.Build(bc, entry.Op)
		if err != nil {
			return false, nil, errs.FromError(err).WithPort(entry.Ref.String())
		}
		if !outcome.Finished {
			reasons[entry.Ref.String()] = outcome.Reason
			rl.logger.Debug(ctx, "crossflow.build.deferred", "build_id", rl.buildID, "op", entry.Ref.String(), "reason", outcome.Reason)
			continue
		}

		progress = true
		delete(rl.pending, key)

		if outcome.InputSlot != nil {
			rl.finishedInputs[key] = *outcome.InputSlot
		}
		for _, aux := range outcome.AuxInputs {
			rl.finishedInputs[aux.Ref.Key()] = aux.Slot
		}
		for _, r := range outcome.Redirects {
			rl.redirects[r.From.Key()] = r.To
		}
		for _, child := range outcome.Children {
			rl.pending[child.Ref.Key()] = child
			rl.namespaceBuild[child.NS.Key()] = child.Parent
			rl.onImplicitByNS[child.NS.Key()] = child.OnImplicit
		}
		rl.queue = append(rl.queue, outcome.Outputs...)
	}

	drained, err := rl.drainQueue(ctx)
	if err != nil {
		return false, nil, err
	}
	if drained {
		progress = true
	}
	return progress, reasons, nil
}

// drainQueue resolves every queued output's target through any pending
// redirects, then connects it into its finished input slot (inserting
// whatever implicit adapter is required), leaving unresolvable entries
// queued for a later round.
func (rl *roundLoop) drainQueue(ctx context.Context) (bool, error) {
	if len(rl.queue) == 0 {
		return false, nil
	}

	progressed := false
	var remaining []ops.RoutedOutput
	for _, ro := range rl.queue {
		target, err := rl.resolveRedirect(ro.Target)
		if err != nil {
			return false, err
		}

		if target.Operation.Builtin == portref.Dispose {
			progressed = true
			continue
		}

		slot, ok := rl.finishedInputs[target.Key()]
		if !ok {
			if target.Operation.Builtin == portref.Terminate || target.Operation.Builtin == portref.Cancel {
				slot = rl.terminateOrCancelSlot(target)
				ok = true
			}
		}
		if !ok {
			remaining = append(remaining, ops.RoutedOutput{Target: target, Out: ro.Out})
			continue
		}

		if err := rl.connectInto(ctx, target, slot, ro.Out); err != nil {
			return false, err
		}
		progressed = true
	}
	rl.queue = remaining
	return progressed, nil
}

func (rl *roundLoop) terminateOrCancelSlot(target portref.OperationRef) runtimeapi.DynInputSlot {
	b := rl.builderFor(target.Namespaces)
	if target.Operation.Builtin == portref.Terminate {
		return b.Terminate()
	}
	return b.Cancel()
}

// resolveRedirect follows the redirect chain rooted at ref, detecting cycles
// the same way inference's detectCircularRedirects does (spec.md §4.F
// "RedirectConnection ... after detecting cycles among its own prior
// redirects").
func (rl *roundLoop) resolveRedirect(ref portref.OperationRef) (portref.OperationRef, error) {
	visited := map[string]bool{}
	cur := ref
	for {
		key := cur.Key()
		if visited[key] {
			return portref.OperationRef{}, errs.Errorf(errs.CircularRedirect, "redirect cycle detected at %q", cur.String())
		}
		visited[key] = true
		next, ok := rl.redirects[key]
		if !ok {
			return cur, nil
		}
		cur = next
	}
}
