package builder_test

import (
	"context"
	"fmt"

	"github.com/crossflow/crossflow/runtimeapi"
	"github.com/crossflow/crossflow/typeinfo"
)

// fakeHost is a minimal in-memory runtimeapi.Host double: it records the
// topology builder.Build wires up (map blocks, fork-clones, and the edges
// Connect draws between them) and can subsequently Run a request through
// that topology synchronously, since every node kind these tests exercise
// is synchronous. It deliberately implements only what the bundled example
// scenarios need; every unused capability panics rather than silently
// no-opping, so an unexpected call surfaces immediately.
type fakeHost struct {
	reqType, respType typeinfo.TypeInfo

	counter    int
	mapBlocks  map[string]*fakeMapBlock
	forkClones map[string]*fakeForkClone
	edges      map[string][]string

	terminated []any
	cancelled  []any
}

type fakeMapBlock struct {
	fn     runtimeapi.MapFunc
	output runtimeapi.DynOutput
}

type fakeForkClone struct {
	outputs []runtimeapi.DynOutput
}

const (
	startSlotID     = "start"
	terminateSlotID = "terminate"
	cancelSlotID    = "cancel"
)

func newFakeHost(reqType, respType typeinfo.TypeInfo) *fakeHost {
	return &fakeHost{
		reqType:    reqType,
		respType:   respType,
		mapBlocks:  map[string]*fakeMapBlock{},
		forkClones: map[string]*fakeForkClone{},
		edges:      map[string][]string{},
	}
}

func (h *fakeHost) nextID(prefix string) string {
	h.counter++
	return fmt.Sprintf("%s-%d", prefix, h.counter)
}

func (h *fakeHost) CreateMapBlock(req, resp typeinfo.TypeInfo, f runtimeapi.MapFunc) runtimeapi.DynNode {
	id := h.nextID("map")
	in := runtimeapi.DynInputSlot{ID: id, Type: req}
	out := runtimeapi.DynOutput{ID: id + "-out", Type: resp}
	h.mapBlocks[in.ID] = &fakeMapBlock{fn: f, output: out}
	return runtimeapi.DynNode{Input: in, Output: out}
}

func (h *fakeHost) CreateMapAsync(typeinfo.TypeInfo, typeinfo.TypeInfo, runtimeapi.AsyncMapFunc) runtimeapi.DynNode {
	panic("fakeHost: CreateMapAsync not used by these scenarios")
}

func (h *fakeHost) CreateForkClone(t typeinfo.TypeInfo, n int) (runtimeapi.DynInputSlot, []runtimeapi.DynOutput) {
	id := h.nextID("fork")
	in := runtimeapi.DynInputSlot{ID: id, Type: t}
	outs := make([]runtimeapi.DynOutput, n)
	for i := range outs {
		outs[i] = runtimeapi.DynOutput{ID: fmt.Sprintf("%s-out-%d", id, i), Type: t}
	}
	h.forkClones[in.ID] = &fakeForkClone{outputs: outs}
	return in, outs
}

func (h *fakeHost) CreateForkResult(ok, err typeinfo.TypeInfo) (runtimeapi.DynInputSlot, runtimeapi.DynOutput, runtimeapi.DynOutput) {
	panic("fakeHost: CreateForkResult not used by these scenarios")
}

func (h *fakeHost) CreateUnzip(typeinfo.TypeInfo, []typeinfo.TypeInfo, func(any) ([]any, error)) (runtimeapi.DynInputSlot, []runtimeapi.DynOutput) {
	panic("fakeHost: CreateUnzip not used by these scenarios")
}

func (h *fakeHost) CreateSplit(typeinfo.TypeInfo, typeinfo.TypeInfo, int, []string, bool, func(any) ([]any, map[string]any, any, bool, error)) (runtimeapi.DynInputSlot, []runtimeapi.DynOutput, map[string]runtimeapi.DynOutput, *runtimeapi.DynOutput) {
	panic("fakeHost: CreateSplit not used by these scenarios")
}

func (h *fakeHost) CreateJoin(typeinfo.TypeInfo, map[string]runtimeapi.AnyBuffer, func(map[string]any) (any, error)) (runtimeapi.DynOutput, error) {
	panic("fakeHost: CreateJoin not used by these scenarios")
}

func (h *fakeHost) Connect(out runtimeapi.DynOutput, in runtimeapi.DynInputSlot) error {
	h.edges[out.ID] = append(h.edges[out.ID], in.ID)
	return nil
}

func (h *fakeHost) CreateBuffer(typeinfo.TypeInfo, runtimeapi.BufferSettings) (runtimeapi.DynInputSlot, runtimeapi.AnyBuffer) {
	panic("fakeHost: CreateBuffer not used by these scenarios")
}

func (h *fakeHost) CreateBufferAccess(typeinfo.TypeInfo, typeinfo.TypeInfo, map[string]runtimeapi.AnyBuffer, func(any, map[string]any) (any, error)) runtimeapi.DynNode {
	panic("fakeHost: CreateBufferAccess not used by these scenarios")
}

func (h *fakeHost) CreateListen(typeinfo.TypeInfo, map[string]runtimeapi.AnyBuffer, func(map[string]any) (any, error)) (runtimeapi.DynOutput, error) {
	panic("fakeHost: CreateListen not used by these scenarios")
}

func (h *fakeHost) CreateScope(runtimeapi.ScopeBoundary) runtimeapi.ScopeHandle {
	panic("fakeHost: CreateScope not used by these scenarios")
}

func (h *fakeHost) Start() runtimeapi.DynOutput {
	return runtimeapi.DynOutput{ID: startSlotID, Type: h.reqType}
}

func (h *fakeHost) Terminate() runtimeapi.DynInputSlot {
	return runtimeapi.DynInputSlot{ID: terminateSlotID, Type: h.respType}
}

func (h *fakeHost) Cancel() runtimeapi.DynInputSlot {
	return runtimeapi.DynInputSlot{ID: cancelSlotID, Type: h.respType}
}

func (h *fakeHost) StreamOut(string) runtimeapi.DynInputSlot {
	panic("fakeHost: StreamOut not used by these scenarios")
}

func (h *fakeHost) InNamespace(string) runtimeapi.Builder {
	return h
}

func (h *fakeHost) SpawnWorkflow(_ context.Context, fn func(runtimeapi.Builder) error) error {
	return fn(h)
}

func (h *fakeHost) Command(_ context.Context, fn func(runtimeapi.Builder) error) error {
	return fn(h)
}

// Run feeds request into the already-built topology's start output and
// returns every value delivered to terminate during that single synchronous
// pass. A map-block whose fn returns an error stops that branch silently
// (these scenarios never need the error to propagate further), which is
// enough to exercise spec.md §8's literal seed scenarios end to end.
func (h *fakeHost) Run(request any) []any {
	h.terminated = nil
	h.emit(request, startSlotID)
	return h.terminated
}

func (h *fakeHost) deliver(value any, slotID string) {
	switch slotID {
	case terminateSlotID:
		h.terminated = append(h.terminated, value)
		return
	case cancelSlotID:
		h.cancelled = append(h.cancelled, value)
		return
	}
	if node, ok := h.mapBlocks[slotID]; ok {
		out, err := node.fn(value)
		if err != nil {
			return
		}
		h.emit(out, node.output.ID)
		return
	}
	if node, ok := h.forkClones[slotID]; ok {
		for _, out := range node.outputs {
			h.emit(value, out.ID)
		}
		return
	}
	panic(fmt.Sprintf("fakeHost: no node registered for slot %q", slotID))
}

func (h *fakeHost) emit(value any, outputID string) {
	for _, target := range h.edges[outputID] {
		h.deliver(value, target)
	}
}
