package inference_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossflow/crossflow/diagram"
	"github.com/crossflow/crossflow/inference"
	"github.com/crossflow/crossflow/portref"
	"github.com/crossflow/crossflow/regapi"
	"github.com/crossflow/crossflow/runtimeapi"
	"github.com/crossflow/crossflow/typeinfo"
)

type request struct{ N int }
type response struct{ N int }

func noopNodeBuilder(runtimeapi.Builder, any) (runtimeapi.DynNode, error) {
	return runtimeapi.DynNode{}, nil
}

func newTestManager(t *testing.T) *regapi.Manager {
	t.Helper()
	mgr := regapi.NewManager()
	err := mgr.RegisterNode(regapi.NodeRegistration{
		Name:     "multiply_by_three",
		Builder:  noopNodeBuilder,
		Request:  typeinfo.Of[request]("request"),
		Response: typeinfo.Of[response]("response"),
	})
	require.NoError(t, err)
	return mgr
}

// TestSingleNodeInfersRequestAndResponseTypes is the minimal scenario from
// spec.md §8: a diagram with a single node routed straight to terminate
// resolves its input to the caller's request type and its output to the
// caller's response type.
func TestSingleNodeInfersRequestAndResponseTypes(t *testing.T) {
	mgr := newTestManager(t)
	d := &diagram.Diagram{
		Version: diagram.CurrentVersion,
		Start:   diagram.Name("triple"),
		Ops: map[string]*diagram.DiagramOperation{
			"triple": {
				Kind: diagram.OpNode,
				Node: &diagram.NodeSchema{Builder: "multiply_by_three", Next: diagram.TerminateOp()},
			},
		},
	}

	reqInfo := typeinfo.Of[request]("request")
	respInfo := typeinfo.Of[response]("response")
	result, err := inference.Infer(d, mgr, reqInfo, respInfo, nil)
	require.NoError(t, err)

	reqIdx, ok := mgr.Registry().GetIndex(reqInfo)
	require.True(t, ok)
	respIdx, ok := mgr.Registry().GetIndex(respInfo)
	require.True(t, ok)

	tripleRef := portref.OperationRef{Operation: portref.NamedOperation("triple")}
	gotReq, ok := result.InputType(tripleRef)
	require.True(t, ok)
	assert.Equal(t, reqIdx, gotReq)

	gotResp, ok := result.OutputType(portref.OutputRef{Operation: portref.NamedOperation("triple"), Key: portref.NextKey()})
	require.True(t, ok)
	assert.Equal(t, respIdx, gotResp)
}

// TestForkCloneInputTakesBranchType verifies spec.md §4.G "fork_clone": the
// fork's input resolves to the type its branches take. Here the start output
// feeding the fork and both branches all carry the request type.
func TestForkCloneInputTakesBranchType(t *testing.T) {
	mgr := newTestManager(t)
	d := &diagram.Diagram{
		Version: diagram.CurrentVersion,
		Start:   diagram.Name("begin"),
		Ops: map[string]*diagram.DiagramOperation{
			"begin": {
				Kind:      diagram.OpForkClone,
				ForkClone: &diagram.ForkCloneSchema{Next: []diagram.NextOperation{diagram.Name("left"), diagram.Name("right")}},
			},
			"left": {
				Kind: diagram.OpNode,
				Node: &diagram.NodeSchema{Builder: "multiply_by_three", Next: diagram.TerminateOp()},
			},
			"right": {
				Kind: diagram.OpNode,
				Node: &diagram.NodeSchema{Builder: "multiply_by_three", Next: diagram.DisposeOp()},
			},
		},
	}

	reqInfo := typeinfo.Of[request]("request")
	respInfo := typeinfo.Of[response]("response")
	result, err := inference.Infer(d, mgr, reqInfo, respInfo, nil)
	require.NoError(t, err)

	reqIdx, ok := mgr.Registry().GetIndex(reqInfo)
	require.True(t, ok)

	forkRef := portref.OperationRef{Operation: portref.NamedOperation("begin")}
	gotFork, ok := result.InputType(forkRef)
	require.True(t, ok)
	assert.Equal(t, reqIdx, gotFork)
}

// TestUnknownBuilderNameFailsImmediately covers the contribution-time half
// of spec.md §6's error surface: a node referencing an unregistered builder
// name must fail fast with UnknownOperation rather than reach the
// fixed-point loop at all.
func TestUnknownBuilderNameFailsImmediately(t *testing.T) {
	mgr := newTestManager(t)
	d := &diagram.Diagram{
		Version: diagram.CurrentVersion,
		Start:   diagram.Name("triple"),
		Ops: map[string]*diagram.DiagramOperation{
			"triple": {
				Kind: diagram.OpNode,
				Node: &diagram.NodeSchema{Builder: "does_not_exist", Next: diagram.TerminateOp()},
			},
		},
	}

	_, err := inference.Infer(d, mgr, typeinfo.Of[request]("request"), typeinfo.Of[response]("response"), nil)
	assert.Error(t, err)
}
