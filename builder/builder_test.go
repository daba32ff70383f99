package builder_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossflow/crossflow/builder"
	"github.com/crossflow/crossflow/diagram"
	"github.com/crossflow/crossflow/examples"
	"github.com/crossflow/crossflow/messages"
)

// TestMultiplyByThree is spec.md §8 scenario 1 run end to end: build the
// bundled diagram against the examples manager, then drive a request
// through the resulting fakeHost topology.
func TestMultiplyByThree(t *testing.T) {
	d, err := examples.Load("multiply_by_three")
	require.NoError(t, err)
	mgr, err := examples.NewManager()
	require.NoError(t, err)
	request, response, err := examples.Boundary("multiply_by_three")
	require.NoError(t, err)

	host := newFakeHost(request, response)
	err = builder.Build(context.Background(), mgr, d, request, response, nil, host)
	require.NoError(t, err)

	got := host.Run(int64(4))
	require.Len(t, got, 1)
	assert.Equal(t, int64(12), got[0])
}

// TestForkCloneRemultiply is spec.md §8 scenario 3: one branch terminates
// with the cloned value directly, the other re-multiplies before
// terminating, so a single request produces two terminate deliveries.
func TestForkCloneRemultiply(t *testing.T) {
	d, err := examples.Load("fork_clone_remultiply")
	require.NoError(t, err)
	mgr, err := examples.NewManager()
	require.NoError(t, err)
	request, response, err := examples.Boundary("fork_clone_remultiply")
	require.NoError(t, err)

	host := newFakeHost(request, response)
	err = builder.Build(context.Background(), mgr, d, request, response, nil, host)
	require.NoError(t, err)

	got := host.Run(int64(4))
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []int64{12, 36}, []int64{got[0].(int64), got[1].(int64)})
}

// TestImplicitJSONPromotion is spec.md §8 scenario 8: three node outputs of
// unrelated serializable types (int64, string, bool) fan into a JSON-typed
// terminate. The builder must insert one serializer adapter per branch
// rather than failing with TypeMismatch.
func TestImplicitJSONPromotion(t *testing.T) {
	d, err := examples.Load("implicit_json_promotion")
	require.NoError(t, err)
	mgr, err := examples.NewManager()
	require.NoError(t, err)
	request, response, err := examples.Boundary("implicit_json_promotion")
	require.NoError(t, err)

	host := newFakeHost(request, response)
	err = builder.Build(context.Background(), mgr, d, request, response, nil, host)
	require.NoError(t, err)

	got := host.Run(int64(4))
	require.Len(t, got, 3)

	var decoded []any
	for _, v := range got {
		doc, ok := v.(messages.JSON)
		require.True(t, ok, "expected canonical JSON, got %T", v)
		var x any
		require.NoError(t, json.Unmarshal(doc, &x))
		decoded = append(decoded, x)
	}
	assert.ElementsMatch(t, []any{float64(12), "12", true}, decoded)
}

// TestUnknownOperationTargetFails is spec.md §8 scenario 6: a next target
// naming an operation absent from the diagram makes Build fail. Neither
// inference nor the builder checks next targets against the diagram, so the
// failure is not UnknownOperation: op1 is built, its output stays queued
// for "ghost", and the round loop stops with BuildHalted.
func TestUnknownOperationTargetFails(t *testing.T) {
	mgr, err := examples.NewManager()
	require.NoError(t, err)
	request, response, err := examples.Boundary("multiply_by_three")
	require.NoError(t, err)

	d, err := examples.Load("multiply_by_three")
	require.NoError(t, err)
	d.Ops["op1"].Node.Next = diagram.Name("ghost")

	host := newFakeHost(request, response)
	err = builder.Build(context.Background(), mgr, d, request, response, nil, host)
	require.Error(t, err)
}
