package regapi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossflow/crossflow/regapi"
	"github.com/crossflow/crossflow/runtimeapi"
	"github.com/crossflow/crossflow/typeinfo"
)

func TestMessageDefaultsToAllCommonOpsEnabled(t *testing.T) {
	m := regapi.NewManager()
	b := regapi.Message[int](m, "int64")
	assert.Equal(t, regapi.DefaultCommonOps(), b.Ops())
}

func TestWithSerializeOptOutSticks(t *testing.T) {
	m := regapi.NewManager()
	b := regapi.Message[int](m, "int64").WithSerialize(false)
	assert.False(t, b.Ops().Serialize)
	assert.True(t, b.Ops().Deserialize)
}

func TestCallingSerializeInstallsAndFlipsOpsOn(t *testing.T) {
	m := regapi.NewManager()
	b := regapi.Message[int](m, "int64").WithSerialize(false)
	b.Serialize(func(any) ([]byte, error) { return nil, nil })
	assert.True(t, b.Ops().Serialize)

	ops, err := m.Registry().Ops(b.Index())
	require.NoError(t, err)
	require.NotNil(t, ops.Serialize)
}

func TestIntoIsSymmetricThroughRegapi(t *testing.T) {
	m := regapi.NewManager()
	self := regapi.Message[int](m, "int64")
	target := regapi.Message[string](m, "string")

	self.Into(target, func(runtimeapi.Builder) runtimeapi.DynNode { return runtimeapi.DynNode{} })

	selfOps, err := m.Registry().Ops(self.Index())
	require.NoError(t, err)
	_, hasInto := selfOps.IntoImpls[target.Index()]
	assert.True(t, hasInto)
}

func TestRegisterNodeAutoRegistersRequestResponseAndStreams(t *testing.T) {
	m := regapi.NewManager()
	req := typeinfo.Of[int]("int64")
	resp := typeinfo.Of[string]("string")
	stream := typeinfo.Of[float64]("float64")

	err := m.RegisterNode(regapi.NodeRegistration{
		Name:     "multiply_by_three",
		Builder:  func(runtimeapi.Builder, any) (runtimeapi.DynNode, error) { return runtimeapi.DynNode{}, nil },
		Request:  req,
		Response: resp,
		Streams:  map[string]typeinfo.TypeInfo{"progress": stream},
	})
	require.NoError(t, err)

	_, found := m.Registry().GetIndex(req)
	assert.True(t, found)
	_, found = m.Registry().GetIndex(resp)
	assert.True(t, found)
	_, found = m.Registry().GetIndex(stream)
	assert.True(t, found)

	got, err := m.NodeBuilder("multiply_by_three")
	require.NoError(t, err)
	assert.Equal(t, "multiply_by_three", got.Name)
}

func TestRegisterNodeRejectsDuplicateName(t *testing.T) {
	m := regapi.NewManager()
	reg := regapi.NodeRegistration{
		Name:    "dup",
		Builder: func(runtimeapi.Builder, any) (runtimeapi.DynNode, error) { return runtimeapi.DynNode{}, nil },
	}
	require.NoError(t, m.RegisterNode(reg))
	assert.Error(t, m.RegisterNode(reg))
}

func TestUnknownNodeBuilderIsAnError(t *testing.T) {
	m := regapi.NewManager()
	_, err := m.NodeBuilder("does_not_exist")
	assert.Error(t, err)
}
