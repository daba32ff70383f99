package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossflow/crossflow/registry"
)

func TestGetOrInsertIsStableAndDense(t *testing.T) {
	r := registry.New()

	i1 := registry.GetOrInsert[int](r, "int64")
	i2 := registry.GetOrInsert[string](r, "string")
	i3 := registry.GetOrInsert[int](r, "int64-again")

	assert.Equal(t, i1, i3, "re-inserting the same Go type must return the same index")
	assert.NotEqual(t, i1, i2)
	assert.Equal(t, registry.Index(0), i1)
	assert.Equal(t, registry.Index(1), i2)

	info, _, err := r.GetByIndex(i1)
	require.NoError(t, err)
	assert.Equal(t, "int64", info.Name, "first registration wins the display name")
}

func TestPlaceholderUntilOperationsRegistered(t *testing.T) {
	r := registry.New()
	idx := registry.GetOrInsert[int](r, "int64")
	assert.True(t, r.IsPlaceholder(idx))

	r.RegisterClone(idx, func(msg any) (any, error) { return msg, nil })
	assert.False(t, r.IsPlaceholder(idx))

	ops, err := r.Ops(idx)
	require.NoError(t, err)
	require.NotNil(t, ops.ForkClone)
}

func TestUnknownIndexIsAnError(t *testing.T) {
	r := registry.New()
	_, _, err := r.GetByIndex(registry.Index(42))
	require.Error(t, err)
}

func TestResultAndUnzipReverseLookups(t *testing.T) {
	r := registry.New()
	ok := registry.GetOrInsert[int](r, "int64")
	errT := registry.GetOrInsert[string](r, "error")
	result := registry.GetOrInsert[struct{}](r, "Result<int64,error>")

	r.RegisterResult(result, ok, errT, func(any) (any, bool, any, error) { return nil, true, nil, nil })

	got, found := r.ResultIndex(ok, errT)
	require.True(t, found)
	assert.Equal(t, result, got)

	_, found = r.ResultIndex(errT, ok)
	assert.False(t, found, "reverse lookup is order-sensitive: (ok,err) != (err,ok)")

	tupleElems := []registry.Index{ok, errT}
	tuple := registry.GetOrInsert[[2]int](r, "(int64,error)")
	r.RegisterUnzip(tuple, tupleElems, func(any) ([]any, error) { return nil, nil })

	got, found = r.UnzipIndex(tupleElems)
	require.True(t, found)
	assert.Equal(t, tuple, got)
}

func TestSplitSourcesAccumulates(t *testing.T) {
	r := registry.New()
	element := registry.GetOrInsert[int](r, "int64")
	sliceT := registry.GetOrInsert[[]int](r, "[]int64")
	mapT := registry.GetOrInsert[map[string]int](r, "map<string,int64>")

	r.RegisterSplit(sliceT, element, nil)
	r.RegisterSplit(mapT, element, nil)

	sources := r.SplitSources(element)
	assert.ElementsMatch(t, []registry.Index{sliceT, mapT}, sources)
}

func TestRegisterIntoIsSymmetric(t *testing.T) {
	r := registry.New()
	self := registry.GetOrInsert[int](r, "int64")
	target := registry.GetOrInsert[string](r, "string")

	r.RegisterInto(self, target, nil)

	selfOps, err := r.Ops(self)
	require.NoError(t, err)
	_, hasInto := selfOps.IntoImpls[target]
	assert.True(t, hasInto)

	targetOps, err := r.Ops(target)
	require.NoError(t, err)
	_, hasFrom := targetOps.FromImpls[self]
	assert.True(t, hasFrom, "registering Self->U must also register U.FromImpls[Self]")
}
