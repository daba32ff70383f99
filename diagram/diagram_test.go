package diagram_test

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossflow/crossflow/diagram"
)

func echoDiagramJSON() []byte {
	return []byte(`{
		"version": "0.1.0",
		"start": "echo",
		"ops": {
			"echo": {
				"type": "node",
				"builder": "echo",
				"next": { "builtin": "terminate" }
			}
		}
	}`)
}

func TestFromJSONParsesMinimalDiagram(t *testing.T) {
	d, err := diagram.FromJSON(echoDiagramJSON())
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", d.Version)
	assert.Equal(t, diagram.Name("echo"), d.Start)

	op, ok := d.Ops["echo"]
	require.True(t, ok)
	require.Equal(t, diagram.OpNode, op.Kind)
	assert.Equal(t, "echo", op.Node.Builder)
	assert.Equal(t, diagram.TerminateOp(), op.Node.Next)
}

func TestVersionOutsideSupportedRangeIsRejected(t *testing.T) {
	raw := []byte(`{"version":"0.2.0","start":"echo","ops":{}}`)
	_, err := diagram.FromJSON(raw)
	assert.Error(t, err)
}

func TestMalformedVersionIsRejected(t *testing.T) {
	raw := []byte(`{"version":"not-a-version","start":"echo","ops":{}}`)
	_, err := diagram.FromJSON(raw)
	assert.Error(t, err)
}

func TestReservedOperationNameIsRejected(t *testing.T) {
	raw := []byte(`{
		"version": "0.1.0",
		"start": "builtin",
		"ops": { "builtin": {"type": "buffer"} }
	}`)
	_, err := diagram.FromJSON(raw)
	assert.Error(t, err)
}

func TestUnknownKeyOnKnownOperationIsRejected(t *testing.T) {
	raw := []byte(`{
		"version": "0.1.0",
		"start": "op1",
		"ops": {
			"op1": {"type": "buffer", "serialize": true, "not_a_real_field": 1}
		}
	}`)
	_, err := diagram.FromJSON(raw)
	assert.Error(t, err)
}

func TestCircularTemplateDependencyIsRejected(t *testing.T) {
	raw := []byte(`{
		"version": "0.1.0",
		"start": "op1",
		"templates": {
			"a": {"ops": {"inner": {"type": "section", "provider": {"template": "b"}}}},
			"b": {"ops": {"inner": {"type": "section", "provider": {"template": "a"}}}}
		},
		"ops": {
			"op1": {"type": "section", "provider": {"template": "a"}}
		}
	}`)
	_, err := diagram.FromJSON(raw)
	assert.Error(t, err)
}

func TestNextOperationRoundTripsAllThreeForms(t *testing.T) {
	cases := []diagram.NextOperation{
		diagram.Name("op1"),
		diagram.TerminateOp(),
		diagram.DisposeOp(),
		diagram.CancelOp(),
		diagram.Namespaced("section1", "input1"),
	}
	for _, n := range cases {
		encoded, err := json.Marshal(n)
		require.NoError(t, err)

		var decoded diagram.NextOperation
		require.NoError(t, json.Unmarshal(encoded, &decoded))
		assert.Equal(t, n, decoded)
	}
}

func TestForkCloneRoundTrips(t *testing.T) {
	raw := []byte(`{
		"version": "0.1.0",
		"start": "begin_race",
		"ops": {
			"begin_race": {
				"type": "fork_clone",
				"next": ["ferrari", "mustang"]
			},
			"ferrari": {"type": "node", "builder": "drive", "next": {"builtin": "terminate"}},
			"mustang": {"type": "node", "builder": "drive", "next": {"builtin": "terminate"}}
		}
	}`)
	d, err := diagram.FromJSON(raw)
	require.NoError(t, err)

	op := d.Ops["begin_race"]
	require.Equal(t, diagram.OpForkClone, op.Kind)
	assert.Equal(t, []diagram.NextOperation{diagram.Name("ferrari"), diagram.Name("mustang")}, op.ForkClone.Next)

	reencoded, err := json.Marshal(d)
	require.NoError(t, err)
	redecoded, err := diagram.FromJSON(reencoded)
	require.NoError(t, err)
	assert.Equal(t, d.Ops["begin_race"].ForkClone.Next, redecoded.Ops["begin_race"].ForkClone.Next)
}

func TestBufferSelectionRoundTripsArrayAndDict(t *testing.T) {
	arrayRaw := []byte(`["op_a", "op_b"]`)
	var arraySel diagram.BufferSelection
	require.NoError(t, json.Unmarshal(arrayRaw, &arraySel))
	assert.False(t, arraySel.IsDict)
	assert.Len(t, arraySel.Array, 2)

	dictRaw := []byte(`{"a": "op_a", "b": "op_b"}`)
	var dictSel diagram.BufferSelection
	require.NoError(t, json.Unmarshal(dictRaw, &dictSel))
	assert.True(t, dictSel.IsDict)
	assert.Len(t, dictSel.Dict, 2)
}

func TestEffectiveTraceFallsBackToDiagramDefault(t *testing.T) {
	on := diagram.TraceOn
	withOverride := diagram.TraceSettings{Trace: &on}
	assert.Equal(t, diagram.TraceOn, withOverride.EffectiveTrace(diagram.TraceOff))

	withoutOverride := diagram.TraceSettings{}
	assert.Equal(t, diagram.TraceMessages, withoutOverride.EffectiveTrace(diagram.TraceMessages))
}

// TestOperationNamesNeverCollideWithReservedWords is a property check
// (spec.md §8): for any generated operation-name map that happens to avoid
// the two reserved words, validation of operation names alone never rejects
// it on that basis.
func TestOperationNamesNeverCollideWithReservedWords(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	safeName := gen.RegexMatch(`[a-z][a-z0-9_]{0,15}`)

	properties.Property("a diagram using only non-reserved names round-trips its op names", prop.ForAll(
		func(name string) bool {
			raw, err := json.Marshal(map[string]any{
				"version": "0.1.0",
				"start":   name,
				"ops": map[string]any{
					name: map[string]any{"type": "buffer"},
				},
			})
			if err != nil {
				return false
			}
			d, err := diagram.FromJSON(raw)
			if err != nil {
				return false
			}
			_, ok := d.Ops[name]
			return ok
		},
		safeName,
	))

	properties.TestingRun(t)
}
