package portref_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crossflow/crossflow/portref"
)

func TestOperationRefStringIsCanonical(t *testing.T) {
	ref := portref.OperationRef{
		Namespaces: portref.NamespaceList{"ns1", "ns2"},
		Operation:  portref.NamedOperation("opname"),
	}
	assert.Equal(t, "ns1:ns2:opname", ref.String())
}

func TestPortRefStringMatchesSpecDisplayForm(t *testing.T) {
	ref := portref.PortRef{
		Namespaces: portref.NamespaceList{"ns1", "ns2"},
		Operation:  portref.NamedOperation("opname"),
		Key:        "key",
	}
	assert.Equal(t, "ns1:ns2:opname.key", ref.String())
}

func TestInNamespacesPrependsParent(t *testing.T) {
	ref := portref.OperationRef{Operation: portref.NamedOperation("leaf")}
	rerooted := ref.InNamespaces([]string{"outer", "inner"})
	assert.Equal(t, "outer:inner:leaf", rerooted.String())

	// re-rooting again stacks further, it does not replace.
	rerooted2 := rerooted.InNamespaces([]string{"root"})
	assert.Equal(t, "root:outer:inner:leaf", rerooted2.String())
}

func TestOutputKeysMatchSpecExamples(t *testing.T) {
	assert.Equal(t, "next", portref.NextKey().String())
	assert.Equal(t, "next.0", portref.NextIndexKey(0).String())
	assert.Equal(t, "next.2", portref.NextIndexKey(2).String())
	assert.Equal(t, "ok", portref.OkKey().String())
	assert.Equal(t, "err", portref.ErrKey().String())
	assert.Equal(t, "stream_out.log", portref.StreamOutKey("log").String())
}

func TestOutputRefMapKeyDistinguishesStartFromNamed(t *testing.T) {
	start := portref.Start()
	named := portref.Of(portref.NamedOperation("start"), portref.NextKey())
	assert.NotEqual(t, start.MapKey(), named.MapKey())
}

func TestOutputRefMapKeyIsStableAcrossEqualValues(t *testing.T) {
	a := portref.Of(portref.NamedOperation("op"), portref.Key(portref.Named("next"), portref.Indexed(1)))
	b := portref.Of(portref.NamedOperation("op"), portref.Key(portref.Named("next"), portref.Indexed(1)))
	assert.Equal(t, a.MapKey(), b.MapKey())
}

func TestBuiltinOperationRefsAreNamespaceAware(t *testing.T) {
	ns := portref.NamespaceList{"scope1"}
	term := portref.TerminateRef(ns)
	cancel := portref.CancelRef(ns)
	assert.Equal(t, "scope1:terminate.in", term.String())
	assert.Equal(t, "scope1:cancel.in", cancel.String())
	assert.NotEqual(t, term.MapKey(), cancel.MapKey())
}
