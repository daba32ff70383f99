// Package inference implements the Inference Engine (spec.md §4.E): given a
// diagram and a registry, it assigns every input/output port a concrete
// registered message-type index, or reports why it cannot. Grounded on
// original_source/src/diagram/inference.rs, transliterated from Rust's
// PortRef enum / MessageTypeConstraint trait object model into Go's
// idiomatic equivalent: a string-keyed PortKey standing in for the Input/
// Output sum type (Go has no native sum type and PortRef's own fields are
// not comparable, spec.md §4.D), and a small Constraint interface in place
// of Rust's `dyn MessageTypeConstraint`.
package inference

import "github.com/crossflow/crossflow/portref"

// PortKey uniquely identifies either an operation's input port or one of its
// outputs, serving as the inference engine's internal map key (the Go
// analogue of original_source's `PortRef::Input(OperationRef) |
// Output(OutputRef)`).
type PortKey string

// InputPort returns the PortKey naming op's own input port.
func InputPort(op portref.OperationRef) PortKey { return PortKey("I\x1e" + op.Key()) }

// OutputPort returns the PortKey naming a specific output of an operation.
func OutputPort(out portref.OutputRef) PortKey { return PortKey("O\x1e" + out.MapKey()) }

// streamOutName builds the synthetic operation name used to key a scope's
// exposed stream-out port: the point where a `stream_out` diagram operation
// inside the scope and the enclosing scope's own per-stream redirect must
// agree on the same PortKey (original_source's OperationRef::stream_out /
// OperationRef::scope_stream_out, which both resolve to the same ref by
// construction).
func streamOutName(stream string) portref.OperationName {
	return portref.NamedOperation("$stream_out:" + stream)
}

func streamOutRef(namespaces portref.NamespaceList, stream string) portref.OperationRef {
	return portref.OperationRef{Namespaces: namespaces, Operation: streamOutName(stream)}
}
