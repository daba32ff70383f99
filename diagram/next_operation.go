// Package diagram implements the Diagram Model (spec.md §4.C): the pure,
// registry-independent JSON data that describes a workflow before it is
// compiled. Every type here round-trips through JSON with the exact wire
// shapes of the diagram JSON spec.md §6 reproduces bit-exact from
// original_source/src/diagram.rs.
package diagram

import (
	"encoding/json"
	"fmt"

	"github.com/crossflow/crossflow/internal/errs"
)

// Builtin enumerates the non-author-declared operation targets a
// NextOperation can name (original_source's BuiltinTarget).
type Builtin string

const (
	Terminate Builtin = "terminate"
	Dispose   Builtin = "dispose"
	Cancel    Builtin = "cancel"
)

func (b Builtin) valid() bool {
	switch b {
	case Terminate, Dispose, Cancel:
		return true
	default:
		return false
	}
}

// NextOperation names where an output should be routed: a plain operation
// name, a builtin target, or a namespaced reference into a sibling
// operation's inner namespace (e.g. a section's exposed input). It
// round-trips as the untagged JSON union original_source/src/diagram.rs
// documents: `"name"` | `{"builtin": "..."}` | `{"<ns>": "<op>"}`.
type NextOperation struct {
	// Kind discriminates which of the three forms this value holds.
	Kind NextOperationKind
	// Name holds the operation name when Kind is NextOperationName.
	Name string
	// BuiltinTarget holds the builtin target when Kind is NextOperationBuiltin.
	BuiltinTarget Builtin
	// Namespace and Operation hold the two sides of a namespaced reference
	// when Kind is NextOperationNamespace.
	Namespace string
	Operation string
}

// NextOperationKind discriminates the NextOperation union.
type NextOperationKind int

const (
	NextOperationName NextOperationKind = iota
	NextOperationBuiltin
	NextOperationNamespace
)

// Name constructs a plain-name NextOperation.
func Name(name string) NextOperation { return NextOperation{Kind: NextOperationName, Name: name} }

// TerminateOp constructs the builtin terminate NextOperation.
func TerminateOp() NextOperation {
	return NextOperation{Kind: NextOperationBuiltin, BuiltinTarget: Terminate}
}

// DisposeOp constructs the builtin dispose NextOperation.
func DisposeOp() NextOperation {
	return NextOperation{Kind: NextOperationBuiltin, BuiltinTarget: Dispose}
}

// CancelOp constructs the builtin cancel NextOperation.
func CancelOp() NextOperation {
	return NextOperation{Kind: NextOperationBuiltin, BuiltinTarget: Cancel}
}

// Namespaced constructs a namespaced NextOperation referring to operation
// inside namespace.
func Namespaced(namespace, operation string) NextOperation {
	return NextOperation{Kind: NextOperationNamespace, Namespace: namespace, Operation: operation}
}

func (n NextOperation) String() string {
	switch n.Kind {
	case NextOperationBuiltin:
		return "builtin:" + string(n.BuiltinTarget)
	case NextOperationNamespace:
		return n.Namespace + ":" + n.Operation
	default:
		return n.Name
	}
}

type builtinWire struct {
	Builtin Builtin `json:"builtin"`
}

// MarshalJSON emits the untagged union in the same shape the original
// encodes: a builtin object, a single-key namespace object, or a bare
// string.
func (n NextOperation) MarshalJSON() ([]byte, error) {
	switch n.Kind {
	case NextOperationBuiltin:
		return json.Marshal(builtinWire{Builtin: n.BuiltinTarget})
	case NextOperationNamespace:
		return json.Marshal(map[string]string{n.Namespace: n.Operation})
	default:
		return json.Marshal(n.Name)
	}
}

// UnmarshalJSON decodes the untagged union, trying a bare string first, then
// the builtin object (it has a distinguishing "builtin" key), then a
// single-key namespace object. A JSON string never decodes as an object, so
// trying the string first does not change which variant an input selects.
func (n *NextOperation) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*n = Name(asString)
		return nil
	}

	var asBuiltin builtinWire
	if err := json.Unmarshal(data, &asBuiltin); err == nil && asBuiltin.Builtin != "" {
		if !asBuiltin.Builtin.valid() {
			return errs.Errorf(errs.InvalidOperation, "unknown builtin target %q", asBuiltin.Builtin)
		}
		*n = NextOperation{Kind: NextOperationBuiltin, BuiltinTarget: asBuiltin.Builtin}
		return nil
	}

	var asMap map[string]string
	if err := json.Unmarshal(data, &asMap); err != nil {
		return errs.NewWithCause(errs.InvalidOperation, "next-operation must be a string, a builtin object, or a single-key namespace object", err)
	}
	if len(asMap) != 1 {
		return errs.Errorf(errs.InvalidOperation, "namespaced next-operation must contain exactly one entry, got %d", len(asMap))
	}
	for ns, op := range asMap {
		*n = Namespaced(ns, op)
	}
	return nil
}

var _ fmt.Stringer = NextOperation{}
