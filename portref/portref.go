// Package portref implements the Port & Reference Model (spec.md §4.D): the
// namespace-qualified handles used throughout the compiler to name an
// operation, one of its outputs, or one of its input ports, without ever
// touching the live graph. OperationRef, OutputRef and PortRef hold slices
// and so are not comparable; each renders a canonical string (Key or
// MapKey) that keys Go maps instead (the hash-map-key requirement of
// spec.md §4.D "Serializable ... as hash-map keys").
//
// Grounded on original_source/src/diagram/output_ref.rs: NamespaceList,
// OutputKey (a short slice of name-or-index segments), and the namespace
// re-rooting method names are carried over faithfully; NameOrIndex's two
// variants become a small tagged struct since Go has no native sum type.
package portref

import "strings"

// NameOrIndex is either a string key or an integer index within an
// OutputKey/port path segment (e.g. fork_clone's outputs are indexed,
// fork_result's are named "ok"/"err").
type NameOrIndex struct {
	Name    string
	Index   int
	IsIndex bool
}

// Named constructs a NameOrIndex segment from a string key.
func Named(name string) NameOrIndex { return NameOrIndex{Name: name} }

// Indexed constructs a NameOrIndex segment from an integer index.
func Indexed(index int) NameOrIndex { return NameOrIndex{Index: index, IsIndex: true} }

// String renders the segment the way a port path displays it: indices as
// decimal digits, names as the bare name.
func (n NameOrIndex) String() string {
	if n.IsIndex {
		return itoa(n.Index)
	}
	return n.Name
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// NamespaceList is an ordered stack of namespace segments locating an
// operation inside nested sections/scopes. The empty list refers to the
// workflow's root.
type NamespaceList []string

// WithParent returns a new NamespaceList with parent's segments prepended,
// the re-rooting operation spec.md §4.D requires of every reference type.
func (ns NamespaceList) WithParent(parent []string) NamespaceList {
	if len(parent) == 0 {
		return ns
	}
	out := make(NamespaceList, 0, len(parent)+len(ns))
	out = append(out, parent...)
	out = append(out, ns...)
	return out
}

// Key renders ns as a map-safe string key, joining with a separator that
// cannot appear in a namespace segment.
func (ns NamespaceList) Key() string { return strings.Join(ns, "\x1f") }

func (ns NamespaceList) String() string {
	var b strings.Builder
	for _, seg := range ns {
		b.WriteString(seg)
		b.WriteByte(':')
	}
	return b.String()
}

// OperationName identifies an operation within its namespace, by plain name
// or by a builtin kind.
type OperationName struct {
	Name    string
	Builtin Builtin
}

// Builtin enumerates the operations a diagram can target without naming an
// author-declared operation (spec.md §6 "NextOperation ... {\"builtin\":
// ...}").
type Builtin int

const (
	// NotBuiltin marks an OperationName that names a regular operation.
	NotBuiltin Builtin = iota
	Terminate
	Dispose
	Cancel
)

func (b Builtin) String() string {
	switch b {
	case Terminate:
		return "terminate"
	case Dispose:
		return "dispose"
	case Cancel:
		return "cancel"
	default:
		return ""
	}
}

// NamedOperation constructs an OperationName for an author-declared
// operation.
func NamedOperation(name string) OperationName { return OperationName{Name: name} }

// BuiltinOperation constructs an OperationName for one of the builtin
// targets.
func BuiltinOperation(b Builtin) OperationName { return OperationName{Builtin: b} }

func (n OperationName) String() string {
	if n.Builtin != NotBuiltin {
		return n.Builtin.String()
	}
	return n.Name
}

// OperationRef locates an operation inside a namespace stack.
type OperationRef struct {
	Namespaces NamespaceList
	Operation  OperationName
}

// InNamespaces re-roots the reference under parentNamespaces (spec.md §4.D
// "Re-rootable").
func (r OperationRef) InNamespaces(parentNamespaces []string) OperationRef {
	r.Namespaces = r.Namespaces.WithParent(parentNamespaces)
	return r
}

func (r OperationRef) String() string {
	return r.Namespaces.String() + r.Operation.String()
}

// Key renders a map-safe string key. Namespaces is a slice, so OperationRef
// is not itself comparable; the forward/back-connection and redirection
// maps of the inference engine (spec.md §4.E) key on this instead.
func (r OperationRef) Key() string { return r.Namespaces.Key() + "\x1e" + r.Operation.String() }

// OutputKey uniquely identifies one output of an operation, e.g.
// ["next"], ["stream_out","log"], ["next", 0], ["ok"]/["err"].
type OutputKey []NameOrIndex

// Key builds an OutputKey from name-or-index segments.
func Key(segments ...NameOrIndex) OutputKey { return OutputKey(segments) }

func (k OutputKey) String() string {
	var b strings.Builder
	for i, seg := range k {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.String())
	}
	return b.String()
}

// Common output keys used pervasively across operation kinds (spec.md §4.G).
func NextKey() OutputKey                   { return Key(Named("next")) }
func NextIndexKey(i int) OutputKey         { return Key(Named("next"), Indexed(i)) }
func OkKey() OutputKey                     { return Key(Named("ok")) }
func ErrKey() OutputKey                    { return Key(Named("err")) }
func StreamOutKey(stream string) OutputKey { return Key(Named("stream_out"), Named(stream)) }
func SequentialKey(i int) OutputKey        { return Key(Named("sequential"), Indexed(i)) }
func KeyedKey(name string) OutputKey       { return Key(Named("keyed"), Named(name)) }
func RemainingKey() OutputKey              { return Key(Named("remaining")) }
func SectionOutputKey(output string) OutputKey { return Key(Named("connect"), Named(output)) }

func (k OutputKey) key() string {
	var b strings.Builder
	for _, seg := range k {
		if seg.IsIndex {
			b.WriteByte('#')
			b.WriteString(itoa(seg.Index))
		} else {
			b.WriteByte('$')
			b.WriteString(seg.Name)
		}
		b.WriteByte('\x1d')
	}
	return b.String()
}

// OutputRef names either a specific operation's output, or the implicit
// "start" output of a scope (spec.md §4.D, output_ref.rs's OutputRef enum).
type OutputRef struct {
	// IsStart marks this as the implicit start-of-scope output; when true,
	// Operation and Key are ignored and only Namespaces applies.
	IsStart    bool
	Namespaces NamespaceList
	Operation  OperationName
	Key        OutputKey
}

// Start constructs the implicit start-of-scope OutputRef.
func Start() OutputRef { return OutputRef{IsStart: true} }

// Of constructs a named OutputRef for op's output at key.
func Of(op OperationName, key OutputKey) OutputRef {
	return OutputRef{Operation: op, Key: key}
}

// InNamespaces re-roots the reference, per spec.md §4.D.
func (r OutputRef) InNamespaces(parentNamespaces []string) OutputRef {
	r.Namespaces = r.Namespaces.WithParent(parentNamespaces)
	return r
}

func (r OutputRef) String() string {
	if r.IsStart {
		return r.Namespaces.String() + "(start)"
	}
	return r.Namespaces.String() + r.Operation.String() + "." + r.Key.String()
}

// mapKey renders a canonical string usable as a Go map key even though
// OutputRef itself is not directly comparable — Namespaces and Key are
// both slices, so OutputRef cannot be a map key without this.
func (r OutputRef) mapKey() string {
	if r.IsStart {
		return "S\x1e" + r.Namespaces.Key()
	}
	return "N\x1e" + r.Namespaces.Key() + "\x1e" + r.Operation.String() + "\x1e" + r.Key.key()
}

// MapKey exposes the canonical string key for OutputRef, for use wherever an
// OutputRef must key a map (forward/back-connection maps in the inference
// engine, spec.md §4.E).
func (r OutputRef) MapKey() string { return r.mapKey() }

// PortRef names an input port: an operation plus the port's key within it
// (e.g. a node's sole input, or a join's named buffer slot).
type PortRef struct {
	Namespaces NamespaceList
	Operation  OperationName
	Key        string
}

// InNamespaces re-roots the reference, per spec.md §4.D.
func (r PortRef) InNamespaces(parentNamespaces []string) PortRef {
	r.Namespaces = r.Namespaces.WithParent(parentNamespaces)
	return r
}

// String renders the canonical diagnostic display form spec.md §4.D
// requires: "ns1:ns2:opname.key".
func (r PortRef) String() string {
	return r.Namespaces.String() + r.Operation.String() + "." + r.Key
}

// MapKey renders a canonical string key for PortRef. Namespaces is a slice,
// so PortRef is not itself comparable; callers needing it as a map key (the
// inference engine's per-port state table, spec.md §4.E) use MapKey instead.
func (r PortRef) MapKey() string { return r.String() }

// TerminateRef returns the builtin terminate PortRef for the scope at
// namespaces (spec.md §4.D "Builtin-aware").
func TerminateRef(namespaces NamespaceList) PortRef {
	return PortRef{Namespaces: namespaces, Operation: BuiltinOperation(Terminate), Key: "in"}
}

// CancelRef returns the builtin cancel PortRef for the scope at namespaces.
func CancelRef(namespaces NamespaceList) PortRef {
	return PortRef{Namespaces: namespaces, Operation: BuiltinOperation(Cancel), Key: "in"}
}
