// Package typeinfo defines the type-erased handle capabilities in the
// compiler carry alongside an opaque entity identifier (§9 "Type-erased
// capabilities"). A TypeInfo names a Go type without requiring the holder to
// import it.
package typeinfo

import "reflect"

// TypeInfo identifies a registered message type by name and underlying
// reflect.Type. Two TypeInfo values describe the same type if and only if
// their GoType fields are identical (reflect.Type values for the same type
// always compare == in Go), which is what the registry uses as the type
// identity half of the "(type name, type identity)" pair from spec §3.
type TypeInfo struct {
	// Name is the human-readable, registry-assigned name for the type (used
	// in diagnostics and in the JSON schema the registry emits).
	Name string
	// GoType is the underlying reflect.Type. It is the identity: two
	// TypeInfo values with the same GoType refer to the same registry entry
	// regardless of Name.
	GoType reflect.Type
}

// Of constructs a TypeInfo for T using name as its display name.
func Of[T any](name string) TypeInfo {
	var zero T
	return TypeInfo{Name: name, GoType: reflect.TypeOf(zero)}
}

// OfValue constructs a TypeInfo from a live value, defaulting Name to the
// type's own String() form when name is empty.
func OfValue(name string, value any) TypeInfo {
	t := reflect.TypeOf(value)
	if name == "" && t != nil {
		name = t.String()
	}
	return TypeInfo{Name: name, GoType: t}
}

// Equal reports whether two TypeInfo values identify the same type.
func (t TypeInfo) Equal(other TypeInfo) bool {
	return t.GoType == other.GoType
}

// String returns the display name, falling back to the Go type's own string
// form when no name was given.
func (t TypeInfo) String() string {
	if t.Name != "" {
		return t.Name
	}
	if t.GoType != nil {
		return t.GoType.String()
	}
	return "<unknown type>"
}

// IsValid reports whether t names a concrete type.
func (t TypeInfo) IsValid() bool {
	return t.GoType != nil
}
