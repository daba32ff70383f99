// Package messages installs the pre-populated set of builtin message types
// spec.md §4.B promises every Manager can draw on without further
// registration: the canonical JSON message, the primitive scalars used
// pervasively as node request/response types in example diagrams, and
// TransformError, the stringifiable error type a failed `transform` or
// try-convert adapter reports through on_implicit_error.
//
// Grounded on original_source/src/diagram/registration/message_operations.rs,
// which registers exactly this "JSON + scalars + well-known error type" set
// against the registry's bootstrap once, before any application-specific
// registration runs.
package messages

import (
	"encoding/json"
	"fmt"

	"github.com/crossflow/crossflow/regapi"
	"github.com/crossflow/crossflow/registry"
	"github.com/crossflow/crossflow/typeinfo"
)

// JSON is the canonical JSON message type every other type can be
// serialized into or deserialized from. It is a raw, unparsed JSON document
// so serialize/deserialize are exact round-trips with no intermediate
// decode, matching spec.md §3 "convert to/from the canonical JSON message".
type JSON = json.RawMessage

// TransformError is the stringifiable error value a failed `transform` CEL
// evaluation (transform.Evaluator) or a failed try-convert adapter produces.
// It is routed through on_implicit_error the same way any other adapter
// error branch is, per spec.md §4.F "Implicit-adapter invariants".
type TransformError struct {
	// Op names the operation (CEL expression or conversion) that failed.
	Op string
	// Reason is the underlying failure message.
	Reason string
}

func (e TransformError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Reason) }

// RegisterBuiltins installs JSON, the primitive scalars, and TransformError
// into mgr's registry, installing serialize, deserialize and clone for each
// regardless of the Manager's common-operation defaults. It is idempotent
// only in the sense that calling it
// twice on the same Manager re-registers the same Go types against the same
// indices (GetIndexOrInsertPlaceholder is itself idempotent per type); it is
// meant to be called exactly once per Manager, immediately after
// regapi.NewManager.
func RegisterBuiltins(mgr *regapi.Manager) error {
	registerJSON(mgr)
	registerScalar[string](mgr, "string", func(s string) (JSON, error) { return json.Marshal(s) })
	registerScalar[bool](mgr, "bool", func(b bool) (JSON, error) { return json.Marshal(b) })
	registerScalar[int64](mgr, "int64", func(n int64) (JSON, error) { return json.Marshal(n) })
	registerScalar[float64](mgr, "float64", func(f float64) (JSON, error) { return json.Marshal(f) })
	registerTransformError(mgr)
	return nil
}

func registerJSON(mgr *regapi.Manager) {
	b := regapi.Message[JSON](mgr, "json")
	b.Serialize(func(msg any) ([]byte, error) {
		doc, ok := msg.(JSON)
		if !ok {
			return nil, fmt.Errorf("messages: expected JSON, got %T", msg)
		}
		return append([]byte(nil), doc...), nil
	})
	b.Deserialize(func(data []byte) (any, error) {
		return JSON(append([]byte(nil), data...)), nil
	})
	b.Clone(func(msg any) (any, error) {
		doc, ok := msg.(JSON)
		if !ok {
			return nil, fmt.Errorf("messages: expected JSON, got %T", msg)
		}
		return append(JSON(nil), doc...), nil
	})
	mgr.Registry().SetJSONIndex(b.Index())
}

// registerScalar registers T as a common-ops-enabled message that
// round-trips through marshal, following the Manager's default serializer
// shape for every primitive Go kind diagrams tend to use directly as a node
// request/response type.
func registerScalar[T comparable](mgr *regapi.Manager, name string, marshal func(T) (JSON, error)) registry.Index {
	b := regapi.Message[T](mgr, name)
	b.Serialize(func(msg any) ([]byte, error) {
		v, ok := msg.(T)
		if !ok {
			return nil, fmt.Errorf("messages: expected %s, got %T", name, msg)
		}
		return marshal(v)
	})
	b.Deserialize(func(data []byte) (any, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	})
	b.Clone(func(msg any) (any, error) { return msg, nil })
	b.ToString(func(msg any) (string, error) { return fmt.Sprintf("%v", msg), nil })
	return b.Index()
}

func registerTransformError(mgr *regapi.Manager) {
	b := regapi.Message[TransformError](mgr, "transform_error")
	b.Serialize(func(msg any) ([]byte, error) {
		te, ok := msg.(TransformError)
		if !ok {
			return nil, fmt.Errorf("messages: expected TransformError, got %T", msg)
		}
		return json.Marshal(te)
	})
	b.Deserialize(func(data []byte) (any, error) {
		var te TransformError
		if err := json.Unmarshal(data, &te); err != nil {
			return nil, err
		}
		return te, nil
	})
	b.Clone(func(msg any) (any, error) { return msg, nil })
	b.ToString(func(msg any) (string, error) {
		te, ok := msg.(TransformError)
		if !ok {
			return "", fmt.Errorf("messages: expected TransformError, got %T", msg)
		}
		return te.Error(), nil
	})
	_ = typeinfo.Of[TransformError]("transform_error")
}
