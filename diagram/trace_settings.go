package diagram

import "encoding/json"

// TraceToggle controls whether an operation emits a tracing event each time
// it is triggered, and whether that event carries a serialized copy of the
// message (original_source's TraceToggle).
type TraceToggle string

const (
	TraceOff      TraceToggle = "off"
	TraceOn       TraceToggle = "on"
	TraceMessages TraceToggle = "messages"
)

// IsOn reports whether t requests any tracing at all.
func (t TraceToggle) IsOn() bool { return t != "" && t != TraceOff }

// WithMessages reports whether t additionally requests the serialized
// message payload.
func (t TraceToggle) WithMessages() bool { return t == TraceMessages }

// TraceSettings is embedded into every DiagramOperation variant (supplemented
// feature, SPEC_FULL.md §4.3, grounded on original_source/src/diagram.rs's
// `TraceSettings` struct). DisplayText overrides an editor's rendering of the
// operation; Trace overrides the diagram's default_trace for this operation
// alone. Extensions carries settings for forward-compatible diagram
// authoring tools under the recognized "extensions" key (supplemented
// feature §4.4, original_source's `ExtensionSettings` flattened into
// TraceSettings) — any OTHER unrecognized key on the surrounding operation is
// still rejected at decode time, per spec.md §6.
type TraceSettings struct {
	DisplayText string     `json:"display_text,omitempty"`
	Trace       *TraceToggle `json:"trace,omitempty"`
	Extensions  Extensions `json:"extensions,omitempty"`
}

// Extensions is an opaque settings bag for diagram-authoring tooling that
// this compiler does not interpret but preserves through parse/re-emit
// (supplemented feature §4.4).
type Extensions map[string]json.RawMessage

// EffectiveTrace resolves the trace toggle an operation should actually use:
// its own override if set, otherwise the diagram's default_trace. Addresses
// the REDESIGN FLAG in spec.md §9 that every operation, including stream-out
// nodes, must consistently fall back to default_trace rather than always
// tracing or never tracing.
func (s TraceSettings) EffectiveTrace(defaultTrace TraceToggle) TraceToggle {
	if s.Trace != nil {
		return *s.Trace
	}
	return defaultTrace
}
