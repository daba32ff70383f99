package diagram

import (
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/crossflow/crossflow/internal/errs"
)

// Patch applies a JSON-Patch (RFC 6902) document to d and returns the
// resulting diagram, re-validated. This is the library-level capability
// behind the original Rust implementation's diagram editor
// (diagram-editor/server/basic_executor.rs mutates diagrams this way); the
// HTTP transport and editor UI around it are explicitly out of scope (spec.md
// Non-goals), but the underlying apply-and-revalidate step is small,
// self-contained, and useful to any tool authoring diagrams programmatically
// (supplemented feature, SPEC_FULL.md §4.1).
func Patch(d *Diagram, patch []byte) (*Diagram, error) {
	original, err := json.Marshal(d)
	if err != nil {
		return nil, errs.NewWithCause(errs.ConfigError, "failed to marshal diagram before patching", err)
	}
	decoded, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, errs.NewWithCause(errs.ConfigError, "invalid JSON-Patch document", err)
	}
	patched, err := decoded.Apply(original)
	if err != nil {
		return nil, errs.NewWithCause(errs.ConfigError, "failed to apply JSON-Patch to diagram", err)
	}
	return FromJSON(patched)
}
