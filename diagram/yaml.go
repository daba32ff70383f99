package diagram

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/crossflow/crossflow/internal/errs"
)

// ParseYAML parses and validates a diagram authored in YAML, a convenience
// for hand-written example diagrams and configuration-adjacent tooling
// (SPEC_FULL.md domain stack: gopkg.in/yaml.v3, used throughout this
// codebase's config layer). yaml.v3 decodes mapping nodes as
// map[string]interface{} natively, so the decoded tree round-trips through
// encoding/json directly; every json.Unmarshaler defined in this package
// (NextOperation, DiagramOperation, BufferSelection, SectionProvider) then
// runs as usual against the re-marshaled JSON.
func ParseYAML(data []byte) (*Diagram, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, errs.NewWithCause(errs.InvalidOperation, "failed to parse diagram YAML", err)
	}
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return nil, errs.NewWithCause(errs.InvalidOperation, "failed to convert diagram YAML to JSON", err)
	}
	return FromJSON(asJSON)
}
