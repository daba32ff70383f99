package diagram

import (
	"encoding/json"

	"github.com/crossflow/crossflow/internal/errs"
)

// SectionProviderKind discriminates SectionProvider.
type SectionProviderKind int

const (
	SectionProviderBuilder SectionProviderKind = iota
	SectionProviderTemplate
)

// SectionProvider names how a `section` operation gets its interface: either
// a registered section builder id, or the name of a section template defined
// in the diagram's top-level `templates` map (spec.md §4.C "section:
// provider (builder id or template name)"; original_source's
// `SectionProvider` enum).
type SectionProvider struct {
	Kind SectionProviderKind
	ID   string
}

func BuilderProvider(id string) SectionProvider {
	return SectionProvider{Kind: SectionProviderBuilder, ID: id}
}

func TemplateProvider(name string) SectionProvider {
	return SectionProvider{Kind: SectionProviderTemplate, ID: name}
}

func (p SectionProvider) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case SectionProviderTemplate:
		return json.Marshal(map[string]string{"template": p.ID})
	default:
		return json.Marshal(map[string]string{"builder": p.ID})
	}
}

func (p *SectionProvider) UnmarshalJSON(data []byte) error {
	var asMap map[string]string
	if err := json.Unmarshal(data, &asMap); err != nil {
		return errs.NewWithCause(errs.InvalidOperation, "section provider must be {\"builder\": \"...\"} or {\"template\": \"...\"}", err)
	}
	if id, ok := asMap["builder"]; ok && len(asMap) == 1 {
		*p = BuilderProvider(id)
		return nil
	}
	if id, ok := asMap["template"]; ok && len(asMap) == 1 {
		*p = TemplateProvider(id)
		return nil
	}
	return errs.New(errs.InvalidOperation, "section provider must contain exactly one of \"builder\" or \"template\"")
}
