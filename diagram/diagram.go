package diagram

import (
	"encoding/json"
	"io"

	"github.com/Masterminds/semver/v3"

	"github.com/crossflow/crossflow/internal/errs"
)

// supportedVersionRange is the semver constraint every diagram's version
// field must satisfy, matching original_source's SUPPORTED_DIAGRAM_VERSION
// (spec.md §6 "Version string must satisfy >=0.1.0, <0.2.0").
const supportedVersionRange = ">=0.1.0, <0.2.0"

// CurrentVersion is written by Diagram.New and by re-emission.
const CurrentVersion = "0.1.0"

var reservedOperationNames = map[string]struct{}{
	"":        {},
	"builtin": {},
}

// InputExample pairs an example request value with a human-readable
// description (supplemented feature, SPEC_FULL.md §4.2; original_source's
// `InputExample`).
type InputExample struct {
	Value       json.RawMessage `json:"value"`
	Description string          `json:"description,omitempty"`
}

// Diagram is the pure, registry-independent description of a workflow
// (spec.md §4.C). It deserializes from JSON with the validation spec.md §4.C
// requires and is otherwise inert data: building a live workflow from it is
// the builder package's job.
type Diagram struct {
	Version         string                       `json:"version"`
	Templates       map[string]SectionTemplate   `json:"templates,omitempty"`
	Start           NextOperation                `json:"start"`
	OnImplicitError *NextOperation               `json:"on_implicit_error,omitempty"`
	Ops             map[string]*DiagramOperation `json:"ops"`
	DefaultTrace    TraceToggle                  `json:"default_trace,omitempty"`
	Description     string                       `json:"description,omitempty"`
	InputExamples   []InputExample               `json:"input_examples,omitempty"`
	Extensions      Extensions                   `json:"extensions,omitempty"`
}

// New constructs an empty diagram rooted at start, with CurrentVersion.
func New(start NextOperation) *Diagram {
	return &Diagram{
		Version: CurrentVersion,
		Start:   start,
		Ops:     map[string]*DiagramOperation{},
	}
}

// FromJSON parses and validates a diagram from raw JSON bytes.
func FromJSON(data []byte) (*Diagram, error) {
	var d Diagram
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errs.NewWithCause(errs.InvalidOperation, "failed to parse diagram JSON", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// FromReader parses and validates a diagram streamed from r.
func FromReader(r io.Reader) (*Diagram, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.NewWithCause(errs.InvalidOperation, "failed to read diagram", err)
	}
	return FromJSON(data)
}

// OnImplicitErrorTarget returns the effective implicit-error routing:
// the diagram's override if set, otherwise the builtin cancel target
// (spec.md §7 "defaults to cancel at the root scope").
func (d *Diagram) OnImplicitErrorTarget() NextOperation {
	if d.OnImplicitError != nil {
		return *d.OnImplicitError
	}
	return CancelOp()
}

// Validate runs every structural check spec.md §4.C requires: the version
// constraint, the reserved-name check (on both ops and templates, and
// recursively within template bodies), and the template-dependency-DAG
// check. InputExamples are not validated: Validate has no registry to
// consult, so example values are carried through parse and emit unchecked.
func (d *Diagram) Validate() error {
	if _, err := parseVersion(d.Version); err != nil {
		return err
	}
	if err := validateOperationNames(d.Ops); err != nil {
		return err
	}
	for name, tmpl := range d.Templates {
		if _, reserved := reservedOperationNames[name]; reserved {
			return errs.Errorf(errs.InvalidUseOfReservedName, "template name %q is reserved", name)
		}
		if err := validateOperationNames(tmpl.Ops); err != nil {
			return err
		}
	}
	if err := d.validateTemplateUsage(); err != nil {
		return err
	}
	return nil
}

func parseVersion(v string) (*semver.Version, error) {
	constraint, err := semver.NewConstraint(supportedVersionRange)
	if err != nil {
		// supportedVersionRange is a package constant; a parse failure here
		// would be a programming error, not a diagram error.
		panic(err)
	}
	parsed, err := semver.NewVersion(v)
	if err != nil {
		return nil, errs.Errorf(errs.ConfigError, "diagram version %q is not a valid semver string", v)
	}
	if !constraint.Check(parsed) {
		return nil, errs.Errorf(errs.ConfigError, "diagram version %q does not satisfy %q", v, supportedVersionRange)
	}
	return parsed, nil
}

func validateOperationNames(ops map[string]*DiagramOperation) error {
	for name := range ops {
		if _, reserved := reservedOperationNames[name]; reserved {
			return errs.Errorf(errs.InvalidUseOfReservedName, "operation name %q is reserved", name)
		}
	}
	return nil
}

// validateTemplateUsage walks every `section` operation (in the top-level
// ops map and recursively within every template's own ops map) that
// references a template, and confirms the template dependency graph has no
// cycle (spec.md §3 "Template references form a DAG").
func (d *Diagram) validateTemplateUsage() error {
	visited := map[string]int{} // 0=unvisited, 1=in-progress, 2=done
	var visit func(name string) error
	visit = func(name string) error {
		switch visited[name] {
		case 1:
			return errs.Errorf(errs.CircularTemplateDependency, "template %q is part of a dependency cycle", name)
		case 2:
			return nil
		}
		tmpl, ok := d.Templates[name]
		if !ok {
			return errs.Errorf(errs.UnknownTemplate, "unknown template %q", name)
		}
		visited[name] = 1
		for _, op := range tmpl.Ops {
			if op.Kind == OpSection && op.Section.Provider.Kind == SectionProviderTemplate {
				if err := visit(op.Section.Provider.ID); err != nil {
					return err
				}
			}
		}
		visited[name] = 2
		return nil
	}

	checkOps := func(ops map[string]*DiagramOperation) error {
		for _, op := range ops {
			if op.Kind == OpSection && op.Section.Provider.Kind == SectionProviderTemplate {
				if err := visit(op.Section.Provider.ID); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := checkOps(d.Ops); err != nil {
		return err
	}
	for _, tmpl := range d.Templates {
		if err := checkOps(tmpl.Ops); err != nil {
			return err
		}
	}
	return nil
}
