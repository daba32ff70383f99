// Command crossflow-lint checks a diagram without building a live workflow.
// With -scenario it loads a bundled example and its registry, runs the
// Inference Engine (spec.md §4.E) against the request/response boundary,
// and reports either success (with the operation count) or the first
// DiagramError encountered, with its Code and any attached details. With
// -diagram it only parses and structurally validates the file; no type
// inference is run for an external file. It never calls
// builder.Build, so it never touches a runtimeapi.Host — matching the
// teacher's small single-purpose cmd/regolden tools rather than its
// full HTTP service entry point.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/crossflow/crossflow/diagram"
	"github.com/crossflow/crossflow/examples"
	"github.com/crossflow/crossflow/inference"
	"github.com/crossflow/crossflow/internal/errs"
)

func main() {
	var (
		pathF     = flag.String("diagram", "", "path to a diagram file (.json or .yaml); mutually exclusive with -scenario")
		scenarioF = flag.String("scenario", "", "name of a bundled example scenario to check instead of -diagram (see -list)")
		listF     = flag.Bool("list", false, "list bundled example scenario names and exit")
	)
	flag.Parse()

	if *listF {
		for _, name := range examples.Names() {
			fmt.Println(name)
		}
		return
	}

	if (*pathF == "") == (*scenarioF == "") {
		fmt.Fprintln(os.Stderr, "crossflow-lint: exactly one of -diagram or -scenario is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*pathF, *scenarioF); err != nil {
		reportFailure(err)
		os.Exit(1)
	}
	fmt.Println("ok: no errors found")
}

func run(path, scenario string) error {
	if scenario != "" {
		return lintScenario(scenario)
	}
	return lintFile(path)
}

func lintScenario(name string) error {
	d, err := examples.Load(name)
	if err != nil {
		return err
	}
	mgr, err := examples.NewManager()
	if err != nil {
		return err
	}
	request, response, err := examples.Boundary(name)
	if err != nil {
		return err
	}
	result, err := inference.Infer(d, mgr, request, response, nil)
	if err != nil {
		return err
	}
	return printResult(d, result)
}

func lintFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.NewWithCause(errs.InvalidOperation, "failed to read diagram file", err)
	}

	var d *diagram.Diagram
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		d, err = diagram.ParseYAML(data)
	} else {
		d, err = diagram.FromJSON(data)
	}
	if err != nil {
		return err
	}

	// A standalone file has no application-specific node/section builders
	// available to this tool, so it is checked purely at the structural
	// level: JSON shape, version range, reserved names, template cycles
	// (diagram.FromJSON/ParseYAML already ran diagram.Validate). Full type
	// inference additionally requires a live registry — use -scenario
	// against a bundled fixture to exercise that path end to end.
	fmt.Printf("diagram %q is structurally valid (%d operation(s)); pass -scenario to also run type inference against a registered example registry\n", path, len(d.Ops))
	return nil
}

func printResult(d *diagram.Diagram, result *inference.Result) error {
	fmt.Printf("inference succeeded for %d operation(s)\n", len(d.Ops))
	return nil
}

func reportFailure(err error) {
	de, ok := errs.As(err)
	if !ok {
		fmt.Fprintf(os.Stderr, "crossflow-lint: %s\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "crossflow-lint: [%s] %s\n", de.Code, de.Error())
	if de.Port != "" {
		fmt.Fprintf(os.Stderr, "  at port: %s\n", de.Port)
	}
	if len(de.Details) > 0 {
		if b, err := json.MarshalIndent(de.Details, "  ", "  "); err == nil {
			fmt.Fprintf(os.Stderr, "  details: %s\n", b)
		}
	}
}
