// Package transform implements the CEL expression evaluator backing the
// `transform` diagram operation (spec.md §3 "transform: CEL expression +
// next target (operates only on JSON)"). A transform node is fixed to the
// canonical JSON type on both ends (inference/contribute.go's
// contributeTransform), so the evaluator only ever sees and produces
// messages.JSON.
//
// Grounded on the condition evaluator in Dutt23-agentic-orchestrator's
// cmd/workflow-runner (a compile-once, cache-by-expression-string CEL
// evaluator gating graph edges), adapted here to a full value transform
// rather than a boolean gate. Library: github.com/google/cel-go.
package transform

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/crossflow/crossflow/internal/errs"
)

var nativeAnyType = reflect.TypeOf((*any)(nil)).Elem()

// Evaluator compiles and caches CEL programs keyed by their source
// expression string, so a diagram that reuses the same `transform`
// expression across many operations (or across many built workflows from
// the same registered diagram) only pays compilation cost once.
type Evaluator struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
	cap      int
}

// NewEvaluator constructs an Evaluator. cacheSize bounds the number of
// distinct compiled programs retained; 0 means unbounded, matching
// internal/cfg.Config.CELCacheSize's default of 256 in ordinary use.
func NewEvaluator(cacheSize int) (*Evaluator, error) {
	env, err := cel.NewEnv(
		// The transform operation's sole input is the canonical JSON
		// message, decoded into a CEL dynamic value under the name "msg".
		cel.Variable("msg", cel.DynType),
	)
	if err != nil {
		return nil, errs.NewWithCause(errs.ConfigError, "failed to construct CEL environment", err)
	}
	return &Evaluator{env: env, programs: make(map[string]cel.Program), cap: cacheSize}, nil
}

// compile returns the cached program for expr, compiling and caching it on
// first use.
func (e *Evaluator) compile(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errs.NewWithCause(errs.CannotTransform, fmt.Sprintf("failed to compile CEL expression %q", expr), issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, errs.NewWithCause(errs.CannotTransform, fmt.Sprintf("failed to plan CEL program %q", expr), err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cap > 0 && len(e.programs) >= e.cap {
		// Evict an arbitrary entry; transform expressions are small and
		// recompilation is cheap relative to the memory this bounds.
		for k := range e.programs {
			delete(e.programs, k)
			break
		}
	}
	e.programs[expr] = prg
	return prg, nil
}

// Eval decodes input as JSON, evaluates expr against it bound to the `msg`
// variable, and re-encodes the result as JSON, matching the transform
// operation's JSON-in/JSON-out contract (spec.md §4.G "Transform").
func (e *Evaluator) Eval(expr string, input json.RawMessage) (json.RawMessage, error) {
	prg, err := e.compile(expr)
	if err != nil {
		return nil, err
	}

	var msg any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &msg); err != nil {
			return nil, errs.NewWithCause(errs.CannotTransform, "transform input is not valid JSON", err)
		}
	}

	out, _, err := prg.Eval(map[string]any{"msg": msg})
	if err != nil {
		return nil, errs.NewWithCause(errs.CannotTransform, fmt.Sprintf("CEL evaluation of %q failed", expr), err)
	}

	native, err := out.ConvertToNative(nativeAnyType)
	if err != nil {
		return nil, errs.NewWithCause(errs.CannotTransform, "failed to convert CEL result to a JSON-compatible value", err)
	}
	encoded, err := json.Marshal(native)
	if err != nil {
		return nil, errs.NewWithCause(errs.CannotTransform, "failed to encode CEL result as JSON", err)
	}
	return encoded, nil
}
