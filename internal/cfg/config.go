// Package cfg holds compiler-wide configuration: the tunables that apply
// across every diagram build rather than to one particular workflow.
// Grounded on runtime/registry/manager.go's Option func(*Manager) pattern
// (the same shape regapi.Option and builder.Option reuse), generalized to a
// YAML-loadable document via gopkg.in/yaml.v3.
package cfg

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/crossflow/crossflow/internal/errs"
)

// Config is the compiler-wide tunable set. Every field has a zero-value-safe
// default applied by New, so a caller only needs to set what it wants to
// override.
type Config struct {
	// MaxBuildRounds caps the workflow builder's round loop before it gives
	// up with ExcessiveIterations (spec.md §4.F "Safety timeout").
	MaxBuildRounds int `yaml:"max_build_rounds"`
	// MaxInferenceQueueOps is loaded and defaulted here, but the inference
	// engine does not read it: inference.Infer runs without a pop limit and
	// relies on its membership-tracked queue to terminate.
	MaxInferenceQueueOps int `yaml:"max_inference_queue_ops"`
	// CELCacheSize bounds how many distinct compiled CEL programs the
	// transform package keeps cached (transform.Evaluator).
	CELCacheSize int `yaml:"cel_cache_size"`
	// DefaultTrace is loaded and defaulted to "off" here; nothing in this
	// module reads it, and diagram.Diagram.Validate does not fill in a
	// missing default_trace.
	DefaultTrace string `yaml:"default_trace"`
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithMaxBuildRounds overrides the build round safety cap.
func WithMaxBuildRounds(n int) Option {
	return func(c *Config) { c.MaxBuildRounds = n }
}

// WithCELCacheSize overrides the compiled-CEL-program cache size.
func WithCELCacheSize(n int) Option {
	return func(c *Config) { c.CELCacheSize = n }
}

// WithDefaultTrace overrides the fallback default_trace value.
func WithDefaultTrace(trace string) Option {
	return func(c *Config) { c.DefaultTrace = trace }
}

// defaults mirrors the constants spec.md §4.F names explicitly ("e.g.
// 10_000").
func defaults() Config {
	return Config{
		MaxBuildRounds:       10_000,
		MaxInferenceQueueOps: 1_000_000,
		CELCacheSize:         256,
		DefaultTrace:         "off",
	}
}

// New builds a Config starting from defaults and applying opts in order.
func New(opts ...Option) *Config {
	c := defaults()
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return &c
}

// Load reads a YAML document from path and applies opts on top of it,
// following the same "file provides the base, functional options override"
// convention the teacher's service configuration uses.
func Load(path string, opts ...Option) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewWithCause(errs.ConfigError, "failed to read compiler config", err)
	}
	c := defaults()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errs.NewWithCause(errs.ConfigError, "failed to parse compiler config", err)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return &c, nil
}
