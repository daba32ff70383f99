// Package errs provides the structured error taxonomy returned by the diagram
// compiler. DiagramError preserves a stable code alongside optional port
// context and a cause chain so callers can branch on errors.Is/errors.As
// without parsing messages.
package errs

import (
	"errors"
	"fmt"
)

// Code classifies a compiler failure into a small, stable set of categories
// that callers (tests, diagnostics UIs) can match on.
type Code string

// The full exit-condition taxonomy of the diagram-to-workflow compiler.
const (
	TypeMismatch                Code = "type_mismatch"
	MissingStartOrTerminate     Code = "missing_start_or_terminate"
	NotSerializable             Code = "not_serializable"
	NotDeserializable           Code = "not_deserializable"
	NotCloneable                Code = "not_cloneable"
	NotUnzippable               Code = "not_unzippable"
	InvalidUnzip                Code = "invalid_unzip"
	CannotForkResult            Code = "cannot_fork_result"
	NotSplittable               Code = "not_splittable"
	NotJoinable                 Code = "not_joinable"
	EmptyJoin                   Code = "empty_join"
	UnknownJoinField            Code = "unknown_join_field"
	UnknownOperation            Code = "unknown_operation"
	UnknownTemplate             Code = "unknown_template"
	UnknownPort                 Code = "unknown_port"
	CannotInferType             Code = "cannot_infer_type"
	UnknownMessageTypeIndex     Code = "unknown_message_type_index"
	InvalidOperation            Code = "invalid_operation"
	CannotTransform             Code = "cannot_transform"
	CannotBoxOrUnbox            Code = "cannot_box_or_unbox"
	CannotAccessBuffers         Code = "cannot_access_buffers"
	CannotListen                Code = "cannot_listen"
	IncompatibleBuffers         Code = "incompatible_buffers"
	SectionError                Code = "section_error"
	IncompleteDiagram           Code = "incomplete_diagram"
	ConfigError                 Code = "config_error"
	BuildHalted                 Code = "build_halted"
	ExcessiveIterations         Code = "excessive_iterations"
	InvalidUseOfReservedName    Code = "invalid_use_of_reserved_name"
	CircularRedirect            Code = "circular_redirect"
	CircularTemplateDependency  Code = "circular_template_dependency"
	FinishingErrors             Code = "finishing_errors"
	DuplicateInputsCreated      Code = "duplicate_inputs_created"
	DuplicateBuffersCreated     Code = "duplicate_buffers_created"
	MessageTypeInferenceFailure Code = "message_type_inference_failure"
	InconsistentBufferHints     Code = "inconsistent_buffer_hints"
	NestedError                 Code = "nested_error"
)

// DiagramError is the structured failure returned by every stage of the
// compiler. It carries a stable Code, a human-readable Message, the Port the
// failure surfaced at (when known), and an optional chain of Details for
// codes that need richer context (BuildHalted reasons, inference ambiguity
// lists, and so on).
type DiagramError struct {
	// Code is the stable classification used for programmatic matching.
	Code Code
	// Message is the human-readable summary of the failure.
	Message string
	// Port names the PortRef string (e.g. "ns1:ns2:opname.key") the error was
	// attached to by the outermost caller. Empty when the failure has no
	// single associated port.
	Port string
	// Details carries code-specific structured context, e.g. the per-operation
	// deferral reasons for BuildHalted or the ambiguous/no-choice port lists
	// for MessageTypeInferenceFailure.
	Details map[string]any
	// Cause links to the underlying diagram error, enabling error chains with
	// errors.Is/As across nested scopes and sections.
	Cause *DiagramError
}

// New constructs a DiagramError with the given code and message.
func New(code Code, message string) *DiagramError {
	if message == "" {
		message = string(code)
	}
	return &DiagramError{Code: code, Message: message}
}

// Errorf formats a DiagramError message according to a format specifier.
func Errorf(code Code, format string, args ...any) *DiagramError {
	return New(code, fmt.Sprintf(format, args...))
}

// NewWithCause constructs a DiagramError that wraps an underlying error. The
// cause is converted into a DiagramError chain so errors.Is/As keeps working
// across package boundaries (e.g. a SectionError wrapping the inner
// diagram's failure).
func NewWithCause(code Code, message string, cause error) *DiagramError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &DiagramError{
		Code:    code,
		Message: message,
		Cause:   FromError(cause),
	}
}

// FromError converts an arbitrary error into a DiagramError chain, preserving
// the code of the first DiagramError found in the chain, or NestedError if
// none is found.
func FromError(err error) *DiagramError {
	if err == nil {
		return nil
	}
	var de *DiagramError
	if errors.As(err, &de) {
		return de
	}
	return &DiagramError{
		Code:    NestedError,
		Message: err.Error(),
	}
}

// WithPort returns a copy of e annotated with the given port reference
// string. The outermost spawn_workflow call uses this to attach the port at
// which a code-only internal error surfaced.
func (e *DiagramError) WithPort(port string) *DiagramError {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Port = port
	return &cp
}

// WithDetails returns a copy of e with the given structured details merged
// in.
func (e *DiagramError) WithDetails(details map[string]any) *DiagramError {
	if e == nil {
		return nil
	}
	cp := *e
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	cp.Details = merged
	return &cp
}

// Error implements the error interface.
func (e *DiagramError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Port != "" {
		msg = fmt.Sprintf("%s: %s", e.Port, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying diagram error to support errors.Is/As.
func (e *DiagramError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is a DiagramError with the same Code, allowing
// callers to write errors.Is(err, errs.New(errs.UnknownOperation, "")).
func (e *DiagramError) Is(target error) bool {
	var de *DiagramError
	if !errors.As(target, &de) {
		return false
	}
	return de.Code == e.Code
}

// As reports whether err's chain contains a DiagramError, returning the
// first one found.
func As(err error) (*DiagramError, bool) {
	var de *DiagramError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Is reports whether err is a DiagramError with the given code.
func Is(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}
