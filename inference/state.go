package inference

import (
	"github.com/crossflow/crossflow/portref"
	"github.com/crossflow/crossflow/registry"
)

// portState is the per-port inference record: an optional resolved type and
// an optional constraint that can derive one (original_source's
// MessageTypeInference).
type portState struct {
	hasType     bool
	messageType registry.Index
	constraint  Constraint
}

// bufferHint is a deferred evaluation contributed by a buffer_access/listen/
// join operation: once usedBy's own type is known, evaluate consults that
// type's BufferAccess/Listen/Join layout for what member expects, per
// original_source's BufferInference.
type bufferHint struct {
	buffer   portref.OperationRef
	usedBy   PortKey
	member   string
	evaluate func(ctx *Context, msgType registry.Index, member string) (registry.Index, bool, error)
}

// state is the mutable inference workspace threaded through both the
// constraint-gathering pass and the fixed-point evaluation pass
// (original_source's Inferences).
type state struct {
	evaluations map[PortKey]*portState

	// connectionsInto[target.Key()] lists every output connected into that
	// operation's input.
	connectionsInto map[string][]portref.OutputRef
	// redirectedInto[from.Key()] is the single operation `from`'s input is
	// redirected into.
	redirectedInto map[string]portref.OperationRef
	// redirectionsInto[into.Key()] lists every operation that redirects its
	// input into `into`.
	redirectionsInto map[string][]portref.OperationRef

	bufferHints map[string][]bufferHint
}

func newState() *state {
	return &state{
		evaluations:      map[PortKey]*portState{},
		connectionsInto:  map[string][]portref.OutputRef{},
		redirectedInto:   map[string]portref.OperationRef{},
		redirectionsInto: map[string][]portref.OperationRef{},
		bufferHints:      map[string][]bufferHint{},
	}
}

func (s *state) entry(port PortKey) *portState {
	e, ok := s.evaluations[port]
	if !ok {
		e = &portState{}
		s.evaluations[port] = e
	}
	return e
}

// fixed specifies exactly what message type a port has, irrespective of any
// connection (original_source's InferenceContext::fixed).
func (s *state) fixed(port PortKey, messageType registry.Index) {
	s.entry(port).hasType = true
	s.entry(port).messageType = messageType
}

// connect records that output feeds into input's port (original_source's
// InferenceContext::connect).
func (s *state) connect(output portref.OutputRef, input portref.OperationRef) {
	key := input.Key()
	s.connectionsInto[key] = append(s.connectionsInto[key], output)
}

// constrain attaches constraint to port, used once per port by construction.
func (s *state) constrain(port PortKey, c Constraint) {
	s.entry(port).constraint = c
}

// redirect specifies that operation `from` simply forwards its input into
// `into` (original_source's InferenceContext::redirect): from's own type is
// constrained to exactly match into's, and the redirect edge is recorded in
// both directions for circular-redirect detection and connection tracing.
func (s *state) redirect(from, into portref.OperationRef) {
	s.constrain(InputPort(from), ExactMatch{Target: InputPort(into)})
	s.redirectedInto[from.Key()] = into
	s.redirectionsInto[into.Key()] = append(s.redirectionsInto[into.Key()], from)
}

// inferFromDownstream specifies that an output's type should be derived
// directly from whatever type its target input resolves to.
func (s *state) inferFromDownstream(output portref.OutputRef, input portref.OperationRef) {
	s.constrain(OutputPort(output), ExactMatch{Target: InputPort(input)})
	s.connect(output, input)
}

func (s *state) addBufferHint(buffer portref.OperationRef, hint bufferHint) {
	hint.buffer = buffer
	key := buffer.Key()
	s.bufferHints[key] = append(s.bufferHints[key], hint)
}
