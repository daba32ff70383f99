package diagram

import (
	"bytes"
	"encoding/json"

	"github.com/crossflow/crossflow/internal/errs"
)

// OperationKind discriminates DiagramOperation's thirteen variants, matching
// original_source's `DiagramOperation` enum one-for-one (spec.md §3
// "Operation schemas").
type OperationKind string

const (
	OpNode         OperationKind = "node"
	OpSection      OperationKind = "section"
	OpScope        OperationKind = "scope"
	OpStreamOut    OperationKind = "stream_out"
	OpForkClone    OperationKind = "fork_clone"
	OpUnzip        OperationKind = "unzip"
	OpForkResult   OperationKind = "fork_result"
	OpSplit        OperationKind = "split"
	OpJoin         OperationKind = "join"
	OpTransform    OperationKind = "transform"
	OpBuffer       OperationKind = "buffer"
	OpBufferAccess OperationKind = "buffer_access"
	OpListen       OperationKind = "listen"
)

// DiagramOperation is the tagged union over every operation an author can
// place in a diagram's `ops` map or a section template's `ops` map. Exactly
// one of the variant fields matching Kind is populated; the rest are nil.
// Deserialized via a "type" discriminator, the idiomatic Go analogue of
// serde's `#[serde(tag = "type")]` (spec.md §6, SPEC_FULL.md §3).
type DiagramOperation struct {
	Kind OperationKind

	Node         *NodeSchema
	Section      *SectionSchema
	Scope        *ScopeSchema
	StreamOut    *StreamOutSchema
	ForkClone    *ForkCloneSchema
	Unzip        *UnzipSchema
	ForkResult   *ForkResultSchema
	Split        *SplitSchema
	Join         *JoinSchema
	Transform    *TransformSchema
	Buffer       *BufferSchema
	BufferAccess *BufferAccessSchema
	Listen       *ListenSchema
}

// TraceSettings returns the trace settings embedded in whichever variant is
// populated.
func (op *DiagramOperation) TraceSettings() TraceSettings {
	switch op.Kind {
	case OpNode:
		return op.Node.TraceSettings
	case OpSection:
		return op.Section.TraceSettings
	case OpScope:
		return op.Scope.TraceSettings
	case OpStreamOut:
		return op.StreamOut.TraceSettings
	case OpForkClone:
		return op.ForkClone.TraceSettings
	case OpUnzip:
		return op.Unzip.TraceSettings
	case OpForkResult:
		return op.ForkResult.TraceSettings
	case OpSplit:
		return op.Split.TraceSettings
	case OpJoin:
		return op.Join.TraceSettings
	case OpTransform:
		return op.Transform.TraceSettings
	case OpBuffer:
		return op.Buffer.TraceSettings
	case OpBufferAccess:
		return op.BufferAccess.TraceSettings
	case OpListen:
		return op.Listen.TraceSettings
	default:
		return TraceSettings{}
	}
}

type typeEnvelope struct {
	Type OperationKind `json:"type"`
}

func (op DiagramOperation) MarshalJSON() ([]byte, error) {
	var payload any
	switch op.Kind {
	case OpNode:
		payload = op.Node
	case OpSection:
		payload = op.Section
	case OpScope:
		payload = op.Scope
	case OpStreamOut:
		payload = op.StreamOut
	case OpForkClone:
		payload = op.ForkClone
	case OpUnzip:
		payload = op.Unzip
	case OpForkResult:
		payload = op.ForkResult
	case OpSplit:
		payload = op.Split
	case OpJoin:
		payload = op.Join
	case OpTransform:
		payload = op.Transform
	case OpBuffer:
		payload = op.Buffer
	case OpBufferAccess:
		payload = op.BufferAccess
	case OpListen:
		payload = op.Listen
	default:
		return nil, errs.Errorf(errs.InvalidOperation, "unknown operation kind %q", op.Kind)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	typeJSON, err := json.Marshal(op.Kind)
	if err != nil {
		return nil, err
	}
	raw["type"] = typeJSON
	return json.Marshal(raw)
}

func (op *DiagramOperation) UnmarshalJSON(data []byte) error {
	var envelope typeEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return errs.NewWithCause(errs.InvalidOperation, "operation must be an object with a \"type\" field", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	delete(raw, "type")
	stripped, err := json.Marshal(raw)
	if err != nil {
		return err
	}

	strictDecode := func(v any) error {
		dec := json.NewDecoder(bytes.NewReader(stripped))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			return errs.NewWithCause(errs.InvalidOperation, "unknown key in \""+string(envelope.Type)+"\" operation", err)
		}
		return nil
	}

	op.Kind = envelope.Type
	switch envelope.Type {
	case OpNode:
		op.Node = &NodeSchema{}
		return strictDecode(op.Node)
	case OpSection:
		op.Section = &SectionSchema{}
		return strictDecode(op.Section)
	case OpScope:
		op.Scope = &ScopeSchema{}
		return strictDecode(op.Scope)
	case OpStreamOut:
		op.StreamOut = &StreamOutSchema{}
		return strictDecode(op.StreamOut)
	case OpForkClone:
		op.ForkClone = &ForkCloneSchema{}
		return strictDecode(op.ForkClone)
	case OpUnzip:
		op.Unzip = &UnzipSchema{}
		return strictDecode(op.Unzip)
	case OpForkResult:
		op.ForkResult = &ForkResultSchema{}
		return strictDecode(op.ForkResult)
	case OpSplit:
		op.Split = &SplitSchema{}
		return strictDecode(op.Split)
	case OpJoin:
		op.Join = &JoinSchema{}
		return strictDecode(op.Join)
	case OpTransform:
		op.Transform = &TransformSchema{}
		return strictDecode(op.Transform)
	case OpBuffer:
		op.Buffer = &BufferSchema{}
		return strictDecode(op.Buffer)
	case OpBufferAccess:
		op.BufferAccess = &BufferAccessSchema{}
		return strictDecode(op.BufferAccess)
	case OpListen:
		op.Listen = &ListenSchema{}
		return strictDecode(op.Listen)
	default:
		return errs.Errorf(errs.UnknownOperation, "unknown operation type %q", envelope.Type)
	}
}
