package diagram

import "encoding/json"

// BufferSelection names the buffers a join/buffer_access/listen operation
// reads, either as an ordered array (buffers addressed by position) or as a
// dict (buffers addressed by name), matching original_source's
// `BufferSelection<Identifier>` untagged enum.
type BufferSelection struct {
	IsDict bool
	Dict   map[string]NextOperation
	Array  []NextOperation
}

// IsEmpty reports whether the selection names no buffers.
func (s BufferSelection) IsEmpty() bool {
	if s.IsDict {
		return len(s.Dict) == 0
	}
	return len(s.Array) == 0
}

func (s BufferSelection) MarshalJSON() ([]byte, error) {
	if s.IsDict {
		return json.Marshal(s.Dict)
	}
	return json.Marshal(s.Array)
}

func (s *BufferSelection) UnmarshalJSON(data []byte) error {
	var asArray []NextOperation
	if err := json.Unmarshal(data, &asArray); err == nil {
		*s = BufferSelection{Array: asArray}
		return nil
	}
	var asDict map[string]NextOperation
	if err := json.Unmarshal(data, &asDict); err != nil {
		return err
	}
	*s = BufferSelection{IsDict: true, Dict: asDict}
	return nil
}
