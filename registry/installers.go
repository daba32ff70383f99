package registry

import "github.com/crossflow/crossflow/runtimeapi"

// RegisterSerialize installs a serializer for idx. Once both Serialize and
// Deserialize are present, OperationsTable.CanRoundTripJSON reports true and
// the type is eligible to be treated uniformly as a buffer of JSON (spec.md
// §4.A "JSON schema").
func (r *Registry) RegisterSerialize(idx Index, fn SerializeFunc) {
	r.mutate(idx, func(ops *OperationsTable) { ops.Serialize = fn })
}

// RegisterDeserialize installs a deserializer for idx.
func (r *Registry) RegisterDeserialize(idx Index, fn DeserializeFunc) {
	r.mutate(idx, func(ops *OperationsTable) { ops.Deserialize = fn })
}

// RegisterClone installs a clone function for idx, making it eligible for
// fork_clone.
func (r *Registry) RegisterClone(idx Index, fn CloneFunc) {
	r.mutate(idx, func(ops *OperationsTable) { ops.ForkClone = fn })
}

// RegisterToString installs a stringifier for idx.
func (r *Registry) RegisterToString(idx Index, fn StringifyFunc) {
	r.mutate(idx, func(ops *OperationsTable) { ops.ToString = fn })
}

// RegisterResult installs fork_result support for idx, where idx is the
// index of Result<T,E>, ok/err are T's and E's indices, and split
// decomposes a live value. It also updates the {ok,err} -> idx reverse
// lookup the inference engine's ResultInto constraint relies on.
func (r *Registry) RegisterResult(idx Index, ok, errIdx Index, split func(any) (any, bool, any, error)) {
	r.mutate(idx, func(ops *OperationsTable) {
		ops.ForkResult = &ForkResultOps{Ok: ok, Err: errIdx, Split: split}
	})
	r.mu.Lock()
	r.resultIndex[[2]Index{ok, errIdx}] = idx
	r.mu.Unlock()
}

// RegisterUnzip installs unzip support for idx, where elements are the
// ordered tuple-element type indices. Updates the []elements -> idx reverse
// lookup.
func (r *Registry) RegisterUnzip(idx Index, elements []Index, split func(any) ([]any, error)) {
	r.mutate(idx, func(ops *OperationsTable) {
		ops.Unzip = &UnzipOps{Elements: append([]Index(nil), elements...), Split: split}
	})
	r.mu.Lock()
	r.unzipIndex[encodeIndices(elements)] = idx
	r.mu.Unlock()
}

// RegisterSplit installs split support for idx, where element is the type
// index produced by splitting. Updates the element -> [sources] reverse
// lookup.
func (r *Registry) RegisterSplit(idx, element Index, split func(any) ([]any, map[string]any, any, bool, error)) {
	r.mutate(idx, func(ops *OperationsTable) {
		ops.Split = &SplitOps{Element: element, Split: split}
	})
	r.mu.Lock()
	r.splitSources[element] = append(r.splitSources[element], idx)
	r.mu.Unlock()
}

// RegisterJoin installs join support for idx.
func (r *Registry) RegisterJoin(idx Index, layout JoinLayout, assemble func(map[string]any) (any, error)) {
	r.mutate(idx, func(ops *OperationsTable) {
		ops.Join = &JoinOps{Layout: layout, Assemble: assemble}
	})
}

// RegisterBufferAccess installs buffer_access support for idx.
func (r *Registry) RegisterBufferAccess(idx, request Index, layout JoinLayout, access func(any, map[string]any) (any, error)) {
	r.mutate(idx, func(ops *OperationsTable) {
		ops.BufferAccess = &BufferAccessOps{Request: request, Layout: layout, Access: access}
	})
}

// RegisterListen installs listen support for idx.
func (r *Registry) RegisterListen(idx Index, layout JoinLayout, assemble func(map[string]any) (any, error)) {
	r.mutate(idx, func(ops *OperationsTable) {
		ops.Listen = &ListenOps{Layout: layout, Assemble: assemble}
	})
}

// RegisterCreateBuffer installs the buffer constructor for idx.
func (r *Registry) RegisterCreateBuffer(idx Index, fn func(runtimeapi.Builder, runtimeapi.BufferSettings) (runtimeapi.DynInputSlot, runtimeapi.AnyBuffer)) {
	r.mutate(idx, func(ops *OperationsTable) { ops.CreateBuffer = fn })
}

// RegisterCreateTrigger installs the trigger-node constructor for idx.
func (r *Registry) RegisterCreateTrigger(idx Index, fn func(runtimeapi.Builder) runtimeapi.DynNode) {
	r.mutate(idx, func(ops *OperationsTable) { ops.CreateTrigger = fn })
}

// RegisterBuildScope installs the scope-boundary constructor for idx.
func (r *Registry) RegisterBuildScope(idx Index, fn func(runtimeapi.Builder) runtimeapi.ScopeHandle) {
	r.mutate(idx, func(ops *OperationsTable) { ops.BuildScope = fn })
}

// RegisterInto installs a Self->U conversion and, symmetrically, registers
// it as U's From(Self) impl (spec.md §4.A "Conversion registration is
// symmetric").
func (r *Registry) RegisterInto(self, target Index, ctor ConversionCtor) {
	r.mutate(self, func(ops *OperationsTable) { ops.IntoImpls[target] = ctor })
	r.mutate(target, func(ops *OperationsTable) { ops.FromImpls[self] = ctor })
}

// RegisterTryInto installs a fallible Self->U conversion symmetrically, the
// same way RegisterInto does for the infallible case.
func (r *Registry) RegisterTryInto(self, target Index, ctor TryConversionCtor) {
	r.mutate(self, func(ops *OperationsTable) { ops.TryIntoImpls[target] = ctor })
	r.mutate(target, func(ops *OperationsTable) { ops.TryFromImpls[self] = ctor })
}

// ResultIndex looks up the index of Result<T,E> given T's and E's indices.
func (r *Registry) ResultIndex(ok, errIdx Index) (Index, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok2 := r.resultIndex[[2]Index{ok, errIdx}]
	return idx, ok2
}

// UnzipIndex looks up the index of the tuple type produced by unzipping the
// given ordered element indices.
func (r *Registry) UnzipIndex(elements []Index) (Index, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.unzipIndex[encodeIndices(elements)]
	return idx, ok
}

// SplitSources returns the indices of every type whose split operation
// yields element.
func (r *Registry) SplitSources(element Index) []Index {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Index(nil), r.splitSources[element]...)
}

func encodeIndices(idxs []Index) string {
	buf := make([]byte, 0, len(idxs)*8)
	for _, i := range idxs {
		buf = append(buf, byte(i>>24), byte(i>>16), byte(i>>8), byte(i), ',')
	}
	return string(buf)
}
