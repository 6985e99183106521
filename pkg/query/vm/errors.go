package vm

// ErrBadIdAccess describes an access used as a node/edge id cast
// (LoadExactNode, CheckNodeId, CheckEdgeId) that resolves to a value that
// cannot cast to an id - e.g. a Text or a negative Integer. The VM does
// not return it: those instructions treat such a value as a failed match
// and jump to their Target.
type ErrBadIdAccess struct{ Detail string }

func (e *ErrBadIdAccess) Error() string { return "vm: " + e.Detail }

// ErrCorruptProgram is returned when the VM dispatch loop encounters an
// instruction or access referencing a stack position, iterator, or access
// index that does not exist - a bug in the compiler, not a query error.
type ErrCorruptProgram struct{ Detail string }

func (e *ErrCorruptProgram) Error() string { return "vm: corrupt program: " + e.Detail }
