// Package vm implements the stack-based bytecode interpreter that
// executes a compiled Program against a store transaction: a node value
// stack, an edge value stack, a node-iterator stack and an edge-iterator
// stack, driven by a simple dispatch loop.
package vm

import "github.com/dyedgreen/cqlite-sub000/pkg/value"

// Instruction is one bytecode operation. Jump targets are absolute
// instruction indices, patched in by the compiler once the instruction
// they point past is known (see package compile, which emits -1
// placeholder targets and patches them).
type Instruction interface{ instructionMarker() }

type NoOp struct{}
type Jump struct{ Target int }
type Yield struct{}
type Halt struct{}

// IterNodes opens an iterator over every node, or (when Label is
// non-empty) over just the nodes carrying that label via the label index.
type IterNodes struct{ Label string }
type IterOriginEdges struct{ Node int }
type IterTargetEdges struct{ Node int }
type IterBothEdges struct{ Node int }

// LoadNextNode first truncates the node and edge stacks back to their
// depths when the top node iterator was opened, then advances that
// iterator, pushing the next node onto the node stack; on exhaustion it
// pops the iterator and jumps to Target.
type LoadNextNode struct{ Target int }

// LoadNextEdge is LoadNextNode's edge-iterator counterpart.
type LoadNextEdge struct{ Target int }

// LoadExactNode seeks the node with the id produced by the Id access and
// pushes it directly, skipping iteration; jumps to Target if the value
// does not cast to an id or no such node exists.
type LoadExactNode struct {
	Target int
	Id     int // access index
}

// LoadOriginNode pushes the origin endpoint of the edge at edge stack
// position Edge directly.
type LoadOriginNode struct{ Edge int }
type LoadTargetNode struct{ Edge int }

// LoadOtherNode pushes whichever endpoint of Edge is not the node at
// node stack position Node.
type LoadOtherNode struct {
	Node int
	Edge int
}

type PopNode struct{}
type PopEdge struct{}

type CheckIsOrigin struct {
	Target   int
	Node     int
	Edge     int
}
type CheckIsTarget struct {
	Target int
	Node   int
	Edge   int
}
type CheckNodeLabel struct {
	Target int
	Node   int
	Label  string
}
type CheckEdgeLabel struct {
	Target int
	Edge   int
	Label  string
}
type CheckNodeId struct {
	Target int
	Node   int
	Id     int // access index
}
type CheckEdgeId struct {
	Target int
	Edge   int
	Id     int // access index
}
type CheckTrue struct {
	Target int
	Value  int // access index
}
type CheckEq struct {
	Target   int
	Lhs, Rhs int // access indices
}
type CheckLt struct {
	Target   int
	Lhs, Rhs int
}
type CheckGt struct {
	Target   int
	Lhs, Rhs int
}

type CreateNode struct {
	Label      string
	Properties map[string]int // key -> access index
}
type CreateEdge struct {
	Label          string
	Origin, Target int // node stack positions
	Properties     map[string]int
}
type SetNodeProperty struct {
	Node  int
	Key   string
	Value int // access index
}
type SetEdgeProperty struct {
	Edge  int
	Key   string
	Value int // access index
}
type DeleteNode struct{ Node int }
type DeleteEdge struct{ Edge int }

func (NoOp) instructionMarker()            {}
func (Jump) instructionMarker()            {}
func (Yield) instructionMarker()           {}
func (Halt) instructionMarker()            {}
func (IterNodes) instructionMarker()       {}
func (IterOriginEdges) instructionMarker() {}
func (IterTargetEdges) instructionMarker() {}
func (IterBothEdges) instructionMarker()   {}
func (LoadNextNode) instructionMarker()    {}
func (LoadNextEdge) instructionMarker()    {}
func (LoadExactNode) instructionMarker()   {}
func (LoadOriginNode) instructionMarker()  {}
func (LoadTargetNode) instructionMarker()  {}
func (LoadOtherNode) instructionMarker()   {}
func (PopNode) instructionMarker()         {}
func (PopEdge) instructionMarker()         {}
func (CheckIsOrigin) instructionMarker()   {}
func (CheckIsTarget) instructionMarker()   {}
func (CheckNodeLabel) instructionMarker()  {}
func (CheckEdgeLabel) instructionMarker()  {}
func (CheckNodeId) instructionMarker()     {}
func (CheckEdgeId) instructionMarker()     {}
func (CheckTrue) instructionMarker()       {}
func (CheckEq) instructionMarker()         {}
func (CheckLt) instructionMarker()         {}
func (CheckGt) instructionMarker()         {}
func (CreateNode) instructionMarker()      {}
func (CreateEdge) instructionMarker()      {}
func (SetNodeProperty) instructionMarker() {}
func (SetEdgeProperty) instructionMarker() {}
func (DeleteNode) instructionMarker()      {}
func (DeleteEdge) instructionMarker()      {}

// AccessKind identifies what an Access resolves to at runtime.
type AccessKind int

const (
	AccessConstant AccessKind = iota
	AccessNodeId
	AccessEdgeId
	AccessNodeLabel
	AccessEdgeLabel
	AccessNodeProperty
	AccessEdgeProperty
	AccessParameter
)

// Access describes how to resolve one runtime value: a literal constant,
// a bound query parameter, a node/edge's id or label, or one of its
// properties. NodeProperty/EdgeProperty have two resolution modes,
// selected by the VM's resolveAccess returnMode flag: off, the value is
// read from the bound node/edge (used by filters, patterns and updates);
// on, the transaction's pending update queue is consulted first (used by
// RETURN), so that a RETURN clause can see writes the same statement just
// queued.
type Access struct {
	Kind     AccessKind
	Constant value.Property
	Node     int
	Edge     int
	Key      string
	Param    string
}

// Program is the compiled form of a query: the bytecode instructions, the
// flat table of value accesses instructions refer to by index, and the
// access index used to compute each RETURN column.
type Program struct {
	Instructions []Instruction
	Accesses     []Access
	Returns      []ReturnColumn
}

// ReturnColumn names one RETURN output column and the access that
// computes it.
type ReturnColumn struct {
	Name   string
	Access int
}
