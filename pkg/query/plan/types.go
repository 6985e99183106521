// Package plan turns a parsed query into match/update steps (build.go)
// and then rewrites those steps into a cheaper, equivalent form via a set
// of fixed-point optimization passes (optimize.go).
package plan

import "github.com/dyedgreen/cqlite-sub000/pkg/query/parser"

// MatchStep is one step of the pattern-matching portion of a plan. Each
// step either introduces a value onto the (conceptual) node/edge stack the
// compiler will later realize in bytecode, or checks a condition against
// values already introduced.
type MatchStep interface{ matchStepMarker() }

type LoadAnyNode struct{ Node int }

// LoadExactNode is the LoadAnyToLoadExact optimization's output: instead
// of a full node scan plus an id-equality filter, seek the node directly.
type LoadExactNode struct {
	Node int
	Id   parser.Expr
}

// LoadLabeledNode is the LoadAnyToLoadLabeled optimization's output:
// instead of a full node scan plus a label-equality check, walk the label
// index directly.
type LoadLabeledNode struct {
	Node  int
	Label string
}
type LoadOriginNode struct{ Node, Edge int }
type LoadTargetNode struct{ Node, Edge int }

// LoadOtherNode loads the endpoint of Edge that is not Known - used when
// an edge was reached via a both-direction (undirected) iteration and the
// far endpoint is a newly bound name.
type LoadOtherNode struct{ Node, Edge, Known int }

type LoadOriginEdge struct{ Edge, Node int }
type LoadTargetEdge struct{ Edge, Node int }
type LoadBothEdge struct{ Edge, Node int }

type CheckNodeLabel struct {
	Node  int
	Label string
}
type CheckEdgeLabel struct {
	Edge  int
	Label string
}
type CheckIsOrigin struct{ Node, Edge int }
type CheckIsTarget struct{ Node, Edge int }

// CheckOtherEndpoint asserts that the endpoint of Edge other than Prev is
// Known. It is a plan-level convenience for the both-direction,
// both-endpoints-already-bound case; the compiler lowers it to the real
// CheckIsOrigin/CheckIsTarget instruction pair joined with a jump-based OR,
// since the bytecode instruction set has no combined form.
type CheckOtherEndpoint struct{ Edge, Prev, Known int }

// Filter evaluates a boolean expression (WHERE clause terms, and the
// equality filters a node/edge pattern's property map desugars to) and
// fails the match if it is not truthy.
type Filter struct{ Expr parser.Expr }

func (LoadAnyNode) matchStepMarker()        {}
func (LoadExactNode) matchStepMarker()      {}
func (LoadLabeledNode) matchStepMarker()    {}
func (LoadOriginNode) matchStepMarker()     {}
func (LoadTargetNode) matchStepMarker()     {}
func (LoadOtherNode) matchStepMarker()      {}
func (LoadOriginEdge) matchStepMarker()     {}
func (LoadTargetEdge) matchStepMarker()     {}
func (LoadBothEdge) matchStepMarker()       {}
func (CheckNodeLabel) matchStepMarker()     {}
func (CheckEdgeLabel) matchStepMarker()     {}
func (CheckIsOrigin) matchStepMarker()      {}
func (CheckIsTarget) matchStepMarker()      {}
func (CheckOtherEndpoint) matchStepMarker() {}
func (Filter) matchStepMarker()             {}

// UpdateStep is one step of the write portion of a plan (CREATE/SET/DELETE).
type UpdateStep interface{ updateStepMarker() }

type CreateNode struct {
	Node  int
	Label string
	Props map[string]parser.Expr
}
type CreateEdge struct {
	Edge           int
	Label          string
	Origin, Target int
	Props          map[string]parser.Expr
}
type SetNodeProperty struct {
	Node  int
	Key   string
	Value parser.Expr
}
type SetEdgeProperty struct {
	Edge  int
	Key   string
	Value parser.Expr
}
type DeleteNode struct{ Node int }
type DeleteEdge struct{ Edge int }

func (CreateNode) updateStepMarker()      {}
func (CreateEdge) updateStepMarker()      {}
func (SetNodeProperty) updateStepMarker() {}
func (SetEdgeProperty) updateStepMarker() {}
func (DeleteNode) updateStepMarker()      {}
func (DeleteEdge) updateStepMarker()      {}

// ReturnExpr is one RETURN column: Expr resolved against bound node/edge
// names, with an optional column name.
type ReturnExpr struct {
	Expr parser.Expr
	Name string
}

// Plan is the built, not-yet-optimized (or already-optimized) shape of a
// query: the steps needed to find matches, the updates to apply per
// match, and the columns to return.
type Plan struct {
	MatchSteps  []MatchStep
	UpdateSteps []UpdateStep
	Returns     []ReturnExpr

	// NodeSlots/EdgeSlots record how many node/edge stack slots the plan
	// uses, and Names maps a query identifier to its slot.
	NodeSlots int
	EdgeSlots int
	NodeNames map[string]int
	EdgeNames map[string]int
}
