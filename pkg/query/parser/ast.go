package parser

import "github.com/dyedgreen/cqlite-sub000/pkg/value"

// Direction is the direction an edge pattern is written with.
type Direction int

const (
	// DirRight is `-[...]->`.
	DirRight Direction = iota
	// DirLeft is `<-[...]-`.
	DirLeft
	// DirEither is `-[...]-`, matched against both adjacency indexes.
	DirEither
)

// NodePattern is a single `(name:Label {k: v, ...})` node pattern.
// Name, Label and Props are each optional (zero value = absent).
type NodePattern struct {
	Name  string
	Label string
	Props map[string]Expr
}

// EdgePattern is a single `-[name:Label {k: v, ...}]->`-style edge
// pattern between two node patterns.
type EdgePattern struct {
	Name      string
	Label     string
	Props     map[string]Expr
	Direction Direction
}

// Pattern is a chain of node patterns connected by edge patterns:
// len(Edges) == len(Nodes)-1.
type Pattern struct {
	Nodes []NodePattern
	Edges []EdgePattern
}

// Expr is any value-producing expression: a literal, a parameter, a bare
// identifier reference, a property access, a unary NOT, or a binary
// operator application (AND/OR/comparison).
type Expr interface{ exprMarker() }

// Literal is a constant value written directly in the query text.
type Literal struct{ Value value.Property }

// Parameter is a `$name` reference, bound at execution time.
type Parameter struct{ Name string }

// Identifier is a bare reference to a matched node or edge name.
type Identifier struct{ Name string }

// PropertyAccess is `entity.key`.
type PropertyAccess struct {
	Entity string
	Key    string
}

// BinaryOp applies Op to Left and Right. Op is one of "AND", "OR", "=",
// "<>", "<", ">", "<=", ">=".
type BinaryOp struct {
	Op          string
	Left, Right Expr
}

// Not negates a boolean expression.
type Not struct{ Expr Expr }

func (Literal) exprMarker()        {}
func (Parameter) exprMarker()      {}
func (Identifier) exprMarker()     {}
func (PropertyAccess) exprMarker() {}
func (BinaryOp) exprMarker()       {}
func (Not) exprMarker()            {}

// SetItem is one `SET entity.key = expr` assignment.
type SetItem struct {
	Entity string
	Key    string
	Value  Expr
}

// DeleteItem is one identifier named by a DELETE clause.
type DeleteItem struct {
	Entity string
}

// ReturnItem is one `expr [AS alias]` RETURN column.
type ReturnItem struct {
	Expr  Expr
	Alias string
}

// Query is the full parsed statement.
type Query struct {
	Matches []Pattern
	Where   Expr // nil if no WHERE clause
	Creates []Pattern
	Sets    []SetItem
	Deletes []DeleteItem
	Returns []ReturnItem
}
