// Package compile lowers an optimized plan.Plan into a vm.Program: a flat
// instruction sequence implementing a nested-loop join over the plan's
// match steps, followed by its update steps and RETURN columns.
//
// Forward jump targets are patched in after the fact: a jump is first
// emitted pointing nowhere (conceptually a vm.NoOp, in practice a
// placeholder Target of -1 later overwritten once the real destination
// is known), the classic technique for a single forward-only compiler
// pass over a structure - like this one - whose control flow isn't known
// until later code has been generated.
package compile

import (
	"fmt"

	"github.com/dyedgreen/cqlite-sub000/pkg/query/parser"
	"github.com/dyedgreen/cqlite-sub000/pkg/query/plan"
	"github.com/dyedgreen/cqlite-sub000/pkg/query/vm"
)

// TypeMismatchError is returned when an expression cannot be compiled
// into a valid access or condition (e.g. a bare node identifier used
// where a value is required).
type TypeMismatchError struct{ Detail string }

func (e *TypeMismatchError) Error() string { return "type mismatch: " + e.Detail }

type builder struct {
	prog *vm.Program
}

func (b *builder) emit(instr vm.Instruction) int {
	b.prog.Instructions = append(b.prog.Instructions, instr)
	return len(b.prog.Instructions) - 1
}

func (b *builder) nextAddr() int { return len(b.prog.Instructions) }

// patch overwrites the Target field of a previously emitted jump-bearing
// instruction. Every such instruction in this package's vocabulary names
// its jump field Target, which keeps this one switch exhaustive and
// simple.
func (b *builder) patch(addr, target int) {
	switch instr := b.prog.Instructions[addr].(type) {
	case vm.Jump:
		instr.Target = target
		b.prog.Instructions[addr] = instr
	case vm.LoadNextNode:
		instr.Target = target
		b.prog.Instructions[addr] = instr
	case vm.LoadNextEdge:
		instr.Target = target
		b.prog.Instructions[addr] = instr
	case vm.LoadExactNode:
		instr.Target = target
		b.prog.Instructions[addr] = instr
	case vm.CheckIsOrigin:
		instr.Target = target
		b.prog.Instructions[addr] = instr
	case vm.CheckIsTarget:
		instr.Target = target
		b.prog.Instructions[addr] = instr
	case vm.CheckNodeLabel:
		instr.Target = target
		b.prog.Instructions[addr] = instr
	case vm.CheckEdgeLabel:
		instr.Target = target
		b.prog.Instructions[addr] = instr
	case vm.CheckNodeId:
		instr.Target = target
		b.prog.Instructions[addr] = instr
	case vm.CheckEdgeId:
		instr.Target = target
		b.prog.Instructions[addr] = instr
	case vm.CheckTrue:
		instr.Target = target
		b.prog.Instructions[addr] = instr
	case vm.CheckEq:
		instr.Target = target
		b.prog.Instructions[addr] = instr
	case vm.CheckLt:
		instr.Target = target
		b.prog.Instructions[addr] = instr
	case vm.CheckGt:
		instr.Target = target
		b.prog.Instructions[addr] = instr
	default:
		panic(fmt.Sprintf("compile: patch called on non-jump instruction %T", instr))
	}
}

func (b *builder) access(a vm.Access) int {
	b.prog.Accesses = append(b.prog.Accesses, a)
	return len(b.prog.Accesses) - 1
}

// retryFrame records where to resume search when the value(s) introduced
// since this frame was opened turn out not to lead to a match: the
// address of the iterator's LoadNext instruction, and the node/edge stack
// depth at the moment the frame was opened (so callers know how many
// PopNode/PopEdge instructions are needed to unwind back to it).
type retryFrame struct {
	loadAddr        int
	isHaltPlaceholder bool
	nodeDepth, edgeDepth int
}

type compiler struct {
	b          *builder
	plan       *plan.Plan
	retry      []retryFrame
	nodeDepth  int
	edgeDepth  int
	haltPatches []int // addresses to patch to the final Halt once emitted
	nodeOf     map[int]string // slot -> name, reverse of plan.NodeNames
	edgeOf     map[int]string
}

// Compile lowers an optimized plan into a runnable Program.
func Compile(p *plan.Plan) (*vm.Program, error) {
	c := &compiler{
		b:      &builder{prog: &vm.Program{}},
		plan:   p,
		nodeOf: invert(p.NodeNames),
		edgeOf: invert(p.EdgeNames),
	}

	for _, step := range p.MatchSteps {
		if err := c.compileMatchStep(step); err != nil {
			return nil, err
		}
	}

	for _, step := range p.UpdateSteps {
		if err := c.compileUpdateStep(step); err != nil {
			return nil, err
		}
	}

	var returns []vm.ReturnColumn
	for _, r := range p.Returns {
		idx, err := c.resolveReturnAccess(r.Expr)
		if err != nil {
			return nil, err
		}
		returns = append(returns, vm.ReturnColumn{Name: r.Name, Access: idx})
	}
	c.b.prog.Returns = returns

	// A Yield suspends execution so the caller can read a row; with no
	// RETURN clause there is nothing to read, so a write-only query runs
	// every match to completion inside a single Run call instead of
	// pausing once per match.
	if len(returns) > 0 {
		c.b.emit(vm.Yield{})
	}
	if len(c.retry) > 0 {
		top := c.retry[len(c.retry)-1]
		j := c.b.emit(vm.Jump{Target: -1})
		if top.isHaltPlaceholder {
			c.haltPatches = append(c.haltPatches, j)
		} else {
			c.b.patch(j, top.loadAddr)
		}
	}

	haltAddr := c.b.emit(vm.Halt{})
	for _, addr := range c.haltPatches {
		c.b.patch(addr, haltAddr)
	}

	return c.b.prog, nil
}

func invert(m map[string]int) map[int]string {
	out := make(map[int]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

func (c *compiler) currentRetry() (loadAddr int, isHalt bool) {
	if len(c.retry) == 0 {
		return -1, true
	}
	top := c.retry[len(c.retry)-1]
	return top.loadAddr, top.isHaltPlaceholder
}

// --- match steps ------------------------------------------------------

func (c *compiler) compileMatchStep(step plan.MatchStep) error {
	switch s := step.(type) {
	case plan.LoadAnyNode:
		c.b.emit(vm.IterNodes{})
		c.openNodeIterFrame()
		return nil
	case plan.LoadLabeledNode:
		c.b.emit(vm.IterNodes{Label: s.Label})
		c.openNodeIterFrame()
		return nil
	case plan.LoadExactNode:
		idx, err := c.resolveValueAccess(s.Id)
		if err != nil {
			return err
		}
		retryAddr, retryIsHalt := c.currentRetry()
		c.emitFailableSingle(func(target int) vm.Instruction {
			return vm.LoadExactNode{Target: target, Id: idx}
		}, retryAddr, retryIsHalt)
		c.nodeDepth++
		return nil
	case plan.LoadOriginNode:
		c.b.emit(vm.LoadOriginNode{Edge: s.Edge})
		c.nodeDepth++
		return nil
	case plan.LoadTargetNode:
		c.b.emit(vm.LoadTargetNode{Edge: s.Edge})
		c.nodeDepth++
		return nil
	case plan.LoadOtherNode:
		c.b.emit(vm.LoadOtherNode{Node: s.Known, Edge: s.Edge})
		c.nodeDepth++
		return nil
	case plan.LoadOriginEdge:
		c.b.emit(vm.IterOriginEdges{Node: s.Node})
		c.openEdgeIterFrame()
		return nil
	case plan.LoadTargetEdge:
		c.b.emit(vm.IterTargetEdges{Node: s.Node})
		c.openEdgeIterFrame()
		return nil
	case plan.LoadBothEdge:
		c.b.emit(vm.IterBothEdges{Node: s.Node})
		c.openEdgeIterFrame()
		return nil
	case plan.CheckNodeLabel:
		retryAddr, retryIsHalt := c.currentRetry()
		c.emitFailableSingle(func(target int) vm.Instruction {
			return vm.CheckNodeLabel{Target: target, Node: s.Node, Label: s.Label}
		}, retryAddr, retryIsHalt)
		return nil
	case plan.CheckEdgeLabel:
		retryAddr, retryIsHalt := c.currentRetry()
		c.emitFailableSingle(func(target int) vm.Instruction {
			return vm.CheckEdgeLabel{Target: target, Edge: s.Edge, Label: s.Label}
		}, retryAddr, retryIsHalt)
		return nil
	case plan.CheckIsOrigin:
		retryAddr, retryIsHalt := c.currentRetry()
		c.emitFailableSingle(func(target int) vm.Instruction {
			return vm.CheckIsOrigin{Target: target, Node: s.Node, Edge: s.Edge}
		}, retryAddr, retryIsHalt)
		return nil
	case plan.CheckIsTarget:
		retryAddr, retryIsHalt := c.currentRetry()
		c.emitFailableSingle(func(target int) vm.Instruction {
			return vm.CheckIsTarget{Target: target, Node: s.Node, Edge: s.Edge}
		}, retryAddr, retryIsHalt)
		return nil
	case plan.CheckOtherEndpoint:
		return c.compileCheckOtherEndpoint(s)
	case plan.Filter:
		retryAddr, retryIsHalt := c.currentRetry()
		return c.compileCondition(s.Expr, retryAddr, retryIsHalt)
	default:
		return fmt.Errorf("compile: unhandled match step %T", step)
	}
}

func (c *compiler) openNodeIterFrame() {
	loadAddr := c.b.emit(vm.LoadNextNode{Target: -1})
	retryAddr, retryIsHalt := -1, true
	if len(c.retry) > 0 {
		top := c.retry[len(c.retry)-1]
		retryAddr, retryIsHalt = top.loadAddr, top.isHaltPlaceholder
	}
	if retryIsHalt {
		c.haltPatches = append(c.haltPatches, loadAddr)
	} else {
		c.b.patch(loadAddr, retryAddr)
	}
	c.retry = append(c.retry, retryFrame{loadAddr: loadAddr, isHaltPlaceholder: false, nodeDepth: c.nodeDepth, edgeDepth: c.edgeDepth})
	c.nodeDepth++
}

func (c *compiler) openEdgeIterFrame() {
	loadAddr := c.b.emit(vm.LoadNextEdge{Target: -1})
	retryAddr, retryIsHalt := -1, true
	if len(c.retry) > 0 {
		top := c.retry[len(c.retry)-1]
		retryAddr, retryIsHalt = top.loadAddr, top.isHaltPlaceholder
	}
	if retryIsHalt {
		c.haltPatches = append(c.haltPatches, loadAddr)
	} else {
		c.b.patch(loadAddr, retryAddr)
	}
	c.retry = append(c.retry, retryFrame{loadAddr: loadAddr, isHaltPlaceholder: false, nodeDepth: c.nodeDepth, edgeDepth: c.edgeDepth})
	c.edgeDepth++
}

// emitFailableSingle emits one failable instruction (a Check* or
// LoadExactNode) whose failure must unwind the node/edge stack back to
// the current innermost retry frame before resuming search there.
func (c *compiler) emitFailableSingle(make func(target int) vm.Instruction, retryAddr int, retryIsHalt bool) {
	var popNodes, popEdges int
	if len(c.retry) > 0 {
		top := c.retry[len(c.retry)-1]
		popNodes = c.nodeDepth - top.nodeDepth
		popEdges = c.edgeDepth - top.edgeDepth
	} else {
		popNodes = c.nodeDepth
		popEdges = c.edgeDepth
	}
	checkAddr := c.b.emit(make(-1))
	jumpOver := c.b.emit(vm.Jump{Target: -1})
	cleanup := c.b.nextAddr()
	c.b.patch(checkAddr, cleanup)
	for i := 0; i < popNodes; i++ {
		c.b.emit(vm.PopNode{})
	}
	for i := 0; i < popEdges; i++ {
		c.b.emit(vm.PopEdge{})
	}
	if retryIsHalt {
		j := c.b.emit(vm.Jump{Target: -1})
		c.haltPatches = append(c.haltPatches, j)
	} else {
		c.b.emit(vm.Jump{Target: retryAddr})
	}
	after := c.b.nextAddr()
	c.b.patch(jumpOver, after)
}

// compileCheckOtherEndpoint lowers the both-endpoints-known both-direction
// case to (edge is origin of Known) OR (edge is target of Known): the
// edge is already known to touch Prev via the LoadBothEdge iteration that
// produced it, so only the far endpoint needs checking against Known.
func (c *compiler) compileCheckOtherEndpoint(s plan.CheckOtherEndpoint) error {
	originAddr := c.b.emit(vm.CheckIsOrigin{Target: -1, Node: s.Known, Edge: s.Edge})
	jumpSuccess := c.b.emit(vm.Jump{Target: -1})
	tryTargetLabel := c.b.nextAddr()
	c.b.patch(originAddr, tryTargetLabel)

	retryAddr, retryIsHalt := c.currentRetry()
	c.emitFailableSingle(func(target int) vm.Instruction {
		return vm.CheckIsTarget{Target: target, Node: s.Known, Edge: s.Edge}
	}, retryAddr, retryIsHalt)

	after := c.b.nextAddr()
	c.b.patch(jumpSuccess, after)
	return nil
}

// --- boolean condition compilation (Filter expressions) ----------------

// compileConditionCollectFails emits code for expr such that falling
// through means expr was true, and returns the addresses of every
// jump-bearing instruction that should be patched to expr's overall
// "false" destination once the caller knows it.
func (c *compiler) compileConditionCollectFails(expr parser.Expr) ([]int, error) {
	switch e := expr.(type) {
	case parser.Not:
		inner, err := c.compileConditionCollectFails(e.Expr)
		if err != nil {
			return nil, err
		}
		forceFail := c.b.emit(vm.Jump{Target: -1}) // reached only if inner succeeded
		label := c.b.nextAddr()
		for _, a := range inner {
			c.b.patch(a, label)
		}
		return []int{forceFail}, nil
	case parser.BinaryOp:
		switch e.Op {
		case "AND":
			leftFails, err := c.compileConditionCollectFails(e.Left)
			if err != nil {
				return nil, err
			}
			rightFails, err := c.compileConditionCollectFails(e.Right)
			if err != nil {
				return nil, err
			}
			return append(leftFails, rightFails...), nil
		case "OR":
			leftFails, err := c.compileConditionCollectFails(e.Left)
			if err != nil {
				return nil, err
			}
			jumpSkipRight := c.b.emit(vm.Jump{Target: -1})
			rightStart := c.b.nextAddr()
			for _, a := range leftFails {
				c.b.patch(a, rightStart)
			}
			rightFails, err := c.compileConditionCollectFails(e.Right)
			if err != nil {
				return nil, err
			}
			after := c.b.nextAddr()
			c.b.patch(jumpSkipRight, after)
			return rightFails, nil
		default:
			return c.compileComparisonFails(e)
		}
	default:
		idx, err := c.resolveValueAccess(expr)
		if err != nil {
			return nil, err
		}
		addr := c.b.emit(vm.CheckTrue{Target: -1, Value: idx})
		return []int{addr}, nil
	}
}

func (c *compiler) compileComparisonFails(e parser.BinaryOp) ([]int, error) {
	lhs, err := c.resolveValueAccess(e.Left)
	if err != nil {
		return nil, err
	}
	rhs, err := c.resolveValueAccess(e.Right)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case "=":
		addr := c.b.emit(vm.CheckEq{Target: -1, Lhs: lhs, Rhs: rhs})
		return []int{addr}, nil
	case "<":
		addr := c.b.emit(vm.CheckLt{Target: -1, Lhs: lhs, Rhs: rhs})
		return []int{addr}, nil
	case ">":
		addr := c.b.emit(vm.CheckGt{Target: -1, Lhs: lhs, Rhs: rhs})
		return []int{addr}, nil
	case "<>":
		return c.invertLeaf(func() int { return c.b.emit(vm.CheckEq{Target: -1, Lhs: lhs, Rhs: rhs}) }), nil
	case ">=":
		return c.invertLeaf(func() int { return c.b.emit(vm.CheckLt{Target: -1, Lhs: lhs, Rhs: rhs}) }), nil
	case "<=":
		return c.invertLeaf(func() int { return c.b.emit(vm.CheckGt{Target: -1, Lhs: lhs, Rhs: rhs}) }), nil
	default:
		return nil, fmt.Errorf("compile: unknown comparison operator %q", e.Op)
	}
}

// invertLeaf wraps a single leaf check (which succeeds/fails per its own
// sense) so the returned fail-list represents the logical negation,
// exactly as compileConditionCollectFails does for Not.
func (c *compiler) invertLeaf(emitLeaf func() int) []int {
	leafAddr := emitLeaf()
	forceFail := c.b.emit(vm.Jump{Target: -1})
	label := c.b.nextAddr()
	c.b.patch(leafAddr, label)
	return []int{forceFail}
}

// compileCondition compiles expr as a full Filter step: on success,
// execution falls through to the next match step; on failure, the
// node/edge stacks are unwound to the current retry frame and search
// resumes there.
func (c *compiler) compileCondition(expr parser.Expr, retryAddr int, retryIsHalt bool) error {
	var popNodes, popEdges int
	if len(c.retry) > 0 {
		top := c.retry[len(c.retry)-1]
		popNodes = c.nodeDepth - top.nodeDepth
		popEdges = c.edgeDepth - top.edgeDepth
	} else {
		popNodes = c.nodeDepth
		popEdges = c.edgeDepth
	}

	fails, err := c.compileConditionCollectFails(expr)
	if err != nil {
		return err
	}
	jumpOverCleanup := c.b.emit(vm.Jump{Target: -1})
	cleanup := c.b.nextAddr()
	for _, a := range fails {
		c.b.patch(a, cleanup)
	}
	for i := 0; i < popNodes; i++ {
		c.b.emit(vm.PopNode{})
	}
	for i := 0; i < popEdges; i++ {
		c.b.emit(vm.PopEdge{})
	}
	if retryIsHalt {
		j := c.b.emit(vm.Jump{Target: -1})
		c.haltPatches = append(c.haltPatches, j)
	} else {
		c.b.emit(vm.Jump{Target: retryAddr})
	}
	after := c.b.nextAddr()
	c.b.patch(jumpOverCleanup, after)
	return nil
}

// --- update steps -------------------------------------------------------

func (c *compiler) compileUpdateStep(step plan.UpdateStep) error {
	switch s := step.(type) {
	case plan.CreateNode:
		props, err := c.resolvePropsMap(s.Props)
		if err != nil {
			return err
		}
		c.b.emit(vm.CreateNode{Label: s.Label, Properties: props})
		c.nodeDepth++
		return nil
	case plan.CreateEdge:
		props, err := c.resolvePropsMap(s.Props)
		if err != nil {
			return err
		}
		c.b.emit(vm.CreateEdge{Label: s.Label, Origin: s.Origin, Target: s.Target, Properties: props})
		c.edgeDepth++
		return nil
	case plan.SetNodeProperty:
		idx, err := c.resolveValueAccess(s.Value)
		if err != nil {
			return err
		}
		c.b.emit(vm.SetNodeProperty{Node: s.Node, Key: s.Key, Value: idx})
		return nil
	case plan.SetEdgeProperty:
		idx, err := c.resolveValueAccess(s.Value)
		if err != nil {
			return err
		}
		c.b.emit(vm.SetEdgeProperty{Edge: s.Edge, Key: s.Key, Value: idx})
		return nil
	case plan.DeleteNode:
		c.b.emit(vm.DeleteNode{Node: s.Node})
		return nil
	case plan.DeleteEdge:
		c.b.emit(vm.DeleteEdge{Edge: s.Edge})
		return nil
	default:
		return fmt.Errorf("compile: unhandled update step %T", step)
	}
}

func (c *compiler) resolvePropsMap(props map[string]parser.Expr) (map[string]int, error) {
	if len(props) == 0 {
		return nil, nil
	}
	out := make(map[string]int, len(props))
	for k, e := range props {
		idx, err := c.resolveValueAccess(e)
		if err != nil {
			return nil, err
		}
		out[k] = idx
	}
	return out, nil
}

// --- access resolution --------------------------------------------------

// resolveValueAccess resolves an expression used as a value (a property
// map entry, a SET right-hand side, a comparison operand) to an access
// index using committed-property semantics.
func (c *compiler) resolveValueAccess(expr parser.Expr) (int, error) {
	switch e := expr.(type) {
	case parser.Literal:
		return c.b.access(vm.Access{Kind: vm.AccessConstant, Constant: e.Value}), nil
	case parser.Parameter:
		return c.b.access(vm.Access{Kind: vm.AccessParameter, Param: e.Name}), nil
	case parser.Identifier:
		if slot, ok := c.plan.NodeNames[e.Name]; ok {
			return c.b.access(vm.Access{Kind: vm.AccessNodeId, Node: slot}), nil
		}
		if slot, ok := c.plan.EdgeNames[e.Name]; ok {
			return c.b.access(vm.Access{Kind: vm.AccessEdgeId, Edge: slot}), nil
		}
		return 0, &plan.UnknownIdentifierError{Name: e.Name}
	case parser.PropertyAccess:
		if e.Key == "id" {
			if slot, ok := c.plan.NodeNames[e.Entity]; ok {
				return c.b.access(vm.Access{Kind: vm.AccessNodeId, Node: slot}), nil
			}
			if slot, ok := c.plan.EdgeNames[e.Entity]; ok {
				return c.b.access(vm.Access{Kind: vm.AccessEdgeId, Edge: slot}), nil
			}
		}
		if e.Key == "label" {
			if slot, ok := c.plan.NodeNames[e.Entity]; ok {
				return c.b.access(vm.Access{Kind: vm.AccessNodeLabel, Node: slot}), nil
			}
			if slot, ok := c.plan.EdgeNames[e.Entity]; ok {
				return c.b.access(vm.Access{Kind: vm.AccessEdgeLabel, Edge: slot}), nil
			}
		}
		if slot, ok := c.plan.NodeNames[e.Entity]; ok {
			return c.b.access(vm.Access{Kind: vm.AccessNodeProperty, Node: slot, Key: e.Key}), nil
		}
		if slot, ok := c.plan.EdgeNames[e.Entity]; ok {
			return c.b.access(vm.Access{Kind: vm.AccessEdgeProperty, Edge: slot, Key: e.Key}), nil
		}
		return 0, &plan.UnknownIdentifierError{Name: e.Entity}
	default:
		return 0, &TypeMismatchError{Detail: fmt.Sprintf("%T cannot be used as a value", expr)}
	}
}

// resolveReturnAccess is resolveValueAccess's RETURN-column counterpart:
// identical access shapes, but the VM resolves NodeProperty/EdgeProperty
// accesses built from a RETURN column through the pending update queue
// first (read-your-writes), which is a runtime distinction (the VM's
// resolveAccess returnMode flag) rather than a compile-time one - the
// Access value itself is the same either way.
func (c *compiler) resolveReturnAccess(expr parser.Expr) (int, error) {
	return c.resolveValueAccess(expr)
}
