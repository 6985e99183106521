package vm

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/dyedgreen/cqlite-sub000/pkg/store"
	"github.com/dyedgreen/cqlite-sub000/pkg/value"
)

// Status reports why Run returned control to the caller.
type Status int

const (
	// StatusYield means a match was found and its update steps (if any)
	// were applied; call Columns to read the RETURN row, then Run again
	// to search for the next match.
	StatusYield Status = iota
	// StatusHalt means the program is finished: every candidate has been
	// tried and no further matches remain.
	StatusHalt
)

// VirtualMachine executes a compiled Program against a store transaction:
// a node value stack, an edge value stack, a node-iterator stack and an
// edge-iterator stack, driven by a simple dispatch loop over Instruction.
type VirtualMachine struct {
	txn     *store.Txn
	program *Program
	params  map[string]value.Property

	pc      int
	halted  bool
	nodes   []store.Node
	edges   []store.Edge
	nodeIts []*store.NodeIter
	edgeIts []*store.EdgeIter
	// node/edge stack depths at the moment each open iterator was opened
	nodeItBase, edgeItBase [][2]int

	ctx          context.Context
	instrCounter metric.Int64Counter
}

// New returns a VirtualMachine ready to execute program against txn, with
// params bound for any AccessParameter accesses the program makes.
func New(txn *store.Txn, program *Program, params map[string]value.Property) *VirtualMachine {
	return &VirtualMachine{txn: txn, program: program, params: params, ctx: context.Background()}
}

// WithInstrumentation attaches a context and an instruction-dispatch
// counter: every instruction step() executes increments it by one. Both
// are optional - an uninstrumented VirtualMachine (the zero value New
// returns) simply skips the increment.
func (m *VirtualMachine) WithInstrumentation(ctx context.Context, instrCounter metric.Int64Counter) *VirtualMachine {
	m.ctx = ctx
	m.instrCounter = instrCounter
	return m
}

// Close releases any iterators still open on the virtual machine - call
// this if the caller stops driving Run before it reaches StatusHalt.
func (m *VirtualMachine) Close() {
	for _, it := range m.nodeIts {
		it.Close()
	}
	for _, it := range m.edgeIts {
		it.Close()
	}
	m.nodeIts = nil
	m.edgeIts = nil
}

// Run executes instructions until the program yields a match or halts.
func (m *VirtualMachine) Run() (Status, error) {
	if m.halted {
		return StatusHalt, nil
	}
	for {
		if m.pc < 0 || m.pc >= len(m.program.Instructions) {
			return StatusHalt, &ErrCorruptProgram{Detail: fmt.Sprintf("pc %d out of range", m.pc)}
		}
		instr := m.program.Instructions[m.pc]
		status, done, err := m.step(instr)
		if m.instrCounter != nil {
			m.instrCounter.Add(m.ctx, 1)
		}
		if err != nil {
			return StatusHalt, err
		}
		if done {
			return status, nil
		}
	}
}

// Columns resolves the current RETURN row using read-your-writes
// property access - call this only right after Run returns StatusYield.
func (m *VirtualMachine) Columns() ([]value.Property, error) {
	out := make([]value.Property, len(m.program.Returns))
	for i, col := range m.program.Returns {
		v, err := m.resolveAccess(col.Access, true)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ColumnNames returns the RETURN column names, in order.
func (m *VirtualMachine) ColumnNames() []string {
	names := make([]string, len(m.program.Returns))
	for i, col := range m.program.Returns {
		names[i] = col.Name
	}
	return names
}

// step executes a single instruction, advancing or redirecting pc as
// appropriate. done is true once Run should return control to the caller.
func (m *VirtualMachine) step(instr Instruction) (status Status, done bool, err error) {
	switch ins := instr.(type) {
	case NoOp:
		m.pc++
	case Jump:
		m.pc = ins.Target
	case Yield:
		m.pc++
		return StatusYield, true, nil
	case Halt:
		m.halted = true
		return StatusHalt, true, nil

	case IterNodes:
		var it *store.NodeIter
		if ins.Label == "" {
			it = m.txn.IterNodes()
		} else {
			it = m.txn.IterNodesWithLabel(ins.Label)
		}
		m.nodeIts = append(m.nodeIts, it)
		m.nodeItBase = append(m.nodeItBase, [2]int{len(m.nodes), len(m.edges)})
		m.pc++
	case IterOriginEdges:
		m.edgeIts = append(m.edgeIts, m.txn.IterOriginEdges(m.nodes[ins.Node].Id))
		m.edgeItBase = append(m.edgeItBase, [2]int{len(m.nodes), len(m.edges)})
		m.pc++
	case IterTargetEdges:
		m.edgeIts = append(m.edgeIts, m.txn.IterTargetEdges(m.nodes[ins.Node].Id))
		m.edgeItBase = append(m.edgeItBase, [2]int{len(m.nodes), len(m.edges)})
		m.pc++
	case IterBothEdges:
		m.edgeIts = append(m.edgeIts, m.txn.IterBothEdges(m.nodes[ins.Node].Id))
		m.edgeItBase = append(m.edgeItBase, [2]int{len(m.nodes), len(m.edges)})
		m.pc++

	case LoadNextNode:
		top := m.nodeIts[len(m.nodeIts)-1]
		base := m.nodeItBase[len(m.nodeItBase)-1]
		m.nodes, m.edges = m.nodes[:base[0]], m.edges[:base[1]]
		if top.Next() {
			m.nodes = append(m.nodes, top.Node())
			m.pc++
			return 0, false, nil
		}
		if err := top.Err(); err != nil {
			return 0, true, err
		}
		top.Close()
		m.nodeIts = m.nodeIts[:len(m.nodeIts)-1]
		m.nodeItBase = m.nodeItBase[:len(m.nodeItBase)-1]
		m.pc = ins.Target
	case LoadNextEdge:
		top := m.edgeIts[len(m.edgeIts)-1]
		base := m.edgeItBase[len(m.edgeItBase)-1]
		m.nodes, m.edges = m.nodes[:base[0]], m.edges[:base[1]]
		if top.Next() {
			m.edges = append(m.edges, top.Edge())
			m.pc++
			return 0, false, nil
		}
		if err := top.Err(); err != nil {
			return 0, true, err
		}
		top.Close()
		m.edgeIts = m.edgeIts[:len(m.edgeIts)-1]
		m.edgeItBase = m.edgeItBase[:len(m.edgeItBase)-1]
		m.pc = ins.Target

	case LoadExactNode:
		idVal, err := m.resolveAccess(ins.Id, false)
		if err != nil {
			return 0, true, err
		}
		id, ok := idVal.CastId()
		if !ok {
			m.pc = ins.Target
			return 0, false, nil
		}
		node, err := m.txn.LoadNode(id)
		if errors.Is(err, store.ErrMissingNode) {
			m.pc = ins.Target
			return 0, false, nil
		}
		if err != nil {
			return 0, true, err
		}
		m.nodes = append(m.nodes, node)
		m.pc++
	case LoadOriginNode:
		node, err := m.txn.LoadNode(m.edges[ins.Edge].Origin)
		if err != nil {
			return 0, true, err
		}
		m.nodes = append(m.nodes, node)
		m.pc++
	case LoadTargetNode:
		node, err := m.txn.LoadNode(m.edges[ins.Edge].Target)
		if err != nil {
			return 0, true, err
		}
		m.nodes = append(m.nodes, node)
		m.pc++
	case LoadOtherNode:
		e := m.edges[ins.Edge]
		known := m.nodes[ins.Node].Id
		other := e.Target
		if e.Origin != known {
			other = e.Origin
		}
		node, err := m.txn.LoadNode(other)
		if err != nil {
			return 0, true, err
		}
		m.nodes = append(m.nodes, node)
		m.pc++

	case PopNode:
		m.nodes = m.nodes[:len(m.nodes)-1]
		m.pc++
	case PopEdge:
		m.edges = m.edges[:len(m.edges)-1]
		m.pc++

	case CheckIsOrigin:
		if m.edges[ins.Edge].Origin == m.nodes[ins.Node].Id {
			m.pc++
		} else {
			m.pc = ins.Target
		}
	case CheckIsTarget:
		if m.edges[ins.Edge].Target == m.nodes[ins.Node].Id {
			m.pc++
		} else {
			m.pc = ins.Target
		}
	case CheckNodeLabel:
		if m.nodes[ins.Node].Label == ins.Label {
			m.pc++
		} else {
			m.pc = ins.Target
		}
	case CheckEdgeLabel:
		if m.edges[ins.Edge].Label == ins.Label {
			m.pc++
		} else {
			m.pc = ins.Target
		}
	case CheckNodeId:
		idVal, err := m.resolveAccess(ins.Id, false)
		if err != nil {
			return 0, true, err
		}
		id, ok := idVal.CastId()
		if ok && m.nodes[ins.Node].Id == id {
			m.pc++
		} else {
			m.pc = ins.Target
		}
	case CheckEdgeId:
		idVal, err := m.resolveAccess(ins.Id, false)
		if err != nil {
			return 0, true, err
		}
		id, ok := idVal.CastId()
		if ok && m.edges[ins.Edge].Id == id {
			m.pc++
		} else {
			m.pc = ins.Target
		}
	case CheckTrue:
		v, err := m.resolveAccess(ins.Value, false)
		if err != nil {
			return 0, true, err
		}
		if v.IsTruthy() {
			m.pc++
		} else {
			m.pc = ins.Target
		}
	case CheckEq:
		lv, err := m.resolveAccess(ins.Lhs, false)
		if err != nil {
			return 0, true, err
		}
		rv, err := m.resolveAccess(ins.Rhs, false)
		if err != nil {
			return 0, true, err
		}
		if lv.Equal(rv) {
			m.pc++
		} else {
			m.pc = ins.Target
		}
	case CheckLt:
		lv, err := m.resolveAccess(ins.Lhs, false)
		if err != nil {
			return 0, true, err
		}
		rv, err := m.resolveAccess(ins.Rhs, false)
		if err != nil {
			return 0, true, err
		}
		if lt, ok := lv.Less(rv); ok && lt {
			m.pc++
		} else {
			m.pc = ins.Target
		}
	case CheckGt:
		lv, err := m.resolveAccess(ins.Lhs, false)
		if err != nil {
			return 0, true, err
		}
		rv, err := m.resolveAccess(ins.Rhs, false)
		if err != nil {
			return 0, true, err
		}
		if gt, ok := rv.Less(lv); ok && gt {
			m.pc++
		} else {
			m.pc = ins.Target
		}

	case CreateNode:
		props, err := m.resolvePropsMap(ins.Properties)
		if err != nil {
			return 0, true, err
		}
		id, err := m.txn.CreateNode(ins.Label, props)
		if err != nil {
			return 0, true, err
		}
		m.nodes = append(m.nodes, store.Node{Id: id, Label: ins.Label, Properties: props})
		m.pc++
	case CreateEdge:
		props, err := m.resolvePropsMap(ins.Properties)
		if err != nil {
			return 0, true, err
		}
		origin := m.nodes[ins.Origin].Id
		target := m.nodes[ins.Target].Id
		id, err := m.txn.CreateEdge(ins.Label, origin, target, props)
		if err != nil {
			return 0, true, err
		}
		m.edges = append(m.edges, store.Edge{Id: id, Label: ins.Label, Origin: origin, Target: target, Properties: props})
		m.pc++
	case SetNodeProperty:
		v, err := m.resolveAccess(ins.Value, false)
		if err != nil {
			return 0, true, err
		}
		if err := m.txn.SetNodeProperty(m.nodes[ins.Node].Id, ins.Key, v); err != nil {
			return 0, true, err
		}
		m.pc++
	case SetEdgeProperty:
		v, err := m.resolveAccess(ins.Value, false)
		if err != nil {
			return 0, true, err
		}
		if err := m.txn.SetEdgeProperty(m.edges[ins.Edge].Id, ins.Key, v); err != nil {
			return 0, true, err
		}
		m.pc++
	case DeleteNode:
		if err := m.txn.DeleteNode(m.nodes[ins.Node].Id); err != nil {
			return 0, true, err
		}
		m.pc++
	case DeleteEdge:
		if err := m.txn.DeleteEdge(m.edges[ins.Edge].Id); err != nil {
			return 0, true, err
		}
		m.pc++

	default:
		return 0, true, &ErrCorruptProgram{Detail: fmt.Sprintf("unknown instruction %T", instr)}
	}
	return 0, false, nil
}

func (m *VirtualMachine) resolvePropsMap(properties map[string]int) (value.Map, error) {
	if len(properties) == 0 {
		return nil, nil
	}
	out := make(value.Map, len(properties))
	for key, idx := range properties {
		v, err := m.resolveAccess(idx, false)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// resolveAccess resolves the value an Access describes. When returnMode is
// true, NodeProperty/EdgeProperty accesses consult the transaction's
// pending update queue before the committed record (read-your-writes for
// RETURN); otherwise they read straight off the bound node/edge - the
// same committed snapshot the match was found against, which is what
// WHERE filters and property-map patterns are expected to see.
func (m *VirtualMachine) resolveAccess(idx int, returnMode bool) (value.Property, error) {
	if idx < 0 || idx >= len(m.program.Accesses) {
		return value.Null, &ErrCorruptProgram{Detail: fmt.Sprintf("access index %d out of range", idx)}
	}
	a := m.program.Accesses[idx]
	switch a.Kind {
	case AccessConstant:
		return a.Constant, nil
	case AccessParameter:
		v, ok := m.params[a.Param]
		if !ok {
			return value.Null, nil
		}
		return v, nil
	case AccessNodeId:
		return value.Id(m.nodes[a.Node].Id), nil
	case AccessEdgeId:
		return value.Id(m.edges[a.Edge].Id), nil
	case AccessNodeLabel:
		return value.Text(m.nodes[a.Node].Label), nil
	case AccessEdgeLabel:
		return value.Text(m.edges[a.Edge].Label), nil
	case AccessNodeProperty:
		if returnMode {
			v, ok, err := m.txn.GetUpdatedProperty(true, m.nodes[a.Node].Id, a.Key)
			if err != nil {
				return value.Null, err
			}
			if !ok {
				return value.Null, nil
			}
			return v, nil
		}
		v, ok := m.nodes[a.Node].Properties[a.Key]
		if !ok {
			return value.Null, nil
		}
		return v, nil
	case AccessEdgeProperty:
		if returnMode {
			v, ok, err := m.txn.GetUpdatedProperty(false, m.edges[a.Edge].Id, a.Key)
			if err != nil {
				return value.Null, err
			}
			if !ok {
				return value.Null, nil
			}
			return v, nil
		}
		v, ok := m.edges[a.Edge].Properties[a.Key]
		if !ok {
			return value.Null, nil
		}
		return v, nil
	default:
		return value.Null, &ErrCorruptProgram{Detail: fmt.Sprintf("unknown access kind %d", a.Kind)}
	}
}
