package plan

import "github.com/dyedgreen/cqlite-sub000/pkg/query/parser"

// buildEnv tracks which names are already bound to a node or edge slot
// while a Query's patterns are walked, grounded on the symbol-table
// approach of a standard pattern-to-plan build pass: names are registered
// once, and subsequent references within the same query reuse the slot
// rather than introducing a new load.
type buildEnv struct {
	nodeNames map[string]int
	edgeNames map[string]int
	nextNode  int
	nextEdge  int
}

func newBuildEnv() *buildEnv {
	return &buildEnv{nodeNames: map[string]int{}, edgeNames: map[string]int{}}
}

func (e *buildEnv) bindNode(name string) (int, bool, error) {
	if name == "" {
		slot := e.nextNode
		e.nextNode++
		return slot, true, nil
	}
	if slot, ok := e.nodeNames[name]; ok {
		return slot, false, nil
	}
	if _, ok := e.edgeNames[name]; ok {
		return 0, false, &IdentifierIsNotNodeError{Name: name}
	}
	slot := e.nextNode
	e.nextNode++
	e.nodeNames[name] = slot
	return slot, true, nil
}

func (e *buildEnv) bindEdge(name string) (int, bool, error) {
	if name == "" {
		slot := e.nextEdge
		e.nextEdge++
		return slot, true, nil
	}
	if slot, ok := e.edgeNames[name]; ok {
		return slot, false, nil
	}
	if _, ok := e.nodeNames[name]; ok {
		return 0, false, &IdentifierIsNotEdgeError{Name: name}
	}
	slot := e.nextEdge
	e.nextEdge++
	e.edgeNames[name] = slot
	return slot, true, nil
}

func propFilters(entity string, props map[string]parser.Expr) []MatchStep {
	var steps []MatchStep
	for key, expr := range props {
		steps = append(steps, Filter{Expr: parser.BinaryOp{
			Op:    "=",
			Left:  parser.PropertyAccess{Entity: entity, Key: key},
			Right: expr,
		}})
	}
	return steps
}

// Build turns a parsed Query into an unoptimized Plan: match steps that
// find each MATCH pattern, update steps for CREATE/SET/DELETE, and the
// resolved RETURN columns.
func Build(q *parser.Query) (*Plan, error) {
	env := newBuildEnv()
	var steps []MatchStep

	for _, pat := range q.Matches {
		patSteps, err := buildMatchPattern(env, pat)
		if err != nil {
			return nil, err
		}
		steps = append(steps, patSteps...)
	}

	if q.Where != nil {
		steps = append(steps, Filter{Expr: q.Where})
	}

	var updates []UpdateStep
	for _, pat := range q.Creates {
		createSteps, err := buildCreatePattern(env, pat)
		if err != nil {
			return nil, err
		}
		updates = append(updates, createSteps...)
	}

	for _, s := range q.Sets {
		if slot, ok := env.nodeNames[s.Entity]; ok {
			updates = append(updates, SetNodeProperty{Node: slot, Key: s.Key, Value: s.Value})
			continue
		}
		if slot, ok := env.edgeNames[s.Entity]; ok {
			updates = append(updates, SetEdgeProperty{Edge: slot, Key: s.Key, Value: s.Value})
			continue
		}
		return nil, &UnknownIdentifierError{Name: s.Entity}
	}

	// Deletes sort after every other update kind so that CREATE/SET in the
	// same statement observe entities before they vanish; DeleteEdge before
	// DeleteNode is enforced later by the store's own flush ordering.
	for _, d := range q.Deletes {
		if slot, ok := env.nodeNames[d.Entity]; ok {
			updates = append(updates, DeleteNode{Node: slot})
			continue
		}
		if slot, ok := env.edgeNames[d.Entity]; ok {
			updates = append(updates, DeleteEdge{Edge: slot})
			continue
		}
		return nil, &UnknownIdentifierError{Name: d.Entity}
	}

	var returns []ReturnExpr
	for _, r := range q.Returns {
		name := r.Alias
		if name == "" {
			name = exprDisplayName(r.Expr)
		}
		returns = append(returns, ReturnExpr{Expr: r.Expr, Name: name})
	}

	return &Plan{
		MatchSteps:  steps,
		UpdateSteps: updates,
		Returns:     returns,
		NodeSlots:   env.nextNode,
		EdgeSlots:   env.nextEdge,
		NodeNames:   env.nodeNames,
		EdgeNames:   env.edgeNames,
	}, nil
}

func exprDisplayName(e parser.Expr) string {
	switch v := e.(type) {
	case parser.Identifier:
		return v.Name
	case parser.PropertyAccess:
		return v.Entity + "." + v.Key
	default:
		return ""
	}
}

func buildMatchPattern(env *buildEnv, pat parser.Pattern) ([]MatchStep, error) {
	var steps []MatchStep

	firstSlot, firstIsNew, err := env.bindNode(pat.Nodes[0].Name)
	if err != nil {
		return nil, err
	}
	if firstIsNew {
		steps = append(steps, LoadAnyNode{Node: firstSlot})
	}
	if pat.Nodes[0].Label != "" {
		steps = append(steps, CheckNodeLabel{Node: firstSlot, Label: pat.Nodes[0].Label})
	}
	steps = append(steps, propFilters(pat.Nodes[0].Name, pat.Nodes[0].Props)...)

	prevSlot := firstSlot
	for i, edge := range pat.Edges {
		nextNodePat := pat.Nodes[i+1]

		edgeSlot, edgeIsNew, err := env.bindEdge(edge.Name)
		if err != nil {
			return nil, err
		}
		nodeSlot, nodeIsNew, err := env.bindNode(nextNodePat.Name)
		if err != nil {
			return nil, err
		}

		switch edge.Direction {
		case parser.DirRight:
			if edgeIsNew {
				steps = append(steps, LoadOriginEdge{Edge: edgeSlot, Node: prevSlot})
			} else {
				steps = append(steps, CheckIsOrigin{Node: prevSlot, Edge: edgeSlot})
			}
			if nodeIsNew {
				steps = append(steps, LoadTargetNode{Node: nodeSlot, Edge: edgeSlot})
			} else {
				steps = append(steps, CheckIsTarget{Node: nodeSlot, Edge: edgeSlot})
			}
		case parser.DirLeft:
			if edgeIsNew {
				steps = append(steps, LoadTargetEdge{Edge: edgeSlot, Node: prevSlot})
			} else {
				steps = append(steps, CheckIsTarget{Node: prevSlot, Edge: edgeSlot})
			}
			if nodeIsNew {
				steps = append(steps, LoadOriginNode{Node: nodeSlot, Edge: edgeSlot})
			} else {
				steps = append(steps, CheckIsOrigin{Node: nodeSlot, Edge: edgeSlot})
			}
		default: // DirEither
			if edgeIsNew {
				steps = append(steps, LoadBothEdge{Edge: edgeSlot, Node: prevSlot})
			} else {
				steps = append(steps, CheckOtherEndpoint{Edge: edgeSlot, Prev: prevSlot, Known: prevSlot})
			}
			if nodeIsNew {
				steps = append(steps, LoadOtherNode{Node: nodeSlot, Edge: edgeSlot, Known: prevSlot})
			} else {
				steps = append(steps, CheckOtherEndpoint{Edge: edgeSlot, Prev: prevSlot, Known: nodeSlot})
			}
		}

		if edge.Label != "" {
			steps = append(steps, CheckEdgeLabel{Edge: edgeSlot, Label: edge.Label})
		}
		steps = append(steps, propFilters(edge.Name, edge.Props)...)

		if nextNodePat.Label != "" {
			steps = append(steps, CheckNodeLabel{Node: nodeSlot, Label: nextNodePat.Label})
		}
		steps = append(steps, propFilters(nextNodePat.Name, nextNodePat.Props)...)

		prevSlot = nodeSlot
	}

	return steps, nil
}

func buildCreatePattern(env *buildEnv, pat parser.Pattern) ([]UpdateStep, error) {
	var updates []UpdateStep

	firstSlot, firstIsNew, err := env.bindNode(pat.Nodes[0].Name)
	if err != nil {
		return nil, err
	}
	if firstIsNew {
		updates = append(updates, CreateNode{Node: firstSlot, Label: pat.Nodes[0].Label, Props: pat.Nodes[0].Props})
	} else if pat.Nodes[0].Label != "" || len(pat.Nodes[0].Props) > 0 {
		// A label or property map means the pattern intends to create a
		// new node; reusing an already-bound name for that is ambiguous
		// rather than a bare endpoint reference like `(a)-[...]->`.
		return nil, &IdentifierExistsError{Name: pat.Nodes[0].Name}
	}

	prevSlot := firstSlot
	for i, edge := range pat.Edges {
		nextNodePat := pat.Nodes[i+1]
		nodeSlot, nodeIsNew, err := env.bindNode(nextNodePat.Name)
		if err != nil {
			return nil, err
		}
		if nodeIsNew {
			updates = append(updates, CreateNode{Node: nodeSlot, Label: nextNodePat.Label, Props: nextNodePat.Props})
		} else if nextNodePat.Label != "" || len(nextNodePat.Props) > 0 {
			return nil, &IdentifierExistsError{Name: nextNodePat.Name}
		}

		edgeSlot, edgeIsNew, err := env.bindEdge(edge.Name)
		if err != nil {
			return nil, err
		}
		if !edgeIsNew {
			// Every edge token in a CREATE pattern allocates a brand new
			// edge; there is no bare-reference form like a CREATE node
			// endpoint has, so reusing a bound edge name here is always
			// a conflict.
			return nil, &IdentifierExistsError{Name: edge.Name}
		}

		origin, target := prevSlot, nodeSlot
		if edge.Direction == parser.DirLeft {
			origin, target = nodeSlot, prevSlot
		}
		updates = append(updates, CreateEdge{Edge: edgeSlot, Label: edge.Label, Origin: origin, Target: target, Props: edge.Props})

		prevSlot = nodeSlot
	}

	return updates, nil
}
