package plan

import (
	"reflect"

	"github.com/dyedgreen/cqlite-sub000/pkg/query/parser"
)

// maxFixRuns bounds the fixed-point loop each rewrite pass runs in, as a
// backstop against a pass that (by a bug) never converges.
const maxFixRuns = 1000

// Optimize rewrites p's match and update steps into a cheaper, semantically
// equivalent form, in this order: SplitTopLevelAnd, MergeDuplicateUpdates,
// CanonicalizeCheckNodeLabel, CanonicalizeCheckEdgeLabel,
// ReorderIdConstrainedFirst, LoadAnyToLoadExact, LoadAnyToLoadLabeled.
// MergeDuplicateUpdates runs once; every other pass is applied repeatedly
// until it reaches a fixed point.
func Optimize(p *Plan) {
	fix(func() bool { return splitTopLevelAnd(p) })
	mergeDuplicateUpdates(p)
	fix(func() bool { return canonicalizeCheckNodeLabel(p) })
	fix(func() bool { return canonicalizeCheckEdgeLabel(p) })
	fix(func() bool { return reorderIdConstrainedFirst(p) })
	fix(func() bool { return loadAnyToLoadExact(p) })
	fix(func() bool { return loadAnyToLoadLabeled(p) })
}

// fix runs apply repeatedly while it reports having made a change, up to
// maxFixRuns times.
func fix(apply func() bool) {
	for i := 0; i < maxFixRuns; i++ {
		if !apply() {
			return
		}
	}
}

// splitTopLevelAnd flattens Filter{And(a, b)} into two Filter steps, so
// each half can be independently reordered, merged with a load, or
// short-circuited by the compiler.
func splitTopLevelAnd(p *Plan) bool {
	changed := false
	var out []MatchStep
	for _, s := range p.MatchSteps {
		f, ok := s.(Filter)
		if !ok {
			out = append(out, s)
			continue
		}
		and, ok := f.Expr.(parser.BinaryOp)
		if !ok || and.Op != "AND" {
			out = append(out, s)
			continue
		}
		out = append(out, Filter{Expr: and.Left}, Filter{Expr: and.Right})
		changed = true
	}
	p.MatchSteps = out
	return changed
}

// mergeDuplicateUpdates drops update steps that are exact duplicates of
// an earlier one in the same plan (e.g. `DELETE n, n` producing the same
// DeleteNode twice).
func mergeDuplicateUpdates(p *Plan) {
	var out []UpdateStep
	for _, u := range p.UpdateSteps {
		dup := false
		for _, prev := range out {
			if reflect.DeepEqual(prev, u) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, u)
		}
	}
	p.UpdateSteps = out
}

func canonicalizeCheckNodeLabel(p *Plan) bool {
	changed := false
	seen := map[[2]interface{}]bool{}
	var out []MatchStep
	for _, s := range p.MatchSteps {
		if c, ok := s.(CheckNodeLabel); ok {
			key := [2]interface{}{c.Node, c.Label}
			if seen[key] {
				changed = true
				continue
			}
			seen[key] = true
		}
		out = append(out, s)
	}
	p.MatchSteps = out
	return changed
}

func canonicalizeCheckEdgeLabel(p *Plan) bool {
	changed := false
	seen := map[[2]interface{}]bool{}
	var out []MatchStep
	for _, s := range p.MatchSteps {
		if c, ok := s.(CheckEdgeLabel); ok {
			key := [2]interface{}{c.Edge, c.Label}
			if seen[key] {
				changed = true
				continue
			}
			seen[key] = true
		}
		out = append(out, s)
	}
	p.MatchSteps = out
	return changed
}

// introducedSlots reports the node and/or edge slot a match step
// introduces (loads a fresh value into), if any.
func introducedSlots(s MatchStep) (node int, hasNode bool, edge int, hasEdge bool) {
	switch v := s.(type) {
	case LoadAnyNode:
		return v.Node, true, 0, false
	case LoadExactNode:
		return v.Node, true, 0, false
	case LoadLabeledNode:
		return v.Node, true, 0, false
	case LoadOriginNode:
		return v.Node, true, 0, false
	case LoadTargetNode:
		return v.Node, true, 0, false
	case LoadOtherNode:
		return v.Node, true, 0, false
	case LoadOriginEdge:
		return 0, false, v.Edge, true
	case LoadTargetEdge:
		return 0, false, v.Edge, true
	case LoadBothEdge:
		return 0, false, v.Edge, true
	default:
		return 0, false, 0, false
	}
}

// exprEntities collects every identifier/property-access entity name an
// expression references.
func exprEntities(e parser.Expr, out map[string]bool) {
	switch v := e.(type) {
	case parser.Identifier:
		out[v.Name] = true
	case parser.PropertyAccess:
		out[v.Entity] = true
	case parser.BinaryOp:
		exprEntities(v.Left, out)
		exprEntities(v.Right, out)
	case parser.Not:
		exprEntities(v.Expr, out)
	}
}

// reorderIdConstrainedFirst moves each Filter step to immediately follow
// the last match step that introduces one of the slots it depends on -
// as early as it can legally run - so that a filter constraining a node
// or edge's identity sits right next to the load it constrains, which is
// what LoadAnyToLoadExact/LoadAnyToLoadLabeled look for. A filter with no
// slot dependencies (parameters and literals only) floats to the very
// front, since it can never fail to be ready and is usually the cheapest
// check available.
func reorderIdConstrainedFirst(p *Plan) bool {
	var nonFilters []MatchStep
	type pending struct {
		filter Filter
		origIx int
	}
	var filters []pending

	for i, s := range p.MatchSteps {
		if f, ok := s.(Filter); ok {
			filters = append(filters, pending{f, i})
			continue
		}
		nonFilters = append(nonFilters, s)
	}
	if len(filters) == 0 {
		return false
	}

	lastIntroductionOf := map[string]int{} // name -> index in nonFilters after which it's available
	introAt := make([]int, len(nonFilters))
	for i, s := range nonFilters {
		introAt[i] = i
		if n, ok1, e, ok2 := introducedSlots(s); ok1 || ok2 {
			for name, slot := range p.NodeNames {
				if ok1 && slot == n {
					lastIntroductionOf[name] = i
				}
			}
			for name, slot := range p.EdgeNames {
				if ok2 && slot == e {
					lastIntroductionOf[name] = i
				}
			}
		}
	}

	targetOf := make([]int, len(filters))
	for fi, pf := range filters {
		entities := map[string]bool{}
		exprEntities(pf.filter.Expr, entities)
		target := -1
		for name := range entities {
			if idx, ok := lastIntroductionOf[name]; ok && idx > target {
				target = idx
			}
		}
		targetOf[fi] = target // -1 means "front"
	}

	type placed struct {
		step   MatchStep
		target int
		orig   int
	}
	var all []placed
	for i, s := range nonFilters {
		all = append(all, placed{s, i, i})
	}
	for fi, pf := range filters {
		all = append(all, placed{pf.filter, targetOf[fi], pf.origIx})
	}

	// Stable sort by target position, then by original index, keeping
	// non-filter steps and not-yet-ready filters ("front", target -1) in
	// their relative order.
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && less(all[j], all[j-1]); j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}

	out := make([]MatchStep, len(all))
	for i, pl := range all {
		out[i] = pl.step
	}
	changed := !sameOrder(p.MatchSteps, out)
	p.MatchSteps = out
	return changed
}

func less(a, b struct {
	step   MatchStep
	target int
	orig   int
}) bool {
	if a.target != b.target {
		return a.target < b.target
	}
	return a.orig < b.orig
}

func sameOrder(a, b []MatchStep) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// idEqualityOn reports whether expr is an equality comparison between
// entity.id and a constant/parameter expression, returning that
// expression if so.
func idEqualityOn(expr parser.Expr, entity string) (parser.Expr, bool) {
	bin, ok := expr.(parser.BinaryOp)
	if !ok || bin.Op != "=" {
		return nil, false
	}
	if pa, ok := bin.Left.(parser.PropertyAccess); ok && pa.Entity == entity && pa.Key == "id" {
		return bin.Right, true
	}
	if pa, ok := bin.Right.(parser.PropertyAccess); ok && pa.Entity == entity && pa.Key == "id" {
		return bin.Left, true
	}
	return nil, false
}

func nameOfNode(p *Plan, slot int) string {
	for name, s := range p.NodeNames {
		if s == slot {
			return name
		}
	}
	return ""
}

// loadAnyToLoadExact replaces a LoadAnyNode immediately followed by an
// id-equality filter with a single direct-seek LoadExactNode, dropping
// the now-redundant filter.
func loadAnyToLoadExact(p *Plan) bool {
	for i := 0; i+1 < len(p.MatchSteps); i++ {
		ln, ok := p.MatchSteps[i].(LoadAnyNode)
		if !ok {
			continue
		}
		f, ok := p.MatchSteps[i+1].(Filter)
		if !ok {
			continue
		}
		name := nameOfNode(p, ln.Node)
		idExpr, ok := idEqualityOn(f.Expr, name)
		if !ok {
			continue
		}
		p.MatchSteps[i] = LoadExactNode{Node: ln.Node, Id: idExpr}
		p.MatchSteps = append(p.MatchSteps[:i+1], p.MatchSteps[i+2:]...)
		return true
	}
	return false
}

// loadAnyToLoadLabeled replaces a LoadAnyNode immediately followed by a
// label check with a single label-index walk, dropping the now-redundant
// check.
func loadAnyToLoadLabeled(p *Plan) bool {
	for i := 0; i+1 < len(p.MatchSteps); i++ {
		ln, ok := p.MatchSteps[i].(LoadAnyNode)
		if !ok {
			continue
		}
		c, ok := p.MatchSteps[i+1].(CheckNodeLabel)
		if !ok || c.Node != ln.Node {
			continue
		}
		p.MatchSteps[i] = LoadLabeledNode{Node: ln.Node, Label: c.Label}
		p.MatchSteps = append(p.MatchSteps[:i+1], p.MatchSteps[i+2:]...)
		return true
	}
	return false
}
