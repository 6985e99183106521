package graph

import (
	"fmt"
	"strings"

	"github.com/dyedgreen/cqlite-sub000/pkg/query/compile"
	"github.com/dyedgreen/cqlite-sub000/pkg/query/parser"
	"github.com/dyedgreen/cqlite-sub000/pkg/query/plan"
)

// Explain parses, plans and compiles query without executing it,
// returning the optimized plan's match/update steps and the compiled
// bytecode as a human-readable string. Useful for debugging a query and
// for the CLI's "explain" subcommand; it never touches the store.
func (t *Txn) Explain(query string) (string, error) {
	ast, err := parser.Parse(query)
	if err != nil {
		return "", err
	}
	p, err := plan.Build(ast)
	if err != nil {
		return "", err
	}
	plan.Optimize(p)
	program, err := compile.Compile(p)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "match steps (%d):\n", len(p.MatchSteps))
	for i, s := range p.MatchSteps {
		fmt.Fprintf(&b, "  %2d  %#v\n", i, s)
	}
	fmt.Fprintf(&b, "update steps (%d):\n", len(p.UpdateSteps))
	for i, s := range p.UpdateSteps {
		fmt.Fprintf(&b, "  %2d  %#v\n", i, s)
	}
	fmt.Fprintf(&b, "returns (%d):\n", len(p.Returns))
	for i, r := range p.Returns {
		fmt.Fprintf(&b, "  %2d  %#v\n", i, r)
	}
	fmt.Fprintf(&b, "bytecode (%d instructions):\n", len(program.Instructions))
	for i, instr := range program.Instructions {
		fmt.Fprintf(&b, "  %4d  %#v\n", i, instr)
	}
	return b.String(), nil
}
