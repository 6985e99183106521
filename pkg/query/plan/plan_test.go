package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyedgreen/cqlite-sub000/pkg/query/parser"
)

func build(t *testing.T, query string) *Plan {
	t.Helper()
	ast, err := parser.Parse(query)
	require.NoError(t, err)
	p, err := Build(ast)
	require.NoError(t, err)
	return p
}

func TestBuildSimpleMatchReturn(t *testing.T) {
	p := build(t, `MATCH (n:Person) RETURN n.name`)

	require.Len(t, p.MatchSteps, 2)
	_, isLoad := p.MatchSteps[0].(LoadAnyNode)
	assert.True(t, isLoad)
	_, isCheck := p.MatchSteps[1].(CheckNodeLabel)
	assert.True(t, isCheck)

	require.Len(t, p.Returns, 1)
	assert.Equal(t, 1, p.NodeSlots)
}

func TestBuildCreatePattern(t *testing.T) {
	p := build(t, `CREATE (a:Person {name: "Alice"})`)

	require.Len(t, p.UpdateSteps, 1)
	create, ok := p.UpdateSteps[0].(CreateNode)
	require.True(t, ok)
	assert.Equal(t, "Person", create.Label)
	assert.Contains(t, create.Props, "name")
}

func TestOptimizeStrengthReducesExactIdLoad(t *testing.T) {
	p := build(t, `MATCH (n) WHERE n.id = 7 RETURN n`)
	Optimize(p)

	found := false
	for _, s := range p.MatchSteps {
		if _, ok := s.(LoadExactNode); ok {
			found = true
		}
	}
	assert.True(t, found, "expected WHERE n.id = 7 to strength-reduce into LoadExactNode, got %#v", p.MatchSteps)
}

func TestOptimizeStrengthReducesLabeledLoad(t *testing.T) {
	p := build(t, `MATCH (n:Person) RETURN n`)
	Optimize(p)

	for _, s := range p.MatchSteps {
		if _, ok := s.(CheckNodeLabel); ok {
			t.Fatalf("expected CheckNodeLabel to be folded into LoadLabeledNode, found %#v", p.MatchSteps)
		}
	}
	found := false
	for _, s := range p.MatchSteps {
		if ld, ok := s.(LoadLabeledNode); ok {
			found = true
			assert.Equal(t, "Person", ld.Label)
		}
	}
	assert.True(t, found)
}

func TestBuildCreateRejectsRelabelingBoundNode(t *testing.T) {
	ast, err := parser.Parse(`MATCH (a:Person) CREATE (a:Person {name: "Alice"})`)
	require.NoError(t, err)

	_, err = Build(ast)
	require.Error(t, err)
	_, ok := err.(*IdentifierExistsError)
	assert.True(t, ok, "expected *IdentifierExistsError, got %T: %v", err, err)
}

func TestBuildCreateAllowsBareEndpointReuse(t *testing.T) {
	p := build(t, `MATCH (a:Person) CREATE (a)-[:OWNS]->(b:Pet {name: "Rex"})`)

	require.Len(t, p.UpdateSteps, 2)
	_, ok := p.UpdateSteps[0].(CreateNode)
	assert.True(t, ok, "expected the pet endpoint to be created, got %#v", p.UpdateSteps[0])
	_, ok = p.UpdateSteps[1].(CreateEdge)
	assert.True(t, ok)
}

func TestBuildEdgePatternBindsBothEndpoints(t *testing.T) {
	p := build(t, `MATCH (a)-[e:KNOWS]->(b) RETURN a, e, b`)

	assert.Equal(t, 2, p.NodeSlots)
	assert.Equal(t, 1, p.EdgeSlots)
	assert.Contains(t, p.NodeNames, "a")
	assert.Contains(t, p.NodeNames, "b")
	assert.Contains(t, p.EdgeNames, "e")
}
