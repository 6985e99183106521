package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleMatchReturn(t *testing.T) {
	q, err := Parse(`MATCH (a:Person)-[:KNOWS]->(b:Person) RETURN a, b`)
	require.NoError(t, err)
	require.Len(t, q.Matches, 1)
	pat := q.Matches[0]
	require.Len(t, pat.Nodes, 2)
	require.Len(t, pat.Edges, 1)
	assert.Equal(t, "Person", pat.Nodes[0].Label)
	assert.Equal(t, "a", pat.Nodes[0].Name)
	assert.Equal(t, "KNOWS", pat.Edges[0].Label)
	assert.Equal(t, DirRight, pat.Edges[0].Direction)
	require.Len(t, q.Returns, 2)
}

func TestParseEitherDirectionEdge(t *testing.T) {
	q, err := Parse(`MATCH (a)-[e]-(b) RETURN e`)
	require.NoError(t, err)
	assert.Equal(t, DirEither, q.Matches[0].Edges[0].Direction)
}

func TestParseLeftDirectionEdge(t *testing.T) {
	q, err := Parse(`MATCH (a)<-[e:LIKES]-(b) RETURN e`)
	require.NoError(t, err)
	assert.Equal(t, DirLeft, q.Matches[0].Edges[0].Direction)
	assert.Equal(t, "LIKES", q.Matches[0].Edges[0].Label)
}

func TestParseWhereClause(t *testing.T) {
	q, err := Parse(`MATCH (a:Person) WHERE a.age > 21 AND NOT a.banned RETURN a`)
	require.NoError(t, err)
	require.NotNil(t, q.Where)
	and, ok := q.Where.(BinaryOp)
	require.True(t, ok)
	assert.Equal(t, "AND", and.Op)
}

func TestParseCreateSetDelete(t *testing.T) {
	q, err := Parse(`MATCH (a:Person) CREATE (a)-[:OWNS]->(b:Pet {name: "Rex"}) SET a.seen = true DELETE a RETURN a`)
	require.NoError(t, err)
	require.Len(t, q.Creates, 1)
	require.Len(t, q.Sets, 1)
	assert.Equal(t, "seen", q.Sets[0].Key)
	require.Len(t, q.Deletes, 1)
	assert.Equal(t, "a", q.Deletes[0].Entity)
}

func TestParsePropertyMapLiteral(t *testing.T) {
	q, err := Parse(`MATCH (a:Person {name: "Alice", age: 30}) RETURN a`)
	require.NoError(t, err)
	props := q.Matches[0].Nodes[0].Props
	require.Contains(t, props, "name")
	require.Contains(t, props, "age")
}

func TestParseParameter(t *testing.T) {
	q, err := Parse(`MATCH (a:Person) WHERE a.name = $name RETURN a`)
	require.NoError(t, err)
	cmp := q.Where.(BinaryOp)
	param, ok := cmp.Right.(Parameter)
	require.True(t, ok)
	assert.Equal(t, "name", param.Name)
}

func TestSyntaxErrorHasPosition(t *testing.T) {
	_, err := Parse(`MATCH (a:Person RETURN a`)
	require.Error(t, err)
	synErr, ok := err.(*SyntaxError)
	require.True(t, ok)
	assert.Greater(t, synErr.Pos.Column, 0)
}

func TestParseReturnIsOptional(t *testing.T) {
	q, err := Parse(`MATCH (a:Person) DELETE a`)
	require.NoError(t, err)
	assert.Empty(t, q.Returns)
	assert.Len(t, q.Deletes, 1)
}
