package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyedgreen/cqlite-sub000/pkg/value"
)

func openTest(t *testing.T) *Graph {
	t.Helper()
	g, err := OpenAnon()
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestCreateMatchReturn(t *testing.T) {
	g := openTest(t)
	ctx := context.Background()

	txn := g.Begin(ctx)
	_, err := txn.Run(ctx, `CREATE (a:Person {name: "Alice"})`, nil)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	read := g.BeginRead(ctx)
	defer read.Discard()
	matches, err := read.Run(ctx, `MATCH (n:Person) RETURN n.name`, nil)
	require.NoError(t, err)
	defer matches.Close()

	require.True(t, matches.Next(ctx))
	row, err := matches.Row()
	require.NoError(t, err)
	require.Len(t, row, 1)
	assert.True(t, row[0].Equal(value.Text("Alice")))
	assert.False(t, matches.Next(ctx))
	assert.NoError(t, matches.Err())
}

func TestParameterBinding(t *testing.T) {
	g := openTest(t)
	ctx := context.Background()

	txn := g.Begin(ctx)
	params, err := Params(map[string]any{"name": "Bob", "age": 30})
	require.NoError(t, err)
	_, err = txn.Run(ctx, `CREATE (a:Person {name: $name, age: $age})`, params)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	read := g.BeginRead(ctx)
	defer read.Discard()
	matches, err := read.Run(ctx, `MATCH (n:Person) WHERE n.age = $age RETURN n.name`, map[string]value.Property{
		"age": value.Integer(30),
	})
	require.NoError(t, err)
	defer matches.Close()

	require.True(t, matches.Next(ctx))
	row, err := matches.Row()
	require.NoError(t, err)
	assert.True(t, row[0].Equal(value.Text("Bob")))
}

func TestDiscardRollsBackWrites(t *testing.T) {
	g := openTest(t)
	ctx := context.Background()

	txn := g.Begin(ctx)
	_, err := txn.Run(ctx, `CREATE (a:Ghost)`, nil)
	require.NoError(t, err)
	txn.Discard()

	read := g.BeginRead(ctx)
	defer read.Discard()
	matches, err := read.Run(ctx, `MATCH (n:Ghost) RETURN n`, nil)
	require.NoError(t, err)
	defer matches.Close()
	assert.False(t, matches.Next(ctx))
}

func TestQueryCacheReusesCompiledProgram(t *testing.T) {
	g := openTest(t)
	ctx := context.Background()

	txn := g.Begin(ctx)
	defer txn.Discard()

	_, err := txn.Run(ctx, `MATCH (n) RETURN n`, nil)
	require.NoError(t, err)
	require.Equal(t, 1, g.cache.Len())

	_, err = txn.Run(ctx, `MATCH (n) RETURN n`, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, g.cache.Len())
}

func TestExplainDoesNotMutateStore(t *testing.T) {
	g := openTest(t)
	ctx := context.Background()

	txn := g.BeginRead(ctx)
	defer txn.Discard()

	out, err := txn.Explain(`MATCH (n:Person) RETURN n.name`)
	require.NoError(t, err)
	assert.Contains(t, out, "bytecode")
	assert.Contains(t, out, "match steps")
}

func TestUniqueTxnIDs(t *testing.T) {
	g := openTest(t)
	ctx := context.Background()

	a := g.Begin(ctx)
	defer a.Discard()
	b := g.Begin(ctx)
	defer b.Discard()

	assert.NotEqual(t, a.ID(), b.ID())
}
