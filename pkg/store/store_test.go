package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyedgreen/cqlite-sub000/pkg/value"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := OpenAnon()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndLoadNode(t *testing.T) {
	s := openTest(t)
	tx := s.BeginWrite()
	defer tx.Discard()

	id, err := tx.CreateNode("Person", value.Map{"name": value.Text("Alice")})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	read := s.BeginRead()
	defer read.Discard()
	n, err := read.LoadNode(id)
	require.NoError(t, err)
	assert.Equal(t, "Person", n.Label)
	assert.True(t, n.Properties["name"].Equal(value.Text("Alice")))
}

func TestReadOnlyTransactionRejectsWrites(t *testing.T) {
	s := openTest(t)
	tx := s.BeginRead()
	defer tx.Discard()

	_, err := tx.CreateNode("X", nil)
	assert.ErrorIs(t, err, ErrReadOnlyWrite)

	err = tx.DeleteNode(1)
	assert.ErrorIs(t, err, ErrReadOnlyWrite)
}

func TestIdSequenceMonotonic(t *testing.T) {
	s := openTest(t)
	tx := s.BeginWrite()
	a, err := tx.CreateNode("A", nil)
	require.NoError(t, err)
	b, err := tx.CreateNode("B", nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, a+1, b)

	tx2 := s.BeginWrite()
	defer tx2.Discard()
	c, err := tx2.CreateNode("C", nil)
	require.NoError(t, err)
	assert.Equal(t, b+1, c)
}

func TestDeleteConnectedNode(t *testing.T) {
	s := openTest(t)
	tx := s.BeginWrite()
	a, _ := tx.CreateNode("A", nil)
	b, _ := tx.CreateNode("B", nil)
	_, err := tx.CreateEdge("KNOWS", a, b, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx2 := s.BeginWrite()
	defer tx2.Discard()
	require.NoError(t, tx2.DeleteNode(a))
	err = tx2.Commit()
	assert.True(t, errors.Is(err, ErrDeleteConnected))
}

func TestDeleteNodeAndItsEdgeInSameTransaction(t *testing.T) {
	s := openTest(t)
	tx := s.BeginWrite()
	a, _ := tx.CreateNode("A", nil)
	b, _ := tx.CreateNode("B", nil)
	edge, err := tx.CreateEdge("KNOWS", a, b, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx2 := s.BeginWrite()
	defer tx2.Discard()
	require.NoError(t, tx2.DeleteEdge(edge))
	require.NoError(t, tx2.DeleteNode(a))
	assert.NoError(t, tx2.Commit())
}

func TestGetUpdatedPropertyReadYourWrites(t *testing.T) {
	s := openTest(t)
	tx := s.BeginWrite()
	defer tx.Discard()

	id, err := tx.CreateNode("Person", value.Map{"age": value.Integer(1)})
	require.NoError(t, err)
	require.NoError(t, tx.SetNodeProperty(id, "age", value.Integer(2)))

	v, ok, err := tx.GetUpdatedProperty(true, id, "age")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, v.Equal(value.Integer(2)))
}

func TestIterNodesWithLabel(t *testing.T) {
	s := openTest(t)
	tx := s.BeginWrite()
	_, _ = tx.CreateNode("Person", nil)
	_, _ = tx.CreateNode("Person", nil)
	_, _ = tx.CreateNode("Dog", nil)
	require.NoError(t, tx.Commit())

	read := s.BeginRead()
	defer read.Discard()
	it := read.IterNodesWithLabel("Person")
	defer it.Close()
	count := 0
	for it.Next() {
		count++
		assert.Equal(t, "Person", it.Node().Label)
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 2, count)
}

func TestIterBothEdgesDoubleMatchesSelfLoop(t *testing.T) {
	s := openTest(t)
	tx := s.BeginWrite()
	a, _ := tx.CreateNode("A", nil)
	_, err := tx.CreateEdge("LOOP", a, a, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	read := s.BeginRead()
	defer read.Discard()
	it := read.IterBothEdges(a)
	defer it.Close()
	count := 0
	for it.Next() {
		count++
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 2, count)
}

func TestLoadMissingNode(t *testing.T) {
	s := openTest(t)
	tx := s.BeginRead()
	defer tx.Discard()
	_, err := tx.LoadNode(999)
	assert.ErrorIs(t, err, ErrMissingNode)
}

func TestDeleteMissingNodeAndEdgeAreNoOps(t *testing.T) {
	s := openTest(t)
	tx := s.BeginWrite()
	defer tx.Discard()
	require.NoError(t, tx.DeleteNode(999))
	require.NoError(t, tx.DeleteEdge(999))
	assert.NoError(t, tx.Commit())
}

func TestSetPropertyThenDeleteSameNodeInOneTransaction(t *testing.T) {
	s := openTest(t)
	tx := s.BeginWrite()
	a, err := tx.CreateNode("A", nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx2 := s.BeginWrite()
	defer tx2.Discard()
	require.NoError(t, tx2.SetNodeProperty(a, "seen", value.Boolean(true)))
	require.NoError(t, tx2.DeleteNode(a))
	assert.NoError(t, tx2.Commit())

	read := s.BeginRead()
	defer read.Discard()
	_, err = read.LoadNode(a)
	assert.ErrorIs(t, err, ErrMissingNode)
}
