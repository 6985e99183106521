package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyedgreen/cqlite-sub000/pkg/query/vm"
	"github.com/dyedgreen/cqlite-sub000/pkg/store"
	"github.com/dyedgreen/cqlite-sub000/pkg/value"
)

func openTest(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenAnon()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestCreateNodeThenHalt hand-builds a program equivalent to a bare
// `CREATE (:Person {name: "Alice"})` with no RETURN clause: one
// CreateNode instruction falling straight through to Halt, with no
// Yield in between since there are no return columns.
func TestCreateNodeThenHalt(t *testing.T) {
	s := openTest(t)
	txn := s.BeginWrite()
	defer txn.Discard()

	prog := &vm.Program{
		Accesses: []vm.Access{
			{Kind: vm.AccessConstant, Constant: value.Text("Alice")},
		},
		Instructions: []vm.Instruction{
			vm.CreateNode{Label: "Person", Properties: map[string]int{"name": 0}},
			vm.Halt{},
		},
	}

	machine := vm.New(txn, prog, nil)
	status, err := machine.Run()
	require.NoError(t, err)
	assert.Equal(t, vm.StatusHalt, status)
	require.NoError(t, txn.Commit())

	read := s.BeginRead()
	defer read.Discard()
	it := read.IterNodesWithLabel("Person")
	defer it.Close()
	require.True(t, it.Next())
	name, ok := it.Node().Properties["name"]
	require.True(t, ok)
	assert.True(t, name.Equal(value.Text("Alice")))
}

// TestIterNodesYieldsOncePerMatch hand-builds a program equivalent to
// `MATCH (n:Person) RETURN n.id` over a store with two nodes: IterNodes and
// LoadNextNode drive the iteration, Yield suspends once per node, and
// the loop jumps back to LoadNextNode until it reports exhaustion.
func TestIterNodesYieldsOncePerMatch(t *testing.T) {
	s := openTest(t)
	setup := s.BeginWrite()
	_, err := setup.CreateNode("Person", nil)
	require.NoError(t, err)
	_, err = setup.CreateNode("Person", nil)
	require.NoError(t, err)
	require.NoError(t, setup.Commit())

	txn := s.BeginRead()
	defer txn.Discard()

	prog := &vm.Program{
		Accesses: []vm.Access{
			{Kind: vm.AccessNodeId, Node: 0},
		},
		Instructions: []vm.Instruction{
			vm.IterNodes{Label: "Person"}, // 0
			vm.LoadNextNode{Target: 4},    // 1: loop head; jumps to Halt on exhaustion
			vm.Yield{},                    // 2
			vm.Jump{Target: 1},            // 3: back to loop head
			vm.Halt{},                     // 4: iterator exhausted
		},
		Returns: []vm.ReturnColumn{{Name: "n.id", Access: 0}},
	}

	machine := vm.New(txn, prog, nil)
	defer machine.Close()

	rows := 0
	for {
		status, err := machine.Run()
		require.NoError(t, err)
		if status == vm.StatusHalt {
			break
		}
		cols, err := machine.Columns()
		require.NoError(t, err)
		require.Len(t, cols, 1)
		rows++
	}
	assert.Equal(t, 2, rows)
}

// TestParameterAccessResolvesBoundValue exercises AccessParameter
// directly: a program with no match steps that just returns a bound
// parameter's value.
func TestParameterAccessResolvesBoundValue(t *testing.T) {
	s := openTest(t)
	txn := s.BeginRead()
	defer txn.Discard()

	prog := &vm.Program{
		Accesses: []vm.Access{
			{Kind: vm.AccessParameter, Param: "greeting"},
		},
		Instructions: []vm.Instruction{
			vm.Yield{},
			vm.Halt{},
		},
		Returns: []vm.ReturnColumn{{Name: "greeting", Access: 0}},
	}

	machine := vm.New(txn, prog, map[string]value.Property{
		"greeting": value.Text("hello"),
	})
	status, err := machine.Run()
	require.NoError(t, err)
	require.Equal(t, vm.StatusYield, status)

	cols, err := machine.Columns()
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.True(t, cols[0].Equal(value.Text("hello")))
}

// TestMissingParameterResolvesToNull matches the spec's rule that an
// unbound parameter access yields Null rather than an error.
func TestMissingParameterResolvesToNull(t *testing.T) {
	s := openTest(t)
	txn := s.BeginRead()
	defer txn.Discard()

	prog := &vm.Program{
		Accesses: []vm.Access{
			{Kind: vm.AccessParameter, Param: "missing"},
		},
		Instructions: []vm.Instruction{
			vm.Yield{},
			vm.Halt{},
		},
		Returns: []vm.ReturnColumn{{Name: "missing", Access: 0}},
	}

	machine := vm.New(txn, prog, nil)
	status, err := machine.Run()
	require.NoError(t, err)
	require.Equal(t, vm.StatusYield, status)

	cols, err := machine.Columns()
	require.NoError(t, err)
	assert.Equal(t, value.KindNull, cols[0].Kind())
}
