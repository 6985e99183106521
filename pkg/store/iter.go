package store

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// NodeIter walks a committed snapshot of nodes, either every node or just
// those carrying a particular label. It mirrors the original store's
// NodeIter{All, WithLabel} split: WithLabel walks the label index instead
// of the node table, so it costs proportional to the matching set rather
// than the whole graph.
type NodeIter struct {
	txn  *Txn
	it   *badger.Iterator
	done bool
	cur  Node
	err  error
}

// IterNodes returns an iterator over every node in the transaction's
// snapshot.
func (t *Txn) IterNodes() *NodeIter {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte{prefixNode}
	it := t.badgerTx.NewIterator(opts)
	it.Seek(opts.Prefix)
	return &NodeIter{txn: t, it: it}
}

// IterNodesWithLabel returns an iterator over nodes carrying label,
// driven by the label index.
func (t *Txn) IterNodesWithLabel(label string) *NodeIter {
	opts := badger.DefaultIteratorOptions
	prefix := labelPrefix(label)
	opts.Prefix = prefix
	it := t.badgerTx.NewIterator(opts)
	it.Seek(prefix)
	return &NodeIter{txn: t, it: it}
}

// Next advances the iterator, returning false once exhausted or on error
// (check Err after Next returns false).
func (n *NodeIter) Next() bool {
	if n.done || n.err != nil {
		return false
	}
	if !n.it.Valid() {
		n.done = true
		return false
	}
	item := n.it.Item()
	key := item.KeyCopy(nil)
	var id uint64
	if key[0] == prefixNode {
		id = decodeUint64(key[1:])
		var node Node
		err := item.Value(func(b []byte) error { return decodeGob(b, &node) })
		if err != nil {
			n.err = fmt.Errorf("%w: node iteration: %v", ErrCorruption, err)
			return false
		}
		n.cur = node
	} else {
		id = nodeIdFromLabelKey(key)
		node, err := n.txn.LoadNode(id)
		if err != nil {
			n.err = err
			return false
		}
		n.cur = node
	}
	n.it.Next()
	return true
}

// Node returns the node at the iterator's current position.
func (n *NodeIter) Node() Node { return n.cur }

// Err returns the first error encountered by Next, if any.
func (n *NodeIter) Err() error { return n.err }

// Close releases the iterator's badger resources.
func (n *NodeIter) Close() {
	if !n.done {
		n.done = true
	}
	n.it.Close()
}

// EdgeDirection selects which adjacency index an EdgeIter walks.
type EdgeDirection int

const (
	// EdgeDirected walks a single adjacency index (origins or targets).
	EdgeDirected EdgeDirection = iota
	// EdgeUndirected walks origins then targets, concatenated without
	// deduplication - a self-loop is yielded twice, once per index, which
	// is the double-match semantics an undirected pattern `-[]-` requires.
	EdgeUndirected
)

// EdgeIter walks edges incident to a node, in one direction or both.
type EdgeIter struct {
	txn       *Txn
	node      uint64
	direction EdgeDirection
	phase     int // 0 = origins, 1 = targets, 2 = done
	it        *badger.Iterator
	cur       Edge
	err       error
}

// IterOriginEdges returns an iterator over edges whose origin is node.
func (t *Txn) IterOriginEdges(node uint64) *EdgeIter {
	return t.newEdgeIter(node, EdgeDirected, 0)
}

// IterTargetEdges returns an iterator over edges whose target is node.
func (t *Txn) IterTargetEdges(node uint64) *EdgeIter {
	return t.newEdgeIter(node, EdgeDirected, 1)
}

// IterBothEdges returns an iterator over edges where node is either
// endpoint: origins are yielded first, then targets, with no
// deduplication for self-loops.
func (t *Txn) IterBothEdges(node uint64) *EdgeIter {
	return t.newEdgeIter(node, EdgeUndirected, 0)
}

func (t *Txn) newEdgeIter(node uint64, dir EdgeDirection, startPhase int) *EdgeIter {
	e := &EdgeIter{txn: t, node: node, direction: dir, phase: startPhase}
	e.openPhase()
	return e
}

func (e *EdgeIter) openPhase() {
	if e.it != nil {
		e.it.Close()
		e.it = nil
	}
	var prefix []byte
	switch e.phase {
	case 0:
		prefix = originsPrefix(e.node)
	case 1:
		prefix = targetsPrefix(e.node)
	default:
		return
	}
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	e.it = e.txn.badgerTx.NewIterator(opts)
	e.it.Seek(prefix)
}

// Next advances the iterator.
func (e *EdgeIter) Next() bool {
	if e.err != nil {
		return false
	}
	for e.phase < 2 {
		if e.it != nil && e.it.Valid() {
			key := e.it.Item().KeyCopy(nil)
			id := edgeIdFromIndexKey(key)
			// loadEdgeCommitted, not LoadEdge: this index entry is still
			// physically present, so the edge must still be readable
			// even if it's already queued for deletion in this
			// transaction (the connectivity check at flush time walks
			// exactly this case).
			edge, err := e.txn.loadEdgeCommitted(id)
			if err != nil {
				e.err = err
				return false
			}
			e.cur = edge
			e.it.Next()
			return true
		}
		// Exhausted this phase.
		if e.it != nil {
			e.it.Close()
			e.it = nil
		}
		if e.direction == EdgeDirected {
			e.phase = 2
			break
		}
		e.phase++
		e.openPhase()
	}
	return false
}

// Edge returns the edge at the iterator's current position.
func (e *EdgeIter) Edge() Edge { return e.cur }

// Err returns the first error encountered by Next, if any.
func (e *EdgeIter) Err() error { return e.err }

// Close releases the iterator's badger resources.
func (e *EdgeIter) Close() {
	if e.it != nil {
		e.it.Close()
		e.it = nil
	}
	e.phase = 2
}
