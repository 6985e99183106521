package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/dyedgreen/cqlite-sub000/pkg/value"
)

// UpdateKind identifies a pending mutation queued on a write transaction.
type UpdateKind int

const (
	UpdateCreateNode UpdateKind = iota
	UpdateCreateEdge
	UpdateSetNodeProperty
	UpdateSetEdgeProperty
	UpdateDeleteNode
	UpdateDeleteEdge
)

// Update is one entry of a write transaction's pending update queue. The
// queue exists so that reads within the same transaction (GetUpdatedProperty,
// used when the VM resolves RETURN columns) can see writes that have not yet been
// applied to the underlying badger transaction.
type Update struct {
	Kind   UpdateKind
	NodeId uint64
	EdgeId uint64
	Label  string
	Origin uint64
	Target uint64
	Key    string
	Value  value.Property
}

// flushRank orders updates at flush time so that an edge's deletion is
// always applied before the deletion of either endpoint node, regardless
// of the order the statement queued them in. Without this, `MATCH (a)
// DELETE a` style updates that also delete a's edges in the same
// statement could spuriously trip the connected-node check.
func flushRank(k UpdateKind) int {
	switch k {
	case UpdateDeleteEdge:
		return 1
	case UpdateDeleteNode:
		return 2
	default:
		return 0
	}
}

// Txn is a single store transaction: either a read-only snapshot or a
// read-write transaction with its own pending update queue. There is no
// separate reader/writer Go type - the readOnly flag dispatches mutating
// calls to ErrReadOnlyWrite, which is simpler than mirroring the two-variant
// enum the design this package replaces used.
type Txn struct {
	store    *Store
	badgerTx *badger.Txn
	readOnly bool
	done     bool

	nextId      uint64
	nextIdKnown bool

	updates       []Update
	dirtyNodes    map[uint64][]Update
	dirtyEdges    map[uint64][]Update
	createdNodes  map[uint64]Node
	createdEdges  map[uint64]Edge
	deletedNodes  map[uint64]bool
	deletedEdges  map[uint64]bool
}

// IsReadOnly reports whether the transaction rejects mutating calls.
func (t *Txn) IsReadOnly() bool { return t.readOnly }

func (t *Txn) requireWrite() error {
	if t.readOnly {
		return ErrReadOnlyWrite
	}
	return nil
}

// Discard abandons the transaction without applying any pending updates.
func (t *Txn) Discard() {
	if t.done {
		return
	}
	t.done = true
	t.badgerTx.Discard()
}

// --- id sequence -----------------------------------------------------

func (t *Txn) loadIdSequence() (uint64, error) {
	if t.nextIdKnown {
		return t.nextId, nil
	}
	item, err := t.badgerTx.Get([]byte{keyIdSequence})
	if errors.Is(err, badger.ErrKeyNotFound) {
		t.nextId = 0
		t.nextIdKnown = true
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: read id sequence: %w", err)
	}
	var v uint64
	err = item.Value(func(b []byte) error {
		v = decodeUint64(b)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: id sequence: %v", ErrCorruption, err)
	}
	t.nextId = v
	t.nextIdKnown = true
	return v, nil
}

// allocId returns the next unused id and advances the in-memory counter.
// The new counter value is persisted when the transaction commits.
func (t *Txn) allocId() (uint64, error) {
	if err := t.requireWrite(); err != nil {
		return 0, err
	}
	id, err := t.loadIdSequence()
	if err != nil {
		return 0, err
	}
	t.nextId = id + 1
	return id, nil
}

// --- loads -------------------------------------------------------------

// LoadNode returns the node for id as this transaction sees it: a node
// created earlier in the transaction comes from its pending creation, a
// node queued for deletion reports ErrMissingNode, and any other id is
// read from the committed record. Pending property SETs are not applied -
// callers that need them call GetUpdatedProperty after LoadNode.
func (t *Txn) LoadNode(id uint64) (Node, error) {
	if n, ok := t.createdNodes[id]; ok {
		return n.clone(), nil
	}
	if t.deletedNodes[id] {
		return Node{}, ErrMissingNode
	}
	return t.loadNodeCommitted(id)
}

// loadNodeCommitted reads id's physical record from the underlying
// badger transaction, bypassing the pending create/delete maps entirely.
// The flush-time apply and connectivity-check paths need this: by the
// time a queued DeleteNode/DeleteEdge is applied, LoadNode/LoadEdge would
// already report it missing via deletedNodes/deletedEdges, even though
// its committed record - the very thing the delete needs to read in
// order to remove its indexes - is still there until this call deletes
// it.
func (t *Txn) loadNodeCommitted(id uint64) (Node, error) {
	item, err := t.badgerTx.Get(nodeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Node{}, ErrMissingNode
	}
	if err != nil {
		return Node{}, fmt.Errorf("store: load node: %w", err)
	}
	var n Node
	err = item.Value(func(b []byte) error { return decodeGob(b, &n) })
	if err != nil {
		return Node{}, fmt.Errorf("%w: node %d: %v", ErrCorruption, id, err)
	}
	return n, nil
}

// loadNodeForApply is LoadNode without the deletedNodes short-circuit: a
// SET queued on a node that a later DELETE in the same statement also
// targets (SET applies before DELETE - see flushRank) still has a
// committed record at apply time, since the delete itself hasn't run yet.
func (t *Txn) loadNodeForApply(id uint64) (Node, error) {
	if n, ok := t.createdNodes[id]; ok {
		return n.clone(), nil
	}
	return t.loadNodeCommitted(id)
}

// loadEdgeForApply is loadNodeForApply's edge counterpart.
func (t *Txn) loadEdgeForApply(id uint64) (Edge, error) {
	if e, ok := t.createdEdges[id]; ok {
		return e.clone(), nil
	}
	return t.loadEdgeCommitted(id)
}

// LoadEdge is LoadNode's edge counterpart: pending creations are
// returned, pending deletions report ErrMissingEdge, and any other id is
// read from the committed record.
func (t *Txn) LoadEdge(id uint64) (Edge, error) {
	if e, ok := t.createdEdges[id]; ok {
		return e.clone(), nil
	}
	if t.deletedEdges[id] {
		return Edge{}, ErrMissingEdge
	}
	return t.loadEdgeCommitted(id)
}

// loadEdgeCommitted is LoadEdge's raw counterpart - see loadNodeCommitted.
func (t *Txn) loadEdgeCommitted(id uint64) (Edge, error) {
	item, err := t.badgerTx.Get(edgeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Edge{}, ErrMissingEdge
	}
	if err != nil {
		return Edge{}, fmt.Errorf("store: load edge: %w", err)
	}
	var e Edge
	err = item.Value(func(b []byte) error { return decodeGob(b, &e) })
	if err != nil {
		return Edge{}, fmt.Errorf("%w: edge %d: %v", ErrCorruption, id, err)
	}
	return e, nil
}

// --- queue_update --------------------------------------------------

// queueUpdate appends an update to the pending queue and updates the
// per-entity dirty index used by GetUpdatedProperty.
func (t *Txn) queueUpdate(u Update) error {
	if err := t.requireWrite(); err != nil {
		return err
	}
	t.updates = append(t.updates, u)
	switch u.Kind {
	case UpdateSetNodeProperty:
		t.dirtyNodes[u.NodeId] = append(t.dirtyNodes[u.NodeId], u)
	case UpdateSetEdgeProperty:
		t.dirtyEdges[u.EdgeId] = append(t.dirtyEdges[u.EdgeId], u)
	}
	return nil
}

// CreateNode queues creation of a node with the given label and initial
// properties, returning its newly allocated id.
func (t *Txn) CreateNode(label string, props value.Map) (uint64, error) {
	id, err := t.allocId()
	if err != nil {
		return 0, err
	}
	if t.createdNodes == nil {
		t.createdNodes = make(map[uint64]Node)
	}
	t.createdNodes[id] = Node{Id: id, Label: label, Properties: props.Clone()}
	if err := t.queueUpdate(Update{Kind: UpdateCreateNode, NodeId: id, Label: label}); err != nil {
		return 0, err
	}
	return id, nil
}

// CreateEdge queues creation of an edge from origin to target.
func (t *Txn) CreateEdge(label string, origin, target uint64, props value.Map) (uint64, error) {
	id, err := t.allocId()
	if err != nil {
		return 0, err
	}
	if t.createdEdges == nil {
		t.createdEdges = make(map[uint64]Edge)
	}
	t.createdEdges[id] = Edge{Id: id, Label: label, Origin: origin, Target: target, Properties: props.Clone()}
	return id, t.queueUpdate(Update{Kind: UpdateCreateEdge, EdgeId: id, Label: label, Origin: origin, Target: target})
}

// SetNodeProperty queues a property write on an existing node.
func (t *Txn) SetNodeProperty(node uint64, key string, v value.Property) error {
	return t.queueUpdate(Update{Kind: UpdateSetNodeProperty, NodeId: node, Key: key, Value: v})
}

// SetEdgeProperty queues a property write on an existing edge.
func (t *Txn) SetEdgeProperty(edge uint64, key string, v value.Property) error {
	return t.queueUpdate(Update{Kind: UpdateSetEdgeProperty, EdgeId: edge, Key: key, Value: v})
}

// DeleteNode queues deletion of a node. The check for incident edges
// happens at flush time, once all queued edge deletions are known.
func (t *Txn) DeleteNode(node uint64) error {
	if t.deletedNodes == nil {
		t.deletedNodes = make(map[uint64]bool)
	}
	t.deletedNodes[node] = true
	return t.queueUpdate(Update{Kind: UpdateDeleteNode, NodeId: node})
}

// DeleteEdge queues deletion of an edge.
func (t *Txn) DeleteEdge(edge uint64) error {
	if t.deletedEdges == nil {
		t.deletedEdges = make(map[uint64]bool)
	}
	t.deletedEdges[edge] = true
	return t.queueUpdate(Update{Kind: UpdateDeleteEdge, EdgeId: edge})
}

// GetUpdatedProperty returns the most recently queued value for key on the
// given node or edge id, consulting the pending update queue before
// falling back to the committed record. This is what gives RETURN clauses
// read-your-writes visibility into uncommitted SetNodeProperty /
// SetEdgeProperty calls within the same transaction.
func (t *Txn) GetUpdatedProperty(isNode bool, id uint64, key string) (value.Property, bool, error) {
	var log []Update
	if isNode {
		log = t.dirtyNodes[id]
	} else {
		log = t.dirtyEdges[id]
	}
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Key == key {
			return log[i].Value, true, nil
		}
	}
	if isNode {
		n, err := t.LoadNode(id)
		if err != nil {
			if errors.Is(err, ErrMissingNode) {
				return value.Null, false, nil
			}
			return value.Null, false, err
		}
		v, ok := n.Properties[key]
		return v, ok, nil
	}
	e, err := t.LoadEdge(id)
	if err != nil {
		if errors.Is(err, ErrMissingEdge) {
			return value.Null, false, nil
		}
		return value.Null, false, err
	}
	v, ok := e.Properties[key]
	return v, ok, nil
}

// --- flush / commit --------------------------------------------------

// Flush applies the pending update queue, in flush order, to the
// underlying badger transaction. It does not commit; call Commit to
// persist the result. Flush is idempotent only in the sense that it must
// be called exactly once per Commit - Commit calls it automatically.
func (t *Txn) flush() error {
	ordered := make([]Update, len(t.updates))
	copy(ordered, t.updates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return flushRank(ordered[i].Kind) < flushRank(ordered[j].Kind)
	})

	// Connectivity check: any node queued for deletion must have no
	// remaining edges once all queued edge deletions are accounted for.
	survivingEdgesOf := map[uint64]int{}
	for _, n := range t.deletedNodesList(ordered) {
		count, err := t.countIncidentEdges(n, ordered)
		if err != nil {
			return err
		}
		survivingEdgesOf[n] = count
	}
	for node, count := range survivingEdgesOf {
		if count > 0 {
			return fmt.Errorf("%w: node %d", ErrDeleteConnected, node)
		}
	}

	for _, u := range ordered {
		if err := t.applyUpdate(u); err != nil {
			return err
		}
	}
	if t.nextIdKnown {
		if err := t.badgerTx.Set([]byte{keyIdSequence}, encodeUint64(t.nextId)); err != nil {
			return fmt.Errorf("store: persist id sequence: %w", err)
		}
	}
	return nil
}

func (t *Txn) deletedNodesList(ordered []Update) []uint64 {
	seen := map[uint64]bool{}
	var out []uint64
	for _, u := range ordered {
		if u.Kind == UpdateDeleteNode && !seen[u.NodeId] {
			seen[u.NodeId] = true
			out = append(out, u.NodeId)
		}
	}
	return out
}

// countIncidentEdges counts edges still touching node after all queued
// edge deletions in ordered are accounted for.
func (t *Txn) countIncidentEdges(node uint64, ordered []Update) (int, error) {
	removedEdges := map[uint64]bool{}
	for _, u := range ordered {
		if u.Kind == UpdateDeleteEdge {
			removedEdges[u.EdgeId] = true
		}
	}
	count := 0
	it := t.IterOriginEdges(node)
	defer it.Close()
	for it.Next() {
		if !removedEdges[it.Edge().Id] {
			count++
		}
	}
	if err := it.Err(); err != nil {
		return 0, err
	}
	it2 := t.IterTargetEdges(node)
	defer it2.Close()
	for it2.Next() {
		if !removedEdges[it2.Edge().Id] {
			count++
		}
	}
	if err := it2.Err(); err != nil {
		return 0, err
	}
	// Edges created in this same transaction also count.
	for id, e := range t.createdEdges {
		if removedEdges[id] {
			continue
		}
		if e.Origin == node || e.Target == node {
			count++
		}
	}
	return count, nil
}

func (t *Txn) applyUpdate(u Update) error {
	switch u.Kind {
	case UpdateCreateNode:
		n := t.createdNodes[u.NodeId]
		return t.writeNode(n)
	case UpdateCreateEdge:
		e := t.createdEdges[u.EdgeId]
		return t.writeEdge(e)
	case UpdateSetNodeProperty:
		n, err := t.loadNodeForApply(u.NodeId)
		if err != nil {
			return err
		}
		if n.Properties == nil {
			n.Properties = value.Map{}
		}
		n.Properties[u.Key] = u.Value
		return t.writeNode(n)
	case UpdateSetEdgeProperty:
		e, err := t.loadEdgeForApply(u.EdgeId)
		if err != nil {
			return err
		}
		if e.Properties == nil {
			e.Properties = value.Map{}
		}
		e.Properties[u.Key] = u.Value
		return t.writeEdge(e)
	case UpdateDeleteNode:
		return t.deleteNode(u.NodeId)
	case UpdateDeleteEdge:
		return t.deleteEdge(u.EdgeId)
	default:
		return fmt.Errorf("%w: unknown update kind %d", ErrInternal, u.Kind)
	}
}

func (t *Txn) writeNode(n Node) error {
	b, err := encodeGob(n)
	if err != nil {
		return fmt.Errorf("%w: encode node: %v", ErrInternal, err)
	}
	if err := t.badgerTx.Set(nodeKey(n.Id), b); err != nil {
		return fmt.Errorf("store: write node: %w", err)
	}
	if err := t.badgerTx.Set(labelKey(n.Label, n.Id), nil); err != nil {
		return fmt.Errorf("store: write label index: %w", err)
	}
	return nil
}

func (t *Txn) writeEdge(e Edge) error {
	b, err := encodeGob(e)
	if err != nil {
		return fmt.Errorf("%w: encode edge: %v", ErrInternal, err)
	}
	if err := t.badgerTx.Set(edgeKey(e.Id), b); err != nil {
		return fmt.Errorf("store: write edge: %w", err)
	}
	if err := t.badgerTx.Set(originsKey(e.Origin, e.Id), nil); err != nil {
		return fmt.Errorf("store: write origins index: %w", err)
	}
	if err := t.badgerTx.Set(targetsKey(e.Target, e.Id), nil); err != nil {
		return fmt.Errorf("store: write targets index: %w", err)
	}
	return nil
}

// deleteNode applies a queued node deletion: it reads the node's current
// record straight from badger (loadNodeCommitted, not LoadNode - by this
// point deletedNodes already marks id, which would make LoadNode report
// it missing before its indexes are even removed) and deletes its record
// plus its label index entry. Deleting an id with no committed record -
// already removed by an earlier delete of the same id in this
// transaction, or one that never existed - is a no-op.
func (t *Txn) deleteNode(id uint64) error {
	n, err := t.loadNodeCommitted(id)
	if errors.Is(err, ErrMissingNode) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := t.badgerTx.Delete(nodeKey(id)); err != nil {
		return fmt.Errorf("store: delete node: %w", err)
	}
	if err := t.badgerTx.Delete(labelKey(n.Label, id)); err != nil {
		return fmt.Errorf("store: delete label index: %w", err)
	}
	delete(t.createdNodes, id)
	return nil
}

// deleteEdge is deleteNode's edge counterpart.
func (t *Txn) deleteEdge(id uint64) error {
	e, err := t.loadEdgeCommitted(id)
	if errors.Is(err, ErrMissingEdge) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := t.badgerTx.Delete(edgeKey(id)); err != nil {
		return fmt.Errorf("store: delete edge: %w", err)
	}
	if err := t.badgerTx.Delete(originsKey(e.Origin, id)); err != nil {
		return fmt.Errorf("store: delete origins index: %w", err)
	}
	if err := t.badgerTx.Delete(targetsKey(e.Target, id)); err != nil {
		return fmt.Errorf("store: delete targets index: %w", err)
	}
	delete(t.createdEdges, id)
	return nil
}

// Commit flushes the pending update queue and persists the result. It is
// a no-op error (ErrReadOnlyWrite) on a read-only transaction.
func (t *Txn) Commit() error {
	if err := t.requireWrite(); err != nil {
		return err
	}
	if t.done {
		return fmt.Errorf("%w: commit on finished transaction", ErrInternal)
	}
	if err := t.flush(); err != nil {
		t.badgerTx.Discard()
		t.done = true
		return err
	}
	t.done = true
	if err := t.badgerTx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
