package store

import "errors"

// Sentinel errors returned by the store. Callers match these with
// errors.Is; a Corruption error wraps ErrCorruption via %w and carries
// the underlying decode error's message as text.
var (
	// ErrReadOnlyWrite is returned when a mutating call is made through a
	// read-only transaction.
	ErrReadOnlyWrite = errors.New("store: write attempted on read-only transaction")

	// ErrCorruption indicates the on-disk data failed to decode.
	ErrCorruption = errors.New("store: corrupt record")

	// ErrPoison indicates the store's internal locking was left in an
	// inconsistent state by a panicking goroutine.
	ErrPoison = errors.New("store: poisoned lock")

	// ErrInternal covers invariant violations that should never happen in
	// correctly driven code (e.g. an id-sequence read racing a writer).
	ErrInternal = errors.New("store: internal invariant violation")

	// ErrMissingNode is returned when an operation references a node id
	// that does not exist in the current snapshot.
	ErrMissingNode = errors.New("store: node does not exist")

	// ErrMissingEdge is returned when an operation references an edge id
	// that does not exist in the current snapshot.
	ErrMissingEdge = errors.New("store: edge does not exist")

	// ErrDeleteConnected is returned by Commit when a node queued for
	// deletion still has incident edges; DeleteNode itself only queues.
	ErrDeleteConnected = errors.New("store: cannot delete node with connected edges")
)
