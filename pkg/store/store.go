// Package store implements the copy-on-write, snapshot-isolated graph
// storage engine: five indexes (nodes, edges, origins, targets, labels)
// plus an id sequence counter, backed by BadgerDB.
//
// Badger already gives us the MVCC snapshot isolation and single-writer
// serialization the graph needs, so Store is a thin, strongly typed layer
// over *badger.DB rather than a hand-rolled page manager.
package store

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	badgeroptions "github.com/dgraph-io/badger/v4/options"
)

// Options configures a Store.
type Options struct {
	// DataDir is the directory badger stores its files in. Ignored when
	// InMemory is true.
	DataDir string

	// InMemory runs badger with no on-disk footprint; all data is lost
	// when the Store is closed. Useful for tests and OpenAnon.
	InMemory bool

	// SyncWrites forces an fsync after every write transaction commit.
	// Slower, but safe across a power loss.
	SyncWrites bool

	// Logger receives badger's internal log lines. A nil Logger silences
	// them, which is the default: most embedders don't want badger's
	// compaction chatter mixed into their own logs.
	Logger badger.Logger

	// ReadOnly opens the store refusing all write transactions.
	ReadOnly bool

	// EncryptionKey, when non-empty, turns on badger's at-rest AES
	// encryption for both the value log and the LSM tree. Callers derive
	// this from a passphrase with a slow KDF (graph.Options does so via
	// scrypt) rather than passing a raw passphrase here, since badger
	// expects a fixed-size key (16/24/32 bytes for AES-128/192/256).
	EncryptionKey []byte

	// EncryptionCacheSize bounds the decrypted-block cache badger keeps
	// when EncryptionKey is set. Ignored otherwise.
	EncryptionCacheSize int64
}

// Store is an open graph database file (or in-memory instance).
type Store struct {
	db *badger.DB
}

// Open opens or creates a Store rooted at dataDir with default options.
func Open(dataDir string) (*Store, error) {
	return OpenWithOptions(Options{DataDir: dataDir})
}

// OpenAnon opens an anonymous, in-memory Store. Equivalent to
// OpenWithOptions(Options{InMemory: true}).
func OpenAnon() (*Store, error) {
	return OpenWithOptions(Options{InMemory: true})
}

// OpenWithOptions opens a Store with full control over badger's
// durability/memory trade-offs.
func OpenWithOptions(opts Options) (*Store, error) {
	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(opts.DataDir)
	}

	badgerOpts = badgerOpts.
		WithSyncWrites(opts.SyncWrites).
		WithReadOnly(opts.ReadOnly).
		WithCompression(badgeroptions.Snappy).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger)
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	if len(opts.EncryptionKey) > 0 {
		cacheSize := opts.EncryptionCacheSize
		if cacheSize <= 0 {
			cacheSize = 16 << 20
		}
		badgerOpts = badgerOpts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(cacheSize)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the store's file handles and flushes any remaining
// memtables to disk.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// BeginRead opens a read-only transaction against the store's current
// snapshot. Mutating calls on the returned Txn fail with ErrReadOnlyWrite.
func (s *Store) BeginRead() *Txn {
	return &Txn{
		store:    s,
		badgerTx: s.db.NewTransaction(false),
		readOnly: true,
	}
}

// BeginWrite opens a read-write transaction. Badger serializes concurrent
// write transactions against the same Store, giving the single-writer
// model the graph's concurrency design requires.
func (s *Store) BeginWrite() *Txn {
	return &Txn{
		store:      s,
		badgerTx:   s.db.NewTransaction(true),
		dirtyNodes: make(map[uint64][]Update),
		dirtyEdges: make(map[uint64][]Update),
	}
}
