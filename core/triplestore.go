package core

// TripleStore adapter (C4) — the capability this core consumes from an
// embedded semantic store, per spec.md §6: Begin/InsertQuad/Commit/
// Rollback/SnapshotRead. BadgerTripleStore is the concrete
// implementation used by tests and reference wiring, grounded on the
// teacher's storage.go (which this file replaces: the teacher's file
// targeted generic KV pruning/compaction, unrelated to named-graph
// semantics, so it was rewritten rather than thinly wrapped). Badger
// itself is grounded on other_examples/manifests/Charizard13-badger/go.mod.

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Quad is a Triple scoped to a named graph, the unit InsertQuad accepts.
type Quad struct {
	Subject   Term
	Predicate Term
	Object    Term
	Graph     string
}

// BlockGraph returns the per-transaction named graph convention from
// spec.md §6: urn:provchain:block:{height}:tx:{index}.
func BlockGraph(height uint64, index int) string {
	return fmt.Sprintf("urn:provchain:block:%d:tx:%d", height, index)
}

// MetaGraph holds ledger metadata quads written within the same atomic
// transaction as block inserts, used for WAL-style reconciliation
// (spec.md §4.3/§6).
const MetaGraph = "urn:provchain:meta"

// TxnHandle is an open triplestore transaction.
type TxnHandle interface {
	// no exported methods: callers only ever pass the handle back into
	// the TripleStore that produced it.
}

// TripleStore is the capability set spec.md §6 names. Implementations
// must give snapshot reads that observe either the pre- or post-commit
// state but never a partial one (spec.md §5).
type TripleStore interface {
	Begin(ctx context.Context) (TxnHandle, error)
	InsertQuad(txn TxnHandle, q Quad) error
	Commit(txn TxnHandle) error
	Rollback(txn TxnHandle)
	SnapshotRead(ctx context.Context, graph string) ([]Quad, error)

	// DeleteBlockGraphs removes every per-transaction graph and the
	// meta-graph marker committed for height, undoing a triplestore
	// commit that never reached ledger promotion (spec.md §4.3's
	// reconciliation path, driven by Coordinator.Reconcile).
	DeleteBlockGraphs(ctx context.Context, height uint64) error
}

// BadgerTripleStore is a TripleStore backed by an embedded Badger KV
// store. Quads are keyed by graph|subject|predicate|object so that a
// SnapshotRead over a single graph is a cheap prefix scan, and
// duplicate inserts of identical quads are naturally idempotent
// (identical key, identical empty value).
type BadgerTripleStore struct {
	db *badger.DB
}

// OpenBadgerTripleStore opens (creating if absent) a Badger database at
// dir as the backing store.
func OpenBadgerTripleStore(dir string) (*BadgerTripleStore, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger: %v", ErrStoreError, err)
	}
	return &BadgerTripleStore{db: db}, nil
}

func (s *BadgerTripleStore) Close() error { return s.db.Close() }

type badgerTxn struct {
	txn *badger.Txn
}

func (s *BadgerTripleStore) Begin(ctx context.Context) (TxnHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreTimeout, err)
	}
	return &badgerTxn{txn: s.db.NewTransaction(true)}, nil
}

func quadKey(q Quad) []byte {
	var b bytes.Buffer
	b.WriteString(q.Graph)
	b.WriteByte('\x1f')
	b.WriteString(termKeyPart(q.Subject))
	b.WriteByte('\x1f')
	b.WriteString(termKeyPart(q.Predicate))
	b.WriteByte('\x1f')
	b.WriteString(termKeyPart(q.Object))
	return b.Bytes()
}

func termKeyPart(t Term) string {
	r, _ := termToRDF(t, true)
	return r.Value
}

func (s *BadgerTripleStore) InsertQuad(txn TxnHandle, q Quad) error {
	bt, ok := txn.(*badgerTxn)
	if !ok {
		return fmt.Errorf("%w: foreign transaction handle", ErrStoreError)
	}
	if err := bt.txn.Set(quadKey(q), nil); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreError, err)
	}
	return nil
}

func (s *BadgerTripleStore) Commit(txn TxnHandle) error {
	bt, ok := txn.(*badgerTxn)
	if !ok {
		return fmt.Errorf("%w: foreign transaction handle", ErrStoreError)
	}
	if err := bt.txn.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreError, err)
	}
	return nil
}

func (s *BadgerTripleStore) Rollback(txn TxnHandle) {
	bt, ok := txn.(*badgerTxn)
	if !ok {
		return
	}
	bt.txn.Discard()
}

// SnapshotRead lists every quad under graph, independent of any open
// transaction — Badger's own MVCC read view gives the pre-/post-commit
// (never partial) guarantee spec.md §5 requires for free.
func (s *BadgerTripleStore) SnapshotRead(ctx context.Context, graph string) ([]Quad, error) {
	var out []Quad
	prefix := []byte(graph + "\x1f")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrStoreTimeout, err)
			}
			key := string(it.Item().KeyCopy(nil))
			parts := strings.Split(key, "\x1f")
			if len(parts) != 4 {
				continue
			}
			s, err := parseTerm(parts[1])
			if err != nil {
				return err
			}
			p, err := parseTerm(parts[2])
			if err != nil {
				return err
			}
			o, err := parseTerm(parts[3])
			if err != nil {
				return err
			}
			out = append(out, Quad{Subject: s, Predicate: p, Object: o, Graph: graph})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteBlockGraphs removes every per-transaction graph
// (urn:provchain:block:{height}:tx:*) and the meta-graph
// committedHash marker for height, in one Badger transaction. This is
// the repair half of the reconciliation spec.md §4.3 requires: if a
// crash lands between the triplestore commit and ledger promotion,
// these are the only quads that were ever written for height, so
// deleting them restores the pre-commit state exactly.
func (s *BadgerTripleStore) DeleteBlockGraphs(ctx context.Context, height uint64) error {
	txGraphPrefix := []byte(fmt.Sprintf("urn:provchain:block:%d:tx:", height))
	metaSubjectPrefix := []byte(MetaGraph + "\x1f" + termKeyPart(IRI(fmt.Sprintf("urn:provchain:block:%d", height))))

	return s.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range [][]byte{txGraphPrefix, metaSubjectPrefix} {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrStoreTimeout, err)
			}
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			var keys [][]byte
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			it.Close()
			for _, k := range keys {
				if err := txn.Delete(k); err != nil {
					return fmt.Errorf("%w: %v", ErrStoreError, err)
				}
			}
		}
		return nil
	})
}
