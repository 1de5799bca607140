// Package store is an embedded document store with transactional writes and
// push-based query subscriptions. Records are JSON documents grouped into
// named collections; every committed write re-delivers the full record list
// of each touched collection to its live subscribers.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned by Find when no live record has the given id.
var ErrNotFound = errors.New("store: record not found")

type DB struct {
	b *badger.DB

	// writeMu serializes Write calls; observers rely on commits being totally
	// ordered per collection.
	writeMu sync.Mutex

	subMu  sync.Mutex
	nextID int
	subs   map[string]map[int]*Subscription // collection -> sub id -> sub
}

// Open opens (or creates) the store at path.
func Open(path string) (*DB, error) {
	b, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return newDB(b), nil
}

// OpenInMemory opens a volatile store. Intended for tests.
func OpenInMemory() (*DB, error) {
	b, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	return newDB(b), nil
}

func newDB(b *badger.DB) *DB {
	return &DB{b: b, subs: make(map[string]map[int]*Subscription)}
}

func (db *DB) Close() error {
	return db.b.Close()
}

// Collection returns a handle to the named record collection.
func (db *DB) Collection(name string) *Collection {
	return &Collection{db: db, name: name}
}

// Tx is a scoped write transaction. Mutations staged through it become
// visible to observers only after Write commits, all at once.
type Tx struct {
	btx     *badger.Txn
	touched map[string]bool
}

func (tx *Tx) touch(collection string) {
	tx.touched[collection] = true
}

// Write runs fn inside a single write transaction. All mutations fn issues
// are committed atomically; subscribers of each touched collection receive
// exactly one emission carrying the post-commit record list. If fn returns
// an error nothing is committed and nothing is emitted.
func (db *DB) Write(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	btx := db.b.NewTransaction(true)
	defer btx.Discard()

	tx := &Tx{btx: btx, touched: make(map[string]bool)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.touched) == 0 {
		// read-only transaction, nothing to commit or emit
		return nil
	}
	if err := btx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for name := range tx.touched {
		db.emit(name)
	}
	return nil
}

// emit re-reads the collection and delivers the current record list to every
// live subscriber. Called with writeMu held, so emissions never interleave.
func (db *DB) emit(collection string) {
	recs, err := db.Collection(collection).fetchCommitted()
	if err != nil {
		// subscribers keep their previous snapshot; the next commit retries
		return
	}

	db.subMu.Lock()
	targets := make([]*Subscription, 0, len(db.subs[collection]))
	for _, s := range db.subs[collection] {
		targets = append(targets, s)
	}
	db.subMu.Unlock()

	for _, s := range targets {
		s.deliver(recs)
	}
}

func (db *DB) subscribe(collection string, fn func([]Record)) *Subscription {
	db.subMu.Lock()
	defer db.subMu.Unlock()

	db.nextID++
	s := &Subscription{db: db, collection: collection, id: db.nextID, fn: fn}
	if db.subs[collection] == nil {
		db.subs[collection] = make(map[int]*Subscription)
	}
	db.subs[collection][s.id] = s
	return s
}

func (db *DB) unsubscribe(collection string, id int) {
	db.subMu.Lock()
	defer db.subMu.Unlock()
	delete(db.subs[collection], id)
}
