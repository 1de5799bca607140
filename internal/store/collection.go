package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Record is one document of a collection. ID is the storage key; Doc is the
// JSON body as written by the owning domain package.
type Record struct {
	ID  string
	Doc json.RawMessage
}

// envelope is the on-disk shape. Soft-deleted records keep their bytes until
// DestroyPermanently reclaims the key; they are invisible to Fetch/Observe.
type envelope struct {
	Deleted bool            `json:"deleted,omitempty"`
	Doc     json.RawMessage `json:"doc"`
}

type Collection struct {
	db   *DB
	name string
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) key(id string) []byte {
	return []byte("c:" + c.name + "/" + id)
}

func (c *Collection) prefix() []byte {
	return []byte("c:" + c.name + "/")
}

// Query returns a handle for reading the collection, either one-shot (Fetch)
// or live (Observe).
func (c *Collection) Query() *Query {
	return &Query{c: c}
}

type Query struct {
	c *Collection
}

// Fetch reads all live records of the collection.
func (q *Query) Fetch(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return q.c.fetchCommitted()
}

func (c *Collection) fetchCommitted() ([]Record, error) {
	var recs []Record
	err := c.db.b.View(func(btx *badger.Txn) error {
		var err error
		recs, err = c.scan(btx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", c.name, err)
	}
	return recs, nil
}

func (c *Collection) scan(btx *badger.Txn) ([]Record, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = c.prefix()
	it := btx.NewIterator(opts)
	defer it.Close()

	recs := make([]Record, 0)
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, err
		}
		if env.Deleted {
			continue
		}
		id := string(item.Key()[len(c.prefix()):])
		recs = append(recs, Record{ID: id, Doc: env.Doc})
	}
	return recs, nil
}

// Observe registers fn as a live subscriber. fn is invoked synchronously with
// the current record list before Observe returns, and again exactly once
// after every committed write touching this collection, until Cancel.
func (q *Query) Observe(fn func([]Record)) (*Subscription, error) {
	c := q.c
	// hold the write lock so the initial snapshot and the registration are
	// atomic with respect to commits: no emission is missed or reordered
	c.db.writeMu.Lock()
	defer c.db.writeMu.Unlock()

	recs, err := c.fetchCommitted()
	if err != nil {
		return nil, err
	}
	s := c.db.subscribe(c.name, fn)
	s.deliver(recs)
	return s, nil
}

// Subscription is a live registration created by Observe.
type Subscription struct {
	db         *DB
	collection string
	id         int
	fn         func([]Record)

	mu       sync.Mutex
	canceled bool
}

func (s *Subscription) deliver(recs []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canceled {
		return
	}
	s.fn(recs)
}

// Cancel stops future deliveries. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	if s.canceled {
		s.mu.Unlock()
		return
	}
	s.canceled = true
	s.mu.Unlock()
	s.db.unsubscribe(s.collection, s.id)
}

// Create allocates a record with a fresh id, lets mutate fill the document,
// and stages it in the transaction.
func (c *Collection) Create(tx *Tx, mutate func(r *Record) error) (Record, error) {
	r := Record{ID: uuid.NewString()}
	if err := mutate(&r); err != nil {
		return Record{}, err
	}
	if err := c.put(tx, r, false); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Find resolves a live record inside the transaction. Soft-deleted and
// missing ids both fail with ErrNotFound, which aborts the enclosing Write.
func (c *Collection) Find(tx *Tx, id string) (*Handle, error) {
	item, err := tx.btx.Get(c.key(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s %q: %w", c.name, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find %s %q: %w", c.name, id, err)
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("find %s %q: %w", c.name, id, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("find %s %q: %w", c.name, id, err)
	}
	if env.Deleted {
		return nil, fmt.Errorf("%s %q: %w", c.name, id, ErrNotFound)
	}
	return &Handle{c: c, tx: tx, rec: Record{ID: id, Doc: env.Doc}}, nil
}

func (c *Collection) put(tx *Tx, r Record, deleted bool) error {
	raw, err := json.Marshal(envelope{Deleted: deleted, Doc: r.Doc})
	if err != nil {
		return err
	}
	if err := tx.btx.Set(c.key(r.ID), raw); err != nil {
		return err
	}
	tx.touch(c.name)
	return nil
}

// Handle is a record resolved by Find, bound to its transaction.
type Handle struct {
	c   *Collection
	tx  *Tx
	rec Record
}

func (h *Handle) Record() Record { return h.rec }

// Update applies mutate to the document and stages the new version.
func (h *Handle) Update(mutate func(r *Record) error) error {
	if err := mutate(&h.rec); err != nil {
		return err
	}
	return h.c.put(h.tx, h.rec, false)
}

// MarkAsDeleted tombstones the record: it disappears from Fetch/Observe and
// Find, while its bytes stay until DestroyPermanently.
func (h *Handle) MarkAsDeleted() error {
	return h.c.put(h.tx, h.rec, true)
}

// DestroyPermanently reclaims the record's storage.
func (h *Handle) DestroyPermanently() error {
	if err := h.tx.btx.Delete(h.c.key(h.rec.ID)); err != nil {
		return err
	}
	h.tx.touch(h.c.name)
	return nil
}
