package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// KV is a small settings keyspace on the same store, used for the
// notification preference and the per-condition "already notified" markers.
// KV writes bypass collection transactions and never trigger emissions.
type KV struct {
	db *DB
}

func (db *DB) KV() *KV { return &KV{db: db} }

func kvKey(key string) []byte { return []byte("s:" + key) }

func (kv *KV) Set(key, value string) error {
	err := kv.db.b.Update(func(btx *badger.Txn) error {
		return btx.Set(kvKey(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

// Get returns the value and whether the key exists.
func (kv *KV) Get(key string) (string, bool, error) {
	var val []byte
	err := kv.db.b.View(func(btx *badger.Txn) error {
		item, err := btx.Get(kvKey(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %q: %w", key, err)
	}
	return string(val), true, nil
}

func (kv *KV) SetBool(key string, v bool) error {
	if v {
		return kv.Set(key, "1")
	}
	return kv.Set(key, "0")
}

// GetBool reads a boolean flag; def is returned when the key is unset.
func (kv *KV) GetBool(key string, def bool) (bool, error) {
	s, ok, err := kv.Get(key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return s == "1", nil
}

// Has reports whether the key exists, value ignored. Used for markers.
func (kv *KV) Has(key string) (bool, error) {
	_, ok, err := kv.Get(key)
	return ok, err
}
