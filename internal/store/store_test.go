package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createDoc(t *testing.T, db *DB, col *Collection, doc string) string {
	t.Helper()
	var id string
	err := db.Write(context.Background(), func(tx *Tx) error {
		rec, err := col.Create(tx, func(r *Record) error {
			r.Doc = json.RawMessage(doc)
			return nil
		})
		if err != nil {
			return err
		}
		id = rec.ID
		return nil
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

func TestCreateAndFetch(t *testing.T) {
	db := newTestDB(t)
	col := db.Collection("things")

	id := createDoc(t, db, col, `{"name":"a"}`)
	if id == "" {
		t.Fatal("create returned empty id")
	}

	recs, err := col.Query().Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("fetch returned %d records, want 1", len(recs))
	}
	if recs[0].ID != id {
		t.Errorf("fetched id = %q, want %q", recs[0].ID, id)
	}
}

func TestObserveEmitsOncePerCommit(t *testing.T) {
	db := newTestDB(t)
	col := db.Collection("things")

	var emissions [][]Record
	sub, err := col.Query().Observe(func(recs []Record) {
		emissions = append(emissions, recs)
	})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	defer sub.Cancel()

	if len(emissions) != 1 {
		t.Fatalf("got %d emissions after subscribe, want 1 (initial)", len(emissions))
	}
	if len(emissions[0]) != 0 {
		t.Fatalf("initial emission carries %d records, want 0", len(emissions[0]))
	}

	createDoc(t, db, col, `{"name":"a"}`)
	if len(emissions) != 2 {
		t.Fatalf("got %d emissions after one commit, want 2", len(emissions))
	}
	if len(emissions[1]) != 1 {
		t.Errorf("post-commit emission carries %d records, want 1", len(emissions[1]))
	}

	// two mutations in one transaction: still one emission
	err = db.Write(context.Background(), func(tx *Tx) error {
		for i := 0; i < 2; i++ {
			if _, err := col.Create(tx, func(r *Record) error {
				r.Doc = json.RawMessage(`{"name":"b"}`)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(emissions) != 3 {
		t.Fatalf("got %d emissions, want 3", len(emissions))
	}
	if len(emissions[2]) != 3 {
		t.Errorf("final emission carries %d records, want 3", len(emissions[2]))
	}
}

func TestFailedWriteEmitsNothing(t *testing.T) {
	db := newTestDB(t)
	col := db.Collection("things")

	emissions := 0
	sub, err := col.Query().Observe(func([]Record) { emissions++ })
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	defer sub.Cancel()

	boom := errors.New("boom")
	err = db.Write(context.Background(), func(tx *Tx) error {
		if _, err := col.Create(tx, func(r *Record) error {
			r.Doc = json.RawMessage(`{"name":"x"}`)
			return nil
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("write error = %v, want boom", err)
	}

	if emissions != 1 {
		t.Errorf("got %d emissions, want only the initial one", emissions)
	}
	recs, err := col.Query().Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("failed write left %d records behind", len(recs))
	}
}

func TestCancelStopsEmissions(t *testing.T) {
	db := newTestDB(t)
	col := db.Collection("things")

	emissions := 0
	sub, err := col.Query().Observe(func([]Record) { emissions++ })
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	sub.Cancel()
	sub.Cancel() // idempotent

	createDoc(t, db, col, `{"name":"a"}`)
	if emissions != 1 {
		t.Errorf("got %d emissions after cancel, want 1", emissions)
	}
}

func TestFindNotFound(t *testing.T) {
	db := newTestDB(t)
	col := db.Collection("things")

	err := db.Write(context.Background(), func(tx *Tx) error {
		_, err := col.Find(tx, "missing")
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("find unknown id error = %v, want ErrNotFound", err)
	}
}

func TestUpdateRewritesDocument(t *testing.T) {
	db := newTestDB(t)
	col := db.Collection("things")
	id := createDoc(t, db, col, `{"name":"before"}`)

	err := db.Write(context.Background(), func(tx *Tx) error {
		h, err := col.Find(tx, id)
		if err != nil {
			return err
		}
		return h.Update(func(r *Record) error {
			r.Doc = json.RawMessage(`{"name":"after"}`)
			return nil
		})
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	recs, _ := col.Query().Fetch(context.Background())
	if len(recs) != 1 || string(recs[0].Doc) != `{"name":"after"}` {
		t.Errorf("record not rewritten: %+v", recs)
	}
}

func TestTwoPhaseDelete(t *testing.T) {
	db := newTestDB(t)
	col := db.Collection("things")
	id := createDoc(t, db, col, `{"name":"a"}`)

	// phase one only: record disappears from reads
	err := db.Write(context.Background(), func(tx *Tx) error {
		h, err := col.Find(tx, id)
		if err != nil {
			return err
		}
		return h.MarkAsDeleted()
	})
	if err != nil {
		t.Fatalf("mark as deleted: %v", err)
	}

	recs, _ := col.Query().Fetch(context.Background())
	if len(recs) != 0 {
		t.Fatalf("tombstoned record still fetched: %+v", recs)
	}
	err = db.Write(context.Background(), func(tx *Tx) error {
		_, err := col.Find(tx, id)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("find tombstoned record error = %v, want ErrNotFound", err)
	}
}

func TestDeleteAndDestroyInOneTransaction(t *testing.T) {
	db := newTestDB(t)
	col := db.Collection("things")
	id := createDoc(t, db, col, `{"name":"a"}`)

	var sizes []int
	sub, err := col.Query().Observe(func(recs []Record) {
		sizes = append(sizes, len(recs))
	})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	defer sub.Cancel()

	err = db.Write(context.Background(), func(tx *Tx) error {
		h, err := col.Find(tx, id)
		if err != nil {
			return err
		}
		if err := h.MarkAsDeleted(); err != nil {
			return err
		}
		return h.DestroyPermanently()
	})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}

	// exactly two emissions: the initial [1] and the final [0]; no
	// intermediate tombstone state in between
	want := []int{1, 0}
	if len(sizes) != len(want) || sizes[0] != want[0] || sizes[1] != want[1] {
		t.Errorf("emission sizes = %v, want %v", sizes, want)
	}
	recs, _ := col.Query().Fetch(context.Background())
	if len(recs) != 0 {
		t.Errorf("record survived removal: %+v", recs)
	}
}

func TestReadOnlyWriteDoesNotEmit(t *testing.T) {
	db := newTestDB(t)
	col := db.Collection("things")
	id := createDoc(t, db, col, `{"name":"a"}`)

	emissions := 0
	sub, err := col.Query().Observe(func([]Record) { emissions++ })
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	defer sub.Cancel()

	err = db.Write(context.Background(), func(tx *Tx) error {
		_, err := col.Find(tx, id)
		return err
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if emissions != 1 {
		t.Errorf("read-only transaction emitted (%d emissions, want 1)", emissions)
	}
}

func TestKV(t *testing.T) {
	db := newTestDB(t)
	kv := db.KV()

	if ok, err := kv.Has("k"); err != nil || ok {
		t.Fatalf("Has on empty store = %v, %v", ok, err)
	}
	v, err := kv.GetBool("flag", true)
	if err != nil || v != true {
		t.Fatalf("GetBool default = %v, %v, want true", v, err)
	}

	if err := kv.SetBool("flag", false); err != nil {
		t.Fatalf("SetBool: %v", err)
	}
	v, err = kv.GetBool("flag", true)
	if err != nil || v != false {
		t.Fatalf("GetBool after set = %v, %v, want false", v, err)
	}

	if err := kv.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s, ok, err := kv.Get("k")
	if err != nil || !ok || s != "v" {
		t.Fatalf("Get = %q, %v, %v", s, ok, err)
	}
}
