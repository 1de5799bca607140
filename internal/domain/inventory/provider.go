package inventory

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/Spok95/estoque-bot/internal/infra/metrics"
	"github.com/Spok95/estoque-bot/internal/store"
)

// Provider keeps a live snapshot of the inventory collection and exposes the
// mutation verbs. The snapshot is replaced wholesale on every emission, never
// mutated in place, so callers holding a previous copy are unaffected.
type Provider struct {
	db  *store.DB
	col *store.Collection
	log *slog.Logger

	mu    sync.RWMutex
	items []Item

	sub *store.Subscription
}

func NewProvider(db *store.DB, log *slog.Logger) (*Provider, error) {
	p := &Provider{db: db, col: db.Collection(CollectionName), log: log}
	sub, err := p.col.Query().Observe(p.onEmit)
	if err != nil {
		return nil, err
	}
	p.sub = sub
	return p, nil
}

// Close cancels the live subscription. The last snapshot stays readable.
func (p *Provider) Close() {
	p.sub.Cancel()
}

func (p *Provider) onEmit(recs []store.Record) {
	items := make([]Item, 0, len(recs))
	for _, r := range recs {
		var it Item
		if err := json.Unmarshal(r.Doc, &it); err != nil {
			p.log.Error("decode inventory record", "id", r.ID, "err", err)
			continue
		}
		it.ID = r.ID
		items = append(items, it)
	}
	p.mu.Lock()
	p.items = items
	p.mu.Unlock()
}

// Items returns a copy of the current snapshot.
func (p *Provider) Items() []Item {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Item, len(p.items))
	copy(out, p.items)
	return out
}

// Find returns the snapshot record with the given id.
func (p *Provider) Find(id string) (Item, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, it := range p.items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// LowStock lists items whose quantity is at or below threshold. This is the
// input the notification scheduler consumes; the threshold itself comes from
// configuration, not from here.
func (p *Provider) LowStock(threshold int) []Item {
	var out []Item
	for _, it := range p.Items() {
		if it.Quantity <= threshold {
			out = append(out, it)
		}
	}
	return out
}

func (p *Provider) write(ctx context.Context, fn func(tx *store.Tx) error) error {
	if err := p.db.Write(ctx, fn); err != nil {
		return err
	}
	metrics.StoreWrites.WithLabelValues(CollectionName).Inc()
	return nil
}

// AddItem creates one record from the supplied fields and returns it with its
// generated id. Unset optional fields stay unset in storage.
func (p *Provider) AddItem(ctx context.Context, it Item) (Item, error) {
	it.ID = ""
	err := p.write(ctx, func(tx *store.Tx) error {
		rec, err := p.col.Create(tx, func(r *store.Record) error {
			doc, err := json.Marshal(it)
			if err != nil {
				return err
			}
			r.Doc = doc
			return nil
		})
		if err != nil {
			return err
		}
		it.ID = rec.ID
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	return it, nil
}

// UpdateItem overwrites every modeled field of the record with the values in
// it (full replace, not a merge). Fails when id does not resolve.
func (p *Provider) UpdateItem(ctx context.Context, id string, it Item) error {
	it.ID = ""
	return p.write(ctx, func(tx *store.Tx) error {
		h, err := p.col.Find(tx, id)
		if err != nil {
			return err
		}
		return h.Update(func(r *store.Record) error {
			doc, err := json.Marshal(it)
			if err != nil {
				return err
			}
			r.Doc = doc
			return nil
		})
	})
}

// RemoveItem soft-deletes and then destroys the record in one transaction, so
// observers never see the intermediate tombstoned state.
func (p *Provider) RemoveItem(ctx context.Context, id string) error {
	return p.write(ctx, func(tx *store.Tx) error {
		h, err := p.col.Find(tx, id)
		if err != nil {
			return err
		}
		if err := h.MarkAsDeleted(); err != nil {
			return err
		}
		return h.DestroyPermanently()
	})
}

// IncrementQuantity atomically sets quantity = quantity + 1.
func (p *Provider) IncrementQuantity(ctx context.Context, id string) error {
	return p.adjustQuantity(ctx, id, +1)
}

// DecrementQuantity atomically sets quantity = max(quantity - 1, 0). When the
// quantity is already 0 the transaction commits nothing and emits nothing.
func (p *Provider) DecrementQuantity(ctx context.Context, id string) error {
	return p.adjustQuantity(ctx, id, -1)
}

func (p *Provider) adjustQuantity(ctx context.Context, id string, delta int) error {
	return p.write(ctx, func(tx *store.Tx) error {
		h, err := p.col.Find(tx, id)
		if err != nil {
			return err
		}
		var it Item
		if err := json.Unmarshal(h.Record().Doc, &it); err != nil {
			return err
		}
		next := it.Quantity + delta
		if next < 0 {
			next = 0
		}
		if next == it.Quantity {
			return nil
		}
		it.Quantity = next
		return h.Update(func(r *store.Record) error {
			doc, err := json.Marshal(it)
			if err != nil {
				return err
			}
			r.Doc = doc
			return nil
		})
	})
}
