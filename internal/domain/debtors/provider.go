package debtors

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/Spok95/estoque-bot/internal/infra/metrics"
	"github.com/Spok95/estoque-bot/internal/store"
)

// Provider mirrors the debtors collection into a live snapshot and exposes
// the mutation verbs, same shape as the inventory provider.
type Provider struct {
	db  *store.DB
	col *store.Collection
	log *slog.Logger

	mu      sync.RWMutex
	debtors []Debtor

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

func (p *Provider) Close() {
	p.sub.Cancel()
}

func (p *Provider) onEmit(recs []store.Record) {
	ds := make([]Debtor, 0, len(recs))
	for _, r := range recs {
		var d Debtor
		if err := json.Unmarshal(r.Doc, &d); err != nil {
			p.log.Error("decode debtor record", "id", r.ID, "err", err)
			continue
		}
		d.ID = r.ID
		ds = append(ds, d)
	}
	p.mu.Lock()
	p.debtors = ds
	p.mu.Unlock()
}

// Debtors returns a copy of the current snapshot.
func (p *Provider) Debtors() []Debtor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Debtor, len(p.debtors))
	copy(out, p.debtors)
	return out
}

func (p *Provider) Find(id string) (Debtor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, d := range p.debtors {
		if d.ID == id {
			return d, true
		}
	}
	return Debtor{}, false
}

func (p *Provider) write(ctx context.Context, fn func(tx *store.Tx) error) error {
	if err := p.db.Write(ctx, fn); err != nil {
		return err
	}
	metrics.StoreWrites.WithLabelValues(CollectionName).Inc()
	return nil
}

// AddDebtor creates one record. Status defaults to open and StartDate to the
// current time when not supplied.
func (p *Provider) AddDebtor(ctx context.Context, d Debtor) (Debtor, error) {
	d.ID = ""
	if d.Status == "" {
		d.Status = StatusOpen
	}
	if d.StartDate == nil {
		now := NowTimestamp()
		d.StartDate = &now
	}
	err := p.write(ctx, func(tx *store.Tx) error {
		rec, err := p.col.Create(tx, func(r *store.Record) error {
			doc, err := json.Marshal(d)
			if err != nil {
				return err
			}
			r.Doc = doc
			return nil
		})
		if err != nil {
			return err
		}
		d.ID = rec.ID
		return nil
	})
	if err != nil {
		return Debtor{}, err
	}
	return d, nil
}

// UpdateDebtor overwrites every modeled field (full replace). Fails when id
// does not resolve.
func (p *Provider) UpdateDebtor(ctx context.Context, id string, d Debtor) error {
	d.ID = ""
	return p.write(ctx, func(tx *store.Tx) error {
		h, err := p.col.Find(tx, id)
		if err != nil {
			return err
		}
		return h.Update(func(r *store.Record) error {
			doc, err := json.Marshal(d)
			if err != nil {
				return err
			}
			r.Doc = doc
			return nil
		})
	})
}

// RemoveDebtor soft-deletes and destroys the record in one transaction.
func (p *Provider) RemoveDebtor(ctx context.Context, id string) error {
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

// MarkAsPaid sets status = paid. The update is unconditional, so calling it
// on an already-paid debtor succeeds and leaves the record paid. PaidDate is
// intentionally untouched here; the card shows whatever the user recorded.
func (p *Provider) MarkAsPaid(ctx context.Context, id string) error {
	return p.write(ctx, func(tx *store.Tx) error {
		h, err := p.col.Find(tx, id)
		if err != nil {
			return err
		}
		var d Debtor
		if err := json.Unmarshal(h.Record().Doc, &d); err != nil {
			return err
		}
		d.Status = StatusPaid
		return h.Update(func(r *store.Record) error {
			doc, err := json.Marshal(d)
			if err != nil {
				return err
			}
			r.Doc = doc
			return nil
		})
	})
}
