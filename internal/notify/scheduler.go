// Package notify turns low-stock and debtor due-date conditions into one-shot
// notifications. A persisted per-condition-per-day marker keeps the same
// condition from firing twice on the same day.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Spok95/estoque-bot/internal/domain/debtors"
	"github.com/Spok95/estoque-bot/internal/domain/inventory"
	"github.com/Spok95/estoque-bot/internal/infra/metrics"
	"github.com/Spok95/estoque-bot/internal/store"
)

// Sender delivers one notification text. A failed Send aborts that condition
// for the current evaluation without retry; the marker stays unset so the
// next evaluation tries again.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// EnabledKey is the persisted user preference gating all notifications.
const EnabledKey = "notifications.enabled"

type Scheduler struct {
	kv     *store.KV
	sender Sender
	log    *slog.Logger

	now func() time.Time // test hook
}

func NewScheduler(kv *store.KV, sender Sender, log *slog.Logger) *Scheduler {
	return &Scheduler{kv: kv, sender: sender, log: log, now: time.Now}
}

// EnsureDefault seeds the preference on first start.
func (s *Scheduler) EnsureDefault(enabled bool) error {
	_, ok, err := s.kv.Get(EnabledKey)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.kv.SetBool(EnabledKey, enabled)
}

func (s *Scheduler) Enabled() bool {
	v, err := s.kv.GetBool(EnabledKey, true)
	if err != nil {
		s.log.Error("read notification preference", "err", err)
		return false
	}
	return v
}

func (s *Scheduler) SetEnabled(v bool) error {
	return s.kv.SetBool(EnabledKey, v)
}

func (s *Scheduler) today() string {
	return s.now().UTC().Format("2006-01-02")
}

// markerKey identifies one condition instance: kind + entity + day.
func markerKey(kind, id, day string) string {
	return "notified/" + kind + "/" + id + "/" + day
}

// NotifyLowStock sends a single summary for the items in low that were not
// already notified today. The threshold policy lives with the caller; this
// only consumes the resulting list.
func (s *Scheduler) NotifyLowStock(ctx context.Context, low []inventory.Item) error {
	if !s.Enabled() {
		return nil
	}
	day := s.today()

	var fresh []inventory.Item
	for _, it := range low {
		seen, err := s.kv.Has(markerKey("low_stock", it.ID, day))
		if err != nil {
			return err
		}
		if !seen {
			fresh = append(fresh, it)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	names := make([]string, 0, len(fresh))
	for _, it := range fresh {
		names = append(names, it.Name)
	}
	text := "Estoque baixo: " + strings.Join(names, ", ")

	if err := s.sender.Send(ctx, text); err != nil {
		s.log.Warn("low stock notification skipped", "err", err)
		return nil
	}
	metrics.NotificationsSent.WithLabelValues("low_stock").Inc()

	for _, it := range fresh {
		if err := s.kv.Set(markerKey("low_stock", it.ID, day), "1"); err != nil {
			// a lost marker risks a duplicate tomorrow's worth of noise, not data
			s.log.Error("persist low stock marker", "item", it.ID, "err", err)
		}
	}
	return nil
}

// NotifyDebtors evaluates due-today and overdue conditions for every open
// debtor, each keyed independently per debtor per day.
func (s *Scheduler) NotifyDebtors(ctx context.Context, ds []debtors.Debtor) error {
	if !s.Enabled() {
		return nil
	}
	day := s.today()

	for _, d := range ds {
		if d.Status != debtors.StatusOpen || d.DueDate == nil {
			continue
		}
		due := debtors.DatePart(*d.DueDate)

		var kind, text string
		switch {
		case due == day:
			kind = "debtor_due"
			text = fmt.Sprintf("Dívida vence hoje: %s — R$ %s", d.Name, d.Amount.StringFixed(2))
		case due < day:
			kind = "debtor_overdue"
			text = fmt.Sprintf("Dívida vencida desde %s: %s — R$ %s", due, d.Name, d.Amount.StringFixed(2))
		default:
			continue
		}

		seen, err := s.kv.Has(markerKey(kind, d.ID, day))
		if err != nil {
			return err
		}
		if seen {
			continue
		}

		if err := s.sender.Send(ctx, text); err != nil {
			s.log.Warn("debtor notification skipped", "debtor", d.ID, "err", err)
			continue
		}
		metrics.NotificationsSent.WithLabelValues(kind).Inc()

		if err := s.kv.Set(markerKey(kind, d.ID, day), "1"); err != nil {
			s.log.Error("persist debtor marker", "debtor", d.ID, "err", err)
		}
	}
	return nil
}

// Run evaluates both condition families on a fixed interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, inv *inventory.Provider, deb *debtors.Provider, lowStockThreshold int) {
	t := time.NewTicker(interval)
	defer t.Stop()

	evaluate := func() {
		if err := s.NotifyLowStock(ctx, inv.LowStock(lowStockThreshold)); err != nil {
			s.log.Error("low stock evaluation", "err", err)
		}
		if err := s.NotifyDebtors(ctx, deb.Debtors()); err != nil {
			s.log.Error("debtor evaluation", "err", err)
		}
	}

	evaluate()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			evaluate()
		}
	}
}
