package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/estoque-bot/internal/domain/debtors"
	"github.com/Spok95/estoque-bot/internal/domain/inventory"
	"github.com/Spok95/estoque-bot/internal/store"
)

type fakeSender struct {
	sent []string
	fail bool
}

func (f *fakeSender) Send(_ context.Context, text string) error {
	if f.fail {
		return errors.New("delivery refused")
	}
	f.sent = append(f.sent, text)
	return nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeSender) {
	t.Helper()
	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	f := &fakeSender{}
	s := NewScheduler(db.KV(), f, slog.Default())
	s.now = func() time.Time {
		return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	}
	if err := s.EnsureDefault(true); err != nil {
		t.Fatalf("ensure default: %v", err)
	}
	return s, f
}

func strPtr(s string) *string { return &s }

func TestLowStockNotifiesOncePerDay(t *testing.T) {
	s, f := newTestScheduler(t)
	low := []inventory.Item{{ID: "1", Name: "Arroz", Quantity: 0}}

	if err := s.NotifyLowStock(context.Background(), low); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(f.sent) != 1 || !strings.Contains(f.sent[0], "Arroz") {
		t.Fatalf("sent = %v, want one message naming Arroz", f.sent)
	}

	// same condition, same day: no duplicate
	if err := s.NotifyLowStock(context.Background(), low); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(f.sent) != 1 {
		t.Fatalf("duplicate notification sent: %v", f.sent)
	}

	// next day the condition fires again
	s.now = func() time.Time {
		return time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC)
	}
	if err := s.NotifyLowStock(context.Background(), low); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(f.sent) != 2 {
		t.Fatalf("next-day notification missing: %v", f.sent)
	}
}

func TestLowStockAggregatesItems(t *testing.T) {
	s, f := newTestScheduler(t)
	low := []inventory.Item{
		{ID: "1", Name: "Arroz", Quantity: 0},
		{ID: "2", Name: "Feijão", Quantity: 1},
	}

	if err := s.NotifyLowStock(context.Background(), low); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(f.sent) != 1 {
		t.Fatalf("sent %d messages, want 1 summary", len(f.sent))
	}
	if !strings.Contains(f.sent[0], "Arroz") || !strings.Contains(f.sent[0], "Feijão") {
		t.Errorf("summary misses an item: %q", f.sent[0])
	}
}

func TestDisabledPreferenceSkipsAll(t *testing.T) {
	s, f := newTestScheduler(t)
	if err := s.SetEnabled(false); err != nil {
		t.Fatalf("set enabled: %v", err)
	}

	low := []inventory.Item{{ID: "1", Name: "Arroz", Quantity: 0}}
	due := []debtors.Debtor{{ID: "d1", Name: "Maria", Amount: decimal.NewFromInt(100),
		Status: debtors.StatusOpen, DueDate: strPtr("2026-09-01")}}

	if err := s.NotifyLowStock(context.Background(), low); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := s.NotifyDebtors(context.Background(), due); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(f.sent) != 0 {
		t.Errorf("notifications sent while disabled: %v", f.sent)
	}
}

func TestDebtorDueTodayAndOverdue(t *testing.T) {
	s, f := newTestScheduler(t)
	ds := []debtors.Debtor{
		{ID: "d1", Name: "Maria", Amount: decimal.RequireFromString("150"),
			Status: debtors.StatusOpen, DueDate: strPtr("2026-09-01")},
		{ID: "d2", Name: "João", Amount: decimal.RequireFromString("80.50"),
			Status: debtors.StatusOpen, DueDate: strPtr("2026-08-20T00:00:00.000Z")},
		{ID: "d3", Name: "Ana", Amount: decimal.NewFromInt(10),
			Status: debtors.StatusOpen, DueDate: strPtr("2026-12-01")},
		{ID: "d4", Name: "Paga", Amount: decimal.NewFromInt(10),
			Status: debtors.StatusPaid, DueDate: strPtr("2026-09-01")},
		{ID: "d5", Name: "SemData", Amount: decimal.NewFromInt(10),
			Status: debtors.StatusOpen},
	}

	if err := s.NotifyDebtors(context.Background(), ds); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(f.sent) != 2 {
		t.Fatalf("sent = %v, want due-today + overdue only", f.sent)
	}
	joined := strings.Join(f.sent, "\n")
	if !strings.Contains(joined, "Maria") || !strings.Contains(joined, "150.00") {
		t.Errorf("due-today message wrong: %v", f.sent)
	}
	if !strings.Contains(joined, "João") || !strings.Contains(joined, "2026-08-20") {
		t.Errorf("overdue message wrong: %v", f.sent)
	}

	// re-evaluation the same day stays quiet
	if err := s.NotifyDebtors(context.Background(), ds); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(f.sent) != 2 {
		t.Errorf("duplicate debtor notifications: %v", f.sent)
	}
}

func TestSendFailureLeavesMarkerUnset(t *testing.T) {
	s, f := newTestScheduler(t)
	low := []inventory.Item{{ID: "1", Name: "Arroz", Quantity: 0}}

	f.fail = true
	if err := s.NotifyLowStock(context.Background(), low); err != nil {
		t.Fatalf("notify with failing sender: %v", err)
	}
	if len(f.sent) != 0 {
		t.Fatalf("message recorded despite failure: %v", f.sent)
	}

	// delivery recovers: the same condition fires on the next evaluation
	f.fail = false
	if err := s.NotifyLowStock(context.Background(), low); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(f.sent) != 1 {
		t.Errorf("condition lost after failed delivery: %v", f.sent)
	}
}
