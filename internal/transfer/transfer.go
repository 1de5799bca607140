// Package transfer moves both collections through a two-sheet xlsx workbook.
// Export always writes both sheets, header-only when a collection is empty.
// Import is strictly additive: every row becomes a fresh record in its own
// write transaction, ids from the file are never reused.
package transfer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/estoque-bot/internal/domain/debtors"
	"github.com/Spok95/estoque-bot/internal/domain/inventory"
	"github.com/Spok95/estoque-bot/internal/infra/metrics"
)

const (
	SheetDebtors = "Devedores"
	SheetItems   = "Estoque"
)

var debtorHeader = []interface{}{"id", "name", "amount", "status", "start_date", "due_date", "paid_date"}
var itemHeader = []interface{}{"id", "name", "quantity", "category", "price", "last_removed_at", "custom_created_at", "location"}

type Service struct {
	inv *inventory.Provider
	deb *debtors.Provider
	log *slog.Logger
}

func NewService(inv *inventory.Provider, deb *debtors.Provider, log *slog.Logger) *Service {
	return &Service{inv: inv, deb: deb, log: log}
}

// Report counts the records created by one import.
type Report struct {
	Debtors int
	Items   int
}

func optStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func optDec(p *decimal.Decimal) string {
	if p == nil {
		return ""
	}
	return p.StringFixed(2)
}

// Export builds the workbook from the current snapshots and returns its
// encoded bytes, ready to be written to a file or shared as a document.
func (s *Service) Export() ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), SheetDebtors); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetItems); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	if err := f.SetSheetRow(SheetDebtors, "A1", &debtorHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	row := 2
	for _, d := range s.deb.Debtors() {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return nil, err
		}
		line := []interface{}{
			d.ID, d.Name, d.Amount.StringFixed(2), string(d.Status),
			optStr(d.StartDate), optStr(d.DueDate), optStr(d.PaidDate),
		}
		if err := f.SetSheetRow(SheetDebtors, cell, &line); err != nil {
			return nil, fmt.Errorf("write debtor row: %w", err)
		}
		metrics.TransferRows.WithLabelValues("export", SheetDebtors).Inc()
		row++
	}

	if err := f.SetSheetRow(SheetItems, "A1", &itemHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	row = 2
	for _, it := range s.inv.Items() {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return nil, err
		}
		line := []interface{}{
			it.ID, it.Name, it.Quantity, optStr(it.Category), optDec(it.Price),
			optStr(it.LastRemovedAt), optStr(it.CustomCreatedAt), optStr(it.Location),
		}
		if err := f.SetSheetRow(SheetItems, cell, &line); err != nil {
			return nil, fmt.Errorf("write item row: %w", err)
		}
		metrics.TransferRows.WithLabelValues("export", SheetItems).Inc()
		row++
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// cell reads column i of a row, tolerating short rows.
func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func optCell(row []string, i int) *string {
	v := cell(row, i)
	if v == "" {
		return nil
	}
	return &v
}

// Import parses whichever of the two sheets the workbook carries and creates
// one record per data row. Rows committed before a failure stay committed;
// the partial Report is returned alongside the error.
func (s *Service) Import(ctx context.Context, data []byte) (Report, error) {
	var rep Report

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return rep, fmt.Errorf("read workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	if idx, err := f.GetSheetIndex(SheetDebtors); err == nil && idx >= 0 {
		rows, err := f.GetRows(SheetDebtors)
		if err != nil {
			return rep, fmt.Errorf("read sheet %s: %w", SheetDebtors, err)
		}
		for i := 1; i < len(rows); i++ {
			d, ok := debtorFromRow(rows[i])
			if !ok {
				continue
			}
			if _, err := s.deb.AddDebtor(ctx, d); err != nil {
				return rep, fmt.Errorf("import debtor row %d: %w", i+1, err)
			}
			metrics.TransferRows.WithLabelValues("import", SheetDebtors).Inc()
			rep.Debtors++
		}
	}

	if idx, err := f.GetSheetIndex(SheetItems); err == nil && idx >= 0 {
		rows, err := f.GetRows(SheetItems)
		if err != nil {
			return rep, fmt.Errorf("read sheet %s: %w", SheetItems, err)
		}
		for i := 1; i < len(rows); i++ {
			it, ok := itemFromRow(rows[i])
			if !ok {
				continue
			}
			if _, err := s.inv.AddItem(ctx, it); err != nil {
				return rep, fmt.Errorf("import item row %d: %w", i+1, err)
			}
			metrics.TransferRows.WithLabelValues("import", SheetItems).Inc()
			rep.Items++
		}
	}

	return rep, nil
}

// debtorFromRow maps columns id,name,amount,status,start_date,due_date,paid_date.
// The id column is read past, never reused. Missing amount coerces to 0,
// missing status to open, missing start date to the current time (applied by
// AddDebtor when the field is left unset).
func debtorFromRow(row []string) (debtors.Debtor, bool) {
	name := cell(row, 1)
	if name == "" && cell(row, 2) == "" {
		return debtors.Debtor{}, false
	}
	amount, err := debtors.ParseAmount(cell(row, 2))
	if err != nil {
		amount = decimal.Zero
	}
	d := debtors.Debtor{
		Name:      name,
		Amount:    amount,
		Status:    debtors.Status(cell(row, 3)),
		StartDate: optCell(row, 4),
		DueDate:   optCell(row, 5),
		PaidDate:  optCell(row, 6),
	}
	if d.Status == "" {
		d.Status = debtors.StatusOpen
	}
	return d, true
}

// itemFromRow maps columns id,name,quantity,category,price,last_removed_at,
// custom_created_at,location. Missing quantity coerces to 0.
func itemFromRow(row []string) (inventory.Item, bool) {
	name := cell(row, 1)
	if name == "" && cell(row, 2) == "" {
		return inventory.Item{}, false
	}
	qty, err := strconv.Atoi(cell(row, 2))
	if err != nil {
		qty = 0
	}
	it := inventory.Item{
		Name:            name,
		Quantity:        qty,
		Category:        optCell(row, 3),
		LastRemovedAt:   optCell(row, 5),
		CustomCreatedAt: optCell(row, 6),
		Location:        optCell(row, 7),
	}
	if priceStr := cell(row, 4); priceStr != "" {
		if price, err := debtors.ParseAmount(priceStr); err == nil {
			it.Price = &price
		}
	}
	return it, true
}
