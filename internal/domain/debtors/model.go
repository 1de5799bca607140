package debtors

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const CollectionName = "debtors"

type Status string

const (
	StatusOpen Status = "open"
	StatusPaid Status = "paid"
)

// Debtor is one person (or account) that owes money. The only status
// transition exposed anywhere is open -> paid.
type Debtor struct {
	ID        string          `json:"-"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Status    Status          `json:"status"`
	StartDate *string         `json:"start_date,omitempty"`
	DueDate   *string         `json:"due_date,omitempty"`
	PaidDate  *string         `json:"paid_date,omitempty"`
}

// timestampLayout matches the ISO-8601 millisecond form the records carry,
// e.g. 2026-09-01T13:45:00.000Z.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// NowTimestamp is the default StartDate for debtors created without one.
func NowTimestamp() string {
	return time.Now().UTC().Format(timestampLayout)
}

// ParseAmount parses a monetary input that may use a comma as the decimal
// separator ("150,00" -> 150). Empty input is zero.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// DatePart extracts the YYYY-MM-DD prefix of a stored date string, which may
// be either a bare date or a full timestamp.
func DatePart(s string) string {
	if len(s) < 10 {
		return s
	}
	return s[:10]
}
