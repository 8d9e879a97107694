package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle status of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "DRAFT"
	InvoiceStatusIssued        InvoiceStatus = "ISSUED"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusOverdue       InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled     InvoiceStatus = "CANCELLED"
)

// ParseInvoiceStatus parses a stored status string. Unknown values are an
// error, never defaulted.
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	switch InvoiceStatus(s) {
	case InvoiceStatusDraft, InvoiceStatusIssued, InvoiceStatusPartiallyPaid,
		InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return InvoiceStatus(s), nil
	default:
		return "", fmt.Errorf("%w: unknown invoice status %q", ErrValidation, s)
	}
}

// IsTerminal returns true if no further transitions are allowed from the status.
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// String returns the string representation of the status.
func (s InvoiceStatus) String() string { return string(s) }

// Line is a priced item belonging to exactly one invoice. Adjustments
// (waivers, discounts, scholarships) enter the invoice as compensating
// lines with a negative total.
type Line struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	Description string          `json:"description"`
	UnitAmount  decimal.Decimal `json:"unit_amount"`
	Quantity    int64           `json:"quantity"`
	Discount    decimal.Decimal `json:"discount"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Total       decimal.Decimal `json:"total"`
	Adjustment  bool            `json:"adjustment"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ComputeTotal derives the line total from its pricing fields:
// unit_amount * quantity - discount, plus tax on the discounted base.
func (l *Line) ComputeTotal() decimal.Decimal {
	base := l.UnitAmount.Mul(decimal.NewFromInt(l.Quantity)).Sub(l.Discount)
	return base.Add(base.Mul(l.TaxRate))
}

// Invoice represents money owed by one student for one school period.
// amount_paid is derived state: it equals the sum of VALIDATED payment
// amounts and is written only through the ledger's effect methods.
type Invoice struct {
	ID        int64           `json:"id"`
	Reference string          `json:"reference"`
	StudentID string          `json:"student_id"`
	IssueDate time.Time       `json:"issue_date"`
	DueDate   time.Time       `json:"due_date"`
	Currency  string          `json:"currency"`
	Total     decimal.Decimal `json:"amount_total"`
	Paid      decimal.Decimal `json:"amount_paid"`
	Status    InvoiceStatus   `json:"status"`
	Lines     []Line          `json:"lines,omitempty"`
	Version   int64           `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Remaining is always recomputed from total and paid, floored at zero.
// It is never persisted independently of the other two amounts.
func (i *Invoice) Remaining() decimal.Decimal {
	rem := i.Total.Sub(i.Paid)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// DeriveStatus computes the status implied by the current amounts. Only
// meaningful once the invoice has been issued; DRAFT and CANCELLED are not
// amount-derived.
func (i *Invoice) DeriveStatus() InvoiceStatus {
	switch {
	case i.Paid.GreaterThanOrEqual(i.Total):
		return InvoiceStatusPaid
	case i.Paid.IsPositive():
		return InvoiceStatusPartiallyPaid
	default:
		return InvoiceStatusIssued
	}
}

// EffectiveStatus is the status readers see: an unpaid issued invoice past
// its due date reports OVERDUE. The label is re-evaluated on every read and
// clears as soon as a payment lands.
func (i *Invoice) EffectiveStatus(asOf time.Time) InvoiceStatus {
	if i.Status == InvoiceStatusIssued && i.Paid.IsZero() && asOf.After(i.DueDate) {
		return InvoiceStatusOverdue
	}
	return i.Status
}

// IsOverdue reports whether the invoice still owes money past its due date.
// Used by the reminder scanner; unlike EffectiveStatus it also flags
// partially paid invoices.
func (i *Invoice) IsOverdue(asOf time.Time) bool {
	switch i.Status {
	case InvoiceStatusIssued, InvoiceStatusPartiallyPaid:
		return asOf.After(i.DueDate) && i.Remaining().IsPositive()
	default:
		return false
	}
}
