package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle status of a payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusValidated PaymentStatus = "VALIDATED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// ParsePaymentStatus parses a stored status string. Unknown values are an
// error, never defaulted.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentStatusPending, PaymentStatusValidated, PaymentStatusCancelled:
		return PaymentStatus(s), nil
	default:
		return "", fmt.Errorf("%w: unknown payment status %q", ErrValidation, s)
	}
}

// String returns the string representation of the status.
func (s PaymentStatus) String() string { return string(s) }

// PaymentMethod identifies how a payment was made. Methods are recorded,
// not processed; there is no gateway integration.
type PaymentMethod string

const (
	PaymentMethodCash        PaymentMethod = "CASH"
	PaymentMethodTransfer    PaymentMethod = "TRANSFER"
	PaymentMethodCheck       PaymentMethod = "CHECK"
	PaymentMethodCard        PaymentMethod = "CARD"
	PaymentMethodMobileMoney PaymentMethod = "MOBILE_MONEY"
	PaymentMethodOther       PaymentMethod = "OTHER"
)

// ParsePaymentMethod parses a client-supplied payment method. An
// unrecognized method is rejected rather than silently mapped to OTHER.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentMethodCash, PaymentMethodTransfer, PaymentMethodCheck,
		PaymentMethodCard, PaymentMethodMobileMoney, PaymentMethodOther:
		return PaymentMethod(s), nil
	default:
		return "", fmt.Errorf("%w: unknown payment method %q", ErrValidation, s)
	}
}

// String returns the string representation of the method.
func (m PaymentMethod) String() string { return string(m) }

// Payment is a monetary transaction against exactly one invoice.
// The ledger is touched only when a payment moves PENDING -> VALIDATED,
// and symmetrically when a VALIDATED payment is cancelled.
type Payment struct {
	ID           int64           `json:"id"`
	Reference    string          `json:"reference"`
	InvoiceID    int64           `json:"invoice_id"`
	PayerID      string          `json:"payer_id"`
	Amount       decimal.Decimal `json:"amount"`
	Method       PaymentMethod   `json:"method"`
	Status       PaymentStatus   `json:"status"`
	ValidatedBy  string          `json:"validated_by,omitempty"`
	ValidatedAt  *time.Time      `json:"validated_at,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason string          `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
